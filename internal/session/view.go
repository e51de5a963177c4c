package session

import (
	"sort"

	"github.com/agencykit/projectchat/internal/store"
)

// Entry is one row of the rendered message list. Pending entries are
// local optimistic inserts awaiting server confirmation.
type Entry struct {
	Message store.Message
	Pending bool
}

// View is the ordered, deduplicated message sequence for one project. It
// tolerates any arrival order of the merge inputs: history pages, live
// events, and duplicate deliveries all collapse into one consistent list
// sorted by the store's ordering key.
type View struct {
	msgs    []store.Message
	seen    map[string]struct{}
	pending []pendingEntry
}

type pendingEntry struct {
	localID string
	msg     store.Message
}

// NewView creates an empty view.
func NewView() *View {
	return &View{seen: make(map[string]struct{})}
}

// Insert adds a confirmed message at the position its ordering key
// dictates. Duplicate ids are discarded. latest reports whether the
// inserted message is now the newest entry, which is what gates any
// scroll-to-latest behavior.
func (v *View) Insert(m store.Message) (inserted, latest bool) {
	if _, ok := v.seen[m.ID]; ok {
		return false, false
	}
	v.seen[m.ID] = struct{}{}

	i := sort.Search(len(v.msgs), func(i int) bool {
		if v.msgs[i].Seq != m.Seq {
			return v.msgs[i].Seq > m.Seq
		}
		return v.msgs[i].ID > m.ID
	})
	v.msgs = append(v.msgs, store.Message{})
	copy(v.msgs[i+1:], v.msgs[i:])
	v.msgs[i] = m
	return true, i == len(v.msgs)-1
}

// MergeHistory inserts a history page, returning how many messages were
// new. Used both for the initial seed and for gap recovery re-pulls.
func (v *View) MergeHistory(msgs []store.Message) int {
	added := 0
	for _, m := range msgs {
		if ok, _ := v.Insert(m); ok {
			added++
		}
	}
	return added
}

// AddPending records an optimistic local entry shown until the server
// confirms the send.
func (v *View) AddPending(localID string, m store.Message) {
	v.pending = append(v.pending, pendingEntry{localID: localID, msg: m})
}

// ResolvePending swaps an optimistic entry for its server-confirmed
// message. The later broadcast echo of the same message deduplicates by
// id, so the entry never doubles.
func (v *View) ResolvePending(localID string, m store.Message) {
	v.RemovePending(localID)
	v.Insert(m)
}

// RemovePending drops an optimistic entry, e.g. after a failed send.
func (v *View) RemovePending(localID string) bool {
	for i, p := range v.pending {
		if p.localID == localID {
			v.pending = append(v.pending[:i], v.pending[i+1:]...)
			return true
		}
	}
	return false
}

// Snapshot returns the rendered list: confirmed messages in key order,
// then pending entries in submit order.
func (v *View) Snapshot() []Entry {
	out := make([]Entry, 0, len(v.msgs)+len(v.pending))
	for _, m := range v.msgs {
		out = append(out, Entry{Message: m})
	}
	for _, p := range v.pending {
		out = append(out, Entry{Message: p.msg, Pending: true})
	}
	return out
}

// Len returns the number of confirmed messages.
func (v *View) Len() int {
	return len(v.msgs)
}

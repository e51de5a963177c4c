package attach

import (
	"errors"
	"testing"

	"github.com/agencykit/projectchat/internal/store"
)

func validRef() *store.Attachment {
	return &store.Attachment{
		Filename:   "logo.png",
		MIME:       "image/png",
		Size:       1024,
		URL:        "https://files.example.com/logo.png",
		StorageKey: "uploads/p1/logo.png",
	}
}

func TestLinkValid(t *testing.T) {
	l := NewLinker(10 << 20)

	got, err := l.Link(validRef())
	if err != nil {
		t.Fatal(err)
	}
	if got.Filename != "logo.png" {
		t.Errorf("filename = %q, want logo.png", got.Filename)
	}
}

func TestLinkReturnsCopy(t *testing.T) {
	l := NewLinker(0)
	ref := validRef()

	got, err := l.Link(ref)
	if err != nil {
		t.Fatal(err)
	}
	ref.Filename = "mutated.png"
	if got.Filename != "logo.png" {
		t.Error("linked attachment shares memory with the caller's reference")
	}
}

func TestLinkMissingFields(t *testing.T) {
	l := NewLinker(10 << 20)

	cases := []struct {
		desc   string
		mutate func(*store.Attachment)
	}{
		{"missing filename", func(a *store.Attachment) { a.Filename = "" }},
		{"missing mime", func(a *store.Attachment) { a.MIME = "" }},
		{"missing url", func(a *store.Attachment) { a.URL = "" }},
		{"missing storage key", func(a *store.Attachment) { a.StorageKey = "" }},
		{"zero size", func(a *store.Attachment) { a.Size = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			ref := validRef()
			tc.mutate(ref)
			if _, err := l.Link(ref); !errors.Is(err, ErrInvalidAttachment) {
				t.Errorf("err = %v, want ErrInvalidAttachment", err)
			}
		})
	}
}

func TestLinkOversized(t *testing.T) {
	l := NewLinker(512)
	ref := validRef() // 1024 bytes

	if _, err := l.Link(ref); !errors.Is(err, ErrInvalidAttachment) {
		t.Errorf("err = %v, want ErrInvalidAttachment", err)
	}
}

func TestLinkNoCeiling(t *testing.T) {
	l := NewLinker(0)
	ref := validRef()
	ref.Size = 1 << 40

	if _, err := l.Link(ref); err != nil {
		t.Errorf("ceiling disabled, err = %v, want nil", err)
	}
}

func TestLinkNil(t *testing.T) {
	l := NewLinker(0)
	if _, err := l.Link(nil); !errors.Is(err, ErrInvalidAttachment) {
		t.Errorf("err = %v, want ErrInvalidAttachment", err)
	}
}

// Package attach validates attachment references before they are embedded
// in messages. The referenced bytes live in the external object store; by
// the time a reference reaches this package the upload already happened,
// so validation is structural only.
package attach

import (
	"errors"
	"fmt"

	"github.com/agencykit/projectchat/internal/store"
)

// ErrInvalidAttachment is returned for malformed or oversized references.
var ErrInvalidAttachment = errors.New("invalid attachment")

// Linker applies the attachment reference policy.
type Linker struct {
	maxSize int64
}

// NewLinker creates a linker enforcing the given size ceiling in bytes.
func NewLinker(maxSize int64) *Linker {
	return &Linker{maxSize: maxSize}
}

// Link checks a reference and returns a copy safe to embed in a message.
func (l *Linker) Link(ref *store.Attachment) (*store.Attachment, error) {
	if ref == nil {
		return nil, fmt.Errorf("%w: missing reference", ErrInvalidAttachment)
	}
	switch {
	case ref.Filename == "":
		return nil, fmt.Errorf("%w: missing filename", ErrInvalidAttachment)
	case ref.MIME == "":
		return nil, fmt.Errorf("%w: missing mime type", ErrInvalidAttachment)
	case ref.URL == "":
		return nil, fmt.Errorf("%w: missing url", ErrInvalidAttachment)
	case ref.StorageKey == "":
		return nil, fmt.Errorf("%w: missing storage key", ErrInvalidAttachment)
	case ref.Size <= 0:
		return nil, fmt.Errorf("%w: size must be positive", ErrInvalidAttachment)
	case l.maxSize > 0 && ref.Size > l.maxSize:
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrInvalidAttachment, ref.Size, l.maxSize)
	}
	linked := *ref
	return &linked, nil
}

package blob

import (
	"io"
	"os"
	"sync"
)

// Opener opens a live handle, e.g. a capture temp file.
type Opener func() (io.ReadCloser, error)

// Ref is a binary payload backed either by a live handle or by a persisted
// buffer. Once the buffer exists it wins: the live handle is not read again.
// The zero value and a nil *Ref both mean "no payload".
type Ref struct {
	mu       sync.Mutex
	data     []byte
	open     Opener
	mimeType string
}

// FromBytes wraps a persisted buffer. The slice is not copied.
func FromBytes(b []byte, mimeType string) *Ref {
	return &Ref{data: b, mimeType: mimeType}
}

// FromOpener wraps a live handle.
func FromOpener(open Opener, mimeType string) *Ref {
	return &Ref{open: open, mimeType: mimeType}
}

// FromFile wraps a file on disk as a live handle.
func FromFile(path, mimeType string) *Ref {
	return FromOpener(func() (io.ReadCloser, error) { return os.Open(path) }, mimeType)
}

// MimeType is never empty.
func (r *Ref) MimeType() string {
	if r == nil || r.mimeType == "" {
		return DefaultMIME
	}
	return r.mimeType
}

// WithDefaultMime returns r with mimeType filled in when it has none.
func (r *Ref) WithDefaultMime(mimeType string) *Ref {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mimeType == "" {
		r.mimeType = mimeType
	}
	return r
}

// Empty reports whether there is nothing to read.
func (r *Ref) Empty() bool {
	if r == nil {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data) == 0 && r.open == nil
}

// Bytes returns the persisted buffer, encoding the live handle first when
// needed. After a successful encode the live handle is dropped.
func (r *Ref) Bytes() ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.data) > 0 || r.open == nil {
		return r.data, nil
	}

	rc, err := r.open()
	if err != nil {
		return nil, &EncodeError{Err: err}
	}
	defer rc.Close()

	b, err := Encode(rc)
	if err != nil {
		return nil, err
	}
	r.data = b
	r.open = nil
	return r.data, nil
}

// Resolve returns a playable handle or nil when no payload can be produced.
func (r *Ref) Resolve() *Handle {
	b, err := r.Bytes()
	if err != nil {
		return nil
	}
	return Decode(b, r.MimeType())
}

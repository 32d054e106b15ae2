package blob

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Default MIME types for payloads that arrive without one.
const (
	DefaultMIME      = "application/octet-stream"
	DefaultAudioMIME = "audio/webm"
	DefaultImageMIME = "image/jpeg"
	DefaultLabelMIME = "application/pdf"
)

// EncodeError reports that a live handle could not be read into bytes.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode blob: %v", e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// Handle is a playable, seekable view over a payload.
type Handle struct {
	*bytes.Reader
	MimeType string
}

// Encode reads r to the end and returns a private copy of its content.
func Encode(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, &EncodeError{Err: errors.New("nil handle")}
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, &EncodeError{Err: err}
	}
	return b, nil
}

// Decode wraps b into a Handle. Nil when b is empty.
func Decode(b []byte, mimeType string) *Handle {
	if len(b) == 0 {
		return nil
	}
	if mimeType == "" {
		mimeType = DefaultMIME
	}
	return &Handle{Reader: bytes.NewReader(b), MimeType: mimeType}
}

// ToPortableText encodes b as standard base64.
func ToPortableText(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// FromPortableText reverses ToPortableText.
func FromPortableText(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return b, nil
}

// DataURI renders b as data:<mime>;base64,<payload>.
func DataURI(b []byte, mimeType string) string {
	if mimeType == "" {
		mimeType = DefaultMIME
	}
	return "data:" + mimeType + ";base64," + ToPortableText(b)
}

// ParseDataURI splits a base64 data URI into its bytes and MIME type. A URI
// without a MIME type yields DefaultMIME.
func ParseDataURI(s string) ([]byte, string, error) {
	header, payload, ok := strings.Cut(s, ",")
	if !ok || !strings.HasPrefix(header, "data:") {
		return nil, "", errors.New("not a data uri")
	}
	meta := strings.TrimPrefix(header, "data:")
	if !strings.HasSuffix(meta, ";base64") {
		return nil, "", errors.New("data uri is not base64")
	}
	mimeType := strings.TrimSuffix(meta, ";base64")
	if mimeType == "" {
		mimeType = DefaultMIME
	}
	b, err := FromPortableText(payload)
	if err != nil {
		return nil, "", err
	}
	return b, mimeType, nil
}

// Ext picks the object-store file extension for an image MIME type.
func Ext(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "png"):
		return ".png"
	case strings.Contains(mimeType, "webp"):
		return ".webp"
	default:
		return ".jpg"
	}
}

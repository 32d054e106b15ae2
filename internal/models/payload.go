package models

import (
	"encoding/json"
	"fmt"
)

// Kind tags a syncable payload.
type Kind string

const (
	KindJob         Kind = "job"
	KindNote        Kind = "note"
	KindPhoto       Kind = "photo"
	KindMeasurement Kind = "measurement"
)

// Collection is the remote (and local) collection name for k.
func (k Kind) Collection() string {
	switch k {
	case KindJob:
		return "jobs"
	case KindNote:
		return "notes"
	case KindPhoto:
		return "photos"
	case KindMeasurement:
		return "measurements"
	default:
		return ""
	}
}

// Op is the mutation an outbox item replicates.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Payload is the tagged union of syncable entities.
type Payload interface {
	Entity
	PayloadKind() Kind
}

func (Job) PayloadKind() Kind         { return KindJob }
func (Note) PayloadKind() Kind        { return KindNote }
func (Photo) PayloadKind() Kind       { return KindPhoto }
func (Measurement) PayloadKind() Kind { return KindMeasurement }

// Envelope is the persisted form of a Payload.
type Envelope struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Wrap serializes p together with its tag.
func Wrap(p Payload) (Envelope, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Kind: p.PayloadKind(), Data: b}, nil
}

// Unwrap decodes the payload according to its tag.
func (e Envelope) Unwrap() (Payload, error) {
	switch e.Kind {
	case KindJob:
		return decode[Job](e.Data)
	case KindNote:
		return decode[Note](e.Data)
	case KindPhoto:
		return decode[Photo](e.Data)
	case KindMeasurement:
		return decode[Measurement](e.Data)
	default:
		return nil, fmt.Errorf("unknown payload kind %q", e.Kind)
	}
}

func decode[T Payload](data json.RawMessage) (Payload, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return v, nil
}

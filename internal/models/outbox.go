package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OutboxItem is one pending mutation waiting to be replicated. Seq is
// assigned by the store and orders items first-in first-out.
type OutboxItem struct {
	ID        string          `json:"id"`
	Seq       int64           `json:"seq,omitempty"`
	EntityID  string          `json:"entityId"`
	Kind      Kind            `json:"kind"`
	Op        Op              `json:"op"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

// NewOutboxItem wraps p into an item for op.
func NewOutboxItem(op Op, p Payload, now time.Time) (*OutboxItem, error) {
	env, err := Wrap(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", p.PayloadKind(), err)
	}
	return &OutboxItem{
		ID:        uuid.NewString(),
		EntityID:  p.GetID(),
		Kind:      env.Kind,
		Op:        op,
		Payload:   env.Data,
		CreatedAt: now.UTC(),
	}, nil
}

// Envelope returns the tagged payload of the item.
func (i *OutboxItem) Envelope() Envelope {
	return Envelope{Kind: i.Kind, Data: i.Payload}
}

// UnmarshalJSON also reads the older export shape, which names the kind
// "type", has no entityId and keys the item by the entity id.
func (i *OutboxItem) UnmarshalJSON(b []byte) error {
	type plain OutboxItem
	var v struct {
		plain
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*i = OutboxItem(v.plain)
	if i.Kind == "" {
		i.Kind = v.Type
	}
	if i.EntityID == "" {
		i.EntityID = i.payloadID()
	}
	if i.EntityID == "" {
		i.EntityID = i.ID
	}
	return nil
}

// Validate reports why the item could never be pushed.
func (i *OutboxItem) Validate() error {
	switch {
	case i.ID == "":
		return errors.New("outbox item without id")
	case i.Kind.Collection() == "":
		return fmt.Errorf("unknown payload kind %q", i.Kind)
	case i.EntityID == "":
		return errors.New("outbox item without entity id")
	}
	switch i.Op {
	case OpCreate, OpUpdate:
		if i.payloadID() != i.EntityID {
			return fmt.Errorf("%s payload does not carry entity %s", i.Kind, i.EntityID)
		}
	case OpDelete:
	default:
		return fmt.Errorf("unknown op %q", i.Op)
	}
	return nil
}

func (i *OutboxItem) payloadID() string {
	if len(strings.TrimSpace(string(i.Payload))) == 0 {
		return ""
	}
	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(i.Payload, &head); err != nil {
		return ""
	}
	return head.ID
}

// Package memremote is an in-process remote backend. It serves as the
// "memory" remote kind for trying the tool without a server and as the
// backend of service tests.
package memremote

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/BrennanVollmar/vplm/internal/common"
	"github.com/BrennanVollmar/vplm/internal/remote"
)

// Client keeps rows per collection in memory. Failures can be injected per
// collection and operation.
type Client struct {
	mu     sync.Mutex
	tables map[string]map[string]json.RawMessage
	order  map[string][]string
	fail   map[string]error
	calls  []string
	online bool
}

func NewClient() *Client {
	return &Client{
		tables: map[string]map[string]json.RawMessage{},
		order:  map[string][]string{},
		fail:   map[string]error{},
		online: true,
	}
}

// FailOn makes every call of op ("upsert", "delete", "fetch") against
// collection return err. A nil err clears the failure.
func (c *Client) FailOn(op, collection string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := op + ":" + collection
	if err == nil {
		delete(c.fail, key)
		return
	}
	c.fail[key] = err
}

// SetOnline toggles Ping between success and ErrUnavailable.
func (c *Client) SetOnline(online bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.online = online
}

// Calls returns the log of calls as "op:collection:id".
func (c *Client) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// Rows returns the rows of a collection in first-insert order.
func (c *Client) Rows(collection string) []json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []json.RawMessage
	for _, id := range c.order[collection] {
		if row, ok := c.tables[collection][id]; ok {
			out = append(out, row)
		}
	}
	return out
}

// Seed stores rows directly, bypassing failure injection.
func (c *Client) Seed(collection string, rows ...json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, row := range rows {
		if err := c.put(collection, row); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) Upsert(ctx context.Context, collection string, row json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, _ := remote.RowID(row)
	c.calls = append(c.calls, "upsert:"+collection+":"+id)
	if err := c.check(ctx, "upsert", collection); err != nil {
		return err
	}
	return c.put(collection, row)
}

func (c *Client) Delete(ctx context.Context, collection, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, "delete:"+collection+":"+id)
	if err := c.check(ctx, "delete", collection); err != nil {
		return err
	}
	delete(c.tables[collection], id)
	return nil
}

func (c *Client) Fetch(ctx context.Context, collection string, limit int) ([]json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, "fetch:"+collection+":")
	if err := c.check(ctx, "fetch", collection); err != nil {
		return nil, err
	}
	var out []json.RawMessage
	for _, id := range c.order[collection] {
		row, ok := c.tables[collection][id]
		if !ok {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, append(json.RawMessage(nil), row...))
	}
	return out, nil
}

func (c *Client) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return errors.Join(common.ErrUnavailable, err)
	}
	if !c.online {
		return common.ErrUnavailable
	}
	return nil
}

func (c *Client) Close() error { return nil }

func (c *Client) check(ctx context.Context, op, collection string) error {
	if err := ctx.Err(); err != nil {
		return errors.Join(common.ErrUnavailable, err)
	}
	if !c.online {
		return common.ErrUnavailable
	}
	return c.fail[op+":"+collection]
}

func (c *Client) put(collection string, row json.RawMessage) error {
	id, err := remote.RowID(row)
	if err != nil {
		return err
	}
	if id == "" {
		return errors.New("row without id")
	}
	t, ok := c.tables[collection]
	if !ok {
		t = map[string]json.RawMessage{}
		c.tables[collection] = t
	}
	if _, exists := t[id]; !exists {
		c.order[collection] = append(c.order[collection], id)
	}
	t[id] = append(json.RawMessage(nil), row...)
	return nil
}

// Blobs is an in-memory BlobStore.
type Blobs struct {
	mu      sync.Mutex
	BaseURL string
	objects map[string][]byte
	types   map[string]string
	fail    error
	// Existing makes uploads to already stored paths report ErrAlreadyExists.
	Existing bool
}

func NewBlobs(baseURL string) *Blobs {
	return &Blobs{BaseURL: strings.TrimRight(baseURL, "/"), objects: map[string][]byte{}, types: map[string]string{}}
}

// Fail makes every upload return err until cleared with nil.
func (b *Blobs) Fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail = err
}

func (b *Blobs) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return errors.Join(common.ErrUnavailable, err)
	}
	if b.fail != nil {
		return b.fail
	}
	if _, ok := b.objects[path]; ok && b.Existing {
		return common.ErrAlreadyExists
	}
	b.objects[path] = append([]byte(nil), data...)
	b.types[path] = contentType
	return nil
}

func (b *Blobs) PublicURL(path string) string {
	return b.BaseURL + "/" + strings.TrimLeft(path, "/")
}

// Object returns a stored object and its content type.
func (b *Blobs) Object(path string) ([]byte, string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[path]
	return data, b.types[path], ok
}

// Paths lists stored object paths in lexical order.
func (b *Blobs) Paths() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.objects))
	for p := range b.objects {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

var (
	_ remote.Client    = (*Client)(nil)
	_ remote.BlobStore = (*Blobs)(nil)
)

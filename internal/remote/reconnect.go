package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BrennanVollmar/vplm/internal/common"
)

// DefaultRetryInterval spaces connection attempts made by table calls.
const DefaultRetryInterval = time.Second

// OpenFunc connects a Client with the given access token.
type OpenFunc func(ctx context.Context, token string) (Client, error)

// Reconnecting is a Client that has not connected yet. Ping always tries to
// connect; Upsert, Delete and Fetch try at most once per RetryInterval and
// fail with ErrUnavailable in between. Once connected every call goes to
// the live client.
type Reconnecting struct {
	open OpenFunc

	// RetryInterval defaults to DefaultRetryInterval.
	RetryInterval time.Duration

	mu      sync.Mutex
	client  Client
	token   string
	lastTry time.Time
	lastErr error
	now     func() time.Time
}

var _ Client = (*Reconnecting)(nil)

// NewReconnecting wraps open. cause is the error of the attempt the caller
// already made, token the credential to connect with.
func NewReconnecting(open OpenFunc, token string, cause error) *Reconnecting {
	return &Reconnecting{
		open:          open,
		token:         token,
		lastErr:       cause,
		RetryInterval: DefaultRetryInterval,
		now:           time.Now,
		lastTry:       time.Now(),
	}
}

// Connected reports whether the live client is up.
func (r *Reconnecting) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.client != nil
}

// SetAccessToken keeps token for the next attempt and hands it to the live
// client when that takes tokens.
func (r *Reconnecting) SetAccessToken(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.token = token
	if ts, ok := r.client.(interface{ SetAccessToken(string) }); ok {
		ts.SetAccessToken(token)
	}
}

func (r *Reconnecting) connect(ctx context.Context, force bool) (Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return r.client, nil
	}
	if !force && r.now().Sub(r.lastTry) < r.RetryInterval {
		return nil, r.unavailable()
	}

	r.lastTry = r.now()
	c, err := r.open(ctx, r.token)
	if err != nil {
		r.lastErr = err
		return nil, r.unavailable()
	}
	r.client, r.lastErr = c, nil
	return c, nil
}

// unavailable keeps sentinels other than ErrUnavailable visible, a rejected
// credential must not read as a network problem.
func (r *Reconnecting) unavailable() error {
	switch {
	case r.lastErr == nil:
		return common.ErrUnavailable
	case errors.Is(r.lastErr, common.ErrUnavailable):
		return r.lastErr
	}
	return fmt.Errorf("%w: %w", common.ErrUnavailable, r.lastErr)
}

func (r *Reconnecting) Upsert(ctx context.Context, collection string, row json.RawMessage) error {
	c, err := r.connect(ctx, false)
	if err != nil {
		return err
	}
	return c.Upsert(ctx, collection, row)
}

func (r *Reconnecting) Delete(ctx context.Context, collection, id string) error {
	c, err := r.connect(ctx, false)
	if err != nil {
		return err
	}
	return c.Delete(ctx, collection, id)
}

func (r *Reconnecting) Fetch(ctx context.Context, collection string, limit int) ([]json.RawMessage, error) {
	c, err := r.connect(ctx, false)
	if err != nil {
		return nil, err
	}
	return c.Fetch(ctx, collection, limit)
}

func (r *Reconnecting) Ping(ctx context.Context) error {
	c, err := r.connect(ctx, true)
	if err != nil {
		return err
	}
	return c.Ping(ctx)
}

func (r *Reconnecting) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return err
}

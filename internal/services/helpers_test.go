package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BrennanVollmar/vplm/internal/store"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:", store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

type fakeBackupQueue struct {
	mu      sync.Mutex
	reasons []string
}

func (f *fakeBackupQueue) Queue(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reasons = append(f.reasons, reason)
}

func (f *fakeBackupQueue) got() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.reasons...)
}

// ticking returns a clock function that advances one second per call.
func ticking(start time.Time) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

var t0 = time.Date(2025, 9, 14, 10, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

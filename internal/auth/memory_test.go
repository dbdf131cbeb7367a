package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func TestSessionValid(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		s    *Session
		want bool
	}{
		{"nil", nil, false},
		{"no token", &Session{ExpiresAt: now.Add(time.Hour)}, false},
		{"expired", &Session{AccessToken: "t", ExpiresAt: now.Add(-time.Second)}, false},
		{"expires now", &Session{AccessToken: "t", ExpiresAt: now}, false},
		{"valid", &Session{AccessToken: "t", ExpiresAt: now.Add(time.Hour)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValid(tt.s, now))
		})
	}
}

func TestMemoryTokenStore_PutOverwrites(t *testing.T) {
	store := NewMemoryTokenStore()
	ctx := context.Background()

	_, err := store.Get(ctx, "u1")
	require.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, store.Put(ctx, &Session{UserID: "u1", AccessToken: "a"}))
	require.NoError(t, store.Put(ctx, &Session{UserID: "u1", AccessToken: "b"}))

	s, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "b", s.AccessToken)

	s.AccessToken = "mutated"
	again, _ := store.Get(ctx, "u1")
	assert.Equal(t, "b", again.AccessToken, "Get must return a copy")
}

func TestMemoryTokenStore_RejectsAnonymous(t *testing.T) {
	store := NewMemoryTokenStore()
	assert.Error(t, store.Put(context.Background(), &Session{AccessToken: "a"}))
}

func TestMemoryPendingStore_ConsumeOnce(t *testing.T) {
	store := NewMemoryPendingStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Create(ctx, &PendingAuthorization{State: "s1", Verifier: "v", ExpiresAt: now.Add(time.Minute)}))
	assert.Error(t, store.Create(ctx, &PendingAuthorization{State: "s1", Verifier: "v2", ExpiresAt: now.Add(time.Minute)}))

	p, err := store.Consume(ctx, "s1", now)
	require.NoError(t, err)
	assert.Equal(t, "v", p.Verifier)

	_, err = store.Consume(ctx, "s1", now)
	assert.ErrorIs(t, err, ErrStateReused)

	_, err = store.Consume(ctx, "other", now)
	assert.ErrorIs(t, err, ErrUnknownState)
}

func TestMemoryPendingStore_ConcurrentConsume(t *testing.T) {
	store := NewMemoryPendingStore()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, store.Create(ctx, &PendingAuthorization{State: "s", Verifier: "v", ExpiresAt: now.Add(time.Minute)}))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Consume(ctx, "s", now); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestMemoryPendingStore_Sweep(t *testing.T) {
	store := NewMemoryPendingStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Create(ctx, &PendingAuthorization{State: "old", ExpiresAt: now.Add(-time.Second)}))
	require.NoError(t, store.Create(ctx, &PendingAuthorization{State: "fresh", ExpiresAt: now.Add(time.Minute)}))

	removed, err := store.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Len())

	_, err = store.Consume(ctx, "old", now)
	assert.ErrorIs(t, err, ErrUnknownState)
}

func TestMemoryPendingStore_ReplayAfterExpiry(t *testing.T) {
	store := NewMemoryPendingStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Create(ctx, &PendingAuthorization{State: "s", Verifier: "v", ExpiresAt: now.Add(time.Minute)}))
	_, err := store.Consume(ctx, "s", now)
	require.NoError(t, err)

	later := now.Add(time.Hour)
	_, err = store.Sweep(ctx, later)
	require.NoError(t, err)
	_, err = store.Consume(ctx, "s", later)
	assert.ErrorIs(t, err, ErrStateReused, "marker outlives the pending TTL")

	gone := now.Add(time.Minute + ReuseMarkerRetention)
	removed, err := store.Sweep(ctx, gone)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	_, err = store.Consume(ctx, "s", gone)
	assert.ErrorIs(t, err, ErrUnknownState)
}

func TestJanitor_StopsWithContext(t *testing.T) {
	store := NewMemoryPendingStore()
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	require.NoError(t, store.Create(ctx, &PendingAuthorization{State: "old", ExpiresAt: now.Add(-time.Second)}))

	j := NewJanitor(store, 5*time.Millisecond, nil)
	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

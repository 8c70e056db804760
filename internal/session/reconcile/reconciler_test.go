package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masa-erp/masa/internal/shared"
)

type fakeClient struct {
	authed     atomic.Bool
	should     atomic.Bool
	checkErr   error
	checks     atomic.Int32
	refreshes  atomic.Int32
	refreshErr error
	gate       chan struct{}
	mu         sync.Mutex
}

func newFakeClient() *fakeClient {
	c := &fakeClient{}
	c.authed.Store(true)
	return c
}

func (c *fakeClient) Authenticated() bool { return c.authed.Load() }

func (c *fakeClient) Check(context.Context) (bool, error) {
	c.checks.Add(1)
	c.mu.Lock()
	err := c.checkErr
	c.mu.Unlock()
	return c.should.Load(), err
}

func (c *fakeClient) Refresh(ctx context.Context) error {
	c.refreshes.Add(1)
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refreshErr != nil {
		return c.refreshErr
	}
	c.should.Store(false)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTickCoalescesConcurrentRefreshes(t *testing.T) {
	client := newFakeClient()
	client.should.Store(true)
	client.gate = make(chan struct{})
	r := New(client, time.Hour, quietLogger())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.True(t, r.Tick(ctx))
	}
	close(client.gate)
	r.Wait()
	assert.Equal(t, int32(1), client.refreshes.Load())
	assert.Equal(t, int32(5), client.checks.Load())

	require.True(t, r.Tick(ctx))
	r.Wait()
	assert.Equal(t, int32(1), client.refreshes.Load(), "no refresh once the snapshot is current")
}

func TestTickRetriesFailedRefreshNextTick(t *testing.T) {
	client := newFakeClient()
	client.should.Store(true)
	client.refreshErr = errors.New("boom")
	var refreshed atomic.Int32
	r := New(client, time.Hour, quietLogger())
	r.OnRefresh = func() { refreshed.Add(1) }
	ctx := context.Background()

	r.Tick(ctx)
	r.Wait()
	assert.Equal(t, int32(0), refreshed.Load())

	client.mu.Lock()
	client.refreshErr = nil
	client.mu.Unlock()
	r.Tick(ctx)
	r.Wait()
	assert.Equal(t, int32(2), client.refreshes.Load())
	assert.Equal(t, int32(1), refreshed.Load())
}

func TestTickKeepsPollingOnErrors(t *testing.T) {
	client := newFakeClient()
	r := New(client, time.Hour, quietLogger())

	client.checkErr = shared.ErrRateLimited
	assert.True(t, r.Tick(context.Background()))

	client.checkErr = errors.New("connection reset")
	assert.True(t, r.Tick(context.Background()))

	client.checkErr = shared.ErrUnauthenticated
	assert.False(t, r.Tick(context.Background()))
}

func TestRunStopsWhenSignedOut(t *testing.T) {
	client := newFakeClient()
	r := New(client, 5*time.Millisecond, quietLogger())

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	require.Eventually(t, func() bool { return client.checks.Load() >= 2 }, time.Second, time.Millisecond)
	client.authed.Store(false)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop after sign out")
	}
}

func TestRunHonoursContext(t *testing.T) {
	client := newFakeClient()
	r := New(client, 5*time.Millisecond, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("reconciler ignored cancellation")
	}
}

// Package reconcile keeps a client's session snapshot in step with server-side
// permission changes by polling the session check endpoint.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/masa-erp/masa/internal/shared"
)

// DefaultInterval is the poll period of the reconciliation loop.
const DefaultInterval = 5 * time.Second

// Client is the server surface used by the loop.
type Client interface {
	Authenticated() bool
	Check(ctx context.Context) (bool, error)
	Refresh(ctx context.Context) error
}

// Reconciler polls for invalidation markers and refreshes the session when one
// applies. At most one refresh is in flight; triggers that arrive meanwhile are
// dropped, not queued.
type Reconciler struct {
	client   Client
	interval time.Duration
	logger   *slog.Logger
	inflight *semaphore.Weighted
	wg       sync.WaitGroup

	// OnRefresh, when set, runs after each successful refresh.
	OnRefresh func()
}

// New builds a reconciler. A non-positive interval uses DefaultInterval.
func New(client Client, interval time.Duration, logger *slog.Logger) *Reconciler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		client:   client,
		interval: interval,
		logger:   logger,
		inflight: semaphore.NewWeighted(1),
	}
}

// Run polls until ctx is done or the session stops being authenticated. It
// waits for an in-flight refresh before returning.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	defer r.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !r.Tick(ctx) {
				r.logger.Info("session reconciliation stopped: not authenticated")
				return nil
			}
		}
	}
}

// Tick runs one poll. It returns false once the loop should stop.
func (r *Reconciler) Tick(ctx context.Context) bool {
	if !r.client.Authenticated() {
		return false
	}
	should, err := r.client.Check(ctx)
	switch {
	case errors.Is(err, shared.ErrUnauthenticated):
		return false
	case errors.Is(err, shared.ErrRateLimited):
		r.logger.Debug("session check rate limited")
		return true
	case err != nil:
		r.logger.Warn("session check failed", slog.Any("error", err))
		return true
	}
	if should {
		r.startRefresh(ctx)
	}
	return true
}

func (r *Reconciler) startRefresh(ctx context.Context) {
	if !r.inflight.TryAcquire(1) {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.inflight.Release(1)
		if err := r.client.Refresh(ctx); err != nil {
			r.logger.Warn("session refresh failed, retrying next tick", slog.Any("error", err))
			return
		}
		r.logger.Info("session permissions refreshed")
		if r.OnRefresh != nil {
			r.OnRefresh()
		}
	}()
}

// Wait blocks until any in-flight refresh finishes.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

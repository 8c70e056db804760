package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/masa-erp/masa/internal/rbac"
)

// DefaultMarkerTTL bounds how long an invalidation marker lives.
const DefaultMarkerTTL = 5 * time.Minute

const markerPrefix = "invalidate-session:"

// Marker is a short-lived flag telling a user's sessions to refresh.
type Marker struct {
	UserID int64
	At     time.Time
}

// Supersedes reports whether the marker was written at or after the moment
// the token's permissions were resolved.
func (m Marker) Supersedes(permsAt time.Time) bool {
	return m.At.UnixMilli() >= permsAt.UnixMilli()
}

// MarkerRecorder counts markers written.
type MarkerRecorder interface {
	ObserveMarkers(n int)
}

// MarkerStore keeps invalidation markers in Redis.
type MarkerStore struct {
	client  *redis.Client
	ttl     time.Duration
	now     func() time.Time
	skew    time.Duration
	metrics MarkerRecorder
}

// NewMarkerStore constructs a marker store. A non-positive ttl uses DefaultMarkerTTL.
func NewMarkerStore(client *redis.Client, ttl time.Duration) *MarkerStore {
	if ttl <= 0 {
		ttl = DefaultMarkerTTL
	}
	return &MarkerStore{client: client, ttl: ttl, now: time.Now}
}

// WithMetrics attaches a marker recorder.
func (s *MarkerStore) WithMetrics(m MarkerRecorder) *MarkerStore {
	s.metrics = m
	return s
}

// WithClockSkew shifts markers read by Lookup forward by d, so a token resolved
// on an instance whose clock runs ahead of the writer's still observes them.
// The cost is at most one extra refresh per token within the window.
func (s *MarkerStore) WithClockSkew(d time.Duration) *MarkerStore {
	if d > 0 {
		s.skew = d
	}
	return s
}

// MarkerKey returns the Redis key for userID.
func MarkerKey(userID int64) string {
	return markerPrefix + strconv.FormatInt(userID, 10)
}

// Mark records that userID's effective permissions changed.
func (s *MarkerStore) Mark(ctx context.Context, userID int64) error {
	return s.MarkMany(ctx, []int64{userID})
}

// MarkMany marks several users in a single round trip.
func (s *MarkerStore) MarkMany(ctx context.Context, userIDs []int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	stamp := strconv.FormatInt(s.now().UnixMilli(), 10)
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, id := range userIDs {
			p.Set(ctx, MarkerKey(id), stamp, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("session: mark %d users: %w", len(userIDs), err)
	}
	if s.metrics != nil {
		s.metrics.ObserveMarkers(len(userIDs))
	}
	return nil
}

// InvalidateUsers satisfies rbac.Invalidator.
func (s *MarkerStore) InvalidateUsers(ctx context.Context, userIDs []int64) error {
	return s.MarkMany(ctx, userIDs)
}

// Lookup returns the marker for userID. Reading never clears it.
func (s *MarkerStore) Lookup(ctx context.Context, userID int64) (Marker, bool, error) {
	raw, err := s.client.Get(ctx, MarkerKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return Marker{}, false, nil
	}
	if err != nil {
		return Marker{}, false, fmt.Errorf("session: lookup marker: %w", err)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return Marker{}, false, fmt.Errorf("session: malformed marker %q: %w", raw, err)
	}
	return Marker{UserID: userID, At: time.UnixMilli(ms).Add(s.skew)}, true, nil
}

var _ rbac.Invalidator = (*MarkerStore)(nil)

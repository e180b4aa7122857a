package integration

import (
	"context"
	"time"

	"github.com/orderhub/backend/internal/domain/fulfillment"
	"github.com/orderhub/backend/internal/domain/shared"
)

// FeedSnapshot is what an upstream marketplace feed reports about itself
type FeedSnapshot struct {
	Platform       fulfillment.Channel
	LastOrderAt    *time.Time
	LastExternalID string
	FetchedAt      time.Time
}

// SyncFeed reads per-platform feed snapshots. Implementations may be remote.
type SyncFeed interface {
	Snapshot(ctx context.Context, platform fulfillment.Channel) (*FeedSnapshot, error)
}

// NewFeedUnavailableError reports a feed that could not be read
func NewFeedUnavailableError(platform fulfillment.Channel, cause error) *shared.DomainError {
	if cause == nil {
		return shared.NewDomainErrorf(shared.CodeUpstreamUnavailable, "feed for %s is unavailable", platform)
	}
	return shared.NewDomainErrorf(shared.CodeUpstreamUnavailable, "feed for %s is unavailable: %v", platform, cause)
}

// SyncCursor is the newest ingested order of a platform
type SyncCursor struct {
	LastOrderSyncedAt time.Time
	LastExternalID    string
}

// OrderStatsReader is the read-only view of the order store the reconciler
// needs
type OrderStatsReader interface {
	// LatestSynced returns the most recently ingested order, or nil when the
	// platform never produced one
	LatestSynced(ctx context.Context, platform fulfillment.Channel) (*SyncCursor, error)

	// StreamOrderTimes calls fn with the order_datetime of every order of the
	// platform in [from, to). Returning an error from fn stops the scan.
	StreamOrderTimes(ctx context.Context, platform fulfillment.Channel, from, to time.Time, fn func(time.Time) error) error
}

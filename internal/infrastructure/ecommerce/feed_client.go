// Package ecommerce reads marketplace feed status endpoints for the sync
// reconciler.
package ecommerce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/orderhub/backend/internal/domain/fulfillment"
	"github.com/orderhub/backend/internal/domain/integration"
)

const (
	// maxFeedResponseSize limits the status body; a status document is tiny
	maxFeedResponseSize = 64 * 1024
	defaultFeedTimeout  = 5 * time.Second
)

// feedStatus is the status document a marketplace feed serves
type feedStatus struct {
	Platform       string     `json:"platform"`
	LastOrderAt    *time.Time `json:"last_order_at"`
	LastExternalID string     `json:"last_external_id"`
}

// HTTPFeed reads one status URL per marketplace. Platforms without a URL
// report no snapshot.
type HTTPFeed struct {
	endpoints  map[fulfillment.Channel]string
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// NewHTTPFeed builds a feed reader from platform-name to URL pairs. Names
// are matched case-insensitively because config keys arrive lowercased.
func NewHTTPFeed(urls map[string]string, timeout time.Duration, logger *zap.Logger) (*HTTPFeed, error) {
	endpoints := make(map[fulfillment.Channel]string, len(urls))
	for name, url := range urls {
		ch, err := fulfillment.ParseChannel(name)
		if err != nil {
			return nil, fmt.Errorf("feed %q: %w", name, err)
		}
		if !ch.IsMarketplace() {
			return nil, fmt.Errorf("feed %q: manual entry has no feed", name)
		}
		if url == "" {
			continue
		}
		endpoints[ch] = url
	}
	if timeout <= 0 {
		timeout = defaultFeedTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPFeed{
		endpoints:  endpoints,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Configured reports whether any platform has a feed URL
func (f *HTTPFeed) Configured() bool {
	return len(f.endpoints) > 0
}

// Snapshot fetches the platform's status document
func (f *HTTPFeed) Snapshot(ctx context.Context, platform fulfillment.Channel) (*integration.FeedSnapshot, error) {
	url, ok := f.endpoints[platform]
	if !ok {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, integration.NewFeedUnavailableError(platform, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, integration.NewFeedUnavailableError(platform, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedResponseSize))
	if err != nil {
		return nil, integration.NewFeedUnavailableError(platform, fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, integration.NewFeedUnavailableError(platform, fmt.Errorf("status %d", resp.StatusCode))
	}

	var status feedStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, integration.NewFeedUnavailableError(platform, fmt.Errorf("decode status: %w", err))
	}
	if status.Platform != "" {
		if reported, err := fulfillment.ParseChannel(status.Platform); err != nil || reported != platform {
			return nil, integration.NewFeedUnavailableError(platform,
				fmt.Errorf("feed reports platform %q", status.Platform))
		}
	}

	f.logger.Debug("feed snapshot fetched",
		zap.String("platform", platform.String()),
		zap.String("last_external_id", status.LastExternalID))

	snap := &integration.FeedSnapshot{
		Platform:       platform,
		LastExternalID: status.LastExternalID,
		FetchedAt:      f.now().UTC(),
	}
	if status.LastOrderAt != nil {
		t := status.LastOrderAt.UTC()
		snap.LastOrderAt = &t
	}
	return snap, nil
}

var _ integration.SyncFeed = (*HTTPFeed)(nil)

package fulfillment

import (
	"fmt"
	"strings"
)

// Channel identifies the marketplace an order came from
type Channel string

const (
	ChannelMarketplaceA Channel = "marketplace-A"
	ChannelMarketplaceB Channel = "marketplace-B"
	ChannelMarketplaceC Channel = "marketplace-C"
	ChannelManual       Channel = "manual"
)

var allChannels = []Channel{
	ChannelMarketplaceA,
	ChannelMarketplaceB,
	ChannelMarketplaceC,
	ChannelManual,
}

// AllChannels returns every known channel
func AllChannels() []Channel {
	out := make([]Channel, len(allChannels))
	copy(out, allChannels)
	return out
}

// MarketplaceChannels returns the channels backed by an external feed
func MarketplaceChannels() []Channel {
	return []Channel{ChannelMarketplaceA, ChannelMarketplaceB, ChannelMarketplaceC}
}

// IsValid checks if the channel is known
func (c Channel) IsValid() bool {
	for _, known := range allChannels {
		if c == known {
			return true
		}
	}
	return false
}

// IsMarketplace reports whether orders on this channel carry an external id
func (c Channel) IsMarketplace() bool {
	return c.IsValid() && c != ChannelManual
}

// String returns the string representation
func (c Channel) String() string {
	return string(c)
}

// ParseChannel matches a channel tag case-insensitively
func ParseChannel(s string) (Channel, error) {
	for _, known := range allChannels {
		if strings.EqualFold(string(known), strings.TrimSpace(s)) {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown channel %q", s)
}

// ScopeKey names the batch numbering scope for an optional platform filter.
// A nil platform is the "all platforms" scope.
func ScopeKey(platform *Channel) string {
	if platform == nil {
		return "all"
	}
	return string(*platform)
}

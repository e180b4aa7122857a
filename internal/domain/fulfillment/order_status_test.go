package fulfillment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderStatus_IsValid(t *testing.T) {
	for _, s := range AllOrderStatuses() {
		assert.True(t, s.IsValid(), s)
	}
	assert.False(t, OrderStatus("SHIPPING").IsValid())
	assert.False(t, OrderStatus("").IsValid())
}

func TestOrderStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from OrderStatus
		to   OrderStatus
		ok   bool
	}{
		{StatusNew, StatusPaid, true},
		{StatusNew, StatusCancelled, true},
		{StatusNew, StatusPacking, false},
		{StatusPaid, StatusPacking, true},
		{StatusPaid, StatusCancelled, true},
		{StatusPaid, StatusReadyToShip, false},
		{StatusPaid, StatusNew, false},
		{StatusPacking, StatusReadyToShip, true},
		{StatusPacking, StatusCancelled, true},
		{StatusPacking, StatusShipped, false},
		{StatusReadyToShip, StatusShipped, true},
		{StatusReadyToShip, StatusCancelled, true},
		{StatusShipped, StatusDelivered, true},
		{StatusShipped, StatusCancelled, false},
		{StatusDelivered, StatusCancelled, false},
		{StatusDelivered, StatusShipped, false},
		{StatusCancelled, StatusNew, false},
		{StatusCancelled, StatusCancelled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestOrderStatus_Rank(t *testing.T) {
	assert.Equal(t, 0, StatusNew.Rank())
	assert.Equal(t, 5, StatusDelivered.Rank())
	assert.Equal(t, -1, StatusCancelled.Rank())

	assert.True(t, StatusShipped.AtLeast(StatusPacking))
	assert.True(t, StatusPacking.AtLeast(StatusPacking))
	assert.False(t, StatusPaid.AtLeast(StatusPacking))
	assert.False(t, StatusCancelled.AtLeast(StatusNew))
	assert.False(t, StatusDelivered.AtLeast(StatusCancelled))
}

func TestOrderStatus_IsTerminal(t *testing.T) {
	assert.True(t, StatusDelivered.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusShipped.IsTerminal())
	assert.False(t, OrderStatus("BOGUS").IsTerminal())
}

func TestParseOrderStatus(t *testing.T) {
	s, err := ParseOrderStatus(" ready_to_ship ")
	require.NoError(t, err)
	assert.Equal(t, StatusReadyToShip, s)

	_, err = ParseOrderStatus("lost")
	assert.Error(t, err)
}

func TestLabelPendingStatuses(t *testing.T) {
	assert.Equal(t, []OrderStatus{StatusPaid, StatusPacking, StatusReadyToShip}, LabelPendingStatuses(false))
	assert.Contains(t, LabelPendingStatuses(true), StatusShipped)
}

func TestChannel(t *testing.T) {
	c, err := ParseChannel("MARKETPLACE-b")
	require.NoError(t, err)
	assert.Equal(t, ChannelMarketplaceB, c)
	assert.True(t, c.IsMarketplace())
	assert.False(t, ChannelManual.IsMarketplace())

	_, err = ParseChannel("ebay")
	assert.Error(t, err)

	assert.Equal(t, "all", ScopeKey(nil))
	assert.Equal(t, "marketplace-B", ScopeKey(&c))
}

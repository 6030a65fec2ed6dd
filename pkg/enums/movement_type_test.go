package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMovementTypePolicy(t *testing.T) {
	cases := []struct {
		kind      MovementType
		deduction bool
		addition  bool
		neutral   bool
	}{
		{MovementSale, true, false, false},
		{MovementDamaged, true, false, false},
		{MovementReturn, false, true, false},
		{MovementCancellation, false, true, false},
		{MovementPurchaseReceived, false, true, false},
		{MovementAdjustment, false, false, true},
		{MovementTransfer, false, false, true},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			assert.Equal(t, tc.deduction, tc.kind.IsDeduction())
			assert.Equal(t, tc.addition, tc.kind.IsAddition())
			assert.Equal(t, tc.neutral, tc.kind.IsNeutral())
		})
	}
	require.Len(t, MovementTypes(), len(cases))
}

func TestUnknownMovementTypeHasNoClassification(t *testing.T) {
	unknown := MovementType("theft")
	assert.False(t, unknown.IsValid())
	assert.False(t, unknown.IsDeduction())
	assert.False(t, unknown.IsAddition())
	assert.False(t, unknown.IsNeutral())
}

func TestParseMovementType(t *testing.T) {
	kind, err := ParseMovementType("purchase_received")
	require.NoError(t, err)
	require.Equal(t, MovementPurchaseReceived, kind)

	_, err = ParseMovementType("Sale")
	require.Error(t, err)
}

func TestParseOutboxEventType(t *testing.T) {
	kind, err := ParseOutboxEventType("order_return_completed")
	require.NoError(t, err)
	require.Equal(t, EventOrderReturnCompleted, kind)

	_, err = ParseOutboxEventType("order_created")
	require.Error(t, err)
}

func TestSalesChannels(t *testing.T) {
	channel, err := ParseSalesChannel("shopify")
	require.NoError(t, err)
	assert.True(t, channel.IsMarketplace())
	assert.False(t, ChannelManual.IsMarketplace())
	assert.False(t, SalesChannel("amazon").IsMarketplace())

	_, err = ParseSalesChannel("")
	require.EqualError(t, err, `invalid sales channel ""`)
}

func TestOutboxEventTypesReturnsCopy(t *testing.T) {
	types := OutboxEventTypes()
	require.Len(t, types, 3)
	types[0] = "mutated"
	assert.Equal(t, EventOrderItemCreated, OutboxEventTypes()[0])
	assert.True(t, OutboxDLQReasonDecodeFailed.IsValid())
	assert.False(t, OutboxDLQErrorReason("timeout").IsValid())
}

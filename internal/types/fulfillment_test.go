package types

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveAmount(t *testing.T) {
	decay := LinearDecay{StartTime: 1000, StopTime: 1100, Slope: uint256.NewInt(2)}.Encode()

	tests := []struct {
		name     string
		context  []byte
		at       uint32
		expected uint64
	}{
		{name: "empty context", context: nil, at: 5000, expected: 100},
		{name: "explicit fixed context", context: []byte{ContextFixed}, at: 5000, expected: 100},
		{name: "decay before start", context: decay, at: 900, expected: 300},
		{name: "decay midway", context: decay, at: 1050, expected: 200},
		{name: "decay at stop", context: decay, at: 1100, expected: 100},
		{name: "decay after stop", context: decay, at: 2000, expected: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := OutputDescription{Amount: uint256.NewInt(100), FulfillmentContext: tt.context}
			amount, err := ResolveAmount(out, tt.at)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, amount.Uint64())
		})
	}
}

func TestResolveAmountErrors(t *testing.T) {
	t.Run("unknown context type", func(t *testing.T) {
		out := OutputDescription{Amount: uint256.NewInt(1), FulfillmentContext: []byte{0x07}}
		_, err := ResolveAmount(out, 0)
		assert.ErrorIs(t, err, ErrInvalidContext)
	})

	t.Run("truncated linear decay", func(t *testing.T) {
		ctx := LinearDecay{StartTime: 1, StopTime: 2, Slope: uint256.NewInt(1)}.Encode()
		out := OutputDescription{Amount: uint256.NewInt(1), FulfillmentContext: ctx[:20]}
		_, err := ResolveAmount(out, 0)
		assert.ErrorIs(t, err, ErrInvalidContext)
	})

	t.Run("decay start after stop", func(t *testing.T) {
		ctx := LinearDecay{StartTime: 10, StopTime: 2, Slope: uint256.NewInt(1)}.Encode()
		_, err := ParseLinearDecay(ctx)
		assert.ErrorIs(t, err, ErrInvalidContext)
	})

	t.Run("slope overflow", func(t *testing.T) {
		max := new(uint256.Int).SetAllOne()
		ctx := LinearDecay{StartTime: 0, StopTime: 10, Slope: max}.Encode()
		out := OutputDescription{Amount: uint256.NewInt(1), FulfillmentContext: ctx}
		_, err := ResolveAmount(out, 0)
		assert.ErrorIs(t, err, ErrAmountOverflow)
	})
}

func TestLinearDecayRoundTrip(t *testing.T) {
	d := LinearDecay{StartTime: 17, StopTime: 99, Slope: uint256.NewInt(123456789)}
	encoded := d.Encode()
	require.Len(t, encoded, 41)
	assert.Equal(t, ContextLinearDecay, encoded[0])

	decoded, err := ParseLinearDecay(encoded)
	require.NoError(t, err)
	assert.Equal(t, d.StartTime, decoded.StartTime)
	assert.Equal(t, d.StopTime, decoded.StopTime)
	assert.Equal(t, d.Slope, decoded.Slope)
}

func TestOrderDeadlines(t *testing.T) {
	o := Order{FillDeadline: 10, ChallengeDeadline: 20, ProofDeadline: 30}
	assert.True(t, o.DeadlinesOrdered())
	assert.False(t, o.RequiresProof())

	o.ChallengeDeadline = 31
	assert.False(t, o.DeadlinesOrdered())

	o = Order{FillDeadline: 10, ChallengeDeadline: 20, ProofDeadline: 20}
	assert.True(t, o.RequiresProof())

	o.Collateral.ChallengerAmount = uint256.NewInt(1)
	assert.False(t, o.RequiresProof())
}

package types

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// Fulfillment context kinds, selected by the first byte of the context.
const (
	ContextFixed       byte = 0x00
	ContextLinearDecay byte = 0x01

	linearDecayLength = 1 + 4 + 4 + 32
)

var (
	ErrInvalidContext = errors.New("invalid fulfillment context")
	ErrAmountOverflow = errors.New("fulfillment amount overflows")
)

// LinearDecay describes an output amount that decays linearly between
// StartTime and StopTime. The payable amount is
// amount + slope * (StopTime - clamp(t, StartTime, StopTime)).
type LinearDecay struct {
	StartTime uint32
	StopTime  uint32
	Slope     *uint256.Int
}

// Encode serializes the decay as 0x01 | start | stop | slope.
func (d LinearDecay) Encode() []byte {
	out := make([]byte, linearDecayLength)
	out[0] = ContextLinearDecay
	binary.BigEndian.PutUint32(out[1:5], d.StartTime)
	binary.BigEndian.PutUint32(out[5:9], d.StopTime)
	slope := AmountOrZero(d.Slope).Bytes32()
	copy(out[9:], slope[:])
	return out
}

// ParseLinearDecay decodes a linear decay context.
func ParseLinearDecay(ctx []byte) (LinearDecay, error) {
	if len(ctx) != linearDecayLength || ctx[0] != ContextLinearDecay {
		return LinearDecay{}, fmt.Errorf("%w: expected %d byte linear decay, got %d bytes", ErrInvalidContext, linearDecayLength, len(ctx))
	}
	d := LinearDecay{
		StartTime: binary.BigEndian.Uint32(ctx[1:5]),
		StopTime:  binary.BigEndian.Uint32(ctx[5:9]),
		Slope:     new(uint256.Int).SetBytes32(ctx[9:]),
	}
	if d.StartTime > d.StopTime {
		return LinearDecay{}, fmt.Errorf("%w: decay starts after it stops", ErrInvalidContext)
	}
	return d, nil
}

// ResolveAmount returns the amount output must deliver when filled at t.
func ResolveAmount(output OutputDescription, t uint32) (*uint256.Int, error) {
	amount := AmountOrZero(output.Amount)
	ctx := output.FulfillmentContext

	if len(ctx) == 0 || (len(ctx) == 1 && ctx[0] == ContextFixed) {
		return new(uint256.Int).Set(amount), nil
	}

	switch ctx[0] {
	case ContextLinearDecay:
		d, err := ParseLinearDecay(ctx)
		if err != nil {
			return nil, err
		}
		clamped := t
		if clamped < d.StartTime {
			clamped = d.StartTime
		}
		if clamped > d.StopTime {
			clamped = d.StopTime
		}
		extra, overflow := new(uint256.Int).MulOverflow(d.Slope, uint256.NewInt(uint64(d.StopTime-clamped)))
		if overflow {
			return nil, ErrAmountOverflow
		}
		total, overflow := new(uint256.Int).AddOverflow(amount, extra)
		if overflow {
			return nil, ErrAmountOverflow
		}
		return total, nil
	}

	return nil, fmt.Errorf("%w: unknown context type 0x%02x", ErrInvalidContext, ctx[0])
}

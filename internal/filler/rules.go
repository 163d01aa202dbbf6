package filler

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/catalystsystem/catalyst-intent-sub001/internal/types"
)

type tokenOnChain struct {
	chainID uint64
	token   types.Identifier
}

// enoughBalanceOnDestination checks that the solver holds every resolved
// amount on its destination before any transfer starts.
func (f *Filler) enoughBalanceOnDestination(ctx context.Context, outputs []types.OutputDescription, amounts []*uint256.Int) error {
	required := make(map[tokenOnChain]*uint256.Int)
	for i, output := range outputs {
		key := tokenOnChain{chainID: types.AmountOrZero(output.ChainID).Uint64(), token: output.Token}
		sum, overflow := new(uint256.Int).AddOverflow(types.AmountOrZero(required[key]), amounts[i])
		if overflow {
			return fmt.Errorf("required amount of %s overflows", output.Token.Hex())
		}
		required[key] = sum
	}

	for key, amount := range required {
		source, err := f.balanceSource(key.chainID)
		if err != nil {
			return err
		}
		balance, err := source.BalanceOf(ctx, key.token, f.solver)
		if err != nil {
			return fmt.Errorf("failed to get balance for token %s on chain %d: %w", key.token.Hex(), key.chainID, err)
		}
		if balance.Lt(amount) {
			return fmt.Errorf("%w on chain %d for token %s: have %s, need %s",
				ErrInsufficientBalance, key.chainID, key.token.Hex(), balance.Dec(), amount.Dec())
		}
		f.log.WithFields(logrus.Fields{
			"chain_id": key.chainID,
			"token":    key.token.Hex(),
			"balance":  balance.Dec(),
			"required": amount.Dec(),
		}).Debug("balance check passed")
	}
	return nil
}

// checkOutputs rejects outputs the solver cannot deliver on any configured
// destination.
func (f *Filler) checkOutputs(outputs []types.OutputDescription) error {
	for i, output := range outputs {
		chainID := types.AmountOrZero(output.ChainID).Uint64()
		if _, ok := f.destinations[chainID]; !ok {
			return fmt.Errorf("output %d: %w %d", i, ErrUnknownDestination, chainID)
		}
		if output.Recipient == (types.Identifier{}) {
			return fmt.Errorf("output %d: missing recipient", i)
		}
	}
	return nil
}

package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// Input is an origin-chain asset the order owner escrows for the filler.
type Input struct {
	Token  common.Address `json:"token"`
	Amount *uint256.Int   `json:"amount"`
}

// Collateral holds the dispute terms of an order.
type Collateral struct {
	Token            common.Address `json:"collateralToken"`
	FillerAmount     *uint256.Int   `json:"fillerCollateralAmount"`
	ChallengerAmount *uint256.Int   `json:"challengerCollateralAmount"`
}

// OutputDescription describes one asset delivery the filler must perform on a
// destination domain.
type OutputDescription struct {
	RemoteOracle       Identifier    `json:"remoteOracle"`
	RemoteFiller       Identifier    `json:"remoteFiller"`
	ChainID            *uint256.Int  `json:"chainId"`
	Token              Identifier    `json:"token"`
	Amount             *uint256.Int  `json:"amount"`
	Recipient          Identifier    `json:"recipient"`
	RemoteCall         hexutil.Bytes `json:"remoteCall"`
	FulfillmentContext hexutil.Bytes `json:"fulfillmentContext"`
}

// Order is the owner-signed intent. Its identity is derived from its content,
// see the orderhash package.
type Order struct {
	User              common.Address      `json:"user"`
	Nonce             *uint256.Int        `json:"nonce"`
	OriginChainID     *uint256.Int        `json:"originChainId"`
	Expires           uint32              `json:"expires"`
	FillDeadline      uint32              `json:"fillDeadline"`
	ChallengeDeadline uint32              `json:"challengeDeadline"`
	ProofDeadline     uint32              `json:"proofDeadline"`
	LocalOracle       common.Address      `json:"localOracle"`
	Collateral        Collateral          `json:"collateral"`
	Inputs            []Input             `json:"inputs"`
	Outputs           []OutputDescription `json:"outputs"`
}

// DeadlinesOrdered reports whether fill <= challenge <= proof.
func (o Order) DeadlinesOrdered() bool {
	return o.FillDeadline <= o.ChallengeDeadline && o.ChallengeDeadline <= o.ProofDeadline
}

// RequiresProof reports whether the order opts out of optimistic settlement:
// equal challenge and proof deadlines with no challenger collateral.
func (o Order) RequiresProof() bool {
	return o.ChallengeDeadline == o.ProofDeadline && AmountOrZero(o.Collateral.ChallengerAmount).IsZero()
}

// AmountOrZero returns v, or a zero value when v is nil.
func AmountOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}

// Package orderhash derives the identity, witness and signing digests of
// settlement orders.
package orderhash

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/catalystsystem/catalyst-intent-sub001/internal/types"
)

type inputTuple struct {
	Token  common.Address `abi:"token"`
	Amount *big.Int       `abi:"amount"`
}

type outputTuple struct {
	RemoteOracle       [32]byte `abi:"remoteOracle"`
	RemoteFiller       [32]byte `abi:"remoteFiller"`
	ChainId            *big.Int `abi:"chainId"`
	Token              [32]byte `abi:"token"`
	Amount             *big.Int `abi:"amount"`
	Recipient          [32]byte `abi:"recipient"`
	RemoteCall         []byte   `abi:"remoteCall"`
	FulfillmentContext []byte   `abi:"fulfillmentContext"`
}

var (
	inputComponents = []abi.ArgumentMarshaling{
		{Name: "token", Type: "address"},
		{Name: "amount", Type: "uint256"},
	}
	outputComponents = []abi.ArgumentMarshaling{
		{Name: "remoteOracle", Type: "bytes32"},
		{Name: "remoteFiller", Type: "bytes32"},
		{Name: "chainId", Type: "uint256"},
		{Name: "token", Type: "bytes32"},
		{Name: "amount", Type: "uint256"},
		{Name: "recipient", Type: "bytes32"},
		{Name: "remoteCall", Type: "bytes"},
		{Name: "fulfillmentContext", Type: "bytes"},
	}

	inputsArgs     = abi.Arguments{{Type: mustType("tuple[]", inputComponents)}}
	outputArgs     = abi.Arguments{{Type: mustType("tuple", outputComponents)}}
	outputsArgs    = abi.Arguments{{Type: mustType("tuple[]", outputComponents)}}
	identifierArgs = abi.Arguments{
		{Name: "originChainId", Type: mustType("uint256", nil)},
		{Name: "settler", Type: mustType("address", nil)},
		{Name: "user", Type: mustType("address", nil)},
		{Name: "nonce", Type: mustType("uint256", nil)},
		{Name: "expires", Type: mustType("uint32", nil)},
		{Name: "fillDeadline", Type: mustType("uint32", nil)},
		{Name: "challengeDeadline", Type: mustType("uint32", nil)},
		{Name: "proofDeadline", Type: mustType("uint32", nil)},
		{Name: "localOracle", Type: mustType("address", nil)},
		{Name: "collateralToken", Type: mustType("address", nil)},
		{Name: "fillerCollateralAmount", Type: mustType("uint256", nil)},
		{Name: "challengerCollateralAmount", Type: mustType("uint256", nil)},
		{Name: "inputsHash", Type: mustType("bytes32", nil)},
		{Name: "outputsHash", Type: mustType("bytes32", nil)},
	}
)

func mustType(t string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(fmt.Sprintf("invalid abi type %s: %v", t, err))
	}
	return typ
}

func mustPack(args abi.Arguments, values ...interface{}) []byte {
	encoded, err := args.Pack(values...)
	if err != nil {
		panic(fmt.Sprintf("abi encoding failed: %v", err))
	}
	return encoded
}

func big256(v *uint256.Int) *big.Int {
	return types.AmountOrZero(v).ToBig()
}

func toInputTuples(inputs []types.Input) []inputTuple {
	out := make([]inputTuple, len(inputs))
	for i, in := range inputs {
		out[i] = inputTuple{Token: in.Token, Amount: big256(in.Amount)}
	}
	return out
}

func toOutputTuple(o types.OutputDescription) outputTuple {
	return outputTuple{
		RemoteOracle:       o.RemoteOracle,
		RemoteFiller:       o.RemoteFiller,
		ChainId:            big256(o.ChainID),
		Token:              o.Token,
		Amount:             big256(o.Amount),
		Recipient:          o.Recipient,
		RemoteCall:         nonNil(o.RemoteCall),
		FulfillmentContext: nonNil(o.FulfillmentContext),
	}
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

// InputsHash commits to the ordered input list.
func InputsHash(inputs []types.Input) common.Hash {
	return crypto.Keccak256Hash(mustPack(inputsArgs, toInputTuples(inputs)))
}

// OutputsHash commits to the ordered output list.
func OutputsHash(outputs []types.OutputDescription) common.Hash {
	tuples := make([]outputTuple, len(outputs))
	for i, o := range outputs {
		tuples[i] = toOutputTuple(o)
	}
	return crypto.Keccak256Hash(mustPack(outputsArgs, tuples))
}

// OutputHash identifies a single output. Oracles attest fills against it.
func OutputHash(output types.OutputDescription) common.Hash {
	return crypto.Keccak256Hash(mustPack(outputArgs, toOutputTuple(output)))
}

// OutputHashes returns the hash of every output, in order.
func OutputHashes(outputs []types.OutputDescription) []common.Hash {
	hashes := make([]common.Hash, len(outputs))
	for i, o := range outputs {
		hashes[i] = OutputHash(o)
	}
	return hashes
}

// OrderIdentifier binds the order content to the settler that custodies it.
// Two orders with equal content on the same settler share an identity.
func OrderIdentifier(settler common.Address, order types.Order) common.Hash {
	encoded := mustPack(identifierArgs,
		big256(order.OriginChainID),
		settler,
		order.User,
		big256(order.Nonce),
		order.Expires,
		order.FillDeadline,
		order.ChallengeDeadline,
		order.ProofDeadline,
		order.LocalOracle,
		order.Collateral.Token,
		big256(order.Collateral.FillerAmount),
		big256(order.Collateral.ChallengerAmount),
		InputsHash(order.Inputs),
		OutputsHash(order.Outputs),
	)
	return crypto.Keccak256Hash(encoded)
}

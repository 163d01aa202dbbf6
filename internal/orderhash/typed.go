package orderhash

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/holiman/uint256"

	"github.com/catalystsystem/catalyst-intent-sub001/internal/types"
	"github.com/catalystsystem/catalyst-intent-sub001/pkg/ethutil"
)

const (
	WitnessType       = "CatalystWitness"
	PurchaseType      = "OrderPurchase"
	SettlerDomainName = "CatalystSettler"
	SettlerVersion    = "1"
)

var domainType = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

// WitnessTypes are the EIP-712 definitions the order witness is hashed with.
var WitnessTypes = apitypes.Types{
	WitnessType: {
		{Name: "user", Type: "address"},
		{Name: "nonce", Type: "uint256"},
		{Name: "originChainId", Type: "uint256"},
		{Name: "expires", Type: "uint32"},
		{Name: "fillDeadline", Type: "uint32"},
		{Name: "challengeDeadline", Type: "uint32"},
		{Name: "proofDeadline", Type: "uint32"},
		{Name: "localOracle", Type: "address"},
		{Name: "collateralToken", Type: "address"},
		{Name: "fillerCollateralAmount", Type: "uint256"},
		{Name: "challengerCollateralAmount", Type: "uint256"},
		{Name: "inputs", Type: "Input[]"},
		{Name: "outputs", Type: "OutputDescription[]"},
	},
	"Input": {
		{Name: "token", Type: "address"},
		{Name: "amount", Type: "uint256"},
	},
	"OutputDescription": {
		{Name: "remoteOracle", Type: "bytes32"},
		{Name: "remoteFiller", Type: "bytes32"},
		{Name: "chainId", Type: "uint256"},
		{Name: "token", Type: "bytes32"},
		{Name: "amount", Type: "uint256"},
		{Name: "recipient", Type: "bytes32"},
		{Name: "remoteCall", Type: "bytes"},
		{Name: "fulfillmentContext", Type: "bytes"},
	},
}

var purchaseTypes = apitypes.Types{
	"EIP712Domain": domainType,
	PurchaseType: {
		{Name: "orderId", Type: "bytes32"},
		{Name: "originSettler", Type: "address"},
		{Name: "destination", Type: "address"},
		{Name: "call", Type: "bytes"},
		{Name: "discount", Type: "uint16"},
		{Name: "timeToBuy", Type: "uint32"},
		{Name: "expires", Type: "uint32"},
	},
}

// WitnessMessage renders the order as an EIP-712 message.
func WitnessMessage(order types.Order) apitypes.TypedDataMessage {
	inputs := make([]interface{}, len(order.Inputs))
	for i, in := range order.Inputs {
		inputs[i] = map[string]interface{}{
			"token":  in.Token.Hex(),
			"amount": big256(in.Amount),
		}
	}
	outputs := make([]interface{}, len(order.Outputs))
	for i, o := range order.Outputs {
		outputs[i] = map[string]interface{}{
			"remoteOracle":       o.RemoteOracle.Hex(),
			"remoteFiller":       o.RemoteFiller.Hex(),
			"chainId":            big256(o.ChainID),
			"token":              o.Token.Hex(),
			"amount":             big256(o.Amount),
			"recipient":          o.Recipient.Hex(),
			"remoteCall":         hexutil.Bytes(nonNil(o.RemoteCall)),
			"fulfillmentContext": hexutil.Bytes(nonNil(o.FulfillmentContext)),
		}
	}

	return apitypes.TypedDataMessage{
		"user":                       order.User.Hex(),
		"nonce":                      big256(order.Nonce),
		"originChainId":              big256(order.OriginChainID),
		"expires":                    math.NewHexOrDecimal256(int64(order.Expires)),
		"fillDeadline":               math.NewHexOrDecimal256(int64(order.FillDeadline)),
		"challengeDeadline":          math.NewHexOrDecimal256(int64(order.ChallengeDeadline)),
		"proofDeadline":              math.NewHexOrDecimal256(int64(order.ProofDeadline)),
		"localOracle":                order.LocalOracle.Hex(),
		"collateralToken":            order.Collateral.Token.Hex(),
		"fillerCollateralAmount":     big256(order.Collateral.FillerAmount),
		"challengerCollateralAmount": big256(order.Collateral.ChallengerAmount),
		"inputs":                     inputs,
		"outputs":                    outputs,
	}
}

// witnessDomain only satisfies typed data validation. A struct hash never
// includes the domain.
var witnessDomain = apitypes.TypedDataDomain{Name: SettlerDomainName, Version: SettlerVersion}

// Witness is the EIP-712 struct hash of the order. It does not commit to the
// settler, so the owner's permit signature binds the order content while the
// permit itself binds the spender.
func Witness(order types.Order) (common.Hash, error) {
	td := apitypes.TypedData{Types: WitnessTypes, PrimaryType: WitnessType, Domain: witnessDomain}
	hash, err := td.HashStruct(WitnessType, WitnessMessage(order))
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash order witness: %w", err)
	}
	return common.BytesToHash(hash), nil
}

// SettlerDomain is the signing domain of a settler deployment.
func SettlerDomain(chainID *uint256.Int, settler common.Address) apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:              SettlerDomainName,
		Version:           SettlerVersion,
		ChainId:           (*math.HexOrDecimal256)(types.AmountOrZero(chainID).ToBig()),
		VerifyingContract: settler.Hex(),
	}
}

// PurchaseDigest is what the current filler signs to sell a claim.
func PurchaseDigest(chainID *uint256.Int, settler common.Address, purchase types.OrderPurchase) (common.Hash, error) {
	td := apitypes.TypedData{
		Types:       purchaseTypes,
		PrimaryType: PurchaseType,
		Domain:      SettlerDomain(chainID, settler),
		Message: apitypes.TypedDataMessage{
			"orderId":       purchase.OrderID.Hex(),
			"originSettler": purchase.OriginSettler.Hex(),
			"destination":   purchase.Destination.Hex(),
			"call":          hexutil.Bytes(nonNil(purchase.Call)),
			"discount":      math.NewHexOrDecimal256(int64(purchase.Discount)),
			"timeToBuy":     math.NewHexOrDecimal256(int64(purchase.TimeToBuy)),
			"expires":       math.NewHexOrDecimal256(int64(purchase.Expires)),
		},
	}
	return ethutil.TypedDataDigest(td)
}

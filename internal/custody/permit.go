package custody

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/holiman/uint256"

	"github.com/catalystsystem/catalyst-intent-sub001/internal/settlement"
	"github.com/catalystsystem/catalyst-intent-sub001/internal/types"
	"github.com/catalystsystem/catalyst-intent-sub001/pkg/ethutil"
)

const (
	PermitDomainName = "Permit2"
	PermitType       = "PermitBatchWitnessTransferFrom"
)

var permitTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	PermitType: {
		{Name: "permitted", Type: "TokenPermissions[]"},
		{Name: "spender", Type: "address"},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
		{Name: "witness", Type: "bytes32"},
	},
	"TokenPermissions": {
		{Name: "token", Type: "address"},
		{Name: "amount", Type: "uint256"},
	},
}

// PermitDigest is the message an order owner signs to let spender pull the
// permit assets, bound to the order witness.
func PermitDigest(chainID *uint256.Int, custodian, spender common.Address, permit settlement.Permit) (common.Hash, error) {
	permitted := make([]interface{}, len(permit.Assets))
	for i, a := range permit.Assets {
		permitted[i] = map[string]interface{}{
			"token":  a.Token.Hex(),
			"amount": types.AmountOrZero(a.Amount).ToBig(),
		}
	}

	td := apitypes.TypedData{
		Types:       permitTypes,
		PrimaryType: PermitType,
		Domain: apitypes.TypedDataDomain{
			Name:              PermitDomainName,
			ChainId:           (*math.HexOrDecimal256)(types.AmountOrZero(chainID).ToBig()),
			VerifyingContract: custodian.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"permitted": permitted,
			"spender":   spender.Hex(),
			"nonce":     types.AmountOrZero(permit.Nonce).ToBig(),
			"deadline":  new(big.Int).SetUint64(uint64(permit.Deadline)),
			"witness":   permit.Witness.Hex(),
		},
	}
	return ethutil.TypedDataDigest(td)
}

// SignPermit signs permit with the owner key.
func SignPermit(key *ecdsa.PrivateKey, chainID *uint256.Int, custodian, spender common.Address, permit settlement.Permit) ([]byte, error) {
	digest, err := PermitDigest(chainID, custodian, spender, permit)
	if err != nil {
		return nil, err
	}
	return ethutil.SignDigest(key, digest)
}

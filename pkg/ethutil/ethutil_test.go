package ethutil

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCaller struct {
	balance *big.Int
	err     error
	lastMsg ethereum.CallMsg
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.lastMsg = msg
	if f.err != nil {
		return nil, f.err
	}
	return common.LeftPadBytes(f.balance.Bytes(), 32), nil
}

func TestERC20Balance(t *testing.T) {
	token := common.HexToAddress("0x1234567890123456789012345678901234567890")
	owner := common.HexToAddress("0x0987654321098765432109876543210987654321")

	t.Run("decodes balance", func(t *testing.T) {
		caller := &fakeCaller{balance: big.NewInt(4242)}
		balance, err := ERC20Balance(context.Background(), caller, token, owner)
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(4242), balance)
		require.NotNil(t, caller.lastMsg.To)
		assert.Equal(t, token, *caller.lastMsg.To)
		assert.Equal(t, []byte{0x70, 0xa0, 0x82, 0x31}, caller.lastMsg.Data[:4])
	})

	t.Run("propagates call errors", func(t *testing.T) {
		caller := &fakeCaller{err: errors.New("connection refused")}
		_, err := ERC20Balance(context.Background(), caller, token, owner)
		assert.ErrorContains(t, err, "connection refused")
	})
}

func TestERC20ABI(t *testing.T) {
	assert.Equal(t, []byte{0x70, 0xa0, 0x82, 0x31}, erc20ABI.Methods["balanceOf"].ID)
}

func TestParsePrivateKey(t *testing.T) {
	privateKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	raw := common.Bytes2Hex(crypto.FromECDSA(privateKey))

	t.Run("with 0x prefix", func(t *testing.T) {
		parsed, err := ParsePrivateKey("0x" + raw)
		require.NoError(t, err)
		assert.Equal(t, privateKey.D, parsed.D)
	})

	t.Run("without prefix", func(t *testing.T) {
		parsed, err := ParsePrivateKey(raw)
		require.NoError(t, err)
		assert.Equal(t, privateKey.D, parsed.D)
	})

	for _, bad := range []string{"invalid", "", "0x123"} {
		t.Run("rejects "+bad, func(t *testing.T) {
			_, err := ParsePrivateKey(bad)
			assert.Error(t, err)
		})
	}
}

func TestSignAndRecover(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	digest := crypto.Keccak256Hash([]byte("order"))

	sig, err := SignDigest(key, digest)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.True(t, sig[64] == 27 || sig[64] == 28)

	signer, err := RecoverSigner(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), signer)

	sig[64] -= 27
	signer, err = RecoverSigner(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), signer)

	_, err = RecoverSigner(digest, sig[:64])
	assert.Error(t, err)
}

func TestTypedDataDigest(t *testing.T) {
	td := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"Mail": {{Name: "contents", Type: "string"}},
		},
		PrimaryType: "Mail",
		Domain:      apitypes.TypedDataDomain{Name: "Test", ChainId: math.NewHexOrDecimal256(1)},
		Message:     apitypes.TypedDataMessage{"contents": "hello"},
	}

	first, err := TypedDataDigest(td)
	require.NoError(t, err)

	td.Message = apitypes.TypedDataMessage{"contents": "bye"}
	second, err := TypedDataDigest(td)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

package orderhash

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalystsystem/catalyst-intent-sub001/internal/types"
	"github.com/catalystsystem/catalyst-intent-sub001/pkg/ethutil"
)

var settler = common.HexToAddress("0x00000000000000000000000000000000000c0ffe")

func sampleOrder() types.Order {
	return types.Order{
		User:              common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Nonce:             uint256.NewInt(7),
		OriginChainID:     uint256.NewInt(1),
		Expires:           2000,
		FillDeadline:      1000,
		ChallengeDeadline: 1500,
		ProofDeadline:     1800,
		LocalOracle:       common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Collateral: types.Collateral{
			Token:            common.HexToAddress("0x3333333333333333333333333333333333333333"),
			FillerAmount:     uint256.NewInt(10),
			ChallengerAmount: uint256.NewInt(5),
		},
		Inputs: []types.Input{
			{Token: common.HexToAddress("0x4444444444444444444444444444444444444444"), Amount: uint256.NewInt(100)},
		},
		Outputs: []types.OutputDescription{
			{
				RemoteOracle: common.HexToHash("0x01"),
				RemoteFiller: common.HexToHash("0x02"),
				ChainID:      uint256.NewInt(10),
				Token:        common.HexToHash("0x03"),
				Amount:       uint256.NewInt(99),
				Recipient:    common.HexToHash("0x04"),
			},
		},
	}
}

func TestOrderIdentifier(t *testing.T) {
	order := sampleOrder()
	id := OrderIdentifier(settler, order)

	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, id, OrderIdentifier(settler, sampleOrder()))
	})

	t.Run("binds the settler", func(t *testing.T) {
		other := common.HexToAddress("0x00000000000000000000000000000000000beef0")
		assert.NotEqual(t, id, OrderIdentifier(other, order))
	})

	mutations := map[string]func(o *types.Order){
		"nonce":                func(o *types.Order) { o.Nonce = uint256.NewInt(8) },
		"origin chain":         func(o *types.Order) { o.OriginChainID = uint256.NewInt(2) },
		"expiry":               func(o *types.Order) { o.Expires++ },
		"fill deadline":        func(o *types.Order) { o.FillDeadline++ },
		"challenge deadline":   func(o *types.Order) { o.ChallengeDeadline++ },
		"proof deadline":       func(o *types.Order) { o.ProofDeadline++ },
		"oracle":               func(o *types.Order) { o.LocalOracle = common.HexToAddress("0x05") },
		"filler collateral":    func(o *types.Order) { o.Collateral.FillerAmount = uint256.NewInt(11) },
		"challenge collateral": func(o *types.Order) { o.Collateral.ChallengerAmount = uint256.NewInt(6) },
		"input amount":         func(o *types.Order) { o.Inputs[0].Amount = uint256.NewInt(101) },
		"output recipient":     func(o *types.Order) { o.Outputs[0].Recipient = common.HexToHash("0x05") },
		"output context":       func(o *types.Order) { o.Outputs[0].FulfillmentContext = []byte{0x00} },
	}
	for name, mutate := range mutations {
		t.Run("changes with "+name, func(t *testing.T) {
			o := sampleOrder()
			mutate(&o)
			assert.NotEqual(t, id, OrderIdentifier(settler, o))
		})
	}

	t.Run("input order matters", func(t *testing.T) {
		o := sampleOrder()
		o.Inputs = append(o.Inputs, types.Input{Token: common.HexToAddress("0x55"), Amount: uint256.NewInt(1)})
		swapped := sampleOrder()
		swapped.Inputs = []types.Input{o.Inputs[1], o.Inputs[0]}
		assert.NotEqual(t, OrderIdentifier(settler, o), OrderIdentifier(settler, swapped))
	})
}

func TestInputsHashEncoding(t *testing.T) {
	// An empty dynamic array encodes as its offset followed by a zero length.
	expected := crypto.Keccak256Hash(
		common.LeftPadBytes([]byte{0x20}, 32),
		make([]byte, 32),
	)
	assert.Equal(t, expected, InputsHash(nil))
}

func TestOutputHash(t *testing.T) {
	order := sampleOrder()
	hashes := OutputHashes(order.Outputs)
	require.Len(t, hashes, 1)
	assert.Equal(t, OutputHash(order.Outputs[0]), hashes[0])

	changed := order.Outputs[0]
	changed.Amount = uint256.NewInt(100)
	assert.NotEqual(t, hashes[0], OutputHash(changed))
}

func TestWitness(t *testing.T) {
	first, err := Witness(sampleOrder())
	require.NoError(t, err)

	second, err := Witness(sampleOrder())
	require.NoError(t, err)
	assert.Equal(t, first, second)

	o := sampleOrder()
	o.Outputs[0].RemoteCall = []byte{0xde, 0xad}
	third, err := Witness(o)
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}

func TestWitnessIsStructHash(t *testing.T) {
	witness, err := Witness(sampleOrder())
	require.NoError(t, err)
	assert.NotEqual(t, common.Hash{}, witness)

	td := apitypes.TypedData{Types: WitnessTypes, PrimaryType: WitnessType, Domain: SettlerDomain(uint256.NewInt(5), settler)}
	expected, err := td.HashStruct(WitnessType, WitnessMessage(sampleOrder()))
	require.NoError(t, err)
	assert.Equal(t, common.BytesToHash(expected), witness)

	t.Run("order without inputs or outputs", func(t *testing.T) {
		o := sampleOrder()
		o.Inputs, o.Outputs = nil, nil
		_, err := Witness(o)
		require.NoError(t, err)
	})
}

func TestPurchaseDigest(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	purchase := types.OrderPurchase{
		OrderID:       OrderIdentifier(settler, sampleOrder()),
		OriginSettler: settler,
		Destination:   common.HexToAddress("0x6666666666666666666666666666666666666666"),
		Discount:      200,
		TimeToBuy:     60,
		Expires:       1200,
	}
	digest, err := PurchaseDigest(uint256.NewInt(1), settler, purchase)
	require.NoError(t, err)

	sig, err := ethutil.SignDigest(key, digest)
	require.NoError(t, err)
	signer, err := ethutil.RecoverSigner(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), signer)

	t.Run("domain separates chains", func(t *testing.T) {
		other, err := PurchaseDigest(uint256.NewInt(2), settler, purchase)
		require.NoError(t, err)
		assert.NotEqual(t, digest, other)
	})

	t.Run("discount is signed", func(t *testing.T) {
		p := purchase
		p.Discount = 250
		other, err := PurchaseDigest(uint256.NewInt(1), settler, p)
		require.NoError(t, err)
		assert.NotEqual(t, digest, other)
	})
}

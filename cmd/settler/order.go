package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/urfave/cli/v2"

	"github.com/catalystsystem/catalyst-intent-sub001/internal/custody"
	"github.com/catalystsystem/catalyst-intent-sub001/internal/orderhash"
	"github.com/catalystsystem/catalyst-intent-sub001/internal/settlement"
	"github.com/catalystsystem/catalyst-intent-sub001/internal/types"
	"github.com/catalystsystem/catalyst-intent-sub001/pkg/ethutil"
)

var (
	orderFileFlag = &cli.StringFlag{
		Name:     "file",
		Usage:    "path to an order json file",
		Required: true,
	}
	settlerFlag = &cli.StringFlag{
		Name:     "settler",
		Usage:    "settler address the order is bound to",
		EnvVars:  []string{"SETTLER_ADDRESS"},
		Required: true,
	}
	keyFlag = &cli.StringFlag{
		Name:     "key",
		Usage:    "hex private key of the order owner",
		EnvVars:  []string{"ORDER_OWNER_KEY"},
		Required: true,
	}
	custodyFlag = &cli.StringFlag{
		Name:    "custody",
		Usage:   "permit custodian address",
		EnvVars: []string{"SETTLER_CUSTODY_ADDRESS"},
		Value:   "0x000000000022D473030F116dDEE9F6B43aC78BA3",
	}
	chainIDFlag = &cli.Uint64Flag{
		Name:    "chain-id",
		Usage:   "origin chain id",
		EnvVars: []string{"SETTLER_CHAIN_ID"},
		Value:   1,
	}
)

var (
	orderIDCmd = &cli.Command{
		Name:   "order-id",
		Usage:  "Compute the identifier and witness of an order",
		Action: orderIDAction,
		Flags:  []cli.Flag{orderFileFlag, settlerFlag},
	}
	signOrderCmd = &cli.Command{
		Name:   "sign-order",
		Usage:  "Sign the escrow permit of an order as its owner",
		Action: signOrderAction,
		Flags:  []cli.Flag{orderFileFlag, settlerFlag, keyFlag, custodyFlag, chainIDFlag},
	}
)

func orderIDAction(c *cli.Context) error {
	order, err := readOrder(c.String(orderFileFlag.Name))
	if err != nil {
		return err
	}
	settler, err := types.ToEVMAddress(c.String(settlerFlag.Name))
	if err != nil {
		return err
	}
	witness, err := orderhash.Witness(order)
	if err != nil {
		return err
	}
	return printJSON(map[string]string{
		"orderId": orderhash.OrderIdentifier(settler, order).Hex(),
		"witness": witness.Hex(),
	})
}

func signOrderAction(c *cli.Context) error {
	order, err := readOrder(c.String(orderFileFlag.Name))
	if err != nil {
		return err
	}
	settler, err := types.ToEVMAddress(c.String(settlerFlag.Name))
	if err != nil {
		return err
	}
	custodian, err := types.ToEVMAddress(c.String(custodyFlag.Name))
	if err != nil {
		return err
	}
	key, err := ethutil.ParsePrivateKey(c.String(keyFlag.Name))
	if err != nil {
		return err
	}
	if owner := crypto.PubkeyToAddress(key.PublicKey); owner != order.User {
		return fmt.Errorf("key belongs to %s, order owner is %s", owner.Hex(), order.User.Hex())
	}

	witness, err := orderhash.Witness(order)
	if err != nil {
		return err
	}
	permit := settlement.Permit{
		Owner:    order.User,
		Assets:   order.Inputs,
		Nonce:    types.AmountOrZero(order.Nonce),
		Deadline: order.Expires,
		Witness:  witness,
	}
	sig, err := custody.SignPermit(key, uint256.NewInt(c.Uint64(chainIDFlag.Name)), custodian, settler, permit)
	if err != nil {
		return err
	}
	return printJSON(map[string]string{
		"orderId":   orderhash.OrderIdentifier(settler, order).Hex(),
		"owner":     order.User.Hex(),
		"signature": hexutil.Encode(sig),
	})
}

func readOrder(path string) (types.Order, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return types.Order{}, fmt.Errorf("failed to read order: %w", err)
	}
	var order types.Order
	if err := json.Unmarshal(raw, &order); err != nil {
		return types.Order{}, fmt.Errorf("failed to decode order: %w", err)
	}
	if order.User == (common.Address{}) {
		return types.Order{}, fmt.Errorf("order has no user")
	}
	return order, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

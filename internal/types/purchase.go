package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// MaxDiscount is the basis-point denominator for purchase discounts.
const MaxDiscount uint16 = 10_000

// OrderPurchase is signed by the current filler to let a third party take
// over a claim.
type OrderPurchase struct {
	OrderID       common.Hash    `json:"orderId"`
	OriginSettler common.Address `json:"originSettler"`
	Destination   common.Address `json:"destination"`
	Call          hexutil.Bytes  `json:"call"`
	Discount      uint16         `json:"discount"`
	TimeToBuy     uint32         `json:"timeToBuy"`
	Expires       uint32         `json:"expires"`
}

// FillerData carries the filler's terms attached to a claim.
type FillerData struct {
	// Filler receives the payout. Defaults to the claiming caller.
	Filler           common.Address `json:"filler"`
	PurchaseDeadline uint32         `json:"purchaseDeadline"`
	PurchaseDiscount uint16         `json:"purchaseDiscount"`
	// Identifier is forwarded to the filler's settlement callback when set.
	Identifier common.Hash `json:"identifier"`
}

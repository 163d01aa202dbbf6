package settlement

import (
	"github.com/ethereum/go-ethereum/common"
)

const (
	OrderTopic      = "order"
	GovernanceTopic = "governance"
)

type EventType int

const (
	EventTypeUndefined EventType = iota

	// Order
	EventTypeOrderDeposited
	EventTypeDepositCancelled
	EventTypeOrderClaimed
	EventTypeOrderDisputed
	EventTypeOrderProven
	EventTypeOrderOptimisticallyFilled
	EventTypeFraudAccepted
	EventTypeOrderPurchased
	EventTypePurchaseTermsModified
)

const (
	// Governance
	EventTypeGovernanceFeeScheduled EventType = iota + 100
	EventTypeGovernanceFeeApplied
)

func (t EventType) String() string {
	switch t {
	case EventTypeOrderDeposited:
		return "OrderDeposited"
	case EventTypeDepositCancelled:
		return "DepositCancelled"
	case EventTypeOrderClaimed:
		return "OrderClaimed"
	case EventTypeOrderDisputed:
		return "OrderDisputed"
	case EventTypeOrderProven:
		return "OrderProven"
	case EventTypeOrderOptimisticallyFilled:
		return "OrderOptimisticallyFilled"
	case EventTypeFraudAccepted:
		return "FraudAccepted"
	case EventTypeOrderPurchased:
		return "OrderPurchased"
	case EventTypePurchaseTermsModified:
		return "PurchaseTermsModified"
	case EventTypeGovernanceFeeScheduled:
		return "GovernanceFeeScheduled"
	case EventTypeGovernanceFeeApplied:
		return "GovernanceFeeApplied"
	default:
		return "Undefined"
	}
}

type Event interface {
	GetTopic() string
	GetType() EventType
}

// OrderEvent is embedded by every order transition record.
type OrderEvent struct {
	OrderID   common.Hash
	Type      EventType
	Actor     common.Address
	Timestamp uint32
}

func (e OrderEvent) GetTopic() string   { return OrderTopic }
func (e OrderEvent) GetType() EventType { return e.Type }

type OrderDeposited struct {
	OrderEvent
	Owner common.Address
}

type DepositCancelled struct {
	OrderEvent
	Owner common.Address
}

type OrderClaimed struct {
	OrderEvent
	Filler common.Address
	Status OrderStatus
}

type OrderDisputed struct {
	OrderEvent
	Challenger common.Address
}

type OrderProven struct {
	OrderEvent
	Filler common.Address
}

type OrderOptimisticallyFilled struct {
	OrderEvent
	Filler common.Address
}

type FraudAccepted struct {
	OrderEvent
	Challenger common.Address
}

type OrderPurchased struct {
	OrderEvent
	PreviousFiller common.Address
	NewFiller      common.Address
	Discount       uint16
}

type PurchaseTermsModified struct {
	OrderEvent
	Filler           common.Address
	PurchaseDeadline uint32
	PurchaseDiscount uint16
}

type GovernanceEvent struct {
	Type      EventType
	Timestamp uint32
}

func (e GovernanceEvent) GetTopic() string   { return GovernanceTopic }
func (e GovernanceEvent) GetType() EventType { return e.Type }

type GovernanceFeeScheduled struct {
	GovernanceEvent
	Fee         uint16
	ActivatesAt uint32
}

type GovernanceFeeApplied struct {
	GovernanceEvent
	Previous uint16
	Fee      uint16
}

package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const CallbackTopic = "callback"

// Notification is the payload of a settlement callback.
type Notification struct {
	Target     common.Address `json:"target"`
	OrderID    common.Hash    `json:"orderId"`
	Identifier common.Hash    `json:"identifier"`
	Payload    hexutil.Bytes  `json:"payload"`
}

// CallbackPublisher implements settlement.Callback by publishing
// notifications for out-of-process delivery.
type CallbackPublisher struct {
	publisher message.Publisher
}

func NewCallbackPublisher(publisher message.Publisher) *CallbackPublisher {
	return &CallbackPublisher{publisher: publisher}
}

func (c *CallbackPublisher) Notify(_ context.Context, target common.Address, orderID, identifier common.Hash, payload []byte) error {
	buf, err := json.Marshal(Notification{
		Target:     target,
		OrderID:    orderID,
		Identifier: identifier,
		Payload:    payload,
	})
	if err != nil {
		return err
	}
	if err := c.publisher.Publish(CallbackTopic, message.NewMessage(watermill.NewUUID(), buf)); err != nil {
		return fmt.Errorf("failed to publish callback: %w", err)
	}
	return nil
}

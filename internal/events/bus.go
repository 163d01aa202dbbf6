// Package events carries settlement events and callbacks over a watermill
// publisher.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/sirupsen/logrus"

	"github.com/catalystsystem/catalyst-intent-sub001/internal/settlement"
)

const typeMetadataKey = "event_type"

type subscriber struct {
	topic   string
	handler func(events []settlement.Event)
}

// Bus implements settlement.EventPublisher. Events are published as JSON
// messages on their topic and handed to registered in-process handlers.
type Bus struct {
	pubsub *gochannel.GoChannel
	log    *logrus.Entry

	subscribers    map[string][]subscriber // topic -> subscribers
	subscriberLock *sync.Mutex
}

func NewBus(logger *logrus.Logger) *Bus {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Bus{
		pubsub:         gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, NewLoggerAdapter(logger)),
		log:            logger.WithField("component", "event-bus"),
		subscribers:    make(map[string][]subscriber),
		subscriberLock: &sync.Mutex{},
	}
}

// Publisher exposes the underlying watermill publisher.
func (b *Bus) Publisher() message.Publisher { return b.pubsub }

// Subscribe streams raw messages of topic until ctx is done.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, topic)
}

func (b *Bus) RegisterEventsHandler(topic string, handler func(events []settlement.Event)) {
	b.subscriberLock.Lock()
	defer b.subscriberLock.Unlock()

	b.subscribers[topic] = append(b.subscribers[topic], subscriber{
		topic:   topic,
		handler: handler,
	})
}

func (b *Bus) ClearRegisteredHandlers(topics ...string) {
	b.subscriberLock.Lock()
	defer b.subscriberLock.Unlock()

	if len(topics) == 0 {
		b.subscribers = make(map[string][]subscriber)
		return
	}
	for _, topic := range topics {
		delete(b.subscribers, topic)
	}
}

// Publish implements settlement.EventPublisher.
func (b *Bus) Publish(_ context.Context, events ...settlement.Event) error {
	byTopic := make(map[string][]settlement.Event)
	for _, event := range events {
		byTopic[event.GetTopic()] = append(byTopic[event.GetTopic()], event)
	}

	for topic, topicEvents := range byTopic {
		msgs, err := toWatermillMessages(topicEvents)
		if err != nil {
			return err
		}
		if err := b.pubsub.Publish(topic, msgs...); err != nil {
			return fmt.Errorf("failed to publish on %s: %w", topic, err)
		}
		b.dispatch(topic, topicEvents)
	}
	return nil
}

func (b *Bus) dispatch(topic string, events []settlement.Event) {
	b.subscriberLock.Lock()
	defer b.subscriberLock.Unlock()

	for _, subscriber := range b.subscribers[topic] {
		go subscriber.handler(events)
	}
}

func (b *Bus) Close() {
	if err := b.pubsub.Close(); err != nil {
		b.log.WithError(err).Warn("failed to close event bus")
	}
}

func toWatermillMessages(events []settlement.Event) ([]*message.Message, error) {
	msgs := make([]*message.Message, 0, len(events))
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", event.GetType(), err)
		}
		msg := message.NewMessage(watermill.NewUUID(), payload)
		msg.Metadata.Set(typeMetadataKey, event.GetType().String())
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// DecodeEvent restores the typed event carried by msg.
func DecodeEvent(msg *message.Message) (settlement.Event, error) {
	var event settlement.Event
	switch typ := msg.Metadata.Get(typeMetadataKey); typ {
	case settlement.EventTypeOrderDeposited.String():
		event = &settlement.OrderDeposited{}
	case settlement.EventTypeDepositCancelled.String():
		event = &settlement.DepositCancelled{}
	case settlement.EventTypeOrderClaimed.String():
		event = &settlement.OrderClaimed{}
	case settlement.EventTypeOrderDisputed.String():
		event = &settlement.OrderDisputed{}
	case settlement.EventTypeOrderProven.String():
		event = &settlement.OrderProven{}
	case settlement.EventTypeOrderOptimisticallyFilled.String():
		event = &settlement.OrderOptimisticallyFilled{}
	case settlement.EventTypeFraudAccepted.String():
		event = &settlement.FraudAccepted{}
	case settlement.EventTypeOrderPurchased.String():
		event = &settlement.OrderPurchased{}
	case settlement.EventTypePurchaseTermsModified.String():
		event = &settlement.PurchaseTermsModified{}
	case settlement.EventTypeGovernanceFeeScheduled.String():
		event = &settlement.GovernanceFeeScheduled{}
	case settlement.EventTypeGovernanceFeeApplied.String():
		event = &settlement.GovernanceFeeApplied{}
	default:
		return nil, fmt.Errorf("unknown event type %q", typ)
	}
	if err := json.Unmarshal(msg.Payload, event); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	return event, nil
}

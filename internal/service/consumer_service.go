package service

import (
	"context"

	"youwin-client/internal/pkg/logger"
	"youwin-client/pkg/events"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// EventMirror forwards events outside the process, e.g. to NATS.
type EventMirror interface {
	Publish(ctx context.Context, event events.Event) error
}

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// consumerService records every session event in the log and forwards it to
// the optional mirror.
type consumerService struct {
	pubSub    *gochannel.GoChannel
	topicName string
	mirror    EventMirror
	logger    logger.ILogger
}

// NewConsumerService accepts a nil mirror.
func NewConsumerService(pubSub *gochannel.GoChannel, topicName string, mirror EventMirror, log logger.ILogger) IConsumerService {
	return &consumerService{
		pubSub:    pubSub,
		topicName: topicName,
		mirror:    mirror,
		logger:    log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	ev, err := events.Unmarshal(msg.Payload)
	if err != nil {
		cs.logger.Error("ConsumerService", "Failed to unmarshal event", map[string]interface{}{"error": err.Error()})
		msg.Ack() // redelivery cannot fix it
		return
	}

	cs.logger.Debug("ConsumerService", ev.EventType(), ev.Payload())

	if cs.mirror != nil {
		if err := cs.mirror.Publish(ctx, ev); err != nil {
			cs.logger.Warn("ConsumerService", "Failed to mirror event", map[string]interface{}{"type": ev.EventType(), "error": err.Error()})
		}
	}
	msg.Ack()
}

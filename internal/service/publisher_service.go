package service

import (
	"context"

	"youwin-client/internal/pkg/logger"
	"youwin-client/pkg/events"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const SessionTopic = "youwin.session"

type IPublisherService interface {
	// Notify publishes ev to the in-process bus. Failures are logged only.
	Notify(ctx context.Context, ev events.Event)
	// Subscribe streams events published after the call until ctx ends.
	// Delivery order between events is not guaranteed.
	Subscribe(ctx context.Context) (<-chan events.Event, error)
}

type publisherService struct {
	topicName string
	pubSub    *gochannel.GoChannel
	logger    logger.ILogger
}

func NewPublisherService(topicName string, pubSub *gochannel.GoChannel, log logger.ILogger) IPublisherService {
	return &publisherService{
		topicName: topicName,
		pubSub:    pubSub,
		logger:    log,
	}
}

func (ps *publisherService) Notify(ctx context.Context, ev events.Event) {
	payload, err := events.Marshal(ev)
	if err != nil {
		ps.logger.Error("PublisherService", "Failed to encode event", map[string]interface{}{"type": ev.EventType(), "error": err.Error()})
		return
	}

	msg := message.NewMessage(ev.EventID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("event_type", ev.EventType())

	if err := ps.pubSub.Publish(ps.topicName, msg); err != nil {
		ps.logger.Error("PublisherService", "Failed to publish event", map[string]interface{}{"type": ev.EventType(), "error": err.Error()})
	}
}

func (ps *publisherService) Subscribe(ctx context.Context) (<-chan events.Event, error) {
	messages, err := ps.pubSub.Subscribe(ctx, ps.topicName)
	if err != nil {
		return nil, err
	}

	out := make(chan events.Event)
	go func() {
		defer close(out)
		for msg := range messages {
			ev, err := events.Unmarshal(msg.Payload)
			msg.Ack()
			if err != nil {
				ps.logger.Warn("PublisherService", "Dropping undecodable event", map[string]interface{}{"error": err.Error()})
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

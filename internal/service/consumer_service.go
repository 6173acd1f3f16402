package service

import (
	"context"

	"coi-notes-be/internal/constant"
	"coi-notes-be/internal/pkg/logger"
	"coi-notes-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const consumerModule = "Consumer"

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// consumerService records completed chat turns published in process.
type consumerService struct {
	pubSub    *gochannel.GoChannel
	topicName string
	logger    logger.ILogger
}

func NewConsumerService(pubSub *gochannel.GoChannel, topicName string, log logger.ILogger) IConsumerService {
	return &consumerService{
		pubSub:    pubSub,
		topicName: topicName,
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
			cs.processMessage(msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(msg *message.Message) {
	defer msg.Ack()

	event, err := events.Decode(msg.Payload)
	if err != nil {
		cs.logger.Error(consumerModule, "Dropping undecodable event", map[string]interface{}{
			"message_id": msg.UUID,
			"error":      err.Error(),
		})
		return
	}

	switch event.EventType() {
	case constant.EventTypeChatTurnCompleted:
		details := event.Payload()
		details["occurred_at"] = event.Timestamp()
		if degraded, _ := details["degraded"].(bool); degraded {
			cs.logger.Warn(consumerModule, "Chat turn completed without content update", details)
			return
		}
		cs.logger.Info(consumerModule, "Chat turn completed", details)
	default:
		cs.logger.Debug(consumerModule, "Ignoring event", map[string]interface{}{"type": event.EventType()})
	}
}

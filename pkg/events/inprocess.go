package events

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// InProcessPublisher puts events on a watermill gochannel topic so that
// in-process consumers see them even when no broker is reachable.
type InProcessPublisher struct {
	pubSub *gochannel.GoChannel
	topic  string
}

func NewInProcessPublisher(pubSub *gochannel.GoChannel, topic string) *InProcessPublisher {
	return &InProcessPublisher{pubSub: pubSub, topic: topic}
}

func (p *InProcessPublisher) Publish(ctx context.Context, event Event) error {
	id, payload, err := Encode(event)
	if err != nil {
		return err
	}
	msg := message.NewMessage(id.String(), payload)
	msg.SetContext(ctx)
	return p.pubSub.Publish(p.topic, msg)
}

// Fanout publishes to every non-nil publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Package pubsub builds the watermill transport shared by the ingress router and
// the outbound adapters. The in-process gochannel driver serves single-node runs
// and tests; the amqp driver connects to RabbitMQ with durable queues.
package pubsub

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	amqp "github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/fx"
	"go.uber.org/multierr"

	"github.com/virtexvirtuoso/Virtuoso-sub009/config"
)

const (
	DriverGoChannel = "gochannel"
	DriverAMQP      = "amqp"

	outputBuffer = 1024
)

// Provider owns one publisher and one subscriber of the configured driver.
type Provider interface {
	Publisher() message.Publisher
	Subscriber() message.Subscriber
	Driver() string
	Close() error
}

type provider struct {
	driver string
	pub    message.Publisher
	sub    message.Subscriber
}

func (p *provider) Publisher() message.Publisher   { return p.pub }
func (p *provider) Subscriber() message.Subscriber { return p.sub }
func (p *provider) Driver() string                 { return p.driver }

// Close shuts the publisher and the subscriber. The gochannel driver uses one
// value for both, so it is closed once.
func (p *provider) Close() error {
	err := p.pub.Close()
	if any(p.sub) != any(p.pub) {
		err = multierr.Append(err, p.sub.Close())
	}
	return err
}

// New builds the transport for cfg.Driver.
func New(cfg config.PubSubConfig, logger watermill.LoggerAdapter) (Provider, error) {
	switch cfg.Driver {
	case "", DriverGoChannel:
		ch := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: outputBuffer,
		}, logger)
		return &provider{driver: DriverGoChannel, pub: ch, sub: ch}, nil

	case DriverAMQP:
		// [QUEUE_PER_GROUP] every consumer group gets its own durable queue per topic
		amqpCfg := amqp.NewDurablePubSubConfig(cfg.AMQPURL, amqp.GenerateQueueNameTopicNameWithSuffix(cfg.ConsumerGroup))

		pub, err := amqp.NewPublisher(amqpCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("pubsub: amqp publisher: %w", err)
		}
		sub, err := amqp.NewSubscriber(amqpCfg, logger)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("pubsub: amqp subscriber: %w", err), pub.Close())
		}
		return &provider{driver: DriverAMQP, pub: pub, sub: sub}, nil

	default:
		return nil, fmt.Errorf("pubsub: unknown driver %q", cfg.Driver)
	}
}

var Module = fx.Module("pubsub",
	fx.Provide(func(lc fx.Lifecycle, cfg *config.Config, logger watermill.LoggerAdapter) (Provider, error) {
		p, err := New(cfg.PubSub, logger)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return p.Close()
			},
		})
		return p, nil
	}),
	// [LIFECYCLE] built eagerly so its OnStop runs after every module declared later,
	// keeping dead-letter forwarding alive while the bus and the processor drain
	fx.Invoke(func(Provider) {}),
)

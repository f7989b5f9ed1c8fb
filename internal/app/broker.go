package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ordermesh/ordersvc/internal/config"
	"github.com/ordermesh/ordersvc/internal/messaging"
	"github.com/ordermesh/ordersvc/internal/messaging/amqp"
	"github.com/ordermesh/ordersvc/internal/messaging/kafka"
	"github.com/ordermesh/ordersvc/internal/messaging/noop"
	"github.com/ordermesh/ordersvc/internal/messaging/redis"
)

const dialTimeout = 5 * time.Second

// broadcaster is a publishing transport that can also report reachability.
type broadcaster interface {
	messaging.Broadcaster
	Ping(ctx context.Context) error
}

func redisOptions(cfg config.Config) redis.Options {
	return redis.Options{
		Addr:           cfg.RedisAddr,
		Password:       cfg.RedisPassword,
		DB:             cfg.RedisDB,
		DialTimeout:    dialTimeout,
		HealthInterval: cfg.HealthInterval,
	}
}

func amqpOptions(cfg config.Config) amqp.Options {
	return amqp.Options{URL: cfg.AMQPURL, DialTimeout: dialTimeout}
}

func newBroadcaster(cfg config.Config) (broadcaster, error) {
	switch cfg.Broker {
	case config.BrokerRedis:
		return redis.NewBroadcaster(redisOptions(cfg)), nil
	case config.BrokerAMQP:
		return amqp.NewBroadcaster(amqpOptions(cfg)), nil
	case config.BrokerKafka:
		return kafka.NewBroadcaster(kafka.Options{
			Brokers:      cfg.KafkaBrokers,
			WriteTimeout: cfg.PublishTimeout,
			DialTimeout:  dialTimeout,
		}), nil
	case config.BrokerNoop:
		return noop.Broadcaster{}, nil
	default:
		return nil, fmt.Errorf("unknown broker %q", cfg.Broker)
	}
}

// newSubscriberTransport returns the dialer for the subscription and a
// separate pinger for health.
func newSubscriberTransport(cfg config.Config) (messaging.Dialer, messaging.Pinger, error) {
	switch cfg.Broker {
	case config.BrokerRedis:
		opts := redisOptions(cfg)
		return redis.NewDialer(opts), redis.NewPinger(opts), nil
	case config.BrokerAMQP:
		opts := amqpOptions(cfg)
		return amqp.NewDialer(opts), amqp.NewPinger(opts), nil
	default:
		return nil, nil, fmt.Errorf("broker %q cannot feed a subscriber", cfg.Broker)
	}
}

// Package kafka mirrors order events onto a Kafka topic named after the
// channel. It only publishes: a Kafka reader resumes from stored offsets,
// which would replay events a broadcast listener must never see twice.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// Options lists the bootstrap brokers.
type Options struct {
	Brokers      []string
	WriteTimeout time.Duration
	DialTimeout  time.Duration
}

// Broadcaster writes one message per Broadcast, keyed by nothing, to the
// topic named by channel. Writes are synchronous so a failure surfaces to
// the caller.
type Broadcaster struct {
	brokers     []string
	dialTimeout time.Duration
	writer      *kafkago.Writer
}

func NewBroadcaster(opts Options) *Broadcaster {
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	return &Broadcaster{
		brokers:     opts.Brokers,
		dialTimeout: dialTimeout,
		writer: &kafkago.Writer{
			Addr:                   kafkago.TCP(opts.Brokers...),
			Balancer:               &kafkago.LeastBytes{},
			RequiredAcks:           kafkago.RequireOne,
			AllowAutoTopicCreation: true,
			MaxAttempts:            1,
			WriteTimeout:           writeTimeout,
			BatchTimeout:           10 * time.Millisecond,
		},
	}
}

func (b *Broadcaster) Broadcast(ctx context.Context, channel string, payload []byte) error {
	return b.writer.WriteMessages(ctx, kafkago.Message{
		Topic: channel,
		Value: payload,
		Time:  time.Now().UTC(),
	})
}

// Ping dials the first reachable bootstrap broker.
func (b *Broadcaster) Ping(ctx context.Context) error {
	if len(b.brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}
	dialer := &kafkago.Dialer{Timeout: b.dialTimeout}
	var errs []error
	for _, addr := range b.brokers {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", addr, err))
			continue
		}
		_, err = conn.Brokers()
		_ = conn.Close()
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", addr, err))
	}
	return errors.Join(errs...)
}

func (b *Broadcaster) Close() error { return b.writer.Close() }

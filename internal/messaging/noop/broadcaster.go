// Package noop discards order events when no broker is configured.
package noop

import "context"

// Broadcaster accepts every payload and delivers it nowhere.
type Broadcaster struct{}

func (Broadcaster) Broadcast(context.Context, string, []byte) error { return nil }

func (Broadcaster) Ping(context.Context) error { return nil }

func (Broadcaster) Close() error { return nil }

package subscriber

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordermesh/ordersvc/internal/messaging"
	"github.com/ordermesh/ordersvc/internal/messaging/redis"
)

const validEvent = `{"event":"order.created","order_id":%d,"user_id":42,"product_id":"SKU-1","total_price":19.99}`

type dialerFunc func(ctx context.Context) (messaging.Session, error)

func (f dialerFunc) Dial(ctx context.Context) (messaging.Session, error) { return f(ctx) }

type fakeSession struct {
	sub          *fakeSub
	subscribeErr error
}

func (s *fakeSession) Subscribe(context.Context, string) (messaging.Subscription, error) {
	if s.subscribeErr != nil {
		return nil, s.subscribeErr
	}
	return s.sub, nil
}

func (s *fakeSession) Close() error { return nil }

type fakeSub struct {
	payloads chan []byte
	done     chan struct{}
	once     sync.Once
}

func newFakeSub(payloads ...string) *fakeSub {
	ch := make(chan []byte, len(payloads))
	for _, p := range payloads {
		ch <- []byte(p)
	}
	return &fakeSub{payloads: ch, done: make(chan struct{})}
}

func (s *fakeSub) Receive(ctx context.Context) ([]byte, error) {
	select {
	case p, ok := <-s.payloads:
		if !ok {
			return nil, errors.New("connection reset")
		}
		return p, nil
	case <-s.done:
		return nil, errors.New("subscription closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *fakeSub) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func event(id int) string {
	return fmt.Sprintf(validEvent, id)
}

func newProcessed() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Name: "processed_total"}, []string{"outcome"})
}

func TestRetryDelaysGrowLinearlyUpToCap(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var delays []time.Duration
	wait := func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		if len(delays) == 5 {
			cancel()
			return context.Canceled
		}
		return nil
	}
	reconnects := prometheus.NewCounter(prometheus.CounterOpts{Name: "reconnects_total"})
	dialer := dialerFunc(func(context.Context) (messaging.Session, error) {
		return nil, errors.New("connection refused")
	})

	s := New(dialer, ProcessorFunc(func(context.Context, messaging.OrderCreatedEvent) error { return nil }), Options{
		Backoff:    Backoff{Step: 10 * time.Millisecond, Cap: 35 * time.Millisecond},
		Wait:       wait,
		Reconnects: reconnects,
	})
	require.NoError(t, s.Run(ctx))

	ms := time.Millisecond
	assert.Equal(t, []time.Duration{10 * ms, 20 * ms, 30 * ms, 35 * ms, 35 * ms}, delays)
	assert.Equal(t, 5.0, testutil.ToFloat64(reconnects))
	assert.Equal(t, Disconnected, s.Connection().State())
}

func TestDeliveryResetsAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dials := 0
	dialer := dialerFunc(func(context.Context) (messaging.Session, error) {
		dials++
		if dials == 3 {
			// delivers one order, then the stream drops
			sub := newFakeSub(event(1))
			close(sub.payloads)
			return &fakeSession{sub: sub}, nil
		}
		return nil, errors.New("connection refused")
	})

	var delays []time.Duration
	wait := func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		if len(delays) == 3 {
			cancel()
			return context.Canceled
		}
		return nil
	}

	s := New(dialer, ProcessorFunc(func(context.Context, messaging.OrderCreatedEvent) error { return nil }), Options{
		Backoff: Backoff{Step: 10 * time.Millisecond, Cap: time.Second},
		Wait:    wait,
	})
	require.NoError(t, s.Run(ctx))

	ms := time.Millisecond
	assert.Equal(t, []time.Duration{10 * ms, 20 * ms, 10 * ms}, delays)
	assert.Equal(t, 3, dials)
}

func TestRepeatedLossesBackOff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dials := 0
	dialer := dialerFunc(func(context.Context) (messaging.Session, error) {
		dials++
		// handshake succeeds but the stream drops before delivering anything
		sub := newFakeSub()
		close(sub.payloads)
		return &fakeSession{sub: sub}, nil
	})

	reconnects := prometheus.NewCounter(prometheus.CounterOpts{Name: "reconnects_total"})
	var s *Supervisor
	var delays []time.Duration
	var waitStates []State
	wait := func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		waitStates = append(waitStates, s.Connection().State())
		if len(delays) == 5 {
			cancel()
			return context.Canceled
		}
		return nil
	}

	s = New(dialer, ProcessorFunc(func(context.Context, messaging.OrderCreatedEvent) error { return nil }), Options{
		Backoff:    Backoff{Step: 10 * time.Millisecond, Cap: 35 * time.Millisecond},
		Wait:       wait,
		Reconnects: reconnects,
	})
	require.NoError(t, s.Run(ctx))

	ms := time.Millisecond
	assert.Equal(t, []time.Duration{10 * ms, 20 * ms, 30 * ms, 35 * ms, 35 * ms}, delays)
	assert.Equal(t, 5, dials)
	assert.Equal(t, 5.0, testutil.ToFloat64(reconnects))
	for _, st := range waitStates {
		assert.Equal(t, Connecting, st)
	}
}

func TestSubscribeFailureRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var states []State
	dialer := dialerFunc(func(context.Context) (messaging.Session, error) {
		return &fakeSession{subscribeErr: errors.New("NOPERM")}, nil
	})
	wait := func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	s := New(dialer, ProcessorFunc(func(context.Context, messaging.OrderCreatedEvent) error { return nil }), Options{Wait: wait})
	s.conn.onChange = func(_, to State) { states = append(states, to) }
	require.NoError(t, s.Run(ctx))

	assert.Equal(t, []State{Connecting, Connected, Disconnected}, states)
}

func TestMalformedPayloadsDoNotStopTheStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := newFakeSub(
		"not json",
		event(1),
		`{"event":"order.shipped","order_id":2,"user_id":42,"product_id":"SKU-1","total_price":1}`,
		`{"event":"order.created","order_id":0,"user_id":42,"product_id":"SKU-1","total_price":1}`,
		event(3),
	)
	dialer := dialerFunc(func(context.Context) (messaging.Session, error) {
		return &fakeSession{sub: sub}, nil
	})

	var got []int64
	processor := ProcessorFunc(func(_ context.Context, evt messaging.OrderCreatedEvent) error {
		got = append(got, evt.OrderID)
		if evt.OrderID == 3 {
			cancel()
		}
		return nil
	})
	processed := newProcessed()

	s := New(dialer, processor, Options{Processed: processed})
	require.NoError(t, s.Run(ctx))

	assert.Equal(t, []int64{1, 3}, got)
	assert.Equal(t, 2.0, testutil.ToFloat64(processed.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 3.0, testutil.ToFloat64(processed.WithLabelValues(OutcomeError)))
}

func TestProcessingFailureIsCounted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := newFakeSub(event(1), event(2))
	dialer := dialerFunc(func(context.Context) (messaging.Session, error) {
		return &fakeSession{sub: sub}, nil
	})
	processor := ProcessorFunc(func(_ context.Context, evt messaging.OrderCreatedEvent) error {
		if evt.OrderID == 1 {
			return errors.New("smtp unavailable")
		}
		cancel()
		return nil
	})
	processed := newProcessed()

	require.NoError(t, New(dialer, processor, Options{Processed: processed}).Run(ctx))

	assert.Equal(t, 1.0, testutil.ToFloat64(processed.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(processed.WithLabelValues(OutcomeError)))
}

func TestStateGaugeTracksConnection(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "state"})
	sub := newFakeSub()
	dialer := dialerFunc(func(context.Context) (messaging.Session, error) {
		return &fakeSession{sub: sub}, nil
	})
	s := New(dialer, ProcessorFunc(func(context.Context, messaging.OrderCreatedEvent) error { return nil }), Options{State: gauge})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()

	require.Eventually(t, func() bool { return s.Connection().State() == Subscribed }, time.Second, 5*time.Millisecond)
	assert.Equal(t, float64(Subscribed), testutil.ToFloat64(gauge))

	cancel()
	<-done
	assert.Equal(t, float64(Disconnected), testutil.ToFloat64(gauge))
}

func TestReconnectsAfterBrokerRestart(t *testing.T) {
	srv := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []int64
	processor := ProcessorFunc(func(_ context.Context, evt messaging.OrderCreatedEvent) error {
		mu.Lock()
		got = append(got, evt.OrderID)
		mu.Unlock()
		return nil
	})
	received := func() []int64 {
		mu.Lock()
		defer mu.Unlock()
		return append([]int64(nil), got...)
	}

	dialer := redis.NewDialer(redis.Options{Addr: srv.Addr(), DialTimeout: 200 * time.Millisecond})
	s := New(dialer, processor, Options{
		Backoff: Backoff{Step: 10 * time.Millisecond, Cap: 50 * time.Millisecond},
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()

	subscribed := func() bool { return s.Connection().State() == Subscribed }
	require.Eventually(t, subscribed, 2*time.Second, 5*time.Millisecond)
	srv.Publish(messaging.EventOrderCreated, event(1))
	require.Eventually(t, func() bool { return len(received()) == 1 }, 2*time.Second, 5*time.Millisecond)

	srv.Close()
	require.Eventually(t, func() bool { return !subscribed() }, 2*time.Second, 5*time.Millisecond)

	// published while nobody listens: never delivered
	srv.Publish(messaging.EventOrderCreated, event(2))

	require.NoError(t, srv.Restart())
	require.Eventually(t, subscribed, 5*time.Second, 5*time.Millisecond)
	srv.Publish(messaging.EventOrderCreated, event(3))
	require.Eventually(t, func() bool { return len(received()) == 2 }, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []int64{1, 3}, received())

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop")
	}
}

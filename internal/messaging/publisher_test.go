package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordermesh/ordersvc/internal/domain"
)

type fakeBroadcaster struct {
	channel string
	payload []byte
	err     error
}

func (f *fakeBroadcaster) Broadcast(_ context.Context, channel string, payload []byte) error {
	f.channel, f.payload = channel, payload
	return f.err
}

func (f *fakeBroadcaster) Close() error { return nil }

func TestPublisherBroadcastsOnChannel(t *testing.T) {
	tr := &fakeBroadcaster{}
	p := NewPublisher(tr, "")

	err := p.PublishOrderCreated(context.Background(), &domain.Order{
		ID: 5, UserID: 9, ProductID: "p", TotalPrice: decimal.NewFromInt(3),
	})
	require.NoError(t, err)
	assert.Equal(t, EventOrderCreated, tr.channel)

	evt, err := DecodeOrderCreated(tr.payload)
	require.NoError(t, err)
	assert.Equal(t, int64(5), evt.OrderID)
}

func TestPublisherWrapsTransportFailure(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	p := NewPublisher(&fakeBroadcaster{err: cause}, "orders.fanout")

	err := p.PublishOrderCreated(context.Background(), &domain.Order{ID: 5, UserID: 9, TotalPrice: decimal.NewFromInt(3)})
	var perr *PublicationError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "orders.fanout", perr.Channel)
	assert.ErrorIs(t, err, cause)
}

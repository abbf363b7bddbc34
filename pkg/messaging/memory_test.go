package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBroker_PublishSubscribe(t *testing.T) {
	b := NewMemoryBroker(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := b.Subscribe(ctx, Channel("booking.confirmation"))
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, Channel("booking.confirmation"), []byte(`{"id":1}`)))
	require.NoError(t, b.Publish(ctx, Channel("booking.cancellation"), []byte(`{"id":2}`)))

	select {
	case msg := <-ch:
		assert.JSONEq(t, `{"id":1}`, string(msg))
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
	select {
	case msg := <-ch:
		t.Fatalf("unexpected message %s", msg)
	default:
	}

	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.Publish(ctx, "x", nil), ErrClosed)
	_, open := <-ch
	assert.False(t, open)
}

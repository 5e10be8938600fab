package nats

import (
	"context"
	"os"
	"testing"
	"time"

	"youwin-client/internal/pkg/logger"
	"youwin-client/pkg/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "youwin.PHASE_CHANGED", Subject("PHASE_CHANGED"))
	assert.Equal(t, "youwin.>", SubjectAll)
}

func natsURL(t *testing.T) string {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set")
	}
	return url
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	url := natsURL(t)
	log := logger.NewNopLogger()

	pub, err := NewPublisher(url, log)
	require.NoError(t, err)
	defer pub.Close()

	sub, err := NewSubscriber(url, log)
	require.NoError(t, err)
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	received := make(chan events.Event, 1)
	err = sub.Subscribe(ctx, Subject("CACHE_CLEARED"), "", func(_ context.Context, ev events.Event) error {
		select {
		case received <- ev:
		default:
		}
		return nil
	})
	require.NoError(t, err)

	sent := events.New("CACHE_CLEARED", map[string]interface{}{"source": "test"})
	require.NoError(t, pub.Publish(ctx, sent))

	select {
	case got := <-received:
		assert.Equal(t, sent.ID, got.EventID())
		assert.Equal(t, "test", got.Payload()["source"])
	case <-ctx.Done():
		t.Fatal("event not received")
	}
}

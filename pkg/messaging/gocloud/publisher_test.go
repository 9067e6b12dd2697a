package gocloud

import (
	"context"
	"testing"
	"time"

	"github.com/transientvariable/eventstreams/pkg/messaging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gcdpubsub "gocloud.dev/pubsub"
)

func TestNewPublisher(t *testing.T) {
	_, err := NewPublisher(" ")
	assert.ErrorIs(t, err, ErrTopicURLRequired)

	_, err = NewPublisher("unknown-scheme://topic")
	assert.Error(t, err)
}

func TestPublisher_Publish(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p, err := NewPublisher("mem://publisher-publish", WithContext(ctx))
	require.NoError(t, err)

	sub, err := gcdpubsub.OpenSubscription(ctx, "mem://publisher-publish")
	require.NoError(t, err)
	defer func() { _ = sub.Shutdown(ctx) }()

	payload := []byte(`{"type":"edit","server_name":"en.wikipedia.org","wiki":"enwiki","meta":{"id":"abc-123"}}`)
	require.NoError(t, p.Publish(payload))

	msg, err := sub.Receive(ctx)
	require.NoError(t, err)
	msg.Ack()

	assert.Equal(t, payload, msg.Body)
	assert.Equal(t, map[string]string{
		"type":        "edit",
		"server_name": "en.wikipedia.org",
		"wiki":        "enwiki",
		"event_id":    "abc-123",
	}, msg.Metadata)

	assert.Equal(t, "mem://publisher-publish", p.TopicURL())
	assert.Contains(t, p.String(), "mem://publisher-publish")
	require.NoError(t, p.Close())
}

func TestPublisher_Closed(t *testing.T) {
	p, err := NewPublisher("mem://publisher-closed")
	require.NoError(t, err)

	require.NoError(t, p.Close())
	assert.ErrorIs(t, p.Close(), messaging.ErrPublisherClosed)
	assert.ErrorIs(t, p.Publish([]byte(`{}`)), messaging.ErrPublisherClosed)
}

func TestMetadata(t *testing.T) {
	assert.Empty(t, metadata([]byte(`not json`)))
	assert.Equal(t, map[string]string{"type": "log"}, metadata([]byte(`{"type":"log"}`)))
}

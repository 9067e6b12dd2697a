// Package gocloud publishes messages to any topic supported by gocloud.dev/pubsub, such as GCP Pub/Sub
// (gcppubsub://projects/<project>/topics/<topic>) or an in-process topic (mem://<topic>).
package gocloud

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/transientvariable/eventstreams/pkg/messaging"

	"github.com/cenkalti/backoff/v4"
	"github.com/transientvariable/anchor"
	"github.com/transientvariable/log-go"

	json "github.com/json-iterator/go"
	eventstreams "github.com/transientvariable/eventstreams/pkg"
	gcdpubsub "gocloud.dev/pubsub"

	_ "gocloud.dev/pubsub/gcppubsub"
	_ "gocloud.dev/pubsub/mempubsub"
)

const (
	// DefaultPublishMaxRetries defines the default number of times publishing a message is retried.
	DefaultPublishMaxRetries = 3
)

var (
	_ messaging.Publisher[[]byte] = (*Publisher)(nil)

	// metadataFields maps message metadata keys to the payload field they are read from.
	metadataFields = map[string][]any{
		"type":        {"type"},
		"server_name": {"server_name"},
		"wiki":        {"wiki"},
		"event_id":    {"meta", "id"},
	}
)

// Publisher is an implementation of a messaging.Publisher for pushing messages to a gocloud pub/sub topic.
type Publisher struct {
	closed     bool
	ctx        context.Context
	ctxCancel  context.CancelFunc
	maxRetries int
	mutex      sync.Mutex
	topic      *gcdpubsub.Topic
	topicURL   string
}

// NewPublisher creates a new Publisher for pushing messages to the topic identified by topicURL.
func NewPublisher(topicURL string, options ...func(*Option)) (*Publisher, error) {
	if topicURL = strings.TrimSpace(topicURL); topicURL == "" {
		return nil, fmt.Errorf("gocloud_publisher: %w", ErrTopicURLRequired)
	}

	opts := &Option{maxRetries: DefaultPublishMaxRetries}
	for _, opt := range options {
		opt(opts)
	}

	p := &Publisher{topicURL: topicURL, maxRetries: opts.maxRetries}
	if opts.ctx != nil {
		p.ctx, p.ctxCancel = context.WithCancel(opts.ctx)
	} else {
		p.ctx, p.ctxCancel = context.WithCancel(context.Background())
	}

	topic, err := gcdpubsub.OpenTopic(p.ctx, topicURL)
	if err != nil {
		p.ctxCancel()
		return nil, fmt.Errorf("gocloud_publisher: unable to open topic: %w", err)
	}
	p.topic = topic

	log.Info("[gocloud_publisher] opened topic", log.String("url", topicURL))
	return p, nil
}

// Close releases any resources used by the Publisher.
func (p *Publisher) Close() error {
	if p == nil {
		return eventstreams.ErrInvalid
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	if !p.closed {
		defer p.ctxCancel()
		p.closed = true
		if err := p.topic.Shutdown(p.ctx); err != nil {
			return fmt.Errorf("gocloud_publisher: failed to shutdown topic: %w", err)
		}
		return nil
	}
	return fmt.Errorf("gocloud_publisher: %w: %s", messaging.ErrPublisherClosed, p.topicURL)
}

// Publish publishes a message to the topic. The type, server_name, wiki, and meta.id fields of the message, when
// present, are attached as message metadata.
func (p *Publisher) Publish(msg []byte) error {
	if err := p.stat(); err != nil {
		return err
	}

	log.Trace("[gocloud_publisher:publish] publishing message", log.Int("size", len(msg)))

	m := &gcdpubsub.Message{Body: msg, Metadata: metadata(msg)}
	err := backoff.Retry(func() error {
		return p.topic.Send(p.ctx, m)
	}, backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(max(p.maxRetries, 0))), p.ctx))
	if err != nil {
		return fmt.Errorf("gocloud_publisher: unable to publish message: %w", err)
	}
	return nil
}

// TopicURL returns the URL of the topic the Publisher pushes messages to.
func (p *Publisher) TopicURL() string {
	return p.topicURL
}

// String returns a string representing the current state of the Publisher.
func (p *Publisher) String() string {
	return string(anchor.ToJSONFormatted(map[string]any{
		"gocloud_publisher": map[string]any{
			"topic_url":   p.TopicURL(),
			"max_retries": p.maxRetries,
		},
	}))
}

func (p *Publisher) stat() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.closed {
		return fmt.Errorf("gocloud_publisher: %w: %s", messaging.ErrPublisherClosed, p.topicURL)
	}
	return nil
}

func metadata(msg []byte) map[string]string {
	md := make(map[string]string)
	for key, path := range metadataFields {
		if v := json.Get(msg, path...).ToString(); v != "" {
			md[key] = v
		}
	}
	return md
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/transientvariable/eventstreams/pkg/messaging"
	"github.com/transientvariable/eventstreams/pkg/messaging/gocloud"
	"github.com/transientvariable/eventstreams/pkg/messaging/handler"
	"github.com/transientvariable/eventstreams/pkg/messaging/sse"
	"github.com/transientvariable/eventstreams/pkg/stream"

	"github.com/transientvariable/log-go"

	eventstreams "github.com/transientvariable/eventstreams/pkg"
)

type dispatcher struct {
	closed    bool
	mutex     sync.Mutex
	publisher messaging.Publisher[[]byte]
	stream    *stream.EventStream
}

func newDispatcher(ctx context.Context, cfg *config, out io.Writer) (*dispatcher, error) {
	d := &dispatcher{}

	// Create stream
	s, err := stream.New(
		stream.WithURL(cfg.URL),
		stream.WithDedup(cfg.Dedup),
		stream.WithSubscriberOptions(
			sse.WithContext(ctx),
			sse.WithSince(cfg.since()),
			sse.WithUserAgent(cfg.UserAgent)))
	if err != nil {
		return nil, fmt.Errorf("cmd_dispatch: %w", err)
	}
	d.stream = s

	// Create relay publisher
	if cfg.RelayURL != "" {
		p, err := gocloud.NewPublisher(cfg.RelayURL, gocloud.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("cmd_dispatch: %w", err)
		}
		d.publisher = p
		log.Info(fmt.Sprintf("[cmd:dispatch] publisher:\n%s", p))

		h, err := handler.NewRelayHandler(p)
		if err != nil {
			return nil, fmt.Errorf("cmd_dispatch: %w", err)
		}

		if err := s.Use(h); err != nil {
			return nil, fmt.Errorf("cmd_dispatch: %w", err)
		}
	}

	// Add listeners
	p := &printer{out: out}
	s.OnOpen(p.connected)
	if cfg.Wiki != "" {
		err = errors.Join(s.OnWikiEdit(cfg.Wiki, p.edit), s.OnWikiLog(cfg.Wiki, p.logEntry))
	} else {
		err = errors.Join(s.OnEdit(p.edit), s.OnLog(p.logEntry))
	}
	if err != nil {
		return nil, fmt.Errorf("cmd_dispatch: %w", err)
	}

	log.Info(fmt.Sprintf("[cmd:dispatch] stream:\n%s", s))
	return d, nil
}

func (d *dispatcher) Run() error {
	log.Info("[cmd:dispatch] running dispatcher...")

	if err := d.stream.Start(); err != nil {
		return fmt.Errorf("cmd_dispatch: %w", err)
	}
	return nil
}

func (d *dispatcher) Done() <-chan struct{} {
	return d.stream.Done()
}

func (d *dispatcher) Err() error {
	return d.stream.Err()
}

func (d *dispatcher) Close() error {
	if d == nil {
		return eventstreams.ErrInvalid
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if !d.closed {
		d.closed = true
		err := d.stream.Close()
		if d.publisher != nil {
			err = errors.Join(err, d.publisher.Close())
		}
		return err
	}
	return fmt.Errorf("cmd_dispatch: %w", eventstreams.ErrClosed)
}

package widget

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrOutboxClosed is returned by Send after the outbox stopped.
var ErrOutboxClosed = errors.New("widget: outbox closed")

const (
	outboxSize   = 128
	writeTimeout = 10 * time.Second
)

// frameWriter is the write half of a websocket connection.
type frameWriter interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
}

// Outbox queues commands for one connection and writes them in order from a
// single goroutine, so callers never block on socket I/O.
type Outbox struct {
	conn      frameWriter
	queue     chan Command
	done      chan struct{}
	visitorID string
}

// NewOutbox creates an outbox writing to conn.
func NewOutbox(conn frameWriter, visitorID string) *Outbox {
	return &Outbox{
		conn:      conn,
		queue:     make(chan Command, outboxSize),
		done:      make(chan struct{}),
		visitorID: visitorID,
	}
}

// Send queues cmd. It waits while the queue is full.
func (o *Outbox) Send(ctx context.Context, cmd Command) error {
	select {
	case o.queue <- cmd:
		if n := len(o.queue); n > outboxSize*3/4 {
			log.Warn().Str("visitor_id", o.visitorID).Int("queue_len", n).Msg("Outbox nearly full")
		}
		return nil
	case <-o.done:
		return ErrOutboxClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run writes queued commands until ctx ends or a write fails.
func (o *Outbox) Run(ctx context.Context) error {
	defer close(o.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-o.queue:
			if err := o.write(ctx, cmd); err != nil {
				return err
			}
		}
	}
}

func (o *Outbox) write(ctx context.Context, cmd Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return errors.Wrapf(err, "encode %s command", cmd.Type)
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	start := time.Now()
	if err := o.conn.Write(wctx, websocket.MessageText, data); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrapf(err, "write %s command", cmd.Type)
	}
	if d := time.Since(start); d > 100*time.Millisecond {
		log.Warn().Str("visitor_id", o.visitorID).Dur("duration", d).Str("type", cmd.Type).Msg("Slow websocket write")
	}
	return nil
}

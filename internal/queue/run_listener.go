package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/smukkama/weather-warehouse/internal/protocol"
)

// MessageSource is the consumer side used by RunListener
type MessageSource interface {
	Consume(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msg kafka.Message) error
}

// RunHandler is called for every decoded run event
type RunHandler func(ctx context.Context, event *protocol.RunEvent) error

// RunListener consumes run events and hands them to a handler.
// Offsets are committed once the handler succeeds. A failed message is
// retried after a backoff and nothing past it is consumed until it succeeds.
// Undecodable messages are committed and skipped.
type RunListener struct {
	source  MessageSource
	handler RunHandler
	logger  *zap.Logger
	backoff time.Duration
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRunListener creates a new run event listener
func NewRunListener(source MessageSource, handler RunHandler, logger *zap.Logger) *RunListener {
	return &RunListener{
		source:  source,
		handler: handler,
		logger:  logger,
		backoff: time.Second,
	}
}

// Start begins consuming in the background
func (l *RunListener) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.run(ctx)
	}()
}

// Stop stops the listener and waits for the loop to exit
func (l *RunListener) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
}

func (l *RunListener) run(ctx context.Context) {
	for ctx.Err() == nil {
		msg, err := l.source.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			l.logger.Warn("Consumer error", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(l.backoff):
			}
			continue
		}

		l.process(ctx, msg)
	}
}

func (l *RunListener) process(ctx context.Context, msg kafka.Message) {
	event, err := protocol.DecodeRunEvent(msg.Value)
	if err != nil {
		l.logger.Warn("Skipping undecodable run event",
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
	} else if !l.handle(ctx, event) {
		return
	}

	if err := l.source.Commit(ctx, msg); err != nil {
		l.logger.Warn("Failed to commit offset", zap.Int64("offset", msg.Offset), zap.Error(err))
	}
}

// handle retries the handler until it succeeds. It returns false when ctx is
// done first, leaving the offset uncommitted.
func (l *RunListener) handle(ctx context.Context, event *protocol.RunEvent) bool {
	for attempt := 1; ; attempt++ {
		err := l.handler(ctx, event)
		if err == nil {
			return true
		}
		l.logger.Error("Failed to handle run event",
			zap.String("run_id", event.RunID),
			zap.Int("attempt", attempt),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return false
		case <-time.After(l.backoff):
		}
	}
}

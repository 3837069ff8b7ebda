package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kozaktomas/face-index/internal/faces"
	"github.com/kozaktomas/face-index/internal/logging"
	"gocloud.dev/pubsub"
)

// DefaultDrainTimeout bounds how long in-flight handlers may keep running
// after Run's context is cancelled.
const DefaultDrainTimeout = 30 * time.Second

// Handler processes one message body and reports the outcome.
type Handler func(ctx context.Context, body []byte) faces.Outcome

// Consumer receives messages from a subscription and runs a Handler for each,
// with at most Concurrency handlers in flight.
type Consumer struct {
	sub         *pubsub.Subscription
	concurrency int
	drain       time.Duration
	logger      *slog.Logger
}

// OpenConsumer opens a subscription by gocloud.dev URL.
func OpenConsumer(ctx context.Context, subscriptionURL string, concurrency int) (*Consumer, error) {
	if subscriptionURL == "" {
		return nil, errors.New("subscription URL is required")
	}
	sub, err := pubsub.OpenSubscription(ctx, subscriptionURL)
	if err != nil {
		return nil, fmt.Errorf("open subscription %s: %w", subscriptionURL, err)
	}
	return NewConsumer(sub, concurrency), nil
}

// NewConsumer wraps an already opened subscription.
func NewConsumer(sub *pubsub.Subscription, concurrency int) *Consumer {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Consumer{
		sub:         sub,
		concurrency: concurrency,
		drain:       DefaultDrainTimeout,
		logger:      logging.Component("queue"),
	}
}

// WithDrainTimeout changes how long in-flight handlers may run after
// shutdown starts.
func (c *Consumer) WithDrainTimeout(d time.Duration) *Consumer {
	if d > 0 {
		c.drain = d
	}
	return c
}

// Run receives until ctx is cancelled or the subscription fails, then waits
// for in-flight handlers. Handlers do not see ctx's cancellation: they keep
// running for up to the drain timeout so a crop that was already stored still
// gets its index row. Successful and dropped messages are acked; retryable
// failures are nacked so the transport redelivers them.
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	sem := make(chan struct{}, c.concurrency)
	var wg sync.WaitGroup

	handlerCtx, cancelHandlers := context.WithCancel(context.WithoutCancel(ctx))
	defer func() {
		timer := time.AfterFunc(c.drain, cancelHandlers)
		wg.Wait()
		timer.Stop()
		cancelHandlers()
	}()

	for {
		msg, err := c.sub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			if msg.Nackable() {
				msg.Nack()
			}
			return nil
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			c.handle(handlerCtx, msg, h)
		}()
	}
}

func (c *Consumer) handle(ctx context.Context, msg *pubsub.Message, h Handler) {
	ctx = logging.EnsureCorrelationID(ctx)
	log := logging.FromContext(ctx, c.logger)

	outcome := c.safeHandle(ctx, msg.Body, h)
	switch {
	case outcome.OK:
		msg.Ack()
	case !outcome.Retryable:
		log.Warn("dropping message", "error", outcome.Error)
		msg.Ack()
	case msg.Nackable():
		log.Warn("message failed, requesting redelivery", "error", outcome.Error)
		msg.Nack()
	default:
		// Left unacked; the transport redelivers after the visibility timeout.
		log.Warn("message failed, awaiting redelivery", "error", outcome.Error)
	}
}

func (c *Consumer) safeHandle(ctx context.Context, body []byte, h Handler) (out faces.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			logging.FromContext(ctx, c.logger).Error("handler panic", "panic", r)
			out = faces.Outcome{Error: "internal error", Retryable: true}
		}
	}()
	return h(ctx, body)
}

// Shutdown releases the subscription.
func (c *Consumer) Shutdown(ctx context.Context) error {
	if err := c.sub.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown subscription: %w", err)
	}
	return nil
}

package trigger

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/campusfound/matchd/internal/domain"
	"github.com/campusfound/matchd/internal/usecase/matching"
)

// Matcher runs a matching pipeline for one request.
type Matcher interface {
	MatchRequest(ctx context.Context, requestID string, opts matching.Options) (matching.Result, error)
}

// EmbeddingEnsurer precomputes an item's embedding.
type EmbeddingEnsurer interface {
	Ensure(ctx context.Context, collection domain.Collection, id string) (domain.Item, error)
}

// RequestLister enumerates request IDs for fan-out.
type RequestLister interface {
	RequestIDs(ctx context.Context, cap int) ([]string, error)
}

// Config bounds the consumer's reactions.
type Config struct {
	// MatchLimit caps matches produced by a reactive run for a new request.
	MatchLimit int
	// FanoutCap bounds how many requests a new found item is matched against.
	FanoutCap int
	// FanoutConcurrency is the batch size of concurrent matching runs
	// during fan-out.
	FanoutConcurrency int
}

// Consumer reacts to document creation events. Every reaction is
// best-effort: failures are logged and never surface to the transport
// that published the event.
type Consumer struct {
	matcher  Matcher
	ensurer  EmbeddingEnsurer
	requests RequestLister
	cfg      Config
	logger   *zap.Logger
}

// NewConsumer creates a trigger consumer.
func NewConsumer(
	matcher Matcher,
	ensurer EmbeddingEnsurer,
	requests RequestLister,
	cfg Config,
	logger *zap.Logger,
) *Consumer {
	return &Consumer{
		matcher:  matcher,
		ensurer:  ensurer,
		requests: requests,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run consumes events until the channel closes or ctx is cancelled.
// Events are handled sequentially; concurrency lives inside the fan-out.
func (c *Consumer) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.handle(ctx, ev)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, ev Event) {
	switch ev.Collection {
	case domain.CollectionRequests:
		c.onRequestCreated(ctx, ev.ID)
	case domain.CollectionFound:
		c.onFoundCreated(ctx, ev.ID)
	default:
		c.logger.Warn("Trigger event for unknown collection",
			zap.String("collection", string(ev.Collection)),
			zap.String("id", ev.ID))
	}
}

// onRequestCreated runs an immediate small matching pass for the new request.
func (c *Consumer) onRequestCreated(ctx context.Context, requestID string) {
	_, err := c.matcher.MatchRequest(ctx, requestID, matching.Options{
		Limit:  c.cfg.MatchLimit,
		Origin: matching.OriginRequestCreated,
	})
	if err != nil {
		c.logger.Error("Reactive matching for new request failed",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}

// onFoundCreated embeds the new found item, then re-matches open requests
// against the grown inventory. The item's embedding is computed first so
// the fan-out runs do not race each other into the provider for the same
// text.
func (c *Consumer) onFoundCreated(ctx context.Context, foundID string) {
	if _, err := c.ensurer.Ensure(ctx, domain.CollectionFound, foundID); err != nil {
		c.logger.Error("Embedding new found item failed",
			zap.String("found_id", foundID),
			zap.Error(err))
		return
	}

	ids, err := c.requests.RequestIDs(ctx, c.cfg.FanoutCap)
	if err != nil {
		c.logger.Error("Listing requests for fan-out failed",
			zap.String("found_id", foundID),
			zap.Error(err))
		return
	}
	if len(ids) == 0 {
		return
	}

	size := c.cfg.FanoutConcurrency
	if size <= 0 {
		size = 1
	}

	var failed int
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}

		var wg sync.WaitGroup
		var mu sync.Mutex
		for _, requestID := range ids[start:end] {
			requestID := requestID
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := c.matcher.MatchRequest(ctx, requestID, matching.Options{
					Limit:  c.cfg.MatchLimit,
					Origin: matching.OriginFoundCreated,
				})
				if err != nil {
					mu.Lock()
					failed++
					mu.Unlock()
					c.logger.Warn("Fan-out matching run failed",
						zap.String("request_id", requestID),
						zap.String("found_id", foundID),
						zap.Error(err))
				}
			}()
		}
		wg.Wait()

		if ctx.Err() != nil {
			return
		}
	}

	c.logger.Info("Fan-out completed",
		zap.String("found_id", foundID),
		zap.Int("requests", len(ids)),
		zap.Int("failed", failed))
}

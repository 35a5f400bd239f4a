package events

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/seleknir/webrecorder/api/schemas"
)

// Classifier attaches purpose/category context to a single captured event.
// Implementations are expected to be safe for concurrent use.
type Classifier interface {
	Classify(ctx context.Context, ev schemas.NetworkEvent) (*schemas.AIContext, error)
}

// Enrich runs the classifier over every event through a bounded worker pool.
// Classification of one event never depends on another, so the calls fan out
// freely; results are keyed by original index and reassembled in order, which
// keeps the log's before/after ordering invariant intact even though the
// producing calls complete out of order.
//
// A failed classification leaves that event without context; it never fails
// the batch.
func Enrich(ctx context.Context, logger *zap.Logger, events []schemas.NetworkEvent, c Classifier, workers int) []schemas.NetworkEvent {
	if workers <= 0 {
		workers = 1
	}

	enriched := make([]schemas.NetworkEvent, len(events))
	copy(enriched, events)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range enriched {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			aiCtx, err := c.Classify(gctx, enriched[i])
			if err != nil {
				logger.Debug("Event classification failed, leaving event unenriched.",
					zap.String("url", enriched[i].URL), zap.Error(err))
				return nil
			}
			enriched[i].AIContext = aiCtx
			return nil
		})
	}

	// Workers only ever return nil; the group is used for bounding and
	// context propagation.
	_ = g.Wait()
	return enriched
}

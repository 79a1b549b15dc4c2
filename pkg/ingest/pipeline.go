package ingest

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/subsquid/spray/pkg/broadcast"
	"github.com/subsquid/spray/pkg/geyser"
	"github.com/subsquid/spray/pkg/log"
	"github.com/subsquid/spray/pkg/metrics"
)

// Pipeline runs one geyser Worker per configured source, merges their
// output through a single dedupe stage, and publishes admitted messages.
type Pipeline struct {
	workers   []*geyser.Worker
	publisher *broadcast.Publisher[Message]
}

// New constructs a Pipeline from a set of upstream source configurations.
func New(sources []geyser.Config) *Pipeline {
	workers := make([]*geyser.Worker, 0, len(sources))
	for _, cfg := range sources {
		workers = append(workers, geyser.NewWorker(cfg))
	}
	return &Pipeline{
		workers:   workers,
		publisher: broadcast.NewPublisher[Message](0),
	}
}

// Subscribe returns a new broadcast subscriber of admitted, normalized
// messages.
func (p *Pipeline) Subscribe() *broadcast.Subscriber[Message] {
	return p.publisher.Subscribe()
}

// Unsubscribe detaches a previously subscribed consumer.
func (p *Pipeline) Unsubscribe(s *broadcast.Subscriber[Message]) {
	p.publisher.Unsubscribe(s)
}

// Run starts every source worker and the dedupe stage, and blocks until one
// worker's first session fails or ctx is cancelled. A source worker is
// fatal only if it never received a single update; once at least one
// update has flowed, later session failures are logged and retried with
// backoff and do not end the pipeline.
func (p *Pipeline) Run(ctx context.Context) error {
	raw := make(chan geyser.SourceMessage, broadcast.DefaultCapacity)

	dedupeDone := make(chan struct{})
	go func() {
		defer close(dedupeDone)
		runDedupe(raw, p.emit, p.onMappingError)
	}()

	group, gctx := errgroup.WithContext(ctx)
	for _, w := range p.workers {
		w := w
		group.Go(func() error {
			err := w.Run(gctx, raw)
			if err != nil {
				metrics.DataSourceErrors.WithLabelValues(w.Name()).Inc()
			}
			return err
		})
	}

	// Workers are the only writers to raw; once every worker goroutine has
	// returned it is safe to close raw, which lets the dedupe goroutine's
	// range loop drain and exit.
	err := group.Wait()
	close(raw)
	<-dedupeDone
	p.publisher.Close()
	return err
}

func (p *Pipeline) emit(source string, msg Message) {
	switch {
	case msg.Block != nil:
		metrics.BlocksPublished.WithLabelValues(source).Inc()
		metrics.LastBlock.Set(float64(msg.Block.Slot))
		metrics.LastBlockTimestamp.Set(float64(msg.Block.Timestamp))
	case msg.Transaction != nil:
		metrics.TransactionsPublished.WithLabelValues(source).Inc()
	}
	p.publisher.Publish(msg)
}

func (p *Pipeline) onMappingError(source string) {
	metrics.MappingErrors.WithLabelValues(source).Inc()
	logger := log.WithSource(source)
	logger.Warn().Msg("dropping transaction: mapping failed")
}

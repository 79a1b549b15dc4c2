// Package rpcserver exposes the ingest pipeline over JSON-RPC 2.0: one
// server-initiated subscription method, spraySubscribe, delivering
// sprayNotification messages until the client unsubscribes or the upstream
// pipeline closes.
package rpcserver

import (
	"context"

	"github.com/subsquid/spray/pkg/broadcast"
	"github.com/subsquid/spray/pkg/filter"
	"github.com/subsquid/spray/pkg/ingest"
	"github.com/subsquid/spray/pkg/log"
	"github.com/subsquid/spray/pkg/query"
	"github.com/subsquid/spray/pkg/render"
	"github.com/subsquid/spray/pkg/types"
)

// blockEmitGap is the minimum slot distance between two heartbeat block
// emissions when the subscriber has not requested every block.
const blockEmitGap = 5

// subscription holds one accepted spraySubscribe call's state: its field
// selection, compiled filter, and the two emission watermarks.
type subscription struct {
	id               string
	fields           query.Fields
	compiled         *filter.Filter
	includeAllBlocks bool

	lastEmittedBlock  uint64
	haveEmittedBlock  bool
	lastNonEmptyBlock uint64
	haveNonEmptyBlock bool
}

func newSubscription(id string, q *query.Query, compiled *filter.Filter) *subscription {
	return &subscription{
		id:               id,
		fields:           q.Fields,
		compiled:         compiled,
		includeAllBlocks: q.IncludeAllBlocks,
	}
}

// run drains sub's messages and writes the rendered payload of each one
// that survives the emission rules to sink, until ctx is cancelled (the
// client closed the connection) or the pipeline closes sub. A closed
// pipeline is delivered to the client as one final nil payload.
func (s *subscription) run(ctx context.Context, sub *broadcast.Subscriber[ingest.Message], sink func([]byte) error) error {
	logger := log.WithSubscription(s.id)
	for {
		val, lagged, closed, cancelled := sub.RecvCtx(ctx)
		if cancelled {
			return nil
		}
		if lagged > 0 {
			logger.Warn().Uint64("lagged", lagged).Msg("subscriber fell behind, resuming at head")
			continue
		}
		if closed {
			return sink(nil)
		}

		payload := s.render(val)
		if payload == nil {
			continue
		}
		if err := sink(payload); err != nil {
			return err
		}
	}
}

// render produces the wire payload for one ingest message, or nil if it
// should be skipped per the emission rules.
func (s *subscription) render(msg ingest.Message) []byte {
	switch {
	case msg.Block != nil:
		return s.renderBlock(msg.Block)
	case msg.Transaction != nil:
		return s.renderTransaction(msg.Transaction)
	default:
		return nil
	}
}

func (s *subscription) shouldEmitBlock(slot uint64) bool {
	if s.includeAllBlocks {
		return true
	}
	if s.haveNonEmptyBlock && s.lastNonEmptyBlock == slot {
		return true
	}
	if !s.haveEmittedBlock {
		return true
	}
	return s.lastEmittedBlock+blockEmitGap <= slot
}

func (s *subscription) renderBlock(b *types.BlockData) []byte {
	if !s.shouldEmitBlock(b.Slot) {
		return nil
	}
	s.lastEmittedBlock = b.Slot
	s.haveEmittedBlock = true

	w := render.Get()
	defer render.Put(w)
	render.RenderBlock(w, b, s.fields.Block)
	return copyBytes(w.Bytes())
}

func (s *subscription) renderTransaction(td *types.TransactionData) []byte {
	sel := s.compiled.Evaluate(td)
	if sel.IsEmpty() {
		return nil
	}
	s.lastNonEmptyBlock = td.Slot
	s.haveNonEmptyBlock = true

	w := render.Get()
	defer render.Put(w)
	render.RenderTransaction(w, td, s.fields, sel)
	return copyBytes(w.Bytes())
}

func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

package rpcserver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subsquid/spray/pkg/broadcast"
	"github.com/subsquid/spray/pkg/filter"
	"github.com/subsquid/spray/pkg/ingest"
	"github.com/subsquid/spray/pkg/query"
	"github.com/subsquid/spray/pkg/types"
)

func newTestSubscription(t *testing.T, q *query.Query) *subscription {
	compiled, err := filter.Compile(q)
	require.NoError(t, err)
	return newSubscription("test", q, compiled)
}

// TestRunStopsWhenContextCancelledWhileBlocked verifies that a subscription
// parked waiting for the next broadcast value is interrupted the moment its
// context is cancelled, instead of hanging until a value or close arrives.
func TestRunStopsWhenContextCancelledWhileBlocked(t *testing.T) {
	pub := broadcast.NewPublisher[ingest.Message](1)
	sub := pub.Subscribe()
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	s := newTestSubscription(t, &query.Query{})

	done := make(chan error, 1)
	go func() {
		done <- s.run(ctx, sub, func([]byte) error { return nil })
	}()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run did not return after context cancellation")
	}
}

func TestRunSendsFinalNilWhenPipelineCloses(t *testing.T) {
	pub := broadcast.NewPublisher[ingest.Message](1)
	sub := pub.Subscribe()

	s := newTestSubscription(t, &query.Query{})

	var received []byte
	var gotCall bool
	done := make(chan error, 1)
	go func() {
		done <- s.run(context.Background(), sub, func(payload []byte) error {
			received = payload
			gotCall = true
			return nil
		})
	}()

	pub.Close()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run did not return after publisher close")
	}
	assert.True(t, gotCall)
	assert.Nil(t, received)
}

func TestShouldEmitBlockFirstBlockAlwaysEmits(t *testing.T) {
	s := newTestSubscription(t, &query.Query{})
	assert.True(t, s.shouldEmitBlock(100))
}

func TestShouldEmitBlockRespectsGapUnlessIncludeAll(t *testing.T) {
	s := newTestSubscription(t, &query.Query{})
	assert.True(t, s.shouldEmitBlock(100))
	s.lastEmittedBlock = 100
	s.haveEmittedBlock = true

	assert.False(t, s.shouldEmitBlock(101))
	assert.True(t, s.shouldEmitBlock(105))
}

func TestShouldEmitBlockIncludeAllBypassesGap(t *testing.T) {
	s := newTestSubscription(t, &query.Query{IncludeAllBlocks: true})
	s.lastEmittedBlock = 100
	s.haveEmittedBlock = true

	assert.True(t, s.shouldEmitBlock(101))
}

func TestShouldEmitBlockNonEmptyBlockAlwaysEmitsRegardlessOfGap(t *testing.T) {
	s := newTestSubscription(t, &query.Query{})
	s.lastEmittedBlock = 100
	s.haveEmittedBlock = true
	s.lastNonEmptyBlock = 101
	s.haveNonEmptyBlock = true

	assert.True(t, s.shouldEmitBlock(101))
}

func TestRenderTransactionSkipsWhenSelectionEmpty(t *testing.T) {
	s := newTestSubscription(t, &query.Query{
		Instructions: []query.InstructionRequest{{ProgramID: []string{types.Base58Bytes{99}.String()}}},
	})
	td := types.NewTransactionData(1, 0, types.Transaction{}, nil, nil, nil, nil)

	assert.Nil(t, s.renderTransaction(td))
}

package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subsquid/spray/pkg/geyser"
)

func TestAdmitBlockAdvancesWatermark(t *testing.T) {
	d := newDedupe()

	assert.True(t, d.admitBlock(10))
	assert.Equal(t, uint64(11), d.slot)

	// A duplicate or stale block at the same or an earlier slot is rejected.
	assert.False(t, d.admitBlock(10))
	assert.False(t, d.admitBlock(5))

	assert.True(t, d.admitBlock(11))
}

func TestAdmitTransactionDedupesWithinSlot(t *testing.T) {
	d := newDedupe()

	assert.True(t, d.admitTransaction(5, 0))
	assert.True(t, d.admitTransaction(5, 1))
	// Same slot, same index: duplicate.
	assert.False(t, d.admitTransaction(5, 0))
}

func TestAdmitTransactionAdvancingSlotClearsMask(t *testing.T) {
	d := newDedupe()

	require.True(t, d.admitTransaction(5, 0))
	require.True(t, d.admitTransaction(6, 0))
	// Index 0 was already seen at slot 5, but slot 6 started with a clean
	// mask, so index 0 was admitted again above; index 1 is admitted too.
	assert.True(t, d.admitTransaction(6, 1))
}

func TestAdmitTransactionRejectsStaleSlot(t *testing.T) {
	d := newDedupe()

	require.True(t, d.admitTransaction(10, 0))
	assert.False(t, d.admitTransaction(9, 0))
}

func TestGrowMaskHeuristic(t *testing.T) {
	tests := []struct {
		name      string
		initial   int
		index     uint64
		wantAtLeast int
	}{
		{name: "index within capacity: no growth", initial: 8, index: 3, wantAtLeast: 8},
		{name: "index just past capacity", initial: 8, index: 8, wantAtLeast: 16},
		{name: "index far past capacity: grows to fit", initial: 8, index: 100, wantAtLeast: 101},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &dedupe{received: make([]bool, tt.initial)}
			d.growMask(tt.index)
			assert.GreaterOrEqual(t, len(d.received), tt.wantAtLeast)
			assert.Greater(t, len(d.received), int(tt.index))
		})
	}
}

func TestRunDedupeEmitsAdmittedBlocksAndTransactions(t *testing.T) {
	in := make(chan geyser.SourceMessage, 10)
	in <- geyser.SourceMessage{Source: "mainnet", Block: &geyser.RawBlockMeta{Slot: 1}}
	in <- geyser.SourceMessage{Source: "mainnet", Block: &geyser.RawBlockMeta{Slot: 1}} // duplicate of the block above
	// The admitted block moved the watermark to slot 2, so the transaction
	// belongs to slot 2.
	in <- geyser.SourceMessage{Source: "mainnet", Transaction: &geyser.RawTransactionUpdate{
		Slot: 2, Index: 0,
		Transaction: &geyser.RawTransaction{Message: &geyser.RawMessage{}},
		Meta:        &geyser.RawTransactionMeta{},
	}}
	close(in)

	var emitted []Message
	runDedupe(in, func(source string, msg Message) {
		assert.Equal(t, "mainnet", source)
		emitted = append(emitted, msg)
	}, func(source string) {
		t.Fatalf("unexpected mapping error for source %q", source)
	})

	require.Len(t, emitted, 2)
	assert.NotNil(t, emitted[0].Block)
	assert.NotNil(t, emitted[1].Transaction)
}

func TestRunDedupeDropsMappingFailuresWithoutEmitting(t *testing.T) {
	in := make(chan geyser.SourceMessage, 1)
	in <- geyser.SourceMessage{Source: "mainnet", Transaction: &geyser.RawTransactionUpdate{
		Slot: 1, Index: 0,
		Transaction: nil, // missing message: mapper must fail
		Meta:        &geyser.RawTransactionMeta{},
	}}
	close(in)

	var mappingErrors int
	runDedupe(in, func(string, Message) {
		t.Fatal("should not emit on mapping failure")
	}, func(source string) {
		mappingErrors++
		assert.Equal(t, "mainnet", source)
	})

	assert.Equal(t, 1, mappingErrors)
}

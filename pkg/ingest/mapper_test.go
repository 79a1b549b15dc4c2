package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subsquid/spray/pkg/geyser"
	"github.com/subsquid/spray/pkg/types"
)

func TestMapTransactionRequiresMessageAndMeta(t *testing.T) {
	tests := []struct {
		name string
		tu   *geyser.RawTransactionUpdate
	}{
		{name: "missing transaction", tu: &geyser.RawTransactionUpdate{Meta: &geyser.RawTransactionMeta{}}},
		{
			name: "missing message",
			tu:   &geyser.RawTransactionUpdate{Transaction: &geyser.RawTransaction{}, Meta: &geyser.RawTransactionMeta{}},
		},
		{
			name: "missing meta",
			tu: &geyser.RawTransactionUpdate{
				Transaction: &geyser.RawTransaction{Message: &geyser.RawMessage{}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := mapTransaction(tt.tu)
			assert.Error(t, err)
		})
	}
}

func TestMapTransactionLegacyVersionTag(t *testing.T) {
	tu := &geyser.RawTransactionUpdate{
		Slot: 1, Index: 0,
		Transaction: &geyser.RawTransaction{
			Signatures: [][]byte{{1, 2, 3}},
			Message:    &geyser.RawMessage{Versioned: false, AccountKeys: [][]byte{{9}}},
		},
		Meta: &geyser.RawTransactionMeta{},
	}

	td, err := mapTransaction(tu)
	require.NoError(t, err)
	assert.True(t, td.Header.Version.Legacy)
}

func TestMapTransactionVersionedTag(t *testing.T) {
	tu := &geyser.RawTransactionUpdate{
		Slot: 1, Index: 0,
		Transaction: &geyser.RawTransaction{
			Message: &geyser.RawMessage{Versioned: true, AccountKeys: [][]byte{{9}}},
		},
		Meta: &geyser.RawTransactionMeta{},
	}

	td, err := mapTransaction(tu)
	require.NoError(t, err)
	assert.False(t, td.Header.Version.Legacy)
}

func TestMapTransactionAccountsConcatenation(t *testing.T) {
	tu := &geyser.RawTransactionUpdate{
		Transaction: &geyser.RawTransaction{
			Message: &geyser.RawMessage{AccountKeys: [][]byte{{1}, {2}}},
		},
		Meta: &geyser.RawTransactionMeta{
			LoadedWritableAddresses: [][]byte{{3}},
			LoadedReadonlyAddresses: [][]byte{{4}},
		},
	}

	td, err := mapTransaction(tu)
	require.NoError(t, err)
	require.Len(t, td.Accounts, 4)
	assert.Equal(t, []byte{1}, []byte(td.Accounts[0]))
	assert.Equal(t, []byte{2}, []byte(td.Accounts[1]))
	assert.Equal(t, []byte{3}, []byte(td.Accounts[2]))
	assert.Equal(t, []byte{4}, []byte(td.Accounts[3]))
}

func TestMapTransactionReassemblesInnerInstructionsPreOrder(t *testing.T) {
	height2 := uint32(2)
	tu := &geyser.RawTransactionUpdate{
		Transaction: &geyser.RawTransaction{
			Message: &geyser.RawMessage{
				AccountKeys: [][]byte{{1}},
				Instructions: []geyser.RawCompiledInstruction{
					{ProgramIDIndex: 0},
					{ProgramIDIndex: 0},
				},
			},
		},
		Meta: &geyser.RawTransactionMeta{
			InnerInstructions: []geyser.RawInnerInstructionGroup{
				{
					Index: 0,
					Instructions: []geyser.RawInnerInstruction{
						{ProgramIDIndex: 0, StackHeight: &height2},
					},
				},
			},
		},
	}

	td, err := mapTransaction(tu)
	require.NoError(t, err)
	require.Len(t, td.Instructions, 3)
	assert.Equal(t, types.InstructionAddress{0}, td.Instructions[0].Address)
	assert.Equal(t, types.InstructionAddress{0, 0}, td.Instructions[1].Address)
	assert.Equal(t, types.InstructionAddress{1}, td.Instructions[2].Address)
}

func TestMapTransactionIsCommittedReflectsTransactionError(t *testing.T) {
	tests := []struct {
		name        string
		errJSON     []byte
		isCommitted bool
	}{
		{name: "succeeded: every instruction committed", errJSON: nil, isCommitted: true},
		{name: "failed: every instruction uncommitted", errJSON: []byte(`{"InstructionError":[0,"Custom"]}`), isCommitted: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tu := &geyser.RawTransactionUpdate{
				Transaction: &geyser.RawTransaction{
					Message: &geyser.RawMessage{
						AccountKeys:  [][]byte{{1}},
						Instructions: []geyser.RawCompiledInstruction{{ProgramIDIndex: 0}},
					},
				},
				Meta: &geyser.RawTransactionMeta{ErrJSON: tt.errJSON},
			}
			td, err := mapTransaction(tu)
			require.NoError(t, err)
			require.Len(t, td.Instructions, 1)
			assert.Equal(t, tt.isCommitted, td.Instructions[0].IsCommitted)
		})
	}
}

func TestMapBlockCopiesAllFields(t *testing.T) {
	height := uint64(42)
	b := mapBlock(&geyser.RawBlockMeta{
		Slot: 10, Hash: []byte{1}, ParentSlot: 9, ParentHash: []byte{2},
		Height: &height, Timestamp: 100,
	})

	assert.Equal(t, uint64(10), b.Slot)
	assert.Equal(t, uint64(9), b.ParentSlot)
	assert.Equal(t, &height, b.Height)
	assert.Equal(t, int64(100), b.Timestamp)
}

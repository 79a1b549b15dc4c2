package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subsquid/spray/pkg/query"
	"github.com/subsquid/spray/pkg/types"
)

// buildTx constructs a TransactionData whose instruction addresses form the
// tree: 0, [0,0], [0,0,0], [0,1], 1, 2.
func buildTx() *types.TransactionData {
	mk := func(addr types.InstructionAddress, programIdx, accountIdx int) types.Instruction {
		return types.Instruction{Address: addr, ProgramIDIdx: programIdx, Accounts: []int{accountIdx}, IsCommitted: true}
	}
	accounts := []types.Base58Bytes{{10}, {11}, {12}, {13}, {14}, {15}}
	instructions := []types.Instruction{
		mk(types.InstructionAddress{0}, 0, 0),
		mk(types.InstructionAddress{0, 0}, 1, 1),
		mk(types.InstructionAddress{0, 0, 0}, 2, 2),
		mk(types.InstructionAddress{0, 1}, 1, 3),
		mk(types.InstructionAddress{1}, 0, 4),
		mk(types.InstructionAddress{2}, 0, 5),
	}
	return types.NewTransactionData(1, 0, types.Transaction{}, instructions, nil, nil, accounts)
}

func TestEvaluateInnerClosureSelectsDescendantsOnly(t *testing.T) {
	td := buildTx()
	q := &query.Query{
		Instructions: []query.InstructionRequest{
			{
				A0: []string{types.Base58Bytes{11}.String()}, // matches instruction at address [0,0]
				InstructionRelations: query.InstructionRelations{InnerInstructions: true},
			},
		},
	}
	f, err := Compile(q)
	require.NoError(t, err)

	sel := f.Evaluate(td)
	assert.ElementsMatch(t, []int{1, 2}, sel.Instructions.Indices())
}

func TestEvaluateParentClosureSelectsAncestorsOnly(t *testing.T) {
	td := buildTx()
	q := &query.Query{
		Instructions: []query.InstructionRequest{
			{
				A0: []string{types.Base58Bytes{12}.String()}, // matches instruction at address [0,0,0]
				InstructionRelations: query.InstructionRelations{ParentInstructions: true},
			},
		},
	}
	f, err := Compile(q)
	require.NoError(t, err)

	sel := f.Evaluate(td)
	assert.ElementsMatch(t, []int{0, 1, 2}, sel.Instructions.Indices())
}

func TestEvaluateTransactionRequestPullsAllInstructions(t *testing.T) {
	td := buildTx()
	q := &query.Query{
		Transactions: []query.TransactionRequest{
			{TransactionRelations: query.TransactionRelations{Instructions: true}},
		},
	}
	f, err := Compile(q)
	require.NoError(t, err)

	sel := f.Evaluate(td)
	assert.True(t, sel.Transaction)
	assert.True(t, sel.Instructions.IncludeAll())
	assert.ElementsMatch(t, []int{0, 1, 2, 3, 4, 5}, sel.Instructions.Indices())
}

func TestEvaluateEmptyListPredicateIsUnsatisfiable(t *testing.T) {
	td := buildTx()
	q := &query.Query{
		Transactions: []query.TransactionRequest{
			{FeePayer: []string{}}, // present but empty: unsatisfiable, dropped at compile time
		},
	}
	f, err := Compile(q)
	require.NoError(t, err)

	sel := f.Evaluate(td)
	assert.True(t, sel.IsEmpty())
}

func TestEvaluateNoMatchYieldsEmptySelection(t *testing.T) {
	td := buildTx()
	q := &query.Query{
		Instructions: []query.InstructionRequest{
			{ProgramID: []string{types.Base58Bytes{99}.String()}},
		},
	}
	f, err := Compile(q)
	require.NoError(t, err)

	sel := f.Evaluate(td)
	assert.True(t, sel.IsEmpty())
}

func TestEvaluateLogsFlagSetFromTransactionRequest(t *testing.T) {
	td := buildTx()
	q := &query.Query{
		Transactions: []query.TransactionRequest{
			{TransactionRelations: query.TransactionRelations{Logs: true}},
		},
	}
	f, err := Compile(q)
	require.NoError(t, err)

	sel := f.Evaluate(td)
	assert.True(t, sel.Logs)
}

func TestItemSelectionIncludeAllIsSticky(t *testing.T) {
	sel := NewItemSelection(3)
	sel.Add(0)
	sel.SetIncludeAll()
	sel.Add(1) // no-op: include-all already subsumes everything

	assert.True(t, sel.Has(0))
	assert.True(t, sel.Has(2))
	assert.False(t, sel.IsEmpty())
	assert.ElementsMatch(t, []int{0, 1, 2}, sel.Indices())
}

func TestItemSelectionIsEmptyWithZeroLength(t *testing.T) {
	sel := NewItemSelection(0)
	sel.SetIncludeAll()
	assert.True(t, sel.IsEmpty())
}

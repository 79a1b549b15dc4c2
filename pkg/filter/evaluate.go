package filter

import "github.com/subsquid/spray/pkg/types"

// Evaluate runs the four-stage selection algorithm against one transaction
// and returns the resulting SelectedItems.
func (f *Filter) Evaluate(td *types.TransactionData) SelectedItems {
	sel := SelectedItems{
		Instructions:  NewItemSelection(len(td.Instructions)),
		Balances:      NewItemSelection(len(td.Balances)),
		TokenBalances: NewItemSelection(len(td.TokenBalances)),
	}

	// Stage 1: transaction requests against the transaction as a whole.
	for _, req := range f.transactions {
		if req.match(td) {
			sel.Transaction = true
			if req.mask&RelInstructions != 0 {
				sel.Instructions.SetIncludeAll()
			}
			if req.mask&RelBalances != 0 {
				sel.Balances.SetIncludeAll()
			}
			if req.mask&RelTokenBalances != 0 {
				sel.TokenBalances.SetIncludeAll()
			}
			if req.mask&RelLogs != 0 {
				sel.Logs = true
			}
		}
	}

	// Stage 2: instruction requests, per instruction.
	for i := range td.Instructions {
		ins := &td.Instructions[i]
		var matchedMask RelationMask
		matched := false
		for _, req := range f.instructions {
			if req.match(td, ins) {
				matched = true
				matchedMask |= req.mask
			}
		}
		if !matched {
			continue
		}
		sel.Instructions.Add(i)
		if matchedMask&RelTransaction != 0 {
			sel.Transaction = true
		}
		if matchedMask&RelBalances != 0 {
			sel.Balances.SetIncludeAll()
		}
		if matchedMask&RelTokenBalances != 0 {
			sel.TokenBalances.SetIncludeAll()
		}
		if matchedMask&RelTransactionInstructions != 0 {
			sel.Instructions.SetIncludeAll()
		}
		if matchedMask&RelLogs != 0 {
			sel.Logs = true
		}
		if !sel.Instructions.IncludeAll() {
			if matchedMask&RelInnerInstructions != 0 {
				addInnerSubtree(td, i, &sel.Instructions)
			}
			if matchedMask&RelParentInstructions != 0 {
				addParentChain(td, i, &sel.Instructions)
			}
		}
	}

	// Stage 3: balance requests, per balance.
	for i := range td.Balances {
		bal := &td.Balances[i]
		for _, req := range f.balances {
			if req.match(td, bal) {
				sel.Balances.Add(i)
				if req.mask&RelTransaction != 0 {
					sel.Transaction = true
				}
				if req.mask&RelTransactionInstructions != 0 {
					sel.Instructions.SetIncludeAll()
				}
			}
		}
	}

	// Stage 4: token balance requests, per token balance.
	for i := range td.TokenBalances {
		tb := &td.TokenBalances[i]
		for _, req := range f.tokenBalances {
			if req.match(td, tb) {
				sel.TokenBalances.Add(i)
				if req.mask&RelTransaction != 0 {
					sel.Transaction = true
				}
				if req.mask&RelTransactionInstructions != 0 {
					sel.Instructions.SetIncludeAll()
				}
			}
		}
	}

	return sel
}

// addInnerSubtree walks forward from the instruction at index i while the
// successor's address is a strict-prefix descendant of i's address,
// stopping at the first non-descendant.
func addInnerSubtree(td *types.TransactionData, i int, sel *ItemSelection) {
	addr := td.Instructions[i].Address
	for j := i + 1; j < len(td.Instructions); j++ {
		if !addr.IsStrictPrefix(td.Instructions[j].Address) {
			break
		}
		sel.Add(j)
	}
}

// addParentChain walks backward from index i, marking each ancestor whose
// address length decreases by exactly one step, until reaching length 1.
func addParentChain(td *types.TransactionData, i int, sel *ItemSelection) {
	addr := td.Instructions[i].Address
	wantLen := len(addr) - 1
	for j := i - 1; j >= 0 && wantLen >= 1; j-- {
		cand := td.Instructions[j].Address
		if len(cand) == wantLen && cand.IsStrictPrefix(addr) {
			sel.Add(j)
			wantLen--
		}
	}
}

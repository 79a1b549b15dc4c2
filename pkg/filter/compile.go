package filter

import (
	"github.com/subsquid/spray/pkg/query"
	"github.com/subsquid/spray/pkg/types"
)

func stringSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// compiledTransactionRequest is a match predicate plus the relation mask it
// contributes on match. An empty list-valued predicate makes the whole
// request unsatisfiable, per the request algebra; such requests are
// dropped at compile time rather than carried as always-false closures.
type compiledTransactionRequest struct {
	match func(*types.TransactionData) bool
	mask  RelationMask
}

type compiledInstructionRequest struct {
	match func(*types.TransactionData, *types.Instruction) bool
	mask  RelationMask
}

type compiledBalanceRequest struct {
	match func(*types.TransactionData, *types.Balance) bool
	mask  RelationMask
}

type compiledTokenBalanceRequest struct {
	match func(*types.TransactionData, *types.TokenBalance) bool
	mask  RelationMask
}

// Filter is a compiled query, ready to evaluate against transactions.
type Filter struct {
	transactions  []compiledTransactionRequest
	instructions  []compiledInstructionRequest
	balances      []compiledBalanceRequest
	tokenBalances []compiledTokenBalanceRequest
}

func transactionRelationMask(r query.TransactionRelations) RelationMask {
	var m RelationMask
	if r.Instructions {
		m |= RelInstructions
	}
	if r.Balances {
		m |= RelBalances
	}
	if r.TokenBalances {
		m |= RelTokenBalances
	}
	if r.Logs {
		m |= RelLogs
	}
	return m
}

func instructionRelationMask(r query.InstructionRelations) RelationMask {
	var m RelationMask
	if r.Transaction {
		m |= RelTransaction
	}
	if r.TransactionInstructions {
		m |= RelTransactionInstructions
	}
	if r.TransactionBalances {
		m |= RelBalances
	}
	if r.TransactionTokenBalances {
		m |= RelTokenBalances
	}
	if r.InnerInstructions {
		m |= RelInnerInstructions
	}
	if r.ParentInstructions {
		m |= RelParentInstructions
	}
	if r.Logs {
		m |= RelLogs
	}
	return m
}

func balanceRelationMask(r query.BalanceRelations) RelationMask {
	var m RelationMask
	if r.Transaction {
		m |= RelTransaction
	}
	if r.TransactionInstructions {
		m |= RelTransactionInstructions
	}
	return m
}

// Compile builds a Filter from a query. Requests with an empty list-valued
// predicate are unsatisfiable and are skipped entirely, per §4.4.
func Compile(q *query.Query) (*Filter, error) {
	f := &Filter{}

	for i := range q.Transactions {
		req := q.Transactions[i]
		cr, ok := compileTransactionRequest(&req)
		if ok {
			f.transactions = append(f.transactions, cr)
		}
	}
	for i := range q.Instructions {
		req := q.Instructions[i]
		cr, ok := compileInstructionRequest(&req)
		if ok {
			f.instructions = append(f.instructions, cr)
		}
	}
	for i := range q.Balances {
		req := q.Balances[i]
		cr, ok := compileBalanceRequest(&req)
		if ok {
			f.balances = append(f.balances, cr)
		}
	}
	for i := range q.TokenBalances {
		req := q.TokenBalances[i]
		cr, ok := compileTokenBalanceRequest(&req)
		if ok {
			f.tokenBalances = append(f.tokenBalances, cr)
		}
	}
	return f, nil
}

func compileTransactionRequest(r *query.TransactionRequest) (compiledTransactionRequest, bool) {
	var preds []func(*types.TransactionData) bool

	if r.FeePayer != nil {
		if len(r.FeePayer) == 0 {
			return compiledTransactionRequest{}, false
		}
		set := stringSet(r.FeePayer)
		preds = append(preds, func(td *types.TransactionData) bool {
			payer, ok := td.FeePayer()
			if !ok {
				return false
			}
			_, matched := set[payer.String()]
			return matched
		})
	}
	if r.MentionsAccount != nil {
		if len(r.MentionsAccount) == 0 {
			return compiledTransactionRequest{}, false
		}
		set := stringSet(r.MentionsAccount)
		preds = append(preds, func(td *types.TransactionData) bool {
			for _, acc := range td.Accounts {
				if _, ok := set[acc.String()]; ok {
					return true
				}
			}
			return false
		})
	}

	return compiledTransactionRequest{
		match: func(td *types.TransactionData) bool {
			for _, p := range preds {
				if !p(td) {
					return false
				}
			}
			return true
		},
		mask: transactionRelationMask(r.TransactionRelations),
	}, true
}

func compileInstructionRequest(r *query.InstructionRequest) (compiledInstructionRequest, bool) {
	var preds []func(*types.TransactionData, *types.Instruction) bool

	if r.ProgramID != nil {
		if len(r.ProgramID) == 0 {
			return compiledInstructionRequest{}, false
		}
		set := stringSet(r.ProgramID)
		preds = append(preds, func(td *types.TransactionData, ins *types.Instruction) bool {
			_, ok := set[ins.ProgramID().String()]
			return ok
		})
	}
	if r.Discriminator != nil {
		prefixes := query.ParseDiscriminator(r.Discriminator)
		if len(prefixes) == 0 {
			// An empty set (empty list, or every prefix malformed)
			// makes the whole request unsatisfiable: it is dropped and
			// never matches.
			return compiledInstructionRequest{}, false
		}
		preds = append(preds, func(td *types.TransactionData, ins *types.Instruction) bool {
			for _, p := range prefixes {
				if hasPrefix(ins.Data, p) {
					return true
				}
			}
			return false
		})
	}
	if r.MentionsAccount != nil {
		if len(r.MentionsAccount) == 0 {
			return compiledInstructionRequest{}, false
		}
		set := stringSet(r.MentionsAccount)
		preds = append(preds, func(td *types.TransactionData, ins *types.Instruction) bool {
			return ins.MentionsAccount(set)
		})
	}
	positional := r.Positional()
	for n, list := range positional {
		if list == nil {
			continue
		}
		if len(list) == 0 {
			return compiledInstructionRequest{}, false
		}
		set := stringSet(list)
		idx := n
		preds = append(preds, func(td *types.TransactionData, ins *types.Instruction) bool {
			acc, ok := ins.Account(idx)
			if !ok {
				return false
			}
			_, matched := set[acc.String()]
			return matched
		})
	}
	if r.IsCommitted != nil {
		want := *r.IsCommitted
		preds = append(preds, func(td *types.TransactionData, ins *types.Instruction) bool {
			return ins.IsCommitted == want
		})
	}

	return compiledInstructionRequest{
		match: func(td *types.TransactionData, ins *types.Instruction) bool {
			for _, p := range preds {
				if !p(td, ins) {
					return false
				}
			}
			return true
		},
		mask: instructionRelationMask(r.InstructionRelations),
	}, true
}

func compileBalanceRequest(r *query.BalanceRequest) (compiledBalanceRequest, bool) {
	var preds []func(*types.TransactionData, *types.Balance) bool

	if r.Account != nil {
		if len(r.Account) == 0 {
			return compiledBalanceRequest{}, false
		}
		set := stringSet(r.Account)
		preds = append(preds, func(td *types.TransactionData, b *types.Balance) bool {
			_, ok := set[td.Accounts[b.Account].String()]
			return ok
		})
	}

	return compiledBalanceRequest{
		match: func(td *types.TransactionData, b *types.Balance) bool {
			for _, p := range preds {
				if !p(td, b) {
					return false
				}
			}
			return true
		},
		mask: balanceRelationMask(r.BalanceRelations),
	}, true
}

func compileTokenBalanceRequest(r *query.TokenBalanceRequest) (compiledTokenBalanceRequest, bool) {
	var preds []func(*types.TransactionData, *types.TokenBalance) bool

	addStringPred := func(values []string, get func(*types.TokenBalance) (types.Base58Bytes, bool)) bool {
		if values == nil {
			return true
		}
		if len(values) == 0 {
			return false
		}
		set := stringSet(values)
		preds = append(preds, func(td *types.TransactionData, tb *types.TokenBalance) bool {
			v, ok := get(tb)
			if !ok {
				return false
			}
			_, matched := set[v.String()]
			return matched
		})
		return true
	}

	if r.Account != nil {
		if len(r.Account) == 0 {
			return compiledTokenBalanceRequest{}, false
		}
		set := stringSet(r.Account)
		preds = append(preds, func(td *types.TransactionData, tb *types.TokenBalance) bool {
			_, ok := set[td.Accounts[tb.Account].String()]
			return ok
		})
	}
	if !addStringPred(r.PreMint, func(tb *types.TokenBalance) (types.Base58Bytes, bool) {
		if tb.Pre == nil {
			return nil, false
		}
		return tb.Pre.Mint, true
	}) {
		return compiledTokenBalanceRequest{}, false
	}
	if !addStringPred(r.PostMint, func(tb *types.TokenBalance) (types.Base58Bytes, bool) {
		if tb.Post == nil {
			return nil, false
		}
		return tb.Post.Mint, true
	}) {
		return compiledTokenBalanceRequest{}, false
	}
	if !addStringPred(r.PreProgramID, func(tb *types.TokenBalance) (types.Base58Bytes, bool) {
		if tb.Pre == nil {
			return nil, false
		}
		return tb.Pre.ProgramID, true
	}) {
		return compiledTokenBalanceRequest{}, false
	}
	if !addStringPred(r.PostProgramID, func(tb *types.TokenBalance) (types.Base58Bytes, bool) {
		if tb.Post == nil {
			return nil, false
		}
		return tb.Post.ProgramID, true
	}) {
		return compiledTokenBalanceRequest{}, false
	}
	if !addStringPred(r.PreOwner, func(tb *types.TokenBalance) (types.Base58Bytes, bool) {
		if tb.Pre == nil {
			return nil, false
		}
		return tb.Pre.Owner, true
	}) {
		return compiledTokenBalanceRequest{}, false
	}
	if !addStringPred(r.PostOwner, func(tb *types.TokenBalance) (types.Base58Bytes, bool) {
		if tb.Post == nil {
			return nil, false
		}
		return tb.Post.Owner, true
	}) {
		return compiledTokenBalanceRequest{}, false
	}

	return compiledTokenBalanceRequest{
		match: func(td *types.TransactionData, tb *types.TokenBalance) bool {
			for _, p := range preds {
				if !p(td, tb) {
					return false
				}
			}
			return true
		},
		mask: balanceRelationMask(r.BalanceRelations),
	}, true
}

func hasPrefix(data, prefix []byte) bool {
	if len(prefix) > len(data) {
		return false
	}
	for i, b := range prefix {
		if data[i] != b {
			return false
		}
	}
	return true
}

package ingest

import (
	"fmt"
	"strconv"

	"github.com/subsquid/spray/pkg/geyser"
	"github.com/subsquid/spray/pkg/render"
	"github.com/subsquid/spray/pkg/types"
)

func mapBlock(b *geyser.RawBlockMeta) *types.BlockData {
	return &types.BlockData{
		Slot:       b.Slot,
		Hash:       types.Base58Bytes(b.Hash),
		ParentSlot: b.ParentSlot,
		ParentHash: types.Base58Bytes(b.ParentHash),
		Height:     b.Height,
		Timestamp:  b.Timestamp,
	}
}

// mapTransaction converts a raw transaction update into the normalized
// TransactionData. It fails if a required substructure is missing; the
// caller counts the failure and drops the transaction.
func mapTransaction(tu *geyser.RawTransactionUpdate) (*types.TransactionData, error) {
	if tu.Transaction == nil {
		return nil, fmt.Errorf("missing transaction")
	}
	msg := tu.Transaction.Message
	if msg == nil {
		return nil, fmt.Errorf("missing transaction.message")
	}
	if tu.Meta == nil {
		return nil, fmt.Errorf("missing transaction.meta")
	}

	accounts := buildAccounts(msg, tu.Meta)

	header := buildHeader(msg, tu.Meta, tu.Transaction.Signatures)
	instructions := buildInstructions(msg, tu.Meta, header.Err != "")
	balances := buildBalances(tu.Meta)
	tokenBalances := buildTokenBalances(tu.Meta)

	return types.NewTransactionData(tu.Slot, tu.Index, header, instructions, balances, tokenBalances, accounts), nil
}

// buildAccounts concatenates message.account_keys, then
// meta.loaded_writable_addresses, then meta.loaded_readonly_addresses.
func buildAccounts(msg *geyser.RawMessage, meta *geyser.RawTransactionMeta) []types.Base58Bytes {
	accounts := make([]types.Base58Bytes, 0, len(msg.AccountKeys)+len(meta.LoadedWritableAddresses)+len(meta.LoadedReadonlyAddresses))
	for _, a := range msg.AccountKeys {
		accounts = append(accounts, types.Base58Bytes(a))
	}
	for _, a := range meta.LoadedWritableAddresses {
		accounts = append(accounts, types.Base58Bytes(a))
	}
	for _, a := range meta.LoadedReadonlyAddresses {
		accounts = append(accounts, types.Base58Bytes(a))
	}
	return accounts
}

func buildHeader(msg *geyser.RawMessage, meta *geyser.RawTransactionMeta, signatures [][]byte) types.Transaction {
	version := types.VersionLegacy
	if msg.Versioned {
		version = types.Version{Legacy: false, Num: 0}
	}

	h := types.Transaction{
		Version:                     version,
		NumRequiredSignatures:       msg.Header.NumRequiredSignatures,
		NumReadonlySignedAccounts:   msg.Header.NumReadonlySignedAccounts,
		NumReadonlyUnsignedAccounts: msg.Header.NumReadonlyUnsignedAccounts,
		RecentBlockhash:             types.Base58Bytes(msg.RecentBlockhash),
		Fee:                         meta.Fee,
		ComputeUnitsConsumed:        meta.ComputeUnitsConsumed,
	}
	if len(meta.ErrJSON) > 0 {
		h.Err = types.JsonFragment(meta.ErrJSON)
	}
	h.Signatures = renderSignatures(signatures)
	h.AddressTableLookups = renderAddressTableLookups(msg.AddressTableLookups)
	h.LoadedAddresses = renderLoadedAddresses(meta.LoadedWritableAddresses, meta.LoadedReadonlyAddresses)
	return h
}

// renderSignatures renders the signatures array once, at mapping time.
// Called from buildHeader with the real transaction's signatures.
func renderSignatures(sigs [][]byte) types.JsonFragment {
	w := render.Get()
	defer render.Put(w)
	w.BeginArray()
	for _, s := range sigs {
		w.Base58(s)
		w.Comma()
	}
	w.EndArray()
	return types.JsonFragment(w.String())
}

func renderAddressTableLookups(lookups []geyser.RawAddressTableLookup) types.JsonFragment {
	w := render.Get()
	defer render.Put(w)
	w.BeginArray()
	for _, l := range lookups {
		w.BeginObject()
		w.SafeProp("accountKey")
		w.Base58(l.AccountKey)
		w.Comma()
		w.SafeProp("writableIndexes")
		writeByteArray(w, l.WritableIndexes)
		w.Comma()
		w.SafeProp("readonlyIndexes")
		writeByteArray(w, l.ReadonlyIndexes)
		w.Comma()
		w.EndObject()
		w.Comma()
	}
	w.EndArray()
	return types.JsonFragment(w.String())
}

func writeByteArray(w *render.Writer, bs []byte) {
	w.BeginArray()
	for _, b := range bs {
		w.Number(int64(b))
		w.Comma()
	}
	w.EndArray()
}

func renderLoadedAddresses(writable, readonly [][]byte) types.JsonFragment {
	w := render.Get()
	defer render.Put(w)
	w.BeginObject()
	w.SafeProp("writable")
	w.BeginArray()
	for _, a := range writable {
		w.Base58(a)
		w.Comma()
	}
	w.EndArray()
	w.Comma()
	w.SafeProp("readonly")
	w.BeginArray()
	for _, a := range readonly {
		w.Base58(a)
		w.Comma()
	}
	w.EndArray()
	w.Comma()
	w.EndObject()
	return types.JsonFragment(w.String())
}

// buildInstructions reassembles top-level and inner instructions into a
// single pre-order sequence, per the instruction-address invariant.
func buildInstructions(msg *geyser.RawMessage, meta *geyser.RawTransactionMeta, hasErr bool) []types.Instruction {
	innerBySource := make(map[uint32][]geyser.RawInnerInstruction, len(meta.InnerInstructions))
	for _, group := range meta.InnerInstructions {
		innerBySource[group.Index] = group.Instructions
	}

	var out []types.Instruction
	for i, ci := range msg.Instructions {
		addr := types.InstructionAddress{i}
		out = append(out, types.Instruction{
			Address:      addr,
			ProgramIDIdx: int(ci.ProgramIDIndex),
			Accounts:     byteIndices(ci.Accounts),
			Data:         ci.Data,
			DataBase58:   types.Base58Bytes(ci.Data),
			IsCommitted:  !hasErr,
		})

		prev := addr
		for _, inner := range innerBySource[uint32(i)] {
			height := 2
			if inner.StackHeight != nil {
				height = int(*inner.StackHeight)
			}
			next := types.NextAddress(prev, height)
			out = append(out, types.Instruction{
				Address:      next,
				ProgramIDIdx: int(inner.ProgramIDIndex),
				Accounts:     byteIndices(inner.Accounts),
				Data:         inner.Data,
				DataBase58:   types.Base58Bytes(inner.Data),
				IsCommitted:  !hasErr,
			})
			prev = next
		}
	}
	return out
}

func byteIndices(b []byte) []int {
	out := make([]int, len(b))
	for i, v := range b {
		out[i] = int(v)
	}
	return out
}

func buildBalances(meta *geyser.RawTransactionMeta) []types.Balance {
	n := len(meta.PreBalances)
	if len(meta.PostBalances) > n {
		n = len(meta.PostBalances)
	}
	out := make([]types.Balance, 0, n)
	for i := 0; i < n; i++ {
		var pre, post uint64
		if i < len(meta.PreBalances) {
			pre = meta.PreBalances[i]
		}
		if i < len(meta.PostBalances) {
			post = meta.PostBalances[i]
		}
		out = append(out, types.Balance{Account: i, Pre: pre, Post: post})
	}
	return out
}

func buildTokenBalances(meta *geyser.RawTransactionMeta) []types.TokenBalance {
	byAccount := make(map[uint32]*types.TokenBalance)
	var order []uint32

	get := func(idx uint32) *types.TokenBalance {
		if tb, ok := byAccount[idx]; ok {
			return tb
		}
		tb := &types.TokenBalance{Account: int(idx)}
		byAccount[idx] = tb
		order = append(order, idx)
		return tb
	}

	for _, raw := range meta.PreTokenBalances {
		tb := get(raw.AccountIndex)
		tb.Pre = tokenBalanceSide(raw)
	}
	for _, raw := range meta.PostTokenBalances {
		tb := get(raw.AccountIndex)
		tb.Post = tokenBalanceSide(raw)
	}

	out := make([]types.TokenBalance, 0, len(order))
	for _, idx := range order {
		out = append(out, *byAccount[idx])
	}
	return out
}

func tokenBalanceSide(raw geyser.RawTokenBalance) *types.TokenBalanceSide {
	side := &types.TokenBalanceSide{
		ProgramID: mustDecodeBase58(raw.ProgramID),
		Owner:     mustDecodeBase58(raw.Owner),
		Mint:      mustDecodeBase58(raw.Mint),
	}
	if raw.UiTokenAmount != nil {
		side.Decimals = raw.UiTokenAmount.Decimals
		if amt, err := strconv.ParseUint(raw.UiTokenAmount.Amount, 10, 64); err == nil {
			side.Amount = amt
		}
	}
	return side
}

func mustDecodeBase58(s string) types.Base58Bytes {
	b, err := types.DecodeBase58(s)
	if err != nil {
		return nil
	}
	return b
}

package geyser

import (
	"encoding/json"
	"fmt"

	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
)

// ErrMissingField reports a required path missing from an upstream update,
// per the per-session error naming required in the Source Worker contract.
type ErrMissingField struct {
	Path string
}

func (e *ErrMissingField) Error() string {
	return fmt.Sprintf("missing required field: %s", e.Path)
}

// convertBlockMeta converts a SubscribeUpdateBlockMeta into a RawBlockMeta.
func convertBlockMeta(u *pb.SubscribeUpdateBlockMeta) *RawBlockMeta {
	b := &RawBlockMeta{
		Slot:       u.GetSlot(),
		Hash:       []byte(u.GetBlockhash()),
		ParentSlot: u.GetParentSlot(),
		ParentHash: []byte(u.GetParentBlockhash()),
	}
	if bh := u.GetBlockHeight(); bh != nil {
		h := bh.GetBlockHeight()
		b.Height = &h
	}
	if ts := u.GetBlockTime(); ts != nil {
		b.Timestamp = ts.GetTimestamp()
	}
	return b
}

// convertTransaction converts a SubscribeUpdateTransaction into a
// RawTransactionUpdate, naming the first missing required path it
// encounters.
func convertTransaction(u *pb.SubscribeUpdateTransaction) (*RawTransactionUpdate, error) {
	info := u.GetTransaction()
	if info == nil {
		return nil, &ErrMissingField{Path: "transaction"}
	}
	txn := info.GetTransaction()
	if txn == nil {
		return nil, &ErrMissingField{Path: "transaction.transaction"}
	}
	msg := txn.GetMessage()
	if msg == nil {
		return nil, &ErrMissingField{Path: "transaction.transaction.message"}
	}
	header := msg.GetHeader()
	if header == nil {
		return nil, &ErrMissingField{Path: "transaction.transaction.message.header"}
	}
	meta := info.GetMeta()
	if meta == nil {
		return nil, &ErrMissingField{Path: "transaction.meta"}
	}

	rawMsg := &RawMessage{
		Header: RawMessageHeader{
			NumRequiredSignatures:       uint8(header.GetNumRequiredSignatures()),
			NumReadonlySignedAccounts:   uint8(header.GetNumReadonlySignedAccounts()),
			NumReadonlyUnsignedAccounts: uint8(header.GetNumReadonlyUnsignedAccounts()),
		},
		AccountKeys:     msg.GetAccountKeys(),
		RecentBlockhash: msg.GetRecentBlockhash(),
		Versioned:       msg.GetVersioned(),
	}
	for _, ci := range msg.GetInstructions() {
		rawMsg.Instructions = append(rawMsg.Instructions, RawCompiledInstruction{
			ProgramIDIndex: ci.GetProgramIdIndex(),
			Accounts:       ci.GetAccounts(),
			Data:           ci.GetData(),
		})
	}
	for _, lut := range msg.GetAddressTableLookups() {
		rawMsg.AddressTableLookups = append(rawMsg.AddressTableLookups, RawAddressTableLookup{
			AccountKey:      lut.GetAccountKey(),
			WritableIndexes: lut.GetWritableIndexes(),
			ReadonlyIndexes: lut.GetReadonlyIndexes(),
		})
	}

	rawMeta := &RawTransactionMeta{
		Fee:                     meta.GetFee(),
		LogMessages:             meta.GetLogMessages(),
		LoadedWritableAddresses: meta.GetLoadedWritableAddresses(),
		LoadedReadonlyAddresses: meta.GetLoadedReadonlyAddresses(),
		PreBalances:             meta.GetPreBalances(),
		PostBalances:            meta.GetPostBalances(),
	}
	if e := meta.GetErr(); e != nil {
		if encoded, err := json.Marshal(map[string]string{"err": fmt.Sprintf("%v", e.GetErr())}); err == nil {
			rawMeta.ErrJSON = encoded
		}
	}
	if cu := meta.GetComputeUnitsConsumed(); cu != 0 || meta.ComputeUnitsConsumed != nil {
		v := cu
		rawMeta.ComputeUnitsConsumed = &v
	}
	for _, group := range meta.GetInnerInstructions() {
		g := RawInnerInstructionGroup{Index: group.GetIndex()}
		for _, ii := range group.GetInstructions() {
			entry := RawInnerInstruction{
				ProgramIDIndex: ii.GetProgramIdIndex(),
				Accounts:       ii.GetAccounts(),
				Data:           ii.GetData(),
			}
			if sh := ii.GetStackHeight(); sh != 0 {
				v := sh
				entry.StackHeight = &v
			}
			g.Instructions = append(g.Instructions, entry)
		}
		rawMeta.InnerInstructions = append(rawMeta.InnerInstructions, g)
	}
	for _, tb := range meta.GetPreTokenBalances() {
		rawMeta.PreTokenBalances = append(rawMeta.PreTokenBalances, convertTokenBalance(tb))
	}
	for _, tb := range meta.GetPostTokenBalances() {
		rawMeta.PostTokenBalances = append(rawMeta.PostTokenBalances, convertTokenBalance(tb))
	}

	return &RawTransactionUpdate{
		Slot:  u.GetSlot(),
		Index: info.GetIndex(),
		Transaction: &RawTransaction{
			Signatures: txn.GetSignatures(),
			Message:    rawMsg,
		},
		Meta: rawMeta,
	}, nil
}

func convertTokenBalance(tb *pb.TokenBalance) RawTokenBalance {
	out := RawTokenBalance{
		AccountIndex: tb.GetAccountIndex(),
		Mint:         tb.GetMint(),
		Owner:        tb.GetOwner(),
		ProgramID:    tb.GetProgramId(),
	}
	if amt := tb.GetUiTokenAmount(); amt != nil {
		out.UiTokenAmount = &RawUiTokenAmount{
			Amount:   amt.GetAmount(),
			Decimals: uint8(amt.GetDecimals()),
		}
	}
	return out
}

// Package geyser maintains one long-lived gRPC subscription per upstream
// and forwards block-meta and transaction updates to the dedupe stage. It
// is the only package that imports the upstream protobuf types; everything
// downstream consumes the simplified Raw* shapes defined here.
package geyser

// RawBlockMeta is the minimal shape the dedupe stage and mapper need from a
// SubscribeUpdateBlockMeta.
type RawBlockMeta struct {
	Slot       uint64
	Hash       []byte
	ParentSlot uint64
	ParentHash []byte
	Height     *uint64
	Timestamp  int64
}

// RawMessageHeader mirrors solana_storage.MessageHeader.
type RawMessageHeader struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

// RawCompiledInstruction mirrors solana_storage.CompiledInstruction.
type RawCompiledInstruction struct {
	ProgramIDIndex uint32
	Accounts       []byte
	Data           []byte
}

// RawInnerInstruction mirrors solana_storage.InnerInstruction.
type RawInnerInstruction struct {
	ProgramIDIndex uint32
	Accounts       []byte
	Data           []byte
	StackHeight    *uint32
}

// RawInnerInstructionGroup mirrors solana_storage.InnerInstructions: all
// inner instructions invoked (transitively) by one top-level instruction.
type RawInnerInstructionGroup struct {
	Index        uint32
	Instructions []RawInnerInstruction
}

// RawAddressTableLookup mirrors solana_storage.MessageAddressTableLookup.
type RawAddressTableLookup struct {
	AccountKey      []byte
	WritableIndexes []byte
	ReadonlyIndexes []byte
}

// RawMessage mirrors solana_storage.Message.
type RawMessage struct {
	Header              RawMessageHeader
	AccountKeys         [][]byte
	RecentBlockhash     []byte
	Instructions        []RawCompiledInstruction
	Versioned           bool
	AddressTableLookups []RawAddressTableLookup
}

// RawUiTokenAmount mirrors solana_storage.UiTokenAmount.
type RawUiTokenAmount struct {
	Amount   string
	Decimals uint8
}

// RawTokenBalance mirrors solana_storage.TokenBalance.
type RawTokenBalance struct {
	AccountIndex  uint32
	Mint          string
	Owner         string
	ProgramID     string
	UiTokenAmount *RawUiTokenAmount
}

// RawTransactionMeta mirrors solana_storage.TransactionStatusMeta.
type RawTransactionMeta struct {
	ErrJSON                  []byte // nil when the transaction succeeded
	Fee                      uint64
	InnerInstructions        []RawInnerInstructionGroup
	LogMessages              []string
	PreTokenBalances         []RawTokenBalance
	PostTokenBalances        []RawTokenBalance
	LoadedWritableAddresses  [][]byte
	LoadedReadonlyAddresses  [][]byte
	ComputeUnitsConsumed     *uint64
	PreBalances              []uint64
	PostBalances             []uint64
}

// RawTransaction mirrors solana_storage.Transaction.
type RawTransaction struct {
	Signatures [][]byte
	Message    *RawMessage
}

// RawTransactionUpdate is the minimal shape the dedupe stage needs, plus
// the full payload the mapper consumes once dedupe admits it.
type RawTransactionUpdate struct {
	Slot        uint64
	Index       uint64
	Transaction *RawTransaction
	Meta        *RawTransactionMeta
}

// SourceMessage is one update from one upstream, tagged with its symbolic
// source name.
type SourceMessage struct {
	Source      string
	Block       *RawBlockMeta
	Transaction *RawTransactionUpdate
}

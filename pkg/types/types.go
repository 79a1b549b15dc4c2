// Package types holds the normalized, render-ready shapes that flow from the
// dedupe stage to every subscriber. Values are built once by the mapper and
// shared by reference; nothing here is mutated after construction.
package types

import (
	"github.com/mr-tron/base58"
)

// Base58Bytes is a byte string whose canonical external representation is
// base58. The zero value (nil) encodes as the empty string.
type Base58Bytes []byte

// String base58-encodes the value on demand. The renderer writes values
// through render.Writer.Base58 instead.
func (b Base58Bytes) String() string {
	return base58.Encode(b)
}

// DecodeBase58 decodes a base58 string into a Base58Bytes value.
func DecodeBase58(s string) (Base58Bytes, error) {
	decoded, err := base58.Decode(s)
	if err != nil {
		return nil, err
	}
	return Base58Bytes(decoded), nil
}

// JsonFragment is a precomputed JSON substring (object, array, or scalar),
// assembled once at mapping time and spliced verbatim into every
// subscriber's notification.
type JsonFragment string

// Version tags the transaction message format: legacy, or a numeric
// version tag.
type Version struct {
	Legacy bool
	Num    uint8
}

// VersionLegacy is shared whenever upstream marks a message unversioned.
var VersionLegacy = Version{Legacy: true}

// BlockData is one immutable value per slot, broadcast as a shared
// read-only reference.
type BlockData struct {
	Slot       uint64
	Hash       Base58Bytes
	ParentSlot uint64
	ParentHash Base58Bytes
	Height     *uint64
	Timestamp  int64 // epoch seconds; 0 when upstream omits it
}

// Transaction is the header record of a TransactionData.
type Transaction struct {
	Version                     Version
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
	RecentBlockhash             Base58Bytes
	Signatures                  JsonFragment
	Err                         JsonFragment // empty when the transaction succeeded
	ComputeUnitsConsumed        *uint64
	Fee                         uint64
	AddressTableLookups         JsonFragment
	LoadedAddresses             JsonFragment
}

// InstructionAddress is a stack path of indices locating an instruction in
// the call tree. Top-level instructions have length 1.
type InstructionAddress []int

// IsStrictPrefix reports whether a is a strict (proper, non-equal) prefix of
// b. The filter's inner-subtree walk relies on this.
func (a InstructionAddress) IsStrictPrefix(b InstructionAddress) bool {
	if len(a) >= len(b) {
		return false
	}
	for i, v := range a {
		if b[i] != v {
			return false
		}
	}
	return true
}

// Equal reports structural equality.
func (a InstructionAddress) Equal(b InstructionAddress) bool {
	if len(a) != len(b) {
		return false
	}
	for i, v := range a {
		if b[i] != v {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (a InstructionAddress) Clone() InstructionAddress {
	out := make(InstructionAddress, len(a))
	copy(out, a)
	return out
}

// NextAddress computes the address of an inner instruction given the
// previously emitted address and the inner instruction's stack height: if
// the path is already that length, its last element increments; if it is
// one shorter, a 0 is appended.
func NextAddress(prev InstructionAddress, stackHeight int) InstructionAddress {
	switch {
	case len(prev) == stackHeight:
		next := prev.Clone()
		next[len(next)-1]++
		return next
	case len(prev) == stackHeight-1:
		next := make(InstructionAddress, stackHeight)
		copy(next, prev)
		next[stackHeight-1] = 0
		return next
	default:
		next := make(InstructionAddress, stackHeight)
		n := len(prev)
		if n > stackHeight {
			n = stackHeight
		}
		copy(next, prev[:n])
		return next
	}
}

// Instruction is one entry in a transaction's pre-order instruction
// traversal.
type Instruction struct {
	Address      InstructionAddress
	ProgramIDIdx int
	Accounts     []int
	DataBase58   Base58Bytes
	Data         []byte
	IsCommitted  bool

	// tx is the owning transaction, shared by reference so account and
	// program lookups stay O(1) without duplicating the accounts slice.
	tx *TransactionData
}

// ProgramID resolves the instruction's program account.
func (i *Instruction) ProgramID() Base58Bytes {
	return i.tx.Accounts[i.ProgramIDIdx]
}

// Account resolves the n-th account referenced by the instruction, or false
// if it has fewer than n+1 accounts.
func (i *Instruction) Account(n int) (Base58Bytes, bool) {
	if n < 0 || n >= len(i.Accounts) {
		return nil, false
	}
	return i.tx.Accounts[i.Accounts[n]], true
}

// MentionsAccount reports whether any of the instruction's accounts is a
// member of set (keyed by base58 string).
func (i *Instruction) MentionsAccount(set map[string]struct{}) bool {
	for _, idx := range i.Accounts {
		if _, ok := set[i.tx.Accounts[idx].String()]; ok {
			return true
		}
	}
	return false
}

// Balance is a native-lamport pre/post pair for one account.
type Balance struct {
	Account int // index into TransactionData.Accounts
	Pre     uint64
	Post    uint64
}

// TokenBalanceSide is the pre- or post- half of a TokenBalance.
type TokenBalanceSide struct {
	Mint      Base58Bytes
	Decimals  uint8
	ProgramID Base58Bytes
	Owner     Base58Bytes
	Amount    uint64
}

// TokenBalance is an optional pre/post tuple of SPL token account state.
type TokenBalance struct {
	Account int // index into TransactionData.Accounts
	Pre     *TokenBalanceSide
	Post    *TokenBalanceSide
}

// TransactionData is produced once by the mapper and shared among all
// subscribers by reference; none may mutate it.
type TransactionData struct {
	Slot             uint64
	TransactionIndex uint64
	Header           Transaction
	Instructions     []Instruction
	Balances         []Balance
	TokenBalances    []TokenBalance
	Accounts         []Base58Bytes
}

// NewTransactionData constructs a TransactionData and wires each
// instruction's owning-transaction back-pointer.
func NewTransactionData(slot, txIndex uint64, header Transaction, instructions []Instruction, balances []Balance, tokenBalances []TokenBalance, accounts []Base58Bytes) *TransactionData {
	td := &TransactionData{
		Slot:             slot,
		TransactionIndex: txIndex,
		Header:           header,
		Instructions:     instructions,
		Balances:         balances,
		TokenBalances:    tokenBalances,
		Accounts:         accounts,
	}
	for idx := range td.Instructions {
		td.Instructions[idx].tx = td
	}
	return td
}

// FeePayer is accounts[0], the conventional fee-payer account.
func (td *TransactionData) FeePayer() (Base58Bytes, bool) {
	if len(td.Accounts) == 0 {
		return nil, false
	}
	return td.Accounts[0], true
}

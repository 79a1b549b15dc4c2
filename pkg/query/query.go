// Package query defines the declarative subscription query record clients
// send to spraySubscribe: a field-selection tree plus disjunctive lists of
// per-item-kind requests.
package query

import (
	"encoding/json"
	"fmt"
)

// MaxItemRequests is the combined limit across all four request lists.
const MaxItemRequests = 100

// Fields selects which properties to render per item kind.
type Fields struct {
	Transaction  TransactionFields  `json:"transaction,omitempty"`
	Instruction  InstructionFields  `json:"instruction,omitempty"`
	Balance      BalanceFields      `json:"balance,omitempty"`
	TokenBalance TokenBalanceFields `json:"tokenBalance,omitempty"`
	Block        BlockFields        `json:"block,omitempty"`
}

// TransactionFields selects which transaction-header properties to render.
type TransactionFields struct {
	Version                     bool `json:"version,omitempty"`
	NumRequiredSignatures       bool `json:"numRequiredSignatures,omitempty"`
	NumReadonlySignedAccounts   bool `json:"numReadonlySignedAccounts,omitempty"`
	NumReadonlyUnsignedAccounts bool `json:"numReadonlyUnsignedAccounts,omitempty"`
	RecentBlockhash             bool `json:"recentBlockhash,omitempty"`
	Signatures                  bool `json:"signatures,omitempty"`
	Err                         bool `json:"err,omitempty"`
	ComputeUnitsConsumed        bool `json:"computeUnitsConsumed,omitempty"`
	Fee                         bool `json:"fee,omitempty"`
	AddressTableLookups         bool `json:"addressTableLookups,omitempty"`
	LoadedAddresses             bool `json:"loadedAddresses,omitempty"`
	Accounts                    bool `json:"accounts,omitempty"`
}

// InstructionFields selects which instruction properties to render.
type InstructionFields struct {
	InstructionAddress bool `json:"instructionAddress,omitempty"`
	ProgramID           bool `json:"programId,omitempty"`
	Accounts            bool `json:"accounts,omitempty"`
	Data                bool `json:"data,omitempty"`
	IsCommitted         bool `json:"isCommitted,omitempty"`
}

// BalanceFields selects which balance properties to render.
type BalanceFields struct {
	Account bool `json:"account,omitempty"`
	Pre     bool `json:"pre,omitempty"`
	Post    bool `json:"post,omitempty"`
}

// TokenBalanceFields selects which token-balance properties to render.
type TokenBalanceFields struct {
	Account   bool `json:"account,omitempty"`
	PreMint   bool `json:"preMint,omitempty"`
	PostMint  bool `json:"postMint,omitempty"`
	PreOwner  bool `json:"preOwner,omitempty"`
	PostOwner bool `json:"postOwner,omitempty"`
	PreProgramID  bool `json:"preProgramId,omitempty"`
	PostProgramID bool `json:"postProgramId,omitempty"`
	PreDecimals   bool `json:"preDecimals,omitempty"`
	PostDecimals  bool `json:"postDecimals,omitempty"`
	PreAmount     bool `json:"preAmount,omitempty"`
	PostAmount    bool `json:"postAmount,omitempty"`
}

// BlockFields selects which block-header properties to render.
type BlockFields struct {
	Number       bool `json:"number,omitempty"`
	Hash         bool `json:"hash,omitempty"`
	ParentNumber bool `json:"parentNumber,omitempty"`
	ParentHash   bool `json:"parentHash,omitempty"`
	Height       bool `json:"height,omitempty"`
	Timestamp    bool `json:"timestamp,omitempty"`
}

// AnySelected reports whether at least one block header field is selected.
func (f BlockFields) AnySelected() bool {
	return f.Number || f.Hash || f.ParentNumber || f.ParentHash || f.Height || f.Timestamp
}

// TransactionRelations is the set of related items a transaction request
// pulls in on match.
type TransactionRelations struct {
	Instructions  bool `json:"instructions,omitempty"`
	Balances      bool `json:"balances,omitempty"`
	TokenBalances bool `json:"tokenBalances,omitempty"`
	Logs          bool `json:"logs,omitempty"`
}

// TransactionRequest is one disjunct of the transactions[] list.
type TransactionRequest struct {
	FeePayer       []string `json:"feePayer,omitempty"`
	MentionsAccount []string `json:"mentionsAccount,omitempty"`
	TransactionRelations
}

// InstructionRelations is the set of related items an instruction request
// pulls in on match.
type InstructionRelations struct {
	Transaction           bool `json:"transaction,omitempty"`
	TransactionInstructions bool `json:"transactionInstructions,omitempty"`
	TransactionBalances     bool `json:"transactionBalances,omitempty"`
	TransactionTokenBalances bool `json:"transactionTokenBalances,omitempty"`
	InnerInstructions       bool `json:"innerInstructions,omitempty"`
	ParentInstructions      bool `json:"parentInstructions,omitempty"`
	Logs                    bool `json:"logs,omitempty"`
}

// InstructionRequest is one disjunct of the instructions[] list.
type InstructionRequest struct {
	ProgramID       []string `json:"programId,omitempty"`
	Discriminator   []string `json:"discriminator,omitempty"`
	MentionsAccount []string `json:"mentionsAccount,omitempty"`
	A0  []string `json:"a0,omitempty"`
	A1  []string `json:"a1,omitempty"`
	A2  []string `json:"a2,omitempty"`
	A3  []string `json:"a3,omitempty"`
	A4  []string `json:"a4,omitempty"`
	A5  []string `json:"a5,omitempty"`
	A6  []string `json:"a6,omitempty"`
	A7  []string `json:"a7,omitempty"`
	A8  []string `json:"a8,omitempty"`
	A9  []string `json:"a9,omitempty"`
	A10 []string `json:"a10,omitempty"`
	A11 []string `json:"a11,omitempty"`
	A12 []string `json:"a12,omitempty"`
	A13 []string `json:"a13,omitempty"`
	A14 []string `json:"a14,omitempty"`
	A15 []string `json:"a15,omitempty"`
	IsCommitted *bool `json:"isCommitted,omitempty"`
	InstructionRelations
}

// Positional returns the 16 positional account predicate slots in order.
func (r *InstructionRequest) Positional() [16][]string {
	return [16][]string{
		r.A0, r.A1, r.A2, r.A3, r.A4, r.A5, r.A6, r.A7,
		r.A8, r.A9, r.A10, r.A11, r.A12, r.A13, r.A14, r.A15,
	}
}

// BalanceRelations is the set of related items a balance request pulls in.
type BalanceRelations struct {
	Transaction           bool `json:"transaction,omitempty"`
	TransactionInstructions bool `json:"transactionInstructions,omitempty"`
}

// BalanceRequest is one disjunct of the balances[] list.
type BalanceRequest struct {
	Account []string `json:"account,omitempty"`
	BalanceRelations
}

// TokenBalanceRequest is one disjunct of the tokenBalances[] list.
type TokenBalanceRequest struct {
	Account       []string `json:"account,omitempty"`
	PreMint       []string `json:"preMint,omitempty"`
	PostMint      []string `json:"postMint,omitempty"`
	PreProgramID  []string `json:"preProgramId,omitempty"`
	PostProgramID []string `json:"postProgramId,omitempty"`
	PreOwner      []string `json:"preOwner,omitempty"`
	PostOwner     []string `json:"postOwner,omitempty"`
	BalanceRelations
}

// Query is the single positional parameter of spraySubscribe.
type Query struct {
	Fields           Fields                `json:"fields,omitempty"`
	IncludeAllBlocks bool                  `json:"includeAllBlocks,omitempty"`
	Transactions     []TransactionRequest  `json:"transactions,omitempty"`
	Instructions     []InstructionRequest  `json:"instructions,omitempty"`
	Balances         []BalanceRequest      `json:"balances,omitempty"`
	TokenBalances    []TokenBalanceRequest `json:"tokenBalances,omitempty"`
}

// Decode parses a query from JSON, rejecting unknown fields per the
// downstream protocol's deny_unknown_fields contract.
func Decode(data []byte) (*Query, error) {
	dec := json.NewDecoder(bytesReader(data))
	dec.DisallowUnknownFields()
	var q Query
	if err := dec.Decode(&q); err != nil {
		return nil, fmt.Errorf("decoding query: %w", err)
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return &q, nil
}

// Validate enforces the request-count bound. Individual unsatisfiable
// requests (an empty list-valued predicate) are not an error here; the
// filter compiler skips them silently per the request algebra.
func (q *Query) Validate() error {
	total := len(q.Transactions) + len(q.Instructions) + len(q.Balances) + len(q.TokenBalances)
	if total > MaxItemRequests {
		return fmt.Errorf("too many item requests: %d exceeds limit of %d", total, MaxItemRequests)
	}
	return nil
}

// ParseDiscriminator parses a set of 0x-prefixed hex byte strings used as
// instruction-data prefixes. A malformed entry (missing 0x prefix, odd hex
// length, non-hex digit) is rejected and silently dropped from the set; it
// does not affect any other entry. The caller treats a resulting empty set
// as unsatisfiable, the same as any other empty list-valued predicate.
func ParseDiscriminator(prefixes []string) [][]byte {
	if len(prefixes) == 0 {
		return nil
	}
	out := make([][]byte, 0, len(prefixes))
	for _, p := range prefixes {
		b, valid := parseHexPrefix(p)
		if !valid {
			continue
		}
		out = append(out, b)
	}
	return out
}

func parseHexPrefix(s string) ([]byte, bool) {
	if len(s) < 2 || s[0:2] != "0x" {
		return nil, false
	}
	hexPart := s[2:]
	if len(hexPart)%2 != 0 {
		return nil, false
	}
	out := make([]byte, len(hexPart)/2)
	for i := 0; i < len(out); i++ {
		hi, ok1 := hexDigit(hexPart[2*i])
		lo, ok2 := hexDigit(hexPart[2*i+1])
		if !ok1 || !ok2 {
			return nil, false
		}
		out[i] = hi<<4 | lo
	}
	return out, true
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}

// RenderHex renders a byte slice as a 0x-prefixed hex string, the inverse
// of parseHexPrefix.
func RenderHex(b []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, 2+2*len(b))
	out[0], out[1] = '0', 'x'
	for i, v := range b {
		out[2+2*i] = hexDigits[v>>4]
		out[2+2*i+1] = hexDigits[v&0xf]
	}
	return string(out)
}

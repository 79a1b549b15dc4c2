// Package ingest implements the pieces between the source workers and the
// fan-out broadcast: transaction normalization (mapper.go), multi-source
// dedupe (dedupe.go), and the supervisor wiring them together
// (pipeline.go).
package ingest

import "github.com/subsquid/spray/pkg/types"

// Message is the tagged union published to every subscriber: either a block
// or a transaction.
type Message struct {
	Block       *types.BlockData
	Transaction *types.TransactionData
}

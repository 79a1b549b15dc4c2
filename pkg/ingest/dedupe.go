package ingest

import "github.com/subsquid/spray/pkg/geyser"

// initialMaskCapacity is the dedupe mask's starting size in bits.
const initialMaskCapacity = 5000

// dedupe combines N source streams into one deduplicated stream with
// monotonic forward progress. It is owned exclusively by the pipeline's
// single dedupe goroutine; no locking is needed.
type dedupe struct {
	slot     uint64
	received []bool
}

func newDedupe() *dedupe {
	return &dedupe{received: make([]bool, initialMaskCapacity)}
}

// admitBlock reports whether a block update should be emitted, and advances
// the watermark and clears the mask when it does.
func (d *dedupe) admitBlock(slot uint64) bool {
	if slot < d.slot {
		return false
	}
	d.slot = slot + 1
	d.clearMask()
	return true
}

// admitTransaction reports whether a transaction update should be emitted.
func (d *dedupe) admitTransaction(slot, index uint64) bool {
	switch {
	case slot > d.slot:
		d.slot = slot
		d.clearMask()
	case slot < d.slot:
		return false
	}

	d.growMask(index)
	i := int(index)
	if d.received[i] {
		return false
	}
	d.received[i] = true
	return true
}

func (d *dedupe) clearMask() {
	for i := range d.received {
		d.received[i] = false
	}
}

// growMask grows the mask, when index i lies past its end, to
// max(i+1, len*2) entries (always strictly greater than i, unlike the
// upstream's max(i, len*2)).
func (d *dedupe) growMask(i uint64) {
	idx := int(i)
	if idx < len(d.received) {
		return
	}
	newLen := len(d.received) * 2
	if idx+1 > newLen {
		newLen = idx + 1
	}
	grown := make([]bool, newLen)
	copy(grown, d.received)
	d.received = grown
}

// runDedupe consumes raw source messages and emits admitted ones, mapping
// transactions before publish. It returns when in closes.
func runDedupe(in <-chan geyser.SourceMessage, emit func(source string, msg Message), onMappingError func(source string)) {
	d := newDedupe()
	for msg := range in {
		switch {
		case msg.Block != nil:
			if !d.admitBlock(msg.Block.Slot) {
				continue
			}
			emit(msg.Source, Message{Block: mapBlock(msg.Block)})
		case msg.Transaction != nil:
			tu := msg.Transaction
			if !d.admitTransaction(tu.Slot, tu.Index) {
				continue
			}
			td, err := mapTransaction(tu)
			if err != nil {
				onMappingError(msg.Source)
				continue
			}
			emit(msg.Source, Message{Transaction: td})
		}
	}
}

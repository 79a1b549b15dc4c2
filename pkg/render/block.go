package render

import (
	"github.com/subsquid/spray/pkg/query"
	"github.com/subsquid/spray/pkg/types"
)

// RenderBlock writes one block notification payload into w, restricted to
// the fields selected in f. The header object is omitted entirely when no
// header field is selected.
func RenderBlock(w *Writer, b *types.BlockData, f query.BlockFields) {
	w.BeginObject()
	w.SafeProp("type")
	w.SafeStr("block")
	w.Comma()
	w.SafeProp("slot")
	w.Number(int64(b.Slot))
	w.Comma()
	if f.AnySelected() {
		w.SafeProp("header")
		renderBlockHeader(w, b, f)
		w.Comma()
	}
	w.EndObject()
}

func renderBlockHeader(w *Writer, b *types.BlockData, f query.BlockFields) {
	w.BeginObject()
	if f.Number {
		w.SafeProp("number")
		w.Number(int64(b.Slot))
		w.Comma()
	}
	if f.Hash {
		w.SafeProp("hash")
		w.Base58(b.Hash)
		w.Comma()
	}
	if f.ParentNumber {
		w.SafeProp("parentNumber")
		w.Number(int64(b.ParentSlot))
		w.Comma()
	}
	if f.ParentHash {
		w.SafeProp("parentHash")
		w.Base58(b.ParentHash)
		w.Comma()
	}
	if f.Height {
		w.SafeProp("height")
		if b.Height != nil {
			w.NumberStr(*b.Height)
		} else {
			w.Null()
		}
		w.Comma()
	}
	if f.Timestamp {
		w.SafeProp("timestamp")
		w.Number(b.Timestamp)
		w.Comma()
	}
	w.EndObject()
}

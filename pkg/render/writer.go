// Package render assembles JSON notifications directly into a byte buffer,
// without going through encoding/json on the hot path. Every transaction and
// block notification is built from a small set of primitives so that the
// cost of rendering scales with what was actually selected, not with the
// full shape of the normalized model.
package render

import (
	"bytes"
	"strconv"
	"sync"

	"github.com/mr-tron/base58"
	"github.com/subsquid/spray/pkg/types"
)

// Writer is a streaming byte-level JSON writer. It is not safe for
// concurrent use; callers obtain one from the package pool per render call.
type Writer struct {
	buf bytes.Buffer
}

var writerPool = sync.Pool{
	New: func() any { return &Writer{} },
}

// Get returns a Writer from the pool, ready to use.
func Get() *Writer {
	w := writerPool.Get().(*Writer)
	w.buf.Reset()
	return w
}

// Put returns w to the pool.
func Put(w *Writer) {
	writerPool.Put(w)
}

// Bytes returns the accumulated buffer. The slice is only valid until the
// writer is reused via Put/Get.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// String copies the accumulated buffer into a new string.
func (w *Writer) String() string {
	return w.buf.String()
}

// Reset clears the buffer for reuse without returning to the pool.
func (w *Writer) Reset() {
	w.buf.Reset()
}

// BeginObject opens a JSON object.
func (w *Writer) BeginObject() { w.buf.WriteByte('{') }

// EndObject closes a JSON object, overwriting a trailing comma if present.
func (w *Writer) EndObject() { w.closeWith('}') }

// BeginArray opens a JSON array.
func (w *Writer) BeginArray() { w.buf.WriteByte('[') }

// EndArray closes a JSON array, overwriting a trailing comma if present.
func (w *Writer) EndArray() { w.closeWith(']') }

func (w *Writer) closeWith(b byte) {
	data := w.buf.Bytes()
	if n := len(data); n > 0 && data[n-1] == ',' {
		data[n-1] = b
		return
	}
	w.buf.WriteByte(b)
}

// Comma writes a trailing comma after an element. EndObject/EndArray
// overwrite the final one, so every element can unconditionally call Comma
// without checking whether it is last.
func (w *Writer) Comma() { w.buf.WriteByte(',') }

// SafeProp writes a property name known to need no escaping, followed by
// ':'. Callers must only use it for fixed, compile-time-known identifiers.
func (w *Writer) SafeProp(name string) {
	w.buf.WriteByte('"')
	w.buf.WriteString(name)
	w.buf.WriteString(`":`)
}

// SafeStr writes a string value known to need no escaping (e.g. a fixed
// enum tag) as a quoted JSON string.
func (w *Writer) SafeStr(s string) {
	w.buf.WriteByte('"')
	w.buf.WriteString(s)
	w.buf.WriteByte('"')
}

// Str writes a fully-escaped JSON string value.
func (w *Writer) Str(s string) {
	data, _ := jsonMarshalString(s)
	w.buf.Write(data)
}

// Number writes a JSON numeric literal.
func (w *Writer) Number(n int64) {
	w.buf.WriteString(strconv.FormatInt(n, 10))
}

// NumberStr writes a 64-bit value as a quoted decimal string, for values
// that may exceed JSON number precision (fee, compute units, lamport
// amounts).
func (w *Writer) NumberStr(n uint64) {
	w.buf.WriteByte('"')
	w.buf.WriteString(strconv.FormatUint(n, 10))
	w.buf.WriteByte('"')
}

// Base58 writes the base58 encoding of b into the buffer inside quotes. The
// encoding is built as an intermediate string before it is copied in.
func (w *Writer) Base58(b []byte) {
	w.buf.WriteByte('"')
	w.buf.WriteString(base58.Encode(b))
	w.buf.WriteByte('"')
}

// Raw injects a pre-rendered JSON fragment verbatim.
func (w *Writer) Raw(f types.JsonFragment) {
	if f == "" {
		w.buf.WriteString("null")
		return
	}
	w.buf.WriteString(string(f))
}

// Null writes the JSON null literal.
func (w *Writer) Null() { w.buf.WriteString("null") }

// Bool writes a JSON boolean literal.
func (w *Writer) Bool(v bool) {
	if v {
		w.buf.WriteString("true")
	} else {
		w.buf.WriteString("false")
	}
}

func jsonMarshalString(s string) ([]byte, error) {
	// Delegates to encoding/json only for the escaping table; this is off
	// the per-item hot path (string values are rare — mostly enum tags that
	// go through SafeStr instead).
	return jsonMarshal(s)
}

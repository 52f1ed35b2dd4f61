// Package gguftest builds small GGUF files for tests.
package gguftest

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/UnknownOlympus/magma/internal/gguf"
)

// value type tags written by this package.
const (
	typeUint32  uint32 = 4
	typeFloat32 uint32 = 6
	typeString  uint32 = 8
	typeArray   uint32 = 9
)

// Writer builds a metadata-only GGUF v3 file (no tensors). It is used to produce small
// model fixtures.
type Writer struct {
	kv    bytes.Buffer
	count uint64
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// String adds a string value.
func (w *Writer) String(key, value string) *Writer {
	w.key(key, typeString)
	w.str(value)
	return w
}

// Uint32 adds a uint32 value.
func (w *Writer) Uint32(key string, value uint32) *Writer {
	w.key(key, typeUint32)
	w.put(value)
	return w
}

// Float32 adds a float32 value.
func (w *Writer) Float32(key string, value float32) *Writer {
	w.key(key, typeFloat32)
	w.put(math.Float32bits(value))
	return w
}

// StringArray adds an array of strings.
func (w *Writer) StringArray(key string, values []string) *Writer {
	w.key(key, typeArray)
	w.put(typeString)
	w.put(uint64(len(values)))
	for _, v := range values {
		w.str(v)
	}
	return w
}

// Bytes returns the encoded file.
func (w *Writer) Bytes() []byte {
	var out bytes.Buffer
	_ = binary.Write(&out, binary.LittleEndian, gguf.Magic)
	_ = binary.Write(&out, binary.LittleEndian, uint32(3))
	_ = binary.Write(&out, binary.LittleEndian, uint64(0))
	_ = binary.Write(&out, binary.LittleEndian, w.count)
	out.Write(w.kv.Bytes())

	return out.Bytes()
}

func (w *Writer) key(key string, typ uint32) {
	w.count++
	w.str(key)
	w.put(typ)
}

func (w *Writer) str(s string) {
	w.put(uint64(len(s)))
	w.kv.WriteString(s)
}

func (w *Writer) put(v any) {
	_ = binary.Write(&w.kv, binary.LittleEndian, v)
}

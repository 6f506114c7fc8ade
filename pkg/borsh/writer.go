package borsh

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"
)

// Writer encodes Borsh primitives into a growing buffer.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the encoded bytes.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

func (w *Writer) WriteU8(v uint8) {
	w.buf.WriteByte(v)
}

func (w *Writer) WriteU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) WriteU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

// WriteU128 writes v as a little-endian 128-bit unsigned integer.
// A nil value encodes as zero.
func (w *Writer) WriteU128(v *big.Int) error {
	if v == nil {
		v = new(big.Int)
	}
	if v.Sign() < 0 {
		return fmt.Errorf("%w: negative value %s", ErrU128Range, v.String())
	}
	if v.BitLen() > 128 {
		return fmt.Errorf("%w: %s exceeds 128 bits", ErrU128Range, v.String())
	}
	be := v.FillBytes(make([]byte, 16))
	var le [16]byte
	for i := range be {
		le[15-i] = be[i]
	}
	w.buf.Write(le[:])
	return nil
}

func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf.WriteByte(1)
		return
	}
	w.buf.WriteByte(0)
}

// WriteFixed writes b without a length prefix.
func (w *Writer) WriteFixed(b []byte) {
	w.buf.Write(b)
}

// WriteBytes writes a u32 length-prefixed byte vector.
func (w *Writer) WriteBytes(b []byte) {
	w.WriteU32(uint32(len(b)))
	w.buf.Write(b)
}

// WriteString writes a u32 length-prefixed UTF-8 string.
func (w *Writer) WriteString(s string) {
	w.WriteU32(uint32(len(s)))
	w.buf.WriteString(s)
}

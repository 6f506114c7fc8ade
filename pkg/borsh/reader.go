/**
 * @description
 * Strict Borsh reader used to decode attacker-supplied ledger envelopes.
 * Every read is bounds-checked against the remaining input; lengths are never trusted
 * for allocation until the bytes are known to exist.
 */
package borsh

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"unicode/utf8"
)

// Reader decodes Borsh primitives from an in-memory buffer.
type Reader struct {
	data []byte
	off  int
}

// NewReader returns a Reader positioned at the start of data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Remaining reports how many bytes are left unread.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}

// Offset reports the current read position.
func (r *Reader) Offset() int {
	return r.off
}

func (r *Reader) take(n int, what string) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes for %s at offset %d, have %d", ErrUnexpectedEOF, n, what, r.off, r.Remaining())
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

// ReadU8 reads a single byte.
func (r *Reader) ReadU8() (uint8, error) {
	b, err := r.take(1, "u8")
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadU32 reads a little-endian uint32.
func (r *Reader) ReadU32() (uint32, error) {
	b, err := r.take(4, "u32")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadU64 reads a little-endian uint64.
func (r *Reader) ReadU64() (uint64, error) {
	b, err := r.take(8, "u64")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadU128 reads a little-endian 128-bit unsigned integer.
func (r *Reader) ReadU128() (*big.Int, error) {
	b, err := r.take(16, "u128")
	if err != nil {
		return nil, err
	}
	be := make([]byte, 16)
	for i := range b {
		be[15-i] = b[i]
	}
	return new(big.Int).SetBytes(be), nil
}

// ReadBool reads a bool, rejecting any byte other than 0 or 1.
func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadU8()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: 0x%02x", ErrInvalidBool, v)
	}
}

// ReadOption reads an Option tag and reports whether a value follows.
func (r *Reader) ReadOption() (bool, error) {
	v, err := r.ReadU8()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: 0x%02x", ErrInvalidOption, v)
	}
}

// ReadFixed reads exactly n bytes and returns a copy.
func (r *Reader) ReadFixed(n int) ([]byte, error) {
	b, err := r.take(n, "fixed array")
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// ReadBytes reads a u32 length-prefixed byte vector.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if int64(n) > int64(r.Remaining()) {
		return nil, fmt.Errorf("%w: byte vector declares %d bytes, %d remain", ErrLengthOverflow, n, r.Remaining())
	}
	return r.ReadFixed(int(n))
}

// ReadString reads a u32 length-prefixed UTF-8 string.
func (r *Reader) ReadString() (string, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", ErrInvalidUTF8
	}
	return string(b), nil
}

// ReadLength reads a u32 element count for a vector whose elements occupy at least
// minElemSize bytes each, rejecting counts the remaining input cannot hold.
func (r *Reader) ReadLength(minElemSize int) (int, error) {
	n, err := r.ReadU32()
	if err != nil {
		return 0, err
	}
	if minElemSize < 1 {
		minElemSize = 1
	}
	if int64(n)*int64(minElemSize) > int64(r.Remaining()) {
		return 0, fmt.Errorf("%w: vector declares %d elements, %d bytes remain", ErrLengthOverflow, n, r.Remaining())
	}
	return int(n), nil
}

// Finish returns an error if any input is left unread.
func (r *Reader) Finish() error {
	if r.Remaining() != 0 {
		return fmt.Errorf("%w: %d bytes after offset %d", ErrTrailingBytes, r.Remaining(), r.off)
	}
	return nil
}

// Package wire implements the byte-level conventions shared by the agent
// wire protocol (§6 of spec.md) and the SSH-1 login packet bodies: 4-byte
// big-endian lengths, length-prefixed strings, and SSH-1 MP-ints.
//
// This is the protocol itself, not a provided primitive — spec.md puts the
// BPP (framing of whole SSH *packets*) out of scope, but the byte layout of
// individual agent messages and login-packet fields is precisely the hard
// part this spec asks to be built.
package wire

import (
	"encoding/binary"
	"errors"
	"math/big"
)

// ErrTruncated is returned by every reader below when fewer bytes remain
// than the field requires.
var ErrTruncated = errors.New("wire: truncated message")

// Reader walks a byte slice left to right, consuming fields. It never
// panics; every method reports ErrTruncated instead.
type Reader struct {
	b   []byte
	err error
}

func NewReader(b []byte) *Reader { return &Reader{b: b} }

// Err returns the first error encountered, if any.
func (r *Reader) Err() error { return r.err }

// Remaining returns the unconsumed tail.
func (r *Reader) Remaining() []byte { return r.b }

func (r *Reader) fail() {
	if r.err == nil {
		r.err = ErrTruncated
	}
}

// Byte consumes one byte.
func (r *Reader) Byte() byte {
	if r.err != nil || len(r.b) < 1 {
		r.fail()
		return 0
	}
	v := r.b[0]
	r.b = r.b[1:]
	return v
}

// Uint32 consumes a big-endian uint32.
func (r *Reader) Uint32() uint32 {
	if r.err != nil || len(r.b) < 4 {
		r.fail()
		return 0
	}
	v := binary.BigEndian.Uint32(r.b[:4])
	r.b = r.b[4:]
	return v
}

// Uint16 consumes a big-endian uint16.
func (r *Reader) Uint16() uint16 {
	if r.err != nil || len(r.b) < 2 {
		r.fail()
		return 0
	}
	v := binary.BigEndian.Uint16(r.b[:2])
	r.b = r.b[2:]
	return v
}

// Bytes consumes n raw bytes (no length prefix) — used for the SSH-1
// session id and the SMSG_PUBLIC_KEY cookie.
func (r *Reader) Bytes(n int) []byte {
	if r.err != nil || n < 0 || len(r.b) < n {
		r.fail()
		return nil
	}
	v := r.b[:n]
	r.b = r.b[n:]
	return v
}

// String consumes an SSH-2-style length-prefixed string: uint32 length
// followed by that many bytes.
func (r *Reader) String() []byte {
	n := r.Uint32()
	if r.err != nil {
		return nil
	}
	return r.Bytes(int(n))
}

// MPInt consumes an SSH-1 MP-int: uint16 bit-length followed by
// ceil(bits/8) big-endian bytes, and returns it as a big.Int.
func (r *Reader) MPInt() *big.Int {
	bits := r.Uint16()
	if r.err != nil {
		return nil
	}
	nbytes := (int(bits) + 7) / 8
	raw := r.Bytes(nbytes)
	if r.err != nil {
		return nil
	}
	return new(big.Int).SetBytes(raw)
}

// Writer accumulates fields in the same conventions as Reader.
type Writer struct {
	b []byte
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Bytes() []byte { return w.b }

func (w *Writer) Byte(v byte) *Writer {
	w.b = append(w.b, v)
	return w
}

func (w *Writer) Uint32(v uint32) *Writer {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	w.b = append(w.b, tmp[:]...)
	return w
}

func (w *Writer) Uint16(v uint16) *Writer {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	w.b = append(w.b, tmp[:]...)
	return w
}

// Raw appends bytes with no length prefix.
func (w *Writer) Raw(v []byte) *Writer {
	w.b = append(w.b, v...)
	return w
}

// String appends a length-prefixed string.
func (w *Writer) String(v []byte) *Writer {
	w.Uint32(uint32(len(v)))
	w.b = append(w.b, v...)
	return w
}

// MPInt appends an SSH-1 MP-int: bit length followed by minimal big-endian
// bytes. A zero value encodes as bit-length 0 with no following bytes.
func (w *Writer) MPInt(v *big.Int) *Writer {
	if v == nil || v.Sign() == 0 {
		return w.Uint16(0)
	}
	raw := v.Bytes()
	bits := uint16(len(raw)*8 - leadingZeroBits(raw[0]))
	w.Uint16(bits)
	return w.Raw(raw)
}

func leadingZeroBits(b byte) int {
	n := 0
	for i := 7; i >= 0; i-- {
		if b&(1<<uint(i)) != 0 {
			break
		}
		n++
	}
	return n
}

// FrameMessage prepends a 4-byte big-endian length prefix covering body.
func FrameMessage(body []byte) []byte {
	out := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(out[:4], uint32(len(body)))
	copy(out[4:], body)
	return out
}

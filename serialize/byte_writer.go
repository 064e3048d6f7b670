// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package serialize

import (
	"encoding/binary"
	"math"
)

// ByteWriter emits little-endian bytes into a contiguous, growable buffer.
// There is no bounds checking against an externally-imposed capacity, only
// Go's own slice-growth semantics.
type ByteWriter struct {
	buf []byte
}

// NewByteWriter returns a ByteWriter that appends to buf (which may be nil).
func NewByteWriter(buf []byte) *ByteWriter {
	return &ByteWriter{buf: buf}
}

// Bytes returns the accumulated buffer.
func (w *ByteWriter) Bytes() []byte { return w.buf }

// Reset clears the buffer for reuse without reallocating.
func (w *ByteWriter) Reset() { w.buf = w.buf[:0] }

// Len returns the number of bytes written so far.
func (w *ByteWriter) Len() int { return len(w.buf) }

func (w *ByteWriter) WriteU8(v uint8) { w.buf = append(w.buf, v) }

func (w *ByteWriter) WriteU16(v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *ByteWriter) WriteU32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *ByteWriter) WriteU64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *ByteWriter) WriteF32(v float32) { w.WriteU32(math.Float32bits(v)) }
func (w *ByteWriter) WriteF64(v float64) { w.WriteU64(math.Float64bits(v)) }

func (w *ByteWriter) WriteBool(v bool) {
	if v {
		w.WriteU8(1)
	} else {
		w.WriteU8(0)
	}
}

func (w *ByteWriter) WritePointer(displacement int64) { w.WriteU64(uint64(displacement)) }
func (w *ByteWriter) WriteSize(v uint32)              { w.WriteU32(v) }

func (w *ByteWriter) Skip(n uint32) {
	w.buf = append(w.buf, make([]byte, n)...)
}

func (w *ByteWriter) EnterFixedSizeComposite() {}
func (w *ByteWriter) ExitComposite()           {}

var _ Writer = (*ByteWriter)(nil)

// ByteReader is the bounds-checked dual of ByteWriter. Reads past the end of
// the buffer set the sticky error returned by Err instead of panicking.
type ByteReader struct {
	buf []byte
	pos int
	err error
}

// NewByteReader returns a reader over buf starting at offset 0.
func NewByteReader(buf []byte) *ByteReader {
	return &ByteReader{buf: buf}
}

func (r *ByteReader) Err() error { return r.err }

// Pos returns the current read offset.
func (r *ByteReader) Pos() int { return r.pos }

func (r *ByteReader) need(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.pos+n > len(r.buf) {
		r.err = errShortRead
		return nil
	}
	p := r.buf[r.pos : r.pos+n]
	r.pos += n
	return p
}

func (r *ByteReader) ReadU8() uint8 {
	p := r.need(1)
	if p == nil {
		return 0
	}
	return p[0]
}

func (r *ByteReader) ReadU16() uint16 {
	p := r.need(2)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(p)
}

func (r *ByteReader) ReadU32() uint32 {
	p := r.need(4)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(p)
}

func (r *ByteReader) ReadU64() uint64 {
	p := r.need(8)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(p)
}

func (r *ByteReader) ReadF32() float32 { return math.Float32frombits(r.ReadU32()) }
func (r *ByteReader) ReadF64() float64 { return math.Float64frombits(r.ReadU64()) }

func (r *ByteReader) ReadBool() bool { return r.ReadU8() != 0 }

func (r *ByteReader) ReadPointer() int64 { return int64(r.ReadU64()) }
func (r *ByteReader) ReadSize() uint32   { return r.ReadU32() }

func (r *ByteReader) Skip(n uint32) { r.need(int(n)) }

var _ Reader = (*ByteReader)(nil)

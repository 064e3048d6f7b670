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

import "bytes"

// cmpResult is shared state for the three *ComparingWriter types: each
// Write call compares the bytes it would have emitted against the next
// bytes from a paired reader, and latches the first differing byte's
// outcome. Once latched, further Write calls are no-ops, avoiding any work
// past the first differing byte.
type cmpResult struct {
	r       Reader
	decided bool
	cmp     int // -1, 0, 1 once decided
	tmp     [8]byte
}

func (c *cmpResult) observe(want []byte) {
	if c.decided {
		return
	}
	got := make([]byte, len(want))
	for i := range got {
		got[i] = c.r.ReadU8()
	}
	if c.r.Err() != nil {
		// treat a short read on the paired side as that side sorting
		// first (it ran out of bytes first), so the written value is
		// greater
		c.decided = true
		c.cmp = 1
		return
	}
	if d := bytes.Compare(want, got); d != 0 {
		c.decided = true
		c.cmp = d
	}
}

// ByteEqualityComparingWriter short-circuits on the first byte at which the
// value being "written" differs from the bytes read from the paired
// reader. Equal returns true only if every byte matched.
type ByteEqualityComparingWriter struct{ cmp cmpResult }

// NewByteEqualityComparingWriter pairs a comparison writer with a reader
// over the bytes to compare against.
func NewByteEqualityComparingWriter(r Reader) *ByteEqualityComparingWriter {
	return &ByteEqualityComparingWriter{cmp: cmpResult{r: r}}
}

// Equal reports whether every byte written so far matched the paired
// reader's bytes exactly.
func (w *ByteEqualityComparingWriter) Equal() bool { return !w.cmp.decided }

func (w *ByteEqualityComparingWriter) WriteU8(v uint8) {
	w.cmp.tmp[0] = v
	w.cmp.observe(w.cmp.tmp[:1])
}
func (w *ByteEqualityComparingWriter) WriteU16(v uint16) { writeLE(&w.cmp, v16(v)) }
func (w *ByteEqualityComparingWriter) WriteU32(v uint32) { writeLE(&w.cmp, v32(v)) }
func (w *ByteEqualityComparingWriter) WriteU64(v uint64) { writeLE(&w.cmp, v64(v)) }
func (w *ByteEqualityComparingWriter) WriteF32(v float32) {
	w.WriteU32(f32bits(v))
}
func (w *ByteEqualityComparingWriter) WriteF64(v float64) {
	w.WriteU64(f64bits(v))
}
func (w *ByteEqualityComparingWriter) WriteBool(v bool) {
	if v {
		w.WriteU8(1)
	} else {
		w.WriteU8(0)
	}
}
func (w *ByteEqualityComparingWriter) WritePointer(d int64) { w.WriteU64(uint64(d)) }
func (w *ByteEqualityComparingWriter) WriteSize(v uint32)   { w.WriteU32(v) }
func (w *ByteEqualityComparingWriter) Skip(n uint32) {
	for i := uint32(0); i < n; i++ {
		w.WriteU8(0)
	}
}
func (w *ByteEqualityComparingWriter) EnterFixedSizeComposite() {}
func (w *ByteEqualityComparingWriter) ExitComposite()           {}

var _ Writer = (*ByteEqualityComparingWriter)(nil)

// LessThanComparingWriter short-circuits as soon as the first differing
// byte is found; Less reports whether the written value sorts before the
// paired reader's value.
type LessThanComparingWriter struct{ cmp cmpResult }

func NewLessThanComparingWriter(r Reader) *LessThanComparingWriter {
	return &LessThanComparingWriter{cmp: cmpResult{r: r}}
}

// Less reports whether the written value is strictly less than the value
// read from the paired reader.
func (w *LessThanComparingWriter) Less() bool { return w.cmp.decided && w.cmp.cmp < 0 }

func (w *LessThanComparingWriter) WriteU8(v uint8) {
	w.cmp.tmp[0] = v
	w.cmp.observe(w.cmp.tmp[:1])
}
func (w *LessThanComparingWriter) WriteU16(v uint16)  { writeLE(&w.cmp, v16(v)) }
func (w *LessThanComparingWriter) WriteU32(v uint32)  { writeLE(&w.cmp, v32(v)) }
func (w *LessThanComparingWriter) WriteU64(v uint64)  { writeLE(&w.cmp, v64(v)) }
func (w *LessThanComparingWriter) WriteF32(v float32) { w.WriteU32(f32bits(v)) }
func (w *LessThanComparingWriter) WriteF64(v float64) { w.WriteU64(f64bits(v)) }
func (w *LessThanComparingWriter) WriteBool(v bool) {
	if v {
		w.WriteU8(1)
	} else {
		w.WriteU8(0)
	}
}
func (w *LessThanComparingWriter) WritePointer(d int64) { w.WriteU64(uint64(d)) }
func (w *LessThanComparingWriter) WriteSize(v uint32)   { w.WriteU32(v) }
func (w *LessThanComparingWriter) Skip(n uint32) {
	for i := uint32(0); i < n; i++ {
		w.WriteU8(0)
	}
}
func (w *LessThanComparingWriter) EnterFixedSizeComposite() {}
func (w *LessThanComparingWriter) ExitComposite()           {}

var _ Writer = (*LessThanComparingWriter)(nil)

// GreaterThanComparingWriter is the mirror image of LessThanComparingWriter.
type GreaterThanComparingWriter struct{ cmp cmpResult }

func NewGreaterThanComparingWriter(r Reader) *GreaterThanComparingWriter {
	return &GreaterThanComparingWriter{cmp: cmpResult{r: r}}
}

// Greater reports whether the written value is strictly greater than the
// value read from the paired reader.
func (w *GreaterThanComparingWriter) Greater() bool { return w.cmp.decided && w.cmp.cmp > 0 }

func (w *GreaterThanComparingWriter) WriteU8(v uint8) {
	w.cmp.tmp[0] = v
	w.cmp.observe(w.cmp.tmp[:1])
}
func (w *GreaterThanComparingWriter) WriteU16(v uint16)  { writeLE(&w.cmp, v16(v)) }
func (w *GreaterThanComparingWriter) WriteU32(v uint32)  { writeLE(&w.cmp, v32(v)) }
func (w *GreaterThanComparingWriter) WriteU64(v uint64)  { writeLE(&w.cmp, v64(v)) }
func (w *GreaterThanComparingWriter) WriteF32(v float32) { w.WriteU32(f32bits(v)) }
func (w *GreaterThanComparingWriter) WriteF64(v float64) { w.WriteU64(f64bits(v)) }
func (w *GreaterThanComparingWriter) WriteBool(v bool) {
	if v {
		w.WriteU8(1)
	} else {
		w.WriteU8(0)
	}
}
func (w *GreaterThanComparingWriter) WritePointer(d int64) { w.WriteU64(uint64(d)) }
func (w *GreaterThanComparingWriter) WriteSize(v uint32)   { w.WriteU32(v) }
func (w *GreaterThanComparingWriter) Skip(n uint32) {
	for i := uint32(0); i < n; i++ {
		w.WriteU8(0)
	}
}
func (w *GreaterThanComparingWriter) EnterFixedSizeComposite() {}
func (w *GreaterThanComparingWriter) ExitComposite()           {}

var _ Writer = (*GreaterThanComparingWriter)(nil)

func writeLE(c *cmpResult, p []byte) { c.observe(p) }

func v16(v uint16) []byte { return []byte{byte(v), byte(v >> 8)} }
func v32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}
func v64(v uint64) []byte {
	return []byte{
		byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24),
		byte(v >> 32), byte(v >> 40), byte(v >> 48), byte(v >> 56),
	}
}

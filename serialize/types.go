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

// Built-in codecs for the fundamental types: all integer/float sizes, bool,
// strings, fixed-length arrays, pairs/tuples (composite is fixed iff every
// element is), and variable-length vectors (length-prefixed run of
// elements).

type uint8Codec struct{}
type uint16Codec struct{}
type uint32Codec struct{}
type uint64Codec struct{}
type int8Codec struct{}
type int16Codec struct{}
type int32Codec struct{}
type int64Codec struct{}
type float32Codec struct{}
type float64Codec struct{}
type boolCodec struct{}

// Uint8, Uint16, Uint32, Uint64, Int8, Int16, Int32, Int64, Float32,
// Float64, and Bool are the fixed-size fundamental-type codecs.
var (
	Uint8   Codec[uint8]   = uint8Codec{}
	Uint16  Codec[uint16]  = uint16Codec{}
	Uint32  Codec[uint32]  = uint32Codec{}
	Uint64  Codec[uint64]  = uint64Codec{}
	Int8    Codec[int8]    = int8Codec{}
	Int16   Codec[int16]   = int16Codec{}
	Int32   Codec[int32]   = int32Codec{}
	Int64   Codec[int64]   = int64Codec{}
	Float32 Codec[float32] = float32Codec{}
	Float64 Codec[float64] = float64Codec{}
	Bool    Codec[bool]    = boolCodec{}
)

func (uint8Codec) Write(w Writer, v uint8)          { w.WriteU8(v) }
func (uint8Codec) Read(r Reader) uint8              { return r.ReadU8() }
func (uint8Codec) FixedSize() (int, bool)           { return 1, true }

func (uint16Codec) Write(w Writer, v uint16) { w.WriteU16(v) }
func (uint16Codec) Read(r Reader) uint16     { return r.ReadU16() }
func (uint16Codec) FixedSize() (int, bool)   { return 2, true }

func (uint32Codec) Write(w Writer, v uint32) { w.WriteU32(v) }
func (uint32Codec) Read(r Reader) uint32     { return r.ReadU32() }
func (uint32Codec) FixedSize() (int, bool)   { return 4, true }

func (uint64Codec) Write(w Writer, v uint64) { w.WriteU64(v) }
func (uint64Codec) Read(r Reader) uint64     { return r.ReadU64() }
func (uint64Codec) FixedSize() (int, bool)   { return 8, true }

func (int8Codec) Write(w Writer, v int8)   { w.WriteU8(uint8(v)) }
func (int8Codec) Read(r Reader) int8       { return int8(r.ReadU8()) }
func (int8Codec) FixedSize() (int, bool)   { return 1, true }

func (int16Codec) Write(w Writer, v int16) { w.WriteU16(uint16(v)) }
func (int16Codec) Read(r Reader) int16     { return int16(r.ReadU16()) }
func (int16Codec) FixedSize() (int, bool)  { return 2, true }

func (int32Codec) Write(w Writer, v int32) { w.WriteU32(uint32(v)) }
func (int32Codec) Read(r Reader) int32     { return int32(r.ReadU32()) }
func (int32Codec) FixedSize() (int, bool)  { return 4, true }

func (int64Codec) Write(w Writer, v int64) { w.WriteU64(uint64(v)) }
func (int64Codec) Read(r Reader) int64     { return int64(r.ReadU64()) }
func (int64Codec) FixedSize() (int, bool)  { return 8, true }

func (float32Codec) Write(w Writer, v float32) { w.WriteF32(v) }
func (float32Codec) Read(r Reader) float32     { return r.ReadF32() }
func (float32Codec) FixedSize() (int, bool)    { return 4, true }

func (float64Codec) Write(w Writer, v float64) { w.WriteF64(v) }
func (float64Codec) Read(r Reader) float64     { return r.ReadF64() }
func (float64Codec) FixedSize() (int, bool)    { return 8, true }

func (boolCodec) Write(w Writer, v bool) { w.WriteBool(v) }
func (boolCodec) Read(r Reader) bool     { return r.ReadBool() }
func (boolCodec) FixedSize() (int, bool) { return 1, true }

// stringCodec encodes a string as a WriteSize-prefixed run of bytes.
type stringCodec struct{}

// String is the variable-size codec for Go strings.
var String Codec[string] = stringCodec{}

func (stringCodec) Write(w Writer, v string) {
	w.WriteSize(uint32(len(v)))
	for i := 0; i < len(v); i++ {
		w.WriteU8(v[i])
	}
}

func (stringCodec) Read(r Reader) string {
	n := r.ReadSize()
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = r.ReadU8()
	}
	return string(buf)
}

func (stringCodec) FixedSize() (int, bool) { return 0, false }

// Vector returns a Codec for []T given a Codec for T: a WriteSize-prefixed
// count followed by each element in turn. Vectors are always
// variable-size, even when their element type is fixed-size, because their
// length is not known statically.
func Vector[T any](elem Codec[T]) Codec[[]T] {
	return vectorCodec[T]{elem: elem}
}

type vectorCodec[T any] struct{ elem Codec[T] }

func (c vectorCodec[T]) Write(w Writer, v []T) {
	w.WriteSize(uint32(len(v)))
	w.EnterFixedSizeComposite()
	for _, e := range v {
		c.elem.Write(w, e)
	}
	w.ExitComposite()
}

func (c vectorCodec[T]) Read(r Reader) []T {
	n := r.ReadSize()
	out := make([]T, n)
	for i := range out {
		out[i] = c.elem.Read(r)
	}
	return out
}

func (c vectorCodec[T]) FixedSize() (int, bool) { return 0, false }

// Array returns a Codec for a fixed-length slice of exactly n elements. It
// is fixed-size iff elem is, matching the rule that a composite codec is
// fixed-size only if every element codec is. Read always returns a slice
// of length n; Write panics if given a slice of the wrong length, since a
// length mismatch means the caller has violated the type's invariant, not
// a recoverable runtime condition.
func Array[T any](elem Codec[T], n int) Codec[[]T] {
	return arrayCodec[T]{elem: elem, n: n}
}

type arrayCodec[T any] struct {
	elem Codec[T]
	n    int
}

func (c arrayCodec[T]) Write(w Writer, v []T) {
	if len(v) != c.n {
		panic("serialize: array codec given wrong-length slice")
	}
	w.EnterFixedSizeComposite()
	for _, e := range v {
		c.elem.Write(w, e)
	}
	w.ExitComposite()
}

func (c arrayCodec[T]) Read(r Reader) []T {
	out := make([]T, c.n)
	for i := range out {
		out[i] = c.elem.Read(r)
	}
	return out
}

func (c arrayCodec[T]) FixedSize() (int, bool) {
	sz, ok := c.elem.FixedSize()
	if !ok {
		return 0, false
	}
	return sz * c.n, true
}

// Pair is a 2-tuple codec, fixed-size iff both the A and B codecs are
// fixed-size.
func Pair[A, B any](ca Codec[A], cb Codec[B]) Codec[Tuple2[A, B]] {
	return pairCodec[A, B]{ca: ca, cb: cb}
}

// Tuple2 is a plain two-element tuple value.
type Tuple2[A, B any] struct {
	First  A
	Second B
}

type pairCodec[A, B any] struct {
	ca Codec[A]
	cb Codec[B]
}

func (c pairCodec[A, B]) Write(w Writer, v Tuple2[A, B]) {
	w.EnterFixedSizeComposite()
	c.ca.Write(w, v.First)
	c.cb.Write(w, v.Second)
	w.ExitComposite()
}

func (c pairCodec[A, B]) Read(r Reader) Tuple2[A, B] {
	var v Tuple2[A, B]
	v.First = c.ca.Read(r)
	v.Second = c.cb.Read(r)
	return v
}

func (c pairCodec[A, B]) FixedSize() (int, bool) {
	sa, oka := c.ca.FixedSize()
	sb, okb := c.cb.FixedSize()
	if !oka || !okb {
		return 0, false
	}
	return sa + sb, true
}

// Tuple3 and its codec generalize Pair/Tuple2 to three elements, used for
// shapes like (key-reference, state-reference, row-count).
type Tuple3[A, B, C any] struct {
	First  A
	Second B
	Third  C
}

func Triple[A, B, C any](ca Codec[A], cb Codec[B], cc Codec[C]) Codec[Tuple3[A, B, C]] {
	return tripleCodec[A, B, C]{ca: ca, cb: cb, cc: cc}
}

type tripleCodec[A, B, C any] struct {
	ca Codec[A]
	cb Codec[B]
	cc Codec[C]
}

func (c tripleCodec[A, B, C]) Write(w Writer, v Tuple3[A, B, C]) {
	w.EnterFixedSizeComposite()
	c.ca.Write(w, v.First)
	c.cb.Write(w, v.Second)
	c.cc.Write(w, v.Third)
	w.ExitComposite()
}

func (c tripleCodec[A, B, C]) Read(r Reader) Tuple3[A, B, C] {
	var v Tuple3[A, B, C]
	v.First = c.ca.Read(r)
	v.Second = c.cb.Read(r)
	v.Third = c.cc.Read(r)
	return v
}

func (c tripleCodec[A, B, C]) FixedSize() (int, bool) {
	sa, oka := c.ca.FixedSize()
	sb, okb := c.cb.FixedSize()
	sc, okc := c.cc.FixedSize()
	if !oka || !okb || !okc {
		return 0, false
	}
	return sa + sb + sc, true
}

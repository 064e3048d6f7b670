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

// Package serialize implements a fixed/variable-size little-endian byte
// encoding family: a small capability-surface Writer interface with several
// concrete writers (a raw byte buffer, a byte counter, an xxHash64
// accumulator, and three short-circuiting comparison writers) that all
// cooperate with one generic Codec[T] family so that adding a new wire type
// only requires writing its Codec once.
package serialize

// Writer is the capability surface every concrete writer implements. It is
// deliberately narrow so that ByteWriter, ByteCountingWriter, HashingWriter
// and the *ComparingWriter family can all share the same Codec bodies
// without any of them carrying state the others don't need.
type Writer interface {
	WriteU8(uint8)
	WriteU16(uint16)
	WriteU32(uint32)
	WriteU64(uint64)
	WriteF32(float32)
	WriteF64(float64)
	WriteBool(bool)
	// WritePointer writes a displacement relative to the writer's current
	// position.
	WritePointer(displacement int64)
	WriteSize(uint32)
	Skip(n uint32)
	// EnterFixedSizeComposite/ExitComposite bracket a composite value's
	// elements. Every writer in this package, including the counting and
	// comparison writers, treats them as no-ops.
	EnterFixedSizeComposite()
	ExitComposite()
}

// Reader is the dual capability surface. Safe readers set an internal error
// flag (observable via Err) rather than panicking or corrupting memory; the
// caller is expected to check it before trusting any read value.
type Reader interface {
	ReadU8() uint8
	ReadU16() uint16
	ReadU32() uint32
	ReadU64() uint64
	ReadF32() float32
	ReadF64() float64
	ReadBool() bool
	ReadPointer() int64
	ReadSize() uint32
	Skip(n uint32)
	// Err returns a non-nil error once any Read call has observed fewer
	// bytes than it needed. Once set, it is sticky and further reads
	// return zero values.
	Err() error
}

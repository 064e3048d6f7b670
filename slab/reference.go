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

package slab

import (
	"bytes"

	"github.com/drlojekyll-go/dlcore/serialize"
)

// addrBits packs a 48-bit address alongside a 16-bit truncated hash. The
// "address" here is an arena-relative byte offset rather than a raw
// pointer, a substitution that loses nothing since offsets and pointers
// address the same underlying bytes.
const addrBits = 48
const addrMask = (uint64(1) << addrBits) - 1

// Ref is a packed (48-bit address, 16-bit truncated hash) handle into slab
// bytes.
type Ref uint64

// MakeRef packs an arena-relative byte address and a hash into a Ref,
// keeping only the low 16 bits of hash (the "truncated hash").
func MakeRef(addr uint64, hash uint64) Ref {
	return Ref((addr & addrMask) | ((hash & 0xFFFF) << addrBits))
}

// Address returns the arena-relative byte offset this reference points to.
func (r Ref) Address() uint64 { return uint64(r) & addrMask }

// TruncatedHash returns the low 16 bits of the value's full hash, usable
// as a cheap pre-filter before a full comparison.
func (r Ref) TruncatedHash() uint16 { return uint16(uint64(r) >> addrBits) }

// SizedRef additionally carries a byte length and a full 32-bit hash, used
// for variable-width objects.
type SizedRef struct {
	Ref      Ref
	Length   uint32
	FullHash uint32
}

// Typed is a typed slab reference: it behaves as a value of
// semantic type T. For a fundamental T it is usually cheaper to just keep
// the value inline; Typed is for composite T,
// which reads lazily from slab bytes on access rather than eagerly
// deserializing.
//
// Go has no destructors, so where the original design increments/decrements
// an implicit reference count in a reference's constructor/destructor
//, this port makes that explicit: Retain/Release below. Constructing or
// copying a Typed[T] leaves the count unchanged, and storage.Table and
// storage.Index do not call Retain or Release.
type Typed[T any] struct {
	mgr    *Manager
	slab   uint64
	offset uint32
	length uint32
	codec  serialize.Codec[T]
}

// NewTyped constructs a typed slab reference to a value of serialized
// length bytes starting at (slab, offset), decodable with codec.
func NewTyped[T any](mgr *Manager, slabAddr uint64, offset uint32, length uint32, codec serialize.Codec[T]) Typed[T] {
	return Typed[T]{mgr: mgr, slab: slabAddr, offset: offset, length: length, codec: codec}
}

// Get reifies the referenced value. No reification occurs until this is
// called.
func (t Typed[T]) Get() T {
	r := NewSlabListReaderAt(t.mgr, t.slab, t.offset)
	return t.codec.Read(r)
}

// rawBytes returns the exact serialized bytes backing t, for use by
// Equal/Less/Greater below.
func (t Typed[T]) rawBytes() []byte {
	r := NewSlabListReaderAt(t.mgr, t.slab, t.offset)
	return r.readBytes(int(t.length))
}

// Equal reports whether t and other have byte-identical serialized
// representations.
func (t Typed[T]) Equal(other Typed[T]) bool {
	return bytes.Equal(t.rawBytes(), other.rawBytes())
}

// Less reports whether t sorts before other under a lexicographic byte
// comparison of their serialized representations.
func (t Typed[T]) Less(other Typed[T]) bool {
	return bytes.Compare(t.rawBytes(), other.rawBytes()) < 0
}

// Greater is the converse of Less.
func (t Typed[T]) Greater(other Typed[T]) bool {
	return bytes.Compare(t.rawBytes(), other.rawBytes()) > 0
}

// SubTyped constructs a reference to a fixed-size field nested inside an
// already-written composite value, at byteOffset bytes into parent's
// serialized bytes. It is how a table cell's mutable tuple-state field is
// addressed without re-serializing the whole row: the row is written once
// as (key, state), and SubTyped carves out just the state field so it can
// be flipped in place later.
func SubTyped[T, U any](parent Typed[T], byteOffset uint32, codec serialize.Codec[U]) Typed[U] {
	size, ok := codec.FixedSize()
	if !ok {
		panic("slab: SubTyped requires a fixed-size codec")
	}
	return Typed[U]{
		mgr:    parent.mgr,
		slab:   parent.slab,
		offset: parent.offset + byteOffset,
		length: uint32(size),
		codec:  codec,
	}
}

// Retain increments the reference count of the slab t points into. Call
// this when storing a Typed[T] somewhere with independent lifetime from
// where it was obtained.
func (t Typed[T]) Retain() { t.mgr.Retain(t.slab) }

// Release decrements the reference count of the slab t points into.
func (t Typed[T]) Release() { t.mgr.Release(t.slab) }

// Mutable marks a Typed[T] as writable in place. in-place
// writes are only sound for fixed-size fundamental types that do not cross
// a slab boundary. NewMutable rejects a codec that is not fixed-size;
// neither NewMutable nor Set checks that the value lies within one slab.
type Mutable[T any] struct {
	Typed[T]
}

// NewMutable wraps a fixed-size, non-crossing Typed[T] reference so it can
// be rewritten in place. It panics if T is not fixed-size, since that is a
// programmer error (composite/variable values are never safely mutable in
// place) rather than a runtime condition.
func NewMutable[T any](t Typed[T]) Mutable[T] {
	if _, ok := t.codec.FixedSize(); !ok {
		panic("slab: Mutable requires a fixed-size codec")
	}
	return Mutable[T]{Typed: t}
}

// Set overwrites the referenced bytes in place with the serialization of v.
// This is sound without invalidating any other reference because fixed-size
// fundamental writes on little-endian hosts are atomic for aligned sizes
// and the call site holds the "scoped slab lock" by virtue of
// being the only writer for that shard.
func (m Mutable[T]) Set(v T) {
	w := &inPlaceWriter{mgr: m.mgr, slab: m.slab, offset: m.offset}
	m.codec.Write(w, v)
}

// inPlaceWriter writes fixed-size values back into already-allocated slab
// bytes without advancing any append cursor or crossing a slab boundary.
type inPlaceWriter struct {
	mgr    *Manager
	slab   uint64
	offset uint32
}

func (w *inPlaceWriter) put(p []byte) {
	b := w.mgr.bytes(w.slab)
	copy(b[headerSize+w.offset:headerSize+w.offset+uint32(len(p))], p)
	w.offset += uint32(len(p))
}

func (w *inPlaceWriter) WriteU8(v uint8)    { w.put([]byte{v}) }
func (w *inPlaceWriter) WriteU16(v uint16)  { w.put(le16(v)) }
func (w *inPlaceWriter) WriteU32(v uint32)  { w.put(le32(v)) }
func (w *inPlaceWriter) WriteU64(v uint64)  { w.put(le64(v)) }
func (w *inPlaceWriter) WriteF32(v float32) { w.WriteU32(f32bits(v)) }
func (w *inPlaceWriter) WriteF64(v float64) { w.WriteU64(f64bits(v)) }
func (w *inPlaceWriter) WriteBool(v bool) {
	if v {
		w.WriteU8(1)
	} else {
		w.WriteU8(0)
	}
}
func (w *inPlaceWriter) WritePointer(d int64) { w.WriteU64(uint64(d)) }
func (w *inPlaceWriter) WriteSize(v uint32)   { w.WriteU32(v) }
func (w *inPlaceWriter) Skip(n uint32)        { w.offset += n }
func (w *inPlaceWriter) EnterFixedSizeComposite() {}
func (w *inPlaceWriter) ExitComposite()           {}

var _ serialize.Writer = (*inPlaceWriter)(nil)

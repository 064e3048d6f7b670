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

	"github.com/cespare/xxhash/v2"
)

// HashingWriter feeds each datum it is given into an xxHash64 accumulator,
// yielding a 64-bit digest once writing is complete. It never
// buffers more than a handful of bytes at a time.
type HashingWriter struct {
	h   xxhash.Digest
	tmp [8]byte
}

// NewHashingWriter returns a HashingWriter ready to accept writes.
func NewHashingWriter() *HashingWriter {
	w := &HashingWriter{}
	w.h.Reset()
	return w
}

// Digest returns the accumulated hash. It may be called repeatedly; it does
// not reset the accumulator.
func (w *HashingWriter) Digest() uint64 { return w.h.Sum64() }

// Reset clears the accumulator for reuse.
func (w *HashingWriter) Reset() { w.h.Reset() }

func (w *HashingWriter) write(p []byte) {
	w.h.Write(p) //nolint:errcheck // xxhash.Digest.Write never errors
}

func (w *HashingWriter) WriteU8(v uint8) {
	w.tmp[0] = v
	w.write(w.tmp[:1])
}

func (w *HashingWriter) WriteU16(v uint16) {
	binary.LittleEndian.PutUint16(w.tmp[:2], v)
	w.write(w.tmp[:2])
}

func (w *HashingWriter) WriteU32(v uint32) {
	binary.LittleEndian.PutUint32(w.tmp[:4], v)
	w.write(w.tmp[:4])
}

func (w *HashingWriter) WriteU64(v uint64) {
	binary.LittleEndian.PutUint64(w.tmp[:8], v)
	w.write(w.tmp[:8])
}

func (w *HashingWriter) WriteF32(v float32) { w.WriteU32(math.Float32bits(v)) }
func (w *HashingWriter) WriteF64(v float64) { w.WriteU64(math.Float64bits(v)) }

func (w *HashingWriter) WriteBool(v bool) {
	if v {
		w.WriteU8(1)
	} else {
		w.WriteU8(0)
	}
}

func (w *HashingWriter) WritePointer(displacement int64) { w.WriteU64(uint64(displacement)) }
func (w *HashingWriter) WriteSize(v uint32)              { w.WriteU32(v) }

func (w *HashingWriter) Skip(n uint32) {
	var zero [64]byte
	for n > 0 {
		k := n
		if k > uint32(len(zero)) {
			k = uint32(len(zero))
		}
		w.write(zero[:k])
		n -= k
	}
}

func (w *HashingWriter) EnterFixedSizeComposite() {}
func (w *HashingWriter) ExitComposite()           {}

var _ Writer = (*HashingWriter)(nil)

// Hash returns the xxHash64 digest of v as serialized by c. Two values
// whose Codec.Write emits byte-identical output hash identically, which is
// what lets a hash-then-equals comparison strategy run in expected-linear
// time.
func Hash[T any](c Codec[T], v T) uint64 {
	w := NewHashingWriter()
	c.Write(w, v)
	return w.Digest()
}

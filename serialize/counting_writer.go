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

// ByteCountingWriter ignores all data and accumulates the number of bytes
// that a real writer would have emitted. It is used to precompute lengths
// ahead of a slab allocation for table and index insertions.
type ByteCountingWriter struct {
	n uint32
}

// Count returns the number of bytes counted so far.
func (w *ByteCountingWriter) Count() uint32 { return w.n }

// Reset zeroes the counter for reuse.
func (w *ByteCountingWriter) Reset() { w.n = 0 }

func (w *ByteCountingWriter) WriteU8(uint8)    { w.n += 1 }
func (w *ByteCountingWriter) WriteU16(uint16)  { w.n += 2 }
func (w *ByteCountingWriter) WriteU32(uint32)  { w.n += 4 }
func (w *ByteCountingWriter) WriteU64(uint64)  { w.n += 8 }
func (w *ByteCountingWriter) WriteF32(float32) { w.n += 4 }
func (w *ByteCountingWriter) WriteF64(float64) { w.n += 8 }
func (w *ByteCountingWriter) WriteBool(bool)   { w.n += 1 }
func (w *ByteCountingWriter) WritePointer(int64) { w.n += 8 }
func (w *ByteCountingWriter) WriteSize(uint32)   { w.n += 4 }
func (w *ByteCountingWriter) Skip(n uint32)      { w.n += n }

func (w *ByteCountingWriter) EnterFixedSizeComposite() {}
func (w *ByteCountingWriter) ExitComposite()           {}

var _ Writer = (*ByteCountingWriter)(nil)

// Count returns the exact byte count that c.Write would emit for v, without
// allocating a buffer.
func Count[T any](c Codec[T], v T) uint32 {
	var w ByteCountingWriter
	c.Write(&w, v)
	return w.Count()
}

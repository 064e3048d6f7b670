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

import "encoding/binary"

// headerSize is the 8-byte forward pointer plus 4-byte used-bytes cursor
// that precedes the payload of every slab.
const headerSize = 8 + 4

// payloadSize is the number of bytes available for serialized tuples in a
// single slab.
const payloadSize = Size - headerSize

func readForward(b []byte) uint64      { return binary.LittleEndian.Uint64(b[0:8]) }
func writeForward(b []byte, v uint64)  { binary.LittleEndian.PutUint64(b[0:8], v) }
func readUsed(b []byte) uint32         { return binary.LittleEndian.Uint32(b[8:12]) }
func writeUsed(b []byte, v uint32)     { binary.LittleEndian.PutUint32(b[8:12], v) }

// List is a singly-linked chain of slabs forming one logical append-only
// byte stream. The zero value is an empty list.
type List struct {
	first, last uint64 // 0 means "no slab yet"
}

// Empty reports whether the list has never had anything appended to it.
func (l *List) Empty() bool { return l.first == 0 }

// First returns the address of the first slab in the list, or 0 if empty.
func (l *List) First() uint64 { return l.first }

// ListFrom reconstructs a List whose first slab is already known (e.g.
// recovered from a super-block entry on restart). The reconstructed list
// does not track its own last slab, which only matters for further
// appends through a writer positioned at the end.
func ListFrom(first uint64) List { return List{first: first, last: first} }

// SlabListWriter appends bytes to a List, rotating to a freshly allocated
// slab whenever the current tail slab is exhausted. It
// implements serialize.Writer so any Codec can write directly into slab
// storage.
type SlabListWriter struct {
	mgr        *Manager
	list       *List
	persistent bool
	cur        uint64 // address of the slab currently being appended to
}

// NewSlabListWriter returns a writer that appends to list, allocating new
// slabs from mgr as needed. persistent marks every slab the writer
// allocates as exempt from reference-count collection.
func NewSlabListWriter(mgr *Manager, list *List, persistent bool) *SlabListWriter {
	w := &SlabListWriter{mgr: mgr, list: list, persistent: persistent}
	if !list.Empty() {
		w.cur = list.last
	}
	return w
}

// rotate allocates a new tail slab and links it from the current tail.
func (w *SlabListWriter) rotate() error {
	addr, err := w.mgr.Allocate(w.persistent)
	if err != nil {
		return err
	}
	if w.list.Empty() {
		w.list.first = addr
	} else {
		writeForward(w.mgr.bytes(w.cur), addr)
		w.mgr.MarkClosed(w.cur)
	}
	w.list.last = addr
	w.cur = addr
	return nil
}

// Position returns the (slab address, in-slab payload offset) at which the
// next WriteXxx call will begin writing, rotating to a fresh slab first if
// the current tail is exhausted. Callers use this to record where a value
// starts before writing it, producing a Typed[T] reference to exactly that
// value.
func (w *SlabListWriter) Position() (slabAddr uint64, offset uint32) {
	if w.cur == 0 {
		if err := w.rotate(); err != nil {
			panic(err)
		}
	}
	b := w.mgr.bytes(w.cur)
	if readUsed(b) >= payloadSize {
		if err := w.rotate(); err != nil {
			panic(err)
		}
		b = w.mgr.bytes(w.cur)
	}
	return w.cur, readUsed(b)
}

// writeBytes is the core append primitive: it copies p into the tail
// slab's payload, splitting across a slab boundary and allocating a fresh
// slab when the current one is exhausted — "writes of primitives larger
// than the remaining bytes split across slabs".
func (w *SlabListWriter) writeBytes(p []byte) {
	for len(p) > 0 {
		if w.cur == 0 {
			if err := w.rotate(); err != nil {
				panic(err) // allocator exhaustion is fatal
			}
		}
		b := w.mgr.bytes(w.cur)
		used := readUsed(b)
		room := payloadSize - used
		if room == 0 {
			if err := w.rotate(); err != nil {
				panic(err) // allocator exhaustion is fatal
			}
			continue
		}
		n := uint32(len(p))
		if n > room {
			n = room
		}
		copy(b[headerSize+used:headerSize+used+n], p[:n])
		writeUsed(b, used+n)
		p = p[n:]
	}
}

func (w *SlabListWriter) WriteU8(v uint8)   { w.writeBytes([]byte{v}) }
func (w *SlabListWriter) WriteU16(v uint16) { w.writeBytes(le16(v)) }
func (w *SlabListWriter) WriteU32(v uint32) { w.writeBytes(le32(v)) }
func (w *SlabListWriter) WriteU64(v uint64) { w.writeBytes(le64(v)) }
func (w *SlabListWriter) WriteF32(v float32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], f32bits(v))
	w.writeBytes(tmp[:])
}
func (w *SlabListWriter) WriteF64(v float64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], f64bits(v))
	w.writeBytes(tmp[:])
}
func (w *SlabListWriter) WriteBool(v bool) {
	if v {
		w.WriteU8(1)
	} else {
		w.WriteU8(0)
	}
}
func (w *SlabListWriter) WritePointer(displacement int64) { w.WriteU64(uint64(displacement)) }
func (w *SlabListWriter) WriteSize(v uint32)               { w.WriteU32(v) }
func (w *SlabListWriter) Skip(n uint32) {
	zero := make([]byte, n)
	w.writeBytes(zero)
}
func (w *SlabListWriter) EnterFixedSizeComposite() {}
func (w *SlabListWriter) ExitComposite()           {}

// Close marks the writer's current tail slab non-open. The list remains
// usable; further writes simply reopen the tail.
func (w *SlabListWriter) Close() {
	if w.cur != 0 {
		w.mgr.MarkClosed(w.cur)
	}
}

// SlabListReader walks a List from its first slab, rejoining reads that
// were split across a slab boundary by the writer.
type SlabListReader struct {
	mgr     *Manager
	cur     uint64 // current slab address, 0 once exhausted
	off     uint32 // offset within current slab's payload
	used    uint32 // cached used-bytes cursor of cur
	lastErr error
}

// NewSlabListReader returns a reader positioned at the start of list.
func NewSlabListReader(mgr *Manager, list *List) *SlabListReader {
	r := &SlabListReader{mgr: mgr, cur: list.first}
	r.loadUsed()
	return r
}

// NewSlabListReaderAt returns a reader starting mid-list, at a specific
// slab and payload offset. This backs Typed[T].Get, which must be able to
// seek directly to a value recorded elsewhere (e.g. an Index entry)
// without re-walking the list from the start.
func NewSlabListReaderAt(mgr *Manager, slabAddr uint64, offset uint32) *SlabListReader {
	r := &SlabListReader{mgr: mgr, cur: slabAddr, off: offset}
	r.loadUsed()
	return r
}

func (r *SlabListReader) loadUsed() {
	if r.cur == 0 {
		return
	}
	r.used = readUsed(r.mgr.bytes(r.cur))
}

func (r *SlabListReader) Err() error { return r.lastErr }

// Position returns the reader's current (slab address, in-slab payload
// offset), i.e. where the next Read will begin. Callers that need a
// reference to each decoded element (such as Reopen) capture Position
// before decoding the next one.
func (r *SlabListReader) Position() (slabAddr uint64, offset uint32) {
	return r.cur, r.off
}

// Done reports whether the reader has consumed every byte in the list.
func (r *SlabListReader) Done() bool {
	addr, off, used := r.cur, r.off, r.used
	for addr != 0 && off >= used {
		addr, off = readForward(r.mgr.bytes(addr)), 0
		if addr != 0 {
			used = readUsed(r.mgr.bytes(addr))
		}
	}
	return addr == 0
}

func (r *SlabListReader) readBytes(n int) []byte {
	out := make([]byte, n)
	w := 0
	for w < n {
		if r.cur == 0 {
			r.lastErr = errSlabEOF
			return out[:w]
		}
		b := r.mgr.bytes(r.cur)
		avail := int(r.used) - int(r.off)
		if avail == 0 {
			next := readForward(b)
			r.cur = next
			r.off = 0
			r.loadUsed()
			continue
		}
		k := n - w
		if k > avail {
			k = avail
		}
		copy(out[w:w+k], b[headerSize+r.off:headerSize+r.off+uint32(k)])
		r.off += uint32(k)
		w += k
	}
	return out
}

func (r *SlabListReader) ReadU8() uint8 {
	p := r.readBytes(1)
	if len(p) < 1 {
		return 0
	}
	return p[0]
}
func (r *SlabListReader) ReadU16() uint16 {
	p := r.readBytes(2)
	if len(p) < 2 {
		return 0
	}
	return binary.LittleEndian.Uint16(p)
}
func (r *SlabListReader) ReadU32() uint32 {
	p := r.readBytes(4)
	if len(p) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(p)
}
func (r *SlabListReader) ReadU64() uint64 {
	p := r.readBytes(8)
	if len(p) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(p)
}
func (r *SlabListReader) ReadF32() float32 { return bitsToF32(r.ReadU32()) }
func (r *SlabListReader) ReadF64() float64 { return bitsToF64(r.ReadU64()) }
func (r *SlabListReader) ReadBool() bool   { return r.ReadU8() != 0 }
func (r *SlabListReader) ReadPointer() int64 { return int64(r.ReadU64()) }
func (r *SlabListReader) ReadSize() uint32   { return r.ReadU32() }
func (r *SlabListReader) Skip(n uint32)      { r.readBytes(int(n)) }

func le16(v uint16) []byte {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return b[:]
}
func le32(v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return b[:]
}
func le64(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:]
}

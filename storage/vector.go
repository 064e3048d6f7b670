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

// Package storage implements the runtime-visible data structures built on
// top of the slab allocator: append-only typed vectors (plain and
// persistent), relational tables with associative secondary indices, and
// sharded per-worker vectors used by the induction engine's cycle loops.
package storage

import (
	"github.com/drlojekyll-go/dlcore/serialize"
	"github.com/drlojekyll-go/dlcore/slab"
)

// Vector is an append-only sequence of tuples of type T, realized as a
// single slab list. Appending returns a lazy typed reference to the just-
// written element; the vector itself additionally keeps those references
// in memory so iteration never needs to re-walk the underlying byte
// stream from the start.
type Vector[T any] struct {
	mgr        *slab.Manager
	codec      serialize.Codec[T]
	list       slab.List
	writer     *slab.SlabListWriter
	persistent bool
	refs       []slab.Typed[T]
}

// NewVector creates an empty vector backed by mgr, serializing elements
// with codec. A persistent vector's slabs are exempt from reference-count
// collection and are expected to be reachable from the super-block.
func NewVector[T any](mgr *slab.Manager, codec serialize.Codec[T], persistent bool) *Vector[T] {
	return &Vector[T]{mgr: mgr, codec: codec, persistent: persistent}
}

// Append serializes v onto the end of the vector's backing slab list and
// returns a lazy reference to it.
func (v *Vector[T]) Append(val T) slab.Typed[T] {
	if v.writer == nil {
		v.writer = slab.NewSlabListWriter(v.mgr, &v.list, v.persistent)
	}
	startSlab, startOff := v.writer.Position()
	n := serialize.Count(v.codec, val)
	v.codec.Write(v.writer, val)
	ref := slab.NewTyped(v.mgr, startSlab, startOff, n, v.codec)
	v.refs = append(v.refs, ref)
	return ref
}

// Len returns the number of elements appended so far.
func (v *Vector[T]) Len() int { return len(v.refs) }

// At returns the lazy reference to the i'th appended element.
func (v *Vector[T]) At(i int) slab.Typed[T] { return v.refs[i] }

// Values reifies every element, in append order. Reification is eager here;
// callers that only need a subset should use At/Get instead.
func (v *Vector[T]) Values() []T {
	out := make([]T, len(v.refs))
	for i, r := range v.refs {
		out[i] = r.Get()
	}
	return out
}

// Clear drops every element. The vector's slabs are released back to the
// manager (unless persistent, matching the manager's own refcounting
// rules) and a fresh backing list is started on the next Append.
func (v *Vector[T]) Clear() {
	if v.writer != nil {
		v.writer.Close()
	}
	for addr, ok := v.list.First(), !v.list.Empty(); ok; {
		next := v.mgr.ForwardPointer(addr)
		v.mgr.Release(addr)
		addr, ok = next, next != 0
	}
	v.list = slab.List{}
	v.writer = nil
	v.refs = v.refs[:0]
}

// List exposes the underlying slab list, e.g. so a super-block can record
// it as a persistence root for garbage collection.
func (v *Vector[T]) List() *slab.List { return &v.list }

// Reopen rebuilds a Vector's in-memory reference index by walking an
// already-populated slab list from the start. This is how a persistent
// vector recovers its iteration order after a process restart: the bytes
// on disk are the only durable state, so the in-memory ref index is
// reconstructed by decoding each element once (to learn its length) and
// discarding the decoded value.
func Reopen[T any](mgr *slab.Manager, list slab.List, codec serialize.Codec[T], persistent bool) *Vector[T] {
	v := &Vector[T]{mgr: mgr, codec: codec, persistent: persistent, list: list}
	if list.Empty() {
		return v
	}
	r := slab.NewSlabListReader(mgr, &list)
	curSlab, curOff := list.First(), uint32(0)
	for !r.Done() {
		val := codec.Read(r)
		if r.Err() != nil {
			break
		}
		n := serialize.Count(codec, val)
		v.refs = append(v.refs, slab.NewTyped(mgr, curSlab, curOff, n, codec))
		curSlab, curOff = r.Position()
	}
	return v
}

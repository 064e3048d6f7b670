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
	"sync"

	"github.com/drlojekyll-go/dlcore/serialize"
)

// InternTable is a process-wide table of deduplicated values, keyed behind
// a hash+equality set. It uses one InternTable[T] per semantic type T,
// which Go's generics make type-safe. Each Intern call serializes v and
// every stored value with the same hash into fresh buffers to compare
// them.
type InternTable[T any] struct {
	mu     sync.Mutex
	codec  serialize.Codec[T]
	byHash map[uint64][]*T
}

// NewInternTable returns an empty intern table for values serialized by codec.
func NewInternTable[T any](codec serialize.Codec[T]) *InternTable[T] {
	return &InternTable[T]{codec: codec, byHash: make(map[uint64][]*T)}
}

// InternRef is a non-owning pointer into an InternTable's deduplicated
// storage. Equality is pointer equality; dereferencing (Get) reads the
// interned payload.
type InternRef[T any] struct {
	ptr *T
}

// Get dereferences the reference, reading the interned payload.
func (r InternRef[T]) Get() T { return *r.ptr }

// Equal is pointer equality between two references into the same table.
func (r InternRef[T]) Equal(o InternRef[T]) bool { return r.ptr == o.ptr }

// Intern deduplicates v against the table, returning a reference to the
// canonical stored copy (creating one if v has not been seen before).
func (it *InternTable[T]) Intern(v T) InternRef[T] {
	h := serialize.Hash(it.codec, v)

	it.mu.Lock()
	defer it.mu.Unlock()

	vbuf := serialize.NewByteWriter(nil)
	it.codec.Write(vbuf, v)

	for _, p := range it.byHash[h] {
		pbuf := serialize.NewByteWriter(nil)
		it.codec.Write(pbuf, *p)
		if bytes.Equal(vbuf.Bytes(), pbuf.Bytes()) {
			return InternRef[T]{ptr: p}
		}
	}

	stored := v
	it.byHash[h] = append(it.byHash[h], &stored)
	return InternRef[T]{ptr: &stored}
}

// Len returns the number of distinct interned values, for diagnostics.
func (it *InternTable[T]) Len() int {
	it.mu.Lock()
	defer it.mu.Unlock()
	n := 0
	for _, bucket := range it.byHash {
		n += len(bucket)
	}
	return n
}

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
	"testing"

	"github.com/drlojekyll-go/dlcore/serialize"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	mgr, err := NewManager(InMemory{}, Tiny, 1)
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func TestSlabListAppendAcrossBoundary(t *testing.T) {
	mgr := newTestManager(t)
	var list List

	w := NewSlabListWriter(mgr, &list, false)
	codec := serialize.Vector(serialize.String)

	// Build a value whose serialized form exceeds a single slab's
	// payload, forcing the writer to rotate across at least one
	// boundary.
	var values []string
	for i := 0; i < 200000; i++ {
		values = append(values, "the quick brown fox jumps over the lazy dog")
	}
	codec.Write(w, values)
	w.Close()

	require.False(t, list.Empty())
	require.NotEqual(t, list.first, list.last, "expected the payload to span more than one slab")

	r := NewSlabListReader(mgr, &list)
	got := codec.Read(r)
	require.NoError(t, r.Err())
	require.Equal(t, values, got)
}

func TestSlabListMultipleWrites(t *testing.T) {
	mgr := newTestManager(t)
	var list List
	w := NewSlabListWriter(mgr, &list, false)

	type row struct {
		id   uint32
		name string
	}
	rows := []row{{1, "a"}, {2, "bb"}, {3, "ccc"}}
	pairCodec := serialize.Pair(serialize.Uint32, serialize.String)
	for _, rr := range rows {
		pairCodec.Write(w, serialize.Tuple2[uint32, string]{First: rr.id, Second: rr.name})
	}
	w.Close()

	r := NewSlabListReader(mgr, &list)
	for _, want := range rows {
		got := pairCodec.Read(r)
		require.Equal(t, want.id, got.First)
		require.Equal(t, want.name, got.Second)
	}
	require.True(t, r.Done())
}

func TestRefPacking(t *testing.T) {
	ref := MakeRef(0x0000123456789abc&addrMask, 0xBEEF)
	require.Equal(t, uint64(0x0000123456789abc)&addrMask, ref.Address())
	require.Equal(t, uint16(0xBEEF), ref.TruncatedHash())
}

func TestManagerRefCountingFreesSlab(t *testing.T) {
	mgr := newTestManager(t)
	addr, err := mgr.Allocate(false)
	require.NoError(t, err)
	require.Equal(t, Stats{NumAllocated: 1, NumOpen: 1}, mgr.Stats())

	mgr.Release(addr)
	stats := mgr.Stats()
	require.Equal(t, 0, stats.NumAllocated)
	require.Equal(t, 1, stats.NumFree)

	addr2, err := mgr.Allocate(false)
	require.NoError(t, err)
	require.Equal(t, addr, addr2, "freed slab should be reused")
}

func TestManagerGarbageCollectsUnreachablePersistentSlabs(t *testing.T) {
	mgr := newTestManager(t)
	var kept List
	wKept := NewSlabListWriter(mgr, &kept, true)
	serialize.Uint64.Write(wKept, 1)
	wKept.Close()

	var orphan List
	wOrphan := NewSlabListWriter(mgr, &orphan, true)
	serialize.Uint64.Write(wOrphan, 2)
	wOrphan.Close()

	before := mgr.Stats()
	require.Equal(t, 2, before.NumAllocated)

	mgr.GarbageCollect([]*List{&kept})
	after := mgr.Stats()
	require.Equal(t, 1, after.NumAllocated)
	require.Equal(t, 1, after.NumFree)
}

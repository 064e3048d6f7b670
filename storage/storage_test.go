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

package storage

import (
	"testing"

	"github.com/drlojekyll-go/dlcore/serialize"
	"github.com/drlojekyll-go/dlcore/slab"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *slab.Manager {
	mgr, err := slab.NewManager(slab.InMemory{}, slab.Tiny, 1)
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func TestVectorAppendAndValues(t *testing.T) {
	mgr := newTestManager(t)
	v := NewVector[string](mgr, serialize.String, false)

	v.Append("alpha")
	v.Append("beta")
	ref := v.Append("gamma")

	require.Equal(t, 3, v.Len())
	require.Equal(t, []string{"alpha", "beta", "gamma"}, v.Values())
	require.Equal(t, "gamma", ref.Get())
}

func TestVectorReopenRecoversSequence(t *testing.T) {
	mgr := newTestManager(t)
	v := NewVector[uint32](mgr, serialize.Uint32, true)
	for i := uint32(0); i < 500; i++ {
		v.Append(i)
	}

	reopened := Reopen[uint32](mgr, *v.List(), serialize.Uint32, true)
	require.Equal(t, v.Values(), reopened.Values())
}

func TestTableInsertCheckRemove(t *testing.T) {
	mgr := newTestManager(t)
	table := NewTable[uint32](mgr, 1, serialize.Uint32)

	require.Equal(t, StateAbsent, table.Check(7))

	first := table.Insert(7)
	require.True(t, first)
	require.Equal(t, StatePresent, table.Check(7))

	second := table.Insert(7)
	require.False(t, second)

	table.Remove(7)
	require.Equal(t, StateAbsent, table.Check(7))

	// re-insertion after removal is first-time again
	require.True(t, table.Insert(7))
}

func TestTableReopenRebuildsIndex(t *testing.T) {
	mgr := newTestManager(t)
	table := NewTable[uint32](mgr, 1, serialize.Uint32)
	table.Insert(1)
	table.Insert(2)
	table.Remove(2)

	reopened := ReopenTable[uint32](mgr, 1, serialize.Uint32, *table.Rows().List())
	require.Equal(t, StatePresent, reopened.Check(1))
	require.Equal(t, StateAbsent, reopened.Check(2))
	require.Equal(t, StateAbsent, reopened.Check(3))
}

func TestIndexLookupByPivot(t *testing.T) {
	mgr := newTestManager(t)
	type edge struct{ From, To uint32 }

	table := NewTable[serialize.Tuple2[uint32, uint32]](mgr, 2, serialize.Pair(serialize.Uint32, serialize.Uint32))
	idx := NewIndex[uint32, serialize.Tuple2[uint32, uint32]](1, table, "0", func(k serialize.Tuple2[uint32, uint32]) uint32 { return k.First })

	rows := []edge{{1, 2}, {1, 3}, {2, 3}}
	for _, e := range rows {
		key := serialize.Tuple2[uint32, uint32]{First: e.From, Second: e.To}
		table.Insert(key)
		idx.Add(key)
	}

	matches := idx.Lookup(1)
	require.Len(t, matches, 2)
	require.ElementsMatch(t, []serialize.Tuple2[uint32, uint32]{{First: 1, Second: 2}, {First: 1, Second: 3}}, matches)
	require.Empty(t, idx.Lookup(99))
}

func TestShardedVectorDrainSortsAndDedups(t *testing.T) {
	mgr := newTestManager(t)
	sv := NewShardedVector[uint32](mgr, serialize.Uint32, 3)

	sv.Append(0, 5)
	sv.Append(1, 3)
	sv.Append(2, 5)
	sv.Append(0, 1)

	out := sv.Drain(func(a, b uint32) bool { return a < b })
	require.Equal(t, []uint32{1, 3, 5}, out)

	// shards are cleared after Drain
	require.Empty(t, sv.Drain(func(a, b uint32) bool { return a < b }))
}

func TestSuperBlockRoundTrip(t *testing.T) {
	mgr := newTestManager(t)
	sb := NewSuperBlock(mgr)
	sb.Record(SuperBlockEntry{TableID: 1, FirstSlab: 42, LastSlab: 42, RowCount: 10})
	sb.Record(SuperBlockEntry{TableID: 2, FirstSlab: 84, LastSlab: 84, RowCount: 1})
	sb.Record(SuperBlockEntry{TableID: 1, FirstSlab: 42, LastSlab: 200, RowCount: 50})
	sb.Flush()

	reopened := OpenSuperBlock(mgr)
	entries := reopened.Entries()
	require.Len(t, entries, 2)

	byID := make(map[int32]SuperBlockEntry)
	for _, e := range entries {
		byID[e.TableID] = e
	}
	require.Equal(t, uint64(50), byID[1].RowCount)
	require.Equal(t, uint64(1), byID[2].RowCount)
}

func TestOpenSuperBlockOnFreshStoreIsEmpty(t *testing.T) {
	mgr := newTestManager(t)
	sb := OpenSuperBlock(mgr)
	require.Empty(t, sb.Entries())
}

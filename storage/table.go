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
	"github.com/drlojekyll-go/dlcore/serialize"
	"github.com/drlojekyll-go/dlcore/slab"
)

// TupleState is the atomic unit of per-tuple change: a tuple is absent,
// present, or (transiently, mid-evaluation) unknown.
type TupleState uint8

const (
	StateAbsent TupleState = iota
	StatePresent
	StateUnknown
)

func (s TupleState) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StatePresent:
		return "present"
	case StateUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

type tupleStateCodec struct{}

func (tupleStateCodec) Write(w serialize.Writer, v TupleState) { w.WriteU8(uint8(v)) }
func (tupleStateCodec) Read(r serialize.Reader) TupleState     { return TupleState(r.ReadU8()) }
func (tupleStateCodec) FixedSize() (int, bool)                 { return 1, true }

// TupleStateCodec is the shared codec for TupleState, a fixed-size
// fundamental value safe to mutate in place.
var TupleStateCodec serialize.Codec[TupleState] = tupleStateCodec{}

// Row is the on-disk shape of one table entry: a key tuple followed by its
// mutable tuple state.
type Row[K any] = serialize.Tuple2[K, TupleState]

// Table maps key tuples of type K to a TupleState, backed by a persistent
// vector of Row[K] plus an in-memory associative index for O(1) state
// lookup. The associative index mirrors the ordered (key-reference,
// state-reference) vector described for on-disk secondary indices: on a
// fresh process it is populated as rows are inserted, and on restart it is
// rebuilt by Reopen replaying the row vector once.
type Table[K comparable] struct {
	ID       int
	mgr      *slab.Manager
	keyCodec serialize.Codec[K]
	rows     *Vector[Row[K]]
	byKey    map[K]slab.Mutable[TupleState]
	indices  []TableIndex
}

// NewTable creates an empty persistent table identified by id, whose keys
// are encoded with keyCodec (which must be fixed-size, so that a row's
// TupleState field can be located and mutated in place without touching
// the key bytes).
func NewTable[K comparable](mgr *slab.Manager, id int, keyCodec serialize.Codec[K]) *Table[K] {
	if _, ok := keyCodec.FixedSize(); !ok {
		panic("storage: table key codec must be fixed-size")
	}
	rowCodec := serialize.Pair(keyCodec, TupleStateCodec)
	return &Table[K]{
		ID:       id,
		mgr:      mgr,
		keyCodec: keyCodec,
		rows:     NewVector[Row[K]](mgr, rowCodec, true),
		byKey:    make(map[K]slab.Mutable[TupleState]),
	}
}

// Check returns the current state of key, StateAbsent if it has never been
// inserted.
func (t *Table[K]) Check(key K) TupleState {
	cell, ok := t.byKey[key]
	if !ok {
		return StateAbsent
	}
	return cell.Get()
}

// Insert transitions key from absent-or-unknown to present, appending a
// fresh row the first time key is seen and flipping the existing state
// cell in place on every subsequent call. It reports whether this call
// performed a first-time insertion (the signal the CFG builder uses to run
// an insert operation's body).
func (t *Table[K]) Insert(key K) (firstTime bool) {
	if cell, ok := t.byKey[key]; ok {
		wasAbsent := cell.Get() != StatePresent
		cell.Set(StatePresent)
		return wasAbsent
	}
	ref := t.rows.Append(Row[K]{First: key, Second: StatePresent})
	keySize, _ := t.keyCodec.FixedSize()
	sub := slab.SubTyped[Row[K], TupleState](ref, uint32(keySize), TupleStateCodec)
	cell := slab.NewMutable(sub)
	t.byKey[key] = cell
	return true
}

// Remove transitions key to absent in place. It is a no-op if key was
// never inserted.
func (t *Table[K]) Remove(key K) {
	if cell, ok := t.byKey[key]; ok {
		cell.Set(StateAbsent)
	}
}

// Mark sets key's state directly, inserting a backing row if necessary.
// This is how checker procedures break a cyclic inductive call: a tuple is
// marked absent in its own table before the checker descends, so a
// re-entrant arrival short-circuits via Check instead of recursing forever.
func (t *Table[K]) Mark(key K, state TupleState) {
	if cell, ok := t.byKey[key]; ok {
		cell.Set(state)
		return
	}
	ref := t.rows.Append(Row[K]{First: key, Second: state})
	keySize, _ := t.keyCodec.FixedSize()
	sub := slab.SubTyped[Row[K], TupleState](ref, uint32(keySize), TupleStateCodec)
	t.byKey[key] = slab.NewMutable(sub)
}

// Rows returns the backing persistent vector, e.g. for scans.
func (t *Table[K]) Rows() *Vector[Row[K]] { return t.rows }

// AddIndex registers idx as one of the table's secondary indices. Callers
// are responsible for deduplicating by column spec (TableIndex.Spec) before
// calling this, matching the rule that an index's column-spec string is
// the uniqueness key for indices on a table.
func (t *Table[K]) AddIndex(idx TableIndex) { t.indices = append(t.indices, idx) }

// Indices lists every secondary index defined on the table.
func (t *Table[K]) Indices() []TableIndex { return t.indices }

// ReopenTable rebuilds a Table's associative index from an already-
// populated row vector, used when recovering a persistent table after a
// restart.
func ReopenTable[K comparable](mgr *slab.Manager, id int, keyCodec serialize.Codec[K], list slab.List) *Table[K] {
	rowCodec := serialize.Pair(keyCodec, TupleStateCodec)
	t := &Table[K]{ID: id, mgr: mgr, keyCodec: keyCodec, byKey: make(map[K]slab.Mutable[TupleState])}
	t.rows = Reopen[Row[K]](mgr, list, rowCodec, true)
	keySize, _ := keyCodec.FixedSize()
	for i := 0; i < t.rows.Len(); i++ {
		ref := t.rows.At(i)
		row := ref.Get()
		sub := slab.SubTyped[Row[K], TupleState](ref, uint32(keySize), TupleStateCodec)
		t.byKey[row.First] = slab.NewMutable(sub)
	}
	return t
}

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

// TableIndex is the common surface every Index[P, K] satisfies, letting a
// Table hold indices with different pivot-projection types in one slice.
type TableIndex interface {
	// Spec is the comma-separated column-spec string derived from the
	// index's sorted key-column indices; it is the uniqueness key for
	// indices defined on the same table.
	Spec() string
}

// Index is a pivot index over a Table[K]: it maps a projected pivot value
// P (a subset of K's columns, sorted by column index) to every full key
// that currently projects to it. Joins use this to scan a non-originating
// table's matching rows for each group of a pivot vector, binding the
// non-pivot output columns from the returned keys.
type Index[P comparable, K comparable] struct {
	ID        int
	Table     *Table[K]
	spec      string
	project   func(K) P
	byPivot   map[P][]K
}

// NewIndex creates a secondary index over table, projecting each full key
// to its pivot value with project. spec is the comma-separated sorted
// key-column-index string that names this index uniquely on its table.
func NewIndex[P comparable, K comparable](id int, table *Table[K], spec string, project func(K) P) *Index[P, K] {
	return &Index[P, K]{ID: id, Table: table, spec: spec, project: project, byPivot: make(map[P][]K)}
}

// Spec implements TableIndex.
func (ix *Index[P, K]) Spec() string { return ix.spec }

// Add registers key under its projected pivot value. Table.Insert does not
// call it: the index stays in sync with its table only if the caller adds
// every inserted key.
func (ix *Index[P, K]) Add(key K) {
	p := ix.project(key)
	ix.byPivot[p] = append(ix.byPivot[p], key)
}

// Lookup returns every full key currently indexed under pivot p, in
// insertion order.
func (ix *Index[P, K]) Lookup(p P) []K {
	return ix.byPivot[p]
}

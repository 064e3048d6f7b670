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

package ir

import "strconv"

// VectorKind names the role an ordered column-typed vector plays.
type VectorKind int

const (
	VecInputParameter VectorKind = iota
	VecJoinPivots
	VecInductivePivots
	VecInductivePivotSwap
	VecInductionInputs
	VecInductionSwap
	VecInductionOutputs
	VecUnionInput
	VecProductInput
	VecProductSwap
	VecTableScan
	VecMessageOutput
	VecEmpty
	VecParameter
)

// users is the intrusive use-list: the operation regions that reference a
// definition, letting ReplaceAllUsesWith rewrite every reference without a
// full tree walk.
type users struct{ list []*Operation }

func (u *users) add(op *Operation) { u.list = append(u.list, op) }
func (u *users) remove(op *Operation) {
	for i, r := range u.list {
		if r == op {
			u.list = append(u.list[:i], u.list[i+1:]...)
			return
		}
	}
}

// Users lists every operation region currently referencing this
// definition.
func (u *users) Users() []*Operation { return u.list }

// VectorDef is a pool-owned vector definition: a unique id, kind, and
// ordered list of column types, defined by exactly one procedure and
// referenced by zero or more operation regions.
type VectorDef struct {
	id    int
	users
	Kind        VectorKind
	ColumnTypes []any
}

func (v *VectorDef) ID() int { return v.id }

// TableDef is a pool-owned table definition: a unique id, ordered column
// types, and the indices defined on it. Multiple views may share one
// TableDef when GetOrCreateTable unions their data models.
type TableDef struct {
	id    int
	users
	ColumnTypes []any
	IndicesList []*IndexDef
}

func (t *TableDef) ID() int { return t.id }

// IndexDef is a pool-owned secondary index definition: a parent table, an
// ordered (sorted) list of key-column indices, and the complementary
// mapped (value) column indices. Spec is the comma-separated key-column
// index string used to deduplicate indices on the same table.
type IndexDef struct {
	id    int
	users
	Table        *TableDef
	KeyColumns   []int
	MappedColumns []int
}

func (ix *IndexDef) ID() int { return ix.id }

// Spec returns the comma-separated sorted key-column-index string that
// names this index uniquely on its table.
func (ix *IndexDef) Spec() string {
	s := ""
	for i, c := range ix.KeyColumns {
		if i > 0 {
			s += ","
		}
		s += strconv.Itoa(c)
	}
	return s
}

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

import (
	"fmt"

	"github.com/drlojekyll-go/dlcore/query"
)

// Pool owns every region, procedure, variable, vector, table, and index in
// a program, handing out ids from one monotonic counter and tracking
// which data model each query view has been assigned to.
type Pool struct {
	nextID int

	Procedures []*Procedure
	Variables  []*Variable
	Vectors    []*VectorDef
	Tables     []*TableDef
	Indices    []*IndexDef
	Constants  []*Variable

	// modelTable maps a query view's data model to the table materializing
	// it, and disjointModel implements the union-find merging used by
	// GetOrCreateTable.
	disjointModel map[int]int
	modelTable    map[int]*TableDef
}

// NewPool returns an empty pool ready to build a program into.
func NewPool() *Pool {
	return &Pool{
		disjointModel: make(map[int]int),
		modelTable:    make(map[int]*TableDef),
	}
}

func (p *Pool) allocID() int {
	p.nextID++
	return p.nextID
}

// CreateProcedure allocates a new procedure of the given kind. Its parent
// is itself, matching the invariant that a procedure is the one region
// kind that roots its own lexical scope.
func (p *Pool) CreateProcedure(kind ProcedureKind) *Procedure {
	proc := &Procedure{base: base{id: p.allocID(), columns: map[uint64]*Variable{}}, ProcKind: kind}
	proc.parent = proc
	p.Procedures = append(p.Procedures, proc)
	return proc
}

func newChildBase(p *Pool, parent Region) base {
	return base{id: p.allocID(), parent: parent, depth: parent.Depth() + 1, columns: map[uint64]*Variable{}}
}

// CreateSeries creates a series region under parent.
func (p *Pool) CreateSeries(parent Region) *Series {
	return &Series{base: newChildBase(p, parent)}
}

// CreateParallel creates a parallel region under parent.
func (p *Pool) CreateParallel(parent Region) *Parallel {
	return &Parallel{base: newChildBase(p, parent)}
}

// CreateInduction creates an induction region under parent for the given
// induction group and depth.
func (p *Pool) CreateInduction(parent Region, groupID, groupDepth int) *Induction {
	return &Induction{
		base:          newChildBase(p, parent),
		GroupID:       groupID,
		GroupDepth:    groupDepth,
		InputVectors:  map[int]*VectorDef{},
		SwapVectors:   map[int]*VectorDef{},
		OutputVectors: map[int]*VectorDef{},
	}
}

// CreateOperation creates a leaf operation region of kind under parent.
func (p *Pool) CreateOperation(parent Region, kind OperationKind) *Operation {
	return &Operation{base: newChildBase(p, parent), OpKind: kind}
}

// CreateVariable allocates a new variable with the given role, optionally
// tied to an originating query column.
func (p *Pool) CreateVariable(role VariableRole, typ any, col query.Column) *Variable {
	v := &Variable{id: p.allocID(), Role: role, Type: typ, Column: col}
	p.Variables = append(p.Variables, v)
	return v
}

// CreateConstant allocates a constant variable holding value.
func (p *Pool) CreateConstant(typ any, value any) *Variable {
	v := &Variable{id: p.allocID(), Role: RoleConstant, Type: typ, Const: value}
	p.Constants = append(p.Constants, v)
	return v
}

// CreateVector allocates a new vector definition of the given kind and
// column types.
func (p *Pool) CreateVector(kind VectorKind, columnTypes []any) *VectorDef {
	v := &VectorDef{id: p.allocID(), Kind: kind, ColumnTypes: columnTypes}
	p.Vectors = append(p.Vectors, v)
	return v
}

// VariableFor resolves the variable bound to col within region, first
// consulting region's own scope, then its ancestors, and finally the
// constant-variable table if col is constant-or-constant-ref. It panics if
// no binding can be found, since an unresolvable column is a builder
// invariant violation rather than a recoverable condition.
func (p *Pool) VariableFor(region Region, col query.Column) *Variable {
	for r := region; r != nil; {
		if v, ok := r.Columns()[col.Id()]; ok {
			return v
		}
		parent := r.Parent()
		if parent == r {
			break // reached the procedure root
		}
		r = parent
	}
	if col.IsConstantOrConstantRef() {
		for _, c := range p.Constants {
			if c.Column != nil && c.Column.Id() == col.Id() {
				return c
			}
		}
	}
	panic(fmt.Sprintf("ir: column %d has no resolvable binding", col.Id()))
}

// Bind records that col resolves to v within region's own scope.
func (p *Pool) Bind(region Region, col query.Column, v *Variable) {
	region.Columns()[col.Id()] = v
}

// GetOrCreateTable unions v's data model with each of its predecessors'
// models (views with incompatible sharing requirements are expected to
// have already been rejected upstream) and returns the one table backing
// the resulting class, creating it on first use.
func (p *Pool) GetOrCreateTable(v query.View, columnTypes []any) *TableDef {
	root := p.find(v.DataModel())
	for _, pred := range v.Predecessors() {
		p.union(root, pred.DataModel())
		root = p.find(root)
	}
	if t, ok := p.modelTable[root]; ok {
		return t
	}
	t := &TableDef{id: p.allocID(), ColumnTypes: columnTypes}
	p.Tables = append(p.Tables, t)
	p.modelTable[root] = t
	return t
}

func (p *Pool) find(m int) int {
	if _, ok := p.disjointModel[m]; !ok {
		p.disjointModel[m] = m
	}
	for p.disjointModel[m] != m {
		p.disjointModel[m] = p.disjointModel[p.disjointModel[m]]
		m = p.disjointModel[m]
	}
	return m
}

func (p *Pool) union(a, b int) {
	ra, rb := p.find(a), p.find(b)
	if ra == rb {
		return
	}
	p.disjointModel[ra] = rb
	if t, ok := p.modelTable[ra]; ok {
		if _, already := p.modelTable[rb]; !already {
			p.modelTable[rb] = t
		}
		delete(p.modelTable, ra)
	}
}

// GetOrCreateIndex returns the index on table keyed by keyColumns (sorted
// by column index), creating it if no index with that column spec exists
// yet. mappedColumns names the complementary value columns.
func (p *Pool) GetOrCreateIndex(table *TableDef, keyColumns, mappedColumns []int) *IndexDef {
	candidate := &IndexDef{Table: table, KeyColumns: keyColumns}
	spec := candidate.Spec()
	for _, existing := range table.IndicesList {
		if existing.Spec() == spec {
			return existing
		}
	}
	candidate.id = p.allocID()
	candidate.MappedColumns = mappedColumns
	table.IndicesList = append(table.IndicesList, candidate)
	p.Indices = append(p.Indices, candidate)
	return candidate
}

// ExecuteBefore splices child so it runs immediately before existing
// within existing's parent series, turning the parent into a series first
// if it is not one already.
func (p *Pool) ExecuteBefore(existing, child Region) {
	s := p.asSeries(existing.Parent(), existing)
	idx := indexOfChild(s.Children, existing)
	s.Children = insertAt(s.Children, idx, child)
	child.setParent(s)
	child.setDepth(s.Depth() + 1)
}

// ExecuteAfter splices child so it runs immediately after existing.
func (p *Pool) ExecuteAfter(existing, child Region) {
	s := p.asSeries(existing.Parent(), existing)
	idx := indexOfChild(s.Children, existing)
	s.Children = insertAt(s.Children, idx+1, child)
	child.setParent(s)
	child.setDepth(s.Depth() + 1)
}

// ExecuteAlongside splices child so it runs concurrently with existing,
// turning existing's parent into a parallel region first if needed.
func (p *Pool) ExecuteAlongside(existing, child Region) {
	par := p.asParallel(existing.Parent(), existing)
	par.Children = append(par.Children, child)
	child.setParent(par)
	child.setDepth(par.Depth() + 1)
}

func (p *Pool) asSeries(parent, existing Region) *Series {
	if s, ok := parent.(*Series); ok {
		return s
	}
	s := p.CreateSeries(parent)
	reparentInto(parent, existing, s)
	s.Children = []Region{existing}
	existing.setParent(s)
	existing.setDepth(s.Depth() + 1)
	return s
}

func (p *Pool) asParallel(parent, existing Region) *Parallel {
	if par, ok := parent.(*Parallel); ok {
		return par
	}
	par := p.CreateParallel(parent)
	reparentInto(parent, existing, par)
	par.Children = []Region{existing}
	existing.setParent(par)
	existing.setDepth(par.Depth() + 1)
	return par
}

// reparentInto rewrites whichever single-region slot on parent held
// existing so it now holds replacement instead.
func reparentInto(parent, existing, replacement Region) {
	switch pp := parent.(type) {
	case *Procedure:
		if pp.Body == existing {
			pp.Body = replacement
		}
	case *Series:
		for i, c := range pp.Children {
			if c == existing {
				pp.Children[i] = replacement
			}
		}
	case *Parallel:
		for i, c := range pp.Children {
			if c == existing {
				pp.Children[i] = replacement
			}
		}
	case *Induction:
		switch existing {
		case pp.InitRegion:
			pp.InitRegion = replacement
		case pp.OutputRegion:
			pp.OutputRegion = replacement
		}
	case *Operation:
		switch existing {
		case pp.Body:
			pp.Body = replacement
		case pp.FalseBody:
			pp.FalseBody = replacement
		case pp.EmptyBody:
			pp.EmptyBody = replacement
		case pp.AbsentBody:
			pp.AbsentBody = replacement
		case pp.UnknownBody:
			pp.UnknownBody = replacement
		}
	}
}

func indexOfChild(children []Region, r Region) int {
	for i, c := range children {
		if c == r {
			return i
		}
	}
	return len(children)
}

func insertAt(children []Region, idx int, r Region) []Region {
	children = append(children, nil)
	copy(children[idx+1:], children[idx:])
	children[idx] = r
	return children
}

// SpliceInductionAnchor replaces ancestor's position in the tree with
// region, making ancestor itself region's InitRegion. It is how the
// induction engine turns "the common ancestor of every initial-phase
// append" into the root of the fused induction region, fixing up every
// depth below the splice point since everything under ancestor just
// moved one level deeper.
func (p *Pool) SpliceInductionAnchor(ancestor Region, region *Induction) {
	parent := ancestor.Parent()
	reparentInto(parent, ancestor, region)
	ancestor.setParent(region)
	fixDepths(ancestor, region.Depth()+1)
}

// fixDepths recomputes r's depth and recurses into every child region it
// holds, following the same per-kind field layout reparentInto switches
// on.
func fixDepths(r Region, depth int) {
	r.setDepth(depth)
	switch rr := r.(type) {
	case *Procedure:
		if rr.Body != nil {
			fixDepths(rr.Body, depth+1)
		}
	case *Series:
		for _, c := range rr.Children {
			fixDepths(c, depth+1)
		}
	case *Parallel:
		for _, c := range rr.Children {
			fixDepths(c, depth+1)
		}
	case *Induction:
		if rr.InitRegion != nil {
			fixDepths(rr.InitRegion, depth+1)
		}
		if rr.CyclicRegion != nil {
			fixDepths(rr.CyclicRegion, depth+1)
		}
		if rr.OutputRegion != nil {
			fixDepths(rr.OutputRegion, depth+1)
		}
	case *Operation:
		for _, child := range []Region{rr.Body, rr.FalseBody, rr.EmptyBody, rr.AbsentBody, rr.UnknownBody} {
			if child != nil {
				fixDepths(child, depth+1)
			}
		}
	}
}

// FindCommonAncestor walks a and b up to equal lexical depth, then
// together until they coincide, returning the shared ancestor. If no
// proper common ancestor exists (a or b is, or descends from, the other's
// procedure root with no shared interior region), it fails safe by
// returning the containing procedure's body.
func FindCommonAncestor(a, b Region) Region {
	for a.Depth() > b.Depth() {
		a = a.Parent()
	}
	for b.Depth() > a.Depth() {
		b = b.Parent()
	}
	for a != b {
		pa, pb := a.Parent(), b.Parent()
		if pa == a || pb == b {
			// reached a procedure root on one side without converging
			if proc, ok := a.(*Procedure); ok {
				return proc.Body
			}
			if proc, ok := b.(*Procedure); ok {
				return proc.Body
			}
			return a
		}
		a, b = pa, pb
	}
	if proc, ok := a.(*Procedure); ok {
		return proc.Body
	}
	return a
}

// EndsWithReturn reports whether every control path through r ends with a
// return, delegating to r's own kind-specific rule.
func EndsWithReturn(r Region) bool { return r.EndsWithReturn() }

// ReplaceAllUsesWith rewrites every operation region referencing old so it
// references replacement instead, across whichever of Variables/Vectors/
// Tables/Indices old appears in, then clears old's use-list.
func ReplaceAllUsesWith[T comparable](old *T, replacement *T, users *[]*Operation, swap func(op *Operation, old, replacement *T)) {
	for _, op := range *users {
		swap(op, old, replacement)
	}
	*users = nil
}

// RemoveUnusedVectors drops every locally-defined vector of proc that has
// no remaining users, called by the optimizer once dead operation regions
// referencing them have already been eliminated.
func RemoveUnusedVectors(proc *Procedure) {
	kept := proc.LocalVectors[:0]
	for _, v := range proc.LocalVectors {
		if len(v.Users()) > 0 {
			kept = append(kept, v)
		}
	}
	proc.LocalVectors = kept
}

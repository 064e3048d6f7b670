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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/drlojekyll-go/dlcore/query"
)

// fakeColumn is a minimal query.Column for exercising VariableFor and
// GetOrCreateTable without a real dataflow graph.
type fakeColumn struct {
	id        uint64
	index     int
	typ       any
	isConstRef bool
}

func (c *fakeColumn) Id() uint64                  { return c.id }
func (c *fakeColumn) Index() int                  { return c.index }
func (c *fakeColumn) Type() any                    { return c.typ }
func (c *fakeColumn) IsConstantOrConstantRef() bool { return c.isConstRef }

// fakeView is a minimal query.View stub; only the methods GetOrCreateTable
// touches are given real behavior.
type fakeView struct {
	model int
	preds []query.View
}

func (v *fakeView) Kind() query.Kind                 { return query.KindTuple }
func (v *fakeView) Columns() []query.Column          { return nil }
func (v *fakeView) Predecessors() []query.View        { return v.preds }
func (v *fakeView) Successors() []query.View          { return nil }
func (v *fakeView) PositiveConditions() []query.View  { return nil }
func (v *fakeView) NegativeConditions() []query.View  { return nil }
func (v *fakeView) DataModel() int                    { return v.model }
func (v *fakeView) InductionGroupId() int             { return 0 }
func (v *fakeView) InductionDepth() int               { return 0 }
func (v *fakeView) InductiveSet() []query.View        { return nil }
func (v *fakeView) InductivePredecessors() []query.View    { return nil }
func (v *fakeView) NonInductivePredecessors() []query.View { return nil }
func (v *fakeView) InductiveSuccessors() []query.View      { return nil }
func (v *fakeView) NonInductiveSuccessors() []query.View   { return nil }
func (v *fakeView) ForEachUse(query.Column, func(query.UseRole, query.Column)) {}

var _ query.View = (*fakeView)(nil)
var _ query.Column = (*fakeColumn)(nil)

func TestCreateProcedureIsItsOwnParent(t *testing.T) {
	p := NewPool()
	proc := p.CreateProcedure(ProcPrimary)
	require.Equal(t, proc.ID(), proc.ID())
	require.Same(t, Region(proc), proc.Parent())
	require.Equal(t, 0, proc.Depth())
}

func TestCreateChildAssignsDepthAndParent(t *testing.T) {
	p := NewPool()
	proc := p.CreateProcedure(ProcPrimary)
	s := p.CreateSeries(proc)
	require.Same(t, Region(proc), s.Parent())
	require.Equal(t, 1, s.Depth())

	op := p.CreateOperation(s, OpReturn)
	require.Equal(t, 2, op.Depth())
	require.Same(t, Region(s), op.Parent())
}

func TestVariableForFindsAncestorBinding(t *testing.T) {
	p := NewPool()
	proc := p.CreateProcedure(ProcPrimary)
	s := p.CreateSeries(proc)
	child := p.CreateSeries(s)

	col := &fakeColumn{id: 7}
	v := p.CreateVariable(RoleParameter, nil, col)
	p.Bind(s, col, v)

	got := p.VariableFor(child, col)
	require.Same(t, v, got)
}

func TestVariableForFallsBackToConstant(t *testing.T) {
	p := NewPool()
	proc := p.CreateProcedure(ProcPrimary)

	col := &fakeColumn{id: 9, isConstRef: true}
	c := p.CreateConstant(nil, int64(42))
	c.Column = col
	p.Constants = append(p.Constants, c)

	got := p.VariableFor(proc, col)
	require.Same(t, c, got)
}

func TestVariableForPanicsOnUnresolvable(t *testing.T) {
	p := NewPool()
	proc := p.CreateProcedure(ProcPrimary)
	col := &fakeColumn{id: 1}
	require.Panics(t, func() { p.VariableFor(proc, col) })
}

func TestGetOrCreateTableSharesAcrossUnionedModels(t *testing.T) {
	p := NewPool()
	a := &fakeView{model: 1}
	b := &fakeView{model: 2, preds: []query.View{a}}

	ta := p.GetOrCreateTable(a, []any{"int"})
	tb := p.GetOrCreateTable(b, []any{"int"})
	require.Same(t, ta, tb)
}

func TestGetOrCreateIndexDeduplicatesBySpec(t *testing.T) {
	p := NewPool()
	table := &TableDef{id: 1}
	ix1 := p.GetOrCreateIndex(table, []int{0, 1}, []int{2})
	ix2 := p.GetOrCreateIndex(table, []int{0, 1}, []int{2})
	require.Same(t, ix1, ix2)

	ix3 := p.GetOrCreateIndex(table, []int{1}, nil)
	require.NotSame(t, ix1, ix3)
	require.Len(t, table.IndicesList, 2)
}

func TestExecuteAfterWrapsBodyInSeries(t *testing.T) {
	p := NewPool()
	proc := p.CreateProcedure(ProcPrimary)
	first := p.CreateOperation(proc, OpReturn)
	proc.Body = first
	first.setParent(proc)

	second := p.CreateOperation(proc, OpVectorClear)
	p.ExecuteAfter(first, second)

	s, ok := proc.Body.(*Series)
	require.True(t, ok)
	require.Equal(t, []Region{first, second}, s.Children)
	require.Equal(t, 2, second.Depth())
}

func TestExecuteBeforeInsertsAtFront(t *testing.T) {
	p := NewPool()
	proc := p.CreateProcedure(ProcPrimary)
	s := p.CreateSeries(proc)
	proc.Body = s
	a := p.CreateOperation(s, OpReturn)
	s.Children = []Region{a}

	b := p.CreateOperation(s, OpVectorClear)
	p.ExecuteBefore(a, b)

	require.Equal(t, []Region{b, a}, s.Children)
}

func TestExecuteAlongsideWrapsInParallel(t *testing.T) {
	p := NewPool()
	proc := p.CreateProcedure(ProcPrimary)
	first := p.CreateOperation(proc, OpPublish)
	proc.Body = first
	first.setParent(proc)

	second := p.CreateOperation(proc, OpPublish)
	p.ExecuteAlongside(first, second)

	par, ok := proc.Body.(*Parallel)
	require.True(t, ok)
	require.ElementsMatch(t, []Region{first, second}, par.Children)
}

func TestFindCommonAncestorConverges(t *testing.T) {
	p := NewPool()
	proc := p.CreateProcedure(ProcPrimary)
	top := p.CreateSeries(proc)
	left := p.CreateSeries(top)
	right := p.CreateParallel(top)
	leaf1 := p.CreateOperation(left, OpReturn)
	leaf2 := p.CreateOperation(right, OpReturn)

	require.Same(t, Region(top), FindCommonAncestor(leaf1, leaf2))
	require.Same(t, Region(left), FindCommonAncestor(leaf1, left))
}

func TestEndsWithReturnPropagatesThroughSeriesAndParallel(t *testing.T) {
	p := NewPool()
	proc := p.CreateProcedure(ProcPrimary)
	ret := p.CreateOperation(proc, OpReturn)
	clr := p.CreateOperation(proc, OpVectorClear)

	s := &Series{Children: []Region{clr, ret}}
	require.True(t, s.EndsWithReturn())

	par := &Parallel{Children: []Region{ret, ret}}
	require.True(t, par.EndsWithReturn())

	emptyPar := &Parallel{}
	require.False(t, emptyPar.EndsWithReturn())
}

func TestRemoveUnusedVectorsDropsVectorsWithNoUsers(t *testing.T) {
	p := NewPool()
	proc := p.CreateProcedure(ProcPrimary)
	used := p.CreateVector(VecEmpty, nil)
	unused := p.CreateVector(VecEmpty, nil)
	op := p.CreateOperation(proc, OpVectorClear)
	used.add(op)
	proc.LocalVectors = []*VectorDef{used, unused}

	RemoveUnusedVectors(proc)
	require.Equal(t, []*VectorDef{used}, proc.LocalVectors)
}

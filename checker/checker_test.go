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

package checker

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/drlojekyll-go/dlcore/ir"
	"github.com/drlojekyll-go/dlcore/query"
)

type fakeColumn struct{ id uint64 }

func (c *fakeColumn) Id() uint64                   { return c.id }
func (c *fakeColumn) Index() int                   { return 0 }
func (c *fakeColumn) Type() any                     { return "int" }
func (c *fakeColumn) IsConstantOrConstantRef() bool { return false }

type fakeView struct {
	kind  query.Kind
	cols  []query.Column
	preds []query.View
	model int

	indSet  []query.View
	indPred []query.View
	nonPred []query.View
}

func (v *fakeView) Kind() query.Kind                { return v.kind }
func (v *fakeView) Columns() []query.Column         { return v.cols }
func (v *fakeView) Predecessors() []query.View       { return v.preds }
func (v *fakeView) Successors() []query.View         { return nil }
func (v *fakeView) PositiveConditions() []query.View { return nil }
func (v *fakeView) NegativeConditions() []query.View { return nil }
func (v *fakeView) DataModel() int                   { return v.model }
func (v *fakeView) InductionGroupId() int            { return 0 }
func (v *fakeView) InductionDepth() int              { return 0 }
func (v *fakeView) InductiveSet() []query.View       { return v.indSet }
func (v *fakeView) InductivePredecessors() []query.View    { return v.indPred }
func (v *fakeView) NonInductivePredecessors() []query.View { return v.nonPred }
func (v *fakeView) InductiveSuccessors() []query.View      { return nil }
func (v *fakeView) NonInductiveSuccessors() []query.View   { return nil }
func (v *fakeView) ForEachUse(query.Column, func(query.UseRole, query.Column)) {}

var _ query.View = (*fakeView)(nil)

type negateFake struct {
	fakeView
	negated query.View
}

func (n *negateFake) Negated() query.View { return n.negated }

var _ query.NegateView = (*negateFake)(nil)

func TestCheckerForSelectBuildsStateCheck(t *testing.T) {
	pool := ir.NewPool()
	b := NewBuilder(pool)

	col := &fakeColumn{id: 1}
	v := &fakeView{kind: query.KindSelect, cols: []query.Column{col}, model: 7}

	proc := b.CheckerFor(v)
	require.Equal(t, ir.ProcTupleFinder, proc.ProcKind)
	require.Len(t, proc.ScalarParams, 1)

	check, ok := proc.Body.(*ir.Operation)
	require.True(t, ok)
	require.Equal(t, ir.OpStateCheck, check.OpKind)
	require.NotNil(t, check.Body)
	require.NotNil(t, check.AbsentBody)
	require.NotNil(t, check.UnknownBody)

	// CheckerFor is memoized: the same view yields the same procedure.
	require.Same(t, proc, b.CheckerFor(v))
}

func TestCheckerForNegateChainsMainThenNegated(t *testing.T) {
	pool := ir.NewPool()
	b := NewBuilder(pool)

	col := &fakeColumn{id: 1}
	main := &fakeView{kind: query.KindSelect, cols: []query.Column{col}, model: 1}
	negated := &fakeView{kind: query.KindSelect, cols: []query.Column{col}, model: 2}
	neg := &negateFake{
		fakeView: fakeView{kind: query.KindNegate, cols: []query.Column{col}, preds: []query.View{main, negated}},
		negated:  negated,
	}

	proc := b.CheckerFor(neg)
	mainCall, ok := proc.Body.(*ir.Operation)
	require.True(t, ok)
	require.Equal(t, ir.OpCall, mainCall.OpKind)
	require.NotNil(t, mainCall.EmptyBody)
	require.NotNil(t, mainCall.Body)

	negCall, ok := mainCall.Body.(*ir.Operation)
	require.True(t, ok)
	require.Equal(t, ir.OpCall, negCall.OpKind)
	require.Same(t, b.CheckerFor(negated), negCall.Callee)
}

func TestCheckerForUnionIsOrOfPredecessors(t *testing.T) {
	pool := ir.NewPool()
	b := NewBuilder(pool)

	col := &fakeColumn{id: 1}
	a := &fakeView{kind: query.KindSelect, cols: []query.Column{col}, model: 1}
	c := &fakeView{kind: query.KindSelect, cols: []query.Column{col}, model: 2}
	u := &fakeView{kind: query.KindUnion, cols: []query.Column{col}, model: 3, nonPred: []query.View{a, c}}

	proc := b.CheckerFor(u)
	series, ok := proc.Body.(*ir.Series)
	require.True(t, ok)
	// one state-change (mark absent) + two OR-calls + final return false
	require.Len(t, series.Children, 4)
	ret, ok := series.Children[3].(*ir.Operation)
	require.True(t, ok)
	require.Equal(t, ir.OpReturn, ret.OpKind)
	require.False(t, ret.ReturnValue)
}

func TestCheckerForCyclicInductiveUnionTerminatesAtBuildTime(t *testing.T) {
	pool := ir.NewPool()
	b := NewBuilder(pool)

	colA := &fakeColumn{id: 1}
	colB := &fakeColumn{id: 2}
	unionA := &fakeView{kind: query.KindUnion, cols: []query.Column{colA}, model: 10}
	unionB := &fakeView{kind: query.KindUnion, cols: []query.Column{colB}, model: 11}
	unionA.indPred = []query.View{unionB}
	unionB.indPred = []query.View{unionA}

	// Building unionA's checker recurses into unionB's, which recurses
	// back into unionA's: the cache-before-build strategy must resolve
	// this to the same *ir.Procedure instead of looping forever.
	proc := b.CheckerFor(unionA)
	require.NotNil(t, proc)
	require.Same(t, proc, b.CheckerFor(unionA))
}

func TestCheckerForJoinAllAvailableShortCircuits(t *testing.T) {
	pool := ir.NewPool()
	b := NewBuilder(pool)

	col := &fakeColumn{id: 1}
	p1 := &fakeView{kind: query.KindSelect, cols: []query.Column{col}, model: 1}
	p2 := &fakeView{kind: query.KindSelect, cols: []query.Column{col}, model: 2}
	join := &fakeView{kind: query.KindJoin, cols: []query.Column{col}, preds: []query.View{p1, p2}, model: 3}

	proc := b.CheckerFor(join)
	series, ok := proc.Body.(*ir.Series)
	require.True(t, ok)
	require.Len(t, series.Children, 2)
	par, ok := series.Children[0].(*ir.Parallel)
	require.True(t, ok)
	require.Len(t, par.Children, 2)
	for _, child := range par.Children {
		call := child.(*ir.Operation)
		require.Equal(t, ir.OpCall, call.OpKind)
		require.NotNil(t, call.EmptyBody)
	}
}

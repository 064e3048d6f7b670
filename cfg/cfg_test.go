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

package cfg

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/drlojekyll-go/dlcore/ir"
	"github.com/drlojekyll-go/dlcore/query"
)

type fakeColumn struct {
	id    uint64
	index int
}

func (c *fakeColumn) Id() uint64                   { return c.id }
func (c *fakeColumn) Index() int                   { return c.index }
func (c *fakeColumn) Type() any                     { return "int" }
func (c *fakeColumn) IsConstantOrConstantRef() bool { return false }

// fakeView is a hand-wired query.View: every relationship (predecessors,
// successors, data model, induction group) is set directly by the test
// rather than computed, standing in for the dataflow-graph optimizer.
type fakeView struct {
	kind  query.Kind
	cols  []query.Column
	preds []query.View
	succs []query.View
	model int

	groupID int
	depth   int
	indSet  []query.View
	indPred []query.View
	nonPred []query.View
	indSucc []query.View
	nonSucc []query.View

	forward bool
}

func (v *fakeView) Kind() query.Kind                { return v.kind }
func (v *fakeView) Columns() []query.Column         { return v.cols }
func (v *fakeView) Predecessors() []query.View       { return v.preds }
func (v *fakeView) Successors() []query.View         { return v.succs }
func (v *fakeView) PositiveConditions() []query.View { return nil }
func (v *fakeView) NegativeConditions() []query.View { return nil }
func (v *fakeView) DataModel() int                   { return v.model }
func (v *fakeView) InductionGroupId() int            { return v.groupID }
func (v *fakeView) InductionDepth() int              { return v.depth }
func (v *fakeView) InductiveSet() []query.View       { return v.indSet }
func (v *fakeView) InductivePredecessors() []query.View    { return v.indPred }
func (v *fakeView) NonInductivePredecessors() []query.View { return v.nonPred }
func (v *fakeView) InductiveSuccessors() []query.View      { return v.indSucc }
func (v *fakeView) NonInductiveSuccessors() []query.View   { return v.nonSucc }
func (v *fakeView) ForEachUse(col query.Column, fn func(query.UseRole, query.Column)) {
	if !v.forward || len(v.succs) == 0 {
		return
	}
	for _, succ := range v.succs {
		for _, sc := range succ.Columns() {
			if sc.Id() == col.Id() {
				fn(query.RoleForward, sc)
			}
		}
	}
}

var _ query.View = (*fakeView)(nil)

func TestBuildMessageHandlerSelectInsert(t *testing.T) {
	pool := ir.NewPool()
	b := NewBuilder(pool, nil)

	col := &fakeColumn{id: 1}
	insertView := &fakeView{kind: query.KindInsert, cols: []query.Column{col}, model: 5}
	msg := &fakeView{kind: query.KindStream, cols: []query.Column{col}, succs: []query.View{insertView}, forward: true}

	proc := b.BuildMessageHandler(msg)
	require.Equal(t, ir.ProcMessageHandler, proc.ProcKind)
	require.NotNil(t, proc.Body)

	loop, ok := proc.Body.(*ir.Operation)
	require.True(t, ok)
	require.Equal(t, ir.OpVectorLoop, loop.OpKind)
	require.NotNil(t, loop.Body)

	insertOp, ok := loop.Body.(*ir.Operation)
	require.True(t, ok)
	require.Equal(t, ir.OpStateChange, insertOp.OpKind)
	require.Len(t, insertOp.Tables, 1)
}

func TestBuildCompareCanonicalizesOperandOrder(t *testing.T) {
	pool := ir.NewPool()
	b := NewBuilder(pool, nil)

	proc := pool.CreateProcedure(ir.ProcPrimary)
	lhsCol, rhsCol := &fakeColumn{id: 1}, &fakeColumn{id: 2}
	lv := pool.CreateVariable(ir.RoleParameter, nil, lhsCol)
	rv := pool.CreateVariable(ir.RoleParameter, nil, rhsCol)

	cmp := &compareFake{
		fakeView: fakeView{kind: query.KindCompare, cols: []query.Column{lhsCol, rhsCol}},
		op:       query.CompareEqual,
		lhs:      lhsCol,
		rhs:      rhsCol,
	}
	s := scope{lhsCol.Id(): lv, rhsCol.Id(): rv}
	region := b.buildCompare(proc, cmp, s)
	proc.Body = region

	op := region.(*ir.Operation)
	require.Equal(t, ir.OpTupleCompare, op.OpKind)
	require.True(t, op.CompareEqual)
	if lv.ID() < rv.ID() {
		require.Same(t, lv, op.CompareLHS)
		require.Same(t, rv, op.CompareRHS)
	} else {
		require.Same(t, rv, op.CompareLHS)
		require.Same(t, lv, op.CompareRHS)
	}
}

func TestBuildCompareNotEqualSwapsBranches(t *testing.T) {
	pool := ir.NewPool()
	b := NewBuilder(pool, nil)
	proc := pool.CreateProcedure(ir.ProcPrimary)
	col := &fakeColumn{id: 1}
	successor := &fakeView{kind: query.KindInsert, cols: []query.Column{col}, model: 1}

	cmp := &compareFake{
		fakeView: fakeView{kind: query.KindCompare, cols: []query.Column{col}, succs: []query.View{successor}, forward: true},
		op:       query.CompareNotEqual,
		lhs:      col,
	}
	v := pool.CreateVariable(ir.RoleParameter, nil, col)
	region := b.buildCompare(proc, cmp, scope{col.Id(): v})
	op := region.(*ir.Operation)
	require.Nil(t, op.Body)
	require.NotNil(t, op.FalseBody)
}

type compareFake struct {
	fakeView
	op  query.CompareOp
	lhs query.Column
	rhs query.Column
}

func (c *compareFake) Op() query.CompareOp { return c.op }
func (c *compareFake) LHS() query.Column   { return c.lhs }
func (c *compareFake) RHS() query.Column   { return c.rhs }

var _ query.CompareView = (*compareFake)(nil)

func TestInductiveUnionFusesIntoOneInductionRegion(t *testing.T) {
	pool := ir.NewPool()
	b := NewBuilder(pool, nil)

	colA := &fakeColumn{id: 1}
	colB := &fakeColumn{id: 2}

	unionA := &fakeView{kind: query.KindUnion, cols: []query.Column{colA}, model: 10, groupID: 100, depth: 0}
	unionB := &fakeView{kind: query.KindUnion, cols: []query.Column{colB}, model: 11, groupID: 100, depth: 0}
	unionA.indSet = []query.View{unionA, unionB}
	unionB.indSet = unionA.indSet

	entryA := &fakeView{kind: query.KindStream, cols: []query.Column{colA}, succs: []query.View{unionA}, forward: true}
	entryB := &fakeView{kind: query.KindStream, cols: []query.Column{colB}, succs: []query.View{unionB}, forward: true}

	procA := b.BuildMessageHandler(entryA)
	procB := b.BuildMessageHandler(entryB)
	b.Drain()

	require.NotNil(t, procA.Body)
	require.NotNil(t, procB.Body)
	ind, ok := procA.Body.(*ir.Induction)
	require.True(t, ok)
	require.Equal(t, 100, ind.GroupID)
	require.Len(t, pool.Procedures, 2)
}

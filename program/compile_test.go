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

package program

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/drlojekyll-go/dlcore/query"
)

type fakeColumn struct{ id uint64 }

func (c *fakeColumn) Id() uint64                   { return c.id }
func (c *fakeColumn) Index() int                   { return 0 }
func (c *fakeColumn) Type() any                     { return "int" }
func (c *fakeColumn) IsConstantOrConstantRef() bool { return false }

// fakeView is a hand-wired query.View, the same minimal test double used
// throughout the builder packages: every relationship is set directly by
// the test instead of computed by a dataflow-graph optimizer.
type fakeView struct {
	kind  query.Kind
	cols  []query.Column
	preds []query.View
	succs []query.View
	model int

	groupID int
	indPred []query.View
	nonPred []query.View

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
func (v *fakeView) InductionDepth() int              { return 0 }
func (v *fakeView) InductiveSet() []query.View       { return nil }
func (v *fakeView) InductivePredecessors() []query.View    { return v.indPred }
func (v *fakeView) NonInductivePredecessors() []query.View { return v.nonPred }
func (v *fakeView) InductiveSuccessors() []query.View      { return nil }
func (v *fakeView) NonInductiveSuccessors() []query.View   { return nil }
func (v *fakeView) ForEachUse(col query.Column, fn func(query.UseRole, query.Column)) {
	if !v.forward {
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

type negateFake struct {
	fakeView
	negated query.View
}

func (n *negateFake) Negated() query.View { return n.negated }

var _ query.NegateView = (*negateFake)(nil)

// TestCompileLinearChainSelectInsert builds the simplest possible message
// handler: a stream tuple flows through a select into a table insert.
func TestCompileLinearChainSelectInsert(t *testing.T) {
	col := &fakeColumn{id: 1}
	insertView := &fakeView{kind: query.KindInsert, cols: []query.Column{col}, model: 5}
	sel := &fakeView{kind: query.KindSelect, cols: []query.Column{col}, succs: []query.View{insertView}, model: 5, forward: true}
	msg := &fakeView{kind: query.KindStream, cols: []query.Column{col}, succs: []query.View{sel}, forward: true}

	prog, err := Compile([]query.View{msg}, WithValidation())
	require.NoError(t, err)
	require.NotNil(t, prog)
	require.NotEmpty(t, prog.Procedures)
}

// TestCompileRejectsNonStreamEntry exercises the recoverable error path: an
// entry that isn't a stream view is a caller mistake, not an invariant
// violation, and should come back as an error rather than a panic.
func TestCompileRejectsNonStreamEntry(t *testing.T) {
	col := &fakeColumn{id: 1}
	notStream := &fakeView{kind: query.KindSelect, cols: []query.Column{col}}

	_, err := Compile([]query.View{notStream})
	require.Error(t, err)
}

// TestCompileAntiJoinNegateChecksThenProceeds builds a stream that selects,
// negates against a second select, and on the negation failing inserts.
func TestCompileAntiJoinNegateChecksThenProceeds(t *testing.T) {
	col := &fakeColumn{id: 1}
	negatedView := &fakeView{kind: query.KindSelect, cols: []query.Column{col}, model: 9}
	insertView := &fakeView{kind: query.KindInsert, cols: []query.Column{col}, model: 5}
	neg := &negateFake{
		fakeView: fakeView{kind: query.KindNegate, cols: []query.Column{col}, succs: []query.View{insertView}, forward: true},
		negated:  negatedView,
	}
	sel := &fakeView{kind: query.KindSelect, cols: []query.Column{col}, succs: []query.View{neg}, model: 5, forward: true}
	msg := &fakeView{kind: query.KindStream, cols: []query.Column{col}, succs: []query.View{sel}, forward: true}

	prog, err := Compile([]query.View{msg}, WithValidation())
	require.NoError(t, err)
	require.NotNil(t, prog)
	// The message handler plus the synthesized checker for negatedView.
	require.GreaterOrEqual(t, len(prog.Procedures), 2)
}

// TestCompileWithoutOptimizerSkipsMerge confirms the WithoutOptimizer
// option leaves the raw builder output alone (no procedure-merge pass).
func TestCompileWithoutOptimizerSkipsMerge(t *testing.T) {
	col := &fakeColumn{id: 1}
	insertView := &fakeView{kind: query.KindInsert, cols: []query.Column{col}, model: 5}
	sel := &fakeView{kind: query.KindSelect, cols: []query.Column{col}, succs: []query.View{insertView}, model: 5, forward: true}
	msg := &fakeView{kind: query.KindStream, cols: []query.Column{col}, succs: []query.View{sel}, forward: true}

	prog, err := Compile([]query.View{msg}, WithoutOptimizer())
	require.NoError(t, err)
	require.NotNil(t, prog)
}

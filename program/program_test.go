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

	"github.com/drlojekyll-go/dlcore/ir"
)

func TestValidateAcceptsWellFormedProcedure(t *testing.T) {
	pool := ir.NewPool()
	proc := pool.CreateProcedure(ir.ProcPrimary)
	ret := pool.CreateOperation(proc, ir.OpReturn)
	ret.ReturnValue = true
	proc.Body = ret

	prog := FromPool(pool)
	require.NoError(t, Validate(prog))
}

func TestValidateRejectsParentMismatch(t *testing.T) {
	pool := ir.NewPool()
	proc := pool.CreateProcedure(ir.ProcPrimary)
	other := pool.CreateProcedure(ir.ProcPrimary)
	ret := pool.CreateOperation(other, ir.OpReturn) // parented to the wrong procedure
	proc.Body = ret

	prog := FromPool(pool)
	require.Error(t, Validate(prog))
}

type countingVisitor struct {
	operations int
}

func (c *countingVisitor) VisitProcedure(p *ir.Procedure) { Walk(c, p.Body) }
func (c *countingVisitor) VisitSeries(s *ir.Series) {
	for _, child := range s.Children {
		Walk(c, child)
	}
}
func (c *countingVisitor) VisitParallel(p *ir.Parallel) {
	for _, child := range p.Children {
		Walk(c, child)
	}
}
func (c *countingVisitor) VisitInduction(i *ir.Induction) {}
func (c *countingVisitor) VisitOperation(o *ir.Operation) {
	c.operations++
}

var _ Visitor = (*countingVisitor)(nil)

func TestWalkDispatchesByRegionKind(t *testing.T) {
	pool := ir.NewPool()
	proc := pool.CreateProcedure(ir.ProcPrimary)
	s := pool.CreateSeries(proc)
	op1 := pool.CreateOperation(s, ir.OpLet)
	op2 := pool.CreateOperation(s, ir.OpReturn)
	op2.ReturnValue = true
	s.Children = []ir.Region{op1, op2}
	proc.Body = s

	v := &countingVisitor{}
	Walk(v, proc)
	require.Equal(t, 2, v.operations)
}

func TestWalkChildrenDescendsOperationBranches(t *testing.T) {
	pool := ir.NewPool()
	proc := pool.CreateProcedure(ir.ProcPrimary)
	check := pool.CreateOperation(proc, ir.OpStateCheck)
	check.Body = pool.CreateOperation(check, ir.OpReturn)
	check.AbsentBody = pool.CreateOperation(check, ir.OpReturn)
	proc.Body = check

	v := &countingVisitor{}
	WalkChildren(v, check)
	require.Equal(t, 2, v.operations) // Body and AbsentBody; the nil branches are skipped
}

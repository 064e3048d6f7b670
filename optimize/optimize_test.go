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

package optimize

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/drlojekyll-go/dlcore/ir"
)

func TestHashEqualsIdenticalReturnTrue(t *testing.T) {
	pool := ir.NewPool()
	proc := pool.CreateProcedure(ir.ProcPrimary)
	ret := pool.CreateOperation(proc, ir.OpReturn)
	ret.ReturnValue = true
	proc.Body = ret

	proc2 := pool.CreateProcedure(ir.ProcPrimary)
	ret2 := pool.CreateOperation(proc2, ir.OpReturn)
	ret2.ReturnValue = true
	proc2.Body = ret2

	require.Equal(t, Hash(proc.Body, FullDepth), Hash(proc2.Body, FullDepth))
	eq := NewEquivSet()
	eq.Push()
	require.True(t, Equals(proc.Body, proc2.Body, FullDepth, eq))
}

func TestHashEqualsDistinguishesReturnValue(t *testing.T) {
	pool := ir.NewPool()
	proc := pool.CreateProcedure(ir.ProcPrimary)
	a := pool.CreateOperation(proc, ir.OpReturn)
	a.ReturnValue = true
	b := pool.CreateOperation(proc, ir.OpReturn)
	b.ReturnValue = false

	eq := NewEquivSet()
	eq.Push()
	require.False(t, Equals(a, b, FullDepth, eq))
}

func TestRewriteSeriesTruncatesAfterReturn(t *testing.T) {
	pool := ir.NewPool()
	proc := pool.CreateProcedure(ir.ProcPrimary)
	s := pool.CreateSeries(proc)
	ret := pool.CreateOperation(s, ir.OpReturn)
	ret.ReturnValue = true
	dead := pool.CreateOperation(s, ir.OpReturn)
	dead.ReturnValue = false
	s.Children = []ir.Region{ret, dead}
	proc.Body = s

	rewriteToFixpoint(proc)

	op, ok := proc.Body.(*ir.Operation)
	require.True(t, ok)
	require.Equal(t, ir.OpReturn, op.OpKind)
	require.True(t, op.ReturnValue)
}

func TestRewriteOperationFoldsTrivialTupleCompare(t *testing.T) {
	pool := ir.NewPool()
	proc := pool.CreateProcedure(ir.ProcPrimary)
	v := pool.CreateVariable(ir.RoleParameter, nil, nil)
	cmp := pool.CreateOperation(proc, ir.OpTupleCompare)
	cmp.CompareEqual = true
	cmp.CompareLHS = v
	cmp.CompareRHS = v
	trueRet := pool.CreateOperation(cmp, ir.OpReturn)
	trueRet.ReturnValue = true
	cmp.Body = trueRet
	falseRet := pool.CreateOperation(cmp, ir.OpReturn)
	falseRet.ReturnValue = false
	cmp.FalseBody = falseRet
	proc.Body = cmp

	rewriteToFixpoint(proc)

	op, ok := proc.Body.(*ir.Operation)
	require.True(t, ok)
	require.Equal(t, ir.OpReturn, op.OpKind)
	require.True(t, op.ReturnValue)
}

func TestRewriteParallelDedupesIdenticalBranches(t *testing.T) {
	pool := ir.NewPool()
	proc := pool.CreateProcedure(ir.ProcPrimary)
	par := pool.CreateParallel(proc)
	a := pool.CreateOperation(par, ir.OpReturn)
	a.ReturnValue = true
	b := pool.CreateOperation(par, ir.OpReturn)
	b.ReturnValue = true
	par.Children = []ir.Region{a, b}
	proc.Body = par

	rewriteToFixpoint(proc)

	// A singleton parallel collapses to its only child.
	op, ok := proc.Body.(*ir.Operation)
	require.True(t, ok)
	require.Equal(t, ir.OpReturn, op.OpKind)
}

func TestRunMergesDuplicateProcedures(t *testing.T) {
	pool := ir.NewPool()

	makeReturnTrue := func() *ir.Procedure {
		p := pool.CreateProcedure(ir.ProcTupleFinder)
		ret := pool.CreateOperation(p, ir.OpReturn)
		ret.ReturnValue = true
		p.Body = ret
		return p
	}
	dup1 := makeReturnTrue()
	dup2 := makeReturnTrue()

	caller := pool.CreateProcedure(ir.ProcPrimary)
	call := pool.CreateOperation(caller, ir.OpCall)
	call.Callee = dup2
	caller.Body = call

	var replaced []*ir.Procedure
	opt := New(pool)
	opt.OnProcedureReplaced = func(old, kept *ir.Procedure) { replaced = append(replaced, old) }
	opt.Run()

	require.Len(t, pool.Procedures, 2) // dup1 (or dup2) + caller
	require.Len(t, replaced, 1)

	require.Equal(t, dup1, call.Callee)
}

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

// Package optimize hash-conses the control-flow tree a builder produces:
// it runs a fixed-point pass of local rewrites (dropping no-ops, flattening
// nested series/parallel, truncating dead code after a return, folding
// trivial tuple comparisons) bottom-up over every procedure, then merges
// whole procedures that turn out to be structural duplicates and retargets
// every call to the survivor.
package optimize

import (
	"golang.org/x/exp/slices"

	"github.com/drlojekyll-go/dlcore/ir"
)

// Optimizer runs the rewrite-to-fixpoint and procedure-merge passes over a
// pool. OnProcedureReplaced, when set, is invoked once per procedure the
// merge pass discards, naming its surviving duplicate — the extension
// point a caller holding its own procedure-keyed state (an export table, a
// debug-name map) uses to follow the rewrite.
type Optimizer struct {
	pool                *ir.Pool
	OnProcedureReplaced func(old, kept *ir.Procedure)
}

// New returns an Optimizer bound to pool.
func New(pool *ir.Pool) *Optimizer {
	return &Optimizer{pool: pool}
}

// Run rewrites every procedure currently in the pool to a fixed point and
// then merges structural duplicates. It may be called more than once (a
// later builder pass may add procedures the first Run never saw).
func (o *Optimizer) Run() {
	for _, p := range o.pool.Procedures {
		rewriteToFixpoint(p)
	}
	o.mergeProcedures()
}

// Run is the package-level convenience form of New(pool).Run(), for a
// caller with no interest in OnProcedureReplaced.
func Run(pool *ir.Pool) {
	New(pool).Run()
}

func rewriteToFixpoint(p *ir.Procedure) {
	for {
		changed := false
		p.Body = rewriteRegion(p.Body, &changed)
		if !changed {
			return
		}
	}
}

// rewriteRegion rewrites r and its children bottom-up (children first, so a
// child-level simplification is visible to its parent's rewrite in the same
// pass) and reports via *changed whether anything in the tree moved.
func rewriteRegion(r ir.Region, changed *bool) ir.Region {
	if r == nil {
		return nil
	}
	switch rr := r.(type) {
	case *ir.Series:
		return rewriteSeries(rr, changed)
	case *ir.Parallel:
		return rewriteParallel(rr, changed)
	case *ir.Induction:
		return rewriteInduction(rr, changed)
	case *ir.Operation:
		return rewriteOperation(rr, changed)
	default:
		return r
	}
}

func rewriteSeries(s *ir.Series, changed *bool) ir.Region {
	next := make([]ir.Region, 0, len(s.Children))
	for _, c := range s.Children {
		c = rewriteRegion(c, changed)
		if c == nil {
			*changed = true
			continue
		}
		if nested, ok := c.(*ir.Series); ok {
			*changed = true
			next = append(next, nested.Children...)
		} else {
			next = append(next, c)
		}
		if c.EndsWithReturn() {
			break
		}
	}
	if len(next) != len(s.Children) {
		*changed = true
	}
	s.Children = next
	switch len(s.Children) {
	case 0:
		return nil
	case 1:
		*changed = true
		return s.Children[0]
	default:
		return s
	}
}

func rewriteParallel(p *ir.Parallel, changed *bool) ir.Region {
	next := make([]ir.Region, 0, len(p.Children))
	for _, c := range p.Children {
		c = rewriteRegion(c, changed)
		if c == nil {
			*changed = true
			continue
		}
		if nested, ok := c.(*ir.Parallel); ok {
			*changed = true
			next = append(next, nested.Children...)
		} else {
			next = append(next, c)
		}
	}
	next = dedupeParallelChildren(next, changed)
	if len(next) != len(p.Children) {
		*changed = true
	}
	p.Children = next
	switch len(p.Children) {
	case 0:
		return nil
	case 1:
		*changed = true
		return p.Children[0]
	default:
		return p
	}
}

// dedupeParallelChildren drops any child that is a full-depth structural
// duplicate of one already kept: the branches of a Parallel have no
// ordering dependency between them, so a repeated branch is pure waste.
func dedupeParallelChildren(children []ir.Region, changed *bool) []ir.Region {
	kept := children[:0:0]
	for _, c := range children {
		dup := false
		for _, k := range kept {
			eq := NewEquivSet()
			eq.Push()
			if Equals(c, k, FullDepth, eq) {
				dup = true
				break
			}
		}
		if dup {
			*changed = true
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

func rewriteInduction(i *ir.Induction, changed *bool) ir.Region {
	i.InitRegion = rewriteRegion(i.InitRegion, changed)
	if i.CyclicRegion != nil {
		if r := rewriteRegion(i.CyclicRegion, changed); r != nil {
			i.CyclicRegion, _ = r.(*ir.Parallel)
		} else {
			i.CyclicRegion = nil
			*changed = true
		}
	}
	i.OutputRegion = rewriteRegion(i.OutputRegion, changed)
	return i
}

func rewriteOperation(op *ir.Operation, changed *bool) ir.Region {
	op.Body = rewriteRegion(op.Body, changed)
	op.FalseBody = rewriteRegion(op.FalseBody, changed)
	op.EmptyBody = rewriteRegion(op.EmptyBody, changed)
	op.AbsentBody = rewriteRegion(op.AbsentBody, changed)
	op.UnknownBody = rewriteRegion(op.UnknownBody, changed)

	if op.OpKind == ir.OpLet && len(op.Variables) == 0 && op.FalseBody == nil &&
		op.EmptyBody == nil && op.AbsentBody == nil && op.UnknownBody == nil {
		*changed = true
		return op.Body
	}

	if op.OpKind == ir.OpTupleCompare {
		if op.CompareLHS != nil && op.CompareRHS != nil {
			if op.CompareLHS == op.CompareRHS || op.CompareLHS.ID() == op.CompareRHS.ID() {
				*changed = true
				if op.CompareEqual {
					return op.Body
				}
				return op.FalseBody
			}
			if op.CompareLHS.Role == ir.RoleConstant && op.CompareRHS.Role == ir.RoleConstant {
				*changed = true
				eq := op.CompareLHS.Const == op.CompareRHS.Const
				if eq == op.CompareEqual {
					return op.Body
				}
				return op.FalseBody
			}
		}
	}
	return op
}

// mergeProcedures groups procedures by full-depth structural hash, confirms
// candidates within a group with a full-depth Equals, and rewrites every
// surviving procedure's OpCall sites to target one representative per group.
// Within a group the lowest-numbered procedure always survives: sorting by
// id before the pairwise comparison makes that deterministic rather than an
// accident of pool iteration order.
func (o *Optimizer) mergeProcedures() {
	groups := map[uint64][]*ir.Procedure{}
	for _, p := range o.pool.Procedures {
		h := Hash(p, FullDepth)
		groups[h] = append(groups[h], p)
	}
	for _, candidates := range groups {
		slices.SortFunc(candidates, func(a, b *ir.Procedure) bool { return a.ID() < b.ID() })
	}

	replace := map[*ir.Procedure]*ir.Procedure{}
	for _, candidates := range groups {
		for i, a := range candidates {
			if _, done := replace[a]; done {
				continue
			}
			for _, b := range candidates[i+1:] {
				if _, done := replace[b]; done {
					continue
				}
				if a.ProcKind != b.ProcKind {
					continue
				}
				eq := NewEquivSet()
				eq.Push()
				if Equals(a, b, FullDepth, eq) {
					replace[b] = a
					if o.OnProcedureReplaced != nil {
						o.OnProcedureReplaced(b, a)
					}
				}
			}
		}
	}
	if len(replace) == 0 {
		return
	}

	kept := o.pool.Procedures[:0:0]
	for _, p := range o.pool.Procedures {
		if _, gone := replace[p]; gone {
			continue
		}
		kept = append(kept, p)
	}
	o.pool.Procedures = kept

	for _, p := range kept {
		rewriteCallees(p.Body, replace)
	}
}

func rewriteCallees(r ir.Region, replace map[*ir.Procedure]*ir.Procedure) {
	if r == nil {
		return
	}
	switch rr := r.(type) {
	case *ir.Series:
		for _, c := range rr.Children {
			rewriteCallees(c, replace)
		}
	case *ir.Parallel:
		for _, c := range rr.Children {
			rewriteCallees(c, replace)
		}
	case *ir.Induction:
		rewriteCallees(rr.InitRegion, replace)
		if rr.CyclicRegion != nil {
			rewriteCallees(rr.CyclicRegion, replace)
		}
		rewriteCallees(rr.OutputRegion, replace)
	case *ir.Operation:
		if rr.OpKind == ir.OpCall && rr.Callee != nil {
			for {
				kept, ok := replace[rr.Callee]
				if !ok {
					break
				}
				rr.Callee = kept
			}
		}
		rewriteCallees(rr.Body, replace)
		rewriteCallees(rr.FalseBody, replace)
		rewriteCallees(rr.EmptyBody, replace)
		rewriteCallees(rr.AbsentBody, replace)
		rewriteCallees(rr.UnknownBody, replace)
	}
}

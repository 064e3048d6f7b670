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

// Package checker synthesizes top-down "is this tuple still provable?"
// procedures for every view that can receive or produce deletions. Each
// procedure takes the view's columns as arguments and returns a bool;
// callers (the CFG builder's negate dispatch, and checkers for other
// views) call it rather than requiring the view to be stored everywhere a
// deletion might need to re-derive presence.
package checker

import (
	"fmt"

	"github.com/drlojekyll-go/dlcore/ir"
	"github.com/drlojekyll-go/dlcore/query"
)

// Builder synthesizes and memoizes checker procedures, one per view,
// sharing pool with whatever CFG builder is lowering the same query graph
// (so checker-internal state tables and builder-internal state tables are
// the same tables).
type Builder struct {
	Pool *ir.Pool

	cache map[query.View]*ir.Procedure
}

// NewBuilder returns a checker builder writing into pool.
func NewBuilder(pool *ir.Pool) *Builder {
	return &Builder{Pool: pool, cache: map[query.View]*ir.Procedure{}}
}

// scope binds query columns to the checker procedure's own parameter
// variables (or to locally-introduced variables like functor outputs).
type scope map[uint64]*ir.Variable

func (s scope) fork() scope {
	out := make(scope, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func paramVars(s scope, cols []query.Column) []*ir.Variable {
	out := make([]*ir.Variable, 0, len(cols))
	for _, c := range cols {
		out = append(out, s[c.Id()])
	}
	return out
}

// CheckerFor returns (synthesizing on first request) the procedure that
// proves or disproves presence of a tuple through v. It satisfies
// cfg.CheckerProvider without importing cfg, avoiding a package cycle
// between the two builders.
//
// The cache is populated with the procedure shell before its body is
// built, so a cyclic call graph (an inductive union whose own checker
// recurses back into itself through its predecessors) resolves to the same
// *ir.Procedure instead of recursing forever at build time — a call to a
// not-yet-fully-built procedure is exactly the recursive call a real
// invocation of the generated code would make.
func (b *Builder) CheckerFor(v query.View) *ir.Procedure {
	if v == nil {
		return nil
	}
	if p, ok := b.cache[v]; ok {
		return p
	}
	proc := b.Pool.CreateProcedure(ir.ProcTupleFinder)
	b.cache[v] = proc

	s := make(scope, len(v.Columns()))
	for _, c := range v.Columns() {
		pv := b.Pool.CreateVariable(ir.RoleParameter, c.Type(), c)
		proc.ScalarParams = append(proc.ScalarParams, pv)
		s[c.Id()] = pv
	}
	proc.Body = b.build(proc, v, s)
	return proc
}

func (b *Builder) build(parent ir.Region, v query.View, s scope) ir.Region {
	switch v.Kind() {
	case query.KindSelect:
		return b.buildSelect(parent, v, s)
	case query.KindTuple:
		return b.forwardToPredecessor(parent, v, s)
	case query.KindCompare:
		return b.buildCompare(parent, v, s)
	case query.KindJoin:
		return b.BuildJoinChecker(parent, v, s)
	case query.KindProduct:
		return b.BuildJoinChecker(parent, v, s) // a product is a zero-pivot join: the same AND-of-predecessors rule applies
	case query.KindMap:
		return b.buildMap(parent, v, s)
	case query.KindNegate:
		return b.buildNegate(parent, v, s)
	case query.KindUnion:
		return b.buildUnion(parent, v, s)
	case query.KindStream:
		// A select from a message stream is ephemeral (nothing persists
		// it), so a top-down check of it always answers false.
		return b.returnBool(parent, false)
	case query.KindInsert:
		return b.forwardToPredecessor(parent, v, s)
	default:
		panic(fmt.Sprintf("checker: unhandled view kind %s", v.Kind()))
	}
}

func (b *Builder) returnBool(parent ir.Region, val bool) ir.Region {
	ret := b.Pool.CreateOperation(parent, ir.OpReturn)
	ret.ReturnValue = val
	return ret
}

// buildSelect checks the table's state for a select from a relation:
// present answers true, absent answers false, and unknown marks the tuple
// absent, calls the predecessor's checker, and — only on a true result —
// re-marks the tuple present before answering true. A select from a
// stream (no backing table) is ephemeral and always answers false.
func (b *Builder) buildSelect(parent ir.Region, v query.View, s scope) ir.Region {
	t := b.tableFor(v)
	if t == nil {
		return b.returnBool(parent, false)
	}
	vars := paramVars(s, v.Columns())

	check := b.Pool.CreateOperation(parent, ir.OpStateCheck)
	check.Tables = []*ir.TableDef{t}
	check.Variables = vars
	check.Body = b.returnBool(check, true)
	check.AbsentBody = b.returnBool(check, false)

	markAbsent := b.Pool.CreateOperation(check, ir.OpStateChange)
	markAbsent.Tables = []*ir.TableDef{t}
	markAbsent.Variables = vars

	var predChecker *ir.Procedure
	if preds := v.Predecessors(); len(preds) > 0 {
		predChecker = b.CheckerFor(preds[0])
	}
	call := b.Pool.CreateOperation(markAbsent, ir.OpCall)
	call.Callee = predChecker
	call.Variables = vars
	call.EmptyBody = b.returnBool(call, false)

	remark := b.Pool.CreateOperation(call, ir.OpStateChange)
	remark.Tables = []*ir.TableDef{t}
	remark.Variables = vars
	remark.Body = b.returnBool(remark, true)
	call.Body = remark

	markAbsent.Body = call
	check.UnknownBody = markAbsent
	return check
}

// forwardToPredecessor calls the predecessor's checker with the same
// columns and returns its result unchanged; used for tuple/let-like views
// and for inserts (whose presence is exactly their predecessor's).
func (b *Builder) forwardToPredecessor(parent ir.Region, v query.View, s scope) ir.Region {
	preds := v.Predecessors()
	if len(preds) == 0 {
		return b.returnBool(parent, false)
	}
	call := b.Pool.CreateOperation(parent, ir.OpCall)
	call.Callee = b.CheckerFor(preds[0])
	call.Variables = paramVars(s, preds[0].Columns())
	call.Body = b.returnBool(call, true)
	call.EmptyBody = b.returnBool(call, false)
	return call
}

// buildCompare checks the literal predicate first; on failure it answers
// false immediately, otherwise it falls through to the predecessor's
// checker. Equality canonicalizes to the same CompareEqual-plus-swapped-
// branches shape the CFG builder uses for the same reason: one physical
// comparison kind, inequality represented by which branch continues.
func (b *Builder) buildCompare(parent ir.Region, v query.View, s scope) ir.Region {
	cv := query.AsCompare(v)
	op := b.Pool.CreateOperation(parent, ir.OpTupleCompare)
	op.CompareEqual = true
	if lhs := cv.LHS(); lhs != nil {
		op.CompareLHS = s[lhs.Id()]
	}
	if rhs := cv.RHS(); rhs != nil {
		op.CompareRHS = s[rhs.Id()]
	}

	holds := b.forwardToPredecessor(op, v, s)
	fails := b.returnBool(op, false)
	if cv.Op() == query.CompareNotEqual {
		op.FalseBody = holds
		op.Body = fails
	} else {
		op.Body = holds
		op.FalseBody = fails
	}
	return op
}

// BuildJoinChecker handles a join or product (a product is the zero-pivot
// case of the same rule): when every predecessor already covers all of v's
// columns, it runs an AND of their checkers under a parallel region,
// short-circuiting to false as soon as one fails; otherwise it picks the
// predecessor with the best column coverage, scans its table, and recurses
// with the full column set against the remaining predecessors — standing
// in for a pivot-vector loop join, where the loop's role here is just to
// enumerate scan matches rather than to accumulate across iterations the
// way the CFG builder's induction-aware join does.
func (b *Builder) BuildJoinChecker(parent ir.Region, v query.View, s scope) ir.Region {
	preds := v.Predecessors()
	full := len(preds) > 0
	for _, pred := range preds {
		if !coversAll(pred.Columns(), v.Columns()) {
			full = false
			break
		}
	}
	if full {
		return b.buildJoinAllAvailable(parent, preds, s)
	}
	return b.buildJoinPartial(parent, v, preds, s)
}

func (b *Builder) buildJoinAllAvailable(parent ir.Region, preds []query.View, s scope) ir.Region {
	series := b.Pool.CreateSeries(parent)
	par := b.Pool.CreateParallel(series)
	series.Children = []ir.Region{par}
	for _, pred := range preds {
		call := b.Pool.CreateOperation(par, ir.OpCall)
		call.Callee = b.CheckerFor(pred)
		call.Variables = paramVars(s, pred.Columns())
		call.EmptyBody = b.returnBool(call, false)
		par.Children = append(par.Children, call)
	}
	ret := b.Pool.CreateOperation(series, ir.OpReturn)
	ret.ReturnValue = true
	series.Children = append(series.Children, ret)
	return series
}

func (b *Builder) buildJoinPartial(parent ir.Region, v query.View, preds []query.View, s scope) ir.Region {
	if len(preds) == 0 {
		return b.returnBool(parent, false)
	}
	best, bestCount := preds[0], overlapCount(preds[0].Columns(), v.Columns())
	for _, pred := range preds[1:] {
		if c := overlapCount(pred.Columns(), v.Columns()); c > bestCount {
			best, bestCount = pred, c
		}
	}

	scan := b.Pool.CreateOperation(parent, ir.OpTableScan)
	if t := b.tableFor(best); t != nil {
		scan.Tables = []*ir.TableDef{t}
	}
	for _, c := range best.Columns() {
		sv := b.Pool.CreateVariable(ir.RoleJoinNonPivot, c.Type(), c)
		scan.Variables = append(scan.Variables, sv)
		s[c.Id()] = sv
	}

	series := b.Pool.CreateSeries(scan)
	scan.Body = series
	for _, pred := range preds {
		if pred == best {
			continue
		}
		call := b.Pool.CreateOperation(series, ir.OpCall)
		call.Callee = b.CheckerFor(pred)
		call.Variables = paramVars(s, pred.Columns())
		call.EmptyBody = b.returnBool(call, false)
		series.Children = append(series.Children, call)
	}
	ret := b.Pool.CreateOperation(series, ir.OpReturn)
	ret.ReturnValue = true
	series.Children = append(series.Children, ret)
	return scan
}

func coversAll(have, want []query.Column) bool {
	return overlapCount(have, want) == len(want)
}

func overlapCount(have, want []query.Column) int {
	ids := make(map[uint64]struct{}, len(have))
	for _, c := range have {
		ids[c.Id()] = struct{}{}
	}
	n := 0
	for _, c := range want {
		if _, ok := ids[c.Id()]; ok {
			n++
		}
	}
	return n
}

// buildMap calls the functor; EmptyBody (nothing generated) answers false.
// On a generated tuple it guards on the functor's free outputs matching
// the caller's arguments before falling through to the predecessor's
// checker — a mismatch on any compared column answers false.
func (b *Builder) buildMap(parent ir.Region, v query.View, s scope) ir.Region {
	mv := query.AsMap(v)
	op := b.Pool.CreateOperation(parent, ir.OpGenerate)

	var guards [][2]*ir.Variable
	for _, c := range mv.FreeOutputs() {
		fv := b.Pool.CreateVariable(ir.RoleFunctorOutput, c.Type(), c)
		op.Variables = append(op.Variables, fv)
		if caller := s[c.Id()]; caller != nil {
			guards = append(guards, [2]*ir.Variable{fv, caller})
		}
		s[c.Id()] = fv
	}

	cont := b.forwardToPredecessor(op, v, s)
	op.Body = b.equalityGuard(op, guards, cont)
	op.EmptyBody = b.returnBool(op, false)
	return op
}

func (b *Builder) equalityGuard(parent ir.Region, pairs [][2]*ir.Variable, onTrue ir.Region) ir.Region {
	if len(pairs) == 0 {
		return onTrue
	}
	op := b.Pool.CreateOperation(parent, ir.OpTupleCompare)
	op.CompareEqual = true
	op.CompareLHS, op.CompareRHS = pairs[0][0], pairs[0][1]
	op.FalseBody = b.returnBool(op, false)
	op.Body = b.equalityGuard(op, pairs[1:], onTrue)
	return op
}

// buildNegate calls the non-negated predecessor's checker; on false it
// answers false immediately. On true, it calls the negated view's checker
// and answers true iff that call says the negated tuple is absent.
func (b *Builder) buildNegate(parent ir.Region, v query.View, s scope) ir.Region {
	nv := query.AsNegate(v)
	var mainPred query.View
	for _, p := range v.Predecessors() {
		if p != nv.Negated() {
			mainPred = p
			break
		}
	}

	negCall := func(under ir.Region) ir.Region {
		call := b.Pool.CreateOperation(under, ir.OpCall)
		call.Callee = b.CheckerFor(nv.Negated())
		call.Variables = paramVars(s, nv.Negated().Columns())
		call.Body = b.returnBool(call, false)
		call.EmptyBody = b.returnBool(call, true)
		return call
	}

	if mainPred == nil {
		return negCall(parent)
	}
	mainCall := b.Pool.CreateOperation(parent, ir.OpCall)
	mainCall.Callee = b.CheckerFor(mainPred)
	mainCall.Variables = paramVars(s, mainPred.Columns())
	mainCall.EmptyBody = b.returnBool(mainCall, false)
	mainCall.Body = negCall(mainCall)
	return mainCall
}

// buildUnion proves a union's tuple through its non-inductive predecessors
// first, then its inductive predecessors, answering true as soon as any
// succeeds and false only once every predecessor has failed. A cyclic
// inductive call is broken by marking the tuple absent in the union's own
// table before recursing, so a re-entrant arrival short-circuits through
// buildSelect's state check instead of recursing forever at runtime.
func (b *Builder) buildUnion(parent ir.Region, v query.View, s scope) ir.Region {
	series := b.Pool.CreateSeries(parent)
	vars := paramVars(s, v.Columns())
	if t := b.tableFor(v); t != nil {
		mark := b.Pool.CreateOperation(series, ir.OpStateChange)
		mark.Tables = []*ir.TableDef{t}
		mark.Variables = vars
		series.Children = append(series.Children, mark)
	}
	b.appendOrChecks(series, v.NonInductivePredecessors(), s)
	b.appendOrChecks(series, v.InductivePredecessors(), s)
	ret := b.Pool.CreateOperation(series, ir.OpReturn)
	ret.ReturnValue = false
	series.Children = append(series.Children, ret)
	return series
}

func (b *Builder) appendOrChecks(series *ir.Series, preds []query.View, s scope) {
	for _, pred := range preds {
		call := b.Pool.CreateOperation(series, ir.OpCall)
		call.Callee = b.CheckerFor(pred)
		call.Variables = paramVars(s, pred.Columns())
		call.Body = b.returnBool(call, true)
		series.Children = append(series.Children, call)
	}
}

// tableFor mirrors cfg.Builder.tableFor: the table backing v's data model,
// or nil for a view with none (e.g. an in-flight stream tuple). Checker
// and CFG builder share one *ir.Pool, so both resolve to the same *ir.TableDef
// for the same view.
func (b *Builder) tableFor(v query.View) *ir.TableDef {
	if v.DataModel() == 0 {
		return nil
	}
	cols := v.Columns()
	types := make([]any, len(cols))
	for i, c := range cols {
		types[i] = c.Type()
	}
	return b.Pool.GetOrCreateTable(v, types)
}

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

// Package cfg lowers a dataflow view graph into control-flow-IR procedures:
// one entry procedure per message view, eager dispatch through successors,
// and one fused induction region per cyclic-union equivalence class.
package cfg

import (
	"fmt"

	"github.com/drlojekyll-go/dlcore/ir"
	"github.com/drlojekyll-go/dlcore/query"
)

// CheckerProvider resolves the top-down checker procedure for a view,
// synthesizing it on first request. Negate dispatch calls into it; the
// checker builder itself lives in a separate package to avoid a import
// cycle between the two builders.
type CheckerProvider interface {
	CheckerFor(v query.View) *ir.Procedure
}

// Builder lowers one or more message entry points into procedures, sharing
// one Pool (and therefore one table/index/induction namespace) across all
// of them.
type Builder struct {
	Pool     *ir.Pool
	Checkers CheckerProvider

	induction *engine
}

// NewBuilder returns a builder writing into pool. checkers may be nil if
// the view graph has no negations to lower yet.
func NewBuilder(pool *ir.Pool, checkers CheckerProvider) *Builder {
	b := &Builder{Pool: pool, Checkers: checkers}
	b.induction = newEngine(b)
	return b
}

// scope binds query columns to IR variables within one region, threading
// through recursive Build calls without mutating the region tree's own
// column map (which is reserved for cross-procedure lookups via
// ir.Pool.VariableFor).
type scope map[uint64]*ir.Variable

func (s scope) variable(c query.Column) *ir.Variable {
	return s[c.Id()]
}

func (s scope) fork() scope {
	out := make(scope, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// resolve returns the variable bound to c in s, falling back to the
// pool's ancestor-scope search (which in turn falls back to the constant
// table) for columns this builder pass never bound locally, e.g. a
// literal compare operand.
func (b *Builder) resolve(region ir.Region, c query.Column, s scope) *ir.Variable {
	if v := s.variable(c); v != nil {
		return v
	}
	return b.Pool.VariableFor(region, c)
}

// BuildMessageHandler lowers msg (a KindStream entry view) into a
// procedure that loops over the message's input vector, binding one
// variable per column per tuple, then dispatches into msg's successors.
func (b *Builder) BuildMessageHandler(msg query.View) *ir.Procedure {
	if !query.IsStream(msg) {
		panic("cfg: BuildMessageHandler requires a stream view")
	}
	proc := b.Pool.CreateProcedure(ir.ProcMessageHandler)

	cols := msg.Columns()
	types := make([]any, len(cols))
	for i, c := range cols {
		types[i] = c.Type()
	}
	inVec := b.Pool.CreateVector(ir.VecInputParameter, types)
	proc.VectorParams = []*ir.VectorDef{inVec}

	loop := b.Pool.CreateOperation(proc, ir.OpVectorLoop)
	loop.Vectors = []*ir.VectorDef{inVec}
	proc.Body = loop

	s := make(scope, len(cols))
	for _, c := range cols {
		v := b.Pool.CreateVariable(ir.RoleParameter, c.Type(), c)
		loop.Variables = append(loop.Variables, v)
		s[c.Id()] = v
	}

	body := b.dispatchSuccessors(loop, msg, s)
	loop.Body = body
	return proc
}

// dispatchSuccessors emits, under parent, one region per successor of v
// (wrapped in a Parallel if there is more than one), and returns that
// region. Each successor sees a forked scope so independent branches never
// observe each other's bindings.
func (b *Builder) dispatchSuccessors(parent ir.Region, v query.View, s scope) ir.Region {
	succs := v.Successors()
	if len(succs) == 0 {
		return nil
	}
	if len(succs) == 1 {
		return b.build(parent, succs[0], s.fork())
	}
	par := b.Pool.CreateParallel(parent)
	for _, succ := range succs {
		child := b.build(par, succ, s.fork())
		if child != nil {
			par.Children = append(par.Children, child)
		}
	}
	return par
}

// build dispatches on v's kind per the lowering rules and returns the
// region implementing it, reparented under parent.
func (b *Builder) build(parent ir.Region, v query.View, s scope) ir.Region {
	switch v.Kind() {
	case query.KindSelect, query.KindTuple:
		return b.buildForward(parent, v, s)
	case query.KindCompare:
		return b.buildCompare(parent, v, s)
	case query.KindJoin:
		return b.buildJoin(parent, v, s)
	case query.KindProduct:
		return b.buildProduct(parent, v, s)
	case query.KindMap:
		return b.buildMap(parent, v, s)
	case query.KindNegate:
		return b.buildNegate(parent, v, s)
	case query.KindUnion:
		return b.buildUnion(parent, v, s)
	case query.KindInsert:
		return b.buildInsert(parent, v, s)
	default:
		panic(fmt.Sprintf("cfg: unhandled view kind %s", v.Kind()))
	}
}

// forwardColumns applies v's ForEachUse over its own columns to populate s
// with bindings for whichever successor columns forward from them,
// returning the updated scope. Columns with no outgoing use are left
// unbound; VariableFor's ancestor search covers them if a deeper region
// needs them later.
func (b *Builder) forwardColumns(v query.View, s scope) scope {
	for _, c := range v.Columns() {
		src := s.variable(c)
		if src == nil {
			continue
		}
		v.ForEachUse(c, func(role query.UseRole, succCol query.Column) {
			if role == query.RoleForward {
				s[succCol.Id()] = src
			}
		})
	}
	return s
}

// buildForward lowers a select or tuple view into a let region that
// forwards its columns unchanged, recursing into successors.
func (b *Builder) buildForward(parent ir.Region, v query.View, s scope) ir.Region {
	op := b.Pool.CreateOperation(parent, ir.OpLet)
	if query.IsSelect(v) {
		if t := b.tableFor(v); t != nil {
			op.Tables = []*ir.TableDef{t}
		}
	}
	s = b.forwardColumns(v, s)
	op.Body = b.dispatchSuccessors(op, v, s)
	return op
}

// buildCompare lowers a compare view into a tuple-compare operation.
// Equality canonicalizes both operands to the smaller variable id (or the
// constant operand, which VariableFor resolves to a fixed low id);
// inequality reuses the equal-comparison shape with Body/FalseBody
// swapped.
func (b *Builder) buildCompare(parent ir.Region, v query.View, s scope) ir.Region {
	cv := query.AsCompare(v)
	op := b.Pool.CreateOperation(parent, ir.OpTupleCompare)
	op.CompareEqual = true

	lhs, rhs := cv.LHS(), cv.RHS()
	var lv, rv *ir.Variable
	if lhs != nil {
		lv = b.resolve(op, lhs, s)
	}
	if rhs != nil {
		rv = b.resolve(op, rhs, s)
	}
	if lv != nil && rv != nil && rv.ID() < lv.ID() {
		lv, rv = rv, lv
	}
	op.CompareLHS, op.CompareRHS = lv, rv

	s = b.forwardColumns(v, s)
	body := b.dispatchSuccessors(op, v, s)
	if cv.Op() == query.CompareNotEqual {
		op.FalseBody = body
	} else {
		op.Body = body
	}
	return op
}

// buildMap lowers a functor view into a generate operation: for a pure
// filter, Body runs when the functor returns true and EmptyBody when
// false; for a generative functor, Body runs once per output tuple.
func (b *Builder) buildMap(parent ir.Region, v query.View, s scope) ir.Region {
	mv := query.AsMap(v)
	op := b.Pool.CreateOperation(parent, ir.OpGenerate)

	for _, c := range mv.FreeOutputs() {
		fv := b.Pool.CreateVariable(ir.RoleFunctorOutput, c.Type(), c)
		op.Variables = append(op.Variables, fv)
		s[c.Id()] = fv
	}
	s = b.forwardColumns(v, s)

	body := b.dispatchSuccessors(op, v, s)
	if mv.Generative() {
		op.Body = body
	} else {
		op.Body = body
		op.EmptyBody = b.Pool.CreateOperation(op, ir.OpReturn)
	}
	return op
}

// buildNegate lowers a negation into a call to the negated view's checker,
// descending into successors only when it returns false (the tuple is not
// provable through the negated branch).
func (b *Builder) buildNegate(parent ir.Region, v query.View, s scope) ir.Region {
	nv := query.AsNegate(v)
	op := b.Pool.CreateOperation(parent, ir.OpCall)
	if b.Checkers != nil {
		op.Callee = b.Checkers.CheckerFor(nv.Negated())
	}
	s = b.forwardColumns(v, s)
	op.EmptyBody = b.dispatchSuccessors(op, v, s)
	return op
}

// buildInsert lowers an insert view: into a relation, a state-transition
// from absent-or-unknown to present whose Body runs on first insertion;
// into a stream, a publish that appends to the message-output vector.
func (b *Builder) buildInsert(parent ir.Region, v query.View, s scope) ir.Region {
	if t := b.tableFor(v); t != nil {
		op := b.Pool.CreateOperation(parent, ir.OpStateChange)
		op.Tables = []*ir.TableDef{t}
		s = b.forwardColumns(v, s)
		op.Body = b.dispatchSuccessors(op, v, s)
		return op
	}
	op := b.Pool.CreateOperation(parent, ir.OpPublish)
	s = b.forwardColumns(v, s)
	return op
}

// buildUnion lowers a union: an inductive union defers to the induction
// engine (its add-vector append happens there); a non-inductive union
// emits a deduplicating insert into its shared table before descending.
func (b *Builder) buildUnion(parent ir.Region, v query.View, s scope) ir.Region {
	if query.IsInductive(v) {
		return b.induction.onArrival(parent, v, s)
	}
	op := b.Pool.CreateOperation(parent, ir.OpTableInsert)
	op.Tables = []*ir.TableDef{b.tableFor(v)}
	s = b.forwardColumns(v, s)
	op.Body = b.dispatchSuccessors(op, v, s)
	return op
}

// tableFor returns (creating if necessary) the table backing v's data
// model, or nil if v has none (e.g. a pure in-flight stream tuple).
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

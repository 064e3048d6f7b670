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
	"github.com/drlojekyll-go/dlcore/internal/workqueue"
	"github.com/drlojekyll-go/dlcore/ir"
	"github.com/drlojekyll-go/dlcore/query"
)

// group tracks the accumulation state for one inductive-union equivalence
// class: every participating view, the vectors each owns, and the fused
// ir.Induction region once it has been created.
type group struct {
	id    int
	depth int
	views []query.View

	region  *ir.Induction
	anchors []ir.Region

	scopes map[uint64]scope // per-view dispatch scope, by view's first column id
}

// itemKind orders work items within a depth: a group's continue runs
// before its finalize, so that the cycle is fully populated first.
type itemKind int

const (
	kindContinue itemKind = iota
	kindFinalize
)

// workItem is one deferred induction build step, queued by priority and
// run by engine.Drain via internal/workqueue.
type workItem struct {
	depth int
	kind  itemKind
	group *group
	run   func(q *workqueue.Queue[*workItem])
}

func (w *workItem) Run(q *workqueue.Queue[*workItem]) { w.run(q) }

// Less orders deeper groups before shallower ones, and within equal depth,
// continue work before finalize work.
func (w *workItem) Less(other *workItem) bool {
	if w.depth != other.depth {
		return w.depth > other.depth
	}
	return w.kind < other.kind
}

// engine implements the induction builder's phase B/C accumulation and
// finalization over the work queue defined in internal/workqueue.
type engine struct {
	b      *Builder
	groups map[int]*group
	queue  *workqueue.Queue[*workItem]
}

func newEngine(b *Builder) *engine {
	return &engine{b: b, groups: map[int]*group{}, queue: workqueue.New[*workItem]()}
}

// Drain runs every pending continue/finalize work item to completion,
// including items enqueued by already-running items (a continue item's
// dispatch into cyclic successors may reach other groups for the first
// time). Call once after every entry procedure has been built.
func (b *Builder) Drain() { b.induction.queue.Drain() }

// onArrival handles a predecessor forwarding into an inductive union: it
// appends to the union's add-vector and, on the group's first arrival,
// schedules the continue work item that fuses the whole group into one
// induction region.
func (e *engine) onArrival(parent ir.Region, v query.View, s scope) ir.Region {
	g := e.groupFor(v)

	addVec := e.addVector(g, v)
	op := e.b.Pool.CreateOperation(parent, ir.OpVectorAppend)
	op.Vectors = []*ir.VectorDef{addVec}
	e.b.forwardColumns(v, s)
	g.scopes[firstColumnID(v)] = s.fork()

	first := len(g.anchors) == 0
	g.anchors = append(g.anchors, parent)
	if first {
		e.queue.Push(&workItem{depth: g.depth, kind: kindContinue, group: g, run: func(q *workqueue.Queue[*workItem]) {
			e.runContinue(g, q)
		}})
	}
	return op
}

func firstColumnID(v query.View) uint64 {
	cols := v.Columns()
	if len(cols) == 0 {
		return 0
	}
	return cols[0].Id()
}

func (e *engine) groupFor(v query.View) *group {
	id := v.InductionGroupId()
	g, ok := e.groups[id]
	if !ok {
		g = &group{id: id, depth: v.InductionDepth(), views: v.InductiveSet(), scopes: map[uint64]scope{}}
		e.groups[id] = g
	}
	return g
}

func (e *engine) addVector(g *group, v query.View) *ir.VectorDef {
	model := v.DataModel()
	if vec, ok := g.induction().InputVectors[model]; ok {
		return vec
	}
	cols := v.Columns()
	types := make([]any, len(cols))
	for i, c := range cols {
		types[i] = c.Type()
	}
	vec := e.b.Pool.CreateVector(ir.VecInductionInputs, types)
	g.induction().InputVectors[model] = vec
	return vec
}

// induction lazily allocates the map-only placeholder induction struct
// used to hold per-view vectors before the region itself exists; once
// runContinue creates the real region it reuses these same maps.
func (g *group) induction() *ir.Induction {
	if g.region == nil {
		g.region = &ir.Induction{
			GroupID:       g.id,
			GroupDepth:    g.depth,
			InputVectors:  map[int]*ir.VectorDef{},
			SwapVectors:   map[int]*ir.VectorDef{},
			OutputVectors: map[int]*ir.VectorDef{},
		}
	}
	return g.region
}

// runContinue finds the common ancestor of every arrival recorded so far,
// splices the group's induction region into that position, and emits one
// clear/sort-unique/swap/loop series per participating view, dispatching
// each view's inductive successors back through the builder (which will
// recurse into onArrival again for views still in this group, now that
// g.region is set, so those later arrivals only append rather than
// re-scheduling a continue item).
func (e *engine) runContinue(g *group, q *workqueue.Queue[*workItem]) {
	ancestor := g.anchors[0]
	for _, a := range g.anchors[1:] {
		ancestor = ir.FindCommonAncestor(ancestor, a)
	}

	region := e.b.Pool.CreateInduction(ancestor.Parent(), g.id, g.depth)
	region.InputVectors = g.induction().InputVectors
	region.SwapVectors = g.induction().SwapVectors
	region.OutputVectors = g.induction().OutputVectors
	g.region = region
	region.InitRegion = ancestor
	e.b.Pool.SpliceInductionAnchor(ancestor, region)

	cyclic := e.b.Pool.CreateParallel(region)
	region.CyclicRegion = cyclic
	for _, v := range g.views {
		model := v.DataModel()
		addVec := region.InputVectors[model]
		swapVec := e.b.Pool.CreateVector(ir.VecInductionSwap, addVec.ColumnTypes)
		region.SwapVectors[model] = swapVec

		series := e.b.Pool.CreateSeries(cyclic)
		cyclic.Children = append(cyclic.Children, series)

		clr := e.b.Pool.CreateOperation(series, ir.OpVectorClear)
		clr.Vectors = []*ir.VectorDef{swapVec}
		uniq := e.b.Pool.CreateOperation(series, ir.OpVectorUnique)
		uniq.Vectors = []*ir.VectorDef{addVec}
		swap := e.b.Pool.CreateOperation(series, ir.OpVectorSwap)
		swap.Vectors = []*ir.VectorDef{addVec, swapVec}
		loop := e.b.Pool.CreateOperation(series, ir.OpVectorLoop)
		loop.Vectors = []*ir.VectorDef{swapVec}
		series.Children = []ir.Region{clr, uniq, swap, loop}

		s := g.scopes[firstColumnID(v)]
		if s == nil {
			s = scope{}
		}
		var succRegion ir.Region
		succs := v.InductiveSuccessors()
		if len(succs) == 1 {
			succRegion = e.b.build(loop, succs[0], s.fork())
		} else if len(succs) > 1 {
			p := e.b.Pool.CreateParallel(loop)
			for _, succ := range succs {
				if child := e.b.build(p, succ, s.fork()); child != nil {
					p.Children = append(p.Children, child)
				}
			}
			succRegion = p
		}
		loop.Body = succRegion
	}

	q.Push(&workItem{depth: g.depth, kind: kindFinalize, group: g, run: func(q *workqueue.Queue[*workItem]) {
		e.runFinalize(g, q)
	}})
}

// runFinalize wires every participating view's non-inductive successors
// into the induction's output region as a loop over that view's swap
// vector, clears each swap vector after its loop, and returns.
func (e *engine) runFinalize(g *group, q *workqueue.Queue[*workItem]) {
	out := e.b.Pool.CreateSeries(g.region)
	g.region.OutputRegion = out

	for _, v := range g.views {
		model := v.DataModel()
		swapVec := g.region.SwapVectors[model]

		if succs := v.NonInductiveSuccessors(); len(succs) != 0 {
			loop := e.b.Pool.CreateOperation(out, ir.OpVectorLoop)
			loop.Vectors = []*ir.VectorDef{swapVec}
			out.Children = append(out.Children, loop)

			s := g.scopes[firstColumnID(v)]
			if s == nil {
				s = scope{}
			}
			loop.Body = e.b.dispatchSuccessors(loop, v, s.fork())
		}

		clr := e.b.Pool.CreateOperation(out, ir.OpVectorClear)
		clr.Vectors = []*ir.VectorDef{swapVec}
		out.Children = append(out.Children, clr)
	}

	ret := e.b.Pool.CreateOperation(out, ir.OpReturn)
	ret.ReturnValue = true
	out.Children = append(out.Children, ret)
}

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
	"github.com/drlojekyll-go/dlcore/ir"
	"github.com/drlojekyll-go/dlcore/serialize"
)

// FullDepth requests a fully recursive Hash or Equals comparison, as
// opposed to depth 0's shape-only comparison used to group candidates
// before paying for a full structural walk.
const FullDepth = -1

func nextDepth(depth int) int {
	if depth < 0 {
		return depth
	}
	return depth - 1
}

// Hash returns a structural digest of r: at depth 0 it sees only r's kind
// and the shape of its operands (role, id, and count, never recursing);
// at any other depth it folds in the hash of every child region too. Two
// regions with Equals(d) true always have equal Hash(d) — the converse
// need not hold, which is what lets the optimizer group candidates by Hash
// cheaply before paying for a real Equals.
//
// Hashing reuses serialize.HashingWriter (the same xxHash64 accumulator
// the serializer framework uses for value hashing) rather than a
// bespoke combinator, so a structural hash-cons pass and a wire-format
// hash share one accumulator implementation.
func Hash(r ir.Region, depth int) uint64 {
	w := serialize.NewHashingWriter()
	hashInto(w, r, depth)
	return w.Digest()
}

func hashInto(w *serialize.HashingWriter, r ir.Region, depth int) {
	if r == nil {
		w.WriteU8(0)
		return
	}
	w.WriteU8(1)
	w.WriteU8(uint8(r.Kind()))
	switch rr := r.(type) {
	case *ir.Operation:
		w.WriteU8(uint8(rr.OpKind))
		hashVariables(w, rr.Variables)
		w.WriteU64(uint64(len(rr.Vectors)))
		for _, vec := range rr.Vectors {
			w.WriteU64(uint64(vec.ID()))
			w.WriteU8(uint8(vec.Kind))
		}
		w.WriteU64(uint64(len(rr.Tables)))
		for _, t := range rr.Tables {
			w.WriteU64(uint64(t.ID()))
		}
		w.WriteU64(uint64(len(rr.Indices)))
		for _, ix := range rr.Indices {
			w.WriteU64(uint64(ix.ID()))
		}
		w.WriteBool(rr.CompareEqual)
		w.WriteBool(rr.ReturnValue)
		if rr.Callee != nil {
			w.WriteU64(uint64(rr.Callee.ID()))
		} else {
			w.WriteU64(0)
		}
		if depth != 0 {
			next := nextDepth(depth)
			hashInto(w, rr.Body, next)
			hashInto(w, rr.FalseBody, next)
			hashInto(w, rr.EmptyBody, next)
			hashInto(w, rr.AbsentBody, next)
			hashInto(w, rr.UnknownBody, next)
		}
	case *ir.Series:
		w.WriteU64(uint64(len(rr.Children)))
		if depth != 0 {
			next := nextDepth(depth)
			for _, c := range rr.Children {
				hashInto(w, c, next)
			}
		}
	case *ir.Parallel:
		w.WriteU64(uint64(len(rr.Children)))
		if depth != 0 {
			next := nextDepth(depth)
			for _, c := range rr.Children {
				hashInto(w, c, next)
			}
		}
	case *ir.Induction:
		w.WriteU64(uint64(rr.GroupID))
		if depth != 0 {
			next := nextDepth(depth)
			hashInto(w, rr.InitRegion, next)
			if rr.CyclicRegion != nil {
				hashInto(w, rr.CyclicRegion, next)
			} else {
				w.WriteU8(0)
			}
			hashInto(w, rr.OutputRegion, next)
		}
	case *ir.Procedure:
		w.WriteU8(uint8(rr.ProcKind))
		w.WriteU64(uint64(len(rr.VectorParams)))
		w.WriteU64(uint64(len(rr.ScalarParams)))
		if depth != 0 {
			hashInto(w, rr.Body, nextDepth(depth))
		}
	}
}

func hashVariables(w *serialize.HashingWriter, vars []*ir.Variable) {
	w.WriteU64(uint64(len(vars)))
	for _, v := range vars {
		w.WriteU8(uint8(v.Role))
	}
}

// EquivSet is a layered variable-id renaming map: Push starts a new,
// innermost layer; Insert writes only into that layer, so a failed
// sub-comparison can Pop it without disturbing renamings an enclosing,
// already-committed comparison still relies on.
type EquivSet struct {
	layers []map[int]int
}

// NewEquivSet returns an empty equivalence set with no layers; callers
// must Push before Insert.
func NewEquivSet() *EquivSet { return &EquivSet{} }

// Push starts a new innermost renaming layer.
func (e *EquivSet) Push() { e.layers = append(e.layers, map[int]int{}) }

// Pop discards the innermost renaming layer.
func (e *EquivSet) Pop() { e.layers = e.layers[:len(e.layers)-1] }

// Insert records that variable a on one side corresponds to variable b on
// the other, in the innermost layer.
func (e *EquivSet) Insert(a, b int) {
	e.layers[len(e.layers)-1][a] = b
}

// Known reports whether a already has a renaming in any active layer.
func (e *EquivSet) Known(a int) bool {
	for i := len(e.layers) - 1; i >= 0; i-- {
		if _, ok := e.layers[i][a]; ok {
			return true
		}
	}
	return false
}

// Equivalent reports whether a and b are the same variable, or a has been
// recorded as corresponding to b in some active layer.
func (e *EquivSet) Equivalent(a, b int) bool {
	if a == b {
		return true
	}
	for i := len(e.layers) - 1; i >= 0; i-- {
		if m, ok := e.layers[i][a]; ok {
			return m == b
		}
	}
	return false
}

// Equals reports whether a and b are structurally equal up to variable
// renaming, recorded into eq. At depth 0 it compares only shape
// (operand counts, roles, referenced table/vector/index/procedure identity)
// without descending into children; at any other depth it also requires
// every child to be Equals at one depth shallower (FullDepth stays
// FullDepth, so a full comparison recurses to the leaves).
//
// The caller is expected to have already called eq.Push(); Equals does not
// push or pop its own layer so that a chain of sibling comparisons (e.g.
// matching up a procedure's scalar parameters before comparing its body)
// can share one layer.
func Equals(a, b ir.Region, depth int, eq *EquivSet) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch aa := a.(type) {
	case *ir.Operation:
		bb := b.(*ir.Operation)
		return operationEquals(aa, bb, depth, eq)
	case *ir.Series:
		bb := b.(*ir.Series)
		if len(aa.Children) != len(bb.Children) {
			return false
		}
		if depth == 0 {
			return true
		}
		next := nextDepth(depth)
		for i := range aa.Children {
			if !Equals(aa.Children[i], bb.Children[i], next, eq) {
				return false
			}
		}
		return true
	case *ir.Parallel:
		bb := b.(*ir.Parallel)
		if len(aa.Children) != len(bb.Children) {
			return false
		}
		if depth == 0 {
			return true
		}
		next := nextDepth(depth)
		for i := range aa.Children {
			if !Equals(aa.Children[i], bb.Children[i], next, eq) {
				return false
			}
		}
		return true
	case *ir.Induction:
		bb := b.(*ir.Induction)
		if aa.GroupID != bb.GroupID {
			return false
		}
		if depth == 0 {
			return true
		}
		next := nextDepth(depth)
		return Equals(aa.InitRegion, bb.InitRegion, next, eq) &&
			Equals(aa.CyclicRegion, bb.CyclicRegion, next, eq) &&
			Equals(aa.OutputRegion, bb.OutputRegion, next, eq)
	case *ir.Procedure:
		bb := b.(*ir.Procedure)
		if aa.ProcKind != bb.ProcKind {
			return false
		}
		if len(aa.VectorParams) != len(bb.VectorParams) || len(aa.ScalarParams) != len(bb.ScalarParams) {
			return false
		}
		for i, p := range aa.ScalarParams {
			eq.Insert(p.ID(), bb.ScalarParams[i].ID())
		}
		if depth == 0 {
			return true
		}
		return Equals(aa.Body, bb.Body, nextDepth(depth), eq)
	}
	return false
}

func operationEquals(aa, bb *ir.Operation, depth int, eq *EquivSet) bool {
	if aa.OpKind != bb.OpKind {
		return false
	}
	if len(aa.Variables) != len(bb.Variables) || len(aa.Vectors) != len(bb.Vectors) ||
		len(aa.Tables) != len(bb.Tables) || len(aa.Indices) != len(bb.Indices) {
		return false
	}
	if aa.CompareEqual != bb.CompareEqual || aa.ReturnValue != bb.ReturnValue {
		return false
	}
	if (aa.Callee == nil) != (bb.Callee == nil) {
		return false
	}
	if aa.Callee != nil && aa.Callee != bb.Callee {
		return false
	}
	for i, v := range aa.Vectors {
		if v.ID() != bb.Vectors[i].ID() {
			return false
		}
	}
	for i, t := range aa.Tables {
		if t.ID() != bb.Tables[i].ID() {
			return false
		}
	}
	for i, ix := range aa.Indices {
		if ix.ID() != bb.Indices[i].ID() {
			return false
		}
	}
	defines := definesVariables(aa.OpKind)
	for i, v := range aa.Variables {
		if defines {
			if !bindVariable(v, bb.Variables[i], eq) {
				return false
			}
		} else if !useVariableEqual(v, bb.Variables[i], eq) {
			return false
		}
	}
	if !useVariableEqual(aa.CompareLHS, bb.CompareLHS, eq) || !useVariableEqual(aa.CompareRHS, bb.CompareRHS, eq) {
		return false
	}
	if depth == 0 {
		return true
	}
	next := nextDepth(depth)
	return Equals(aa.Body, bb.Body, next, eq) &&
		Equals(aa.FalseBody, bb.FalseBody, next, eq) &&
		Equals(aa.EmptyBody, bb.EmptyBody, next, eq) &&
		Equals(aa.AbsentBody, bb.AbsentBody, next, eq) &&
		Equals(aa.UnknownBody, bb.UnknownBody, next, eq)
}

// definesVariables reports whether an operation of kind k introduces fresh
// variable definitions through its Variables list (a loop induction
// variable, a join/product output, a functor output, a scan binding) as
// opposed to merely referencing already-bound ones (a call's arguments).
func definesVariables(k ir.OperationKind) bool {
	switch k {
	case ir.OpVectorLoop, ir.OpTableJoin, ir.OpTableProduct, ir.OpTableScan,
		ir.OpGenerate, ir.OpRecordCheck, ir.OpStateCheck, ir.OpWorkerID:
		return true
	default:
		return false
	}
}

// bindVariable establishes a equivalent to b the first time a is seen,
// matching how comparing two structurally parallel definitions should
// treat their freshly-introduced variables as corresponding; on a repeat
// sighting of a (the same operation comparison already bound it) it falls
// back to checking the existing renaming holds.
func bindVariable(a, b *ir.Variable, eq *EquivSet) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Role != b.Role {
		return false
	}
	if a.Role == ir.RoleConstant {
		return a.Const == b.Const
	}
	if eq.Known(a.ID()) {
		return eq.Equivalent(a.ID(), b.ID())
	}
	eq.Insert(a.ID(), b.ID())
	return true
}

// useVariableEqual compares an already-bound use of a variable (a call
// argument, a compare operand): both sides must already agree under the
// active renaming, a fresh pair is never silently accepted here.
func useVariableEqual(a, b *ir.Variable, eq *EquivSet) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Role != b.Role {
		return false
	}
	if a.Role == ir.RoleConstant {
		return a.Const == b.Const
	}
	return eq.Equivalent(a.ID(), b.ID())
}

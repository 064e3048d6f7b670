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

// Package query names the narrow interface the CFG builder, induction
// engine, and checker builder consume: a finite DAG of typed views
// produced by a dataflow-graph optimizer that lives outside this module.
// Nothing in this package constructs a Query graph; it only describes the
// shape one must have to be lowered into a Program.
package query

// Kind distinguishes the operator each View node represents.
type Kind int

const (
	KindSelect Kind = iota
	KindTuple
	KindCompare
	KindJoin
	KindProduct
	KindMap
	KindNegate
	KindUnion
	KindInsert
	KindStream
)

func (k Kind) String() string {
	switch k {
	case KindSelect:
		return "select"
	case KindTuple:
		return "tuple"
	case KindCompare:
		return "compare"
	case KindJoin:
		return "join"
	case KindProduct:
		return "product"
	case KindMap:
		return "map"
	case KindNegate:
		return "negate"
	case KindUnion:
		return "union"
	case KindInsert:
		return "insert"
	case KindStream:
		return "stream"
	default:
		return "unknown"
	}
}

// UseRole names why a column flows from one view to a successor, the
// third argument to View.ForEachUse.
type UseRole int

const (
	RoleForward UseRole = iota
	RoleJoinPivot
	RoleJoinNonPivot
	RoleCompareLHS
	RoleCompareRHS
	RoleFunctorInput
	RoleFunctorOutput
	RoleConditionRef
)

// Column is a typed slot of a view.
type Column interface {
	// Id is a globally unique identifier, stable across optimizer passes.
	Id() uint64
	// Index is the column's position within its owning view.
	Index() int
	// Type names the column's value type, opaque to this package.
	Type() any
	// IsConstantOrConstantRef reports whether the column is bound to a
	// literal constant or to another column that is itself constant,
	// making it eligible for VariableFor's constant fallback.
	IsConstantOrConstantRef() bool
}

// View is one node of the dataflow graph. The dataflow optimizer that
// produces a Query is expected to have already enforced the link
// invariant that every join, negate, and union is preceded by a tuple
// view.
type View interface {
	Kind() Kind
	Columns() []Column

	Predecessors() []View
	Successors() []View

	PositiveConditions() []View
	NegativeConditions() []View

	// DataModel identifies the equivalence class of views sharing backing
	// storage. Two views in the same class return the same id.
	DataModel() int

	// InductionGroupId identifies the equivalence class of unions
	// cyclically reachable from one another; zero if the view does not
	// participate in any induction.
	InductionGroupId() int
	// InductionDepth is 0 for groups with no inductive ancestor, else one
	// more than the maximum depth of any inductive predecessor group.
	InductionDepth() int
	// InductiveSet lists every view sharing this view's induction group.
	InductiveSet() []View
	InductivePredecessors() []View
	NonInductivePredecessors() []View
	InductiveSuccessors() []View
	NonInductiveSuccessors() []View

	// ForEachUse calls fn once per (column, role, successor column) triple
	// describing how col is consumed by this view's successors.
	ForEachUse(col Column, fn func(role UseRole, successorCol Column))
}

// IsSelect, IsTuple, ... are the view-kind predicates named alongside the
// downcasts below; each pairs with an AsX that panics if the kind doesn't
// match, matching the "flattened tagged enum, AsX() pattern match" shape.
func IsSelect(v View) bool  { return v.Kind() == KindSelect }
func IsTuple(v View) bool   { return v.Kind() == KindTuple }
func IsCompare(v View) bool { return v.Kind() == KindCompare }
func IsJoin(v View) bool    { return v.Kind() == KindJoin }
func IsProduct(v View) bool { return v.Kind() == KindProduct }
func IsMap(v View) bool     { return v.Kind() == KindMap }
func IsNegate(v View) bool  { return v.Kind() == KindNegate }
func IsUnion(v View) bool   { return v.Kind() == KindUnion }
func IsInsert(v View) bool  { return v.Kind() == KindInsert }
func IsStream(v View) bool  { return v.Kind() == KindStream }

// IsInductive reports whether v is a union in its own predecessor
// closure.
func IsInductive(v View) bool {
	return v.Kind() == KindUnion && v.InductionGroupId() != 0
}

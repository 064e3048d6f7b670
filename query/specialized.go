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

package query

// CompareOp names the operator a CompareView applies to its two operands.
type CompareOp int

const (
	CompareEqual CompareOp = iota
	CompareNotEqual
)

// CompareView is the kind-specific surface of a KindCompare view.
type CompareView interface {
	View
	Op() CompareOp
	// LHS and RHS are the compared columns; one side may be nil if the
	// other operand is a literal constant rather than a column.
	LHS() Column
	RHS() Column
}

// AsCompare downcasts v, panicking if v is not a KindCompare view.
func AsCompare(v View) CompareView {
	cv, ok := v.(CompareView)
	if !ok {
		panic("query: AsCompare on non-compare view")
	}
	return cv
}

// JoinView is the kind-specific surface of a KindJoin view.
type JoinView interface {
	View
	// PivotColumns returns, per joined predecessor, the columns forming
	// that predecessor's side of the join's pivot key, in pivot order.
	PivotColumns(pred View) []Column
	// NumPivots is the number of pivot columns; zero denotes a cross
	// product.
	NumPivots() int
}

// AsJoin downcasts v, panicking if v is not a KindJoin view.
func AsJoin(v View) JoinView {
	jv, ok := v.(JoinView)
	if !ok {
		panic("query: AsJoin on non-join view")
	}
	return jv
}

// MapView is the kind-specific surface of a KindMap view.
type MapView interface {
	View
	// Pure reports whether the functor has no side effects and always
	// produces the same outputs for the same inputs, the condition under
	// which a generative map's presence can be recomputed by re-invoking
	// the generator rather than requiring a persisted table.
	Pure() bool
	// Generative reports whether the functor may produce zero, one, or
	// many output tuples per input (true) as opposed to a pure filter
	// that returns a boolean (false).
	Generative() bool
	FreeOutputs() []Column
}

// AsMap downcasts v, panicking if v is not a KindMap view.
func AsMap(v View) MapView {
	mv, ok := v.(MapView)
	if !ok {
		panic("query: AsMap on non-map view")
	}
	return mv
}

// NegateView is the kind-specific surface of a KindNegate view.
type NegateView interface {
	View
	// Negated is the view whose absence this view asserts.
	Negated() View
}

// AsNegate downcasts v, panicking if v is not a KindNegate view.
func AsNegate(v View) NegateView {
	nv, ok := v.(NegateView)
	if !ok {
		panic("query: AsNegate on non-negate view")
	}
	return nv
}

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

// Package ir owns the control-flow IR's node pool: regions, procedures,
// variables, vectors, tables, and indices, all addressed by small integer
// ids and linked by intrusive use-lists rather than raw pointers.
package ir

import "github.com/drlojekyll-go/dlcore/query"

// VariableRole names why a Variable exists, fixed at creation.
type VariableRole int

const (
	RoleConstant VariableRole = iota
	RoleGlobal
	RoleConditionRefCount
	RoleParameter
	RoleLetBinding
	RoleLoopInduction
	RoleJoinPivot
	RoleJoinNonPivot
	RoleFunctorOutput
	RoleMessageOutput
	RoleWorkerID
	RoleProductOutput
	RoleInitGuard
	RoleConstantZero
	RoleConstantOne
	RoleConstantTrue
	RoleConstantFalse
)

// Variable is an immutable-after-creation IR value: a unique id, a role,
// an optional type, and an optional originating query column or literal.
type Variable struct {
	id     int
	Role   VariableRole
	Type   any
	Column query.Column // nil for variables with no originating column
	Const  any          // nil unless Role names a constant
}

// ID returns the variable's unique, pool-wide identifier.
func (v *Variable) ID() int { return v.id }

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

// Package program is the output object a compiled query graph lowers to: a
// pool's procedures, tables, and vectors wrapped with a stable identity and
// a visitor a code generator walks without reaching back into ir internals.
package program

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/drlojekyll-go/dlcore/ir"
)

// Program is the finished artifact a compile pass hands a code generator:
// every procedure, table, vector, and constant the pool accumulated, plus a
// stable id a downstream cache can key on.
type Program struct {
	ID uuid.UUID

	Procedures []*ir.Procedure
	Tables     []*ir.TableDef
	Vectors    []*ir.VectorDef
	Indices    []*ir.IndexDef
	Constants  []*ir.Variable
}

// FromPool packages pool's accumulated state into a Program, minting a
// fresh random id. Callers that need a reproducible id (e.g. a test
// comparing two compiles of the same graph) should overwrite Program.ID
// themselves.
func FromPool(pool *ir.Pool) *Program {
	return &Program{
		ID:         uuid.New(),
		Procedures: pool.Procedures,
		Tables:     pool.Tables,
		Vectors:    pool.Vectors,
		Indices:    pool.Indices,
		Constants:  pool.Constants,
	}
}

// DebugName returns a short human-readable label for proc, suitable for
// log lines and error messages: its procedure
// kind and pool-assigned id, since the IR carries no separate name table.
func DebugName(proc *ir.Procedure) string {
	return fmt.Sprintf("%s#%d", procKindName(proc.ProcKind), proc.ID())
}

func procKindName(k ir.ProcedureKind) string {
	switch k {
	case ir.ProcEntry:
		return "entry"
	case ir.ProcPrimary:
		return "primary"
	case ir.ProcMessageHandler:
		return "message-handler"
	case ir.ProcTupleFinder:
		return "tuple-finder"
	case ir.ProcTupleRemover:
		return "tuple-remover"
	case ir.ProcInitializer:
		return "initializer"
	default:
		return "unknown"
	}
}

// Validate walks every procedure in p and reports the first well-formedness
// violation found: a child region whose recorded Parent doesn't match the
// region actually holding it, or whose Depth isn't exactly one more than
// its parent's.
func Validate(p *Program) error {
	for _, proc := range p.Procedures {
		if proc.Body == nil {
			continue
		}
		if err := validateRegion(proc.Body, proc, proc.Depth()+1); err != nil {
			return fmt.Errorf("program: procedure %s: %w", DebugName(proc), err)
		}
	}
	return nil
}

func validateRegion(r ir.Region, expectParent ir.Region, expectDepth int) error {
	if r.Parent() != expectParent {
		return fmt.Errorf("region %d: parent mismatch", r.ID())
	}
	if r.Depth() != expectDepth {
		return fmt.Errorf("region %d: depth %d, want %d", r.ID(), r.Depth(), expectDepth)
	}
	switch rr := r.(type) {
	case *ir.Series:
		for _, c := range rr.Children {
			if err := validateRegion(c, rr, expectDepth+1); err != nil {
				return err
			}
		}
	case *ir.Parallel:
		for _, c := range rr.Children {
			if err := validateRegion(c, rr, expectDepth+1); err != nil {
				return err
			}
		}
	case *ir.Induction:
		if rr.InitRegion != nil {
			if err := validateRegion(rr.InitRegion, rr, expectDepth+1); err != nil {
				return err
			}
		}
		if rr.CyclicRegion != nil {
			if err := validateRegion(rr.CyclicRegion, rr, expectDepth+1); err != nil {
				return err
			}
		}
		if rr.OutputRegion != nil {
			if err := validateRegion(rr.OutputRegion, rr, expectDepth+1); err != nil {
				return err
			}
		}
	case *ir.Operation:
		for _, c := range []ir.Region{rr.Body, rr.FalseBody, rr.EmptyBody, rr.AbsentBody, rr.UnknownBody} {
			if c == nil {
				continue
			}
			if err := validateRegion(c, rr, expectDepth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

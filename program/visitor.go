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

package program

import "github.com/drlojekyll-go/dlcore/ir"

// Visitor receives one call per region kind as Walk descends the tree. A
// code generator implements this instead of type-switching over ir.Region
// itself, keeping the five-way switch in one place.
type Visitor interface {
	VisitProcedure(p *ir.Procedure)
	VisitSeries(s *ir.Series)
	VisitParallel(p *ir.Parallel)
	VisitInduction(i *ir.Induction)
	VisitOperation(o *ir.Operation)
}

// Walk dispatches r to the matching Visit method on v. It does not recurse
// into children itself: a Visitor that wants to descend calls Walk again
// on whichever child regions it cares about, letting it skip subtrees
// (e.g. an unreachable AbsentBody) freely.
func Walk(v Visitor, r ir.Region) {
	if r == nil {
		return
	}
	switch rr := r.(type) {
	case *ir.Procedure:
		v.VisitProcedure(rr)
	case *ir.Series:
		v.VisitSeries(rr)
	case *ir.Parallel:
		v.VisitParallel(rr)
	case *ir.Induction:
		v.VisitInduction(rr)
	case *ir.Operation:
		v.VisitOperation(rr)
	}
}

// WalkChildren calls Walk on every direct child region of r, in the order
// a single control-flow pass over r would visit them. It is a convenience
// for a Visitor implementation that wants ordinary depth-first traversal
// rather than hand-picking which children to descend into.
func WalkChildren(v Visitor, r ir.Region) {
	switch rr := r.(type) {
	case *ir.Procedure:
		Walk(v, rr.Body)
	case *ir.Series:
		for _, c := range rr.Children {
			Walk(v, c)
		}
	case *ir.Parallel:
		for _, c := range rr.Children {
			Walk(v, c)
		}
	case *ir.Induction:
		Walk(v, rr.InitRegion)
		if rr.CyclicRegion != nil {
			Walk(v, rr.CyclicRegion)
		}
		Walk(v, rr.OutputRegion)
	case *ir.Operation:
		Walk(v, rr.Body)
		Walk(v, rr.FalseBody)
		Walk(v, rr.EmptyBody)
		Walk(v, rr.AbsentBody)
		Walk(v, rr.UnknownBody)
	}
}

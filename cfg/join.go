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
	"github.com/drlojekyll-go/dlcore/ir"
	"github.com/drlojekyll-go/dlcore/query"
)

// buildJoin lowers a join with one or more pivot columns: a pivot vector
// accumulates the join's pivot key across predecessor arrivals; the
// emitted table-join region lists every predecessor's table, with no pivot
// index attached, and binds one join variable per output column of the
// view (pivot columns included) before descending into successors.
//
// Each predecessor's insertion handler is responsible for appending to the
// pivot vector and is modeled here as a single representative append
// feeding one shared join region, rather than one compiled append site per
// predecessor arrival path.
func (b *Builder) buildJoin(parent ir.Region, v query.View, s scope) ir.Region {
	jv := query.AsJoin(v)

	pivotVec := b.Pool.CreateVector(ir.VecJoinPivots, pivotTypes(jv, v))
	append_ := b.Pool.CreateOperation(parent, ir.OpVectorAppend)
	append_.Vectors = []*ir.VectorDef{pivotVec}

	loop := b.Pool.CreateOperation(append_, ir.OpVectorLoop)
	loop.Vectors = []*ir.VectorDef{pivotVec}
	append_.Body = loop

	join := b.Pool.CreateOperation(loop, ir.OpTableJoin)
	join.Vectors = []*ir.VectorDef{pivotVec}
	for _, pred := range v.Predecessors() {
		if t := b.tableFor(pred); t != nil {
			join.Tables = append(join.Tables, t)
		}
	}
	loop.Body = join

	for _, c := range v.Columns() {
		jvar := b.Pool.CreateVariable(ir.RoleJoinNonPivot, c.Type(), c)
		join.Variables = append(join.Variables, jvar)
		s[c.Id()] = jvar
	}
	s = b.forwardColumns(v, s)
	join.Body = b.dispatchSuccessors(join, v, s)
	return append_
}

// pivotTypes returns the column types of the join's pivot key, taken from
// the first predecessor's pivot-column projection (every predecessor's
// pivot projection shares the same arity and element types by
// construction upstream).
func pivotTypes(jv query.JoinView, v query.View) []any {
	preds := v.Predecessors()
	if len(preds) == 0 || jv.NumPivots() == 0 {
		return nil
	}
	cols := jv.PivotColumns(preds[0])
	types := make([]any, len(cols))
	for i, c := range cols {
		types[i] = c.Type()
	}
	return types
}

// buildProduct lowers a zero-pivot join (cross product): one input vector
// per predecessor accumulates arrivals, and a nested table-product region
// binds one variable per output column of the view. No sort or unique
// operation is emitted for the input vectors.
func (b *Builder) buildProduct(parent ir.Region, v query.View, s scope) ir.Region {
	preds := v.Predecessors()
	vecs := make([]*ir.VectorDef, len(preds))
	for i, pred := range preds {
		cols := pred.Columns()
		types := make([]any, len(cols))
		for j, c := range cols {
			types[j] = c.Type()
		}
		vecs[i] = b.Pool.CreateVector(ir.VecProductInput, types)
	}

	append_ := b.Pool.CreateOperation(parent, ir.OpVectorAppend)
	append_.Vectors = vecs

	product := b.Pool.CreateOperation(append_, ir.OpTableProduct)
	product.Vectors = vecs
	for _, pred := range preds {
		if t := b.tableFor(pred); t != nil {
			product.Tables = append(product.Tables, t)
		}
	}
	append_.Body = product

	for _, c := range v.Columns() {
		pvar := b.Pool.CreateVariable(ir.RoleProductOutput, c.Type(), c)
		product.Variables = append(product.Variables, pvar)
		s[c.Id()] = pvar
	}
	s = b.forwardColumns(v, s)
	product.Body = b.dispatchSuccessors(product, v, s)
	return append_
}

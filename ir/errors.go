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

package ir

import (
	"fmt"
	"io"

	"github.com/drlojekyll-go/dlcore/query"
)

// CompileError is an error attributed to one dataflow view: an invalid
// input graph, a missing table for a view that requires persistence, an
// undefined predecessor column, or a functor signature mismatch. It is the
// recoverable half of the builder's error taxonomy — the caller gets one
// of these back and the builder simply produces no program. The other half
// (an internal invariant a well-formed Query should never violate) is
// still raised as a panic.
type CompileError struct {
	In  query.View
	Err string
}

func (c *CompileError) Error() string { return c.Err }

// WriteTo writes a plaintext rendering of the error, naming the offending
// view's kind when one is attached.
func (c *CompileError) WriteTo(dst io.Writer) (int64, error) {
	if c.In == nil {
		n, err := fmt.Fprintf(dst, "%s\n", c.Err)
		return int64(n), err
	}
	n, err := fmt.Fprintf(dst, "in view of kind %s:\n\t%s\n", c.In.Kind(), c.Err)
	return int64(n), err
}

// Errorf constructs a *CompileError attributed to view.
func Errorf(view query.View, format string, args ...any) error {
	return &CompileError{In: view, Err: fmt.Sprintf(format, args...)}
}

var _ io.WriterTo = (*CompileError)(nil)

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

import (
	"fmt"

	"github.com/drlojekyll-go/dlcore/cfg"
	"github.com/drlojekyll-go/dlcore/checker"
	"github.com/drlojekyll-go/dlcore/ir"
	"github.com/drlojekyll-go/dlcore/optimize"
	"github.com/drlojekyll-go/dlcore/query"
)

// Options configures Compile. The zero value runs the optimizer and skips
// post-build validation, matching a quick one-off compile; Logf defaults
// to a no-op.
type Options struct {
	// SkipOptimize disables the hash-cons fixed-point pass, useful when
	// debugging a miscompile and wanting to see the builder's raw output.
	SkipOptimize bool
	// Validate runs Validate(program) before returning and turns a
	// well-formedness violation into a compile error.
	Validate bool
	// Logf receives one line per compile phase when non-nil.
	Logf func(format string, args ...any)
}

// Option mutates an Options in place.
type Option func(*Options)

// WithoutOptimizer disables the optimizer pass.
func WithoutOptimizer() Option { return func(o *Options) { o.SkipOptimize = true } }

// WithValidation enables a post-build Validate call.
func WithValidation() Option { return func(o *Options) { o.Validate = true } }

// WithLogf sets the phase logger.
func WithLogf(fn func(string, ...any)) Option { return func(o *Options) { o.Logf = fn } }

// Compile lowers every message entry view in entries into one Program: it
// wires a checker.Builder and a cfg.Builder against a shared pool, builds
// one message handler per entry, drains the induction engine's pending
// cyclic-union fusions, optimizes the result, and packages it.
//
// A *ir.CompileError surfaced by either builder is returned as-is; any
// other panic escaping the builders (an invariant violation rather than a
// recoverable input error) is allowed to propagate.
func Compile(entries []query.View, opts ...Option) (prog *Program, err error) {
	var cfgOpts Options
	for _, opt := range opts {
		opt(&cfgOpts)
	}
	logf := cfgOpts.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}

	defer func() {
		if r := recover(); r != nil {
			if ce, ok := r.(*ir.CompileError); ok {
				err = ce
				return
			}
			panic(r)
		}
	}()

	pool := ir.NewPool()
	checkers := checker.NewBuilder(pool)
	builder := cfg.NewBuilder(pool, checkers)

	logf("program: building %d entry procedures", len(entries))
	for _, entry := range entries {
		if !query.IsStream(entry) {
			return nil, fmt.Errorf("program: compile entry of kind %s is not a stream view", entry.Kind())
		}
		builder.BuildMessageHandler(entry)
	}
	builder.Drain()

	if !cfgOpts.SkipOptimize {
		logf("program: optimizing %d procedures", len(pool.Procedures))
		optimize.Run(pool)
	}

	prog = FromPool(pool)

	if cfgOpts.Validate {
		if verr := Validate(prog); verr != nil {
			return nil, verr
		}
	}
	logf("program: compiled %s with %d procedures", prog.ID, len(prog.Procedures))
	return prog, nil
}

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

package slab

import (
	"errors"
	"math"

	"github.com/drlojekyll-go/dlcore/serialize"
)

var errSlabEOF = errors.New("slab: read past end of slab list")

func f32bits(v float32) uint32   { return math.Float32bits(v) }
func f64bits(v float64) uint64   { return math.Float64bits(v) }
func bitsToF32(v uint32) float32 { return math.Float32frombits(v) }
func bitsToF64(v uint64) float64 { return math.Float64frombits(v) }

var (
	_ serialize.Writer = (*SlabListWriter)(nil)
	_ serialize.Reader = (*SlabListReader)(nil)
)

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

package storage

import (
	"sort"

	"github.com/drlojekyll-go/dlcore/serialize"
	"github.com/drlojekyll-go/dlcore/slab"
)

// ShardedVector holds one append-only Vector[T] per worker. Each worker
// appends to its own shard without synchronization; the only point where
// the shards become visible to one another is Drain, called at an
// induction's fixpoint boundary.
type ShardedVector[T any] struct {
	shards []*Vector[T]
}

// NewShardedVector allocates one empty shard per worker.
func NewShardedVector[T any](mgr *slab.Manager, codec serialize.Codec[T], numWorkers int) *ShardedVector[T] {
	shards := make([]*Vector[T], numWorkers)
	for i := range shards {
		shards[i] = NewVector[T](mgr, codec, false)
	}
	return &ShardedVector[T]{shards: shards}
}

// Append adds v to worker's own shard.
func (s *ShardedVector[T]) Append(worker int, v T) {
	s.shards[worker].Append(v)
}

// NumWorkers returns the number of shards.
func (s *ShardedVector[T]) NumWorkers() int { return len(s.shards) }

// Drain gathers every shard's contents, sorts and deduplicates them with
// less, clears every shard, and returns the merged result. This is the
// "clear the swap-vector, sort-and-unique the add-vector, swap" step that
// turns one iteration's per-worker appends into the next iteration's
// input.
func (s *ShardedVector[T]) Drain(less func(a, b T) bool) []T {
	var all []T
	for _, sh := range s.shards {
		all = append(all, sh.Values()...)
		sh.Clear()
	}
	sort.Slice(all, func(i, j int) bool { return less(all[i], all[j]) })
	out := all[:0]
	for i, v := range all {
		if i == 0 {
			out = append(out, v)
			continue
		}
		prev := out[len(out)-1]
		if less(prev, v) || less(v, prev) {
			out = append(out, v)
		}
	}
	return out
}

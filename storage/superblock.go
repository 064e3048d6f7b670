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
	"github.com/drlojekyll-go/dlcore/serialize"
	"github.com/drlojekyll-go/dlcore/slab"
)

// SuperBlockEntry records, per table, enough information to rebuild its
// runtime index on restart: the table's identity, the first slab of its
// row vector, and the (mutable) last slab and row count, updated as the
// table grows.
type SuperBlockEntry struct {
	TableID   int32
	FirstSlab uint64
	LastSlab  uint64
	RowCount  uint64
}

type superBlockEntryCodec struct{}

func (superBlockEntryCodec) Write(w serialize.Writer, v SuperBlockEntry) {
	w.WriteU32(uint32(v.TableID))
	w.WriteU64(v.FirstSlab)
	w.WriteU64(v.LastSlab)
	w.WriteU64(v.RowCount)
}

func (superBlockEntryCodec) Read(r serialize.Reader) SuperBlockEntry {
	return SuperBlockEntry{
		TableID:   int32(r.ReadU32()),
		FirstSlab: r.ReadU64(),
		LastSlab:  r.ReadU64(),
		RowCount:  r.ReadU64(),
	}
}

func (superBlockEntryCodec) FixedSize() (int, bool) { return 4 + 8 + 8 + 8, true }

// SuperBlockEntryCodec is the shared codec for SuperBlockEntry.
var SuperBlockEntryCodec serialize.Codec[SuperBlockEntry] = superBlockEntryCodec{}

// SuperBlock is the persistent typed slab vector anchored at slab 0: one
// entry per table, naming where that table's row vector lives. Opening a
// file-backed store maps the file and replays the super-block to learn
// where every table's data begins, which is all that is needed to rebuild
// the in-memory associative indices — every other mutation is either an
// append or an in-place write of a fixed-size state cell, so no
// write-ahead log is required.
type SuperBlock struct {
	mgr     *slab.Manager
	entries *Vector[SuperBlockEntry]
}

// NewSuperBlock creates an empty super-block for a fresh store.
func NewSuperBlock(mgr *slab.Manager) *SuperBlock {
	return &SuperBlock{mgr: mgr, entries: NewVector[SuperBlockEntry](mgr, SuperBlockEntryCodec, true)}
}

// OpenSuperBlock recovers a super-block from a store previously flushed
// with Flush. If the store is fresh (root pointer unset), it returns an
// empty super-block equivalent to NewSuperBlock.
func OpenSuperBlock(mgr *slab.Manager) *SuperBlock {
	root := mgr.ReadSuperblockRoot()
	if root == 0 {
		return NewSuperBlock(mgr)
	}
	list := slab.ListFrom(root)
	return &SuperBlock{mgr: mgr, entries: Reopen[SuperBlockEntry](mgr, list, SuperBlockEntryCodec, true)}
}

// Record appends or updates the entry for table id. Because SuperBlockEntry
// lives in a persistent append-only vector, updates after the first
// Record for a given table id are handled by simply appending a newer
// entry; Entries returns the last entry seen per table id.
func (sb *SuperBlock) Record(e SuperBlockEntry) {
	sb.entries.Append(e)
}

// Flush writes the super-block's own root pointer into slab 0 so a
// subsequent OpenSuperBlock can find it. Call this after every Record (or
// batch of Records) that must survive a restart.
func (sb *SuperBlock) Flush() {
	sb.mgr.WriteSuperblockRoot(sb.entries.List().First())
}

// Entries returns the most recently recorded SuperBlockEntry for every
// table id, in order of first appearance.
func (sb *SuperBlock) Entries() []SuperBlockEntry {
	latest := make(map[int32]SuperBlockEntry)
	var order []int32
	for _, e := range sb.entries.Values() {
		if _, ok := latest[e.TableID]; !ok {
			order = append(order, e.TableID)
		}
		latest[e.TableID] = e
	}
	out := make([]SuperBlockEntry, len(order))
	for i, id := range order {
		out[i] = latest[id]
	}
	return out
}

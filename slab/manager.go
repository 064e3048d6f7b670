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
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// Store selects whether a Manager's arena is anonymous memory or backed by
// a file on disk.
type Store interface {
	open(size ArenaSize) ([]byte, *os.File, error)
}

// InMemory is an anonymous, non-persistent arena.
type InMemory struct{}

func (InMemory) open(size ArenaSize) ([]byte, *os.File, error) {
	mem, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, nil, fmt.Errorf("slab: mmap anonymous arena: %w", err)
	}
	return mem, nil, nil
}

// FileBacked maps a file on disk as the arena, so that persistent slab
// lists survive process restart.
type FileBacked struct{ Path string }

func (f FileBacked) open(size ArenaSize) ([]byte, *os.File, error) {
	file, err := os.OpenFile(f.Path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("slab: open %s: %w", f.Path, err)
	}
	if err := file.Truncate(int64(size)); err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("slab: truncate %s: %w", f.Path, err)
	}
	mem, err := unix.Mmap(int(file.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("slab: mmap %s: %w", f.Path, err)
	}
	return mem, file, nil
}

// slabState tracks the metadata needed to manage a live slab: its implicit
// reference count and whether it is exempt from reference-count collection
// because it belongs to a persistent list.
type slabState struct {
	refCount   int32
	persistent bool
}

// Manager is the slab allocator: it owns a 2 MiB-aligned mmap'd address
// range and tracks which slabs are open, allocated, or free. Allocation and
// freeing are serialized; reads/writes of already-owned slab bytes require
// no Manager-level synchronization.
type Manager struct {
	mu        sync.Mutex
	arena     []byte
	file      *os.File
	size      ArenaSize
	watermark uint64 // next never-yet-used slab address
	free      []uint64
	open      map[uint64]struct{}
	allocated map[uint64]*slabState
}

// NewManager creates a slab manager backed by store, reserving size bytes
// of address space. numWorkers is not used by the Manager;
// sharding of append-vectors by worker id is the caller's responsibility.
func NewManager(store Store, size ArenaSize, numWorkers int) (*Manager, error) {
	arena, file, err := store.open(size)
	if err != nil {
		return nil, err
	}
	return &Manager{
		arena: arena,
		file:  file,
		size:  size,
		// Slab 0 is reserved for the super-block, which doubles as a sentinel: address
		// 0 never denotes a live data slab, so List's zero value can
		// mean "empty" unambiguously.
		watermark: Size,
		open:      make(map[uint64]struct{}),
		allocated: make(map[uint64]*slabState),
	}, nil
}

// Superblock returns the raw bytes of slab 0, reserved for the super-block.
// It is never handed out by Allocate.
func (m *Manager) Superblock() []byte {
	return m.bytes(0)
}

// WriteSuperblockRoot records the address of the super-block's entry
// vector's first slab into slab 0's header, so it can be recovered on
// restart without a write-ahead log: a root write is a single in-place
// 8-byte store, not an append.
func (m *Manager) WriteSuperblockRoot(root uint64) {
	writeForward(m.Superblock(), root)
}

// ReadSuperblockRoot returns the address previously recorded by
// WriteSuperblockRoot, or 0 if none has been written yet.
func (m *Manager) ReadSuperblockRoot() uint64 {
	return readForward(m.Superblock())
}

// Close unmaps the arena and, for a file-backed store, closes the
// underlying file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := unix.Munmap(m.arena)
	if m.file != nil {
		if cerr := m.file.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Stats reports a coarse categorization of the manager's slabs.
type Stats struct {
	NumAllocated int
	NumFree      int
	NumOpen      int
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		NumAllocated: len(m.allocated),
		NumFree:      len(m.free),
		NumOpen:      len(m.open),
	}
}

// Allocate reserves a fresh 2 MiB slab, aligned to Size, and returns its
// address (byte offset from the arena base — a slab's identity). The slab
// starts "open": the caller is expected to call MarkClosed once it stops
// writing to the slab's tail.
func (m *Manager) Allocate(persistent bool) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var addr uint64
	if n := len(m.free); n > 0 {
		addr = m.free[n-1]
		m.free = m.free[:n-1]
	} else {
		if m.watermark+Size > uint64(m.size) {
			return 0, fmt.Errorf("slab: arena of size %d exhausted at watermark %d", m.size, m.watermark)
		}
		addr = m.watermark
		m.watermark += Size
	}
	// zero the header (forward pointer + used-bytes cursor) so a reused
	// slab doesn't appear to chain to stale data.
	clear(m.arena[addr : addr+headerSize])
	m.allocated[addr] = &slabState{refCount: 1, persistent: persistent}
	m.open[addr] = struct{}{}
	return addr, nil
}

// MarkClosed moves a slab from "open" to plain "allocated" bookkeeping once
// no further appends will land at its tail.
func (m *Manager) MarkClosed(addr uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.open, addr)
}

// bytes returns the raw Size-byte window for the slab at addr, including
// its header. Callers within this package use this directly; cross-slab
// reads/writes are mediated by SlabListWriter/Reader.
func (m *Manager) bytes(addr uint64) []byte {
	return m.arena[addr : addr+Size : addr+Size]
}

// Retain increments addr's implicit reference count. Go has no
// destructors, so callers must pair this with an explicit Release instead
// of relying on scope exit; typed slab references call this for you.
func (m *Manager) Retain(addr uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.allocated[addr]; ok {
		s.refCount++
	}
}

// Release decrements addr's implicit reference count, returning the slab
// to the free pool once it reaches zero, unless the slab belongs to a
// persistent list.
func (m *Manager) Release(addr uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.allocated[addr]
	if !ok {
		return
	}
	s.refCount--
	if s.refCount > 0 || s.persistent {
		return
	}
	delete(m.allocated, addr)
	m.free = append(m.free, addr)
}

// GarbageCollect frees every persistent, allocated slab that is not
// reachable by walking any of roots. Non-persistent slabs are already
// managed by reference counting and are not touched here.
func (m *Manager) GarbageCollect(roots []*List) Stats {
	reachable := make(map[uint64]struct{})
	for _, l := range roots {
		for addr, ok := l.first, l.first != 0; ok; {
			reachable[addr] = struct{}{}
			next := m.forwardPointer(addr)
			addr, ok = next, next != 0
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for addr, s := range m.allocated {
		if !s.persistent {
			continue
		}
		if _, ok := reachable[addr]; ok {
			continue
		}
		delete(m.allocated, addr)
		m.free = append(m.free, addr)
	}
	return Stats{
		NumAllocated: len(m.allocated),
		NumFree:      len(m.free),
		NumOpen:      len(m.open),
	}
}

func (m *Manager) forwardPointer(addr uint64) uint64 {
	return readForward(m.bytes(addr))
}

// ForwardPointer exposes the forward-pointer chain for callers outside this
// package that need to walk a list manually, such as storage.Vector.Clear
// releasing every slab it owns.
func (m *Manager) ForwardPointer(addr uint64) uint64 {
	return m.forwardPointer(addr)
}

// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package dagger implements a hybrid Robin-Hood/Cuckoo hash table with
// byte-string keys that guarantees O(1) worst-case lookup while keeping
// average-case performance and memory overhead close to a plain
// open-addressed table.
//
// # Design
//
// The table is a single open-addressed array of slots. Each key has two
// candidate homes derived from two independent 64-bit hash functions: a
// primary home at hashPrimary & mask and an alternate home at
// hashAlternate & mask.
//
// Insertion first probes linearly from the primary home using Robin-Hood
// hashing: each resident slot records its probe sequence length (PSL), the
// distance from its own primary home. When the incoming entry's probe
// distance exceeds a resident's PSL the two swap and the walk continues with
// the displaced resident (steal from the rich). Robin-Hood hashing bounds the
// variance of probe lengths, but not the worst case: an unlucky or
// adversarial key distribution can still grow a chain without limit. When an
// entry's probe distance reaches pslThreshold the linear walk is abandoned
// and the entry escalates to Cuckoo placement: it takes its alternate-home
// slot, evicting any occupant, and the evicted occupant is re-placed the same
// way (its own primary chain first, its alternate slot as fallback). The
// displacement chain is processed iteratively off a work list and bounded by
// maxCuckooCycles; exceeding the bound triggers a doubling resize and a
// retried insertion, and TableFull is returned only if even that fails.
//
// The payoff is lookup: a key is either within pslThreshold slots of its
// primary home or it sits exactly at its alternate home. Get therefore
// performs at most pslThreshold+1 slot examinations, a true worst-case O(1)
// bound, and the Robin-Hood PSL ordering lets misses terminate much earlier
// in practice (at the first empty slot, or at the first resident whose PSL is
// smaller than the distance already walked, since the key would have
// displaced that resident during insertion).
//
// Cuckoo residents are transparent to primary chains: a slot holding an
// entry at its alternate home may sit in the middle of some other key's
// primary probe path. Probes walk over such slots without applying the
// early-termination test to them, and deletion's backward shift moves chain
// entries over them without disturbing them (a Cuckoo resident must remain
// exactly at its alternate home to stay reachable).
//
// Deletion uses backward-shift deletion rather than tombstones: after a
// removal, subsequent entries in the chain are shifted back toward their
// primary homes until an entry that cannot move closer (or an empty slot) is
// reached. This keeps chains dense and preserves the early-termination
// guarantee without any rehashing debt.
//
// Resize doubles the capacity and re-places every entry using its cached
// hashes; key bytes are never rehashed. A resize that fails to allocate
// leaves the table in its prior state.
//
// A Table is NOT goroutine-safe. All operations are synchronous and
// CPU-bound; callers requiring concurrent access must provide external
// mutual exclusion or use Sharded, which wraps one table per shard behind a
// mutex.
package dagger

import (
	"bytes"
	"fmt"
	"math/bits"
	"strings"

	"github.com/pkg/errors"
)

const (
	debug = false

	// pslThreshold is the probe distance at which an insertion abandons
	// Robin-Hood probing and escalates to Cuckoo placement. Lookups examine
	// at most pslThreshold primary slots plus one alternate slot.
	pslThreshold = 16

	// maxCuckooCycles bounds the Cuckoo displacement work performed for a
	// single insertion before the table gives up and resizes.
	maxCuckooCycles = 500

	minCapacity     = 16
	defaultCapacity = 64

	// Maximum load factor of 3/4, expressed as a fraction so the overflow
	// check stays integral.
	maxLoadNum = 3
	maxLoadDen = 4

	// Growth attempts for a load-factor resize and for the Cuckoo escape
	// valve. With independent hash functions a single doubling always
	// suffices; the margin exists for degenerate hashers.
	resizeGrowthAttempts = 4
	escapeGrowthAttempts = 2
	restoreAttempts      = 16
)

var (
	// ErrInvalidArgument is returned for nil or malformed inputs.
	ErrInvalidArgument = errors.New("dagger: invalid argument")

	// ErrExists is returned by Set with replace=false when the key is
	// already present. It is a normal signal, not a failure.
	ErrExists = errors.New("dagger: key already present")

	// ErrAllocation is returned when a custom Allocator fails to provide the
	// requested slots. The operation is aborted and the table is left in its
	// prior state.
	ErrAllocation = errors.New("dagger: allocation failed")

	// ErrTableFull is returned when a Cuckoo displacement cycle persists
	// even after resizing. Practically unreachable below full load with
	// independent hash functions, but a defined, non-crashing outcome.
	ErrTableFull = errors.New("dagger: table full")
)

// Slot is the atomic unit of storage: a key with both of its cached hashes,
// its value, and its placement metadata.
type Slot[V any] struct {
	hashPrimary   uint64
	hashAlternate uint64
	key           []byte
	value         V
	// psl is the probe sequence length: the distance in slots between this
	// entry's primary home and the slot it occupies. Zero for Cuckoo
	// residents.
	psl      uint8
	occupied bool
	// inCuckoo marks an entry residing at its alternate home rather than on
	// its primary chain.
	inCuckoo bool
}

// Table is a hash table from byte-string keys to values of type V with Set,
// Get, Contains, Remove, ForEach, and Stats operations. Keys are stored by
// reference: the table retains the caller's slice and callers must not
// mutate a key while it is stored. See the package comment for the probing
// scheme.
//
// A Table is NOT goroutine-safe. Lookup operations update probe statistics
// and are therefore not safe for concurrent readers either.
type Table[V any] struct {
	hasher   Hasher
	keyEqual func(a, b []byte) bool

	primarySeed   uint64
	alternateSeed uint64

	// The allocator to use for the slot array.
	allocator Allocator[V]

	// Optional ownership-transfer hooks. See WithKeyRelease and
	// WithValueRelease.
	keyRelease   func(key []byte)
	valueRelease func(value V)

	// slots is always a power of two in length; mask is len(slots)-1 and is
	// used to compute i%len(slots) with a bitwise AND.
	slots []Slot[V]
	mask  uint64
	count int

	// Scratch work list for Cuckoo displacement chains, reused across
	// insertions.
	pending []Slot[V]

	// Statistics. maxPSL is a high-water mark; cuckooCount tracks the
	// current number of alternate-home residents.
	maxPSL       uint8
	cuckooCount  int
	resizeCount  int
	totalProbes  uint64
	totalLookups uint64
}

// New constructs a Table with the specified initial capacity, rounded up to
// the next power of two with a floor of 16. A capacity of 0 selects the
// default of 64.
func New[V any](initialCapacity int, options ...Option[V]) (*Table[V], error) {
	if initialCapacity < 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "initial capacity %d", initialCapacity)
	}
	t := &Table[V]{
		hasher:        xxHasher{},
		keyEqual:      bytes.Equal,
		primarySeed:   defaultPrimarySeed,
		alternateSeed: defaultAlternateSeed,
		allocator:     defaultAllocator[V]{},
	}
	for _, op := range options {
		op.apply(t)
	}

	capacity := roundCapacity(initialCapacity)
	slots := t.allocator.AllocSlots(int(capacity))
	if uint64(len(slots)) < capacity {
		return nil, errors.Wrapf(ErrAllocation,
			"allocator returned %d of %d slots", len(slots), capacity)
	}
	t.slots = slots[:capacity]
	t.mask = capacity - 1
	t.checkInvariants()
	return t, nil
}

// roundCapacity rounds a requested capacity up to a power of two, applying
// the default and the minimum.
func roundCapacity(requested int) uint64 {
	switch {
	case requested == 0:
		return defaultCapacity
	case requested <= minCapacity:
		return minCapacity
	default:
		return uint64(1) << bits.Len(uint(requested-1))
	}
}

// Close releases every remaining entry through the configured release hooks
// and returns the slot array to the allocator. It is unnecessary to close a
// table using the default allocator and no release hooks. It is invalid to
// use a Table after it has been closed, though Close itself is idempotent.
func (t *Table[V]) Close() {
	if t.slots == nil {
		return
	}
	for i := range t.slots {
		if t.slots[i].occupied {
			t.releaseSlot(&t.slots[i])
		}
	}
	t.allocator.FreeSlots(t.slots)
	t.slots = nil
	t.mask = 0
	t.count = 0
	t.cuckooCount = 0
	t.maxPSL = 0
}

// Set inserts an entry into the table. With replace=true an existing entry
// with the same key has its value overwritten; with replace=false Set
// returns ErrExists and leaves the entry untouched. On an overwrite the old
// value is passed to the value release hook and the incoming key to the key
// release hook (the table keeps the key it already stores).
func (t *Table[V]) Set(key []byte, value V, replace bool) error {
	if key == nil {
		return errors.Wrap(ErrInvalidArgument, "nil key")
	}
	if t.slots == nil {
		return errors.Wrap(ErrInvalidArgument, "table is closed")
	}
	h1 := t.hasher.Primary(key, t.primarySeed)
	h2 := t.hasher.Alternate(key, t.alternateSeed)

	// Set is find composed with insertEntry. We perform the find to see if
	// the key is already present; if it is this is an update, not a
	// displacement. Only known-absent keys enter the placement machinery.
	if s := t.find(key, h1, h2); s != nil {
		if !replace {
			return ErrExists
		}
		if debug {
			fmt.Printf("set(%q): update in place\n", key)
		}
		if t.keyRelease != nil {
			t.keyRelease(key)
		}
		if t.valueRelease != nil {
			t.valueRelease(s.value)
		}
		s.value = value
		t.checkInvariants()
		return nil
	}

	// Resize before the insertion would push the load factor past 3/4.
	if uint64(t.count+1)*maxLoadDen > uint64(len(t.slots))*maxLoadNum {
		if err := t.resizeWith(2*uint64(len(t.slots)), nil, resizeGrowthAttempts); err != nil {
			return err
		}
	}

	entry := Slot[V]{
		hashPrimary:   h1,
		hashAlternate: h2,
		key:           key,
		value:         value,
		occupied:      true,
	}
	leftover := t.insertEntry(entry)
	if leftover != nil {
		// Escape valve: a displacement cycle the kick budget could not
		// resolve. Rebuild at doubled capacity, carrying the homeless
		// entries, and thereby retry the insertion from scratch.
		if debug {
			fmt.Printf("set(%q): displacement cycle, %d homeless\n", key, len(leftover))
		}
		err := t.resizeWith(2*uint64(len(t.slots)), leftover, escapeGrowthAttempts)
		if err == nil {
			t.count++
			t.checkInvariants()
			return nil
		}
		// Even the resize could not place the new key. Reject it and
		// restore the previously stored entries. Displacement may have
		// parked the new key in the slot array while an older entry went
		// homeless, so clear it before rebuilding.
		for i := range t.slots {
			s := &t.slots[i]
			if s.occupied && s.hashPrimary == h1 && s.hashAlternate == h2 && t.keyEqual(s.key, key) {
				if s.inCuckoo {
					t.cuckooCount--
				}
				*s = Slot[V]{}
				break
			}
		}
		restore := leftover[:0]
		for _, e := range leftover {
			if e.hashPrimary == h1 && e.hashAlternate == h2 && t.keyEqual(e.key, key) {
				continue
			}
			restore = append(restore, e)
		}
		if rerr := t.resizeWith(uint64(len(t.slots)), restore, restoreAttempts); rerr != nil {
			return rerr
		}
		t.checkInvariants()
		return errors.Wrapf(ErrTableFull, "capacity %d", len(t.slots))
	}
	t.count++
	t.checkInvariants()
	return nil
}

// find locates the slot holding key, or nil. It is the lookup algorithm
// without statistics tracking, shared by Set and the invariant checks; Get,
// Contains, and Remove manually inline the same walk.
func (t *Table[V]) find(key []byte, h1, h2 uint64) *Slot[V] {
	i := h1 & t.mask
	for dist := uint8(0); dist < pslThreshold; dist++ {
		s := &t.slots[i]
		if !s.occupied {
			break
		}
		if s.hashPrimary == h1 && t.keyEqual(s.key, key) {
			return s
		}
		if !s.inCuckoo && s.psl < dist {
			break
		}
		i = (i + 1) & t.mask
	}
	s := &t.slots[h2&t.mask]
	if s.occupied && s.inCuckoo && s.hashAlternate == h2 && t.keyEqual(s.key, key) {
		return s
	}
	return nil
}

// insertEntry places an entry known not to be present, displacing residents
// as needed. On success it returns nil. If the displacement budget is
// exhausted it returns the entries left homeless; they are no longer stored
// in the slot array and the caller must rebuild at a larger capacity.
func (t *Table[V]) insertEntry(entry Slot[V]) []Slot[V] {
	pending := append(t.pending[:0], entry)
	for kicks := 0; len(pending) > 0; kicks++ {
		if kicks > maxCuckooCycles {
			out := make([]Slot[V], len(pending))
			copy(out, pending)
			t.pending = pending[:0]
			return out
		}
		e := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		e.psl = 0
		e.inCuckoo = false

		// Robin-Hood walk from the primary home. Cuckoo residents along the
		// way are walked over: they are pinned to their alternate homes and
		// never participate in swaps.
		placed := false
		i := e.hashPrimary & t.mask
		for {
			s := &t.slots[i]
			if !s.occupied {
				*s = e
				if e.psl > t.maxPSL {
					t.maxPSL = e.psl
				}
				placed = true
				break
			}
			if !s.inCuckoo && e.psl > s.psl {
				// Steal from the rich: the incoming entry takes the
				// resident's slot and the walk continues with the resident.
				e, *s = *s, e
				if s.psl > t.maxPSL {
					t.maxPSL = s.psl
				}
			}
			e.psl++
			i = (i + 1) & t.mask
			if e.psl >= pslThreshold {
				break
			}
		}
		if placed {
			continue
		}

		// The probe distance reached the threshold without a vacancy:
		// abandon linear probing for this entry and take its alternate
		// slot, evicting any occupant onto the work list.
		j := e.hashAlternate & t.mask
		s := &t.slots[j]
		if s.occupied {
			if debug {
				fmt.Printf("insert: evicting %q from alternate slot %d\n", s.key, j)
			}
			if s.inCuckoo {
				t.cuckooCount--
			}
			pending = append(pending, *s)
		}
		e.psl = 0
		e.inCuckoo = true
		*s = e
		t.cuckooCount++
	}
	t.pending = pending[:0]
	return nil
}

// Get retrieves the value for the specified key, returning ok=false if the
// key is not present.
func (t *Table[V]) Get(key []byte) (value V, ok bool) {
	if key == nil || t.slots == nil {
		return value, false
	}
	h1 := t.hasher.Primary(key, t.primarySeed)
	t.totalLookups++

	// Walk the Robin-Hood chain from the primary home. An empty slot or a
	// resident with a smaller PSL than the distance already walked proves
	// the key is not on the chain; either way the alternate slot must still
	// be checked, since the key may have escalated to Cuckoo placement when
	// the chain was denser than it is now.
	i := h1 & t.mask
	for dist := uint8(0); dist < pslThreshold; dist++ {
		s := &t.slots[i]
		t.totalProbes++
		if !s.occupied {
			break
		}
		if s.hashPrimary == h1 && t.keyEqual(s.key, key) {
			return s.value, true
		}
		if !s.inCuckoo && s.psl < dist {
			break
		}
		i = (i + 1) & t.mask
	}

	h2 := t.hasher.Alternate(key, t.alternateSeed)
	s := &t.slots[h2&t.mask]
	t.totalProbes++
	if s.occupied && s.inCuckoo && s.hashAlternate == h2 && t.keyEqual(s.key, key) {
		return s.value, true
	}
	return value, false
}

// Contains reports whether the key is present.
func (t *Table[V]) Contains(key []byte) bool {
	_, ok := t.Get(key)
	return ok
}

// GetPrimary is the hot-path lookup: it walks only the primary Robin-Hood
// chain, skipping both the alternate-slot check and all statistics
// accounting. It trades the worst-case guarantee for raw chain speed and may
// return a false negative for a key residing at its alternate home. Callers
// who cannot tolerate false negatives must use Get.
func (t *Table[V]) GetPrimary(key []byte) (value V, ok bool) {
	if key == nil || t.slots == nil {
		return value, false
	}
	h1 := t.hasher.Primary(key, t.primarySeed)
	i := h1 & t.mask
	for dist := uint8(0); dist < pslThreshold; dist++ {
		s := &t.slots[i]
		if !s.occupied {
			break
		}
		if s.hashPrimary == h1 && t.keyEqual(s.key, key) {
			return s.value, true
		}
		if !s.inCuckoo && s.psl < dist {
			break
		}
		i = (i + 1) & t.mask
	}
	return value, false
}

// Remove deletes the entry for the specified key, reporting whether an entry
// was present. Removing an absent key leaves the table unchanged.
func (t *Table[V]) Remove(key []byte) bool {
	if key == nil || t.slots == nil || t.count == 0 {
		return false
	}
	h1 := t.hasher.Primary(key, t.primarySeed)
	i := h1 & t.mask
	for dist := uint8(0); dist < pslThreshold; dist++ {
		s := &t.slots[i]
		if !s.occupied {
			break
		}
		if s.hashPrimary == h1 && t.keyEqual(s.key, key) {
			if s.inCuckoo {
				t.cuckooCount--
			}
			t.releaseSlot(s)
			*s = Slot[V]{}
			t.count--
			// The emptied slot may sit mid-chain even if the removed entry
			// was a Cuckoo resident: probe distance counts Cuckoo slots, so
			// other keys' chains extend through them.
			t.backwardShift(i)
			t.checkInvariants()
			return true
		}
		if !s.inCuckoo && s.psl < dist {
			break
		}
		i = (i + 1) & t.mask
	}

	h2 := t.hasher.Alternate(key, t.alternateSeed)
	j := h2 & t.mask
	s := &t.slots[j]
	if s.occupied && s.inCuckoo && s.hashAlternate == h2 && t.keyEqual(s.key, key) {
		t.releaseSlot(s)
		*s = Slot[V]{}
		t.cuckooCount--
		t.count--
		t.backwardShift(j)
		t.checkInvariants()
		return true
	}
	return false
}

// backwardShift re-compacts the chain following the just-emptied slot w,
// moving each subsequent chain entry back toward its primary home and
// decrementing its PSL accordingly. Cuckoo residents are pinned: the shift
// walks over them, and entries beyond them move back by the width of the
// gap. The shift stops at an empty slot or at an entry that can move no
// closer to its home, preserving the lookup early-termination guarantee.
func (t *Table[V]) backwardShift(w uint64) {
	r := (w + 1) & t.mask
	for {
		s := &t.slots[r]
		if !s.occupied {
			return
		}
		if s.inCuckoo {
			r = (r + 1) & t.mask
			continue
		}
		d := (r - w) & t.mask
		if uint64(s.psl) < d {
			return
		}
		moved := *s
		moved.psl -= uint8(d)
		t.slots[w] = moved
		*s = Slot[V]{}
		w = r
		r = (r + 1) & t.mask
	}
}

// Clear removes all entries, releasing them through the configured hooks,
// while retaining the current capacity.
func (t *Table[V]) Clear() {
	for i := range t.slots {
		if t.slots[i].occupied {
			t.releaseSlot(&t.slots[i])
			t.slots[i] = Slot[V]{}
		}
	}
	t.count = 0
	t.cuckooCount = 0
	t.maxPSL = 0
	t.checkInvariants()
}

// ForEach visits every entry in physical slot order (not insertion order),
// invoking fn with the stored key and value. Returning false from fn stops
// the iteration. ForEach returns the number of entries visited, including
// the one that stopped it. The table must not be mutated during iteration.
func (t *Table[V]) ForEach(fn func(key []byte, value V) bool) int {
	if fn == nil {
		return 0
	}
	visited := 0
	for i := range t.slots {
		if !t.slots[i].occupied {
			continue
		}
		visited++
		if !fn(t.slots[i].key, t.slots[i].value) {
			break
		}
	}
	return visited
}

// Len returns the number of entries in the table.
func (t *Table[V]) Len() int {
	return t.count
}

// Stats is a read-only diagnostic snapshot of a table.
type Stats struct {
	Capacity    int
	Count       int
	MaxPSL      int
	CuckooCount int
	ResizeCount int
	LoadFactor  float64
	Probes      uint64
	Lookups     uint64
	AvgProbes   float64
}

// Stats returns a diagnostic snapshot. MaxPSL is a high-water mark;
// AvgProbes is the mean number of slot examinations per lookup (0 before the
// first lookup).
func (t *Table[V]) Stats() Stats {
	s := Stats{
		Capacity:    len(t.slots),
		Count:       t.count,
		MaxPSL:      int(t.maxPSL),
		CuckooCount: t.cuckooCount,
		ResizeCount: t.resizeCount,
		Probes:      t.totalProbes,
		Lookups:     t.totalLookups,
	}
	if len(t.slots) > 0 {
		s.LoadFactor = float64(t.count) / float64(len(t.slots))
	}
	if t.totalLookups > 0 {
		s.AvgProbes = float64(t.totalProbes) / float64(t.totalLookups)
	}
	return s
}

// Resize rebuilds the table at the requested capacity, rounded up to a power
// of two and raised as needed to keep the load factor within bounds. Every
// entry is re-placed using its cached hashes; key bytes are not rehashed.
func (t *Table[V]) Resize(capacity int) error {
	if capacity < 0 {
		return errors.Wrapf(ErrInvalidArgument, "capacity %d", capacity)
	}
	if t.slots == nil {
		return errors.Wrap(ErrInvalidArgument, "table is closed")
	}
	newCapacity := roundCapacity(capacity)
	for uint64(t.count)*maxLoadDen > newCapacity*maxLoadNum {
		newCapacity *= 2
	}
	return t.resizeWith(newCapacity, nil, resizeGrowthAttempts)
}

// resizeWith rebuilds the table at newCapacity, re-placing every stored
// entry plus the supplied extra entries from their cached hashes. If
// placement overflows the displacement budget the capacity is doubled and
// the rebuild restarts, up to growthAttempts times. On failure the table is
// left untouched: the rebuild works on a fresh slot array and commits only
// when complete.
func (t *Table[V]) resizeWith(newCapacity uint64, extra []Slot[V], growthAttempts int) error {
	for attempt := 0; ; attempt++ {
		slots := t.allocator.AllocSlots(int(newCapacity))
		if uint64(len(slots)) < newCapacity {
			return errors.Wrapf(ErrAllocation,
				"allocator returned %d of %d slots", len(slots), newCapacity)
		}
		nt := Table[V]{
			slots: slots[:newCapacity],
			mask:  newCapacity - 1,
		}
		ok := true
		for i := range t.slots {
			if !t.slots[i].occupied {
				continue
			}
			if nt.insertEntry(t.slots[i]) != nil {
				ok = false
				break
			}
		}
		if ok {
			for _, e := range extra {
				if nt.insertEntry(e) != nil {
					ok = false
					break
				}
			}
		}
		if !ok {
			t.allocator.FreeSlots(nt.slots)
			if attempt+1 >= growthAttempts {
				return errors.Wrapf(ErrTableFull,
					"rehash failed at capacity %d", newCapacity)
			}
			newCapacity *= 2
			continue
		}
		if debug {
			fmt.Printf("resize: capacity=%d->%d count=%d cuckoo=%d\n",
				len(t.slots), newCapacity, t.count, nt.cuckooCount)
		}
		t.allocator.FreeSlots(t.slots)
		t.slots = nt.slots
		t.mask = nt.mask
		t.maxPSL = nt.maxPSL
		t.cuckooCount = nt.cuckooCount
		t.resizeCount++
		return nil
	}
}

func (t *Table[V]) releaseSlot(s *Slot[V]) {
	if t.keyRelease != nil {
		t.keyRelease(s.key)
	}
	if t.valueRelease != nil {
		t.valueRelease(s.value)
	}
}

// checkInvariants verifies the table's structural invariants when built with
// the invariants tag: power-of-two capacity, the load factor bound, Cuckoo
// residents pinned to their alternate homes, placement consistency of every
// chain entry, and reachability of every entry along its probe path.
func (t *Table[V]) checkInvariants() {
	if !invariants {
		return
	}
	if t.slots == nil {
		return
	}
	capacity := uint64(len(t.slots))
	if capacity < minCapacity || capacity&(capacity-1) != 0 {
		panic(fmt.Sprintf("invariant failed: capacity %d is not a power of two >= %d\n%s",
			capacity, minCapacity, t.debugString()))
	}
	if uint64(t.count)*maxLoadDen > capacity*maxLoadNum {
		panic(fmt.Sprintf("invariant failed: count %d exceeds %d/%d of capacity %d\n%s",
			t.count, maxLoadNum, maxLoadDen, capacity, t.debugString()))
	}
	var used, cuckoo int
	var maxPSL uint8
	for i := range t.slots {
		s := &t.slots[i]
		if !s.occupied {
			continue
		}
		used++
		if s.inCuckoo {
			cuckoo++
			if uint64(i) != s.hashAlternate&t.mask {
				panic(fmt.Sprintf("invariant failed: slot(%d): cuckoo entry %q not at alternate home %d\n%s",
					i, s.key, s.hashAlternate&t.mask, t.debugString()))
			}
			continue
		}
		if s.psl >= pslThreshold {
			panic(fmt.Sprintf("invariant failed: slot(%d): psl %d >= threshold\n%s",
				i, s.psl, t.debugString()))
		}
		if s.psl > maxPSL {
			maxPSL = s.psl
		}
		home := s.hashPrimary & t.mask
		if uint64(i) != (home+uint64(s.psl))&t.mask {
			panic(fmt.Sprintf("invariant failed: slot(%d): %q psl=%d home=%d\n%s",
				i, s.key, s.psl, home, t.debugString()))
		}
		// Walk the probe path: the entry must be reachable without an
		// empty slot or an early termination ahead of it.
		for d := uint8(0); d < s.psl; d++ {
			p := &t.slots[(home+uint64(d))&t.mask]
			if !p.occupied {
				panic(fmt.Sprintf("invariant failed: slot(%d): %q unreachable, empty slot at distance %d\n%s",
					i, s.key, d, t.debugString()))
			}
			if !p.inCuckoo && p.psl < d {
				panic(fmt.Sprintf("invariant failed: slot(%d): %q unreachable, termination at distance %d\n%s",
					i, s.key, d, t.debugString()))
			}
		}
	}
	if used != t.count {
		panic(fmt.Sprintf("invariant failed: found %d used slots, but count is %d\n%s",
			used, t.count, t.debugString()))
	}
	if cuckoo != t.cuckooCount {
		panic(fmt.Sprintf("invariant failed: found %d cuckoo slots, but cuckooCount is %d\n%s",
			cuckoo, t.cuckooCount, t.debugString()))
	}
	if maxPSL > t.maxPSL {
		panic(fmt.Sprintf("invariant failed: observed psl %d above recorded max %d\n%s",
			maxPSL, t.maxPSL, t.debugString()))
	}
}

func (t *Table[V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  count=%d  cuckoo=%d  max-psl=%d\n",
		len(t.slots), t.count, t.cuckooCount, t.maxPSL)
	for i := range t.slots {
		s := &t.slots[i]
		switch {
		case !s.occupied:
			fmt.Fprintf(&buf, "  %4d: empty\n", i)
		case s.inCuckoo:
			fmt.Fprintf(&buf, "  %4d: %q [cuckoo home=%d]\n", i, s.key, s.hashAlternate&t.mask)
		default:
			fmt.Fprintf(&buf, "  %4d: %q [psl=%d home=%d]\n", i, s.key, s.psl, s.hashPrimary&t.mask)
		}
	}
	return buf.String()
}

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

package dagger

// Option provides an interface to do work on a Table while it is being
// created.
type Option[V any] interface {
	apply(t *Table[V])
}

type hasherOption[V any] struct {
	hasher Hasher
}

func (op hasherOption[V]) apply(t *Table[V]) {
	t.hasher = op.hasher
}

// WithHasher is an option to specify the Hasher to use for a Table[V]. The
// hasher must be consistent with the table's key equality function: keys that
// compare equal must hash equal.
func WithHasher[V any](hasher Hasher) Option[V] {
	return hasherOption[V]{hasher}
}

type seedsOption[V any] struct {
	primary   uint64
	alternate uint64
}

func (op seedsOption[V]) apply(t *Table[V]) {
	t.primarySeed = op.primary
	t.alternateSeed = op.alternate
}

// WithSeeds is an option to replace the fixed default seeds of the primary
// and alternate hash functions. The two seeds should differ; identical seeds
// weaken the independence of the two functions.
func WithSeeds[V any](primary, alternate uint64) Option[V] {
	return seedsOption[V]{primary, alternate}
}

type keyEqualityOption[V any] struct {
	equal func(a, b []byte) bool
}

func (op keyEqualityOption[V]) apply(t *Table[V]) {
	t.keyEqual = op.equal
}

// WithKeyEquality is an option to replace the default byte-wise key
// comparison, e.g. with a case-insensitive comparator. Callers substituting
// equality must also substitute a Hasher (or canonicalize keys before
// hashing) so that equal keys hash equal.
func WithKeyEquality[V any](equal func(a, b []byte) bool) Option[V] {
	return keyEqualityOption[V]{equal}
}

type keyReleaseOption[V any] struct {
	release func(key []byte)
}

func (op keyReleaseOption[V]) apply(t *Table[V]) {
	t.keyRelease = op.release
}

// WithKeyRelease registers a hook invoked for a key when the table gives up
// ownership of it: on removal, on Clear and Close for every remaining entry,
// and for the incoming key on an overwrite of an existing entry (the table
// retains the key it already stores). Registering the hook transfers
// ownership of inserted keys to the table; without it the table is a pure
// reference container and callers manage key lifetime themselves.
func WithKeyRelease[V any](release func(key []byte)) Option[V] {
	return keyReleaseOption[V]{release}
}

type valueReleaseOption[V any] struct {
	release func(value V)
}

func (op valueReleaseOption[V]) apply(t *Table[V]) {
	t.valueRelease = op.release
}

// WithValueRelease registers a hook invoked for a value when it leaves the
// table: on overwrite, removal, Clear, and Close. Registering the hook
// transfers ownership of inserted values to the table.
func WithValueRelease[V any](release func(value V)) Option[V] {
	return valueReleaseOption[V]{release}
}

// Allocator specifies an interface for allocating and releasing the slot
// array backing a Table. The default allocator utilizes Go's builtin make()
// and allows the GC to reclaim memory.
//
// If the allocator is manually managing memory and requires that slots be
// freed then Table.Close must be called in order to ensure FreeSlots is
// called.
type Allocator[V any] interface {
	// AllocSlots should return a slice equivalent to make([]Slot[V], n).
	AllocSlots(n int) []Slot[V]

	// FreeSlots can optionally release the memory associated with the
	// supplied slice that is guaranteed to have been allocated by AllocSlots.
	FreeSlots(v []Slot[V])
}

type defaultAllocator[V any] struct{}

func (defaultAllocator[V]) AllocSlots(n int) []Slot[V] {
	return make([]Slot[V], n)
}

func (defaultAllocator[V]) FreeSlots(v []Slot[V]) {
}

type allocatorOption[V any] struct {
	allocator Allocator[V]
}

func (op allocatorOption[V]) apply(t *Table[V]) {
	t.allocator = op.allocator
}

// WithAllocator is an option for specifying the Allocator to use for a
// Table[V].
func WithAllocator[V any](allocator Allocator[V]) Option[V] {
	return allocatorOption[V]{allocator}
}

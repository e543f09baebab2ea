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

import (
	"math/bits"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

const defaultShardCount = 16

type shard[V any] struct {
	mu    sync.Mutex
	table *Table[V]
}

// Sharded wraps one Table per shard behind a mutex, providing goroutine-safe
// access for callers that need it. Keys are routed to shards by the top bits
// of an unseeded hash, independent of the per-table hash seeds. Operations on
// different shards proceed in parallel; operations on the same shard
// serialize.
type Sharded[V any] struct {
	shards []shard[V]
	shift  uint
}

// NewSharded constructs a Sharded table with the given number of shards
// (which must be a power of two; 0 selects the default of 16) and the given
// initial per-shard capacity. The options are applied to every shard's
// table.
func NewSharded[V any](shardCount, perShardCapacity int, options ...Option[V]) (*Sharded[V], error) {
	if shardCount == 0 {
		shardCount = defaultShardCount
	}
	if shardCount < 0 || shardCount&(shardCount-1) != 0 {
		return nil, errors.Wrapf(ErrInvalidArgument,
			"shard count %d is not a power of two", shardCount)
	}
	s := &Sharded[V]{
		shards: make([]shard[V], shardCount),
		shift:  uint(64 - bits.TrailingZeros(uint(shardCount))),
	}
	for i := range s.shards {
		t, err := New[V](perShardCapacity, options...)
		if err != nil {
			for j := 0; j < i; j++ {
				s.shards[j].table.Close()
			}
			return nil, err
		}
		s.shards[i].table = t
	}
	return s, nil
}

func (s *Sharded[V]) shardFor(key []byte) *shard[V] {
	return &s.shards[xxhash.Sum64(key)>>s.shift]
}

// Set inserts an entry into the key's shard. See Table.Set.
func (s *Sharded[V]) Set(key []byte, value V, replace bool) error {
	if key == nil {
		return errors.Wrap(ErrInvalidArgument, "nil key")
	}
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.table.Set(key, value, replace)
}

// Get retrieves the value for the specified key. See Table.Get.
func (s *Sharded[V]) Get(key []byte) (value V, ok bool) {
	if key == nil {
		return value, false
	}
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.table.Get(key)
}

// Contains reports whether the key is present.
func (s *Sharded[V]) Contains(key []byte) bool {
	_, ok := s.Get(key)
	return ok
}

// Remove deletes the entry for the specified key. See Table.Remove.
func (s *Sharded[V]) Remove(key []byte) bool {
	if key == nil {
		return false
	}
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.table.Remove(key)
}

// Len returns the total number of entries across all shards. The count is a
// snapshot: concurrent mutations may be partially reflected.
func (s *Sharded[V]) Len() int {
	n := 0
	for i := range s.shards {
		s.shards[i].mu.Lock()
		n += s.shards[i].table.Len()
		s.shards[i].mu.Unlock()
	}
	return n
}

// ForEach visits every entry, shard by shard, holding each shard's lock
// while it is being visited. Returning false from fn stops the iteration.
// ForEach returns the number of entries visited. fn must not call back into
// the Sharded table.
func (s *Sharded[V]) ForEach(fn func(key []byte, value V) bool) int {
	if fn == nil {
		return 0
	}
	visited := 0
	for i := range s.shards {
		s.shards[i].mu.Lock()
		stopped := false
		visited += s.shards[i].table.ForEach(func(key []byte, value V) bool {
			if !fn(key, value) {
				stopped = true
				return false
			}
			return true
		})
		s.shards[i].mu.Unlock()
		if stopped {
			break
		}
	}
	return visited
}

// Clear removes all entries from every shard.
func (s *Sharded[V]) Clear() {
	for i := range s.shards {
		s.shards[i].mu.Lock()
		s.shards[i].table.Clear()
		s.shards[i].mu.Unlock()
	}
}

// Close closes every shard's table. See Table.Close.
func (s *Sharded[V]) Close() {
	for i := range s.shards {
		s.shards[i].mu.Lock()
		s.shards[i].table.Close()
		s.shards[i].mu.Unlock()
	}
}

// Stats aggregates the diagnostic snapshots of all shards: counts and probe
// totals are summed, MaxPSL is the maximum across shards, and LoadFactor and
// AvgProbes are recomputed from the aggregated totals.
func (s *Sharded[V]) Stats() Stats {
	var agg Stats
	for i := range s.shards {
		s.shards[i].mu.Lock()
		st := s.shards[i].table.Stats()
		s.shards[i].mu.Unlock()
		agg.Capacity += st.Capacity
		agg.Count += st.Count
		agg.CuckooCount += st.CuckooCount
		agg.ResizeCount += st.ResizeCount
		agg.Probes += st.Probes
		agg.Lookups += st.Lookups
		if st.MaxPSL > agg.MaxPSL {
			agg.MaxPSL = st.MaxPSL
		}
	}
	if agg.Capacity > 0 {
		agg.LoadFactor = float64(agg.Count) / float64(agg.Capacity)
	}
	if agg.Lookups > 0 {
		agg.AvgProbes = float64(agg.Probes) / float64(agg.Lookups)
	}
	return agg
}

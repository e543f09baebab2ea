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
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShardedBasic(t *testing.T) {
	s, err := NewSharded[int](0, 0)
	require.NoError(t, err)
	defer s.Close()

	const count = 1000
	e := make(map[string]int)
	for i := 0; i < count; i++ {
		require.NoError(t, s.Set(testKey(i), i, true))
		e[string(testKey(i))] = i
	}
	require.EqualValues(t, count, s.Len())
	for i := 0; i < count; i++ {
		v, ok := s.Get(testKey(i))
		require.True(t, ok)
		require.EqualValues(t, i, v)
		require.True(t, s.Contains(testKey(i)))
	}

	seen := make(map[string]int)
	visited := s.ForEach(func(k []byte, v int) bool {
		seen[string(k)] = v
		return true
	})
	require.EqualValues(t, count, visited)
	require.Equal(t, e, seen)

	for i := 0; i < count; i += 2 {
		require.True(t, s.Remove(testKey(i)))
	}
	require.EqualValues(t, count/2, s.Len())
	for i := 0; i < count; i++ {
		_, ok := s.Get(testKey(i))
		require.Equal(t, i%2 == 1, ok)
	}

	s.Clear()
	require.EqualValues(t, 0, s.Len())
}

func TestShardedValidation(t *testing.T) {
	_, err := NewSharded[int](3, 0)
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = NewSharded[int](-4, 0)
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = NewSharded[int](16, -1)
	require.ErrorIs(t, err, ErrInvalidArgument)

	s, err := NewSharded[int](1, 0)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Set([]byte("k"), 1, true))
	require.True(t, s.Contains([]byte("k")))

	require.ErrorIs(t, s.Set(nil, 1, true), ErrInvalidArgument)
	_, ok := s.Get(nil)
	require.False(t, ok)
	require.False(t, s.Remove(nil))
	require.EqualValues(t, 0, s.ForEach(nil))
}

func TestShardedStats(t *testing.T) {
	const shardCount = 8
	s, err := NewSharded[int](shardCount, 16)
	require.NoError(t, err)
	defer s.Close()

	st := s.Stats()
	require.EqualValues(t, shardCount*16, st.Capacity)
	require.EqualValues(t, 0, st.Count)

	const count = 1000
	for i := 0; i < count; i++ {
		require.NoError(t, s.Set(testKey(i), i, true))
	}
	for i := 0; i < count; i++ {
		_, _ = s.Get(testKey(i))
	}

	st = s.Stats()
	require.EqualValues(t, count, st.Count)
	require.EqualValues(t, count, st.Lookups)
	require.Greater(t, st.Probes, uint64(0))
	require.Greater(t, st.AvgProbes, 0.0)
	require.InEpsilon(t, float64(st.Count)/float64(st.Capacity), st.LoadFactor, 1e-9)
	require.GreaterOrEqual(t, st.ResizeCount, 1)
}

func TestShardedConcurrent(t *testing.T) {
	s, err := NewSharded[int](16, 0)
	require.NoError(t, err)
	defer s.Close()

	const (
		workers       = 8
		keysPerWorker = 2000
	)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			// Each worker owns a disjoint key range so results are exact.
			for i := 0; i < keysPerWorker; i++ {
				k := []byte(fmt.Sprintf("w%d-%d", w, i))
				if err := s.Set(k, i, true); err != nil {
					t.Error(err)
					return
				}
			}
			for i := 0; i < keysPerWorker; i++ {
				k := []byte(fmt.Sprintf("w%d-%d", w, i))
				if v, ok := s.Get(k); !ok || v != i {
					t.Errorf("worker %d: get %q = %d, %t", w, k, v, ok)
					return
				}
			}
			for i := 0; i < keysPerWorker; i += 2 {
				k := []byte(fmt.Sprintf("w%d-%d", w, i))
				if !s.Remove(k) {
					t.Errorf("worker %d: remove %q failed", w, k)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	require.EqualValues(t, workers*keysPerWorker/2, s.Len())
	for w := 0; w < workers; w++ {
		for i := 0; i < keysPerWorker; i++ {
			k := []byte(fmt.Sprintf("w%d-%d", w, i))
			_, ok := s.Get(k)
			require.Equal(t, i%2 == 1, ok, "key %q", k)
		}
	}
}

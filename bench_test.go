package dagger

import (
	"fmt"
	"io"
	"strconv"
	"testing"

	"github.com/aclements/go-perfevent/perfbench"
)

func BenchmarkTableIter(b *testing.B) {
	b.Run("impl=runtimeMap", benchSizes(benchmarkRuntimeMapIter))
	b.Run("impl=daggerTable", benchSizes(benchmarkDaggerIter))
}

func BenchmarkTableGetHit(b *testing.B) {
	b.Run("impl=runtimeMap", benchSizes(benchmarkRuntimeMapGetHit))
	b.Run("impl=daggerTable", benchSizes(benchmarkDaggerGetHit))
	b.Run("impl=daggerTablePrimary", benchSizes(benchmarkDaggerGetHitPrimary))
}

func BenchmarkTableGetMiss(b *testing.B) {
	b.Run("impl=runtimeMap", benchSizes(benchmarkRuntimeMapGetMiss))
	b.Run("impl=daggerTable", benchSizes(benchmarkDaggerGetMiss))
}

func BenchmarkTablePutGrow(b *testing.B) {
	b.Run("impl=runtimeMap", benchSizes(benchmarkRuntimeMapPutGrow))
	b.Run("impl=daggerTable", benchSizes(benchmarkDaggerPutGrow))
}

func BenchmarkTablePutPreAllocate(b *testing.B) {
	b.Run("impl=runtimeMap", benchSizes(benchmarkRuntimeMapPutPreAllocate))
	b.Run("impl=daggerTable", benchSizes(benchmarkDaggerPutPreAllocate))
}

func BenchmarkTablePutDelete(b *testing.B) {
	b.Run("impl=runtimeMap", benchSizes(benchmarkRuntimeMapPutDelete))
	b.Run("impl=daggerTable", benchSizes(benchmarkDaggerPutDelete))
}

func benchSizes(f func(b *testing.B, n int)) func(*testing.B) {
	var cases = []int{
		16,
		64,
		256,
		1024,
		4096,
		8192,
		1 << 16,
	}

	return func(b *testing.B) {
		for _, n := range cases {
			b.Run("len="+strconv.Itoa(n), func(b *testing.B) { f(b, n) })
		}
	}
}

func genBenchKeys(start, end int) [][]byte {
	keys := make([][]byte, end-start)
	for i := range keys {
		keys[i] = []byte(strconv.Itoa(start + i))
	}
	return keys
}

func benchmarkRuntimeMapIter(b *testing.B, n int) {
	m := make(map[string]int64, n)
	for i, k := range genBenchKeys(0, n) {
		m[string(k)] = int64(i)
	}
	c := perfbench.Open(b)
	b.ResetTimer()
	c.Reset()
	var tmp int64
	for i := 0; i < b.N; i++ {
		for _, v := range m {
			tmp += v
		}
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, tmp)
}

func benchmarkDaggerIter(b *testing.B, n int) {
	m, err := New[int64](n)
	if err != nil {
		b.Fatal(err)
	}
	for i, k := range genBenchKeys(0, n) {
		if err := m.Set(k, int64(i), true); err != nil {
			b.Fatal(err)
		}
	}
	c := perfbench.Open(b)
	b.ResetTimer()
	c.Reset()
	var tmp int64
	for i := 0; i < b.N; i++ {
		m.ForEach(func(k []byte, v int64) bool {
			tmp += v
			return true
		})
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, tmp)
}

func benchmarkRuntimeMapGetHit(b *testing.B, n int) {
	m := make(map[string]int64, n)
	for i, k := range genBenchKeys(0, n) {
		m[string(k)] = int64(i)
	}
	// Regenerate the keys so lookups do not share underlying string data
	// with the stored keys; Go's builtin map short-circuits on pointer
	// equality, which would skew the comparison.
	keys := genBenchKeys(0, n)
	c := perfbench.Open(b)
	b.ResetTimer()
	c.Reset()
	var tmp int64
	for i := 0; i < b.N; i++ {
		tmp += m[string(keys[i&(n-1)])]
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, tmp)
}

func benchmarkDaggerGetHit(b *testing.B, n int) {
	m, err := New[int64](n)
	if err != nil {
		b.Fatal(err)
	}
	keys := genBenchKeys(0, n)
	for i, k := range keys {
		if err := m.Set(k, int64(i), true); err != nil {
			b.Fatal(err)
		}
	}
	c := perfbench.Open(b)
	b.ResetTimer()
	c.Reset()
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = m.Get(keys[i&(n-1)])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkDaggerGetHitPrimary(b *testing.B, n int) {
	m, err := New[int64](n)
	if err != nil {
		b.Fatal(err)
	}
	keys := genBenchKeys(0, n)
	for i, k := range keys {
		if err := m.Set(k, int64(i), true); err != nil {
			b.Fatal(err)
		}
	}
	c := perfbench.Open(b)
	b.ResetTimer()
	c.Reset()
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = m.GetPrimary(keys[i&(n-1)])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkRuntimeMapGetMiss(b *testing.B, n int) {
	m := make(map[string]int64)
	for i, k := range genBenchKeys(0, n) {
		m[string(k)] = int64(i)
	}
	miss := genBenchKeys(-n, 0)
	c := perfbench.Open(b)
	b.ResetTimer()
	c.Reset()
	var tmp int64
	for i := 0; i < b.N; i++ {
		tmp += m[string(miss[i%len(miss)])]
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, tmp)
}

func benchmarkDaggerGetMiss(b *testing.B, n int) {
	m, err := New[int64](0)
	if err != nil {
		b.Fatal(err)
	}
	for i, k := range genBenchKeys(0, n) {
		if err := m.Set(k, int64(i), true); err != nil {
			b.Fatal(err)
		}
	}
	miss := genBenchKeys(-n, 0)
	c := perfbench.Open(b)
	b.ResetTimer()
	c.Reset()
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = m.Get(miss[i%len(miss)])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkRuntimeMapPutGrow(b *testing.B, n int) {
	keys := genBenchKeys(0, n)
	c := perfbench.Open(b)
	b.ResetTimer()
	c.Reset()
	for i := 0; i < b.N; i++ {
		m := make(map[string]int64)
		for j, k := range keys {
			m[string(k)] = int64(j)
		}
	}
}

func benchmarkDaggerPutGrow(b *testing.B, n int) {
	keys := genBenchKeys(0, n)
	c := perfbench.Open(b)
	b.ResetTimer()
	c.Reset()
	for i := 0; i < b.N; i++ {
		m, err := New[int64](0)
		if err != nil {
			b.Fatal(err)
		}
		for j, k := range keys {
			if err := m.Set(k, int64(j), true); err != nil {
				b.Fatal(err)
			}
		}
	}
}

func benchmarkRuntimeMapPutPreAllocate(b *testing.B, n int) {
	keys := genBenchKeys(0, n)
	c := perfbench.Open(b)
	b.ResetTimer()
	c.Reset()
	for i := 0; i < b.N; i++ {
		m := make(map[string]int64, n)
		for j, k := range keys {
			m[string(k)] = int64(j)
		}
	}
}

func benchmarkDaggerPutPreAllocate(b *testing.B, n int) {
	keys := genBenchKeys(0, n)
	c := perfbench.Open(b)
	b.ResetTimer()
	c.Reset()
	for i := 0; i < b.N; i++ {
		// Request headroom for the load factor so no resize occurs.
		m, err := New[int64](n * maxLoadDen / maxLoadNum)
		if err != nil {
			b.Fatal(err)
		}
		for j, k := range keys {
			if err := m.Set(k, int64(j), true); err != nil {
				b.Fatal(err)
			}
		}
	}
}

func benchmarkRuntimeMapPutDelete(b *testing.B, n int) {
	m := make(map[string]int64, n)
	keys := genBenchKeys(0, n)
	for i, k := range keys {
		m[string(k)] = int64(i)
	}
	c := perfbench.Open(b)
	b.ResetTimer()
	c.Reset()
	for i := 0; i < b.N; i++ {
		j := i % n
		delete(m, string(keys[j]))
		m[string(keys[j])] = int64(j)
	}
}

func benchmarkDaggerPutDelete(b *testing.B, n int) {
	m, err := New[int64](n * maxLoadDen / maxLoadNum)
	if err != nil {
		b.Fatal(err)
	}
	keys := genBenchKeys(0, n)
	for i, k := range keys {
		if err := m.Set(k, int64(i), true); err != nil {
			b.Fatal(err)
		}
	}
	c := perfbench.Open(b)
	b.ResetTimer()
	c.Reset()
	for i := 0; i < b.N; i++ {
		j := i % n
		m.Remove(keys[j])
		if err := m.Set(keys[j], int64(j), true); err != nil {
			b.Fatal(err)
		}
	}
}

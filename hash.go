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
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Default seeds for the primary and alternate hash functions. The seeds are
// fixed rather than randomized so that hashing is deterministic across runs;
// callers that want per-process randomization can supply their own seeds via
// WithSeeds.
const (
	defaultPrimarySeed   uint64 = 0x9e3779b97f4a7c15
	defaultAlternateSeed uint64 = 0xc2b2ae3d27d4eb4f
)

// Hasher produces the two hash values a Table needs for every key. The
// primary and alternate functions must be deterministic for a fixed seed and
// statistically independent of each other: the table's worst-case lookup
// guarantee rests on the assumption that keys colliding on the primary
// function do not also collide on the alternate one.
//
// A Hasher must be consistent with the table's key equality function: keys
// that compare equal must produce equal hashes.
type Hasher interface {
	// Primary returns the primary 64-bit hash of key under seed.
	Primary(key []byte, seed uint64) uint64

	// Alternate returns the alternate 64-bit hash of key under seed.
	Alternate(key []byte, seed uint64) uint64
}

// xxHasher is the default Hasher. The primary function is xxhash64 over an
// 8-byte seed prefix followed by the key (xxhash has no seeded entry point;
// prefixing the seed is the standard workaround). The alternate function uses
// the same construction under its own seed and additionally runs the result
// through a splitmix64 finalizer, decorrelating it from the primary function
// beyond what the distinct seed alone provides.
type xxHasher struct{}

func (xxHasher) Primary(key []byte, seed uint64) uint64 {
	return sum64Seeded(key, seed)
}

func (xxHasher) Alternate(key []byte, seed uint64) uint64 {
	return mix64(sum64Seeded(key, seed))
}

func sum64Seeded(key []byte, seed uint64) uint64 {
	var prefix [8]byte
	binary.LittleEndian.PutUint64(prefix[:], seed)
	var d xxhash.Digest
	d.Reset()
	_, _ = d.Write(prefix[:])
	_, _ = d.Write(key)
	return d.Sum64()
}

// mix64 is the splitmix64 finalizer. Every input bit affects roughly half of
// the output bits.
func mix64(z uint64) uint64 {
	z ^= z >> 30
	z *= 0xbf58476d1ce4e5b9
	z ^= z >> 27
	z *= 0x94d049bb133111eb
	z ^= z >> 31
	return z
}

// PrimaryUint64 hashes a 64-bit key with the primary hash function. It is
// equivalent to hashing the key's little-endian encoding and exists for
// integer-keyed layers built on top of the table.
func PrimaryUint64(key, seed uint64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], key)
	return xxHasher{}.Primary(buf[:], seed)
}

// AlternateUint64 is the integer variant of the alternate hash function.
func AlternateUint64(key, seed uint64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], key)
	return xxHasher{}.Alternate(buf[:], seed)
}

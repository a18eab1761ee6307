// Package util contains internal helpers (hashing, sharding, padding).
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// HashKey hashes common key types using xxhash, the fast non-cryptographic
// hash the rest of the retrieval pack standardizes on (it arrives as a
// transitive dependency of prometheus/client_golang in several of the
// pack's repos; here it is promoted to a direct one).
//
// Supported: string, []byte, [16|32|64]byte, all int/uint widths, uintptr,
// fmt.Stringer. For other key types, either convert the key to string or
// supply a custom hasher upstream. Panicking on unsupported types is
// deliberate to avoid silently poor hashing and silent hash collisions.
func HashKey[K comparable](k K) uint64 {
	switch v := any(k).(type) {
	case string:
		return xxhash.Sum64String(v)
	case []byte:
		return xxhash.Sum64(v)
	case [16]byte:
		return xxhash.Sum64(v[:])
	case [32]byte:
		return xxhash.Sum64(v[:])
	case [64]byte:
		return xxhash.Sum64(v[:])

	case uint8:
		return hashUint64(uint64(v))
	case uint16:
		return hashUint64(uint64(v))
	case uint32:
		return hashUint64(uint64(v))
	case uint64:
		return hashUint64(v)
	case uint:
		return hashUint64(uint64(v))
	case uintptr:
		return hashUint64(uint64(v))
	case int8:
		return hashUint64(uint64(uint8(v)))
	case int16:
		return hashUint64(uint64(uint16(v)))
	case int32:
		return hashUint64(uint64(uint32(v)))
	case int64:
		return hashUint64(uint64(v))
	case int:
		return hashUint64(uint64(v))

	case fmt.Stringer:
		return xxhash.Sum64String(v.String())
	default:
		panic(fmt.Sprintf("util.HashKey: unsupported key type %T; convert key to string or provide a custom hasher", k))
	}
}

// hashUint64 hashes the 8 little-endian bytes of u without allocating.
func hashUint64(u uint64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], u)
	return xxhash.Sum64(buf[:])
}

// Rehash spreads a hash's high bits into its low bits (the MurmurHash3
// 64-bit finalizer),
// used wherever a hash needs to be remapped to a smaller domain (bin index,
// sketch slot) without the clustering a raw modulo would introduce.
func Rehash(h uint64) uint64 {
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	h *= 0xc4ceb9fe1a85ec53
	h ^= h >> 33
	return h
}

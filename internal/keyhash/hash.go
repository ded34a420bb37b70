// Package keyhash implements the deterministic key-to-shard mapping used
// by the store to route every operation to exactly one shard.
//
// © 2025 kvshard authors. MIT License.
package keyhash

import (
	"hash/maphash"

	"github.com/Voskan/kvshard/internal/unsafehelpers"
)

// Hasher computes a stable, uniform 64-bit digest of a key using a
// process-lifetime random seed. A single Hasher is shared by every shard in
// a Store so that ShardOf(key, n) always routes the same key to the same
// shard for the lifetime of the process.
type Hasher struct {
	seed maphash.Seed
}

// New constructs a Hasher with a fresh random seed.
func New() Hasher {
	return Hasher{seed: maphash.MakeSeed()}
}

// Sum64 returns the 64-bit hash of key.
func (h Hasher) Sum64(key string) uint64 {
	var mh maphash.Hash
	mh.SetSeed(h.seed)
	_, _ = mh.Write(unsafehelpers.StringToBytes(key))
	return mh.Sum64()
}

// ShardOf returns the index in [0, n) that owns key. n must be > 0.
// A uniform 64-bit mixing of the UTF-8 bytes followed by modulo keeps
// entry counts balanced across shards; minimal-remap schemes like jump
// consistent hashing are unnecessary since shard count is fixed for the
// lifetime of a Store.
func (h Hasher) ShardOf(key string, n int) int {
	if n <= 1 {
		return 0
	}
	return int(h.Sum64(key) % uint64(n))
}

// entry.go defines the unit of storage and its read-time snapshot.
//
// © 2025 kvshard authors. MIT License.
package kvengine

import "github.com/Voskan/kvshard/pkg/kvvalue"

// entry is the shard-owned record for one key. Only the shard's dispatcher
// goroutine ever mutates an entry in place; readers and callers only ever
// see immutable Snapshot copies.
type entry struct {
	key       string
	value     kvvalue.Value
	version   string
	createdAt int64 // unix ms
	updatedAt int64 // unix ms
	expiresAt int64 // unix ms; 0 means no TTL
	sizeBytes int64
}

func (e *entry) expired(nowMS int64) bool {
	return e.expiresAt != 0 && e.expiresAt <= nowMS
}

// Snapshot is an immutable, read-only copy of an entry returned to callers.
// No reference to the live entry ever escapes the shard.
type Snapshot struct {
	Key       string
	Value     kvvalue.Value
	Version   string
	CreatedAt int64
	UpdatedAt int64
	ExpiresAt int64 // 0 means no TTL
	SizeBytes int64
}

func snapshotOf(e *entry) Snapshot {
	return Snapshot{
		Key:       e.key,
		Value:     e.value,
		Version:   e.version,
		CreatedAt: e.createdAt,
		UpdatedAt: e.updatedAt,
		ExpiresAt: e.expiresAt,
		SizeBytes: e.sizeBytes,
	}
}

func nowMS() int64 {
	return timeNowUnixMilli()
}

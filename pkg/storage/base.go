// Package storage defines the snapshot persistence contract used by every
// durable collection in the engine.
//
// Durable state is organized as independent collections, each persisted as a
// whole-collection snapshot that is rewritten atomically on every mutating
// call. A missing or unreadable snapshot is treated as an empty collection:
// the engine starts fresh rather than refusing to start.
package storage

import "context"

// Collection names used by the engine. Backends treat these as opaque keys.
const (
	CollectionMemories      = "memories"
	CollectionPreferences   = "preferences"
	CollectionPatterns      = "patterns"
	CollectionTaskKnowledge = "task_knowledge"
	CollectionReflections   = "reflections"
	CollectionVectorEntries = "vector_entries"
	CollectionSkillProfiles = "skill_profiles"
)

// SnapshotStore persists whole-collection snapshots.
//
// All backends (file, SQLite, PostgreSQL, MySQL) must implement this
// interface. Implementations must make Save atomic with respect to readers:
// a concurrent Load observes either the previous snapshot or the new one,
// never a torn write.
type SnapshotStore interface {
	// Load reads the current snapshot of a collection.
	//
	// A collection that has never been saved returns (nil, nil). Backends
	// must not treat absence as an error; callers fail open and start with
	// an empty collection.
	Load(ctx context.Context, collection string) ([]byte, error)

	// Save atomically replaces the snapshot of a collection.
	Save(ctx context.Context, collection string, data []byte) error

	// Close releases backend resources.
	Close() error
}

// Package ranking holds the leaderboard data model and the snapshot builder.
//
// A Snapshot is an immutable, fully ordered view of every ranked player as of
// one refresh cycle. Snapshots are never modified after Build returns; a newer
// leaderboard is always a brand-new Snapshot.
//
// # Ordering
//
// Entries are sorted by rating descending. Players with equal ratings are
// ordered by id ascending, so pagination stays stable across refreshes when
// the underlying data has not changed.
//
// # Errors
//
// Build returns a *MalformedRecordError when a record misses a required field
// or repeats an id. Sources wrap their failures in a *DataAccessError. Both are
// handled by the refresh scheduler and never reach leaderboard readers.
package ranking

package ranking

import (
	"strconv"
	"time"
)

// Entry is one ranked player
type Entry struct {
	Nickname      string `json:"nickname" yaml:"nickname"`
	Rating        int64  `json:"rating" yaml:"rating"`
	MatchesNumber int64  `json:"matches_number" yaml:"matches_number"`
	Login         string `json:"login" yaml:"login"`
	ID            int64  `json:"id" yaml:"id"`
}

// RatingText returns the rating as it is matched by textual search
func (e Entry) RatingText() string {
	return strconv.FormatInt(e.Rating, 10)
}

// MatchesNumberText returns the matches count as it is matched by textual search
func (e Entry) MatchesNumberText() string {
	return strconv.FormatInt(e.MatchesNumber, 10)
}

// Record is a raw player record as returned by a ranking source.
// A nil field means the source did not provide it.
type Record struct {
	Nickname      *string `json:"nickname,omitempty" yaml:"nickname,omitempty"`
	Rating        *int64  `json:"rating,omitempty" yaml:"rating,omitempty"`
	MatchesNumber *int64  `json:"matches_number,omitempty" yaml:"matches_number,omitempty"`
	Login         *string `json:"login,omitempty" yaml:"login,omitempty"`
	ID            *int64  `json:"id,omitempty" yaml:"id,omitempty"`
}

// NewRecord builds a complete Record from plain values
func NewRecord(nickname string, rating, matchesNumber int64, login string, id int64) Record {
	return Record{
		Nickname:      &nickname,
		Rating:        &rating,
		MatchesNumber: &matchesNumber,
		Login:         &login,
		ID:            &id,
	}
}

// Snapshot is an immutable, ordered ranking of all players
type Snapshot struct {
	entries     []Entry
	generatedAt time.Time
	hash        string
	version     uint64
}

// Len returns the number of entries in the snapshot
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// At returns the entry at position i
func (s *Snapshot) At(i int) Entry {
	return s.entries[i]
}

// Slice returns a copy of the entries in [lo, hi), clamped to the snapshot bounds.
// An empty, non-nil slice is returned when the range is empty.
func (s *Snapshot) Slice(lo, hi int) []Entry {
	n := s.Len()
	if lo < 0 {
		lo = 0
	}
	if hi > n {
		hi = n
	}
	if lo >= hi {
		return []Entry{}
	}
	out := make([]Entry, hi-lo)
	copy(out, s.entries[lo:hi])
	return out
}

// Filter returns a copy of every entry for which keep returns true, in ranking order
func (s *Snapshot) Filter(keep func(Entry) bool) []Entry {
	out := []Entry{}
	for i := 0; i < s.Len(); i++ {
		if keep(s.entries[i]) {
			out = append(out, s.entries[i])
		}
	}
	return out
}

// GeneratedAt returns when the snapshot was built
func (s *Snapshot) GeneratedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.generatedAt
}

// Hash returns the content hash of the ordered entries
func (s *Snapshot) Hash() string {
	if s == nil {
		return ""
	}
	return s.hash
}

// Version returns the publish sequence number assigned by the cache.
// Zero means the snapshot has never been published.
func (s *Snapshot) Version() uint64 {
	if s == nil {
		return 0
	}
	return s.version
}

// WithVersion returns a shallow copy of the snapshot stamped with version.
// Entries are shared since neither copy ever mutates them.
func (s *Snapshot) WithVersion(version uint64) *Snapshot {
	return &Snapshot{
		entries:     s.entries,
		generatedAt: s.generatedAt,
		hash:        s.hash,
		version:     version,
	}
}

// Empty returns a snapshot with no entries
func Empty() *Snapshot {
	return &Snapshot{
		entries: []Entry{},
		hash:    hashEntries(nil),
	}
}

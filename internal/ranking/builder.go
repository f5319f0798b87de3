package ranking

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strconv"
	"time"
)

const (
	reasonMissing   = "is missing"
	reasonDuplicate = "is duplicated"
)

// Build turns raw records into an ordered Snapshot.
// The input is not modified. Identical input always yields identical ordering.
func Build(records []Record) (*Snapshot, error) {
	return buildAt(records, time.Now())
}

func buildAt(records []Record, now time.Time) (*Snapshot, error) {
	entries := make([]Entry, 0, len(records))
	seen := make(map[int64]struct{}, len(records))

	for i, rec := range records {
		entry, err := toEntry(i, rec)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[entry.ID]; dup {
			return nil, &MalformedRecordError{Index: i, Field: "id", Reason: reasonDuplicate}
		}
		seen[entry.ID] = struct{}{}
		entries = append(entries, entry)
	}

	slices.SortFunc(entries, compareEntries)

	return &Snapshot{
		entries:     entries,
		generatedAt: now,
		hash:        hashEntries(entries),
	}, nil
}

// compareEntries orders by rating descending, then id ascending
func compareEntries(a, b Entry) int {
	if c := cmp.Compare(b.Rating, a.Rating); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func toEntry(index int, rec Record) (Entry, error) {
	missing := func(field string) error {
		return &MalformedRecordError{Index: index, Field: field, Reason: reasonMissing}
	}

	switch {
	case rec.Nickname == nil:
		return Entry{}, missing("nickname")
	case rec.Rating == nil:
		return Entry{}, missing("rating")
	case rec.MatchesNumber == nil:
		return Entry{}, missing("matches_number")
	case rec.Login == nil:
		return Entry{}, missing("login")
	case rec.ID == nil:
		return Entry{}, missing("id")
	}

	return Entry{
		Nickname:      *rec.Nickname,
		Rating:        *rec.Rating,
		MatchesNumber: *rec.MatchesNumber,
		Login:         *rec.Login,
		ID:            *rec.ID,
	}, nil
}

func hashEntries(entries []Entry) string {
	h := sha256.New()
	buf := make([]byte, 0, 128)
	for _, e := range entries {
		buf = buf[:0]
		buf = strconv.AppendInt(buf, e.ID, 10)
		buf = append(buf, 0)
		buf = strconv.AppendInt(buf, e.Rating, 10)
		buf = append(buf, 0)
		buf = strconv.AppendInt(buf, e.MatchesNumber, 10)
		buf = append(buf, 0)
		buf = append(buf, e.Login...)
		buf = append(buf, 0)
		buf = append(buf, e.Nickname...)
		buf = append(buf, '\n')
		_, _ = h.Write(buf)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Package leaderboard provides the query engine that serves paginated and
// filtered reads over the currently published ranking snapshot.
package leaderboard

import (
	"context"
	"errors"
	"time"

	"github.com/panorama-game/rating-server/internal/ranking"
)

var (
	// ErrNotReady is returned when no snapshot has been published yet
	ErrNotReady = errors.New("leaderboard not ready")
	// ErrInvalidPagination is returned for a negative page number or a non-positive page size
	ErrInvalidPagination = errors.New("invalid pagination")
)

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks -source=service.go Service

// Service defines the read operations over the published leaderboard
type Service interface {
	// CheckReadiness returns ErrNotReady until the first snapshot has been published
	CheckReadiness(ctx context.Context) error

	// Page returns the entries at [pageNumber*pageSize, (pageNumber+1)*pageSize).
	// Out-of-range pages are empty, not an error.
	Page(ctx context.Context, pageNumber, pageSize int) (*PageResult, error)

	// Search returns every entry matching all supplied substring criteria, unpaginated
	Search(ctx context.Context, opts ...Option[SearchOptions]) (*SearchResult, error)

	// TotalCount returns the number of entries in the current snapshot
	TotalCount(ctx context.Context) int

	// Info describes the current snapshot
	Info(ctx context.Context) Info
}

// Option is a function that sets an option for a leaderboard operation
type Option[T SearchOptions] func(*T) error

// SearchOptions holds the optional substring criteria of a Search.
// A nil criterion matches every entry.
type SearchOptions struct {
	Login         *string
	Nickname      *string
	Rating        *string
	MatchesNumber *string
}

// Fields returns the names of the supplied criteria
func (o *SearchOptions) Fields() []string {
	fields := []string{}
	if o.Login != nil {
		fields = append(fields, "login")
	}
	if o.Nickname != nil {
		fields = append(fields, "nickname")
	}
	if o.Rating != nil {
		fields = append(fields, "rating")
	}
	if o.MatchesNumber != nil {
		fields = append(fields, "matches_number")
	}
	return fields
}

// WithLogin filters entries whose login contains fragment
func WithLogin(fragment string) Option[SearchOptions] {
	return func(o *SearchOptions) error {
		o.Login = &fragment
		return nil
	}
}

// WithNickname filters entries whose nickname contains fragment
func WithNickname(fragment string) Option[SearchOptions] {
	return func(o *SearchOptions) error {
		o.Nickname = &fragment
		return nil
	}
}

// WithRating filters entries whose decimal rating contains fragment
func WithRating(fragment string) Option[SearchOptions] {
	return func(o *SearchOptions) error {
		o.Rating = &fragment
		return nil
	}
}

// WithMatchesNumber filters entries whose decimal matches count contains fragment
func WithMatchesNumber(fragment string) Option[SearchOptions] {
	return func(o *SearchOptions) error {
		o.MatchesNumber = &fragment
		return nil
	}
}

// PageResult is one page of the leaderboard
type PageResult struct {
	Entries         []ranking.Entry `json:"entries"`
	PageNumber      int             `json:"pageNumber"`
	PageSize        int             `json:"pageSize"`
	PageCount       int             `json:"pageCount"`
	TotalCount      int             `json:"totalCount"`
	SnapshotVersion uint64          `json:"snapshotVersion"`
	GeneratedAt     time.Time       `json:"generatedAt"`
}

// SearchResult is the full set of entries matching a search
type SearchResult struct {
	Entries         []ranking.Entry `json:"entries"`
	SnapshotVersion uint64          `json:"snapshotVersion"`
}

// Info describes the snapshot a call was served from
type Info struct {
	TotalCount      int       `json:"totalCount"`
	SnapshotVersion uint64    `json:"snapshotVersion"`
	GeneratedAt     time.Time `json:"generatedAt"`
	Hash            string    `json:"hash"`
}

// PageCount returns ceil(total/pageSize), or 0 when total is 0
func PageCount(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

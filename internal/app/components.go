package app

import (
	"github.com/panorama-game/rating-server/internal/cache"
	"github.com/panorama-game/rating-server/internal/leaderboard"
	"github.com/panorama-game/rating-server/internal/refresh"
	"github.com/panorama-game/rating-server/internal/sources"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// Source supplies raw player records
	Source sources.RankingSource

	// Snapshots holds the published leaderboard snapshot
	Snapshots *cache.Cache

	// Scheduler rebuilds the snapshot in the background
	Scheduler refresh.Scheduler

	// Leaderboard serves reads over the published snapshot
	Leaderboard leaderboard.Service
}

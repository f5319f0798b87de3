// Package refresh provides the background scheduler that rebuilds the
// leaderboard snapshot from a ranking source on a fixed cadence.
//
// Each refresh cycle walks the phases
//
//	Idle -> Fetching -> Building -> Publishing -> Idle
//
// and is the only writer of the snapshot cache. A cycle that fails while
// fetching or building is logged, counted and abandoned; the previously
// published snapshot keeps serving reads and the next tick retries.
//
// # Usage
//
//	scheduler, err := refresh.New(source, snapshots, cfg,
//	    refresh.WithPersistence(status.NewFilePersistence(dataDir)),
//	)
//	if err != nil {
//	    return err
//	}
//
//	go func() { _ = scheduler.Start(ctx) }()
//	defer scheduler.Stop()
//
// # Cancellation
//
// Start runs one cycle immediately and then waits for the next tick. The
// stop signal is observed before every wait and between the Fetching and
// Building steps. Publishing is a single atomic cache operation, so a stop
// never leaves the cache partially updated.
//
// # Timeouts
//
// Fetching is bounded by the configured fetch timeout. A source that does
// not honour its context is abandoned once the timeout expires; its late
// result is discarded.
package refresh

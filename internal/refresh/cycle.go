package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/panorama-game/rating-server/internal/otel"
	"github.com/panorama-game/rating-server/internal/ranking"
	"github.com/panorama-game/rating-server/internal/status"
)

// cycleResult describes a published snapshot
type cycleResult struct {
	version uint64
	entries int
	hash    string
}

type fetchResult struct {
	records []ranking.Record
	err     error
}

// RefreshNow runs one fetch-build-publish cycle
func (s *defaultScheduler) RefreshNow(ctx context.Context) error {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	cycleID := uuid.NewString()
	startTime := time.Now()

	ctx, span := otel.StartSpan(ctx, s.tracer, "refresh.Cycle",
		trace.WithAttributes(
			otel.AttrSourceName.String(s.sourceName),
			otel.AttrCycleID.String(cycleID),
		),
	)
	defer span.End()

	s.withStatus(func(st *status.RefreshStatus) {
		st.Phase = status.RefreshPhaseFetching
		st.CycleID = cycleID
		st.LastAttempt = &startTime
	})
	s.persistStatus(ctx)

	slog.Info("Starting refresh cycle", "source", s.sourceName, "cycle_id", cycleID)

	result, err := s.runCycle(ctx)
	duration := time.Since(startTime)

	if err != nil {
		kind := failureKind(ctx, err)
		otel.RecordError(span, err)
		s.metrics.RecordCycleDuration(ctx, s.sourceName, duration, false)
		s.metrics.RecordFailure(ctx, s.sourceName, kind)

		var attempts int
		s.withStatus(func(st *status.RefreshStatus) {
			st.Phase = status.RefreshPhaseIdle
			st.Outcome = status.RefreshOutcomeFailed
			st.Message = err.Error()
			st.AttemptCount++
			attempts = st.AttemptCount
		})
		s.persistStatus(ctx)

		slog.Error("Refresh cycle failed, keeping previous snapshot",
			"source", s.sourceName,
			"cycle_id", cycleID,
			"kind", kind,
			"attempt", attempts,
			"duration", duration,
			"error", err)
		return err
	}

	span.SetAttributes(
		otel.AttrSnapshotVersion.Int64(int64(result.version)),
		otel.AttrSnapshotSize.Int(result.entries),
	)
	s.metrics.RecordCycleDuration(ctx, s.sourceName, duration, true)
	s.metrics.RecordEntries(ctx, s.sourceName, int64(result.entries))

	now := time.Now()
	s.withStatus(func(st *status.RefreshStatus) {
		st.Phase = status.RefreshPhaseIdle
		st.Outcome = status.RefreshOutcomeComplete
		st.Message = "Refresh completed successfully"
		st.AttemptCount = 0
		st.LastSuccess = &now
		st.EntryCount = result.entries
		st.SnapshotVersion = result.version
		st.Hash = result.hash
	})
	s.persistStatus(ctx)

	hashPreview := result.hash
	if len(hashPreview) > 8 {
		hashPreview = hashPreview[:8]
	}
	slog.Info("Refresh cycle completed",
		"source", s.sourceName,
		"cycle_id", cycleID,
		"entries", result.entries,
		"version", result.version,
		"hash", hashPreview,
		"duration", duration)

	return nil
}

// runCycle performs the Fetching, Building and Publishing phases.
// Nothing is published unless all of them succeed.
func (s *defaultScheduler) runCycle(ctx context.Context) (*cycleResult, error) {
	records, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("refresh cancelled after fetching: %w", err)
	}

	s.setPhase(status.RefreshPhaseBuilding)
	snap, err := ranking.Build(records)
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshot from %s: %w", s.sourceName, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("refresh cancelled after building: %w", err)
	}

	s.setPhase(status.RefreshPhasePublishing)
	version := s.snapshots.Publish(snap)

	return &cycleResult{
		version: version,
		entries: snap.Len(),
		hash:    snap.Hash(),
	}, nil
}

// fetch reads all records, giving up once the fetch timeout expires even
// if the source ignores its context
func (s *defaultScheduler) fetch(ctx context.Context) ([]ranking.Record, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	resultCh := make(chan fetchResult, 1)
	go func() {
		records, err := s.source.FetchAll(fetchCtx)
		resultCh <- fetchResult{records: records, err: err}
	}()

	var res fetchResult
	select {
	case res = <-resultCh:
	case <-fetchCtx.Done():
		res = fetchResult{err: fetchCtx.Err()}
	}

	if res.err == nil {
		return res.records, nil
	}

	if ctx.Err() == nil && errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
		return nil, ranking.NewDataAccessError(s.sourceName,
			fmt.Errorf("%w after %s: %w", ErrFetchTimeout, s.fetchTimeout, context.DeadlineExceeded))
	}

	var dataErr *ranking.DataAccessError
	if errors.As(res.err, &dataErr) {
		return nil, res.err
	}
	return nil, ranking.NewDataAccessError(s.sourceName, res.err)
}

func (s *defaultScheduler) setPhase(phase status.RefreshPhase) {
	s.withStatus(func(st *status.RefreshStatus) {
		st.Phase = phase
	})
}

// failureKind classifies a cycle error into a low-cardinality label
func failureKind(ctx context.Context, err error) string {
	var malformed *ranking.MalformedRecordError
	switch {
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		return FailureKindCancelled
	case errors.Is(err, ErrFetchTimeout):
		return FailureKindTimeout
	case errors.As(err, &malformed):
		return FailureKindMalformed
	default:
		return FailureKindFetch
	}
}

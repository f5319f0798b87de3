package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/panorama-game/rating-server/internal/cache"
	"github.com/panorama-game/rating-server/internal/config"
	"github.com/panorama-game/rating-server/internal/sources"
	"github.com/panorama-game/rating-server/internal/status"
	"github.com/panorama-game/rating-server/internal/telemetry"
)

const (
	// SchedulerTracerName is the name used for the refresh scheduler tracer
	SchedulerTracerName = "github.com/panorama-game/rating-server/refresh"
)

var (
	// ErrFetchTimeout is wrapped by the error of a fetch that exceeded the fetch timeout
	ErrFetchTimeout = errors.New("fetch timed out")
	// ErrAlreadyStarted is returned by Start when the scheduler is already running
	ErrAlreadyStarted = errors.New("scheduler already started")
)

// Failure kinds reported to metrics and logs
const (
	FailureKindFetch     = "fetch"
	FailureKindTimeout   = "timeout"
	FailureKindMalformed = "malformed"
	FailureKindCancelled = "cancelled"
)

// Scheduler drives periodic snapshot rebuilds
type Scheduler interface {
	// Start runs a cycle immediately and then one per interval.
	// Blocks until the context is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop signals the loop to exit and waits for it to finish
	Stop() error

	// RefreshNow runs a single cycle synchronously and returns its error
	RefreshNow(ctx context.Context) error

	// Status returns a copy of the current refresh status
	Status() status.RefreshStatus
}

// defaultScheduler is the default implementation of Scheduler
type defaultScheduler struct {
	source     sources.RankingSource
	sourceName string
	snapshots  *cache.Cache

	interval     time.Duration
	jitter       time.Duration
	fetchTimeout time.Duration

	persistence status.Persistence
	metrics     *telemetry.RefreshMetrics
	tracer      trace.Tracer

	// cycleMu serializes cycles so the cache has a single writer
	cycleMu sync.Mutex

	// mu protects status, cancelFunc and started
	mu         sync.Mutex
	status     status.RefreshStatus
	cancelFunc context.CancelFunc
	started    bool
	done       chan struct{}
}

var _ Scheduler = (*defaultScheduler)(nil)

// Option is a function that configures the scheduler
type Option func(*defaultScheduler)

// WithPersistence stores the refresh status after every phase change
func WithPersistence(p status.Persistence) Option {
	return func(s *defaultScheduler) {
		s.persistence = p
	}
}

// WithMetrics sets the refresh metrics for the scheduler
func WithMetrics(m *telemetry.RefreshMetrics) Option {
	return func(s *defaultScheduler) {
		s.metrics = m
	}
}

// WithTracerProvider enables one span per refresh cycle
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *defaultScheduler) {
		if tp != nil {
			s.tracer = tp.Tracer(SchedulerTracerName)
		}
	}
}

// New creates a scheduler publishing snapshots built from source into snapshots.
// Interval, jitter and fetch timeout are taken from cfg.
func New(
	source sources.RankingSource,
	snapshots *cache.Cache,
	cfg *config.Config,
	opts ...Option,
) (Scheduler, error) {
	if source == nil {
		return nil, fmt.Errorf("ranking source is required")
	}
	if snapshots == nil {
		return nil, fmt.Errorf("snapshot cache is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	s := &defaultScheduler{
		source:       source,
		sourceName:   source.Name(),
		snapshots:    snapshots,
		interval:     cfg.GetRefreshInterval(),
		jitter:       cfg.GetRefreshJitter(),
		fetchTimeout: cfg.GetFetchTimeout(),
		done:         make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.status = status.RefreshStatus{
		Phase:    status.RefreshPhaseIdle,
		Source:   s.sourceName,
		Interval: s.interval.String(),
	}

	return s, nil
}

// nextInterval returns the interval with a random offset in [-jitter, +jitter)
func (s *defaultScheduler) nextInterval() time.Duration {
	if s.jitter <= 0 {
		return s.interval
	}
	//nolint:gosec // G404: Non-cryptographic randomness is sufficient for refresh jitter
	offset := time.Duration(rand.Int64N(int64(2*s.jitter))) - s.jitter
	return s.interval + offset
}

// Start begins the refresh loop
func (s *defaultScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel
	s.started = true
	s.mu.Unlock()

	defer func() {
		cancel()
		close(s.done)
		slog.Info("Refresh scheduler shut down", "source", s.sourceName)
	}()

	slog.Info("Starting refresh scheduler",
		"source", s.sourceName,
		"interval", s.interval,
		"jitter", s.jitter,
		"fetch_timeout", s.fetchTimeout)

	s.logPreviousStatus(runCtx)

	// The first snapshot is built before waiting for the first tick
	_ = s.RefreshNow(runCtx)

	for {
		if runCtx.Err() != nil {
			slog.Info("Refresh scheduler stopping", "source", s.sourceName)
			return nil
		}

		wait := s.nextInterval()
		slog.Debug("Waiting for next refresh cycle", "source", s.sourceName, "wait", wait)
		timer := time.NewTimer(wait)

		select {
		case <-timer.C:
			_ = s.RefreshNow(runCtx)
		case <-runCtx.Done():
			timer.Stop()
			slog.Info("Refresh scheduler stopping", "source", s.sourceName)
			return nil
		}
	}
}

// Stop gracefully stops the scheduler
func (s *defaultScheduler) Stop() error {
	s.mu.Lock()
	cancel := s.cancelFunc
	s.mu.Unlock()

	if cancel != nil {
		slog.Info("Stopping refresh scheduler", "source", s.sourceName)
		cancel()
		<-s.done
	}
	return nil
}

// Status returns a copy of the current status
func (s *defaultScheduler) Status() status.RefreshStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// withStatus runs fn with the status locked
func (s *defaultScheduler) withStatus(fn func(st *status.RefreshStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.status)
}

// persistStatus saves the current status; failures are only logged
func (s *defaultScheduler) persistStatus(ctx context.Context) {
	if s.persistence == nil {
		return
	}

	snapshot := s.Status()
	// The final save of a cancelled cycle must still reach the store
	if err := s.persistence.Save(context.WithoutCancel(ctx), &snapshot); err != nil {
		slog.Warn("Failed to persist refresh status",
			"source", s.sourceName,
			"phase", snapshot.Phase,
			"error", err)
	}
}

// logPreviousStatus reports the last persisted cycle of a previous run
func (s *defaultScheduler) logPreviousStatus(ctx context.Context) {
	if s.persistence == nil {
		return
	}

	previous, err := s.persistence.Load(ctx)
	if err != nil {
		slog.Warn("Failed to load previous refresh status", "source", s.sourceName, "error", err)
		return
	}
	// Nothing was stored by a previous run
	if previous == nil || previous.LastAttempt == nil {
		return
	}

	slog.Info("Loaded previous refresh status",
		"source", previous.Source,
		"outcome", previous.Outcome,
		"last_attempt", previous.LastAttempt,
		"last_success", previous.LastSuccess,
		"entry_count", previous.EntryCount)
}

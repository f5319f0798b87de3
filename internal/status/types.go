package status

import "time"

// RefreshPhase represents what the refresh scheduler is currently doing
type RefreshPhase string

const (
	// RefreshPhaseIdle means the scheduler is waiting for the next cycle
	RefreshPhaseIdle RefreshPhase = "Idle"

	// RefreshPhaseFetching means records are being read from the ranking source
	RefreshPhaseFetching RefreshPhase = "Fetching"

	// RefreshPhaseBuilding means a snapshot is being built from fetched records
	RefreshPhaseBuilding RefreshPhase = "Building"

	// RefreshPhasePublishing means a built snapshot is being installed in the cache
	RefreshPhasePublishing RefreshPhase = "Publishing"
)

// RefreshOutcome is the result of the most recent finished cycle
type RefreshOutcome string

const (
	// RefreshOutcomeComplete means the last cycle published a snapshot
	RefreshOutcomeComplete RefreshOutcome = "Complete"

	// RefreshOutcomeFailed means the last cycle ended without publishing
	RefreshOutcomeFailed RefreshOutcome = "Failed"
)

// RefreshStatus represents the state of the refresh scheduler
type RefreshStatus struct {
	// Phase is the phase the scheduler is currently in
	Phase RefreshPhase `json:"phase"`

	// Outcome is the result of the last finished cycle, empty before the first one ends
	Outcome RefreshOutcome `json:"outcome,omitempty"`

	// Message provides additional information about the last outcome
	Message string `json:"message,omitempty"`

	// Source is the name of the ranking source being refreshed from
	Source string `json:"source,omitempty"`

	// CycleID identifies the current or last cycle in logs and traces
	CycleID string `json:"cycleId,omitempty"`

	// LastAttempt is the start time of the last cycle
	LastAttempt *time.Time `json:"lastAttempt,omitempty"`

	// AttemptCount is the number of failed cycles since the last success
	AttemptCount int `json:"attemptCount"`

	// LastSuccess is the time the last snapshot was published
	LastSuccess *time.Time `json:"lastSuccess,omitempty"`

	// EntryCount is the number of entries in the last published snapshot
	EntryCount int `json:"entryCount"`

	// SnapshotVersion is the cache version of the last published snapshot
	SnapshotVersion uint64 `json:"snapshotVersion,omitempty"`

	// Hash is the content hash of the last published snapshot
	Hash string `json:"hash,omitempty"`

	// Interval is the configured refresh interval (e.g. "5m0s")
	Interval string `json:"interval,omitempty"`
}

package monitor

import (
	"sync"
	"time"
)

// Kind names a sweep type.
type Kind string

const (
	KindWarning Kind = "warning"
	KindBreach  Kind = "breach"
)

// ParseKind accepts the values used in routes and config.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindWarning, KindBreach:
		return Kind(s), true
	}
	return "", false
}

// SweepResult summarises one sweep execution.
type SweepResult struct {
	Kind       Kind      `json:"kind"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Candidates int       `json:"candidates"`
	Warned     int       `json:"warned"`
	Breached   int       `json:"breached"`
	Errored    int       `json:"errored"`
}

// KindStats is the running record for one sweep type.
type KindStats struct {
	Running       bool         `json:"running"`
	Runs          int64        `json:"runs"`
	Skipped       int64        `json:"skipped"`
	Failed        int64        `json:"failed"`
	Warned        int64        `json:"warned"`
	Breached      int64        `json:"breached"`
	Errored       int64        `json:"errored"`
	LastStartedAt *time.Time   `json:"lastStartedAt,omitempty"`
	LastRunAt     *time.Time   `json:"lastRunAt,omitempty"`
	LastResult    *SweepResult `json:"lastResult,omitempty"`
}

// Stats is a point-in-time copy of both sweeps' records.
type Stats struct {
	Warning KindStats `json:"warning"`
	Breach  KindStats `json:"breach"`
}

// sweepState is the single-writer guard and counters for one sweep type.
type sweepState struct {
	mu    sync.Mutex
	stats KindStats
}

// tryStart engages the overlap guard. It returns false when a run of the same
// kind is already in flight.
func (s *sweepState) tryStart(at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stats.Running {
		s.stats.Skipped++
		return false
	}
	s.stats.Running = true
	started := at
	s.stats.LastStartedAt = &started
	return true
}

// abort releases the guard without counting a run.
func (s *sweepState) abort(skipped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Running = false
	if skipped {
		s.stats.Skipped++
	}
}

func (s *sweepState) fail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Running = false
	s.stats.Failed++
}

func (s *sweepState) finish(result SweepResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Running = false
	s.stats.Runs++
	s.stats.Warned += int64(result.Warned)
	s.stats.Breached += int64(result.Breached)
	s.stats.Errored += int64(result.Errored)
	finished := result.FinishedAt
	s.stats.LastRunAt = &finished
	r := result
	s.stats.LastResult = &r
}

func (s *sweepState) snapshot() KindStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := s.stats
	if cp.LastStartedAt != nil {
		v := *cp.LastStartedAt
		cp.LastStartedAt = &v
	}
	if cp.LastRunAt != nil {
		v := *cp.LastRunAt
		cp.LastRunAt = &v
	}
	if cp.LastResult != nil {
		v := *cp.LastResult
		cp.LastResult = &v
	}
	return cp
}

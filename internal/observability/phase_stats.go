// Package observability tracks pipeline phase statistics across runs.
package observability

import (
	"sort"
	"sync"
	"time"
)

// PhaseStats accumulates row counts, durations and failures per pipeline
// phase. It is safe for concurrent use.
type PhaseStats struct {
	mu     sync.RWMutex
	phases map[string]*Phase
	window time.Duration
	now    func() time.Time
}

// Phase holds the statistics of one phase.
type Phase struct {
	Name     string
	Runs     int64
	Failures int64
	Rows     int64
	Total    time.Duration
	Max      time.Duration
	LastSeen time.Time
}

// Mean returns the mean duration of successful runs.
func (p Phase) Mean() time.Duration {
	ok := p.Runs - p.Failures
	if ok <= 0 {
		return 0
	}
	return p.Total / time.Duration(ok)
}

// NewPhaseStats creates a tracker. Entries not seen within window are
// dropped by Prune; a zero window keeps everything.
func NewPhaseStats(window time.Duration) *PhaseStats {
	return &PhaseStats{
		phases: make(map[string]*Phase),
		window: window,
		now:    time.Now,
	}
}

// Record adds one execution of a phase. Failed executions count toward Runs
// and Failures only.
func (s *PhaseStats) Record(name string, rows int, elapsed time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.phases[name]
	if !ok {
		p = &Phase{Name: name}
		s.phases[name] = p
	}
	p.Runs++
	p.LastSeen = s.now()
	if err != nil {
		p.Failures++
		return
	}
	p.Rows += int64(rows)
	p.Total += elapsed
	p.Max = max(p.Max, elapsed)
}

// Get returns a copy of the statistics of a phase.
func (s *PhaseStats) Get(name string) (Phase, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.phases[name]
	if !ok {
		return Phase{}, false
	}
	return *p, true
}

// Slowest returns up to n phases ordered by total duration, slowest first.
func (s *PhaseStats) Slowest(n int) []Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || len(s.phases) == 0 {
		return []Phase{}
	}

	out := make([]Phase, 0, len(s.phases))
	for _, p := range s.phases {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Name < out[j].Name
	})
	return out[:min(n, len(out))]
}

// Prune removes phases not seen within the window.
func (s *PhaseStats) Prune() {
	if s.window <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	threshold := s.now().Add(-s.window)
	for name, p := range s.phases {
		if p.LastSeen.Before(threshold) {
			delete(s.phases, name)
		}
	}
}

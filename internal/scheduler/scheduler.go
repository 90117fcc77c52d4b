// Package scheduler warns the operator shortly before the access token
// expires. It owns at most one pending timer at any time.
package scheduler

import (
	"log/slog"
	"sync"
	"time"
)

const DefaultLead = 60 * time.Second

type State int

const (
	Idle State = iota
	Armed
	WarningShown
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case WarningShown:
		return "warning_shown"
	}
	return "unknown"
}

type Option func(*Scheduler)

func WithClock(c Clock) Option { return func(s *Scheduler) { s.clock = c } }

func WithLead(d time.Duration) Option { return func(s *Scheduler) { s.lead = d } }

func WithLogger(l *slog.Logger) Option { return func(s *Scheduler) { s.log = l } }

// OnWarning is called from the timer goroutine when the warning threshold is
// reached. The UI layer surfaces its renew/sign-out prompt from here.
func OnWarning(f func(expiresAt time.Time)) Option { return func(s *Scheduler) { s.onWarning = f } }

// OnExpired is called when Arm receives an expiry that is already inside the
// warning window. It should force a logout.
func OnExpired(f func()) Option { return func(s *Scheduler) { s.onExpired = f } }

type Scheduler struct {
	clock     Clock
	lead      time.Duration
	log       *slog.Logger
	onWarning func(time.Time)
	onExpired func()

	mu        sync.Mutex
	state     State
	timer     Timer
	gen       uint64
	fireAt    time.Time
	expiresAt time.Time
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock: realClock{},
		lead:  DefaultLead,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Arm supersedes any pending warning with one that fires lead before
// expiresAt. A zero expiresAt (no session) is ignored.
func (s *Scheduler) Arm(expiresAt time.Time) {
	if expiresAt.IsZero() {
		return
	}

	s.mu.Lock()
	s.stopLocked()
	fireAt := expiresAt.Add(-s.lead)
	delay := fireAt.Sub(s.clock.Now())
	if delay <= 0 {
		s.state = Idle
		s.mu.Unlock()

		s.log.Warn("session_expiring", "expires_at", expiresAt, "lead", s.lead)
		if s.onExpired != nil {
			s.onExpired()
		}
		return
	}

	gen := s.gen
	s.state = Armed
	s.fireAt = fireAt
	s.expiresAt = expiresAt
	s.timer = s.clock.AfterFunc(delay, func() { s.fire(gen) })
	s.mu.Unlock()

	s.log.Debug("session_warning_armed", "fire_at", fireAt, "expires_at", expiresAt)
}

func (s *Scheduler) Cancel() {
	s.mu.Lock()
	s.stopLocked()
	s.state = Idle
	s.mu.Unlock()
}

// Acknowledge records the operator's answer to a shown warning.
func (s *Scheduler) Acknowledge() {
	s.mu.Lock()
	if s.state == WarningShown {
		s.state = Idle
	}
	s.mu.Unlock()
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// FireAt is the pending warning time, zero unless Armed.
func (s *Scheduler) FireAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Armed {
		return time.Time{}
	}
	return s.fireAt
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.state != Armed {
		s.mu.Unlock()
		return
	}
	s.state = WarningShown
	s.timer = nil
	expiresAt := s.expiresAt
	s.mu.Unlock()

	s.log.Info("session_warning", "expires_at", expiresAt)
	if s.onWarning != nil {
		s.onWarning(expiresAt)
	}
}

// stopLocked invalidates the pending timer even if its callback is already
// waiting on mu.
func (s *Scheduler) stopLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.fireAt = time.Time{}
	s.expiresAt = time.Time{}
}

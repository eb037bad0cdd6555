package service

import (
	"sync/atomic"
	"time"
)

type State struct {
	ready     atomic.Bool
	startedAt time.Time

	lastCycleUnix atomic.Int64 // unix seconds, последний успешный цикл
	failures      atomic.Int64
	openPositions atomic.Int64
}

func NewState() *State {
	s := &State{startedAt: time.Now()}
	s.ready.Store(false)
	return s
}

func (s *State) Ready() bool { return s.ready.Load() }

// CycleDone: успешный цикл: готовность, время, сброс счётчика ошибок.
func (s *State) CycleDone(t time.Time, open int) {
	s.lastCycleUnix.Store(t.Unix())
	s.openPositions.Store(int64(open))
	s.failures.Store(0)
	s.ready.Store(true)
}

func (s *State) CycleFailed(consecutive int) { s.failures.Store(int64(consecutive)) }

func (s *State) ConsecutiveFailures() int { return int(s.failures.Load()) }
func (s *State) OpenPositions() int       { return int(s.openPositions.Load()) }

func (s *State) LastCycle() time.Time {
	u := s.lastCycleUnix.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }

// Package clock provides the time source program operations read deadlines
// against.
package clock

import (
	"sync"
	"time"
)

// Clock is a source of unix time.
type Clock interface {
	Now() time.Time
	Unix() int64
}

// System uses the host clock.
type System struct{}

// NewSystem returns the host clock.
func NewSystem() Clock { return System{} }

func (System) Now() time.Time { return time.Now() }
func (System) Unix() int64    { return time.Now().Unix() }

// Monotonic wraps a clock so it never reports a time earlier than one it
// already returned. A wall clock stepped backwards by NTP cannot reopen an
// expired deadline.
type Monotonic struct {
	mu    sync.Mutex
	inner Clock
	last  time.Time
}

// NewMonotonic wraps inner.
func NewMonotonic(inner Clock) *Monotonic {
	return &Monotonic{inner: inner}
}

func (m *Monotonic) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.inner.Now()
	if now.Before(m.last) {
		return m.last
	}
	m.last = now
	return now
}

func (m *Monotonic) Unix() int64 { return m.Now().Unix() }

// Manual is a clock under test control.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual returns a manual clock set to initial.
func NewManual(initial time.Time) *Manual {
	return &Manual{now: initial}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Unix() int64 { return m.Now().Unix() }

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// Set moves the clock to t, forwards or backwards.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

var (
	_ Clock = System{}
	_ Clock = (*Monotonic)(nil)
	_ Clock = (*Manual)(nil)
)

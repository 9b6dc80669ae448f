package quota

import "time"

// EventType identifies a quota threshold crossing or reset.
type EventType string

const (
	// EventWarning fires once when usage crosses the warning fraction.
	EventWarning EventType = "warning"
	// EventCritical fires once when usage crosses the critical fraction.
	EventCritical EventType = "critical"
	// EventExhausted fires once when the remaining budget reaches zero.
	EventExhausted EventType = "exhausted"
	// EventReset fires when the daily budget rolls over.
	EventReset EventType = "reset"
)

// Event is one threshold crossing. Events accumulate in an outbox and are
// drained by TakeEvents; there are no listener callbacks.
type Event struct {
	Type  EventType
	Used  int
	Limit int
	At    time.Time
}

// TakeEvents drains and returns all pending events in emission order.
func (s *Scheduler) TakeEvents() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.events
	s.events = nil
	return events
}

// emitLocked appends an event. Callers must hold s.mu.
func (s *Scheduler) emitLocked(t EventType) {
	s.events = append(s.events, Event{
		Type:  t,
		Used:  s.used,
		Limit: s.limit,
		At:    s.clock.Now(),
	})
}

// checkThresholdsLocked fires warning/critical/exhausted events at most once
// per crossing. Callers must hold s.mu.
func (s *Scheduler) checkThresholdsLocked() {
	frac := float64(s.used) / float64(s.limit)
	if !s.warnFired && frac >= s.warnFrac {
		s.warnFired = true
		s.emitLocked(EventWarning)
	}
	if !s.critFired && frac >= s.critFrac {
		s.critFired = true
		s.emitLocked(EventCritical)
	}
	if !s.exhaustedFired && s.used >= s.limit {
		s.exhaustedFired = true
		s.emitLocked(EventExhausted)
	}
}

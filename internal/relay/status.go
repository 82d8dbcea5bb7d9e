package relay

import (
	"sync"
	"time"
)

// State summarizes a delivery attempt.
type State string

const (
	StateUnknown      State = "unknown"
	StateOK           State = "ok"
	StateUnauthorized State = "unauthorized"
	StateFailed       State = "failed"
	StateUnconfigured State = "unconfigured"
)

// Outcome is the result of one delivery attempt. Code is the HTTP status,
// zero when no response was received.
type Outcome struct {
	State State     `json:"state" yaml:"state"`
	Code  int       `json:"code,omitempty" yaml:"code,omitempty"`
	At    time.Time `json:"at" yaml:"at,omitempty"`
	Error string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// Message renders the outcome the way the settings page shows it.
func (o Outcome) Message() string {
	switch o.State {
	case StateOK:
		return "Connected"
	case StateUnauthorized:
		return "Unauthorized (401): check the relay token"
	case StateFailed:
		if o.Error != "" {
			return "Delivery failed: " + o.Error
		}
		return "Delivery failed"
	case StateUnconfigured:
		return "Not Configured"
	default:
		return "No events sent yet"
	}
}

type statusTracker struct {
	mu      sync.Mutex
	outcome Outcome
}

// record keeps o unless a later attempt has already been recorded.
func (s *statusTracker) record(o Outcome) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome.At.IsZero() || !o.At.Before(s.outcome.At) {
		s.outcome = o
	}
	return o
}

func (s *statusTracker) last() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome.State == "" {
		return Outcome{State: StateUnknown}
	}
	return s.outcome
}

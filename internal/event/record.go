package event

import (
	"encoding/json"
	"time"
)

// TimestampLayout is ISO-8601 in UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Record is a single immutable description of one browser lifecycle
// occurrence. Construct with NewRecord; there are no setters.
type Record struct {
	eventType Type
	timestamp time.Time
	data      any
}

// NewRecord builds a record stamped with at, normalized to UTC milliseconds.
func NewRecord(eventType Type, at time.Time, data any) Record {
	return Record{
		eventType: eventType,
		timestamp: at.UTC().Truncate(time.Millisecond),
		data:      data,
	}
}

// Observer returns the capture source tag.
func (r Record) Observer() string { return Observer }

// Type returns the record's event type.
func (r Record) Type() Type { return r.eventType }

// Timestamp returns when the record was built for dispatch.
func (r Record) Timestamp() time.Time { return r.timestamp }

// Data returns the event-type-specific payload.
func (r Record) Data() any { return r.data }

type wireRecord struct {
	Observer  string `json:"observer"`
	EventType Type   `json:"event_type"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

// MarshalJSON encodes the record in the relay wire format.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireRecord{
		Observer:  Observer,
		EventType: r.eventType,
		Timestamp: r.timestamp.Format(TimestampLayout),
		Data:      r.data,
	})
}

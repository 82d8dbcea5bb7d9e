package collector

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // CGO-free SQLite
)

// StoredEvent is a relay record as received by the collector.
type StoredEvent struct {
	ID         string          `json:"id"`
	Observer   string          `json:"observer"`
	EventType  string          `json:"event_type"`
	Timestamp  string          `json:"timestamp"`
	ReceivedAt time.Time       `json:"received_at"`
	Data       json.RawMessage `json:"data"`
}

// Database stores received relay records in SQLite.
type Database struct {
	db *sql.DB
}

func NewDatabase(databasePath string) (*Database, error) {
	// WAL + busy timeout to avoid "database is locked"
	db, err := sql.Open("sqlite", databasePath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Database{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS relay_events(
	  id          TEXT    PRIMARY KEY,
	  observer    TEXT    NOT NULL,
	  event_type  TEXT    NOT NULL,
	  timestamp   TEXT    NOT NULL,
	  received_at INTEGER NOT NULL,
	  data_json   TEXT    NOT NULL CHECK (json_valid(data_json))
	);
	CREATE INDEX IF NOT EXISTS idx_relay_events_received ON relay_events(received_at);
	CREATE INDEX IF NOT EXISTS idx_relay_events_type     ON relay_events(event_type);
	`)
	if err != nil {
		return fmt.Errorf("failed to create database tables: %w", err)
	}
	return nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// InsertEvent stores event, assigning it a fresh ID, and returns the ID.
func (d *Database) InsertEvent(event StoredEvent) (string, error) {
	id := uuid.NewString()
	data := event.Data
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	_, err := d.db.Exec(
		`INSERT INTO relay_events(id, observer, event_type, timestamp, received_at, data_json) VALUES(?,?,?,?,?,json(?))`,
		id, event.Observer, event.EventType, event.Timestamp, event.ReceivedAt.UnixMilli(), string(data),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert event: %w", err)
	}
	return id, nil
}

// RecentEvents returns up to limit events, newest first.
func (d *Database) RecentEvents(limit int) ([]StoredEvent, error) {
	rows, err := d.db.Query(
		`SELECT id, observer, event_type, timestamp, received_at, data_json FROM relay_events ORDER BY received_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		var (
			event      StoredEvent
			receivedAt int64
			data       string
		)
		if err := rows.Scan(&event.ID, &event.Observer, &event.EventType, &event.Timestamp, &receivedAt, &data); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event.ReceivedAt = time.UnixMilli(receivedAt).UTC()
		event.Data = json.RawMessage(data)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return events, nil
}

// CountByType returns how many events of each type were received.
func (d *Database) CountByType() (map[string]int, error) {
	rows, err := d.db.Query(`SELECT event_type, COUNT(*) FROM relay_events GROUP BY event_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			eventType string
			n         int
		)
		if err := rows.Scan(&eventType, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[eventType] = n
	}
	return counts, rows.Err()
}

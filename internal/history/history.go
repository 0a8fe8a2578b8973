// internal/history/history.go
package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tamzrod/cnc-monitor/internal/state"
)

var schema = []string{`
CREATE TABLE IF NOT EXISTS snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts TIMESTAMP NOT NULL,
	connected INTEGER NOT NULL,
	status_word INTEGER NOT NULL,
	x_pos REAL NOT NULL,
	y_pos REAL NOT NULL,
	z_pos REAL NOT NULL,
	spindle_rpm INTEGER NOT NULL,
	feed_rate INTEGER NOT NULL,
	alarm_code INTEGER NOT NULL,
	program_number INTEGER NOT NULL,
	lot_count INTEGER NOT NULL,
	lot_target INTEGER NOT NULL,
	lot_id INTEGER NOT NULL,
	cycle_total_s REAL NOT NULL,
	last_error TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_snapshots_ts ON snapshots(ts)`,
}

// Recorder samples machine snapshots into a local SQLite database.
// It implements the poller's Sink contract.
type Recorder struct {
	db     *sql.DB
	sample time.Duration

	mu   sync.Mutex
	last time.Time
}

// Open creates or opens the snapshot database at path. sample bounds the
// insert rate; zero records every snapshot it is handed.
func Open(path string, sample time.Duration) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history open: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("history schema: %w", err)
		}
	}
	return &Recorder{db: db, sample: sample}, nil
}

// Close closes the database.
func (r *Recorder) Close() error {
	return r.db.Close()
}

// Record inserts one snapshot row, rate-limited to the sample interval.
func (r *Recorder) Record(s state.MachineState) error {
	r.mu.Lock()
	if r.sample > 0 && !r.last.IsZero() && s.LastUpdate.Sub(r.last) < r.sample {
		r.mu.Unlock()
		return nil
	}
	r.last = s.LastUpdate
	r.mu.Unlock()

	_, err := r.db.Exec(
		`INSERT INTO snapshots (
			ts, connected, status_word, x_pos, y_pos, z_pos,
			spindle_rpm, feed_rate, alarm_code, program_number,
			lot_count, lot_target, lot_id, cycle_total_s, last_error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.LastUpdate, boolInt(s.Connected), s.StatusWord, s.XPos, s.YPos, s.ZPos,
		s.SpindleRPM, s.FeedRate, s.AlarmCode, s.ProgramNumber,
		s.LotCount, s.LotTarget, s.LotID, s.CycleTotal, s.LastError,
	)
	if err != nil {
		return fmt.Errorf("history insert: %w", err)
	}
	return nil
}

// Row is one recorded snapshot.
type Row struct {
	Timestamp     time.Time `json:"ts"`
	Connected     bool      `json:"connected"`
	StatusWord    uint16    `json:"status_word"`
	XPos          float64   `json:"x_pos"`
	YPos          float64   `json:"y_pos"`
	ZPos          float64   `json:"z_pos"`
	SpindleRPM    uint16    `json:"spindle_rpm"`
	FeedRate      uint16    `json:"feed_rate"`
	AlarmCode     uint16    `json:"alarm_code"`
	ProgramNumber uint16    `json:"program_number"`
	LotCount      uint16    `json:"lot_count"`
	LotTarget     uint16    `json:"lot_target"`
	LotID         uint16    `json:"lot_id"`
	CycleTotal    float64   `json:"cycle_total_s"`
	LastError     string    `json:"last_error"`
}

// Recent returns up to limit rows, newest first.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT ts, connected, status_word, x_pos, y_pos, z_pos,
			spindle_rpm, feed_rate, alarm_code, program_number,
			lot_count, lot_target, lot_id, cycle_total_s, last_error
		FROM snapshots ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history query: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var row Row
		var connected int
		if err := rows.Scan(
			&row.Timestamp, &connected, &row.StatusWord, &row.XPos, &row.YPos, &row.ZPos,
			&row.SpindleRPM, &row.FeedRate, &row.AlarmCode, &row.ProgramNumber,
			&row.LotCount, &row.LotTarget, &row.LotID, &row.CycleTotal, &row.LastError,
		); err != nil {
			return nil, fmt.Errorf("history scan: %w", err)
		}
		row.Connected = connected != 0
		out = append(out, row)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

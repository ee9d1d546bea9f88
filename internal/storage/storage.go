// Package storage provides SQLite-backed history of alert transitions and notifications.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/derivwatch/internal/models"
	_ "modernc.org/sqlite"
)

// Reasons recorded when an alert stops.
const (
	ReasonCleared   = "cleared"
	ReasonDisabled  = "disabled"
	ReasonDismissed = "dismissed"
)

// AlertEvent is one trigger→clear lifetime of an alert.
type AlertEvent struct {
	ID          string
	Key         string
	Market      string
	Group       string
	LossStreak  int
	Threshold   int
	TriggeredAt time.Time
	ClearedAt   time.Time // zero while open
	Reason      string
}

// Open reports whether the alert has not been closed yet.
func (e AlertEvent) Open() bool {
	return e.ClearedAt.IsZero()
}

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db        *sql.DB
	maxEvents int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/derivwatch/history.db.
func New(maxEvents int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "derivwatch", "history.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, maxEvents: maxEvents}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Storage) Ping() error {
	return s.db.Ping()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alert_events (
			id           TEXT PRIMARY KEY,
			alert_key    TEXT NOT NULL,
			market       TEXT NOT NULL,
			group_key    TEXT NOT NULL,
			loss_streak  INTEGER NOT NULL,
			threshold    INTEGER NOT NULL,
			triggered_at INTEGER NOT NULL,
			cleared_at   INTEGER,
			reason       TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id         TEXT PRIMARY KEY,
			type       TEXT NOT NULL,
			title      TEXT,
			message    TEXT NOT NULL,
			market     TEXT,
			alert_key  TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alert_events_key ON alert_events(alert_key, cleared_at)`,
		`CREATE INDEX IF NOT EXISTS idx_alert_events_triggered ON alert_events(triggered_at)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_created ON notifications(created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// RecordTrigger opens a history row for a newly triggered alert.
func (s *Storage) RecordTrigger(a models.ActiveAlert) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(`
		INSERT INTO alert_events
			(id, alert_key, market, group_key, loss_streak, threshold, triggered_at)
		VALUES (?,?,?,?,?,?,?)`,
		id, a.Key, a.Market, a.Group, a.LossStreak, a.Threshold, a.TriggeredAt.UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert alert event: %w", err)
	}
	return id, nil
}

// RecordClear closes every open history row for key.
func (s *Storage) RecordClear(key string, at time.Time, reason string) error {
	_, err := s.db.Exec(`
		UPDATE alert_events SET cleared_at = ?, reason = ?
		WHERE alert_key = ? AND cleared_at IS NULL`,
		at.UnixNano(), reason, key,
	)
	if err != nil {
		return fmt.Errorf("failed to close alert event: %w", err)
	}
	return nil
}

// CloseOpenEvents closes rows left open by a previous run.
func (s *Storage) CloseOpenEvents(at time.Time, reason string) (int64, error) {
	res, err := s.db.Exec(`
		UPDATE alert_events SET cleared_at = ?, reason = ? WHERE cleared_at IS NULL`,
		at.UnixNano(), reason,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to close open alert events: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// RecentAlertEvents returns up to limit events, newest first.
func (s *Storage) RecentAlertEvents(limit int) ([]AlertEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, alert_key, market, group_key, loss_streak, threshold,
		       triggered_at, cleared_at, reason
		FROM alert_events ORDER BY triggered_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert events: %w", err)
	}
	defer rows.Close()

	var events []AlertEvent
	for rows.Next() {
		var e AlertEvent
		var triggeredNano int64
		var clearedNano sql.NullInt64
		var reason sql.NullString

		if err := rows.Scan(&e.ID, &e.Key, &e.Market, &e.Group, &e.LossStreak, &e.Threshold,
			&triggeredNano, &clearedNano, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan alert event: %w", err)
		}
		e.TriggeredAt = time.Unix(0, triggeredNano)
		if clearedNano.Valid {
			e.ClearedAt = time.Unix(0, clearedNano.Int64)
		}
		e.Reason = reason.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// AddNotification stores a panel entry.
func (s *Storage) AddNotification(n models.Notification) error {
	id := n.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO notifications
			(id, type, title, message, market, alert_key, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		id, string(n.Type), n.Title, n.Message, n.Market, n.AlertKey, n.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// RecentNotifications returns up to limit stored entries, newest first.
func (s *Storage) RecentNotifications(limit int) ([]models.Notification, error) {
	rows, err := s.db.Query(`
		SELECT id, type, title, message, market, alert_key, created_at
		FROM notifications ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		var n models.Notification
		var typ string
		var title, market, alertKey sql.NullString
		var createdNano int64
		if err := rows.Scan(&n.ID, &typ, &title, &n.Message, &market, &alertKey, &createdNano); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Type = models.NotificationType(typ)
		n.Title = title.String
		n.Market = market.String
		n.AlertKey = alertKey.String
		n.Timestamp = time.Unix(0, createdNano)
		n.Closeable = true
		out = append(out, n)
	}
	return out, rows.Err()
}

// Rotate keeps at most maxEvents newest rows in each table.
func (s *Storage) Rotate() error {
	if _, err := s.db.Exec(`
		DELETE FROM alert_events WHERE id NOT IN (
			SELECT id FROM alert_events ORDER BY triggered_at DESC LIMIT ?
		)`, s.maxEvents); err != nil {
		return fmt.Errorf("failed to rotate alert events: %w", err)
	}
	if _, err := s.db.Exec(`
		DELETE FROM notifications WHERE id NOT IN (
			SELECT id FROM notifications ORDER BY created_at DESC LIMIT ?
		)`, s.maxEvents); err != nil {
		return fmt.Errorf("failed to rotate notifications: %w", err)
	}
	return nil
}

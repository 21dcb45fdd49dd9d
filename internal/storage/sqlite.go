package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "pluginlister/pkg/logx"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	at          TEXT    NOT NULL,
	kind        TEXT    NOT NULL,
	actor_id    TEXT,
	actor_name  TEXT,
	outcome     TEXT,
	count       INTEGER NOT NULL DEFAULT 0,
	delivery_id TEXT,
	attempt     INTEGER NOT NULL DEFAULT 0,
	status      INTEGER NOT NULL DEFAULT 0,
	err         TEXT
);
CREATE INDEX IF NOT EXISTS audit_kind_at ON audit(kind, at);
`

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, kind, actor_id, actor_name, outcome, count, delivery_id, attempt, status, err)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		e.At.UTC().Format(time.RFC3339Nano), e.Kind, nullStr(e.ActorID), nullStr(e.ActorName), nullStr(e.Outcome),
		e.Count, nullStr(e.DeliveryID), e.Attempt, e.Status, nullStr(e.Error),
	)
	return err
}

func (s *sqliteStore) Recent(ctx context.Context, n int) ([]AuditEntry, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if n <= 0 {
		return nil, nil
	}
	n = min(n, MaxRecent)
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, kind, actor_id, actor_name, outcome, count, delivery_id, attempt, status, err
		 FROM (SELECT * FROM audit ORDER BY id DESC LIMIT ?) ORDER BY id ASC`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var (
			e                                          AuditEntry
			at                                         string
			actorID, actorName, outcome, delivery, msg sql.NullString
		)
		if err := rows.Scan(&at, &e.Kind, &actorID, &actorName, &outcome, &e.Count, &delivery, &e.Attempt, &e.Status, &msg); err != nil {
			return nil, err
		}
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		e.ActorID, e.ActorName, e.Outcome = actorID.String, actorName.String, outcome.String
		e.DeliveryID, e.Error = delivery.String, msg.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

package staging

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStager stages keys in an embedded SQLite file. It suits single-host
// deployments where every worker shares the same disk.
type SQLiteStager struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

const sqliteStagingSchema = `
CREATE TABLE IF NOT EXISTS staging (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	expires_at INTEGER
);`

// NewSQLite opens (or creates) the staging database at path.
func NewSQLite(path string, ttl time.Duration) (*SQLiteStager, error) {
	if path == "" {
		return nil, eris.New("staging: sqlite path must be provided")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "staging: open sqlite")
	}
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		sqliteStagingSchema,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "staging: exec %s", strings.TrimSpace(stmt))
		}
	}
	return &SQLiteStager{db: db, ttl: ttl, now: time.Now}, nil
}

// Stage implements Stager.
func (s *SQLiteStager) Stage(ctx context.Context, key, value string) error {
	var expires any
	if s.ttl > 0 {
		expires = s.now().Add(s.ttl).Unix()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO staging (key, value, expires_at) VALUES (?, ?, ?)
ON CONFLICT (key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expires)
	return eris.Wrapf(err, "staging: set %s", key)
}

// ReadStage implements Stager. Expired rows read as absent.
func (s *SQLiteStager) ReadStage(ctx context.Context, key string) (string, bool, error) {
	var (
		value   string
		expires sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `SELECT value, expires_at FROM staging WHERE key = ?`, key).Scan(&value, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrapf(err, "staging: get %s", key)
	}
	if expires.Valid && expires.Int64 <= s.now().Unix() {
		return "", false, nil
	}
	return value, true, nil
}

// Consume implements Consumer.
func (s *SQLiteStager) Consume(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	_, err := s.db.ExecContext(ctx, `DELETE FROM staging WHERE key IN (`+placeholders+`)`, args...)
	return eris.Wrap(err, "staging: delete keys")
}

// Purge removes expired rows and returns how many were deleted.
func (s *SQLiteStager) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM staging WHERE expires_at IS NOT NULL AND expires_at <= ?`, s.now().Unix())
	if err != nil {
		return 0, eris.Wrap(err, "staging: purge")
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *SQLiteStager) Close() error {
	return s.db.Close()
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/adcrawl/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Media lists are
// stored as JSON arrays.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// A single connection serialises writers and keeps transactions simple.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS domains (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	domain     TEXT NOT NULL UNIQUE,
	active     INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS advertisers (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	code       TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS creatives (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	code           TEXT NOT NULL UNIQUE,
	link           TEXT NOT NULL DEFAULT '',
	format         INTEGER NOT NULL DEFAULT 0,
	first_shown_at DATETIME,
	last_shown_at  DATETIME,
	preview_image  TEXT NOT NULL DEFAULT '',
	advertiser_id  INTEGER REFERENCES advertisers(id),
	domain_id      INTEGER REFERENCES domains(id),
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS creative_variants (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	creative_id INTEGER NOT NULL REFERENCES creatives(id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	iframe_url  TEXT NOT NULL DEFAULT '',
	screenshot  TEXT NOT NULL DEFAULT '',
	html        TEXT NOT NULL DEFAULT '',
	media_types TEXT NOT NULL DEFAULT '[]',
	media_urls  TEXT NOT NULL DEFAULT '[]',
	click_urls  TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS regions (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS creative_regions (
	creative_id INTEGER NOT NULL REFERENCES creatives(id) ON DELETE CASCADE,
	region_id   INTEGER NOT NULL REFERENCES regions(id),
	PRIMARY KEY (creative_id, region_id)
);

CREATE INDEX IF NOT EXISTS idx_creatives_advertiser ON creatives(advertiser_id);
CREATE INDEX IF NOT EXISTS idx_creatives_domain ON creatives(domain_id);
CREATE INDEX IF NOT EXISTS idx_creative_variants_creative ON creative_variants(creative_id, position);
`

// Ping checks connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveCreative implements Store.
func (s *SQLiteStore) SaveCreative(ctx context.Context, c *model.Creative) error {
	if c == nil || c.Code == "" {
		return persistErr("", eris.New("sqlite: save creative: missing code"))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr(c.Code, eris.Wrap(err, "sqlite: begin"))
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.saveTx(ctx, tx, c); err != nil {
		return persistErr(c.Code, err)
	}
	if err := tx.Commit(); err != nil {
		return persistErr(c.Code, eris.Wrap(err, "sqlite: commit"))
	}
	return nil
}

func (s *SQLiteStore) saveTx(ctx context.Context, tx *sql.Tx, c *model.Creative) error {
	now := time.Now().UTC()

	var domainID *int64
	if d := normalizeDomain(c.Domain); d != "" {
		var id int64
		err := tx.QueryRowContext(ctx,
			`INSERT INTO domains (domain) VALUES (?)
ON CONFLICT(domain) DO UPDATE SET domain = excluded.domain
RETURNING id`, d).Scan(&id)
		if err != nil {
			return eris.Wrapf(err, "sqlite: upsert domain %s", d)
		}
		domainID = &id
	}

	var advertiserID *int64
	if c.Advertiser.Code != "" {
		var id int64
		err := tx.QueryRowContext(ctx,
			`INSERT INTO advertisers (code, name, updated_at) VALUES (?, ?, ?)
ON CONFLICT(code) DO UPDATE SET name = COALESCE(NULLIF(excluded.name, ''), advertisers.name), updated_at = excluded.updated_at
RETURNING id`, c.Advertiser.Code, c.Advertiser.Name, now).Scan(&id)
		if err != nil {
			return eris.Wrapf(err, "sqlite: upsert advertiser %s", c.Advertiser.Code)
		}
		advertiserID = &id
	}

	var creativeID int64
	err := tx.QueryRowContext(ctx,
		`INSERT INTO creatives (code, link, format, first_shown_at, last_shown_at, preview_image, advertiser_id, domain_id, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(code) DO UPDATE SET
	link = excluded.link,
	format = excluded.format,
	first_shown_at = COALESCE(creatives.first_shown_at, excluded.first_shown_at),
	last_shown_at = excluded.last_shown_at,
	preview_image = excluded.preview_image,
	advertiser_id = COALESCE(excluded.advertiser_id, creatives.advertiser_id),
	domain_id = COALESCE(excluded.domain_id, creatives.domain_id),
	updated_at = excluded.updated_at
RETURNING id`,
		c.Code, c.Link, c.Format.Code(), c.FirstShownAt, nullTime(c.LastShownAt),
		c.ResolvePreviewImage(), advertiserID, domainID, now,
	).Scan(&creativeID)
	if err != nil {
		return eris.Wrap(err, "sqlite: upsert creative")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM creative_variants WHERE creative_id = ?`, creativeID); err != nil {
		return eris.Wrap(err, "sqlite: delete variants")
	}
	if len(c.Variants) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO creative_variants (`+strings.Join(variantColumns, ", ")+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return eris.Wrap(err, "sqlite: prepare variant insert")
		}
		defer stmt.Close()
		for i, v := range c.Variants {
			types, urls, clicks := splitMedias(v.Medias)
			_, err := stmt.ExecContext(ctx, creativeID, i, v.IframeURL, v.Screenshot, v.HTML,
				jsonList(types), jsonList(urls), jsonList(clicks))
			if err != nil {
				return eris.Wrapf(err, "sqlite: insert variant %d", i)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM creative_regions WHERE creative_id = ?`, creativeID); err != nil {
		return eris.Wrap(err, "sqlite: delete regions")
	}
	if regions := model.NormalizeRegions(c.Regions); len(regions) > 0 {
		args := make([]any, 0, len(regions)+1)
		args = append(args, creativeID)
		for _, r := range regions {
			args = append(args, r)
		}
		q := `INSERT OR IGNORE INTO creative_regions (creative_id, region_id)
SELECT ?, id FROM regions WHERE name IN (` + placeholders(len(regions)) + `)`
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return eris.Wrap(err, "sqlite: insert regions")
		}
	}
	return nil
}

// GetCreative implements Store.
func (s *SQLiteStore) GetCreative(ctx context.Context, code string) (*model.Creative, error) {
	var (
		id         int64
		c          model.Creative
		format     int
		firstShown sql.NullTime
		lastShown  sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT c.id, c.code, c.link, c.format, c.first_shown_at, c.last_shown_at, c.preview_image,
	COALESCE(a.code, ''), COALESCE(a.name, ''), COALESCE(d.domain, '')
FROM creatives c
LEFT JOIN advertisers a ON a.id = c.advertiser_id
LEFT JOIN domains d ON d.id = c.domain_id
WHERE c.code = ?`, code).Scan(
		&id, &c.Code, &c.Link, &format, &firstShown, &lastShown, &c.PreviewImage,
		&c.Advertiser.Code, &c.Advertiser.Name, &c.Domain,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get creative %s", code)
	}
	c.Format = model.FormatFromCode(format)
	if firstShown.Valid {
		t := firstShown.Time
		c.FirstShownAt = &t
	}
	if lastShown.Valid {
		c.LastShownAt = lastShown.Time
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT iframe_url, screenshot, html, media_types, media_urls, click_urls
FROM creative_variants WHERE creative_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get variants")
	}
	for rows.Next() {
		var v model.Variant
		var types, urls, clicks string
		if err := rows.Scan(&v.IframeURL, &v.Screenshot, &v.HTML, &types, &urls, &clicks); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "sqlite: scan variant")
		}
		v.Medias = joinMedias(parseList(types), parseList(urls), parseList(clicks))
		c.Variants = append(c.Variants, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate variants")
	}

	regionRows, err := s.db.QueryContext(ctx,
		`SELECT r.name FROM creative_regions cr JOIN regions r ON r.id = cr.region_id
WHERE cr.creative_id = ? ORDER BY r.name`, id)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get regions")
	}
	defer regionRows.Close()
	for regionRows.Next() {
		var name string
		if err := regionRows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan region")
		}
		c.Regions = append(c.Regions, name)
	}
	return &c, eris.Wrap(regionRows.Err(), "sqlite: iterate regions")
}

// ListCreatives implements Store.
func (s *SQLiteStore) ListCreatives(ctx context.Context, filter CreativeFilter) ([]CreativeSummary, error) {
	query := `SELECT c.code, c.link, c.format, COALESCE(a.code, ''), COALESCE(a.name, ''), COALESCE(d.domain, ''),
	c.last_shown_at, c.preview_image,
	(SELECT count(*) FROM creative_variants v WHERE v.creative_id = c.id), c.updated_at
FROM creatives c
LEFT JOIN advertisers a ON a.id = c.advertiser_id
LEFT JOIN domains d ON d.id = c.domain_id
WHERE 1=1`
	var args []any
	if filter.AdvertiserCode != "" {
		query += ` AND a.code = ?`
		args = append(args, filter.AdvertiserCode)
	}
	if filter.Domain != "" {
		query += ` AND d.domain = ?`
		args = append(args, normalizeDomain(filter.Domain))
	}
	if filter.Format.Valid() {
		query += ` AND c.format = ?`
		args = append(args, filter.Format.Code())
	}
	query += ` ORDER BY c.updated_at DESC, c.id DESC LIMIT ? OFFSET ?`
	args = append(args, limitOrDefault(filter.Limit), max(filter.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list creatives")
	}
	defer rows.Close()

	var out []CreativeSummary
	for rows.Next() {
		var cs CreativeSummary
		var format int
		var lastShown sql.NullTime
		if err := rows.Scan(&cs.Code, &cs.Link, &format, &cs.AdvertiserCode, &cs.AdvertiserName, &cs.Domain,
			&lastShown, &cs.PreviewImage, &cs.VariantCount, &cs.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan creative")
		}
		cs.Format = model.FormatFromCode(format)
		if lastShown.Valid {
			t := lastShown.Time
			cs.LastShownAt = &t
		}
		out = append(out, cs)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate creatives")
}

// UpsertAdvertiser implements Store.
func (s *SQLiteStore) UpsertAdvertiser(ctx context.Context, a model.Advertiser) error {
	if a.Code == "" {
		return eris.New("sqlite: upsert advertiser: missing code")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO advertisers (code, name, updated_at) VALUES (?, ?, ?)
ON CONFLICT(code) DO UPDATE SET name = COALESCE(NULLIF(excluded.name, ''), advertisers.name), updated_at = excluded.updated_at`,
		a.Code, a.Name, time.Now().UTC())
	return eris.Wrapf(err, "sqlite: upsert advertiser %s", a.Code)
}

// GetAllActiveDomains implements Store.
func (s *SQLiteStore) GetAllActiveDomains(ctx context.Context) ([]model.Domain, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, domain, active FROM domains WHERE active = 1 ORDER BY domain`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: active domains")
	}
	defer rows.Close()

	var out []model.Domain
	for rows.Next() {
		var d model.Domain
		if err := rows.Scan(&d.ID, &d.Domain, &d.Active); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan domain")
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate domains")
}

// ImportDomains upserts tracked domains, refreshing the active flag.
func (s *SQLiteStore) ImportDomains(ctx context.Context, domains []model.Domain) (int64, error) {
	var n int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, d := range domains {
			name := normalizeDomain(d.Domain)
			if name == "" {
				continue
			}
			res, err := tx.ExecContext(ctx,
				`INSERT INTO domains (domain, active) VALUES (?, ?)
ON CONFLICT(domain) DO UPDATE SET active = excluded.active`, name, d.Active)
			if err != nil {
				return eris.Wrapf(err, "sqlite: import domain %s", name)
			}
			affected, _ := res.RowsAffected()
			n += affected
		}
		return nil
	})
	return n, err
}

// ImportRegions inserts region names, ignoring known ones.
func (s *SQLiteStore) ImportRegions(ctx context.Context, names []string) (int64, error) {
	var n int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, name := range model.NormalizeRegions(names) {
			res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO regions (name) VALUES (?)`, name)
			if err != nil {
				return eris.Wrapf(err, "sqlite: import region %s", name)
			}
			affected, _ := res.RowsAffected()
			n += affected
		}
		return nil
	})
	return n, err
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

func jsonList(v []string) string {
	if len(v) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func parseList(s string) []string {
	var out []string
	if s == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/adcrawl/internal/db"
	"github.com/sells-group/adcrawl/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS domains (
	id         BIGSERIAL PRIMARY KEY,
	domain     TEXT NOT NULL UNIQUE,
	active     BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS advertisers (
	id         BIGSERIAL PRIMARY KEY,
	code       TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS creatives (
	id             BIGSERIAL PRIMARY KEY,
	code           TEXT NOT NULL UNIQUE,
	link           TEXT NOT NULL DEFAULT '',
	format         SMALLINT NOT NULL DEFAULT 0,
	first_shown_at TIMESTAMPTZ,
	last_shown_at  TIMESTAMPTZ,
	preview_image  TEXT NOT NULL DEFAULT '',
	advertiser_id  BIGINT REFERENCES advertisers(id),
	domain_id      BIGINT REFERENCES domains(id),
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS creative_variants (
	id          BIGSERIAL PRIMARY KEY,
	creative_id BIGINT NOT NULL REFERENCES creatives(id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	iframe_url  TEXT NOT NULL DEFAULT '',
	screenshot  TEXT NOT NULL DEFAULT '',
	html        TEXT NOT NULL DEFAULT '',
	media_types TEXT[] NOT NULL DEFAULT '{}',
	media_urls  TEXT[] NOT NULL DEFAULT '{}',
	click_urls  TEXT[] NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS regions (
	id   BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS creative_regions (
	creative_id BIGINT NOT NULL REFERENCES creatives(id) ON DELETE CASCADE,
	region_id   BIGINT NOT NULL REFERENCES regions(id),
	PRIMARY KEY (creative_id, region_id)
);

CREATE INDEX IF NOT EXISTS idx_creatives_advertiser ON creatives(advertiser_id);
CREATE INDEX IF NOT EXISTS idx_creatives_domain ON creatives(domain_id);
CREATE INDEX IF NOT EXISTS idx_creative_variants_creative ON creative_variants(creative_id, position);
CREATE INDEX IF NOT EXISTS idx_domains_active ON domains(active) WHERE active;
`

const (
	pgUpsertDomain = `INSERT INTO domains (domain) VALUES ($1)
ON CONFLICT (domain) DO UPDATE SET domain = excluded.domain
RETURNING id`

	pgUpsertAdvertiser = `INSERT INTO advertisers (code, name) VALUES ($1, $2)
ON CONFLICT (code) DO UPDATE SET name = COALESCE(NULLIF(excluded.name, ''), advertisers.name), updated_at = now()
RETURNING id`

	pgUpsertCreative = `INSERT INTO creatives (code, link, format, first_shown_at, last_shown_at, preview_image, advertiser_id, domain_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (code) DO UPDATE SET
	link = excluded.link,
	format = excluded.format,
	first_shown_at = COALESCE(creatives.first_shown_at, excluded.first_shown_at),
	last_shown_at = excluded.last_shown_at,
	preview_image = excluded.preview_image,
	advertiser_id = COALESCE(excluded.advertiser_id, creatives.advertiser_id),
	domain_id = COALESCE(excluded.domain_id, creatives.domain_id),
	updated_at = now()
RETURNING id`

	pgDeleteVariants = `DELETE FROM creative_variants WHERE creative_id = $1`
	pgDeleteRegions  = `DELETE FROM creative_regions WHERE creative_id = $1`

	pgInsertRegions = `INSERT INTO creative_regions (creative_id, region_id)
SELECT $1, id FROM regions WHERE name = ANY($2)
ON CONFLICT DO NOTHING`

	pgSelectCreative = `SELECT c.id, c.code, c.link, c.format, c.first_shown_at, c.last_shown_at, c.preview_image,
	COALESCE(a.code, ''), COALESCE(a.name, ''), COALESCE(d.domain, '')
FROM creatives c
LEFT JOIN advertisers a ON a.id = c.advertiser_id
LEFT JOIN domains d ON d.id = c.domain_id
WHERE c.code = $1`
)

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

// Migrate creates the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// SaveCreative implements Store.
func (s *PostgresStore) SaveCreative(ctx context.Context, c *model.Creative) error {
	if c == nil || c.Code == "" {
		return persistErr("", eris.New("postgres: save creative: missing code"))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return persistErr(c.Code, eris.Wrap(err, "postgres: begin"))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.saveTx(ctx, tx, c); err != nil {
		return persistErr(c.Code, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return persistErr(c.Code, eris.Wrap(err, "postgres: commit"))
	}
	return nil
}

func (s *PostgresStore) saveTx(ctx context.Context, tx pgx.Tx, c *model.Creative) error {
	var domainID *int64
	if d := normalizeDomain(c.Domain); d != "" {
		var id int64
		if err := tx.QueryRow(ctx, pgUpsertDomain, d).Scan(&id); err != nil {
			return eris.Wrapf(err, "postgres: upsert domain %s", d)
		}
		domainID = &id
	}

	var advertiserID *int64
	if c.Advertiser.Code != "" {
		var id int64
		if err := tx.QueryRow(ctx, pgUpsertAdvertiser, c.Advertiser.Code, c.Advertiser.Name).Scan(&id); err != nil {
			return eris.Wrapf(err, "postgres: upsert advertiser %s", c.Advertiser.Code)
		}
		advertiserID = &id
	}

	var creativeID int64
	err := tx.QueryRow(ctx, pgUpsertCreative,
		c.Code, c.Link, c.Format.Code(), c.FirstShownAt, nullTime(c.LastShownAt),
		c.ResolvePreviewImage(), advertiserID, domainID,
	).Scan(&creativeID)
	if err != nil {
		return eris.Wrap(err, "postgres: upsert creative")
	}

	if _, err := tx.Exec(ctx, pgDeleteVariants, creativeID); err != nil {
		return eris.Wrap(err, "postgres: delete variants")
	}
	rows := make([][]any, 0, len(c.Variants))
	for i, v := range c.Variants {
		types, urls, clicks := splitMedias(v.Medias)
		rows = append(rows, []any{creativeID, i, v.IframeURL, v.Screenshot, v.HTML, types, urls, clicks})
	}
	if _, err := db.CopyFrom(ctx, tx, "creative_variants", variantColumns, rows); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, pgDeleteRegions, creativeID); err != nil {
		return eris.Wrap(err, "postgres: delete regions")
	}
	if regions := model.NormalizeRegions(c.Regions); len(regions) > 0 {
		if _, err := tx.Exec(ctx, pgInsertRegions, creativeID, regions); err != nil {
			return eris.Wrap(err, "postgres: insert regions")
		}
	}
	return nil
}

// GetCreative implements Store.
func (s *PostgresStore) GetCreative(ctx context.Context, code string) (*model.Creative, error) {
	var (
		id        int64
		c         model.Creative
		format    int
		lastShown *time.Time
	)
	err := s.pool.QueryRow(ctx, pgSelectCreative, code).Scan(
		&id, &c.Code, &c.Link, &format, &c.FirstShownAt, &lastShown, &c.PreviewImage,
		&c.Advertiser.Code, &c.Advertiser.Name, &c.Domain,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get creative %s", code)
	}
	c.Format = model.FormatFromCode(format)
	if lastShown != nil {
		c.LastShownAt = *lastShown
	}

	rows, err := s.pool.Query(ctx,
		`SELECT iframe_url, screenshot, html, media_types, media_urls, click_urls
FROM creative_variants WHERE creative_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get variants")
	}
	defer rows.Close()
	for rows.Next() {
		var v model.Variant
		var types, urls, clicks []string
		if err := rows.Scan(&v.IframeURL, &v.Screenshot, &v.HTML, &types, &urls, &clicks); err != nil {
			return nil, eris.Wrap(err, "postgres: scan variant")
		}
		v.Medias = joinMedias(types, urls, clicks)
		c.Variants = append(c.Variants, v)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate variants")
	}

	regionRows, err := s.pool.Query(ctx,
		`SELECT r.name FROM creative_regions cr JOIN regions r ON r.id = cr.region_id
WHERE cr.creative_id = $1 ORDER BY r.name`, id)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get regions")
	}
	defer regionRows.Close()
	for regionRows.Next() {
		var name string
		if err := regionRows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan region")
		}
		c.Regions = append(c.Regions, name)
	}
	return &c, eris.Wrap(regionRows.Err(), "postgres: iterate regions")
}

// ListCreatives implements Store.
func (s *PostgresStore) ListCreatives(ctx context.Context, filter CreativeFilter) ([]CreativeSummary, error) {
	query := `SELECT c.code, c.link, c.format, COALESCE(a.code, ''), COALESCE(a.name, ''), COALESCE(d.domain, ''),
	c.last_shown_at, c.preview_image,
	(SELECT count(*) FROM creative_variants v WHERE v.creative_id = c.id), c.updated_at
FROM creatives c
LEFT JOIN advertisers a ON a.id = c.advertiser_id
LEFT JOIN domains d ON d.id = c.domain_id
WHERE true`
	args := []any{}
	argIdx := 1

	if filter.AdvertiserCode != "" {
		query += fmt.Sprintf(` AND a.code = $%d`, argIdx)
		args = append(args, filter.AdvertiserCode)
		argIdx++
	}
	if filter.Domain != "" {
		query += fmt.Sprintf(` AND d.domain = $%d`, argIdx)
		args = append(args, normalizeDomain(filter.Domain))
		argIdx++
	}
	if filter.Format.Valid() {
		query += fmt.Sprintf(` AND c.format = $%d`, argIdx)
		args = append(args, filter.Format.Code())
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY c.updated_at DESC LIMIT $%d`, argIdx)
	args = append(args, limitOrDefault(filter.Limit))
	argIdx++
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list creatives")
	}
	defer rows.Close()

	var out []CreativeSummary
	for rows.Next() {
		var cs CreativeSummary
		var format int
		if err := rows.Scan(&cs.Code, &cs.Link, &format, &cs.AdvertiserCode, &cs.AdvertiserName, &cs.Domain,
			&cs.LastShownAt, &cs.PreviewImage, &cs.VariantCount, &cs.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan creative")
		}
		cs.Format = model.FormatFromCode(format)
		out = append(out, cs)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate creatives")
}

// UpsertAdvertiser implements Store. An empty name never overwrites a
// known one.
func (s *PostgresStore) UpsertAdvertiser(ctx context.Context, a model.Advertiser) error {
	if a.Code == "" {
		return eris.New("postgres: upsert advertiser: missing code")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO advertisers (code, name) VALUES ($1, $2)
ON CONFLICT (code) DO UPDATE SET name = COALESCE(NULLIF(excluded.name, ''), advertisers.name), updated_at = now()`,
		a.Code, a.Name)
	return eris.Wrapf(err, "postgres: upsert advertiser %s", a.Code)
}

// GetAllActiveDomains implements Store.
func (s *PostgresStore) GetAllActiveDomains(ctx context.Context) ([]model.Domain, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, domain, active FROM domains WHERE active ORDER BY domain`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: active domains")
	}
	defer rows.Close()

	var out []model.Domain
	for rows.Next() {
		var d model.Domain
		if err := rows.Scan(&d.ID, &d.Domain, &d.Active); err != nil {
			return nil, eris.Wrap(err, "postgres: scan domain")
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate domains")
}

// ImportDomains bulk upserts tracked domains, refreshing the active flag.
func (s *PostgresStore) ImportDomains(ctx context.Context, domains []model.Domain) (int64, error) {
	rows := make([][]any, 0, len(domains))
	for _, d := range domains {
		if name := normalizeDomain(d.Domain); name != "" {
			rows = append(rows, []any{name, d.Active})
		}
	}
	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "domains",
		Columns:      []string{"domain", "active"},
		ConflictKeys: []string{"domain"},
		UpdateCols:   []string{"active"},
	}, rows)
}

// ImportRegions bulk inserts region names, ignoring known ones.
func (s *PostgresStore) ImportRegions(ctx context.Context, names []string) (int64, error) {
	names = model.NormalizeRegions(names)
	rows := make([][]any, 0, len(names))
	for _, n := range names {
		rows = append(rows, []any{n})
	}
	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "regions",
		Columns:      []string{"name"},
		ConflictKeys: []string{"name"},
	}, rows)
}

// Package staging bridges the listing phase and the detail phase of a crawl.
// Listing visits stage partial creative knowledge keyed by creative code and
// detail visits, possibly on another worker, read it back.
package staging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/adcrawl/internal/model"
)

// Stager is the key-value bridge between crawl phases. Writes are
// last-write-wins. Reading a key that was never staged (or has expired)
// returns ok=false and no error.
type Stager interface {
	Stage(ctx context.Context, key, value string) error
	ReadStage(ctx context.Context, key string) (value string, ok bool, err error)
	Close() error
}

// Consumer is implemented by stagers that can physically delete keys once
// the detail phase has used them.
type Consumer interface {
	Consume(ctx context.Context, keys ...string) error
}

// Purger is implemented by stagers whose expired entries linger until
// removed. Redis expires keys itself.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

// PurgeEvery removes expired entries from s on every tick until ctx is done.
// It returns at once when s is not a Purger or every is not positive.
func PurgeEvery(ctx context.Context, s Stager, every time.Duration) {
	p, ok := s.(Purger)
	if !ok || every <= 0 {
		return
	}
	log := zap.L().Named("staging")
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := p.Purge(ctx)
			if err != nil {
				log.Warn("purge failed", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("purged expired entries", zap.Int64("rows", n))
			}
		}
	}
}

const (
	suffixImage    = "image"
	suffixDomain   = "domain"
	suffixCreative = "creative"
)

// ImageKey is the key of a creative's staged preview image URL.
func ImageKey(code string) string { return code + "." + suffixImage }

// DomainKey is the key of the domain or search term a creative was listed under.
func DomainKey(code string) string { return code + "." + suffixDomain }

// CreativeKey is the key of a creative's staged JSON shell.
func CreativeKey(code string) string { return code + "." + suffixCreative }

// Keys returns every key staged for a creative code.
func Keys(code string) []string {
	return []string{ImageKey(code), DomainKey(code), CreativeKey(code)}
}

// Record is everything the listing phase staged for one creative.
type Record struct {
	Shell        *model.StagedCreative
	PreviewImage string
	Domain       string
}

// Empty reports whether nothing was staged.
func (r Record) Empty() bool {
	return r.Shell == nil && r.PreviewImage == "" && r.Domain == ""
}

// StageShell stores the JSON shell of a creative.
func StageShell(ctx context.Context, s Stager, shell model.StagedCreative) error {
	if shell.Code == "" {
		return eris.New("staging: shell without code")
	}
	b, err := json.Marshal(shell)
	if err != nil {
		return eris.Wrap(err, "staging: marshal shell")
	}
	return s.Stage(ctx, CreativeKey(shell.Code), string(b))
}

// Read collects the staged record for a creative code. A shell that fails to
// decode is treated as absent.
func Read(ctx context.Context, s Stager, code string) (Record, error) {
	var rec Record

	image, ok, err := s.ReadStage(ctx, ImageKey(code))
	if err != nil {
		return rec, err
	}
	if ok {
		rec.PreviewImage = image
	}

	domain, ok, err := s.ReadStage(ctx, DomainKey(code))
	if err != nil {
		return rec, err
	}
	if ok {
		rec.Domain = domain
	}

	raw, ok, err := s.ReadStage(ctx, CreativeKey(code))
	if err != nil {
		return rec, err
	}
	if ok && raw != "" {
		var shell model.StagedCreative
		if jerr := json.Unmarshal([]byte(raw), &shell); jerr == nil {
			rec.Shell = &shell
		}
	}
	return rec, nil
}

// Consume deletes the staged keys of a creative when the stager supports it.
func Consume(ctx context.Context, s Stager, code string) error {
	c, ok := s.(Consumer)
	if !ok {
		return nil
	}
	return c.Consume(ctx, Keys(code)...)
}

// Config selects and tunes a staging backend.
type Config struct {
	Driver     string `yaml:"driver" mapstructure:"driver"`
	RedisURL   string `yaml:"redis_url" mapstructure:"redis_url"`
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	TTLHours   int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// TTL converts TTLHours into a duration. Zero means keys never expire.
func (c Config) TTL() time.Duration {
	if c.TTLHours <= 0 {
		return 0
	}
	return time.Duration(c.TTLHours) * time.Hour
}

// Open builds the configured backend.
func Open(ctx context.Context, cfg Config) (Stager, error) {
	switch cfg.Driver {
	case "", "redis":
		s, err := NewRedis(ctx, cfg.RedisURL, cfg.TTL())
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		s, err := NewSQLite(cfg.SQLitePath, cfg.TTL())
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, eris.Errorf("staging: unknown driver %q", cfg.Driver)
	}
}

// Package export writes saved creatives to spreadsheets.
package export

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/adcrawl/internal/model"
	"github.com/sells-group/adcrawl/internal/store"
)

const pageSize = 500

// Source is the store surface the export reads.
type Source interface {
	ListCreatives(ctx context.Context, filter store.CreativeFilter) ([]store.CreativeSummary, error)
	GetCreative(ctx context.Context, code string) (*model.Creative, error)
}

// Options configures WriteXLSX.
type Options struct {
	Filter store.CreativeFilter
	// Variants adds a second sheet with one row per variant. It reads every
	// creative in full.
	Variants bool
}

var (
	creativeHeader = []string{
		"code", "link", "format", "advertiser_code", "advertiser_name",
		"domain", "last_shown_at", "preview_image", "variant_count", "updated_at",
	}
	variantHeader = []string{
		"code", "position", "iframe_url", "media_types", "media_urls", "click_urls",
	}
)

// WriteXLSX pages through the creatives matching opts.Filter and saves them
// to path. It returns the number of creatives written.
func WriteXLSX(ctx context.Context, src Source, path string, opts Options) (int, error) {
	f := xlsx.NewFile()
	creatives, err := f.AddSheet("creatives")
	if err != nil {
		return 0, eris.Wrap(err, "export: add creatives sheet")
	}
	addRow(creatives, creativeHeader)

	var variants *xlsx.Sheet
	if opts.Variants {
		variants, err = f.AddSheet("variants")
		if err != nil {
			return 0, eris.Wrap(err, "export: add variants sheet")
		}
		addRow(variants, variantHeader)
	}

	filter := opts.Filter
	limit := filter.Limit
	filter.Limit = pageSize
	written := 0

	for {
		if err := ctx.Err(); err != nil {
			return written, eris.Wrap(err, "export: cancelled")
		}
		if limit > 0 && limit-written < filter.Limit {
			filter.Limit = limit - written
		}

		page, err := src.ListCreatives(ctx, filter)
		if err != nil {
			return written, eris.Wrap(err, "export: list creatives")
		}
		for _, s := range page {
			addRow(creatives, summaryRow(s))
			if variants != nil {
				if err := addVariants(ctx, src, variants, s.Code); err != nil {
					return written, err
				}
			}
			written++
		}

		if len(page) < filter.Limit || (limit > 0 && written >= limit) {
			break
		}
		filter.Offset += len(page)
	}

	if err := f.Save(path); err != nil {
		return written, eris.Wrapf(err, "export: save %s", path)
	}
	zap.L().Info("export: wrote creatives", zap.String("path", path), zap.Int("count", written))
	return written, nil
}

func addVariants(ctx context.Context, src Source, sheet *xlsx.Sheet, code string) error {
	c, err := src.GetCreative(ctx, code)
	if err != nil {
		return eris.Wrapf(err, "export: get creative %s", code)
	}
	if c == nil {
		return nil
	}
	for i, v := range c.Variants {
		types := make([]string, len(v.Medias))
		urls := make([]string, len(v.Medias))
		clicks := make([]string, len(v.Medias))
		for j, m := range v.Medias {
			types[j], urls[j], clicks[j] = string(m.Type), m.URL, m.ClickURL
		}
		addRow(sheet, []string{
			code, strconv.Itoa(i), v.IframeURL,
			strings.Join(types, "\n"), strings.Join(urls, "\n"), strings.Join(clicks, "\n"),
		})
	}
	return nil
}

func summaryRow(s store.CreativeSummary) []string {
	lastShown := ""
	if s.LastShownAt != nil {
		lastShown = s.LastShownAt.Format(time.DateOnly)
	}
	updated := ""
	if !s.UpdatedAt.IsZero() {
		updated = s.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		s.Code, s.Link, string(s.Format), s.AdvertiserCode, s.AdvertiserName,
		s.Domain, lastShown, s.PreviewImage, strconv.Itoa(s.VariantCount), updated,
	}
}

func addRow(sheet *xlsx.Sheet, cells []string) {
	row := sheet.AddRow()
	for _, v := range cells {
		row.AddCell().SetString(v)
	}
}

// Package ingest reads reference data (tracked domains, region names) from
// CSV or XLSX files on disk or over HTTP.
package ingest

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Options configures ReadRows.
type Options struct {
	// Sheet selects an XLSX sheet by name; empty means the first sheet.
	Sheet string
	// Client fetches http(s) sources. Nil uses a 60s-timeout client.
	Client *http.Client
}

// ReadRows reads every row of src, a local path or http(s) URL. The format
// follows the file extension: .xlsx is a workbook, anything else is CSV.
func ReadRows(ctx context.Context, src string, opts Options) ([][]string, error) {
	local, cleanup, err := localize(ctx, src, opts.Client)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if strings.EqualFold(path.Ext(sourcePath(src)), ".xlsx") {
		return readXLSX(local, opts.Sheet)
	}

	f, err := os.Open(local)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", local)
	}
	defer f.Close() //nolint:errcheck
	return readCSV(ctx, f)
}

func sourcePath(src string) string {
	if u, err := url.Parse(src); err == nil && u.Scheme != "" {
		return u.Path
	}
	return src
}

// localize downloads remote sources to a temp file. XLSX needs random
// access, so CSV downloads take the same path.
func localize(ctx context.Context, src string, client *http.Client) (string, func(), error) {
	u, err := url.Parse(src)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return src, func() {}, nil
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", nil, eris.Wrap(err, "ingest: create request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", nil, eris.Wrapf(err, "ingest: download %s", src)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", nil, eris.Errorf("ingest: download %s: status %d", src, resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "adcrawl-ingest-*"+path.Ext(u.Path))
	if err != nil {
		return "", nil, eris.Wrap(err, "ingest: create temp file")
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }
	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		cleanup()
		return "", nil, eris.Wrapf(err, "ingest: write %s", tmp.Name())
	}
	zap.L().Debug("ingest: downloaded source", zap.String("url", src), zap.Int64("bytes", n))
	return tmp.Name(), cleanup, nil
}

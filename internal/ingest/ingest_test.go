package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/adcrawl/internal/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func createXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				row.AddCell().SetString(cellData)
			}
		}
	}
	p := filepath.Join(t.TempDir(), "data.xlsx")
	require.NoError(t, f.Save(p))
	return p
}

func TestReadRows_CSV(t *testing.T) {
	p := writeFile(t, "domains.csv", "domain,active\n# comment\n acme.com , true\nshop.test\n")
	rows, err := ReadRows(context.Background(), p, Options{})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"domain", "active"}, {"acme.com", "true"}, {"shop.test"}}, rows)
}

func TestReadRows_XLSX(t *testing.T) {
	p := createXLSX(t, map[string][][]string{
		"Regions": {{"region"}, {"Vietnam"}, {"Germany"}},
	})
	rows, err := ReadRows(context.Background(), p, Options{})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"region"}, {"Vietnam"}, {"Germany"}}, rows)

	rows, err = ReadRows(context.Background(), p, Options{Sheet: "Regions"})
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	_, err = ReadRows(context.Background(), p, Options{Sheet: "Missing"})
	assert.Error(t, err)
}

func TestReadRows_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/domains.csv" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("acme.com\nshop.test,no\n"))
	}))
	defer srv.Close()

	rows, err := ReadRows(context.Background(), srv.URL+"/domains.csv", Options{Client: srv.Client()})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"acme.com"}, {"shop.test", "no"}}, rows)

	_, err = ReadRows(context.Background(), srv.URL+"/missing.csv", Options{Client: srv.Client()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestReadRows_MissingFile(t *testing.T) {
	_, err := ReadRows(context.Background(), filepath.Join(t.TempDir(), "nope.csv"), Options{})
	assert.Error(t, err)
}

func TestReadRows_Cancelled(t *testing.T) {
	p := writeFile(t, "domains.csv", strings.Repeat("acme.com\n", 10))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ReadRows(ctx, p, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDomains(t *testing.T) {
	rows := [][]string{
		{"domain", "active"},
		{"Acme.com", "true"},
		{"shop.test", "no"},
		{"acme.com", "false"},
		{""},
		{},
		{"other.test", "maybe"},
	}
	assert.Equal(t, []model.Domain{
		{Domain: "acme.com", Active: true},
		{Domain: "shop.test", Active: false},
		{Domain: "other.test", Active: true},
	}, Domains(rows))
}

func TestRegions(t *testing.T) {
	assert.Equal(t, []string{"Vietnam", " Germany "}, Regions([][]string{{"Region"}, {"Vietnam"}, {" Germany "}, {}}))
	assert.Equal(t, []string{"Vietnam"}, Regions([][]string{{"Vietnam"}}))
}

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/adcrawl/internal/store"
)

func resetCrawlFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		crawlDomain, crawlTerm, crawlURL, crawlLabel, crawlWebhook = "", "", "", "", ""
		crawlFormat, crawlWebhookMethod = "TEXT", "POST"
	})
}

func TestParseCrawlTarget_Domain(t *testing.T) {
	resetCrawlFlags(t)
	crawlDomain, crawlFormat = " acme.com ", "video"
	crawlWebhook = "https://hooks.test/x"

	target, err := parseCrawlTarget("https://ads.test")
	require.NoError(t, err)
	assert.False(t, target.probe)
	assert.Equal(t, "https://ads.test/?domain=acme.com&format=VIDEO&region=anywhere", target.seed.URL)
	assert.Equal(t, "SEARCH_PAGE", target.seed.Label)
	assert.Equal(t, "https://hooks.test/x", target.payload.Webhook)
}

func TestParseCrawlTarget_Term(t *testing.T) {
	resetCrawlFlags(t)
	crawlTerm, crawlFormat = "Acme", "IMAGE"

	target, err := parseCrawlTarget("https://ads.test")
	require.NoError(t, err)
	assert.Equal(t, "https://ads.test/?format=IMAGE&region=anywhere&term=Acme", target.seed.URL)
	assert.Equal(t, "Acme", target.payload.Term)
}

func TestParseCrawlTarget_URL(t *testing.T) {
	resetCrawlFlags(t)
	crawlURL, crawlLabel = "https://ads.test/advertiser/AR1/creative/CR1", "ADS_DETAIL"

	target, err := parseCrawlTarget("https://ads.test")
	require.NoError(t, err)
	assert.True(t, target.probe)
	assert.Equal(t, "ADS_DETAIL", target.seed.Label)
}

func TestParseCrawlTarget_Invalid(t *testing.T) {
	tests := []struct {
		name string
		set  func()
	}{
		{"no target", func() {}},
		{"domain and term", func() { crawlDomain, crawlTerm = "acme.com", "Acme" }},
		{"bad format", func() { crawlDomain, crawlFormat = "acme.com", "AUDIO" }},
		{"url with domain", func() { crawlURL, crawlDomain = "https://ads.test/", "acme.com" }},
		{"url with bad label", func() { crawlURL, crawlLabel = "https://ads.test/", "OTHER" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetCrawlFlags(t)
			tt.set()
			_, err := parseCrawlTarget("https://ads.test")
			assert.Error(t, err)
		})
	}
}

func TestImportAndExport_SQLite(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	dbPath := filepath.Join(dir, "adcrawl.db")
	t.Setenv("ADCRAWL_STORE_DRIVER", "sqlite")
	t.Setenv("ADCRAWL_STORE_DATABASE_URL", dbPath)
	t.Setenv("ADCRAWL_LOG_FORMAT", "console")

	csvPath := filepath.Join(dir, "domains.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("domain,active\nacme.com,true\nold.test,false\n"), 0644))
	regionsPath := filepath.Join(dir, "regions.csv")
	require.NoError(t, os.WriteFile(regionsPath, []byte("region\nVietnam\nGermany\n"), 0644))

	rootCmd.SetArgs([]string{"migrate"})
	require.NoError(t, rootCmd.Execute())

	rootCmd.SetArgs([]string{"domains", "import", csvPath})
	require.NoError(t, rootCmd.Execute())

	rootCmd.SetArgs([]string{"regions", "import", regionsPath})
	require.NoError(t, rootCmd.Execute())

	outPath := filepath.Join(dir, "out.xlsx")
	rootCmd.SetArgs([]string{"export", "--out", outPath})
	require.NoError(t, rootCmd.Execute())

	st, err := store.NewSQLite(dbPath)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	domains, err := st.GetAllActiveDomains(context.Background())
	require.NoError(t, err)
	require.Len(t, domains, 1)
	assert.Equal(t, "acme.com", domains[0].Domain)

	f, err := xlsx.OpenFile(outPath)
	require.NoError(t, err)
	sheet, ok := f.Sheet["creatives"]
	require.True(t, ok)
	require.Len(t, sheet.Rows, 1)
	assert.Equal(t, "code", sheet.Rows[0].Cells[0].String())
}

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"crawl", "serve", "worker", "jobs", "migrate", "export", "domains", "regions"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "adcrawl", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRootCommand_PersistentFlags(t *testing.T) {
	for _, name := range []string{"config", "log-level", "log-format"} {
		flag := rootCmd.PersistentFlags().Lookup(name)
		require.NotNil(t, flag, "root should have --%s flag", name)
		assert.Empty(t, flag.DefValue)
	}
	assert.NotNil(t, crawlCmd.InheritedFlags().Lookup("config"))
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adcrawl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: warn\n  format: json\nserver:\n  port: 8181\n"), 0o644))

	configPath, logLevel, logFormat = path, "debug", "console"
	t.Cleanup(func() { configPath, logLevel, logFormat = "", "", "" })

	c, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "console", c.Log.Format)
	assert.Equal(t, 8181, c.Server.Port)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	configPath = filepath.Join(t.TempDir(), "missing.yaml")
	t.Cleanup(func() { configPath = "" })

	_, err := loadConfig()
	assert.Error(t, err)
}

func TestCrawlCommand_Flags(t *testing.T) {
	for _, name := range []string{"domain", "term", "format", "url", "label", "webhook", "webhook-method"} {
		assert.NotNil(t, crawlCmd.Flags().Lookup(name), "crawl should have --%s flag", name)
	}
	assert.Equal(t, "TEXT", crawlCmd.Flags().Lookup("format").DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
	assert.NotNil(t, serveCmd.Flags().Lookup("no-jobs"))
}

func TestJobsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range jobsCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["submit"])
	assert.True(t, names["schedule"])

	for _, name := range []string{"domain", "name", "webhook", "webhook-method"} {
		assert.NotNil(t, jobsSubmitCmd.Flags().Lookup(name), "jobs submit should have --%s flag", name)
	}
}

func TestExportCommand_Flags(t *testing.T) {
	flag := exportCmd.Flags().Lookup("out")
	require.NotNil(t, flag)
	assert.Equal(t, "creatives.xlsx", flag.DefValue)
}

package rodbrowser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultFlags(t *testing.T) {
	f := DefaultFlags()
	assert.Equal(t, "no-user-gesture-required", f["autoplay-policy"])
	assert.Equal(t, "AutomationControlled", f["disable-blink-features"])
	assert.Contains(t, f, "disable-web-security")

	f["autoplay-policy"] = "changed"
	assert.Equal(t, "no-user-gesture-required", DefaultFlags()["autoplay-policy"], "each call returns a fresh map")
}

func TestNewManagerFlags(t *testing.T) {
	m := NewManager(Config{Headless: true})
	assert.Equal(t, DefaultFlags(), m.cfg.Flags)

	custom := map[string]string{"lang": "en-US"}
	m = NewManager(Config{Flags: custom})
	assert.Equal(t, custom, m.cfg.Flags)
}

func TestManagerClosed(t *testing.T) {
	m := NewManager(Config{})
	require.NoError(t, m.Close())

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manager is closed")

	_, err = m.NewPage(context.Background())
	assert.Error(t, err)
}

package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var got map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "acme.com", got["domain"])
		assert.Equal(t, "IMAGE", got["format"])
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient("secret")
	err := c.Send(context.Background(), srv.URL, "", map[string]string{"domain": "acme.com", "format": "IMAGE"})
	require.NoError(t, err)
}

func TestSend_CustomMethodWithoutToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient("", WithHTTPClient(srv.Client()))
	require.NoError(t, c.Send(context.Background(), srv.URL, "put", struct{}{}))
}

func TestSend_NonOKIsError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	err := NewClient("secret").Send(context.Background(), srv.URL, "POST", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream down")
}

func TestSend_InvalidInput(t *testing.T) {
	t.Parallel()

	c := NewClient("secret")
	assert.Error(t, c.Send(context.Background(), "", "POST", nil))
	assert.Error(t, c.Send(context.Background(), "http://example.test", "POST", func() {}))
	assert.Error(t, c.Send(context.Background(), "http://example.test", "BAD METHOD", nil))
}

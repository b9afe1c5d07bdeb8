package imagehost

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/dimitrije/shopfront-api/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(config.ImageHostConfig{URL: srv.URL + "/upload", Key: "k3y"}, nil)
	require.NoError(t, err)
	return c
}

func TestUpload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k3y", r.URL.Query().Get("key"))

		file, header, err := r.FormFile("image")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "avatar.png", header.Filename)
		assert.Equal(t, "PNGDATA", string(data))

		_, _ = w.Write([]byte(`{"data":{"url":"https://img.example.com/a.png"}}`))
	})

	u, err := c.Upload(context.Background(), "avatar.png", strings.NewReader("PNGDATA"))

	require.NoError(t, err)
	assert.Equal(t, "https://img.example.com/a.png", u)
}

func TestUpload_TopLevelURL(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"url":"https://img.example.com/b.png"}`))
	})

	u, err := c.Upload(context.Background(), "b.png", strings.NewReader("x"))

	require.NoError(t, err)
	assert.Equal(t, "https://img.example.com/b.png", u)
}

func TestUpload_SingleAttemptOnFailure(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusServiceUnavailable)
	})

	_, err := c.Upload(context.Background(), "a.png", strings.NewReader("x"))

	assert.ErrorIs(t, err, ErrUploadFailed)
	assert.Equal(t, int32(1), calls.Load())
}

func TestUpload_Rejects(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{}}`))
	})

	testCases := []struct {
		name string
		body io.Reader
	}{
		{"empty", strings.NewReader("")},
		{"too large", bytes.NewReader(make([]byte, MaxImageSize+1))},
		{"no url in response", strings.NewReader("x")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.Upload(context.Background(), "a.png", tc.body)
			assert.ErrorIs(t, err, ErrUploadFailed)
		})
	}
}

func TestNewClient_RequiresURL(t *testing.T) {
	_, err := NewClient(config.ImageHostConfig{}, nil)
	assert.Error(t, err)
}

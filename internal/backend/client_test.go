package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/dimitrije/shopfront-api/internal/config"
	"github.com/dimitrije/shopfront-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, rolePath string, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(config.BackendConfig{URL: srv.URL + "/", Timeout: 2 * time.Second, RolePath: rolePath}, nil)
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(config.BackendConfig{}, nil)
	assert.Error(t, err)

	_, err = NewClient(config.BackendConfig{URL: "http://backend", RolePath: "data.[role"}, nil)
	assert.Error(t, err)

	c, err := NewClient(config.BackendConfig{URL: "http://backend/"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "http://backend", c.baseURL)
	assert.Equal(t, "role", c.rolePath)
}

func TestFetchRole(t *testing.T) {
	c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/role/a@x.com", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		_ = json.NewEncoder(w).Encode(map[string]string{"role": " Admin "})
	})

	role, err := c.FetchRole(context.Background(), "a@x.com")

	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, role)
}

func TestFetchRole_NestedPath(t *testing.T) {
	c := newTestClient(t, "data.user.role", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"user":{"email":"e@x.com","role":"employee"}}}`))
	})

	role, err := c.FetchRole(context.Background(), "e@x.com")

	require.NoError(t, err)
	assert.Equal(t, models.RoleEmployee, role)
}

func TestFetchRole_Absent(t *testing.T) {
	testCases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"not found", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) }},
		{"null role", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"role":null}`)) }},
		{"missing field", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{}`)) }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, "role", tc.handler)

			role, err := c.FetchRole(context.Background(), "u@x.com")

			require.NoError(t, err)
			assert.Equal(t, models.RoleNone, role)
		})
	}
}

func TestFetchRole_Failures(t *testing.T) {
	testCases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) { http.Error(w, "boom", http.StatusInternalServerError) }},
		{"bad json", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{role`)) }},
		{"wrong type", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"role":42}`)) }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, "role", tc.handler)

			role, err := c.FetchRole(context.Background(), "u@x.com")

			assert.Error(t, err)
			assert.Equal(t, models.RoleNone, role)
		})
	}
}

func TestFetchRole_StatusError(t *testing.T) {
	c := newTestClient(t, "role", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})

	_, err := c.FetchRole(context.Background(), "u@x.com")

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Equal(t, "upstream down", statusErr.Body)
}

func TestFetchRole_HonoursContext(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, "role", func(w http.ResponseWriter, r *http.Request) {
		<-release
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.FetchRole(ctx, "slow@x.com")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResources_CRUD(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	c := newTestClient(t, "role", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Method+" "+r.URL.RequestURI())
		mu.Unlock()
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`[{"id":"p1","name":"Lamp"}]`))
		case http.MethodPost, http.MethodPatch:
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			_ = json.NewEncoder(w).Encode(body)
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		}
	}).As("tok")
	ctx := context.Background()

	var list []map[string]any
	require.NoError(t, c.List(ctx, Products, url.Values{"page": {"2"}}, &list))
	assert.Equal(t, "Lamp", list[0]["name"])

	var created map[string]any
	require.NoError(t, c.Create(ctx, Wishlist, map[string]string{"productId": "p1"}, &created))
	assert.Equal(t, "p1", created["productId"])

	require.NoError(t, c.Update(ctx, Orders, "o 1", map[string]string{"status": "shipped"}, nil))
	require.NoError(t, c.Delete(ctx, Compare, "p1"))
	require.NoError(t, c.UpdateUserPhoto(ctx, "me@x.com", "https://img/1.png"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"GET /products?page=2",
		"POST /wishlist",
		"PATCH /orders/o%201",
		"DELETE /compare/p1",
		"PATCH /users/me@x.com",
	}, seen)
}

func TestGet_NotFound(t *testing.T) {
	c := newTestClient(t, "role", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	err := c.Get(context.Background(), Products, "missing", &map[string]any{})

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseResource(t *testing.T) {
	r, ok := ParseResource(" Products ")
	assert.True(t, ok)
	assert.Equal(t, Products, r)
	assert.True(t, r.Public())

	_, ok = ParseResource("payments")
	assert.False(t, ok)
	assert.False(t, Orders.Public())
}

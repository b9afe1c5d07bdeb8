package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dimitrije/shopfront-api/internal/identity"
	"github.com/google/uuid"
)

const testSecret = "test-secret-key-for-testing-only"

// TestTokenIssuer signs tokens the way the server does, with a fixed secret.
func TestTokenIssuer() *identity.TokenIssuer {
	return identity.NewTokenIssuer(testSecret, 15*time.Minute, 24*time.Hour)
}

// GenerateTestToken returns an access token for userID.
func GenerateTestToken(t *testing.T, userID uuid.UUID, email string) string {
	t.Helper()
	pair, err := TestTokenIssuer().GenerateTokenPair(userID, email)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return pair.AccessToken
}

func AuthHeader(token string) string {
	return "Bearer " + token
}

// Bearer returns request headers carrying token.
func Bearer(token string) map[string]string {
	return map[string]string{"Authorization": AuthHeader(token)}
}

// SessionCookie returns request headers carrying a session cookie. An empty
// sid yields no headers, i.e. a client without a session.
func SessionCookie(name, sid string) map[string]string {
	if sid == "" {
		return nil
	}
	return map[string]string{"Cookie": (&http.Cookie{Name: name, Value: sid}).String()}
}

// ResponseCookie returns the value of the cookie set by the response, or "".
func ResponseCookie(rec *httptest.ResponseRecorder, name string) string {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// HTTPTestClient drives an http.Handler in-process.
type HTTPTestClient struct {
	t       *testing.T
	handler http.Handler
}

func NewHTTPTestClient(t *testing.T, handler http.Handler) *HTTPTestClient {
	return &HTTPTestClient{t: t, handler: handler}
}

// Request sends body as JSON unless it is nil.
func (c *HTTPTestClient) Request(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	c.t.Helper()

	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("failed to marshal request body: %v", err)
		}
		payload = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, payload)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	return rec
}

func (c *HTTPTestClient) GET(path string, headers map[string]string) *httptest.ResponseRecorder {
	return c.Request(http.MethodGet, path, nil, headers)
}

func (c *HTTPTestClient) POST(path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	return c.Request(http.MethodPost, path, body, headers)
}

func (c *HTTPTestClient) PATCH(path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	return c.Request(http.MethodPatch, path, body, headers)
}

func (c *HTTPTestClient) DELETE(path string, headers map[string]string) *httptest.ResponseRecorder {
	return c.Request(http.MethodDelete, path, nil, headers)
}

// ParseJSON decodes the response body into v.
func ParseJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response JSON: %v (body: %s)", err, rec.Body.String())
	}
}

// AssertJSON checks that the response has every key of expected with an equal value.
func AssertJSON(t *testing.T, rec *httptest.ResponseRecorder, expected map[string]any) {
	t.Helper()
	var actual map[string]any
	ParseJSON(t, rec, &actual)

	for key, want := range expected {
		got, ok := actual[key]
		if !ok {
			t.Errorf("expected key %q not found in response", key)
			continue
		}
		if got != want {
			t.Errorf("expected %q=%v, got %v", key, want, got)
		}
	}
}

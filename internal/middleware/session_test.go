package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dimitrije/shopfront-api/tests/testutil"
	"github.com/m1z23r/drift/pkg/drift"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSessionApp(t *testing.T) (http.Handler, *testutil.FakeIdentity, *testutil.MemoryStore) {
	t.Helper()
	idp := testutil.NewFakeIdentity()
	store := testutil.NewMemoryStore()

	app := drift.New()
	app.Use(Session(newRegistry(t, idp, store), CookieOptions{Name: testCookie, MaxAge: time.Hour}))
	app.Get("/whoami", func(c *drift.Context) {
		p := GetSession(c)
		state := AwaitSession(c, p, time.Second)
		email := ""
		if state.SignedIn() {
			email = state.Principal.Email
		}
		_ = c.JSON(http.StatusOK, map[string]string{"id": p.ID(), "email": email})
	})
	return app, idp, store
}

func TestSession_NewClientGetsCookie(t *testing.T) {
	app, _, _ := newSessionApp(t)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, testCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, 3600, cookies[0].MaxAge)

	var body map[string]string
	testutil.ParseJSON(t, rec, &body)
	assert.Equal(t, cookies[0].Value, body["id"])
	assert.Empty(t, body["email"])
}

func TestSession_KnownCookieIsReused(t *testing.T) {
	app, idp, store := newSessionApp(t)
	sid := testutil.SignedInSession(t, idp, store, idp.AddAccount("a@x.com", "password123"))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.AddCookie(&http.Cookie{Name: testCookie, Value: sid})
		rec := httptest.NewRecorder()
		app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Result().Cookies())

		var body map[string]string
		testutil.ParseJSON(t, rec, &body)
		assert.Equal(t, sid, body["id"])
		assert.Equal(t, "a@x.com", body["email"])
	}
}

func TestSession_UnknownCookieIsReplaced(t *testing.T) {
	app, _, _ := newSessionApp(t)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: testCookie, Value: "stale-id"})
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.NotEqual(t, "stale-id", cookies[0].Value)
}

func TestLogging_RecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/brew", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Contains(t, buf.String(), "status=418")
	assert.Contains(t, buf.String(), "path=/brew")
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dimitrije/shopfront-api/internal/identity"
	"github.com/dimitrije/shopfront-api/internal/session"
	"github.com/dimitrije/shopfront-api/tests/testutil"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCookie = "sid"

func generateTestToken(t *testing.T, issuer *identity.TokenIssuer, userID uuid.UUID, email string) string {
	t.Helper()
	pair, err := issuer.GenerateTokenPair(userID, email)
	require.NoError(t, err)
	return pair.AccessToken
}

func newRegistry(t *testing.T, idp session.Identity, store session.Store) *session.Registry {
	t.Helper()
	reg := session.NewRegistry(idp, store, session.RegistryOptions{})
	t.Cleanup(reg.Close)
	return reg
}

func newAuthApp(t *testing.T, issuer *identity.TokenIssuer, reg *session.Registry) http.Handler {
	t.Helper()
	app := drift.New()
	if reg != nil {
		app.Use(Session(reg, CookieOptions{Name: testCookie}))
	}
	app.Use(Auth(issuer, time.Second))
	app.Get("/protected", func(c *drift.Context) {
		_ = c.JSON(http.StatusOK, map[string]string{
			"user_id": GetUserID(c).String(),
			"email":   GetUserEmail(c),
			"token":   GetAccessToken(c),
		})
	})
	return app
}

func TestAuth_NoTokenNoSession(t *testing.T) {
	app := newAuthApp(t, testutil.TestTokenIssuer(), nil)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()

	app.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "not authenticated")
}

func TestAuth_InvalidAuthorizationFormat(t *testing.T) {
	app := newAuthApp(t, testutil.TestTokenIssuer(), nil)

	for _, header := range []string{"Token some-token", "Bearer", "Bearer "} {
		t.Run(header, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			req.Header.Set("Authorization", header)
			rec := httptest.NewRecorder()

			app.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), "invalid authorization header format")
		})
	}
}

func TestAuth_InvalidToken(t *testing.T) {
	app := newAuthApp(t, testutil.TestTokenIssuer(), nil)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer invalid-token")
	rec := httptest.NewRecorder()

	app.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid or expired token")
}

func TestAuth_ExpiredToken(t *testing.T) {
	issuer := identity.NewTokenIssuer("test-secret-key", time.Millisecond, 24*time.Hour)
	token := generateTestToken(t, issuer, uuid.New(), "test@example.com")

	time.Sleep(10 * time.Millisecond)

	app := newAuthApp(t, issuer, nil)
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	app.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid or expired token")
}

func TestAuth_WrongSecret(t *testing.T) {
	signer := identity.NewTokenIssuer("secret-1", 15*time.Minute, 24*time.Hour)
	verifier := identity.NewTokenIssuer("secret-2", 15*time.Minute, 24*time.Hour)
	token := generateTestToken(t, signer, uuid.New(), "test@example.com")

	app := newAuthApp(t, verifier, nil)
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	app.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_ValidToken(t *testing.T) {
	issuer := testutil.TestTokenIssuer()
	userID := uuid.New()
	token := generateTestToken(t, issuer, userID, "test@example.com")

	app := newAuthApp(t, issuer, nil)
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	app.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	testutil.ParseJSON(t, rec, &body)
	assert.Equal(t, userID.String(), body["user_id"])
	assert.Equal(t, "test@example.com", body["email"])
	assert.Equal(t, token, body["token"])
}

func TestAuth_BearerCaseInsensitive(t *testing.T) {
	issuer := testutil.TestTokenIssuer()
	token := generateTestToken(t, issuer, uuid.New(), "test@example.com")
	app := newAuthApp(t, issuer, nil)

	for _, bearer := range []string{"bearer", "BEARER", "BeArEr"} {
		t.Run(bearer, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			req.Header.Set("Authorization", bearer+" "+token)
			rec := httptest.NewRecorder()

			app.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func TestAuth_SignedInSession(t *testing.T) {
	idp := testutil.NewFakeIdentity()
	store := testutil.NewMemoryStore()
	p := idp.AddAccount("a@x.com", "secret-password")
	sid := testutil.SignedInSession(t, idp, store, p)

	app := newAuthApp(t, testutil.TestTokenIssuer(), newRegistry(t, idp, store))
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: testCookie, Value: sid})
	rec := httptest.NewRecorder()

	app.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	testutil.ParseJSON(t, rec, &body)
	assert.Equal(t, p.ID.String(), body["user_id"])
	assert.Equal(t, "a@x.com", body["email"])
	assert.NotEmpty(t, body["token"])
}

func TestAuth_AnonymousSession(t *testing.T) {
	idp := testutil.NewFakeIdentity()
	app := newAuthApp(t, testutil.TestTokenIssuer(), newRegistry(t, idp, testutil.NewMemoryStore()))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()

	app.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetUserID_NotSet(t *testing.T) {
	app := drift.New()

	var extractedUserID uuid.UUID
	var extractedEmail string

	app.Get("/test", func(c *drift.Context) {
		extractedUserID = GetUserID(c)
		extractedEmail = GetUserEmail(c)
		_ = c.JSON(http.StatusOK, nil)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()

	app.ServeHTTP(rec, req)

	assert.Equal(t, uuid.Nil, extractedUserID)
	assert.Empty(t, extractedEmail)
}

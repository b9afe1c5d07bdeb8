package handlers

import (
	"net/http/httptest"
	"testing"

	"github.com/dimitrije/shopfront-api/internal/middleware"
	"github.com/dimitrije/shopfront-api/internal/session"
	"github.com/dimitrije/shopfront-api/tests/testutil"
	"github.com/m1z23r/drift/pkg/drift"
)

const testCookie = "sid"

type testEnv struct {
	idp   *testutil.FakeIdentity
	store *testutil.MemoryStore
	reg   *session.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	e := &testEnv{
		idp:   testutil.NewFakeIdentity(),
		store: testutil.NewMemoryStore(),
	}
	e.reg = session.NewRegistry(e.idp, e.store, session.RegistryOptions{})
	t.Cleanup(e.reg.Close)
	return e
}

func (e *testEnv) session() drift.HandlerFunc {
	return middleware.Session(e.reg, middleware.CookieOptions{Name: testCookie})
}

// signIn returns a session id for a new signed-in account.
func (e *testEnv) signIn(t *testing.T, email string) string {
	t.Helper()
	return testutil.SignedInSession(t, e.idp, e.store, e.idp.AddAccount(email, "password123"))
}

func withCookie(sid string) map[string]string {
	return testutil.SessionCookie(testCookie, sid)
}

func sessionCookie(rec *httptest.ResponseRecorder) string {
	return testutil.ResponseCookie(rec, testCookie)
}

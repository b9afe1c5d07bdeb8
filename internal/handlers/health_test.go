package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/dimitrije/shopfront-api/tests/testutil"
	"github.com/m1z23r/drift/pkg/drift"
	"github.com/stretchr/testify/assert"
)

func TestHealthHandler_Check(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name   string
		checks map[string]Pinger
		status int
		want   map[string]interface{}
	}{
		{
			name:   "all healthy",
			checks: map[string]Pinger{"database": ok, "redis": ok},
			status: http.StatusOK,
			want:   map[string]interface{}{"status": "ok", "database": "ok", "redis": "ok"},
		},
		{
			name:   "redis down",
			checks: map[string]Pinger{"database": ok, "redis": down},
			status: http.StatusServiceUnavailable,
			want:   map[string]interface{}{"status": "degraded", "database": "ok", "redis": "connection refused"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := drift.New()
			app.Get("/health", NewHealthHandler(tt.checks).Check)
			client := testutil.NewHTTPTestClient(t, app)

			rec := client.GET("/health", nil)

			assert.Equal(t, tt.status, rec.Code)
			testutil.AssertJSON(t, rec, tt.want)
		})
	}
}

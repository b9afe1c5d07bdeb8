package handlers

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/dimitrije/shopfront-api/internal/middleware"
	"github.com/m1z23r/drift/pkg/drift"
)

var areaTmpl = template.Must(template.New("area").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Area}}</title>
</head>
<body>
    <h1>{{.Area}}</h1>
    <p>Signed in as {{.Name}} ({{.Email}}){{if .Role}}, role {{.Role}}{{end}}.</p>
    <form method="post" action="/api/v1/auth/signout"><button type="submit">Sign out</button></form>
</body>
</html>`))

// Area renders the landing page of a protected area. It only runs after a
// guard granted the request.
func Area(name string) drift.HandlerFunc {
	return func(c *drift.Context) {
		outcome, ok := middleware.GetOutcome(c)
		if !ok || outcome.Principal == nil {
			c.Forbidden("access denied")
			return
		}

		data := map[string]string{
			"Area":  name,
			"Name":  outcome.Principal.DisplayName,
			"Email": outcome.Principal.Email,
			"Role":  string(outcome.Role),
		}

		var buf bytes.Buffer
		if err := areaTmpl.Execute(&buf, data); err != nil {
			c.InternalServerError("failed to render page")
			return
		}
		_ = c.HTML(http.StatusOK, buf.String())
	}
}

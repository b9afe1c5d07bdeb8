package middleware

import (
	"bytes"
	"html/template"

	"github.com/m1z23r/drift/pkg/drift"
)

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    {{if .Refresh}}<meta http-equiv="refresh" content="1">{{end}}
    <style>
        body { font-family: system-ui, -apple-system, sans-serif; background: #f9fafb; color: #374151; margin: 0; padding: 40px 20px; }
        .container { max-width: 420px; margin: 0 auto; background: #fff; border: 1px solid #e5e7eb; border-radius: 8px; padding: 40px 32px; text-align: center; }
        h1 { font-size: 20px; font-weight: 600; color: #111827; margin: 0 0 8px 0; }
        p { color: #6b7280; font-size: 14px; }
        .btn { display: inline-block; background: #374151; color: #fff; border: none; border-radius: 4px; padding: 8px 16px; font-size: 13px; text-decoration: none; cursor: pointer; }
    </style>
</head>
<body>
    <div class="container">
        <h1>{{.Heading}}</h1>
        <p>{{.Message}}</p>
        {{if .BackButton}}<button class="btn" onclick="history.back()">Go Back</button>{{end}}
        {{if .RetryButton}}<a class="btn" href="">Try again</a>{{end}}
    </div>
</body>
</html>`))

type page struct {
	Title       string
	Heading     string
	Message     string
	Refresh     bool
	BackButton  bool
	RetryButton bool
}

func renderPage(c *drift.Context, status int, p page) {
	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, p); err != nil {
		c.InternalServerError("failed to render page")
		return
	}
	_ = c.HTML(status, buf.String())
}

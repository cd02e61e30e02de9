package handlers

import (
	"html/template"
	"net/http"
)

const (
	docsPath    = "/api/docs"
	openAPIPath = "/api/docs/openapi.json"
	apiTitle    = "Rain Platform API"
)

var swaggerPage = template.Must(template.New("swagger").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>{{.Title}} Documentation</title>
    <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5.10.0/swagger-ui.css">
    <style>
        html { box-sizing: border-box; overflow-y: scroll; }
        *, *:before, *:after { box-sizing: inherit; }
        body { margin:0; padding:0; }
    </style>
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5.10.0/swagger-ui-bundle.js"></script>
    <script>
        window.onload = function() {
            window.ui = SwaggerUIBundle({
                url: {{.SpecURL}},
                dom_id: '#swagger-ui',
                deepLinking: true,
                tryItOutEnabled: true,
                supportedSubmitMethods: ['get', 'post'],
                presets: [SwaggerUIBundle.presets.apis],
                layout: "BaseLayout"
            });
        };
    </script>
</body>
</html>`))

type swaggerData struct {
	Title   string
	SpecURL string
}

// SwaggerUI serves a Swagger UI page that loads the OpenAPI document at specURL
func SwaggerUI(title, specURL string) http.HandlerFunc {
	data := swaggerData{Title: title, SpecURL: specURL}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := swaggerPage.Execute(w, data); err != nil {
			http.Error(w, "failed to render docs", http.StatusInternalServerError)
		}
	}
}

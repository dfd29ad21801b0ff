// Package graphiql serves the GraphiQL explorer for a graphql endpoint.
package graphiql

import (
	"bytes"
	_ "embed"
	"net/http"
	"text/template"

	"github.com/rs/zerolog"
)

//go:embed graphiql.html
var graphiql string

var page = template.Must(template.New("graphiql").Parse(graphiql))

// New endpoint is the url where you have your graphql api hosted
func New(endpoint string) http.HandlerFunc {
	variables := struct {
		Route string
	}{
		Route: endpoint,
	}

	return func(w http.ResponseWriter, req *http.Request) {
		var buffer bytes.Buffer
		if err := page.Execute(&buffer, variables); err != nil {
			zerolog.Ctx(req.Context()).Error().Err(err).Msg("failed to render graphiql")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buffer.Bytes())
	}
}

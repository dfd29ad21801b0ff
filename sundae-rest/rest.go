// Package sundaerest provides REST API utilities with CORS support and common middleware.
package sundaerest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	sundaecli "github.com/SundaeSwap-finance/sundae-slides/sundae-cli"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/savaki/apigateway"
)

const shutdownTimeout = 10 * time.Second

func Middlewares(service sundaecli.Service, routes chi.Router) chi.Router {
	routes.Use(
		withEmbedPolicyHeaders,
		withCORS(),
		withLogger(sundaecli.Logger(service)),
		middleware.Recoverer,
	)
	return routes
}

func Webserver(service sundaecli.Service, routes chi.Router) error {
	return WebserverContext(context.Background(), service, routes)
}

// WebserverContext serves routes until ctx is cancelled. In console mode the
// server is shut down gracefully; in lambda mode ctx is ignored.
func WebserverContext(ctx context.Context, service sundaecli.Service, routes chi.Router) error {
	logger := sundaecli.Logger(service)

	if sundaecli.CommonOpts.Console {
		logger.Info().Int("port", sundaecli.CommonOpts.Port).Msg("starting http server")
		server := &http.Server{
			Addr:              fmt.Sprintf(":%v", sundaecli.CommonOpts.Port),
			Handler:           routes,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errs := make(chan error, 1)
		go func() { errs <- server.ListenAndServe() }()

		select {
		case err := <-errs:
			return err
		case <-ctx.Done():
			logger.Info().Msg("shutting down http server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return err
			}
			if err := <-errs; err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		}
	}

	lambda.Start(apigateway.Wrap(routes, sundaecli.CommonOpts.Env, service.Subpath))
	return nil
}

func CacheControl(handler http.HandlerFunc, maxAge int) http.HandlerFunc {
	value := fmt.Sprintf("max-age=%v", maxAge)
	return func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Cache-Control", value)
		handler.ServeHTTP(w, req)
	}
}

// JSON writes v as the response body with the given status.
func JSON(w http.ResponseWriter, req *http.Request, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		zerolog.Ctx(req.Context()).Error().Err(err).Msg("failed to marshal response")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// Error logs err and writes a JSON error body with the given status.
func Error(w http.ResponseWriter, req *http.Request, status int, err error) {
	zerolog.Ctx(req.Context()).Warn().Err(err).Str("path", req.URL.Path).Int("status", status).Msg("request failed")
	JSON(w, req, status, map[string]string{"error": err.Error()})
}

func withEmbedPolicyHeaders(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		header := w.Header()
		if req.Method == http.MethodGet && strings.HasSuffix(req.URL.Path, "/graphql") {
			handler.ServeHTTP(w, req)
			return
		}

		header.Add("cross-origin-embedder-policy", "require-corp")
		header.Add("cross-origin-opener-policy", "same-origin")
		header.Add("cross-origin-resource-policy", "cross-origin")
		handler.ServeHTTP(w, req)
	})
}

func withCORS() func(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
	})
}

func withLogger(logger zerolog.Logger) func(handler http.Handler) http.Handler {
	return func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := logger.WithContext(req.Context())
			req = req.WithContext(ctx)
			handler.ServeHTTP(w, req)
		})
	}
}

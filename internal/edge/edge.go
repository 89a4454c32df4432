// Package edge serves the open-access resolver function that the web app's
// proxy forwards to.
package edge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"vitalsup/internal/metrics"
	"vitalsup/internal/openaccess"
	"vitalsup/internal/proxy"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const maxBodyBytes = 64 << 10

// Resolver is the open-access lookup behind the function.
type Resolver interface {
	Resolve(ctx context.Context, input string) (*openaccess.Result, error)
}

type Options struct {
	// AllowedOrigins receive CORS headers; others get none.
	AllowedOrigins []string
	// APIKey, when set, must arrive in the apikey header.
	APIKey string
}

type Server struct {
	resolver Resolver
	logger   *zap.Logger
	opts     Options
	router   *mux.Router
	server   *http.Server
}

func NewServer(resolver Resolver, logger *zap.Logger, opts Options) *Server {
	s := &Server{
		resolver: resolver,
		logger:   logger,
		opts:     opts,
		router:   mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(s.cors)
	s.router.HandleFunc(proxy.FunctionPath, s.handlePreflight).Methods(http.MethodOptions)
	s.router.HandleFunc(proxy.FunctionPath, s.handleProcessArticle).Methods(http.MethodPost)
	s.router.HandleFunc(proxy.FunctionPath, s.handleMethodNotAllowed)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start launches the HTTP server
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.logger.Info("Resolver function listening", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		for _, allowed := range s.opts.AllowedOrigins {
			if origin != "" && origin == allowed {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")
				h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
				h.Add("Vary", "Origin")
				break
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", http.MethodPost)
	writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
}

func (s *Server) handleProcessArticle(w http.ResponseWriter, r *http.Request) {
	if s.opts.APIKey != "" && r.Header.Get("apikey") != s.opts.APIKey {
		writeError(w, http.StatusUnauthorized, "Invalid API key")
		return
	}

	if !strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		writeError(w, http.StatusBadRequest, "Content-Type must be application/json")
		return
	}

	var body struct {
		Input any `json:"input"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Request body must be valid JSON")
		return
	}
	input, ok := body.Input.(string)
	if !ok || input == "" {
		writeError(w, http.StatusBadRequest, "Request body must contain 'input' field with a string value")
		return
	}

	res, err := s.resolver.Resolve(r.Context(), input)
	if err != nil {
		s.handleResolveError(w, input, err)
		return
	}

	if res.IsOA {
		metrics.RecordLookup("open")
	} else {
		metrics.RecordLookup("closed")
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleResolveError(w http.ResponseWriter, input string, err error) {
	var upErr *openaccess.UpstreamError
	switch {
	case errors.Is(err, openaccess.ErrNoDOI):
		metrics.RecordLookup("no_doi")
		writeError(w, http.StatusBadRequest, "No valid DOI found in the input. Please provide a DOI or URL containing a DOI.")
	case errors.As(err, &upErr):
		metrics.RecordLookup("upstream_error")
		s.logger.Warn("Unpaywall rejected lookup", zap.Int("status", upErr.StatusCode))
		writeError(w, http.StatusBadGateway, upErr.Error())
	default:
		metrics.RecordLookup("error")
		s.logger.Error("Error processing article", zap.String("input", input), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

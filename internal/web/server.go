// Package web serves the reviewer-facing application: the triage and
// content-lab pages and the JSON routes behind them.
package web

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"net/http"
	"time"

	"vitalsup/internal/metrics"
	"vitalsup/internal/proxy"
	"vitalsup/internal/store"
	"vitalsup/internal/triage"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

// Finalizer commits a validated finalize plan.
type Finalizer interface {
	Finalize(ctx context.Context, entries []triage.Entry) (triage.Report, error)
}

// Forwarder relays open-access lookups to the resolver function.
type Forwarder interface {
	Configured() bool
	Forward(ctx context.Context, body []byte) (*proxy.Response, error)
}

type Options struct {
	// SessionMaxAge bounds how long an idle review session is kept.
	SessionMaxAge time.Duration
	// SecureCookies marks the session cookie Secure.
	SecureCookies bool
}

type Server struct {
	store     store.Store
	finalizer Finalizer
	proxy     Forwarder
	sessions  *triage.Sessions
	flash     *flashStore
	logger    *zap.Logger
	opts      Options
	pages     map[string]*template.Template
	router    *mux.Router
	server    *http.Server
}

func NewServer(st store.Store, fin Finalizer, fwd Forwarder, logger *zap.Logger, opts Options) *Server {
	s := &Server{
		store:     st,
		finalizer: fin,
		proxy:     fwd,
		sessions:  triage.NewSessions(opts.SessionMaxAge),
		flash:     newFlashStore(),
		logger:    logger,
		opts:      opts,
		pages:     parsePages("triage", "lab", "view"),
		router:    mux.NewRouter(),
	}
	s.routes()
	return s
}

func parsePages(names ...string) map[string]*template.Template {
	pages := make(map[string]*template.Template, len(names))
	for _, name := range names {
		pages[name] = template.Must(template.New("layout.html").Funcs(templateFuncs).
			ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html"))
	}
	return pages
}

var templateFuncs = template.FuncMap{
	"deref": func(v any) any {
		switch p := v.(type) {
		case *string:
			if p != nil {
				return *p
			}
		case *int:
			if p != nil {
				return *p
			}
		}
		return ""
	},
	"date": func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.Format("Jan 02, 2006")
	},
}

func (s *Server) routes() {
	// JSON API
	s.router.HandleFunc("/api/triage", s.handleFinalizeAPI).Methods(http.MethodPost)
	s.router.HandleFunc("/api/triage", s.handleTriageMethodNotAllowed)
	s.router.HandleFunc("/api/process-article", s.handleProcessArticle).Methods(http.MethodPost)
	s.router.HandleFunc("/api/process-article", s.handleProcessMethodNotAllowed)

	// Triage review
	s.router.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	s.router.HandleFunc("/triage", s.handleTriagePage).Methods(http.MethodGet)
	s.router.HandleFunc("/triage/finalize", s.handleTriageFinalize).Methods(http.MethodPost)
	s.router.HandleFunc("/triage/{id}/disposition", s.handleSetDisposition).Methods(http.MethodPost)
	s.router.HandleFunc("/triage/{id}/alternative-url", s.handleSetAlternativeURL).Methods(http.MethodPost)
	s.router.HandleFunc("/triage/{id}/edit", s.handleToggleEdit).Methods(http.MethodPost)

	// Content lab
	s.router.HandleFunc("/lab", s.handleLab).Methods(http.MethodGet)
	s.router.HandleFunc("/lab/lookup", s.handleLabLookup).Methods(http.MethodPost)
	s.router.HandleFunc("/view/{id}", s.handleView).Methods(http.MethodGet)

	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
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
		WriteTimeout: 45 * time.Second,
	}

	s.logger.Info("Web server listening", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/triage", http.StatusSeeOther)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// render buffers the page so a template error can still become a 500.
func (s *Server) render(w http.ResponseWriter, status int, page string, data any) {
	tmpl, ok := s.pages[page]
	if !ok {
		s.logger.Error("Unknown page", zap.String("page", page))
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		s.logger.Error("Template error", zap.String("page", page), zap.Error(err))
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

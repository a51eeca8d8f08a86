package receipt

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const serviceName = "amount-extractor"

// Server handles HTTP requests for amount extraction
type Server struct {
	service   *Service
	basicAuth BasicAuth
	version   string
	mux       *http.ServeMux
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with default mux
func NewServer(service *Service, basicAuth BasicAuth, version string) *Server {
	return NewServerWithMux(service, basicAuth, version, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, basicAuth BasicAuth, version string, mux *http.ServeMux) *Server {
	s := &Server{
		service:   service,
		basicAuth: basicAuth,
		version:   version,
		mux:       mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	return credentials[0] == s.basicAuth.Username && credentials[1] == s.basicAuth.Password
}

// corsMiddleware adds CORS headers to responses and answers preflight requests
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Amount Extractor"`)
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(w, r)
	}
}

// routes lists the methods served per fixed path; used to tell 404 from 405
var routes = map[string][]string{
	"/":                           {http.MethodGet},
	"/health":                     {http.MethodGet},
	"/metrics":                    {http.MethodGet},
	"/api/v1/extract/text":        {http.MethodPost},
	"/api/v1/extract/image":       {http.MethodPost},
	"/api/v1/extractions":         {http.MethodGet},
	"/api/v1/extractions/{}":      {http.MethodGet, http.MethodDelete},
	"/api/v1/extractions/{}/file": {http.MethodGet},
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	s.mux.HandleFunc("POST /api/v1/extract/text", s.requireAuth(s.handleExtractText))
	s.mux.HandleFunc("POST /api/v1/extract/image", s.requireAuth(s.handleExtractImage))

	s.mux.HandleFunc("GET /api/v1/extractions/{id}/file", s.requireAuth(s.handleGetExtractionFile))
	s.mux.HandleFunc("GET /api/v1/extractions/{id}", s.requireAuth(s.handleGetExtraction))
	s.mux.HandleFunc("DELETE /api/v1/extractions/{id}", s.requireAuth(s.handleDeleteExtraction))
	s.mux.HandleFunc("GET /api/v1/extractions", s.requireAuth(s.handleListExtractions))

	// Catch-all answers unknown paths and wrong methods with JSON
	s.mux.HandleFunc("/", s.handleFallback)
}

// allowedMethods returns the methods registered for a path, if any
func allowedMethods(path string) []string {
	if methods, ok := routes[path]; ok {
		return methods
	}
	rest, ok := strings.CutPrefix(path, "/api/v1/extractions/")
	if !ok || rest == "" {
		return nil
	}
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 1:
		return routes["/api/v1/extractions/{}"]
	case len(parts) == 2 && parts[0] != "" && parts[1] == "file":
		return routes["/api/v1/extractions/{}/file"]
	}
	return nil
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, s)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	corsMiddleware(s.mux).ServeHTTP(w, r)
}

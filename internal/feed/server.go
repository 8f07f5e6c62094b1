// Package feed serves generated articles as per-channel authenticated
// Atom feeds, plus an unauthenticated single-article permalink route.
package feed

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"time"

	. "github.com/roelfdiedericks/pail/internal/logging"
	"github.com/roelfdiedericks/pail/internal/store"
)

const maxFeedEntries = 50

// Config holds the settings needed to stand up the feed HTTP server.
type Config struct {
	ListenAddr      string
	Token           string // empty triggers auto-bootstrap via the store
	RateLimitPerMin int
	PublicBaseURL   string
}

// Server is pail's public-facing Atom feed HTTP server.
type Server struct {
	st     *store.Store
	cfg    Config
	token  string
	server *http.Server
}

// New builds a Server, resolving (and if necessary bootstrapping) the
// auth token from the store.
func New(st *store.Store, cfg Config) (*Server, error) {
	token, err := loadOrBootstrapToken(st, cfg.Token)
	if err != nil {
		return nil, err
	}
	s := &Server{st: st, cfg: cfg, token: token}

	mux := http.NewServeMux()
	mux.Handle("/feed/", authMiddleware(token, http.HandlerFunc(s.handleFeed)))
	mux.HandleFunc("/article/", s.handleArticle)

	limiter := newRateLimiter(cfg.RateLimitPerMin)
	var handler http.Handler = mux
	handler = limiter.middleware(handler)
	handler = logMiddleware(handler)
	handler = stripHeaders(handler)

	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		L_info("feed: listening", "addr", s.cfg.ListenAddr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		L_debug("feed: request", "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start).String())
	})
}

// stripHeaders sets the Server response header to a bare "pail", matching
// the minimal-fingerprint posture expected of a self-hosted daemon.
func stripHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "pail")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	if slug == "" {
		// net/http's ServeMux prefix routing doesn't give us path params
		// on older patterns; parse manually as a fallback.
		slug = lastPathSegmentTrimSuffix(r.URL.Path, "/feed/", ".atom")
	}

	ch, err := s.st.GetChannelBySlug(slug)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	articles, err := s.st.RecentArticles(ch.ID, maxFeedEntries)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	baseURL := requestBaseURL(r, s.cfg.PublicBaseURL)
	doc := buildAtomFeed(ch, articles, fmt.Sprintf("%s/feed/%s.atom", baseURL, ch.URLSlug), baseURL)

	w.Header().Set("Content-Type", "application/atom+xml; charset=utf-8")
	w.Write([]byte(xml.Header))
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		L_error("feed: write atom failed", "error", err)
	}
}

// requestBaseURL builds the scheme+host the feed is being served as,
// from the incoming request (honoring a reverse proxy's
// X-Forwarded-Proto), falling back to the configured public base URL
// when the request doesn't carry enough information (e.g. no Host
// header on a crafted request).
func requestBaseURL(r *http.Request, fallback string) string {
	host := r.Host
	if host == "" {
		return fallback
	}
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		if r.TLS != nil {
			scheme = "https"
		} else {
			scheme = "http"
		}
	}
	return fmt.Sprintf("%s://%s", scheme, host)
}

func (s *Server) handleArticle(w http.ResponseWriter, r *http.Request) {
	id := lastPathSegmentTrimSuffix(r.URL.Path, "/article/", "")
	article, err := s.st.GetArticle(id)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<!doctype html><title>%s</title>%s", article.Title, article.HTMLBody)
}

func lastPathSegmentTrimSuffix(path, prefix, suffix string) string {
	s := path
	if len(s) >= len(prefix) && s[:len(prefix)] == prefix {
		s = s[len(prefix):]
	}
	if suffix != "" && len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix {
		s = s[:len(s)-len(suffix)]
	}
	return s
}

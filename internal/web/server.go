package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/standupsite/site/internal/content"
	"github.com/standupsite/site/internal/deploy"
	"github.com/standupsite/site/internal/search"
	"github.com/standupsite/site/internal/storage"
)

// Invalidator drops cached query results for a document kind
type Invalidator interface {
	Invalidate(ctx context.Context, docType string) error
}

// Options wires the server's collaborators. DB, Index and Cache are optional.
type Options struct {
	Accessor         *content.Accessor
	DB               *storage.DB
	Index            *search.Index
	Cache            Invalidator
	DeployHook       *deploy.Hook
	RevalidateSecret string
}

type Server struct {
	accessor *content.Accessor
	db       *storage.DB
	idx      *search.Index
	cache    Invalidator
	hook     *deploy.Hook
	secret   string
}

func NewServer(opts Options) *Server {
	return &Server{
		accessor: opts.Accessor,
		db:       opts.DB,
		idx:      opts.Index,
		cache:    opts.Cache,
		hook:     opts.DeployHook,
		secret:   opts.RevalidateSecret,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/posts", listHandler(s.accessor.ListPosts))
	mux.HandleFunc("GET /api/posts/{slug}", s.handleGetPost)
	mux.HandleFunc("GET /api/reviews", listHandler(s.accessor.ListReviews))
	mux.HandleFunc("GET /api/shows", listHandler(s.accessor.ListShows))
	mux.HandleFunc("GET /api/podcasts", listHandler(s.accessor.ListPodcasts))
	mux.HandleFunc("GET /api/specials", listHandler(s.accessor.ListSpecials))
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("POST /api/revalidate", s.handleRevalidate)
	mux.HandleFunc("GET /health", s.handleHealth)

	return requestLogger(recoverer(mux))
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// listHandler serves an accessor's documents. Upstream failures map to 502
// so the site can render an empty list.
func listHandler[T any](list func(context.Context) ([]T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := list(r.Context())
		if err != nil {
			log.Error().Err(err).Str("path", r.URL.Path).Msg("content query failed")
			writeError(w, http.StatusBadGateway, "content store unavailable")
			return
		}
		if items == nil {
			items = []T{}
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	post, err := s.accessor.GetPost(r.Context(), r.PathValue("slug"))
	if errors.Is(err, content.ErrEmptySlug) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("get post failed")
		writeError(w, http.StatusBadGateway, "content store unavailable")
		return
	}
	if post == nil {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}
	writeJSON(w, http.StatusOK, post)
}

type searchResponse struct {
	Results []*search.SearchResult `json:"results"`
	Query   string                 `json:"query"`
	Count   int                    `json:"count"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.idx == nil {
		writeError(w, http.StatusServiceUnavailable, "search index not available")
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing q parameter")
		return
	}

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	results, err := s.idx.Search(query, limit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{Results: results, Query: query, Count: len(results)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":        "ok",
		"cache_enabled": s.cache != nil,
		"deploy_hook":   s.hook.Configured(),
	}
	if s.db != nil {
		if n, err := s.db.Count(); err == nil {
			resp["documents_in_db"] = n
		}
	}
	if s.idx != nil {
		if n, err := s.idx.Count(); err == nil {
			resp["documents_in_index"] = n
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

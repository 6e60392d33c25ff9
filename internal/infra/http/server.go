// Package http serves the operational surface of the bot: health and metrics
// endpoints, the platform webhook in webhook mode, and a small JWT-protected
// admin API over the archive.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"telegram-archive-bot/internal/config"
	"telegram-archive-bot/internal/domain/model"
	"telegram-archive-bot/internal/infra/logging"
	"telegram-archive-bot/internal/usecase"
)

type Server struct {
	archiveUC usecase.ArchiveUseCase
	auth      *AuthManager

	// webhook is mounted only in webhook mode; nil otherwise.
	webhook     http.Handler
	webhookPath string

	server *http.Server
	log    *zerolog.Logger
}

func NewServer(cfg *config.Config, archiveUC usecase.ArchiveUseCase, webhook http.Handler, logger *zerolog.Logger) *Server {
	s := &Server{
		archiveUC:   archiveUC,
		auth:        NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.Password, cfg.Admin.SessionTTL, !cfg.Runtime.Dev),
		webhook:     webhook,
		webhookPath: cfg.Bot.WebhookPath,
		log:         logger,
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Admin.Port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(traceID)
	r.Use(requestLog(s.log))
	r.Use(recoverPanic(s.log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	if s.webhook != nil {
		r.Method(http.MethodPost, s.webhookPath, s.webhook)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Post("/logout", s.handleLogout)
			r.Get("/stats", s.handleStats)
			r.Get("/search", s.handleSearch)
		})
	})
	return r
}

// Start blocks until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("http: listening")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the routing tree for tests.
func (s *Server) Handler() http.Handler { return s.server.Handler }

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.auth.ParseFromRequest(r); err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !s.auth.CheckPassword(req.Password) {
		logging.With(r.Context(), s.log).Warn().Msg("http: rejected admin login")
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	token, err := s.auth.Mint(w)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	s.auth.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.archiveUC.Stats(r.Context())
	if err != nil {
		logging.With(r.Context(), s.log).Error().Err(err).Msg("http: stats failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	chatID, err := strconv.ParseInt(r.URL.Query().Get("chat_id"), 10, 64)
	if err != nil {
		http.Error(w, "chat_id is required", http.StatusBadRequest)
		return
	}
	tag := r.URL.Query().Get("tag")
	if tag == "" {
		http.Error(w, "tag is required", http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	hits, err := s.archiveUC.Search(r.Context(), chatID, tag, limit)
	if err != nil {
		logging.With(r.Context(), s.log).Error().Err(err).Msg("http: search failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Data: toHits(hits), Total: len(hits)})
}

type searchResponse struct {
	Data  []hit `json:"data"`
	Total int   `json:"total"`
}

type hit struct {
	Text   string `json:"text"`
	Author string `json:"author"`
}

func toHits(in []*model.SearchHit) []hit {
	out := make([]hit, 0, len(in))
	for _, h := range in {
		out = append(out, hit{Text: h.Text, Author: h.Author})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Command engagementd serves the engagement API: like toggles, cached feed
// pages, highlights, a consistency health probe, and a websocket fan-out of
// realtime like counts.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/suplatzigram/go-engagement-cache/feed"
	"github.com/suplatzigram/go-engagement-cache/highlight"
	"github.com/suplatzigram/go-engagement-cache/pkg/config"
	"github.com/suplatzigram/go-engagement-cache/pkg/di"
	"github.com/suplatzigram/go-engagement-cache/realtime"
	"github.com/suplatzigram/go-engagement-cache/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("engagementd exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML configuration")
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := di.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer container.Close()

	hub := realtime.NewHub(log)
	if ch := container.Channel(); ch != nil {
		go func() {
			if err := ch.Subscribe(ctx, hub.Broadcast); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("realtime subscription ended", "error", err)
			}
		}()
	}

	srv := &server{
		container: container,
		hub:       hub,
		log:       log,
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      srv.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("engagementd listening",
			"address", cfg.Server.Address,
			"redis_backed", container.RedisBacked(),
			"durable", container.Feed() != nil)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", "error", err)
	}
	return nil
}

type server struct {
	container *di.Container
	hub       *realtime.Hub
	log       *slog.Logger
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/posts", s.handleCreatePost)
	mux.HandleFunc("POST /api/posts/{id}/toggle-like", s.handleToggle)
	mux.HandleFunc("GET /api/feed/{name}", s.handleFeed)
	mux.HandleFunc("POST /api/highlights", s.handlePin)
	mux.HandleFunc("DELETE /api/highlights/{handle}/{position}", s.handleUnpin)
	mux.HandleFunc("GET /api/highlights/{handle}", s.handleHighlights)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /ws", s.hub)
	return mux
}

type createPostRequest struct {
	AuthorID     string `json:"author_id"`
	AuthorHandle string `json:"author_handle"`
	ImageRef     string `json:"image_ref"`
	Caption      string `json:"caption"`
}

// handleCreatePost publishes a post and purges every feed surface: a new post
// changes the first page of all of them.
func (s *server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	posts := s.container.Posts()
	if posts == nil {
		httpError(w, http.StatusServiceUnavailable, "no durable store configured")
		return
	}

	var req createPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.AuthorID == "" || req.AuthorHandle == "" || req.ImageRef == "" {
		httpError(w, http.StatusBadRequest, "author_id, author_handle and image_ref required")
		return
	}

	post := &store.Post{
		ID:           uuid.New().String(),
		AuthorID:     req.AuthorID,
		AuthorHandle: req.AuthorHandle,
		ImageRef:     req.ImageRef,
		Caption:      req.Caption,
		CreatedAt:    time.Now().UTC(),
	}
	if err := posts.Create(r.Context(), post); err != nil {
		s.log.Error("post create failed", "error", err)
		httpError(w, http.StatusInternalServerError, "post not created")
		return
	}

	if report := s.container.Coordinator().OnPostCreated(r.Context()); !report.Ok() {
		s.log.Warn("post invalidation incomplete", "post_id", post.ID, "error", report.Err())
	}
	writeJSON(w, http.StatusCreated, post)
}

// handleToggle flips the caller's like on a post: atomic counter mutation,
// cache invalidation fan-out, then write-behind durability.
func (s *server) handleToggle(w http.ResponseWriter, r *http.Request) {
	postID := r.PathValue("id")
	sessionID := r.Header.Get("X-Session-ID")
	if sessionID == "" {
		httpError(w, http.StatusBadRequest, "X-Session-ID header required")
		return
	}

	result, err := s.container.Counters().Toggle(r.Context(), postID, sessionID)
	if err != nil {
		s.log.Error("toggle failed", "post_id", postID, "error", err)
		httpError(w, http.StatusServiceUnavailable, "counter store unavailable")
		return
	}

	if report := s.container.Coordinator().OnLikeToggled(r.Context()); !report.Ok() {
		s.log.Warn("toggle invalidation incomplete", "post_id", postID, "error", report.Err())
	}
	if bridge := s.container.Bridge(); bridge != nil {
		bridge.EnqueueLike(postID, sessionID, result.Liked, result.Count)
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *server) handleFeed(w http.ResponseWriter, r *http.Request) {
	svc := s.container.Feed()
	if svc == nil {
		httpError(w, http.StatusServiceUnavailable, "no durable store configured")
		return
	}

	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 20)
	page, err := svc.Page(r.Context(), r.PathValue("name"), offset, limit)
	if err != nil {
		if errors.Is(err, feed.ErrUnknownFeed) {
			httpError(w, http.StatusNotFound, err.Error())
			return
		}
		s.log.Error("feed page failed", "error", err)
		httpError(w, http.StatusInternalServerError, "feed unavailable")
		return
	}

	// Overlay the caller's own liked flags when a session is identified.
	resp := feedResponse{Page: page}
	if sessionID := r.Header.Get("X-Session-ID"); sessionID != "" {
		ids := make([]string, len(page.Posts))
		for i, p := range page.Posts {
			ids[i] = p.ID
		}
		if liked, err := s.container.Counters().Liked(r.Context(), ids, sessionID); err == nil {
			resp.Liked = liked
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type feedResponse struct {
	Page  any             `json:"page"`
	Liked map[string]bool `json:"liked,omitempty"`
}

func (s *server) handlePin(w http.ResponseWriter, r *http.Request) {
	svc := s.container.Highlights()
	if svc == nil {
		httpError(w, http.StatusServiceUnavailable, "no durable store configured")
		return
	}

	var req highlight.PinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := svc.Pin(r.Context(), req); err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicatePost):
			httpError(w, http.StatusConflict, "post already highlighted")
		default:
			httpError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleUnpin(w http.ResponseWriter, r *http.Request) {
	svc := s.container.Highlights()
	if svc == nil {
		httpError(w, http.StatusServiceUnavailable, "no durable store configured")
		return
	}

	position, err := strconv.Atoi(r.PathValue("position"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "position must be an integer")
		return
	}
	if err := svc.Unpin(r.Context(), r.PathValue("handle"), position); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleHighlights(w http.ResponseWriter, r *http.Request) {
	svc := s.container.Highlights()
	if svc == nil {
		httpError(w, http.StatusServiceUnavailable, "no durable store configured")
		return
	}

	highlights, err := svc.List(r.Context(), r.PathValue("handle"))
	if err != nil {
		s.log.Error("highlight list failed", "error", err)
		httpError(w, http.StatusInternalServerError, "highlights unavailable")
		return
	}
	writeJSON(w, http.StatusOK, highlights)
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	svc := s.container.Feed()
	if svc == nil {
		// Memory mode still reports liveness.
		writeJSON(w, http.StatusOK, map[string]any{
			"healthy":      true,
			"redis_backed": s.container.RedisBacked(),
			"durable":      false,
		})
		return
	}

	h := svc.CheckHealth(r.Context())
	status := http.StatusOK
	if !h.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encoding failed", "error", err)
	}
}

func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

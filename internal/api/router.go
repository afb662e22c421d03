package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jimsug/mtg-signal-bot/internal/api/response"
	"github.com/jimsug/mtg-signal-bot/internal/storage"
	"github.com/jimsug/mtg-signal-bot/internal/version"
)

// setupRoutes configures all admin API routes.
func (s *Server) setupRoutes() {
	// Health check endpoint (no versioning)
	s.router.Get("/health", s.healthCheck)

	// API v1 routes
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Route("/bans", func(r chi.Router) {
			r.Get("/", s.listBans)
			r.Post("/", s.banUser)
			r.Delete("/{userID}", s.unbanUser)
		})

		r.Route("/usage", func(r chi.Router) {
			r.Get("/", s.usageLog)
			r.Get("/suspicious", s.suspiciousUsers)
		})

		r.Route("/cache", func(r chi.Router) {
			r.Get("/stats", s.cacheStats)
			r.Post("/purge", s.purgeExpired)
			r.Delete("/", s.purgeAll)
			r.Delete("/{key}", s.purgeOne)
		})

		r.Get("/stats", s.overviewStats)
	})
}

// healthCheck returns server health status.
func (s *Server) healthCheck(w http.ResponseWriter, _ *http.Request) {
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "mtg-signal-bot-admin",
		"version": version.GetVersion(),
	})
}

// listBans returns all banned users.
func (s *Server) listBans(w http.ResponseWriter, r *http.Request) {
	bans, err := s.usage.BannedUsers(r.Context())
	if err != nil {
		response.InternalError(w, err)
		return
	}
	response.Success(w, bans)
}

// banRequest is the POST /bans payload.
type banRequest struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

// banUser bans a user. Banning an already banned user refreshes the
// record.
func (s *Server) banUser(w http.ResponseWriter, r *http.Request) {
	var req banRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, err)
		return
	}
	if req.UserID == "" {
		response.BadRequest(w, errors.New("user_id is required"))
		return
	}

	if err := s.usage.Ban(r.Context(), req.UserID, req.Reason, time.Now()); err != nil {
		response.InternalError(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, map[string]string{"user_id": req.UserID})
}

// unbanUser lifts a ban. Unbanning an unknown user is a 404.
func (s *Server) unbanUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		response.BadRequest(w, errors.New("user ID is required"))
		return
	}

	removed, err := s.usage.Unban(r.Context(), userID)
	if err != nil {
		response.InternalError(w, err)
		return
	}
	if !removed {
		response.NotFound(w, errors.New("user is not banned"))
		return
	}
	response.NoContent(w)
}

// usageLog returns the paginated lookup log, optionally filtered by user.
func (s *Server) usageLog(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")

	page := 1
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}
	pageSize := 50
	if ps, err := strconv.Atoi(r.URL.Query().Get("page_size")); err == nil && ps > 0 && ps <= 500 {
		pageSize = ps
	}

	events, total, err := s.usage.UsageLog(r.Context(), userID, page, pageSize)
	if err != nil {
		response.InternalError(w, err)
		return
	}
	response.Paginated(w, events, page, pageSize, int(total))
}

// suspiciousUsers returns users over the burst threshold right now.
func (s *Server) suspiciousUsers(w http.ResponseWriter, r *http.Request) {
	threshold := storage.DefaultSuspiciousThreshold
	if t, err := strconv.Atoi(r.URL.Query().Get("threshold")); err == nil && t > 0 {
		threshold = t
	}
	window := storage.DefaultSuspiciousWindow
	if ws := r.URL.Query().Get("window"); ws != "" {
		d, err := time.ParseDuration(ws)
		if err != nil {
			response.BadRequest(w, err)
			return
		}
		window = d
	}

	users, err := s.usage.SuspiciousUsers(r.Context(), threshold, window, time.Now())
	if err != nil {
		response.InternalError(w, err)
		return
	}
	response.Success(w, users)
}

// cacheStats returns entry counts for the card cache.
func (s *Server) cacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.cache.Stats(r.Context(), time.Now())
	if err != nil {
		response.InternalError(w, err)
		return
	}
	response.Success(w, stats)
}

// purgeExpired sweeps expired cache entries immediately.
func (s *Server) purgeExpired(w http.ResponseWriter, r *http.Request) {
	if s.scheduler != nil {
		if err := s.scheduler.TriggerPurge(); err != nil {
			response.InternalError(w, err)
			return
		}
		response.JSON(w, http.StatusAccepted, map[string]string{"status": "purge scheduled"})
		return
	}

	removed, err := s.cache.PurgeExpired(r.Context(), time.Now())
	if err != nil {
		response.InternalError(w, err)
		return
	}
	response.Success(w, map[string]int64{"removed": removed})
}

// purgeAll drops every cache entry.
func (s *Server) purgeAll(w http.ResponseWriter, r *http.Request) {
	removed, err := s.cache.PurgeAll(r.Context())
	if err != nil {
		response.InternalError(w, err)
		return
	}
	response.Success(w, map[string]int64{"removed": removed})
}

// purgeOne drops a single cache entry by key.
func (s *Server) purgeOne(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		response.BadRequest(w, errors.New("cache key is required"))
		return
	}

	removed, err := s.cache.PurgeOne(r.Context(), key)
	if err != nil {
		response.InternalError(w, err)
		return
	}
	if !removed {
		response.NotFound(w, errors.New("no such cache entry"))
		return
	}
	response.NoContent(w)
}

// overviewStats returns the dashboard summary.
func (s *Server) overviewStats(w http.ResponseWriter, r *http.Request) {
	now := time.Now()

	lookupsToday, err := s.usage.TotalLookupsToday(r.Context(), now)
	if err != nil {
		response.InternalError(w, err)
		return
	}
	cacheStats, err := s.cache.Stats(r.Context(), now)
	if err != nil {
		response.InternalError(w, err)
		return
	}
	bans, err := s.usage.BannedUsers(r.Context())
	if err != nil {
		response.InternalError(w, err)
		return
	}

	response.Success(w, map[string]interface{}{
		"lookups_today": lookupsToday,
		"cache":         cacheStats,
		"banned_users":  len(bans),
	})
}

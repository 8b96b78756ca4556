package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Sarthak-Sama/CodeHours/internal/auth"
	"github.com/Sarthak-Sama/CodeHours/internal/dailystats"
	"github.com/Sarthak-Sama/CodeHours/internal/tracker"
)

const (
	serviceTimeout      = 10 * time.Second
	maxLogPayloadBytes  = 64 << 10 // 64KB
	defaultStatsPeriod  = "daily"
	defaultWidgetWindow = "total"
)

type handler struct {
	service *tracker.Service
}

type logTimeRequest struct {
	Token      string     `json:"token"`
	Language   string     `json:"language"`
	StartTime  *time.Time `json:"startTime"`
	EndTime    *time.Time `json:"endTime"`
	InstanceID string     `json:"instanceId"`
}

type fetchUserRequest struct {
	UserID string `json:"userId"`
}

type updateAboutRequest struct {
	UserID  string `json:"userId"`
	Content string `json:"content"`
}

// leaderboardEntry trims the user document down to public fields. The full
// document carries the capability token, which must never leave the owner's
// own responses.
type leaderboardEntry struct {
	UserID    string        `json:"userId"`
	Username  string        `json:"username"`
	Fullname  string        `json:"fullname"`
	PfpURL    string        `json:"pfpUrl"`
	DailyTime int64         `json:"daily_time"`
	TotalTime int64         `json:"total_time"`
	Level     tracker.Level `json:"level"`
}

type activityDay struct {
	Date      string `json:"date"`
	TotalTime int64  `json:"total_time"`
}

// RegisterRoutes mounts the tracker API. Profile mutations sit behind the
// Clerk middleware; the extension endpoints authenticate with the capability
// token carried in the request itself.
func RegisterRoutes(r chi.Router, svc *tracker.Service, verifier auth.Verifier) {
	h := &handler{service: svc}

	r.Route("/api", func(r chi.Router) {
		r.Post("/logTime", h.logTime)
		r.Get("/stats", h.stats)
		r.Get("/dailyTime", h.dailyTime)
		r.Get("/leaderboard", h.leaderboard)
		r.Get("/activityData", h.activityData)
		r.Get("/codingTime", h.codingTime)
		r.Post("/fetchUser", h.fetchUser)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(verifier))
			r.Post("/updateAboutSection", h.updateAboutSection)
		})
	})
}

func (h *handler) logTime(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxLogPayloadBytes)

	var req logTimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	if req.StartTime == nil || req.EndTime == nil {
		writeError(w, http.StatusBadRequest, "startTime and endTime are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	user, err := h.service.SubmitInterval(ctx, req.Token, req.Language, *req.StartTime, *req.EndTime, req.InstanceID)
	if err != nil {
		respondTrackerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Time logged successfully",
		"user":    user,
	})
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	period := r.URL.Query().Get("period")
	if period == "" {
		period = defaultStatsPeriod
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	total, err := h.service.GetStats(ctx, token, period)
	if err != nil {
		respondTrackerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"time": total})
}

func (h *handler) dailyTime(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	total, err := h.service.DailyTotal(ctx, token)
	if err != nil {
		respondTrackerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"daily_time": total})
}

func (h *handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	users, err := h.service.Leaderboard(ctx)
	if err != nil {
		respondTrackerError(w, err)
		return
	}

	entries := make([]leaderboardEntry, 0, len(users))
	for _, u := range users {
		entries = append(entries, leaderboardEntry{
			UserID:    u.UserID,
			Username:  u.Username,
			Fullname:  u.Fullname,
			PfpURL:    u.PfpURL,
			DailyTime: u.DailyTime,
			TotalTime: u.TotalTime,
			Level:     u.Level,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": entries})
}

func (h *handler) activityData(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	buckets, err := h.service.ActivityHistory(ctx, userID)
	if err != nil {
		respondTrackerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Activity data fetched successfully",
		"data":    activityDays(buckets),
	})
}

func (h *handler) codingTime(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("user")
	if username == "" {
		writeError(w, http.StatusBadRequest, "user is required")
		return
	}
	timespan := r.URL.Query().Get("timespan")
	if timespan == "" {
		timespan = defaultWidgetWindow
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	stats, err := h.service.CodingActivity(ctx, username, timespan)
	if err != nil {
		respondTrackerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handler) fetchUser(w http.ResponseWriter, r *http.Request) {
	var req fetchUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	user, err := h.service.FetchUser(ctx, req.UserID)
	if err != nil {
		respondTrackerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (h *handler) updateAboutSection(w http.ResponseWriter, r *http.Request) {
	var req updateAboutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	caller, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if caller.UserID != req.UserID {
		writeError(w, http.StatusForbidden, "cannot edit another user's profile")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	about, err := h.service.UpdateAbout(ctx, req.UserID, req.Content)
	if err != nil {
		respondTrackerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "About section updated successfully",
		"about":   about,
	})
}

func activityDays(buckets []dailystats.Bucket) []activityDay {
	days := make([]activityDay, 0, len(buckets))
	for _, bucket := range buckets {
		days = append(days, activityDay{
			Date:      bucket.Date.Format("2006-01-02"),
			TotalTime: bucket.TotalTime,
		})
	}
	return days
}

func respondTrackerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tracker.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, tracker.ErrInvalidInterval), errors.Is(err, tracker.ErrInvalidPeriod):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, tracker.ErrTransient):
		writeError(w, http.StatusServiceUnavailable, "temporarily unable to apply update, retry")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

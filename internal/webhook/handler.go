package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	svix "github.com/svix/svix-webhooks/go"

	"github.com/Sarthak-Sama/CodeHours/internal/logging"
	"github.com/Sarthak-Sama/CodeHours/internal/tracker"
)

const (
	maxPayloadBytes = 256 << 10 // Clerk payloads are small; anything larger is abuse
	serviceTimeout  = 10 * time.Second
)

// Handler receives Clerk lifecycle events and mirrors them into user aggregates.
type Handler struct {
	service *tracker.Service
	wh      *svix.Webhook
	logger  *slog.Logger
}

// NewHandler wires a webhook handler. The signing secret is the Clerk
// endpoint secret (whsec_...); requests failing signature verification are
// rejected before any event is processed.
func NewHandler(svc *tracker.Service, signingSecret string, logger *slog.Logger) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("tracker service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var wh *svix.Webhook
	if signingSecret != "" {
		var err error
		wh, err = svix.NewWebhook(signingSecret)
		if err != nil {
			return nil, fmt.Errorf("svix webhook: %w", err)
		}
	}

	return &Handler{service: svc, wh: wh, logger: logger}, nil
}

// RegisterRoutes mounts the Clerk webhook endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/clerk", h.handleClerk)
}

type event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type userData struct {
	ID             string         `json:"id"`
	Username       *string        `json:"username"`
	FirstName      string         `json:"first_name"`
	LastName       string         `json:"last_name"`
	ImageURL       string         `json:"image_url"`
	EmailAddresses []emailAddress `json:"email_addresses"`
}

type emailAddress struct {
	EmailAddress string `json:"email_address"`
}

func (h *Handler) handleClerk(w http.ResponseWriter, r *http.Request) {
	logger := logging.WithRequestID(r.Context(), h.logger)

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		http.Error(w, "unable to read payload", http.StatusBadRequest)
		return
	}

	if h.wh != nil {
		if err := h.wh.Verify(payload, r.Header); err != nil {
			logger.Warn("clerk webhook signature rejected", slog.String("error", err.Error()))
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	var evt event
	if err := json.Unmarshal(payload, &evt); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	if err := h.processEvent(ctx, evt); err != nil {
		logger.Error("clerk webhook processing failed",
			slog.String("type", evt.Type),
			slog.String("error", err.Error()))
		http.Error(w, "webhook processing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"message": "Webhook processed",
	})
}

// processEvent dispatches a verified event. Unknown event types are
// acknowledged without action so Clerk does not retry them forever.
func (h *Handler) processEvent(ctx context.Context, evt event) error {
	switch evt.Type {
	case "user.created":
		return h.userCreated(ctx, evt.Data)
	case "user.updated":
		return h.userUpdated(ctx, evt.Data)
	case "user.deleted":
		return h.userDeleted(ctx, evt.Data)
	default:
		logging.WithRequestID(ctx, h.logger).Info("ignoring clerk event", slog.String("type", evt.Type))
		return nil
	}
}

func (h *Handler) userCreated(ctx context.Context, data json.RawMessage) error {
	var user userData
	if err := json.Unmarshal(data, &user); err != nil {
		return fmt.Errorf("decode user.created: %w", err)
	}
	if user.ID == "" {
		return errors.New("user.created event without user id")
	}

	created, err := h.service.CreateUser(ctx, tracker.NewUserInput{
		UserID:   user.ID,
		Username: usernameFor(user),
		Fullname: fullnameFor(user),
		PfpURL:   user.ImageURL,
	})
	if err != nil {
		return fmt.Errorf("provision user %s: %w", user.ID, err)
	}

	logging.WithRequestID(ctx, h.logger).Info("user provisioned",
		slog.String("user_id", created.UserID),
		slog.String("username", created.Username))
	return nil
}

func (h *Handler) userUpdated(ctx context.Context, data json.RawMessage) error {
	var user userData
	if err := json.Unmarshal(data, &user); err != nil {
		return fmt.Errorf("decode user.updated: %w", err)
	}
	if user.ID == "" {
		return errors.New("user.updated event without user id")
	}

	patch := tracker.IdentityPatch{}
	if user.Username != nil && *user.Username != "" {
		patch.Username = user.Username
	}
	if name := fullnameFor(user); name != "" {
		patch.Fullname = &name
	}
	if user.ImageURL != "" {
		patch.PfpURL = &user.ImageURL
	}

	err := h.service.UpdateUserIdentity(ctx, user.ID, patch)
	if errors.Is(err, tracker.ErrUserNotFound) {
		// Updated before created can happen when webhooks race; provision instead.
		return h.userCreated(ctx, data)
	}
	return err
}

func (h *Handler) userDeleted(ctx context.Context, data json.RawMessage) error {
	var user userData
	if err := json.Unmarshal(data, &user); err != nil {
		return fmt.Errorf("decode user.deleted: %w", err)
	}
	if user.ID == "" {
		return errors.New("user.deleted event without user id")
	}

	err := h.service.DeleteUser(ctx, user.ID)
	if errors.Is(err, tracker.ErrUserNotFound) {
		return nil
	}
	return err
}

// usernameFor prefers the Clerk username and otherwise derives one from the
// name with a random numeric suffix to dodge collisions.
func usernameFor(user userData) string {
	if user.Username != nil && *user.Username != "" {
		return *user.Username
	}

	base := strings.ToLower(strings.ReplaceAll(user.FirstName+user.LastName, " ", ""))
	if base == "" && len(user.EmailAddresses) > 0 {
		if at := strings.Index(user.EmailAddresses[0].EmailAddress, "@"); at > 0 {
			base = user.EmailAddresses[0].EmailAddress[:at]
		}
	}
	if base == "" {
		base = "coder"
	}
	return fmt.Sprintf("%s%04d", base, rand.Intn(10000))
}

func fullnameFor(user userData) string {
	name := strings.TrimSpace(strings.TrimSpace(user.FirstName) + " " + strings.TrimSpace(user.LastName))
	if name == "" {
		return "Anonymous"
	}
	return name
}

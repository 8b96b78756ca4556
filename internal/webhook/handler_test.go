package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Sarthak-Sama/CodeHours/internal/dailystats"
	"github.com/Sarthak-Sama/CodeHours/internal/tracker"
)

func newTestHandler(t *testing.T) (*Handler, *tracker.Service) {
	t.Helper()

	svc, err := tracker.NewService(
		tracker.NewMemoryRepository(),
		dailystats.NewMemoryStore(time.UTC),
		tracker.NewSystemClock(),
		tracker.NewUUIDGenerator(),
		tracker.NewHexTokenGenerator(),
		tracker.Config{},
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h, err := NewHandler(svc, "", logger)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return h, svc
}

func rawEvent(t *testing.T, eventType string, data any) event {
	t.Helper()
	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal event data: %v", err)
	}
	return event{Type: eventType, Data: payload}
}

func TestUserCreatedProvisionsAggregate(t *testing.T) {
	h, svc := newTestHandler(t)

	username := "alice"
	evt := rawEvent(t, "user.created", map[string]any{
		"id":         "user-1",
		"username":   &username,
		"first_name": "Alice",
		"last_name":  "Doe",
		"image_url":  "https://img.example/alice.png",
	})

	if err := h.processEvent(context.Background(), evt); err != nil {
		t.Fatalf("processEvent: %v", err)
	}

	user, err := svc.FetchUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("FetchUser: %v", err)
	}
	if user.Username != "alice" || user.Fullname != "Alice Doe" {
		t.Fatalf("unexpected provisioned user: %+v", user)
	}
	if user.Token == "" {
		t.Fatal("provisioned user is missing a capability token")
	}
	if user.Level.Current != 1 {
		t.Fatalf("fresh user level = %d, want 1", user.Level.Current)
	}
}

func TestUserCreatedWithoutUsernameDerivesOne(t *testing.T) {
	h, svc := newTestHandler(t)

	evt := rawEvent(t, "user.created", map[string]any{
		"id":         "user-1",
		"first_name": "Alice",
		"last_name":  "Doe",
	})

	if err := h.processEvent(context.Background(), evt); err != nil {
		t.Fatalf("processEvent: %v", err)
	}

	user, err := svc.FetchUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("FetchUser: %v", err)
	}
	if !strings.HasPrefix(user.Username, "alicedoe") {
		t.Fatalf("derived username = %q, want alicedoe prefix", user.Username)
	}
	if len(user.Username) != len("alicedoe")+4 {
		t.Fatalf("derived username = %q, want a 4-digit suffix", user.Username)
	}
}

func TestUserCreatedReplayIsIdempotent(t *testing.T) {
	h, svc := newTestHandler(t)

	username := "alice"
	evt := rawEvent(t, "user.created", map[string]any{
		"id":       "user-1",
		"username": &username,
	})

	if err := h.processEvent(context.Background(), evt); err != nil {
		t.Fatalf("first processEvent: %v", err)
	}
	first, _ := svc.FetchUser(context.Background(), "user-1")

	if err := h.processEvent(context.Background(), evt); err != nil {
		t.Fatalf("replayed processEvent: %v", err)
	}
	second, _ := svc.FetchUser(context.Background(), "user-1")

	if second.Token != first.Token {
		t.Fatal("replayed user.created minted a new token")
	}
}

func TestUserUpdatedPatchesIdentity(t *testing.T) {
	h, svc := newTestHandler(t)

	username := "alice"
	created := rawEvent(t, "user.created", map[string]any{"id": "user-1", "username": &username})
	if err := h.processEvent(context.Background(), created); err != nil {
		t.Fatalf("processEvent created: %v", err)
	}

	renamed := "alice-v2"
	updated := rawEvent(t, "user.updated", map[string]any{
		"id":        "user-1",
		"username":  &renamed,
		"image_url": "https://img.example/new.png",
	})
	if err := h.processEvent(context.Background(), updated); err != nil {
		t.Fatalf("processEvent updated: %v", err)
	}

	user, err := svc.FetchUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("FetchUser: %v", err)
	}
	if user.Username != "alice-v2" || user.PfpURL != "https://img.example/new.png" {
		t.Fatalf("identity patch not applied: %+v", user)
	}
}

func TestUserUpdatedBeforeCreatedProvisions(t *testing.T) {
	h, svc := newTestHandler(t)

	username := "alice"
	evt := rawEvent(t, "user.updated", map[string]any{"id": "user-1", "username": &username})
	if err := h.processEvent(context.Background(), evt); err != nil {
		t.Fatalf("processEvent: %v", err)
	}

	if _, err := svc.FetchUser(context.Background(), "user-1"); err != nil {
		t.Fatalf("out-of-order update should provision the user: %v", err)
	}
}

func TestUserDeletedIsIdempotent(t *testing.T) {
	h, svc := newTestHandler(t)

	username := "alice"
	created := rawEvent(t, "user.created", map[string]any{"id": "user-1", "username": &username})
	if err := h.processEvent(context.Background(), created); err != nil {
		t.Fatalf("processEvent created: %v", err)
	}

	deleted := rawEvent(t, "user.deleted", map[string]any{"id": "user-1"})
	if err := h.processEvent(context.Background(), deleted); err != nil {
		t.Fatalf("processEvent deleted: %v", err)
	}
	if _, err := svc.FetchUser(context.Background(), "user-1"); !errors.Is(err, tracker.ErrUserNotFound) {
		t.Fatalf("user should be gone, got %v", err)
	}

	// Clerk retries deliver the same event again.
	if err := h.processEvent(context.Background(), deleted); err != nil {
		t.Fatalf("replayed delete should succeed, got %v", err)
	}
}

func TestUnknownEventTypeIsAcknowledged(t *testing.T) {
	h, _ := newTestHandler(t)

	evt := rawEvent(t, "session.created", map[string]any{"id": "sess-1"})
	if err := h.processEvent(context.Background(), evt); err != nil {
		t.Fatalf("unknown event should be acknowledged, got %v", err)
	}
}

func TestHandleClerkEndpoint(t *testing.T) {
	h, svc := newTestHandler(t)

	router := chi.NewRouter()
	h.RegisterRoutes(router)

	username := "alice"
	payload, err := json.Marshal(map[string]any{
		"type": "user.created",
		"data": map[string]any{"id": "user-1", "username": &username},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/clerk", strings.NewReader(string(payload)))
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook returned %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success {
		t.Fatal("webhook did not report success")
	}

	if _, err := svc.FetchUser(context.Background(), "user-1"); err != nil {
		t.Fatalf("user was not provisioned: %v", err)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/webhooks/clerk", strings.NewReader(`not json`))
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed payload returned %d, want 400", rec.Code)
	}
}

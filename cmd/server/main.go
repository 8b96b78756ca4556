package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/go-chi/chi/v5"

	"github.com/Sarthak-Sama/CodeHours/internal/auth"
	"github.com/Sarthak-Sama/CodeHours/internal/config"
	"github.com/Sarthak-Sama/CodeHours/internal/dailystats"
	"github.com/Sarthak-Sama/CodeHours/internal/httpapi"
	"github.com/Sarthak-Sama/CodeHours/internal/logging"
	"github.com/Sarthak-Sama/CodeHours/internal/server"
	"github.com/Sarthak-Sama/CodeHours/internal/tracker"
	"github.com/Sarthak-Sama/CodeHours/internal/webhook"
)

func main() {
	ctx := context.Background()
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Errorf("config error: %w", err))
	}

	logger := logging.NewLogger("codehours")

	repo, buckets, cleanup, err := newStores(ctx, cfg)
	if err != nil {
		panic(fmt.Errorf("store init error: %w", err))
	}
	defer cleanup()

	trackerService, err := tracker.NewService(
		repo,
		buckets,
		tracker.NewSystemClock(),
		tracker.NewUUIDGenerator(),
		tracker.NewHexTokenGenerator(),
		tracker.Config{
			SessionGap:   cfg.Tracker.SessionGap,
			LogRetention: cfg.Tracker.LogRetention,
			FutureSkew:   cfg.Tracker.FutureSkew,
			MaxAttempts:  cfg.Tracker.MaxAttempts,
		},
	)
	if err != nil {
		panic(fmt.Errorf("tracker service init error: %w", err))
	}

	verifier, err := auth.NewVerifier(auth.Config{
		Mode:     cfg.Auth.Mode,
		JWKSURL:  cfg.Auth.JWKSURL,
		Audience: cfg.Auth.Audience,
		Issuer:   cfg.Auth.Issuer,
	})
	if err != nil {
		panic(fmt.Errorf("auth verifier error: %w", err))
	}

	clerkWebhook, err := webhook.NewHandler(trackerService, cfg.Webhook.ClerkSecret, logger)
	if err != nil {
		panic(fmt.Errorf("webhook handler error: %w", err))
	}
	if cfg.Webhook.ClerkSecret == "" {
		logger.Warn("CLERK_WEBHOOK_SECRET is empty, webhook signatures are not verified")
	}

	router := server.NewRouter("codehours", func(r chi.Router) {
		httpapi.RegisterRoutes(r, trackerService, verifier)
		clerkWebhook.RegisterRoutes(r)
	})

	purgeCtx, stopPurge := context.WithCancel(ctx)
	defer stopPurge()
	go purgeLoop(purgeCtx, buckets, cfg.Tracker.BucketRetention, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	if err := server.Run(ctx, srv, logger); err != nil && !errors.Is(err, http.ErrServerClosed) {
		panic(err)
	}
}

func newStores(ctx context.Context, cfg config.Config) (tracker.Repository, dailystats.Store, func(), error) {
	switch cfg.DataStore {
	case config.DataStoreFirestore:
		if cfg.Firestore.EmulatorHost != "" {
			if err := os.Setenv("FIRESTORE_EMULATOR_HOST", cfg.Firestore.EmulatorHost); err != nil {
				return nil, nil, nil, fmt.Errorf("set FIRESTORE_EMULATOR_HOST: %w", err)
			}
		}

		client, err := firestore.NewClient(ctx, cfg.GCPProjectID)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("firestore client: %w", err)
		}

		repo := tracker.NewFirestoreRepository(client)
		buckets := dailystats.NewFirestoreStore(client, cfg.Tracker.DayLocation)
		cleanup := func() {
			_ = client.Close()
		}
		return repo, buckets, cleanup, nil
	default:
		repo := tracker.NewMemoryRepository()
		buckets := dailystats.NewMemoryStore(cfg.Tracker.DayLocation)
		return repo, buckets, func() {}, nil
	}
}

// purgeLoop drops daily buckets older than the retention window once a day.
func purgeLoop(ctx context.Context, buckets dailystats.Store, retention time.Duration, logger *slog.Logger) {
	if retention <= 0 {
		return
	}

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-retention)
			purged, err := buckets.PurgeBefore(ctx, cutoff)
			if err != nil {
				logger.Error("daily bucket purge failed", slog.String("error", err.Error()))
				continue
			}
			if purged > 0 {
				logger.Info("purged expired daily buckets", slog.Int("count", purged))
			}
		}
	}
}

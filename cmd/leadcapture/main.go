package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/Lllllllleong/solarleadcapture/internal/api"
	"github.com/Lllllllleong/solarleadcapture/internal/config"
	"github.com/Lllllllleong/solarleadcapture/internal/services"
	"github.com/Lllllllleong/solarleadcapture/internal/wizard"
)

var (
	leadCapture *services.LeadCapture
	server      *api.Server
	once        sync.Once
	initErr     error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("LeadCapture", handleLeadCapture)
}

// setup builds the service once per instance.
func setup() error {
	once.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			initErr = err
			return
		}
		leadCapture, err = services.NewLeadCapture(context.Background(), cfg, slog.Default())
		if err != nil {
			initErr = err
			return
		}
		server = api.NewServer(api.Deps{
			Onboarding:    leadCapture.Onboarding,
			Dashboard:     leadCapture.Dashboard,
			Contact:       leadCapture.Contact,
			Review:        leadCapture.Review,
			Tracker:       leadCapture.Tracker,
			Identities:    leadCapture.Identities,
			Steps:         wizard.DefaultSteps(),
			SecureCookies: cfg.SecureCookies,
		}, slog.Default())
	})
	return initErr
}

// handleLeadCapture is the Cloud Function entry point.
func handleLeadCapture(w http.ResponseWriter, r *http.Request) {
	if err := setup(); err != nil {
		slog.Error("Critical error during function initialization", "error", err)
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	server.ServeHTTP(w, r)
}

// main serves the API directly when run as a container.
func main() {
	if err := setup(); err != nil {
		slog.Error("Critical error during initialization", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := leadCapture.Close(); err != nil {
			slog.Error("Failed to close clients", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go pruneSessions(ctx)

	if err := server.Start(ctx, net.JoinHostPort("", leadCapture.Config.Port)); err != nil {
		slog.Error("Server stopped", "error", err)
	}
}

// pruneSessions drops idle wizard sessions until ctx is done.
func pruneSessions(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := leadCapture.Sessions.Prune(); n > 0 {
				slog.Info("Pruned idle onboarding sessions", "count", n)
			}
		}
	}
}

package webhook

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/solarleadcapture/internal/errs"
)

// Report summarises one fan-out.
type Report struct {
	Delivered int
	Failed    int
	Skipped   bool
}

// Router fans a payload out to every sink concurrently. A failing sink never
// affects the others; failures are logged and counted, not retried.
type Router struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out router delivering to all sinks.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

// Publish delivers p to every sink and waits for all of them.
func (r *Router) Publish(ctx context.Context, p Payload) Report {
	logCtx := r.logger.With("event", string(p.Event()))
	if len(r.sinks) == 0 {
		logCtx.Warn("No webhook sinks configured, skipping delivery.")
		return Report{Skipped: true}
	}

	var (
		mu     sync.Mutex
		report Report
		g      errgroup.Group
	)
	for _, s := range r.sinks {
		g.Go(func() error {
			err := s.Send(ctx, p)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				derr := errs.New(errs.WebhookDeliveryFailed, "webhook delivery failed", err)
				logCtx.Warn("Webhook sink failed.", "sink", s.Name(), "kind", derr.Kind.String(), "error", derr)
				return nil
			}
			report.Delivered++
			return nil
		})
	}
	_ = g.Wait()

	logCtx.Info("Webhook fan-out finished.", "delivered", report.Delivered, "failed", report.Failed)
	return report
}

// Package capture flushes in-progress wizard data to the webhook sinks when a
// visitor's page is suspended.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Lllllllleong/solarleadcapture/internal/attribution"
	"github.com/Lllllllleong/solarleadcapture/internal/errs"
	"github.com/Lllllllleong/solarleadcapture/internal/webhook"
	"github.com/Lllllllleong/solarleadcapture/internal/wizard"
)

// Signal is a page suspension signal reported by the browser.
type Signal string

const (
	// SignalUnload is sent from beforeunload; the page is going away.
	SignalUnload Signal = "unload"
	// SignalHidden is sent when the page's visibility becomes hidden.
	SignalHidden Signal = "hidden"
)

// ParseSignal validates a signal name.
func ParseSignal(s string) (Signal, error) {
	switch Signal(s) {
	case SignalUnload, SignalHidden:
		return Signal(s), nil
	default:
		return "", errs.Validation(errs.FieldErrors{"signal": "must be one of: unload, hidden"})
	}
}

// Publisher delivers a payload to the webhook sinks.
type Publisher interface {
	Publish(ctx context.Context, p webhook.Payload) webhook.Report
}

// Strategy dispatches a partial payload.
type Strategy interface {
	Dispatch(ctx context.Context, p webhook.Payload)
}

// BeaconStrategy hands the payload off and returns immediately. Delivery
// continues on its own goroutine after the triggering request has finished.
type BeaconStrategy struct {
	publisher Publisher
	timeout   time.Duration
	wg        sync.WaitGroup
}

// NewBeaconStrategy creates a beacon dispatcher bounding each delivery by timeout.
func NewBeaconStrategy(p Publisher, timeout time.Duration) *BeaconStrategy {
	return &BeaconStrategy{publisher: p, timeout: timeout}
}

func (b *BeaconStrategy) Dispatch(ctx context.Context, p webhook.Payload) {
	detached := context.WithoutCancel(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(detached, b.timeout)
		defer cancel()
		b.publisher.Publish(ctx, p)
	}()
}

// Wait blocks until every in-flight beacon has finished.
func (b *BeaconStrategy) Wait() { b.wg.Wait() }

// AwaitedStrategy delivers within the caller's context and waits for the sinks.
type AwaitedStrategy struct {
	publisher Publisher
}

// NewAwaitedStrategy creates an awaited dispatcher.
func NewAwaitedStrategy(p Publisher) *AwaitedStrategy {
	return &AwaitedStrategy{publisher: p}
}

func (a *AwaitedStrategy) Dispatch(ctx context.Context, p webhook.Payload) {
	a.publisher.Publish(ctx, p)
}

// Scheduler turns suspension signals into at most one partial event per
// dirty period.
type Scheduler struct {
	strategies map[Signal]Strategy
	logger     *slog.Logger
	now        func() time.Time
}

// NewScheduler wires the unload signal to beacon and the hidden signal to awaited.
func NewScheduler(beacon, awaited Strategy, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		strategies: map[Signal]Strategy{
			SignalUnload: beacon,
			SignalHidden: awaited,
		},
		logger: logger,
		now:    time.Now,
	}
}

// Flush dispatches a lead.partial event for sess if one is due, and reports
// whether it did. A flush is due only when the session has an owner, has not
// begun finalization and has changed since the last flush.
func (s *Scheduler) Flush(ctx context.Context, sess *wizard.Session, attr attribution.Attribution, sig Signal) (bool, error) {
	strategy, ok := s.strategies[sig]
	if !ok {
		return false, fmt.Errorf("no dispatch strategy for signal %q", sig)
	}
	snap, due := sess.TakeFlush()
	if !due {
		return false, nil
	}

	s.logger.Info("Flushing partial lead.",
		"sessionId", snap.SessionID, "userId", snap.Owner, "currentStep", snap.LastSubmitted, "signal", string(sig))
	strategy.Dispatch(ctx, PartialPayload(snap, attr, s.now()))
	return true, nil
}

// PartialPayload composes the lead.partial event for a snapshot. currentStep
// is the last step the visitor submitted. Bills carry metadata only; nothing
// has been uploaded yet.
func PartialPayload(snap wizard.Snapshot, attr attribution.Attribution, now time.Time) webhook.Payload {
	bills := make([]webhook.Bill, 0, len(snap.Documents))
	for _, d := range snap.Documents {
		bills = append(bills, webhook.Bill{
			FileName: d.FileName,
			FileSize: d.FileSize,
			MimeType: d.MimeType,
			Index:    d.Index,
		})
	}
	step := snap.LastSubmitted
	return webhook.Lead{
		Event:       webhook.EventPartial,
		UserID:      snap.Owner,
		Completed:   false,
		CurrentStep: &step,
		Fields:      snap.Data,
		Bills:       bills,
		Attribution: attr,
		Timestamp:   now,
	}.Payload()
}

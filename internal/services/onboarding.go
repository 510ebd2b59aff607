package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Lllllllleong/solarleadcapture/internal/attribution"
	"github.com/Lllllllleong/solarleadcapture/internal/capture"
	"github.com/Lllllllleong/solarleadcapture/internal/documents"
	"github.com/Lllllllleong/solarleadcapture/internal/errs"
	"github.com/Lllllllleong/solarleadcapture/internal/leads"
	"github.com/Lllllllleong/solarleadcapture/internal/models"
	"github.com/Lllllllleong/solarleadcapture/internal/webhook"
	"github.com/Lllllllleong/solarleadcapture/internal/wizard"
)

// CompletedRedirect is where visitors with a finished application are sent.
const CompletedRedirect = "/dashboard"

// Onboarding runs the wizard: session lifecycle, partial capture on
// suspension, and finalization.
type Onboarding struct {
	store     *wizard.Store
	leads     leads.Repository
	uploader  DocumentUploader
	publisher Publisher
	scheduler *capture.Scheduler
	trigger   ReviewTrigger
	logger    *slog.Logger
	now       func() time.Time
}

// OnboardingDeps are the collaborators of Onboarding. Trigger may be nil.
type OnboardingDeps struct {
	Store     *wizard.Store
	Leads     leads.Repository
	Uploader  DocumentUploader
	Publisher Publisher
	Scheduler *capture.Scheduler
	Trigger   ReviewTrigger
	Logger    *slog.Logger
}

func NewOnboarding(d OnboardingDeps) *Onboarding {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Onboarding{
		store:     d.Store,
		leads:     d.Leads,
		uploader:  d.Uploader,
		publisher: d.Publisher,
		scheduler: d.Scheduler,
		trigger:   d.Trigger,
		logger:    logger,
		now:       time.Now,
	}
}

// FinalizeResult summarises a submission.
type FinalizeResult struct {
	LeadID    string
	Created   bool
	Succeeded int
	Failed    int
	Message   string
}

// Start opens a wizard session for owner. It refuses when the owner's lead
// is already completed so the caller can redirect instead.
func (o *Onboarding) Start(ctx context.Context, owner string) (*wizard.Session, error) {
	if owner == "" {
		return nil, errs.Newf(errs.Unauthorized, "sign in to start onboarding")
	}
	rec, err := o.leads.Get(ctx, owner)
	switch {
	case err == nil && rec.OnboardingCompleted:
		return nil, errs.Newf(errs.AlreadyCompleted, "onboarding has already been completed")
	case err != nil && !errs.Is(err, errs.NotFound):
		// Completion cannot be checked; finalization will still upsert safely.
		o.logger.Warn("Could not check lead before starting onboarding.", "userId", owner, "error", err)
	}
	sess, err := o.store.Create(owner)
	if err != nil {
		return nil, err
	}
	o.logger.Info("Onboarding session started.", "userId", owner, "sessionId", sess.ID())
	return sess, nil
}

// Session returns owner's session id.
func (o *Onboarding) Session(owner, id string) (*wizard.Session, error) {
	return o.store.Get(id, owner)
}

// Suspend handles a page suspension signal. An unload also drops the
// session, since the page holding it is gone.
func (o *Onboarding) Suspend(ctx context.Context, sess *wizard.Session, attr attribution.Attribution, sig capture.Signal) (bool, error) {
	flushed, err := o.scheduler.Flush(ctx, sess, attr, sig)
	if err != nil {
		return false, err
	}
	if sig == capture.SignalUnload {
		o.store.Delete(sess.ID())
	}
	return flushed, nil
}

// Finalize submits the wizard. The session is claimed and revalidated before
// anything else happens, so concurrent submissions of one session cannot both
// upload. Only a failure to persist the lead aborts, and it releases the claim
// for a retry; failed bill uploads are excluded and counted.
func (o *Onboarding) Finalize(ctx context.Context, sess *wizard.Session, attr attribution.Attribution) (*FinalizeResult, error) {
	logCtx := o.logger.With("userId", sess.Owner(), "sessionId", sess.ID())
	snap, err := sess.BeginFinalize()
	if err != nil {
		logCtx.Warn("Finalization refused.", "kind", errs.KindOf(err).String(), "error", err)
		return nil, err
	}
	owner := snap.Owner
	logCtx.Info("Finalizing onboarding.")

	wasCompleted := false
	existing, err := o.leads.Get(ctx, owner)
	switch {
	case err == nil:
		wasCompleted = existing.OnboardingCompleted
	case errs.Is(err, errs.NotFound):
	default:
		sess.AbortFinalize()
		logCtx.Error("Failed to read lead.", "error", err)
		return nil, persistenceError("failed to read lead", err)
	}

	created, err := o.leads.Upsert(ctx, owner, leads.UpsertInput{
		Fields:     snap.Data,
		Cleared:    snap.Cleared,
		FirstTouch: attr.FirstTouch,
		LastTouch:  attr.LastTouch,
	})
	if err != nil {
		sess.AbortFinalize()
		logCtx.Error("Failed to save lead.", "error", err)
		return nil, persistenceError("failed to save lead", err)
	}
	logCtx = logCtx.With("created", created)

	bills, failed := o.uploadPending(ctx, logCtx, sess, owner)
	if err := o.leads.AttachBills(ctx, owner, bills); err != nil {
		logCtx.Error("Failed to attach bills to lead.", "error", err, "billCount", len(bills))
	}

	sess.MarkCompleted()

	if wasCompleted {
		logCtx.Info("Lead was already completed, not re-sending lead.completed.")
	} else {
		step, failedCount := models.OnboardingFinalStep, failed
		o.publisher.Publish(context.WithoutCancel(ctx), webhook.Lead{
			Event:       webhook.EventCompleted,
			UserID:      owner,
			Completed:   true,
			CurrentStep: &step,
			Fields:      snap.Data,
			Bills:       webhookBills(bills, 0),
			FailedBills: &failedCount,
			Attribution: attr,
			Timestamp:   o.now(),
		}.Payload())
	}

	if o.trigger != nil {
		arg := models.WorkflowArgument{UserID: owner, BillCount: len(bills), Created: created}
		if err := o.trigger.Trigger(ctx, arg); err != nil {
			logCtx.Error("Failed to trigger review workflow.", "error", err)
		}
	}

	res := &FinalizeResult{
		LeadID:    owner,
		Created:   created,
		Succeeded: len(bills),
		Failed:    failed,
		Message:   uploadMessage(len(bills), failed),
	}
	logCtx.Info("Onboarding finalized.", "succeeded", res.Succeeded, "failed", res.Failed)
	return res, nil
}

// uploadPending uploads every selected document without an outcome and
// returns the bills that made it plus the number that did not.
func (o *Onboarding) uploadPending(ctx context.Context, logCtx *slog.Logger, sess *wizard.Session, owner string) ([]models.Bill, int) {
	docs := sess.Documents()
	var (
		idx   []int
		files []documents.File
	)
	for i, d := range docs {
		if d.Outcome == nil {
			idx = append(idx, i)
			files = append(files, d.File)
		}
	}
	if len(files) > 0 {
		outcomes := o.uploader.UploadAll(ctx, owner, files)
		for j, i := range idx {
			sess.RecordOutcome(i, outcomes[j])
		}
	}

	var (
		bills  []models.Bill
		failed int
	)
	for _, d := range sess.Documents() {
		if d.Outcome == nil {
			continue
		}
		if d.Outcome.Err != nil {
			failed++
			logCtx.Warn("Bill excluded from submission.", "fileName", d.File.Name, "kind", errs.KindOf(d.Outcome.Err).String(), "error", d.Outcome.Err)
			continue
		}
		bills = append(bills, billFromRef(d.Outcome.Ref))
	}
	return bills, failed
}

func persistenceError(msg string, err error) error {
	if errs.Is(err, errs.PersistenceUnavailable) {
		return err
	}
	return errs.New(errs.PersistenceUnavailable, msg, err)
}

func uploadMessage(succeeded, failed int) string {
	total := succeeded + failed
	if total == 0 {
		return "Application submitted"
	}
	return fmt.Sprintf("%d of %d bills uploaded successfully", succeeded, total)
}

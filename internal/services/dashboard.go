package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/Lllllllleong/solarleadcapture/internal/attribution"
	"github.com/Lllllllleong/solarleadcapture/internal/documents"
	"github.com/Lllllllleong/solarleadcapture/internal/errs"
	"github.com/Lllllllleong/solarleadcapture/internal/leads"
	"github.com/Lllllllleong/solarleadcapture/internal/models"
	"github.com/Lllllllleong/solarleadcapture/internal/webhook"
)

// updatedEventBills is how many of the newest bills a lead.updated event lists.
const updatedEventBills = 3

// Dashboard serves a signed-in user's view and edits of their own lead.
type Dashboard struct {
	leads     leads.Repository
	uploader  DocumentUploader
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewDashboard(repo leads.Repository, uploader DocumentUploader, publisher Publisher, logger *slog.Logger) *Dashboard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dashboard{leads: repo, uploader: uploader, publisher: publisher, logger: logger, now: time.Now}
}

// Lead returns owner's lead.
func (d *Dashboard) Lead(ctx context.Context, owner string) (*models.LeadRecord, error) {
	return d.leads.Get(ctx, owner)
}

// UpdateLead applies a dashboard edit and announces it with lead.updated.
func (d *Dashboard) UpdateLead(ctx context.Context, owner string, req models.LeadUpdateRequest, attr attribution.Attribution) (*models.LeadRecord, error) {
	if err := errs.Check(req); err != nil {
		return nil, err
	}
	fields := req.Fields()
	if len(fields) == 0 {
		return nil, errs.Newf(errs.ValidationFailed, "no fields to update")
	}
	logCtx := d.logger.With("userId", owner)

	if err := d.leads.UpdateFields(ctx, owner, fields); err != nil {
		logCtx.Error("Failed to update lead.", "error", err)
		return nil, err
	}
	rec, err := d.leads.Get(ctx, owner)
	if err != nil {
		return nil, err
	}

	total := len(rec.Bills)
	d.publisher.Publish(context.WithoutCancel(ctx), webhook.Lead{
		Event:       webhook.EventUpdated,
		UserID:      owner,
		Completed:   rec.OnboardingCompleted,
		Fields:      rec.Fields(),
		Bills:       webhookBills(rec.RecentBills(updatedEventBills), 0),
		BillCount:   &total,
		Attribution: attr,
		Timestamp:   d.now(),
	}.Payload())
	logCtx.Info("Lead updated.", "fields", len(fields))
	return rec, nil
}

// AddBill uploads a bill and attaches it to owner's existing lead. The
// object is removed again if it cannot be attached.
func (d *Dashboard) AddBill(ctx context.Context, owner string, f documents.File) (*models.Bill, error) {
	if _, err := d.leads.Get(ctx, owner); err != nil {
		return nil, err
	}
	ref, err := d.uploader.Upload(ctx, owner, f)
	if err != nil {
		return nil, err
	}
	bill := billFromRef(ref)
	logCtx := d.logger.With("userId", owner, "billId", bill.ID)

	if err := d.leads.AttachBills(ctx, owner, []models.Bill{bill}); err != nil {
		logCtx.Error("Failed to attach bill, removing upload.", "error", err)
		if rmErr := d.uploader.Remove(context.WithoutCancel(ctx), ref.Path); rmErr != nil {
			logCtx.Warn("Failed to remove orphaned upload.", "error", rmErr)
		}
		return nil, err
	}
	logCtx.Info("Bill added.")
	return &bill, nil
}

// DeleteBill detaches a bill from owner's lead and deletes its object.
func (d *Dashboard) DeleteBill(ctx context.Context, owner, billID string) error {
	bill, err := d.leads.RemoveBill(ctx, owner, billID)
	if err != nil {
		return err
	}
	logCtx := d.logger.With("userId", owner, "billId", billID)
	if bill.FilePath != "" {
		if err := d.uploader.Remove(ctx, bill.FilePath); err != nil {
			logCtx.Warn("Bill detached but object could not be deleted.", "error", err)
		}
	}
	logCtx.Info("Bill deleted.")
	return nil
}

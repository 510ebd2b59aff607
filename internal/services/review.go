package services

import (
	"context"
	"log/slog"

	"github.com/Lllllllleong/solarleadcapture/internal/errs"
	"github.com/Lllllllleong/solarleadcapture/internal/leads"
	"github.com/Lllllllleong/solarleadcapture/internal/models"
)

// Review lets admins list submitted leads and record decisions on them.
type Review struct {
	leads  leads.Repository
	logger *slog.Logger
}

func NewReview(repo leads.Repository, logger *slog.Logger) *Review {
	if logger == nil {
		logger = slog.Default()
	}
	return &Review{leads: repo, logger: logger}
}

// List returns submitted leads, optionally only those with status.
func (r *Review) List(ctx context.Context, status string) ([]models.LeadRecord, error) {
	switch status {
	case "", models.StatusPending, models.StatusApproved, models.StatusRejected, models.StatusResubmitRequired:
	default:
		return nil, errs.Validation(errs.FieldErrors{"status": "must be one of pending approved rejected resubmit_required"})
	}
	return r.leads.List(ctx, status)
}

// Decide records reviewer's decision on userID's lead.
func (r *Review) Decide(ctx context.Context, reviewer, userID string, req models.ReviewRequest) error {
	if err := errs.Check(req); err != nil {
		return err
	}
	err := r.leads.SetReview(ctx, userID, leads.Review{Status: req.Status, Notes: req.Notes, ReviewedBy: reviewer})
	if err != nil {
		return err
	}
	r.logger.Info("Lead reviewed.", "userId", userID, "reviewedBy", reviewer, "status", req.Status)
	return nil
}

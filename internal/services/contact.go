package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/Lllllllleong/solarleadcapture/internal/attribution"
	"github.com/Lllllllleong/solarleadcapture/internal/errs"
	"github.com/Lllllllleong/solarleadcapture/internal/models"
	"github.com/Lllllllleong/solarleadcapture/internal/webhook"
)

// Contact forwards the public contact form to the marketing sinks.
type Contact struct {
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewContact(publisher Publisher, logger *slog.Logger) *Contact {
	if logger == nil {
		logger = slog.Default()
	}
	return &Contact{publisher: publisher, logger: logger, now: time.Now}
}

// Submit validates req and publishes contact.submitted. The submission
// succeeds even if no sink accepts it.
func (c *Contact) Submit(ctx context.Context, req models.ContactRequest, attr attribution.Attribution) (webhook.Report, error) {
	if err := errs.Check(req); err != nil {
		return webhook.Report{}, err
	}
	fields := map[string]string{
		"name":        req.Name,
		"email":       req.Email,
		"phone":       req.Phone,
		"company":     req.Company,
		"address":     req.Address,
		"utility":     req.Utility,
		"monthlyBill": req.MonthlyBill,
		"message":     req.Message,
	}
	report := c.publisher.Publish(context.WithoutCancel(ctx), webhook.Contact(fields, attr, c.now()))
	c.logger.Info("Contact form submitted.", "delivered", report.Delivered, "failed", report.Failed)
	return report, nil
}

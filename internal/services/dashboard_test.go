package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/solarleadcapture/internal/attribution"
	"github.com/Lllllllleong/solarleadcapture/internal/documents"
	"github.com/Lllllllleong/solarleadcapture/internal/errs"
	"github.com/Lllllllleong/solarleadcapture/internal/models"
	"github.com/Lllllllleong/solarleadcapture/internal/webhook"
)

func newTestDashboard(repo *memoryRepo, blobs *memoryBlobs, pub *recordingPublisher) *Dashboard {
	d := NewDashboard(repo, documents.NewUploader(blobs, nil, 1, discardLogger()), pub, discardLogger())
	d.now = func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) }
	return d
}

func TestUpdateLeadPublishesRecentBills(t *testing.T) {
	repo := newMemoryRepo()
	repo.records["u1"] = &models.LeadRecord{
		UserID:              "u1",
		FirstName:           "Ada",
		City:                "Chicago",
		OnboardingCompleted: true,
		Bills: []models.Bill{
			{ID: "b1", FileName: "jan.pdf"},
			{ID: "b2", FileName: "feb.pdf"},
			{ID: "b3", FileName: "mar.pdf"},
			{ID: "b4", FileName: "apr.pdf"},
		},
	}
	pub := &recordingPublisher{}
	d := newTestDashboard(repo, newMemoryBlobs(), pub)

	rec, err := d.UpdateLead(context.Background(), "u1", models.LeadUpdateRequest{City: "Peoria", State: "IL"}, attribution.Attribution{})

	require.NoError(t, err)
	assert.Equal(t, "Peoria", rec.City)
	updated := pub.events(webhook.EventUpdated)
	require.Len(t, updated, 1)
	p := updated[0]
	assert.Equal(t, "Peoria", p["city"])
	assert.Equal(t, "Ada", p["firstName"])
	assert.Equal(t, 4, p["billCount"])
	assert.Nil(t, p["currentStep"])
	bills := p["bills"].([]webhook.Bill)
	require.Len(t, bills, 3)
	assert.Equal(t, "apr.pdf", bills[0].FileName)
}

func TestUpdateLeadValidation(t *testing.T) {
	pub := &recordingPublisher{}
	d := newTestDashboard(newMemoryRepo(), newMemoryBlobs(), pub)

	_, err := d.UpdateLead(context.Background(), "u1", models.LeadUpdateRequest{ZipCode: "6060"}, attribution.Attribution{})
	assert.Equal(t, errs.ValidationFailed, errs.KindOf(err))

	_, err = d.UpdateLead(context.Background(), "u1", models.LeadUpdateRequest{}, attribution.Attribution{})
	assert.Equal(t, errs.ValidationFailed, errs.KindOf(err))

	_, err = d.UpdateLead(context.Background(), "u1", models.LeadUpdateRequest{City: "Peoria"}, attribution.Attribution{})
	assert.Equal(t, errs.NotFound, errs.KindOf(err))
	assert.Empty(t, pub.payloads)
}

func TestAddBill(t *testing.T) {
	repo := newMemoryRepo()
	repo.records["u1"] = &models.LeadRecord{UserID: "u1", OnboardingCompleted: true}
	blobs := newMemoryBlobs()
	d := newTestDashboard(repo, blobs, &recordingPublisher{})

	bill, err := d.AddBill(context.Background(), "u1", pdfFile("may.pdf"))

	require.NoError(t, err)
	assert.Equal(t, "may.pdf", bill.FileName)
	assert.Contains(t, bill.FilePath, "users/u1/bills/")
	assert.Equal(t, 1, blobs.len())
	assert.Len(t, repo.records["u1"].Bills, 1)
}

func TestAddBillRequiresLead(t *testing.T) {
	blobs := newMemoryBlobs()
	d := newTestDashboard(newMemoryRepo(), blobs, &recordingPublisher{})

	_, err := d.AddBill(context.Background(), "u1", pdfFile("may.pdf"))

	assert.Equal(t, errs.NotFound, errs.KindOf(err))
	assert.Zero(t, blobs.len())
}

func TestAddBillRemovesUploadWhenAttachFails(t *testing.T) {
	repo := newMemoryRepo()
	repo.records["u1"] = &models.LeadRecord{UserID: "u1"}
	repo.attachErr = errs.New(errs.PersistenceUnavailable, "failed to attach bills", errors.New("unavailable"))
	blobs := newMemoryBlobs()
	d := newTestDashboard(repo, blobs, &recordingPublisher{})

	_, err := d.AddBill(context.Background(), "u1", pdfFile("may.pdf"))

	assert.Equal(t, errs.PersistenceUnavailable, errs.KindOf(err))
	assert.Zero(t, blobs.len())
	assert.Len(t, blobs.deleted, 1)
}

func TestAddBillRejectsUnsupportedType(t *testing.T) {
	repo := newMemoryRepo()
	repo.records["u1"] = &models.LeadRecord{UserID: "u1"}
	d := newTestDashboard(repo, newMemoryBlobs(), &recordingPublisher{})

	_, err := d.AddBill(context.Background(), "u1", documents.File{Name: "bill.gif", Size: 10, MediaType: "image/gif"})

	assert.Equal(t, errs.UnsupportedType, errs.KindOf(err))
}

func TestDeleteBill(t *testing.T) {
	repo := newMemoryRepo()
	repo.records["u1"] = &models.LeadRecord{UserID: "u1", Bills: []models.Bill{
		{ID: "b1", FilePath: "users/u1/bills/b1-jan.pdf"},
		{ID: "b2", FilePath: "users/u1/bills/b2-feb.pdf"},
	}}
	blobs := newMemoryBlobs()
	d := newTestDashboard(repo, blobs, &recordingPublisher{})

	require.NoError(t, d.DeleteBill(context.Background(), "u1", "b1"))

	assert.Equal(t, []string{"users/u1/bills/b1-jan.pdf"}, blobs.deleted)
	require.Len(t, repo.records["u1"].Bills, 1)
	assert.Equal(t, "b2", repo.records["u1"].Bills[0].ID)
	assert.Equal(t, errs.NotFound, errs.KindOf(d.DeleteBill(context.Background(), "u1", "b1")))
}

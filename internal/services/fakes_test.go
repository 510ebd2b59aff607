package services

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/Lllllllleong/solarleadcapture/internal/errs"
	"github.com/Lllllllleong/solarleadcapture/internal/leads"
	"github.com/Lllllllleong/solarleadcapture/internal/models"
	"github.com/Lllllllleong/solarleadcapture/internal/webhook"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// memoryRepo is an in-memory leads.Repository keyed by user id.
type memoryRepo struct {
	mu        sync.Mutex
	records   map[string]*models.LeadRecord
	upserts   int
	getErr    error
	upsertErr error
	attachErr error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{records: map[string]*models.LeadRecord{}}
}

func (r *memoryRepo) Get(_ context.Context, userID string) (*models.LeadRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	rec, ok := r.records[userID]
	if !ok {
		return nil, errs.Newf(errs.NotFound, "no lead for user %s", userID)
	}
	cp := *rec
	cp.Bills = append([]models.Bill(nil), rec.Bills...)
	return &cp, nil
}

func (r *memoryRepo) Upsert(_ context.Context, userID string, in leads.UpsertInput) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return false, r.upsertErr
	}
	r.upserts++
	rec, ok := r.records[userID]
	if !ok {
		rec = &models.LeadRecord{UserID: userID, Status: models.StatusPending, UTMFirstTouch: in.FirstTouch}
		r.records[userID] = rec
	}
	cleared := map[string]string{}
	for _, k := range in.Cleared {
		if _, set := in.Fields[k]; !set {
			cleared[k] = ""
		}
	}
	applyFields(rec, cleared)
	applyFields(rec, in.Fields)
	rec.OnboardingCompleted = true
	rec.OnboardingStep = models.OnboardingFinalStep
	if in.LastTouch != nil {
		rec.UTMLastTouch = in.LastTouch
	}
	return !ok, nil
}

func (r *memoryRepo) AttachBills(_ context.Context, userID string, bills []models.Bill) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.attachErr != nil {
		return r.attachErr
	}
	rec, ok := r.records[userID]
	if !ok {
		return errs.Newf(errs.NotFound, "no lead for user %s", userID)
	}
	for _, b := range bills {
		dup := false
		for _, have := range rec.Bills {
			if have.ID == b.ID {
				dup = true
			}
		}
		if !dup {
			rec.Bills = append(rec.Bills, b)
		}
	}
	return nil
}

func (r *memoryRepo) UpdateFields(_ context.Context, userID string, fields map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[userID]
	if !ok {
		return errs.Newf(errs.NotFound, "no lead for user %s", userID)
	}
	applyFields(rec, fields)
	return nil
}

func (r *memoryRepo) SetReview(_ context.Context, userID string, rv leads.Review) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[userID]
	if !ok {
		return errs.Newf(errs.NotFound, "no lead for user %s", userID)
	}
	rec.Status, rec.ReviewNotes, rec.ReviewedBy = rv.Status, rv.Notes, rv.ReviewedBy
	return nil
}

func (r *memoryRepo) RemoveBill(_ context.Context, userID, billID string) (*models.Bill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[userID]
	if !ok {
		return nil, errs.Newf(errs.NotFound, "no lead for user %s", userID)
	}
	for i, b := range rec.Bills {
		if b.ID == billID {
			rec.Bills = append(rec.Bills[:i], rec.Bills[i+1:]...)
			return &b, nil
		}
	}
	return nil, errs.Newf(errs.NotFound, "bill %s not found", billID)
}

func (r *memoryRepo) List(_ context.Context, status string) ([]models.LeadRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.LeadRecord
	for _, rec := range r.records {
		if status == "" || rec.Status == status {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func applyFields(rec *models.LeadRecord, fields map[string]string) {
	for k, v := range fields {
		switch k {
		case "firstName":
			rec.FirstName = v
		case "lastName":
			rec.LastName = v
		case "middleInitial":
			rec.MiddleInitial = v
		case "email":
			rec.Email = v
		case "phoneNumber":
			rec.PhoneNumber = v
		case "serviceAddress":
			rec.ServiceAddress = v
		case "city":
			rec.City = v
		case "state":
			rec.State = v
		case "zipCode":
			rec.ZipCode = v
		case "electricUtilityProvider":
			rec.ElectricUtilityProvider = v
		case "governmentBenefitProgram":
			rec.GovernmentBenefitProgram = v
		}
	}
}

// recordingPublisher keeps every payload it is handed.
type recordingPublisher struct {
	mu       sync.Mutex
	payloads []webhook.Payload
}

func (p *recordingPublisher) Publish(_ context.Context, payload webhook.Payload) webhook.Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, payload)
	return webhook.Report{Delivered: 1}
}

func (p *recordingPublisher) events(e webhook.Event) []webhook.Payload {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []webhook.Payload
	for _, payload := range p.payloads {
		if payload.Event() == e {
			out = append(out, payload)
		}
	}
	return out
}

// memoryBlobs stores objects in memory and rejects any path containing one
// of the reject substrings. When gated, each Put signals entered and then
// waits for release to close.
type memoryBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	reject  []string
	deleted []string
	entered chan struct{}
	release chan struct{}
}

func newMemoryBlobs(reject ...string) *memoryBlobs {
	return &memoryBlobs{objects: map[string][]byte{}, reject: reject}
}

func (b *memoryBlobs) gate() {
	b.entered = make(chan struct{}, 1)
	b.release = make(chan struct{})
}

func (b *memoryBlobs) Put(_ context.Context, path string, data []byte, _ string) (string, error) {
	if b.release != nil {
		select {
		case b.entered <- struct{}{}:
		default:
		}
		<-b.release
	}
	for _, r := range b.reject {
		if strings.Contains(path, r) {
			return "", errs.Newf(errs.StorageRejected, "bucket refused %s", path)
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[path] = data
	return "https://storage.example.com/bills/" + path, nil
}

func (b *memoryBlobs) Delete(_ context.Context, path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, path)
	b.deleted = append(b.deleted, path)
	return nil
}

func (b *memoryBlobs) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

type mockTrigger struct{ mock.Mock }

func (m *mockTrigger) Trigger(ctx context.Context, arg models.WorkflowArgument) error {
	return m.Called(ctx, arg).Error(0)
}

// Package leads stores enrollment applications in Firestore, keyed by the
// owning user's identity.
package leads

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/Lllllllleong/solarleadcapture/internal/errs"
	"github.com/Lllllllleong/solarleadcapture/internal/gcp"
	"github.com/Lllllllleong/solarleadcapture/internal/models"
)

// UpsertInput is what finalization writes onto a lead.
type UpsertInput struct {
	Fields map[string]string
	// Cleared names fields the visitor emptied. They are deleted from an
	// existing lead and ignored on create.
	Cleared    []string
	FirstTouch *models.TouchSnapshot
	LastTouch  *models.TouchSnapshot
}

// Review is an admin decision on a lead.
type Review struct {
	Status     string
	Notes      string
	ReviewedBy string
}

// Repository is the durable store of leads.
type Repository interface {
	Get(ctx context.Context, userID string) (*models.LeadRecord, error)
	Upsert(ctx context.Context, userID string, in UpsertInput) (created bool, err error)
	AttachBills(ctx context.Context, userID string, bills []models.Bill) error
	UpdateFields(ctx context.Context, userID string, fields map[string]string) error
	SetReview(ctx context.Context, userID string, r Review) error
	RemoveBill(ctx context.Context, userID, billID string) (*models.Bill, error)
	List(ctx context.Context, status string) ([]models.LeadRecord, error)
}

// FirestoreRepository keeps leads at <collection>/<userId>.
type FirestoreRepository struct {
	client     *firestore.Client
	collection string
	now        func() time.Time
}

// NewFirestoreRepository returns a repository over collection.
func NewFirestoreRepository(client *firestore.Client, collection string) *FirestoreRepository {
	return &FirestoreRepository{client: client, collection: collection, now: time.Now}
}

func (r *FirestoreRepository) doc(userID string) *firestore.DocumentRef {
	return r.client.Collection(r.collection).Doc(userID)
}

func unavailable(msg string, err error) error {
	return errs.New(errs.PersistenceUnavailable, msg, err)
}

func (r *FirestoreRepository) Get(ctx context.Context, userID string) (*models.LeadRecord, error) {
	snap, err := r.doc(userID).Get(ctx)
	if err != nil {
		if gcp.IsNotFound(err) {
			return nil, errs.Newf(errs.NotFound, "no lead for user %s", userID)
		}
		return nil, unavailable("failed to read lead", err)
	}
	var rec models.LeadRecord
	if err := snap.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode lead %s: %w", userID, err)
	}
	return &rec, nil
}

// Upsert creates the lead on first submission and updates it in place
// afterwards. The user id is the only key, so repeated calls never produce a
// second record.
func (r *FirestoreRepository) Upsert(ctx context.Context, userID string, in UpsertInput) (bool, error) {
	ref := r.doc(userID)
	var created bool
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		_, err := tx.Get(ref)
		switch {
		case err == nil:
			created = false
			return tx.Update(ref, updatesFor(in, r.now()))
		case gcp.IsNotFound(err):
			created = true
			return tx.Create(ref, newLeadDoc(userID, in, r.now()))
		default:
			return err
		}
	})
	if err != nil {
		return false, unavailable("failed to save lead", err)
	}
	return created, nil
}

// newLeadDoc is the document written when a lead is first created.
func newLeadDoc(userID string, in UpsertInput, now time.Time) map[string]any {
	doc := map[string]any{
		"userId":              userID,
		"onboardingCompleted": true,
		"onboardingStep":      models.OnboardingFinalStep,
		"status":              models.StatusPending,
		"bills":               []models.Bill{},
		"createdAt":           now,
		"updatedAt":           now,
	}
	for k, v := range in.Fields {
		doc[k] = v
	}
	if in.FirstTouch != nil {
		doc["utmFirstTouch"] = in.FirstTouch
	}
	if in.LastTouch != nil {
		doc["utmLastTouch"] = in.LastTouch
	}
	return doc
}

// updatesFor is the update applied to an existing lead. Status, bills and
// creation time are left alone; the stored first touch is never replaced.
func updatesFor(in UpsertInput, now time.Time) []firestore.Update {
	keys := make([]string, 0, len(in.Fields))
	for k := range in.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cleared := append([]string(nil), in.Cleared...)
	sort.Strings(cleared)

	updates := make([]firestore.Update, 0, len(keys)+len(cleared)+4)
	for _, k := range keys {
		updates = append(updates, firestore.Update{Path: k, Value: in.Fields[k]})
	}
	for _, k := range cleared {
		if _, set := in.Fields[k]; set {
			continue
		}
		updates = append(updates, firestore.Update{Path: k, Value: firestore.Delete})
	}
	updates = append(updates,
		firestore.Update{Path: "onboardingCompleted", Value: true},
		firestore.Update{Path: "onboardingStep", Value: models.OnboardingFinalStep},
		firestore.Update{Path: "updatedAt", Value: now},
	)
	if in.LastTouch != nil {
		updates = append(updates, firestore.Update{Path: "utmLastTouch", Value: in.LastTouch})
	}
	return updates
}

func (r *FirestoreRepository) AttachBills(ctx context.Context, userID string, bills []models.Bill) error {
	if len(bills) == 0 {
		return nil
	}
	values := make([]any, len(bills))
	for i, b := range bills {
		values[i] = b
	}
	_, err := r.doc(userID).Update(ctx, []firestore.Update{
		{Path: "bills", Value: firestore.ArrayUnion(values...)},
		{Path: "updatedAt", Value: r.now()},
	})
	if err != nil {
		if gcp.IsNotFound(err) {
			return errs.Newf(errs.NotFound, "no lead for user %s", userID)
		}
		return unavailable("failed to attach bills", err)
	}
	return nil
}

func (r *FirestoreRepository) UpdateFields(ctx context.Context, userID string, fields map[string]string) error {
	_, err := r.doc(userID).Update(ctx, fieldUpdates(fields, r.now()))
	if err != nil {
		if gcp.IsNotFound(err) {
			return errs.Newf(errs.NotFound, "no lead for user %s", userID)
		}
		return unavailable("failed to update lead", err)
	}
	return nil
}

func fieldUpdates(fields map[string]string, now time.Time) []firestore.Update {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	updates := make([]firestore.Update, 0, len(keys)+1)
	for _, k := range keys {
		updates = append(updates, firestore.Update{Path: k, Value: fields[k]})
	}
	return append(updates, firestore.Update{Path: "updatedAt", Value: now})
}

func (r *FirestoreRepository) SetReview(ctx context.Context, userID string, rv Review) error {
	now := r.now()
	_, err := r.doc(userID).Update(ctx, []firestore.Update{
		{Path: "status", Value: rv.Status},
		{Path: "reviewNotes", Value: rv.Notes},
		{Path: "reviewedBy", Value: rv.ReviewedBy},
		{Path: "reviewedAt", Value: now},
		{Path: "updatedAt", Value: now},
	})
	if err != nil {
		if gcp.IsNotFound(err) {
			return errs.Newf(errs.NotFound, "no lead for user %s", userID)
		}
		return unavailable("failed to record review", err)
	}
	return nil
}

// RemoveBill deletes bill billID from the lead and returns it.
func (r *FirestoreRepository) RemoveBill(ctx context.Context, userID, billID string) (*models.Bill, error) {
	ref := r.doc(userID)
	var removed *models.Bill
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var rec models.LeadRecord
		if err := snap.DataTo(&rec); err != nil {
			return err
		}
		kept, found := withoutBill(rec.Bills, billID)
		if found == nil {
			return errs.Newf(errs.NotFound, "bill %s not found", billID)
		}
		removed = found
		return tx.Update(ref, []firestore.Update{
			{Path: "bills", Value: kept},
			{Path: "updatedAt", Value: r.now()},
		})
	})
	if err != nil {
		var e *errs.Error
		switch {
		case errors.As(err, &e):
			return nil, err
		case gcp.IsNotFound(err):
			return nil, errs.Newf(errs.NotFound, "no lead for user %s", userID)
		default:
			return nil, unavailable("failed to remove bill", err)
		}
	}
	return removed, nil
}

func withoutBill(bills []models.Bill, billID string) ([]models.Bill, *models.Bill) {
	kept := make([]models.Bill, 0, len(bills))
	var found *models.Bill
	for i := range bills {
		if bills[i].ID == billID && found == nil {
			b := bills[i]
			found = &b
			continue
		}
		kept = append(kept, bills[i])
	}
	return kept, found
}

// List returns submitted leads, newest first, optionally filtered by status.
func (r *FirestoreRepository) List(ctx context.Context, status string) ([]models.LeadRecord, error) {
	q := r.client.Collection(r.collection).Where("onboardingCompleted", "==", true)
	if status != "" {
		q = q.Where("status", "==", status)
	}
	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []models.LeadRecord
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, unavailable("failed to list leads", err)
		}
		var rec models.LeadRecord
		if err := snap.DataTo(&rec); err != nil {
			return nil, fmt.Errorf("failed to decode lead %s: %w", snap.Ref.ID, err)
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/Lllllllleong/solarleadcapture/internal/documents"
	"github.com/Lllllllleong/solarleadcapture/internal/models"
	"github.com/Lllllllleong/solarleadcapture/internal/webhook"
)

// Publisher delivers a webhook payload to every configured sink.
type Publisher interface {
	Publish(ctx context.Context, p webhook.Payload) webhook.Report
}

// DocumentUploader stores bill files.
type DocumentUploader interface {
	Upload(ctx context.Context, owner string, f documents.File) (*documents.Reference, error)
	UploadAll(ctx context.Context, owner string, files []documents.File) []documents.Outcome
	Remove(ctx context.Context, path string) error
}

// ReviewTrigger starts downstream review of a submitted lead.
type ReviewTrigger interface {
	Trigger(ctx context.Context, arg models.WorkflowArgument) error
}

// billNamespace derives stable bill ids from object paths, so attaching the
// same upload twice yields the same record.
var billNamespace = uuid.MustParse("6f0d3b5e-4c1a-4d8e-9b0a-2f5c7e1d9a31")

func billFromRef(ref *documents.Reference) models.Bill {
	return models.Bill{
		ID:         uuid.NewSHA1(billNamespace, []byte(ref.Path)).String(),
		FileName:   ref.FileName,
		FileURL:    ref.URL,
		FilePath:   ref.Path,
		FileSize:   ref.Size,
		MimeType:   ref.MediaType,
		PageCount:  ref.PageCount,
		UploadedAt: ref.UploadedAt,
	}
}

// webhookBills converts stored bills to event entries numbered from first.
func webhookBills(bills []models.Bill, first int) []webhook.Bill {
	out := make([]webhook.Bill, 0, len(bills))
	for i, b := range bills {
		out = append(out, webhook.Bill{
			FileName: b.FileName,
			FileURL:  b.FileURL,
			FileSize: b.FileSize,
			MimeType: b.MimeType,
			Index:    first + i,
		})
	}
	return out
}

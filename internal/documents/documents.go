// Package documents validates utility bill files and stores them in the
// object store under per-owner paths.
package documents

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/solarleadcapture/internal/errs"
)

// MaxFileSize is the largest accepted bill, in bytes.
const MaxFileSize = 10 << 20

var allowedMediaTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/jpg":       true,
	"image/png":       true,
	"image/webp":      true,
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

// File is a selected document held in memory until it is uploaded.
type File struct {
	Name      string
	Size      int64
	MediaType string
	Data      []byte
}

// Reference locates a stored document.
type Reference struct {
	URL        string
	Path       string
	FileName   string
	Size       int64
	MediaType  string
	PageCount  int
	UploadedAt time.Time
}

// Outcome is the result of uploading one file. Exactly one of Ref and Err is set.
type Outcome struct {
	Ref *Reference
	Err error
}

// BlobStore is the object store documents are written to.
type BlobStore interface {
	Put(ctx context.Context, path string, data []byte, mediaType string) (url string, err error)
	Delete(ctx context.Context, path string) error
}

// PageCounter reports the number of pages in a PDF.
type PageCounter interface {
	PageCount(data []byte) (int, error)
}

// Validate checks f against the size and type policy.
func Validate(f File) error {
	if f.Size > MaxFileSize {
		return errs.Newf(errs.TooLarge, "%s: file size must be less than 10MB", f.Name)
	}
	if !allowedMediaTypes[strings.ToLower(f.MediaType)] {
		return errs.Newf(errs.UnsupportedType, "%s: only PDF, JPEG, PNG and WebP files are allowed", f.Name)
	}
	return nil
}

// SanitizeFileName replaces every character outside [a-zA-Z0-9.-] with '_'.
func SanitizeFileName(name string) string {
	return unsafeNameChars.ReplaceAllString(name, "_")
}

// ObjectPath is the storage path of a bill owned by owner.
func ObjectPath(owner, id, name string) string {
	return fmt.Sprintf("users/%s/bills/%s-%s", owner, id, SanitizeFileName(name))
}

// Uploader sends validated files to a BlobStore.
type Uploader struct {
	store       BlobStore
	pages       PageCounter
	concurrency int
	logger      *slog.Logger
	newID       func() string
	now         func() time.Time
}

// NewUploader returns an Uploader writing to store with at most concurrency
// uploads in flight. pages may be nil to skip page counting.
func NewUploader(store BlobStore, pages PageCounter, concurrency int, logger *slog.Logger) *Uploader {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{
		store:       store,
		pages:       pages,
		concurrency: concurrency,
		logger:      logger,
		newID:       func() string { return uuid.Must(uuid.NewV7()).String() },
		now:         time.Now,
	}
}

// Upload validates f and writes it under a fresh path for owner.
func (u *Uploader) Upload(ctx context.Context, owner string, f File) (*Reference, error) {
	if owner == "" {
		return nil, errs.Newf(errs.Unauthorized, "an identity is required to upload documents")
	}
	if err := Validate(f); err != nil {
		return nil, err
	}

	path := ObjectPath(owner, u.newID(), f.Name)
	logCtx := u.logger.With("owner", owner, "objectPath", path, "fileSize", f.Size)

	url, err := u.store.Put(ctx, path, f.Data, f.MediaType)
	if err != nil {
		logCtx.Warn("Document upload failed.", "error", err)
		if errs.KindOf(err) == errs.StorageRejected {
			return nil, err
		}
		return nil, errs.New(errs.StorageRejected, fmt.Sprintf("failed to store %s", f.Name), err)
	}

	ref := &Reference{
		URL:        url,
		Path:       path,
		FileName:   f.Name,
		Size:       f.Size,
		MediaType:  f.MediaType,
		UploadedAt: u.now(),
	}
	if u.pages != nil && strings.EqualFold(f.MediaType, "application/pdf") {
		n, err := u.pages.PageCount(f.Data)
		if err != nil {
			logCtx.Warn("Could not count PDF pages.", "error", err)
		} else {
			ref.PageCount = n
		}
	}
	logCtx.Info("Document uploaded.")
	return ref, nil
}

// UploadAll uploads files concurrently. The returned outcomes are in input
// order; a failed file never stops the others.
func (u *Uploader) UploadAll(ctx context.Context, owner string, files []File) []Outcome {
	outcomes := make([]Outcome, len(files))
	var g errgroup.Group
	g.SetLimit(u.concurrency)
	for i, f := range files {
		g.Go(func() error {
			ref, err := u.Upload(ctx, owner, f)
			outcomes[i] = Outcome{Ref: ref, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// Remove deletes a stored document.
func (u *Uploader) Remove(ctx context.Context, path string) error {
	if err := u.store.Delete(ctx, path); err != nil {
		return fmt.Errorf("failed to remove document %s: %w", path, err)
	}
	return nil
}

package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// ErrObjectExists is returned by WriteObjectAtomically when the destination
// object is already present.
var ErrObjectExists = errors.New("object already exists")

// ObjectAttrs are the metadata applied to a newly written object.
type ObjectAttrs struct {
	ContentType  string
	CacheControl string
}

// NewStorageClient creates a Cloud Storage client.
func NewStorageClient(ctx context.Context) (*storage.Client, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	return client, nil
}

// WriteObjectAtomically writes data to a GCS object only if it doesn't already exist.
// A precondition failure is reported as ErrObjectExists; any other rejection is
// returned wrapped so callers can inspect the *googleapi.Error.
func WriteObjectAtomically(ctx context.Context, bucket *storage.BucketHandle, objectName string, data []byte, attrs ObjectAttrs) error {
	writer := bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = attrs.ContentType
	writer.CacheControl = attrs.CacheControl

	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		_ = writer.Close()
		return classifyWriteError(objectName, "failed to write to GCS", err)
	}

	if err := writer.Close(); err != nil {
		return classifyWriteError(objectName, "failed to finalize GCS write", err)
	}
	return nil
}

func classifyWriteError(objectName, msg string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
		slog.Warn("Object already exists.", "gcsObject", objectName)
		return fmt.Errorf("%s %s: %w", msg, objectName, ErrObjectExists)
	}
	slog.Error(msg, "gcsObject", objectName, "error", err)
	return fmt.Errorf("%s %s: %w", msg, objectName, err)
}

// DeleteObject removes an object, treating a missing object as already deleted.
func DeleteObject(ctx context.Context, bucket *storage.BucketHandle, objectName string) error {
	err := bucket.Object(objectName).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete GCS object %s: %w", objectName, err)
	}
	return nil
}

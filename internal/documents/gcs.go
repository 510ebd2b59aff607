package documents

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/Lllllllleong/solarleadcapture/internal/errs"
	"github.com/Lllllllleong/solarleadcapture/internal/gcp"
)

const billCacheControl = "public, max-age=3600"

// GCSStore is a BlobStore backed by a Cloud Storage bucket.
type GCSStore struct {
	bucket     *storage.BucketHandle
	bucketName string
	baseURL    string
}

// NewGCSStore returns a store writing to bucketName. Public URLs are formed as
// baseURL/bucket/path.
func NewGCSStore(client *storage.Client, bucketName, baseURL string) *GCSStore {
	return &GCSStore{
		bucket:     client.Bucket(bucketName),
		bucketName: bucketName,
		baseURL:    baseURL,
	}
}

func (s *GCSStore) Put(ctx context.Context, path string, data []byte, mediaType string) (string, error) {
	err := gcp.WriteObjectAtomically(ctx, s.bucket, path, data, gcp.ObjectAttrs{
		ContentType:  mediaType,
		CacheControl: billCacheControl,
	})
	if err != nil {
		return "", storageRejection(path, err)
	}
	return PublicURL(s.baseURL, s.bucketName, path), nil
}

func (s *GCSStore) Delete(ctx context.Context, path string) error {
	return gcp.DeleteObject(ctx, s.bucket, path)
}

// PublicURL is the address a stored object is served from.
func PublicURL(baseURL, bucket, path string) string {
	return fmt.Sprintf("%s/%s/%s", baseURL, bucket, path)
}

func storageRejection(path string, err error) error {
	if errors.Is(err, gcp.ErrObjectExists) {
		return errs.New(errs.StorageRejected, fmt.Sprintf("object %s already exists", path), err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return errs.New(errs.StorageRejected, fmt.Sprintf("object store rejected %s (%d): %s", path, gerr.Code, gerr.Message), err)
	}
	return errs.New(errs.StorageRejected, fmt.Sprintf("failed to store %s", path), err)
}

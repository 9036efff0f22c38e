package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// Sink stores a rendered export and returns where it ended up.
type Sink interface {
	Put(ctx context.Context, file *File) (location string, err error)
}

// GCSUploader stores exports as objects in a GCS bucket.
// It assumes Application Default Credentials are configured.
type GCSUploader struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSUploader creates a storage client for bucket. Object names are
// prefixed with prefix.
func NewGCSUploader(ctx context.Context, bucket, prefix string) (*GCSUploader, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSUploader{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

// Close releases the storage client.
func (u *GCSUploader) Close() error {
	return u.client.Close()
}

// Put implements Sink and returns the gs:// URI of the uploaded object.
func (u *GCSUploader) Put(ctx context.Context, file *File) (string, error) {
	objectName := file.Name
	if u.prefix != "" {
		objectName = path.Join(u.prefix, file.Name)
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := u.client.Bucket(u.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = file.ContentType

	if _, err := io.Copy(w, bytes.NewReader(file.Data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("copy export to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", u.bucket, objectName), nil
}

// Fetch downloads a previous export by its gs:// URI.
func (u *GCSUploader) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseGCSURI(uri)
	if err != nil {
		return nil, err
	}

	rc, err := u.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading bytes: %w", err)
	}
	return data, nil
}

// ParseGCSURI splits gs://bucket/path/to/object into bucket and object.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// DirSink writes exports into a local directory.
type DirSink struct {
	Dir string
}

// Put implements Sink and returns the path of the written file.
func (d DirSink) Put(ctx context.Context, file *File) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir %q: %w", d.Dir, err)
	}
	p := filepath.Join(d.Dir, file.Name)
	if err := os.WriteFile(p, file.Data, 0o644); err != nil {
		return "", fmt.Errorf("write export %q: %w", p, err)
	}
	return p, nil
}

var (
	_ Sink = (*GCSUploader)(nil)
	_ Sink = DirSink{}
)

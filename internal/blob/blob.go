// Package blob stores sample photo attachments behind a small S3-like
// interface with filesystem, S3/MinIO and in-memory backends.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Driver identifies a concrete attachment storage backend.
type Driver string

const (
	DriverFilesystem Driver = "fs"     // local directory (default, dev)
	DriverS3         Driver = "s3"     // S3 / MinIO compatible
	DriverMemory     Driver = "memory" // in-process (tests)
)

// PutOptions carries optional parameters for Put.
type PutOptions struct {
	ContentType string            // MIME type, optional
	Metadata    map[string]string // flat user metadata
}

// SignedURLOptions configures URL pre-signing.
type SignedURLOptions struct {
	Method string        // GET only for now
	Expiry time.Duration // default 15m
}

// Info describes a stored attachment.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
	URL          string            `json:"url,omitempty"` // optional presigned URL
}

// Store is a minimal S3 subset so the S3 adapter stays nearly 1:1 while the
// filesystem adapter can emulate the same semantics.
type Store interface {
	// Put stores a new attachment at key. Fails if the key already exists.
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	// Get returns metadata and a reader for the content.
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	// Head returns metadata only.
	Head(ctx context.Context, key string) (Info, error)
	// Delete removes an attachment. Returns (false, nil) if not found.
	Delete(ctx context.Context, key string) (bool, error)
	// List returns attachments with the given key prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]Info, error)
	// PresignURL returns a time-limited GET URL, or ErrUnsupported.
	PresignURL(ctx context.Context, key string, opts SignedURLOptions) (string, error)
	// Driver reports the configured backend.
	Driver() Driver
}

// ErrUnsupported is returned when a driver lacks an optional capability.
var ErrUnsupported = errors.New("blob: unsupported operation")

// PhotoKey builds the canonical object key for a sample photo. Filenames are
// flattened to their base name so callers cannot nest outside the sample
// prefix.
func PhotoKey(sampleID, filename string) (string, error) {
	if strings.TrimSpace(sampleID) == "" {
		return "", fmt.Errorf("blob: empty sample id")
	}
	name := strings.TrimSpace(filename)
	if i := strings.LastIndexAny(name, "/\\"); i >= 0 {
		name = name[i+1:]
	}
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("blob: invalid photo filename %q", filename)
	}
	return "samples/" + sampleID + "/photos/" + name, nil
}

// PhotoPrefix returns the key prefix under which a sample's photos live.
func PhotoPrefix(sampleID string) string {
	return "samples/" + sampleID + "/photos/"
}

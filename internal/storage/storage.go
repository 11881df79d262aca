// Package storage keeps raw driving log files.
package storage

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
)

// ErrBlobNotFound is returned when a stored path does not exist
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore is durable byte storage keyed by an opaque path
type BlobStore interface {
	// Store writes data and returns the path to load it back with
	Store(ctx context.Context, data []byte, deviceID, subjectID uint, fileName string) (string, error)
	// Open streams a stored blob; callers must close it
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
}

// ReadAll loads a whole blob
func ReadAll(ctx context.Context, store BlobStore, path string) ([]byte, error) {
	rc, err := store.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// cleanExt keeps a short lowercase extension from the original file name
func cleanExt(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if len(ext) > 10 || strings.ContainsAny(ext, `/\`) {
		return ""
	}
	return ext
}

package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// Accepted upload extensions and the size cap enforced at the boundary.
const MaxUploadBytes = 10 << 20

var acceptedExtensions = map[string]bool{".xlsx": true, ".xls": true, ".csv": true}

// ErrUnsupportedType indicates a file extension outside the accepted set.
var ErrUnsupportedType = errors.New("unsupported file type (accepted: .xlsx, .xls, .csv)")

// ErrTooLarge indicates a payload over MaxUploadBytes.
var ErrTooLarge = fmt.Errorf("file exceeds the %d MB upload limit", MaxUploadBytes>>20)

// ObjectStore defines the minimal object access the pipeline needs. Handles
// are URIs: s3://bucket/key or file://path.
type ObjectStore interface {
	// Get returns a reader for the given handle and the size if known.
	Get(ctx context.Context, uri string) (io.ReadCloser, int64, error)
	// Put writes content under the given handle; returns the final URI.
	Put(ctx context.Context, uri string, body io.Reader) (string, error)
}

// CheckUpload validates a filename and declared size against the boundary
// constraints before any bytes are stored.
func CheckUpload(filename string, size int64) error {
	if !acceptedExtensions[strings.ToLower(path.Ext(filename))] {
		return ErrUnsupportedType
	}
	if size > MaxUploadBytes {
		return ErrTooLarge
	}
	return nil
}

// Files adapts an ObjectStore to the pipeline's download-by-handle shape.
type Files struct {
	Store ObjectStore
}

func (f Files) Download(ctx context.Context, handle string) ([]byte, error) {
	return Download(ctx, f.Store, handle)
}

// Artifacts writes generated report files under a fixed URI base, e.g.
// s3://bucket/imports or file:///var/lib/form-imports/reports.
type Artifacts struct {
	Store ObjectStore
	Base  string
}

func (a Artifacts) Upload(ctx context.Context, name string, data []byte) (string, error) {
	uri := strings.TrimRight(a.Base, "/") + "/" + name
	return a.Store.Put(ctx, uri, bytes.NewReader(data))
}

// Download fetches a handle fully into memory, refusing payloads beyond the
// upload cap so a swapped object cannot blow the importer's memory budget.
func Download(ctx context.Context, s ObjectStore, uri string) ([]byte, error) {
	rc, size, err := s.Get(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	if size > MaxUploadBytes {
		return nil, ErrTooLarge
	}
	data, err := io.ReadAll(io.LimitReader(rc, MaxUploadBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxUploadBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}

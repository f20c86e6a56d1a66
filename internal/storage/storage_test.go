package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckUpload(t *testing.T) {
	assert.NoError(t, CheckUpload("contacts.csv", 100))
	assert.NoError(t, CheckUpload("Report.XLSX", MaxUploadBytes))
	assert.ErrorIs(t, CheckUpload("notes.txt", 100), ErrUnsupportedType)
	assert.ErrorIs(t, CheckUpload("archive.zip", 100), ErrUnsupportedType)
	assert.ErrorIs(t, CheckUpload("big.csv", MaxUploadBytes+1), ErrTooLarge)
}

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeStore) Get(_ context.Context, uri string) (io.ReadCloser, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[uri]
	if !ok {
		return nil, 0, errors.New("missing")
	}
	return io.NopCloser(bytes.NewReader(b)), int64(len(b)), nil
}

func (f *fakeStore) Put(_ context.Context, uri string, body io.Reader) (string, error) {
	b, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[uri] = b
	return uri, nil
}

func TestDownloadCapsSize(t *testing.T) {
	fs := &fakeStore{objects: map[string][]byte{
		"s3://b/small": []byte("hello"),
		"s3://b/huge":  make([]byte, MaxUploadBytes+1),
	}}

	data, err := Download(context.Background(), fs, "s3://b/small")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	_, err = Download(context.Background(), fs, "s3://b/huge")
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = Download(context.Background(), fs, "s3://b/absent")
	assert.Error(t, err)
}

func TestArtifactsUploadJoinsBase(t *testing.T) {
	fs := &fakeStore{}
	a := Artifacts{Store: fs, Base: "s3://bucket/imports/"}

	uri, err := a.Upload(context.Background(), "job-1/errors.csv", []byte("Row,Field\n"))
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/imports/job-1/errors.csv", uri)
	assert.Equal(t, []byte("Row,Field\n"), fs.objects[uri])
}

func TestParseS3(t *testing.T) {
	b, k, err := parseS3("s3://bucket/path/to/key.csv")
	require.NoError(t, err)
	assert.Equal(t, "bucket", b)
	assert.Equal(t, "path/to/key.csv", k)

	_, _, err = parseS3("http://bucket/key")
	assert.Error(t, err)
	_, _, err = parseS3("s3://bucket")
	assert.Error(t, err)
}

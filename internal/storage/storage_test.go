package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_RoundTrip(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	store.now = func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	path, err := store.Store(ctx, []byte("testResult\nPASS\n"), 10, 20, "Log.CSV")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(path, "devices/10/20/2025/03/"))
	assert.True(t, strings.HasSuffix(path, ".csv"))
	assert.True(t, store.Exists(path))

	data, err := ReadAll(ctx, store, path)
	require.NoError(t, err)
	assert.Equal(t, "testResult\nPASS\n", string(data))

	require.NoError(t, store.Delete(ctx, path))
	_, err = store.Open(ctx, path)
	assert.True(t, errors.Is(err, ErrBlobNotFound))
}

func TestLocalStorage_RejectsEscapingPaths(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	for _, p := range []string{"../etc/passwd", "/etc/passwd", "devices/../../x", ""} {
		_, err := store.Open(context.Background(), p)
		assert.True(t, errors.Is(err, ErrBlobNotFound), p)
	}
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Storage_RoundTrip(t *testing.T) {
	fake := &fakeS3{objects: make(map[string][]byte)}
	store := NewS3StorageWithClient(fake, "logs-bucket", "driving-logs")
	store.now = func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	key, err := store.Store(ctx, []byte("abc"), 1, 2, "a.csv")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "driving-logs/devices/1/2/2025/03/"))

	data, err := ReadAll(ctx, store, key)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Open(ctx, key)
	assert.True(t, errors.Is(err, ErrBlobNotFound))
}

package filestore

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
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hri/contact-sync/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	ok, err := store.Exists(ctx, "logs", "runtime_logs.csv")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Get(ctx, "logs", "runtime_logs.csv")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put(ctx, "logs", "runtime_logs.csv", []byte("a,b\n")))
	require.NoError(t, store.Put(ctx, "logs", "runtime_logs.csv", []byte("a,b\n1,2\n")))

	data, err := store.Get(ctx, "logs", "runtime_logs.csv")
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))

	ok, err = store.Exists(ctx, "logs", "runtime_logs.csv")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalList(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	files, err := store.List(ctx, "welcome")
	require.NoError(t, err)
	assert.Empty(t, files, "missing folder lists as empty")

	require.NoError(t, store.Put(ctx, "welcome", "b.csv", []byte("x")))
	require.NoError(t, store.Put(ctx, "welcome", "a.xlsx", []byte("xy")))
	require.NoError(t, store.Put(ctx, "welcome/archive", "old.csv", []byte("z")))

	files, err = store.List(ctx, "welcome")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a.xlsx", files[0].Name)
	assert.Equal(t, int64(2), files[0].Size)
	assert.Equal(t, "b.csv", files[1].Name)
}

func TestLocalRejectsTraversal(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, store.Put(context.Background(), "../outside", "x.csv", nil))
	_, err = store.Get(context.Background(), "logs", "../../etc/passwd")
	assert.Error(t, err)
}

func TestNewSelectsBackend(t *testing.T) {
	dir := t.TempDir()
	store, err := New(context.Background(), config.FileStoreConfig{Type: "local", LocalPath: dir})
	require.NoError(t, err)
	assert.IsType(t, &Local{}, store)

	_, err = New(context.Background(), config.FileStoreConfig{Type: "ftp"})
	assert.Error(t, err)

	_, err = New(context.Background(), config.FileStoreConfig{Type: "s3"})
	assert.Error(t, err, "bucket required")
}

// fakeS3 is an in-memory bucket.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &s3.ListObjectsV2Output{}
	prefix := aws.ToString(in.Prefix)
	for k, v := range f.objects {
		if strings.HasPrefix(k, prefix) {
			out.Contents = append(out.Contents, types.Object{
				Key:          aws.String(k),
				Size:         aws.Int64(int64(len(v))),
				LastModified: aws.Time(time.Unix(0, 0)),
			})
		}
	}
	return out, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(v))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func TestS3Store(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	store := NewS3WithClient(fake, "hri-bucket")

	_, err := store.Get(ctx, "logs", "runtime_logs.csv")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := store.Exists(ctx, "logs", "runtime_logs.csv")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(ctx, "/logs/", "runtime_logs.csv", []byte("h\n")))
	assert.Contains(t, fake.objects, "logs/runtime_logs.csv")
	assert.Equal(t, "text/csv", fake.types["logs/runtime_logs.csv"])

	data, err := store.Get(ctx, "logs", "runtime_logs.csv")
	require.NoError(t, err)
	assert.Equal(t, "h\n", string(data))

	ok, err = store.Exists(ctx, "logs", "runtime_logs.csv")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestS3List(t *testing.T) {
	fake := newFakeS3()
	fake.objects["welcome/Welcome_Jan.xlsx"] = []byte("abc")
	fake.objects["welcome/1stWeekEmail.csv"] = []byte("a")
	fake.objects["welcome/archive/old.csv"] = []byte("z")
	fake.objects["welcome/"] = nil
	fake.objects["segmentation/seg.csv"] = []byte("s")

	files, err := NewS3WithClient(fake, "b").List(context.Background(), "welcome")
	require.NoError(t, err)

	require.Len(t, files, 2)
	assert.Equal(t, "1stWeekEmail.csv", files[0].Name)
	assert.Equal(t, "Welcome_Jan.xlsx", files[1].Name)
	assert.Equal(t, int64(3), files[1].Size)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&types.NoSuchKey{}))
	assert.True(t, isNotFound(errors.New("operation error S3: HeadObject, https response error StatusCode: 404")))
	assert.False(t, isNotFound(errors.New("access denied")))
}

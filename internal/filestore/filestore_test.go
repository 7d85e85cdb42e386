package filestore

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/Tyrowin/chatroom/internal/config"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_Put(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "share")
	l, err := NewLocal(dir)
	require.NoError(t, err)

	require.NoError(t, l.Put(context.Background(), "abc-notes.txt", "text/plain", []byte("hello")))

	got, err := os.ReadFile(filepath.Join(dir, "abc-notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestLocal_PutRejectsPaths(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"", ".", "..", "../x", `a\b`, "a/b"} {
		assert.Error(t, l.Put(context.Background(), name, "", []byte("x")), name)
	}
}

func TestLocal_PutFailsWhenDirectoryGone(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "share")
	l, err := NewLocal(dir)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(dir))

	assert.Error(t, l.Put(context.Background(), "f", "", []byte("x")))
}

type fakePutter struct {
	in   *s3.PutObjectInput
	body []byte
	err  error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.in = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3_Put(t *testing.T) {
	fp := &fakePutter{}
	s := NewS3WithClient(fp, "uploads", "chat")

	require.NoError(t, s.Put(context.Background(), "abc-cat.png", "image/png", []byte("png")))

	assert.Equal(t, "uploads", aws.ToString(fp.in.Bucket))
	assert.Equal(t, "chat/abc-cat.png", aws.ToString(fp.in.Key))
	assert.Equal(t, "image/png", aws.ToString(fp.in.ContentType))
	assert.Equal(t, int64(3), aws.ToInt64(fp.in.ContentLength))
	assert.Equal(t, []byte("png"), fp.body)
}

func TestS3_PutError(t *testing.T) {
	s := NewS3WithClient(&fakePutter{err: errors.New("access denied")}, "uploads", "")

	err := s.Put(context.Background(), "f", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
	assert.Equal(t, "f", s.Key("f"))
}

func TestNewS3_AppliesEndpointAndPathStyle(t *testing.T) {
	var captured s3.Options
	orig := newS3ClientFromConfig
	t.Cleanup(func() { newS3ClientFromConfig = orig })
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		for _, fn := range optFns {
			fn(&captured)
		}
		return orig(cfg, optFns...)
	}

	_, err := NewS3(context.Background(), S3Options{
		Bucket:    "uploads",
		Region:    "us-east-1",
		Endpoint:  "http://localhost:9000",
		AccessKey: "minio",
		SecretKey: "minio123",
		PathStyle: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000", aws.ToString(captured.BaseEndpoint))
	assert.True(t, captured.UsePathStyle)
}

func TestNew_PicksLocalWithoutBucket(t *testing.T) {
	dir := t.TempDir()
	st, err := New(context.Background(), config.StorageConfig{Dir: dir})
	require.NoError(t, err)

	l, ok := st.(*Local)
	require.True(t, ok)
	assert.Equal(t, dir, l.Dir())
}

package thumbnail

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobKeyLayout(t *testing.T) {
	at := time.Date(2026, 3, 7, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "thumbnails/u1/2026/03/07/t1.png", BlobKey("u1", "t1", "image/png", at))
	assert.Equal(t, "thumbnails/u1/2026/03/07/t1.jpg", BlobKey("u1", "t1", "image/jpeg", at))
}

func TestFileBlobStorePut(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileBlobStore(dir, "http://localhost:8080/media/")
	require.NoError(t, err)

	loc, err := s.Put(context.Background(), "thumbnails/u1/2026/03/07/t1.png", []byte("img"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/media/thumbnails/u1/2026/03/07/t1.png", loc)

	b, err := os.ReadFile(filepath.Join(dir, "thumbnails", "u1", "2026", "03", "07", "t1.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("img"), b)
}

func TestFileBlobStoreDefaultBaseURL(t *testing.T) {
	s, err := NewFileBlobStore(t.TempDir(), "")
	require.NoError(t, err)
	loc, err := s.Put(context.Background(), "a/b.png", []byte("x"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "/media/a/b.png", loc)
}

func TestFileBlobStoreRejectsTraversal(t *testing.T) {
	s, err := NewFileBlobStore(t.TempDir(), "")
	require.NoError(t, err)
	_, err = s.Put(context.Background(), "../escape.png", []byte("x"), "image/png")
	assert.Error(t, err)
	_, err = s.Put(context.Background(), "", []byte("x"), "image/png")
	assert.Error(t, err)
}

// stubS3 swaps the SDK entry points for the duration of a test.
func stubS3(t *testing.T, put func(in *s3.PutObjectInput) error, presignURL string) {
	t.Helper()
	origLoad, origPut, origPresign := loadDefaultAWSConfig, putObject, presignGetObject
	t.Cleanup(func() {
		loadDefaultAWSConfig, putObject, presignGetObject = origLoad, origPut, origPresign
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*config.LoadOptions) error) (aws.Config, error) {
		return aws.Config{Region: "us-east-1"}, nil
	}
	putObject = func(_ *s3.Client, _ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		if err := put(in); err != nil {
			return nil, err
		}
		return &s3.PutObjectOutput{}, nil
	}
	presignGetObject = func(_ *s3.PresignClient, _ context.Context, in *s3.GetObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return &v4.PresignedHTTPRequest{URL: presignURL + "/" + aws.ToString(in.Key)}, nil
	}
}

func TestS3BlobStorePublicURL(t *testing.T) {
	var gotKey, gotType string
	var gotBody []byte
	stubS3(t, func(in *s3.PutObjectInput) error {
		gotKey = aws.ToString(in.Key)
		gotType = aws.ToString(in.ContentType)
		gotBody, _ = io.ReadAll(in.Body)
		assert.Equal(t, "thumbs", aws.ToString(in.Bucket))
		return nil
	}, "")

	s, err := NewS3BlobStore(context.Background(), S3Config{Bucket: "thumbs", PublicBaseURL: "https://cdn.example/"})
	require.NoError(t, err)
	loc, err := s.Put(context.Background(), "thumbnails/u1/x.png", []byte("img"), "image/png")
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example/thumbnails/u1/x.png", loc)
	assert.Equal(t, "thumbnails/u1/x.png", gotKey)
	assert.Equal(t, "image/png", gotType)
	assert.Equal(t, []byte("img"), gotBody)
}

func TestS3BlobStorePresignsWithoutPublicURL(t *testing.T) {
	stubS3(t, func(*s3.PutObjectInput) error { return nil }, "https://minio.local/thumbs")

	s, err := NewS3BlobStore(context.Background(), S3Config{Bucket: "thumbs", Endpoint: "http://minio.local:9000", AccessKey: "k", SecretKey: "s"})
	require.NoError(t, err)
	loc, err := s.Put(context.Background(), "k.png", []byte("img"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "https://minio.local/thumbs/k.png", loc)
}

func TestS3BlobStorePutError(t *testing.T) {
	stubS3(t, func(*s3.PutObjectInput) error { return errors.New("access denied") }, "")

	s, err := NewS3BlobStore(context.Background(), S3Config{Bucket: "thumbs"})
	require.NoError(t, err)
	_, err = s.Put(context.Background(), "k.png", []byte("img"), "image/png")
	assert.ErrorContains(t, err, "access denied")
}

func TestNewS3BlobStoreRequiresBucket(t *testing.T) {
	_, err := NewS3BlobStore(context.Background(), S3Config{})
	assert.Error(t, err)
}

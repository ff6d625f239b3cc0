package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "lockets/01H/image", []byte("png"), "image/png"))
	got, err := s.Get(ctx, "lockets/01H/image")
	require.NoError(t, err)
	assert.Equal(t, "png", string(got))

	require.NoError(t, s.Put(ctx, "lockets/01H/image", []byte("png2"), "image/png"))
	got, _ = s.Get(ctx, "lockets/01H/image")
	assert.Equal(t, "png2", string(got))

	require.NoError(t, s.Delete(ctx, "lockets/01H/image"))
	_, err = s.Get(ctx, "lockets/01H/image")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, s.Delete(ctx, "lockets/01H/image"), "deleting a missing key is not an error")
}

func TestFSStore_RejectsTraversal(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, s.Put(context.Background(), "../escape", []byte("x"), ""))
	assert.Error(t, s.Put(context.Background(), "", []byte("x"), ""))
}

type fakeS3 struct {
	objects map[string][]byte
	types   map[string]string
	failPut bool
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.failPut {
		return nil, errors.New("access denied")
	}
	b, _ := io.ReadAll(in.Body)
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = b
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store(t *testing.T) {
	ctx := context.Background()
	api := newFakeS3()
	s := &S3Store{api: api, bucket: "lockets"}

	require.NoError(t, s.Put(ctx, "a/image", []byte("img"), "image/png"))
	assert.Equal(t, "image/png", api.types["a/image"])

	got, err := s.Get(ctx, "a/image")
	require.NoError(t, err)
	assert.Equal(t, "img", string(got))

	require.NoError(t, s.Delete(ctx, "a/image"))
	_, err = s.Get(ctx, "a/image")
	assert.ErrorIs(t, err, ErrNotFound)

	api.failPut = true
	assert.Error(t, s.Put(ctx, "b", []byte("x"), ""))
}

func TestNewS3Store_AppliesOptions(t *testing.T) {
	orig := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = orig })

	var lo awsconfig.LoadOptions
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		return aws.Config{Region: lo.Region}, nil
	}

	s, err := NewS3Store(context.Background(), S3Options{
		Bucket: "lockets", Region: "eu-west-1", Endpoint: "http://127.0.0.1:9000",
		AccessKey: "minio", SecretKey: "minio123", PathStyle: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "lockets", s.bucket)
	assert.Equal(t, "eu-west-1", lo.Region)
	require.NotNil(t, lo.Credentials)

	creds, err := lo.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "minio", creds.AccessKeyID)

	_, err = NewS3Store(context.Background(), S3Options{})
	assert.Error(t, err)

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no config")
	}
	_, err = NewS3Store(context.Background(), S3Options{Bucket: "b"})
	assert.Error(t, err)
}

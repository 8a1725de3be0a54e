package source

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docrag/internal/errors"
)

type mockS3 struct {
	mock.Mock
}

func (m *mockS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.ListObjectsV2Output)
	return out, args.Error(1)
}

func (m *mockS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.GetObjectOutput)
	return out, args.Error(1)
}

func firstPage(in *s3.ListObjectsV2Input) bool {
	return in.ContinuationToken == nil
}

func TestS3Source_WalkPagesAndStripsPrefix(t *testing.T) {
	// Given two pages of objects, including a directory placeholder
	client := new(mockS3)
	modified := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	client.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return firstPage(in) && *in.Bucket == "corpus" && *in.Prefix == "docs/"
	})).Return(&s3.ListObjectsV2Output{
		Contents: []types.Object{
			{Key: aws.String("docs/"), Size: aws.Int64(0)},
			{Key: aws.String("docs/a.md"), Size: aws.Int64(3), LastModified: aws.Time(modified)},
		},
		IsTruncated:           aws.Bool(true),
		NextContinuationToken: aws.String("t1"),
	}, nil).Once()
	client.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return in.ContinuationToken != nil && *in.ContinuationToken == "t1"
	})).Return(&s3.ListObjectsV2Output{
		Contents:    []types.Object{{Key: aws.String("docs/sub/b.PDF"), Size: aws.Int64(9)}},
		IsTruncated: aws.Bool(false),
	}, nil).Once()

	src := NewS3SourceWithClient(client, "corpus", "docs/")

	// When walking
	var docs []Document
	require.NoError(t, src.Walk(context.Background(), func(d Document) error {
		docs = append(docs, d)
		return nil
	}))

	// Then keys are relative, placeholders skipped, metadata carried
	require.Len(t, docs, 2)
	assert.Equal(t, "a.md", docs[0].ID)
	assert.Equal(t, int64(3), docs[0].Size)
	assert.Equal(t, modified, docs[0].ModTime)
	assert.Equal(t, "sub/b.PDF", docs[1].ID)
	assert.Equal(t, ".pdf", docs[1].Ext)
	assert.Equal(t, "s3://corpus/docs/", src.Name())
	client.AssertExpectations(t)
}

func TestS3Source_OpenReadsObject(t *testing.T) {
	client := new(mockS3)
	client.On("ListObjectsV2", mock.Anything, mock.Anything).Return(&s3.ListObjectsV2Output{
		Contents: []types.Object{{Key: aws.String("p/a.txt"), Size: aws.Int64(5)}},
	}, nil).Once()
	client.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return *in.Bucket == "b" && *in.Key == "p/a.txt"
	})).Return(&s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("hello"))}, nil).Once()

	src := NewS3SourceWithClient(client, "b", "p/")
	var doc Document
	require.NoError(t, src.Walk(context.Background(), func(d Document) error {
		doc = d
		return nil
	}))

	rc, err := doc.Open(context.Background())
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestS3Source_ErrorClassification(t *testing.T) {
	t.Run("missing bucket is a configuration error", func(t *testing.T) {
		client := new(mockS3)
		client.On("ListObjectsV2", mock.Anything, mock.Anything).Return(nil, &types.NoSuchBucket{}).Once()

		err := NewS3SourceWithClient(client, "gone", "").Walk(context.Background(), func(Document) error { return nil })
		assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetCode(err))
		assert.True(t, errors.IsFatal(err))
	})

	t.Run("missing key is not found", func(t *testing.T) {
		client := new(mockS3)
		client.On("ListObjectsV2", mock.Anything, mock.Anything).Return(&s3.ListObjectsV2Output{
			Contents: []types.Object{{Key: aws.String("a.md")}},
		}, nil).Once()
		client.On("GetObject", mock.Anything, mock.Anything).Return(nil, &types.NoSuchKey{}).Once()

		src := NewS3SourceWithClient(client, "b", "")
		err := src.Walk(context.Background(), func(d Document) error {
			_, err := d.Open(context.Background())
			return err
		})
		assert.Equal(t, errors.ErrCodeFileNotFound, errors.GetCode(err))
	})
}

// fakeMinIO serves a fixed listing.
type fakeMinIO struct {
	objects []minio.ObjectInfo
	opts    minio.ListObjectsOptions
	getErr  error
}

func (f *fakeMinIO) ListObjects(ctx context.Context, _ string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	f.opts = opts
	ch := make(chan minio.ObjectInfo)
	go func() {
		defer close(ch)
		for _, o := range f.objects {
			select {
			case ch <- o:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func (f *fakeMinIO) GetObject(context.Context, string, string, minio.GetObjectOptions) (*minio.Object, error) {
	return nil, f.getErr
}

func TestMinIOSource_Walk(t *testing.T) {
	// Given a listing with a placeholder key
	fake := &fakeMinIO{objects: []minio.ObjectInfo{
		{Key: "docs/"},
		{Key: "docs/a.md", Size: 4},
		{Key: "docs/b/c.txt", Size: 7},
	}}
	src := newMinIOSource(fake, "corpus", "docs/")

	// When walking
	ids := collect(t, src)

	// Then listing is recursive under the prefix and keys are relative
	assert.Equal(t, []string{"a.md", "b/c.txt"}, ids)
	assert.True(t, fake.opts.Recursive)
	assert.Equal(t, "docs/", fake.opts.Prefix)
	assert.Equal(t, "minio://corpus/docs/", src.Name())
}

func TestMinIOSource_ListErrorStopsWalk(t *testing.T) {
	fake := &fakeMinIO{objects: []minio.ObjectInfo{
		{Key: "a.md"},
		{Err: minio.ErrorResponse{Code: "NoSuchBucket", StatusCode: 404}},
		{Key: "b.md"},
	}}
	src := newMinIOSource(fake, "gone", "")

	var ids []string
	err := src.Walk(context.Background(), func(d Document) error {
		ids = append(ids, d.ID)
		return nil
	})
	assert.Equal(t, []string{"a.md"}, ids)
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetCode(err))
}

func TestMinIOSource_EarlyStopReleasesLister(t *testing.T) {
	fake := &fakeMinIO{objects: []minio.ObjectInfo{{Key: "a.md"}, {Key: "b.md"}, {Key: "c.md"}}}
	src := newMinIOSource(fake, "b", "")

	stop := errors.InternalError("stop", nil)
	err := src.Walk(context.Background(), func(Document) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestMinIOSource_OpenErrorClassified(t *testing.T) {
	fake := &fakeMinIO{
		objects: []minio.ObjectInfo{{Key: "a.md"}},
		getErr:  minio.ErrorResponse{Code: "AccessDenied", StatusCode: 403},
	}
	src := newMinIOSource(fake, "b", "")

	err := src.Walk(context.Background(), func(d Document) error {
		_, err := d.Open(context.Background())
		return err
	})
	assert.Equal(t, errors.ErrCodeCredentialsMissing, errors.GetCode(err))
}

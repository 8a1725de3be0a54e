package source

import (
	"context"
	stderrors "errors"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/Aman-CERP/docrag/internal/errors"
)

// S3Config tunes the AWS client. Credentials come from the default chain
// (environment, shared config, instance role).
type S3Config struct {
	Region       string
	Endpoint     string // Custom endpoint for S3-compatible services
	UsePathStyle bool
}

// S3API is the subset of *s3.Client the source uses.
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source lists documents under a bucket prefix.
type S3Source struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Source loads the default AWS configuration and builds a client.
func NewS3Source(ctx context.Context, bucket, prefix string, cfg S3Config) (*S3Source, error) {
	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.ConfigError("load aws configuration", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewS3SourceWithClient(client, bucket, prefix), nil
}

// NewS3SourceWithClient wraps an existing client.
func NewS3SourceWithClient(client S3API, bucket, prefix string) *S3Source {
	return &S3Source{client: client, bucket: bucket, prefix: prefix}
}

// Name implements Source.
func (s *S3Source) Name() string {
	return "s3://" + s.bucket + "/" + s.prefix
}

// Walk implements Source, paging through ListObjectsV2.
func (s *S3Source) Walk(ctx context.Context, fn WalkFunc) error {
	pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return s.classify(ctx, "list objects", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == "" || strings.HasSuffix(key, "/") {
				continue
			}
			rel := relativeKey(key, s.prefix)
			if rel == "" {
				continue
			}
			doc := Document{
				ID:      rel,
				Ext:     Ext(rel),
				Size:    aws.ToInt64(obj.Size),
				ModTime: aws.ToTime(obj.LastModified),
				open: func(ctx context.Context) (io.ReadCloser, error) {
					out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
						Bucket: aws.String(s.bucket),
						Key:    aws.String(key),
					})
					if err != nil {
						return nil, s.classify(ctx, "get object "+key, err)
					}
					return out.Body, nil
				},
			}
			if err := fn(doc); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *S3Source) classify(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var nsb *types.NoSuchBucket
	if stderrors.As(err, &nsb) {
		return errors.New(errors.ErrCodeConfigInvalid, "bucket "+s.bucket+" does not exist", err)
	}
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if stderrors.As(err, &nsk) || stderrors.As(err, &nf) {
		return errors.New(errors.ErrCodeFileNotFound, op+": not found", err)
	}
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			return errors.New(errors.ErrCodeCredentialsMissing, op+": access denied", err)
		case "SlowDown", "ServiceUnavailable", "InternalError":
			return errors.New(errors.ErrCodeProviderUnavailable, "s3 "+op, err)
		}
		return errors.IOError("s3 "+op, err)
	}
	return errors.NetworkError("s3 "+op, err)
}

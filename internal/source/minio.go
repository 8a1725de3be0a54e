package source

import (
	"context"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Aman-CERP/docrag/internal/errors"
)

// MinIOConfig addresses a MinIO (or any S3-compatible) endpoint.
type MinIOConfig struct {
	Endpoint  string // host:port, no scheme
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

// minioAPI is the subset of *minio.Client the source uses.
type minioAPI interface {
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	GetObject(ctx context.Context, bucket, object string, opts minio.GetObjectOptions) (*minio.Object, error)
}

// MinIOSource lists documents under a bucket prefix.
type MinIOSource struct {
	client minioAPI
	bucket string
	prefix string
}

// NewMinIOSource connects to cfg.Endpoint. No request is made until Walk.
func NewMinIOSource(bucket, prefix string, cfg MinIOConfig) (*MinIOSource, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "minio endpoint is not configured", nil).
			WithSuggestion("set sources.minio.endpoint or DOCRAG_MINIO_ENDPOINT")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New(errors.ErrCodeCredentialsMissing, "minio credentials are not configured", nil).
			WithSuggestion("set DOCRAG_MINIO_ACCESS_KEY and DOCRAG_MINIO_SECRET_KEY")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.ConfigError("create minio client", err)
	}
	return newMinIOSource(client, bucket, prefix), nil
}

func newMinIOSource(client minioAPI, bucket, prefix string) *MinIOSource {
	return &MinIOSource{client: client, bucket: bucket, prefix: prefix}
}

// Name implements Source.
func (s *MinIOSource) Name() string {
	return "minio://" + s.bucket + "/" + s.prefix
}

// Walk implements Source. Objects arrive in key order from the server;
// "directory" placeholder keys are skipped.
func (s *MinIOSource) Walk(ctx context.Context, fn WalkFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel() // stops the listing goroutine if fn bails out early

	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return s.classify(ctx, "list objects", obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		rel := relativeKey(obj.Key, s.prefix)
		if rel == "" {
			continue
		}
		key := obj.Key
		doc := Document{
			ID:      rel,
			Ext:     Ext(rel),
			Size:    obj.Size,
			ModTime: obj.LastModified,
			open: func(ctx context.Context) (io.ReadCloser, error) {
				o, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
				if err != nil {
					return nil, s.classify(ctx, "get object "+key, err)
				}
				return o, nil
			},
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (s *MinIOSource) classify(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchBucket":
		return errors.New(errors.ErrCodeConfigInvalid, "bucket "+s.bucket+" does not exist", err)
	case "NoSuchKey", "NotFound":
		return errors.New(errors.ErrCodeFileNotFound, op+": not found", err)
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return errors.New(errors.ErrCodeCredentialsMissing, op+": access denied", err)
	}
	if resp.StatusCode >= 500 {
		return errors.New(errors.ErrCodeProviderUnavailable, "minio "+op, err)
	}
	if resp.StatusCode == 0 {
		return errors.NetworkError("minio "+op, err)
	}
	return errors.IOError("minio "+op, err)
}

package source

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/examrag/internal/config"
	"github.com/xxxsen/examrag/internal/extract"
	appErr "github.com/xxxsen/examrag/internal/pkg/errors"
)

const maxObjectSize = 64 << 20

type s3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads a scraped feed from an S3 compatible bucket. Object keys
// below prefix become source ids.
type S3Source struct {
	client s3API
	bucket string
	prefix string
}

func NewS3Source(client s3API, bucket string, prefix string) *S3Source {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3Source{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Source) Name() string {
	return TypeS3 + ":" + s.bucket + "/" + s.prefix
}

func (s *S3Source) Load(ctx context.Context) ([]Result, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("bucket", s.bucket), zap.String("prefix", s.prefix))
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	var out []Result
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: list s3 objects: %w", appErr.ErrDependencyUnavailable, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			sourceID := strings.TrimPrefix(key, s.prefix)
			if sourceID == "" || strings.HasSuffix(key, "/") {
				continue
			}
			if !extract.Supported(sourceID) {
				logger.Debug("skip unsupported object", zap.String("key", key))
				continue
			}
			if aws.ToInt64(obj.Size) > maxObjectSize {
				out = append(out, Result{SourceID: sourceID, Err: &extract.Error{Source: sourceID, Err: fmt.Errorf("object too large: %d bytes", aws.ToInt64(obj.Size))}})
				continue
			}
			data, err := s.download(ctx, key)
			if err != nil {
				out = append(out, Result{SourceID: sourceID, Err: &extract.Error{Source: sourceID, Err: err}})
				continue
			}
			collected := time.Now()
			if obj.LastModified != nil {
				collected = *obj.LastModified
			}
			out = append(out, buildResult(path.Clean(sourceID), data, collected))
		}
	}
	return out, nil
}

func (s *S3Source) download(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, maxObjectSize))
}

func newS3Client(ctx context.Context, cfg config.S3Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.SecretID != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.SecretID, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: load s3 config: %w", appErr.ErrConfiguration, err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint == "" {
			return
		}
		o.BaseEndpoint = aws.String(endpointURL(cfg.Endpoint, cfg.UseSSL))
		o.UsePathStyle = true
	}), nil
}

func endpointURL(endpoint string, useSSL bool) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	scheme := "http"
	if useSSL {
		scheme = "https"
	}
	return scheme + "://" + endpoint
}

func init() {
	Register(TypeS3, func(ctx context.Context, cfg config.SourceConfig) (Source, error) {
		if cfg.S3.Bucket == "" {
			return nil, fmt.Errorf("%w: ingest.source.s3.bucket is required", appErr.ErrConfiguration)
		}
		client, err := newS3Client(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return NewS3Source(client, cfg.S3.Bucket, cfg.S3.Prefix), nil
	})
}

package chunkuploader

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/bitrise-io/go-utils/v2/log"
)

// ErrSourceNotFound is returned when the object behind a source does not exist.
var ErrSourceNotFound = errors.New("source object not found")

// S3Params configures the S3 client of an S3Source.
type S3Params struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint points the client to an S3 compatible store. Path style addressing is used with it.
	Endpoint string
}

// S3API is the part of the S3 client an S3Source uses.
type S3API interface {
	manager.DownloadAPIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Source reads an upload from an S3 object with ranged GETs.
// ReadAt has no context argument, so the context given to NewS3Source bounds every read.
type S3Source struct {
	ctx        context.Context
	downloader *manager.Downloader
	bucket     string
	key        string
	size       int64
}

// LoadS3Client creates an S3 client from params, falling back to the default credential chain
// when no static keys are given.
func LoadS3Client(ctx context.Context, params S3Params, logger log.Logger) (*s3.Client, error) {
	if params.Region == "" {
		return nil, fmt.Errorf("region must not be empty")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(params.Region),
	}

	if params.AccessKeyID != "" && params.SecretAccessKey != "" {
		logger.Debugf("aws credentials provided, using them...")
		opts = append(opts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(params.AccessKeyID, params.SecretAccessKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if params.Endpoint != "" {
			o.BaseEndpoint = aws.String(params.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// NewS3Source looks up the size of the object. A missing object is ErrSourceNotFound.
func NewS3Source(ctx context.Context, client S3API, bucket, key string) (*S3Source, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket must not be empty")
	}

	head, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapS3Error(err)
	}

	var size int64
	if head.ContentLength != nil {
		size = *head.ContentLength
	}

	downloader := manager.NewDownloader(client, func(d *manager.Downloader) {
		d.Concurrency = 1
	})

	return &S3Source{
		ctx:        ctx,
		downloader: downloader,
		bucket:     bucket,
		key:        key,
		size:       size,
	}, nil
}

// ReadAt fetches the bytes [off, off+len(p)) of the object.
func (s *S3Source) ReadAt(p []byte, off int64) (int, error) {
	if off >= s.size {
		return 0, io.EOF
	}

	want := int64(len(p))
	if off+want > s.size {
		want = s.size - off
	}
	if want == 0 {
		return 0, nil
	}

	buf := manager.NewWriteAtBuffer(make([]byte, 0, want))
	n, err := s.downloader.Download(s.ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", off, off+want-1)),
	})
	if err != nil {
		return 0, mapS3Error(err)
	}

	copied := copy(p, buf.Bytes()[:n])
	if copied < len(p) {
		return copied, io.EOF
	}
	return copied, nil
}

// Size returns the size of the object.
func (s *S3Source) Size() int64 {
	return s.size
}

func mapS3Error(err error) error {
	var apiError smithy.APIError
	if errors.As(err, &apiError) {
		switch apiError.(type) {
		case *types.NotFound, *types.NoSuchKey:
			return ErrSourceNotFound
		default:
			return fmt.Errorf("aws api error: %w", err)
		}
	}
	return fmt.Errorf("generic aws error: %w", err)
}

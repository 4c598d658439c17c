package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/zhengshuai-xiao/BlockDedup/internal"
)

var logger = internal.GetLogger("blockdedup_source")

var ErrSourceNotFound = errors.New("source not found")

const s3Scheme = "s3://"

// Source is an open input stream with a known size.
type Source struct {
	Name string
	Size int64
	io.ReadCloser
}

// Open opens a local path or an s3://bucket/key object.
func Open(ctx context.Context, uri string, opts internal.S3Config) (*Source, error) {
	if strings.HasPrefix(uri, s3Scheme) {
		bucket, key, err := ParseS3URI(uri)
		if err != nil {
			return nil, err
		}
		return openS3(ctx, bucket, key, opts)
	}
	return openFile(uri)
}

func openFile(path string) (*Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("source %s is a directory", path)
	}
	f, err := os.Open(path)
	if err != nil {
		logger.Errorf("failed to open %s: %s", path, err)
		return nil, err
	}
	return &Source{Name: path, Size: info.Size(), ReadCloser: f}, nil
}

// ParseS3URI splits s3://bucket/key. The key may contain slashes.
func ParseS3URI(uri string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(uri, s3Scheme)
	if rest == uri {
		return "", "", fmt.Errorf("%q is not an s3:// uri", uri)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 uri %q needs both a bucket and a key", uri)
	}
	return bucket, key, nil
}

func newS3Client(ctx context.Context, opts internal.S3Config) (*s3.Client, error) {
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	if opts.Endpoint != "" {
		endpoint := opts.Endpoint
		loadOpts = append(loadOpts, config.WithEndpointResolverWithOptions(
			aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				if service == s3.ServiceID {
					return aws.Endpoint{
						URL:           endpoint,
						SigningRegion: region,
					}, nil
				}
				return aws.Endpoint{}, fmt.Errorf("unknown endpoint requested")
			}),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = opts.Endpoint != ""
	}), nil
}

func openS3(ctx context.Context, bucket, key string, opts internal.S3Config) (*Source, error) {
	client, err := newS3Client(ctx, opts)
	if err != nil {
		return nil, err
	}
	name := s3Scheme + bucket + "/" + key

	head, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, name)
		}
		logger.Errorf("failed to stat %s: %s", name, err)
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}

	resp, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, name)
		}
		logger.Errorf("failed to get %s: %s", name, err)
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	size := aws.ToInt64(head.ContentLength)
	logger.Infof("streaming %s (%d bytes)", name, size)
	return &Source{Name: name, Size: size, ReadCloser: resp.Body}, nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	var nsb *types.NoSuchBucket
	return errors.As(err, &nf) || errors.As(err, &nsk) || errors.As(err, &nsb)
}

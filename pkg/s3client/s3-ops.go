package s3client

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/zhengshuai-xiao/BlockDedup/internal"
)

var logger = internal.GetLogger("blockdedup_s3client")

// NewCore builds a client for an S3 compatible endpoint. The endpoint may
// carry an http:// or https:// scheme, which then decides UseSSL.
func NewCore(conf internal.UploadConfig) (*miniogo.Core, error) {
	endpoint, secure := splitEndpoint(conf.Endpoint, conf.UseSSL)
	if endpoint == "" {
		return nil, fmt.Errorf("%w: empty upload endpoint", internal.ErrInvalidConf)
	}
	core, err := miniogo.NewCore(endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(conf.AccessKey, conf.SecretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client for %s: %w", endpoint, err)
	}
	return core, nil
}

func splitEndpoint(endpoint string, useSSL bool) (string, bool) {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return strings.TrimSuffix(strings.TrimPrefix(endpoint, "https://"), "/"), true
	case strings.HasPrefix(endpoint, "http://"):
		return strings.TrimSuffix(strings.TrimPrefix(endpoint, "http://"), "/"), false
	}
	return strings.TrimSuffix(endpoint, "/"), useSSL
}

// EnsureBucket creates bucket when it does not exist yet.
func EnsureBucket(ctx context.Context, core *miniogo.Core, bucket string) error {
	exists, err := core.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := core.MakeBucket(ctx, bucket, miniogo.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	logger.Infof("created bucket %s", bucket)
	return nil
}

// UploadReport puts a JSON report with its content hashes so the server
// rejects a corrupted body.
func UploadReport(ctx context.Context, core *miniogo.Core, bucket, object string, data []byte) (miniogo.UploadInfo, error) {
	md5Hash, sha256Hash, err := calculateHashes(bytes.NewReader(data))
	if err != nil {
		return miniogo.UploadInfo{}, fmt.Errorf("failed to calc hash: %w", err)
	}

	opts := miniogo.PutObjectOptions{
		ContentType: "application/json",
	}

	uploadInfo, err := core.PutObject(
		ctx,
		bucket,
		object,
		bytes.NewReader(data),
		int64(len(data)),
		md5Hash,    // base64
		sha256Hash, // hex
		opts,
	)
	if err != nil {
		logger.Errorf("failed to upload %s/%s: %s", bucket, object, err)
		return miniogo.UploadInfo{}, fmt.Errorf("failed to upload report[%s/%s]: %w", bucket, object, err)
	}
	logger.Infof("uploaded %s/%s (%d bytes, etag %s)", bucket, object, uploadInfo.Size, uploadInfo.ETag)
	return uploadInfo, nil
}

// ReportObjectName lays reports out by day, e.g. reports/2025/01/02/<run id>.json.
func ReportObjectName(runID string, year, month, day int) string {
	return fmt.Sprintf("reports/%04d/%02d/%02d/%s.json", year, month, day, runID)
}

func calculateHashes(r io.Reader) (md5Base64 string, sha256Hex string, err error) {
	md5Hasher := md5.New()
	sha256Hasher := sha256.New()

	multiWriter := io.MultiWriter(md5Hasher, sha256Hasher)
	if _, err := io.Copy(multiWriter, r); err != nil {
		return "", "", err
	}

	md5Bytes := md5Hasher.Sum(nil)
	md5Base64 = base64.StdEncoding.EncodeToString(md5Bytes)

	sha256Bytes := sha256Hasher.Sum(nil)
	sha256Hex = hex.EncodeToString(sha256Bytes)

	return md5Base64, sha256Hex, nil
}

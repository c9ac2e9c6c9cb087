package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"imagereview/internal/config"
)

// objectHeader is the subset of the S3 API the directory needs.
type objectHeader interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// R2FileDirectory checks that an uploaded file exists in Cloudflare R2 by
// issuing HeadObject on <prefix>/<fileID>.
type R2FileDirectory struct {
	client objectHeader
	bucket string
	prefix string
}

// NewR2FileDirectory constructs an S3-compatible client for Cloudflare R2.
func NewR2FileDirectory(ctx context.Context, cfg *config.Config) (*R2FileDirectory, error) {
	if !cfg.FileDirectoryEnabled() {
		return nil, fmt.Errorf("missing Cloudflare R2 configuration")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.R2AccessKeyID, cfg.R2SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for R2: %w", err)
	}

	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.R2AccountID)
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return newR2FileDirectory(s3Client, cfg.R2BucketName, cfg.R2FilePrefix), nil
}

func newR2FileDirectory(client objectHeader, bucket, prefix string) *R2FileDirectory {
	return &R2FileDirectory{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// Exists reports whether the file's object is present in the bucket.
func (d *R2FileDirectory) Exists(ctx context.Context, fileID string) (bool, error) {
	// fileIDs are opaque; refuse anything that would escape the prefix
	if fileID == "" || strings.Contains(fileID, "/") || strings.Contains(fileID, "..") {
		return false, nil
	}

	_, err := d.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(path.Join(d.prefix, fileID)),
	})
	if err == nil {
		return true, nil
	}

	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, fmt.Errorf("head object in r2: %w", err)
}

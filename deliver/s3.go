package deliver

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/amz.v1/aws"
	"gopkg.in/amz.v1/s3"

	"github.com/alanbriolat/video-relay/pipeline"
)

const defaultContentType = "binary/octet-stream"

type S3Config struct {
	// Either a known AWS region name, or any name when Endpoint is set (e.g. for an S3-compatible server).
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	// Key prefix for uploaded objects.
	Prefix string `yaml:"prefix"`
	// Objects larger than this are rejected without uploading. Zero means no limit.
	MaxObjectSize int64 `yaml:"maxObjectSize"`
}

func (c S3Config) region() (aws.Region, error) {
	if c.Endpoint != "" {
		return aws.Region{
			Name:                 c.Region,
			S3Endpoint:           c.Endpoint,
			S3LocationConstraint: true,
			Sign:                 aws.SignV2,
		}, nil
	}
	region, ok := aws.Regions[c.Region]
	if !ok {
		return aws.Region{}, fmt.Errorf("unknown S3 region %q", c.Region)
	}
	return region, nil
}

func (c S3Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("s3 bucket is required")
	}
	if c.MaxObjectSize < 0 {
		return fmt.Errorf("s3 max object size must not be negative")
	}
	_, err := c.region()
	return err
}

// S3 delivers artifacts as objects in a bucket, keyed by file name under an optional prefix.
type S3 struct {
	bucket        *s3.Bucket
	prefix        string
	maxObjectSize int64
	log           *zap.SugaredLogger
}

func NewS3(config S3Config) (*S3, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	region, _ := config.region()
	client := s3.New(aws.Auth{AccessKey: config.AccessKey, SecretKey: config.SecretKey}, region)
	return NewS3WithBucket(client.Bucket(config.Bucket), config.Prefix, config.MaxObjectSize), nil
}

func NewS3WithBucket(bucket *s3.Bucket, prefix string, maxObjectSize int64) *S3 {
	return &S3{
		bucket:        bucket,
		prefix:        prefix,
		maxObjectSize: maxObjectSize,
		log:           zap.S().Named("s3").With("bucket", bucket.Name),
	}
}

// Key is the object key an artifact is stored under.
func (d *S3) Key(artifact pipeline.Artifact) string {
	return path.Join(d.prefix, filepath.Base(artifact.Path))
}

func (d *S3) Deliver(ctx context.Context, artifact pipeline.Artifact) error {
	if err := ctx.Err(); err != nil {
		return transportFailure(err)
	}
	f, size, err := openArtifact(artifact)
	if err != nil {
		return err
	}
	defer f.Close()
	if d.maxObjectSize > 0 && size > d.maxObjectSize {
		return rejected("%d bytes exceeds the %d byte object limit", size, d.maxObjectSize)
	}

	key := d.Key(artifact)
	contentType := mime.TypeByExtension(filepath.Ext(artifact.Path))
	if contentType == "" {
		contentType = defaultContentType
	}
	d.log.Infow("uploading", "key", key, "size", size, "content_type", contentType)
	if err := d.bucket.PutReader(key, f, size, contentType, s3.Private); err != nil {
		var s3Err *s3.Error
		if errors.As(err, &s3Err) && s3Err.StatusCode >= 400 && s3Err.StatusCode < 500 {
			return rejected("s3 error %d %s: %s", s3Err.StatusCode, s3Err.Code, s3Err.Message)
		}
		return transportFailure(err)
	}
	d.log.Infow("uploaded", "key", key)
	return nil
}

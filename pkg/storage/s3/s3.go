// Package s3 uploads run artifacts to S3 or an S3-compatible store.
package s3

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	gferrors "github.com/logflow/geoflow/pkg/errors"
)

// Config holds S3 client configuration.
type Config struct {
	// Bucket receives the artifacts. Uploads are disabled when empty.
	Bucket string `yaml:"bucket"`

	// Prefix is prepended to every object key.
	Prefix string `yaml:"prefix"`

	// Region is the AWS region (e.g., "us-east-1")
	Region string `yaml:"region"`

	// Endpoint overrides the default S3 endpoint (for S3-compatible services)
	Endpoint string `yaml:"endpoint"`

	// UsePathStyle forces path-style addressing (for MinIO, LocalStack)
	UsePathStyle bool `yaml:"use_path_style"`

	// Credentials (optional - uses default chain if not provided)
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`

	UploadTimeout time.Duration `yaml:"upload_timeout"`
}

// DefaultConfig returns sensible defaults for S3 configuration.
func DefaultConfig() Config {
	return Config{
		Prefix:        "geoflow",
		UploadTimeout: 5 * time.Minute,
	}
}

// Enabled reports whether a bucket is configured.
func (c Config) Enabled() bool {
	return c.Bucket != ""
}

// putAPI is the subset of the S3 client used for uploads.
type putAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Client uploads files to one bucket.
type Client struct {
	cfg    Config
	client putAPI
}

// NewClient creates a new S3 client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	var opts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				cfg.SessionToken,
			),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Opts := []func(*s3.Options){}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return newClient(cfg, s3.NewFromConfig(awsCfg, s3Opts...)), nil
}

func newClient(cfg Config, api putAPI) *Client {
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = DefaultConfig().UploadTimeout
	}
	return &Client{cfg: cfg, client: api}
}

// Bucket returns the target bucket name.
func (c *Client) Bucket() string {
	return c.cfg.Bucket
}

// ObjectKey builds the key for an artifact: prefix/runID/basename.
func ObjectKey(prefix, runID, localPath string) string {
	parts := make([]string, 0, 3)
	if p := strings.Trim(prefix, "/"); p != "" {
		parts = append(parts, p)
	}
	if runID != "" {
		parts = append(parts, runID)
	}
	parts = append(parts, filepath.Base(localPath))
	return path.Join(parts...)
}

// Upload puts one local file under the run's key and returns the key.
func (c *Client) Upload(ctx context.Context, runID, localPath string) (string, error) {
	key := ObjectKey(c.cfg.Prefix, runID, localPath)

	f, err := os.Open(localPath)
	if err != nil {
		return key, gferrors.UploadFailed(key, err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.UploadTimeout)
	defer cancel()

	_, err = c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.cfg.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType(localPath)),
		Metadata:    map[string]string{"geoflow-run-id": runID},
	})
	if err != nil {
		return key, gferrors.UploadFailed(key, err)
	}
	return key, nil
}

// UploadAll uploads every path and returns the keys that succeeded along
// with the combined upload errors.
func (c *Client) UploadAll(ctx context.Context, runID string, paths []string) ([]string, error) {
	var keys []string
	var errs gferrors.MultiError
	for _, p := range paths {
		key, err := c.Upload(ctx, runID, p)
		if err != nil {
			errs.Add(err)
			continue
		}
		keys = append(keys, key)
	}
	return keys, errs.Combined()
}

func contentType(p string) string {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".csv":
		return "text/csv"
	case ".parquet":
		return "application/vnd.apache.parquet"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}

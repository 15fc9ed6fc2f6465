// Package s3 provides a remote Store over an S3 bucket. Values are
// codec-encoded objects keyed by the namespace layout and sanitized key,
// so a bucket can be shared by many instances and inspected with plain
// object tooling.
//
// Uploads can ride on the CargoShip transporter for multipart tuning and
// congestion control; when the optimized path fails the store falls back
// to a plain PutObject.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	awsconfig "github.com/scttfrdmn/cargoship/pkg/aws/config"
	cargoships3 "github.com/scttfrdmn/cargoship/pkg/aws/s3"

	"github.com/driftcache/driftcache/pkg/codec"
	"github.com/driftcache/driftcache/pkg/driver"
	pkgerrors "github.com/driftcache/driftcache/pkg/errors"
	"github.com/driftcache/driftcache/pkg/retry"
	"github.com/driftcache/driftcache/pkg/sanitize"
	"github.com/driftcache/driftcache/pkg/types"
	"github.com/driftcache/driftcache/pkg/utils"
)

// DriverName is the registry name of the S3 driver.
const DriverName = "s3"

// deleteBatchSize is the S3 DeleteObjects request limit.
const deleteBatchSize = 1000

func init() {
	driver.Register(driver.Descriptor{
		Name:      DriverName,
		Available: func(cfg *driver.Config) bool { return cfg.Path != "" },
		Open: func(ctx context.Context, cfg *driver.Config) (types.Store, error) {
			storeCfg := &Config{
				Bucket:          cfg.Path,
				Region:          cfg.Option("region", ""),
				Endpoint:        cfg.Option("endpoint", ""),
				AccessKeyID:     cfg.Option("access_key_id", ""),
				SecretAccessKey: cfg.Option("secret_access_key", ""),
				SessionToken:    cfg.Option("session_token", ""),
				ForcePathStyle:  cfg.Option("force_path_style", "") == "true",
			}
			if v := cfg.Option("max_retries", ""); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil {
					return nil, pkgerrors.NewError(pkgerrors.ErrCodeInvalidConfig,
						fmt.Sprintf("invalid max_retries %q", v)).WithCause(err)
				}
				storeCfg.MaxRetries = n
			}
			if v := cfg.Option("multipart_threshold", ""); v != "" {
				n, err := utils.ParseBytes(v)
				if err != nil {
					return nil, pkgerrors.NewError(pkgerrors.ErrCodeInvalidConfig,
						fmt.Sprintf("invalid multipart_threshold %q", v)).WithCause(err)
				}
				storeCfg.MultipartThreshold = n
			}
			if v := cfg.Option("concurrency", ""); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil {
					return nil, pkgerrors.NewError(pkgerrors.ErrCodeInvalidConfig,
						fmt.Sprintf("invalid concurrency %q", v)).WithCause(err)
				}
				storeCfg.Concurrency = n
			}
			if cfg.Option("disable_transporter", "") == "true" {
				storeCfg.DisableTransporter = true
			}
			return New(ctx, storeCfg, cfg.Layout)
		},
	})
}

// Config holds S3 connection settings.
type Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	ForcePathStyle  bool   `yaml:"force_path_style"`

	// MaxRetries bounds the SDK's own attempt count per call.
	MaxRetries int `yaml:"max_retries"`

	// DisableTransporter turns off CargoShip-optimized uploads.
	DisableTransporter bool `yaml:"disable_transporter"`

	// MultipartThreshold is the object size above which the transporter
	// switches to multipart uploads.
	MultipartThreshold int64 `yaml:"multipart_threshold"`

	// Concurrency bounds the transporter's parallel part uploads.
	Concurrency int `yaml:"concurrency"`

	// Retry configures the adapter-level retry of transient failures.
	Retry retry.Config `yaml:"retry"`
}

// Store implements types.Store over an S3 bucket.
type Store struct {
	client      *s3.Client
	transporter *cargoships3.Transporter
	bucket      string
	layout      types.Layout
	logger      *slog.Logger
	retrier     *retry.Retryer
}

// New connects to the bucket and verifies it is reachable.
func New(ctx context.Context, cfg *Config, layout types.Layout) (*Store, error) {
	if cfg == nil || cfg.Bucket == "" {
		return nil, pkgerrors.NewError(pkgerrors.ErrCodeMissingConfig, "bucket name cannot be empty").
			WithComponent("s3-store")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.MultipartThreshold <= 0 {
		cfg.MultipartThreshold = 32 * 1024 * 1024
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithRetryMaxAttempts(cfg.MaxRetries),
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	logger := slog.Default().With("component", "s3-store", "bucket", cfg.Bucket)

	var transporter *cargoships3.Transporter
	if !cfg.DisableTransporter {
		transporter = cargoships3.NewTransporter(client, awsconfig.S3Config{
			Bucket:             cfg.Bucket,
			StorageClass:       awsconfig.StorageClassStandard,
			MultipartThreshold: cfg.MultipartThreshold,
			MultipartChunkSize: 16 * 1024 * 1024,
			Concurrency:        cfg.Concurrency,
		})
		logger.Debug("CargoShip upload optimization enabled",
			"multipart_threshold", cfg.MultipartThreshold,
			"concurrency", cfg.Concurrency)
	}

	store := &Store{
		client:      client,
		transporter: transporter,
		bucket:      cfg.Bucket,
		layout:      layout,
		logger:      logger,
		retrier:     retry.New(cfg.Retry),
	}

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, store.translateError(err, "HeadBucket", cfg.Bucket)
	}
	return store, nil
}

func (s *Store) Get(ctx context.Context, key string) (any, bool, error) {
	var data []byte
	found := true
	err := s.retrier.DoWithContext(ctx, func(ctx context.Context) error {
		result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.objectKey(key)),
		})
		if err != nil {
			if isErrorType[*s3types.NoSuchKey](err) {
				found = false
				return nil
			}
			return s.translateError(err, "GetObject", key)
		}
		defer result.Body.Close()
		data, err = io.ReadAll(result.Body)
		if err != nil {
			return pkgerrors.NewError(pkgerrors.ErrCodeNetworkError, "failed to read object body").
				WithKey(key).WithCause(err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	value, err := codec.Deserialize(data)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value any) error {
	data, err := codec.Serialize(value)
	if err != nil {
		return err
	}
	objectKey := s.objectKey(key)

	return s.retrier.DoWithContext(ctx, func(ctx context.Context) error {
		if s.transporter != nil {
			archive := cargoships3.Archive{
				Key:          objectKey,
				Reader:       bytes.NewReader(data),
				Size:         int64(len(data)),
				StorageClass: awsconfig.StorageClassStandard,
				Metadata: map[string]string{
					"driftcache-value": "true",
				},
			}
			result, uploadErr := s.transporter.Upload(ctx, archive)
			if uploadErr == nil {
				s.logger.Debug("optimized upload completed",
					"key", key, "size", len(data), "duration", result.Duration)
				return nil
			}
			s.logger.Warn("optimized upload failed, falling back to PutObject",
				"key", key, "error", uploadErr)
		}

		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(objectKey),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
			ContentType:   aws.String("application/octet-stream"),
		})
		if err != nil {
			return s.translateError(err, "PutObject", key)
		}
		return nil
	})
}

func (s *Store) Remove(ctx context.Context, key string) error {
	return s.retrier.DoWithContext(ctx, func(ctx context.Context) error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.objectKey(key)),
		})
		if err != nil {
			return s.translateError(err, "DeleteObject", key)
		}
		return nil
	})
}

func (s *Store) Clear(ctx context.Context) error {
	return s.deletePrefix(ctx, s.prefix())
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	names, err := s.listNames(ctx, s.prefix())
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(names))
	for _, name := range names {
		keys = append(keys, sanitize.Unsanitize(name))
	}
	return keys, nil
}

func (s *Store) Iterate(ctx context.Context, visit types.IterateFunc) (any, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		result, err := visit(key)
		if err != nil {
			return nil, err
		}
		if result != nil {
			return result, nil
		}
	}
	return nil, nil
}

// DropInstance deletes every object under the prefix the options select.
func (s *Store) DropInstance(ctx context.Context, opts types.DropOptions) error {
	target := s.layout.DropDir(opts)
	prefix := ""
	if target != "" {
		prefix = target + "/"
	}
	if err := s.deletePrefix(ctx, prefix); err != nil {
		return err
	}
	s.logger.Debug("dropped namespace", "prefix", prefix)
	return nil
}

// listNames returns the object names under prefix with the prefix
// stripped, skipping anything nested deeper.
func (s *Store) listNames(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		var page *s3.ListObjectsV2Output
		err := s.retrier.DoWithContext(ctx, func(ctx context.Context) error {
			var err error
			page, err = paginator.NextPage(ctx)
			if err != nil {
				return s.translateError(err, "ListObjectsV2", prefix)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if name == "" || strings.Contains(name, "/") {
				continue
			}
			names = append(names, name)
		}
	}
	return names, nil
}

// deletePrefix removes every object under prefix in DeleteObjects
// batches.
func (s *Store) deletePrefix(ctx context.Context, prefix string) error {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		var page *s3.ListObjectsV2Output
		err := s.retrier.DoWithContext(ctx, func(ctx context.Context) error {
			var err error
			page, err = paginator.NextPage(ctx)
			if err != nil {
				return s.translateError(err, "ListObjectsV2", prefix)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for start := 0; start < len(page.Contents); start += deleteBatchSize {
			end := start + deleteBatchSize
			if end > len(page.Contents) {
				end = len(page.Contents)
			}
			objects := make([]s3types.ObjectIdentifier, 0, end-start)
			for _, obj := range page.Contents[start:end] {
				objects = append(objects, s3types.ObjectIdentifier{Key: obj.Key})
			}
			err := s.retrier.DoWithContext(ctx, func(ctx context.Context) error {
				_, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
					Bucket: aws.String(s.bucket),
					Delete: &s3types.Delete{
						Objects: objects,
						Quiet:   aws.Bool(true),
					},
				})
				if err != nil {
					return s.translateError(err, "DeleteObjects", prefix)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) objectKey(key string) string {
	return s.layout.KeyPath(sanitize.Sanitize(key))
}

func (s *Store) prefix() string {
	dir := s.layout.Dir()
	if dir == "" {
		return ""
	}
	return dir + "/"
}

// translateError maps AWS failures onto the structured error system so
// the retryer can tell transient faults from permanent ones.
func (s *Store) translateError(err error, operation, subject string) error {
	switch {
	case isErrorType[*s3types.NoSuchBucket](err):
		return pkgerrors.NewError(pkgerrors.ErrCodeBucketNotFound,
			fmt.Sprintf("bucket not found: %s", s.bucket)).
			WithComponent("s3-store").WithOperation(operation).WithCause(err)
	case isTimeout(err):
		return pkgerrors.NewError(pkgerrors.ErrCodeConnectionTimeout,
			fmt.Sprintf("%s timed out for %s", operation, subject)).
			WithComponent("s3-store").WithOperation(operation).WithCause(err)
	default:
		return pkgerrors.NewError(pkgerrors.ErrCodeBackingStore,
			fmt.Sprintf("%s failed for %s", operation, subject)).
			WithComponent("s3-store").WithOperation(operation).WithCause(err)
	}
}

// isErrorType checks if an error is of a specific type.
func isErrorType[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

func isTimeout(err error) bool {
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Compile-time interface check.
var _ types.Store = (*Store)(nil)

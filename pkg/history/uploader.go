package history

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"relaybot/pkg/config"
	"relaybot/pkg/logger"

	"github.com/avast/retry-go/v4"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const defaultUploadDelay = time.Second

// objectPutter is the subset of *s3.Client used for uploads.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader copies closed archive files into a bucket.
type Uploader struct {
	client      objectPutter
	bucket      string
	prefix      string
	deleteAfter bool
	maxRetries  int
	delay       time.Duration
	log         *slog.Logger
}

// NewUploader builds an S3 client from cfg. Static keys are used when set,
// otherwise the default AWS credential chain applies.
func NewUploader(ctx context.Context, cfg config.S3Config, log *slog.Logger) (*Uploader, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("history.s3.bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newUploader(client, cfg, log), nil
}

func newUploader(client objectPutter, cfg config.S3Config, log *slog.Logger) *Uploader {
	return &Uploader{
		client:      client,
		bucket:      cfg.Bucket,
		prefix:      strings.Trim(cfg.Prefix, "/"),
		deleteAfter: cfg.DeleteAfterUpload,
		maxRetries:  max(0, cfg.MaxRetries),
		delay:       defaultUploadDelay,
		log:         logger.OrDefault(log, "history.uploader"),
	}
}

// Start uploads every path received on files until ctx is cancelled.
func (u *Uploader) Start(ctx context.Context, files <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case localPath, ok := <-files:
			if !ok {
				return
			}
			if err := u.Upload(ctx, localPath); err != nil {
				u.log.Error("Upload history file failed", "file", filepath.Base(localPath), "error", err)
			}
		}
	}
}

// UploadExisting uploads every archive file already in dir, skipping paths
// in open.
func (u *Uploader) UploadExisting(ctx context.Context, dir string, open map[string]bool) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read history directory: %w", err)
	}

	uploaded := 0
	for _, entry := range entries {
		localPath := filepath.Join(dir, entry.Name())
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") || open[localPath] {
			continue
		}
		if err := u.Upload(ctx, localPath); err != nil {
			u.log.Error("Upload history file failed", "file", entry.Name(), "error", err)
			continue
		}
		uploaded++
	}

	return uploaded, nil
}

// Upload puts one file with retries and removes it afterwards when configured.
func (u *Uploader) Upload(ctx context.Context, localPath string) error {
	filename := filepath.Base(localPath)
	key, err := objectKey(u.prefix, filename)
	if err != nil {
		return err
	}

	err = retry.Do(
		func() error {
			return u.put(ctx, localPath, key)
		},
		retry.Context(ctx),
		retry.Attempts(uint(u.maxRetries+1)),
		retry.Delay(u.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			u.log.Warn("Upload attempt failed", "file", filename, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("upload %s: %w", filename, err)
	}

	u.log.Info("Uploaded history file", "file", filename, "bucket", u.bucket, "key", key)

	if u.deleteAfter {
		if err := os.Remove(localPath); err != nil {
			u.log.Error("Delete uploaded file failed", "file", filename, "error", err)
		}
	}

	return nil
}

func (u *Uploader) put(ctx context.Context, localPath string, key string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return retry.Unrecoverable(fmt.Errorf("open file: %w", err))
	}
	defer file.Close()

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}

	return nil
}

// objectKey maps discord_123_20251230_103000_ab12cd34.jsonl to
// [prefix/]2025/12/30/discord/123/discord_123_20251230_103000_ab12cd34.jsonl.
func objectKey(prefix string, filename string) (string, error) {
	parts := strings.Split(strings.TrimSuffix(filename, ".jsonl"), "_")
	if len(parts) < 5 {
		return "", fmt.Errorf("invalid history file name: %s", filename)
	}

	n := len(parts)
	created, err := time.Parse(fileTimeLayout, parts[n-3]+"_"+parts[n-2])
	if err != nil {
		return "", fmt.Errorf("parse history file time: %w", err)
	}

	platform := parts[0]
	target := strings.Join(parts[1:n-3], "_")

	return path.Join(prefix, created.Format("2006/01/02"), platform, target, filename), nil
}

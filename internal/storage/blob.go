package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// BlobStore persists raw media bytes and returns the URL the stored object
// is reachable at.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// NewBlobStore selects the blob backend: an S3-compatible client when the
// object storage config names a bucket and endpoint, otherwise a local
// directory store so the service works standalone.
func NewBlobStore(cfg ObjectStorageConfig, mediaDir string) (BlobStore, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if bucket == "" || endpoint == "" {
		return newLocalBlobStore(mediaDir)
	}
	return newS3BlobStore(cfg)
}

type s3BlobStore struct {
	client *s3.Client
	cfg    ObjectStorageConfig
	base   string
}

func newS3BlobStore(cfg ObjectStorageConfig) (*s3BlobStore, error) {
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			strings.TrimSpace(cfg.AccessKey),
			strings.TrimSpace(cfg.SecretKey),
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("configure object storage: %w", err)
	}
	base := normalizeEndpoint(cfg.Endpoint, cfg.UseSSL)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(base)
		o.UsePathStyle = true
	})
	return &s3BlobStore{client: client, cfg: cfg, base: base}, nil
}

func normalizeEndpoint(endpoint string, useSSL bool) string {
	trimmed := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if strings.Contains(trimmed, "://") {
		return trimmed
	}
	scheme := "http"
	if useSSL {
		scheme = "https"
	}
	return scheme + "://" + trimmed
}

func (s *s3BlobStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	finalKey := s.applyPrefix(key)
	if contentType == "" {
		contentType = DefaultMediaContentType
	}
	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.requestTimeout())
	defer cancel()
	_, err := s.client.PutObject(reqCtx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(finalKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload object %s: %w", finalKey, err)
	}
	return s.objectURL(finalKey), nil
}

func (s *s3BlobStore) applyPrefix(key string) string {
	trimmed := strings.TrimLeft(strings.TrimSpace(key), "/")
	prefix := strings.Trim(strings.TrimSpace(s.cfg.Prefix), "/")
	if prefix == "" || trimmed == prefix || strings.HasPrefix(trimmed, prefix+"/") {
		return trimmed
	}
	return prefix + "/" + trimmed
}

func (s *s3BlobStore) objectURL(key string) string {
	if public := strings.TrimRight(strings.TrimSpace(s.cfg.PublicEndpoint), "/"); public != "" {
		return public + "/" + strings.TrimLeft(key, "/")
	}
	return s.base + "/" + path.Join(s.cfg.Bucket, key)
}

// localBlobStore keeps media bytes on disk under a single directory. URLs
// are rooted at /media/ and served by the HTTP server.
type localBlobStore struct {
	dir string
}

func newLocalBlobStore(dir string) (*localBlobStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "mediadrop-media")
	}
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir %s: %w", dir, err)
	}
	return &localBlobStore{dir: dir}, nil
}

func (s *localBlobStore) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	cleaned := path.Clean("/" + key)
	target := filepath.Join(s.dir, filepath.FromSlash(cleaned))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create media subdir: %w", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("write media file %s: %w", cleaned, err)
	}
	return "/media" + cleaned, nil
}

// Dir reports the backing directory so the server can mount a file handler.
func (s *localBlobStore) Dir() string { return s.dir }

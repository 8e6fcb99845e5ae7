package storage

import (
	"errors"
	"time"
)

const (
	defaultObjectRequestTimeout = 30 * time.Second

	// DefaultMediaContentType is applied when an uploaded part does not
	// declare its own content type.
	DefaultMediaContentType = "application/octet-stream"
)

var (
	// ErrPostIDRequired indicates a post was submitted without an identifier.
	ErrPostIDRequired = errors.New("post id required")
	// ErrPostTitleRequired indicates a post was submitted without a title.
	ErrPostTitleRequired = errors.New("post title required")
)

// ObjectStorageConfig describes the S3-compatible endpoint media bytes are
// written to. When Bucket or Endpoint is empty the repository falls back to
// a local directory store.
type ObjectStorageConfig struct {
	Endpoint       string
	Region         string
	AccessKey      string
	SecretKey      string
	Bucket         string
	Prefix         string
	PublicEndpoint string
	UseSSL         bool
	RequestTimeout time.Duration
}

func (cfg ObjectStorageConfig) requestTimeout() time.Duration {
	if cfg.RequestTimeout <= 0 {
		return defaultObjectRequestTimeout
	}
	return cfg.RequestTimeout
}

// Option configures a repository during construction.
type Option func(*settings)

type settings struct {
	objectStorage ObjectStorageConfig
	mediaDir      string
	blobs         BlobStore
}

// WithObjectStorage wires an S3-compatible object store for media bytes.
func WithObjectStorage(cfg ObjectStorageConfig) Option {
	return func(s *settings) {
		s.objectStorage = cfg
	}
}

// WithMediaDir sets the local directory used for media bytes when no
// object storage endpoint is configured.
func WithMediaDir(dir string) Option {
	return func(s *settings) {
		s.mediaDir = dir
	}
}

// WithBlobStore injects a pre-built blob store, primarily for tests.
func WithBlobStore(store BlobStore) Option {
	return func(s *settings) {
		s.blobs = store
	}
}

func applyOptions(opts []Option) settings {
	var s settings
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	return s
}

func (s settings) blobStore() (BlobStore, error) {
	if s.blobs != nil {
		return s.blobs, nil
	}
	return NewBlobStore(s.objectStorage, s.mediaDir)
}

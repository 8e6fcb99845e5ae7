package storage

import (
	"context"

	"mediadrop/internal/models"
)

// Repository exposes the datastore operations required by the API handlers.
// Media bytes are delegated to a BlobStore; post metadata and the server
// registry live in the backing store selected at startup.
type Repository interface {
	Ping(ctx context.Context) error

	// UploadMediaFile stores the raw bytes for one media object under the
	// given post and returns the URL the object is reachable at.
	UploadMediaFile(ctx context.Context, postID, name string, data []byte, contentType string) (string, error)

	// CreatePostWithThumbnail persists the post metadata together with the
	// thumbnail URL in a single call. An existing post with the same ID is
	// overwritten; identifier collisions are an accepted hazard of the
	// timestamp-derived ID scheme.
	CreatePostWithThumbnail(ctx context.Context, post models.Post, thumbnailURL string) (models.Post, error)

	GetPost(ctx context.Context, id string) (models.Post, bool, error)
	ListPosts(ctx context.Context) ([]models.Post, error)

	// ListServers returns the registry of known server names, sorted.
	ListServers(ctx context.Context) ([]string, error)

	// UpdateServers replaces the registry wholesale. Concurrent writers
	// race with last-writer-wins semantics; callers accept that a
	// concurrently added name may be dropped.
	UpdateServers(ctx context.Context, servers []string) error

	Close(ctx context.Context) error
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"mediadrop/internal/models"
)

type dataset struct {
	Posts   map[string]models.Post `json:"posts"`
	Servers []string               `json:"servers"`
}

func (d *dataset) ensureInitialized() {
	if d.Posts == nil {
		d.Posts = make(map[string]models.Post)
	}
	if d.Servers == nil {
		d.Servers = []string{}
	}
}

// Storage is the JSON-file-backed repository used for local development and
// tests. All state lives in memory guarded by a mutex and is flushed to the
// snapshot path after every mutation. An empty path keeps the store purely
// in memory.
type Storage struct {
	mu    sync.RWMutex
	path  string
	data  dataset
	blobs BlobStore
}

var _ Repository = (*Storage)(nil)

// NewStorage opens the JSON-backed datastore, loading an existing snapshot
// when one is present at path.
func NewStorage(path string, opts ...Option) (*Storage, error) {
	cfg := applyOptions(opts)
	blobs, err := cfg.blobStore()
	if err != nil {
		return nil, err
	}
	s := &Storage{path: strings.TrimSpace(path), blobs: blobs}
	s.data.ensureInitialized()
	if s.path != "" {
		if err := s.load(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// NewJSONRepository opens the JSON-backed datastore and returns it as a
// Repository.
func NewJSONRepository(path string, opts ...Option) (Repository, error) {
	return NewStorage(path, opts...)
}

func (s *Storage) load() error {
	file, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open datastore %s: %w", s.path, err)
	}
	defer file.Close()
	var data dataset
	if err := json.NewDecoder(file).Decode(&data); err != nil {
		return fmt.Errorf("decode datastore %s: %w", s.path, err)
	}
	data.ensureInitialized()
	s.data = data
	return nil
}

// persistLocked flushes the dataset to disk with a temp-file rename so a
// crash mid-write never leaves a truncated snapshot. Callers must hold the
// write lock.
func (s *Storage) persistLocked() error {
	if s.path == "" {
		return nil
	}
	payload, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode datastore: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".mediadrop-*")
	if err != nil {
		return fmt.Errorf("create datastore temp file: %w", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write datastore: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close datastore temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace datastore %s: %w", s.path, err)
	}
	return nil
}

func (s *Storage) Ping(context.Context) error { return nil }

func (s *Storage) UploadMediaFile(ctx context.Context, postID, name string, data []byte, contentType string) (string, error) {
	if strings.TrimSpace(postID) == "" {
		return "", ErrPostIDRequired
	}
	key := fmt.Sprintf("posts/%s/%s", postID, name)
	return s.blobs.Put(ctx, key, contentType, data)
}

func (s *Storage) CreatePostWithThumbnail(_ context.Context, post models.Post, thumbnailURL string) (models.Post, error) {
	if strings.TrimSpace(post.ID) == "" {
		return models.Post{}, ErrPostIDRequired
	}
	if strings.TrimSpace(post.Title) == "" {
		return models.Post{}, ErrPostTitleRequired
	}
	stored := post.Clone()
	stored.ThumbnailURL = thumbnailURL

	s.mu.Lock()
	defer s.mu.Unlock()
	previous, existed := s.data.Posts[stored.ID]
	s.data.Posts[stored.ID] = stored
	if err := s.persistLocked(); err != nil {
		if existed {
			s.data.Posts[stored.ID] = previous
		} else {
			delete(s.data.Posts, stored.ID)
		}
		return models.Post{}, err
	}
	return stored.Clone(), nil
}

func (s *Storage) GetPost(_ context.Context, id string) (models.Post, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	post, ok := s.data.Posts[id]
	if !ok {
		return models.Post{}, false, nil
	}
	return post.Clone(), true, nil
}

func (s *Storage) ListPosts(context.Context) ([]models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	posts := make([]models.Post, 0, len(s.data.Posts))
	for _, post := range s.data.Posts {
		posts = append(posts, post.Clone())
	}
	sort.Slice(posts, func(i, j int) bool {
		if posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].ID > posts[j].ID
		}
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
	return posts, nil
}

func (s *Storage) ListServers(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	servers := append([]string(nil), s.data.Servers...)
	sort.Strings(servers)
	return servers, nil
}

func (s *Storage) UpdateServers(_ context.Context, servers []string) error {
	replacement := append([]string(nil), servers...)
	sort.Strings(replacement)

	s.mu.Lock()
	defer s.mu.Unlock()
	previous := s.data.Servers
	s.data.Servers = replacement
	if err := s.persistLocked(); err != nil {
		s.data.Servers = previous
		return err
	}
	return nil
}

func (s *Storage) Close(context.Context) error { return nil }

// MediaDir reports the local media directory when the blob store is
// directory-backed, so the HTTP server can serve the files directly.
func (s *Storage) MediaDir() (string, bool) {
	if local, ok := s.blobs.(*localBlobStore); ok {
		return local.Dir(), true
	}
	return "", false
}

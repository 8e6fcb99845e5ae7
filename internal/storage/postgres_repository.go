package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mediadrop/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS posts (
    id            TEXT PRIMARY KEY,
    title         TEXT NOT NULL,
    description   TEXT NOT NULL,
    country       TEXT NOT NULL DEFAULT '',
    city          TEXT NOT NULL DEFAULT '',
    server        TEXT NOT NULL DEFAULT '',
    nsfw          BOOLEAN NOT NULL DEFAULT FALSE,
    media_files   TEXT[] NOT NULL DEFAULT '{}',
    thumbnail_url TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS servers (
    name TEXT PRIMARY KEY
);
`

type postgresRepository struct {
	pool  *pgxpool.Pool
	cfg   PostgresConfig
	blobs BlobStore
}

var _ Repository = (*postgresRepository)(nil)

// NewPostgresRepository opens a Postgres-backed repository and ensures the
// schema exists.
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig, opts ...Option) (Repository, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}
	settings := applyOptions(opts)
	blobs, err := settings.blobStore()
	if err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections > 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	repo := &postgresRepository{pool: pool, cfg: cfg, blobs: blobs}
	if err := repo.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

func (r *postgresRepository) ensureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (r *postgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *postgresRepository) UploadMediaFile(ctx context.Context, postID, name string, data []byte, contentType string) (string, error) {
	if strings.TrimSpace(postID) == "" {
		return "", ErrPostIDRequired
	}
	key := fmt.Sprintf("posts/%s/%s", postID, name)
	return r.blobs.Put(ctx, key, contentType, data)
}

func (r *postgresRepository) CreatePostWithThumbnail(ctx context.Context, post models.Post, thumbnailURL string) (models.Post, error) {
	if strings.TrimSpace(post.ID) == "" {
		return models.Post{}, ErrPostIDRequired
	}
	if strings.TrimSpace(post.Title) == "" {
		return models.Post{}, ErrPostTitleRequired
	}
	stored := post.Clone()
	stored.ThumbnailURL = thumbnailURL
	if stored.MediaFiles == nil {
		stored.MediaFiles = []string{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO posts (id, title, description, country, city, server, nsfw, media_files, thumbnail_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			country = EXCLUDED.country,
			city = EXCLUDED.city,
			server = EXCLUDED.server,
			nsfw = EXCLUDED.nsfw,
			media_files = EXCLUDED.media_files,
			thumbnail_url = EXCLUDED.thumbnail_url,
			created_at = EXCLUDED.created_at`,
		stored.ID, stored.Title, stored.Description, stored.Country, stored.City,
		stored.Server, stored.NSFW, stored.MediaFiles, stored.ThumbnailURL, stored.CreatedAt)
	if err != nil {
		return models.Post{}, fmt.Errorf("insert post %s: %w", stored.ID, err)
	}
	return stored, nil
}

func (r *postgresRepository) GetPost(ctx context.Context, id string) (models.Post, bool, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, title, description, country, city, server, nsfw, media_files, thumbnail_url, created_at
		FROM posts WHERE id = $1`, id)
	post, err := scanPost(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Post{}, false, nil
	}
	if err != nil {
		return models.Post{}, false, fmt.Errorf("get post %s: %w", id, err)
	}
	return post, true, nil
}

func (r *postgresRepository) ListPosts(ctx context.Context) ([]models.Post, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, title, description, country, city, server, nsfw, media_files, thumbnail_url, created_at
		FROM posts ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()
	posts := make([]models.Post, 0)
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

func scanPost(row pgx.Row) (models.Post, error) {
	var post models.Post
	err := row.Scan(&post.ID, &post.Title, &post.Description, &post.Country, &post.City,
		&post.Server, &post.NSFW, &post.MediaFiles, &post.ThumbnailURL, &post.CreatedAt)
	return post, err
}

func (r *postgresRepository) ListServers(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT name FROM servers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	defer rows.Close()
	servers := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan server name: %w", err)
		}
		servers = append(servers, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	return servers, nil
}

// UpdateServers rewrites the registry wholesale inside one transaction. The
// read-modify-write cycle spanning ListServers and this call still races
// between concurrent uploads; the last writer's full list wins.
func (r *postgresRepository) UpdateServers(ctx context.Context, servers []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin registry update: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if _, err := tx.Exec(ctx, `DELETE FROM servers`); err != nil {
		return fmt.Errorf("clear servers: %w", err)
	}
	for _, name := range servers {
		if strings.TrimSpace(name) == "" {
			continue
		}
		if _, err := tx.Exec(ctx, `INSERT INTO servers (name) VALUES ($1) ON CONFLICT DO NOTHING`, name); err != nil {
			return fmt.Errorf("insert server %s: %w", name, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit registry update: %w", err)
	}
	return nil
}

func (r *postgresRepository) Close(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

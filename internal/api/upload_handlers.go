package api

import (
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"

	"mediadrop/internal/models"
	"mediadrop/internal/storage"
)

// maxUploadMemory bounds the multipart form buffer; larger file parts spill
// to temporary files.
const maxUploadMemory = 32 << 20

const (
	msgMissingFields    = "title, description, media and thumbnail are required"
	msgEmptyMedia       = "at least one media file is required"
	msgMissingThumbnail = "thumbnail file is required"
	msgInvalidMultipart = "invalid multipart payload"
	msgUploadFailed     = "failed to upload post"
)

type uploadSuccessResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	PostID     string `json:"postId"`
	MediaCount int    `json:"mediaCount"`
}

// ParseNSFW coerces the submitted nsfw form value. Only the literal "true"
// (a JSON boolean true arrives as that literal) marks a post as NSFW;
// every other value, including absence, is false.
func ParseNSFW(value string) bool {
	return strings.TrimSpace(value) == "true"
}

// createPost handles the multipart upload flow: validate, upload thumbnail
// then each media file in order, persist metadata, best-effort registry
// append, respond. All storage steps run sequentially; the first failure
// aborts the request with no partial-success response.
func (h *Handler) createPost(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r)

	// Final safety net: anything escaping the flow below is caught and
	// mapped like any other runtime failure.
	defer func() {
		if rec := recover(); rec != nil {
			h.metrics().ObserveUploadFailure()
			h.writeAPIError(w, logger, internalError(msgUploadFailed, fmt.Errorf("panic: %v", rec)))
		}
	}()

	if h.Verifier != nil {
		if _, ok := h.requireAuthorizedIdentity(w, r); !ok {
			return
		}
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		h.writeAPIError(w, logger, validationError(msgInvalidMultipart))
		return
	}
	form := r.MultipartForm

	title := strings.TrimSpace(r.FormValue("title"))
	description := strings.TrimSpace(r.FormValue("description"))
	mediaFiles, mediaPresent := form.File["media"]
	thumbnails, thumbnailPresent := form.File["thumbnail"]

	// Fail fast, first failure wins.
	if title == "" || description == "" || !mediaPresent || !thumbnailPresent {
		h.writeAPIError(w, logger, validationError(msgMissingFields))
		return
	}
	if len(mediaFiles) == 0 {
		h.writeAPIError(w, logger, validationError(msgEmptyMedia))
		return
	}
	if len(thumbnails) == 0 {
		h.writeAPIError(w, logger, validationError(msgMissingThumbnail))
		return
	}

	now := h.now()
	postID := storage.GeneratePostID(now)
	logger = logger.With("post_id", postID)
	logger.Info("upload started", "media_files", len(mediaFiles), "title", title)

	ctx := r.Context()
	var totalBytes int64

	// Only the first thumbnail is used; extras are ignored.
	thumbnail := thumbnails[0]
	thumbnailData, err := readMultipartFile(thumbnail)
	if err != nil {
		h.metrics().ObserveUploadFailure()
		h.writeAPIError(w, logger, storageError(msgUploadFailed, fmt.Errorf("read thumbnail: %w", err)))
		return
	}
	thumbnailName := storage.ThumbnailFileName(postID, thumbnail.Filename)
	thumbnailURL, err := h.Store.UploadMediaFile(ctx, postID, thumbnailName, thumbnailData, partContentType(thumbnail))
	if err != nil {
		h.metrics().ObserveUploadFailure()
		h.writeAPIError(w, logger, storageError(msgUploadFailed, fmt.Errorf("upload thumbnail: %w", err)))
		return
	}
	totalBytes += int64(len(thumbnailData))
	logger.Debug("thumbnail uploaded", "name", thumbnailName, "url", thumbnailURL)

	mediaNames := make([]string, 0, len(mediaFiles))
	for index, file := range mediaFiles {
		data, err := readMultipartFile(file)
		if err != nil {
			h.metrics().ObserveUploadFailure()
			h.writeAPIError(w, logger, storageError(msgUploadFailed, fmt.Errorf("read media %d: %w", index, err)))
			return
		}
		name := storage.MediaFileName(now, index, file.Filename)
		if _, err := h.Store.UploadMediaFile(ctx, postID, name, data, partContentType(file)); err != nil {
			h.metrics().ObserveUploadFailure()
			h.writeAPIError(w, logger, storageError(msgUploadFailed, fmt.Errorf("upload media %d: %w", index, err)))
			return
		}
		totalBytes += int64(len(data))
		mediaNames = append(mediaNames, name)
		logger.Debug("media file uploaded", "index", index, "name", name)
	}

	server := strings.TrimSpace(r.FormValue("server"))
	post := models.Post{
		ID:          postID,
		Title:       title,
		Description: description,
		Country:     strings.TrimSpace(r.FormValue("country")),
		City:        strings.TrimSpace(r.FormValue("city")),
		Server:      server,
		NSFW:        ParseNSFW(r.FormValue("nsfw")),
		MediaFiles:  mediaNames,
		CreatedAt:   now.UTC(),
	}
	if _, err := h.Store.CreatePostWithThumbnail(ctx, post, thumbnailURL); err != nil {
		h.metrics().ObserveUploadFailure()
		h.writeAPIError(w, logger, storageError(msgUploadFailed, fmt.Errorf("persist post: %w", err)))
		return
	}

	if server != "" {
		h.appendServer(r, logger, server)
	}

	h.metrics().ObserveUpload(len(mediaNames), totalBytes)
	logger.Info("upload completed", "media_files", len(mediaNames), "bytes", totalBytes)
	writeJSON(w, http.StatusOK, uploadSuccessResponse{
		Success:    true,
		Message:    "post uploaded",
		PostID:     postID,
		MediaCount: len(mediaNames),
	})
}

// appendServer adds the posting server to the registry when absent. The
// read-modify-write cycle is racy between concurrent uploads and the last
// writer's full list wins; failures here are logged and swallowed so the
// upload response is never affected.
func (h *Handler) appendServer(r *http.Request, logger *slog.Logger, server string) {
	ctx := r.Context()
	servers, err := h.Store.ListServers(ctx)
	if err != nil {
		logger.Error("server registry read failed", "server", server, "error", err)
		return
	}
	for _, existing := range servers {
		if existing == server {
			return
		}
	}
	servers = append(servers, server)
	sort.Strings(servers)
	if err := h.Store.UpdateServers(ctx, servers); err != nil {
		logger.Error("server registry update failed", "server", server, "error", err)
	}
}

func readMultipartFile(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

func partContentType(header *multipart.FileHeader) string {
	if contentType := strings.TrimSpace(header.Header.Get("Content-Type")); contentType != "" {
		return contentType
	}
	return storage.DefaultMediaContentType
}

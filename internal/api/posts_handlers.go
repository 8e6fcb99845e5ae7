package api

import (
	"fmt"
	"net/http"
	"strings"
)

// Posts dispatches the post collection endpoint: GET lists persisted
// posts, POST runs the multipart upload flow.
func (h *Handler) Posts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listPosts(w, r)
	case http.MethodPost:
		h.createPost(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		WriteError(w, http.StatusMethodNotAllowed, fmt.Sprintf("method %s not allowed", r.Method))
	}
}

func (h *Handler) listPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.Store.ListPosts(r.Context())
	if err != nil {
		h.writeAPIError(w, h.requestLogger(r), storageError("failed to list posts", err))
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

// PostByID serves a single post looked up from the request path.
func (h *Handler) PostByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		WriteError(w, http.StatusMethodNotAllowed, fmt.Sprintf("method %s not allowed", r.Method))
		return
	}
	id := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/api/posts/"))
	if id == "" || strings.Contains(id, "/") {
		WriteError(w, http.StatusNotFound, "post not found")
		return
	}
	post, ok, err := h.Store.GetPost(r.Context(), id)
	if err != nil {
		h.writeAPIError(w, h.requestLogger(r), storageError("failed to load post", err))
		return
	}
	if !ok {
		WriteError(w, http.StatusNotFound, "post not found")
		return
	}
	writeJSON(w, http.StatusOK, post)
}

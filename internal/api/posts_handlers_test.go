package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mediadrop/internal/models"
)

func TestListPosts(t *testing.T) {
	store := &stubStore{posts: []models.Post{
		{ID: "2", Title: "newer", CreatedAt: time.Now()},
		{ID: "1", Title: "older", CreatedAt: time.Now().Add(-time.Hour)},
	}}
	h := newTestHandler(store)

	resp := httptest.NewRecorder()
	h.Posts(resp, httptest.NewRequest(http.MethodGet, "/api/posts", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	var posts []models.Post
	if err := json.Unmarshal(resp.Body.Bytes(), &posts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(posts) != 2 || posts[0].ID != "2" {
		t.Fatalf("posts = %+v", posts)
	}
}

func TestPostByID(t *testing.T) {
	store := &stubStore{posts: []models.Post{{ID: "1700000000123", Title: "found"}}}
	h := newTestHandler(store)

	resp := httptest.NewRecorder()
	h.PostByID(resp, httptest.NewRequest(http.MethodGet, "/api/posts/1700000000123", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	var post models.Post
	if err := json.Unmarshal(resp.Body.Bytes(), &post); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if post.Title != "found" {
		t.Fatalf("title = %q", post.Title)
	}

	resp = httptest.NewRecorder()
	h.PostByID(resp, httptest.NewRequest(http.MethodGet, "/api/posts/unknown", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("missing post status = %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	h.PostByID(resp, httptest.NewRequest(http.MethodGet, "/api/posts/", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("empty id status = %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	h.PostByID(resp, httptest.NewRequest(http.MethodDelete, "/api/posts/1700000000123", nil))
	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("delete status = %d", resp.Code)
	}
}

func TestServers(t *testing.T) {
	store := &stubStore{servers: []string{"alpha", "beta"}}
	h := newTestHandler(store)

	resp := httptest.NewRecorder()
	h.Servers(resp, httptest.NewRequest(http.MethodGet, "/api/servers", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	body := decodeBody(t, resp)
	servers, ok := body["servers"].([]interface{})
	if !ok || len(servers) != 2 {
		t.Fatalf("servers = %v", body["servers"])
	}
}

func TestServersEmptyIsArray(t *testing.T) {
	h := newTestHandler(&stubStore{})
	resp := httptest.NewRecorder()
	h.Servers(resp, httptest.NewRequest(http.MethodGet, "/api/servers", nil))
	if got := resp.Body.String(); got != "{\"servers\":[]}\n" && got != "{\"servers\":[]}" {
		t.Fatalf("body = %q, want empty array not null", got)
	}
}

type failingPingStore struct {
	*stubStore
	pingErr error
}

func (s *failingPingStore) Ping(context.Context) error { return s.pingErr }

func TestHealth(t *testing.T) {
	h := newTestHandler(&stubStore{})
	resp := httptest.NewRecorder()
	h.Health(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	body := decodeBody(t, resp)
	if body["status"] != "ok" || body["auth"] != "disabled" {
		t.Fatalf("body = %v", body)
	}
}

func TestHealthDegraded(t *testing.T) {
	h := newTestHandler(&stubStore{})
	h.Store = &failingPingStore{stubStore: &stubStore{}, pingErr: errors.New("down")}

	resp := httptest.NewRecorder()
	h.Health(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", resp.Code)
	}
	body := decodeBody(t, resp)
	if body["status"] != "degraded" || body["storage"] != "unreachable" {
		t.Fatalf("body = %v", body)
	}
}

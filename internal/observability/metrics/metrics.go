// Package metrics aggregates in-memory counters for HTTP traffic and
// upload activity and exposes them in a plain-text format.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// Recorder aggregates request and upload counters. All methods are safe
// for concurrent use.
type Recorder struct {
	mu              sync.RWMutex
	requestCount    map[requestLabel]uint64
	requestDuration map[requestLabel]time.Duration
	uploadCount     uint64
	uploadMedia     uint64
	uploadBytes     uint64
	uploadFailures  uint64
}

var defaultRecorder = New()

// New constructs an empty Recorder.
func New() *Recorder {
	return &Recorder{
		requestCount:    make(map[requestLabel]uint64),
		requestDuration: make(map[requestLabel]time.Duration),
	}
}

// Default returns the shared Recorder instance.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest accumulates totals for request count and cumulative
// duration by method, path, and status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   path,
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// ObserveUpload records one successful upload with its media file count
// and total payload size.
func (r *Recorder) ObserveUpload(mediaFiles int, bytes int64) {
	r.mu.Lock()
	r.uploadCount++
	r.uploadMedia += uint64(mediaFiles)
	if bytes > 0 {
		r.uploadBytes += uint64(bytes)
	}
	r.mu.Unlock()
}

// ObserveUploadFailure records one failed upload request.
func (r *Recorder) ObserveUploadFailure() {
	r.mu.Lock()
	r.uploadFailures++
	r.mu.Unlock()
}

// Snapshot reports the upload counters for tests and health surfaces.
func (r *Recorder) Snapshot() (uploads, mediaFiles, bytes, failures uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.uploadCount, r.uploadMedia, r.uploadBytes, r.uploadFailures
}

// Handler exposes the counters in a Prometheus-style text format.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		r.mu.RLock()
		lines := make([]string, 0, len(r.requestCount)+4)
		for label, count := range r.requestCount {
			lines = append(lines, fmt.Sprintf(
				"mediadrop_http_requests_total{method=%q,path=%q,status=%q} %d",
				label.method, label.path, label.status, count))
			lines = append(lines, fmt.Sprintf(
				"mediadrop_http_request_duration_ms_total{method=%q,path=%q,status=%q} %d",
				label.method, label.path, label.status, r.requestDuration[label].Milliseconds()))
		}
		lines = append(lines,
			fmt.Sprintf("mediadrop_uploads_total %d", r.uploadCount),
			fmt.Sprintf("mediadrop_upload_media_files_total %d", r.uploadMedia),
			fmt.Sprintf("mediadrop_upload_bytes_total %d", r.uploadBytes),
			fmt.Sprintf("mediadrop_upload_failures_total %d", r.uploadFailures))
		r.mu.RUnlock()

		sort.Strings(lines)
		fmt.Fprintln(w, strings.Join(lines, "\n"))
	})
}

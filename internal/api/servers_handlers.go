package api

import (
	"fmt"
	"net/http"
)

type serversResponse struct {
	Servers []string `json:"servers"`
}

// Servers returns the sorted registry of server names observed across
// uploads.
func (h *Handler) Servers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		WriteError(w, http.StatusMethodNotAllowed, fmt.Sprintf("method %s not allowed", r.Method))
		return
	}
	servers, err := h.Store.ListServers(r.Context())
	if err != nil {
		h.writeAPIError(w, h.requestLogger(r), storageError("failed to list servers", err))
		return
	}
	if servers == nil {
		servers = []string{}
	}
	writeJSON(w, http.StatusOK, serversResponse{Servers: servers})
}

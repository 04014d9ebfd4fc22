package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"venmux/internal/manager"
	"venmux/internal/types"
)

type Handler struct {
	Mgr *manager.Manager
}

func NewHandler(mgr *manager.Manager) *Handler {
	return &Handler{Mgr: mgr}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/vendors", h.handleRegister)
	r.Get("/vendors", h.handleList)
	r.Get("/vendors/{id}/qr", h.handleQR)
	r.Patch("/vendors/{id}", h.handleUpdate)
	r.Delete("/vendors/{id}", h.handleDelete)
	r.Post("/vendors/{id}/messages", h.handleSend)
	r.Post("/broadcast", h.handleBroadcast)
	r.Get("/vendors/{id}/groups/{name}", h.handleFindGroup)
	r.Get("/vendors/{id}/conversations/{number}", h.handleHistory)
	r.Get("/health", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

type registerRequest struct {
	Name           string `json:"name"`
	AssignedNumber string `json:"assignedNumber"`
}

type updateRequest struct {
	Name           *string `json:"name"`
	PhoneNumber    *string `json:"phoneNumber"`
	AssignedNumber *string `json:"assignedNumber"`
}

type sendRequest struct {
	Target  string `json:"target"`
	Message string `json:"message"`
	IsGroup bool   `json:"isGroup"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.Name == "" || req.AssignedNumber == "" {
		http.Error(w, "name and assignedNumber are required", http.StatusBadRequest)
		return
	}
	id, port, err := h.Mgr.Register(r.Context(), req.Name, req.AssignedNumber)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"vendorId": id, "port": port})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Mgr.List(r.Context()))
}

func (h *Handler) handleQR(w http.ResponseWriter, r *http.Request) {
	png, err := h.Mgr.PairingImage(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !readJSON(w, r, &req) {
		return
	}
	// The paired and assigned numbers are identity, not profile; any attempt
	// to change them is rejected outright.
	if req.PhoneNumber != nil || req.AssignedNumber != nil {
		http.Error(w, types.ErrImmutableField.Error(), http.StatusBadRequest)
		return
	}
	if req.Name == nil || *req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	if err := h.Mgr.Rename(r.Context(), chi.URLParam(r, "id"), *req.Name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.Mgr.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.Target == "" || req.Message == "" {
		http.Error(w, "target and message are required", http.StatusBadRequest)
		return
	}
	err := h.Mgr.Send(r.Context(), chi.URLParam(r, "id"), req.Target, req.Message, req.IsGroup)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "sent"})
}

func (h *Handler) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.Target == "" || req.Message == "" {
		http.Error(w, "target and message are required", http.StatusBadRequest)
		return
	}
	outcomes := h.Mgr.Broadcast(r.Context(), req.Target, req.Message)
	writeJSON(w, http.StatusOK, map[string]any{"results": outcomes})
}

func (h *Handler) handleFindGroup(w http.ResponseWriter, r *http.Request) {
	group, err := h.Mgr.FindGroup(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Mgr.History(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "number"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Mgr.Metrics())
}

func readJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return false
	}
	defer func() {
		_ = r.Body.Close()
	}()
	if len(body) == 0 {
		http.Error(w, "empty body", http.StatusBadRequest)
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrPoolExhausted):
		http.Error(w, "at capacity", http.StatusServiceUnavailable)
	case errors.Is(err, types.ErrAlreadyRegistered):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, types.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, types.ErrDeliveryFailure):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

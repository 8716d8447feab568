// Package api exposes the session over HTTP.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ghalamif/sensorhub/internal/adapters/export"
	"github.com/ghalamif/sensorhub/internal/app/session"
	"github.com/ghalamif/sensorhub/internal/app/store"
	"github.com/ghalamif/sensorhub/internal/domain"
	"github.com/ghalamif/sensorhub/internal/ports"
)

// SessionControl is the part of the session controller the API drives.
type SessionControl interface {
	Connect(ctx context.Context, useSimulation bool) error
	Disconnect() error
}

type Handler struct {
	Store   *store.Store
	Session SessionControl
	// Window is the default number of readings per channel in chart windows.
	Window  int
	Metrics http.Handler
	Now     func() time.Time
}

type errorResponse struct {
	Ok      bool   `json:"ok"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type channelView struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Unit        string        `json:"unit"`
	Value       *float64      `json:"value"`
	LastUpdated time.Time     `json:"lastUpdated"`
	Status      domain.Status `json:"status"`
}

type snapshotView struct {
	Version    uint64                      `json:"version"`
	Connection domain.ConnectionState      `json:"connection"`
	DemoMode   bool                        `json:"demoMode"`
	DeviceName string                      `json:"deviceName,omitempty"`
	LastError  string                      `json:"lastError,omitempty"`
	StartedAt  *time.Time                  `json:"startedAt,omitempty"`
	Channels   []channelView               `json:"channels"`
	Readings   []domain.Reading            `json:"readings"`
	Windows    map[string][]domain.Reading `json:"windows"`
}

// NewRouter builds the chi router with the usual middleware stack.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	h.RegisterRoutes(r)
	return r
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Get("/snapshot", h.handleSnapshot)
	r.Get("/export.csv", h.handleExport)
	r.Post("/connect", h.handleConnect)
	r.Post("/disconnect", h.handleDisconnect)
	r.Post("/reset", h.handleReset)
	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics)
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	window := h.Window
	if v := r.URL.Query().Get("window"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_window", "window must be a non-negative integer")
			return
		}
		window = n
	}
	writeJSON(w, http.StatusOK, view(h.Store.Snapshot(), window))
}

func (h *Handler) handleExport(w http.ResponseWriter, _ *http.Request) {
	snap := h.Store.Snapshot()
	var buf bytes.Buffer
	if _, err := export.WriteCSV(&buf, snap); err != nil {
		if errors.Is(err, export.ErrNoData) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeError(w, http.StatusInternalServerError, "export_failed", err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName(snap, h.now())+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) handleConnect(w http.ResponseWriter, r *http.Request) {
	simulate := false
	if v := r.URL.Query().Get("simulate"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_simulate", "simulate must be a boolean")
			return
		}
		simulate = b
	}

	if err := h.Session.Connect(r.Context(), simulate); err != nil {
		switch {
		case errors.Is(err, session.ErrConnectInProgress), errors.Is(err, session.ErrConnectAborted):
			writeError(w, http.StatusConflict, "connect_conflict", err.Error())
		default:
			writeError(w, http.StatusBadGateway, string(ports.TransportErrorKindOf(err)), err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, view(h.Store.Snapshot(), h.Window))
}

func (h *Handler) handleDisconnect(w http.ResponseWriter, _ *http.Request) {
	if err := h.Session.Disconnect(); err != nil {
		writeError(w, http.StatusInternalServerError, "disconnect_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view(h.Store.Snapshot(), h.Window))
}

func (h *Handler) handleReset(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, view(h.Store.Reset(), h.Window))
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func view(snap *domain.Snapshot, window int) snapshotView {
	v := snapshotView{
		Version:    snap.Version(),
		Connection: snap.Connection(),
		DemoMode:   snap.DemoMode(),
		DeviceName: snap.DeviceName(),
		LastError:  snap.LastError(),
		Readings:   snap.Readings(),
		Windows:    map[string][]domain.Reading{},
	}
	if t := snap.StartedAt(); !t.IsZero() {
		v.StartedAt = &t
	}
	for _, c := range snap.Channels() {
		cv := channelView{
			ID:          c.ID,
			Name:        c.DisplayName(),
			Unit:        c.Unit,
			LastUpdated: c.LastUpdated,
			Status:      c.Status,
		}
		if val, ok := c.CurrentValue(); ok {
			cv.Value = &val
		}
		v.Channels = append(v.Channels, cv)
		if window > 0 {
			v.Windows[c.ID] = snap.Window(c.ID, window)
		}
	}
	if v.Channels == nil {
		v.Channels = []channelView{}
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Ok: false, Code: code, Message: msg})
}

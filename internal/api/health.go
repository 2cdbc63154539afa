package api

import (
	"context"
	"net/http"
	"time"
)

const livenessText = "Backend server is running"

// Root answers GET / with the plain-text liveness string.
func Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(livenessText))
}

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
	Watcher       *WatcherCounts    `json:"watcher,omitempty"`
}

// WatcherCounts are the watch folder totals since startup.
type WatcherCounts struct {
	FilesProcessed int64 `json:"files_processed"`
	FilesFailed    int64 `json:"files_failed"`
}

// WatcherStats is implemented by the watch folder ingester.
type WatcherStats interface {
	Stats() (processed, failed int64)
}

// HealthChecker is the database dependency of the health endpoint.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// StatusFunc reports the state of an optional subsystem. "ok" and
// "watching" count as healthy; anything else degrades the overall status.
type StatusFunc func() string

type HealthHandler struct {
	db        HealthChecker
	checks    map[string]StatusFunc
	watcher   WatcherStats // nil when no watch folder is configured
	version   string
	startTime time.Time
}

func NewHealthHandler(db HealthChecker, checks map[string]StatusFunc, watcher WatcherStats, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		db:        db,
		checks:    checks,
		watcher:   watcher,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checks)+1)
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.db.HealthCheck(r.Context()); err != nil {
		checks["database"] = "error"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	for name, fn := range h.checks {
		s := fn()
		checks[name] = s
		if s != "ok" && s != "watching" && status == "healthy" {
			status = "degraded"
		}
	}

	resp := HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	}
	if h.watcher != nil {
		processed, failed := h.watcher.Stats()
		resp.Watcher = &WatcherCounts{FilesProcessed: processed, FilesFailed: failed}
	}
	WriteJSON(w, httpStatus, resp)
}

package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/solask/emberdb/internal/infra/buildinfo"
)

// EngineStatus is the slice of the storage engine the health endpoint
// reports on.
type EngineStatus interface {
	Size() int
	MemoryUsage() int64
	LastSave() int64
}

// NewOpsHandler builds the operational route set: /metrics (when a
// metrics handler is supplied), /healthz, and /buildinfo.
func NewOpsHandler(metricsHandler http.Handler, engine EngineStatus, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"keys":        engine.Size(),
			"used_memory": engine.MemoryUsage(),
			"last_save":   engine.LastSave(),
			"checked_at":  time.Now().Unix(),
		})
	})

	mux.HandleFunc("/buildinfo", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, buildinfo.Get())
	})

	return Chain(mux, RequestID(), Recover(logger), Logging(logger))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

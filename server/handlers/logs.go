package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"logsink/models"
)

// LogReader reads stored events.
type LogReader interface {
	Query(ctx context.Context, filter models.Filter) ([]models.LogEvent, error)
}

// Logs is the query service behind GET /logs.
type Logs struct {
	reader LogReader
	logger *slog.Logger

	// marshal is swapped in tests to exercise the serialization failure path.
	marshal func(v any) ([]byte, error)
}

// NewLogs creates the logs query service.
func NewLogs(reader LogReader, logger *slog.Logger) *Logs {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Logs{
		reader:  reader,
		logger:  logger,
		marshal: json.Marshal,
	}
}

// ListLogs fetches the events matching filter and renders them as a JSON
// array. Failures are reported through the returned status and body; they
// never propagate past the caller.
func (l *Logs) ListLogs(ctx context.Context, filter models.Filter) ([]byte, int) {
	logs, err := l.reader.Query(ctx, filter)
	if err != nil {
		l.logger.Error("Error getting logs", "error", err)
		return []byte("Error getting logs"), http.StatusInternalServerError
	}
	if logs == nil {
		logs = []models.LogEvent{}
	}

	body, err := l.marshal(logs)
	if err != nil {
		l.logger.Error("Error converting logs to JSON", "error", err)
		return []byte("Error converting logs to JSON"), http.StatusInternalServerError
	}

	return body, http.StatusOK
}

// ServeHTTP handles the API endpoint for logs
func (l *Logs) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Set CORS headers for cross-origin requests in development
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	// Handle preflight OPTIONS request
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, status := l.ListLogs(r.Context(), parseFilter(r))

	if status == http.StatusOK {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.WriteHeader(status)
	w.Write(body)
}

// parseFilter reads the optional app, host and limit query parameters.
// An unparsable or negative limit is ignored.
func parseFilter(r *http.Request) models.Filter {
	query := r.URL.Query()

	filter := models.Filter{
		App:  query.Get("app"),
		Host: query.Get("host"),
	}
	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}
	return filter
}

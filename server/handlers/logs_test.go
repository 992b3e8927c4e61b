package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"logsink/models"

	"github.com/google/go-cmp/cmp"
)

type fakeReader struct {
	events []models.LogEvent
	err    error
	filter models.Filter
}

func (f *fakeReader) Query(ctx context.Context, filter models.Filter) ([]models.LogEvent, error) {
	f.filter = filter
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

func TestListLogs(t *testing.T) {
	tests := []struct {
		name         string
		reader       *fakeReader
		marshalErr   error
		expectedCode int
		expectedBody string
	}{
		{
			name: "Events are rendered as a JSON array",
			reader: &fakeReader{events: []models.LogEvent{
				{Timestamp: "2024-01-01T00:00:00Z", App: "svc", Host: "h1", Filename: "a.log", Log: "boot ok"},
			}},
			expectedCode: http.StatusOK,
			expectedBody: `[{"timestamp":"2024-01-01T00:00:00Z","app":"svc","host":"h1","filename":"a.log","log":"boot ok"}]`,
		},
		{
			name:         "Empty store renders an empty array",
			reader:       &fakeReader{},
			expectedCode: http.StatusOK,
			expectedBody: `[]`,
		},
		{
			name:         "Store failure",
			reader:       &fakeReader{err: errors.New("disk I/O error")},
			expectedCode: http.StatusInternalServerError,
			expectedBody: "Error getting logs",
		},
		{
			name:         "Serialization failure",
			reader:       &fakeReader{},
			marshalErr:   errors.New("unsupported value"),
			expectedCode: http.StatusInternalServerError,
			expectedBody: "Error converting logs to JSON",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			logs := NewLogs(tc.reader, nil)
			if tc.marshalErr != nil {
				logs.marshal = func(any) ([]byte, error) { return nil, tc.marshalErr }
			}

			body, status := logs.ListLogs(context.Background(), models.Filter{})

			if status != tc.expectedCode {
				t.Errorf("Expected status code %d, got %d", tc.expectedCode, status)
			}
			if string(body) != tc.expectedBody {
				t.Errorf("Expected body %q, got %q", tc.expectedBody, string(body))
			}
		})
	}
}

func TestLogsHandler(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		path           string
		expectedCode   int
		expectedFilter models.Filter
		contentType    string
	}{
		{
			name:         "GET returns JSON",
			method:       http.MethodGet,
			path:         "/logs",
			expectedCode: http.StatusOK,
			contentType:  "application/json",
		},
		{
			name:           "Filter parameters",
			method:         http.MethodGet,
			path:           "/logs?app=svc&host=h1&limit=10",
			expectedCode:   http.StatusOK,
			expectedFilter: models.Filter{App: "svc", Host: "h1", Limit: 10},
			contentType:    "application/json",
		},
		{
			name:           "Invalid limit is ignored",
			method:         http.MethodGet,
			path:           "/logs?limit=abc",
			expectedCode:   http.StatusOK,
			expectedFilter: models.Filter{},
			contentType:    "application/json",
		},
		{
			name:           "Negative limit is ignored",
			method:         http.MethodGet,
			path:           "/logs?limit=-3",
			expectedCode:   http.StatusOK,
			expectedFilter: models.Filter{},
			contentType:    "application/json",
		},
		{
			name:         "Preflight",
			method:       http.MethodOptions,
			path:         "/logs",
			expectedCode: http.StatusOK,
		},
		{
			name:         "Method not allowed",
			method:       http.MethodPost,
			path:         "/logs",
			expectedCode: http.StatusMethodNotAllowed,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reader := &fakeReader{}
			h := NewLogs(reader, nil)

			req := httptest.NewRequest(tc.method, tc.path, nil)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			resp := w.Result()
			io.ReadAll(resp.Body)

			if resp.StatusCode != tc.expectedCode {
				t.Errorf("Expected status code %d, got %d", tc.expectedCode, resp.StatusCode)
			}
			if tc.contentType != "" && resp.Header.Get("Content-Type") != tc.contentType {
				t.Errorf("Expected content type %q, got %q", tc.contentType, resp.Header.Get("Content-Type"))
			}
			if diff := cmp.Diff(tc.expectedFilter, reader.filter); diff != "" {
				t.Errorf("Filter mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

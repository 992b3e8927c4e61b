package models

// LogEvent represents a single log event in the system.
// It's used for the ingestion wire format, database rows and API responses.
// All fields are opaque text; none of them is a unique key.
type LogEvent struct {
	Timestamp string `json:"timestamp" cbor:"timestamp"` // Caller supplied, format is not validated
	App       string `json:"app" cbor:"app"`             // Source application identifier
	Host      string `json:"host" cbor:"host"`           // Source host identifier
	Filename  string `json:"filename" cbor:"filename"`   // Originating file or context
	Log       string `json:"log" cbor:"log"`             // Message body
}

// Filter narrows a log query. The zero value matches every stored event.
type Filter struct {
	App   string // Exact match on app, ignored when empty
	Host  string // Exact match on host, ignored when empty
	Limit int    // Maximum number of events to return, 0 means no limit
}

// IsZero reports whether the filter matches every event.
func (f Filter) IsZero() bool {
	return f == Filter{}
}

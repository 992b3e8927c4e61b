package formats

import (
	"errors"
	"testing"

	"logsink/models"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/go-cmp/cmp"
)

func TestCBORRoundTrip(t *testing.T) {
	event := models.LogEvent{
		Timestamp: "2024-01-01T00:00:00Z",
		App:       "svc",
		Host:      "h1",
		Filename:  "a.log",
		Log:       "boot ok",
	}

	payload, err := EncodeCBOR(event)
	if err != nil {
		t.Fatalf("EncodeCBOR failed: %v", err)
	}

	got, err := CBOR.Decode(payload)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if diff := cmp.Diff(event, got); diff != "" {
		t.Errorf("Round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestCBORDecodeRejects(t *testing.T) {
	mustMarshal := func(v any) []byte {
		b, err := cbor.Marshal(v)
		if err != nil {
			t.Fatalf("cbor.Marshal failed: %v", err)
		}
		return b
	}

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "Garbage", input: []byte("not cbor at all")},
		{name: "Array", input: mustMarshal([]string{"t", "a", "h", "f", "l"})},
		{name: "Missing field", input: mustMarshal(map[string]string{"timestamp": "t", "app": "a", "host": "h", "filename": "f"})},
		{name: "Wrong type", input: mustMarshal(map[string]any{"timestamp": 1, "app": "a", "host": "h", "filename": "f", "log": "l"})},
		{name: "Null", input: mustMarshal(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CBOR.Decode(tt.input)
			if !errors.Is(err, ErrDecode) {
				t.Errorf("Expected ErrDecode, got %v", err)
			}
		})
	}
}

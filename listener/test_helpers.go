package listener

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"logsink/db"
	"logsink/formats"
	"logsink/models"
)

// openTestStore opens a file backed store in a temporary directory.
func openTestStore(t *testing.T) *db.Store {
	t.Helper()

	store, err := db.Open(context.Background(), db.Config{Path: filepath.Join(t.TempDir(), "logs.db")})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("Failed to ensure schema: %v", err)
	}
	return store
}

// startReceiver binds a receiver on an ephemeral loopback port and runs it
// until the test ends.
func startReceiver(t *testing.T, cfg Config, store Inserter, decoder formats.Decoder) *Receiver {
	t.Helper()

	cfg.Addr = "127.0.0.1:0"
	r := NewReceiver(cfg, store, decoder, nil)
	if err := r.Bind(); err != nil {
		t.Fatalf("Failed to bind receiver: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Receiver returned error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Receiver did not stop after cancellation")
		}
	})
	return r
}

func sendUDPMessage(t *testing.T, addr net.Addr, message []byte) {
	t.Helper()

	conn, err := net.Dial("udp", addr.String())
	if err != nil {
		t.Fatalf("Failed to create UDP connection: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write(message); err != nil {
		t.Fatalf("Failed to send UDP message: %v", err)
	}
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// fakeStore records inserted events and can be told to fail or block.
type fakeStore struct {
	mu      sync.Mutex
	events  []models.LogEvent
	failFor map[string]bool // Log bodies whose insert fails
	gate    chan struct{}   // When non-nil, inserts wait for it to close
}

func (f *fakeStore) Insert(ctx context.Context, event models.LogEvent) error {
	if f.gate != nil {
		<-f.gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failFor[event.Log] {
		return errors.New("disk full")
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeStore) Events() []models.LogEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.LogEvent(nil), f.events...)
}

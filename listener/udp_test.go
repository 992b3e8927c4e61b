package listener

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"logsink/formats"
	"logsink/models"

	"github.com/google/go-cmp/cmp"
)

func TestUDPListener(t *testing.T) {
	store := openTestStore(t)
	r := startReceiver(t, Config{}, store, formats.JSON)

	payload := `{"timestamp":"2024-01-01T00:00:00Z","app":"svc","host":"h1","filename":"a.log","log":"boot ok"}`
	sendUDPMessage(t, r.Addr(), []byte(payload))

	waitFor(t, 5*time.Second, "event to be stored", func() bool {
		n, err := store.Count(context.Background())
		return err == nil && n == 1
	})

	got, err := store.QueryAll(context.Background())
	if err != nil {
		t.Fatalf("QueryAll failed: %v", err)
	}
	want := []models.LogEvent{{
		Timestamp: "2024-01-01T00:00:00Z",
		App:       "svc",
		Host:      "h1",
		Filename:  "a.log",
		Log:       "boot ok",
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Stored events mismatch (-want +got):\n%s", diff)
	}
}

func TestUDPListenerSurvivesMalformedPayloads(t *testing.T) {
	store := openTestStore(t)
	r := startReceiver(t, Config{}, store, formats.JSON)

	malformed := [][]byte{
		[]byte("not json"),
		[]byte("\xff\xfe\xfd"),
		[]byte(`{"timestamp":"t","app":"a","host":"h","filename":"f"}`),
		[]byte(`{"timestamp":1,"app":"a","host":"h","filename":"f","log":"l"}`),
		[]byte(`[]`),
	}
	for _, m := range malformed {
		sendUDPMessage(t, r.Addr(), m)
	}

	waitFor(t, 5*time.Second, "malformed payloads to be rejected", func() bool {
		return r.Stats().Rejected == uint64(len(malformed))
	})

	valid := models.LogEvent{Timestamp: "t", App: "a", Host: "h", Filename: "f", Log: "still alive"}
	payload, err := formats.EncodeJSON(valid)
	if err != nil {
		t.Fatalf("EncodeJSON failed: %v", err)
	}
	sendUDPMessage(t, r.Addr(), payload)

	waitFor(t, 5*time.Second, "valid event after malformed ones", func() bool {
		return r.Stats().Accepted == 1
	})

	got, err := store.QueryAll(context.Background())
	if err != nil {
		t.Fatalf("QueryAll failed: %v", err)
	}
	if diff := cmp.Diff([]models.LogEvent{valid}, got); diff != "" {
		t.Errorf("Malformed payload reached the store (-want +got):\n%s", diff)
	}
}

func TestUDPListenerSurvivesStoreFailure(t *testing.T) {
	store := &fakeStore{failFor: map[string]bool{"boom": true}}
	r := startReceiver(t, Config{Workers: 1}, store, formats.JSON)

	for _, body := range []string{"boom", "after"} {
		payload, err := formats.EncodeJSON(models.LogEvent{Timestamp: "t", App: "a", Host: "h", Filename: "f", Log: body})
		if err != nil {
			t.Fatalf("EncodeJSON failed: %v", err)
		}
		sendUDPMessage(t, r.Addr(), payload)
	}

	waitFor(t, 5*time.Second, "both events to be processed", func() bool {
		s := r.Stats()
		return s.Failed == 1 && s.Accepted == 1
	})

	events := store.Events()
	if len(events) != 1 || events[0].Log != "after" {
		t.Errorf("Expected only the second event to be stored, got %+v", events)
	}
}

func TestUDPListenerConcurrentSenders(t *testing.T) {
	store := openTestStore(t)
	r := startReceiver(t, Config{}, store, formats.JSON)

	const senders = 50

	var wg sync.WaitGroup
	for i := range senders {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload, err := formats.EncodeJSON(models.LogEvent{
				Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
				App:       "bench",
				Host:      fmt.Sprintf("sender-%d", i),
				Filename:  "concurrent.log",
				Log:       fmt.Sprintf("message from sender %d", i),
			})
			if err != nil {
				t.Errorf("EncodeJSON failed: %v", err)
				return
			}
			sendUDPMessage(t, r.Addr(), payload)
		}(i)
	}
	wg.Wait()

	waitFor(t, 10*time.Second, "all concurrent events to be stored", func() bool {
		n, err := store.Count(context.Background())
		return err == nil && n == senders
	})

	events, err := store.QueryAll(context.Background())
	if err != nil {
		t.Fatalf("QueryAll failed: %v", err)
	}
	seen := make(map[string]bool)
	for _, e := range events {
		seen[e.Host] = true
	}
	if len(seen) != senders {
		t.Errorf("Expected %d distinct senders, got %d", senders, len(seen))
	}
}

func TestUDPListenerDropsWhenQueueFull(t *testing.T) {
	store := &fakeStore{gate: make(chan struct{})}
	r := startReceiver(t, Config{Workers: 1, QueueSize: 1}, store, formats.JSON)

	const total = 5
	for i := range total {
		payload, err := formats.EncodeJSON(models.LogEvent{Timestamp: "t", App: "a", Host: "h", Filename: "f", Log: fmt.Sprint(i)})
		if err != nil {
			t.Fatalf("EncodeJSON failed: %v", err)
		}
		sendUDPMessage(t, r.Addr(), payload)
	}

	waitFor(t, 5*time.Second, "all datagrams to be received", func() bool {
		return r.Stats().Received == total
	})
	close(store.gate)

	waitFor(t, 5*time.Second, "queue to drain", func() bool {
		s := r.Stats()
		return s.Accepted+s.Dropped == total
	})

	s := r.Stats()
	if s.Dropped == 0 {
		t.Errorf("Expected some datagrams to be dropped, stats %+v", s)
	}
	if len(store.Events()) != int(s.Accepted) {
		t.Errorf("Stored %d events, accepted %d", len(store.Events()), s.Accepted)
	}
}

func TestUDPListenerAlternateFormat(t *testing.T) {
	store := &fakeStore{}
	r := startReceiver(t, Config{}, store, formats.RFC5424)

	sendUDPMessage(t, r.Addr(), []byte("<13>1 2023-10-01T12:34:56Z example-host example-app 1234 5678 - Test log message"))

	waitFor(t, 5*time.Second, "syslog event to be stored", func() bool {
		return r.Stats().Accepted == 1
	})

	want := []models.LogEvent{{
		Timestamp: "2023-10-01T12:34:56Z",
		App:       "example-app",
		Host:      "example-host",
		Filename:  "5678",
		Log:       "Test log message",
	}}
	if diff := cmp.Diff(want, store.Events()); diff != "" {
		t.Errorf("Stored events mismatch (-want +got):\n%s", diff)
	}
}

func TestBindAddressInUse(t *testing.T) {
	first := NewReceiver(Config{Addr: "127.0.0.1:0"}, &fakeStore{}, nil, nil)
	if err := first.Bind(); err != nil {
		t.Fatalf("Failed to bind first receiver: %v", err)
	}
	defer first.conn.Close()

	second := NewReceiver(Config{Addr: first.Addr().String()}, &fakeStore{}, nil, nil)
	err := second.Bind()
	if !errors.Is(err, ErrBind) {
		t.Fatalf("Expected ErrBind, got %v", err)
	}
}

func TestBindInvalidAddress(t *testing.T) {
	r := NewReceiver(Config{Addr: "not-an-address"}, &fakeStore{}, nil, nil)
	if err := r.Bind(); !errors.Is(err, ErrBind) {
		t.Fatalf("Expected ErrBind, got %v", err)
	}
}

func TestRunWithoutBind(t *testing.T) {
	r := NewReceiver(Config{}, &fakeStore{}, nil, nil)
	if err := r.Run(context.Background()); !errors.Is(err, ErrBind) {
		t.Fatalf("Expected ErrBind, got %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	r := NewReceiver(Config{Addr: "127.0.0.1:0"}, &fakeStore{}, nil, nil)
	if err := r.Bind(); err != nil {
		t.Fatalf("Failed to bind: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil after cancellation, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"logsink/formats"
	"logsink/models"
)

// MaxDatagramSize is the largest accepted datagram payload. Longer
// datagrams are rejected as oversized.
const MaxDatagramSize = 64 * 1024

// ErrBind is returned when the UDP socket cannot be bound.
var ErrBind = errors.New("udp bind error")

// pollInterval bounds how long a read waits before the loop checks for
// cancellation.
const pollInterval = 500 * time.Millisecond

// Inserter persists decoded events.
type Inserter interface {
	Insert(ctx context.Context, event models.LogEvent) error
}

// Config holds the receiver settings.
type Config struct {
	Addr      string // UDP address to bind, e.g. "127.0.0.1:7878"
	Workers   int    // Number of decode/persist workers
	QueueSize int    // Datagrams buffered between the socket and the workers
}

// Stats are cumulative receiver counters.
type Stats struct {
	Received uint64 // Datagrams read from the socket
	Accepted uint64 // Events decoded and stored
	Rejected uint64 // Datagrams that failed to decode or were oversized
	Failed   uint64 // Events that decoded but could not be stored
	Dropped  uint64 // Datagrams discarded because the queue was full
}

// Receiver reads log events from a UDP socket and stores them.
//
// The read loop only copies datagrams into a bounded queue; a pool of
// workers decodes and stores them, so a slow insert never holds up
// reception. Every per-packet failure is logged and the loop continues.
type Receiver struct {
	cfg     Config
	store   Inserter
	decoder formats.Decoder
	logger  *slog.Logger

	conn *net.UDPConn

	received atomic.Uint64
	accepted atomic.Uint64
	rejected atomic.Uint64
	failed   atomic.Uint64
	dropped  atomic.Uint64
}

// NewReceiver creates a receiver. Bind must be called before Run.
func NewReceiver(cfg Config, store Inserter, decoder formats.Decoder, logger *slog.Logger) *Receiver {
	if cfg.Workers <= 0 {
		cfg.Workers = max(runtime.NumCPU(), 4)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 4096
	}
	if decoder == nil {
		decoder = formats.JSON
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Receiver{
		cfg:     cfg,
		store:   store,
		decoder: decoder,
		logger:  logger.With("component", "udp"),
	}
}

// Bind opens the UDP socket.
func (r *Receiver) Bind() error {
	addr, err := net.ResolveUDPAddr("udp", r.cfg.Addr)
	if err != nil {
		return fmt.Errorf("%w: invalid address %s: %w", ErrBind, r.cfg.Addr, err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrBind, r.cfg.Addr, err)
	}

	r.conn = conn
	return nil
}

// Addr returns the bound local address, or nil before Bind.
func (r *Receiver) Addr() net.Addr {
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr()
}

// Close releases the socket of a receiver that will not be run.
func (r *Receiver) Close() error {
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}

// Stats returns a snapshot of the receiver counters.
func (r *Receiver) Stats() Stats {
	return Stats{
		Received: r.received.Load(),
		Accepted: r.accepted.Load(),
		Rejected: r.rejected.Load(),
		Failed:   r.failed.Load(),
		Dropped:  r.dropped.Load(),
	}
}

// Run receives datagrams until ctx is cancelled or the socket fails.
// It returns nil after a cancellation and the transport error otherwise.
// Queued datagrams are processed before Run returns.
func (r *Receiver) Run(ctx context.Context) error {
	if r.conn == nil {
		return fmt.Errorf("%w: receiver is not bound", ErrBind)
	}
	defer r.conn.Close()

	r.logger.Info("UDP listener is running", "addr", r.conn.LocalAddr().String(),
		"format", r.decoder.Name(), "workers", r.cfg.Workers)

	queue := make(chan []byte, r.cfg.QueueSize)

	// Inserts outlive shutdown so that queued events still land.
	storeCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for range r.cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for data := range queue {
				r.process(storeCtx, data)
			}
		}()
	}

	err := r.readLoop(ctx, queue)

	close(queue)
	wg.Wait()

	stats := r.Stats()
	r.logger.Info("UDP listener stopped",
		"received", stats.Received, "accepted", stats.Accepted, "rejected", stats.Rejected,
		"failed", stats.Failed, "dropped", stats.Dropped)

	return err
}

func (r *Receiver) readLoop(ctx context.Context, queue chan<- []byte) error {
	// One spare byte tells an oversized datagram apart from one that fits.
	buffer := make([]byte, MaxDatagramSize+1)

	for {
		if ctx.Err() != nil {
			return nil
		}

		r.conn.SetReadDeadline(time.Now().Add(pollInterval))

		n, src, err := r.conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				// Nothing to read yet, check for cancellation and try again
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("udp socket closed: %w", err)
			}
			r.logger.Warn("Error reading from UDP", "error", err)
			continue
		}

		r.received.Add(1)

		if n > MaxDatagramSize {
			r.rejected.Add(1)
			r.logger.Warn("Rejected oversized UDP datagram", "src", src.String(), "limit", MaxDatagramSize)
			continue
		}

		// Make a copy of the received data to process
		messageCopy := make([]byte, n)
		copy(messageCopy, buffer[:n])

		select {
		case queue <- messageCopy:
		default:
			r.dropped.Add(1)
			r.logger.Warn("UDP processing at capacity, dropping datagram", "src", src.String())
		}
	}
}

// process decodes and stores a single datagram.
func (r *Receiver) process(ctx context.Context, data []byte) {
	event, err := r.decoder.Decode(data)
	if err != nil {
		r.rejected.Add(1)
		r.logger.Warn("Failed to parse UDP message", "format", r.decoder.Name(), "error", err)
		r.logger.Debug("Rejected UDP payload", "payload", string(data))
		return
	}

	if err := r.store.Insert(ctx, event); err != nil {
		r.failed.Add(1)
		r.logger.Error("Failed to store log in database", "error", err, "app", event.App, "host", event.Host)
		return
	}

	r.accepted.Add(1)
	r.logger.Debug("Log stored successfully", "app", event.App, "host", event.Host)
}

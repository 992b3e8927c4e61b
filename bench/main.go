package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Configuration options
var (
	host     string
	port     int
	total    int
	workers  int
	pause    time.Duration
	format   string
	appName  string
	hostname string
	filename string
)

// Statistics
var (
	startTime  time.Time
	sentLogs   int64
	errorCount int64
)

// event mirrors the logsink JSON wire format.
type event struct {
	Timestamp string `json:"timestamp"`
	App       string `json:"app"`
	Host      string `json:"host"`
	Filename  string `json:"filename"`
	Log       string `json:"log"`
}

func init() {
	// Get hostname or use default
	defaultHostname, err := os.Hostname()
	if err != nil {
		defaultHostname = "logsink-bench"
	}

	// Parse command line flags
	flag.StringVar(&host, "host", "127.0.0.1", "Target host")
	flag.IntVar(&port, "port", 7878, "Target UDP port")
	flag.IntVar(&total, "total", 100000, "Total number of events to send")
	flag.IntVar(&workers, "workers", runtime.NumCPU(), "Number of worker goroutines")
	flag.DurationVar(&pause, "pause", 0, "Pause between datagrams per worker")
	flag.StringVar(&format, "format", "json", "Payload format (json or rfc5424)")
	flag.StringVar(&appName, "app", "logsink-bench", "Application name")
	flag.StringVar(&hostname, "hostname", defaultHostname, "Host name reported in events")
	flag.StringVar(&filename, "filename", "bench.log", "Filename reported in events")
	flag.Parse()

	// Validate parameters
	if workers < 1 {
		workers = 1
	}
	if total < 1 {
		total = 1
	}
	if format != "json" && format != "rfc5424" {
		log.Fatalf("Unsupported format %q", format)
	}
}

func main() {
	// Display banner
	fmt.Println("=================================================================")
	fmt.Println("🚀 logsink UDP ingestion benchmark")
	fmt.Println("=================================================================")
	fmt.Printf("Target:      %s:%d (udp, %s)\n", host, port, format)
	fmt.Printf("Events:      %d\n", total)
	fmt.Printf("Workers:     %d\n", workers)
	fmt.Printf("Source:      app=%s host=%s file=%s\n", appName, hostname, filename)
	fmt.Println("=================================================================")

	var wg sync.WaitGroup

	// Calculate the number of events per worker
	perWorker := total / workers
	remainder := total % workers

	startTime = time.Now()

	for i := 0; i < workers; i++ {
		n := perWorker
		if i < remainder {
			n++
		}

		wg.Add(1)
		go func(workerID, numEvents int) {
			defer wg.Done()
			sendEvents(workerID, numEvents)
		}(i, n)
	}

	wg.Wait()

	duration := time.Since(startTime)
	eventsPerSecond := float64(sentLogs) / duration.Seconds()

	fmt.Println("=================================================================")
	fmt.Printf("✅ Benchmark complete!\n")
	fmt.Printf("Duration:    %.2f seconds\n", duration.Seconds())
	fmt.Printf("Sent events: %d\n", sentLogs)
	fmt.Printf("Errors:      %d\n", errorCount)
	fmt.Printf("Throughput:  %.2f events/second\n", eventsPerSecond)
	fmt.Println("=================================================================")
	fmt.Println("UDP is lossy: compare the count returned by GET /logs with the sent total.")
}

// sendEvents sends numEvents datagrams, one event per datagram.
func sendEvents(workerID, numEvents int) {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, fmt.Sprint(port)))
	if err != nil {
		atomic.AddInt64(&errorCount, int64(numEvents))
		log.Printf("Worker %d: UDP address resolution error: %v\n", workerID, err)
		return
	}

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		atomic.AddInt64(&errorCount, int64(numEvents))
		log.Printf("Worker %d: UDP connection error: %v\n", workerID, err)
		return
	}
	defer conn.Close()

	for i := range numEvents {
		payload, err := buildPayload(workerID, i)
		if err != nil {
			atomic.AddInt64(&errorCount, 1)
			continue
		}

		if _, err := conn.Write(payload); err != nil {
			atomic.AddInt64(&errorCount, 1)
		} else {
			atomic.AddInt64(&sentLogs, 1)
		}

		if pause > 0 {
			time.Sleep(pause)
		}
	}
}

// buildPayload renders one event in the selected format.
func buildPayload(workerID, i int) ([]byte, error) {
	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	message := fmt.Sprintf("Log message %d from worker %d", i, workerID)

	if format == "rfc5424" {
		line := fmt.Sprintf("<14>1 %s %s %s %d %s - %s",
			timestamp, hostname, appName, os.Getpid(), filename, message)
		return []byte(line), nil
	}

	return json.Marshal(event{
		Timestamp: timestamp,
		App:       appName,
		Host:      hostname,
		Filename:  filename,
		Log:       message,
	})
}

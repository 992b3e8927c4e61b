package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"logsink/models"

	_ "github.com/marcboeker/go-duckdb/v2"
	_ "github.com/mattn/go-sqlite3"
)

// Supported database drivers.
const (
	DriverSQLite = "sqlite3"
	DriverDuckDB = "duckdb"
)

var (
	// ErrStoreUnavailable is returned by Open when the database location
	// cannot be opened or does not hold a readable database.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrSchema is returned by EnsureSchema when the logevents table cannot
	// be created or is incompatible with the expected layout.
	ErrSchema = errors.New("schema error")

	// ErrWrite is returned when an event cannot be inserted.
	ErrWrite = errors.New("write error")

	// ErrRead is returned when events cannot be read back.
	ErrRead = errors.New("read error")
)

const schema = `
	CREATE TABLE IF NOT EXISTS logevents (
	    "timestamp" TEXT NOT NULL,
	    app TEXT NOT NULL,
	    host TEXT NOT NULL,
	    filename TEXT NOT NULL,
	    log TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_logevents_app ON logevents(app);
	CREATE INDEX IF NOT EXISTS idx_logevents_host ON logevents(host);
	`

const (
	insertQuery = `INSERT INTO logevents ("timestamp", app, host, filename, log) VALUES (?, ?, ?, ?, ?)`
	selectQuery = `SELECT "timestamp", app, host, filename, log FROM logevents`
)

// probeQueries force the driver to read the database header so that a
// corrupt or foreign file is reported by Open rather than on first use.
var probeQueries = map[string]string{
	DriverSQLite: "SELECT count(*) FROM sqlite_master",
	DriverDuckDB: "SELECT count(*) FROM information_schema.tables",
}

// Config describes where and how the store is opened.
type Config struct {
	Driver string // DriverSQLite or DriverDuckDB, defaults to DriverSQLite
	Path   string // Database file, ":memory:" for a private in-memory database
	Logger *slog.Logger
}

// Store is the persistence layer for log events.
//
// A Store wraps a database/sql connection pool and is safe for concurrent
// use by any number of goroutines. Callers share the same *Store; it holds
// no lock of its own and relies on the pool and the engine for isolation.
type Store struct {
	db     *sql.DB
	driver string
	logger *slog.Logger
}

// Open opens the database at cfg.Path, creating it if it does not exist.
// The returned store is ready for EnsureSchema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}
	probe, ok := probeQueries[driver]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported driver %q", ErrStoreUnavailable, driver)
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: database path is required", ErrStoreUnavailable)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	dbConn, err := sql.Open(driver, dataSourceName(driver, cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	// Each connection to ":memory:" is its own database, so the pool must
	// never grow past one connection.
	if cfg.Path == ":memory:" {
		dbConn.SetMaxOpenConns(1)
	}

	if err := dbConn.PingContext(ctx); err != nil {
		dbConn.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, cfg.Path, err)
	}

	var n int
	if err := dbConn.QueryRowContext(ctx, probe).Scan(&n); err != nil {
		dbConn.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, cfg.Path, err)
	}

	logger.Info("Database opened", "driver", driver, "path", cfg.Path)

	return &Store{
		db:     dbConn,
		driver: driver,
		logger: logger,
	}, nil
}

// dataSourceName builds the driver specific DSN for path.
func dataSourceName(driver, path string) string {
	if driver != DriverSQLite {
		return path
	}

	// WAL lets readers proceed while a single writer commits, and the busy
	// timeout makes concurrent writers wait for the lock instead of failing.
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_cache_size=-16000"
}

// Driver returns the name of the database driver in use.
func (s *Store) Driver() string {
	return s.driver
}

// EnsureSchema creates the logevents table and its indexes if they are
// missing, then checks the table exposes the expected columns. It is safe
// to call on every startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	defer s.timed("ensure_schema", time.Now())

	// DuckDB executes multi-statement strings too, but splitting keeps the
	// error attributable to a single statement.
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			s.logger.Error("Failed to create logevents table", "error", err)
			return fmt.Errorf("%w: %w", ErrSchema, err)
		}
	}

	rows, err := s.db.QueryContext(ctx, selectQuery+" LIMIT 0")
	if err != nil {
		return fmt.Errorf("%w: incompatible logevents table: %w", ErrSchema, err)
	}
	rows.Close()

	s.logger.Info("Logevents table created or already exists")
	return nil
}

// Insert stores a single event. The insert is one statement, so the row is
// either fully written or not written at all.
func (s *Store) Insert(ctx context.Context, event models.LogEvent) error {
	defer s.timed("insert", time.Now())

	_, err := s.db.ExecContext(ctx, insertQuery,
		event.Timestamp,
		event.App,
		event.Host,
		event.Filename,
		event.Log,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return nil
}

// QueryAll returns every stored event in insertion order.
func (s *Store) QueryAll(ctx context.Context) ([]models.LogEvent, error) {
	return s.Query(ctx, models.Filter{})
}

// Query returns the stored events matching filter in insertion order.
// The result is fully materialized; on error no events are returned.
func (s *Store) Query(ctx context.Context, filter models.Filter) ([]models.LogEvent, error) {
	defer s.timed("query", time.Now())

	query, args := buildQuery(filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}
	defer rows.Close()

	events := make([]models.LogEvent, 0)
	for rows.Next() {
		var e models.LogEvent
		if err := rows.Scan(&e.Timestamp, &e.App, &e.Host, &e.Filename, &e.Log); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRead, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}

	return events, nil
}

// buildQuery renders the SELECT statement for filter.
func buildQuery(filter models.Filter) (string, []any) {
	var (
		where []string
		args  []any
	)

	if filter.App != "" {
		where = append(where, "app = ?")
		args = append(args, filter.App)
	}
	if filter.Host != "" {
		where = append(where, "host = ?")
		args = append(args, filter.Host)
	}

	var b strings.Builder
	b.WriteString(selectQuery)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY rowid")
	if filter.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", filter.Limit)
	}

	return b.String(), args
}

// Count returns the number of stored events.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM logevents").Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRead, err)
	}
	return n, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

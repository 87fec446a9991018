package thumbstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
)

// Default timeout for store operations.
const defaultTimeout = 5 * time.Second

// DefaultMaxSlots bounds the dynamically added slot columns when the caller
// passes no explicit ceiling.
const DefaultMaxSlots = 16

var (
	// ErrSlotLimit is returned when writing a slot would grow the schema
	// past the configured maximum slot count.
	ErrSlotLimit = errors.New("thumbnail slot limit reached")

	// ErrInvalidSlot is returned for slot labels that cannot be used as a
	// column name.
	ErrInvalidSlot = errors.New("invalid thumbnail slot")
)

// Slot addresses one thumbnail position for a file id: either a positional
// index (column T0..Tn-1) or a named label (case-normalized column).
type Slot struct {
	index int
	label string
}

// IndexSlot addresses the positional slot i.
func IndexSlot(i int) Slot {
	return Slot{index: i, label: ""}
}

// LabelSlot addresses the named slot label.
func LabelSlot(label string) Slot {
	return Slot{index: -1, label: label}
}

var (
	labelPattern      = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)
	positionalPattern = regexp.MustCompile(`^T[0-9]+$`)
)

// column maps the slot to its column name. Labels are upper-cased and must
// be plain identifiers; anything else would end up concatenated into DDL.
// A label shaped like a positional column ("t0") would silently alias that
// index slot, so those are rejected too.
func (s Slot) column() (string, error) {
	if s.label == "" {
		if s.index < 0 {
			return "", fmt.Errorf("%w: negative index %d", ErrInvalidSlot, s.index)
		}
		return fmt.Sprintf("T%d", s.index), nil
	}
	col := strings.ToUpper(s.label)
	if !labelPattern.MatchString(col) {
		return "", fmt.Errorf("%w: label %q", ErrInvalidSlot, s.label)
	}
	if positionalPattern.MatchString(col) {
		return "", fmt.Errorf("%w: label %q collides with positional slot %s", ErrInvalidSlot, s.label, col)
	}
	return col, nil
}

func (s Slot) String() string {
	col, err := s.column()
	if err != nil {
		return "invalid"
	}
	return col
}

// Store is the embedded blob database holding generated thumbnails, keyed by
// file id. It is independent of the catalog document: losing it only costs
// regeneration work.
//
// Slot columns are added lazily the first time a slot is written, bounded by
// maxSlots. The known-column set is cached at open and extended on demand
// instead of querying schema metadata on every write.
type Store struct {
	path     string
	maxSlots int

	mu      sync.RWMutex
	db      *sql.DB
	columns map[string]bool
}

// Open opens (or creates) the thumbnail store at path. maxSlots bounds the
// number of dynamically added slot columns; values < 1 fall back to
// DefaultMaxSlots.
func Open(ctx context.Context, path string, maxSlots int) (*Store, error) {
	if maxSlots < 1 {
		maxSlots = DefaultMaxSlots
	}

	db, err := openPool(ctx, path, "NORMAL")
	if err != nil {
		return nil, err
	}

	s := &Store{
		db:       db,
		path:     path,
		maxSlots: maxSlots,
		columns:  make(map[string]bool),
	}

	if err := s.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close thumbnail store after init failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize thumbnail store: %w", err)
	}

	logging.Info("Thumbnail store opened at %s (%d slot columns, max %d)", path, len(s.columns), maxSlots)
	return s, nil
}

// openPool opens a connection pool with the per-connection pragmas baked
// into the connection string, so every pooled connection carries them.
func openPool(ctx context.Context, path, synchronous string) (*sql.DB, error) {
	// WAL with a busy timeout: each operation grabs its own pooled
	// connection, so writers must tolerate brief contention.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=%s&_busy_timeout=5000", path, synchronous)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open thumbnail store: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close thumbnail store after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to thumbnail store: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return db, nil
}

// conn returns the current connection pool.
func (s *Store) conn() *sql.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

func (s *Store) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS thumbnails (
		id TEXT PRIMARY KEY
	);
	`
	if _, err := s.conn().ExecContext(ctx, schema); err != nil {
		return err
	}
	return s.refreshColumns(ctx)
}

// refreshColumns reloads the known-column cache from the schema.
func (s *Store) refreshColumns(ctx context.Context) error {
	rows, err := s.conn().QueryContext(ctx, `SELECT name FROM pragma_table_info('thumbnails')`)
	if err != nil {
		return fmt.Errorf("failed to read thumbnail schema: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logging.Warn("failed to close schema rows: %v", err)
		}
	}()

	columns := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		if name != "id" {
			columns[name] = true
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.columns = columns
	s.mu.Unlock()
	metrics.StoreSlotColumns.Set(float64(len(columns)))
	return nil
}

// ensureColumn adds the slot column if the schema does not have it yet.
// Adding is idempotent: a concurrent add by another connection is absorbed
// by refreshing the cache.
func (s *Store) ensureColumn(ctx context.Context, col string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.columns[col] {
		return nil
	}
	if len(s.columns) >= s.maxSlots {
		return fmt.Errorf("%w: %d columns, cannot add %s", ErrSlotLimit, len(s.columns), col)
	}

	_, err := s.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE thumbnails ADD COLUMN %s BLOB", col))
	if err != nil {
		if strings.Contains(err.Error(), "duplicate column name") {
			s.columns[col] = true
			return nil
		}
		return fmt.Errorf("failed to add slot column %s: %w", col, err)
	}

	s.columns[col] = true
	metrics.StoreSlotColumns.Set(float64(len(s.columns)))
	logging.Debug("Thumbnail store: added slot column %s", col)
	return nil
}

// hasColumn checks the cached schema for col.
func (s *Store) hasColumn(col string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.columns[col]
}

// knownColumns snapshots the cached slot columns.
func (s *Store) knownColumns() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	cols := make([]string, 0, len(s.columns))
	for col := range s.columns {
		cols = append(cols, col)
	}
	return cols
}

// Get returns the blob stored for (id, slot), or nil when the slot is empty.
// Absence signals that generation for the slot is still pending. Corrupt
// reads also degrade to nil: thumbnails are always regenerable, so a broken
// blob is treated like a missing one.
func (s *Store) Get(ctx context.Context, id string, slot Slot) ([]byte, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get", start, err) }()

	col, err := slot.column()
	if err != nil {
		return nil, err
	}
	if !s.hasColumn(col) {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var data []byte
	err = s.conn().QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM thumbnails WHERE id = ?", col), id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return nil, nil
	}
	if err != nil {
		logging.Warn("Thumbnail read %s/%s failed, treating as empty: %v", id, col, err)
		err = nil
		return nil, nil
	}
	return data, nil
}

// Put stores the blob for (id, slot), creating the row if necessary. The
// upsert is a single atomic statement, so concurrent writers for the same id
// cannot lose each other's slots; the latest write per slot wins.
func (s *Store) Put(ctx context.Context, id string, slot Slot, data []byte) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("put", start, err) }()

	col, err := slot.column()
	if err != nil {
		return err
	}
	if err = s.ensureColumn(ctx, col); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := fmt.Sprintf(`
	INSERT INTO thumbnails (id, %[1]s) VALUES (?, ?)
	ON CONFLICT(id) DO UPDATE SET %[1]s = excluded.%[1]s
	`, col)

	_, err = s.conn().ExecContext(ctx, query, id, data)
	if err != nil {
		return fmt.Errorf("failed to store thumbnail %s/%s: %w", id, col, err)
	}
	return nil
}

// Count returns the number of populated slots for id.
func (s *Store) Count(ctx context.Context, id string) (int, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("count", start, err) }()

	cols := s.knownColumns()
	if len(cols) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	// COUNT over one row: each non-null slot contributes 1.
	exprs := make([]string, len(cols))
	for i, col := range cols {
		exprs[i] = fmt.Sprintf("(%s IS NOT NULL)", col)
	}
	query := fmt.Sprintf("SELECT %s FROM thumbnails WHERE id = ?", strings.Join(exprs, " + "))

	var n int
	err = s.conn().QueryRowContext(ctx, query, id).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count thumbnails for %s: %w", id, err)
	}
	return n, nil
}

// DeleteAll removes the row for id and returns how many rows were removed
// (0 or 1).
func (s *Store) DeleteAll(ctx context.Context, id string) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_all", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := s.conn().ExecContext(ctx, "DELETE FROM thumbnails WHERE id = ?", id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete thumbnails for %s: %w", id, err)
	}
	return result.RowsAffected()
}

// ListIDs returns every file id with a thumbnail row.
func (s *Store) ListIDs(ctx context.Context) ([]string, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_ids", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := s.conn().QueryContext(ctx, "SELECT id FROM thumbnails ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list thumbnail ids: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logging.Warn("failed to close id rows: %v", err)
		}
	}()

	var ids []string
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// DurabilityMode selects the write durability / throughput trade-off.
type DurabilityMode string

const (
	// DurabilityFull fsyncs on every transaction.
	DurabilityFull DurabilityMode = "full"
	// DurabilityRelaxed lets the OS schedule syncs. A crash can lose the
	// most recent writes, which only costs regeneration.
	DurabilityRelaxed DurabilityMode = "relaxed"
)

// SetDurability switches the store's durability mode. Administrative; not
// used on normal read/write paths.
//
// synchronous is a per-connection pragma: issuing it through the pool would
// reach only whichever connection served the statement. The whole pool is
// swapped for one opened with the new mode in its connection string, so every
// subsequent operation runs under it.
func (s *Store) SetDurability(ctx context.Context, mode DurabilityMode) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("set_durability", start, err) }()

	var synchronous string
	switch mode {
	case DurabilityFull:
		synchronous = "FULL"
	case DurabilityRelaxed:
		synchronous = "OFF"
	default:
		err = fmt.Errorf("unknown durability mode %q", mode)
		return err
	}

	var db *sql.DB
	db, err = openPool(ctx, s.path, synchronous)
	if err != nil {
		err = fmt.Errorf("failed to switch durability to %s: %w", mode, err)
		return err
	}

	s.mu.Lock()
	old := s.db
	s.db = db
	s.mu.Unlock()

	if err := old.Close(); err != nil {
		logging.Warn("failed to close previous thumbnail store pool: %v", err)
	}
	logging.Info("Thumbnail store durability set to %s", mode)
	return nil
}

// Checkpoint forces a WAL checkpoint, truncating the log.
func (s *Store) Checkpoint(ctx context.Context) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("checkpoint", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err = s.conn().ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// Vacuum compacts the store file.
func (s *Store) Vacuum(ctx context.Context) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("vacuum", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	_, err = s.conn().ExecContext(ctx, "VACUUM")
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.conn().Close()
}

// recordQuery records store query metrics.
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.StoreQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.StoreQueryDuration.WithLabelValues(operation).Observe(duration)
}

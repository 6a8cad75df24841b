package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Store configuration constants.
const (
	// dirPermissions is the permission mode for the database directory.
	dirPermissions = 0750

	// msPerSecond converts seconds to milliseconds for the busy timeout pragma.
	msPerSecond = 1000

	// connectionTimeout is the timeout for verifying database connectivity.
	connectionTimeout = 5 * time.Second
)

// ErrClosed is returned when an operation is attempted on a closed store.
var ErrClosed = errors.New("identity: store closed")

// Config contains store configuration options.
// These map to the database section of config.yaml.
type Config struct {
	// Path is the filesystem path to the SQLite database file.
	// The directory will be created if it doesn't exist.
	Path string

	// WALMode enables Write-Ahead Logging for better concurrent access.
	WALMode bool

	// BusyTimeout is the maximum time to wait for a database lock (seconds).
	BusyTimeout int
}

// Store persists the last connected device identity.
//
// Thread Safety: safe for concurrent use (database/sql pools connections).
type Store struct {
	db   *sql.DB
	path string
}

// Open creates the identity store, creating the database file and schema on
// first use.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
		cfg.Path,
		cfg.BusyTimeout*msPerSecond,
	)
	if cfg.WALMode {
		connStr += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	s := &Store{db: db, path: cfg.Path}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// migrate creates the schema. The table holds at most one row.
func (s *Store) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS last_device (
    id         INTEGER PRIMARY KEY CHECK (id = 1),
    vendor_id  INTEGER NOT NULL,
    product_id INTEGER NOT NULL,
    updated_at TEXT    NOT NULL
);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating identity schema: %w", err)
	}
	return nil
}

// Save upserts the identity of the device the link just connected to.
func (s *Store) Save(ctx context.Context, id DeviceIdentity) error {
	if s.db == nil {
		return ErrClosed
	}

	const query = `
INSERT INTO last_device (id, vendor_id, product_id, updated_at)
VALUES (1, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    vendor_id  = excluded.vendor_id,
    product_id = excluded.product_id,
    updated_at = excluded.updated_at;`

	_, err := s.db.ExecContext(ctx, query,
		int64(id.VendorID),
		int64(id.ProductID),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving device identity: %w", err)
	}
	return nil
}

// Load returns the persisted identity. The second return value is false when
// no device has ever been saved; that is a normal outcome, not an error.
func (s *Store) Load(ctx context.Context) (DeviceIdentity, bool, error) {
	if s.db == nil {
		return DeviceIdentity{}, false, ErrClosed
	}

	const query = `SELECT vendor_id, product_id FROM last_device WHERE id = 1;`

	var vendorID, productID int64
	err := s.db.QueryRowContext(ctx, query).Scan(&vendorID, &productID)
	if errors.Is(err, sql.ErrNoRows) {
		return DeviceIdentity{}, false, nil
	}
	if err != nil {
		return DeviceIdentity{}, false, fmt.Errorf("loading device identity: %w", err)
	}

	return DeviceIdentity{
		VendorID:  uint16(vendorID),
		ProductID: uint16(productID),
	}, true, nil
}

// Clear forgets the persisted identity. Clearing an empty store is a no-op.
func (s *Store) Clear(ctx context.Context) error {
	if s.db == nil {
		return ErrClosed
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM last_device;`); err != nil {
		return fmt.Errorf("clearing device identity: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close releases the database handle. Safe to call multiple times.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

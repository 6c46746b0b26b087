// Package sqlite persists the ledger in a single SQLite file using the
// pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/cory-johannsen/goldarena/internal/authority"
	"github.com/cory-johannsen/goldarena/internal/ledger"
)

// Store is a ledger.Store and ledger.History backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and creates the schema.
//
// Precondition: path must be non-empty; a leading ~ expands to the home
// directory.
// Postcondition: Returns a migrated Store or a non-nil error.
func Open(path string) (*Store, error) {
	if path != "" && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("expanding home directory: %w", err)
		}
		path = filepath.Join(home, path[1:])
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating directory for %s: %w", path, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection serialises writers; the ledger already does.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS ledger_accounts (
			address    TEXT PRIMARY KEY,
			owner      TEXT NOT NULL,
			data       BLOB NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_accounts_owner ON ledger_accounts(owner);
		CREATE TABLE IF NOT EXISTS ledger_notifications (
			seq        INTEGER PRIMARY KEY,
			op         TEXT NOT NULL,
			name       TEXT NOT NULL,
			client     TEXT NOT NULL,
			payload    TEXT NOT NULL,
			emitted_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_notifications_client ON ledger_notifications(client, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load implements ledger.Store.
func (s *Store) Load(ctx context.Context) (ledger.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT address, owner, data FROM ledger_accounts ORDER BY address`)
	if err != nil {
		return ledger.Snapshot{}, fmt.Errorf("querying accounts: %w", err)
	}
	defer rows.Close()

	var snap ledger.Snapshot
	for rows.Next() {
		var addr, owner string
		var data []byte
		if err := rows.Scan(&addr, &owner, &data); err != nil {
			return ledger.Snapshot{}, fmt.Errorf("scanning account: %w", err)
		}
		a, err := authority.Parse(addr)
		if err != nil {
			return ledger.Snapshot{}, fmt.Errorf("account address %q: %w", addr, err)
		}
		o, err := authority.Parse(owner)
		if err != nil {
			return ledger.Snapshot{}, fmt.Errorf("account %s owner: %w", addr, err)
		}
		snap.Accounts = append(snap.Accounts, ledger.Account{Address: a, Owner: o, Data: data})
	}
	if err := rows.Err(); err != nil {
		return ledger.Snapshot{}, fmt.Errorf("iterating accounts: %w", err)
	}

	var last int64
	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM ledger_notifications`).Scan(&last)
	if err != nil {
		return ledger.Snapshot{}, fmt.Errorf("querying last sequence: %w", err)
	}
	snap.LastSeq = uint64(last)
	return snap, nil
}

// Commit implements ledger.Store.
func (s *Store) Commit(ctx context.Context, b ledger.Batch) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning %s: %w", b.Op, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, a := range b.Accounts {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO ledger_accounts (address, owner, data, updated_at)
			 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
			 ON CONFLICT(address) DO UPDATE
			 SET owner = excluded.owner, data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
			a.Address.String(), a.Owner.String(), a.Data)
		if err != nil {
			return fmt.Errorf("writing account %s: %w", a.Address, err)
		}
	}
	for _, env := range b.Events {
		var n ledger.Notification
		n, err = ledger.NotificationOf(env)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO ledger_notifications (seq, op, name, client, payload, emitted_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			int64(n.Seq), n.Op, n.Name, n.Client.String(), string(n.Payload), n.Unix)
		if err != nil {
			return fmt.Errorf("writing notification %d: %w", n.Seq, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing %s: %w", b.Op, err)
	}
	return nil
}

// Since implements ledger.History.
func (s *Store) Since(ctx context.Context, after uint64, limit int) ([]ledger.Notification, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, op, name, client, payload, emitted_at
		 FROM ledger_notifications WHERE seq > ? ORDER BY seq LIMIT ?`,
		int64(after), limit)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	var out []ledger.Notification
	for rows.Next() {
		var (
			seq     int64
			n       ledger.Notification
			client  string
			payload string
		)
		if err := rows.Scan(&seq, &n.Op, &n.Name, &client, &payload, &n.Unix); err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		if n.Client, err = authority.Parse(client); err != nil {
			return nil, fmt.Errorf("notification %d client: %w", seq, err)
		}
		n.Seq = uint64(seq)
		n.Payload = []byte(payload)
		out = append(out, n)
	}
	return out, rows.Err()
}

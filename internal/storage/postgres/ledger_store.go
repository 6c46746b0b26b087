package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/goldarena/internal/authority"
	"github.com/cory-johannsen/goldarena/internal/ledger"
)

// ErrSequenceConflict is returned when a notification sequence number is
// already taken, i.e. another process committed to the same database.
var ErrSequenceConflict = errors.New("notification sequence already committed")

// LedgerStore persists ledger state in the ledger_accounts and
// ledger_notifications tables.
type LedgerStore struct {
	db *pgxpool.Pool
}

// NewLedgerStore creates a LedgerStore backed by db.
//
// Precondition: db must be non-nil and the ledger migration applied.
func NewLedgerStore(db *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{db: db}
}

// Load implements ledger.Store.
func (s *LedgerStore) Load(ctx context.Context) (ledger.Snapshot, error) {
	rows, err := s.db.Query(ctx,
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
		acct, err := accountFromRow(addr, owner, data)
		if err != nil {
			return ledger.Snapshot{}, err
		}
		snap.Accounts = append(snap.Accounts, acct)
	}
	if err := rows.Err(); err != nil {
		return ledger.Snapshot{}, fmt.Errorf("iterating accounts: %w", err)
	}

	var last int64
	err = s.db.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM ledger_notifications`,
	).Scan(&last)
	if err != nil {
		return ledger.Snapshot{}, fmt.Errorf("querying last sequence: %w", err)
	}
	snap.LastSeq = uint64(last)
	return snap, nil
}

// Commit implements ledger.Store. Accounts and notifications are written in
// one transaction.
func (s *LedgerStore) Commit(ctx context.Context, b ledger.Batch) error {
	notes := make([]ledger.Notification, 0, len(b.Events))
	for _, env := range b.Events {
		n, err := ledger.NotificationOf(env)
		if err != nil {
			return err
		}
		notes = append(notes, n)
	}

	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, a := range b.Accounts {
			batch.Queue(
				`INSERT INTO ledger_accounts (address, owner, data, updated_at)
				 VALUES ($1, $2, $3, NOW())
				 ON CONFLICT (address) DO UPDATE
				 SET owner = EXCLUDED.owner, data = EXCLUDED.data, updated_at = NOW()`,
				a.Address.String(), a.Owner.String(), a.Data,
			)
		}
		for _, n := range notes {
			batch.Queue(
				`INSERT INTO ledger_notifications (seq, op, name, client, payload, emitted_at)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				int64(n.Seq), n.Op, n.Name, n.Client.String(), string(n.Payload), n.Unix,
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("committing %s: %w", b.Op, ErrSequenceConflict)
		}
		return fmt.Errorf("committing %s: %w", b.Op, err)
	}
	return nil
}

// Since implements ledger.History.
func (s *LedgerStore) Since(ctx context.Context, after uint64, limit int) ([]ledger.Notification, error) {
	query := `SELECT seq, op, name, client, payload::text, emitted_at
		FROM ledger_notifications WHERE seq > $1 ORDER BY seq`
	args := []any{int64(after)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.db.Query(ctx, query, args...)
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

func accountFromRow(addr, owner string, data []byte) (ledger.Account, error) {
	a, err := authority.Parse(addr)
	if err != nil {
		return ledger.Account{}, fmt.Errorf("account address %q: %w", addr, err)
	}
	o, err := authority.Parse(owner)
	if err != nil {
		return ledger.Account{}, fmt.Errorf("account %s owner: %w", addr, err)
	}
	return ledger.Account{Address: a, Owner: o, Data: data}, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	// pgx wraps PostgreSQL errors; check for SQLSTATE 23505 (unique_violation)
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}

// Package postgres provides a Postgres-backed Store implementation.
package postgres

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"

	"github.com/offlinepay/relay/internal/interfaces"
	"github.com/offlinepay/relay/internal/models"
)

type Store struct {
	db *sql.DB
}

var _ interfaces.Store = (*Store)(nil)

// Open connects to Postgres with the given DSN and ensures the schema exists.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		return nil, err
	}
	return s, nil
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) createTables() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS transactions (
		id          text PRIMARY KEY,
		amount      numeric NOT NULL,
		sender      text NOT NULL,
		recipient   text NOT NULL,
		created_at  timestamptz NOT NULL,
		description text NOT NULL DEFAULT '',
		status      text NOT NULL,
		signature   bytea
	);
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id             text PRIMARY KEY,
		transaction_id text NOT NULL,
		amount         numeric NOT NULL,
		direction      text NOT NULL,
		description    text NOT NULL DEFAULT '',
		created_at     timestamptz NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) PutTransaction(ctx context.Context, tx models.Transaction) error {
	const query = `
	INSERT INTO transactions (id, amount, sender, recipient, created_at, description, status, signature)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status`

	_, err := s.db.ExecContext(ctx, query,
		tx.ID, tx.Amount, tx.Sender, tx.Recipient, tx.CreatedAt, tx.Description, tx.Status, tx.Signature)
	return err
}

func (s *Store) AppendEntry(ctx context.Context, entry models.LedgerEntry) error {
	return s.appendEntry(ctx, s.db, entry)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) appendEntry(ctx context.Context, db execer, entry models.LedgerEntry) error {
	const query = `
	INSERT INTO ledger_entries (id, transaction_id, amount, direction, description, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := db.ExecContext(ctx, query,
		entry.ID, entry.TransactionID, entry.Amount, entry.Direction, entry.Description, entry.CreatedAt)
	return err
}

// CommitTransaction writes the transaction and its entry inside one database
// transaction; either both rows land or the whole write rolls back.
func (s *Store) CommitTransaction(ctx context.Context, tx models.Transaction, entry models.LedgerEntry) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	const insertTx = `
	INSERT INTO transactions (id, amount, sender, recipient, created_at, description, status, signature)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err = dbTx.ExecContext(ctx, insertTx,
		tx.ID, tx.Amount, tx.Sender, tx.Recipient, tx.CreatedAt, tx.Description, tx.Status, tx.Signature); err != nil {
		return err
	}
	if err = s.appendEntry(ctx, dbTx, entry); err != nil {
		return err
	}
	return dbTx.Commit()
}

func (s *Store) GetTransaction(ctx context.Context, id string) (models.Transaction, error) {
	const query = `
	SELECT id, amount, sender, recipient, created_at, description, status, signature
	FROM transactions WHERE id = $1`

	var tx models.Transaction
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&tx.ID, &tx.Amount, &tx.Sender, &tx.Recipient, &tx.CreatedAt, &tx.Description, &tx.Status, &tx.Signature)
	if err == sql.ErrNoRows {
		return models.Transaction{}, interfaces.ErrNotFound
	}
	if err != nil {
		return models.Transaction{}, err
	}
	return tx, nil
}

func (s *Store) ListTransactions(ctx context.Context) ([]models.Transaction, error) {
	const query = `
	SELECT id, amount, sender, recipient, created_at, description, status, signature
	FROM transactions ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Transaction
	for rows.Next() {
		var tx models.Transaction
		if err := rows.Scan(
			&tx.ID, &tx.Amount, &tx.Sender, &tx.Recipient, &tx.CreatedAt, &tx.Description, &tx.Status, &tx.Signature); err != nil {
			return nil, err
		}
		list = append(list, tx)
	}
	return list, rows.Err()
}

func (s *Store) ListEntries(ctx context.Context) ([]models.LedgerEntry, error) {
	return s.queryEntries(ctx, `
	SELECT id, transaction_id, amount, direction, description, created_at
	FROM ledger_entries ORDER BY created_at`)
}

func (s *Store) GetEntriesByTransaction(ctx context.Context, txID string) ([]models.LedgerEntry, error) {
	return s.queryEntries(ctx, `
	SELECT id, transaction_id, amount, direction, description, created_at
	FROM ledger_entries WHERE transaction_id = $1 ORDER BY created_at`, txID)
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var entry models.LedgerEntry
		if err := rows.Scan(
			&entry.ID, &entry.TransactionID, &entry.Amount, &entry.Direction, &entry.Description, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

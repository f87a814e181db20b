// Package postgres backs the ledger contract with a single JSONB document
// table. Selector queries compile to expression-index predicates over the
// document fields; transaction conflicts surface as ledger.ErrConflict so
// callers can retry a whole invocation.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"medex/exchange-service/internal/ledger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ ledger.Store = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	doc_id  text PRIMARY KEY,
	doc     jsonb NOT NULL,
	version bigint NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS documents_ticket_type_idx ON documents ((doc->>'ticketType'));
CREATE INDEX IF NOT EXISTS documents_status_idx ON documents ((doc->>'status'));
CREATE INDEX IF NOT EXISTS documents_ticket_id_idx ON documents ((doc->>'ticketId'));
CREATE INDEX IF NOT EXISTS documents_responding_hospital_idx ON documents ((doc->>'respondingHospitalNameEN'));
CREATE INDEX IF NOT EXISTS documents_posting_hospital_idx ON documents ((doc->>'postingHospitalNameEN'));
`

func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *Store) Begin(ctx context.Context) (ledger.Tx, error) {
	pgtx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, err
	}
	return &tx{pgtx: pgtx}, nil
}

type tx struct {
	pgtx pgx.Tx
}

func (t *tx) Get(ctx context.Context, id string) ([]byte, error) {
	var doc []byte
	row := t.pgtx.QueryRow(ctx, `SELECT doc FROM documents WHERE doc_id = $1`, id)
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrNotFound
		}
		return nil, mapPgError(err)
	}
	return doc, nil
}

func (t *tx) Put(ctx context.Context, id string, doc []byte) error {
	_, err := t.pgtx.Exec(ctx, `
		INSERT INTO documents (doc_id, doc) VALUES ($1, $2)
		ON CONFLICT (doc_id) DO UPDATE SET doc = EXCLUDED.doc, version = documents.version + 1
	`, id, doc)
	return mapPgError(err)
}

func (t *tx) Delete(ctx context.Context, id string) error {
	tag, err := t.pgtx.Exec(ctx, `DELETE FROM documents WHERE doc_id = $1`, id)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (t *tx) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	row := t.pgtx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM documents WHERE doc_id = $1)`, id)
	if err := row.Scan(&exists); err != nil {
		return false, mapPgError(err)
	}
	return exists, nil
}

func (t *tx) Query(ctx context.Context, sel ledger.Selector) (ledger.Iterator, error) {
	query, args := compileSelector(sel)
	rows, err := t.pgtx.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPgError(err)
	}
	return &rowsIterator{rows: rows}, nil
}

func (t *tx) Commit(ctx context.Context) error {
	return mapPgError(t.pgtx.Commit(ctx))
}

func (t *tx) Rollback(ctx context.Context) error {
	err := t.pgtx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

func compileSelector(sel ledger.Selector) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	for _, field := range sortedKeys(sel.Equals) {
		args = append(args, field, sel.Equals[field])
		conditions = append(conditions, fmt.Sprintf("doc->>$%d = $%d", len(args)-1, len(args)))
	}
	for _, field := range sortedInKeys(sel.In) {
		args = append(args, field, sel.In[field])
		conditions = append(conditions, fmt.Sprintf("doc->>$%d = ANY($%d)", len(args)-1, len(args)))
	}
	for _, field := range sel.Exists {
		args = append(args, field)
		conditions = append(conditions, fmt.Sprintf("doc ? $%d AND doc->$%d <> 'null'::jsonb", len(args), len(args)))
	}

	query := `SELECT doc FROM documents`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY doc_id"
	return query, args
}

func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func sortedInKeys(values map[string][]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// serialization_failure / deadlock_detected
		if pgErr.Code == "40001" || pgErr.Code == "40P01" {
			return ledger.ErrConflict
		}
	}
	return err
}

type rowsIterator struct {
	rows pgx.Rows
	doc  []byte
	err  error
}

func (it *rowsIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if !it.rows.Next() {
		it.err = it.rows.Err()
		return false
	}
	if err := it.rows.Scan(&it.doc); err != nil {
		it.err = err
		return false
	}
	return true
}

func (it *rowsIterator) Doc() []byte { return it.doc }
func (it *rowsIterator) Err() error  { return it.err }
func (it *rowsIterator) Close()      { it.rows.Close() }

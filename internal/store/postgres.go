package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/iotaledger/hive.go/core/safemath"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"

	"github.com/congo-pay/custody/internal/address"
)

const (
	kindMove  = "move"
	kindIssue = "issue"

	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"

	maxRetries   = 3
	retryBackoff = 10 * time.Millisecond
)

// TxBeginner is the part of *pgxpool.Pool the store needs.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// PostgresStore persists records and double-entry holder postings in PostgreSQL.
// Amounts are NUMERIC(20,0) so the full uint64 range survives; they cross the wire as text.
type PostgresStore struct {
	db TxBeginner
}

// NewPostgres constructs a Postgres-backed store. The schema is applied by infra.Migrate.
func NewPostgres(db TxBeginner) *PostgresStore {
	return &PostgresStore{db: db}
}

// Atomic runs fn inside one database transaction. Row locks are taken in the order the caller
// reads holders and records, so two operations touching the same rows in opposite order can
// deadlock; Postgres aborts one of them and the whole transaction is replayed with backoff.
func (s *PostgresStore) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	backoff := retry.WithMaxRetries(maxRetries, retry.NewExponential(retryBackoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := s.attempt(ctx, fn)
		if retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (s *PostgresStore) attempt(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// retryable reports whether Postgres aborted the transaction to break a lock cycle.
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == codeDeadlockDetected || pgErr.Code == codeSerializationFailure
}

// Close is a no-op; the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Record(ctx context.Context, addr address.Address) (Record, error) {
	const query = `SELECT program, data, allowance::text, payer FROM records WHERE address = $1 FOR UPDATE`
	var (
		program, payer, allowance string
		rec                       = Record{Address: addr}
	)
	if err := t.tx.QueryRow(ctx, query, addr.String()).Scan(&program, &rec.Data, &allowance, &payer); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, fmt.Errorf("%w: %s", ErrRecordNotFound, addr)
		}
		return Record{}, err
	}
	var err error
	if rec.Program, err = address.Parse(program); err != nil {
		return Record{}, err
	}
	if rec.Payer, err = address.Parse(payer); err != nil {
		return Record{}, err
	}
	if rec.Allowance, err = strconv.ParseUint(allowance, 10, 64); err != nil {
		return Record{}, fmt.Errorf("parse allowance of %s: %w", addr, err)
	}
	return rec, nil
}

func (t *pgTx) CreateRecord(ctx context.Context, rec Record) error {
	cmd, err := t.tx.Exec(ctx, `INSERT INTO records (address, program, data, allowance, payer)
        VALUES ($1, $2, $3, $4::text::numeric, $5)
        ON CONFLICT (address) DO NOTHING`,
		rec.Address.String(), rec.Program.String(), rec.Data, formatAmount(rec.Allowance), rec.Payer.String())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrRecordExists, rec.Address)
	}
	return nil
}

func (t *pgTx) UpdateRecord(ctx context.Context, addr address.Address, data []byte) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE records SET data = $2, updated_at = now() WHERE address = $1`, addr.String(), data)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, addr)
	}
	return nil
}

func (t *pgTx) DeleteRecord(ctx context.Context, addr address.Address) error {
	cmd, err := t.tx.Exec(ctx, `DELETE FROM records WHERE address = $1`, addr.String())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, addr)
	}
	return nil
}

func (t *pgTx) Holder(ctx context.Context, addr address.Address) (Holder, error) {
	const query = `SELECT asset, authority FROM holders WHERE address = $1 FOR UPDATE`
	var asset, authority string
	if err := t.tx.QueryRow(ctx, query, addr.String()).Scan(&asset, &authority); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Holder{}, fmt.Errorf("%w: %s", ErrHolderNotFound, addr)
		}
		return Holder{}, err
	}
	h := Holder{Address: addr}
	var err error
	if h.Asset, err = address.Parse(asset); err != nil {
		return Holder{}, err
	}
	if h.Authority, err = address.Parse(authority); err != nil {
		return Holder{}, err
	}
	if h.Balance, err = t.sumEntries(ctx, addr.String()); err != nil {
		return Holder{}, err
	}
	return h, nil
}

func (t *pgTx) CreateHolder(ctx context.Context, h Holder) error {
	cmd, err := t.tx.Exec(ctx, `INSERT INTO holders (address, asset, authority) VALUES ($1, $2, $3)
        ON CONFLICT (address) DO NOTHING`, h.Address.String(), h.Asset.String(), h.Authority.String())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrHolderExists, h.Address)
	}
	return nil
}

// Move locks both holders in address order. Holders the caller already read in this
// transaction stay locked in whatever order it took them.
func (t *pgTx) Move(ctx context.Context, from, to address.Address, amount uint64) error {
	first, second := from, to
	if to.String() < from.String() {
		first, second = to, from
	}
	locked := make(map[address.Address]Holder, 2)
	for _, addr := range []address.Address{first, second} {
		if _, ok := locked[addr]; ok {
			continue
		}
		h, err := t.Holder(ctx, addr)
		if err != nil {
			return err
		}
		locked[addr] = h
	}
	src, dst := locked[from], locked[to]

	if src.Balance < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", ErrInsufficientBalance, from, src.Balance, amount)
	}
	if from == to {
		return nil
	}
	if _, err := safemath.SafeAdd(dst.Balance, amount); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrOverflow, to, err)
	}
	return t.post(ctx, kindMove, from.String(), to.String(), amount)
}

// Issue posts the counter entry against the asset address, whose running sum is minus the supply.
func (t *pgTx) Issue(ctx context.Context, to address.Address, amount uint64) error {
	dst, err := t.Holder(ctx, to)
	if err != nil {
		return err
	}
	supply, err := t.Supply(ctx, dst.Asset)
	if err != nil {
		return err
	}
	if _, err := safemath.SafeAdd(supply, amount); err != nil {
		return fmt.Errorf("%w: supply of %s: %w", ErrOverflow, dst.Asset, err)
	}
	if _, err := safemath.SafeAdd(dst.Balance, amount); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrOverflow, to, err)
	}
	return t.post(ctx, kindIssue, dst.Asset.String(), to.String(), amount)
}

func (t *pgTx) Supply(ctx context.Context, asset address.Address) (uint64, error) {
	const query = `SELECT (-COALESCE(SUM(amount), 0))::text FROM entries WHERE holder_address = $1`
	var raw string
	if err := t.tx.QueryRow(ctx, query, asset.String()).Scan(&raw); err != nil {
		return 0, err
	}
	supply, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse supply of %s: %w", asset, err)
	}
	return supply, nil
}

func (t *pgTx) post(ctx context.Context, kind, debit, credit string, amount uint64) error {
	transferID := uuid.New()
	if _, err := t.tx.Exec(ctx, `INSERT INTO transfers (id, kind) VALUES ($1, $2)`, transferID, kind); err != nil {
		return err
	}
	if _, err := t.tx.Exec(ctx, `INSERT INTO entries (id, transfer_id, holder_address, amount) VALUES ($1, $2, $3, $4::text::numeric)`,
		uuid.New(), transferID, debit, "-"+formatAmount(amount)); err != nil {
		return err
	}
	if _, err := t.tx.Exec(ctx, `INSERT INTO entries (id, transfer_id, holder_address, amount) VALUES ($1, $2, $3, $4::text::numeric)`,
		uuid.New(), transferID, credit, formatAmount(amount)); err != nil {
		return err
	}
	return nil
}

func (t *pgTx) sumEntries(ctx context.Context, holder string) (uint64, error) {
	const query = `SELECT COALESCE(SUM(amount), 0)::text FROM entries WHERE holder_address = $1`
	var raw string
	if err := t.tx.QueryRow(ctx, query, holder).Scan(&raw); err != nil {
		return 0, err
	}
	balance, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse balance of %s: %w", holder, err)
	}
	return balance, nil
}

func formatAmount(v uint64) string {
	return strconv.FormatUint(v, 10)
}

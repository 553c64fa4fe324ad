package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/iotaledger/hive.go/core/safemath"

	"github.com/congo-pay/custody/internal/address"
)

type memoryStore struct {
	mu      sync.Mutex
	records map[address.Address]Record
	holders map[address.Address]Holder
	supply  map[address.Address]uint64
}

// NewMemory creates a concurrency-safe in-memory store useful for tests and local runs.
func NewMemory() Store {
	return &memoryStore{
		records: make(map[address.Address]Record),
		holders: make(map[address.Address]Holder),
		supply:  make(map[address.Address]uint64),
	}
}

func (s *memoryStore) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		base:    s,
		records: make(map[address.Address]*Record),
		holders: make(map[address.Address]Holder),
		supply:  make(map[address.Address]uint64),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *memoryStore) Close() error { return nil }

// memoryTx buffers writes until commit. A nil entry in records marks a deletion.
type memoryTx struct {
	base    *memoryStore
	records map[address.Address]*Record
	holders map[address.Address]Holder
	supply  map[address.Address]uint64
}

func (t *memoryTx) commit() {
	for addr, rec := range t.records {
		if rec == nil {
			delete(t.base.records, addr)
			continue
		}
		t.base.records[addr] = *rec
	}
	for addr, h := range t.holders {
		t.base.holders[addr] = h
	}
	for asset, v := range t.supply {
		t.base.supply[asset] = v
	}
}

func (t *memoryTx) Record(_ context.Context, addr address.Address) (Record, error) {
	if rec, ok := t.records[addr]; ok {
		if rec == nil {
			return Record{}, fmt.Errorf("%w: %s", ErrRecordNotFound, addr)
		}
		return cloneRecord(*rec), nil
	}
	rec, ok := t.base.records[addr]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrRecordNotFound, addr)
	}
	return cloneRecord(rec), nil
}

func (t *memoryTx) CreateRecord(ctx context.Context, rec Record) error {
	if _, err := t.Record(ctx, rec.Address); err == nil {
		return fmt.Errorf("%w: %s", ErrRecordExists, rec.Address)
	}
	stored := cloneRecord(rec)
	t.records[rec.Address] = &stored
	return nil
}

func (t *memoryTx) UpdateRecord(ctx context.Context, addr address.Address, data []byte) error {
	rec, err := t.Record(ctx, addr)
	if err != nil {
		return err
	}
	rec.Data = append([]byte(nil), data...)
	t.records[addr] = &rec
	return nil
}

func (t *memoryTx) DeleteRecord(ctx context.Context, addr address.Address) error {
	if _, err := t.Record(ctx, addr); err != nil {
		return err
	}
	t.records[addr] = nil
	return nil
}

func (t *memoryTx) Holder(_ context.Context, addr address.Address) (Holder, error) {
	if h, ok := t.holders[addr]; ok {
		return h, nil
	}
	h, ok := t.base.holders[addr]
	if !ok {
		return Holder{}, fmt.Errorf("%w: %s", ErrHolderNotFound, addr)
	}
	return h, nil
}

func (t *memoryTx) CreateHolder(ctx context.Context, h Holder) error {
	if _, err := t.Holder(ctx, h.Address); err == nil {
		return fmt.Errorf("%w: %s", ErrHolderExists, h.Address)
	}
	h.Balance = 0
	t.holders[h.Address] = h
	return nil
}

func (t *memoryTx) Move(ctx context.Context, from, to address.Address, amount uint64) error {
	src, err := t.Holder(ctx, from)
	if err != nil {
		return err
	}
	dst, err := t.Holder(ctx, to)
	if err != nil {
		return err
	}
	if src.Balance < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", ErrInsufficientBalance, from, src.Balance, amount)
	}
	if from == to {
		return nil
	}
	credited, err := safemath.SafeAdd(dst.Balance, amount)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrOverflow, to, err)
	}
	src.Balance -= amount
	dst.Balance = credited
	t.holders[from] = src
	t.holders[to] = dst
	return nil
}

func (t *memoryTx) Issue(ctx context.Context, to address.Address, amount uint64) error {
	dst, err := t.Holder(ctx, to)
	if err != nil {
		return err
	}
	supply, err := t.Supply(ctx, dst.Asset)
	if err != nil {
		return err
	}
	nextSupply, err := safemath.SafeAdd(supply, amount)
	if err != nil {
		return fmt.Errorf("%w: supply of %s: %w", ErrOverflow, dst.Asset, err)
	}
	credited, err := safemath.SafeAdd(dst.Balance, amount)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrOverflow, to, err)
	}
	dst.Balance = credited
	t.holders[to] = dst
	t.supply[dst.Asset] = nextSupply
	return nil
}

func (t *memoryTx) Supply(_ context.Context, asset address.Address) (uint64, error) {
	if v, ok := t.supply[asset]; ok {
		return v, nil
	}
	return t.base.supply[asset], nil
}

func cloneRecord(rec Record) Record {
	rec.Data = append([]byte(nil), rec.Data...)
	return rec
}

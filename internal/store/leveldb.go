package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/iotaledger/hive.go/core/safemath"
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/congo-pay/custody/internal/address"
)

// key prefixes
const (
	prefixRecord = 'R'
	prefixHolder = 'H'
	prefixSupply = 'S'
)

const (
	recordHeaderLength = address.Length*2 + 8
	holderValueLength  = address.Length*2 + 8
)

var errCorruptValue = errors.New("corrupt stored value")

// LevelStore persists records and holders in a single LevelDB database.
type LevelStore struct {
	db *leveldb.DB
}

// NewLevelDB wraps an open LevelDB handle. The store owns the handle and closes it on Close.
func NewLevelDB(db *leveldb.DB) *LevelStore {
	return &LevelStore{db: db}
}

// OpenLevelDB opens (or creates) a database directory.
func OpenLevelDB(path string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return NewLevelDB(db), nil
}

// Atomic runs fn inside a LevelDB transaction. Only one transaction can be open at a time, so
// concurrent callers queue behind each other.
func (s *LevelStore) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tr, err := s.db.OpenTransaction()
	if err != nil {
		return fmt.Errorf("open leveldb transaction: %w", err)
	}
	if err := fn(&levelTx{tr: tr}); err != nil {
		tr.Discard()
		return err
	}
	if err := tr.Commit(); err != nil {
		return fmt.Errorf("commit leveldb transaction: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *LevelStore) Close() error {
	return s.db.Close()
}

type levelTx struct {
	tr *leveldb.Transaction
}

func key(prefix byte, addr address.Address) []byte {
	k := make([]byte, 1+address.Length)
	k[0] = prefix
	copy(k[1:], addr[:])
	return k
}

func (t *levelTx) Record(_ context.Context, addr address.Address) (Record, error) {
	raw, err := t.tr.Get(key(prefixRecord, addr), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return Record{}, fmt.Errorf("%w: %s", ErrRecordNotFound, addr)
	}
	if err != nil {
		return Record{}, err
	}
	return decodeRecord(addr, raw)
}

func (t *levelTx) CreateRecord(_ context.Context, rec Record) error {
	k := key(prefixRecord, rec.Address)
	exists, err := t.tr.Has(k, nil)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrRecordExists, rec.Address)
	}
	return t.tr.Put(k, encodeRecord(rec), nil)
}

func (t *levelTx) UpdateRecord(ctx context.Context, addr address.Address, data []byte) error {
	rec, err := t.Record(ctx, addr)
	if err != nil {
		return err
	}
	rec.Data = data
	return t.tr.Put(key(prefixRecord, addr), encodeRecord(rec), nil)
}

func (t *levelTx) DeleteRecord(ctx context.Context, addr address.Address) error {
	if _, err := t.Record(ctx, addr); err != nil {
		return err
	}
	return t.tr.Delete(key(prefixRecord, addr), nil)
}

func (t *levelTx) Holder(_ context.Context, addr address.Address) (Holder, error) {
	raw, err := t.tr.Get(key(prefixHolder, addr), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return Holder{}, fmt.Errorf("%w: %s", ErrHolderNotFound, addr)
	}
	if err != nil {
		return Holder{}, err
	}
	return decodeHolder(addr, raw)
}

func (t *levelTx) CreateHolder(_ context.Context, h Holder) error {
	k := key(prefixHolder, h.Address)
	exists, err := t.tr.Has(k, nil)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrHolderExists, h.Address)
	}
	h.Balance = 0
	return t.tr.Put(k, encodeHolder(h), nil)
}

func (t *levelTx) Move(ctx context.Context, from, to address.Address, amount uint64) error {
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

	batch := new(leveldb.Batch)
	batch.Put(key(prefixHolder, from), encodeHolder(src))
	batch.Put(key(prefixHolder, to), encodeHolder(dst))
	return t.tr.Write(batch, nil)
}

func (t *levelTx) Issue(ctx context.Context, to address.Address, amount uint64) error {
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

	batch := new(leveldb.Batch)
	batch.Put(key(prefixHolder, to), encodeHolder(dst))
	batch.Put(key(prefixSupply, dst.Asset), binary.BigEndian.AppendUint64(nil, nextSupply))
	return t.tr.Write(batch, nil)
}

func (t *levelTx) Supply(_ context.Context, asset address.Address) (uint64, error) {
	raw, err := t.tr.Get(key(prefixSupply, asset), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("%w: supply of %s", errCorruptValue, asset)
	}
	return binary.BigEndian.Uint64(raw), nil
}

// record value: program | payer | allowance | data
func encodeRecord(rec Record) []byte {
	buf := make([]byte, 0, recordHeaderLength+len(rec.Data))
	buf = append(buf, rec.Program[:]...)
	buf = append(buf, rec.Payer[:]...)
	buf = binary.BigEndian.AppendUint64(buf, rec.Allowance)
	return append(buf, rec.Data...)
}

func decodeRecord(addr address.Address, raw []byte) (Record, error) {
	if len(raw) < recordHeaderLength {
		return Record{}, fmt.Errorf("%w: record %s", errCorruptValue, addr)
	}
	rec := Record{Address: addr}
	copy(rec.Program[:], raw[:address.Length])
	copy(rec.Payer[:], raw[address.Length:2*address.Length])
	rec.Allowance = binary.BigEndian.Uint64(raw[2*address.Length : recordHeaderLength])
	rec.Data = append([]byte(nil), raw[recordHeaderLength:]...)
	return rec, nil
}

// holder value: asset | authority | balance
func encodeHolder(h Holder) []byte {
	buf := make([]byte, 0, holderValueLength)
	buf = append(buf, h.Asset[:]...)
	buf = append(buf, h.Authority[:]...)
	return binary.BigEndian.AppendUint64(buf, h.Balance)
}

func decodeHolder(addr address.Address, raw []byte) (Holder, error) {
	if len(raw) != holderValueLength {
		return Holder{}, fmt.Errorf("%w: holder %s", errCorruptValue, addr)
	}
	h := Holder{Address: addr}
	copy(h.Asset[:], raw[:address.Length])
	copy(h.Authority[:], raw[address.Length:2*address.Length])
	h.Balance = binary.BigEndian.Uint64(raw[2*address.Length:])
	return h, nil
}

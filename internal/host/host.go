// Package host provides the account lifecycle primitives of the execution environment: creating
// program-owned records against a storage allowance and closing them with a refund.
package host

import (
	"context"
	"errors"
	"fmt"
	"math/bits"

	"github.com/congo-pay/custody/internal/address"
	"github.com/congo-pay/custody/internal/store"
)

// DefaultRentPerByte is the storage allowance charged per byte of record data.
const DefaultRentPerByte = 6_960

var (
	// ErrInsufficientFunds is returned when the payer cannot cover the storage allowance or fee.
	ErrInsufficientFunds = errors.New("payer cannot cover the storage allowance")
	// ErrDataTooLarge is returned when initial data exceeds the requested size.
	ErrDataTooLarge = errors.New("data exceeds record size")
	// ErrAllowanceOverflow is returned when size times rent does not fit in 64 bits.
	ErrAllowanceOverflow = errors.New("storage allowance overflows")
)

// Lifecycle creates and closes records. Allowances are parked in the rent sysvar holder while a
// record lives.
type Lifecycle struct {
	rentPerByte uint64
}

// New returns a lifecycle charging rentPerByte per byte of record data.
func New(rentPerByte uint64) *Lifecycle {
	return &Lifecycle{rentPerByte: rentPerByte}
}

// CreateInput describes a record to allocate.
type CreateInput struct {
	Address address.Address
	Program address.Address
	Size    int
	Payer   address.Address
	Data    []byte
}

// Allowance returns the storage allowance for a record of size bytes.
func (l *Lifecycle) Allowance(size int) (uint64, error) {
	if size < 0 {
		return 0, fmt.Errorf("negative record size %d", size)
	}
	hi, lo := bits.Mul64(uint64(size), l.rentPerByte)
	if hi != 0 {
		return 0, fmt.Errorf("%w: %d bytes", ErrAllowanceOverflow, size)
	}
	return lo, nil
}

// Create allocates the record, zero-padding Data to Size, and moves the allowance from the
// payer's native holder. Fails with store.ErrRecordExists if the address is occupied.
func (l *Lifecycle) Create(ctx context.Context, tx store.Tx, in CreateInput) (store.Record, error) {
	if len(in.Data) > in.Size {
		return store.Record{}, fmt.Errorf("%w: %d > %d", ErrDataTooLarge, len(in.Data), in.Size)
	}
	allowance, err := l.Allowance(in.Size)
	if err != nil {
		return store.Record{}, err
	}

	data := make([]byte, in.Size)
	copy(data, in.Data)
	rec := store.Record{
		Address:   in.Address,
		Program:   in.Program,
		Data:      data,
		Allowance: allowance,
		Payer:     in.Payer,
	}
	if err := tx.CreateRecord(ctx, rec); err != nil {
		return store.Record{}, err
	}
	if err := l.collect(ctx, tx, in.Payer, address.RentSysvar, allowance); err != nil {
		return store.Record{}, err
	}
	return rec, nil
}

// Close deletes the record and refunds its allowance to beneficiary.
func (l *Lifecycle) Close(ctx context.Context, tx store.Tx, addr, beneficiary address.Address) (uint64, error) {
	rec, err := tx.Record(ctx, addr)
	if err != nil {
		return 0, err
	}
	if err := tx.DeleteRecord(ctx, addr); err != nil {
		return 0, err
	}
	if rec.Allowance == 0 {
		return 0, nil
	}
	if _, err := store.EnsureNative(ctx, tx, beneficiary); err != nil {
		return 0, err
	}
	if err := tx.Move(ctx, address.RentSysvar, beneficiary, rec.Allowance); err != nil {
		return 0, fmt.Errorf("refund allowance of %s: %w", addr, err)
	}
	return rec.Allowance, nil
}

// ChargeFee debits a native fee from payer into the fee collector.
func (l *Lifecycle) ChargeFee(ctx context.Context, tx store.Tx, payer address.Address, amount uint64) error {
	return l.collect(ctx, tx, payer, address.FeeCollector, amount)
}

func (l *Lifecycle) collect(ctx context.Context, tx store.Tx, payer, sink address.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if _, err := tx.Holder(ctx, payer); err != nil {
		if errors.Is(err, store.ErrHolderNotFound) {
			return fmt.Errorf("%w: %s has no native holder", ErrInsufficientFunds, payer)
		}
		return err
	}
	if _, err := store.EnsureNative(ctx, tx, sink); err != nil {
		return err
	}
	if err := tx.Move(ctx, payer, sink, amount); err != nil {
		if errors.Is(err, store.ErrInsufficientBalance) {
			return fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
		}
		return err
	}
	return nil
}

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/congo-pay/custody/internal/address"
)

var (
	// ErrRecordExists is returned when creating a record at an occupied address.
	ErrRecordExists = errors.New("record already exists")
	// ErrRecordNotFound is returned when no record lives at the address.
	ErrRecordNotFound = errors.New("record not found")
	// ErrHolderExists is returned when creating a holder at an occupied address.
	ErrHolderExists = errors.New("holder already exists")
	// ErrHolderNotFound is returned when no holder lives at the address.
	ErrHolderNotFound = errors.New("holder not found")
	// ErrInsufficientBalance is returned by Move when the source cannot cover the amount.
	ErrInsufficientBalance = errors.New("insufficient holder balance")
	// ErrOverflow is returned when a credit would exceed the representable balance.
	ErrOverflow = errors.New("holder balance overflow")
)

// NativeAsset identifies the native currency; it coincides with the system program id.
var NativeAsset = address.SystemProgram

// Record is a unit of program-owned storage. Allowance is the storage deposit paid by Payer and
// refunded when the record is closed.
type Record struct {
	Address   address.Address
	Program   address.Address
	Data      []byte
	Allowance uint64
	Payer     address.Address
}

// Holder is an addressable store of a single asset. Only Authority may debit it.
type Holder struct {
	Address   address.Address
	Asset     address.Address
	Authority address.Address
	Balance   uint64
}

// Store runs units of work atomically: every mutation made through the Tx passed to fn
// commits together when fn returns nil and none survive otherwise. Writers are serialized.
type Store interface {
	Atomic(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// Tx is the view of the store available inside a unit of work.
type Tx interface {
	Record(ctx context.Context, addr address.Address) (Record, error)
	CreateRecord(ctx context.Context, rec Record) error
	UpdateRecord(ctx context.Context, addr address.Address, data []byte) error
	DeleteRecord(ctx context.Context, addr address.Address) error

	Holder(ctx context.Context, addr address.Address) (Holder, error)
	// CreateHolder registers an empty holder; h.Balance is ignored.
	CreateHolder(ctx context.Context, h Holder) error
	// Move debits from and credits to without any authority check. Both holders must exist.
	Move(ctx context.Context, from, to address.Address, amount uint64) error
	// Issue credits to out of thin air and grows the asset's supply.
	Issue(ctx context.Context, to address.Address, amount uint64) error
	Supply(ctx context.Context, asset address.Address) (uint64, error)
}

// EnsureHolder returns the holder at h.Address, creating it empty when absent. An existing
// holder must carry the same asset.
func EnsureHolder(ctx context.Context, tx Tx, h Holder) (Holder, error) {
	existing, err := tx.Holder(ctx, h.Address)
	if err == nil {
		if existing.Asset != h.Asset {
			return Holder{}, fmt.Errorf("holder %s carries asset %s, want %s", h.Address, existing.Asset, h.Asset)
		}
		return existing, nil
	}
	if !errors.Is(err, ErrHolderNotFound) {
		return Holder{}, err
	}
	h.Balance = 0
	if err := tx.CreateHolder(ctx, h); err != nil {
		return Holder{}, err
	}
	return h, nil
}

// EnsureNative returns the native holder at addr, creating it with addr as its own authority.
func EnsureNative(ctx context.Context, tx Tx, addr address.Address) (Holder, error) {
	return EnsureHolder(ctx, tx, Holder{Address: addr, Asset: NativeAsset, Authority: addr})
}

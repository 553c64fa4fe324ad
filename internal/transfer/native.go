package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/congo-pay/custody/internal/address"
	"github.com/congo-pay/custody/internal/store"
)

// Native moves the native currency. Every address is its own native holder and is created on
// first credit.
type Native struct{}

// Asset implements Program.
func (Native) Asset() address.Address { return store.NativeAsset }

// HolderOf implements Program.
func (Native) HolderOf(owner address.Address) (address.Address, error) { return owner, nil }

// Ensure implements Program.
func (Native) Ensure(ctx context.Context, tx store.Tx, owner address.Address) (store.Holder, error) {
	return store.EnsureNative(ctx, tx, owner)
}

// Balance implements Program.
func (Native) Balance(ctx context.Context, tx store.Tx, holder address.Address) (uint64, error) {
	return balanceOf(ctx, tx, holder)
}

// Transfer implements Program.
func (n Native) Transfer(ctx context.Context, tx store.Tx, in Instruction, inv Invocation) error {
	src, err := tx.Holder(ctx, in.From)
	if errors.Is(err, store.ErrHolderNotFound) {
		return fmt.Errorf("%w: %s holds nothing", ErrInsufficientFunds, in.From)
	}
	if err != nil {
		return err
	}
	dst, err := store.EnsureNative(ctx, tx, in.To)
	if err != nil {
		return err
	}
	if dst.Asset != store.NativeAsset {
		return fmt.Errorf("%w: %s holds %s", ErrAssetMismatch, dst.Address, dst.Asset)
	}
	return move(ctx, tx, src, n.Asset(), in, inv)
}

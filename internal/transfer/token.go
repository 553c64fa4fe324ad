package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/congo-pay/custody/internal/address"
	"github.com/congo-pay/custody/internal/store"
)

// Token moves units of one mint between associated token holders.
type Token struct {
	mint address.Address
}

// NewToken returns the token program for mint.
func NewToken(mint address.Address) Token {
	return Token{mint: mint}
}

// Asset implements Program.
func (t Token) Asset() address.Address { return t.mint }

// HolderOf implements Program.
func (t Token) HolderOf(owner address.Address) (address.Address, error) {
	return address.Associated(owner, t.mint)
}

// Ensure implements Program. The owner becomes the holder's authority.
func (t Token) Ensure(ctx context.Context, tx store.Tx, owner address.Address) (store.Holder, error) {
	holder, err := t.HolderOf(owner)
	if err != nil {
		return store.Holder{}, err
	}
	return store.EnsureHolder(ctx, tx, store.Holder{Address: holder, Asset: t.mint, Authority: owner})
}

// Balance implements Program.
func (t Token) Balance(ctx context.Context, tx store.Tx, holder address.Address) (uint64, error) {
	return balanceOf(ctx, tx, holder)
}

// Transfer implements Program. Both holders must already exist.
func (t Token) Transfer(ctx context.Context, tx store.Tx, in Instruction, inv Invocation) error {
	src, err := tx.Holder(ctx, in.From)
	if errors.Is(err, store.ErrHolderNotFound) {
		return fmt.Errorf("%w: %s has no token holder", ErrInsufficientFunds, in.From)
	}
	if err != nil {
		return err
	}
	dst, err := tx.Holder(ctx, in.To)
	if err != nil {
		return err
	}
	if dst.Asset != t.mint {
		return fmt.Errorf("%w: %s holds %s", ErrAssetMismatch, dst.Address, dst.Asset)
	}
	return move(ctx, tx, src, t.mint, in, inv)
}

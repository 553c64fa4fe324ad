// Package transfer moves value between holders on behalf of a signing authority.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/congo-pay/custody/internal/address"
	"github.com/congo-pay/custody/internal/store"
)

var (
	// ErrInsufficientFunds is returned when the source holder cannot cover the amount.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrMissingAuthority is returned when the source holder's authority did not sign.
	ErrMissingAuthority = errors.New("source authority did not sign")
	// ErrAssetMismatch is returned when a holder carries a different asset than the transfer.
	ErrAssetMismatch = errors.New("holder asset mismatch")
)

// Instruction asks for Amount to move from the From holder to the To holder.
type Instruction struct {
	From   address.Address
	To     address.Address
	Amount uint64
}

// Invocation carries the authorization presented with an instruction. Signers are identities
// that signed directly. SignerSeeds are derivation seeds (bump included) proving that an
// address derived under Invoker consents; only the program named by Invoker can present them.
type Invocation struct {
	Invoker     address.Address
	Signers     []address.Address
	SignerSeeds [][][]byte
}

// SignedBy is the invocation of a single direct signer.
func SignedBy(signer address.Address) Invocation {
	return Invocation{Signers: []address.Address{signer}}
}

// Signed reports whether authority consents to this invocation.
func (inv Invocation) Signed(authority address.Address) bool {
	for _, s := range inv.Signers {
		if s == authority {
			return true
		}
	}
	for _, seeds := range inv.SignerSeeds {
		derived, err := address.CreateProgramAddress(seeds, inv.Invoker)
		if err == nil && derived == authority {
			return true
		}
	}
	return false
}

// Program is a value-transfer program for one asset.
type Program interface {
	// Asset identifies the moved value: store.NativeAsset or a mint.
	Asset() address.Address
	// HolderOf returns the holder address used for owner.
	HolderOf(owner address.Address) (address.Address, error)
	// Ensure returns owner's holder, creating it empty when absent.
	Ensure(ctx context.Context, tx store.Tx, owner address.Address) (store.Holder, error)
	// Balance returns the balance of the holder at holder, zero when it does not exist.
	Balance(ctx context.Context, tx store.Tx, holder address.Address) (uint64, error)
	Transfer(ctx context.Context, tx store.Tx, in Instruction, inv Invocation) error
}

// ForAsset resolves "native" (or empty) to the native program and anything else to the token
// program of that mint.
func ForAsset(asset string) (Program, error) {
	switch strings.ToLower(strings.TrimSpace(asset)) {
	case "", "native":
		return Native{}, nil
	}
	mint, err := address.Parse(asset)
	if err != nil {
		return nil, fmt.Errorf("parse mint: %w", err)
	}
	return NewToken(mint), nil
}

func balanceOf(ctx context.Context, tx store.Tx, holder address.Address) (uint64, error) {
	h, err := tx.Holder(ctx, holder)
	if errors.Is(err, store.ErrHolderNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return h.Balance, nil
}

// move checks asset and authority on the already loaded source, then moves.
func move(ctx context.Context, tx store.Tx, src store.Holder, asset address.Address, in Instruction, inv Invocation) error {
	if src.Asset != asset {
		return fmt.Errorf("%w: %s holds %s", ErrAssetMismatch, src.Address, src.Asset)
	}
	if !inv.Signed(src.Authority) {
		return fmt.Errorf("%w: %s", ErrMissingAuthority, src.Authority)
	}
	if err := tx.Move(ctx, in.From, in.To, in.Amount); err != nil {
		if errors.Is(err, store.ErrInsufficientBalance) {
			return fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
		}
		return err
	}
	return nil
}

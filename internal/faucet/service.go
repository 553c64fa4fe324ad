// Package faucet issues value into holders in development environments, standing in for the
// host's airdrop and mint-to instructions.
package faucet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/congo-pay/custody/internal/address"
	"github.com/congo-pay/custody/internal/events"
	"github.com/congo-pay/custody/internal/store"
	"github.com/congo-pay/custody/internal/transfer"
)

var (
	// ErrInvalidAmount is returned for zero airdrops.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrAmountTooLarge is returned when the airdrop exceeds the configured cap.
	ErrAmountTooLarge = errors.New("amount exceeds airdrop cap")
	// ErrUnsupportedAsset is returned for assets the faucet does not issue.
	ErrUnsupportedAsset = errors.New("asset not issued by faucet")
)

// Service issues native value and, when the ledger runs on a token, units of that mint.
type Service struct {
	store    store.Store
	programs map[address.Address]transfer.Program
	max      uint64
	emitter  events.Emitter
	logger   *slog.Logger
}

// NewService builds a faucet capped at max per airdrop. The native program is always served;
// extra programs add their assets.
func NewService(s store.Store, max uint64, emitter events.Emitter, logger *slog.Logger, extra ...transfer.Program) (*Service, error) {
	if s == nil {
		return nil, fmt.Errorf("store is required")
	}
	if max == 0 {
		return nil, fmt.Errorf("airdrop cap must be positive")
	}
	programs := map[address.Address]transfer.Program{store.NativeAsset: transfer.Native{}}
	for _, p := range extra {
		programs[p.Asset()] = p
	}
	return &Service{store: s, programs: programs, max: max, emitter: emitter, logger: logger}, nil
}

// AirdropInput asks for Amount of Asset (native when zero) to be issued to the owner To.
type AirdropInput struct {
	To     address.Address
	Asset  address.Address
	Amount uint64
}

// AirdropResult describes the credited holder.
type AirdropResult struct {
	Holder  address.Address
	Asset   address.Address
	Balance uint64
}

// Airdrop issues value into the owner's holder, creating it when needed.
func (s *Service) Airdrop(ctx context.Context, in AirdropInput) (AirdropResult, error) {
	if in.Amount == 0 {
		return AirdropResult{}, ErrInvalidAmount
	}
	if in.Amount > s.max {
		return AirdropResult{}, fmt.Errorf("%w: %d > %d", ErrAmountTooLarge, in.Amount, s.max)
	}
	program, ok := s.programs[in.Asset]
	if !ok {
		return AirdropResult{}, fmt.Errorf("%w: %s", ErrUnsupportedAsset, in.Asset)
	}

	var res AirdropResult
	err := s.store.Atomic(ctx, func(tx store.Tx) error {
		h, err := program.Ensure(ctx, tx, in.To)
		if err != nil {
			return err
		}
		if err := tx.Issue(ctx, h.Address, in.Amount); err != nil {
			return err
		}
		balance, err := program.Balance(ctx, tx, h.Address)
		if err != nil {
			return err
		}
		res = AirdropResult{Holder: h.Address, Asset: program.Asset(), Balance: balance}
		return nil
	})
	if err != nil {
		return AirdropResult{}, fmt.Errorf("airdrop %d to %s: %w", in.Amount, in.To, err)
	}

	events.Publish(ctx, s.emitter, s.logger, events.Event{
		Kind:        events.KindAirdrop,
		Owner:       in.To,
		Counterpart: res.Holder,
		Amount:      in.Amount,
		Balance:     res.Balance,
	})
	return res, nil
}

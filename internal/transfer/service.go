package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/custody/internal/address"
	"github.com/congo-pay/custody/internal/events"
	"github.com/congo-pay/custody/internal/store"
)

// ErrInvalidAmount is returned for zero-value direct transfers.
var ErrInvalidAmount = errors.New("amount must be positive")

// Service performs direct holder-to-holder transfers signed by the sending owner.
type Service struct {
	store   store.Store
	program Program
	emitter events.Emitter
	logger  *slog.Logger
}

// NewService constructs a transfer service over program.
func NewService(s store.Store, program Program, emitter events.Emitter, logger *slog.Logger) *Service {
	return &Service{store: s, program: program, emitter: emitter, logger: logger}
}

// Program returns the value-transfer program the service moves value with.
func (s *Service) Program() Program { return s.program }

// TransferInput captures a direct transfer between owners.
type TransferInput struct {
	From   address.Address
	To     address.Address
	Amount uint64
}

// TransferResult describes the outcome of a direct transfer.
type TransferResult struct {
	TransactionID string
	FromBalance   uint64
	ToBalance     uint64
	CompletedAt   time.Time
}

// Transfer moves value from the sender's holder to the recipient's, creating the latter if needed.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (TransferResult, error) {
	if in.Amount == 0 {
		return TransferResult{}, ErrInvalidAmount
	}
	from, err := s.program.HolderOf(in.From)
	if err != nil {
		return TransferResult{}, err
	}

	var res TransferResult
	err = s.store.Atomic(ctx, func(tx store.Tx) error {
		dst, err := s.program.Ensure(ctx, tx, in.To)
		if err != nil {
			return err
		}
		if err := s.program.Transfer(ctx, tx, Instruction{From: from, To: dst.Address, Amount: in.Amount}, SignedBy(in.From)); err != nil {
			return err
		}
		if res.FromBalance, err = s.program.Balance(ctx, tx, from); err != nil {
			return err
		}
		res.ToBalance, err = s.program.Balance(ctx, tx, dst.Address)
		return err
	})
	if err != nil {
		return TransferResult{}, fmt.Errorf("transfer %d from %s to %s: %w", in.Amount, in.From, in.To, err)
	}

	res.TransactionID = uuid.NewString()
	res.CompletedAt = time.Now().UTC()

	events.Publish(ctx, s.emitter, s.logger, events.Event{
		ID:          res.TransactionID,
		Kind:        events.KindTransfer,
		Owner:       in.From,
		Counterpart: in.To,
		Amount:      in.Amount,
		Balance:     res.FromBalance,
		At:          res.CompletedAt,
	})
	return res, nil
}

// Holder returns the holder stored at addr.
func (s *Service) Holder(ctx context.Context, addr address.Address) (store.Holder, error) {
	var h store.Holder
	err := s.store.Atomic(ctx, func(tx store.Tx) error {
		var err error
		h, err = tx.Holder(ctx, addr)
		return err
	})
	return h, err
}

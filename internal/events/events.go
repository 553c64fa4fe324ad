// Package events publishes ledger activity after it commits.
package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/custody/internal/address"
)

// Kind names a ledger activity.
type Kind string

const (
	KindVaultInitialized Kind = "vault_initialized"
	KindAccountCreated   Kind = "account_created"
	KindDeposit          Kind = "deposit"
	KindWithdraw         Kind = "withdraw"
	KindAccountClosed    Kind = "account_closed"
	KindTransfer         Kind = "transfer"
	KindAirdrop          Kind = "airdrop"
)

// Event is one committed activity. Balance is the affected sub-account or holder balance after
// the operation; PooledValue is the vault's pooled value where relevant.
type Event struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"kind"`
	Program     address.Address `json:"program"`
	Owner       address.Address `json:"owner"`
	Counterpart address.Address `json:"counterpart"`
	Amount      uint64          `json:"amount"`
	Balance     uint64          `json:"balance"`
	PooledValue uint64          `json:"pooled_value"`
	At          time.Time       `json:"at"`
}

// Emitter delivers events to downstream systems.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// Publish stamps the event and hands it to emitter. Failures are logged and swallowed because
// the underlying operation has already committed.
func Publish(ctx context.Context, emitter Emitter, logger *slog.Logger, event Event) {
	if emitter == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	if err := emitter.Emit(ctx, event); err != nil && logger != nil {
		logger.Warn("event emission failed",
			slog.String("kind", string(event.Kind)),
			slog.String("event_id", event.ID),
			slog.Any("error", err))
	}
}

// Multi fans an event out to every emitter and joins their errors.
type Multi []Emitter

// Emit implements Emitter.
func (m Multi) Emit(ctx context.Context, event Event) error {
	var errs []error
	for _, e := range m {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogEmitter writes events to the structured logger.
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter constructs a logging emitter.
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	return &LogEmitter{logger: logger}
}

// Emit implements Emitter.
func (e *LogEmitter) Emit(ctx context.Context, event Event) error {
	if e == nil || e.logger == nil {
		return nil
	}
	e.logger.InfoContext(ctx, "ledger event",
		slog.String("event_id", event.ID),
		slog.String("kind", string(event.Kind)),
		slog.String("owner", event.Owner.String()),
		slog.Uint64("amount", event.Amount),
		slog.Uint64("balance", event.Balance),
		slog.Uint64("pooled_value", event.PooledValue))
	return nil
}

// Package bank implements the custodial ledger: a shared vault pooling value for many owners,
// each of whom holds a sub-account recording their claim on it.
package bank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iotaledger/hive.go/core/safemath"

	"github.com/congo-pay/custody/internal/address"
	"github.com/congo-pay/custody/internal/events"
	"github.com/congo-pay/custody/internal/host"
	"github.com/congo-pay/custody/internal/logging"
	"github.com/congo-pay/custody/internal/metrics"
	"github.com/congo-pay/custody/internal/store"
	"github.com/congo-pay/custody/internal/transfer"
)

var (
	// ErrAlreadyInitialized is returned when the vault or a sub-account already exists.
	ErrAlreadyInitialized = errors.New("account already initialized")
	// ErrNotInitialized is returned when the vault has not been initialized.
	ErrNotInitialized = errors.New("vault not initialized")
	// ErrAccountNotFound is returned when no sub-account lives at the address.
	ErrAccountNotFound = errors.New("sub-account not found")
	// ErrInsufficientFunds is returned when a withdrawal exceeds the sub-account balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInsufficientBankFunds is returned when a withdrawal exceeds the vault's pooled value.
	ErrInsufficientBankFunds = errors.New("insufficient bank funds")
	// ErrInvalidOwner is returned when the caller does not own the sub-account.
	ErrInvalidOwner = errors.New("invalid owner")
	// ErrAccountNotEmpty is returned when closing a sub-account with a non-zero balance.
	ErrAccountNotEmpty = errors.New("account not empty")
	// ErrArithmeticOverflow is returned when a credit would exceed 64 bits.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
	// ErrArithmeticUnderflow is returned when a debit would go below zero.
	ErrArithmeticUnderflow = errors.New("arithmetic underflow")
)

const (
	vaultSeed      = "bank"
	subAccountSeed = "user"
)

// operation names used for metrics and logs
const (
	opInitialize    = "initialize"
	opCreateAccount = "create_account"
	opDeposit       = "deposit"
	opWithdraw      = "withdraw"
	opCloseAccount  = "close_account"
)

// ValueHolder is the value-transfer program moving the pooled asset.
type ValueHolder interface {
	Asset() address.Address
	HolderOf(owner address.Address) (address.Address, error)
	Ensure(ctx context.Context, tx store.Tx, owner address.Address) (store.Holder, error)
	Balance(ctx context.Context, tx store.Tx, holder address.Address) (uint64, error)
	Transfer(ctx context.Context, tx store.Tx, in transfer.Instruction, inv transfer.Invocation) error
}

// Lifecycle allocates and frees records against a storage allowance.
type Lifecycle interface {
	Create(ctx context.Context, tx store.Tx, in host.CreateInput) (store.Record, error)
	Close(ctx context.Context, tx store.Tx, addr, beneficiary address.Address) (uint64, error)
}

// Options configures an Engine. Emitter, Metrics and Logger are optional.
type Options struct {
	Program   address.Address
	Store     store.Store
	Holder    ValueHolder
	Lifecycle Lifecycle
	Emitter   events.Emitter
	Metrics   *metrics.Recorder
	Logger    *slog.Logger
}

// Engine runs ledger operations. Every operation is one store unit of work.
type Engine struct {
	program   address.Address
	store     store.Store
	holder    ValueHolder
	lifecycle Lifecycle
	emitter   events.Emitter
	metrics   *metrics.Recorder
	logger    *slog.Logger

	vault       address.Address
	vaultBump   uint8
	vaultHolder address.Address
}

// NewEngine derives the vault address for opts.Program and returns a ready engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Store == nil || opts.Holder == nil || opts.Lifecycle == nil {
		return nil, fmt.Errorf("bank engine requires a store, a value holder and a lifecycle")
	}
	vault, bump, err := address.FindProgramAddress([][]byte{[]byte(vaultSeed)}, opts.Program)
	if err != nil {
		return nil, fmt.Errorf("derive vault address: %w", err)
	}
	vaultHolder, err := opts.Holder.HolderOf(vault)
	if err != nil {
		return nil, fmt.Errorf("derive vault holder: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Engine{
		program:     opts.Program,
		store:       opts.Store,
		holder:      opts.Holder,
		lifecycle:   opts.Lifecycle,
		emitter:     opts.Emitter,
		metrics:     opts.Metrics,
		logger:      logger,
		vault:       vault,
		vaultBump:   bump,
		vaultHolder: vaultHolder,
	}, nil
}

// Vault describes the shared vault.
type Vault struct {
	Address     address.Address
	Bump        uint8
	Authority   address.Address
	Asset       address.Address
	Holder      address.Address
	PooledValue uint64
}

// SubAccount describes one owner's claim on the vault.
type SubAccount struct {
	Address       address.Address
	Owner         address.Address
	DepositAmount uint64
	Allowance     uint64
}

// DepositInput moves Amount from the caller into the vault. SubAccount defaults to the caller's
// derived sub-account when zero.
type DepositInput struct {
	Caller     address.Address
	SubAccount address.Address
	Amount     uint64
}

// WithdrawInput moves Amount from the vault back to the caller.
type WithdrawInput struct {
	Caller     address.Address
	SubAccount address.Address
	Amount     uint64
}

// Receipt is the committed outcome of a deposit or withdrawal.
type Receipt struct {
	SubAccount    address.Address
	Owner         address.Address
	Amount        uint64
	DepositAmount uint64
	PooledValue   uint64
}

// Closed is the outcome of closing a sub-account.
type Closed struct {
	SubAccount address.Address
	Refund     uint64
}

// Program returns the program id the engine derives addresses under.
func (e *Engine) Program() address.Address { return e.program }

// VaultAddress returns the vault address and its bump.
func (e *Engine) VaultAddress() (address.Address, uint8) { return e.vault, e.vaultBump }

// SubAccountAddress returns the sub-account address of owner.
func (e *Engine) SubAccountAddress(owner address.Address) (address.Address, error) {
	addr, _, err := address.FindProgramAddress([][]byte{[]byte(subAccountSeed), owner[:]}, e.program)
	return addr, err
}

// Initialize creates the vault once, recording authority, who pays its storage allowance.
func (e *Engine) Initialize(ctx context.Context, authority address.Address) (v Vault, err error) {
	defer e.observe(opInitialize, time.Now(), &err)

	err = e.store.Atomic(ctx, func(tx store.Tx) error {
		_, err := e.lifecycle.Create(ctx, tx, host.CreateInput{
			Address: e.vault,
			Program: e.program,
			Size:    VaultSize,
			Payer:   authority,
			Data:    vaultState{Authority: authority}.encode(),
		})
		if err != nil {
			if errors.Is(err, store.ErrRecordExists) {
				return fmt.Errorf("%w: vault %s", ErrAlreadyInitialized, e.vault)
			}
			return err
		}
		if _, err := e.holder.Ensure(ctx, tx, e.vault); err != nil {
			return fmt.Errorf("ensure vault holder: %w", err)
		}
		v, err = e.describeVault(ctx, tx, vaultState{Authority: authority})
		return err
	})
	if err != nil {
		return Vault{}, err
	}

	e.logger.Info("bank.initialize completed",
		slog.String("vault", e.vault.String()),
		slog.String("authority", authority.String()))
	e.metrics.SetPooledValue(v.PooledValue)
	events.Publish(ctx, e.emitter, e.logger, events.Event{
		Kind:        events.KindVaultInitialized,
		Program:     e.program,
		Owner:       authority,
		PooledValue: v.PooledValue,
	})
	return v, nil
}

// CreateUserAccount creates owner's empty sub-account; owner pays the storage allowance.
func (e *Engine) CreateUserAccount(ctx context.Context, owner address.Address) (sa SubAccount, err error) {
	defer e.observe(opCreateAccount, time.Now(), &err)

	addr, err := e.SubAccountAddress(owner)
	if err != nil {
		return SubAccount{}, err
	}
	err = e.store.Atomic(ctx, func(tx store.Tx) error {
		rec, err := e.lifecycle.Create(ctx, tx, host.CreateInput{
			Address: addr,
			Program: e.program,
			Size:    SubAccountSize,
			Payer:   owner,
			Data:    subAccountState{Owner: owner}.encode(),
		})
		if err != nil {
			if errors.Is(err, store.ErrRecordExists) {
				return fmt.Errorf("%w: sub-account %s", ErrAlreadyInitialized, addr)
			}
			return err
		}
		sa = SubAccount{Address: addr, Owner: owner, Allowance: rec.Allowance}
		return nil
	})
	if err != nil {
		return SubAccount{}, err
	}

	e.logger.Info("bank.create_account completed",
		slog.String("owner", owner.String()),
		slog.String("sub_account", addr.String()))
	events.Publish(ctx, e.emitter, e.logger, events.Event{
		Kind:        events.KindAccountCreated,
		Program:     e.program,
		Owner:       owner,
		Counterpart: addr,
	})
	return sa, nil
}

// Deposit moves value from the caller's holder into the vault and credits the sub-account.
func (e *Engine) Deposit(ctx context.Context, in DepositInput) (r Receipt, err error) {
	defer e.observe(opDeposit, time.Now(), &err)

	err = e.store.Atomic(ctx, func(tx store.Tx) error {
		if _, err := e.loadVault(ctx, tx); err != nil {
			return err
		}
		addr, err := e.target(in.Caller, in.SubAccount)
		if err != nil {
			return err
		}
		_, state, err := e.loadSubAccount(ctx, tx, addr)
		if err != nil {
			return err
		}
		if err := e.authorize(in.Caller, addr, state); err != nil {
			return err
		}
		next, err := safemath.SafeAdd(state.DepositAmount, in.Amount)
		if err != nil {
			return fmt.Errorf("%w: %d + %d", ErrArithmeticOverflow, state.DepositAmount, in.Amount)
		}

		from, err := e.holder.HolderOf(in.Caller)
		if err != nil {
			return err
		}
		instr := transfer.Instruction{From: from, To: e.vaultHolder, Amount: in.Amount}
		if err := e.holder.Transfer(ctx, tx, instr, transfer.SignedBy(in.Caller)); err != nil {
			if errors.Is(err, store.ErrOverflow) {
				return fmt.Errorf("%w: vault holder: %w", ErrArithmeticOverflow, err)
			}
			return fmt.Errorf("deposit transfer: %w", err)
		}

		state.DepositAmount = next
		if err := tx.UpdateRecord(ctx, addr, state.encode()); err != nil {
			return err
		}
		r, err = e.receipt(ctx, tx, addr, state, in.Amount)
		return err
	})
	if err != nil {
		return Receipt{}, err
	}

	e.logger.Info("bank.deposit completed",
		slog.String("owner", in.Caller.String()),
		slog.Uint64("amount", in.Amount),
		slog.Uint64("deposit_amount", r.DepositAmount))
	e.publish(ctx, events.KindDeposit, r)
	return r, nil
}

// Withdraw debits the sub-account and moves value from the vault back to the caller. Checks run
// in a fixed order: sub-account balance, vault pooled value, then ownership.
func (e *Engine) Withdraw(ctx context.Context, in WithdrawInput) (r Receipt, err error) {
	defer e.observe(opWithdraw, time.Now(), &err)

	err = e.store.Atomic(ctx, func(tx store.Tx) error {
		if _, err := e.loadVault(ctx, tx); err != nil {
			return err
		}
		addr, err := e.target(in.Caller, in.SubAccount)
		if err != nil {
			return err
		}
		_, state, err := e.loadSubAccount(ctx, tx, addr)
		if err != nil {
			return err
		}
		if in.Amount > state.DepositAmount {
			return fmt.Errorf("%w: requested %d, deposited %d", ErrInsufficientFunds, in.Amount, state.DepositAmount)
		}
		pooled, err := e.holder.Balance(ctx, tx, e.vaultHolder)
		if err != nil {
			return err
		}
		if in.Amount > pooled {
			return fmt.Errorf("%w: requested %d, pooled %d", ErrInsufficientBankFunds, in.Amount, pooled)
		}
		if err := e.authorize(in.Caller, addr, state); err != nil {
			return err
		}

		to, err := e.holder.Ensure(ctx, tx, in.Caller)
		if err != nil {
			return fmt.Errorf("ensure receiver holder: %w", err)
		}
		instr := transfer.Instruction{From: e.vaultHolder, To: to.Address, Amount: in.Amount}
		if err := e.holder.Transfer(ctx, tx, instr, e.vaultSigner()); err != nil {
			if errors.Is(err, store.ErrOverflow) {
				return fmt.Errorf("%w: receiver holder: %w", ErrArithmeticOverflow, err)
			}
			return fmt.Errorf("withdraw transfer: %w", err)
		}

		next, err := safemath.SafeSub(state.DepositAmount, in.Amount)
		if err != nil {
			return fmt.Errorf("%w: %d - %d", ErrArithmeticUnderflow, state.DepositAmount, in.Amount)
		}
		state.DepositAmount = next
		if err := tx.UpdateRecord(ctx, addr, state.encode()); err != nil {
			return err
		}
		r, err = e.receipt(ctx, tx, addr, state, in.Amount)
		return err
	})
	if err != nil {
		return Receipt{}, err
	}

	e.logger.Info("bank.withdraw completed",
		slog.String("owner", in.Caller.String()),
		slog.Uint64("amount", in.Amount),
		slog.Uint64("deposit_amount", r.DepositAmount))
	e.publish(ctx, events.KindWithdraw, r)
	return r, nil
}

// CloseUserAccount destroys the caller's empty sub-account and refunds its storage allowance to
// the payer. It never moves vault value.
func (e *Engine) CloseUserAccount(ctx context.Context, caller address.Address) (c Closed, err error) {
	defer e.observe(opCloseAccount, time.Now(), &err)

	addr, err := e.SubAccountAddress(caller)
	if err != nil {
		return Closed{}, err
	}
	err = e.store.Atomic(ctx, func(tx store.Tx) error {
		rec, state, err := e.loadSubAccount(ctx, tx, addr)
		if err != nil {
			return err
		}
		if err := e.authorize(caller, addr, state); err != nil {
			return err
		}
		if state.DepositAmount != 0 {
			return fmt.Errorf("%w: %d remaining", ErrAccountNotEmpty, state.DepositAmount)
		}
		refund, err := e.lifecycle.Close(ctx, tx, addr, rec.Payer)
		if err != nil {
			return err
		}
		c = Closed{SubAccount: addr, Refund: refund}
		return nil
	})
	if err != nil {
		return Closed{}, err
	}

	e.logger.Info("bank.close_account completed",
		slog.String("owner", caller.String()),
		slog.Uint64("refund", c.Refund))
	events.Publish(ctx, e.emitter, e.logger, events.Event{
		Kind:        events.KindAccountClosed,
		Program:     e.program,
		Owner:       caller,
		Counterpart: addr,
		Amount:      c.Refund,
	})
	return c, nil
}

// Vault returns the vault and its current pooled value.
func (e *Engine) Vault(ctx context.Context) (Vault, error) {
	var v Vault
	err := e.store.Atomic(ctx, func(tx store.Tx) error {
		state, err := e.loadVault(ctx, tx)
		if err != nil {
			return err
		}
		v, err = e.describeVault(ctx, tx, state)
		return err
	})
	return v, err
}

// SubAccount returns owner's sub-account.
func (e *Engine) SubAccount(ctx context.Context, owner address.Address) (SubAccount, error) {
	addr, err := e.SubAccountAddress(owner)
	if err != nil {
		return SubAccount{}, err
	}
	var sa SubAccount
	err = e.store.Atomic(ctx, func(tx store.Tx) error {
		rec, state, err := e.loadSubAccount(ctx, tx, addr)
		if err != nil {
			return err
		}
		sa = SubAccount{Address: addr, Owner: state.Owner, DepositAmount: state.DepositAmount, Allowance: rec.Allowance}
		return nil
	})
	return sa, err
}

// vaultSigner proves the vault's consent to the value-transfer program. It never leaves the engine.
func (e *Engine) vaultSigner() transfer.Invocation {
	return transfer.Invocation{
		Invoker:     e.program,
		SignerSeeds: [][][]byte{{[]byte(vaultSeed), {e.vaultBump}}},
	}
}

func (e *Engine) target(caller, explicit address.Address) (address.Address, error) {
	if !explicit.IsZero() {
		return explicit, nil
	}
	return e.SubAccountAddress(caller)
}

// authorize requires addr to be caller's derived sub-account and the recorded owner to be caller.
func (e *Engine) authorize(caller, addr address.Address, state subAccountState) error {
	expected, err := e.SubAccountAddress(caller)
	if err != nil {
		return err
	}
	if addr != expected || state.Owner != caller {
		return fmt.Errorf("%w: %s does not own %s", ErrInvalidOwner, caller, addr)
	}
	return nil
}

func (e *Engine) loadVault(ctx context.Context, tx store.Tx) (vaultState, error) {
	rec, err := tx.Record(ctx, e.vault)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return vaultState{}, ErrNotInitialized
		}
		return vaultState{}, err
	}
	if rec.Program != e.program {
		return vaultState{}, fmt.Errorf("%w: vault owned by %s", ErrForeignRecord, rec.Program)
	}
	return decodeVault(rec.Data)
}

func (e *Engine) loadSubAccount(ctx context.Context, tx store.Tx, addr address.Address) (store.Record, subAccountState, error) {
	rec, err := tx.Record(ctx, addr)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return store.Record{}, subAccountState{}, fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
		}
		return store.Record{}, subAccountState{}, err
	}
	if rec.Program != e.program {
		return store.Record{}, subAccountState{}, fmt.Errorf("%w: %s owned by %s", ErrForeignRecord, addr, rec.Program)
	}
	state, err := decodeSubAccount(rec.Data)
	if err != nil {
		return store.Record{}, subAccountState{}, err
	}
	return rec, state, nil
}

func (e *Engine) describeVault(ctx context.Context, tx store.Tx, state vaultState) (Vault, error) {
	pooled, err := e.holder.Balance(ctx, tx, e.vaultHolder)
	if err != nil {
		return Vault{}, err
	}
	return Vault{
		Address:     e.vault,
		Bump:        e.vaultBump,
		Authority:   state.Authority,
		Asset:       e.holder.Asset(),
		Holder:      e.vaultHolder,
		PooledValue: pooled,
	}, nil
}

func (e *Engine) receipt(ctx context.Context, tx store.Tx, addr address.Address, state subAccountState, amount uint64) (Receipt, error) {
	pooled, err := e.holder.Balance(ctx, tx, e.vaultHolder)
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{
		SubAccount:    addr,
		Owner:         state.Owner,
		Amount:        amount,
		DepositAmount: state.DepositAmount,
		PooledValue:   pooled,
	}, nil
}

func (e *Engine) publish(ctx context.Context, kind events.Kind, r Receipt) {
	e.metrics.SetPooledValue(r.PooledValue)
	events.Publish(ctx, e.emitter, e.logger, events.Event{
		Kind:        kind,
		Program:     e.program,
		Owner:       r.Owner,
		Counterpart: r.SubAccount,
		Amount:      r.Amount,
		Balance:     r.DepositAmount,
		PooledValue: r.PooledValue,
	})
}

func (e *Engine) observe(op string, start time.Time, err *error) {
	e.metrics.Observe(op, start, *err)
	if *err != nil {
		e.logger.Warn("bank operation failed", slog.String("op", op), slog.Any("error", *err))
	}
}

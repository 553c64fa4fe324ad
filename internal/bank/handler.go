package bank

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/custody/internal/address"
	"github.com/congo-pay/custody/internal/events"
	"github.com/congo-pay/custody/internal/middleware"
	"github.com/congo-pay/custody/internal/transfer"
)

const defaultRecentEvents = 20

// Handler exposes the ledger over HTTP. Callers are identified by middleware.JWTAuth.
type Handler struct {
	engine  *Engine
	journal *events.Journal
}

// NewHandler constructs a bank handler. journal may be nil, which disables /stats.
func NewHandler(engine *Engine, journal *events.Journal) *Handler {
	return &Handler{engine: engine, journal: journal}
}

type amountRequest struct {
	Amount     uint64          `json:"amount"`
	SubAccount address.Address `json:"sub_account"`
}

type vaultResponse struct {
	Address     address.Address `json:"address"`
	Bump        uint8           `json:"bump"`
	Authority   address.Address `json:"authority"`
	Asset       address.Address `json:"asset"`
	Holder      address.Address `json:"holder"`
	PooledValue uint64          `json:"pooled_value"`
}

type subAccountResponse struct {
	Address       address.Address `json:"address"`
	Owner         address.Address `json:"owner"`
	DepositAmount uint64          `json:"deposit_amount"`
	Allowance     uint64          `json:"allowance"`
}

type receiptResponse struct {
	SubAccount    address.Address `json:"sub_account"`
	Owner         address.Address `json:"owner"`
	Amount        uint64          `json:"amount"`
	DepositAmount uint64          `json:"deposit_amount"`
	PooledValue   uint64          `json:"pooled_value"`
}

// Initialize creates the vault with the caller as authority.
func (h *Handler) Initialize(c *fiber.Ctx) error {
	caller, ok := middleware.Caller(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "missing caller")
	}
	v, err := h.engine.Initialize(c.UserContext(), caller)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(toVaultResponse(v))
}

// Vault returns the vault and its pooled value.
func (h *Handler) Vault(c *fiber.Ctx) error {
	v, err := h.engine.Vault(c.UserContext())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(toVaultResponse(v))
}

// CreateAccount opens the caller's sub-account.
func (h *Handler) CreateAccount(c *fiber.Ctx) error {
	caller, ok := middleware.Caller(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "missing caller")
	}
	sa, err := h.engine.CreateUserAccount(c.UserContext(), caller)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(toSubAccountResponse(sa))
}

// Account returns the caller's sub-account.
func (h *Handler) Account(c *fiber.Ctx) error {
	caller, ok := middleware.Caller(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "missing caller")
	}
	sa, err := h.engine.SubAccount(c.UserContext(), caller)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(toSubAccountResponse(sa))
}

// CloseAccount closes the caller's empty sub-account.
func (h *Handler) CloseAccount(c *fiber.Ctx) error {
	caller, ok := middleware.Caller(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "missing caller")
	}
	closed, err := h.engine.CloseUserAccount(c.UserContext(), caller)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{"sub_account": closed.SubAccount, "refund": closed.Refund, "status": "closed"})
}

// Deposit credits the caller's sub-account.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	caller, ok := middleware.Caller(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "missing caller")
	}
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	r, err := h.engine.Deposit(c.UserContext(), DepositInput{Caller: caller, SubAccount: req.SubAccount, Amount: req.Amount})
	if err != nil {
		return mapError(err)
	}
	return c.JSON(toReceiptResponse(r))
}

// Withdraw debits the caller's sub-account.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	caller, ok := middleware.Caller(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "missing caller")
	}
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	r, err := h.engine.Withdraw(c.UserContext(), WithdrawInput{Caller: caller, SubAccount: req.SubAccount, Amount: req.Amount})
	if err != nil {
		return mapError(err)
	}
	return c.JSON(toReceiptResponse(r))
}

// Stats returns running deposit and withdrawal totals plus the most recent events.
func (h *Handler) Stats(c *fiber.Ctx) error {
	if h.journal == nil {
		return fiber.NewError(http.StatusNotFound, "event journal disabled")
	}
	limit := c.QueryInt("limit", defaultRecentEvents)
	return c.JSON(fiber.Map{
		"stats":  h.journal.Stats(),
		"recent": h.journal.Recent(limit),
	})
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrAlreadyInitialized):
		return fiber.NewError(http.StatusConflict, ErrAlreadyInitialized.Error())
	case errors.Is(err, ErrNotInitialized):
		return fiber.NewError(http.StatusNotFound, ErrNotInitialized.Error())
	case errors.Is(err, ErrAccountNotFound):
		return fiber.NewError(http.StatusNotFound, ErrAccountNotFound.Error())
	case errors.Is(err, ErrInvalidOwner):
		return fiber.NewError(http.StatusForbidden, ErrInvalidOwner.Error())
	case errors.Is(err, ErrInsufficientFunds):
		return fiber.NewError(http.StatusUnprocessableEntity, ErrInsufficientFunds.Error())
	case errors.Is(err, ErrInsufficientBankFunds):
		return fiber.NewError(http.StatusUnprocessableEntity, ErrInsufficientBankFunds.Error())
	case errors.Is(err, ErrAccountNotEmpty):
		return fiber.NewError(http.StatusConflict, ErrAccountNotEmpty.Error())
	case errors.Is(err, ErrArithmeticOverflow), errors.Is(err, ErrArithmeticUnderflow):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, transfer.ErrInsufficientFunds):
		return fiber.NewError(http.StatusUnprocessableEntity, "caller holder cannot cover the amount")
	case errors.Is(err, transfer.ErrMissingAuthority):
		return fiber.NewError(http.StatusForbidden, transfer.ErrMissingAuthority.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}

func toVaultResponse(v Vault) vaultResponse {
	return vaultResponse{
		Address:     v.Address,
		Bump:        v.Bump,
		Authority:   v.Authority,
		Asset:       v.Asset,
		Holder:      v.Holder,
		PooledValue: v.PooledValue,
	}
}

func toSubAccountResponse(sa SubAccount) subAccountResponse {
	return subAccountResponse{
		Address:       sa.Address,
		Owner:         sa.Owner,
		DepositAmount: sa.DepositAmount,
		Allowance:     sa.Allowance,
	}
}

func toReceiptResponse(r Receipt) receiptResponse {
	return receiptResponse{
		SubAccount:    r.SubAccount,
		Owner:         r.Owner,
		Amount:        r.Amount,
		DepositAmount: r.DepositAmount,
		PooledValue:   r.PooledValue,
	}
}

package transfer

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/custody/internal/address"
	"github.com/congo-pay/custody/internal/middleware"
	"github.com/congo-pay/custody/internal/store"
)

// Handler exposes direct transfer endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a transfer handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transferRequest struct {
	To     address.Address `json:"to"`
	Amount uint64          `json:"amount"`
}

// Transfer moves value from the authenticated caller to another owner.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	caller, ok := middleware.Caller(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "missing caller")
	}
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	res, err := h.service.Transfer(c.UserContext(), TransferInput{From: caller, To: req.To, Amount: req.Amount})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidAmount):
			return fiber.NewError(http.StatusBadRequest, ErrInvalidAmount.Error())
		case errors.Is(err, ErrInsufficientFunds):
			return fiber.NewError(http.StatusUnprocessableEntity, "insufficient funds")
		case errors.Is(err, ErrMissingAuthority):
			return fiber.NewError(http.StatusForbidden, "not authority of source holder")
		case errors.Is(err, ErrAssetMismatch):
			return fiber.NewError(http.StatusConflict, "holder asset mismatch")
		case errors.Is(err, store.ErrOverflow):
			return fiber.NewError(http.StatusUnprocessableEntity, "recipient balance overflow")
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"transaction_id": res.TransactionID,
		"from_balance":   res.FromBalance,
		"to_balance":     res.ToBalance,
		"completed_at":   res.CompletedAt,
	})
}

// Holder returns the holder at the :address path parameter.
func (h *Handler) Holder(c *fiber.Ctx) error {
	addr, err := address.Parse(c.Params("address"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	holder, err := h.service.Holder(c.UserContext(), addr)
	if err != nil {
		if errors.Is(err, store.ErrHolderNotFound) {
			return fiber.NewError(http.StatusNotFound, "holder not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{
		"address":   holder.Address,
		"asset":     holder.Asset,
		"authority": holder.Authority,
		"balance":   holder.Balance,
	})
}

package faucet

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/custody/internal/address"
	"github.com/congo-pay/custody/internal/middleware"
	"github.com/congo-pay/custody/internal/store"
)

// Handler exposes the airdrop endpoint.
type Handler struct {
	service *Service
}

// NewHandler constructs a faucet handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// AirdropRequest funds the caller's holder. Asset is omitted for the native currency.
type AirdropRequest struct {
	Asset  address.Address `json:"asset"`
	Amount uint64          `json:"amount"`
}

// Airdrop issues value to the authenticated caller.
func (h *Handler) Airdrop(c *fiber.Ctx) error {
	caller, ok := middleware.Caller(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "missing caller")
	}
	var req AirdropRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	res, err := h.service.Airdrop(c.UserContext(), AirdropInput{To: caller, Asset: req.Asset, Amount: req.Amount})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrAmountTooLarge), errors.Is(err, ErrUnsupportedAsset):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrOverflow):
			return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"holder":  res.Holder,
		"asset":   res.Asset,
		"balance": res.Balance,
	})
}

package identity

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/custody/internal/address"
)

// Handler exposes the challenge endpoint.
type Handler struct {
	service *Service
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type challengeRequest struct {
	Address address.Address `json:"address"`
}

type challengeResponse struct {
	Address   address.Address `json:"address"`
	Nonce     string          `json:"nonce"`
	Message   string          `json:"message"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Challenge issues a sign-in nonce for the requested address.
func (h *Handler) Challenge(c *fiber.Ctx) error {
	var req challengeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	challenge, err := h.service.Challenge(c.UserContext(), req.Address)
	if err != nil {
		if errors.Is(err, ErrNotPublicKey) {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(challengeResponse{
		Address:   challenge.Address,
		Nonce:     challenge.Nonce,
		Message:   string(challenge.Message()),
		ExpiresAt: challenge.ExpiresAt,
	})
}

package auth

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/mr-tron/base58"

	"github.com/congo-pay/custody/internal/address"
	"github.com/congo-pay/custody/internal/identity"
)

// Handler exposes the sign-in endpoint.
type Handler struct {
	ids *identity.Service
	svc *Service
}

// NewHandler constructs an auth handler.
func NewHandler(ids *identity.Service, svc *Service) *Handler {
	return &Handler{ids: ids, svc: svc}
}

type loginRequest struct {
	Address   address.Address `json:"address"`
	Signature string          `json:"signature"`
}

type loginResponse struct {
	Address     address.Address `json:"address"`
	AccessToken string          `json:"access_token"`
	ExpiresIn   int64           `json:"expires_in"`
}

// Login verifies the signed challenge (base58 signature) and returns an access token.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	sig, err := base58.Decode(req.Signature)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "signature must be base58")
	}
	if err := h.ids.Verify(c.UserContext(), req.Address, sig); err != nil {
		switch {
		case errors.Is(err, identity.ErrChallengeNotFound), errors.Is(err, identity.ErrChallengeExpired),
			errors.Is(err, identity.ErrInvalidSignature):
			return fiber.NewError(http.StatusUnauthorized, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	token, err := h.svc.Issue(req.Address)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(loginResponse{Address: req.Address, AccessToken: token.AccessToken, ExpiresIn: token.ExpiresIn})
}

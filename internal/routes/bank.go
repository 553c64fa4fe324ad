package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/custody/internal/bank"
	"github.com/congo-pay/custody/internal/faucet"
	"github.com/congo-pay/custody/internal/transfer"
)

// RegisterBankRoutes wires the custodial ledger endpoints.
func RegisterBankRoutes(r fiber.Router, h *bank.Handler) {
	group := r.Group("/bank")
	group.Post("/initialize", h.Initialize)
	group.Get("/vault", h.Vault)
	group.Post("/accounts", h.CreateAccount)
	group.Get("/accounts/me", h.Account)
	group.Delete("/accounts/me", h.CloseAccount)
	group.Post("/deposit", h.Deposit)
	group.Post("/withdraw", h.Withdraw)
	group.Get("/stats", h.Stats)
}

// RegisterTransferRoutes wires direct holder transfers.
func RegisterTransferRoutes(r fiber.Router, h *transfer.Handler) {
	r.Post("/transfers", h.Transfer)
	r.Get("/holders/:address", h.Holder)
}

// RegisterFaucetRoutes wires the development faucet.
func RegisterFaucetRoutes(r fiber.Router, h *faucet.Handler) {
	r.Post("/faucet/airdrop", h.Airdrop)
}

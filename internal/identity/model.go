package identity

import (
	"time"

	"github.com/congo-pay/custody/internal/address"
)

const messagePrefix = "custody sign-in: "

// Challenge is a single-use nonce the holder of Address must sign to log in.
type Challenge struct {
	Address   address.Address `json:"address"`
	Nonce     string          `json:"nonce"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Message returns the exact bytes the caller signs.
func (c Challenge) Message() []byte {
	return []byte(messagePrefix + c.Nonce)
}

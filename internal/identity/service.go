package identity

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"filippo.io/edwards25519"
	"github.com/google/uuid"

	"github.com/congo-pay/custody/internal/address"
)

var (
	// ErrChallengeNotFound is returned when no challenge is outstanding for the address.
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrChallengeExpired is returned when the challenge outlived its TTL.
	ErrChallengeExpired = errors.New("challenge expired")
	// ErrInvalidSignature is returned when the signature does not verify against the address.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrNotPublicKey is returned for addresses no private key can sign for.
	ErrNotPublicKey = errors.New("address is not an ed25519 public key")
)

// Service issues and verifies sign-in challenges. Callers are ed25519 key holders whose public
// key is their address.
type Service struct {
	repo Repository
	ttl  time.Duration
	now  func() time.Time
}

// NewService creates an identity service.
func NewService(repo Repository, ttl time.Duration) *Service {
	return &Service{repo: repo, ttl: ttl, now: time.Now}
}

// Challenge issues a fresh nonce for addr.
func (s *Service) Challenge(ctx context.Context, addr address.Address) (Challenge, error) {
	if !signingKey(addr) {
		return Challenge{}, fmt.Errorf("%w: %s", ErrNotPublicKey, addr)
	}
	challenge := Challenge{
		Address:   addr,
		Nonce:     uuid.NewString(),
		ExpiresAt: s.now().Add(s.ttl).UTC(),
	}
	if err := s.repo.Save(ctx, challenge, s.ttl); err != nil {
		return Challenge{}, err
	}
	return challenge, nil
}

// Verify consumes the outstanding challenge for addr and checks signature over its message.
func (s *Service) Verify(ctx context.Context, addr address.Address, signature []byte) error {
	challenge, err := s.repo.Take(ctx, addr)
	if err != nil {
		return err
	}
	if s.now().After(challenge.ExpiresAt) {
		return ErrChallengeExpired
	}
	if !signingKey(addr) || len(signature) != ed25519.SignatureSize || !ed25519.Verify(ed25519.PublicKey(addr[:]), challenge.Message(), signature) {
		return ErrInvalidSignature
	}
	return nil
}

// signingKey reports whether addr decodes to a curve point outside the small-order subgroup.
// Small-order keys verify forged signatures for any message.
func signingKey(addr address.Address) bool {
	p, err := new(edwards25519.Point).SetBytes(addr[:])
	if err != nil {
		return false
	}
	return new(edwards25519.Point).MultByCofactor(p).Equal(edwards25519.NewIdentityPoint()) == 0
}

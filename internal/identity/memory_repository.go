package identity

import (
	"context"
	"sync"
	"time"

	"github.com/congo-pay/custody/internal/address"
)

type memoryRepository struct {
	mu         sync.Mutex
	challenges map[address.Address]Challenge
}

// NewMemoryRepository builds an in-memory challenge store for tests and local runs. Expiry is
// enforced by the service.
func NewMemoryRepository() Repository {
	return &memoryRepository{challenges: make(map[address.Address]Challenge)}
}

func (r *memoryRepository) Save(_ context.Context, challenge Challenge, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.challenges[challenge.Address] = challenge
	return nil
}

func (r *memoryRepository) Take(_ context.Context, addr address.Address) (Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	challenge, ok := r.challenges[addr]
	if !ok {
		return Challenge{}, ErrChallengeNotFound
	}
	delete(r.challenges, addr)
	return challenge, nil
}

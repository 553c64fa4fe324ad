package identity

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/custody/internal/address"
)

func newSigner(t *testing.T) (address.Address, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr, err := address.FromBytes(pub)
	if err != nil {
		t.Fatalf("address: %v", err)
	}
	return addr, priv
}

func testChallengeFlow(t *testing.T, repo Repository) {
	svc := NewService(repo, time.Minute)
	ctx := context.Background()
	addr, priv := newSigner(t)

	challenge, err := svc.Challenge(ctx, addr)
	if err != nil {
		t.Fatalf("challenge: %v", err)
	}
	sig := ed25519.Sign(priv, challenge.Message())
	if err := svc.Verify(ctx, addr, sig); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := svc.Verify(ctx, addr, sig); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected challenge to be single use, got %v", err)
	}

	challenge, err = svc.Challenge(ctx, addr)
	if err != nil {
		t.Fatalf("challenge: %v", err)
	}
	_, otherPriv := newSigner(t)
	if err := svc.Verify(ctx, addr, ed25519.Sign(otherPriv, challenge.Message())); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
}

func TestChallengeFlowMemory(t *testing.T) {
	testChallengeFlow(t, NewMemoryRepository())
}

func TestChallengeFlowRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	testChallengeFlow(t, NewRedisRepository(cache))
}

func TestChallengeExpires(t *testing.T) {
	svc := NewService(NewMemoryRepository(), time.Minute)
	ctx := context.Background()
	addr, priv := newSigner(t)

	challenge, err := svc.Challenge(ctx, addr)
	if err != nil {
		t.Fatalf("challenge: %v", err)
	}
	svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if err := svc.Verify(ctx, addr, ed25519.Sign(priv, challenge.Message())); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected expired challenge, got %v", err)
	}
}

func TestChallengeRejectsOffCurveAddress(t *testing.T) {
	svc := NewService(NewMemoryRepository(), time.Minute)
	pda, _, err := address.FindProgramAddress([][]byte{[]byte("bank")}, address.TokenProgram)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if _, err := svc.Challenge(context.Background(), pda); !errors.Is(err, ErrNotPublicKey) {
		t.Fatalf("expected derived address to be rejected, got %v", err)
	}
}

func TestSmallOrderKeyCannotSignIn(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, time.Minute)
	ctx := context.Background()

	// the neutral point: R = identity, S = 0 verifies for every message
	neutral := address.Address{1}
	forged := make([]byte, ed25519.SignatureSize)
	forged[0] = 1

	if _, err := svc.Challenge(ctx, neutral); !errors.Is(err, ErrNotPublicKey) {
		t.Fatalf("expected small-order key to be rejected, got %v", err)
	}

	// a challenge stored before the check existed must not verify either
	err := repo.Save(ctx, Challenge{Address: neutral, Nonce: "n", ExpiresAt: time.Now().Add(time.Minute)}, time.Minute)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := svc.Verify(ctx, neutral, forged); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected forged signature for %s to be rejected, got %v", neutral, err)
	}
}

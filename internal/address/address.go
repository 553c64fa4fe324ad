package address

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

const (
	// Length is the size in bytes of every address.
	Length = 32
	// MaxSeeds bounds the number of seeds (bump included) accepted for derivation.
	MaxSeeds = 16
	// MaxSeedLength bounds the size of a single seed.
	MaxSeedLength = 32

	pdaMarker = "ProgramDerivedAddress"
)

var (
	// ErrInvalidLength is returned when decoded input is not exactly 32 bytes.
	ErrInvalidLength = errors.New("address must be 32 bytes")
	// ErrInvalidSeeds is returned when seeds exceed the derivation limits.
	ErrInvalidSeeds = errors.New("invalid seeds")
	// ErrOnCurve means the candidate hash is a valid ed25519 point and could have a private key.
	ErrOnCurve = errors.New("derived address lies on the ed25519 curve")
	// ErrNoViableBump is returned when no bump in [0,255] yields an off-curve address.
	ErrNoViableBump = errors.New("unable to find a viable bump seed")
)

// Well-known program and sysvar identities.
var (
	SystemProgram          = Address{}
	TokenProgram           = MustParse("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	AssociatedTokenProgram = MustParse("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
	RentSysvar             = MustParse("SysvarRent111111111111111111111111111111111")
	FeeCollector           = MustParse("SysvarFees111111111111111111111111111111111")
)

// Address is a 32-byte identity: an ed25519 public key or a program derived address.
type Address [Length]byte

// FromBytes copies b into an Address.
func FromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != Length {
		return a, fmt.Errorf("%w: got %d", ErrInvalidLength, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// Parse decodes a base58 address.
func Parse(s string) (Address, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("decode address %q: %w", s, err)
	}
	return FromBytes(raw)
}

// MustParse is Parse for package-level constants; it panics on malformed input.
func MustParse(s string) Address {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String returns the base58 form.
func (a Address) String() string {
	return base58.Encode(a[:])
}

// Bytes returns a copy of the raw address.
func (a Address) Bytes() []byte {
	out := make([]byte, Length)
	copy(out, a[:])
	return out
}

// IsZero reports whether a is the all-zero address (the system program).
func (a Address) IsZero() bool {
	return a == Address{}
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// OnCurve reports whether a decodes to a point on the ed25519 curve.
func (a Address) OnCurve() bool {
	_, err := new(edwards25519.Point).SetBytes(a[:])
	return err == nil
}

// CreateProgramAddress hashes seeds under program. The result must be off the curve so that no
// private key can sign for it; only the program can, by presenting the same seeds.
func CreateProgramAddress(seeds [][]byte, program Address) (Address, error) {
	if len(seeds) > MaxSeeds {
		return Address{}, fmt.Errorf("%w: %d seeds exceeds %d", ErrInvalidSeeds, len(seeds), MaxSeeds)
	}
	h := sha256.New()
	for i, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return Address{}, fmt.Errorf("%w: seed %d is %d bytes", ErrInvalidSeeds, i, len(seed))
		}
		h.Write(seed)
	}
	h.Write(program[:])
	h.Write([]byte(pdaMarker))

	var out Address
	copy(out[:], h.Sum(nil))
	if out.OnCurve() {
		return Address{}, ErrOnCurve
	}
	return out, nil
}

// FindProgramAddress searches bumps from 255 downwards and returns the first off-curve address
// together with the bump that produced it.
func FindProgramAddress(seeds [][]byte, program Address) (Address, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return Address{}, 0, fmt.Errorf("%w: %d seeds leaves no room for a bump", ErrInvalidSeeds, len(seeds))
	}
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{uint8(bump)}
		addr, err := CreateProgramAddress(withBump, program)
		switch {
		case err == nil:
			return addr, uint8(bump), nil
		case errors.Is(err, ErrOnCurve):
			continue
		default:
			return Address{}, 0, err
		}
	}
	return Address{}, 0, ErrNoViableBump
}

// Associated returns the token holder address of owner for mint.
func Associated(owner, mint Address) (Address, error) {
	addr, _, err := FindProgramAddress([][]byte{owner[:], TokenProgram[:], mint[:]}, AssociatedTokenProgram)
	return addr, err
}

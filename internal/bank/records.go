package bank

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/congo-pay/custody/internal/address"
)

const discriminatorLength = 8

// Record sizes, discriminator included.
const (
	VaultSize      = discriminatorLength + address.Length
	SubAccountSize = discriminatorLength + address.Length + 8
)

var (
	vaultDiscriminator      = discriminator("Bank")
	subAccountDiscriminator = discriminator("UserAccount")
)

var (
	// ErrForeignRecord is returned when a record at a derived address belongs to another program
	// or another record type.
	ErrForeignRecord = errors.New("record has unexpected owner or type")
	// ErrCorruptRecord is returned when a record cannot be decoded.
	ErrCorruptRecord = errors.New("corrupt record")
)

func discriminator(name string) [discriminatorLength]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var out [discriminatorLength]byte
	copy(out[:], sum[:discriminatorLength])
	return out
}

// vaultState is the persisted part of the vault.
type vaultState struct {
	Authority address.Address
}

func (v vaultState) encode() []byte {
	buf := make([]byte, 0, VaultSize)
	buf = append(buf, vaultDiscriminator[:]...)
	return append(buf, v.Authority[:]...)
}

func decodeVault(data []byte) (vaultState, error) {
	if len(data) != VaultSize {
		return vaultState{}, fmt.Errorf("%w: vault is %d bytes", ErrCorruptRecord, len(data))
	}
	if !bytes.Equal(data[:discriminatorLength], vaultDiscriminator[:]) {
		return vaultState{}, fmt.Errorf("%w: not a vault", ErrForeignRecord)
	}
	var v vaultState
	copy(v.Authority[:], data[discriminatorLength:])
	return v, nil
}

// subAccountState is the persisted part of a sub-account. DepositAmount is little-endian.
type subAccountState struct {
	Owner         address.Address
	DepositAmount uint64
}

func (s subAccountState) encode() []byte {
	buf := make([]byte, 0, SubAccountSize)
	buf = append(buf, subAccountDiscriminator[:]...)
	buf = append(buf, s.Owner[:]...)
	return binary.LittleEndian.AppendUint64(buf, s.DepositAmount)
}

func decodeSubAccount(data []byte) (subAccountState, error) {
	if len(data) != SubAccountSize {
		return subAccountState{}, fmt.Errorf("%w: sub-account is %d bytes", ErrCorruptRecord, len(data))
	}
	if !bytes.Equal(data[:discriminatorLength], subAccountDiscriminator[:]) {
		return subAccountState{}, fmt.Errorf("%w: not a sub-account", ErrForeignRecord)
	}
	var s subAccountState
	copy(s.Owner[:], data[discriminatorLength:discriminatorLength+address.Length])
	s.DepositAmount = binary.LittleEndian.Uint64(data[discriminatorLength+address.Length:])
	return s, nil
}

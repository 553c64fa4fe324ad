package address

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemProgramIsAllOnes(t *testing.T) {
	assert.Equal(t, strings.Repeat("1", 32), SystemProgram.String())
	assert.True(t, SystemProgram.IsZero())

	parsed, err := Parse(strings.Repeat("1", 32))
	require.NoError(t, err)
	assert.Equal(t, SystemProgram, parsed)
}

func TestParseRejectsWrongLength(t *testing.T) {
	_, err := Parse("1111")
	require.ErrorIs(t, err, ErrInvalidLength)

	_, err = Parse("not-base58-0OIl")
	require.Error(t, err)
}

func TestTextRoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	addr, err := FromBytes(pub)
	require.NoError(t, err)

	payload, err := json.Marshal(map[string]Address{"owner": addr})
	require.NoError(t, err)

	var decoded map[string]Address
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, addr, decoded["owner"])
}

func TestPublicKeysAreOnCurve(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	addr, err := FromBytes(pub)
	require.NoError(t, err)
	assert.True(t, addr.OnCurve())
}

func TestFindProgramAddressIsDeterministicAndOffCurve(t *testing.T) {
	program := TokenProgram
	seeds := [][]byte{[]byte("bank")}

	first, bump, err := FindProgramAddress(seeds, program)
	require.NoError(t, err)
	second, bump2, err := FindProgramAddress(seeds, program)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, bump, bump2)
	assert.False(t, first.OnCurve())

	recreated, err := CreateProgramAddress([][]byte{[]byte("bank"), {bump}}, program)
	require.NoError(t, err)
	assert.Equal(t, first, recreated)
}

func TestFindProgramAddressSeparatesOwners(t *testing.T) {
	alice, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	bob, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	a, _, err := FindProgramAddress([][]byte{[]byte("user"), alice}, TokenProgram)
	require.NoError(t, err)
	b, _, err := FindProgramAddress([][]byte{[]byte("user"), bob}, TokenProgram)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	other, _, err := FindProgramAddress([][]byte{[]byte("user"), alice}, AssociatedTokenProgram)
	require.NoError(t, err)
	assert.NotEqual(t, a, other, "program id must scope the derivation")
}

func TestSeedLimits(t *testing.T) {
	_, err := CreateProgramAddress([][]byte{make([]byte, MaxSeedLength+1)}, SystemProgram)
	require.ErrorIs(t, err, ErrInvalidSeeds)

	tooMany := make([][]byte, MaxSeeds)
	for i := range tooMany {
		tooMany[i] = []byte{byte(i)}
	}
	_, _, err = FindProgramAddress(tooMany, SystemProgram)
	require.ErrorIs(t, err, ErrInvalidSeeds)
}

func TestAssociatedDiffersPerMint(t *testing.T) {
	owner, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	ownerAddr, err := FromBytes(owner)
	require.NoError(t, err)

	a, err := Associated(ownerAddr, TokenProgram)
	require.NoError(t, err)
	b, err := Associated(ownerAddr, RentSysvar)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

package store

import (
	"context"
	"errors"
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/congo-pay/custody/internal/address"
	"github.com/congo-pay/custody/internal/infra/pgtest"
)

type backend struct {
	name string
	open func(t *testing.T) Store
}

func backends(t *testing.T) []backend {
	t.Helper()
	list := []backend{
		{name: "memory", open: func(*testing.T) Store { return NewMemory() }},
		{name: "leveldb", open: openMemLevelDB},
	}
	if url := os.Getenv(pgtest.EnvURL); url != "" {
		list = append(list, backend{name: "postgres", open: func(t *testing.T) Store { return NewPostgres(pgtest.NewPool(t, url)) }})
	}
	return list
}

func openMemLevelDB(t *testing.T) Store {
	t.Helper()
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	require.NoError(t, err)
	s := NewLevelDB(db)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func addr(b byte) address.Address {
	var a address.Address
	a[0] = b
	a[31] = 0xAA
	return a
}

func TestStoreContract(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			t.Run("records", func(t *testing.T) { testRecords(t, b.open(t)) })
			t.Run("holders", func(t *testing.T) { testHolders(t, b.open(t)) })
			t.Run("rollback", func(t *testing.T) { testRollback(t, b.open(t)) })
			t.Run("overflow", func(t *testing.T) { testOverflow(t, b.open(t)) })
		})
	}
}

func testRecords(t *testing.T, s Store) {
	ctx := context.Background()
	rec := Record{Address: addr(1), Program: addr(2), Data: []byte{1, 2, 3}, Allowance: 960, Payer: addr(3)}

	require.NoError(t, s.Atomic(ctx, func(tx Tx) error { return tx.CreateRecord(ctx, rec) }))

	err := s.Atomic(ctx, func(tx Tx) error { return tx.CreateRecord(ctx, rec) })
	require.ErrorIs(t, err, ErrRecordExists)

	require.NoError(t, s.Atomic(ctx, func(tx Tx) error {
		got, err := tx.Record(ctx, rec.Address)
		require.NoError(t, err)
		assert.Equal(t, rec, got)
		return tx.UpdateRecord(ctx, rec.Address, []byte{9})
	}))

	require.NoError(t, s.Atomic(ctx, func(tx Tx) error {
		got, err := tx.Record(ctx, rec.Address)
		require.NoError(t, err)
		assert.Equal(t, []byte{9}, got.Data)
		assert.Equal(t, uint64(960), got.Allowance)
		return tx.DeleteRecord(ctx, rec.Address)
	}))

	require.NoError(t, s.Atomic(ctx, func(tx Tx) error {
		_, err := tx.Record(ctx, rec.Address)
		require.ErrorIs(t, err, ErrRecordNotFound)
		require.ErrorIs(t, tx.DeleteRecord(ctx, rec.Address), ErrRecordNotFound)
		// a closed address can be reused
		return tx.CreateRecord(ctx, rec)
	}))
}

func testHolders(t *testing.T, s Store) {
	ctx := context.Background()
	alice, bob := addr(10), addr(11)

	require.NoError(t, s.Atomic(ctx, func(tx Tx) error {
		if _, err := EnsureNative(ctx, tx, alice); err != nil {
			return err
		}
		if _, err := EnsureNative(ctx, tx, bob); err != nil {
			return err
		}
		return tx.Issue(ctx, alice, 1_000)
	}))

	require.NoError(t, s.Atomic(ctx, func(tx Tx) error { return tx.Move(ctx, alice, bob, 400) }))

	err := s.Atomic(ctx, func(tx Tx) error { return tx.Move(ctx, alice, bob, 601) })
	require.ErrorIs(t, err, ErrInsufficientBalance)

	require.NoError(t, s.Atomic(ctx, func(tx Tx) error {
		a, err := tx.Holder(ctx, alice)
		require.NoError(t, err)
		b, err := tx.Holder(ctx, bob)
		require.NoError(t, err)
		assert.Equal(t, uint64(600), a.Balance)
		assert.Equal(t, uint64(400), b.Balance)
		assert.Equal(t, alice, a.Authority)
		assert.Equal(t, NativeAsset, a.Asset)

		supply, err := tx.Supply(ctx, NativeAsset)
		require.NoError(t, err)
		assert.Equal(t, a.Balance+b.Balance, supply)

		_, err = tx.Holder(ctx, addr(99))
		require.ErrorIs(t, err, ErrHolderNotFound)

		_, err = EnsureHolder(ctx, tx, Holder{Address: alice, Asset: addr(50), Authority: alice})
		require.Error(t, err)
		return nil
	}))
}

func testRollback(t *testing.T, s Store) {
	ctx := context.Background()
	alice, bob := addr(20), addr(21)
	require.NoError(t, s.Atomic(ctx, func(tx Tx) error {
		if _, err := EnsureNative(ctx, tx, alice); err != nil {
			return err
		}
		if _, err := EnsureNative(ctx, tx, bob); err != nil {
			return err
		}
		return tx.Issue(ctx, alice, 100)
	}))

	boom := errors.New("boom")
	err := s.Atomic(ctx, func(tx Tx) error {
		if err := tx.Move(ctx, alice, bob, 100); err != nil {
			return err
		}
		if err := tx.CreateRecord(ctx, Record{Address: addr(22), Program: addr(2), Payer: alice}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, s.Atomic(ctx, func(tx Tx) error {
		a, err := tx.Holder(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, uint64(100), a.Balance, "move must not survive a failed unit of work")
		_, err = tx.Record(ctx, addr(22))
		require.ErrorIs(t, err, ErrRecordNotFound)
		return nil
	}))
}

func testOverflow(t *testing.T, s Store) {
	ctx := context.Background()
	asset := addr(30)
	alice, bob := addr(31), addr(32)
	require.NoError(t, s.Atomic(ctx, func(tx Tx) error {
		for _, a := range []address.Address{alice, bob} {
			if _, err := EnsureHolder(ctx, tx, Holder{Address: a, Asset: asset, Authority: a}); err != nil {
				return err
			}
		}
		return tx.Issue(ctx, alice, math.MaxUint64)
	}))

	err := s.Atomic(ctx, func(tx Tx) error { return tx.Issue(ctx, bob, 1) })
	require.ErrorIs(t, err, ErrOverflow)

	require.NoError(t, s.Atomic(ctx, func(tx Tx) error { return tx.Move(ctx, alice, bob, math.MaxUint64) }))
	require.NoError(t, s.Atomic(ctx, func(tx Tx) error {
		b, err := tx.Holder(ctx, bob)
		require.NoError(t, err)
		assert.Equal(t, uint64(math.MaxUint64), b.Balance)
		return nil
	}))
}

// Package storetest runs the same behavioural checks against every store.Store implementation.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/ima-proxy/x/chains"
	"github.com/compose-network/ima-proxy/x/store"
)

var (
	pair      = chains.Pair{Local: chains.MainnetHash, Remote: chains.HashName("schain-a")}
	otherPair = chains.Pair{Local: chains.MainnetHash, Remote: chains.HashName("schain-b")}
	contractA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	contractB = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	errAbort  = errors.New("abort")
)

// Run exercises s. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Helper()

	t.Run("registry", func(t *testing.T) { testRegistry(t, newStore(t)) })
	t.Run("roles", func(t *testing.T) { testRoles(t, newStore(t)) })
	t.Run("channel and outgoing", func(t *testing.T) { testChannel(t, newStore(t)) })
	t.Run("rollback", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("nested savepoints", func(t *testing.T) { testNested(t, newStore(t)) })
	t.Run("read only view", func(t *testing.T) { testReadOnly(t, newStore(t)) })
	t.Run("links", func(t *testing.T) { testLinks(t, newStore(t)) })
	t.Run("receipts", func(t *testing.T) { testReceipts(t, newStore(t)) })
	t.Run("accounts and settings", func(t *testing.T) { testAccounts(t, newStore(t)) })
}

func update(t *testing.T, s store.Store, fn func(store.Tx) error) {
	t.Helper()
	require.NoError(t, s.Update(context.Background(), fn))
}

func view(t *testing.T, s store.Store, fn func(store.Tx) error) {
	t.Helper()
	require.NoError(t, s.View(context.Background(), fn))
}

func testRegistry(t *testing.T, s store.Store) {
	update(t, s, func(tx store.Tx) error {
		require.NoError(t, tx.PutRegistration(pair.Remote, contractB))
		require.NoError(t, tx.PutRegistration(pair.Remote, contractA))
		return tx.PutRegistration(chains.All, contractA)
	})

	view(t, s, func(tx store.Tx) error {
		ok, err := tx.IsRegistered(pair.Remote, contractA)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = tx.IsRegistered(otherPair.Remote, contractA)
		require.NoError(t, err)
		require.False(t, ok)

		list, err := tx.Registrations(pair.Remote)
		require.NoError(t, err)
		require.Equal(t, []common.Address{contractA, contractB}, list)
		return nil
	})

	update(t, s, func(tx store.Tx) error {
		return tx.DeleteRegistration(pair.Remote, contractA)
	})
	view(t, s, func(tx store.Tx) error {
		ok, err := tx.IsRegistered(pair.Remote, contractA)
		require.NoError(t, err)
		require.False(t, ok)
		ok, err = tx.IsRegistered(chains.All, contractA)
		require.NoError(t, err)
		require.True(t, ok)
		return nil
	})
}

func testRoles(t *testing.T, s store.Store) {
	update(t, s, func(tx store.Tx) error {
		require.NoError(t, tx.PutRole("relayer", contractA))
		return tx.PutRole("relayer", contractB)
	})
	update(t, s, func(tx store.Tx) error {
		return tx.DeleteRole("relayer", contractB)
	})
	view(t, s, func(tx store.Tx) error {
		ok, err := tx.HasRole("relayer", contractA)
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = tx.HasRole("debugger", contractA)
		require.NoError(t, err)
		require.False(t, ok)
		members, err := tx.RoleMembers("relayer")
		require.NoError(t, err)
		require.Equal(t, []common.Address{contractA}, members)
		return nil
	})
}

func entry(counter uint64, data byte) chains.OutgoingEntry {
	return chains.OutgoingEntry{
		Chain:   pair.Remote,
		Counter: counter,
		Message: chains.Message{Sender: contractA, DestinationContract: contractB, Data: []byte{data}},
	}
}

func testChannel(t *testing.T, s store.Store) {
	view(t, s, func(tx store.Tx) error {
		_, ok, err := tx.Channel(pair)
		require.NoError(t, err)
		require.False(t, ok)
		return nil
	})

	update(t, s, func(tx store.Tx) error {
		require.NoError(t, tx.PutChannel(pair, store.Channel{Outgoing: 3, Watermark: 1}))
		for i := uint64(0); i < 3; i++ {
			require.NoError(t, tx.AppendOutgoing(pair, entry(i, byte(i))))
		}
		return tx.PutChannel(otherPair, store.Channel{})
	})

	ch, ok, err := store.GetChannel(context.Background(), s, pair)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(2), ch.Pending())

	view(t, s, func(tx store.Tx) error {
		got, err := tx.OutgoingRange(pair, 1, 0)
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.Equal(t, uint64(1), got[0].Counter)
		require.Equal(t, []byte{2}, got[1].Message.Data)
		require.Equal(t, contractB, got[1].Message.DestinationContract)

		got, err = tx.OutgoingRange(pair, 0, 1)
		require.NoError(t, err)
		require.Len(t, got, 1)

		got, err = tx.OutgoingRange(otherPair, 0, 10)
		require.NoError(t, err)
		require.Empty(t, got)
		return nil
	})

	update(t, s, func(tx store.Tx) error { return tx.DeleteChannel(pair) })
	view(t, s, func(tx store.Tx) error {
		_, ok, err := tx.Channel(pair)
		require.NoError(t, err)
		require.False(t, ok)
		got, err := tx.OutgoingRange(pair, 0, 0)
		require.NoError(t, err)
		require.Empty(t, got)
		_, ok, err = tx.Channel(otherPair)
		require.NoError(t, err)
		require.True(t, ok)
		return nil
	})
}

func testRollback(t *testing.T, s store.Store) {
	update(t, s, func(tx store.Tx) error {
		return tx.PutChannel(pair, store.Channel{Outgoing: 1})
	})

	err := s.Update(context.Background(), func(tx store.Tx) error {
		require.NoError(t, tx.PutChannel(pair, store.Channel{Outgoing: 2}))
		require.NoError(t, tx.AppendOutgoing(pair, entry(1, 9)))
		require.NoError(t, tx.PutRegistration(pair.Remote, contractA))
		require.NoError(t, tx.PutSetting("k", "v"))
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	view(t, s, func(tx store.Tx) error {
		ch, _, err := tx.Channel(pair)
		require.NoError(t, err)
		require.Equal(t, uint64(1), ch.Outgoing)
		got, err := tx.OutgoingRange(pair, 0, 0)
		require.NoError(t, err)
		require.Empty(t, got)
		ok, err := tx.IsRegistered(pair.Remote, contractA)
		require.NoError(t, err)
		require.False(t, ok)
		_, ok, err = tx.Setting("k")
		require.NoError(t, err)
		require.False(t, ok)
		return nil
	})
}

func testNested(t *testing.T, s store.Store) {
	update(t, s, func(tx store.Tx) error {
		require.NoError(t, tx.PutSetting("outer", "1"))

		err := tx.Nested(func(tx store.Tx) error {
			require.NoError(t, tx.PutSetting("failed", "1"))
			require.NoError(t, tx.PutBalance(store.BalanceKey{Scope: pair.Remote, Account: contractA, Asset: "eth"}, uint256.NewInt(5)))
			return errAbort
		})
		require.ErrorIs(t, err, errAbort)

		require.Panics(t, func() {
			_ = tx.Nested(func(tx store.Tx) error {
				require.NoError(t, tx.PutSetting("panicked", "1"))
				panic("boom")
			})
		})

		return tx.Nested(func(tx store.Tx) error {
			return tx.PutSetting("kept", "1")
		})
	})

	view(t, s, func(tx store.Tx) error {
		for key, want := range map[string]bool{"outer": true, "failed": false, "panicked": false, "kept": true} {
			_, ok, err := tx.Setting(key)
			require.NoError(t, err)
			require.Equal(t, want, ok, key)
		}
		bal, err := tx.Balance(store.BalanceKey{Scope: pair.Remote, Account: contractA, Asset: "eth"})
		require.NoError(t, err)
		require.True(t, bal.IsZero())
		return nil
	})

	err := s.View(context.Background(), func(tx store.Tx) error {
		return tx.Nested(func(store.Tx) error { return nil })
	})
	require.ErrorIs(t, err, store.ErrReadOnly)
}

func testReadOnly(t *testing.T, s store.Store) {
	err := s.View(context.Background(), func(tx store.Tx) error {
		return tx.PutSetting("k", "v")
	})
	require.ErrorIs(t, err, store.ErrReadOnly)
}

func testLinks(t *testing.T, s store.Store) {
	link := store.Link{
		Votes:        chains.KillVotes{BySchainOwner: true},
		Counterparts: []common.Address{contractA, contractB},
	}
	update(t, s, func(tx store.Tx) error { return tx.PutLink(pair, link) })

	view(t, s, func(tx store.Tx) error {
		got, ok, err := tx.Link(pair)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, link, got)

		_, ok, err = tx.Link(otherPair)
		require.NoError(t, err)
		require.False(t, ok)
		return nil
	})
}

func testReceipts(t *testing.T, s store.Store) {
	now := time.Unix(1_700_000_000, 0).UTC()
	receipts := []store.Receipt{
		{ID: uuid.New(), Source: pair.Remote, Counter: 0, Destination: contractA, Success: true, ProcessedAt: now},
		{ID: uuid.New(), Source: pair.Remote, Counter: 1, Destination: contractB, Reason: "HandlerFailed", Error: "boom", ProcessedAt: now},
		{ID: uuid.New(), Source: pair.Remote, Counter: 2, Destination: contractA, Success: true, ProcessedAt: now},
	}
	update(t, s, func(tx store.Tx) error { return tx.PutReceipts(pair, receipts) })

	view(t, s, func(tx store.Tx) error {
		got, err := tx.Receipts(pair, 1, 0)
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.Equal(t, receipts[1].ID, got[0].ID)
		require.False(t, got[0].Success)
		require.Equal(t, "HandlerFailed", got[0].Reason)
		require.Equal(t, "boom", got[0].Error)
		require.True(t, now.Equal(got[0].ProcessedAt))

		got, err = tx.Receipts(pair, 0, 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		return nil
	})
}

func testAccounts(t *testing.T, s store.Store) {
	key := store.BalanceKey{Scope: pair.Remote, Account: contractA, Asset: "wallet"}
	seen := time.Unix(1_700_000_100, 0).UTC()

	update(t, s, func(tx store.Tx) error {
		require.NoError(t, tx.PutBalance(key, uint256.NewInt(1_000)))
		require.NoError(t, tx.PutBalance(key, uint256.NewInt(1_500)))
		require.NoError(t, tx.PutUser(pair.Remote, contractA, store.User{Active: true, LastMessage: seen}))
		return tx.PutSetting("gas_price", "42")
	})

	view(t, s, func(tx store.Tx) error {
		b, err := tx.Balance(key)
		require.NoError(t, err)
		require.Equal(t, uint64(1_500), b.Uint64())

		b, err = tx.Balance(store.BalanceKey{Scope: pair.Remote, Account: contractB, Asset: "wallet"})
		require.NoError(t, err)
		require.True(t, b.IsZero())

		u, err := tx.User(pair.Remote, contractA)
		require.NoError(t, err)
		require.True(t, u.Active)
		require.True(t, seen.Equal(u.LastMessage))

		u, err = tx.User(pair.Remote, contractB)
		require.NoError(t, err)
		require.False(t, u.Active)

		v, ok, err := tx.Setting("gas_price")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "42", v)
		return nil
	})
}

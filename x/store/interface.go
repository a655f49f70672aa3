package store

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/compose-network/ima-proxy/x/chains"
)

// ErrReadOnly is returned by setters invoked inside View.
var ErrReadOnly = errors.New("store: write in read-only transaction")

// Store is the state arena shared by the proxy components. Every read and write
// goes through a transaction; a failed Update leaves no trace.
type Store interface {
	View(ctx context.Context, fn func(Tx) error) error
	Update(ctx context.Context, fn func(Tx) error) error
	Close() error
}

// Tx exposes typed accessors over the persisted records.
type Tx interface {
	RegistryTx
	RoleTx
	ChannelTx
	LinkTx
	ReceiptTx
	AccountTx
	SettingTx

	// Nested runs fn in a savepoint of the enclosing transaction. When fn fails or
	// panics only its own writes are undone.
	Nested(fn func(Tx) error) error
}

// RegistryTx stores (scope, contract) authorizations. Scope chains.All matches every chain.
type RegistryTx interface {
	IsRegistered(scope chains.Hash, contract common.Address) (bool, error)
	PutRegistration(scope chains.Hash, contract common.Address) error
	DeleteRegistration(scope chains.Hash, contract common.Address) error
	Registrations(scope chains.Hash) ([]common.Address, error)
}

// RoleTx stores role membership.
type RoleTx interface {
	HasRole(role string, account common.Address) (bool, error)
	PutRole(role string, account common.Address) error
	DeleteRole(role string, account common.Address) error
	RoleMembers(role string) ([]common.Address, error)
}

// ChannelTx stores counters and the outgoing log per chain pair.
type ChannelTx interface {
	Channel(pair chains.Pair) (Channel, bool, error)
	PutChannel(pair chains.Pair, ch Channel) error
	// DeleteChannel removes the counters and every outgoing entry of the pair.
	DeleteChannel(pair chains.Pair) error
	AppendOutgoing(pair chains.Pair, entry chains.OutgoingEntry) error
	// OutgoingRange returns up to limit entries with Counter >= from, in counter order.
	OutgoingRange(pair chains.Pair, from uint64, limit int) ([]chains.OutgoingEntry, error)
	DeleteOutgoing(pair chains.Pair) error
}

// LinkTx stores linker records. Links outlive channels so kill votes survive a disconnect.
type LinkTx interface {
	Link(pair chains.Pair) (Link, bool, error)
	PutLink(pair chains.Pair, link Link) error
}

// ReceiptTx stores per-message delivery outcomes.
type ReceiptTx interface {
	PutReceipts(pair chains.Pair, receipts []Receipt) error
	// Receipts returns up to limit receipts with Counter >= from, in counter order.
	Receipts(pair chains.Pair, from uint64, limit int) ([]Receipt, error)
}

// AccountTx stores balances and user flags.
type AccountTx interface {
	Balance(key BalanceKey) (*uint256.Int, error)
	PutBalance(key BalanceKey, amount *uint256.Int) error
	User(scope chains.Hash, user common.Address) (User, error)
	PutUser(scope chains.Hash, user common.Address, u User) error
}

// SettingTx stores scalar values owned by a single component.
type SettingTx interface {
	Setting(key string) (string, bool, error)
	PutSetting(key, value string) error
}

// GetChannel reads a channel in its own transaction.
func GetChannel(ctx context.Context, s Store, pair chains.Pair) (Channel, bool, error) {
	var (
		ch Channel
		ok bool
	)
	err := s.View(ctx, func(tx Tx) error {
		var err error
		ch, ok, err = tx.Channel(pair)
		return err
	})
	return ch, ok, err
}

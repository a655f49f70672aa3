package store

import (
	"bytes"
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/compose-network/ima-proxy/x/chains"
)

var _ Store = (*Memory)(nil)

type registryKey struct {
	scope    chains.Hash
	contract common.Address
}

type roleKey struct {
	role    string
	account common.Address
}

type userKey struct {
	scope chains.Hash
	user  common.Address
}

// Memory implements Store in process memory; suitable for tests and single-instance deployments.
// Writers are serialized and a failed Update is rolled back from an undo journal.
type Memory struct {
	mu sync.RWMutex

	registry map[registryKey]struct{}
	roles    map[roleKey]struct{}
	channels map[chains.Pair]Channel
	outgoing map[chains.Pair][]chains.OutgoingEntry
	links    map[chains.Pair]Link
	receipts map[chains.Pair][]Receipt
	balances map[BalanceKey]*uint256.Int
	users    map[userKey]User
	settings map[string]string
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		registry: make(map[registryKey]struct{}),
		roles:    make(map[roleKey]struct{}),
		channels: make(map[chains.Pair]Channel),
		outgoing: make(map[chains.Pair][]chains.OutgoingEntry),
		links:    make(map[chains.Pair]Link),
		receipts: make(map[chains.Pair][]Receipt),
		balances: make(map[BalanceKey]*uint256.Int),
		users:    make(map[userKey]User),
		settings: make(map[string]string),
	}
}

func (m *Memory) View(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&memTx{m: m})
}

func (m *Memory) Update(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{m: m, writable: true}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (m *Memory) Close() error { return nil }

type memTx struct {
	m        *Memory
	writable bool
	undo     []func()
}

func (t *memTx) rollback() {
	t.rollbackTo(0)
}

func (t *memTx) rollbackTo(mark int) {
	for i := len(t.undo) - 1; i >= mark; i-- {
		t.undo[i]()
	}
	t.undo = t.undo[:mark]
}

func (t *memTx) Nested(fn func(Tx) error) (err error) {
	if err := t.check(); err != nil {
		return err
	}
	mark := len(t.undo)
	panicked := true
	defer func() {
		if panicked || err != nil {
			t.rollbackTo(mark)
		}
	}()
	err = fn(t)
	panicked = false
	return err
}

func (t *memTx) check() error {
	if !t.writable {
		return ErrReadOnly
	}
	return nil
}

// journal records how to restore key in mp to its current value.
func journal[K comparable, V any](t *memTx, mp map[K]V, key K) {
	prev, existed := mp[key]
	t.undo = append(t.undo, func() {
		if existed {
			mp[key] = prev
		} else {
			delete(mp, key)
		}
	})
}

func (t *memTx) IsRegistered(scope chains.Hash, contract common.Address) (bool, error) {
	_, ok := t.m.registry[registryKey{scope, contract}]
	return ok, nil
}

func (t *memTx) PutRegistration(scope chains.Hash, contract common.Address) error {
	if err := t.check(); err != nil {
		return err
	}
	k := registryKey{scope, contract}
	journal(t, t.m.registry, k)
	t.m.registry[k] = struct{}{}
	return nil
}

func (t *memTx) DeleteRegistration(scope chains.Hash, contract common.Address) error {
	if err := t.check(); err != nil {
		return err
	}
	k := registryKey{scope, contract}
	journal(t, t.m.registry, k)
	delete(t.m.registry, k)
	return nil
}

func (t *memTx) Registrations(scope chains.Hash) ([]common.Address, error) {
	out := make([]common.Address, 0)
	for k := range t.m.registry {
		if k.scope == scope {
			out = append(out, k.contract)
		}
	}
	sortAddresses(out)
	return out, nil
}

func (t *memTx) HasRole(role string, account common.Address) (bool, error) {
	_, ok := t.m.roles[roleKey{role, account}]
	return ok, nil
}

func (t *memTx) PutRole(role string, account common.Address) error {
	if err := t.check(); err != nil {
		return err
	}
	k := roleKey{role, account}
	journal(t, t.m.roles, k)
	t.m.roles[k] = struct{}{}
	return nil
}

func (t *memTx) DeleteRole(role string, account common.Address) error {
	if err := t.check(); err != nil {
		return err
	}
	k := roleKey{role, account}
	journal(t, t.m.roles, k)
	delete(t.m.roles, k)
	return nil
}

func (t *memTx) RoleMembers(role string) ([]common.Address, error) {
	out := make([]common.Address, 0)
	for k := range t.m.roles {
		if k.role == role {
			out = append(out, k.account)
		}
	}
	sortAddresses(out)
	return out, nil
}

func (t *memTx) Channel(pair chains.Pair) (Channel, bool, error) {
	ch, ok := t.m.channels[pair]
	return ch, ok, nil
}

func (t *memTx) PutChannel(pair chains.Pair, ch Channel) error {
	if err := t.check(); err != nil {
		return err
	}
	journal(t, t.m.channels, pair)
	t.m.channels[pair] = ch
	return nil
}

func (t *memTx) DeleteChannel(pair chains.Pair) error {
	if err := t.check(); err != nil {
		return err
	}
	journal(t, t.m.channels, pair)
	delete(t.m.channels, pair)
	return t.DeleteOutgoing(pair)
}

func (t *memTx) AppendOutgoing(pair chains.Pair, entry chains.OutgoingEntry) error {
	if err := t.check(); err != nil {
		return err
	}
	journal(t, t.m.outgoing, pair)
	entry.Message.Data = bytes.Clone(entry.Message.Data)
	// A fresh backing array keeps the journaled slice intact.
	t.m.outgoing[pair] = append(slices.Clip(t.m.outgoing[pair]), entry)
	return nil
}

func (t *memTx) OutgoingRange(pair chains.Pair, from uint64, limit int) ([]chains.OutgoingEntry, error) {
	entries := t.m.outgoing[pair]
	i := sort.Search(len(entries), func(i int) bool { return entries[i].Counter >= from })
	out := make([]chains.OutgoingEntry, 0)
	for ; i < len(entries) && (limit <= 0 || len(out) < limit); i++ {
		e := entries[i]
		e.Message.Data = bytes.Clone(e.Message.Data)
		out = append(out, e)
	}
	return out, nil
}

func (t *memTx) DeleteOutgoing(pair chains.Pair) error {
	if err := t.check(); err != nil {
		return err
	}
	journal(t, t.m.outgoing, pair)
	delete(t.m.outgoing, pair)
	return nil
}

func (t *memTx) Link(pair chains.Pair) (Link, bool, error) {
	l, ok := t.m.links[pair]
	l.Counterparts = slices.Clone(l.Counterparts)
	return l, ok, nil
}

func (t *memTx) PutLink(pair chains.Pair, link Link) error {
	if err := t.check(); err != nil {
		return err
	}
	journal(t, t.m.links, pair)
	link.Counterparts = slices.Clone(link.Counterparts)
	t.m.links[pair] = link
	return nil
}

func (t *memTx) PutReceipts(pair chains.Pair, receipts []Receipt) error {
	if err := t.check(); err != nil {
		return err
	}
	journal(t, t.m.receipts, pair)
	t.m.receipts[pair] = append(slices.Clip(t.m.receipts[pair]), receipts...)
	return nil
}

func (t *memTx) Receipts(pair chains.Pair, from uint64, limit int) ([]Receipt, error) {
	out := make([]Receipt, 0)
	for _, r := range t.m.receipts[pair] {
		if r.Counter < from {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, r)
	}
	return out, nil
}

func (t *memTx) Balance(key BalanceKey) (*uint256.Int, error) {
	if b, ok := t.m.balances[key]; ok {
		return new(uint256.Int).Set(b), nil
	}
	return new(uint256.Int), nil
}

func (t *memTx) PutBalance(key BalanceKey, amount *uint256.Int) error {
	if err := t.check(); err != nil {
		return err
	}
	journal(t, t.m.balances, key)
	t.m.balances[key] = new(uint256.Int).Set(amount)
	return nil
}

func (t *memTx) User(scope chains.Hash, user common.Address) (User, error) {
	return t.m.users[userKey{scope, user}], nil
}

func (t *memTx) PutUser(scope chains.Hash, user common.Address, u User) error {
	if err := t.check(); err != nil {
		return err
	}
	k := userKey{scope, user}
	journal(t, t.m.users, k)
	t.m.users[k] = u
	return nil
}

func (t *memTx) Setting(key string) (string, bool, error) {
	v, ok := t.m.settings[key]
	return v, ok, nil
}

func (t *memTx) PutSetting(key, value string) error {
	if err := t.check(); err != nil {
		return err
	}
	journal(t, t.m.settings, key)
	t.m.settings[key] = value
	return nil
}

func sortAddresses(addrs []common.Address) {
	slices.SortFunc(addrs, func(a, b common.Address) int {
		return bytes.Compare(a[:], b[:])
	})
}

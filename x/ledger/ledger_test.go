package ledger

import (
	"context"
	"io"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/ima-proxy/x/access"
	"github.com/compose-network/ima-proxy/x/chains"
	"github.com/compose-network/ima-proxy/x/messages"
	"github.com/compose-network/ima-proxy/x/proxy"
	"github.com/compose-network/ima-proxy/x/proxyerr"
	"github.com/compose-network/ima-proxy/x/registry"
	"github.com/compose-network/ima-proxy/x/store"
)

var (
	admin = common.HexToAddress("0xa0")
	alice = common.HexToAddress("0xa11ce")
	bob   = common.HexToAddress("0xb0b")

	depositBoxAddr   = common.HexToAddress("0x3003")
	tokenManagerAddr = common.HexToAddress("0x4004")
	linkedManager    = common.HexToAddress("0x4005")
)

type acceptAll struct{}

func (acceptAll) Authenticate(context.Context, common.Address, *chains.Batch, common.Hash) error {
	return nil
}

type counterparts map[common.Address]bool

func (c counterparts) IsCounterpartTx(_ store.LinkTx, _ chains.Hash, contract common.Address) (bool, error) {
	return c[contract], nil
}

type gate struct{ blocked map[common.Address]bool }

func (g gate) CheckAllowedToSendToMainnetTx(_ store.Tx, user common.Address) error {
	if g.blocked[user] {
		return proxyerr.ErrUserNotActive
	}
	return nil
}

func newProxy(t *testing.T, local chains.Chain, remote chains.Hash, sender common.Address) (*proxy.Proxy, store.Store) {
	t.Helper()
	ctx := context.Background()
	log := zerolog.New(io.Discard)
	s := store.NewMemory()
	ac := access.New(s, log)
	require.NoError(t, ac.Bootstrap(ctx, admin))

	p, err := proxy.New(local, log, proxy.WithStore(s), proxy.WithAccess(ac),
		proxy.WithAuthenticator(acceptAll{}), proxy.WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	if chains.IsMainnet(local.Hash) {
		require.NoError(t, p.AddConnectedChain(ctx, admin, remote))
	} else {
		require.NoError(t, p.Bootstrap(ctx))
	}
	require.NoError(t, registry.New(s, ac, log).RegisterForChain(ctx, admin, remote, sender))
	return p, s
}

type handlerFunc func(ctx context.Context, tx store.Tx, source chains.Hash, sender common.Address, data []byte) error

// deliver runs h the way the proxy does, inside one store transaction.
func deliver(s store.Store, h handlerFunc, source chains.Hash, sender common.Address, data []byte) error {
	ctx := context.Background()
	return s.Update(ctx, func(tx store.Tx) error {
		return h(ctx, tx, source, sender, data)
	})
}

func transfer(t *testing.T, to common.Address, amount uint64) []byte {
	t.Helper()
	data, err := messages.EncodeTransferEth(messages.TransferEth{Receiver: to, Amount: uint256.NewInt(amount)})
	require.NoError(t, err)
	return data
}

func TestDepositBox_DepositAndRelease(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	schain := chains.HashName("schain-1")
	p, s := newProxy(t, chains.New(chains.MainnetName), schain, depositBoxAddr)
	box := NewDepositBox(DepositBoxConfig{
		Local:        p.Local(),
		Address:      depositBoxAddr,
		TokenManager: tokenManagerAddr,
	}, s, p, counterparts{linkedManager: true}, zerolog.New(io.Discard))

	_, err := box.Deposit(ctx, schain, alice, uint256.NewInt(0))
	require.ErrorIs(t, err, proxyerr.ErrInvalidAmount)
	_, err = box.Deposit(ctx, schain, common.Address{}, uint256.NewInt(1))
	require.ErrorIs(t, err, proxyerr.ErrIncorrectAddress)

	counter, err := box.Deposit(ctx, schain, alice, uint256.NewInt(100))
	require.NoError(t, err)
	require.Equal(t, uint64(0), counter)

	locked, err := box.Locked(ctx, schain)
	require.NoError(t, err)
	require.Equal(t, uint64(100), locked.Uint64())

	pending, err := p.Pending(ctx, schain, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, tokenManagerAddr, pending[0].Message.DestinationContract)
	msg, err := messages.DecodeTransferEth(pending[0].Message.Data)
	require.NoError(t, err)
	require.Equal(t, alice, msg.Receiver)
	require.Equal(t, uint64(100), msg.Amount.Uint64())

	t.Run("deposit to an unknown chain rolls back the lock", func(t *testing.T) {
		other := chains.HashName("schain-9")
		_, err := box.Deposit(ctx, other, alice, uint256.NewInt(5))
		require.ErrorIs(t, err, proxyerr.ErrChainNotConnected)
		locked, err := box.Locked(ctx, other)
		require.NoError(t, err)
		require.True(t, locked.IsZero())
	})

	stranger := common.HexToAddress("0xdead")
	err = deliver(s, box.HandleMessage, schain, stranger, transfer(t, bob, 10))
	require.ErrorIs(t, err, proxyerr.ErrPermissionDenied)
	err = deliver(s, box.HandleMessage, chains.MainnetHash, tokenManagerAddr, transfer(t, bob, 10))
	require.ErrorIs(t, err, proxyerr.ErrUnexpectedMessage)
	err = deliver(s, box.HandleMessage, schain, tokenManagerAddr, transfer(t, bob, 1000))
	require.ErrorIs(t, err, proxyerr.ErrBalanceTooLow)

	require.NoError(t, deliver(s, box.HandleMessage, schain, tokenManagerAddr, transfer(t, bob, 30)))
	require.NoError(t, deliver(s, box.HandleMessage, schain, linkedManager, transfer(t, bob, 20)))

	approved, err := box.Approved(ctx, bob)
	require.NoError(t, err)
	require.Equal(t, uint64(50), approved.Uint64())
	locked, err = box.Locked(ctx, schain)
	require.NoError(t, err)
	require.Equal(t, uint64(50), locked.Uint64())

	paid, err := box.GetMyEth(ctx, bob)
	require.NoError(t, err)
	require.Equal(t, uint64(50), paid.Uint64())
	_, err = box.GetMyEth(ctx, bob)
	require.ErrorIs(t, err, proxyerr.ErrBalanceTooLow)
}

func TestTokenManager_MintAndExit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, s := newProxy(t, chains.New("schain-1"), chains.MainnetHash, tokenManagerAddr)
	g := gate{blocked: map[common.Address]bool{}}
	tm := NewTokenManager(TokenManagerConfig{
		Local:      p.Local(),
		Address:    tokenManagerAddr,
		DepositBox: depositBoxAddr,
	}, s, p, g, zerolog.New(io.Discard))

	err := deliver(s, tm.HandleMessage, chains.HashName("schain-2"), depositBoxAddr, transfer(t, alice, 1))
	require.ErrorIs(t, err, proxyerr.ErrSourceNotMainnet)
	err = deliver(s, tm.HandleMessage, chains.MainnetHash, alice, transfer(t, alice, 1))
	require.ErrorIs(t, err, proxyerr.ErrPermissionDenied)
	err = deliver(s, tm.HandleMessage, chains.MainnetHash, depositBoxAddr, []byte{0x01})
	require.ErrorIs(t, err, proxyerr.ErrMalformedMessage)

	require.NoError(t, deliver(s, tm.HandleMessage, chains.MainnetHash, depositBoxAddr, transfer(t, alice, 70)))
	balance, err := tm.Balance(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(70), balance.Uint64())

	_, err = tm.ExitToMain(ctx, alice, uint256.NewInt(71))
	require.ErrorIs(t, err, proxyerr.ErrBalanceTooLow)

	g.blocked[alice] = true
	_, err = tm.ExitToMain(ctx, alice, uint256.NewInt(10))
	require.ErrorIs(t, err, proxyerr.ErrUserNotActive)
	g.blocked[alice] = false

	counter, err := tm.ExitToMain(ctx, alice, uint256.NewInt(25))
	require.NoError(t, err)
	require.Equal(t, uint64(0), counter)

	balance, err = tm.Balance(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(45), balance.Uint64())

	pending, err := p.Pending(ctx, chains.MainnetHash, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, depositBoxAddr, pending[0].Message.DestinationContract)
	require.Equal(t, tokenManagerAddr, pending[0].Message.Sender)
}

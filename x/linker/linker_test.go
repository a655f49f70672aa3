package linker

import (
	"context"
	"io"
	"testing"

	"github.com/ethereum/go-ethereum/common"
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
	admin    = common.HexToAddress("0xa0")
	owner    = common.HexToAddress("0xb0")
	stranger = common.HexToAddress("0xc0")

	mainnetLinker = common.HexToAddress("0x1111")
	schainLinker  = common.HexToAddress("0x2222")
	tmA           = common.HexToAddress("0x3333")
	tmB           = common.HexToAddress("0x4444")
)

type acceptAll struct{}

func (acceptAll) Authenticate(context.Context, common.Address, *chains.Batch, common.Hash) error {
	return nil
}

type fixture struct {
	linker *Linker
	proxy  *proxy.Proxy
	store  *store.Memory
}

// handle delivers a message the way the proxy does, inside one store transaction.
func (f *fixture) handle(source chains.Hash, sender common.Address, data []byte) error {
	ctx := context.Background()
	return f.store.Update(ctx, func(tx store.Tx) error {
		return f.linker.HandleMessage(ctx, tx, source, sender, data)
	})
}

func newFixture(t *testing.T, local string) *fixture {
	t.Helper()
	ctx := context.Background()
	log := zerolog.New(io.Discard)
	reg := prometheus.NewRegistry()

	s := store.NewMemory()
	ac := access.New(s, log)
	require.NoError(t, ac.Bootstrap(ctx, admin))
	require.NoError(t, ac.Grant(ctx, admin, access.RoleSchainOwner, owner))

	p, err := proxy.New(chains.New(local), log,
		proxy.WithStore(s), proxy.WithAccess(ac), proxy.WithAuthenticator(acceptAll{}), proxy.WithRegisterer(reg))
	require.NoError(t, err)
	require.NoError(t, p.Bootstrap(ctx))

	address := mainnetLinker
	if !chains.IsMainnet(chains.HashName(local)) {
		address = schainLinker
	}
	require.NoError(t, registry.New(s, ac, log).RegisterForAll(ctx, admin, address))
	cfg := Config{Address: address, MainnetLinker: mainnetLinker, SchainLinker: schainLinker, TokenManagers: 2}
	return &fixture{linker: New(cfg, s, ac, p, reg, log), proxy: p, store: s}
}

func TestConnect(t *testing.T) {
	t.Parallel()
	f := newFixture(t, chains.MainnetName)
	ctx := context.Background()
	remote := chains.HashName("schain-1")

	require.ErrorIs(t, f.linker.Connect(ctx, stranger, remote, []common.Address{tmA, tmB}), proxyerr.ErrPermissionDenied)
	require.ErrorIs(t, f.linker.Connect(ctx, admin, remote, []common.Address{tmA}), proxyerr.ErrIncorrectAddressCount)
	require.ErrorIs(t, f.linker.Connect(ctx, admin, remote, []common.Address{tmA, {}}), proxyerr.ErrIncorrectAddress)
	require.ErrorIs(t, f.linker.Connect(ctx, admin, chains.MainnetHash, []common.Address{tmA, tmB}), proxyerr.ErrReservedChain)

	require.NoError(t, f.linker.Connect(ctx, admin, remote, []common.Address{tmA, tmB}))
	require.ErrorIs(t, f.linker.Connect(ctx, admin, remote, []common.Address{tmA, tmB}), proxyerr.ErrChainAlreadyConnected)

	state, err := f.linker.State(ctx, remote)
	require.NoError(t, err)
	require.Equal(t, chains.Connected, state)

	ok, err := f.linker.IsCounterpart(ctx, remote, tmB)
	require.NoError(t, err)
	require.True(t, ok)

	linked, err := f.linker.ConnectedChains(ctx)
	require.NoError(t, err)
	require.Equal(t, []chains.Hash{remote}, linked)

	connected, err := f.proxy.IsConnectedChain(ctx, remote)
	require.NoError(t, err)
	require.True(t, connected)
}

func TestDisconnectKeepsVotes(t *testing.T) {
	t.Parallel()
	f := newFixture(t, chains.MainnetName)
	ctx := context.Background()
	remote := chains.HashName("schain-1")

	require.NoError(t, f.linker.Connect(ctx, admin, remote, []common.Address{tmA, tmB}))
	require.NoError(t, f.linker.KillBySchainOwner(ctx, owner, remote))
	require.NoError(t, f.linker.Disconnect(ctx, admin, remote))

	state, err := f.linker.State(ctx, remote)
	require.NoError(t, err)
	require.Equal(t, chains.NotConnected, state)
	require.ErrorIs(t, f.linker.Disconnect(ctx, admin, remote), proxyerr.ErrChainNotConnected)

	require.NoError(t, f.linker.Connect(ctx, admin, remote, []common.Address{tmA, tmB}))
	state, err = f.linker.State(ctx, remote)
	require.NoError(t, err)
	require.Equal(t, chains.KilledBySchainOwner, state)
}

func TestTwoPartyKill(t *testing.T) {
	t.Parallel()
	f := newFixture(t, chains.MainnetName)
	ctx := context.Background()
	remote := chains.HashName("schain-1")

	require.ErrorIs(t, f.linker.KillByOperator(ctx, admin, remote), proxyerr.ErrChainNotConnected)
	require.NoError(t, f.linker.Connect(ctx, admin, remote, []common.Address{tmA, tmB}))

	require.ErrorIs(t, f.linker.KillBySchainOwner(ctx, admin, remote), proxyerr.ErrPermissionDenied)
	require.ErrorIs(t, f.linker.KillByOperator(ctx, owner, remote), proxyerr.ErrPermissionDenied)

	require.NoError(t, f.linker.KillBySchainOwner(ctx, owner, remote))
	connected, err := f.linker.IsConnected(ctx, remote)
	require.NoError(t, err)
	require.True(t, connected)
	require.ErrorIs(t, f.linker.KillBySchainOwner(ctx, owner, remote), proxyerr.ErrAlreadyKilled)

	require.NoError(t, f.linker.KillByOperator(ctx, admin, remote))
	state, err := f.linker.State(ctx, remote)
	require.NoError(t, err)
	require.Equal(t, chains.Killed, state)
	connected, err = f.linker.IsConnected(ctx, remote)
	require.NoError(t, err)
	require.False(t, connected)

	require.ErrorIs(t, f.linker.KillByOperator(ctx, admin, remote), proxyerr.ErrAlreadyKilled)

	// No resurrection, even through disconnect.
	require.NoError(t, f.linker.Disconnect(ctx, admin, remote))
	require.ErrorIs(t, f.linker.Connect(ctx, admin, remote, []common.Address{tmA, tmB}), proxyerr.ErrConnectionNotAllowed)
	state, err = f.linker.State(ctx, remote)
	require.NoError(t, err)
	require.Equal(t, chains.Killed, state)
}

func TestKillOrderIndependent(t *testing.T) {
	t.Parallel()
	f := newFixture(t, chains.MainnetName)
	ctx := context.Background()
	remote := chains.HashName("schain-2")

	require.NoError(t, f.linker.Connect(ctx, admin, remote, []common.Address{tmA, tmB}))
	require.NoError(t, f.linker.KillByOperator(ctx, admin, remote))
	state, err := f.linker.State(ctx, remote)
	require.NoError(t, err)
	require.Equal(t, chains.KilledByOperator, state)

	require.NoError(t, f.linker.KillBySchainOwner(ctx, owner, remote))
	state, err = f.linker.State(ctx, remote)
	require.NoError(t, err)
	require.Equal(t, chains.Killed, state)
}

func TestInterchainFlag(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mainnet := newFixture(t, chains.MainnetName)
	schain := chains.HashName("schain-1")
	require.NoError(t, mainnet.linker.Connect(ctx, admin, schain, []common.Address{tmA, tmB}))

	require.ErrorIs(t, mainnet.linker.SetInterchainConnections(ctx, stranger, true), proxyerr.ErrPermissionDenied)
	require.NoError(t, mainnet.linker.SetInterchainConnections(ctx, admin, true))
	require.ErrorIs(t, mainnet.linker.SetInterchainConnections(ctx, admin, true), proxyerr.ErrNoStateChange)

	pending, err := mainnet.proxy.Pending(ctx, schain, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, mainnetLinker, pending[0].Message.Sender)
	require.Equal(t, schainLinker, pending[0].Message.DestinationContract)

	side := newFixture(t, "schain-1")
	other := chains.HashName("schain-2")
	require.ErrorIs(t, side.linker.Connect(ctx, admin, other, []common.Address{tmA, tmB}), proxyerr.ErrConnectionNotAllowed)
	require.ErrorIs(t, side.linker.SetInterchainConnections(ctx, admin, true), proxyerr.ErrSourceNotMainnet)

	data := pending[0].Message.Data
	require.ErrorIs(t, side.handle(other, mainnetLinker, data), proxyerr.ErrSourceNotMainnet)
	require.ErrorIs(t, side.handle(chains.MainnetHash, stranger, data), proxyerr.ErrPermissionDenied)

	bad, err := messages.EncodeUserStatus(messages.UserStatus{Account: stranger, Active: true})
	require.NoError(t, err)
	require.ErrorIs(t, side.handle(chains.MainnetHash, mainnetLinker, bad), proxyerr.ErrUnexpectedMessage)

	require.NoError(t, side.handle(chains.MainnetHash, mainnetLinker, data))
	enabled, err := side.linker.InterchainConnections(ctx)
	require.NoError(t, err)
	require.True(t, enabled)
	require.NoError(t, side.linker.Connect(ctx, admin, other, []common.Address{tmA, tmB}))
}

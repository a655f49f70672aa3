package registry

import (
	"context"
	"io"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/ima-proxy/x/access"
	"github.com/compose-network/ima-proxy/x/chains"
	"github.com/compose-network/ima-proxy/x/proxyerr"
	"github.com/compose-network/ima-proxy/x/store"
)

var (
	governor = common.HexToAddress("0x0000000000000000000000000000000000000901")
	stranger = common.HexToAddress("0x0000000000000000000000000000000000000666")
	pool     = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	box      = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	schainA  = chains.HashName("schain-a")
	schainB  = chains.HashName("schain-b")
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	s := store.NewMemory()
	ctl := access.New(s, zerolog.New(io.Discard))
	require.NoError(t, ctl.Bootstrap(context.Background(), governor))
	return New(s, ctl, zerolog.New(io.Discard))
}

func TestRegistry_ChainScopedRegistration(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := newRegistry(t)

	ok, err := r.IsAuthorized(ctx, schainA, box)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, r.RegisterForChain(ctx, governor, schainA, box))

	ok, err = r.IsAuthorized(ctx, schainA, box)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = r.IsAuthorized(ctx, schainB, box)
	require.NoError(t, err)
	require.False(t, ok)

	list, err := r.Contracts(ctx, schainA)
	require.NoError(t, err)
	require.Equal(t, []common.Address{box}, list)
}

func TestRegistry_AllScopeMatchesEveryChain(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := newRegistry(t)

	require.NoError(t, r.RegisterForAll(ctx, governor, pool))

	for _, chain := range []chains.Hash{schainA, schainB, chains.MainnetHash} {
		ok, err := r.IsAuthorized(ctx, chain, pool)
		require.NoError(t, err)
		require.True(t, ok)
	}

	require.NoError(t, r.RemoveForAll(ctx, governor, pool))
	ok, err := r.IsAuthorized(ctx, schainA, pool)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRegistry_DuplicateAndMissing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := newRegistry(t)

	require.NoError(t, r.RegisterForChain(ctx, governor, schainA, box))
	require.ErrorIs(t, r.RegisterForChain(ctx, governor, schainA, box), proxyerr.ErrAlreadyRegistered)

	require.NoError(t, r.Remove(ctx, governor, schainA, box))
	require.ErrorIs(t, r.Remove(ctx, governor, schainA, box), proxyerr.ErrNotRegistered)
	require.ErrorIs(t, r.RemoveForAll(ctx, governor, box), proxyerr.ErrNotRegistered)
}

func TestRegistry_PermissionDenied(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := newRegistry(t)

	require.ErrorIs(t, r.RegisterForChain(ctx, stranger, schainA, box), proxyerr.ErrPermissionDenied)
	require.ErrorIs(t, r.RegisterForAll(ctx, stranger, box), proxyerr.ErrPermissionDenied)

	require.NoError(t, r.RegisterForChain(ctx, governor, schainA, box))
	require.ErrorIs(t, r.Remove(ctx, stranger, schainA, box), proxyerr.ErrPermissionDenied)

	ok, err := r.IsAuthorized(ctx, schainA, box)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRegistry_RejectsZeroAddress(t *testing.T) {
	t.Parallel()
	r := newRegistry(t)

	err := r.RegisterForChain(context.Background(), governor, schainA, common.Address{})
	require.ErrorIs(t, err, proxyerr.ErrIncorrectAddress)
}

package access

import (
	"context"
	"io"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/ima-proxy/x/proxyerr"
	"github.com/compose-network/ima-proxy/x/store"
)

var (
	admin = common.HexToAddress("0x000000000000000000000000000000000000ad01")
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
)

func newControl(t *testing.T) *Control {
	t.Helper()
	c := New(store.NewMemory(), zerolog.New(io.Discard))
	require.NoError(t, c.Bootstrap(context.Background(), admin))
	return c
}

func TestControl_GrantAndRequire(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newControl(t)

	err := c.Require(ctx, RoleDebugger, alice)
	require.ErrorIs(t, err, proxyerr.ErrPermissionDenied)

	require.NoError(t, c.Grant(ctx, admin, RoleDebugger, alice))
	require.NoError(t, c.Require(ctx, RoleDebugger, alice))
	require.ErrorIs(t, c.Require(ctx, RoleRelayer, alice), proxyerr.ErrPermissionDenied)

	members, err := c.Members(ctx, RoleDebugger)
	require.NoError(t, err)
	require.Equal(t, []common.Address{alice}, members)

	require.NoError(t, c.Revoke(ctx, admin, RoleDebugger, alice))
	require.ErrorIs(t, c.Require(ctx, RoleDebugger, alice), proxyerr.ErrPermissionDenied)
}

func TestControl_AdminPassesEveryRole(t *testing.T) {
	t.Parallel()
	c := newControl(t)

	for _, role := range []string{RoleRegistrar, RoleChainConnector, RoleRelayer, RoleConstantSetter} {
		require.NoError(t, c.Require(context.Background(), role, admin))
	}
}

func TestControl_OnlyAdminGrants(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newControl(t)

	err := c.Grant(ctx, alice, RoleAdmin, alice)
	require.ErrorIs(t, err, proxyerr.ErrPermissionDenied)

	ok, err := c.Has(ctx, RoleAdmin, alice)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestControl_AdminIsNotSchainOwner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newControl(t)

	require.ErrorIs(t, c.Require(ctx, RoleSchainOwner, admin), proxyerr.ErrPermissionDenied)

	require.NoError(t, c.Grant(ctx, admin, RoleSchainOwner, alice))
	require.NoError(t, c.Require(ctx, RoleSchainOwner, alice))
}

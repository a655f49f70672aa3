// Package access implements role based permissions for governance calls.
package access

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/compose-network/ima-proxy/x/proxyerr"
	"github.com/compose-network/ima-proxy/x/store"
)

// Role names.
const (
	RoleAdmin          = "DEFAULT_ADMIN_ROLE"
	RoleRegistrar      = "EXTRA_CONTRACT_REGISTRAR_ROLE"
	RoleChainConnector = "CHAIN_CONNECTOR_ROLE"
	RoleDebugger       = "DEBUGGER_ROLE"
	RoleRelayer        = "RELAYER_ROLE"
	RoleSchainOwner    = "SCHAIN_OWNER_ROLE"
	RoleConstantSetter = "CONSTANT_SETTER_ROLE"
)

// Checker answers permission questions. Components depend on this, not on Control.
type Checker interface {
	Require(ctx context.Context, role string, caller common.Address) error
}

// Control stores role membership in the shared store. Holders of RoleAdmin pass every
// check except RoleSchainOwner, which keeps the two kill votes with distinct parties.
type Control struct {
	store store.Store
	log   zerolog.Logger
}

var _ Checker = (*Control)(nil)

func New(s store.Store, log zerolog.Logger) *Control {
	return &Control{
		store: s,
		log:   log.With().Str("component", "access").Logger(),
	}
}

// Bootstrap grants RoleAdmin to admins without a permission check. Used once at startup.
func (c *Control) Bootstrap(ctx context.Context, admins ...common.Address) error {
	return c.store.Update(ctx, func(tx store.Tx) error {
		for _, a := range admins {
			if err := tx.PutRole(RoleAdmin, a); err != nil {
				return err
			}
		}
		return nil
	})
}

// Has reports whether account holds role, directly or through RoleAdmin.
func (c *Control) Has(ctx context.Context, role string, account common.Address) (bool, error) {
	var ok bool
	err := c.store.View(ctx, func(tx store.Tx) error {
		var err error
		ok, err = hasRole(tx, role, account)
		return err
	})
	if err != nil {
		return false, proxyerr.Internal("query role", err)
	}
	return ok, nil
}

func hasRole(tx store.RoleTx, role string, account common.Address) (bool, error) {
	ok, err := tx.HasRole(role, account)
	if err != nil || ok || role == RoleAdmin || role == RoleSchainOwner {
		return ok, err
	}
	return tx.HasRole(RoleAdmin, account)
}

func (c *Control) Require(ctx context.Context, role string, caller common.Address) error {
	ok, err := c.Has(ctx, role, caller)
	if err != nil {
		return err
	}
	if !ok {
		return proxyerr.ErrPermissionDenied.
			Withf("%s does not hold %s", caller.Hex(), role).
			WithContext("role", role)
	}
	return nil
}

// Grant adds account to role; caller must be an admin.
func (c *Control) Grant(ctx context.Context, caller common.Address, role string, account common.Address) error {
	return c.mutate(ctx, caller, func(tx store.Tx) error {
		return tx.PutRole(role, account)
	}, "grant", role, account)
}

// Revoke removes account from role; caller must be an admin.
func (c *Control) Revoke(ctx context.Context, caller common.Address, role string, account common.Address) error {
	return c.mutate(ctx, caller, func(tx store.Tx) error {
		return tx.DeleteRole(role, account)
	}, "revoke", role, account)
}

func (c *Control) mutate(
	ctx context.Context,
	caller common.Address,
	fn func(store.Tx) error,
	op, role string,
	account common.Address,
) error {
	err := c.store.Update(ctx, func(tx store.Tx) error {
		ok, err := tx.HasRole(RoleAdmin, caller)
		if err != nil {
			return proxyerr.Internal("query role", err)
		}
		if !ok {
			return proxyerr.ErrPermissionDenied.Withf("%s is not an admin", caller.Hex())
		}
		return fn(tx)
	})
	if err != nil {
		return err
	}
	c.log.Info().
		Str("op", op).
		Str("role", role).
		Str("account", account.Hex()).
		Str("caller", caller.Hex()).
		Msg("Role membership changed")
	return nil
}

// Members lists holders of role.
func (c *Control) Members(ctx context.Context, role string) ([]common.Address, error) {
	var out []common.Address
	err := c.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.RoleMembers(role)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list %s members: %w", role, err)
	}
	return out, nil
}

// Package registry tracks which contracts may exchange messages with which chains.
package registry

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/compose-network/ima-proxy/x/access"
	"github.com/compose-network/ima-proxy/x/chains"
	"github.com/compose-network/ima-proxy/x/proxyerr"
	"github.com/compose-network/ima-proxy/x/store"
)

// Authorizer is the read side used by the message proxy.
type Authorizer interface {
	IsAuthorized(ctx context.Context, chain chains.Hash, contract common.Address) (bool, error)
}

// Registry stores per-chain and all-chain contract registrations.
type Registry struct {
	store  store.Store
	access access.Checker
	log    zerolog.Logger
}

var _ Authorizer = (*Registry)(nil)

func New(s store.Store, checker access.Checker, log zerolog.Logger) *Registry {
	return &Registry{
		store:  s,
		access: checker,
		log:    log.With().Str("component", "registry").Logger(),
	}
}

// RegisterForChain authorizes contract for chain only.
func (r *Registry) RegisterForChain(ctx context.Context, caller common.Address, chain chains.Hash, contract common.Address) error {
	if chain == chains.All {
		return proxyerr.ErrIncorrectAddress.Withf("chain hash must not be empty")
	}
	return r.register(ctx, caller, chain, contract)
}

// RegisterForAll authorizes contract for every chain.
func (r *Registry) RegisterForAll(ctx context.Context, caller common.Address, contract common.Address) error {
	return r.register(ctx, caller, chains.All, contract)
}

// Remove drops the (chain, contract) entry.
func (r *Registry) Remove(ctx context.Context, caller common.Address, chain chains.Hash, contract common.Address) error {
	if chain == chains.All {
		return proxyerr.ErrIncorrectAddress.Withf("chain hash must not be empty")
	}
	return r.remove(ctx, caller, chain, contract)
}

// RemoveForAll drops the ALL entry of contract.
func (r *Registry) RemoveForAll(ctx context.Context, caller common.Address, contract common.Address) error {
	return r.remove(ctx, caller, chains.All, contract)
}

// IsAuthorized is true when contract is registered for ALL or for chain.
func (r *Registry) IsAuthorized(ctx context.Context, chain chains.Hash, contract common.Address) (bool, error) {
	var ok bool
	err := r.store.View(ctx, func(tx store.Tx) error {
		var err error
		ok, err = IsAuthorizedTx(tx, chain, contract)
		return err
	})
	if err != nil {
		return false, proxyerr.Internal("query registration", err)
	}
	return ok, nil
}

// IsAuthorizedTx evaluates authorization inside an open transaction.
func IsAuthorizedTx(tx store.RegistryTx, chain chains.Hash, contract common.Address) (bool, error) {
	ok, err := tx.IsRegistered(chains.All, contract)
	if err != nil || ok {
		return ok, err
	}
	return tx.IsRegistered(chain, contract)
}

// Contracts lists entries registered under scope (chains.All for the ALL scope).
func (r *Registry) Contracts(ctx context.Context, scope chains.Hash) ([]common.Address, error) {
	var out []common.Address
	err := r.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.Registrations(scope)
		return err
	})
	if err != nil {
		return nil, proxyerr.Internal("list registrations", err)
	}
	return out, nil
}

func (r *Registry) register(ctx context.Context, caller common.Address, scope chains.Hash, contract common.Address) error {
	if contract == (common.Address{}) {
		return proxyerr.ErrIncorrectAddress.Withf("contract address must not be zero")
	}
	if err := r.access.Require(ctx, access.RoleRegistrar, caller); err != nil {
		return err
	}

	err := r.store.Update(ctx, func(tx store.Tx) error {
		ok, err := tx.IsRegistered(scope, contract)
		if err != nil {
			return proxyerr.Internal("query registration", err)
		}
		if ok {
			return proxyerr.ErrAlreadyRegistered.
				WithContext("scope", scope.Hex()).
				WithContext("contract", contract.Hex())
		}
		return tx.PutRegistration(scope, contract)
	})
	if err != nil {
		return err
	}

	r.log.Info().
		Str("scope", scopeString(scope)).
		Str("contract", contract.Hex()).
		Msg("Contract registered")
	return nil
}

func (r *Registry) remove(ctx context.Context, caller common.Address, scope chains.Hash, contract common.Address) error {
	if err := r.access.Require(ctx, access.RoleRegistrar, caller); err != nil {
		return err
	}

	err := r.store.Update(ctx, func(tx store.Tx) error {
		ok, err := tx.IsRegistered(scope, contract)
		if err != nil {
			return proxyerr.Internal("query registration", err)
		}
		if !ok {
			return proxyerr.ErrNotRegistered.
				WithContext("scope", scope.Hex()).
				WithContext("contract", contract.Hex())
		}
		return tx.DeleteRegistration(scope, contract)
	})
	if err != nil {
		return err
	}

	r.log.Info().
		Str("scope", scopeString(scope)).
		Str("contract", contract.Hex()).
		Msg("Contract removed")
	return nil
}

func scopeString(scope chains.Hash) string {
	if scope == chains.All {
		return "all"
	}
	return scope.Hex()
}

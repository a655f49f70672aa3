// Package bridge assembles the message proxy and the components that send and receive
// through it into one node serving a single local chain.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/compose-network/ima-proxy/x/access"
	"github.com/compose-network/ima-proxy/x/bls"
	"github.com/compose-network/ima-proxy/x/chains"
	"github.com/compose-network/ima-proxy/x/community"
	"github.com/compose-network/ima-proxy/x/ledger"
	"github.com/compose-network/ima-proxy/x/linker"
	"github.com/compose-network/ima-proxy/x/proxy"
	"github.com/compose-network/ima-proxy/x/proxyerr"
	"github.com/compose-network/ima-proxy/x/registry"
	"github.com/compose-network/ima-proxy/x/store"
)

// Config describes one node.
type Config struct {
	Chain     string
	Contracts Contracts

	// Admins receive the admin role on first start; the first one performs bootstrap grants.
	Admins      []common.Address
	SchainOwner common.Address
	Relayers    []common.Address

	// Symmetric requires signatures for batches from Mainnet as well.
	Symmetric bool
	// TokenManagers is the number of counterparts named on connect.
	TokenManagers int

	// CommonKeys maps a chain to the aggregate key its validators sign with.
	CommonKeys map[chains.Hash]*bls.PublicKey
	// Quorums maps a chain to its weighted validator set.
	Quorums map[chains.Hash]bls.Quorum

	MinTransactionGas   uint64
	GasPrice            *uint256.Int
	TimeLimitPerMessage time.Duration
}

// Node is a fully wired bridge endpoint.
type Node struct {
	cfg   Config
	local chains.Chain
	log   zerolog.Logger

	Store    store.Store
	Access   *access.Control
	Registry *registry.Registry
	Keys     *bls.KeyStorage
	Proxy    *proxy.Proxy
	Linker   *linker.Linker

	// Mainnet only.
	Pool       *community.Pool
	DepositBox *ledger.DepositBox

	// Schain only.
	Locker       *community.Locker
	TokenManager *ledger.TokenManager
}

// NewNode wires every component on top of s and performs idempotent bootstrap writes.
func NewNode(ctx context.Context, cfg Config, s store.Store, reg prometheus.Registerer, log zerolog.Logger) (*Node, error) {
	if cfg.Chain == "" {
		return nil, errors.New("chain name is required")
	}
	if len(cfg.Admins) == 0 {
		return nil, errors.New("at least one admin is required")
	}
	if s == nil {
		return nil, errors.New("store is required")
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	local := chains.New(cfg.Chain)
	n := &Node{
		cfg:   cfg,
		local: local,
		log:   log.With().Str("component", "node").Str("chain", local.Name).Logger(),
		Store: s,
	}

	n.Access = access.New(s, log)
	n.Registry = registry.New(s, n.Access, log)

	n.Keys = bls.NewKeyStorage()
	for chain, pk := range cfg.CommonKeys {
		n.Keys.SetCommonPublicKey(chain, pk)
	}
	for chain, q := range cfg.Quorums {
		if err := n.Keys.SetQuorum(chain, q); err != nil {
			return nil, fmt.Errorf("quorum of %s: %w", chain.Hex(), err)
		}
	}
	verifier := bls.NewVerifier(n.Keys, log)

	var err error
	n.Proxy, err = proxy.New(local, log,
		proxy.WithStore(s),
		proxy.WithAccess(n.Access),
		proxy.WithAuthenticator(&proxy.DirectionalAuthenticator{
			Local:     local.Hash,
			Verifier:  verifier,
			Access:    n.Access,
			Symmetric: cfg.Symmetric,
		}),
		proxy.WithRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("create proxy: %w", err)
	}

	mainnet := chains.IsMainnet(local.Hash)
	c := cfg.Contracts
	linkerCfg := linker.Config{
		MainnetLinker: c.Linker,
		SchainLinker:  c.TokenManagerLinker,
		TokenManagers: cfg.TokenManagers,
	}
	if mainnet {
		linkerCfg.Address = c.Linker
	} else {
		linkerCfg.Address = c.TokenManagerLinker
	}
	n.Linker = linker.New(linkerCfg, s, n.Access, n.Proxy, reg, log)

	router := n.Proxy.Router()
	if mainnet {
		n.Pool = community.NewPool(community.PoolConfig{
			Local:             local,
			Address:           c.CommunityPool,
			SchainLocker:      c.CommunityLocker,
			MinTransactionGas: cfg.MinTransactionGas,
			GasPrice:          cfg.GasPrice,
		}, s, n.Access, n.Proxy, reg, log)
		n.DepositBox = ledger.NewDepositBox(ledger.DepositBoxConfig{
			Local:        local,
			Address:      c.DepositBoxEth,
			TokenManager: c.TokenManagerEth,
		}, s, n.Proxy, n.Linker, log)
		router.Register(c.DepositBoxEth, n.DepositBox)
	} else {
		n.Locker = community.NewLocker(community.LockerConfig{
			Local:               local,
			CommunityPool:       c.CommunityPool,
			TimeLimitPerMessage: cfg.TimeLimitPerMessage,
		}, s, n.Access, verifier, reg, log)
		n.TokenManager = ledger.NewTokenManager(ledger.TokenManagerConfig{
			Local:      local,
			Address:    c.TokenManagerEth,
			DepositBox: c.DepositBoxEth,
		}, s, n.Proxy, n.Locker, log)
		router.Register(c.TokenManagerLinker, n.Linker)
		router.Register(c.CommunityLocker, n.Locker)
		router.Register(c.TokenManagerEth, n.TokenManager)
	}

	if err := n.bootstrap(ctx); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Node) Local() chains.Chain { return n.local }

func (n *Node) bootstrap(ctx context.Context) error {
	if err := n.Access.Bootstrap(ctx, n.cfg.Admins...); err != nil {
		return fmt.Errorf("bootstrap admins: %w", err)
	}
	root := n.cfg.Admins[0]

	for _, r := range n.cfg.Relayers {
		if err := n.Access.Grant(ctx, root, access.RoleRelayer, r); err != nil {
			return fmt.Errorf("grant relayer: %w", err)
		}
	}
	if n.cfg.SchainOwner != (common.Address{}) {
		if err := n.Access.Grant(ctx, root, access.RoleSchainOwner, n.cfg.SchainOwner); err != nil {
			return fmt.Errorf("grant schain owner: %w", err)
		}
	}

	for _, contract := range n.cfg.Contracts.local(chains.IsMainnet(n.local.Hash)) {
		if contract == (common.Address{}) {
			continue
		}
		err := n.Registry.RegisterForAll(ctx, root, contract)
		if err != nil && !errors.Is(err, proxyerr.ErrAlreadyRegistered) {
			return fmt.Errorf("register %s: %w", contract.Hex(), err)
		}
	}

	if err := n.Proxy.Bootstrap(ctx); err != nil {
		return err
	}

	n.log.Info().
		Int("admins", len(n.cfg.Admins)).
		Int("relayers", len(n.cfg.Relayers)).
		Int("common_keys", len(n.cfg.CommonKeys)).
		Int("quorums", len(n.cfg.Quorums)).
		Msg("Node bootstrapped")
	return nil
}

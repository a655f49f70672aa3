// Package proxy implements the message proxy of one local chain: the outgoing queue,
// the incoming batch processor and the per-chain channel bookkeeping.
package proxy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/compose-network/ima-proxy/x/access"
	"github.com/compose-network/ima-proxy/x/chains"
	"github.com/compose-network/ima-proxy/x/proxyerr"
	"github.com/compose-network/ima-proxy/x/store"
)

// Proxy is the message proxy of a single local chain.
type Proxy struct {
	local   chains.Chain
	store   store.Store
	access  access.Checker
	auth    Authenticator
	router  MessageRouter
	metrics *Metrics
	clock   func() time.Time
	log     zerolog.Logger

	locksMu sync.Mutex
	locks   map[chains.Hash]*sync.Mutex
}

// New creates the proxy of local
func New(local chains.Chain, log zerolog.Logger, opts ...Option) (*Proxy, error) {
	config := &Config{
		Registerer: prometheus.DefaultRegisterer,
		Clock:      time.Now,
	}

	for _, opt := range opts {
		opt(config)
	}

	if config.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if config.Access == nil {
		return nil, fmt.Errorf("access checker is required")
	}
	if config.Authenticator == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	if config.Router == nil {
		config.Router = NewMessageRouter()
	}

	return &Proxy{
		local:   local,
		store:   config.Store,
		access:  config.Access,
		auth:    config.Authenticator,
		router:  config.Router,
		metrics: NewMetrics(config.Registerer, local.Name),
		clock:   config.Clock,
		log:     log.With().Str("component", "proxy").Str("local_chain", local.Name).Logger(),
		locks:   make(map[chains.Hash]*sync.Mutex),
	}, nil
}

func (p *Proxy) Local() chains.Chain   { return p.local }
func (p *Proxy) Router() MessageRouter { return p.router }

func (p *Proxy) pair(remote chains.Hash) chains.Pair {
	return chains.Pair{Local: p.local.Hash, Remote: remote}
}

// LockChain serializes channel mutations for one remote chain. Callers must invoke the
// returned function to release the lock.
func (p *Proxy) LockChain(remote chains.Hash) func() {
	p.locksMu.Lock()
	mu, ok := p.locks[remote]
	if !ok {
		mu = &sync.Mutex{}
		p.locks[remote] = mu
	}
	p.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// Bootstrap opens the Mainnet channel of an schain. It is a no-op on Mainnet and when
// the channel already exists.
func (p *Proxy) Bootstrap(ctx context.Context) error {
	if chains.IsMainnet(p.local.Hash) {
		return nil
	}
	err := p.store.Update(ctx, func(tx store.Tx) error {
		_, ok, err := tx.Channel(p.pair(chains.MainnetHash))
		if err != nil || ok {
			return err
		}
		return tx.PutChannel(p.pair(chains.MainnetHash), store.Channel{})
	})
	if err != nil {
		return proxyerr.Internal("open mainnet channel", err)
	}
	return nil
}

// OpenChannel creates zeroed counters for pair inside tx.
func OpenChannel(tx store.ChannelTx, pair chains.Pair) error {
	_, ok, err := tx.Channel(pair)
	if err != nil {
		return err
	}
	if ok {
		return proxyerr.ErrChainAlreadyConnected.WithContext("chain", pair.Remote.Hex())
	}
	return tx.PutChannel(pair, store.Channel{})
}

// CloseChannel drops counters and queued messages of pair inside tx.
func CloseChannel(tx store.ChannelTx, pair chains.Pair) error {
	_, ok, err := tx.Channel(pair)
	if err != nil {
		return err
	}
	if !ok {
		return proxyerr.ErrChainNotConnected.WithContext("chain", pair.Remote.Hex())
	}
	return tx.DeleteChannel(pair)
}

func (p *Proxy) checkRemote(remote chains.Hash) error {
	if chains.IsMainnet(remote) {
		return proxyerr.ErrReservedChain.Withf("schain name cannot be %s", chains.MainnetName)
	}
	if remote == p.local.Hash || remote == chains.All {
		return proxyerr.ErrReservedChain.Withf("chain %s cannot be connected", remote.Hex())
	}
	return nil
}

// AddConnectedChain opens a channel to remote.
func (p *Proxy) AddConnectedChain(ctx context.Context, caller common.Address, remote chains.Hash) error {
	if err := p.access.Require(ctx, access.RoleChainConnector, caller); err != nil {
		return err
	}
	if err := p.checkRemote(remote); err != nil {
		return err
	}

	unlock := p.LockChain(remote)
	defer unlock()

	if err := p.store.Update(ctx, func(tx store.Tx) error {
		return OpenChannel(tx, p.pair(remote))
	}); err != nil {
		return proxyerr.Wrap("add connected chain", err)
	}
	p.metrics.ConnectedChains.Inc()
	p.log.Info().Str("remote_chain", remote.Hex()).Msg("Chain connected")
	return nil
}

// RemoveConnectedChain closes the channel to remote and drops its queue.
func (p *Proxy) RemoveConnectedChain(ctx context.Context, caller common.Address, remote chains.Hash) error {
	if err := p.access.Require(ctx, access.RoleChainConnector, caller); err != nil {
		return err
	}
	if err := p.checkRemote(remote); err != nil {
		return err
	}

	unlock := p.LockChain(remote)
	defer unlock()

	if err := p.store.Update(ctx, func(tx store.Tx) error {
		return CloseChannel(tx, p.pair(remote))
	}); err != nil {
		return proxyerr.Wrap("remove connected chain", err)
	}
	p.metrics.ConnectedChains.Dec()
	p.log.Info().Str("remote_chain", remote.Hex()).Msg("Chain disconnected")
	return nil
}

// IsConnectedChain reports whether a channel to remote exists.
func (p *Proxy) IsConnectedChain(ctx context.Context, remote chains.Hash) (bool, error) {
	_, ok, err := store.GetChannel(ctx, p.store, p.pair(remote))
	if err != nil {
		return false, proxyerr.Internal("read channel", err)
	}
	return ok, nil
}

// Channel returns the counters of remote or ChainNotConnected.
func (p *Proxy) Channel(ctx context.Context, remote chains.Hash) (store.Channel, error) {
	ch, ok, err := store.GetChannel(ctx, p.store, p.pair(remote))
	if err != nil {
		return store.Channel{}, proxyerr.Internal("read channel", err)
	}
	if !ok {
		return store.Channel{}, proxyerr.ErrChainNotConnected.WithContext("chain", remote.Hex())
	}
	return ch, nil
}

// IncomingCounter is the next counter expected from remote.
func (p *Proxy) IncomingCounter(ctx context.Context, remote chains.Hash) (uint64, error) {
	ch, err := p.Channel(ctx, remote)
	return ch.Incoming, err
}

// IncrementIncomingCounter skips one incoming message. Debugger only.
func (p *Proxy) IncrementIncomingCounter(ctx context.Context, caller common.Address, remote chains.Hash) error {
	if err := p.access.Require(ctx, access.RoleDebugger, caller); err != nil {
		return err
	}
	unlock := p.LockChain(remote)
	defer unlock()

	var next uint64
	err := p.store.Update(ctx, func(tx store.Tx) error {
		ch, ok, err := tx.Channel(p.pair(remote))
		if err != nil {
			return err
		}
		if !ok {
			return proxyerr.ErrChainNotConnected.WithContext("chain", remote.Hex())
		}
		ch.Incoming++
		next = ch.Incoming
		return tx.PutChannel(p.pair(remote), ch)
	})
	if err != nil {
		return proxyerr.Wrap("increment incoming counter", err)
	}
	p.metrics.IncomingCounter.WithLabelValues(remote.Hex()).Set(float64(next))
	p.log.Warn().Str("remote_chain", remote.Hex()).Uint64("incoming", next).Msg("Incoming counter incremented by debugger")
	return nil
}

// SetCountersToZero resets both counters and drops the queue of remote. Debugger only.
func (p *Proxy) SetCountersToZero(ctx context.Context, caller common.Address, remote chains.Hash) error {
	if err := p.access.Require(ctx, access.RoleDebugger, caller); err != nil {
		return err
	}
	unlock := p.LockChain(remote)
	defer unlock()

	err := p.store.Update(ctx, func(tx store.Tx) error {
		_, ok, err := tx.Channel(p.pair(remote))
		if err != nil {
			return err
		}
		if !ok {
			return proxyerr.ErrChainNotConnected.WithContext("chain", remote.Hex())
		}
		if err := tx.DeleteOutgoing(p.pair(remote)); err != nil {
			return err
		}
		return tx.PutChannel(p.pair(remote), store.Channel{})
	})
	if err != nil {
		return proxyerr.Wrap("reset counters", err)
	}
	p.metrics.IncomingCounter.WithLabelValues(remote.Hex()).Set(0)
	p.metrics.OutgoingCounter.WithLabelValues(remote.Hex()).Set(0)
	p.log.Warn().Str("remote_chain", remote.Hex()).Msg("Counters reset by debugger")
	return nil
}

// Receipts lists delivery outcomes of messages received from remote.
func (p *Proxy) Receipts(ctx context.Context, remote chains.Hash, from uint64, limit int) ([]store.Receipt, error) {
	var out []store.Receipt
	err := p.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.Receipts(p.pair(remote), from, limit)
		return err
	})
	if err != nil {
		return nil, proxyerr.Internal("read receipts", err)
	}
	return out, nil
}

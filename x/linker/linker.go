// Package linker manages the lifecycle of connections between the local chain and its
// counterparts, including the two-party kill protocol.
package linker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/compose-network/ima-proxy/metrics"
	"github.com/compose-network/ima-proxy/x/access"
	"github.com/compose-network/ima-proxy/x/chains"
	"github.com/compose-network/ima-proxy/x/messages"
	"github.com/compose-network/ima-proxy/x/proxy"
	"github.com/compose-network/ima-proxy/x/proxyerr"
	"github.com/compose-network/ima-proxy/x/store"
)

const (
	settingInterchain = "linker.interchain_connections"
	settingChains     = "linker.chains"
)

// Channels is the part of the message proxy the linker drives.
type Channels interface {
	Local() chains.Chain
	LockChain(remote chains.Hash) func()
	EnqueueTx(tx store.Tx, destination chains.Hash, msg chains.Message) (uint64, error)
}

// Config describes the local deployment.
type Config struct {
	// Address is the linker's own contract address, used as sender of its messages.
	Address common.Address
	// MainnetLinker is the only sender trusted for interchain flag updates on an schain.
	MainnetLinker common.Address
	// SchainLinker is the destination of interchain flag updates sent from Mainnet.
	SchainLinker common.Address
	// TokenManagers is the number of counterpart contracts every connection must name.
	TokenManagers int
}

// Linker implements connect, disconnect and kill for one local chain.
type Linker struct {
	cfg      Config
	store    store.Store
	access   access.Checker
	channels Channels
	log      zerolog.Logger

	kills       *prometheus.CounterVec
	connections prometheus.Gauge
}

var _ proxy.MessageHandler = (*Linker)(nil)

func New(cfg Config, s store.Store, checker access.Checker, channels Channels, reg prometheus.Registerer, log zerolog.Logger) *Linker {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := metrics.NewComponentRegistryWith(reg, "linker", channels.Local().Name)
	return &Linker{
		cfg:      cfg,
		store:    s,
		access:   checker,
		channels: channels,
		log:      log.With().Str("component", "linker").Logger(),
		kills: r.NewCounterVec(prometheus.CounterOpts{
			Name: "kill_votes_total",
			Help: "Kill votes recorded by party",
		}, []string{"party"}),
		connections: r.NewGauge(prometheus.GaugeOpts{
			Name: "connections",
			Help: "Remote chains connected through the linker",
		}),
	}
}

func (l *Linker) pair(remote chains.Hash) chains.Pair {
	return chains.Pair{Local: l.channels.Local().Hash, Remote: remote}
}

func (l *Linker) isSchainToSchain(remote chains.Hash) bool {
	return !chains.IsMainnet(l.channels.Local().Hash) && !chains.IsMainnet(remote)
}

// Connect opens the channel to remote and records its counterpart contracts.
func (l *Linker) Connect(ctx context.Context, caller common.Address, remote chains.Hash, counterparts []common.Address) error {
	if err := l.access.Require(ctx, access.RoleChainConnector, caller); err != nil {
		return err
	}
	if chains.IsMainnet(remote) || remote == l.channels.Local().Hash || remote == chains.All {
		return proxyerr.ErrReservedChain.WithContext("chain", remote.Hex())
	}
	if len(counterparts) != l.cfg.TokenManagers {
		return proxyerr.ErrIncorrectAddressCount.
			WithContext("expected", l.cfg.TokenManagers).
			WithContext("got", len(counterparts))
	}
	for _, c := range counterparts {
		if c == (common.Address{}) {
			return proxyerr.ErrIncorrectAddress.Withf("counterpart address must not be zero")
		}
	}

	unlock := l.channels.LockChain(remote)
	defer unlock()

	err := l.store.Update(ctx, func(tx store.Tx) error {
		if l.isSchainToSchain(remote) {
			enabled, err := interchainEnabled(tx)
			if err != nil {
				return err
			}
			if !enabled {
				return proxyerr.ErrConnectionNotAllowed.Withf("interchain connection is not allowed")
			}
		}
		link, _, err := tx.Link(l.pair(remote))
		if err != nil {
			return err
		}
		if link.Votes.Killed() {
			return proxyerr.ErrConnectionNotAllowed.Withf("connection to %s is killed", remote.Hex())
		}
		if err := proxy.OpenChannel(tx, l.pair(remote)); err != nil {
			return err
		}
		link.Counterparts = counterparts
		if err := tx.PutLink(l.pair(remote), link); err != nil {
			return err
		}
		return l.updateChains(tx, func(set map[chains.Hash]struct{}) { set[remote] = struct{}{} })
	})
	if err != nil {
		return proxyerr.Wrap("connect", err)
	}

	l.connections.Inc()
	l.log.Info().Str("remote_chain", remote.Hex()).Int("counterparts", len(counterparts)).Msg("Chain connected")
	return nil
}

// Disconnect closes the channel to remote. Kill votes survive.
func (l *Linker) Disconnect(ctx context.Context, caller common.Address, remote chains.Hash) error {
	if err := l.access.Require(ctx, access.RoleChainConnector, caller); err != nil {
		return err
	}

	unlock := l.channels.LockChain(remote)
	defer unlock()

	err := l.store.Update(ctx, func(tx store.Tx) error {
		if err := proxy.CloseChannel(tx, l.pair(remote)); err != nil {
			return err
		}
		link, _, err := tx.Link(l.pair(remote))
		if err != nil {
			return err
		}
		link.Counterparts = nil
		if err := tx.PutLink(l.pair(remote), link); err != nil {
			return err
		}
		return l.updateChains(tx, func(set map[chains.Hash]struct{}) { delete(set, remote) })
	})
	if err != nil {
		return proxyerr.Wrap("disconnect", err)
	}

	l.connections.Dec()
	l.log.Info().Str("remote_chain", remote.Hex()).Msg("Chain disconnected")
	return nil
}

// KillBySchainOwner records the schain owner's vote.
func (l *Linker) KillBySchainOwner(ctx context.Context, caller common.Address, remote chains.Hash) error {
	if err := l.access.Require(ctx, access.RoleSchainOwner, caller); err != nil {
		return err
	}
	return l.vote(ctx, remote, "schain_owner", func(v *chains.KillVotes) *bool { return &v.BySchainOwner })
}

// KillByOperator records the bridge operator's vote.
func (l *Linker) KillByOperator(ctx context.Context, caller common.Address, remote chains.Hash) error {
	if err := l.access.Require(ctx, access.RoleAdmin, caller); err != nil {
		return err
	}
	return l.vote(ctx, remote, "operator", func(v *chains.KillVotes) *bool { return &v.ByOperator })
}

func (l *Linker) vote(ctx context.Context, remote chains.Hash, party string, flag func(*chains.KillVotes) *bool) error {
	unlock := l.channels.LockChain(remote)
	defer unlock()

	var state chains.ConnectionState
	err := l.store.Update(ctx, func(tx store.Tx) error {
		_, connected, err := tx.Channel(l.pair(remote))
		if err != nil {
			return err
		}
		link, known, err := tx.Link(l.pair(remote))
		if err != nil {
			return err
		}
		if !connected && !known {
			return proxyerr.ErrChainNotConnected.WithContext("chain", remote.Hex())
		}
		if link.Votes.Killed() {
			return proxyerr.ErrAlreadyKilled.Withf("connection to %s is killed", remote.Hex())
		}
		f := flag(&link.Votes)
		if *f {
			return proxyerr.ErrAlreadyKilled.Withf("already killed by %s", party)
		}
		*f = true
		state = chains.DeriveState(connected, link.Votes)
		return tx.PutLink(l.pair(remote), link)
	})
	if err != nil {
		return proxyerr.Wrap("kill", err)
	}

	l.kills.WithLabelValues(party).Inc()
	l.log.Warn().Str("remote_chain", remote.Hex()).Str("party", party).Str("state", state.String()).Msg("Kill vote recorded")
	return nil
}

// State derives the connection state of remote.
func (l *Linker) State(ctx context.Context, remote chains.Hash) (chains.ConnectionState, error) {
	var state chains.ConnectionState
	err := l.store.View(ctx, func(tx store.Tx) error {
		_, connected, err := tx.Channel(l.pair(remote))
		if err != nil {
			return err
		}
		link, _, err := tx.Link(l.pair(remote))
		if err != nil {
			return err
		}
		state = chains.DeriveState(connected, link.Votes)
		return nil
	})
	if err != nil {
		return chains.NotConnected, proxyerr.Internal("read link", err)
	}
	return state, nil
}

// IsConnected is true while traffic is allowed, including after a single kill vote.
func (l *Linker) IsConnected(ctx context.Context, remote chains.Hash) (bool, error) {
	state, err := l.State(ctx, remote)
	if err != nil {
		return false, err
	}
	return state.AllowsTraffic(), nil
}

// Counterparts returns the contracts recorded for remote at connect time.
func (l *Linker) Counterparts(ctx context.Context, remote chains.Hash) ([]common.Address, error) {
	var out []common.Address
	err := l.store.View(ctx, func(tx store.Tx) error {
		link, _, err := tx.Link(l.pair(remote))
		out = link.Counterparts
		return err
	})
	if err != nil {
		return nil, proxyerr.Internal("read link", err)
	}
	return out, nil
}

// IsCounterpart reports whether contract was named for remote at connect time.
func (l *Linker) IsCounterpart(ctx context.Context, remote chains.Hash, contract common.Address) (bool, error) {
	var ok bool
	err := l.store.View(ctx, func(tx store.Tx) error {
		var err error
		ok, err = l.IsCounterpartTx(tx, remote, contract)
		return err
	})
	if err != nil {
		return false, proxyerr.Internal("read link", err)
	}
	return ok, nil
}

// IsCounterpartTx is IsCounterpart inside an open transaction.
func (l *Linker) IsCounterpartTx(tx store.LinkTx, remote chains.Hash, contract common.Address) (bool, error) {
	link, _, err := tx.Link(l.pair(remote))
	if err != nil {
		return false, err
	}
	return slices.Contains(link.Counterparts, contract), nil
}

// ConnectedChains lists chains connected through the linker.
func (l *Linker) ConnectedChains(ctx context.Context) ([]chains.Hash, error) {
	var out []chains.Hash
	err := l.store.View(ctx, func(tx store.Tx) error {
		set, err := loadChains(tx)
		if err != nil {
			return err
		}
		out = sortedChains(set)
		return nil
	})
	if err != nil {
		return nil, proxyerr.Internal("read linked chains", err)
	}
	return out, nil
}

// InterchainConnections reports the global schain-to-schain flag.
func (l *Linker) InterchainConnections(ctx context.Context) (bool, error) {
	var enabled bool
	err := l.store.View(ctx, func(tx store.Tx) error {
		var err error
		enabled, err = interchainEnabled(tx)
		return err
	})
	if err != nil {
		return false, proxyerr.Internal("read interchain flag", err)
	}
	return enabled, nil
}

// SetInterchainConnections flips the flag on Mainnet and broadcasts it to every linked schain.
func (l *Linker) SetInterchainConnections(ctx context.Context, caller common.Address, enabled bool) error {
	if err := l.access.Require(ctx, access.RoleAdmin, caller); err != nil {
		return err
	}
	if !chains.IsMainnet(l.channels.Local().Hash) {
		return proxyerr.ErrSourceNotMainnet.Withf("interchain connections are governed from %s", chains.MainnetName)
	}
	data, err := messages.EncodeInterchainConnection(messages.InterchainConnection{Enabled: enabled})
	if err != nil {
		return proxyerr.Internal("encode interchain message", err)
	}

	var targets []chains.Hash
	err = l.store.Update(ctx, func(tx store.Tx) error {
		current, err := interchainEnabled(tx)
		if err != nil {
			return err
		}
		if current == enabled {
			return proxyerr.ErrNoStateChange.Withf("interchain connections already %t", enabled)
		}
		if err := tx.PutSetting(settingInterchain, strconv.FormatBool(enabled)); err != nil {
			return err
		}
		set, err := loadChains(tx)
		if err != nil {
			return err
		}
		targets = sortedChains(set)
		for _, remote := range targets {
			link, _, err := tx.Link(l.pair(remote))
			if err != nil {
				return err
			}
			if link.Votes.Killed() {
				continue
			}
			msg := chains.Message{Sender: l.cfg.Address, DestinationContract: l.cfg.SchainLinker, Data: data}
			if _, err := l.channels.EnqueueTx(tx, remote, msg); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return proxyerr.Wrap("set interchain connections", err)
	}
	l.log.Info().Bool("enabled", enabled).Int("chains", len(targets)).Msg("Interchain connections changed")
	return nil
}

// HandleMessage applies the interchain flag relayed from the mainnet linker.
func (l *Linker) HandleMessage(_ context.Context, tx store.Tx, source chains.Hash, sender common.Address, data []byte) error {
	if !chains.IsMainnet(source) {
		return proxyerr.ErrSourceNotMainnet
	}
	if sender != l.cfg.MainnetLinker {
		return proxyerr.ErrPermissionDenied.Withf("sender %s is not the mainnet linker", sender.Hex())
	}
	msg, err := messages.DecodeInterchainConnection(data)
	if err != nil {
		return err
	}
	if err := tx.PutSetting(settingInterchain, strconv.FormatBool(msg.Enabled)); err != nil {
		return proxyerr.Internal("store interchain flag", err)
	}
	l.log.Info().Bool("enabled", msg.Enabled).Msg("Interchain connections updated from mainnet")
	return nil
}

func interchainEnabled(tx store.SettingTx) (bool, error) {
	v, ok, err := tx.Setting(settingInterchain)
	if err != nil || !ok {
		return false, err
	}
	return strconv.ParseBool(v)
}

func loadChains(tx store.SettingTx) (map[chains.Hash]struct{}, error) {
	set := make(map[chains.Hash]struct{})
	v, ok, err := tx.Setting(settingChains)
	if err != nil || !ok {
		return set, err
	}
	var list []chains.Hash
	if err := json.Unmarshal([]byte(v), &list); err != nil {
		return nil, fmt.Errorf("decode linked chains: %w", err)
	}
	for _, h := range list {
		set[h] = struct{}{}
	}
	return set, nil
}

func (l *Linker) updateChains(tx store.SettingTx, fn func(map[chains.Hash]struct{})) error {
	set, err := loadChains(tx)
	if err != nil {
		return err
	}
	fn(set)
	raw, err := json.Marshal(sortedChains(set))
	if err != nil {
		return err
	}
	return tx.PutSetting(settingChains, string(raw))
}

func sortedChains(set map[chains.Hash]struct{}) []chains.Hash {
	out := make([]chains.Hash, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	slices.SortFunc(out, func(a, b chains.Hash) int { return bytes.Compare(a[:], b[:]) })
	return out
}

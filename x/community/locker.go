// Package community implements the gas ledger shared by the message proxies: the
// CommunityLocker on an schain and the CommunityPool on Mainnet.
package community

import (
	"context"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/compose-network/ima-proxy/x/access"
	"github.com/compose-network/ima-proxy/x/chains"
	"github.com/compose-network/ima-proxy/x/messages"
	"github.com/compose-network/ima-proxy/x/proxy"
	"github.com/compose-network/ima-proxy/x/proxyerr"
	"github.com/compose-network/ima-proxy/x/store"
)

const (
	settingGasPrice          = "community.gas_price"
	settingGasPriceTimestamp = "community.gas_price_timestamp"
	settingTimeLimit         = "community.time_limit_per_message"
)

// SignatureVerifier checks a signature produced by a chain's validators.
type SignatureVerifier interface {
	Verify(source chains.Hash, digest, signature []byte) error
}

// LockerConfig configures the schain side.
type LockerConfig struct {
	Local chains.Chain
	// CommunityPool is the only Mainnet sender allowed to change user statuses.
	CommunityPool common.Address
	// TimeLimitPerMessage applies until a constant setter overrides it.
	TimeLimitPerMessage time.Duration
}

// Locker tracks which users may send to Mainnet and the last mainnet gas price.
type Locker struct {
	cfg      LockerConfig
	store    store.Store
	access   access.Checker
	verifier SignatureVerifier
	metrics  *Metrics
	clock    func() time.Time
	log      zerolog.Logger
}

var _ proxy.MessageHandler = (*Locker)(nil)

func NewLocker(
	cfg LockerConfig,
	s store.Store,
	checker access.Checker,
	verifier SignatureVerifier,
	reg prometheus.Registerer,
	log zerolog.Logger,
) *Locker {
	return &Locker{
		cfg:      cfg,
		store:    s,
		access:   checker,
		verifier: verifier,
		metrics:  NewMetrics(reg, cfg.Local.Name),
		clock:    time.Now,
		log:      log.With().Str("component", "community-locker").Logger(),
	}
}

// HandleMessage applies an activate or lock instruction from the community pool.
func (l *Locker) HandleMessage(_ context.Context, tx store.Tx, source chains.Hash, sender common.Address, data []byte) error {
	if !chains.IsMainnet(source) {
		return proxyerr.ErrSourceNotMainnet
	}
	if sender != l.cfg.CommunityPool {
		return proxyerr.ErrSenderNotCommunityPool.WithContext("sender", sender.Hex())
	}
	msg, err := messages.DecodeUserStatus(data)
	if err != nil {
		return err
	}

	u, err := tx.User(l.cfg.Local.Hash, msg.Account)
	if err != nil {
		return proxyerr.Internal("read user", err)
	}
	if u.Active == msg.Active {
		return proxyerr.ErrNoStateChange.WithContext("user", msg.Account.Hex())
	}
	u.Active = msg.Active
	if err := tx.PutUser(l.cfg.Local.Hash, msg.Account, u); err != nil {
		return proxyerr.Internal("update user status", err)
	}

	l.metrics.StatusChanges.WithLabelValues(strconv.FormatBool(msg.Active)).Inc()
	l.log.Info().Str("user", msg.Account.Hex()).Bool("active", msg.Active).Msg("User status changed")
	return nil
}

// IsActive reports whether user may send messages to Mainnet.
func (l *Locker) IsActive(ctx context.Context, user common.Address) (bool, error) {
	var u store.User
	err := l.store.View(ctx, func(tx store.Tx) error {
		var err error
		u, err = tx.User(l.cfg.Local.Hash, user)
		return err
	})
	if err != nil {
		return false, proxyerr.Internal("read user", err)
	}
	return u.Active, nil
}

// SetGasPrice stores a mainnet gas price signed by the local validators. Timestamps are
// unix seconds and must strictly increase without passing the local clock.
func (l *Locker) SetGasPrice(ctx context.Context, price *uint256.Int, timestamp uint64, signature []byte) error {
	if price == nil {
		return proxyerr.ErrInvalidAmount
	}
	now := uint64(l.clock().Unix())
	if timestamp > now {
		return proxyerr.ErrTimestampInFuture.WithContext("timestamp", timestamp).WithContext("now", now)
	}
	digest, err := messages.GasPriceDigest(price, timestamp)
	if err != nil {
		return proxyerr.Internal("gas price digest", err)
	}

	err = l.store.Update(ctx, func(tx store.Tx) error {
		last, err := uintSetting(tx, settingGasPriceTimestamp)
		if err != nil {
			return err
		}
		if timestamp <= last {
			return proxyerr.ErrTimestampAlreadyUpdated.WithContext("last", last).WithContext("timestamp", timestamp)
		}
		if err := l.verifier.Verify(l.cfg.Local.Hash, digest[:], signature); err != nil {
			return err
		}
		if err := tx.PutSetting(settingGasPrice, price.Dec()); err != nil {
			return err
		}
		return tx.PutSetting(settingGasPriceTimestamp, strconv.FormatUint(timestamp, 10))
	})
	if err != nil {
		return proxyerr.Wrap("set gas price", err)
	}

	wei, _ := new(big.Float).SetInt(price.ToBig()).Float64()
	l.metrics.GasPrice.Set(wei)
	l.log.Info().Str("price", price.Dec()).Uint64("timestamp", timestamp).Msg("Gas price updated")
	return nil
}

// GasPrice returns the last accepted price and its timestamp.
func (l *Locker) GasPrice(ctx context.Context) (*uint256.Int, uint64, error) {
	price := new(uint256.Int)
	var ts uint64
	err := l.store.View(ctx, func(tx store.Tx) error {
		v, ok, err := tx.Setting(settingGasPrice)
		if err != nil {
			return err
		}
		if ok {
			if price, err = uint256.FromDecimal(v); err != nil {
				return err
			}
		}
		ts, err = uintSetting(tx, settingGasPriceTimestamp)
		return err
	})
	if err != nil {
		return nil, 0, proxyerr.Internal("read gas price", err)
	}
	return price, ts, nil
}

// SetTimeLimitPerMessage changes the minimum spacing between exits of one user.
func (l *Locker) SetTimeLimitPerMessage(ctx context.Context, caller common.Address, limit time.Duration) error {
	if err := l.access.Require(ctx, access.RoleConstantSetter, caller); err != nil {
		return err
	}
	if limit < 0 {
		return proxyerr.ErrInvalidAmount.Withf("time limit must not be negative")
	}
	err := l.store.Update(ctx, func(tx store.Tx) error {
		return tx.PutSetting(settingTimeLimit, limit.String())
	})
	if err != nil {
		return proxyerr.Internal("store time limit", err)
	}
	l.log.Info().Dur("limit", limit).Msg("Time limit per message changed")
	return nil
}

// TimeLimitPerMessage returns the effective limit.
func (l *Locker) TimeLimitPerMessage(ctx context.Context) (time.Duration, error) {
	var limit time.Duration
	err := l.store.View(ctx, func(tx store.Tx) error {
		var err error
		limit, err = l.timeLimit(tx)
		return err
	})
	if err != nil {
		return 0, proxyerr.Internal("read time limit", err)
	}
	return limit, nil
}

func (l *Locker) timeLimit(tx store.SettingTx) (time.Duration, error) {
	v, ok, err := tx.Setting(settingTimeLimit)
	if err != nil || !ok {
		return l.cfg.TimeLimitPerMessage, err
	}
	return time.ParseDuration(v)
}

// CheckAllowedToSendToMainnet records an exit of user if the user is active and
// outside the per-message time limit.
func (l *Locker) CheckAllowedToSendToMainnet(ctx context.Context, user common.Address) error {
	err := l.store.Update(ctx, func(tx store.Tx) error {
		return l.CheckAllowedToSendToMainnetTx(tx, user)
	})
	return proxyerr.Wrap("check allowed to send", err)
}

// CheckAllowedToSendToMainnetTx is CheckAllowedToSendToMainnet inside an open transaction.
func (l *Locker) CheckAllowedToSendToMainnetTx(tx store.Tx, user common.Address) error {
	u, err := tx.User(l.cfg.Local.Hash, user)
	if err != nil {
		return err
	}
	if !u.Active {
		return proxyerr.ErrUserNotActive.WithContext("user", user.Hex())
	}
	limit, err := l.timeLimit(tx)
	if err != nil {
		return err
	}
	now := l.clock()
	if !u.LastMessage.IsZero() && now.Sub(u.LastMessage) < limit {
		l.metrics.LimitedSenders.Inc()
		return proxyerr.ErrTrafficLimitExceeded.
			WithContext("user", user.Hex()).
			WithContext("retry_after", u.LastMessage.Add(limit).Sub(now).String())
	}
	u.LastMessage = now.UTC()
	return tx.PutUser(l.cfg.Local.Hash, user, u)
}

func uintSetting(tx store.SettingTx, key string) (uint64, error) {
	v, ok, err := tx.Setting(key)
	if err != nil || !ok {
		return 0, err
	}
	return strconv.ParseUint(v, 10, 64)
}

package community

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/compose-network/ima-proxy/x/access"
	"github.com/compose-network/ima-proxy/x/chains"
	"github.com/compose-network/ima-proxy/x/messages"
	"github.com/compose-network/ima-proxy/x/proxyerr"
	"github.com/compose-network/ima-proxy/x/store"
)

const (
	assetWallet         = "community_wallet"
	settingPoolGasPrice = "community.pool.gas_price"
	settingMinTxGas     = "community.pool.min_transaction_gas"
)

// Enqueuer appends outgoing messages inside a caller's transaction.
type Enqueuer interface {
	EnqueueTx(tx store.Tx, destination chains.Hash, msg chains.Message) (uint64, error)
}

// PoolConfig configures the Mainnet side.
type PoolConfig struct {
	Local chains.Chain
	// Address is the pool's own contract address, the sender of status messages.
	Address common.Address
	// SchainLocker is the community locker address on every schain.
	SchainLocker common.Address
	// MinTransactionGas and GasPrice seed the activation threshold.
	MinTransactionGas uint64
	GasPrice          *uint256.Int
}

// Pool holds prepaid user wallets per schain and activates users whose wallet covers
// one transaction.
type Pool struct {
	cfg     PoolConfig
	store   store.Store
	access  access.Checker
	queue   Enqueuer
	metrics *Metrics
	log     zerolog.Logger
}

func NewPool(cfg PoolConfig, s store.Store, checker access.Checker, queue Enqueuer, reg prometheus.Registerer, log zerolog.Logger) *Pool {
	if cfg.GasPrice == nil {
		cfg.GasPrice = new(uint256.Int)
	}
	return &Pool{
		cfg:     cfg,
		store:   s,
		access:  checker,
		queue:   queue,
		metrics: NewMetrics(reg, cfg.Local.Name),
		log:     log.With().Str("component", "community-pool").Logger(),
	}
}

func walletKey(chain chains.Hash, user common.Address) store.BalanceKey {
	return store.BalanceKey{Scope: chain, Account: user, Asset: assetWallet}
}

// threshold is minTransactionGas * gasPrice.
func (p *Pool) threshold(tx store.SettingTx) (*uint256.Int, error) {
	gas := p.cfg.MinTransactionGas
	if v, err := uintSetting(tx, settingMinTxGas); err != nil {
		return nil, err
	} else if v != 0 {
		gas = v
	}
	price := p.cfg.GasPrice
	if v, ok, err := tx.Setting(settingPoolGasPrice); err != nil {
		return nil, err
	} else if ok {
		if price, err = uint256.FromDecimal(v); err != nil {
			return nil, err
		}
	}
	out, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(gas), price)
	if overflow {
		return nil, proxyerr.ErrInvalidAmount.Withf("activation threshold overflows")
	}
	return out, nil
}

// RechargeUserWallet credits amount to the wallet of user for chain and activates the
// user on the schain if needed.
func (p *Pool) RechargeUserWallet(ctx context.Context, chain chains.Hash, user common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return proxyerr.ErrInvalidAmount
	}

	var activated bool
	err := p.store.Update(ctx, func(tx store.Tx) error {
		threshold, err := p.threshold(tx)
		if err != nil {
			return err
		}
		balance, err := tx.Balance(walletKey(chain, user))
		if err != nil {
			return err
		}
		next, overflow := new(uint256.Int).AddOverflow(balance, amount)
		if overflow {
			return proxyerr.ErrInvalidAmount.Withf("wallet balance overflows")
		}
		if next.Lt(threshold) {
			return proxyerr.ErrNotEnoughMoney.
				WithContext("threshold", threshold.Dec()).
				WithContext("balance", next.Dec())
		}
		if err := tx.PutBalance(walletKey(chain, user), next); err != nil {
			return err
		}

		u, err := tx.User(chain, user)
		if err != nil {
			return err
		}
		if u.Active {
			return nil
		}
		u.Active, activated = true, true
		if err := tx.PutUser(chain, user, u); err != nil {
			return err
		}
		return p.sendStatus(tx, chain, user, true)
	})
	if err != nil {
		return proxyerr.Wrap("recharge wallet", err)
	}

	p.metrics.WalletOps.WithLabelValues("recharge").Inc()
	if activated {
		p.metrics.StatusChanges.WithLabelValues("true").Inc()
	}
	p.log.Info().
		Str("chain", chain.Hex()).
		Str("user", user.Hex()).
		Str("amount", amount.Dec()).
		Bool("activated", activated).
		Msg("Wallet recharged")
	return nil
}

// WithdrawFunds debits amount and locks the user once the wallet no longer covers a transaction.
func (p *Pool) WithdrawFunds(ctx context.Context, chain chains.Hash, user common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return proxyerr.ErrInvalidAmount
	}

	var locked bool
	err := p.store.Update(ctx, func(tx store.Tx) error {
		balance, err := tx.Balance(walletKey(chain, user))
		if err != nil {
			return err
		}
		if balance.Lt(amount) {
			return proxyerr.ErrBalanceTooLow.WithContext("balance", balance.Dec())
		}
		next := new(uint256.Int).Sub(balance, amount)
		if err := tx.PutBalance(walletKey(chain, user), next); err != nil {
			return err
		}

		threshold, err := p.threshold(tx)
		if err != nil {
			return err
		}
		u, err := tx.User(chain, user)
		if err != nil {
			return err
		}
		if !u.Active || !next.Lt(threshold) {
			return nil
		}
		u.Active, locked = false, true
		if err := tx.PutUser(chain, user, u); err != nil {
			return err
		}
		return p.sendStatus(tx, chain, user, false)
	})
	if err != nil {
		return proxyerr.Wrap("withdraw funds", err)
	}

	p.metrics.WalletOps.WithLabelValues("withdraw").Inc()
	if locked {
		p.metrics.StatusChanges.WithLabelValues("false").Inc()
	}
	p.log.Info().
		Str("chain", chain.Hex()).
		Str("user", user.Hex()).
		Str("amount", amount.Dec()).
		Bool("locked", locked).
		Msg("Funds withdrawn")
	return nil
}

func (p *Pool) sendStatus(tx store.Tx, chain chains.Hash, user common.Address, active bool) error {
	data, err := messages.EncodeUserStatus(messages.UserStatus{Account: user, Active: active})
	if err != nil {
		return err
	}
	_, err = p.queue.EnqueueTx(tx, chain, chains.Message{
		Sender:              p.cfg.Address,
		DestinationContract: p.cfg.SchainLocker,
		Data:                data,
	})
	return err
}

// Balance returns the wallet of user for chain.
func (p *Pool) Balance(ctx context.Context, chain chains.Hash, user common.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := p.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.Balance(walletKey(chain, user))
		return err
	})
	if err != nil {
		return nil, proxyerr.Internal("read wallet", err)
	}
	return out, nil
}

// IsActive mirrors the status last sent to the schain locker.
func (p *Pool) IsActive(ctx context.Context, chain chains.Hash, user common.Address) (bool, error) {
	var u store.User
	err := p.store.View(ctx, func(tx store.Tx) error {
		var err error
		u, err = tx.User(chain, user)
		return err
	})
	if err != nil {
		return false, proxyerr.Internal("read user", err)
	}
	return u.Active, nil
}

// SetGasPrice overrides the mainnet gas price used for the activation threshold.
func (p *Pool) SetGasPrice(ctx context.Context, caller common.Address, price *uint256.Int) error {
	if price == nil {
		return proxyerr.ErrInvalidAmount
	}
	return p.setConstant(ctx, caller, settingPoolGasPrice, price.Dec())
}

// SetMinTransactionGas overrides the gas amount a wallet must cover.
func (p *Pool) SetMinTransactionGas(ctx context.Context, caller common.Address, gas uint64) error {
	return p.setConstant(ctx, caller, settingMinTxGas, uint256.NewInt(gas).Dec())
}

func (p *Pool) setConstant(ctx context.Context, caller common.Address, key, value string) error {
	if err := p.access.Require(ctx, access.RoleConstantSetter, caller); err != nil {
		return err
	}
	if err := p.store.Update(ctx, func(tx store.Tx) error {
		return tx.PutSetting(key, value)
	}); err != nil {
		return proxyerr.Internal("store constant", err)
	}
	p.log.Info().Str("key", key).Str("value", value).Msg("Constant changed")
	return nil
}

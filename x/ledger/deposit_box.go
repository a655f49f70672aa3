package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/compose-network/ima-proxy/x/chains"
	"github.com/compose-network/ima-proxy/x/messages"
	"github.com/compose-network/ima-proxy/x/proxy"
	"github.com/compose-network/ima-proxy/x/proxyerr"
	"github.com/compose-network/ima-proxy/x/store"
)

// CounterpartChecker tells whether a contract was linked for a remote chain.
type CounterpartChecker interface {
	IsCounterpartTx(tx store.LinkTx, remote chains.Hash, contract common.Address) (bool, error)
}

// DepositBoxConfig configures the Mainnet ETH adapter.
type DepositBoxConfig struct {
	Local   chains.Chain
	Address common.Address
	// TokenManager is the ETH token manager address on every schain.
	TokenManager common.Address
}

// DepositBox locks ETH sent to schains and releases it when schains send it back.
type DepositBox struct {
	cfg          DepositBoxConfig
	store        store.Store
	queue        Enqueuer
	counterparts CounterpartChecker
	log          zerolog.Logger
}

var _ proxy.MessageHandler = (*DepositBox)(nil)

func NewDepositBox(cfg DepositBoxConfig, s store.Store, queue Enqueuer, counterparts CounterpartChecker, log zerolog.Logger) *DepositBox {
	return &DepositBox{
		cfg:          cfg,
		store:        s,
		queue:        queue,
		counterparts: counterparts,
		log:          log.With().Str("component", "deposit-box-eth").Logger(),
	}
}

func (d *DepositBox) lockedKey(schain chains.Hash) store.BalanceKey {
	return store.BalanceKey{Scope: schain, Account: d.cfg.Address, Asset: assetEthLocked}
}

func (d *DepositBox) approvedKey(user common.Address) store.BalanceKey {
	return store.BalanceKey{Scope: d.cfg.Local.Hash, Account: user, Asset: assetEthApproved}
}

// Deposit locks amount for schain and queues a transfer to receiver there.
func (d *DepositBox) Deposit(ctx context.Context, schain chains.Hash, receiver common.Address, amount *uint256.Int) (uint64, error) {
	if err := validAmount(amount); err != nil {
		return 0, err
	}
	if zero(receiver) {
		return 0, proxyerr.ErrIncorrectAddress.Withf("receiver must not be zero")
	}
	data, err := messages.EncodeTransferEth(messages.TransferEth{Receiver: receiver, Amount: amount})
	if err != nil {
		return 0, proxyerr.Internal("encode transfer", err)
	}

	var counter uint64
	err = d.store.Update(ctx, func(tx store.Tx) error {
		if err := credit(tx, d.lockedKey(schain), amount); err != nil {
			return err
		}
		counter, err = d.queue.EnqueueTx(tx, schain, chains.Message{
			Sender:              d.cfg.Address,
			DestinationContract: d.cfg.TokenManager,
			Data:                data,
		})
		return err
	})
	if err != nil {
		return 0, proxyerr.Wrap("deposit", err)
	}
	d.log.Info().Str("schain", schain.Hex()).Str("receiver", receiver.Hex()).Str("amount", amount.Dec()).Uint64("counter", counter).Msg("ETH deposited")
	return counter, nil
}

// HandleMessage releases ETH returning from an schain into the receiver's approved balance.
func (d *DepositBox) HandleMessage(_ context.Context, tx store.Tx, source chains.Hash, sender common.Address, data []byte) error {
	if chains.IsMainnet(source) {
		return proxyerr.ErrUnexpectedMessage.Withf("deposit box only accepts schain messages")
	}
	if sender != d.cfg.TokenManager {
		ok, err := d.counterparts.IsCounterpartTx(tx, source, sender)
		if err != nil {
			return proxyerr.Internal("read link", err)
		}
		if !ok {
			return proxyerr.ErrPermissionDenied.Withf("sender %s is not a token manager of the chain", sender.Hex())
		}
	}
	msg, err := messages.DecodeTransferEth(data)
	if err != nil {
		return err
	}

	if err := debit(tx, d.lockedKey(source), msg.Amount); err != nil {
		return proxyerr.Wrap("release eth", err)
	}
	if err := credit(tx, d.approvedKey(msg.Receiver), msg.Amount); err != nil {
		return proxyerr.Wrap("release eth", err)
	}
	d.log.Info().Str("schain", source.Hex()).Str("receiver", msg.Receiver.Hex()).Str("amount", msg.Amount.Dec()).Msg("ETH approved for withdrawal")
	return nil
}

// GetMyEth pays out the approved balance of user and returns the amount.
func (d *DepositBox) GetMyEth(ctx context.Context, user common.Address) (*uint256.Int, error) {
	var paid *uint256.Int
	err := d.store.Update(ctx, func(tx store.Tx) error {
		var err error
		if paid, err = tx.Balance(d.approvedKey(user)); err != nil {
			return err
		}
		if paid.IsZero() {
			return proxyerr.ErrBalanceTooLow.Withf("user has insufficient ETH")
		}
		return tx.PutBalance(d.approvedKey(user), new(uint256.Int))
	})
	if err != nil {
		return nil, proxyerr.Wrap("get my eth", err)
	}
	d.log.Info().Str("user", user.Hex()).Str("amount", paid.Dec()).Msg("ETH withdrawn")
	return paid, nil
}

func (d *DepositBox) Locked(ctx context.Context, schain chains.Hash) (*uint256.Int, error) {
	return readBalance(ctx, d.store, d.lockedKey(schain))
}

func (d *DepositBox) Approved(ctx context.Context, user common.Address) (*uint256.Int, error) {
	return readBalance(ctx, d.store, d.approvedKey(user))
}

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

// ExitGate is consulted before a user sends value to Mainnet.
type ExitGate interface {
	CheckAllowedToSendToMainnetTx(tx store.Tx, user common.Address) error
}

// TokenManagerConfig configures the schain ETH adapter.
type TokenManagerConfig struct {
	Local   chains.Chain
	Address common.Address
	// DepositBox is the ETH deposit box address on Mainnet.
	DepositBox common.Address
}

// TokenManager mints ETH arriving from Mainnet and burns ETH leaving for it.
type TokenManager struct {
	cfg   TokenManagerConfig
	store store.Store
	queue Enqueuer
	gate  ExitGate
	log   zerolog.Logger
}

var _ proxy.MessageHandler = (*TokenManager)(nil)

func NewTokenManager(cfg TokenManagerConfig, s store.Store, queue Enqueuer, gate ExitGate, log zerolog.Logger) *TokenManager {
	return &TokenManager{
		cfg:   cfg,
		store: s,
		queue: queue,
		gate:  gate,
		log:   log.With().Str("component", "token-manager-eth").Logger(),
	}
}

func (m *TokenManager) balanceKey(user common.Address) store.BalanceKey {
	return store.BalanceKey{Scope: m.cfg.Local.Hash, Account: user, Asset: assetEth}
}

// HandleMessage mints ETH deposited on Mainnet.
func (m *TokenManager) HandleMessage(_ context.Context, tx store.Tx, source chains.Hash, sender common.Address, data []byte) error {
	if !chains.IsMainnet(source) {
		return proxyerr.ErrSourceNotMainnet
	}
	if sender != m.cfg.DepositBox {
		return proxyerr.ErrPermissionDenied.Withf("sender %s is not the deposit box", sender.Hex())
	}
	msg, err := messages.DecodeTransferEth(data)
	if err != nil {
		return err
	}
	if err := credit(tx, m.balanceKey(msg.Receiver), msg.Amount); err != nil {
		return proxyerr.Wrap("mint eth", err)
	}
	m.log.Info().Str("receiver", msg.Receiver.Hex()).Str("amount", msg.Amount.Dec()).Msg("ETH minted")
	return nil
}

// ExitToMain burns amount from user and queues its release on Mainnet.
func (m *TokenManager) ExitToMain(ctx context.Context, user common.Address, amount *uint256.Int) (uint64, error) {
	if err := validAmount(amount); err != nil {
		return 0, err
	}
	data, err := messages.EncodeTransferEth(messages.TransferEth{Receiver: user, Amount: amount})
	if err != nil {
		return 0, proxyerr.Internal("encode transfer", err)
	}

	var counter uint64
	err = m.store.Update(ctx, func(tx store.Tx) error {
		if err := m.gate.CheckAllowedToSendToMainnetTx(tx, user); err != nil {
			return err
		}
		if err := debit(tx, m.balanceKey(user), amount); err != nil {
			return err
		}
		counter, err = m.queue.EnqueueTx(tx, chains.MainnetHash, chains.Message{
			Sender:              m.cfg.Address,
			DestinationContract: m.cfg.DepositBox,
			Data:                data,
		})
		return err
	})
	if err != nil {
		return 0, proxyerr.Wrap("exit to main", err)
	}
	m.log.Info().Str("user", user.Hex()).Str("amount", amount.Dec()).Uint64("counter", counter).Msg("ETH exit queued")
	return counter, nil
}

func (m *TokenManager) Balance(ctx context.Context, user common.Address) (*uint256.Int, error) {
	return readBalance(ctx, m.store, m.balanceKey(user))
}

// Package ledger holds the ETH adapters whose balances move when messages are delivered:
// the deposit box on Mainnet and the token manager on an schain.
package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/compose-network/ima-proxy/x/chains"
	"github.com/compose-network/ima-proxy/x/proxyerr"
	"github.com/compose-network/ima-proxy/x/store"
)

const (
	assetEth         = "eth"
	assetEthLocked   = "eth_locked"
	assetEthApproved = "eth_approved"
)

// Enqueuer appends outgoing messages inside a caller's transaction.
type Enqueuer interface {
	EnqueueTx(tx store.Tx, destination chains.Hash, msg chains.Message) (uint64, error)
}

func credit(tx store.AccountTx, key store.BalanceKey, amount *uint256.Int) error {
	balance, err := tx.Balance(key)
	if err != nil {
		return err
	}
	next, overflow := new(uint256.Int).AddOverflow(balance, amount)
	if overflow {
		return proxyerr.ErrInvalidAmount.Withf("balance overflows")
	}
	return tx.PutBalance(key, next)
}

func debit(tx store.AccountTx, key store.BalanceKey, amount *uint256.Int) error {
	balance, err := tx.Balance(key)
	if err != nil {
		return err
	}
	if balance.Lt(amount) {
		return proxyerr.ErrBalanceTooLow.WithContext("balance", balance.Dec()).WithContext("amount", amount.Dec())
	}
	return tx.PutBalance(key, new(uint256.Int).Sub(balance, amount))
}

func validAmount(amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return proxyerr.ErrInvalidAmount
	}
	return nil
}

func readBalance(ctx context.Context, s store.Store, key store.BalanceKey) (*uint256.Int, error) {
	var out *uint256.Int
	err := s.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.Balance(key)
		return err
	})
	if err != nil {
		return nil, proxyerr.Internal("read balance", err)
	}
	return out, nil
}

func zero(addr common.Address) bool { return addr == (common.Address{}) }

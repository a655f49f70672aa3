package http

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// enqueueReq is the JSON schema for POST routeOutgoing. The sender is the caller.
type enqueueReq struct {
	Destination         string         `json:"destination"` // chain name or 0x-hash
	DestinationContract common.Address `json:"destinationContract"`
	Data                hexutil.Bytes  `json:"data"`
}

type ackReq struct {
	UpTo uint64 `json:"upTo"`
}

type connectReq struct {
	Counterparts []common.Address `json:"counterparts"`
}

// killReq selects which of the two votes the caller casts.
type killReq struct {
	Party string `json:"party"` // "schain_owner" or "operator"
}

type registerReq struct {
	Contract common.Address `json:"contract"`
}

type gasPriceReq struct {
	Price     string        `json:"price"` // decimal wei
	Timestamp uint64        `json:"timestamp"`
	Signature hexutil.Bytes `json:"signature"`
}

type enqueueResp struct {
	Counter uint64 `json:"counter"`
}

type stateResp struct {
	Chain        string           `json:"chain"`
	State        string           `json:"state"`
	Counterparts []common.Address `json:"counterparts"`
}

type depositReq struct {
	Receiver common.Address `json:"receiver"`
	Amount   string         `json:"amount"` // decimal wei
}

// amountReq carries a decimal wei amount for exits and wallet withdrawals.
type amountReq struct {
	Amount string `json:"amount"`
}

// rechargeReq funds the wallet of User, or of the caller when User is omitted.
type rechargeReq struct {
	User   common.Address `json:"user"`
	Amount string         `json:"amount"`
}

type poolGasPriceReq struct {
	Price string `json:"price"`
}

type minGasReq struct {
	Gas uint64 `json:"gas"`
}

type timeLimitReq struct {
	Limit string `json:"limit"` // Go duration, e.g. "30s"
}

type interchainReq struct {
	Enabled bool `json:"enabled"`
}

type amountResp struct {
	Amount string `json:"amount"`
}

type walletResp struct {
	Chain   string `json:"chain"`
	User    string `json:"user"`
	Balance string `json:"balance"`
	Active  bool   `json:"active"`
}

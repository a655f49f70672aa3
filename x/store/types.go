package store

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/compose-network/ima-proxy/x/chains"
)

// Channel holds the counters of one (local, remote) pair. Its existence means the
// remote chain is connected to the local message proxy.
type Channel struct {
	Incoming  uint64 `json:"incoming"`
	Outgoing  uint64 `json:"outgoing"`
	Watermark uint64 `json:"watermark"`
}

// Pending is the number of outgoing entries past the watermark.
func (c Channel) Pending() uint64 {
	return c.Outgoing - c.Watermark
}

// Link is the linker's record about a remote chain.
type Link struct {
	Votes        chains.KillVotes
	Counterparts []common.Address
}

// Receipt is the outcome of delivering one incoming message.
type Receipt struct {
	ID          uuid.UUID      `json:"id"`
	Source      chains.Hash    `json:"source"`
	Counter     uint64         `json:"counter"`
	Destination common.Address `json:"destination"`
	Success     bool           `json:"success"`
	Reason      string         `json:"reason,omitempty"`
	Error       string         `json:"error,omitempty"`
	ProcessedAt time.Time      `json:"processedAt"`
}

// BalanceKey addresses one balance. Asset distinguishes ledgers sharing an account.
type BalanceKey struct {
	Scope   chains.Hash
	Account common.Address
	Asset   string
}

// User carries community-locker state about an account.
type User struct {
	Active      bool
	LastMessage time.Time
}

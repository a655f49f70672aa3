// Package chains holds the identifiers and value types shared by every component
// of the message proxy.
package chains

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// MainnetName is the reserved name of the main ledger.
const MainnetName = "Mainnet"

// Hash identifies a chain by keccak256 of its name.
type Hash = common.Hash

var (
	// MainnetHash is HashName(MainnetName).
	MainnetHash = HashName(MainnetName)
	// All is the registry scope that matches every chain.
	All = Hash{}
)

// HashName returns the identifier of a chain name.
func HashName(name string) Hash {
	return crypto.Keccak256Hash([]byte(name))
}

// IsMainnet reports whether h names the main ledger.
func IsMainnet(h Hash) bool {
	return h == MainnetHash
}

// Chain couples a name with its hash for logging and API output.
type Chain struct {
	Name string
	Hash Hash
}

// New builds a Chain from a name.
func New(name string) Chain {
	name = strings.TrimSpace(name)
	return Chain{Name: name, Hash: HashName(name)}
}

func (c Chain) String() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Hash.Hex()
}

// Pair keys state owned by the local chain about one remote chain.
type Pair struct {
	Local  Hash
	Remote Hash
}

// Message is the unit relayed between chains.
type Message struct {
	Sender              common.Address `json:"sender"`
	DestinationContract common.Address `json:"destinationContract"`
	Data                []byte         `json:"data"`
}

// OutgoingEntry is a queued message together with its position.
type OutgoingEntry struct {
	Chain   Hash    `json:"chain"`
	Counter uint64  `json:"counter"`
	Message Message `json:"message"`
}

// Batch is a contiguous run of messages a relayer delivers from Source.
// Signers is the big-endian signer bitset when the signature is a validator-set aggregate.
type Batch struct {
	Source          Hash      `json:"source"`
	StartingCounter uint64    `json:"startingCounter"`
	Messages        []Message `json:"messages"`
	Signature       []byte    `json:"signature"`
	Signers         []byte    `json:"signers,omitempty"`
}

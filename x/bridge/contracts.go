package bridge

import "github.com/ethereum/go-ethereum/common"

// Predeployed schain addresses.
var (
	DefaultCommunityLocker    = common.HexToAddress("0xD2aaa00300000000000000000000000000000000")
	DefaultTokenManagerEth    = common.HexToAddress("0xd2AaA00400000000000000000000000000000000")
	DefaultTokenManagerLinker = common.HexToAddress("0xD2aAA00800000000000000000000000000000000")
)

// Contracts names the bridge contracts on both sides of a connection. Every node of a
// deployment is configured with the same set.
type Contracts struct {
	// Mainnet side.
	Linker        common.Address
	CommunityPool common.Address
	DepositBoxEth common.Address

	// Schain side.
	TokenManagerLinker common.Address
	CommunityLocker    common.Address
	TokenManagerEth    common.Address
}

// DefaultContracts fills in the predeployed schain addresses. Mainnet addresses are
// deployment specific and stay empty.
func DefaultContracts() Contracts {
	return Contracts{
		TokenManagerLinker: DefaultTokenManagerLinker,
		CommunityLocker:    DefaultCommunityLocker,
		TokenManagerEth:    DefaultTokenManagerEth,
	}
}

// local returns the addresses deployed on the given side.
func (c Contracts) local(mainnet bool) []common.Address {
	if mainnet {
		return []common.Address{c.Linker, c.CommunityPool, c.DepositBoxEth}
	}
	return []common.Address{c.TokenManagerLinker, c.CommunityLocker, c.TokenManagerEth}
}

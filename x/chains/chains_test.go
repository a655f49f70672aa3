package chains

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestHashName(t *testing.T) {
	t.Parallel()

	require.Equal(t, crypto.Keccak256Hash([]byte("Mainnet")), MainnetHash)
	require.True(t, IsMainnet(HashName("Mainnet")))
	require.False(t, IsMainnet(HashName("mainnet")))
	require.Equal(t, New(" schain-1 ").Hash, HashName("schain-1"))
	require.Equal(t, "schain-1", New("schain-1").String())
}

func TestDeriveState(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		connected bool
		votes     KillVotes
		want      ConnectionState
	}{
		{"idle", false, KillVotes{}, NotConnected},
		{"connected", true, KillVotes{}, Connected},
		{"owner vote", true, KillVotes{BySchainOwner: true}, KilledBySchainOwner},
		{"operator vote", true, KillVotes{ByOperator: true}, KilledByOperator},
		{"both votes", true, KillVotes{BySchainOwner: true, ByOperator: true}, Killed},
		{"killed then removed", false, KillVotes{BySchainOwner: true, ByOperator: true}, Killed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, DeriveState(tc.connected, tc.votes))
		})
	}
}

func TestAllowsTraffic(t *testing.T) {
	t.Parallel()

	require.False(t, NotConnected.AllowsTraffic())
	require.True(t, Connected.AllowsTraffic())
	require.True(t, KilledBySchainOwner.AllowsTraffic())
	require.True(t, KilledByOperator.AllowsTraffic())
	require.False(t, Killed.AllowsTraffic())
}

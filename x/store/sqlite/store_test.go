package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/compose-network/ima-proxy/x/chains"
	"github.com/compose-network/ima-proxy/x/store"
	"github.com/compose-network/ima-proxy/x/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := OpenInMemory()
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestOpenFile_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir() + "/nested"
	pair := chains.Pair{Local: chains.HashName("schain"), Remote: chains.MainnetHash}

	s, err := OpenFile(dir, "proxy.db")
	require.NoError(t, err)
	require.NoError(t, s.Update(context.Background(), func(tx store.Tx) error {
		return tx.PutChannel(pair, store.Channel{Incoming: 7, Outgoing: 2})
	}))
	require.NoError(t, s.Close())

	s, err = OpenFile(dir, "proxy.db")
	require.NoError(t, err)
	defer s.Close()

	ch, ok, err := store.GetChannel(context.Background(), s, pair)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, store.Channel{Incoming: 7, Outgoing: 2}, ch)
}

package messages

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/ima-proxy/x/chains"
	"github.com/compose-network/ima-proxy/x/proxyerr"
)

func TestTransferEth(t *testing.T) {
	t.Parallel()

	in := TransferEth{Receiver: common.HexToAddress("0x1111"), Amount: uint256.NewInt(1_000_000_000_000_000_000)}
	data, err := EncodeTransferEth(in)
	require.NoError(t, err)
	require.Len(t, data, 96)

	typ, err := PeekType(data)
	require.NoError(t, err)
	require.Equal(t, TypeTransferEth, typ)

	out, err := DecodeTransferEth(data)
	require.NoError(t, err)
	require.Equal(t, in.Receiver, out.Receiver)
	require.True(t, in.Amount.Eq(out.Amount))

	_, err = EncodeTransferEth(TransferEth{Receiver: in.Receiver})
	require.ErrorIs(t, err, proxyerr.ErrInvalidAmount)
}

func TestUserStatusAndInterchain(t *testing.T) {
	t.Parallel()

	data, err := EncodeUserStatus(UserStatus{Account: common.HexToAddress("0xabc"), Active: true})
	require.NoError(t, err)
	status, err := DecodeUserStatus(data)
	require.NoError(t, err)
	require.True(t, status.Active)
	require.Equal(t, common.HexToAddress("0xabc"), status.Account)

	data, err = EncodeInterchainConnection(InterchainConnection{Enabled: true})
	require.NoError(t, err)
	flag, err := DecodeInterchainConnection(data)
	require.NoError(t, err)
	require.True(t, flag.Enabled)
}

func TestDecodeWrongType(t *testing.T) {
	t.Parallel()

	data, err := EncodeInterchainConnection(InterchainConnection{})
	require.NoError(t, err)

	_, err = DecodeUserStatus(data)
	require.ErrorIs(t, err, proxyerr.ErrUnexpectedMessage)

	_, err = PeekType([]byte{1, 2})
	require.ErrorIs(t, err, proxyerr.ErrMalformedMessage)

	truncated, err := EncodeTransferEth(TransferEth{Amount: uint256.NewInt(1)})
	require.NoError(t, err)
	_, err = DecodeTransferEth(truncated[:64])
	require.ErrorIs(t, err, proxyerr.ErrMalformedMessage)
}

func TestBatchDigest(t *testing.T) {
	t.Parallel()

	source := chains.HashName("schain")
	msgs := []chains.Message{
		{Sender: common.HexToAddress("0x1"), DestinationContract: common.HexToAddress("0x2"), Data: []byte{1, 2, 3}},
		{Sender: common.HexToAddress("0x3"), DestinationContract: common.HexToAddress("0x4")},
	}

	d1, err := BatchDigest(source, 5, msgs)
	require.NoError(t, err)
	d2, err := BatchDigest(source, 5, msgs)
	require.NoError(t, err)
	require.Equal(t, d1, d2)

	other, err := BatchDigest(source, 6, msgs)
	require.NoError(t, err)
	require.NotEqual(t, d1, other)

	other, err = BatchDigest(chains.MainnetHash, 5, msgs)
	require.NoError(t, err)
	require.NotEqual(t, d1, other)

	other, err = BatchDigest(source, 5, msgs[:1])
	require.NoError(t, err)
	require.NotEqual(t, d1, other)

	empty, err := BatchDigest(source, 0, nil)
	require.NoError(t, err)
	require.NotEqual(t, common.Hash{}, empty)
}

func TestGasPriceDigest(t *testing.T) {
	t.Parallel()

	a, err := GasPriceDigest(uint256.NewInt(100), 10)
	require.NoError(t, err)
	b, err := GasPriceDigest(uint256.NewInt(100), 11)
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	_, err = GasPriceDigest(nil, 1)
	require.ErrorIs(t, err, proxyerr.ErrInvalidAmount)
}

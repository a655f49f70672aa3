// Package messages defines the ABI encoding of relayed payloads and of the digests
// signed by a chain's validators.
package messages

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/compose-network/ima-proxy/x/chains"
	"github.com/compose-network/ima-proxy/x/proxyerr"
)

// Type is the leading word of every payload.
type Type uint8

const (
	TypeEmpty Type = iota
	TypeTransferEth
	TypeUserStatus
	TypeInterchainConnection
)

func (t Type) String() string {
	switch t {
	case TypeTransferEth:
		return "TransferEth"
	case TypeUserStatus:
		return "UserStatus"
	case TypeInterchainConnection:
		return "InterchainConnection"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// TransferEth moves Amount wei to Receiver on the destination ledger.
type TransferEth struct {
	Receiver common.Address
	Amount   *uint256.Int
}

// UserStatus activates or locks an account in the community locker.
type UserStatus struct {
	Account common.Address
	Active  bool
}

// InterchainConnection toggles schain-to-schain links.
type InterchainConnection struct {
	Enabled bool
}

var (
	uint8Type   = mustType("uint8", nil)
	uint256Type = mustType("uint256", nil)
	addressType = mustType("address", nil)
	boolType    = mustType("bool", nil)
	bytes32Type = mustType("bytes32", nil)

	messagesType = mustType("tuple[]", []abi.ArgumentMarshaling{
		{Name: "sender", Type: "address"},
		{Name: "destinationContract", Type: "address"},
		{Name: "data", Type: "bytes"},
	})

	headerArgs         = abi.Arguments{{Type: uint8Type}}
	transferEthArgs    = abi.Arguments{{Type: uint8Type}, {Type: addressType}, {Type: uint256Type}}
	userStatusArgs     = abi.Arguments{{Type: uint8Type}, {Type: addressType}, {Type: boolType}}
	interchainArgs     = abi.Arguments{{Type: uint8Type}, {Type: boolType}}
	batchDigestArgs    = abi.Arguments{{Type: bytes32Type}, {Type: uint256Type}, {Type: messagesType}}
	gasPriceDigestArgs = abi.Arguments{{Type: uint256Type}, {Type: uint256Type}}
)

func mustType(name string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(name, "", components)
	if err != nil {
		panic(fmt.Sprintf("failed to parse ABI type %s: %v", name, err))
	}
	return typ
}

// PeekType reads the payload type without decoding the body.
func PeekType(data []byte) (Type, error) {
	if len(data) < 32 {
		return TypeEmpty, proxyerr.ErrMalformedMessage.Withf("payload of %d bytes", len(data))
	}
	values, err := headerArgs.Unpack(data[:32])
	if err != nil {
		return TypeEmpty, proxyerr.ErrMalformedMessage.WithCause(err)
	}
	return Type(values[0].(uint8)), nil
}

func EncodeTransferEth(m TransferEth) ([]byte, error) {
	if m.Amount == nil {
		return nil, proxyerr.ErrInvalidAmount
	}
	return transferEthArgs.Pack(uint8(TypeTransferEth), m.Receiver, m.Amount.ToBig())
}

func DecodeTransferEth(data []byte) (TransferEth, error) {
	values, err := unpack(data, TypeTransferEth, transferEthArgs)
	if err != nil {
		return TransferEth{}, err
	}
	amount, overflow := uint256.FromBig(values[2].(*big.Int))
	if overflow {
		return TransferEth{}, proxyerr.ErrMalformedMessage.Withf("amount overflows uint256")
	}
	return TransferEth{Receiver: values[1].(common.Address), Amount: amount}, nil
}

func EncodeUserStatus(m UserStatus) ([]byte, error) {
	return userStatusArgs.Pack(uint8(TypeUserStatus), m.Account, m.Active)
}

func DecodeUserStatus(data []byte) (UserStatus, error) {
	values, err := unpack(data, TypeUserStatus, userStatusArgs)
	if err != nil {
		return UserStatus{}, err
	}
	return UserStatus{Account: values[1].(common.Address), Active: values[2].(bool)}, nil
}

func EncodeInterchainConnection(m InterchainConnection) ([]byte, error) {
	return interchainArgs.Pack(uint8(TypeInterchainConnection), m.Enabled)
}

func DecodeInterchainConnection(data []byte) (InterchainConnection, error) {
	values, err := unpack(data, TypeInterchainConnection, interchainArgs)
	if err != nil {
		return InterchainConnection{}, err
	}
	return InterchainConnection{Enabled: values[1].(bool)}, nil
}

func unpack(data []byte, want Type, args abi.Arguments) ([]any, error) {
	got, err := PeekType(data)
	if err != nil {
		return nil, err
	}
	if got != want {
		return nil, proxyerr.ErrUnexpectedMessage.Withf("expected %s, got %s", want, got)
	}
	values, err := args.Unpack(data)
	if err != nil {
		return nil, proxyerr.ErrMalformedMessage.WithCause(err)
	}
	return values, nil
}

// BatchDigest is the hash validators sign for a batch of messages starting at startingCounter.
func BatchDigest(source chains.Hash, startingCounter uint64, msgs []chains.Message) (common.Hash, error) {
	if msgs == nil {
		msgs = []chains.Message{}
	}
	packed, err := batchDigestArgs.Pack(source, new(big.Int).SetUint64(startingCounter), msgs)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack batch digest: %w", err)
	}
	return crypto.Keccak256Hash(packed), nil
}

// GasPriceDigest is the hash the local validators sign when publishing a mainnet gas price.
func GasPriceDigest(price *uint256.Int, timestamp uint64) (common.Hash, error) {
	if price == nil {
		return common.Hash{}, proxyerr.ErrInvalidAmount
	}
	packed, err := gasPriceDigestArgs.Pack(price.ToBig(), new(big.Int).SetUint64(timestamp))
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack gas price digest: %w", err)
	}
	return crypto.Keccak256Hash(packed), nil
}

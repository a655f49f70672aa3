package codec

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/compose-network/ima-proxy/x/chains"
)

func sampleBatch() *chains.Batch {
	return &chains.Batch{
		Source:          chains.HashName("schain-A"),
		StartingCounter: 42,
		Messages: []chains.Message{
			{
				Sender:              common.HexToAddress("0x1111111111111111111111111111111111111111"),
				DestinationContract: common.HexToAddress("0x2222222222222222222222222222222222222222"),
				Data:                bytes.Repeat([]byte{'d'}, 64),
			},
			{
				Sender:              common.HexToAddress("0x3333333333333333333333333333333333333333"),
				DestinationContract: common.HexToAddress("0x4444444444444444444444444444444444444444"),
			},
		},
		Signature: bytes.Repeat([]byte{0xab}, 96),
		Signers:   []byte{0x07},
	}
}

func TestProtobufCodec_EncodeDecode_Roundtrip(t *testing.T) {
	t.Parallel()

	c := NewProtobufCodec(1 << 20) // 1MB

	in := sampleBatch()
	data, err := c.Encode(in)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	out, err := c.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestProtobufCodec_EncodeStream_DecodeStream(t *testing.T) {
	t.Parallel()

	c := NewProtobufCodec(1 << 20)
	buf := new(bytes.Buffer)

	first := sampleBatch()
	second := &chains.Batch{Source: chains.MainnetHash, Messages: []chains.Message{}}
	require.NoError(t, c.EncodeStream(buf, first))
	require.NoError(t, c.EncodeStream(buf, second))

	out, err := c.DecodeStream(buf)
	require.NoError(t, err)
	assert.Equal(t, first, out)

	out, err = c.DecodeStream(buf)
	require.NoError(t, err)
	assert.Equal(t, second, out)
}

func TestProtobufCodec_MaxSizeExceeded_OnEncode(t *testing.T) {
	t.Parallel()

	c := NewProtobufCodec(16)

	_, err := c.Encode(sampleBatch())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds max")
}

func TestProtobufCodec_Decode_TruncatedPayload(t *testing.T) {
	t.Parallel()

	c := NewProtobufCodec(1024)

	data := make([]byte, 4+6)
	binary.BigEndian.PutUint32(data[:4], 10)
	copy(data[4:], "123456")

	_, err := c.Decode(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data too short")
}

func TestProtobufCodec_DecodeStream_Empty(t *testing.T) {
	t.Parallel()

	c := NewProtobufCodec(1024)
	buf := bytes.NewBuffer([]byte{0, 0, 0, 0})

	_, err := c.DecodeStream(buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty message")
}

func TestProtobufCodec_Decode_RejectsBadAddress(t *testing.T) {
	t.Parallel()

	var inner []byte
	inner = protowire.AppendTag(inner, fieldSender, protowire.BytesType)
	inner = protowire.AppendBytes(inner, []byte{1, 2, 3})

	var body []byte
	body = protowire.AppendTag(body, fieldMessages, protowire.BytesType)
	body = protowire.AppendBytes(body, inner)

	data := binary.BigEndian.AppendUint32(nil, uint32(len(body)))
	data = append(data, body...)

	_, err := NewProtobufCodec(1024).Decode(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sender has 3 bytes")
}

func TestProtobufCodec_Decode_SkipsUnknownFields(t *testing.T) {
	t.Parallel()

	c := NewProtobufCodec(1024)
	in := &chains.Batch{Source: chains.MainnetHash, StartingCounter: 3, Messages: []chains.Message{}}

	var body []byte
	body = protowire.AppendTag(body, 99, protowire.Fixed64Type)
	body = protowire.AppendFixed64(body, 7)
	body, err := marshalBatch(body, in)
	require.NoError(t, err)

	data := binary.BigEndian.AppendUint32(nil, uint32(len(body)))
	out, err := c.Decode(append(data, body...))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestProtobufCodec_WireSchema(t *testing.T) {
	t.Parallel()

	in := sampleBatch()
	data, err := NewProtobufCodec(1 << 20).Encode(in)
	require.NoError(t, err)

	m := dynamicpb.NewMessage(batchDescriptor)
	require.NoError(t, proto.Unmarshal(data[4:], m))
	fields := batchDescriptor.Fields()
	assert.Equal(t, uint64(42), m.Get(fields.ByName("starting_counter")).Uint())
	assert.Equal(t, in.Source.Bytes(), m.Get(fields.ByName("source")).Bytes())

	msgs := m.Get(fields.ByName("messages")).List()
	require.Equal(t, 2, msgs.Len())
	first := msgs.Get(0).Message()
	assert.Equal(t, in.Messages[0].Data, first.Get(messageDescriptor.Fields().ByName("data")).Bytes())
	assert.Equal(t, "ima.v1.IncomingBatch", string(batchDescriptor.FullName()))

	// Encoding is deterministic, so a re-encode matches byte for byte.
	again, err := NewProtobufCodec(1 << 20).Encode(in)
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

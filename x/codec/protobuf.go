package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/compose-network/ima-proxy/x/chains"
)

const ContentTypeProtobuf = "application/x-protobuf"

// Field numbers of the IncomingBatch wire message.
//
//	message Message { bytes sender = 1; bytes destination_contract = 2; bytes data = 3; }
//	message IncomingBatch {
//	  bytes source = 1; uint64 starting_counter = 2; repeated Message messages = 3;
//	  bytes signature = 4; bytes signers = 5;
//	}
const (
	fieldSource          protoreflect.FieldNumber = 1
	fieldStartingCounter protoreflect.FieldNumber = 2
	fieldMessages        protoreflect.FieldNumber = 3
	fieldSignature       protoreflect.FieldNumber = 4
	fieldSigners         protoreflect.FieldNumber = 5

	fieldSender              protoreflect.FieldNumber = 1
	fieldDestinationContract protoreflect.FieldNumber = 2
	fieldData                protoreflect.FieldNumber = 3
)

var errEmptyMessage = errors.New("empty message")

// ProtobufCodec implements length-prefixed protobuf encoding of incoming batches
type ProtobufCodec struct {
	maxMessageSize int

	bufferPool sync.Pool
}

// NewProtobufCodec creates a new protobuf codec
func NewProtobufCodec(maxMessageSize int) *ProtobufCodec {
	return &ProtobufCodec{
		maxMessageSize: maxMessageSize,
		bufferPool: sync.Pool{
			New: func() interface{} {
				buf := make([]byte, 0, 1024)
				return &buf
			},
		},
	}
}

func (c *ProtobufCodec) ContentType() string { return ContentTypeProtobuf }

// Encode marshals a batch with a big endian length prefix
func (c *ProtobufCodec) Encode(b *chains.Batch) ([]byte, error) {
	bufPtr := c.bufferPool.Get().(*[]byte)
	defer c.bufferPool.Put(bufPtr)

	// Reserve the prefix; it is filled once the body length is known.
	buf, err := marshalBatch(append((*bufPtr)[:0], 0, 0, 0, 0), b)
	if err != nil {
		return nil, err
	}
	*bufPtr = buf

	dataLen := len(buf) - 4
	if dataLen > c.maxMessageSize {
		return nil, fmt.Errorf("message size %d exceeds max %d", dataLen, c.maxMessageSize)
	}
	if dataLen > math.MaxUint32 {
		return nil, fmt.Errorf("message size %d exceeds uint32 max", dataLen)
	}
	binary.BigEndian.PutUint32(buf[:4], uint32(dataLen))

	// Return copy since buf goes back to pool
	result := make([]byte, len(buf))
	copy(result, buf)
	return result, nil
}

// Decode unmarshals a length-prefixed batch
func (c *ProtobufCodec) Decode(data []byte) (*chains.Batch, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("data too short for length prefix")
	}

	length := binary.BigEndian.Uint32(data[:4])
	if int64(length) > int64(c.maxMessageSize) {
		return nil, fmt.Errorf("message size %d exceeds max %d", length, c.maxMessageSize)
	}
	if length == 0 {
		return nil, errEmptyMessage
	}
	if uint64(len(data)) < 4+uint64(length) {
		return nil, fmt.Errorf("data too short for claimed message length")
	}

	return unmarshalBatch(data[4 : 4+length])
}

// DecodeStream reads a length-prefixed batch from stream
func (c *ProtobufCodec) DecodeStream(r io.Reader) (*chains.Batch, error) {
	lengthBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lengthBuf); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(lengthBuf)
	if int64(length) > int64(c.maxMessageSize) {
		return nil, fmt.Errorf("message size %d exceeds max %d", length, c.maxMessageSize)
	}
	if length == 0 {
		return nil, errEmptyMessage
	}

	messageData := make([]byte, length)
	if _, err := io.ReadFull(r, messageData); err != nil {
		return nil, err
	}
	return unmarshalBatch(messageData)
}

// EncodeStream writes a length-prefixed batch to stream
func (c *ProtobufCodec) EncodeStream(w io.Writer, b *chains.Batch) error {
	data, err := c.Encode(b)
	if err != nil {
		return err
	}

	_, err = w.Write(data)
	return err
}

// MaxMessageSize returns the maximum message size
func (c *ProtobufCodec) MaxMessageSize() int {
	return c.maxMessageSize
}

var (
	marshalOpts   = proto.MarshalOptions{Deterministic: true}
	unmarshalOpts = proto.UnmarshalOptions{DiscardUnknown: true}
)

func marshalBatch(buf []byte, b *chains.Batch) ([]byte, error) {
	return marshalOpts.MarshalAppend(buf, batchToProto(b))
}

func unmarshalBatch(data []byte) (*chains.Batch, error) {
	m := dynamicpb.NewMessage(batchDescriptor)
	if err := unmarshalOpts.Unmarshal(data, m); err != nil {
		return nil, err
	}
	return batchFromProto(m)
}

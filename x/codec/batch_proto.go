package codec

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/compose-network/ima-proxy/x/chains"
)

// batchFile describes ima/v1/batch.proto. It is built from descriptorpb so the wire
// schema lives next to the codec without a generated package.
var batchFile = mustBatchFile()

var (
	batchDescriptor   = batchFile.Messages().ByName("IncomingBatch")
	messageDescriptor = batchFile.Messages().ByName("Message")
)

func mustBatchFile() protoreflect.FileDescriptor {
	field := func(name string, num protoreflect.FieldNumber, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
		return &descriptorpb.FieldDescriptorProto{
			Name:   proto.String(name),
			Number: proto.Int32(int32(num)),
			Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
			Type:   typ.Enum(),
		}
	}
	bytesT := descriptorpb.FieldDescriptorProto_TYPE_BYTES

	messages := field("messages", fieldMessages, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE)
	messages.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
	messages.TypeName = proto.String(".ima.v1.Message")

	fd, err := protodesc.NewFile(&descriptorpb.FileDescriptorProto{
		Name:    proto.String("ima/v1/batch.proto"),
		Package: proto.String("ima.v1"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("Message"),
				Field: []*descriptorpb.FieldDescriptorProto{
					field("sender", fieldSender, bytesT),
					field("destination_contract", fieldDestinationContract, bytesT),
					field("data", fieldData, bytesT),
				},
			},
			{
				Name: proto.String("IncomingBatch"),
				Field: []*descriptorpb.FieldDescriptorProto{
					field("source", fieldSource, bytesT),
					field("starting_counter", fieldStartingCounter, descriptorpb.FieldDescriptorProto_TYPE_UINT64),
					messages,
					field("signature", fieldSignature, bytesT),
					field("signers", fieldSigners, bytesT),
				},
			},
		},
	}, nil)
	if err != nil {
		panic(fmt.Sprintf("codec: build batch descriptor: %v", err))
	}
	return fd
}

func setBytes(m *dynamicpb.Message, num protoreflect.FieldNumber, v []byte) {
	if len(v) > 0 {
		m.Set(m.Descriptor().Fields().ByNumber(num), protoreflect.ValueOfBytes(v))
	}
}

// getBytes returns a copy of the field, or nil when it is unset.
func getBytes(m *dynamicpb.Message, num protoreflect.FieldNumber) []byte {
	fd := m.Descriptor().Fields().ByNumber(num)
	if !m.Has(fd) {
		return nil
	}
	return append([]byte(nil), m.Get(fd).Bytes()...)
}

func batchToProto(b *chains.Batch) *dynamicpb.Message {
	m := dynamicpb.NewMessage(batchDescriptor)
	fields := batchDescriptor.Fields()

	setBytes(m, fieldSource, b.Source[:])
	if b.StartingCounter != 0 {
		m.Set(fields.ByNumber(fieldStartingCounter), protoreflect.ValueOfUint64(b.StartingCounter))
	}
	if len(b.Messages) > 0 {
		list := m.Mutable(fields.ByNumber(fieldMessages)).List()
		for _, msg := range b.Messages {
			pm := dynamicpb.NewMessage(messageDescriptor)
			setBytes(pm, fieldSender, msg.Sender[:])
			setBytes(pm, fieldDestinationContract, msg.DestinationContract[:])
			setBytes(pm, fieldData, msg.Data)
			list.Append(protoreflect.ValueOfMessage(pm))
		}
	}
	setBytes(m, fieldSignature, b.Signature)
	setBytes(m, fieldSigners, b.Signers)
	return m
}

func batchFromProto(m *dynamicpb.Message) (*chains.Batch, error) {
	fields := batchDescriptor.Fields()
	b := &chains.Batch{
		StartingCounter: m.Get(fields.ByNumber(fieldStartingCounter)).Uint(),
		Signature:       getBytes(m, fieldSignature),
		Signers:         getBytes(m, fieldSigners),
	}
	if src := getBytes(m, fieldSource); src != nil {
		if len(src) != common.HashLength {
			return nil, fmt.Errorf("source has %d bytes", len(src))
		}
		b.Source = common.BytesToHash(src)
	}

	list := m.Get(fields.ByNumber(fieldMessages)).List()
	b.Messages = make([]chains.Message, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		msg, err := messageFromProto(list.Get(i).Message().(*dynamicpb.Message))
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		b.Messages = append(b.Messages, msg)
	}
	return b, nil
}

func messageFromProto(pm *dynamicpb.Message) (chains.Message, error) {
	var msg chains.Message
	if v := getBytes(pm, fieldSender); v != nil {
		if len(v) != common.AddressLength {
			return msg, fmt.Errorf("sender has %d bytes", len(v))
		}
		msg.Sender = common.BytesToAddress(v)
	}
	if v := getBytes(pm, fieldDestinationContract); v != nil {
		if len(v) != common.AddressLength {
			return msg, fmt.Errorf("destination has %d bytes", len(v))
		}
		msg.DestinationContract = common.BytesToAddress(v)
	}
	msg.Data = getBytes(pm, fieldData)
	return msg, nil
}

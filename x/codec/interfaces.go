package codec

import (
	"io"

	"github.com/compose-network/ima-proxy/x/chains"
)

// Codec defines the batch encoding/decoding interface
type Codec interface {
	Encode(b *chains.Batch) ([]byte, error)
	Decode(data []byte) (*chains.Batch, error)
	ContentType() string
	MaxMessageSize() int
}

// StreamCodec extends Codec for streaming operations
type StreamCodec interface {
	Codec
	DecodeStream(r io.Reader) (*chains.Batch, error)
	EncodeStream(w io.Writer, b *chains.Batch) error
}

// Registry manages codecs keyed by content type
type Registry interface {
	Register(codec Codec)
	Get(contentType string) (Codec, bool)
	Default() Codec
}

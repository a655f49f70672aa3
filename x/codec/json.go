package codec

import (
	"encoding/json"
	"fmt"

	"github.com/compose-network/ima-proxy/x/chains"
)

const ContentTypeJSON = "application/json"

// JSONCodec encodes batches as plain JSON documents. Byte fields are base64 per encoding/json.
type JSONCodec struct {
	maxMessageSize int
}

func NewJSONCodec(maxMessageSize int) *JSONCodec {
	return &JSONCodec{maxMessageSize: maxMessageSize}
}

func (c *JSONCodec) ContentType() string { return ContentTypeJSON }
func (c *JSONCodec) MaxMessageSize() int { return c.maxMessageSize }

func (c *JSONCodec) Encode(b *chains.Batch) ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal: %w", err)
	}
	if len(data) > c.maxMessageSize {
		return nil, fmt.Errorf("message size %d exceeds max %d", len(data), c.maxMessageSize)
	}
	return data, nil
}

func (c *JSONCodec) Decode(data []byte) (*chains.Batch, error) {
	if len(data) > c.maxMessageSize {
		return nil, fmt.Errorf("message size %d exceeds max %d", len(data), c.maxMessageSize)
	}
	var b chains.Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to unmarshal: %w", err)
	}
	return &b, nil
}

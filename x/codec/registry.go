package codec

import (
	"mime"
	"sync"
)

// DefaultMaxMessageSize bounds a single encoded batch.
const DefaultMaxMessageSize = 10 * 1024 * 1024

// registry implements Registry interface
type registry struct {
	mu       sync.RWMutex
	codecs   map[string]Codec
	default_ string
}

// NewRegistry creates a registry holding the JSON (default) and protobuf codecs
func NewRegistry(maxMessageSize int) Registry {
	if maxMessageSize <= 0 {
		maxMessageSize = DefaultMaxMessageSize
	}
	r := &registry{
		codecs: make(map[string]Codec),
	}

	r.Register(NewJSONCodec(maxMessageSize))
	r.Register(NewProtobufCodec(maxMessageSize))
	r.default_ = ContentTypeJSON

	return r
}

// Register registers a codec under its content type
func (r *registry) Register(codec Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[codec.ContentType()] = codec
}

// Get retrieves a codec by content type; parameters such as charset are ignored
func (r *registry) Get(contentType string) (Codec, bool) {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mt
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	codec, exists := r.codecs[contentType]
	return codec, exists
}

// Default returns the default codec
func (r *registry) Default() Codec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.codecs[r.default_]
}

package proxy

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/ima-proxy/x/chains"
	"github.com/compose-network/ima-proxy/x/proxyerr"
	"github.com/compose-network/ima-proxy/x/store"
)

// MessageHandler is implemented by every contract that receives relayed messages.
// Handlers write through tx only; it belongs to the batch being applied and commits
// together with the incoming counter.
type MessageHandler interface {
	HandleMessage(ctx context.Context, tx store.Tx, source chains.Hash, sender common.Address, data []byte) error
}

// HandlerFunc adapts a function to MessageHandler
type HandlerFunc func(ctx context.Context, tx store.Tx, source chains.Hash, sender common.Address, data []byte) error

func (f HandlerFunc) HandleMessage(ctx context.Context, tx store.Tx, source chains.Hash, sender common.Address, data []byte) error {
	return f(ctx, tx, source, sender, data)
}

// MessageRouter routes messages to registered handlers based on destination contract
type MessageRouter interface {
	// Register registers a handler for a destination contract
	Register(contract common.Address, handler MessageHandler)

	// Unregister removes the handler of a destination contract
	Unregister(contract common.Address)

	// Route dispatches a message to the handler of its destination
	Route(ctx context.Context, tx store.Tx, source chains.Hash, msg chains.Message) error

	// Handlers returns the registered contracts with their handler types
	Handlers() map[common.Address]string
}

// messageRouter implements MessageRouter with thread-safe handler registration
type messageRouter struct {
	mu       sync.RWMutex
	handlers map[common.Address]MessageHandler
}

// NewMessageRouter creates a new message router
func NewMessageRouter() MessageRouter {
	return &messageRouter{
		handlers: make(map[common.Address]MessageHandler),
	}
}

func (r *messageRouter) Register(contract common.Address, handler MessageHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[contract] = handler
}

func (r *messageRouter) Unregister(contract common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, contract)
}

func (r *messageRouter) Route(ctx context.Context, tx store.Tx, source chains.Hash, msg chains.Message) error {
	r.mu.RLock()
	handler, exists := r.handlers[msg.DestinationContract]
	r.mu.RUnlock()

	if !exists {
		return proxyerr.ErrHandlerNotFound.WithContext("contract", msg.DestinationContract.Hex())
	}

	return handler.HandleMessage(ctx, tx, source, msg.Sender, msg.Data)
}

// Handlers returns a map of registered contracts to their handler types for debugging
func (r *messageRouter) Handlers() map[common.Address]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[common.Address]string, len(r.handlers))
	for c, h := range r.handlers {
		out[c] = fmt.Sprintf("%T", h)
	}
	return out
}

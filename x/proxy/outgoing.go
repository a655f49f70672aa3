package proxy

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/ima-proxy/x/access"
	"github.com/compose-network/ima-proxy/x/chains"
	"github.com/compose-network/ima-proxy/x/proxyerr"
	"github.com/compose-network/ima-proxy/x/registry"
	"github.com/compose-network/ima-proxy/x/store"
)

// Enqueue appends msg to the queue of destination and returns its counter.
func (p *Proxy) Enqueue(ctx context.Context, destination chains.Hash, msg chains.Message) (uint64, error) {
	var counter uint64
	err := p.store.Update(ctx, func(tx store.Tx) error {
		var err error
		counter, err = p.EnqueueTx(tx, destination, msg)
		return err
	})
	if err != nil {
		p.log.Debug().Err(err).Str("remote_chain", destination.Hex()).Msg("Enqueue rejected")
		return 0, proxyerr.Wrap("enqueue", err)
	}
	return counter, nil
}

// EnqueueTx appends msg inside an open transaction so callers can couple the append
// with their own state changes. Metrics are updated even if the caller later aborts.
func (p *Proxy) EnqueueTx(tx store.Tx, destination chains.Hash, msg chains.Message) (uint64, error) {
	pair := p.pair(destination)

	ch, ok, err := tx.Channel(pair)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, proxyerr.ErrChainNotConnected.WithContext("chain", destination.Hex())
	}

	link, _, err := tx.Link(pair)
	if err != nil {
		return 0, err
	}
	if link.Votes.Killed() {
		return 0, proxyerr.ErrConnectionNotAllowed.Withf("connection to %s is killed", destination.Hex())
	}

	authorized, err := registry.IsAuthorizedTx(tx, destination, msg.Sender)
	if err != nil {
		return 0, err
	}
	if !authorized {
		return 0, proxyerr.ErrSenderNotRegistered.WithContext("sender", msg.Sender.Hex())
	}

	counter := ch.Outgoing
	if err := tx.AppendOutgoing(pair, chains.OutgoingEntry{Chain: destination, Counter: counter, Message: msg}); err != nil {
		return 0, err
	}
	ch.Outgoing++
	if err := tx.PutChannel(pair, ch); err != nil {
		return 0, err
	}

	p.metrics.EnqueuedTotal.WithLabelValues(destination.Hex()).Inc()
	p.metrics.OutgoingCounter.WithLabelValues(destination.Hex()).Set(float64(ch.Outgoing))
	p.log.Debug().
		Str("remote_chain", destination.Hex()).
		Uint64("counter", counter).
		Str("sender", msg.Sender.Hex()).
		Str("destination", msg.DestinationContract.Hex()).
		Msg("Message enqueued")
	return counter, nil
}

// OutgoingCounter is the number of messages ever enqueued for destination.
func (p *Proxy) OutgoingCounter(ctx context.Context, destination chains.Hash) (uint64, error) {
	ch, err := p.Channel(ctx, destination)
	return ch.Outgoing, err
}

// Outgoing lists up to limit queued entries starting at counter from.
func (p *Proxy) Outgoing(ctx context.Context, destination chains.Hash, from uint64, limit int) ([]chains.OutgoingEntry, error) {
	var out []chains.OutgoingEntry
	err := p.store.View(ctx, func(tx store.Tx) error {
		_, ok, err := tx.Channel(p.pair(destination))
		if err != nil {
			return err
		}
		if !ok {
			return proxyerr.ErrChainNotConnected.WithContext("chain", destination.Hex())
		}
		out, err = tx.OutgoingRange(p.pair(destination), from, limit)
		return err
	})
	if err != nil {
		return nil, proxyerr.Wrap("read outgoing", err)
	}
	return out, nil
}

// Pending lists up to limit entries past the watermark.
func (p *Proxy) Pending(ctx context.Context, destination chains.Hash, limit int) ([]chains.OutgoingEntry, error) {
	var out []chains.OutgoingEntry
	err := p.store.View(ctx, func(tx store.Tx) error {
		ch, ok, err := tx.Channel(p.pair(destination))
		if err != nil {
			return err
		}
		if !ok {
			return proxyerr.ErrChainNotConnected.WithContext("chain", destination.Hex())
		}
		out, err = tx.OutgoingRange(p.pair(destination), ch.Watermark, limit)
		return err
	})
	if err != nil {
		return nil, proxyerr.Wrap("read pending", err)
	}
	return out, nil
}

// Acknowledge moves the watermark of destination to upTo, the first counter not yet
// delivered. The watermark never moves backwards nor past the outgoing counter.
func (p *Proxy) Acknowledge(ctx context.Context, caller common.Address, destination chains.Hash, upTo uint64) error {
	if err := p.access.Require(ctx, access.RoleRelayer, caller); err != nil {
		return err
	}
	err := p.store.Update(ctx, func(tx store.Tx) error {
		ch, ok, err := tx.Channel(p.pair(destination))
		if err != nil {
			return err
		}
		if !ok {
			return proxyerr.ErrChainNotConnected.WithContext("chain", destination.Hex())
		}
		if upTo < ch.Watermark || upTo > ch.Outgoing {
			return proxyerr.ErrInvalidWatermark.
				WithContext("watermark", ch.Watermark).
				WithContext("outgoing", ch.Outgoing).
				WithContext("requested", upTo)
		}
		if upTo == ch.Watermark {
			return nil
		}
		ch.Watermark = upTo
		return tx.PutChannel(p.pair(destination), ch)
	})
	if err != nil {
		return proxyerr.Wrap("acknowledge", err)
	}
	return nil
}

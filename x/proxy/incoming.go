package proxy

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/compose-network/ima-proxy/x/chains"
	"github.com/compose-network/ima-proxy/x/messages"
	"github.com/compose-network/ima-proxy/x/proxyerr"
	"github.com/compose-network/ima-proxy/x/registry"
	"github.com/compose-network/ima-proxy/x/store"
)

// Result describes an accepted batch.
type Result struct {
	Source          chains.Hash     `json:"source"`
	StartingCounter uint64          `json:"startingCounter"`
	NextCounter     uint64          `json:"nextCounter"`
	Receipts        []store.Receipt `json:"receipts"`
}

// Delivered counts successful receipts.
func (r *Result) Delivered() int {
	n := 0
	for _, rc := range r.Receipts {
		if rc.Success {
			n++
		}
	}
	return n
}

// PostIncomingMessages applies a batch relayed from batch.Source. Header failures reject
// the whole call without state change. Once the header is accepted every message gets a
// receipt and the incoming counter advances by the batch length whatever the outcomes.
// Handler writes, receipts and the counter commit in one store transaction, so a batch
// is applied exactly once or not at all.
func (p *Proxy) PostIncomingMessages(ctx context.Context, caller common.Address, batch *chains.Batch) (*Result, error) {
	if batch == nil {
		p.metrics.RecordBatch(proxyerr.ReasonEmptyBatch, 0)
		return nil, proxyerr.ErrEmptyBatch
	}

	res, err := p.postIncoming(ctx, caller, batch)
	if err != nil {
		p.metrics.RecordBatch(proxyerr.ReasonOf(err), len(batch.Messages))
		p.log.Debug().
			Err(err).
			Str("source", batch.Source.Hex()).
			Uint64("starting_counter", batch.StartingCounter).
			Int("messages", len(batch.Messages)).
			Msg("Incoming batch rejected")
		return nil, err
	}

	p.metrics.RecordBatch("accepted", len(batch.Messages))
	p.metrics.IncomingCounter.WithLabelValues(batch.Source.Hex()).Set(float64(res.NextCounter))
	for _, r := range res.Receipts {
		p.metrics.RecordMessage(reasonLabel(r.Reason))
		if !r.Success {
			p.log.Warn().
				Str("error", r.Error).
				Str("source", batch.Source.Hex()).
				Uint64("counter", r.Counter).
				Str("reason", r.Reason).
				Msg("Message delivery failed")
		}
	}
	p.log.Info().
		Str("source", batch.Source.Hex()).
		Uint64("starting_counter", res.StartingCounter).
		Int("messages", len(res.Receipts)).
		Int("delivered", res.Delivered()).
		Msg("Incoming batch processed")
	return res, nil
}

func (p *Proxy) postIncoming(ctx context.Context, caller common.Address, batch *chains.Batch) (*Result, error) {
	pair := p.pair(batch.Source)

	unlock := p.LockChain(batch.Source)
	defer unlock()

	err := p.store.View(ctx, func(tx store.Tx) error {
		return checkHeader(tx, pair, batch)
	})
	if err != nil {
		return nil, proxyerr.Wrap("read channel", err)
	}
	if len(batch.Messages) == 0 {
		return nil, proxyerr.ErrEmptyBatch
	}

	digest, err := messages.BatchDigest(batch.Source, batch.StartingCounter, batch.Messages)
	if err != nil {
		return nil, proxyerr.ErrMalformedMessage.WithCause(err)
	}
	if err := p.auth.Authenticate(ctx, caller, batch, digest); err != nil {
		return nil, err
	}

	var receipts []store.Receipt
	next := batch.StartingCounter + uint64(len(batch.Messages))
	err = p.store.Update(ctx, func(tx store.Tx) error {
		// Debugger resets take the pair lock too, so the header read above still holds.
		if err := checkHeader(tx, pair, batch); err != nil {
			return err
		}

		receipts = make([]store.Receipt, 0, len(batch.Messages))
		for i, m := range batch.Messages {
			authorized, err := registry.IsAuthorizedTx(tx, batch.Source, m.DestinationContract)
			if err != nil {
				return err
			}
			var derr error
			if !authorized {
				derr = proxyerr.ErrDestinationNotFound.WithContext("contract", m.DestinationContract.Hex())
			} else {
				derr = p.dispatch(ctx, tx, batch.Source, m)
			}
			receipts = append(receipts, p.receipt(batch.Source, batch.StartingCounter+uint64(i), m, derr))
		}

		ch, _, err := tx.Channel(pair)
		if err != nil {
			return err
		}
		ch.Incoming = next
		if err := tx.PutChannel(pair, ch); err != nil {
			return err
		}
		return tx.PutReceipts(pair, receipts)
	})
	if err != nil {
		return nil, proxyerr.Wrap("apply batch", err)
	}

	return &Result{
		Source:          batch.Source,
		StartingCounter: batch.StartingCounter,
		NextCounter:     next,
		Receipts:        receipts,
	}, nil
}

func checkHeader(tx store.Tx, pair chains.Pair, batch *chains.Batch) error {
	ch, connected, err := tx.Channel(pair)
	if err != nil {
		return err
	}
	link, _, err := tx.Link(pair)
	if err != nil {
		return err
	}
	state := chains.DeriveState(connected, link.Votes)
	if state == chains.NotConnected || state == chains.Killed {
		return proxyerr.ErrConnectionNotAllowed.WithContext("state", state.String())
	}
	if batch.StartingCounter != ch.Incoming {
		return proxyerr.ErrCounterMismatch.
			WithContext("expected", ch.Incoming).
			WithContext("got", batch.StartingCounter)
	}
	return nil
}

// dispatch runs the destination handler in a savepoint of tx. A failing or panicking
// handler leaves none of its writes behind.
func (p *Proxy) dispatch(ctx context.Context, tx store.Tx, source chains.Hash, m chains.Message) (err error) {
	start := time.Now()
	defer func() {
		p.metrics.DispatchDuration.Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Message handler panicked")
			err = proxyerr.ErrHandlerPanicked.Withf("panic: %v", r)
		}
	}()

	err = tx.Nested(func(tx store.Tx) error {
		return p.router.Route(ctx, tx, source, m)
	})
	if err != nil {
		var perr *proxyerr.Error
		if errors.As(err, &perr) {
			return err
		}
		return proxyerr.ErrHandlerFailed.WithCause(err)
	}
	return nil
}

func (p *Proxy) receipt(source chains.Hash, counter uint64, m chains.Message, err error) store.Receipt {
	r := store.Receipt{
		ID:          uuid.New(),
		Source:      source,
		Counter:     counter,
		Destination: m.DestinationContract,
		Success:     err == nil,
		ProcessedAt: p.clock().UTC(),
	}
	if err != nil {
		r.Reason = proxyerr.ReasonOf(err)
		r.Error = err.Error()
	}
	return r
}

func reasonLabel(reason string) string {
	if reason == "" {
		return "Success"
	}
	return reason
}

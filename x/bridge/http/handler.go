package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/spf13/cast"

	apicommon "github.com/compose-network/ima-proxy/server/api"
	"github.com/compose-network/ima-proxy/server/api/middleware"
	"github.com/compose-network/ima-proxy/x/bridge"
	"github.com/compose-network/ima-proxy/x/chains"
	"github.com/compose-network/ima-proxy/x/codec"
	"github.com/compose-network/ima-proxy/x/proxyerr"
)

// defaultPageSize bounds list responses when the caller gives no limit.
const defaultPageSize = 100

type Handler struct {
	node   *bridge.Node
	codecs codec.Registry
	log    zerolog.Logger
}

func NewHandler(node *bridge.Node, codecs codec.Registry, log zerolog.Logger) *Handler {
	return &Handler{
		node:   node,
		codecs: codecs,
		log:    log.With().Str("component", "bridge-http").Logger(),
	}
}

func (h *Handler) handleIncoming(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	c, ok := h.codecs.Get(r.Header.Get("Content-Type"))
	if !ok {
		c = h.codecs.Default()
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, int64(c.MaxMessageSize())+1))
	if err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_body", "failed to read request", nil)
		return
	}
	batch, err := c.Decode(body)
	if err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_batch", err.Error(), nil)
		return
	}

	res, err := h.node.Proxy.PostIncomingMessages(r.Context(), middleware.Caller(r.Context()), batch)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleOutgoing(w http.ResponseWriter, r *http.Request) {
	var req enqueueReq
	if !decodeJSON(w, r, &req) {
		return
	}
	dest, err := parseChain(req.Destination)
	if err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_destination", err.Error(), nil)
		return
	}
	counter, err := h.node.Proxy.Enqueue(r.Context(), dest, chains.Message{
		Sender:              middleware.Caller(r.Context()),
		DestinationContract: req.DestinationContract,
		Data:                req.Data,
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusAccepted, enqueueResp{Counter: counter})
}

func (h *Handler) handleCounters(w http.ResponseWriter, r *http.Request) {
	chain, ok := chainVar(w, r)
	if !ok {
		return
	}
	ch, err := h.node.Proxy.Channel(r.Context(), chain)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, ch)
}

func (h *Handler) handleOutgoingRange(w http.ResponseWriter, r *http.Request) {
	chain, ok := chainVar(w, r)
	if !ok {
		return
	}
	from, limit, ok := page(w, r)
	if !ok {
		return
	}
	entries, err := h.node.Proxy.Outgoing(r.Context(), chain, from, limit)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleAck(w http.ResponseWriter, r *http.Request) {
	chain, ok := chainVar(w, r)
	if !ok {
		return
	}
	var req ackReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.node.Proxy.Acknowledge(r.Context(), middleware.Caller(r.Context()), chain, req.UpTo); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	chain, ok := chainVar(w, r)
	if !ok {
		return
	}
	state, err := h.node.Linker.State(r.Context(), chain)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	counterparts, err := h.node.Linker.Counterparts(r.Context(), chain)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, stateResp{
		Chain:        chain.Hex(),
		State:        state.String(),
		Counterparts: counterparts,
	})
}

func (h *Handler) handleConnect(w http.ResponseWriter, r *http.Request) {
	chain, ok := chainVar(w, r)
	if !ok {
		return
	}
	var req connectReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.node.Linker.Connect(r.Context(), middleware.Caller(r.Context()), chain, req.Counterparts); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	chain, ok := chainVar(w, r)
	if !ok {
		return
	}
	if err := h.node.Linker.Disconnect(r.Context(), middleware.Caller(r.Context()), chain); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleKill(w http.ResponseWriter, r *http.Request) {
	chain, ok := chainVar(w, r)
	if !ok {
		return
	}
	var req killReq
	if !decodeJSON(w, r, &req) {
		return
	}

	caller := middleware.Caller(r.Context())
	var err error
	switch req.Party {
	case "schain_owner":
		err = h.node.Linker.KillBySchainOwner(r.Context(), caller, chain)
	case "operator":
		err = h.node.Linker.KillByOperator(r.Context(), caller, chain)
	default:
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_party",
			"party must be schain_owner or operator", nil)
		return
	}
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	chain, ok := chainVar(w, r)
	if !ok {
		return
	}
	var req registerReq
	if !decodeJSON(w, r, &req) {
		return
	}

	caller := middleware.Caller(r.Context())
	var err error
	if chain == chains.All {
		err = h.node.Registry.RegisterForAll(r.Context(), caller, req.Contract)
	} else {
		err = h.node.Registry.RegisterForChain(r.Context(), caller, chain, req.Contract)
	}
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) handleUnregister(w http.ResponseWriter, r *http.Request) {
	chain, ok := chainVar(w, r)
	if !ok {
		return
	}
	raw := mux.Vars(r)["contract"]
	if !common.IsHexAddress(raw) {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_contract", "bad address", nil)
		return
	}
	contract := common.HexToAddress(raw)

	caller := middleware.Caller(r.Context())
	var err error
	if chain == chains.All {
		err = h.node.Registry.RemoveForAll(r.Context(), caller, contract)
	} else {
		err = h.node.Registry.Remove(r.Context(), caller, chain, contract)
	}
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleReceipts(w http.ResponseWriter, r *http.Request) {
	chain, ok := chainVar(w, r)
	if !ok {
		return
	}
	from, limit, ok := page(w, r)
	if !ok {
		return
	}
	receipts, err := h.node.Proxy.Receipts(r.Context(), chain, from, limit)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, receipts)
}

func (h *Handler) handleGasPrice(w http.ResponseWriter, r *http.Request) {
	if h.node.Locker == nil {
		apicommon.WriteError(w, r, http.StatusNotFound, "not_found", "gas price is tracked on schains only", nil)
		return
	}
	var req gasPriceReq
	if !decodeJSON(w, r, &req) {
		return
	}
	price, err := uint256.FromDecimal(req.Price)
	if err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_price", err.Error(), nil)
		return
	}
	if err := h.node.Locker.SetGasPrice(r.Context(), price, req.Timestamp, req.Signature); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var perr *proxyerr.Error
	if !errors.As(err, &perr) {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("Unclassified error")
		apicommon.WriteError(w, r, http.StatusInternalServerError, proxyerr.ReasonInternal, "internal error", nil)
		return
	}
	if perr.Type == proxyerr.TypeInternal {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("Internal error")
	}
	var details any
	if len(perr.Context) > 0 {
		details = perr.Context
	}
	apicommon.WriteError(w, r, statusOf(perr), perr.Reason, perr.Error(), details)
}

func statusOf(err *proxyerr.Error) int {
	switch err.Reason {
	case proxyerr.ReasonPermissionDenied:
		return http.StatusForbidden
	case proxyerr.ReasonChainNotConnected, proxyerr.ReasonNotRegistered:
		return http.StatusNotFound
	case proxyerr.ReasonCounterMismatch:
		return http.StatusConflict
	case proxyerr.ReasonInvalidSignature, proxyerr.ReasonUnknownPublicKey, proxyerr.ReasonInsufficientWeight:
		return http.StatusUnauthorized
	}
	switch err.Type {
	case proxyerr.TypeInvariant:
		return http.StatusConflict
	case proxyerr.TypeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_json", "failed to decode request", nil)
		return false
	}
	return true
}

func chainVar(w http.ResponseWriter, r *http.Request) (chains.Hash, bool) {
	chain, err := parseChain(mux.Vars(r)["chain"])
	if err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_chain", err.Error(), nil)
		return chains.Hash{}, false
	}
	return chain, true
}

// parseChain accepts a chain name, a 0x-prefixed chain hash, or "all".
func parseChain(s string) (chains.Hash, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return chains.Hash{}, errors.New("chain is required")
	case strings.EqualFold(s, "all"):
		return chains.All, nil
	case strings.HasPrefix(s, "0x") && len(s) == 2+2*common.HashLength:
		return common.HexToHash(s), nil
	default:
		return chains.HashName(s), nil
	}
}

func page(w http.ResponseWriter, r *http.Request) (uint64, int, bool) {
	q := r.URL.Query()
	var (
		from  uint64
		limit = defaultPageSize
		err   error
	)
	if v := q.Get("from"); v != "" {
		if from, err = cast.ToUint64E(v); err != nil {
			apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_from", fmt.Sprintf("from: %v", err), nil)
			return 0, 0, false
		}
	}
	if v := q.Get("limit"); v != "" {
		if limit, err = cast.ToIntE(v); err != nil || limit <= 0 {
			apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer", nil)
			return 0, 0, false
		}
	}
	return from, limit, true
}

package http

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/spf13/cast"

	apicommon "github.com/compose-network/ima-proxy/server/api"
	"github.com/compose-network/ima-proxy/server/api/middleware"
)

func (h *Handler) handleDeposit(w http.ResponseWriter, r *http.Request) {
	if h.node.DepositBox == nil {
		notOnThisChain(w, r, "deposits are accepted on Mainnet only")
		return
	}
	if _, ok := requireCaller(w, r); !ok {
		return
	}
	chain, ok := chainVar(w, r)
	if !ok {
		return
	}
	var req depositReq
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, r, req.Amount)
	if !ok {
		return
	}
	counter, err := h.node.DepositBox.Deposit(r.Context(), chain, req.Receiver, amount)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusAccepted, enqueueResp{Counter: counter})
}

func (h *Handler) handleGetMyEth(w http.ResponseWriter, r *http.Request) {
	if h.node.DepositBox == nil {
		notOnThisChain(w, r, "withdrawals are paid on Mainnet only")
		return
	}
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	paid, err := h.node.DepositBox.GetMyEth(r.Context(), caller)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, amountResp{Amount: paid.Dec()})
}

func (h *Handler) handleExit(w http.ResponseWriter, r *http.Request) {
	if h.node.TokenManager == nil {
		notOnThisChain(w, r, "exits start on schains only")
		return
	}
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req amountReq
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, r, req.Amount)
	if !ok {
		return
	}
	counter, err := h.node.TokenManager.ExitToMain(r.Context(), caller, amount)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusAccepted, enqueueResp{Counter: counter})
}

func (h *Handler) handleWallet(w http.ResponseWriter, r *http.Request) {
	if h.node.Pool == nil {
		notOnThisChain(w, r, "wallets are kept on Mainnet only")
		return
	}
	chain, ok := chainVar(w, r)
	if !ok {
		return
	}
	raw := mux.Vars(r)["user"]
	if !common.IsHexAddress(raw) {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_user", "bad address", nil)
		return
	}
	user := common.HexToAddress(raw)

	balance, err := h.node.Pool.Balance(r.Context(), chain, user)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	active, err := h.node.Pool.IsActive(r.Context(), chain, user)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, walletResp{
		Chain:   chain.Hex(),
		User:    user.Hex(),
		Balance: balance.Dec(),
		Active:  active,
	})
}

func (h *Handler) handleRecharge(w http.ResponseWriter, r *http.Request) {
	if h.node.Pool == nil {
		notOnThisChain(w, r, "wallets are kept on Mainnet only")
		return
	}
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	chain, ok := chainVar(w, r)
	if !ok {
		return
	}
	var req rechargeReq
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, r, req.Amount)
	if !ok {
		return
	}
	user := req.User
	if user == (common.Address{}) {
		user = caller
	}
	if err := h.node.Pool.RechargeUserWallet(r.Context(), chain, user, amount); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	if h.node.Pool == nil {
		notOnThisChain(w, r, "wallets are kept on Mainnet only")
		return
	}
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	chain, ok := chainVar(w, r)
	if !ok {
		return
	}
	var req amountReq
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, r, req.Amount)
	if !ok {
		return
	}
	if err := h.node.Pool.WithdrawFunds(r.Context(), chain, caller, amount); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePoolGasPrice(w http.ResponseWriter, r *http.Request) {
	if h.node.Pool == nil {
		notOnThisChain(w, r, "the pool gas price is set on Mainnet only")
		return
	}
	var req poolGasPriceReq
	if !decodeJSON(w, r, &req) {
		return
	}
	price, err := uint256.FromDecimal(req.Price)
	if err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_price", err.Error(), nil)
		return
	}
	if err := h.node.Pool.SetGasPrice(r.Context(), middleware.Caller(r.Context()), price); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMinGas(w http.ResponseWriter, r *http.Request) {
	if h.node.Pool == nil {
		notOnThisChain(w, r, "the minimum transaction gas is set on Mainnet only")
		return
	}
	var req minGasReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.node.Pool.SetMinTransactionGas(r.Context(), middleware.Caller(r.Context()), req.Gas); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleTimeLimit(w http.ResponseWriter, r *http.Request) {
	if h.node.Locker == nil {
		notOnThisChain(w, r, "the exit time limit is set on schains only")
		return
	}
	var req timeLimitReq
	if !decodeJSON(w, r, &req) {
		return
	}
	limit, err := cast.ToDurationE(req.Limit)
	if err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_limit", err.Error(), nil)
		return
	}
	if err := h.node.Locker.SetTimeLimitPerMessage(r.Context(), middleware.Caller(r.Context()), limit); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleExitCheck reserves an exit slot for the caller, the same check ExitToMain runs.
func (h *Handler) handleExitCheck(w http.ResponseWriter, r *http.Request) {
	if h.node.Locker == nil {
		notOnThisChain(w, r, "exits start on schains only")
		return
	}
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	if err := h.node.Locker.CheckAllowedToSendToMainnet(r.Context(), caller); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAddChain(w http.ResponseWriter, r *http.Request) {
	chain, ok := chainVar(w, r)
	if !ok {
		return
	}
	if err := h.node.Proxy.AddConnectedChain(r.Context(), middleware.Caller(r.Context()), chain); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) handleRemoveChain(w http.ResponseWriter, r *http.Request) {
	chain, ok := chainVar(w, r)
	if !ok {
		return
	}
	if err := h.node.Proxy.RemoveConnectedChain(r.Context(), middleware.Caller(r.Context()), chain); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDebugSkip(w http.ResponseWriter, r *http.Request) {
	chain, ok := chainVar(w, r)
	if !ok {
		return
	}
	if err := h.node.Proxy.IncrementIncomingCounter(r.Context(), middleware.Caller(r.Context()), chain); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDebugReset(w http.ResponseWriter, r *http.Request) {
	chain, ok := chainVar(w, r)
	if !ok {
		return
	}
	if err := h.node.Proxy.SetCountersToZero(r.Context(), middleware.Caller(r.Context()), chain); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleInterchain(w http.ResponseWriter, r *http.Request) {
	var req interchainReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.node.Linker.SetInterchainConnections(r.Context(), middleware.Caller(r.Context()), req.Enabled); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func notOnThisChain(w http.ResponseWriter, r *http.Request, msg string) {
	apicommon.WriteError(w, r, http.StatusNotFound, "not_found", msg, nil)
}

// requireCaller rejects anonymous requests to routes that act on the caller's own funds.
func requireCaller(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	caller := middleware.Caller(r.Context())
	if caller == (common.Address{}) {
		apicommon.WriteError(w, r, http.StatusUnauthorized, "caller_required",
			"request must carry "+middleware.SignatureHeader, nil)
		return common.Address{}, false
	}
	return caller, true
}

func parseAmount(w http.ResponseWriter, r *http.Request, s string) (*uint256.Int, bool) {
	amount, err := uint256.FromDecimal(s)
	if err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_amount", "amount must be a decimal integer", nil)
		return nil, false
	}
	return amount, true
}

package http

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterMux binds gorilla/mux routes.
func (h *Handler) RegisterMux(r *mux.Router) {
	r.HandleFunc(routeIncoming, h.handleIncoming).Methods(http.MethodPost).Name(routeNameIncoming)
	r.HandleFunc(routeOutgoing, h.handleOutgoing).Methods(http.MethodPost).Name(routeNameOutgoing)

	r.HandleFunc(routeCounters, h.handleCounters).Methods(http.MethodGet).Name(routeNameCounters)
	r.HandleFunc(routeOutgoingRange, h.handleOutgoingRange).Methods(http.MethodGet).Name(routeNameOutgoingRange)
	r.HandleFunc(routeAck, h.handleAck).Methods(http.MethodPost).Name(routeNameAck)

	r.HandleFunc(routeState, h.handleState).Methods(http.MethodGet).Name(routeNameState)
	r.HandleFunc(routeConnect, h.handleConnect).Methods(http.MethodPost).Name(routeNameConnect)
	r.HandleFunc(routeDisconnect, h.handleDisconnect).Methods(http.MethodPost).Name(routeNameDisconnect)
	r.HandleFunc(routeKill, h.handleKill).Methods(http.MethodPost).Name(routeNameKill)

	r.HandleFunc(routeRegister, h.handleRegister).Methods(http.MethodPost).Name(routeNameRegister)
	r.HandleFunc(routeUnregister, h.handleUnregister).Methods(http.MethodDelete).Name(routeNameUnregister)

	r.HandleFunc(routeReceipts, h.handleReceipts).Methods(http.MethodGet).Name(routeNameReceipts)
	r.HandleFunc(routeGasPrice, h.handleGasPrice).Methods(http.MethodPost).Name(routeNameGasPrice)

	r.HandleFunc(routeDeposits, h.handleDeposit).Methods(http.MethodPost).Name(routeNameDeposit)
	r.HandleFunc(routeGetMyEth, h.handleGetMyEth).Methods(http.MethodPost).Name(routeNameGetMyEth)
	r.HandleFunc(routeExits, h.handleExit).Methods(http.MethodPost).Name(routeNameExit)

	// Fixed wallet paths first so "recharge" is never read as a user address.
	r.HandleFunc(routeRecharge, h.handleRecharge).Methods(http.MethodPost).Name(routeNameRecharge)
	r.HandleFunc(routeWithdraw, h.handleWithdraw).Methods(http.MethodPost).Name(routeNameWithdraw)
	r.HandleFunc(routeWallet, h.handleWallet).Methods(http.MethodGet).Name(routeNameWallet)
	r.HandleFunc(routePoolPrice, h.handlePoolGasPrice).Methods(http.MethodPut).Name(routeNamePoolPrice)
	r.HandleFunc(routeMinGas, h.handleMinGas).Methods(http.MethodPut).Name(routeNameMinGas)
	r.HandleFunc(routeTimeLimit, h.handleTimeLimit).Methods(http.MethodPut).Name(routeNameTimeLimit)
	r.HandleFunc(routeExitCheck, h.handleExitCheck).Methods(http.MethodPost).Name(routeNameExitCheck)

	r.HandleFunc(routeProxyChain, h.handleAddChain).Methods(http.MethodPost).Name(routeNameAddChain)
	r.HandleFunc(routeProxyChain, h.handleRemoveChain).Methods(http.MethodDelete).Name(routeNameRemoveChain)
	r.HandleFunc(routeDebugSkip, h.handleDebugSkip).Methods(http.MethodPost).Name(routeNameDebugSkip)
	r.HandleFunc(routeDebugReset, h.handleDebugReset).Methods(http.MethodPost).Name(routeNameDebugReset)
	r.HandleFunc(routeInterchain, h.handleInterchain).Methods(http.MethodPut).Name(routeNameInterchain)
}

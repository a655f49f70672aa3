package http

// Route patterns for the bridge HTTP surface.
const (
	routeIncoming      = "/v1/messages/incoming"
	routeOutgoing      = "/v1/messages/outgoing"
	routeCounters      = "/v1/chains/{chain}/counters"
	routeOutgoingRange = "/v1/chains/{chain}/outgoing"
	routeAck           = "/v1/chains/{chain}/ack"
	routeState         = "/v1/chains/{chain}/state"
	routeConnect       = "/v1/chains/{chain}/connect"
	routeDisconnect    = "/v1/chains/{chain}/disconnect"
	routeKill          = "/v1/chains/{chain}/kill"
	routeRegister      = "/v1/registry/{chain}"
	routeUnregister    = "/v1/registry/{chain}/{contract}"
	routeReceipts      = "/v1/receipts/{chain}"
	routeGasPrice      = "/v1/gas-price"

	routeDeposits   = "/v1/deposit-box/{chain}/deposits"
	routeGetMyEth   = "/v1/deposit-box/withdrawals"
	routeExits      = "/v1/token-manager/exits"
	routeWallet     = "/v1/community/wallets/{chain}/{user}"
	routeRecharge   = "/v1/community/wallets/{chain}/recharge"
	routeWithdraw   = "/v1/community/wallets/{chain}/withdraw"
	routePoolPrice  = "/v1/community/gas-price"
	routeMinGas     = "/v1/community/min-transaction-gas"
	routeTimeLimit  = "/v1/community/time-limit"
	routeExitCheck  = "/v1/community/exit-allowance"
	routeProxyChain = "/v1/proxy/chains/{chain}"
	routeDebugSkip  = "/v1/debug/chains/{chain}/increment-incoming"
	routeDebugReset = "/v1/debug/chains/{chain}/reset"
	routeInterchain = "/v1/interchain"
)

// Route names for mux URL building.
const (
	routeNameIncoming      = "messages_incoming"
	routeNameOutgoing      = "messages_outgoing"
	routeNameCounters      = "chain_counters"
	routeNameOutgoingRange = "chain_outgoing"
	routeNameAck           = "chain_ack"
	routeNameState         = "chain_state"
	routeNameConnect       = "chain_connect"
	routeNameDisconnect    = "chain_disconnect"
	routeNameKill          = "chain_kill"
	routeNameRegister      = "registry_register"
	routeNameUnregister    = "registry_unregister"
	routeNameReceipts      = "receipts"
	routeNameGasPrice      = "gas_price"

	routeNameDeposit     = "deposit"
	routeNameGetMyEth    = "get_my_eth"
	routeNameExit        = "exit_to_main"
	routeNameWallet      = "wallet"
	routeNameRecharge    = "wallet_recharge"
	routeNameWithdraw    = "wallet_withdraw"
	routeNamePoolPrice   = "pool_gas_price"
	routeNameMinGas      = "pool_min_gas"
	routeNameTimeLimit   = "time_limit"
	routeNameExitCheck   = "exit_allowance"
	routeNameAddChain    = "proxy_chain_add"
	routeNameRemoveChain = "proxy_chain_remove"
	routeNameDebugSkip   = "debug_increment_incoming"
	routeNameDebugReset  = "debug_reset_counters"
	routeNameInterchain  = "interchain"
)

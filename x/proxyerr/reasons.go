package proxyerr

// Stable reason strings.
const (
	ReasonInternal                = "Internal"
	ReasonPermissionDenied        = "PermissionDenied"
	ReasonAlreadyRegistered       = "AlreadyRegistered"
	ReasonNotRegistered           = "NotRegistered"
	ReasonIncorrectAddress        = "IncorrectAddress"
	ReasonIncorrectAddressCount   = "IncorrectAddressCount"
	ReasonChainNotConnected       = "ChainNotConnected"
	ReasonChainAlreadyConnected   = "ChainAlreadyConnected"
	ReasonReservedChain           = "ReservedChain"
	ReasonSenderNotRegistered     = "SenderNotRegistered"
	ReasonInvalidWatermark        = "InvalidWatermark"
	ReasonConnectionNotAllowed    = "ConnectionNotAllowed"
	ReasonCounterMismatch         = "CounterMismatch"
	ReasonInvalidSignature        = "InvalidSignature"
	ReasonUnknownPublicKey        = "UnknownPublicKey"
	ReasonInsufficientWeight      = "InsufficientWeight"
	ReasonEmptyBatch              = "EmptyBatch"
	ReasonDestinationNotFound     = "DestinationNotRegistered"
	ReasonHandlerNotFound         = "HandlerNotFound"
	ReasonHandlerFailed           = "HandlerFailed"
	ReasonHandlerPanicked         = "HandlerPanicked"
	ReasonAlreadyKilled           = "AlreadyKilled"
	ReasonNoStateChange           = "NoStateChange"
	ReasonTimestampInFuture       = "TimestampInFuture"
	ReasonTimestampAlreadyUpdated = "TimestampAlreadyUpdated"
	ReasonSourceNotMainnet        = "SourceNotMainnet"
	ReasonSenderNotCommunityPool  = "SenderNotCommunityPool"
	ReasonUnexpectedMessage       = "UnexpectedMessage"
	ReasonMalformedMessage        = "MalformedMessage"
	ReasonUserNotActive           = "UserNotActive"
	ReasonTrafficLimitExceeded    = "TrafficLimitExceeded"
	ReasonNotEnoughMoney          = "NotEnoughMoney"
	ReasonBalanceTooLow           = "BalanceTooLow"
	ReasonInvalidAmount           = "InvalidAmount"
)

// Sentinels for errors.Is.
var (
	ErrInternal                = New(TypeInternal, ReasonInternal, "internal error")
	ErrPermissionDenied        = New(TypeRejection, ReasonPermissionDenied, "caller lacks the required role")
	ErrAlreadyRegistered       = New(TypeInvariant, ReasonAlreadyRegistered, "contract is already registered")
	ErrNotRegistered           = New(TypeInvariant, ReasonNotRegistered, "contract is not registered")
	ErrIncorrectAddress        = New(TypeRejection, ReasonIncorrectAddress, "incorrect address")
	ErrIncorrectAddressCount   = New(TypeRejection, ReasonIncorrectAddressCount, "incorrect number of addresses")
	ErrChainNotConnected       = New(TypeRejection, ReasonChainNotConnected, "destination chain is not initialized")
	ErrChainAlreadyConnected   = New(TypeInvariant, ReasonChainAlreadyConnected, "chain is already connected")
	ErrReservedChain           = New(TypeRejection, ReasonReservedChain, "chain name is reserved")
	ErrSenderNotRegistered     = New(TypeRejection, ReasonSenderNotRegistered, "sender contract is not registered")
	ErrInvalidWatermark        = New(TypeRejection, ReasonInvalidWatermark, "watermark out of range")
	ErrConnectionNotAllowed    = New(TypeRejection, ReasonConnectionNotAllowed, "connection is not allowed")
	ErrCounterMismatch         = New(TypeRejection, ReasonCounterMismatch, "starting counter is not equal to incoming message counter")
	ErrInvalidSignature        = New(TypeRejection, ReasonInvalidSignature, "signature is not verified")
	ErrUnknownPublicKey        = New(TypeRejection, ReasonUnknownPublicKey, "no public key registered for chain")
	ErrInsufficientWeight      = New(TypeRejection, ReasonInsufficientWeight, "signed weight below quorum")
	ErrEmptyBatch              = New(TypeRejection, ReasonEmptyBatch, "batch contains no messages")
	ErrDestinationNotFound     = New(TypeMessageFailure, ReasonDestinationNotFound, "destination contract is not registered")
	ErrHandlerNotFound         = New(TypeMessageFailure, ReasonHandlerNotFound, "no handler for destination contract")
	ErrHandlerFailed           = New(TypeMessageFailure, ReasonHandlerFailed, "message handler failed")
	ErrHandlerPanicked         = New(TypeMessageFailure, ReasonHandlerPanicked, "message handler panicked")
	ErrAlreadyKilled           = New(TypeInvariant, ReasonAlreadyKilled, "already killed")
	ErrNoStateChange           = New(TypeRejection, ReasonNoStateChange, "user statuses must be different")
	ErrTimestampInFuture       = New(TypeRejection, ReasonTimestampInFuture, "timestamp should not be in the future")
	ErrTimestampAlreadyUpdated = New(TypeRejection, ReasonTimestampAlreadyUpdated, "gas price timestamp already updated")
	ErrSourceNotMainnet        = New(TypeRejection, ReasonSourceNotMainnet, "source chain name must be Mainnet")
	ErrSenderNotCommunityPool  = New(TypeRejection, ReasonSenderNotCommunityPool, "sender must be CommunityPool")
	ErrUnexpectedMessage       = New(TypeRejection, ReasonUnexpectedMessage, "unexpected message type")
	ErrMalformedMessage        = New(TypeRejection, ReasonMalformedMessage, "message cannot be decoded")
	ErrUserNotActive           = New(TypeRejection, ReasonUserNotActive, "recipient must recharge account")
	ErrTrafficLimitExceeded    = New(TypeRejection, ReasonTrafficLimitExceeded, "exceeded message rate limit")
	ErrNotEnoughMoney          = New(TypeRejection, ReasonNotEnoughMoney, "not enough money for transaction")
	ErrBalanceTooLow           = New(TypeRejection, ReasonBalanceTooLow, "balance is too low")
	ErrInvalidAmount           = New(TypeRejection, ReasonInvalidAmount, "amount must be positive")
)

package auctionerrors

import "errors"

// Bid rejection kinds. These are returned, not thrown: callers discriminate
// with errors.Is and surface them verbatim.
var (
	ErrAuctionNotLive       = errors.New("auction is not live")
	ErrBidTooLow            = errors.New("bid amount too low")
	ErrSelfBidNotAllowed    = errors.New("seller cannot bid on own auction")
	ErrProxyCeilingBelowBid = errors.New("proxy ceiling below bid amount")
	ErrBidderNotRegistered  = errors.New("no approved registration for bidder")
	ErrCreditLimitExceeded  = errors.New("bid exceeds registration credit limit")
	ErrFundsNotAuthorized   = errors.New("funds authorization declined")
)

// ErrTransientConflict is retryable: the caller should resubmit the same bid.
// It surfaces only after the engine's own bounded retries are exhausted.
var ErrTransientConflict = errors.New("transient conflict, retry bid")

// Lifecycle and settlement kinds.
var (
	ErrInvalidStateTransition = errors.New("invalid auction state transition")
	ErrAlreadySettled         = errors.New("item already settled")
	ErrAuctionNotFound        = errors.New("auction not found")
	ErrRegistrationNotFound   = errors.New("registration not found")
	ErrNotAuthorized          = errors.New("actor not authorized for operation")
)

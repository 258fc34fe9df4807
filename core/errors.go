package core

import "errors"

// ErrNotFound is returned when a requested object does not exist in storage.
var ErrNotFound = errors.New("not found")

// Marketplace error taxonomy. Handlers wrap these with context via
// fmt.Errorf("...: %w", err) so callers can match with errors.Is while the
// transaction layer surfaces the message verbatim.
var (
	// Admin-gated operation called by a non-admin account.
	ErrUnauthorized = errors.New("unauthorized")
	// Admin attempted to assign a punk to itself.
	ErrSelfAssignment = errors.New("self transaction detected")
	// Free mint attempted before the initial-assignment flag was set.
	ErrNotYetAssignable = errors.New("initial assignment still in progress")
	// Free mint attempted on a punk that already has an owner.
	ErrAlreadyOwned = errors.New("punk already owned")
	// Punk index outside [0, TotalPunks).
	ErrOutOfRange = errors.New("punk index out of range")
	// Operation requires the punk to have an owner.
	ErrUnassignedPunk = errors.New("punk not yet assigned")
	// Transfer attempted by an account that does not own the punk.
	ErrNotTokenOwner = errors.New("sender not token owner")
	// Offer/bid management attempted by an account that may not do so.
	ErrNotAuthorized = errors.New("not authorized")
	// Purchase or transfer requires an active sell offer.
	ErrNotForSale = errors.New("token not listed for sale")
	// Restricted offer bought by an account other than the permitted buyer.
	ErrBuyerNotPermitted = errors.New("offer reserved for another buyer")
	// Payment below the offer's minimum price.
	ErrPriceTooLow = errors.New("payment below asking price")
	// Bidder already owns the punk.
	ErrSelfBid = errors.New("bidder already owns this punk")
	// New bid does not exceed the current active bid.
	ErrBidTooLow = errors.New("bid does not exceed current bid")
	// Accept called with no active bid on the punk.
	ErrNoActiveBid = errors.New("no active bid")
	// Active bid is below the seller's acceptance minimum.
	ErrBidBelowMinimum = errors.New("bid amount below minimum")
	// Withdraw called with a zero pending balance.
	ErrNoPendingWithdrawal = errors.New("no pending withdrawal")
)

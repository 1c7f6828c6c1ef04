package status

import "errors"

var (
	ErrCapacityExceeded       = errors.New("inventory: requested quantity exceeds remaining capacity")
	ErrProviderRejected       = errors.New("payment: provider rejected the payment")
	ErrPurchaseNotFound       = errors.New("purchase: purchase not found")
	ErrAlreadyTerminal        = errors.New("purchase: purchase already in a terminal state")
	ErrNotConfirmedPaid       = errors.New("purchase: provider outcome is not confirmed-paid")
	ErrListingNotFound        = errors.New("resale: listing not found")
	ErrListingAlreadyConsumed = errors.New("resale: listing already consumed")
	ErrTicketNotFound         = errors.New("ticket: ticket not found")
	ErrCredentialInvalid      = errors.New("scan: credential is not valid for admission")
	ErrAlreadyScanned         = errors.New("scan: credential already used for admission")
)

package services

import "errors"

// Conflict and precondition errors surfaced by the payment workflow. Callers
// match these with errors.Is and map them to specific HTTP conflict kinds;
// not-found conditions use mongo.ErrNoDocuments as elsewhere in the codebase.
var (
	// ErrAlreadyPaid: a completed contact-purpose payment already exists for
	// this (payer, listing) pair.
	ErrAlreadyPaid = errors.New("a completed contact payment already exists for this listing")

	// ErrDuplicateActiveRequest: a non-terminal contact case already exists
	// for this (requester, listing) pair.
	ErrDuplicateActiveRequest = errors.New("an active contact request already exists for this listing")

	// ErrUnknownTransaction: no payment matches the correlation id.
	ErrUnknownTransaction = errors.New("no payment matches this transaction id")

	// ErrAlreadyProcessed: the listing's validation decision has already been
	// made.
	ErrAlreadyProcessed = errors.New("listing validation has already been processed")

	// ErrInvalidTransition: the operation is not valid from the entity's
	// current state. Calls that must be idempotent (terminal re-delivery,
	// repeated closeAsSuccess) return nil instead of this.
	ErrInvalidTransition = errors.New("operation not valid from the current state")

	// ErrListingUnavailable: the listing is not approved and available.
	ErrListingUnavailable = errors.New("listing is not available for contact")

	// ErrNotRequester: only the original requester may cancel a case.
	ErrNotRequester = errors.New("only the original requester may perform this operation")

	// ErrSandboxDisabled: demo completion is only usable in sandbox mode.
	ErrSandboxDisabled = errors.New("demo completion requires sandbox mode")
)

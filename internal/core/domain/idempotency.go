package domain

import (
	"github.com/google/uuid"
)

// BuildIdempotencyKey constructs the cache key for a ledger posting:
// "wallet_id:key".
func BuildIdempotencyKey(walletID uuid.UUID, key string) string {
	return walletID.String() + ":" + key
}

// PayoutPostingKey is the idempotency key used for the ledger debit that
// settles a payout. The prefix keeps merchant-chosen payout references
// apart from order posting keys in the same wallet.
func PayoutPostingKey(reference string) string {
	return "payout:" + reference
}

// BuildEventKey constructs the dedupe key for a provider webhook event.
func BuildEventKey(provider Provider, eventID string) string {
	return string(provider) + ":" + eventID
}

// NewPayoutReference generates a payout reference when the caller supplies none.
func NewPayoutReference() string {
	return "PO-" + uuid.NewString()
}

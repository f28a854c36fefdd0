package domain

import (
	"time"
)

const (
	// SignupCredits is the balance every account starts with.
	SignupCredits int64 = 5
	// ProBonusCredits is granted on each completed subscription capture.
	ProBonusCredits int64 = 100
	// GenerationCost is the number of credits a single metered generation consumes.
	GenerationCost int64 = 1
)

// Account represents a user's credit balance in the ledger. Email is the natural key.
type Account struct {
	Email     string    `json:"email"`
	Credits   int64     `json:"credits"`
	IsPro     bool      `json:"is_pro"`
	CreatedAt time.Time `json:"created_at"`
}

// EntryReason labels why a balance moved.
type EntryReason string

const (
	ReasonSignup  EntryReason = "signup"
	ReasonReserve EntryReason = "reserve"
	ReasonRefund  EntryReason = "refund"
	ReasonGrant   EntryReason = "grant"
	ReasonPayment EntryReason = "payment"
)

// CreditEntry is one row of the append-only credit journal.
// Summing Delta over an account's entries always equals its current balance.
type CreditEntry struct {
	ID        int64       `json:"id"`
	Email     string      `json:"email"`
	Delta     int64       `json:"delta"`
	Reason    EntryReason `json:"reason"`
	Reference string      `json:"reference,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// CapturedOrder records a payment order that has already granted credits.
type CapturedOrder struct {
	OrderRef       string    `json:"order_ref"`
	Email          string    `json:"email"`
	CreditsGranted int64     `json:"credits_granted"`
	CapturedAt     time.Time `json:"captured_at"`
}

package events

import "time"

// Event types
const (
	UserRegistered = "user.registered"
	ProfileUpdated = "user.profile_updated"

	DepositPosted      = "ledger.deposit_posted"
	InvestmentCreated  = "ledger.investment_created"
	LoanOffered        = "ledger.loan_offered"
	KYCSubmitted       = "ledger.kyc_submitted"
	KYCReviewed        = "ledger.kyc_reviewed"
	BalanceAdjusted    = "ledger.balance_adjusted"
	TransactionCreated = "ledger.transaction_created"
	TransactionUpdated = "ledger.transaction_updated"
	TransactionDeleted = "ledger.transaction_deleted"
)

// Stream names
const (
	UserEventsStream   = "user.events"
	LedgerEventsStream = "ledger.events"
)

// Base event structure. ID is unique per publication and is what consumers
// use to drop duplicate deliveries.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// User events
type UserRegisteredEvent struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

type ProfileUpdatedEvent struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// LedgerEvent is the payload of every ledger.* event. Amount and account are
// empty for events that do not move a single counter.
type LedgerEvent struct {
	UserID        string `json:"userId"`
	TransactionID string `json:"transactionId,omitempty"`
	Account       string `json:"account,omitempty"`
	Amount        string `json:"amount,omitempty"`
}

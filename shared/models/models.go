package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance account keys.
const (
	AccountChecking = "checking"
	AccountSavings  = "savings"
	AccountUSDT     = "usdt"
)

// Transaction types.
const (
	TxTypeDeposit         = "deposit"
	TxTypeInvestment      = "investment"
	TxTypeWithdrawal      = "withdrawal"
	TxTypeAdminAdjustment = "admin-adjustment"
	TxTypeLoan            = "loan"
	TxTypeTransfer        = "transfer"
)

// Transaction statuses.
const (
	TxStatusPosted    = "Posted"
	TxStatusPending   = "Pending"
	TxStatusCompleted = "Completed"
	TxStatusFailed    = "Failed"
)

// KYC statuses. The zero value means nothing has been submitted.
const (
	KYCUnset     = ""
	KYCSubmitted = "submitted"
	KYCVerified  = "verified"
	KYCRejected  = "rejected"
)

// Investment statuses.
const (
	InvestmentActive  = "Active"
	InvestmentMatured = "Matured"
	InvestmentClosed  = "Closed"
)

type Address struct {
	Line1    string `json:"line1"`
	Line2    string `json:"line2,omitempty"`
	Town     string `json:"town,omitempty"`
	County   string `json:"county,omitempty"`
	Postcode string `json:"postcode,omitempty"`
	Country  string `json:"country,omitempty"`
}

// Balance holds the three independent counters of a user's account.
type Balance struct {
	Checking decimal.Decimal `json:"checking"`
	Savings  decimal.Decimal `json:"savings"`
	USDT     decimal.Decimal `json:"usdt"`
}

// Get returns the counter named by key.
func (b Balance) Get(key string) (decimal.Decimal, bool) {
	switch key {
	case AccountChecking:
		return b.Checking, true
	case AccountSavings:
		return b.Savings, true
	case AccountUSDT:
		return b.USDT, true
	}
	return decimal.Zero, false
}

// Set overwrites the counter named by key. It reports false for unknown keys.
func (b *Balance) Set(key string, v decimal.Decimal) bool {
	switch key {
	case AccountChecking:
		b.Checking = v
	case AccountSavings:
		b.Savings = v
	case AccountUSDT:
		b.USDT = v
	default:
		return false
	}
	return true
}

// Total is checking + savings + usdt.
func (b Balance) Total() decimal.Decimal {
	return b.Checking.Add(b.Savings).Add(b.USDT)
}

// IsAccountKey reports whether key names one of the three counters.
func IsAccountKey(key string) bool {
	_, ok := Balance{}.Get(key)
	return ok
}

// AccountKeys lists the counters in deduction order.
var AccountKeys = []string{AccountChecking, AccountSavings, AccountUSDT}

type Investment struct {
	ID             string          `json:"id"`
	Plan           string          `json:"plan"`
	PlanName       string          `json:"planName"`
	Amount         decimal.Decimal `json:"amount"`
	Rate           decimal.Decimal `json:"rate"`
	StartDate      time.Time       `json:"startDate"`
	MaturityDate   time.Time       `json:"maturityDate"`
	Status         string          `json:"status"`
	ExpectedReturn decimal.Decimal `json:"expectedReturn"`
}

// EffectiveStatus reports Matured for an active position past its maturity date.
func (i Investment) EffectiveStatus(now time.Time) string {
	if i.Status == InvestmentActive && !now.Before(i.MaturityDate) {
		return InvestmentMatured
	}
	return i.Status
}

type Notification struct {
	ID      string    `json:"id"`
	Message string    `json:"message"`
	Date    time.Time `json:"date"`
	Read    bool      `json:"read"`
}

// User is the account aggregate. It owns its investments and notifications and
// references its transactions by id.
type User struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Email        string  `json:"email"`
	PasswordHash string  `json:"-"`
	PhoneNumber  string  `json:"phoneNumber"`
	Address      Address `json:"address"`
	Currency     string  `json:"currency"`
	Theme        string  `json:"theme"`
	IsAdmin      bool    `json:"isAdmin"`

	Balance Balance `json:"balance"`

	IDDocumentRef     string `json:"-"`
	SSN               string `json:"-"`
	KYCStatus         string `json:"kycStatus"`
	HasSubmittedIDSSN bool   `json:"hasSubmittedIdSsn"`

	LoanOffer     *decimal.Decimal `json:"loanOffer,omitempty"`
	LoanSubmitted bool             `json:"loanSubmitted"`
	LoanReceived  bool             `json:"loanReceived"`

	Investments    []Investment   `json:"investments"`
	Notifications  []Notification `json:"notifications"`
	TransactionIDs []string       `json:"transactionIds"`

	CreatedAt time.Time `json:"createdTimestamp"`
	UpdatedAt time.Time `json:"updatedTimestamp"`
}

// Clone returns a deep copy so callers can mutate it without touching shared state.
func (u *User) Clone() *User {
	cp := *u
	if u.LoanOffer != nil {
		offer := *u.LoanOffer
		cp.LoanOffer = &offer
	}
	cp.Investments = append([]Investment(nil), u.Investments...)
	cp.Notifications = append([]Notification(nil), u.Notifications...)
	cp.TransactionIDs = append([]string(nil), u.TransactionIDs...)
	return &cp
}

type Transaction struct {
	ID         string          `json:"id"`
	UserID     string          `json:"userId"`
	Type       string          `json:"type"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method"`
	Status     string          `json:"status"`
	Account    string          `json:"account"`
	Date       time.Time       `json:"date"`
	ReceiptRef string          `json:"receiptRef,omitempty"`
	CreatedAt  time.Time       `json:"createdTimestamp"`
	UpdatedAt  time.Time       `json:"updatedTimestamp"`
}

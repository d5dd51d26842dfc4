package cqrs

import (
	"time"

	"github.com/eaglebank/ledger-service/shared/models"
	"github.com/shopspring/decimal"
)

type RegisterUserCommand struct {
	Name        string
	Email       string
	Password    string
	PhoneNumber string
	Address     models.Address
}

// UpdateProfileCommand carries optional fields; nil means unchanged.
type UpdateProfileCommand struct {
	UserID      string
	Name        *string
	PhoneNumber *string
	Address     *models.Address
	Currency    *string
	Theme       *string
}

type MarkNotificationsReadCommand struct {
	UserID string
	// IDs to mark; empty marks every notification.
	IDs []string
}

type DepositCommand struct {
	UserID  string
	Amount  decimal.Decimal
	Account string
	Method  string
}

type InvestCommand struct {
	UserID string
	Plan   string
	Amount decimal.Decimal
}

type ApplyForLoanCommand struct {
	UserID string
	Amount decimal.Decimal
}

type SubmitKYCCommand struct {
	UserID        string
	SSN           string
	IDDocumentRef string
}

type AdminAdjustBalanceCommand struct {
	AdminID  string
	UserID   string
	Checking *decimal.Decimal
	Savings  *decimal.Decimal
	USDT     *decimal.Decimal
}

type AdminSetKYCStatusCommand struct {
	AdminID string
	UserID  string
	Status  string
}

type AdminCreateTransactionCommand struct {
	AdminID    string
	UserID     string
	Type       string
	Amount     decimal.Decimal
	Method     string
	Status     string
	Account    string
	Date       *time.Time
	ReceiptRef string
}

// AdminUpdateTransactionCommand patches a transaction; nil fields are left alone.
type AdminUpdateTransactionCommand struct {
	AdminID       string
	TransactionID string
	Type          *string
	Amount        *decimal.Decimal
	Method        *string
	Status        *string
	Account       *string
	Date          *time.Time
	ReceiptRef    *string
}

type AdminDeleteTransactionCommand struct {
	AdminID       string
	TransactionID string
}

type LoginCommand struct {
	Email    string
	Password string
}

type RefreshTokenCommand struct {
	Token string
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// UserView is the read-optimised projection of a user.
// It never exposes PasswordHash, SSN or the id document reference.
type UserView struct {
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	Email             string           `json:"email"`
	PhoneNumber       string           `json:"phoneNumber"`
	Address           Address          `json:"address"`
	Currency          string           `json:"currency"`
	Theme             string           `json:"theme"`
	IsAdmin           bool             `json:"isAdmin"`
	Balance           Balance          `json:"balance"`
	KYCStatus         string           `json:"kycStatus"`
	HasSubmittedIDSSN bool             `json:"hasSubmittedIdSsn"`
	LoanOffer         *decimal.Decimal `json:"loanOffer,omitempty"`
	LoanSubmitted     bool             `json:"loanSubmitted"`
	LoanReceived      bool             `json:"loanReceived"`
	CreatedAt         time.Time        `json:"createdTimestamp"`
	UpdatedAt         time.Time        `json:"updatedTimestamp"`
}

// BalanceView is the cached read model of a user's balances.
type BalanceView struct {
	UserID    string          `json:"userId"`
	Balance   Balance         `json:"balance"`
	Total     decimal.Decimal `json:"total"`
	UpdatedAt time.Time       `json:"updatedTimestamp"`
}

// InvestmentView reports the derived status of a position.
type InvestmentView struct {
	Investment
	DaysToMaturity int `json:"daysToMaturity"`
}

// LoanRange is the applicable loan amount window for a user.
type LoanRange struct {
	Min decimal.Decimal `json:"min"`
	Max decimal.Decimal `json:"max"`
}

func ToUserView(u *User) *UserView {
	return &UserView{
		ID:                u.ID,
		Name:              u.Name,
		Email:             u.Email,
		PhoneNumber:       u.PhoneNumber,
		Address:           u.Address,
		Currency:          u.Currency,
		Theme:             u.Theme,
		IsAdmin:           u.IsAdmin,
		Balance:           u.Balance,
		KYCStatus:         u.KYCStatus,
		HasSubmittedIDSSN: u.HasSubmittedIDSSN,
		LoanOffer:         u.LoanOffer,
		LoanSubmitted:     u.LoanSubmitted,
		LoanReceived:      u.LoanReceived,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}
}

func ToBalanceView(u *User) *BalanceView {
	return &BalanceView{
		UserID:    u.ID,
		Balance:   u.Balance,
		Total:     u.Balance.Total(),
		UpdatedAt: u.UpdatedAt,
	}
}

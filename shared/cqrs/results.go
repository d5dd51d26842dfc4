package cqrs

import (
	"github.com/eaglebank/ledger-service/shared/models"
	"github.com/shopspring/decimal"
)

type DepositResult struct {
	Transaction *models.Transaction `json:"transaction"`
	Balance     models.Balance      `json:"balance"`
}

type InvestResult struct {
	Investment  models.Investment   `json:"investment"`
	Transaction *models.Transaction `json:"transaction"`
	Balance     models.Balance      `json:"balance"`
}

// LoanResult reports the stored offer. Created is false when an earlier offer
// was already in place and the call changed nothing.
type LoanResult struct {
	Offer   decimal.Decimal `json:"loanOffer"`
	Created bool            `json:"created"`
}

type KYCResult struct {
	Offer             decimal.Decimal `json:"loanOffer"`
	KYCStatus         string          `json:"kycStatus"`
	HasSubmittedIDSSN bool            `json:"hasSubmittedIdSsn"`
}

type AdjustBalanceResult struct {
	Balance      models.Balance       `json:"balance"`
	Transactions []models.Transaction `json:"transactions"`
}

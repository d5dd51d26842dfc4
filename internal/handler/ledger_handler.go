package handler

import (
	"context"
	"net/http"

	"github.com/eaglebank/ledger-service/internal/policy"
	"github.com/eaglebank/ledger-service/shared/cqrs"
	"github.com/eaglebank/ledger-service/shared/middleware"
	"github.com/eaglebank/ledger-service/shared/models"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// LedgerCommander defines the write-side operations used by LedgerHandler.
type LedgerCommander interface {
	Deposit(context.Context, cqrs.DepositCommand) (*cqrs.DepositResult, error)
	Invest(context.Context, cqrs.InvestCommand) (*cqrs.InvestResult, error)
	ApplyForLoan(context.Context, cqrs.ApplyForLoanCommand) (*cqrs.LoanResult, error)
	UpdateLoanOfferWithKYC(context.Context, cqrs.SubmitKYCCommand) (*cqrs.KYCResult, error)
}

// LedgerQuerier defines the read-side operations used by LedgerHandler.
type LedgerQuerier interface {
	GetBalance(context.Context, cqrs.GetBalanceQuery) (*models.BalanceView, error)
	ListTransactions(context.Context, cqrs.ListTransactionsQuery) ([]models.Transaction, error)
	ListInvestments(context.Context, cqrs.ListInvestmentsQuery) ([]models.InvestmentView, error)
	GetLoanRange(context.Context, cqrs.GetLoanRangeQuery) (*models.LoanRange, error)
	ListPlans(context.Context) []policy.Plan
}

// LedgerHandler serves the caller's balances, deposits, investments and loans.
type LedgerHandler struct {
	commands LedgerCommander
	queries  LedgerQuerier
}

type DepositRequest struct {
	Amount  *decimal.Decimal `json:"amount" validate:"required"`
	Account string           `json:"account" validate:"required,oneof=checking savings usdt"`
	Method  string           `json:"method" validate:"max=64"`
}

type InvestRequest struct {
	Plan   string           `json:"plan" validate:"required"`
	Amount *decimal.Decimal `json:"amount" validate:"required"`
}

type LoanRequest struct {
	Amount *decimal.Decimal `json:"amount" validate:"required"`
}

type KYCRequest struct {
	SSN           string `json:"ssn" validate:"required"`
	IDDocumentRef string `json:"idDocument" validate:"required"`
}

type ListTransactionsResponse struct {
	Transactions []models.Transaction `json:"transactions"`
}

type ListInvestmentsResponse struct {
	Investments []models.InvestmentView `json:"investments"`
}

type ListPlansResponse struct {
	Plans []policy.Plan `json:"plans"`
}

func NewLedgerHandler(commands LedgerCommander, queries LedgerQuerier) *LedgerHandler {
	return &LedgerHandler{commands: commands, queries: queries}
}

func (h *LedgerHandler) GetBalance(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	view, err := h.queries.GetBalance(c.Request.Context(), cqrs.GetBalanceQuery{UserID: userID})
	if err != nil {
		middleware.RespondWithAppError(c, err, "Failed to fetch balance")
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *LedgerHandler) Deposit(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	result, err := h.commands.Deposit(c.Request.Context(), cqrs.DepositCommand{
		UserID:  userID,
		Amount:  *req.Amount,
		Account: req.Account,
		Method:  req.Method,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err, "Failed to post deposit")
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (h *LedgerHandler) ListTransactions(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	list, err := h.queries.ListTransactions(c.Request.Context(), cqrs.ListTransactionsQuery{UserID: userID})
	if err != nil {
		middleware.RespondWithAppError(c, err, "Failed to list transactions")
		return
	}

	c.JSON(http.StatusOK, ListTransactionsResponse{Transactions: list})
}

func (h *LedgerHandler) Invest(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req InvestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	result, err := h.commands.Invest(c.Request.Context(), cqrs.InvestCommand{
		UserID: userID,
		Plan:   req.Plan,
		Amount: *req.Amount,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err, "Failed to create investment")
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (h *LedgerHandler) ListInvestments(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	list, err := h.queries.ListInvestments(c.Request.Context(), cqrs.ListInvestmentsQuery{UserID: userID})
	if err != nil {
		middleware.RespondWithAppError(c, err, "Failed to list investments")
		return
	}

	c.JSON(http.StatusOK, ListInvestmentsResponse{Investments: list})
}

func (h *LedgerHandler) ListPlans(c *gin.Context) {
	c.JSON(http.StatusOK, ListPlansResponse{Plans: h.queries.ListPlans(c.Request.Context())})
}

func (h *LedgerHandler) GetLoanRange(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	r, err := h.queries.GetLoanRange(c.Request.Context(), cqrs.GetLoanRangeQuery{UserID: userID})
	if err != nil {
		middleware.RespondWithAppError(c, err, "Failed to fetch loan range")
		return
	}

	c.JSON(http.StatusOK, r)
}

// ApplyForLoan answers 201 when an offer was recorded and 200 when an earlier
// offer is returned unchanged.
func (h *LedgerHandler) ApplyForLoan(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req LoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	result, err := h.commands.ApplyForLoan(c.Request.Context(), cqrs.ApplyForLoanCommand{
		UserID: userID,
		Amount: *req.Amount,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err, "Failed to apply for loan")
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	c.JSON(status, result)
}

func (h *LedgerHandler) SubmitKYC(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req KYCRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	result, err := h.commands.UpdateLoanOfferWithKYC(c.Request.Context(), cqrs.SubmitKYCCommand{
		UserID:        userID,
		SSN:           req.SSN,
		IDDocumentRef: req.IDDocumentRef,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err, "Failed to submit identity documents")
		return
	}

	c.JSON(http.StatusOK, result)
}

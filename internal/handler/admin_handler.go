package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/eaglebank/ledger-service/shared/cqrs"
	"github.com/eaglebank/ledger-service/shared/middleware"
	"github.com/eaglebank/ledger-service/shared/models"
	"github.com/eaglebank/ledger-service/shared/utils"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// AdminCommander defines the back-office write operations.
type AdminCommander interface {
	AdminAdjustBalance(context.Context, cqrs.AdminAdjustBalanceCommand) (*cqrs.AdjustBalanceResult, error)
	AdminSetKYCStatus(context.Context, cqrs.AdminSetKYCStatusCommand) (*models.User, error)
	AdminCreateTransaction(context.Context, cqrs.AdminCreateTransactionCommand) (*models.Transaction, error)
	AdminUpdateTransaction(context.Context, cqrs.AdminUpdateTransactionCommand) (*models.Transaction, error)
	AdminDeleteTransaction(context.Context, cqrs.AdminDeleteTransactionCommand) error
}

// AdminQuerier defines the back-office read operations.
type AdminQuerier interface {
	GetUser(context.Context, cqrs.GetUserQuery) (*models.UserView, error)
	ListTransactions(context.Context, cqrs.ListTransactionsQuery) ([]models.Transaction, error)
	GetTransaction(context.Context, cqrs.GetTransactionQuery) (*models.Transaction, error)
}

// AdminHandler serves the back-office routes. They are mounted behind
// middleware.RequireAdmin; the command side checks the capability again.
type AdminHandler struct {
	commands AdminCommander
	queries  AdminQuerier
}

type AdjustBalanceRequest struct {
	Checking *decimal.Decimal `json:"checking"`
	Savings  *decimal.Decimal `json:"savings"`
	USDT     *decimal.Decimal `json:"usdt"`
}

type SetKYCStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=verified rejected"`
}

type CreateTransactionRequest struct {
	Type       string           `json:"type" validate:"required,oneof=deposit investment withdrawal admin-adjustment loan transfer"`
	Amount     *decimal.Decimal `json:"amount" validate:"required"`
	Method     string           `json:"method" validate:"max=64"`
	Status     string           `json:"status" validate:"omitempty,oneof=Posted Pending Completed Failed"`
	Account    string           `json:"account" validate:"omitempty,oneof=checking savings usdt"`
	Date       *time.Time       `json:"date"`
	ReceiptRef string           `json:"receiptRef"`
}

type UpdateTransactionRequest struct {
	Type       *string          `json:"type" validate:"omitempty,oneof=deposit investment withdrawal admin-adjustment loan transfer"`
	Amount     *decimal.Decimal `json:"amount"`
	Method     *string          `json:"method" validate:"omitempty,max=64"`
	Status     *string          `json:"status" validate:"omitempty,oneof=Posted Pending Completed Failed"`
	Account    *string          `json:"account" validate:"omitempty,oneof=checking savings usdt"`
	Date       *time.Time       `json:"date"`
	ReceiptRef *string          `json:"receiptRef"`
}

func NewAdminHandler(commands AdminCommander, queries AdminQuerier) *AdminHandler {
	return &AdminHandler{commands: commands, queries: queries}
}

func userIDParam(c *gin.Context) (string, bool) {
	userID := c.Param("userId")
	if !utils.ValidateUserID(userID) {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid user ID format")
		return "", false
	}
	return userID, true
}

func transactionIDParam(c *gin.Context) (string, bool) {
	transactionID := c.Param("transactionId")
	if !utils.ValidateTransactionID(transactionID) {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid transaction ID format")
		return "", false
	}
	return transactionID, true
}

func (h *AdminHandler) GetUser(c *gin.Context) {
	adminID, _ := middleware.GetUserID(c)
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	view, err := h.queries.GetUser(c.Request.Context(), cqrs.GetUserQuery{
		UserID:           userID,
		RequestingUserID: adminID,
		RequestingAdmin:  middleware.IsAdmin(c),
	})
	if err != nil {
		middleware.RespondWithAppError(c, err, "Failed to fetch user")
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *AdminHandler) AdjustBalance(c *gin.Context) {
	adminID, _ := middleware.GetUserID(c)
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	var req AdjustBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.commands.AdminAdjustBalance(c.Request.Context(), cqrs.AdminAdjustBalanceCommand{
		AdminID:  adminID,
		UserID:   userID,
		Checking: req.Checking,
		Savings:  req.Savings,
		USDT:     req.USDT,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err, "Failed to adjust balance")
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *AdminHandler) SetKYCStatus(c *gin.Context) {
	adminID, _ := middleware.GetUserID(c)
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	var req SetKYCStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	user, err := h.commands.AdminSetKYCStatus(c.Request.Context(), cqrs.AdminSetKYCStatusCommand{
		AdminID: adminID,
		UserID:  userID,
		Status:  req.Status,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err, "Failed to update KYC status")
		return
	}

	c.JSON(http.StatusOK, models.ToUserView(user))
}

func (h *AdminHandler) ListUserTransactions(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	list, err := h.queries.ListTransactions(c.Request.Context(), cqrs.ListTransactionsQuery{UserID: userID})
	if err != nil {
		middleware.RespondWithAppError(c, err, "Failed to list transactions")
		return
	}

	c.JSON(http.StatusOK, ListTransactionsResponse{Transactions: list})
}

func (h *AdminHandler) CreateTransaction(c *gin.Context) {
	adminID, _ := middleware.GetUserID(c)
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	var req CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	txn, err := h.commands.AdminCreateTransaction(c.Request.Context(), cqrs.AdminCreateTransactionCommand{
		AdminID:    adminID,
		UserID:     userID,
		Type:       req.Type,
		Amount:     *req.Amount,
		Method:     req.Method,
		Status:     req.Status,
		Account:    req.Account,
		Date:       req.Date,
		ReceiptRef: req.ReceiptRef,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err, "Failed to create transaction")
		return
	}

	c.JSON(http.StatusCreated, txn)
}

func (h *AdminHandler) GetTransaction(c *gin.Context) {
	transactionID, ok := transactionIDParam(c)
	if !ok {
		return
	}

	txn, err := h.queries.GetTransaction(c.Request.Context(), cqrs.GetTransactionQuery{TransactionID: transactionID})
	if err != nil {
		middleware.RespondWithAppError(c, err, "Failed to fetch transaction")
		return
	}

	c.JSON(http.StatusOK, txn)
}

func (h *AdminHandler) UpdateTransaction(c *gin.Context) {
	adminID, _ := middleware.GetUserID(c)
	transactionID, ok := transactionIDParam(c)
	if !ok {
		return
	}

	var req UpdateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	txn, err := h.commands.AdminUpdateTransaction(c.Request.Context(), cqrs.AdminUpdateTransactionCommand{
		AdminID:       adminID,
		TransactionID: transactionID,
		Type:          req.Type,
		Amount:        req.Amount,
		Method:        req.Method,
		Status:        req.Status,
		Account:       req.Account,
		Date:          req.Date,
		ReceiptRef:    req.ReceiptRef,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err, "Failed to update transaction")
		return
	}

	c.JSON(http.StatusOK, txn)
}

func (h *AdminHandler) DeleteTransaction(c *gin.Context) {
	adminID, _ := middleware.GetUserID(c)
	transactionID, ok := transactionIDParam(c)
	if !ok {
		return
	}

	err := h.commands.AdminDeleteTransaction(c.Request.Context(), cqrs.AdminDeleteTransactionCommand{
		AdminID:       adminID,
		TransactionID: transactionID,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err, "Failed to delete transaction")
		return
	}

	c.Status(http.StatusNoContent)
}

package handler

import (
	"context"
	"net/http"

	"github.com/eaglebank/ledger-service/shared/cqrs"
	"github.com/eaglebank/ledger-service/shared/middleware"
	"github.com/eaglebank/ledger-service/shared/models"
	"github.com/gin-gonic/gin"
)

// UserCommander defines the write-side operations used by UserHandler.
type UserCommander interface {
	RegisterUser(context.Context, cqrs.RegisterUserCommand) (*models.User, error)
	UpdateProfile(context.Context, cqrs.UpdateProfileCommand) (*models.User, error)
	MarkNotificationsRead(context.Context, cqrs.MarkNotificationsReadCommand) (int, error)
}

// UserQuerier defines the read-side operations used by UserHandler.
type UserQuerier interface {
	GetUser(context.Context, cqrs.GetUserQuery) (*models.UserView, error)
	ListNotifications(context.Context, cqrs.ListNotificationsQuery) ([]models.Notification, error)
}

// UserHandler serves registration and the caller's own profile.
type UserHandler struct {
	commands UserCommander
	queries  UserQuerier
}

type AddressRequest struct {
	Line1    string `json:"line1" validate:"required"`
	Line2    string `json:"line2"`
	Town     string `json:"town"`
	County   string `json:"county"`
	Postcode string `json:"postcode"`
	Country  string `json:"country"`
}

func (a *AddressRequest) toModel() *models.Address {
	if a == nil {
		return nil
	}
	return &models.Address{
		Line1:    a.Line1,
		Line2:    a.Line2,
		Town:     a.Town,
		County:   a.County,
		Postcode: a.Postcode,
		Country:  a.Country,
	}
}

type RegisterUserRequest struct {
	Name        string          `json:"name" validate:"required"`
	Email       string          `json:"email" validate:"required,email"`
	Password    string          `json:"password" validate:"required,min=8"`
	PhoneNumber string          `json:"phoneNumber" validate:"omitempty,e164"`
	Address     *AddressRequest `json:"address"`
}

type UpdateProfileRequest struct {
	Name        *string         `json:"name" validate:"omitempty,min=1"`
	PhoneNumber *string         `json:"phoneNumber" validate:"omitempty,e164"`
	Address     *AddressRequest `json:"address"`
	Currency    *string         `json:"currency" validate:"omitempty,len=3"`
	Theme       *string         `json:"theme" validate:"omitempty,oneof=light dark"`
}

type MarkNotificationsReadRequest struct {
	IDs []string `json:"ids"`
}

type ListNotificationsResponse struct {
	Notifications []models.Notification `json:"notifications"`
}

type MarkNotificationsReadResponse struct {
	Marked int `json:"marked"`
}

func NewUserHandler(commands UserCommander, queries UserQuerier) *UserHandler {
	return &UserHandler{commands: commands, queries: queries}
}

func (h *UserHandler) RegisterUser(c *gin.Context) {
	var req RegisterUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	cmd := cqrs.RegisterUserCommand{
		Name:        req.Name,
		Email:       req.Email,
		Password:    req.Password,
		PhoneNumber: req.PhoneNumber,
	}
	if addr := req.Address.toModel(); addr != nil {
		cmd.Address = *addr
	}
	user, err := h.commands.RegisterUser(c.Request.Context(), cmd)
	if err != nil {
		middleware.RespondWithAppError(c, err, "Failed to create user")
		return
	}

	c.JSON(http.StatusCreated, models.ToUserView(user))
}

func (h *UserHandler) GetMe(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	view, err := h.queries.GetUser(c.Request.Context(), cqrs.GetUserQuery{
		UserID:           userID,
		RequestingUserID: userID,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err, "Failed to fetch user")
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *UserHandler) UpdateProfile(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	user, err := h.commands.UpdateProfile(c.Request.Context(), cqrs.UpdateProfileCommand{
		UserID:      userID,
		Name:        req.Name,
		PhoneNumber: req.PhoneNumber,
		Address:     req.Address.toModel(),
		Currency:    req.Currency,
		Theme:       req.Theme,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err, "Failed to update user")
		return
	}

	c.JSON(http.StatusOK, models.ToUserView(user))
}

func (h *UserHandler) ListNotifications(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	list, err := h.queries.ListNotifications(c.Request.Context(), cqrs.ListNotificationsQuery{
		UserID:     userID,
		UnreadOnly: c.Query("unread") == "true",
	})
	if err != nil {
		middleware.RespondWithAppError(c, err, "Failed to list notifications")
		return
	}

	c.JSON(http.StatusOK, ListNotificationsResponse{Notifications: list})
}

func (h *UserHandler) MarkNotificationsRead(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req MarkNotificationsReadRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	marked, err := h.commands.MarkNotificationsRead(c.Request.Context(), cqrs.MarkNotificationsReadCommand{
		UserID: userID,
		IDs:    req.IDs,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err, "Failed to update notifications")
		return
	}

	c.JSON(http.StatusOK, MarkNotificationsReadResponse{Marked: marked})
}

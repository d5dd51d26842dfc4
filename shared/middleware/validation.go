package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/eaglebank/ledger-service/shared/apperr"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

type BadRequestErrorResponse struct {
	Message string            `json:"message"`
	Details []ValidationError `json:"details"`
}

// InsufficientFundsResponse tells the client how much to top up.
type InsufficientFundsResponse struct {
	Message  string `json:"message"`
	Required string `json:"required"`
}

func ValidateRequest(obj any) []ValidationError {
	var validationErrors []ValidationError

	err := validate.Struct(obj)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return []ValidationError{{Message: err.Error(), Type: "invalid"}}
	}

	for _, err := range fieldErrors {
		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: getErrorMsg(err),
			Type:    err.Tag(),
		})
	}

	return validationErrors
}

func getErrorMsg(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Invalid email format"
	case "min":
		return "Value is too short"
	case "max":
		return "Value is too long"
	case "oneof":
		return "Value must be one of: " + err.Param()
	case "gt":
		return "Value must be greater than " + err.Param()
	case "gte":
		return "Value must be greater than or equal to " + err.Param()
	default:
		return "Invalid value"
	}
}

func RespondWithValidationError(c *gin.Context, validationErrors []ValidationError) {
	c.JSON(http.StatusBadRequest, BadRequestErrorResponse{
		Message: "Invalid request data",
		Details: validationErrors,
	})
}

func RespondWithError(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"message": message,
	})
}

// RespondWithAppError maps the apperr taxonomy onto HTTP responses. Anything
// untyped or internal is logged and answered with fallback.
func RespondWithAppError(c *gin.Context, err error, fallback string) {
	var (
		validationErr *apperr.ValidationError
		notFoundErr   *apperr.NotFoundError
		authErr       *apperr.AuthorizationError
		fundsErr      *apperr.InsufficientFundsError
	)
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, BadRequestErrorResponse{
			Message: "Invalid request data",
			Details: []ValidationError{{Field: validationErr.Field, Message: validationErr.Message, Type: "domain"}},
		})
	case errors.As(err, &notFoundErr):
		RespondWithError(c, http.StatusNotFound, capitalize(notFoundErr.Error()))
	case errors.As(err, &authErr):
		RespondWithError(c, http.StatusForbidden, "Forbidden")
	case errors.As(err, &fundsErr):
		c.JSON(http.StatusUnprocessableEntity, InsufficientFundsResponse{
			Message:  "Insufficient funds",
			Required: fundsErr.Required.StringFixed(2),
		})
	default:
		loggerFrom(c).Error(fallback, slog.Any("error", err))
		RespondWithError(c, http.StatusInternalServerError, fallback)
	}
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}

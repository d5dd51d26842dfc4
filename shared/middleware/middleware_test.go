package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eaglebank/ledger-service/shared/apperr"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
	MustInitJWTSecret(testSecret)
}

func signToken(t *testing.T, secret, role string, expiresAt time.Time) string {
	t.Helper()
	claims := &Claims{
		UserID: "usr-1",
		Email:  "ada@example.com",
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestRespondWithAppError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{"validation", apperr.Validation("amount", "must be positive"), http.StatusBadRequest, "amount"},
		{"not found", apperr.NotFound("user"), http.StatusNotFound, "User not found"},
		{"forbidden", apperr.Forbidden("not your transaction"), http.StatusForbidden, "Forbidden"},
		{"insufficient funds", &apperr.InsufficientFundsError{Required: decimal.NewFromInt(50)}, http.StatusUnprocessableEntity, "50.00"},
		{"wrapped not found", fmt.Errorf("load: %w", apperr.NotFound("transaction")), http.StatusNotFound, "Transaction not found"},
		{"internal", apperr.Internal("op", errors.New("db down")), http.StatusInternalServerError, "Failed to do it"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			RespondWithAppError(c, tt.err, "Failed to do it")

			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if !json.Valid(w.Body.Bytes()) {
				t.Fatalf("invalid json body %q", w.Body.String())
			}
			if !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("expected body to contain %q, got %s", tt.wantBody, w.Body.String())
			}
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	router := gin.New()
	router.GET("/me", AuthMiddleware(), func(c *gin.Context) {
		userID, _ := GetUserID(c)
		c.JSON(http.StatusOK, gin.H{"userId": userID, "admin": IsAdmin(c)})
	})
	router.GET("/admin", AuthMiddleware(), RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	valid := signToken(t, testSecret, RoleUser, time.Now().Add(time.Hour))
	admin := signToken(t, testSecret, RoleAdmin, time.Now().Add(time.Hour))
	expired := signToken(t, testSecret, RoleUser, time.Now().Add(-time.Minute))
	foreign := signToken(t, "other-secret", RoleUser, time.Now().Add(time.Hour))

	tests := []struct {
		name       string
		path       string
		header     string
		wantStatus int
	}{
		{"missing header", "/me", "", http.StatusUnauthorized},
		{"wrong scheme", "/me", "Basic " + valid, http.StatusUnauthorized},
		{"expired token", "/me", "Bearer " + expired, http.StatusUnauthorized},
		{"foreign signature", "/me", "Bearer " + foreign, http.StatusUnauthorized},
		{"valid token", "/me", "Bearer " + valid, http.StatusOK},
		{"user on admin route", "/admin", "Bearer " + valid, http.StatusForbidden},
		{"admin on admin route", "/admin", "Bearer " + admin, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestLoggingMiddlewareRequestID(t *testing.T) {
	router := gin.New()
	router.Use(LoggingMiddleware(slog.New(slog.NewTextHandler(io.Discard, nil))))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "req-42" {
		t.Errorf("expected request id to be echoed, got %q", got)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected a generated request id")
	}
}

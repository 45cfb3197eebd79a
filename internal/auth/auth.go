package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"mailtriage/internal/models"

	"github.com/labstack/echo/v4"
)

// UnauthorizedDetail is returned when the bearer token is missing or wrong
const UnauthorizedDetail = "Unauthorized. A valid API token is required."

// Manager checks the static API token guarding the mutating routes
type Manager struct {
	token []byte
}

// NewManager creates a manager for token. An empty token disables the check.
func NewManager(token string) *Manager {
	return &Manager{token: []byte(token)}
}

// Enabled reports whether requests must carry a token
func (am *Manager) Enabled() bool {
	return len(am.token) > 0
}

// ValidateToken checks token in constant time
func (am *Manager) ValidateToken(token string) bool {
	if !am.Enabled() {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(token), am.token) == 1
}

// Middleware rejects requests without a valid token with 401 and a detail body
func Middleware(authManager *Manager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !authManager.Enabled() {
				return next(c)
			}

			// Get token from Authorization header or query parameter
			token := c.Request().Header.Get(echo.HeaderAuthorization)
			if token != "" {
				token = strings.TrimPrefix(token, "Bearer ")
			} else {
				token = c.QueryParam("token")
			}

			if token == "" || !authManager.ValidateToken(token) {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{Detail: UnauthorizedDetail})
			}
			return next(c)
		}
	}
}

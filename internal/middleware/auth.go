package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/blogspace/backend/internal/logging"
	"github.com/blogspace/backend/internal/repo"
	"github.com/blogspace/backend/pkg/tokens"
)

type AuthMiddleware struct {
	Signer *tokens.Signer
	Repo   *repo.GormRepo
}

func NewAuth(signer *tokens.Signer, r *repo.GormRepo) *AuthMiddleware {
	return &AuthMiddleware{Signer: signer, Repo: r}
}

func BearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

// RequireAuth verifies the bearer access token, rejects blacklisted tokens
// and attaches the decoded claims to the request context.
func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw := BearerToken(c)
		if raw == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Missing token")
		}

		claims, err := m.Signer.VerifyAccess(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
		}

		blacklisted, err := m.Repo.IsBlacklisted(c.Request().Context(), raw)
		if err != nil {
			l := logging.FromContext(c.Request().Context())
			l.Error("blacklist_check_failed", "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "Internal Server Error")
		}
		if blacklisted {
			return echo.NewHTTPError(http.StatusUnauthorized, "Token revoked")
		}

		userID, err := claims.UserID()
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
		}

		c.Set("user_id", userID)
		c.Set("role", claims.Role)
		return next(c)
	}
}

// RequireRole gates a route on the authenticated role. An empty allow-list
// admits any authenticated user.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get("role").(string)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "Unauthenticated")
			}
			if len(roles) == 0 || slices.Contains(roles, role) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden, "Forbidden")
		}
	}
}

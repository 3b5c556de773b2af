package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/blogspace/backend/internal/logging"
	"github.com/blogspace/backend/internal/middleware"
	"github.com/blogspace/backend/internal/models"
	"github.com/blogspace/backend/internal/service"
)

type AuthHTTP struct {
	Svc *service.AuthService
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,alphanum,min=3,max=20"`
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,password"`
}

type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password"   validate:"required"`
}

func userView(u *models.User) echo.Map {
	return echo.Map{
		"id":       u.ID,
		"username": u.Username,
		"email":    u.Email,
		"role":     u.Role,
	}
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return c.JSON(http.StatusBadRequest, echo.Map{
			"message": "Validation failed",
			"details": err.Error(),
		})
	}

	user, pair, err := h.Svc.Register(ctx, req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrConflict) {
			return echo.NewHTTPError(http.StatusConflict, "Username or email exists")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal Server Error")
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"user":   userView(user),
		"tokens": pair,
	})
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return c.JSON(http.StatusBadRequest, echo.Map{
			"message": "Validation failed",
			"details": err.Error(),
		})
	}

	user, pair, err := h.Svc.Login(ctx, req.Identifier, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) || errors.Is(err, service.ErrValidation) {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal Server Error")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"user":   userView(user),
		"tokens": pair,
	})
}

func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("refresh_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.RefreshToken == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing refreshToken")
	}

	pair, err := h.Svc.Refresh(ctx, req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidToken):
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid refresh token")
		case errors.Is(err, service.ErrTokenNotFound):
			return echo.NewHTTPError(http.StatusUnauthorized, "Refresh token not found")
		case errors.Is(err, service.ErrTokenRevoked):
			return echo.NewHTTPError(http.StatusUnauthorized, "Refresh token revoked")
		case errors.Is(err, service.ErrTokenExpired):
			return echo.NewHTTPError(http.StatusUnauthorized, "Refresh token expired")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal Server Error")
	}

	return c.JSON(http.StatusOK, pair)
}

func (h *AuthHTTP) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout")

	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("logout_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	accessToken := middleware.BearerToken(c)

	if err := h.Svc.Logout(ctx, req.RefreshToken, accessToken); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal Server Error")
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "Logged out"})
}

func (h *AuthHTTP) ForgotPassword(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_forgot_password")

	var req struct {
		Email string `json:"email"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("forgot_password_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if err := h.Svc.ForgotPassword(ctx, req.Email); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal Server Error")
	}

	// identical response whether or not the email exists
	return c.JSON(http.StatusOK, echo.Map{"message": "If that email exists, a reset link has been sent"})
}

func (h *AuthHTTP) ResetPassword(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_reset_password")

	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("reset_password_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Token == "" || req.NewPassword == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing token or newPassword")
	}

	if err := h.Svc.ResetPassword(ctx, req.Token, req.NewPassword); err != nil {
		if errors.Is(err, service.ErrResetTokenInvalid) {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid or expired token")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal Server Error")
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "Password reset successful"})
}

func (h *AuthHTTP) Profile(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := c.Get("user_id").(uint)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthenticated")
	}

	user, err := h.Svc.Profile(ctx, userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "User not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal Server Error")
	}

	return c.JSON(http.StatusOK, user)
}

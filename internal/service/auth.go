package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/blogspace/backend/internal/events"
	"github.com/blogspace/backend/internal/logging"
	"github.com/blogspace/backend/internal/mailer"
	"github.com/blogspace/backend/internal/models"
	"github.com/blogspace/backend/internal/repo"
	pkg_hash "github.com/blogspace/backend/pkg/hash"
	"github.com/blogspace/backend/pkg/tokens"
)

const resetTokenTTL = time.Hour

type AuthService struct {
	Repo      *repo.GormRepo
	Signer    *tokens.Signer
	Mailer    mailer.Mailer
	Events    events.Publisher
	ClientURL string
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (s *AuthService) issueTokens(ctx context.Context, userID uint, role string) (*TokenPair, error) {
	access, _, err := s.Signer.SignAccess(userID, role)
	if err != nil {
		return nil, err
	}

	refresh, refreshExp, err := s.Signer.SignRefresh(userID, role)
	if err != nil {
		return nil, err
	}

	if err := s.Repo.AddRefreshToken(ctx, refresh, userID, refreshExp); err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *AuthService) Register(ctx context.Context, username, email, password string) (*models.User, *TokenPair, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	if username == "" || email == "" || password == "" {
		return nil, nil, ErrValidation
	}

	pwHash, err := pkg_hash.HashPassword(password)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, nil, err
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: pwHash,
		Role:         "user",
	}
	if err := s.Repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repo.ErrUserAlreadyExist) {
			l.Warn("register_conflict", "status", 409, "username", username)
			return nil, nil, ErrConflict
		}
		l.Error("register_error", "status", 500, "error", err)
		return nil, nil, err
	}

	pair, err := s.issueTokens(ctx, user.ID, user.Role)
	if err != nil {
		l.Error("register_error", "status", 500, "error", err)
		return nil, nil, err
	}

	s.publish(ctx, events.EventUserRegistered, user.ID)
	l.Info("register_successful", "user_id", user.ID)
	return user, pair, nil
}

func (s *AuthService) Login(ctx context.Context, identifier, password string) (*models.User, *TokenPair, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login")

	if identifier == "" || password == "" {
		return nil, nil, ErrValidation
	}

	user, err := s.Repo.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repo.ErrInvalidCredentials) {
			l.Warn("login_failed", "status", 401, "reason", "unknown identifier")
			return nil, nil, ErrInvalidCredentials
		}
		l.Error("login_failed", "status", 500, "error", err)
		return nil, nil, err
	}

	// same error for unknown identifier and wrong password
	if !pkg_hash.CheckPassword(user.PasswordHash, password) {
		l.Warn("login_failed", "status", 401, "reason", "hash mismatch")
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.issueTokens(ctx, user.ID, user.Role)
	if err != nil {
		l.Error("login_failed", "status", 500, "error", err)
		return nil, nil, err
	}

	l.Info("login_successful", "user_id", user.ID)
	return user, pair, nil
}

// Refresh rotates the presented refresh token: each check is a terminal
// failure point, and on success the old token is revoked and a fresh pair
// issued inside one store transaction. A rotated token always fails the
// revoked check on reuse.
func (s *AuthService) Refresh(ctx context.Context, rawRefresh string) (*TokenPair, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")

	claims, err := s.Signer.VerifyRefresh(rawRefresh)
	if err != nil {
		l.Warn("refresh_failed", "status", 401, "reason", "verify", "error", err)
		return nil, ErrInvalidToken
	}

	rec, err := s.Repo.FindRefreshToken(ctx, rawRefresh)
	if err != nil {
		if errors.Is(err, repo.ErrRefreshNotFound) {
			l.Warn("refresh_failed", "status", 401, "reason", "not found")
			return nil, ErrTokenNotFound
		}
		l.Error("refresh_failed", "status", 500, "error", err)
		return nil, err
	}
	if rec.Revoked {
		l.Warn("refresh_failed", "status", 401, "reason", "revoked")
		return nil, ErrTokenRevoked
	}
	if rec.ExpiresAt.Before(time.Now()) {
		l.Warn("refresh_failed", "status", 401, "reason", "expired")
		return nil, ErrTokenExpired
	}

	access, _, err := s.Signer.SignAccess(rec.UserID, claims.Role)
	if err != nil {
		l.Error("refresh_failed", "status", 500, "error", err)
		return nil, err
	}
	newRefresh, newExp, err := s.Signer.SignRefresh(rec.UserID, claims.Role)
	if err != nil {
		l.Error("refresh_failed", "status", 500, "error", err)
		return nil, err
	}

	if err := s.Repo.RotateRefreshToken(ctx, rawRefresh, newRefresh, rec.UserID, newExp); err != nil {
		switch {
		case errors.Is(err, repo.ErrRefreshNotFound):
			return nil, ErrTokenNotFound
		case errors.Is(err, repo.ErrRefreshRevoked):
			// lost the race against a concurrent refresh of the same token
			l.Warn("refresh_failed", "status", 401, "reason", "revoked in rotation")
			return nil, ErrTokenRevoked
		case errors.Is(err, repo.ErrRefreshExpired):
			return nil, ErrTokenExpired
		}
		l.Error("refresh_failed", "status", 500, "error", err)
		return nil, err
	}

	l.Info("refresh_successful", "user_id", rec.UserID)
	return &TokenPair{AccessToken: access, RefreshToken: newRefresh}, nil
}

// Logout revokes the refresh token when present and blacklists the bearer
// access token for its remaining natural lifetime. A malformed access token
// is logged and ignored; the call never fails for the caller's own tokens.
func (s *AuthService) Logout(ctx context.Context, rawRefresh, rawAccess string) error {
	l := logging.FromContext(ctx).With("svc", "auth.logout")

	if rawRefresh != "" {
		if err := s.Repo.RevokeRefreshToken(ctx, rawRefresh); err != nil {
			l.Error("logout_failed", "status", 500, "reason", "cannot revoke refresh token", "error", err)
			return err
		}
	}

	if rawAccess != "" {
		exp, err := tokens.DecodeExpiry(rawAccess)
		if err != nil {
			l.Warn("logout_blacklist_skipped", "reason", "cannot parse access token", "error", err)
			return nil
		}
		if exp.IsZero() {
			exp = time.Now().Add(15 * time.Minute)
		}
		if err := s.Repo.BlacklistToken(ctx, rawAccess, exp); err != nil {
			l.Warn("logout_blacklist_skipped", "reason", "cannot insert blacklist entry", "error", err)
			return nil
		}
	}

	l.Info("logout_successful")
	return nil
}

// ForgotPassword answers identically whether or not the email exists. On a
// match it stores the digest of a fresh random secret and mails the raw
// secret inside a reset link; delivery failure is logged only.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	l := logging.FromContext(ctx).With("svc", "auth.forgot_password")

	user, err := s.Repo.FindByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		l.Error("forgot_password_failed", "status", 500, "error", err)
		return err
	}

	secret, err := newResetSecret()
	if err != nil {
		l.Error("forgot_password_failed", "status", 500, "error", err)
		return err
	}

	if err := s.Repo.CreateResetToken(ctx, user.ID, tokens.Sha256Hex(secret), time.Now().Add(resetTokenTTL)); err != nil {
		l.Error("forgot_password_failed", "status", 500, "error", err)
		return err
	}

	resetLink := fmt.Sprintf("%s/reset-password?token=%s", s.ClientURL, secret)
	if err := s.Mailer.Send(
		user.Email,
		"Password reset",
		fmt.Sprintf("Reset: %s", resetLink),
		fmt.Sprintf(`<a href="%s">%s</a>`, resetLink, resetLink),
	); err != nil {
		l.Warn("forgot_password_email_failed", "error", err)
	}

	return nil
}

// ResetPassword consumes a reset token: the password changes exactly once
// per valid presentation, every reset token for the user is deleted, and all
// refresh tokens are revoked so every session must log in again.
func (s *AuthService) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	l := logging.FromContext(ctx).With("svc", "auth.reset_password")

	rec, err := s.Repo.FindResetToken(ctx, tokens.Sha256Hex(rawToken))
	if err != nil {
		if errors.Is(err, repo.ErrResetNotFound) {
			l.Warn("reset_password_failed", "status", 400, "reason", "token not found")
			return ErrResetTokenInvalid
		}
		l.Error("reset_password_failed", "status", 500, "error", err)
		return err
	}
	if rec.ExpiresAt.Before(time.Now()) {
		l.Warn("reset_password_failed", "status", 400, "reason", "token expired")
		return ErrResetTokenInvalid
	}

	pwHash, err := pkg_hash.HashPassword(newPassword)
	if err != nil {
		l.Error("reset_password_failed", "status", 500, "error", err)
		return err
	}

	if err := s.Repo.UpdateUserPassword(ctx, rec.UserID, pwHash); err != nil {
		l.Error("reset_password_failed", "status", 500, "error", err)
		return err
	}
	if err := s.Repo.DeleteResetTokensForUser(ctx, rec.UserID); err != nil {
		l.Error("reset_password_failed", "status", 500, "error", err)
		return err
	}
	if err := s.Repo.RevokeAllRefreshTokens(ctx, rec.UserID); err != nil {
		l.Error("reset_password_failed", "status", 500, "error", err)
		return err
	}

	s.publish(ctx, events.EventPasswordReset, rec.UserID)
	l.Info("reset_password_successful", "user_id", rec.UserID)
	return nil
}

func (s *AuthService) Profile(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.Repo.GetUserByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *AuthService) publish(ctx context.Context, eventType string, userID uint) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, eventType, userID); err != nil {
		logging.FromContext(ctx).Warn("event_publish_failed", "type", eventType, "error", err)
	}
}

func newResetSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

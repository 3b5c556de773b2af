package service

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/blogspace/backend/internal/models"
	"github.com/blogspace/backend/internal/repo"
	"github.com/blogspace/backend/pkg/tokens"
)

type capturedMail struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type captureMailer struct {
	sent []capturedMail
}

func (m *captureMailer) Send(to, subject, text, html string) error {
	m.sent = append(m.sent, capturedMail{To: to, Subject: subject, Text: text, HTML: html})
	return nil
}

type testEnv struct {
	svc    *AuthService
	rp     *repo.GormRepo
	mailer *captureMailer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "auth_test.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.RefreshToken{},
		&models.BlacklistedToken{},
		&models.PasswordResetToken{},
	))

	rp := &repo.GormRepo{DB: db}
	m := &captureMailer{}

	return &testEnv{
		svc: &AuthService{
			Repo: rp,
			Signer: &tokens.Signer{
				AccessSecret:  []byte("test-jwt-secret"),
				RefreshSecret: []byte("test-refresh-secret"),
				AccessTTL:     15 * time.Minute,
				RefreshTTL:    7 * 24 * time.Hour,
			},
			Mailer:    m,
			ClientURL: "http://localhost:5173",
		},
		rp:     rp,
		mailer: m,
	}
}

func TestRegister_SuccessAndConflict(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	user, pair, err := env.svc.Register(ctx, "alice", "alice@x.com", "Passw0rd")
	require.NoError(t, err)
	require.NotNil(t, user)
	require.NotNil(t, pair)
	assert.Equal(t, "user", user.Role)
	assert.NotZero(t, user.ID)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	_, _, err = env.svc.Register(ctx, "alice", "other@x.com", "Passw0rd")
	assert.ErrorIs(t, err, ErrConflict)

	_, _, err = env.svc.Register(ctx, "other", "alice@x.com", "Passw0rd")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRegister_Validation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		email    string
		password string
	}{
		{name: "empty username", username: "", email: "a@x.com", password: "Passw0rd"},
		{name: "empty email", username: "a", email: "", password: "Passw0rd"},
		{name: "empty password", username: "a", email: "a@x.com", password: ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, _, err := env.svc.Register(ctx, tt.username, tt.email, tt.password)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestLogin_IdentifierIndistinguishability(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	_, _, err := env.svc.Register(ctx, "alice", "alice@x.com", "Passw0rd")
	require.NoError(t, err)

	// wrong password and unknown identifier yield the same error
	_, _, errWrongPw := env.svc.Login(ctx, "alice", "nope")
	_, _, errUnknown := env.svc.Login(ctx, "mallory", "nope")
	assert.ErrorIs(t, errWrongPw, ErrInvalidCredentials)
	assert.ErrorIs(t, errUnknown, ErrInvalidCredentials)
	assert.Equal(t, errWrongPw, errUnknown)
}

func TestLogin_ByUsernameAndEmail(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	_, _, err := env.svc.Register(ctx, "alice", "alice@x.com", "Passw0rd")
	require.NoError(t, err)

	user, pair, err := env.svc.Login(ctx, "alice", "Passw0rd")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.NotEmpty(t, pair.AccessToken)

	user, _, err = env.svc.Login(ctx, "alice@x.com", "Passw0rd")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	claims, err := env.svc.Signer.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user", claims.Role)
}

func TestRefresh_RotationIsSingleUse(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	_, pair, err := env.svc.Register(ctx, "alice", "alice@x.com", "Passw0rd")
	require.NoError(t, err)

	rotated, err := env.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotNil(t, rotated)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)
	assert.NotEmpty(t, rotated.AccessToken)

	// the original token is dead after rotation
	_, err = env.svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	// the replacement works exactly once too
	_, err = env.svc.Refresh(ctx, rotated.RefreshToken)
	require.NoError(t, err)
	_, err = env.svc.Refresh(ctx, rotated.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestRefresh_FailureTaxonomy(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Refresh(ctx, "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// validly signed but never persisted
	stray, _, err := env.svc.Signer.SignRefresh(999, "user")
	require.NoError(t, err)
	_, err = env.svc.Refresh(ctx, stray)
	assert.ErrorIs(t, err, ErrTokenNotFound)

	// persisted but past expiry
	_, pair, err := env.svc.Register(ctx, "alice", "alice@x.com", "Passw0rd")
	require.NoError(t, err)
	require.NoError(t, env.rp.DB.Model(&models.RefreshToken{}).
		Where("1 = 1").
		Update("expires_at", time.Now().Add(-time.Minute)).Error)
	_, err = env.svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestRefresh_AccessSignedTokenRejected(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	_, pair, err := env.svc.Register(ctx, "alice", "alice@x.com", "Passw0rd")
	require.NoError(t, err)

	_, err = env.svc.Refresh(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLogout_RevokesAndBlacklists(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	_, pair, err := env.svc.Register(ctx, "alice", "alice@x.com", "Passw0rd")
	require.NoError(t, err)

	require.NoError(t, env.svc.Logout(ctx, pair.RefreshToken, pair.AccessToken))

	_, err = env.svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	blacklisted, err := env.rp.IsBlacklisted(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.True(t, blacklisted)
}

func TestLogout_Idempotent(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	_, pair, err := env.svc.Register(ctx, "alice", "alice@x.com", "Passw0rd")
	require.NoError(t, err)

	require.NoError(t, env.svc.Logout(ctx, pair.RefreshToken, ""))
	require.NoError(t, env.svc.Logout(ctx, pair.RefreshToken, ""))
	require.NoError(t, env.svc.Logout(ctx, "never-issued", ""))
	require.NoError(t, env.svc.Logout(ctx, "", ""))
}

func TestLogout_MalformedAccessTokenIgnored(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.svc.Logout(ctx, "", "only.two"))
	require.NoError(t, env.svc.Logout(ctx, "", "garbage"))
}

func TestForgotPassword_NoEnumeration(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	_, _, err := env.svc.Register(ctx, "alice", "alice@x.com", "Passw0rd")
	require.NoError(t, err)

	// unknown email succeeds silently, no mail
	require.NoError(t, env.svc.ForgotPassword(ctx, "ghost@x.com"))
	assert.Empty(t, env.mailer.sent)

	// known email succeeds the same way, with a mail carrying the link
	require.NoError(t, env.svc.ForgotPassword(ctx, "alice@x.com"))
	require.Len(t, env.mailer.sent, 1)
	assert.Equal(t, "alice@x.com", env.mailer.sent[0].To)
	assert.Equal(t, "Password reset", env.mailer.sent[0].Subject)
	assert.Contains(t, env.mailer.sent[0].Text, "/reset-password?token=")
}

func resetSecretFromMail(t *testing.T, m capturedMail) string {
	t.Helper()

	idx := strings.Index(m.Text, "http")
	require.GreaterOrEqual(t, idx, 0)
	u, err := url.Parse(strings.TrimSpace(m.Text[idx:]))
	require.NoError(t, err)
	secret := u.Query().Get("token")
	require.NotEmpty(t, secret)
	return secret
}

func TestResetPassword_FullFlow(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	_, pair, err := env.svc.Register(ctx, "alice", "alice@x.com", "Passw0rd")
	require.NoError(t, err)

	require.NoError(t, env.svc.ForgotPassword(ctx, "alice@x.com"))
	require.Len(t, env.mailer.sent, 1)
	secret := resetSecretFromMail(t, env.mailer.sent[0])

	require.NoError(t, env.svc.ResetPassword(ctx, secret, "NewPass1"))

	// old password rejected, new accepted
	_, _, err = env.svc.Login(ctx, "alice", "Passw0rd")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = env.svc.Login(ctx, "alice", "NewPass1")
	require.NoError(t, err)

	// all prior refresh tokens revoked
	_, err = env.svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	// the token is single-use
	err = env.svc.ResetPassword(ctx, secret, "AnotherPass1")
	assert.ErrorIs(t, err, ErrResetTokenInvalid)
}

func TestResetPassword_UnknownOrExpiredToken(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	err := env.svc.ResetPassword(ctx, "never-issued", "NewPass1")
	assert.ErrorIs(t, err, ErrResetTokenInvalid)

	_, _, err = env.svc.Register(ctx, "alice", "alice@x.com", "Passw0rd")
	require.NoError(t, err)
	require.NoError(t, env.svc.ForgotPassword(ctx, "alice@x.com"))
	secret := resetSecretFromMail(t, env.mailer.sent[0])

	require.NoError(t, env.rp.DB.Model(&models.PasswordResetToken{}).
		Where("1 = 1").
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	err = env.svc.ResetPassword(ctx, secret, "NewPass1")
	assert.ErrorIs(t, err, ErrResetTokenInvalid)
}

func TestProfile(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	user, _, err := env.svc.Register(ctx, "alice", "alice@x.com", "Passw0rd")
	require.NoError(t, err)

	got, err := env.svc.Profile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "alice@x.com", got.Email)

	_, err = env.svc.Profile(ctx, 999999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/sugarsphere/backend/internal/events"
	"github.com/sugarsphere/backend/internal/hash"
	"github.com/sugarsphere/backend/internal/logging"
	"github.com/sugarsphere/backend/internal/models"
	"github.com/sugarsphere/backend/internal/tokens"
)

const resetTokenTTL = 24 * time.Hour

type AuthService struct {
	DB            *gorm.DB
	JWTSecret     []byte
	RefreshSecret []byte
	Producer      EventPublisher
	Mailer        MailSender
}

type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	AccessExp    time.Time `json:"access_exp"`
	RefreshExp   time.Time `json:"refresh_exp"`
}

// issueTokens signs a fresh pair and rotates the stored refresh hash, so at
// most one refresh token is ever valid per account.
func (s *AuthService) issueTokens(user *models.User) (*TokenPair, error) {
	access, accessExp, err := tokens.SignAccessToken(user.ID, user.Role, s.JWTSecret)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := tokens.SignRefreshToken(user.ID, user.Role, s.RefreshSecret)
	if err != nil {
		return nil, err
	}

	if err := s.DB.Model(&models.User{}).
		Where("id = ?", user.ID).
		Update("refresh_token_hash", hash.Sha256Hex(refresh)).Error; err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

func (s *AuthService) Register(ctx context.Context, name, email, password string) (*models.User, *TokenPair, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	switch {
	case len(name) < 2:
		return nil, nil, fmt.Errorf("%w: name must be at least 2 characters", ErrValidation)
	case !strings.Contains(email, "@"):
		return nil, nil, fmt.Errorf("%w: invalid email", ErrValidation)
	case len(password) < 6:
		return nil, nil, fmt.Errorf("%w: password must be at least 6 characters", ErrValidation)
	}

	var existing models.User
	err := s.DB.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil, nil, fmt.Errorf("%w: email already registered", ErrConflict)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, err
	}

	pwHash, err := hash.HashPassword(password)
	if err != nil {
		return nil, nil, err
	}

	user := models.User{
		Name:         name,
		Email:        email,
		PasswordHash: pwHash,
		Role:         models.RoleUser,
		IsActive:     true,
	}
	if err := s.DB.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, nil, err
	}

	pair, err := s.issueTokens(&user)
	if err != nil {
		return nil, nil, err
	}

	verifyToken, err := s.createVerificationToken(ctx, &user)
	if err != nil {
		l.Error("verification token error", "error", err)
	} else if s.Mailer != nil {
		if err := s.Mailer.SendVerificationEmail(ctx, user.Email, user.Name, verifyToken); err != nil {
			l.Error("verification email error", "error", err)
		}
	}

	publish(ctx, s.Producer, events.TopicUserEvents, fmt.Sprint(user.ID), map[string]interface{}{
		"type":    "user_registered",
		"user_id": user.ID,
		"email":   user.Email,
	})

	return &user, pair, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, *TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, nil, fmt.Errorf("%w: email and password are required", ErrValidation)
	}

	var user models.User
	if err := s.DB.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
		}
		return nil, nil, err
	}

	if !user.IsActive {
		return nil, nil, fmt.Errorf("%w: account is blocked", ErrForbidden)
	}

	if !hash.CheckPassword(user.PasswordHash, password) {
		return nil, nil, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	}

	pair, err := s.issueTokens(&user)
	if err != nil {
		return nil, nil, err
	}

	publish(ctx, s.Producer, events.TopicUserEvents, fmt.Sprint(user.ID), map[string]interface{}{
		"type":    "user_logged_in",
		"user_id": user.ID,
	})

	return &user, pair, nil
}

// Refresh validates the presented refresh token against the rotating stored
// hash and issues a new pair. The old token stops working immediately.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := tokens.RefreshClaimsFromToken(refreshToken, s.RefreshSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid refresh token", ErrUnauthorized)
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, fmt.Errorf("%w: invalid refresh token", ErrUnauthorized)
	}

	var user models.User
	if err := s.DB.WithContext(ctx).First(&user, userID).Error; err != nil {
		return nil, fmt.Errorf("%w: invalid refresh token", ErrUnauthorized)
	}
	if !user.IsActive {
		return nil, fmt.Errorf("%w: account is blocked", ErrForbidden)
	}
	if user.RefreshTokenHash == "" {
		return nil, fmt.Errorf("%w: invalid refresh token", ErrUnauthorized)
	}

	presented := hash.Sha256Hex(refreshToken)
	if subtle.ConstantTimeCompare([]byte(presented), []byte(user.RefreshTokenHash)) != 1 {
		return nil, fmt.Errorf("%w: invalid refresh token", ErrUnauthorized)
	}

	return s.issueTokens(&user)
}

func (s *AuthService) Logout(ctx context.Context, userID uint) error {
	return s.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("refresh_token_hash", "").Error
}

func (s *AuthService) GetUser(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user not found", ErrNotFound)
		}
		return nil, err
	}
	return &user, nil
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID uint, name string) (*models.User, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if len(name) < 2 {
		return nil, fmt.Errorf("%w: name must be at least 2 characters", ErrValidation)
	}
	user.Name = name
	if err := s.DB.WithContext(ctx).Save(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID uint, currentPassword, newPassword string) error {
	if len(newPassword) < 6 {
		return fmt.Errorf("%w: new password must be at least 6 characters", ErrValidation)
	}

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if !hash.CheckPassword(user.PasswordHash, currentPassword) {
		return fmt.Errorf("%w: current password is incorrect", ErrUnauthorized)
	}

	pwHash, err := hash.HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("password_hash", pwHash).Error
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func (s *AuthService) createVerificationToken(ctx context.Context, user *models.User) (string, error) {
	token, err := randomToken()
	if err != nil {
		return "", err
	}
	rec := models.EmailVerification{
		UserID:    user.ID,
		Email:     user.Email,
		Token:     token,
		ExpiresAt: time.Now().Add(resetTokenTTL),
	}
	if err := s.DB.WithContext(ctx).Create(&rec).Error; err != nil {
		return "", err
	}
	return token, nil
}

func (s *AuthService) VerifyEmail(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: verification token is required", ErrValidation)
	}

	var rec models.EmailVerification
	if err := s.DB.WithContext(ctx).Where("token = ?", token).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: invalid or expired verification token", ErrValidation)
		}
		return nil, err
	}

	if time.Now().After(rec.ExpiresAt) {
		s.DB.WithContext(ctx).Delete(&rec)
		return nil, fmt.Errorf("%w: verification token has expired", ErrValidation)
	}

	user, err := s.GetUser(ctx, rec.UserID)
	if err != nil {
		return nil, err
	}
	user.IsVerified = true
	if err := s.DB.WithContext(ctx).Save(user).Error; err != nil {
		return nil, err
	}

	// Verification tokens are deleted on success, not marked used.
	if err := s.DB.WithContext(ctx).Delete(&rec).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// ForgotPassword never reveals whether the email is registered: the handler
// responds with the same message either way.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	l := logging.FromContext(ctx).With("svc", "auth.forgot_password")

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}

	var user models.User
	if err := s.DB.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	// Issuing a new token supersedes every unused one for this account.
	if err := s.DB.WithContext(ctx).Model(&models.PasswordReset{}).
		Where("user_id = ? AND used = ?", user.ID, false).
		Update("used", true).Error; err != nil {
		return err
	}

	token, err := randomToken()
	if err != nil {
		return err
	}
	rec := models.PasswordReset{
		UserID:    user.ID,
		Email:     user.Email,
		Token:     token,
		ExpiresAt: time.Now().Add(resetTokenTTL),
	}
	if err := s.DB.WithContext(ctx).Create(&rec).Error; err != nil {
		return err
	}

	if s.Mailer != nil {
		if err := s.Mailer.SendPasswordResetEmail(ctx, user.Email, user.Name, token); err != nil {
			l.Error("password reset email error", "error", err)
		}
	}
	return nil
}

func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) (*models.User, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: token is required", ErrValidation)
	}
	if len(newPassword) < 6 {
		return nil, fmt.Errorf("%w: password must be at least 6 characters", ErrValidation)
	}

	var rec models.PasswordReset
	if err := s.DB.WithContext(ctx).Where("token = ? AND used = ?", token, false).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: invalid or expired reset token", ErrValidation)
		}
		return nil, err
	}

	if time.Now().After(rec.ExpiresAt) {
		s.DB.WithContext(ctx).Model(&rec).Update("used", true)
		return nil, fmt.Errorf("%w: reset token has expired", ErrValidation)
	}

	user, err := s.GetUser(ctx, rec.UserID)
	if err != nil {
		return nil, err
	}

	pwHash, err := hash.HashPassword(newPassword)
	if err != nil {
		return nil, err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).
			Where("id = ?", user.ID).
			Update("password_hash", pwHash).Error; err != nil {
			return err
		}
		return tx.Model(&rec).Update("used", true).Error
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/MoainAlabbasi/telegram-archive-bot/internal/models"
	"github.com/MoainAlabbasi/telegram-archive-bot/internal/repository"
	"github.com/MoainAlabbasi/telegram-archive-bot/pkg/config"
	appErrors "github.com/MoainAlabbasi/telegram-archive-bot/pkg/errors"
)

const otpLength = 6

type activationUserRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id int64) (*models.User, error)
	FindByExternalID(ctx context.Context, externalID string) (*models.User, error)
	Activate(ctx context.Context, id int64, email, passwordHash string, activatedAt time.Time) error
	CreateOTP(ctx context.Context, otp *models.OTPCode) error
	FindOTP(ctx context.Context, userID int64, email, code string) (*models.OTPCode, error)
	ConsumeOTP(ctx context.Context, id int64) (bool, error)
}

// OTPSender delivers activation codes. Delivery failure is reported, never
// retried here.
type OTPSender interface {
	Configured() bool
	SendOTP(to, code string) error
}

// ActivationService drives the pre-register, verify, OTP and activate flow.
type ActivationService struct {
	repo      activationUserRepository
	sender    OTPSender
	validator *validator.Validate
	logger    *zap.Logger
	config    config.AuthConfig
}

// NewActivationService constructs an ActivationService instance.
func NewActivationService(repo activationUserRepository, sender OTPSender, validate *validator.Validate, logger *zap.Logger, cfg config.AuthConfig) *ActivationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ActivationService{repo: repo, sender: sender, validator: validate, logger: logger, config: cfg}
}

// GenerateOTP returns a 6-digit code from a cryptographically secure source.
func GenerateOTP() (string, error) {
	code := make([]byte, otpLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generate otp digit: %w", err)
		}
		code[i] = byte('0' + n.Int64())
	}
	return string(code), nil
}

// GenerateSessionToken returns a URL-safe opaque token with 256 bits of
// entropy.
func GenerateSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// PreRegister creates an inactive account holding only the external
// identifier and full name. Uniqueness of the identifier is enforced by the
// store so racing admins cannot both succeed.
func (s *ActivationService) PreRegister(ctx context.Context, req models.PreRegisterRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid pre-register payload")
	}

	user := &models.User{
		ExternalID: req.ExternalID,
		FullName:   req.FullName,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrDuplicateID, "identifier already registered")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.logger.Info("user pre-registered", zap.String("external_id", user.ExternalID))
	return user, nil
}

// VerifyIdentity checks the pre-registered identifier and full name before the
// OTP steps. The full name must match the stored value exactly.
func (s *ActivationService) VerifyIdentity(ctx context.Context, req models.VerifyIdentityRequest) (*models.VerifyIdentityResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid verify payload")
	}

	user, err := s.repo.FindByExternalID(ctx, req.ExternalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrMismatch, "provided details do not match")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	if user.FullName != req.FullName {
		return nil, appErrors.Clone(appErrors.ErrMismatch, "provided details do not match")
	}
	if user.IsActive {
		return nil, appErrors.Clone(appErrors.ErrAlreadyActive, "account is already active")
	}

	return &models.VerifyIdentityResponse{UserID: user.ID}, nil
}

// RequestActivation issues a fresh OTP for an inactive account and attempts
// delivery. When delivery fails and the inline fallback is enabled, the code
// is surfaced in the response message instead of failing the request.
func (s *ActivationService) RequestActivation(ctx context.Context, req models.RequestOTPRequest) (*models.OTPDelivery, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid otp request payload")
	}

	user, err := s.repo.FindByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	if user.IsActive {
		return nil, appErrors.Clone(appErrors.ErrAlreadyActive, "account is already active")
	}

	code, err := GenerateOTP()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate code")
	}

	otp := &models.OTPCode{
		UserID:    user.ID,
		Email:     req.Email,
		Code:      code,
		ExpiresAt: time.Now().UTC().Add(s.config.OTPTTL),
	}
	if err := s.repo.CreateOTP(ctx, otp); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist code")
	}

	if s.sender != nil && s.sender.Configured() {
		if err := s.sender.SendOTP(req.Email, code); err != nil {
			s.logger.Warn("otp delivery failed", zap.Int64("user_id", user.ID), zap.Error(err))
		} else {
			return &models.OTPDelivery{Sent: true, Message: "verification code sent to your email"}, nil
		}
	}

	if s.config.OTPInlineFallback {
		return &models.OTPDelivery{Sent: false, Message: fmt.Sprintf("verification code (mail unavailable): %s", code)}, nil
	}
	return nil, appErrors.Clone(appErrors.ErrInternal, "failed to deliver verification code")
}

// Activate completes account activation. The matched code is claimed with a
// conditional update before the account is touched, so two racing calls
// cannot both activate with the same code.
func (s *ActivationService) Activate(ctx context.Context, req models.ActivateRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid activation payload")
	}

	otp, err := s.repo.FindOTP(ctx, req.UserID, req.Email, req.Code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrInvalidCode, "verification code is incorrect")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch code")
	}
	if otp.Expired(time.Now().UTC()) {
		return appErrors.Clone(appErrors.ErrExpiredCode, "verification code has expired")
	}

	claimed, err := s.repo.ConsumeOTP(ctx, otp.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to consume code")
	}
	if !claimed {
		return appErrors.Clone(appErrors.ErrInvalidCode, "verification code is incorrect")
	}

	cost := s.config.BcryptCost
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), cost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	if err := s.repo.Activate(ctx, req.UserID, req.Email, string(hash), time.Now().UTC()); err != nil {
		// The code is already burned at this point. Surface the failure
		// loudly; remediation is manual.
		s.logger.Error("activation failed after code was consumed",
			zap.Int64("user_id", req.UserID), zap.Int64("otp_id", otp.ID), zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate account")
	}

	s.logger.Info("account activated", zap.Int64("user_id", req.UserID))
	return nil
}

package account

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/healthops/healthops/internal/platform/auth"
	"github.com/healthops/healthops/internal/platform/notification"
)

const otpDigits = 6

type Service struct {
	users    UserRepository
	issuer   *auth.TokenIssuer
	otps     auth.OTPStore
	notifier Notifier
	otpTTL   time.Duration
	logger   zerolog.Logger

	now         func() time.Time
	generateOTP func(digits int) (string, error)
}

func NewService(users UserRepository, issuer *auth.TokenIssuer, otps auth.OTPStore, notifier Notifier,
	otpTTL time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		users:       users,
		issuer:      issuer,
		otps:        otps,
		notifier:    notifier,
		otpTTL:      otpTTL,
		logger:      logger,
		now:         time.Now,
		generateOTP: auth.GenerateOTP,
	}
}

func optional(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

// Register is the self-service signup. It only grants the Doctor and Staff
// roles; Admin accounts come from CreateAdmin.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	return s.register(ctx, req, false)
}

func (s *Service) register(ctx context.Context, req RegisterRequest, allowAdmin bool) (*User, error) {
	email := normalizeEmail(req.Email)
	var problems []string
	if _, err := mail.ParseAddress(email); err != nil {
		problems = append(problems, "a valid email is required")
	}
	if strings.TrimSpace(req.FullName) == "" {
		problems = append(problems, "full_name is required")
	}
	switch {
	case req.Role == auth.RoleAdmin && !allowAdmin:
		problems = append(problems, "role Admin cannot be self-registered")
	case !auth.IsValidRole(req.Role):
		problems = append(problems, "role must be one of Doctor, Staff")
	}
	if len(req.Password) < auth.MinPasswordLength {
		problems = append(problems, auth.ErrPasswordTooShort.Error())
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("look up user: %w", err)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	u := &User{
		Email:        email,
		FullName:     strings.TrimSpace(req.FullName),
		EmployeeID:   optional(req.EmployeeID),
		HospitalName: optional(req.HospitalName),
		Department:   optional(req.Department),
		Role:         req.Role,
		PasswordHash: hash,
		IsActive:     true,
	}
	// The unique index still guards a concurrent registration.
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	hospital := ""
	if u.HospitalName != nil {
		hospital = *u.HospitalName
	}
	s.notifier.Dispatch(ctx, notification.TemplateUserRegistered, u.Email, map[string]string{
		"full_name":     u.FullName,
		"hospital_name": hospital,
		"role":          u.Role,
	})
	s.logger.Info().Str("email", u.Email).Str("role", u.Role).Msg("user registered")
	return u, nil
}

// CreateAdmin bootstraps an active Admin account.
func (s *Service) CreateAdmin(ctx context.Context, email, password, fullName string) (*User, error) {
	return s.register(ctx, RegisterRequest{
		Email:    email,
		Password: password,
		FullName: fullName,
		Role:     auth.RoleAdmin,
	}, true)
}

// Login checks credentials and issues an access token. Unknown users and
// bad passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*Token, error) {
	email := normalizeEmail(req.Subject())
	if email == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("look up user: %w", err)
	}
	if !auth.CheckPassword(u.PasswordHash, req.Password) {
		s.logger.Warn().Str("email", email).Msg("failed login")
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, ErrInactiveUser
	}

	if err := s.users.UpdateLastLogin(ctx, u.ID, s.now().UTC()); err != nil {
		s.logger.Error().Err(err).Str("email", u.Email).Msg("failed to record last login")
	}
	signed, _, err := s.issuer.Issue(u.Email, u.Role)
	if err != nil {
		return nil, err
	}
	return &Token{AccessToken: signed, TokenType: "bearer"}, nil
}

// RequestPasswordReset stores a fresh OTP for the user and emails it.
func (s *Service) RequestPasswordReset(ctx context.Context, req ForgotPasswordRequest) error {
	email := normalizeEmail(req.Email)
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	code, err := s.generateOTP(otpDigits)
	if err != nil {
		return err
	}
	if err := s.otps.Save(ctx, u.Email, code, s.otpTTL); err != nil {
		return err
	}
	s.notifier.Dispatch(ctx, notification.TemplateOTPPasswordReset, u.Email, map[string]string{
		"full_name":   u.FullName,
		"otp":         code,
		"ttl_minutes": strconv.Itoa(int(s.otpTTL.Minutes())),
	})
	s.logger.Info().Str("email", u.Email).Msg("password reset otp issued")
	return nil
}

// ResetPassword redeems the OTP and replaces the password hash. A wrong code
// leaves the stored OTP usable until it expires.
func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if len(req.NewPassword) < auth.MinPasswordLength {
		return &ValidationError{Problems: []string{auth.ErrPasswordTooShort.Error()}}
	}
	email := normalizeEmail(req.Email)
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	ok, err := s.otps.Consume(ctx, u.Email, strings.TrimSpace(req.OTP))
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidOTP
	}
	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, u.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	s.logger.Info().Str("email", u.Email).Msg("password reset")
	return nil
}

// Me returns the account behind the authenticated request.
func (s *Service) Me(ctx context.Context) (*User, error) {
	email := auth.EmailFromContext(ctx)
	if email == "" {
		return nil, ErrNotFound
	}
	return s.users.GetByEmail(ctx, email)
}

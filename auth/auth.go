/*
Package auth is the identity provider for the leave service.

PURPOSE:
  Turns credentials into a leave.Principal. It hashes passwords with
  bcrypt, issues HS256 JWTs carrying {sub, role}, and validates them on
  every request. The leave core never sees passwords or tokens; it only
  receives the Principal this package produces.

USE CASES:
  Register       create a user (role/quota only settable by an admin caller)
  Login          email + password -> signed token
  Me             the caller's own user record
  UpdateProfile  name/email and password change (current password required)
  ValidateToken  token -> Principal

SEE ALSO:
  - api/middleware.go: bearer token extraction
  - leave/service.go: CreateUser / UpdateProfile
*/
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/warp/leave-engine/leave"
)

// ErrInvalidCredentials is returned by Login for an unknown email or a
// wrong password. The two cases are deliberately indistinguishable.
var ErrInvalidCredentials = fmt.Errorf("invalid email or password: %w", leave.ErrUnauthorized)

// Users is the slice of leave.Service the identity provider needs.
type Users interface {
	CreateUser(ctx context.Context, caller leave.Principal, in leave.NewUser) (*leave.User, error)
	FindUserByEmail(ctx context.Context, email string) (*leave.User, error)
	GetUser(ctx context.Context, caller leave.Principal, id string) (*leave.User, error)
	UpdateProfile(ctx context.Context, caller leave.Principal, in leave.ProfileUpdate) (*leave.User, error)
}

type Config struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
	BcryptCost int
}

// Claims is the JWT payload.
type Claims struct {
	Role  leave.Role `json:"role"`
	Email string     `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type Service struct {
	users     Users
	validator *validator.Validate
	logger    *zap.Logger
	cfg       Config
	now       func() time.Time
}

func NewService(users Users, validate *validator.Validate, logger *zap.Logger, cfg Config) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	if cfg.Expiration <= 0 {
		cfg.Expiration = 24 * time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{users: users, validator: validate, logger: logger, cfg: cfg, now: time.Now}
}

// =============================================================================
// USE CASES
// =============================================================================

type RegisterInput struct {
	Name             string     `json:"name" validate:"required,max=100"`
	Email            string     `json:"email" validate:"required,email,max=255"`
	Password         string     `json:"password" validate:"required,min=6,max=72"`
	Role             leave.Role `json:"role" validate:"omitempty,oneof=user admin"`
	AnnualLeaveQuota *int       `json:"annualLeaveQuota" validate:"omitempty,min=0,max=366"`
}

// Register creates a user. caller is the zero Principal for anonymous sign-up.
func (s *Service) Register(ctx context.Context, caller leave.Principal, in RegisterInput) (*leave.User, error) {
	if err := Validate(s.validator, in); err != nil {
		return nil, err
	}
	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}
	return s.users.CreateUser(ctx, caller, leave.NewUser{
		Name:             in.Name,
		Email:            in.Email,
		PasswordHash:     hash,
		Role:             in.Role,
		AnnualLeaveQuota: in.AnnualLeaveQuota,
	})
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResult struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      *leave.User `json:"user"`
}

func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	if err := Validate(s.validator, in); err != nil {
		return nil, err
	}

	user, err := s.users.FindUserByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, leave.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		s.logger.Info("login rejected", zap.String("user_id", user.ID))
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.IssueToken(user)
	if err != nil {
		return nil, fmt.Errorf("create access token: %w", err)
	}
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

func (s *Service) Me(ctx context.Context, caller leave.Principal) (*leave.User, error) {
	return s.users.GetUser(ctx, caller, caller.ID)
}

type ProfileInput struct {
	Name            *string `json:"name" validate:"omitempty,min=1,max=100"`
	Email           *string `json:"email" validate:"omitempty,email,max=255"`
	CurrentPassword string  `json:"currentPassword"`
	NewPassword     string  `json:"newPassword" validate:"omitempty,min=6,max=72"`
}

// UpdateProfile edits the caller's own record. Changing the password
// requires the current one.
func (s *Service) UpdateProfile(ctx context.Context, caller leave.Principal, in ProfileInput) (*leave.User, error) {
	if err := Validate(s.validator, in); err != nil {
		return nil, err
	}

	update := leave.ProfileUpdate{Name: in.Name, Email: in.Email}
	if in.NewPassword != "" {
		current, err := s.users.GetUser(ctx, caller, caller.ID)
		if err != nil {
			return nil, err
		}
		if bcrypt.CompareHashAndPassword([]byte(current.PasswordHash), []byte(in.CurrentPassword)) != nil {
			return nil, &leave.ValidationError{Field: "currentPassword", Message: "is incorrect"}
		}
		hash, err := s.hash(in.NewPassword)
		if err != nil {
			return nil, err
		}
		update.PasswordHash = &hash
	}
	return s.users.UpdateProfile(ctx, caller, update)
}

// =============================================================================
// TOKENS
// =============================================================================

func (s *Service) IssueToken(user *leave.User) (string, time.Time, error) {
	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.cfg.Expiration)
	claims := &Claims{
		Role:  user.Role,
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateToken parses and validates an access token returning the caller.
func (s *Service) ValidateToken(tokenString string) (leave.Principal, error) {
	opts := []jwt.ParserOption{jwt.WithTimeFunc(s.now)}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	}, opts...)
	if err != nil {
		return leave.Principal{}, fmt.Errorf("invalid token: %w", leave.ErrUnauthorized)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" || !claims.Role.Valid() {
		return leave.Principal{}, fmt.Errorf("invalid token claims: %w", leave.ErrUnauthorized)
	}
	return leave.Principal{ID: claims.Subject, Role: claims.Role}, nil
}

func (s *Service) hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

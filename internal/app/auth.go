/**
 * @description
 * Registration and login. Passwords are hashed with bcrypt and sessions are
 * stateless HS256 JWTs. New accounts start unactivated with a short signup
 * countdown, after which the registration bonus becomes claimable.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/flashbot/wallet-service/internal/domain"
	"github.com/flashbot/wallet-service/internal/store"
)

const tokenLifetime = 24 * time.Hour

// Register creates a new wallet account and returns a session token. The
// signup countdown starts immediately.
func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, errors.New("a valid email address is required")
	}
	if len(req.Password) < 8 {
		return nil, errors.New("password must be at least 8 characters")
	}
	if req.ConfirmPassword != "" && req.ConfirmPassword != req.Password {
		return nil, errors.New("passwords do not match")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	countdownEnds := time.Now().Add(time.Duration(settings.CountdownMinutes) * time.Minute)

	user, err := s.repo.CreateUser(ctx, &domain.User{
		ID:              uuid.New(),
		Email:           email,
		PasswordHash:    string(hash),
		FirstName:       strings.TrimSpace(req.FirstName),
		LastName:        strings.TrimSpace(req.LastName),
		CountdownEndsAt: &countdownEnds,
	})
	if err != nil {
		return nil, err
	}

	token, err := s.issueToken(user)
	if err != nil {
		return nil, err
	}

	log.Printf("Register: created user %s (countdown ends %s)", user.ID, countdownEnds.Format(time.RFC3339))
	return &domain.AuthResult{Token: token, User: user}, nil
}

// Login authenticates by email and password.
func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthResult, error) {
	user, err := s.repo.FindUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.issueToken(user)
	if err != nil {
		return nil, err
	}
	return &domain.AuthResult{Token: token, User: user}, nil
}

// AdminLogin is Login restricted to admin accounts. Non-admins get the same
// error as a bad password so the endpoint does not leak which emails are
// admins.
func (s *Service) AdminLogin(ctx context.Context, req domain.LoginRequest) (*domain.AuthResult, error) {
	result, err := s.Login(ctx, req)
	if err != nil {
		return nil, err
	}
	if !result.User.IsAdmin {
		return nil, ErrInvalidCredentials
	}
	return result, nil
}

func (s *Service) issueToken(user *domain.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   user.ID.String(),
		"email": user.Email,
		"admin": user.IsAdmin,
		"iat":   now.Unix(),
		"exp":   now.Add(tokenLifetime).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

/**
 * @description
 * This file contains the core business logic for the wallet-service. The
 * `Service` struct orchestrates all money movement operations, coordinating
 * between the database repository, the Flutterwave gateway client, and the
 * message broker.
 *
 * Key features:
 * - Implements the main use cases: transfers, activation and top-up payments,
 *   the signup bonus, and admin overrides.
 * - Every balance change goes through a repository method that pairs the
 *   ledger entry with the balance update in one transaction.
 * - Publishes events to RabbitMQ for asynchronous processing.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/flutterwave, pkg/rabbitmq: For external service communication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/flashbot/wallet-service/internal/domain"
	"github.com/flashbot/wallet-service/internal/store"
	"github.com/flashbot/wallet-service/pkg/flutterwave"
	"github.com/flashbot/wallet-service/pkg/rabbitmq"
)

var (
	ErrInvalidAmount           = errors.New("amount must be a positive whole number of kobo")
	ErrAmountMismatch          = errors.New("amount does not match the configured payment amount")
	ErrAlreadyApplied          = errors.New("operation was already applied")
	ErrAlreadyCompleted        = errors.New("entry has already been completed")
	ErrPaymentPending          = errors.New("payment has not been received yet")
	ErrPaymentExpired          = errors.New("payment window has expired")
	ErrGatewayUnavailable      = errors.New("payment gateway is unavailable")
	ErrCountdownActive         = errors.New("signup countdown has not elapsed yet")
	ErrInvalidStatusTransition = errors.New("status transition is not allowed")
	ErrCannotDeleteAdmin       = errors.New("admin accounts cannot be deleted")
	ErrInvalidCredentials      = errors.New("invalid email or password")
	ErrAccountAlreadyActive    = errors.New("account is already active")
	ErrRateLimited             = errors.New("too many transfer attempts, slow down")
)

// Gateway is the surface of the payment provider the service depends on.
// pkg/flutterwave provides the production implementation.
type Gateway interface {
	CreateVirtualAccount(ctx context.Context, req flutterwave.VirtualAccountRequest) (*flutterwave.VirtualAccount, error)
	CreatePaymentLink(ctx context.Context, req flutterwave.PaymentLinkRequest) (string, error)
	VerifyByReference(ctx context.Context, reference string) (*flutterwave.PaymentStatus, error)
	ListBanks(ctx context.Context) ([]domain.Bank, error)
	ResolveAccount(ctx context.Context, accountNumber, bankCode string) (*flutterwave.ResolvedAccount, error)
}

// RateLimiter bounds how often a subject may perform an action inside a window.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service provides the core business logic for the wallet.
type Service struct {
	repo          store.Repository
	gateway       Gateway
	eventProducer rabbitmq.Publisher
	rateLimiter   RateLimiter

	jwtSecret      []byte
	paymentWindow  time.Duration
	transferLimit  int
	transferWindow time.Duration
}

// NewService creates a new wallet service instance.
func NewService(repo store.Repository, gateway Gateway, producer rabbitmq.Publisher, limiter RateLimiter, jwtSecret string, paymentWindow time.Duration) *Service {
	if paymentWindow <= 0 {
		paymentWindow = 15 * time.Minute
	}
	return &Service{
		repo:           repo,
		gateway:        gateway,
		eventProducer:  producer,
		rateLimiter:    limiter,
		jwtSecret:      []byte(jwtSecret),
		paymentWindow:  paymentWindow,
		transferLimit:  10,
		transferWindow: time.Minute,
	}
}

// SetTransferRateLimit overrides the per-minute cap on transfer attempts.
// Non-positive values keep the default.
func (s *Service) SetTransferRateLimit(limit int) {
	if limit > 0 {
		s.transferLimit = limit
	}
}

// PaymentWindow exposes the configured pending payment lifetime for the
// expiry sweep.
func (s *Service) PaymentWindow() time.Duration {
	return s.paymentWindow
}

// Settings returns the current workflow amounts.
func (s *Service) Settings(ctx context.Context) (*domain.Settings, error) {
	return s.repo.GetSettings(ctx)
}

// GetUser returns the user's profile, including the live wallet balance.
func (s *Service) GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	return s.repo.FindUserByID(ctx, userID)
}

// ListUserEntries returns a page of the user's ledger history, newest first.
func (s *Service) ListUserEntries(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, error) {
	return s.repo.FindEntriesByUserID(ctx, userID, limit, offset)
}

// ListBanks proxies the gateway's bank directory.
func (s *Service) ListBanks(ctx context.Context) ([]domain.Bank, error) {
	if s.gateway == nil {
		return nil, ErrGatewayUnavailable
	}
	return s.gateway.ListBanks(ctx)
}

// ResolveAccount looks up the account name behind a number at a bank.
func (s *Service) ResolveAccount(ctx context.Context, accountNumber, bankCode string) (*flutterwave.ResolvedAccount, error) {
	if s.gateway == nil {
		return nil, ErrGatewayUnavailable
	}
	return s.gateway.ResolveAccount(ctx, accountNumber, bankCode)
}

// transferReference builds the idempotency reference for a user-initiated
// debit. Millisecond timestamps keep references unique per user in practice;
// the unique column backstops the rare collision.
func transferReference(userID uuid.UUID) string {
	return fmt.Sprintf("FBT_%d_%s", time.Now().UnixMilli(), userID)
}

func adminReference(direction string, userID uuid.UUID) string {
	return fmt.Sprintf("ADMIN_%s_%s_%d", direction, userID, time.Now().UnixMilli())
}

// paymentReference builds the gateway tx_ref for an activation or top-up
// payment. The purpose prefix keeps payment references distinguishable from
// transfer references in the ledger.
func paymentReference(purpose string, userID uuid.UUID) string {
	return fmt.Sprintf("%s_%d_%s", strings.ToUpper(purpose), time.Now().UnixMilli(), userID)
}

func reversalReference(originalReference string) string {
	return "REVERT_" + originalReference
}

func validateAmount(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

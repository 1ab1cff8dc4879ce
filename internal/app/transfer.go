/**
 * @description
 * Transfer workflow: user-initiated withdrawals to an external bank account.
 *
 * Funds are debited immediately so the balance always reflects committed
 * money. Transfers from unactivated accounts stay pending and are the only
 * entries eligible for reversal; activated accounts settle straight to
 * completed.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/flashbot/wallet-service/internal/domain"
	"github.com/flashbot/wallet-service/internal/store"
)

// InitiateTransfer debits the sender and records the transfer entry.
func (s *Service) InitiateTransfer(ctx context.Context, userID uuid.UUID, req domain.TransferRequest) (*domain.TransferResult, error) {
	log.Printf("InitiateTransfer: starting transfer for user %s amount %d", userID, req.Amount)

	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.AccountNumber) == "" || strings.TrimSpace(req.BankName) == "" {
		return nil, errors.New("recipient account number and bank are required")
	}

	if s.rateLimiter != nil {
		count, retryAfter, err := s.rateLimiter.ConsumeRateLimit(ctx, "transfer", userID.String(), s.transferLimit, s.transferWindow)
		if err != nil {
			// Limiter outage must not block money movement.
			log.Printf("InitiateTransfer: rate limiter unavailable for %s: %v", userID, err)
		} else if count > s.transferLimit {
			log.Printf("InitiateTransfer: user %s rate limited (count=%d retry_after=%ds)", userID, count, retryAfter)
			return nil, ErrRateLimited
		}
	}

	// 1. Load the sender to decide the terminal status of the entry.
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find sender: %w", err)
	}

	status := domain.EntryStatusCompleted
	description := fmt.Sprintf("Transfer to %s (%s)", req.AccountName, req.BankName)
	if !user.IsActive {
		status = domain.EntryStatusPending
		description += " - Account not activated"
	}

	// 2. Debit and record in one transaction. The conditional update inside
	// the repository is the only funds check; there is no pre-read.
	entry := &domain.LedgerEntry{
		ID:                     uuid.New(),
		UserID:                 userID,
		Category:               domain.EntryCategoryTransfer,
		Amount:                 req.Amount,
		Status:                 status,
		Description:            description,
		Reference:              transferReference(userID),
		RecipientAccountNumber: &req.AccountNumber,
		RecipientAccountName:   &req.AccountName,
		RecipientBankName:      &req.BankName,
	}
	if err := s.repo.DebitWalletWithEntry(ctx, entry); err != nil {
		if errors.Is(err, store.ErrInsufficientFunds) {
			log.Printf("InitiateTransfer: insufficient funds for user %s (amount=%d)", userID, req.Amount)
		}
		return nil, err
	}

	log.Printf("InitiateTransfer: recorded entry %s for user %s status=%s", entry.ID, userID, status)

	return &domain.TransferResult{
		EntryID:   entry.ID,
		Reference: entry.Reference,
		Status:    status,
		Amount:    req.Amount,
	}, nil
}

// RevertTransfer refunds a pending transfer made before account activation.
// The caller must own the entry. The repository guarantees the refund applies
// at most once.
func (s *Service) RevertTransfer(ctx context.Context, userID, entryID uuid.UUID) (*domain.RevertResult, error) {
	log.Printf("RevertTransfer: user %s requesting revert of entry %s", userID, entryID)

	// 1. Ownership and category checks happen up front so callers get a
	// specific error; the repository re-checks state under lock.
	entry, err := s.repo.FindEntryByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.UserID != userID {
		return nil, store.ErrEntryNotFound
	}
	if entry.Category != domain.EntryCategoryTransfer {
		return nil, store.ErrNotRevertible
	}

	// 2. A transfer from an already-activated account settles immediately and
	// cannot be called back.
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.IsActive {
		return nil, store.ErrNotRevertible
	}

	result, err := s.repo.RevertPendingTransfer(ctx, entryID,
		"REVERTED",
		reversalReference(entry.Reference),
		fmt.Sprintf("Reversal of transfer %s", entry.Reference),
	)
	if err != nil {
		return nil, err
	}

	log.Printf("RevertTransfer: entry %s reverted, %d returned to user %s", entryID, result.AmountReturned, userID)
	return result, nil
}

// ExpireStalePayments moves pending gateway payments past the payment window
// into the terminal expired state. Invoked from the scheduler.
func (s *Service) ExpireStalePayments(ctx context.Context, now time.Time) (int64, error) {
	return s.repo.ExpirePendingPayments(ctx, now.Add(-s.paymentWindow))
}

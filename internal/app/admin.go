/**
 * @description
 * Admin override service: account activation toggles, manual wallet
 * adjustments, forced reversals, transaction status edits, and user
 * management. Every override is recorded in the ledger like any other
 * movement so the audit trail stays complete.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/flashbot/wallet-service/internal/domain"
	"github.com/flashbot/wallet-service/internal/store"
)

// entryStatusTransitions is the closed set of admin status edits. Reversals
// carry a refund and must go through ForceRevertTransaction, so pending never
// transitions to reverted here.
var entryStatusTransitions = map[string][]string{
	domain.EntryStatusPending: {domain.EntryStatusCompleted, domain.EntryStatusFailed},
	domain.EntryStatusFailed:  {domain.EntryStatusPending},
}

func transitionAllowed(from, to string) bool {
	for _, allowed := range entryStatusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// SetAccountActive flips a user's activation flag without touching funds.
func (s *Service) SetAccountActive(ctx context.Context, userID uuid.UUID, active bool) error {
	if err := s.repo.SetUserActive(ctx, userID, active); err != nil {
		return err
	}
	log.Printf("SetAccountActive: user %s active=%v", userID, active)
	return nil
}

// AdjustBalance applies a manual admin credit or debit. Credits always apply
// in full; debits clamp at zero so an adjustment can never push a wallet
// negative, and the ledger entry records the amount actually removed.
func (s *Service) AdjustBalance(ctx context.Context, req domain.AdjustBalanceRequest) (*domain.LedgerEntry, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}

	direction := strings.ToLower(strings.TrimSpace(req.Direction))
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "Admin balance adjustment"
	}

	switch direction {
	case "credit":
		entry := &domain.LedgerEntry{
			ID:          uuid.New(),
			UserID:      req.UserID,
			Category:    domain.EntryCategoryCredit,
			Amount:      req.Amount,
			Description: reason,
			Reference:   adminReference("CREDIT", req.UserID),
		}
		if err := s.repo.CreditWalletWithEntry(ctx, entry); err != nil {
			return nil, err
		}
		log.Printf("AdjustBalance: credited %d to user %s", req.Amount, req.UserID)
		return s.repo.FindEntryByID(ctx, entry.ID)
	case "debit":
		entry := &domain.LedgerEntry{
			ID:          uuid.New(),
			UserID:      req.UserID,
			Category:    domain.EntryCategoryDebit,
			Amount:      req.Amount,
			Description: reason,
			Reference:   adminReference("DEBIT", req.UserID),
		}
		debited, err := s.repo.AdminDebitClampedWithEntry(ctx, entry)
		if err != nil {
			return nil, err
		}
		if debited == 0 {
			// Nothing to remove from an empty wallet; no entry was recorded.
			log.Printf("AdjustBalance: debit for user %s skipped, balance already zero", req.UserID)
			return nil, store.ErrInsufficientFunds
		}
		if debited < req.Amount {
			log.Printf("AdjustBalance: debit for user %s clamped to %d (requested %d)", req.UserID, debited, req.Amount)
		}
		return s.repo.FindEntryByID(ctx, entry.ID)
	default:
		return nil, fmt.Errorf("unknown adjustment direction %q", req.Direction)
	}
}

// ForceRevertTransaction reverts a pending transfer on behalf of its owner.
// The owner's activation state is re-checked server-side, and the same
// structural guard as the user-facing path keeps the refund single-shot.
func (s *Service) ForceRevertTransaction(ctx context.Context, entryID uuid.UUID) (*domain.RevertResult, error) {
	entry, err := s.repo.FindEntryByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Category != domain.EntryCategoryTransfer {
		return nil, store.ErrNotRevertible
	}

	owner, err := s.repo.FindUserByID(ctx, entry.UserID)
	if err != nil {
		return nil, err
	}
	if owner.IsActive {
		return nil, store.ErrNotRevertible
	}

	result, err := s.repo.RevertPendingTransfer(ctx, entryID,
		"REVERTED BY ADMIN",
		reversalReference(entry.Reference),
		fmt.Sprintf("Admin reversal of transfer %s", entry.Reference),
	)
	if err != nil {
		return nil, err
	}
	log.Printf("ForceRevertTransaction: entry %s reverted by admin, %d returned to user %s", entryID, result.AmountReturned, entry.UserID)
	return result, nil
}

// EditTransactionStatus applies a bookkeeping-only status change. Transitions
// outside the closed table are rejected, in particular anything that would
// imply a balance movement.
func (s *Service) EditTransactionStatus(ctx context.Context, entryID uuid.UUID, req domain.EditStatusRequest) (*domain.LedgerEntry, error) {
	entry, err := s.repo.FindEntryByID(ctx, entryID)
	if err != nil {
		return nil, err
	}

	newStatus := strings.ToLower(strings.TrimSpace(req.Status))
	if !transitionAllowed(entry.Status, newStatus) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, entry.Status, newStatus)
	}

	if err := s.repo.UpdateEntryStatus(ctx, entryID, newStatus, req.Note); err != nil {
		return nil, err
	}
	log.Printf("EditTransactionStatus: entry %s moved %s -> %s", entryID, entry.Status, newStatus)
	return s.repo.FindEntryByID(ctx, entryID)
}

// ListUsers returns a page of users for the admin dashboard.
func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]domain.User, error) {
	return s.repo.ListUsers(ctx, limit, offset)
}

// ListAllEntries returns a page of ledger entries across all users.
func (s *Service) ListAllEntries(ctx context.Context, limit, offset int) ([]domain.LedgerEntry, error) {
	return s.repo.ListEntries(ctx, limit, offset)
}

// DeleteUser removes a non-admin account and, through the FK cascade, its
// ledger history.
func (s *Service) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.IsAdmin {
		return ErrCannotDeleteAdmin
	}
	if err := s.repo.DeleteUser(ctx, userID); err != nil {
		return err
	}
	log.Printf("DeleteUser: removed user %s", userID)
	return nil
}

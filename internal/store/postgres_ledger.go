/**
 * @description
 * This file implements the atomic balance mutations of the `Repository`
 * interface. Every method here pairs a ledger entry write with a wallet
 * balance update inside a single database transaction, so a balance can
 * never change without a matching entry and vice versa.
 *
 * Debits are expressed as conditional UPDATEs guarded by the current
 * balance; a zero rows-affected count means insufficient funds. No method
 * reads a balance and writes it back in separate statements.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/flashbot/wallet-service/internal/domain"
)

// CreditWalletWithEntry atomically increments the user's wallet balance and
// records a completed ledger entry for the credit.
func (r *PostgresRepository) CreditWalletWithEntry(ctx context.Context, entry *domain.LedgerEntry) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx,
		`UPDATE users SET wallet_balance = wallet_balance + $1, updated_at = NOW() WHERE id = $2`,
		entry.Amount, entry.UserID,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO ledger_entries (id, user_id, category, amount, status, description, reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.UserID, entry.Category, entry.Amount,
		domain.EntryStatusCompleted, entry.Description, entry.Reference,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateReference
		}
		return err
	}

	return tx.Commit(ctx)
}

// DebitWalletWithEntry atomically decrements the user's wallet balance and
// records a ledger entry for the debit. The balance check and the decrement
// are a single statement, so two concurrent debits can never both succeed
// against funds that only cover one.
func (r *PostgresRepository) DebitWalletWithEntry(ctx context.Context, entry *domain.LedgerEntry) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		UPDATE users SET wallet_balance = wallet_balance - $1, updated_at = NOW()
		WHERE id = $2 AND wallet_balance >= $1`,
		entry.Amount, entry.UserID,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		// Distinguish a missing user from a short balance.
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, entry.UserID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrUserNotFound
		}
		return ErrInsufficientFunds
	}

	status := entry.Status
	if status == "" {
		status = domain.EntryStatusCompleted
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO ledger_entries (id, user_id, category, amount, status, description, reference,
		       recipient_account_number, recipient_account_name, recipient_bank_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID, entry.UserID, entry.Category, entry.Amount, status,
		entry.Description, entry.Reference,
		entry.RecipientAccountNumber, entry.RecipientAccountName, entry.RecipientBankName,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateReference
		}
		return err
	}

	return tx.Commit(ctx)
}

// AdminDebitClampedWithEntry debits up to entry.Amount from the user's wallet,
// clamping at zero instead of failing when the balance is short. It returns
// the amount actually removed, and the recorded entry carries that clamped
// amount so the ledger matches the balance movement.
func (r *PostgresRepository) AdminDebitClampedWithEntry(ctx context.Context, entry *domain.LedgerEntry) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	// The self-join exposes the pre-update balance so the clamped amount can
	// be computed in the same statement that applies it.
	var debited int64
	err = tx.QueryRow(ctx, `
		UPDATE users u
		SET wallet_balance = GREATEST(u.wallet_balance - $1, 0), updated_at = NOW()
		FROM (SELECT id, wallet_balance AS old_balance FROM users WHERE id = $2 FOR UPDATE) prev
		WHERE u.id = prev.id
		RETURNING LEAST($1, prev.old_balance)`,
		entry.Amount, entry.UserID,
	).Scan(&debited)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, ErrUserNotFound
		}
		return 0, err
	}

	// A balance already at zero leaves nothing to debit; recording a
	// zero-amount entry would violate the positive-amount invariant, so the
	// no-op update is discarded with no ledger write.
	if debited == 0 {
		return 0, nil
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO ledger_entries (id, user_id, category, amount, status, description, reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.UserID, entry.Category, debited,
		domain.EntryStatusCompleted, entry.Description, entry.Reference,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateReference
		}
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return debited, nil
}

// RevertPendingTransfer refunds a pending transfer debit exactly once. The
// entry row and the owner row are locked, and the full predicate (pending
// transfer, reverted_at unset, owner not activated) is checked under those
// locks: a second call finds the reverted_at stamp set and returns
// ErrNotRevertible, so the refund can never be applied twice no matter how
// the calls interleave.
func (r *PostgresRepository) RevertPendingTransfer(ctx context.Context, entryID uuid.UUID, marker, reversalReference, reversalDescription string) (*domain.RevertResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var (
		userID     uuid.UUID
		amount     int64
		status     string
		category   string
		revertedAt *time.Time
	)
	err = tx.QueryRow(ctx, `
		SELECT user_id, amount, status, category, reverted_at
		FROM ledger_entries
		WHERE id = $1
		FOR UPDATE`,
		entryID,
	).Scan(&userID, &amount, &status, &category, &revertedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}

	if revertedAt != nil || category != domain.EntryCategoryTransfer || status != domain.EntryStatusPending {
		return nil, ErrNotRevertible
	}

	// Re-check the owner's activation state under lock so an activation
	// committing between the caller's pre-check and this transaction cannot
	// slip a refund into a just-activated account.
	var isActive bool
	err = tx.QueryRow(ctx, `SELECT is_active FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&isActive)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if isActive {
		return nil, ErrNotRevertible
	}

	_, err = tx.Exec(ctx, `
		UPDATE ledger_entries
		SET status = $1, reverted_at = NOW(),
		    description = description || ' - ' || $2,
		    updated_at = NOW()
		WHERE id = $3`,
		domain.EntryStatusReverted, marker, entryID,
	)
	if err != nil {
		return nil, err
	}

	result, err := tx.Exec(ctx,
		`UPDATE users SET wallet_balance = wallet_balance + $1, updated_at = NOW() WHERE id = $2`,
		amount, userID,
	)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected() == 0 {
		return nil, ErrUserNotFound
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO ledger_entries (id, user_id, category, amount, status, description, reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New(), userID, domain.EntryCategoryCredit, amount,
		domain.EntryStatusCompleted, reversalDescription, reversalReference,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateReference
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &domain.RevertResult{EntryID: entryID, AmountReturned: amount}, nil
}

// CreditBonusAndClearCountdown credits the signup bonus at most once per user.
// The user row is locked, the completed-bonus check runs under that lock, and
// the partial unique index on completed bonus entries backstops the check.
func (r *PostgresRepository) CreditBonusAndClearCountdown(ctx context.Context, entry *domain.LedgerEntry) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var balance int64
	err = tx.QueryRow(ctx, `SELECT wallet_balance FROM users WHERE id = $1 FOR UPDATE`, entry.UserID).Scan(&balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, ErrUserNotFound
		}
		return 0, err
	}

	var alreadyCredited bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM ledger_entries
			WHERE user_id = $1 AND category = $2 AND status = $3
		)`,
		entry.UserID, domain.EntryCategoryBonus, domain.EntryStatusCompleted,
	).Scan(&alreadyCredited)
	if err != nil {
		return 0, err
	}
	if alreadyCredited {
		return 0, ErrBonusAlreadyCredited
	}

	var newBalance int64
	err = tx.QueryRow(ctx, `
		UPDATE users
		SET wallet_balance = wallet_balance + $1, countdown_ends_at = NULL, updated_at = NOW()
		WHERE id = $2
		RETURNING wallet_balance`,
		entry.Amount, entry.UserID,
	).Scan(&newBalance)
	if err != nil {
		return 0, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO ledger_entries (id, user_id, category, amount, status, description, reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.UserID, domain.EntryCategoryBonus, entry.Amount,
		domain.EntryStatusCompleted, entry.Description, entry.Reference,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrBonusAlreadyCredited
		}
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// CompleteActivationPayment flips a pending activation entry to completed and
// activates the account. It returns false without error when the entry was
// already resolved, which makes webhook delivery and client polling safe to
// run concurrently against the same reference.
func (r *PostgresRepository) CompleteActivationPayment(ctx context.Context, reference string, userID uuid.UUID) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		UPDATE ledger_entries SET status = $1, updated_at = NOW()
		WHERE reference = $2 AND user_id = $3 AND status = $4`,
		domain.EntryStatusCompleted, reference, userID, domain.EntryStatusPending,
	)
	if err != nil {
		return false, err
	}
	if result.RowsAffected() == 0 {
		return false, nil
	}

	_, err = tx.Exec(ctx,
		`UPDATE users SET is_active = true, updated_at = NOW() WHERE id = $1`,
		userID,
	)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// CompleteTopUpPayment flips a pending top-up entry to completed and credits
// the configured wallet amount, which is deliberately decoupled from the
// amount paid to the gateway. Returns false when the entry was already
// resolved, so repeated confirmations credit the wallet exactly once.
func (r *PostgresRepository) CompleteTopUpPayment(ctx context.Context, reference string, userID uuid.UUID, creditAmount int64) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		UPDATE ledger_entries SET status = $1, updated_at = NOW()
		WHERE reference = $2 AND user_id = $3 AND status = $4`,
		domain.EntryStatusCompleted, reference, userID, domain.EntryStatusPending,
	)
	if err != nil {
		return false, err
	}
	if result.RowsAffected() == 0 {
		return false, nil
	}

	result, err = tx.Exec(ctx,
		`UPDATE users SET wallet_balance = wallet_balance + $1, updated_at = NOW() WHERE id = $2`,
		creditAmount, userID,
	)
	if err != nil {
		return false, err
	}
	if result.RowsAffected() == 0 {
		return false, ErrUserNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

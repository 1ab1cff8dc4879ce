/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the wallet-service. By defining an interface,
 * we decouple the application's business logic from the specific database implementation
 * (e.g., PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation and handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/flashbot/wallet-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
//
// Every method that moves money pairs the balance update with its ledger entry
// inside a single database transaction, and debits carry the balance
// precondition in the UPDATE itself so two concurrent debits can never
// overdraw an account.
type Repository interface {
	// User methods
	CreateUser(ctx context.Context, user *domain.User) (*domain.User, error)
	FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]domain.User, error)
	SetUserActive(ctx context.Context, userID uuid.UUID, active bool) error
	ClearCountdown(ctx context.Context, userID uuid.UUID) error
	FindUsersWithElapsedCountdown(ctx context.Context, now time.Time, limit int) ([]domain.User, error)
	DeleteUser(ctx context.Context, userID uuid.UUID) error

	// Ledger entry reads
	FindEntryByID(ctx context.Context, entryID uuid.UUID) (*domain.LedgerEntry, error)
	FindEntryByReference(ctx context.Context, reference string) (*domain.LedgerEntry, error)
	FindEntriesByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, error)
	ListEntries(ctx context.Context, limit, offset int) ([]domain.LedgerEntry, error)
	HasCompletedBonusEntry(ctx context.Context, userID uuid.UUID) (bool, error)

	// Balance mutations. Each is one atomic unit: ledger write + balance
	// update commit together or not at all.
	CreditWalletWithEntry(ctx context.Context, entry *domain.LedgerEntry) error
	DebitWalletWithEntry(ctx context.Context, entry *domain.LedgerEntry) error
	AdminDebitClampedWithEntry(ctx context.Context, entry *domain.LedgerEntry) (debited int64, err error)
	RevertPendingTransfer(ctx context.Context, entryID uuid.UUID, marker, reversalReference, reversalDescription string) (*domain.RevertResult, error)
	CreditBonusAndClearCountdown(ctx context.Context, entry *domain.LedgerEntry) (newBalance int64, err error)

	// Payment entry lifecycle
	CreatePendingEntry(ctx context.Context, entry *domain.LedgerEntry) error
	DeletePendingEntry(ctx context.Context, reference string) error
	MarkEntryFailed(ctx context.Context, reference string) error
	CompleteActivationPayment(ctx context.Context, reference string, userID uuid.UUID) (bool, error)
	CompleteTopUpPayment(ctx context.Context, reference string, userID uuid.UUID, creditAmount int64) (bool, error)
	ExpirePendingPayments(ctx context.Context, olderThan time.Time) (int64, error)
	UpdateEntryStatus(ctx context.Context, entryID uuid.UUID, status, note string) error

	// Settings (read-only inputs to the workflows)
	GetSettings(ctx context.Context) (*domain.Settings, error)
}

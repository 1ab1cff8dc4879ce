/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface
 * for users, ledger entry reads, payment entry lifecycle, and settings. The
 * atomic balance mutations live in postgres_ledger.go.
 *
 * @dependencies
 * - context, time, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flashbot/wallet-service/internal/domain"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrEntryNotFound        = errors.New("ledger entry not found")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrDuplicateReference   = errors.New("duplicate ledger reference")
	ErrNotRevertible        = errors.New("entry is not revertible")
	ErrBonusAlreadyCredited = errors.New("signup bonus already credited")
	ErrEmailTaken           = errors.New("email already registered")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const userColumns = `id, email, password_hash, first_name, last_name, wallet_balance, is_active, is_admin, countdown_ends_at, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.WalletBalance, &u.IsActive, &u.IsAdmin, &u.CountdownEndsAt,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a new user row and returns it with DB-assigned timestamps.
func (r *PostgresRepository) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	query := `
		INSERT INTO users (id, email, password_hash, first_name, last_name, wallet_balance, is_active, is_admin, countdown_ends_at)
		VALUES ($1, lower(btrim($2)), $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + userColumns
	created, err := scanUser(r.db.QueryRow(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.FirstName, user.LastName,
		user.WalletBalance, user.IsActive, user.IsAdmin, user.CountdownEndsAt,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return created, nil
}

// FindUserByID retrieves a user from the database by their ID.
func (r *PostgresRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRow(ctx, query, userID))
}

// FindUserByEmail retrieves a user by their email, case-insensitively.
func (r *PostgresRepository) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = lower(btrim($1))`
	return scanUser(r.db.QueryRow(ctx, query, email))
}

// ListUsers retrieves users ordered by signup date, newest first.
func (r *PostgresRepository) ListUsers(ctx context.Context, limit, offset int) ([]domain.User, error) {
	limit, offset = clampPage(limit, offset)

	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows, limit)
}

// SetUserActive flips the activation flag with no balance side effect.
func (r *PostgresRepository) SetUserActive(ctx context.Context, userID uuid.UUID, active bool) error {
	result, err := r.db.Exec(ctx, `UPDATE users SET is_active = $1, updated_at = NOW() WHERE id = $2`, active, userID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ClearCountdown nulls the signup-countdown expiry so clients stop polling it.
func (r *PostgresRepository) ClearCountdown(ctx context.Context, userID uuid.UUID) error {
	result, err := r.db.Exec(ctx, `UPDATE users SET countdown_ends_at = NULL, updated_at = NOW() WHERE id = $1`, userID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// FindUsersWithElapsedCountdown returns users whose signup countdown has ended
// but has not been processed yet (countdown column still set).
func (r *PostgresRepository) FindUsersWithElapsedCountdown(ctx context.Context, now time.Time, limit int) ([]domain.User, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE countdown_ends_at IS NOT NULL AND countdown_ends_at <= $1 ORDER BY countdown_ends_at ASC LIMIT $2`
	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows, limit)
}

// DeleteUser removes a non-admin user; their ledger entries cascade via FK.
func (r *PostgresRepository) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1 AND is_admin = false`, userID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func collectUsers(rows pgx.Rows, capacity int) ([]domain.User, error) {
	users := make([]domain.User, 0, capacity)
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(
			&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
			&u.WalletBalance, &u.IsActive, &u.IsAdmin, &u.CountdownEndsAt,
			&u.CreatedAt, &u.UpdatedAt,
		); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

const entryColumns = `id, user_id, category, amount, status, description, reference, reverted_at,
       recipient_account_number, recipient_account_name, recipient_bank_name, created_at, updated_at`

func scanEntry(row pgx.Row) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	err := row.Scan(
		&e.ID, &e.UserID, &e.Category, &e.Amount, &e.Status, &e.Description,
		&e.Reference, &e.RevertedAt, &e.RecipientAccountNumber,
		&e.RecipientAccountName, &e.RecipientBankName, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return &e, nil
}

// FindEntryByID retrieves a single ledger entry.
func (r *PostgresRepository) FindEntryByID(ctx context.Context, entryID uuid.UUID) (*domain.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE id = $1`
	return scanEntry(r.db.QueryRow(ctx, query, entryID))
}

// FindEntryByReference retrieves a ledger entry by its idempotency reference.
func (r *PostgresRepository) FindEntryByReference(ctx context.Context, reference string) (*domain.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE reference = $1`
	return scanEntry(r.db.QueryRow(ctx, query, reference))
}

// FindEntriesByUserID retrieves a user's ledger entries, newest first.
func (r *PostgresRepository) FindEntriesByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, error) {
	limit, offset = clampPage(limit, offset)

	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows, limit)
}

// ListEntries retrieves ledger entries across all users, newest first.
func (r *PostgresRepository) ListEntries(ctx context.Context, limit, offset int) ([]domain.LedgerEntry, error) {
	limit, offset = clampPage(limit, offset)

	query := `SELECT ` + entryColumns + ` FROM ledger_entries ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows, limit)
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func collectEntries(rows pgx.Rows, capacity int) ([]domain.LedgerEntry, error) {
	entries := make([]domain.LedgerEntry, 0, capacity)
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(
			&e.ID, &e.UserID, &e.Category, &e.Amount, &e.Status, &e.Description,
			&e.Reference, &e.RevertedAt, &e.RecipientAccountNumber,
			&e.RecipientAccountName, &e.RecipientBankName, &e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// HasCompletedBonusEntry reports whether a completed signup-bonus entry exists
// for the user. The check is by category, never by description text.
func (r *PostgresRepository) HasCompletedBonusEntry(ctx context.Context, userID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM ledger_entries
			WHERE user_id = $1 AND category = $2 AND status = $3
		)
	`
	var exists bool
	if err := r.db.QueryRow(ctx, query, userID, domain.EntryCategoryBonus, domain.EntryStatusCompleted).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// CreatePendingEntry inserts a pending ledger entry with no balance effect.
// It anchors a gateway payment before the gateway call is made so that a
// later webhook always has a row to resolve against.
func (r *PostgresRepository) CreatePendingEntry(ctx context.Context, entry *domain.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (id, user_id, category, amount, status, description, reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query,
		entry.ID, entry.UserID, entry.Category, entry.Amount,
		domain.EntryStatusPending, entry.Description, entry.Reference,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateReference
	}
	return err
}

// DeletePendingEntry removes a pending entry after a failed gateway initiation
// so no orphan rows are left behind. Entries past pending are never deleted.
func (r *PostgresRepository) DeletePendingEntry(ctx context.Context, reference string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM ledger_entries WHERE reference = $1 AND status = $2`,
		reference, domain.EntryStatusPending,
	)
	return err
}

// MarkEntryFailed moves a pending entry to failed. No balance effect: pending
// payment entries never held funds.
func (r *PostgresRepository) MarkEntryFailed(ctx context.Context, reference string) error {
	result, err := r.db.Exec(ctx,
		`UPDATE ledger_entries SET status = $1, updated_at = NOW() WHERE reference = $2 AND status = $3`,
		domain.EntryStatusFailed, reference, domain.EntryStatusPending,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// ExpirePendingPayments resolves stale pending payment entries to the terminal
// expired status. Transfers are untouched; only gateway-driven categories
// expire.
func (r *PostgresRepository) ExpirePendingPayments(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `
		UPDATE ledger_entries
		SET status = $1, updated_at = NOW()
		WHERE status = $2
		  AND category IN ($3, $4, $5)
		  AND created_at < $6
	`
	result, err := r.db.Exec(ctx, query,
		domain.EntryStatusExpired, domain.EntryStatusPending,
		domain.EntryCategoryPayment, domain.EntryCategoryActivation, domain.EntryCategoryTopUp,
		olderThan,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// UpdateEntryStatus overwrites an entry's status, optionally appending a note
// to the description. The app layer is responsible for only requesting
// transitions that carry no balance effect.
func (r *PostgresRepository) UpdateEntryStatus(ctx context.Context, entryID uuid.UUID, status, note string) error {
	query := `
		UPDATE ledger_entries
		SET status = $1,
		    description = CASE WHEN $2 <> '' THEN description || ' - ' || $2 ELSE description END,
		    updated_at = NOW()
		WHERE id = $3
	`
	result, err := r.db.Exec(ctx, query, status, strings.TrimSpace(note), entryID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// GetSettings reads the named workflow settings, falling back to defaults for
// any missing rows. Monetary values are stored in kobo.
func (r *PostgresRepository) GetSettings(ctx context.Context) (*domain.Settings, error) {
	settings := &domain.Settings{
		ActivationFee:     3500000,  // 35,000 NGN
		TopUpPayAmount:    1250000,  // 12,500 NGN
		TopUpCreditAmount: 20000000, // 200,000 NGN
		RegistrationBonus: 30000,    // 300 NGN
		CountdownMinutes:  5,
	}

	rows, err := r.db.Query(ctx, `
		SELECT setting_name, setting_value FROM admin_settings
		WHERE setting_name IN ('activation_fee', 'topup_payment_amount', 'topup_credit_amount', 'registration_bonus', 'countdown_minutes')
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var value int64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		switch name {
		case "activation_fee":
			settings.ActivationFee = value
		case "topup_payment_amount":
			settings.TopUpPayAmount = value
		case "topup_credit_amount":
			settings.TopUpCreditAmount = value
		case "registration_bonus":
			settings.RegistrationBonus = value
		case "countdown_minutes":
			settings.CountdownMinutes = int(value)
		}
	}
	return settings, rows.Err()
}

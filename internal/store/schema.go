/**
 * @description
 * Idempotent schema bootstrap. The service ensures its tables, constraints,
 * and seed settings exist at startup instead of shipping a separate migration
 * step, matching how the rest of the platform deploys.
 *
 * The constraints here are load-bearing, not decorative:
 * - users.wallet_balance CHECK keeps a negative balance out even if a future
 *   query forgets the conditional-update guard.
 * - ledger_entries.reference UNIQUE backstops reference idempotency.
 * - The partial unique index on completed bonus entries backstops the
 *   at-most-once bonus credit.
 */

package store

import "context"

const schemaDDL = `
CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    first_name TEXT NOT NULL DEFAULT '',
    last_name TEXT NOT NULL DEFAULT '',
    wallet_balance BIGINT NOT NULL DEFAULT 0 CHECK (wallet_balance >= 0),
    is_active BOOLEAN NOT NULL DEFAULT FALSE,
    is_admin BOOLEAN NOT NULL DEFAULT FALSE,
    countdown_ends_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS ledger_entries (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    category TEXT NOT NULL,
    amount BIGINT NOT NULL CHECK (amount > 0),
    status TEXT NOT NULL DEFAULT 'pending',
    description TEXT NOT NULL DEFAULT '',
    reference TEXT NOT NULL UNIQUE,
    reverted_at TIMESTAMPTZ,
    recipient_account_number TEXT,
    recipient_account_name TEXT,
    recipient_bank_name TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_ledger_entries_user_created
    ON ledger_entries (user_id, created_at DESC);

CREATE INDEX IF NOT EXISTS idx_ledger_entries_status_category
    ON ledger_entries (status, category);

CREATE UNIQUE INDEX IF NOT EXISTS uniq_completed_bonus_per_user
    ON ledger_entries (user_id)
    WHERE category = 'bonus' AND status = 'completed';

CREATE TABLE IF NOT EXISTS admin_settings (
    setting_name TEXT PRIMARY KEY,
    setting_value BIGINT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

INSERT INTO admin_settings (setting_name, setting_value) VALUES
    ('activation_fee', 3500000),
    ('topup_payment_amount', 1250000),
    ('topup_credit_amount', 20000000),
    ('registration_bonus', 30000),
    ('countdown_minutes', 5)
ON CONFLICT (setting_name) DO NOTHING;
`

// EnsureSchema creates the tables, indexes, and default settings if they do
// not exist yet. Safe to run on every startup.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, schemaDDL)
	return err
}

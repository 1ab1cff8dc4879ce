/**
 * @description
 * This file defines the core domain models for the wallet-service. These structs
 * represent the main entities and data transfer objects (DTOs) used throughout
 * the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Amounts are stored as `int64` to represent the value in the smallest currency
 *   unit (kobo), which avoids floating-point inaccuracies with financial data.
 * - Ledger entries are the single record of every balance-affecting event; the
 *   wallet balance on the user row is only ever mutated together with an entry.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Ledger entry categories. Every balance-affecting event carries exactly one.
const (
	EntryCategoryCredit     = "credit"
	EntryCategoryDebit      = "debit"
	EntryCategoryTransfer   = "transfer"
	EntryCategoryPayment    = "payment"
	EntryCategoryActivation = "activation"
	EntryCategoryTopUp      = "topup"
	EntryCategoryBonus      = "bonus"
)

// Ledger entry statuses. `reverted` and `expired` are terminal; `completed` is
// terminal except through the compensating revert path.
const (
	EntryStatusPending   = "pending"
	EntryStatusCompleted = "completed"
	EntryStatusFailed    = "failed"
	EntryStatusReverted  = "reverted"
	EntryStatusExpired   = "expired"
)

// Payment purposes accepted by the top-up/activation workflow.
const (
	PaymentPurposeActivation = "activation"
	PaymentPurposeTopUp      = "topup"
)

// User represents a wallet holder. Maps to the `users` table.
type User struct {
	ID              uuid.UUID  `json:"id"`
	Email           string     `json:"email"`
	PasswordHash    string     `json:"-"`
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	WalletBalance   int64      `json:"wallet_balance"` // in kobo
	IsActive        bool       `json:"is_active"`
	IsAdmin         bool       `json:"is_admin"`
	CountdownEndsAt *time.Time `json:"countdown_ends_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// LedgerEntry is the record of a single balance-affecting event. Maps to the
// `ledger_entries` table. The reference is the idempotency key for the logical
// operation; RevertedAt is the structural once-only marker for reversals.
type LedgerEntry struct {
	ID                     uuid.UUID  `json:"id"`
	UserID                 uuid.UUID  `json:"user_id"`
	Category               string     `json:"category"`
	Amount                 int64      `json:"amount"` // in kobo, always positive
	Status                 string     `json:"status"`
	Description            string     `json:"description"`
	Reference              string     `json:"reference"`
	RevertedAt             *time.Time `json:"reverted_at,omitempty"`
	RecipientAccountNumber *string    `json:"recipient_account_number,omitempty"`
	RecipientAccountName   *string    `json:"recipient_account_name,omitempty"`
	RecipientBankName      *string    `json:"recipient_bank_name,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// RecipientDescriptor identifies the external bank account a transfer is
// addressed to. Settlement with the external bank happens out-of-band; the
// ledger only records the descriptor.
type RecipientDescriptor struct {
	BankCode      string `json:"bank_code"`
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

// TransferRequest is the DTO for incoming send-money API requests.
type TransferRequest struct {
	BankCode      string `json:"bank_code"`
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	Amount        int64  `json:"amount"` // in kobo
}

// TransferResult is returned to the caller after a transfer has been accepted.
type TransferResult struct {
	EntryID   uuid.UUID `json:"entry_id"`
	Reference string    `json:"reference"`
	Status    string    `json:"status"`
	Amount    int64     `json:"amount"`
}

// RevertResult reports the outcome of a transfer reversal.
type RevertResult struct {
	EntryID        uuid.UUID `json:"entry_id"`
	AmountReturned int64     `json:"amount_returned"`
}

// InitiatePaymentRequest is the DTO for starting an activation or top-up payment.
type InitiatePaymentRequest struct {
	Purpose string `json:"purpose"` // activation | topup
	Amount  int64  `json:"amount"`  // in kobo, must match the configured fee
}

// PaymentHandle is what the caller needs to complete a gateway payment: either
// a virtual account number to transfer into, or a hosted payment link.
type PaymentHandle struct {
	Reference     string     `json:"reference"`
	Amount        int64      `json:"amount"`
	PaymentType   string     `json:"payment_type"` // virtual_account | payment_link
	AccountNumber string     `json:"account_number,omitempty"`
	AccountName   string     `json:"account_name,omitempty"`
	BankName      string     `json:"bank_name,omitempty"`
	PaymentLink   string     `json:"payment_link,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// PaymentConfirmation reports the resolved state of a payment reference.
type PaymentConfirmation struct {
	Reference      string `json:"reference"`
	Status         string `json:"status"`
	Purpose        string `json:"purpose"`
	AmountCredited int64  `json:"amount_credited,omitempty"`
	AlreadyDone    bool   `json:"already_done,omitempty"`
}

// BonusResult reports the outcome of a signup-bonus credit attempt.
type BonusResult struct {
	Amount          int64 `json:"amount"`
	AlreadyCredited bool  `json:"already_credited"`
	NewBalance      int64 `json:"new_balance,omitempty"`
}

// AdjustBalanceRequest is the DTO for the admin wallet adjustment endpoint.
type AdjustBalanceRequest struct {
	UserID    uuid.UUID `json:"user_id"`
	Amount    int64     `json:"amount"`    // in kobo
	Direction string    `json:"direction"` // credit | debit
	Reason    string    `json:"reason,omitempty"`
}

// EditStatusRequest is the DTO for the admin transaction status correction
// endpoint. Note is appended to the entry description when set.
type EditStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}

// RegisterRequest is the DTO for new account registration.
type RegisterRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
}

// LoginRequest is the DTO for email/password login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResult carries the issued bearer token and the authenticated user.
type AuthResult struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// Bank is one row of the gateway's bank directory.
type Bank struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Settings are the named configuration values the workflows read. They are
// read-only inputs to the ledger core, seeded in the admin_settings table.
type Settings struct {
	ActivationFee     int64 `json:"activation_fee"`       // in kobo
	TopUpPayAmount    int64 `json:"topup_payment_amount"` // in kobo
	TopUpCreditAmount int64 `json:"topup_credit_amount"`  // in kobo
	RegistrationBonus int64 `json:"registration_bonus"`   // in kobo
	CountdownMinutes  int   `json:"countdown_minutes"`
}

/**
 * @description
 * Top-up and activation payment workflow. A payment starts as a pending
 * ledger entry anchored to a gateway reference, the user pays through a
 * virtual account or a hosted link, and both the gateway webhook and client
 * polling funnel into the same idempotent confirmation path.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/flashbot/wallet-service/internal/domain"
	"github.com/flashbot/wallet-service/internal/store"
	"github.com/flashbot/wallet-service/pkg/flutterwave"
	"github.com/flashbot/wallet-service/pkg/rabbitmq"
)

// InitiatePayment creates a pending payment entry and asks the gateway for a
// way to pay it. Virtual accounts are preferred; a hosted payment link is the
// fallback when virtual account issuance fails.
func (s *Service) InitiatePayment(ctx context.Context, userID uuid.UUID, req domain.InitiatePaymentRequest) (*domain.PaymentHandle, error) {
	log.Printf("InitiatePayment: user %s purpose %s amount %d", userID, req.Purpose, req.Amount)

	if s.gateway == nil {
		return nil, ErrGatewayUnavailable
	}

	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	// 1. Resolve the expected amount and entry category from the purpose.
	var expected int64
	var category string
	switch req.Purpose {
	case domain.PaymentPurposeActivation:
		if user.IsActive {
			return nil, ErrAccountAlreadyActive
		}
		expected = settings.ActivationFee
		category = domain.EntryCategoryActivation
	case domain.PaymentPurposeTopUp:
		expected = settings.TopUpPayAmount
		category = domain.EntryCategoryTopUp
	default:
		return nil, fmt.Errorf("unknown payment purpose %q", req.Purpose)
	}
	// The client must state the amount it intends to pay; an omitted amount
	// is rejected the same as a wrong one.
	if req.Amount != expected {
		return nil, ErrAmountMismatch
	}

	// 2. Anchor the payment before calling the gateway so a webhook can never
	// arrive for a reference we do not know.
	reference := paymentReference(req.Purpose, userID)
	entry := &domain.LedgerEntry{
		ID:          uuid.New(),
		UserID:      userID,
		Category:    category,
		Amount:      expected,
		Description: fmt.Sprintf("%s payment", req.Purpose),
		Reference:   reference,
	}
	if err := s.repo.CreatePendingEntry(ctx, entry); err != nil {
		return nil, err
	}

	expiresAt := time.Now().Add(s.paymentWindow)
	handle := &domain.PaymentHandle{
		Reference: reference,
		Amount:    expected,
		ExpiresAt: &expiresAt,
	}

	// 3. Try a dedicated virtual account first.
	va, err := s.gateway.CreateVirtualAccount(ctx, flutterwave.VirtualAccountRequest{
		Reference: reference,
		Amount:    expected,
		Email:     user.Email,
		Narration: fmt.Sprintf("FLASHBOT %s", req.Purpose),
	})
	if err == nil {
		handle.PaymentType = "virtual_account"
		handle.AccountNumber = va.AccountNumber
		handle.AccountName = va.AccountName
		handle.BankName = va.BankName
		return handle, nil
	}
	log.Printf("InitiatePayment: virtual account failed for %s, falling back to payment link: %v", reference, err)

	// 4. Fall back to a hosted payment link.
	link, linkErr := s.gateway.CreatePaymentLink(ctx, flutterwave.PaymentLinkRequest{
		Reference: reference,
		Amount:    expected,
		Email:     user.Email,
		Title:     fmt.Sprintf("FLASHBOT %s", req.Purpose),
	})
	if linkErr != nil {
		// Clean up the anchor so the user can retry with a fresh reference.
		if delErr := s.repo.DeletePendingEntry(ctx, reference); delErr != nil {
			log.Printf("InitiatePayment: failed to remove orphan entry %s: %v", reference, delErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, linkErr)
	}

	handle.PaymentType = "payment_link"
	handle.PaymentLink = link
	return handle, nil
}

// ConfirmPayment resolves a payment reference against the gateway and, on
// success, applies the purpose's effect exactly once. It is safe to call from
// the webhook consumer and from client polling at the same time.
func (s *Service) ConfirmPayment(ctx context.Context, userID uuid.UUID, reference string) (*domain.PaymentConfirmation, error) {
	entry, err := s.repo.FindEntryByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if entry.UserID != userID {
		return nil, store.ErrEntryNotFound
	}

	purpose := purposeForCategory(entry.Category)
	conf := &domain.PaymentConfirmation{Reference: reference, Purpose: purpose}

	switch entry.Status {
	case domain.EntryStatusCompleted:
		conf.Status = domain.EntryStatusCompleted
		conf.AlreadyDone = true
		return conf, nil
	case domain.EntryStatusExpired:
		return nil, ErrPaymentExpired
	case domain.EntryStatusFailed:
		conf.Status = domain.EntryStatusFailed
		return conf, nil
	case domain.EntryStatusPending:
		// Fall through to gateway verification.
	default:
		return nil, fmt.Errorf("payment entry %s in unexpected status %q", reference, entry.Status)
	}

	// The window is enforced even before the sweep marks the row.
	if time.Since(entry.CreatedAt) > s.paymentWindow {
		if _, err := s.repo.ExpirePendingPayments(ctx, time.Now().Add(-s.paymentWindow)); err != nil {
			log.Printf("ConfirmPayment: inline expiry failed: %v", err)
		}
		return nil, ErrPaymentExpired
	}

	if s.gateway == nil {
		return nil, ErrGatewayUnavailable
	}
	status, err := s.gateway.VerifyByReference(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	switch status.Status {
	case flutterwave.PaymentSuccessful:
		if status.AmountPaid < entry.Amount {
			log.Printf("ConfirmPayment: underpayment on %s (paid=%d expected=%d)", reference, status.AmountPaid, entry.Amount)
			return nil, ErrAmountMismatch
		}
		return s.applyConfirmedPayment(ctx, entry, conf)
	case flutterwave.PaymentFailed:
		if err := s.repo.MarkEntryFailed(ctx, reference); err != nil && !errors.Is(err, store.ErrEntryNotFound) {
			return nil, err
		}
		conf.Status = domain.EntryStatusFailed
		return conf, nil
	default:
		return nil, ErrPaymentPending
	}
}

func (s *Service) applyConfirmedPayment(ctx context.Context, entry *domain.LedgerEntry, conf *domain.PaymentConfirmation) (*domain.PaymentConfirmation, error) {
	switch entry.Category {
	case domain.EntryCategoryActivation:
		applied, err := s.repo.CompleteActivationPayment(ctx, entry.Reference, entry.UserID)
		if err != nil {
			return nil, err
		}
		conf.Status = domain.EntryStatusCompleted
		conf.AlreadyDone = !applied
		if applied {
			log.Printf("ConfirmPayment: account %s activated via %s", entry.UserID, entry.Reference)
		}
		return conf, nil
	case domain.EntryCategoryTopUp:
		settings, err := s.repo.GetSettings(ctx)
		if err != nil {
			return nil, err
		}
		applied, err := s.repo.CompleteTopUpPayment(ctx, entry.Reference, entry.UserID, settings.TopUpCreditAmount)
		if err != nil {
			return nil, err
		}
		conf.Status = domain.EntryStatusCompleted
		conf.AlreadyDone = !applied
		if applied {
			conf.AmountCredited = settings.TopUpCreditAmount
			log.Printf("ConfirmPayment: top-up %s credited %d to user %s", entry.Reference, settings.TopUpCreditAmount, entry.UserID)
		}
		return conf, nil
	default:
		return nil, fmt.Errorf("payment entry %s has non-payment category %q", entry.Reference, entry.Category)
	}
}

// CreditSignupBonus credits the registration bonus once the signup countdown
// has elapsed. The credit is applied at most once per user regardless of how
// many times clients or the sweep call this.
func (s *Service) CreditSignupBonus(ctx context.Context, userID uuid.UUID) (*domain.BonusResult, error) {
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	if user.CountdownEndsAt != nil && time.Now().Before(*user.CountdownEndsAt) {
		return nil, ErrCountdownActive
	}

	// Fast path: skip the locked credit when the bonus already landed. The
	// store re-checks under lock, so a race here cannot double-credit.
	if credited, err := s.repo.HasCompletedBonusEntry(ctx, userID); err == nil && credited {
		if clearErr := s.repo.ClearCountdown(ctx, userID); clearErr != nil && !errors.Is(clearErr, store.ErrUserNotFound) {
			log.Printf("CreditSignupBonus: failed to clear countdown for %s: %v", userID, clearErr)
		}
		return &domain.BonusResult{Amount: settings.RegistrationBonus, AlreadyCredited: true}, nil
	}

	entry := &domain.LedgerEntry{
		ID:          uuid.New(),
		UserID:      userID,
		Amount:      settings.RegistrationBonus,
		Description: "Registration bonus",
		Reference:   fmt.Sprintf("BONUS_%s", userID),
	}
	newBalance, err := s.repo.CreditBonusAndClearCountdown(ctx, entry)
	if err != nil {
		if errors.Is(err, store.ErrBonusAlreadyCredited) {
			// The bonus landed earlier but the countdown column may have
			// survived; clear it so the account stops looking eligible.
			if clearErr := s.repo.ClearCountdown(ctx, userID); clearErr != nil && !errors.Is(clearErr, store.ErrUserNotFound) {
				log.Printf("CreditSignupBonus: failed to clear countdown for %s: %v", userID, clearErr)
			}
			return &domain.BonusResult{Amount: settings.RegistrationBonus, AlreadyCredited: true}, nil
		}
		return nil, err
	}

	if s.eventProducer != nil {
		event := domain.BonusCreditedEvent{UserID: userID.String(), Amount: settings.RegistrationBonus, Timestamp: time.Now().UTC()}
		if err := s.eventProducer.Publish(ctx, rabbitmq.WalletEventsExchange, "bonus.credited", event); err != nil {
			log.Printf("CreditSignupBonus: failed to publish event for %s: %v", userID, err)
		}
	}

	log.Printf("CreditSignupBonus: credited %d to user %s (new balance %d)", settings.RegistrationBonus, userID, newBalance)
	return &domain.BonusResult{Amount: settings.RegistrationBonus, NewBalance: newBalance}, nil
}

func purposeForCategory(category string) string {
	switch category {
	case domain.EntryCategoryActivation:
		return domain.PaymentPurposeActivation
	case domain.EntryCategoryTopUp:
		return domain.PaymentPurposeTopUp
	default:
		return category
	}
}

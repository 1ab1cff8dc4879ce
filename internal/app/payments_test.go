package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/flashbot/wallet-service/internal/domain"
	"github.com/flashbot/wallet-service/internal/store"
	"github.com/flashbot/wallet-service/pkg/flutterwave"
)

type paymentRepoStub struct {
	store.Repository

	user     *domain.User
	settings *domain.Settings

	createdEntry  *domain.LedgerEntry
	createErr     error
	deletedRef    string
	entryByRef    *domain.LedgerEntry
	markedFailed  string
	expireCalls   int
	activateCalls int
	activateOK    bool
	topupCalls    int
	topupOK       bool
	topupCredit   int64

	bonusEntry      *domain.LedgerEntry
	bonusErr        error
	bonusCredited   bool
	bonusNewBalance int64
	clearedUserID   uuid.UUID
}

func (s *paymentRepoStub) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	if s.user == nil || s.user.ID != userID {
		return nil, store.ErrUserNotFound
	}
	return s.user, nil
}

func (s *paymentRepoStub) GetSettings(ctx context.Context) (*domain.Settings, error) {
	if s.settings == nil {
		return nil, errors.New("settings unavailable")
	}
	return s.settings, nil
}

func (s *paymentRepoStub) CreatePendingEntry(ctx context.Context, entry *domain.LedgerEntry) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.createdEntry = entry
	return nil
}

func (s *paymentRepoStub) DeletePendingEntry(ctx context.Context, reference string) error {
	s.deletedRef = reference
	return nil
}

func (s *paymentRepoStub) FindEntryByReference(ctx context.Context, reference string) (*domain.LedgerEntry, error) {
	if s.entryByRef == nil || s.entryByRef.Reference != reference {
		return nil, store.ErrEntryNotFound
	}
	return s.entryByRef, nil
}

func (s *paymentRepoStub) MarkEntryFailed(ctx context.Context, reference string) error {
	s.markedFailed = reference
	return nil
}

func (s *paymentRepoStub) ExpirePendingPayments(ctx context.Context, olderThan time.Time) (int64, error) {
	s.expireCalls++
	return 0, nil
}

func (s *paymentRepoStub) CompleteActivationPayment(ctx context.Context, reference string, userID uuid.UUID) (bool, error) {
	s.activateCalls++
	return s.activateOK, nil
}

func (s *paymentRepoStub) CompleteTopUpPayment(ctx context.Context, reference string, userID uuid.UUID, creditAmount int64) (bool, error) {
	s.topupCalls++
	s.topupCredit = creditAmount
	return s.topupOK, nil
}

func (s *paymentRepoStub) CreditBonusAndClearCountdown(ctx context.Context, entry *domain.LedgerEntry) (int64, error) {
	if s.bonusErr != nil {
		return 0, s.bonusErr
	}
	s.bonusEntry = entry
	return s.bonusNewBalance, nil
}

func (s *paymentRepoStub) HasCompletedBonusEntry(ctx context.Context, userID uuid.UUID) (bool, error) {
	return s.bonusCredited, nil
}

func (s *paymentRepoStub) ClearCountdown(ctx context.Context, userID uuid.UUID) error {
	s.clearedUserID = userID
	return nil
}

type gatewayStub struct {
	vaErr      error
	va         *flutterwave.VirtualAccount
	linkErr    error
	link       string
	verifyErr  error
	status     *flutterwave.PaymentStatus
	verifyHits int
}

func (g *gatewayStub) CreateVirtualAccount(ctx context.Context, req flutterwave.VirtualAccountRequest) (*flutterwave.VirtualAccount, error) {
	if g.vaErr != nil {
		return nil, g.vaErr
	}
	return g.va, nil
}

func (g *gatewayStub) CreatePaymentLink(ctx context.Context, req flutterwave.PaymentLinkRequest) (string, error) {
	if g.linkErr != nil {
		return "", g.linkErr
	}
	return g.link, nil
}

func (g *gatewayStub) VerifyByReference(ctx context.Context, reference string) (*flutterwave.PaymentStatus, error) {
	g.verifyHits++
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	return g.status, nil
}

func (g *gatewayStub) ListBanks(ctx context.Context) ([]domain.Bank, error) {
	return nil, nil
}

func (g *gatewayStub) ResolveAccount(ctx context.Context, accountNumber, bankCode string) (*flutterwave.ResolvedAccount, error) {
	return nil, nil
}

func testSettings() *domain.Settings {
	return &domain.Settings{
		ActivationFee:     3500000,
		TopUpPayAmount:    1250000,
		TopUpCreditAmount: 20000000,
		RegistrationBonus: 30000,
		CountdownMinutes:  5,
	}
}

func TestInitiatePayment_ActivationRejectedWhenAlreadyActive(t *testing.T) {
	userID := uuid.New()
	repo := &paymentRepoStub{user: &domain.User{ID: userID, IsActive: true}, settings: testSettings()}
	svc := NewService(repo, &gatewayStub{}, nil, nil, "secret", 0)

	_, err := svc.InitiatePayment(context.Background(), userID, domain.InitiatePaymentRequest{Purpose: domain.PaymentPurposeActivation})
	if !errors.Is(err, ErrAccountAlreadyActive) {
		t.Fatalf("expected ErrAccountAlreadyActive, got %v", err)
	}
	if repo.createdEntry != nil {
		t.Fatal("expected no pending entry for rejected activation")
	}
}

func TestInitiatePayment_AmountMismatchRejected(t *testing.T) {
	userID := uuid.New()
	repo := &paymentRepoStub{user: &domain.User{ID: userID}, settings: testSettings()}
	svc := NewService(repo, &gatewayStub{}, nil, nil, "secret", 0)

	_, err := svc.InitiatePayment(context.Background(), userID, domain.InitiatePaymentRequest{
		Purpose: domain.PaymentPurposeTopUp,
		Amount:  999,
	})
	if !errors.Is(err, ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got %v", err)
	}
}

func TestInitiatePayment_VirtualAccountPreferred(t *testing.T) {
	userID := uuid.New()
	repo := &paymentRepoStub{user: &domain.User{ID: userID, Email: "ada@example.com"}, settings: testSettings()}
	gw := &gatewayStub{va: &flutterwave.VirtualAccount{AccountNumber: "7700112233", AccountName: "FLASHBOT-Ada", BankName: "Wema Bank"}}
	svc := NewService(repo, gw, nil, nil, "secret", 0)

	handle, err := svc.InitiatePayment(context.Background(), userID, domain.InitiatePaymentRequest{
		Purpose: domain.PaymentPurposeTopUp,
		Amount:  1250000,
	})
	if err != nil {
		t.Fatalf("expected payment initiation to succeed, got %v", err)
	}
	if handle.PaymentType != "virtual_account" {
		t.Fatalf("expected virtual_account handle, got %q", handle.PaymentType)
	}
	if handle.Amount != 1250000 {
		t.Fatalf("expected configured top-up amount, got %d", handle.Amount)
	}
	if repo.createdEntry == nil || repo.createdEntry.Category != domain.EntryCategoryTopUp {
		t.Fatalf("expected a pending topup entry, got %+v", repo.createdEntry)
	}
	if !strings.HasPrefix(repo.createdEntry.Reference, "TOPUP_") {
		t.Fatalf("expected a TOPUP_ reference, got %q", repo.createdEntry.Reference)
	}
}

func TestInitiatePayment_OmittedAmountRejected(t *testing.T) {
	userID := uuid.New()
	repo := &paymentRepoStub{user: &domain.User{ID: userID, Email: "ada@example.com"}, settings: testSettings()}
	svc := NewService(repo, &gatewayStub{}, nil, nil, "secret", 0)

	// A zero amount must not slip past the fee check.
	_, err := svc.InitiatePayment(context.Background(), userID, domain.InitiatePaymentRequest{Purpose: domain.PaymentPurposeTopUp})
	if !errors.Is(err, ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch for an omitted amount, got %v", err)
	}
	if repo.createdEntry != nil {
		t.Fatalf("expected no pending entry, got %+v", repo.createdEntry)
	}
}

func TestInitiatePayment_FallsBackToPaymentLink(t *testing.T) {
	userID := uuid.New()
	repo := &paymentRepoStub{user: &domain.User{ID: userID, Email: "ada@example.com"}, settings: testSettings()}
	gw := &gatewayStub{vaErr: errors.New("issuance failed"), link: "https://checkout.flutterwave.com/pay/abc"}
	svc := NewService(repo, gw, nil, nil, "secret", 0)

	handle, err := svc.InitiatePayment(context.Background(), userID, domain.InitiatePaymentRequest{
		Purpose: domain.PaymentPurposeActivation,
		Amount:  3500000,
	})
	if err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}
	if handle.PaymentType != "payment_link" || handle.PaymentLink == "" {
		t.Fatalf("expected payment link handle, got %+v", handle)
	}
	if !strings.HasPrefix(repo.createdEntry.Reference, "ACTIVATION_") {
		t.Fatalf("expected an ACTIVATION_ reference, got %q", repo.createdEntry.Reference)
	}
	if repo.deletedRef != "" {
		t.Fatal("expected the pending entry to survive a successful fallback")
	}
}

func TestInitiatePayment_BothChannelsFailCleansUp(t *testing.T) {
	userID := uuid.New()
	repo := &paymentRepoStub{user: &domain.User{ID: userID, Email: "ada@example.com"}, settings: testSettings()}
	gw := &gatewayStub{vaErr: errors.New("issuance failed"), linkErr: errors.New("link failed")}
	svc := NewService(repo, gw, nil, nil, "secret", 0)

	_, err := svc.InitiatePayment(context.Background(), userID, domain.InitiatePaymentRequest{
		Purpose: domain.PaymentPurposeTopUp,
		Amount:  1250000,
	})
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
	if repo.createdEntry == nil {
		t.Fatal("expected the entry to have been anchored before the gateway calls")
	}
	if repo.deletedRef != repo.createdEntry.Reference {
		t.Fatalf("expected orphan entry %s to be removed, deleted %q", repo.createdEntry.Reference, repo.deletedRef)
	}
}

func TestConfirmPayment_CompletedEntrySkipsGateway(t *testing.T) {
	userID := uuid.New()
	repo := &paymentRepoStub{
		entryByRef: &domain.LedgerEntry{
			UserID:    userID,
			Reference: "FBT_1_x",
			Category:  domain.EntryCategoryActivation,
			Status:    domain.EntryStatusCompleted,
			CreatedAt: time.Now(),
		},
	}
	gw := &gatewayStub{}
	svc := NewService(repo, gw, nil, nil, "secret", 0)

	conf, err := svc.ConfirmPayment(context.Background(), userID, "FBT_1_x")
	if err != nil {
		t.Fatalf("expected completed entry to confirm, got %v", err)
	}
	if !conf.AlreadyDone {
		t.Fatal("expected AlreadyDone for a completed entry")
	}
	if gw.verifyHits != 0 {
		t.Fatalf("expected no gateway verification, got %d calls", gw.verifyHits)
	}
}

func TestConfirmPayment_ExpiredEntryRejected(t *testing.T) {
	userID := uuid.New()
	repo := &paymentRepoStub{
		entryByRef: &domain.LedgerEntry{
			UserID:    userID,
			Reference: "FBT_2_x",
			Category:  domain.EntryCategoryTopUp,
			Status:    domain.EntryStatusExpired,
			CreatedAt: time.Now().Add(-time.Hour),
		},
	}
	svc := NewService(repo, &gatewayStub{}, nil, nil, "secret", 0)

	if _, err := svc.ConfirmPayment(context.Background(), userID, "FBT_2_x"); !errors.Is(err, ErrPaymentExpired) {
		t.Fatalf("expected ErrPaymentExpired, got %v", err)
	}
}

func TestConfirmPayment_PendingPastWindowExpires(t *testing.T) {
	userID := uuid.New()
	repo := &paymentRepoStub{
		entryByRef: &domain.LedgerEntry{
			UserID:    userID,
			Reference: "FBT_3_x",
			Category:  domain.EntryCategoryTopUp,
			Status:    domain.EntryStatusPending,
			CreatedAt: time.Now().Add(-time.Hour),
		},
	}
	gw := &gatewayStub{}
	svc := NewService(repo, gw, nil, nil, "secret", 15*time.Minute)

	if _, err := svc.ConfirmPayment(context.Background(), userID, "FBT_3_x"); !errors.Is(err, ErrPaymentExpired) {
		t.Fatalf("expected ErrPaymentExpired, got %v", err)
	}
	if repo.expireCalls != 1 {
		t.Fatalf("expected one inline expiry sweep, got %d", repo.expireCalls)
	}
	if gw.verifyHits != 0 {
		t.Fatal("expected no gateway verification past the window")
	}
}

func TestConfirmPayment_TopUpCreditsConfiguredAmount(t *testing.T) {
	userID := uuid.New()
	repo := &paymentRepoStub{
		settings: testSettings(),
		topupOK:  true,
		entryByRef: &domain.LedgerEntry{
			UserID:    userID,
			Reference: "FBT_4_x",
			Category:  domain.EntryCategoryTopUp,
			Amount:    1250000,
			Status:    domain.EntryStatusPending,
			CreatedAt: time.Now(),
		},
	}
	gw := &gatewayStub{status: &flutterwave.PaymentStatus{Reference: "FBT_4_x", Status: flutterwave.PaymentSuccessful, AmountPaid: 1250000}}
	svc := NewService(repo, gw, nil, nil, "secret", 0)

	conf, err := svc.ConfirmPayment(context.Background(), userID, "FBT_4_x")
	if err != nil {
		t.Fatalf("expected confirmation to succeed, got %v", err)
	}
	if conf.AlreadyDone {
		t.Fatal("expected a fresh application, got AlreadyDone")
	}
	// The credited amount is the configured credit, not the amount paid.
	if conf.AmountCredited != 20000000 {
		t.Fatalf("expected 20000000 credited, got %d", conf.AmountCredited)
	}
	if repo.topupCredit != 20000000 {
		t.Fatalf("expected repo credit of 20000000, got %d", repo.topupCredit)
	}
}

func TestConfirmPayment_UnderpaymentRejected(t *testing.T) {
	userID := uuid.New()
	repo := &paymentRepoStub{
		settings: testSettings(),
		entryByRef: &domain.LedgerEntry{
			UserID:    userID,
			Reference: "FBT_5_x",
			Category:  domain.EntryCategoryActivation,
			Amount:    3500000,
			Status:    domain.EntryStatusPending,
			CreatedAt: time.Now(),
		},
	}
	gw := &gatewayStub{status: &flutterwave.PaymentStatus{Reference: "FBT_5_x", Status: flutterwave.PaymentSuccessful, AmountPaid: 100}}
	svc := NewService(repo, gw, nil, nil, "secret", 0)

	if _, err := svc.ConfirmPayment(context.Background(), userID, "FBT_5_x"); !errors.Is(err, ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch on underpayment, got %v", err)
	}
	if repo.activateCalls != 0 {
		t.Fatal("expected no activation for an underpaid reference")
	}
}

func TestConfirmPayment_SecondConfirmIsAlreadyDone(t *testing.T) {
	userID := uuid.New()
	repo := &paymentRepoStub{
		settings:   testSettings(),
		activateOK: false, // status flip lost the race; the effect already applied
		entryByRef: &domain.LedgerEntry{
			UserID:    userID,
			Reference: "FBT_6_x",
			Category:  domain.EntryCategoryActivation,
			Amount:    3500000,
			Status:    domain.EntryStatusPending,
			CreatedAt: time.Now(),
		},
	}
	gw := &gatewayStub{status: &flutterwave.PaymentStatus{Reference: "FBT_6_x", Status: flutterwave.PaymentSuccessful, AmountPaid: 3500000}}
	svc := NewService(repo, gw, nil, nil, "secret", 0)

	conf, err := svc.ConfirmPayment(context.Background(), userID, "FBT_6_x")
	if err != nil {
		t.Fatalf("expected confirmation to succeed, got %v", err)
	}
	if !conf.AlreadyDone {
		t.Fatal("expected AlreadyDone when the status flip was already applied")
	}
}

func TestConfirmPayment_FailedGatewayStatusMarksEntry(t *testing.T) {
	userID := uuid.New()
	repo := &paymentRepoStub{
		entryByRef: &domain.LedgerEntry{
			UserID:    userID,
			Reference: "FBT_7_x",
			Category:  domain.EntryCategoryTopUp,
			Amount:    1250000,
			Status:    domain.EntryStatusPending,
			CreatedAt: time.Now(),
		},
	}
	gw := &gatewayStub{status: &flutterwave.PaymentStatus{Reference: "FBT_7_x", Status: flutterwave.PaymentFailed}}
	svc := NewService(repo, gw, nil, nil, "secret", 0)

	conf, err := svc.ConfirmPayment(context.Background(), userID, "FBT_7_x")
	if err != nil {
		t.Fatalf("expected a failed confirmation result, got error %v", err)
	}
	if conf.Status != domain.EntryStatusFailed {
		t.Fatalf("expected failed status, got %q", conf.Status)
	}
	if repo.markedFailed != "FBT_7_x" {
		t.Fatalf("expected entry marked failed, got %q", repo.markedFailed)
	}
}

func TestConfirmPayment_ForeignReferenceHidden(t *testing.T) {
	repo := &paymentRepoStub{
		entryByRef: &domain.LedgerEntry{
			UserID:    uuid.New(),
			Reference: "FBT_8_x",
			Status:    domain.EntryStatusPending,
			CreatedAt: time.Now(),
		},
	}
	svc := NewService(repo, &gatewayStub{}, nil, nil, "secret", 0)

	if _, err := svc.ConfirmPayment(context.Background(), uuid.New(), "FBT_8_x"); !errors.Is(err, store.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound for a foreign reference, got %v", err)
	}
}

func TestCreditSignupBonus_CountdownStillRunning(t *testing.T) {
	userID := uuid.New()
	endsAt := time.Now().Add(3 * time.Minute)
	repo := &paymentRepoStub{
		user:     &domain.User{ID: userID, CountdownEndsAt: &endsAt},
		settings: testSettings(),
	}
	svc := NewService(repo, nil, nil, nil, "secret", 0)

	if _, err := svc.CreditSignupBonus(context.Background(), userID); !errors.Is(err, ErrCountdownActive) {
		t.Fatalf("expected ErrCountdownActive, got %v", err)
	}
	if repo.bonusEntry != nil {
		t.Fatal("expected no bonus credit while the countdown runs")
	}
}

func TestCreditSignupBonus_AppliesOnce(t *testing.T) {
	userID := uuid.New()
	endsAt := time.Now().Add(-time.Minute)
	repo := &paymentRepoStub{
		user:            &domain.User{ID: userID, CountdownEndsAt: &endsAt},
		settings:        testSettings(),
		bonusNewBalance: 30000,
	}
	svc := NewService(repo, nil, nil, nil, "secret", 0)

	result, err := svc.CreditSignupBonus(context.Background(), userID)
	if err != nil {
		t.Fatalf("expected bonus credit to succeed, got %v", err)
	}
	if result.AlreadyCredited {
		t.Fatal("expected a fresh credit")
	}
	if result.Amount != 30000 || result.NewBalance != 30000 {
		t.Fatalf("unexpected bonus result %+v", result)
	}
	if repo.bonusEntry == nil || repo.bonusEntry.Reference != "BONUS_"+userID.String() {
		t.Fatalf("unexpected bonus entry %+v", repo.bonusEntry)
	}

	repo.bonusErr = store.ErrBonusAlreadyCredited
	replay, err := svc.CreditSignupBonus(context.Background(), userID)
	if err != nil {
		t.Fatalf("expected replay to resolve quietly, got %v", err)
	}
	if !replay.AlreadyCredited {
		t.Fatal("expected AlreadyCredited on replay")
	}
	if repo.clearedUserID != userID {
		t.Fatalf("expected countdown cleared on replay, got %s", repo.clearedUserID)
	}
}

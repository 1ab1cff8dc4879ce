package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/flashbot/wallet-service/internal/domain"
	"github.com/flashbot/wallet-service/internal/store"
)

type transferRepoStub struct {
	store.Repository

	user *domain.User

	debitErr     error
	debitedEntry *domain.LedgerEntry

	findEntry *domain.LedgerEntry

	revertCalled bool
	revertMarker string
	revertResult *domain.RevertResult
	revertErr    error
}

func (s *transferRepoStub) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	if s.user == nil || s.user.ID != userID {
		return nil, store.ErrUserNotFound
	}
	return s.user, nil
}

func (s *transferRepoStub) DebitWalletWithEntry(ctx context.Context, entry *domain.LedgerEntry) error {
	if s.debitErr != nil {
		return s.debitErr
	}
	s.debitedEntry = entry
	return nil
}

func (s *transferRepoStub) FindEntryByID(ctx context.Context, entryID uuid.UUID) (*domain.LedgerEntry, error) {
	if s.findEntry == nil || s.findEntry.ID != entryID {
		return nil, store.ErrEntryNotFound
	}
	return s.findEntry, nil
}

func (s *transferRepoStub) RevertPendingTransfer(ctx context.Context, entryID uuid.UUID, marker, reversalReference, reversalDescription string) (*domain.RevertResult, error) {
	s.revertCalled = true
	s.revertMarker = marker
	if s.revertErr != nil {
		return nil, s.revertErr
	}
	return s.revertResult, nil
}

type stubRateLimiter struct {
	count int
	err   error
}

func (s *stubRateLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	return s.count, 30, s.err
}

func validTransferRequest(amount int64) domain.TransferRequest {
	return domain.TransferRequest{
		BankCode:      "058",
		BankName:      "GTBank",
		AccountNumber: "0123456789",
		AccountName:   "Ada Obi",
		Amount:        amount,
	}
}

func TestInitiateTransfer_PendingForUnactivatedUser(t *testing.T) {
	userID := uuid.New()
	repo := &transferRepoStub{user: &domain.User{ID: userID, WalletBalance: 500000, IsActive: false}}
	svc := NewService(repo, nil, nil, nil, "secret", 0)

	result, err := svc.InitiateTransfer(context.Background(), userID, validTransferRequest(100000))
	if err != nil {
		t.Fatalf("expected transfer to succeed, got %v", err)
	}
	if result.Status != domain.EntryStatusPending {
		t.Fatalf("expected pending status for unactivated user, got %q", result.Status)
	}
	if repo.debitedEntry == nil {
		t.Fatal("expected a debit to have been recorded")
	}
	if repo.debitedEntry.Category != domain.EntryCategoryTransfer {
		t.Fatalf("expected transfer category, got %q", repo.debitedEntry.Category)
	}
}

func TestInitiateTransfer_CompletedForActiveUser(t *testing.T) {
	userID := uuid.New()
	repo := &transferRepoStub{user: &domain.User{ID: userID, WalletBalance: 500000, IsActive: true}}
	svc := NewService(repo, nil, nil, nil, "secret", 0)

	result, err := svc.InitiateTransfer(context.Background(), userID, validTransferRequest(100000))
	if err != nil {
		t.Fatalf("expected transfer to succeed, got %v", err)
	}
	if result.Status != domain.EntryStatusCompleted {
		t.Fatalf("expected completed status for active user, got %q", result.Status)
	}
}

func TestInitiateTransfer_InsufficientFunds(t *testing.T) {
	userID := uuid.New()
	repo := &transferRepoStub{
		user:     &domain.User{ID: userID, WalletBalance: 100},
		debitErr: store.ErrInsufficientFunds,
	}
	svc := NewService(repo, nil, nil, nil, "secret", 0)

	_, err := svc.InitiateTransfer(context.Background(), userID, validTransferRequest(100000))
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestInitiateTransfer_RejectsNonPositiveAmounts(t *testing.T) {
	userID := uuid.New()
	repo := &transferRepoStub{user: &domain.User{ID: userID, WalletBalance: 500000}}
	svc := NewService(repo, nil, nil, nil, "secret", 0)

	for _, amount := range []int64{0, -1, -100000} {
		if _, err := svc.InitiateTransfer(context.Background(), userID, validTransferRequest(amount)); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("amount %d: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
	if repo.debitedEntry != nil {
		t.Fatal("expected no debit for rejected amounts")
	}
}

func TestInitiateTransfer_RateLimited(t *testing.T) {
	userID := uuid.New()
	repo := &transferRepoStub{user: &domain.User{ID: userID, WalletBalance: 500000}}
	svc := NewService(repo, nil, nil, &stubRateLimiter{count: 11}, "secret", 0)

	_, err := svc.InitiateTransfer(context.Background(), userID, validTransferRequest(100000))
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if repo.debitedEntry != nil {
		t.Fatal("expected no debit when rate limited")
	}
}

func TestInitiateTransfer_LimiterOutageDoesNotBlock(t *testing.T) {
	userID := uuid.New()
	repo := &transferRepoStub{user: &domain.User{ID: userID, WalletBalance: 500000}}
	svc := NewService(repo, nil, nil, &stubRateLimiter{err: errors.New("redis down")}, "secret", 0)

	if _, err := svc.InitiateTransfer(context.Background(), userID, validTransferRequest(100000)); err != nil {
		t.Fatalf("expected transfer to proceed through limiter outage, got %v", err)
	}
}

func TestRevertTransfer_RejectsForeignEntry(t *testing.T) {
	owner := uuid.New()
	entryID := uuid.New()
	repo := &transferRepoStub{
		user:      &domain.User{ID: uuid.New(), IsActive: false},
		findEntry: &domain.LedgerEntry{ID: entryID, UserID: owner, Category: domain.EntryCategoryTransfer, Status: domain.EntryStatusPending},
	}
	svc := NewService(repo, nil, nil, nil, "secret", 0)

	_, err := svc.RevertTransfer(context.Background(), uuid.New(), entryID)
	if !errors.Is(err, store.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound for foreign entry, got %v", err)
	}
	if repo.revertCalled {
		t.Fatal("expected no revert attempt for foreign entry")
	}
}

func TestRevertTransfer_RejectsActiveAccount(t *testing.T) {
	userID := uuid.New()
	entryID := uuid.New()
	repo := &transferRepoStub{
		user:      &domain.User{ID: userID, IsActive: true},
		findEntry: &domain.LedgerEntry{ID: entryID, UserID: userID, Category: domain.EntryCategoryTransfer, Status: domain.EntryStatusPending},
	}
	svc := NewService(repo, nil, nil, nil, "secret", 0)

	_, err := svc.RevertTransfer(context.Background(), userID, entryID)
	if !errors.Is(err, store.ErrNotRevertible) {
		t.Fatalf("expected ErrNotRevertible for active account, got %v", err)
	}
}

func TestRevertTransfer_SecondAttemptFails(t *testing.T) {
	userID := uuid.New()
	entryID := uuid.New()
	repo := &transferRepoStub{
		user:         &domain.User{ID: userID, IsActive: false},
		findEntry:    &domain.LedgerEntry{ID: entryID, UserID: userID, Category: domain.EntryCategoryTransfer, Status: domain.EntryStatusPending, Reference: "FBT_1_x"},
		revertResult: &domain.RevertResult{EntryID: entryID, AmountReturned: 100000},
	}
	svc := NewService(repo, nil, nil, nil, "secret", 0)

	result, err := svc.RevertTransfer(context.Background(), userID, entryID)
	if err != nil {
		t.Fatalf("expected first revert to succeed, got %v", err)
	}
	if result.AmountReturned != 100000 {
		t.Fatalf("expected 100000 returned, got %d", result.AmountReturned)
	}

	// The structural guard in the store rejects the replay.
	repo.revertErr = store.ErrNotRevertible
	if _, err := svc.RevertTransfer(context.Background(), userID, entryID); !errors.Is(err, store.ErrNotRevertible) {
		t.Fatalf("expected ErrNotRevertible on second attempt, got %v", err)
	}
}

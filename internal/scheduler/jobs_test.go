package scheduler

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/flashbot/wallet-service/internal/app"
	"github.com/flashbot/wallet-service/internal/domain"
	"github.com/flashbot/wallet-service/internal/store"
)

type sweepRepoStub struct {
	store.Repository

	elapsedUsers []domain.User
	settings     *domain.Settings

	bonusCalls       int
	bonusAlreadyDone bool
	clearedCountdown []uuid.UUID
	expireOlderThan  time.Time
}

func (s *sweepRepoStub) FindUsersWithElapsedCountdown(ctx context.Context, now time.Time, limit int) ([]domain.User, error) {
	return s.elapsedUsers, nil
}

func (s *sweepRepoStub) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	for i := range s.elapsedUsers {
		if s.elapsedUsers[i].ID == userID {
			return &s.elapsedUsers[i], nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (s *sweepRepoStub) GetSettings(ctx context.Context) (*domain.Settings, error) {
	return s.settings, nil
}

func (s *sweepRepoStub) HasCompletedBonusEntry(ctx context.Context, userID uuid.UUID) (bool, error) {
	return s.bonusAlreadyDone, nil
}

func (s *sweepRepoStub) CreditBonusAndClearCountdown(ctx context.Context, entry *domain.LedgerEntry) (int64, error) {
	s.bonusCalls++
	if s.bonusAlreadyDone {
		return 0, store.ErrBonusAlreadyCredited
	}
	return entry.Amount, nil
}

func (s *sweepRepoStub) ClearCountdown(ctx context.Context, userID uuid.UUID) error {
	s.clearedCountdown = append(s.clearedCountdown, userID)
	return nil
}

func (s *sweepRepoStub) ExpirePendingPayments(ctx context.Context, olderThan time.Time) (int64, error) {
	s.expireOlderThan = olderThan
	return 3, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func elapsed() *time.Time {
	t := time.Now().Add(-time.Minute)
	return &t
}

func TestProcessElapsedCountdowns_CreditsEligibleUsers(t *testing.T) {
	repo := &sweepRepoStub{
		elapsedUsers: []domain.User{
			{ID: uuid.New(), CountdownEndsAt: elapsed()},
			{ID: uuid.New(), CountdownEndsAt: elapsed()},
		},
		settings: &domain.Settings{RegistrationBonus: 30000, CountdownMinutes: 5},
	}
	svc := app.NewService(repo, nil, nil, nil, "secret", 0)
	jobs := NewJobs(svc, repo, discardLogger())

	jobs.ProcessElapsedCountdowns()

	if repo.bonusCalls != 2 {
		t.Fatalf("expected 2 bonus credits, got %d", repo.bonusCalls)
	}
	if len(repo.clearedCountdown) != 0 {
		t.Fatalf("expected no extra countdown clears for fresh credits, got %d", len(repo.clearedCountdown))
	}
}

func TestProcessElapsedCountdowns_ClearsCountdownForAlreadyCredited(t *testing.T) {
	userID := uuid.New()
	repo := &sweepRepoStub{
		elapsedUsers:     []domain.User{{ID: userID, CountdownEndsAt: elapsed()}},
		settings:         &domain.Settings{RegistrationBonus: 30000, CountdownMinutes: 5},
		bonusAlreadyDone: true,
	}
	svc := app.NewService(repo, nil, nil, nil, "secret", 0)
	jobs := NewJobs(svc, repo, discardLogger())

	jobs.ProcessElapsedCountdowns()

	if len(repo.clearedCountdown) != 1 || repo.clearedCountdown[0] != userID {
		t.Fatalf("expected countdown cleared for %s, got %v", userID, repo.clearedCountdown)
	}
}

func TestProcessPaymentExpiry_UsesPaymentWindow(t *testing.T) {
	repo := &sweepRepoStub{}
	svc := app.NewService(repo, nil, nil, nil, "secret", 15*time.Minute)
	jobs := NewJobs(svc, repo, discardLogger())

	before := time.Now()
	jobs.ProcessPaymentExpiry()

	want := before.Add(-15 * time.Minute)
	if repo.expireOlderThan.Before(want.Add(-time.Minute)) || repo.expireOlderThan.After(want.Add(time.Minute)) {
		t.Fatalf("expiry cutoff %s, expected about %s", repo.expireOlderThan, want)
	}
}

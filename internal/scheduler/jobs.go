/**
 * @description
 * Scheduled job implementations: the signup-bonus sweep and the pending
 * payment expiry sweep. Both jobs are idempotent and race-safe against the
 * user-triggered versions of the same operations.
 */
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/flashbot/wallet-service/internal/app"
	"github.com/flashbot/wallet-service/internal/store"
)

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	service *app.Service
	repo    store.Repository
	logger  *slog.Logger
}

// NewJobs creates a new Jobs runner.
func NewJobs(service *app.Service, repo store.Repository, logger *slog.Logger) *Jobs {
	return &Jobs{
		service: service,
		repo:    repo,
		logger:  logger,
	}
}

// ProcessElapsedCountdowns credits the registration bonus to users whose
// signup countdown has ended but who never claimed it from the client. The
// credit path is the same at-most-once one the claim endpoint uses, so a
// client claim racing the sweep cannot double-credit.
func (j *Jobs) ProcessElapsedCountdowns() {
	j.logger.Info("starting bonus sweep job")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	users, err := j.repo.FindUsersWithElapsedCountdown(ctx, time.Now(), 200)
	if err != nil {
		j.logger.Error("failed to list users with elapsed countdowns", "error", err)
		return
	}

	credited := 0
	for _, user := range users {
		result, err := j.service.CreditSignupBonus(ctx, user.ID)
		if err != nil {
			if errors.Is(err, store.ErrUserNotFound) {
				continue
			}
			j.logger.Error("bonus credit failed", "user_id", user.ID, "error", err)
			continue
		}
		if result.AlreadyCredited {
			// The credit path already cleared the countdown, so the user
			// drops out of the next sweep.
			continue
		}
		credited++
	}

	j.logger.Info("bonus sweep job finished", "eligible", len(users), "credited", credited)
}

// ProcessPaymentExpiry resolves pending gateway payments that outlived the
// payment window into the terminal expired state.
func (j *Jobs) ProcessPaymentExpiry() {
	j.logger.Info("starting payment expiry job")
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	expired, err := j.service.ExpireStalePayments(ctx, time.Now())
	if err != nil {
		j.logger.Error("payment expiry sweep failed", "error", err)
		return
	}

	j.logger.Info("payment expiry job finished", "expired", expired)
}

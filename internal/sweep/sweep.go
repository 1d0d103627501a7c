// Package sweep runs the periodic maintenance jobs: deactivating long-expired
// plans and resetting the daily free-use flag.
package sweep

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"wifree_bot/internal/chat"
	"wifree_bot/internal/domain"
	"wifree_bot/internal/ui"
)

// expiryGrace is how long past its end date a plan is left active before the
// hourly sweep deactivates it. Interactive events still see the plan as
// expired immediately.
const expiryGrace = 12 * time.Hour

const (
	expiredSpec = "0 * * * *"
	resetSpec   = "0 0 * * *"
)

// AccountStore is the account access the sweeper needs.
type AccountStore interface {
	FindExpired(ctx context.Context, cutoff time.Time) ([]domain.Account, error)
	DeactivatePlan(ctx context.Context, chatID int64) error
	ResetDailyUsage(ctx context.Context) (int64, error)
}

// Sender delivers a single outbound message.
type Sender interface {
	Send(ctx context.Context, msg chat.Message) error
}

// Sweeper owns the two maintenance jobs.
type Sweeper struct {
	accounts AccountStore
	sender   Sender
	logger   *logrus.Entry
	now      func() time.Time
}

// New builds a sweeper. sender may be nil, in which case expiry
// notifications are skipped.
func New(accounts AccountStore, sender Sender, logger *logrus.Entry) *Sweeper {
	return &Sweeper{accounts: accounts, sender: sender, logger: logger, now: time.Now}
}

// Schedule registers both jobs on the given scheduler: the expiry sweep
// hourly and the daily-usage reset at midnight.
func (s *Sweeper) Schedule(c *cron.Cron) error {
	if _, err := c.AddFunc(expiredSpec, func() { s.SweepExpired(context.Background()) }); err != nil {
		return err
	}
	_, err := c.AddFunc(resetSpec, func() { s.ResetDailyUsage(context.Background()) })
	return err
}

// SweepExpired deactivates plans whose end date passed more than the grace
// period ago and notifies their owners. Failures on one account do not stop
// the sweep.
func (s *Sweeper) SweepExpired(ctx context.Context) {
	cutoff := s.now().UTC().Add(-expiryGrace)
	expired, err := s.accounts.FindExpired(ctx, cutoff)
	if err != nil {
		s.logger.WithError(err).Error("expired plan sweep failed")
		return
	}

	for _, account := range expired {
		if err := s.accounts.DeactivatePlan(ctx, account.ChatID); err != nil {
			s.logger.WithFields(logrus.Fields{
				"chat_id": account.ChatID,
				"error":   err,
			}).Error("plan deactivation failed")
			continue
		}
		s.logger.WithFields(logrus.Fields{
			"chat_id":   account.ChatID,
			"plan_type": account.Plan.Type,
		}).Info("expired plan deactivated")

		if s.sender == nil {
			continue
		}
		msg := chat.NewMessage(account.ChatID,
			"⚠️ Your plan has expired. Buy a new plan to keep surfing!").
			WithKeyboard(ui.MainMenu())
		if err := s.sender.Send(ctx, msg); err != nil {
			s.logger.WithFields(logrus.Fields{
				"chat_id": account.ChatID,
				"error":   err,
			}).Warn("expiry notification failed")
		}
	}
}

// ResetDailyUsage clears the daily free-use flag for every account.
func (s *Sweeper) ResetDailyUsage(ctx context.Context) {
	reset, err := s.accounts.ResetDailyUsage(ctx)
	if err != nil {
		s.logger.WithError(err).Error("daily usage reset failed")
		return
	}
	s.logger.WithField("accounts", reset).Info("daily usage reset")
}

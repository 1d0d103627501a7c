// Package status serves the read-only customer surface: the start and help
// commands, the plan overview and the free daily notice.
package status

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"wifree_bot/internal/catalog"
	"wifree_bot/internal/chat"
	"wifree_bot/internal/domain"
	"wifree_bot/internal/router"
	"wifree_bot/internal/ui"
)

// AccountStore is the account access the feature needs.
type AccountStore interface {
	RecordDailyUsage(ctx context.Context, chatID int64) error
}

// NoticeStore reads the admin-curated notice.
type NoticeStore interface {
	Active(ctx context.Context) (domain.Notice, error)
}

// Feature bundles the handlers and their dependencies.
type Feature struct {
	accounts AccountStore
	notices  NoticeStore
	logger   *logrus.Entry
	now      func() time.Time
}

// New builds the feature.
func New(accounts AccountStore, notices NoticeStore, logger *logrus.Entry) *Feature {
	return &Feature{accounts: accounts, notices: notices, logger: logger, now: time.Now}
}

// Register wires the feature's routes.
func (f *Feature) Register(r *router.Router) {
	r.Command("/start", f.handleStart(r))
	r.Command("/help", func(ctx context.Context, account domain.Account, _ []string, ev chat.Event) ([]chat.Message, error) {
		return f.handleHelp(ctx, account, ev)
	})
	r.Exact(ui.BtnHelp, f.handleHelp)
	r.Exact(ui.BtnShowMe, f.handleShowMe)
	r.Exact(ui.BtnMyPlan, f.handleMyPlan)
	r.Exact(ui.BtnBack, f.handleMainMenu)
	r.Exact(ui.BtnBackToUserMenu, f.handleMainMenu)
}

func (f *Feature) handleStart(r *router.Router) router.CommandHandler {
	return func(ctx context.Context, account domain.Account, _ []string, ev chat.Event) ([]chat.Message, error) {
		name := account.Profile.FirstName
		if name == "" {
			name = "there"
		}
		welcome := fmt.Sprintf(
			"👋 Welcome to Wi-FREE, %s!\n\n"+
				"I'm your internet connection assistant. You can view the daily access token or check out our subscription plans.\n\n"+
				"Use the menu below to navigate:", name)

		messages := []chat.Message{
			chat.NewMessage(account.ChatID, welcome).WithKeyboard(ui.MainMenu()),
		}
		if r.IsAdmin(account.ChatID) {
			messages = append(messages,
				chat.NewMessage(account.ChatID, "🔐 Admin menu is also available:").WithKeyboard(ui.AdminMenu()))
		}
		return messages, nil
	}
}

func (f *Feature) handleHelp(_ context.Context, account domain.Account, _ chat.Event) ([]chat.Message, error) {
	var plans strings.Builder
	for _, p := range catalog.All() {
		fmt.Fprintf(&plans, "- %s (%s)\n", p.Name, p.BasePrice.Naira())
	}

	help := "ℹ️ Wi-FREE Bot Help\n\n" +
		"Commands:\n" +
		"/start - Start the bot and access main menu\n" +
		"/help - Show this help message\n\n" +
		"Features:\n" +
		"🔎 Show Me - View today's access token\n" +
		"📊 My Plan - Check your current plan status\n" +
		"💰 My Balance - Check and manage your balance\n" +
		"💲 Buy Plan - Purchase a new data plan\n\n" +
		"Balance Management:\n" +
		"- Add funds to your balance by bank transfer\n" +
		"- Use balance to pay for plans\n" +
		"- Configure SMS token settings\n\n" +
		"Plans:\n" + plans.String() + "\n" +
		"For further assistance, please contact our support team."

	return []chat.Message{chat.NewMessage(account.ChatID, help)}, nil
}

func (f *Feature) handleShowMe(ctx context.Context, account domain.Account, _ chat.Event) ([]chat.Message, error) {
	now := f.now()
	if !account.CanUseDailyFree(now) {
		left := account.DailyFreeAvailableAt().Sub(now)
		hours := int(left / time.Hour)
		minutes := int(left/time.Minute) % 60
		text := fmt.Sprintf(
			"⏳ You've already used the \"Show Me\" feature in the last 24 hours.\n\n"+
				"You can use it again in %d hours and %d minutes.\n\n"+
				"Want unlimited access? Check out our subscription plans with the \"%s\" button!",
			hours, minutes, ui.BtnBuyPlan)
		return []chat.Message{chat.NewMessage(account.ChatID, text)}, nil
	}

	notice, err := f.notices.Active(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return []chat.Message{chat.NewMessage(account.ChatID, "No message has been set by the admin yet.")}, nil
	}
	if err != nil {
		return nil, err
	}

	if err := f.accounts.RecordDailyUsage(ctx, account.ChatID); err != nil {
		return nil, err
	}

	messages := []chat.Message{
		chat.NewMessage(account.ChatID, fmt.Sprintf(
			"📬 Here's today's message:\n\n%s\n\nLast updated: %s",
			notice.Message, ui.FormatDate(notice.UpdatedAt))),
	}
	if !account.HasActivePlan(now) {
		messages = append(messages, chat.NewMessage(account.ChatID, fmt.Sprintf(
			"📝 Note: You can use the \"Show Me\" command once every 24 hours.\n\n"+
				"For unlimited access, check out our subscription plans with the \"%s\" button!", ui.BtnBuyPlan)))
	}
	return messages, nil
}

func (f *Feature) handleMyPlan(_ context.Context, account domain.Account, _ chat.Event) ([]chat.Message, error) {
	if !account.Plan.IsActive {
		text := "📊 Your Plan\n\n" +
			"You don't have an active plan.\n\n" +
			"Use the Buy Plan option to subscribe."
		return []chat.Message{chat.NewMessage(account.ChatID, text)}, nil
	}

	plan, ok := catalog.Lookup(account.Plan.Type)
	planName := string(account.Plan.Type)
	if ok {
		planName = plan.Name
	}

	smsStatus := "❌ Disabled"
	if account.SMS.Enabled {
		smsStatus = "✅ Enabled"
	}
	text := fmt.Sprintf(
		"📊 Your Active Plan\n\n"+
			"Plan: %s\n"+
			"Status: Active ✅\n"+
			"Start Date: %s\n"+
			"End Date: %s\n"+
			"Remaining: %d days\n\n"+
			"SMS Token: %s",
		planName,
		ui.FormatDate(account.Plan.StartDate),
		ui.FormatDate(account.Plan.EndDate),
		account.PlanDaysRemaining(f.now()),
		smsStatus)

	return []chat.Message{chat.NewMessage(account.ChatID, text)}, nil
}

func (f *Feature) handleMainMenu(_ context.Context, account domain.Account, _ chat.Event) ([]chat.Message, error) {
	return []chat.Message{chat.NewMessage(account.ChatID, "Main menu:").WithKeyboard(ui.MainMenu())}, nil
}

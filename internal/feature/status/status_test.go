package status

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"wifree_bot/internal/chat"
	"wifree_bot/internal/conversation"
	"wifree_bot/internal/domain"
	"wifree_bot/internal/router"
)

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

type fakeAccounts struct {
	recorded []int64
}

func (f *fakeAccounts) RecordDailyUsage(_ context.Context, chatID int64) error {
	f.recorded = append(f.recorded, chatID)
	return nil
}

type fakeNotices struct {
	notice domain.Notice
	err    error
}

func (f *fakeNotices) Active(context.Context) (domain.Notice, error) {
	if f.err != nil {
		return domain.Notice{}, f.err
	}
	return f.notice, nil
}

type routerAccounts struct {
	account domain.Account
}

func (r *routerAccounts) Ensure(_ context.Context, chatID int64, profile domain.Profile) (domain.Account, error) {
	account := r.account
	account.ChatID = chatID
	account.Profile = profile
	return account, nil
}

func (r *routerAccounts) DeactivatePlan(context.Context, int64) error {
	return nil
}

func newFeature(notices *fakeNotices, accounts *fakeAccounts, now time.Time) *Feature {
	f := New(accounts, notices, testLogger())
	f.now = func() time.Time { return now }
	return f
}

func TestStartGreetsWithMainMenu(t *testing.T) {
	engine := conversation.NewEngine(testLogger())
	r := router.New(engine, &routerAccounts{}, 999, testLogger())

	f := newFeature(&fakeNotices{}, &fakeAccounts{}, time.Now())
	f.Register(r)

	msgs := r.Dispatch(context.Background(), chat.Event{
		SenderID: 5,
		Kind:     chat.EventText,
		Payload:  "/start",
		Profile:  chat.Profile{FirstName: "Ada"},
	})

	if len(msgs) != 1 {
		t.Fatalf("expected 1 message for a regular user, got %d", len(msgs))
	}
	if !strings.Contains(msgs[0].Text, "Welcome to Wi-FREE, Ada!") {
		t.Fatalf("expected personalized welcome, got %q", msgs[0].Text)
	}
	if msgs[0].Keyboard == nil {
		t.Fatalf("expected main menu keyboard")
	}
}

func TestStartShowsAdminMenuForAdmin(t *testing.T) {
	engine := conversation.NewEngine(testLogger())
	r := router.New(engine, &routerAccounts{}, 999, testLogger())

	f := newFeature(&fakeNotices{}, &fakeAccounts{}, time.Now())
	f.Register(r)

	msgs := r.Dispatch(context.Background(), chat.Event{
		SenderID: 999,
		Kind:     chat.EventText,
		Payload:  "/start",
	})

	if len(msgs) != 2 {
		t.Fatalf("expected welcome plus admin menu for admin, got %d messages", len(msgs))
	}
	if !strings.Contains(msgs[1].Text, "Admin menu") {
		t.Fatalf("expected admin menu message, got %q", msgs[1].Text)
	}
}

func TestShowMeDeliversNoticeAndRecordsUsage(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	accounts := &fakeAccounts{}
	notices := &fakeNotices{notice: domain.Notice{Message: "Token: 4471", UpdatedAt: now}}
	f := newFeature(notices, accounts, now)

	account := domain.Account{ChatID: 5}

	msgs, err := f.handleShowMe(context.Background(), account, chat.Event{})
	if err != nil {
		t.Fatalf("handleShowMe returned error: %v", err)
	}

	if len(msgs) != 2 {
		t.Fatalf("expected notice plus rate-limit note, got %d messages", len(msgs))
	}
	if !strings.Contains(msgs[0].Text, "Token: 4471") {
		t.Fatalf("expected notice text, got %q", msgs[0].Text)
	}
	if len(accounts.recorded) != 1 || accounts.recorded[0] != 5 {
		t.Fatalf("expected usage recorded for chat 5, got %v", accounts.recorded)
	}
}

func TestShowMeSkipsRateLimitNoteWithActivePlan(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	notices := &fakeNotices{notice: domain.Notice{Message: "Token: 4471", UpdatedAt: now}}
	f := newFeature(notices, &fakeAccounts{}, now)

	account := domain.Account{
		ChatID: 5,
		Plan:   domain.Plan{Type: domain.PlanTierB, IsActive: true, EndDate: now.Add(48 * time.Hour)},
	}

	msgs, err := f.handleShowMe(context.Background(), account, chat.Event{})
	if err != nil {
		t.Fatalf("handleShowMe returned error: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected only the notice for a subscriber, got %d messages", len(msgs))
	}
}

func TestShowMeRateLimited(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	accounts := &fakeAccounts{}
	f := newFeature(&fakeNotices{}, accounts, now)

	account := domain.Account{
		ChatID:     5,
		DailyUsage: domain.DailyUsage{LastUsed: now.Add(-2 * time.Hour), UsedToday: true},
	}

	msgs, err := f.handleShowMe(context.Background(), account, chat.Event{})
	if err != nil {
		t.Fatalf("handleShowMe returned error: %v", err)
	}
	if len(msgs) != 1 || !strings.Contains(msgs[0].Text, "already used") {
		t.Fatalf("expected rate-limit message, got %+v", msgs)
	}
	if !strings.Contains(msgs[0].Text, "22 hours") {
		t.Fatalf("expected remaining window in message, got %q", msgs[0].Text)
	}
	if len(accounts.recorded) != 0 {
		t.Fatalf("expected no usage recorded while rate limited, got %v", accounts.recorded)
	}
}

func TestShowMeNoNoticeSet(t *testing.T) {
	f := newFeature(&fakeNotices{err: domain.ErrNotFound}, &fakeAccounts{}, time.Now())

	msgs, err := f.handleShowMe(context.Background(), domain.Account{ChatID: 5}, chat.Event{})
	if err != nil {
		t.Fatalf("handleShowMe returned error: %v", err)
	}
	if len(msgs) != 1 || !strings.Contains(msgs[0].Text, "No message has been set") {
		t.Fatalf("expected empty-notice message, got %+v", msgs)
	}
}

func TestMyPlanWithoutPlan(t *testing.T) {
	f := newFeature(&fakeNotices{}, &fakeAccounts{}, time.Now())

	msgs, err := f.handleMyPlan(context.Background(), domain.Account{ChatID: 5}, chat.Event{})
	if err != nil {
		t.Fatalf("handleMyPlan returned error: %v", err)
	}
	if len(msgs) != 1 || !strings.Contains(msgs[0].Text, "don't have an active plan") {
		t.Fatalf("expected no-plan message, got %+v", msgs)
	}
}

func TestMyPlanShowsCatalogNameAndRemaining(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	f := newFeature(&fakeNotices{}, &fakeAccounts{}, now)

	account := domain.Account{
		ChatID: 5,
		Plan: domain.Plan{
			Type:      domain.PlanTierC,
			IsActive:  true,
			StartDate: now.Add(-24 * time.Hour),
			EndDate:   now.Add(6 * 24 * time.Hour),
		},
		SMS: domain.SMSPreference{Enabled: true},
	}

	msgs, err := f.handleMyPlan(context.Background(), account, chat.Event{})
	if err != nil {
		t.Fatalf("handleMyPlan returned error: %v", err)
	}
	text := msgs[0].Text
	if !strings.Contains(text, "Weekly Unlimited") {
		t.Fatalf("expected catalog plan name, got %q", text)
	}
	if !strings.Contains(text, "Remaining: 6 days") {
		t.Fatalf("expected remaining days, got %q", text)
	}
	if !strings.Contains(text, "SMS Token: ✅ Enabled") {
		t.Fatalf("expected sms status, got %q", text)
	}
}

func TestHelpListsPlans(t *testing.T) {
	f := newFeature(&fakeNotices{}, &fakeAccounts{}, time.Now())

	msgs, err := f.handleHelp(context.Background(), domain.Account{ChatID: 5}, chat.Event{})
	if err != nil {
		t.Fatalf("handleHelp returned error: %v", err)
	}
	text := msgs[0].Text
	for _, want := range []string{"15GB Daily Surf", "3-Day Unlimited", "Weekly Unlimited"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected help to list %q, got %q", want, text)
		}
	}
}

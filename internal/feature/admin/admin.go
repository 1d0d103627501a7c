// Package admin implements the operator surface: the payment review queue,
// statistics, user listings, SMS fee management, broadcasts, and the
// connection notice.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"wifree_bot/internal/catalog"
	"wifree_bot/internal/chat"
	"wifree_bot/internal/conversation"
	"wifree_bot/internal/domain"
	"wifree_bot/internal/ledger"
	"wifree_bot/internal/money"
	"wifree_bot/internal/router"
	"wifree_bot/internal/store"
	"wifree_bot/internal/ui"
)

const (
	sceneSetMessage    = "setMessage"
	sceneBulkDeduct    = "bulkDeductSMSFee"
	sceneCreditBalance = "creditBalance"

	userListCap = 20
)

// AccountStore is the account access the admin surface needs.
type AccountStore interface {
	GetByChatID(ctx context.Context, chatID int64) (domain.Account, error)
	FindAll(ctx context.Context, limit int64) ([]domain.Account, error)
	FindSMSEnabled(ctx context.Context) ([]domain.Account, error)
	FindActivePlans(ctx context.Context) ([]domain.Account, error)
}

// PaymentStore is the payment access the admin surface needs.
type PaymentStore interface {
	FindPending(ctx context.Context) ([]domain.Payment, error)
	FindApprovedTopups(ctx context.Context, limit int64) ([]domain.Payment, error)
	FindByChatID(ctx context.Context, chatID int64, limit int64) ([]domain.Payment, error)
}

// NoticeStore is the connection notice access the admin surface needs.
type NoticeStore interface {
	SetActive(ctx context.Context, message string) (domain.Notice, error)
}

// StatsSource produces the aggregate counters behind the statistics view.
type StatsSource interface {
	Collect(ctx context.Context) (store.Stats, error)
}

// Feature bundles the admin handlers.
type Feature struct {
	accounts AccountStore
	payments PaymentStore
	notices  NoticeStore
	stats    StatsSource
	ledger   *ledger.Service
	fees     *catalog.FeeConfig
	engine   *conversation.Engine
	logger   *logrus.Entry
}

// New builds the feature.
func New(accounts AccountStore, payments PaymentStore, notices NoticeStore, stats StatsSource, svc *ledger.Service, fees *catalog.FeeConfig, engine *conversation.Engine, logger *logrus.Entry) *Feature {
	return &Feature{
		accounts: accounts,
		payments: payments,
		notices:  notices,
		stats:    stats,
		ledger:   svc,
		fees:     fees,
		engine:   engine,
		logger:   logger,
	}
}

// Register wires the admin routes and scenes.
func (f *Feature) Register(r *router.Router) error {
	r.ExactAdmin(ui.BtnPendingPayments, f.handlePending)
	r.ExactAdmin(ui.BtnStatistics, f.handleStatistics)
	r.ExactAdmin(ui.BtnSMSUsers, f.handleSMSUsers)
	r.ExactAdmin(ui.BtnViewUsers, f.handleViewUsers)
	r.ExactAdmin(ui.BtnAdminHelp, f.handleAdminHelp)
	r.ExactAdmin(ui.BtnSetMessage, func(ctx context.Context, account domain.Account, _ chat.Event) ([]chat.Message, error) {
		return f.engine.Enter(ctx, sceneSetMessage, account.ChatID, nil)
	})
	r.ExactAdmin(ui.BtnDeductSMSFee, func(ctx context.Context, account domain.Account, _ chat.Event) ([]chat.Message, error) {
		return f.engine.Enter(ctx, sceneBulkDeduct, account.ChatID, nil)
	})

	r.CallbackAdmin(ui.CallbackApprovePrefix, f.handleApproveCallback)
	r.CallbackAdmin(ui.CallbackDeclinePrefix, f.handleDeclineCallback)
	r.CallbackAdmin(ui.CallbackSMSFeePrefix, f.handleSMSFeeCallback)

	r.CommandAdmin("/approve", f.cmdApprove)
	r.CommandAdmin("/decline", f.cmdDecline)
	r.CommandAdmin("/pending", func(ctx context.Context, account domain.Account, _ []string, ev chat.Event) ([]chat.Message, error) {
		return f.handlePending(ctx, account, ev)
	})
	r.CommandAdmin("/topups", f.cmdTopups)
	r.CommandAdmin("/users", func(ctx context.Context, account domain.Account, _ []string, ev chat.Event) ([]chat.Message, error) {
		return f.handleViewUsers(ctx, account, ev)
	})
	r.CommandAdmin("/user", f.cmdUser)
	r.CommandAdmin("/deductsms", f.cmdDeductSMS)
	r.CommandAdmin("/addbalance", f.cmdAddBalance)
	r.CommandAdmin("/addreference", f.cmdAddReference)
	r.CommandAdmin("/setsmsfee", f.cmdSetSMSFee)
	r.CommandAdmin("/smsfee", f.cmdSMSFee)
	r.CommandAdmin("/adminhelp", func(ctx context.Context, account domain.Account, _ []string, ev chat.Event) ([]chat.Message, error) {
		return f.handleAdminHelp(ctx, account, ev)
	})
	r.CommandAdmin("/broadcast", f.cmdBroadcast)
	r.CommandAdmin("/msg", f.cmdMsg)

	for _, scene := range []*conversation.Scene{f.setMessageScene(), f.bulkDeductScene(), f.creditBalanceScene()} {
		if err := f.engine.Register(scene); err != nil {
			return err
		}
	}
	return nil
}

func (f *Feature) handlePending(ctx context.Context, account domain.Account, _ chat.Event) ([]chat.Message, error) {
	pending, err := f.payments.FindPending(ctx)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return []chat.Message{chat.NewMessage(account.ChatID, "✅ No pending payments.")}, nil
	}

	messages := []chat.Message{chat.NewMessage(account.ChatID, fmt.Sprintf("💲 Pending Payments: %d", len(pending)))}
	for _, p := range pending {
		messages = append(messages,
			chat.NewMessage(account.ChatID, f.paymentCard(ctx, p)).WithInline(ui.VerifyPayment(p.ID.Hex())))
	}
	return messages, nil
}

// paymentCard renders one pending payment for the review queue.
func (f *Feature) paymentCard(ctx context.Context, p domain.Payment) string {
	var b strings.Builder
	switch p.Kind {
	case domain.KindPlanPurchase:
		name := string(p.PlanType)
		if plan, ok := catalog.Lookup(p.PlanType); ok {
			name = plan.Name
		}
		fmt.Fprintf(&b, "📋 Plan Purchase: %s\n", name)
		if p.SMSFeeIncluded {
			b.WriteString("SMS Token: included\n")
		}
	case domain.KindWalletTopup:
		b.WriteString("💰 Balance Top-up\n")
	default:
		b.WriteString("💳 Payment\n")
	}
	fmt.Fprintf(&b, "Amount: %s\n", p.Amount.Naira())
	fmt.Fprintf(&b, "Reference: %s\n", p.Reference)

	if p.ChatID != 0 {
		user := strconv.FormatInt(p.ChatID, 10)
		if account, err := f.accounts.GetByChatID(ctx, p.ChatID); err == nil {
			user = fmt.Sprintf("%s (%d)", account.DisplayName(), p.ChatID)
		}
		fmt.Fprintf(&b, "User: %s\n", user)
	}
	fmt.Fprintf(&b, "Submitted: %s", ui.FormatDate(p.CreatedAt))
	return b.String()
}

func (f *Feature) handleStatistics(ctx context.Context, account domain.Account, _ chat.Event) ([]chat.Message, error) {
	stats, err := f.stats.Collect(ctx)
	if err != nil {
		return nil, err
	}

	var plans strings.Builder
	for _, p := range catalog.All() {
		plans.WriteString(fmt.Sprintf("  %s: %d\n", p.Name, stats.PlansByType[string(p.Type)]))
	}

	text := fmt.Sprintf(
		"📈 Statistics\n\n"+
			"Total Users: %d\n"+
			"Active Plans: %d\n"+
			"SMS Enabled Users: %d\n\n"+
			"Plans by Type:\n%s\n"+
			"Payments:\n"+
			"  Pending: %d\n"+
			"  Approved: %d\n"+
			"  Declined: %d\n\n"+
			"Approved Revenue: %s",
		stats.TotalAccounts, stats.ActivePlans, stats.SMSEnabled,
		plans.String(),
		stats.PendingPayments, stats.ApprovedPayments, stats.DeclinedPayments,
		stats.ApprovedRevenue.Naira())
	return []chat.Message{chat.NewMessage(account.ChatID, text)}, nil
}

func (f *Feature) handleSMSUsers(ctx context.Context, account domain.Account, _ chat.Event) ([]chat.Message, error) {
	users, err := f.accounts.FindSMSEnabled(ctx)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return []chat.Message{chat.NewMessage(account.ChatID, "No users have SMS tokens enabled.")}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📱 SMS Enabled Users: %d\n\n", len(users))
	for i, u := range users {
		if i == userListCap {
			fmt.Fprintf(&b, "... and %d more", len(users)-userListCap)
			break
		}
		fmt.Fprintf(&b, "%d. %s (%d)\n   Phone: %s\n", i+1, u.DisplayName(), u.ChatID, u.SMS.PhoneNumber)
	}
	return []chat.Message{chat.NewMessage(account.ChatID, b.String())}, nil
}

func (f *Feature) handleViewUsers(ctx context.Context, account domain.Account, _ chat.Event) ([]chat.Message, error) {
	users, err := f.accounts.FindAll(ctx, userListCap)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return []chat.Message{chat.NewMessage(account.ChatID, "No users yet.")}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "👥 Latest Users (%d shown)\n\n", len(users))
	for i, u := range users {
		plan := "none"
		if u.Plan.IsActive {
			plan = string(u.Plan.Type)
		}
		fmt.Fprintf(&b, "%d. %s (%d)\n   Balance: %s | Plan: %s\n",
			i+1, u.DisplayName(), u.ChatID, u.Balance.Amount.Naira(), plan)
	}
	b.WriteString("\nUse /user <chat_id> for details.")
	return []chat.Message{chat.NewMessage(account.ChatID, b.String())}, nil
}

func (f *Feature) handleAdminHelp(_ context.Context, account domain.Account, _ chat.Event) ([]chat.Message, error) {
	text := "📋 Admin Commands\n\n" +
		"/pending - List pending payments\n" +
		"/approve <payment_id> - Approve a payment\n" +
		"/decline <payment_id> - Decline a payment\n" +
		"/topups - List recent approved top-ups\n" +
		"/users - List latest users\n" +
		"/user <chat_id> - Show user details\n" +
		"/addbalance <chat_id> <amount> - Credit a user's balance\n" +
		"/deductsms <chat_id> - Deduct the SMS fee from one user\n" +
		"/addreference <reference> <amount> - Pre-register a payment reference\n" +
		"/setsmsfee <amount> - Set the SMS fee\n" +
		"/smsfee - Pick the SMS fee from common values\n" +
		"/broadcast <message> - Send an announcement to all users\n" +
		"/msg actives|all <message> - Message active-plan users or everyone\n\n" +
		"Admin buttons cover the same actions plus statistics, SMS users, " +
		"bulk SMS fee deduction, and the connection notice."
	return []chat.Message{chat.NewMessage(account.ChatID, text).WithKeyboard(ui.AdminMenu())}, nil
}

func (f *Feature) handleApproveCallback(ctx context.Context, account domain.Account, ev chat.Event) ([]chat.Message, error) {
	hex := strings.TrimPrefix(ev.Payload, ui.CallbackApprovePrefix)
	return f.approve(ctx, account, hex)
}

func (f *Feature) handleDeclineCallback(ctx context.Context, account domain.Account, ev chat.Event) ([]chat.Message, error) {
	hex := strings.TrimPrefix(ev.Payload, ui.CallbackDeclinePrefix)
	return f.decline(ctx, account, hex)
}

func (f *Feature) handleSMSFeeCallback(ctx context.Context, account domain.Account, ev chat.Event) ([]chat.Message, error) {
	raw := strings.TrimPrefix(ev.Payload, ui.CallbackSMSFeePrefix)
	naira, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || naira < 0 {
		return []chat.Message{chat.NewMessage(account.ChatID, "Invalid fee value.")}, nil
	}
	fee := money.FromNaira(naira)
	f.fees.SetSMSFee(fee)
	f.logger.WithField("fee", fee.Kobo()).Info("sms fee updated")
	return []chat.Message{chat.NewMessage(account.ChatID, fmt.Sprintf("✅ SMS fee set to %s.", fee.Naira()))}, nil
}

func (f *Feature) cmdApprove(ctx context.Context, account domain.Account, args []string, _ chat.Event) ([]chat.Message, error) {
	if len(args) != 1 {
		return []chat.Message{chat.NewMessage(account.ChatID, "Usage: /approve <payment_id>")}, nil
	}
	return f.approve(ctx, account, args[0])
}

func (f *Feature) cmdDecline(ctx context.Context, account domain.Account, args []string, _ chat.Event) ([]chat.Message, error) {
	if len(args) != 1 {
		return []chat.Message{chat.NewMessage(account.ChatID, "Usage: /decline <payment_id>")}, nil
	}
	return f.decline(ctx, account, args[0])
}

func (f *Feature) approve(ctx context.Context, admin domain.Account, hex string) ([]chat.Message, error) {
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return []chat.Message{chat.NewMessage(admin.ChatID, "Invalid payment ID.")}, nil
	}

	result, err := f.ledger.Approve(ctx, id, admin.DisplayName())
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return []chat.Message{chat.NewMessage(admin.ChatID, "Payment not found.")}, nil
	case errors.Is(err, domain.ErrAlreadyDecided):
		text := fmt.Sprintf("This payment has already been %s by %s.", result.Payment.Status, result.Payment.DecidedBy)
		return []chat.Message{chat.NewMessage(admin.ChatID, text)}, nil
	case errors.Is(err, ledger.ErrUnknownPlanType):
		text := fmt.Sprintf("⚠️ Payment %s references unknown plan %q. It remains pending.", hex, result.Payment.PlanType)
		return []chat.Message{chat.NewMessage(admin.ChatID, text)}, nil
	case err != nil:
		return nil, err
	}

	messages := []chat.Message{chat.NewMessage(admin.ChatID, fmt.Sprintf("✅ Payment %s approved.", hex))}
	if notify := f.approvalNotice(result); notify != nil {
		messages = append(messages, *notify)
	}
	return messages, nil
}

// approvalNotice builds the customer-facing approval message, or nil for
// payments with no bound customer.
func (f *Feature) approvalNotice(result ledger.DecideResult) *chat.Message {
	p := result.Payment
	if p.ChatID == 0 {
		return nil
	}

	var text string
	switch p.Kind {
	case domain.KindPlanPurchase:
		name := string(p.PlanType)
		if plan, ok := catalog.Lookup(p.PlanType); ok {
			name = plan.Name
		}
		text = fmt.Sprintf(
			"✅ Payment Approved!\n\nYour %s plan is now active until %s.\n\nEnjoy surfing! 🏄",
			name, ui.FormatDate(result.Account.Plan.EndDate))
	case domain.KindWalletTopup:
		text = fmt.Sprintf(
			"✅ Payment Approved!\n\nYour balance top-up of %s has been processed.\n\nNew Balance: %s",
			p.Amount.Naira(), result.Account.Balance.Amount.Naira())
	default:
		text = "✅ Your payment has been approved."
	}
	msg := chat.NewMessage(p.ChatID, text).WithKeyboard(ui.MainMenu())
	return &msg
}

func (f *Feature) decline(ctx context.Context, admin domain.Account, hex string) ([]chat.Message, error) {
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return []chat.Message{chat.NewMessage(admin.ChatID, "Invalid payment ID.")}, nil
	}

	result, err := f.ledger.Decline(ctx, id, admin.DisplayName())
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return []chat.Message{chat.NewMessage(admin.ChatID, "Payment not found.")}, nil
	case errors.Is(err, domain.ErrAlreadyDecided):
		text := fmt.Sprintf("This payment has already been %s by %s.", result.Payment.Status, result.Payment.DecidedBy)
		return []chat.Message{chat.NewMessage(admin.ChatID, text)}, nil
	case err != nil:
		return nil, err
	}

	messages := []chat.Message{chat.NewMessage(admin.ChatID, fmt.Sprintf("❌ Payment %s declined.", hex))}
	if result.Payment.ChatID != 0 {
		text := fmt.Sprintf(
			"❌ Payment Declined\n\nYour payment with reference %s was declined.\n\n"+
				"Please verify your payment details and try again, or contact support.",
			result.Payment.Reference)
		messages = append(messages, chat.NewMessage(result.Payment.ChatID, text).WithKeyboard(ui.MainMenu()))
	}
	return messages, nil
}

func (f *Feature) cmdTopups(ctx context.Context, account domain.Account, _ []string, _ chat.Event) ([]chat.Message, error) {
	topups, err := f.payments.FindApprovedTopups(ctx, userListCap)
	if err != nil {
		return nil, err
	}
	if len(topups) == 0 {
		return []chat.Message{chat.NewMessage(account.ChatID, "No approved top-ups yet.")}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "💰 Recent Approved Top-ups (%d shown)\n\n", len(topups))
	for i, p := range topups {
		fmt.Fprintf(&b, "%d. %s | ref %s | user %d | %s\n",
			i+1, p.Amount.Naira(), p.Reference, p.ChatID, ui.FormatDate(p.CreatedAt))
	}
	return []chat.Message{chat.NewMessage(account.ChatID, b.String())}, nil
}

func (f *Feature) cmdUser(ctx context.Context, admin domain.Account, args []string, _ chat.Event) ([]chat.Message, error) {
	if len(args) != 1 {
		return []chat.Message{chat.NewMessage(admin.ChatID, "Usage: /user <chat_id>")}, nil
	}
	chatID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return []chat.Message{chat.NewMessage(admin.ChatID, "Invalid chat ID.")}, nil
	}

	account, err := f.accounts.GetByChatID(ctx, chatID)
	if errors.Is(err, domain.ErrNotFound) {
		return []chat.Message{chat.NewMessage(admin.ChatID, "User not found.")}, nil
	}
	if err != nil {
		return nil, err
	}

	plan := "none"
	if account.Plan.IsActive {
		plan = fmt.Sprintf("%s until %s", account.Plan.Type, ui.FormatDate(account.Plan.EndDate))
	}
	sms := "disabled"
	if account.SMS.Enabled {
		sms = "enabled (" + account.SMS.PhoneNumber + ")"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "👤 %s (%d)\n\n", account.DisplayName(), account.ChatID)
	fmt.Fprintf(&b, "Balance: %s\n", account.Balance.Amount.Naira())
	fmt.Fprintf(&b, "Plan: %s\n", plan)
	fmt.Fprintf(&b, "SMS: %s\n", sms)
	fmt.Fprintf(&b, "Joined: %s\n", ui.FormatDate(account.CreatedAt))

	if payments, err := f.payments.FindByChatID(ctx, chatID, 5); err == nil && len(payments) > 0 {
		b.WriteString("\nRecent payments:\n")
		for _, p := range payments {
			fmt.Fprintf(&b, "  %s | %s | %s | %s\n", p.Amount.Naira(), p.Kind, p.Status, p.Reference)
		}
	}
	return []chat.Message{chat.NewMessage(admin.ChatID, b.String())}, nil
}

func (f *Feature) cmdDeductSMS(ctx context.Context, admin domain.Account, args []string, _ chat.Event) ([]chat.Message, error) {
	if len(args) != 1 {
		return []chat.Message{chat.NewMessage(admin.ChatID, "Usage: /deductsms <chat_id>")}, nil
	}
	chatID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return []chat.Message{chat.NewMessage(admin.ChatID, "Invalid chat ID.")}, nil
	}

	fee := f.fees.SMSFee()
	account, err := f.ledger.DeductFee(ctx, chatID, fee)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return []chat.Message{chat.NewMessage(admin.ChatID, "User not found.")}, nil
	case errors.Is(err, domain.ErrInsufficientBalance):
		return []chat.Message{chat.NewMessage(admin.ChatID,
			fmt.Sprintf("⚠️ User %d has insufficient balance for the %s SMS fee.", chatID, fee.Naira()))}, nil
	case err != nil:
		return nil, err
	}

	return []chat.Message{
		chat.NewMessage(admin.ChatID,
			fmt.Sprintf("✅ Deducted %s from user %d. New balance: %s.", fee.Naira(), chatID, account.Balance.Amount.Naira())),
		chat.NewMessage(chatID,
			fmt.Sprintf("💸 An SMS fee of %s was deducted from your balance.\n\nNew Balance: %s", fee.Naira(), account.Balance.Amount.Naira())),
	}, nil
}

func (f *Feature) cmdAddBalance(ctx context.Context, admin domain.Account, args []string, _ chat.Event) ([]chat.Message, error) {
	if len(args) != 2 {
		return []chat.Message{chat.NewMessage(admin.ChatID, "Usage: /addbalance <chat_id> <amount>")}, nil
	}
	chatID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return []chat.Message{chat.NewMessage(admin.ChatID, "Invalid chat ID.")}, nil
	}
	amount, err := money.Parse(args[1])
	if err != nil || amount <= 0 {
		return []chat.Message{chat.NewMessage(admin.ChatID, "Invalid amount.")}, nil
	}

	target, err := f.accounts.GetByChatID(ctx, chatID)
	if errors.Is(err, domain.ErrNotFound) {
		return []chat.Message{chat.NewMessage(admin.ChatID, "User not found.")}, nil
	}
	if err != nil {
		return nil, err
	}

	return f.engine.Enter(ctx, sceneCreditBalance, admin.ChatID, creditArgs{
		target: target,
		amount: amount,
	})
}

func (f *Feature) cmdAddReference(ctx context.Context, admin domain.Account, args []string, _ chat.Event) ([]chat.Message, error) {
	if len(args) != 2 {
		return []chat.Message{chat.NewMessage(admin.ChatID, "Usage: /addreference <reference> <amount>")}, nil
	}
	amount, err := money.Parse(args[1])
	if err != nil || amount <= 0 {
		return []chat.Message{chat.NewMessage(admin.ChatID, "Invalid amount.")}, nil
	}

	payment, err := f.ledger.RegisterReference(ctx, admin.DisplayName(), args[0], amount)
	if errors.Is(err, domain.ErrDuplicateReference) {
		return []chat.Message{chat.NewMessage(admin.ChatID, "This reference already exists.")}, nil
	}
	if err != nil {
		return nil, err
	}

	text := fmt.Sprintf(
		"✅ Reference %s registered for %s.\n\n"+
			"The first user to submit it during a top-up will be credited automatically.",
		payment.Reference, payment.Amount.Naira())
	return []chat.Message{chat.NewMessage(admin.ChatID, text)}, nil
}

func (f *Feature) cmdSetSMSFee(_ context.Context, admin domain.Account, args []string, _ chat.Event) ([]chat.Message, error) {
	if len(args) != 1 {
		return []chat.Message{chat.NewMessage(admin.ChatID, "Usage: /setsmsfee <amount>")}, nil
	}
	fee, err := money.Parse(args[0])
	if err != nil || fee < 0 {
		return []chat.Message{chat.NewMessage(admin.ChatID, "Invalid fee amount.")}, nil
	}
	f.fees.SetSMSFee(fee)
	f.logger.WithField("fee", fee.Kobo()).Info("sms fee updated")
	return []chat.Message{chat.NewMessage(admin.ChatID, fmt.Sprintf("✅ SMS fee set to %s.", fee.Naira()))}, nil
}

func (f *Feature) cmdSMSFee(_ context.Context, admin domain.Account, _ []string, _ chat.Event) ([]chat.Message, error) {
	text := fmt.Sprintf("Current SMS fee: %s\n\nPick a new fee:", f.fees.SMSFee().Naira())
	return []chat.Message{chat.NewMessage(admin.ChatID, text).WithInline(ui.SMSFeeOptions())}, nil
}

func (f *Feature) cmdBroadcast(ctx context.Context, admin domain.Account, args []string, _ chat.Event) ([]chat.Message, error) {
	if len(args) == 0 {
		return []chat.Message{chat.NewMessage(admin.ChatID, "Usage: /broadcast <message>")}, nil
	}
	body := strings.Join(args, " ")
	return f.fanOut(ctx, admin, "📢 Announcement\n\n"+body, false)
}

func (f *Feature) cmdMsg(ctx context.Context, admin domain.Account, args []string, _ chat.Event) ([]chat.Message, error) {
	if len(args) < 2 || (args[0] != "actives" && args[0] != "all") {
		return []chat.Message{chat.NewMessage(admin.ChatID, "Usage: /msg actives|all <message>")}, nil
	}
	body := strings.Join(args[1:], " ")
	return f.fanOut(ctx, admin, "📢 Message from Admin\n\n"+body, args[0] == "actives")
}

// fanOut addresses the body to every recipient plus a delivery summary for
// the admin. Sending is the transport's concern.
func (f *Feature) fanOut(ctx context.Context, admin domain.Account, body string, activesOnly bool) ([]chat.Message, error) {
	var (
		recipients []domain.Account
		err        error
	)
	if activesOnly {
		recipients, err = f.accounts.FindActivePlans(ctx)
	} else {
		recipients, err = f.accounts.FindAll(ctx, 0)
	}
	if err != nil {
		return nil, err
	}

	var messages []chat.Message
	for _, u := range recipients {
		if u.ChatID == admin.ChatID {
			continue
		}
		messages = append(messages, chat.NewMessage(u.ChatID, body))
	}
	f.logger.WithField("recipients", len(messages)).Info("broadcast queued")
	messages = append(messages, chat.NewMessage(admin.ChatID, fmt.Sprintf("📤 Message queued for %d users.", len(messages))))
	return messages, nil
}

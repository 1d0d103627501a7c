// Package plans implements the plan purchase surface: the catalog browser,
// the balance and bank-transfer payment flows and the reference submission
// wizard.
package plans

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"wifree_bot/internal/catalog"
	"wifree_bot/internal/chat"
	"wifree_bot/internal/conversation"
	"wifree_bot/internal/domain"
	"wifree_bot/internal/ledger"
	"wifree_bot/internal/money"
	"wifree_bot/internal/router"
	"wifree_bot/internal/ui"
)

const sceneSubmitReference = "submitReference"

const (
	paymentMethodBank    = "bank"
	paymentMethodBalance = "balance"
)

// BankDetails is the transfer destination quoted to customers.
type BankDetails struct {
	Name          string
	AccountNumber string
	AccountName   string
}

func (b BankDetails) block() string {
	return fmt.Sprintf(
		"Please make payment to the account below:\n\n"+
			"Bank Name: %s\n"+
			"Account Number: %s\n"+
			"Account Name: %s",
		b.Name, b.AccountNumber, b.AccountName)
}

// AccountStore is the account access the feature needs.
type AccountStore interface {
	GetByChatID(ctx context.Context, chatID int64) (domain.Account, error)
	SetSMSPreference(ctx context.Context, chatID int64, enabled bool, phoneNumber string) (domain.Account, error)
}

// selection remembers which plan a customer is buying and how, between the
// catalog browser and the payment flows. It lives in memory, like the
// conversation sessions.
type selection struct {
	planType domain.PlanType
	method   string
}

// Feature bundles the purchase handlers.
type Feature struct {
	accounts    AccountStore
	ledger      *ledger.Service
	fees        *catalog.FeeConfig
	engine      *conversation.Engine
	bank        BankDetails
	adminChatID int64
	logger      *logrus.Entry

	mu         sync.Mutex
	selections map[int64]*selection
}

// New builds the feature.
func New(accounts AccountStore, svc *ledger.Service, fees *catalog.FeeConfig, engine *conversation.Engine, bank BankDetails, adminChatID int64, logger *logrus.Entry) *Feature {
	return &Feature{
		accounts:    accounts,
		ledger:      svc,
		fees:        fees,
		engine:      engine,
		bank:        bank,
		adminChatID: adminChatID,
		logger:      logger,
		selections:  make(map[int64]*selection),
	}
}

// Register wires the feature's routes and scenes.
func (f *Feature) Register(r *router.Router) error {
	r.Exact(ui.BtnBuyPlan, f.handleBuyPlan)
	for _, p := range catalog.All() {
		plan := p
		r.TextPrefix(plan.Name+" (", func(ctx context.Context, account domain.Account, ev chat.Event) ([]chat.Message, error) {
			return f.handlePlanDetails(ctx, account, plan)
		})
	}
	r.Exact(ui.BtnPayNow, f.handlePaymentInfo)
	r.Exact(ui.BtnPayWithBalance, f.handlePayWithBalance)
	// The enable-SMS button embeds the current fee, so match on prefix.
	r.TextPrefix("Enable SMS (", f.handleEnableSMS)
	r.Exact(ui.BtnSkipSMS, f.handleSkipSMS)

	r.Callback(ui.CallbackSubmitRefPrefix, f.handleSubmitReferenceCallback)
	r.Callback(ui.CallbackCancelPayment, f.handleCancelPayment)

	if err := f.engine.Register(f.submitReferenceScene()); err != nil {
		return err
	}
	return f.engine.Register(f.smsSetupScene())
}

func (f *Feature) setSelection(chatID int64, planType domain.PlanType) {
	f.mu.Lock()
	f.selections[chatID] = &selection{planType: planType}
	f.mu.Unlock()
}

func (f *Feature) selected(chatID int64) (selection, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sel, ok := f.selections[chatID]
	if !ok {
		return selection{}, false
	}
	return *sel, true
}

func (f *Feature) setMethod(chatID int64, method string) {
	f.mu.Lock()
	if sel, ok := f.selections[chatID]; ok {
		sel.method = method
	}
	f.mu.Unlock()
}

func (f *Feature) clearSelection(chatID int64) {
	f.mu.Lock()
	delete(f.selections, chatID)
	f.mu.Unlock()
}

func (f *Feature) handleBuyPlan(_ context.Context, account domain.Account, _ chat.Event) ([]chat.Message, error) {
	msg := chat.NewMessage(account.ChatID,
		"💲 Available Plans\n\nPlease select a plan to view details and purchase:").
		WithKeyboard(ui.Plans())
	return []chat.Message{msg}, nil
}

func (f *Feature) handlePlanDetails(_ context.Context, account domain.Account, plan catalog.Plan) ([]chat.Message, error) {
	f.setSelection(account.ChatID, plan.Type)

	text := fmt.Sprintf(
		"📱 %s\n\n"+
			"✅ Data: %s for %s\n"+
			"✅ Internet Speed: %s\n"+
			"✅ Usage: Stream, download, and scroll all day\n\n"+
			"Price: %s\n\n"+
			"To purchase this plan, select an option:",
		plan.Name, plan.Allowance, plan.DurationLabel(), plan.Speed, plan.BasePrice.Naira())

	return []chat.Message{chat.NewMessage(account.ChatID, text).WithKeyboard(ui.PaymentMethod())}, nil
}

// handlePaymentInfo is the Pay Now path: quote the bank transfer and offer
// the reference submission wizard.
func (f *Feature) handlePaymentInfo(_ context.Context, account domain.Account, _ chat.Event) ([]chat.Message, error) {
	sel, ok := f.selected(account.ChatID)
	if !ok {
		return f.noPlanSelected(account.ChatID), nil
	}
	plan, ok := catalog.Lookup(sel.planType)
	if !ok {
		return f.noPlanSelected(account.ChatID), nil
	}
	f.setMethod(account.ChatID, paymentMethodBank)

	fee := f.fees.SMSFee()
	var text string
	if account.SMS.Enabled {
		text = fmt.Sprintf(
			"💳 Payment Details\n\n"+
				"Plan: %s\n"+
				"Base Price: %s\n\n"+
				"You have SMS token enabled for phone: %s\n"+
				"Using SMS token will add %s to your plan cost.\n\n"+
				"%s\n\n"+
				"After making the payment, click the button below to submit your payment reference:",
			plan.Name, plan.BasePrice.Naira(), account.SMS.PhoneNumber, fee.Naira(), f.bank.block())
	} else {
		text = fmt.Sprintf(
			"💳 Payment Details\n\n"+
				"Plan: %s\n"+
				"Base Price: %s\n\n"+
				"Options:\n"+
				"- Basic Plan (No SMS): %s\n"+
				"- With SMS Token: %s (includes %s SMS fee)\n\n"+
				"%s\n\n"+
				"After making the payment, click the button below to submit your payment reference:",
			plan.Name, plan.BasePrice.Naira(), plan.BasePrice.Naira(),
			plan.BasePrice.Add(fee).Naira(), fee.Naira(), f.bank.block())
	}

	msg := chat.NewMessage(account.ChatID, text).WithInline(ui.SubmitReference(string(plan.Type)))
	return []chat.Message{msg}, nil
}

func (f *Feature) handlePayWithBalance(ctx context.Context, account domain.Account, _ chat.Event) ([]chat.Message, error) {
	sel, ok := f.selected(account.ChatID)
	if !ok {
		return f.noPlanSelected(account.ChatID), nil
	}
	plan, ok := catalog.Lookup(sel.planType)
	if !ok {
		return f.noPlanSelected(account.ChatID), nil
	}
	f.setMethod(account.ChatID, paymentMethodBalance)

	if !account.SMS.Enabled {
		// No SMS add-on to offer; settle immediately.
		return f.purchaseFromBalance(ctx, account, plan, 0)
	}

	fee := f.fees.SMSFee()
	text := fmt.Sprintf(
		"💰 Pay with Balance\n\n"+
			"You have SMS notifications enabled with phone number: %s\n\n"+
			"Plan: %s\n"+
			"Base Price: %s\n"+
			"SMS Fee: %s\n"+
			"Total with SMS: %s\n\n"+
			"Your current balance: %s\n\n"+
			"Would you like to include SMS token for this plan?",
		account.SMS.PhoneNumber, plan.Name, plan.BasePrice.Naira(), fee.Naira(),
		plan.BasePrice.Add(fee).Naira(), account.Balance.Amount.Naira())

	return []chat.Message{chat.NewMessage(account.ChatID, text).WithKeyboard(ui.SMSOption(fee))}, nil
}

func (f *Feature) handleEnableSMS(ctx context.Context, account domain.Account, _ chat.Event) ([]chat.Message, error) {
	sel, ok := f.selected(account.ChatID)
	if !ok || sel.method == "" {
		return f.startOver(account.ChatID), nil
	}
	plan, ok := catalog.Lookup(sel.planType)
	if !ok {
		return f.startOver(account.ChatID), nil
	}
	fee := f.fees.SMSFee()

	if !account.SMS.Enabled || account.SMS.PhoneNumber == "" {
		// Phone number needed first; the wizard collects it and finishes
		// the purchase.
		args := smsSetupArgs{planType: plan.Type, method: sel.method, fee: fee}
		return f.engine.Enter(ctx, sceneSMSSetup, account.ChatID, args)
	}

	if sel.method == paymentMethodBalance {
		return f.purchaseFromBalance(ctx, account, plan, fee)
	}

	total := plan.BasePrice.Add(fee)
	text := fmt.Sprintf(
		"✅ SMS Token Confirmed\n\n"+
			"Your SMS token will be enabled for this plan purchase.\n"+
			"Phone: %s\n\n"+
			"Base Price: %s\n"+
			"SMS Fee: %s\n"+
			"Total: %s\n\n"+
			"Please submit your payment reference after making the payment.",
		account.SMS.PhoneNumber, plan.BasePrice.Naira(), fee.Naira(), total.Naira())

	return []chat.Message{chat.NewMessage(account.ChatID, text).WithInline(ui.SubmitReference(string(plan.Type)))}, nil
}

func (f *Feature) handleSkipSMS(ctx context.Context, account domain.Account, _ chat.Event) ([]chat.Message, error) {
	sel, ok := f.selected(account.ChatID)
	if !ok || sel.method == "" {
		return f.startOver(account.ChatID), nil
	}
	plan, ok := catalog.Lookup(sel.planType)
	if !ok {
		return f.startOver(account.ChatID), nil
	}

	if sel.method == paymentMethodBalance {
		return f.purchaseFromBalance(ctx, account, plan, 0)
	}

	text := fmt.Sprintf(
		"💳 Payment Details\n\n"+
			"Plan: %s\n"+
			"Amount: %s\n\n"+
			"%s\n\n"+
			"After making the payment, click the button below to submit your payment reference:",
		plan.Name, plan.BasePrice.Naira(), f.bank.block())

	return []chat.Message{chat.NewMessage(account.ChatID, text).WithInline(ui.SubmitReference(string(plan.Type)))}, nil
}

// purchaseFromBalance settles a plan purchase against the wallet and
// reports the outcome, including the insufficient-funds remediation path.
func (f *Feature) purchaseFromBalance(ctx context.Context, account domain.Account, plan catalog.Plan, fee money.Amount) ([]chat.Message, error) {
	purchase, err := f.ledger.PayFromBalance(ctx, account.ChatID, plan.Type, fee)
	if errors.Is(err, domain.ErrInsufficientBalance) {
		required := plan.BasePrice.Add(fee)
		text := fmt.Sprintf(
			"❌ Insufficient balance.\n\n"+
				"Your current balance is %s.\n"+
				"Required amount for %s is %s.\n\n"+
				"Please add funds to your balance or choose another payment method.",
			account.Balance.Amount.Naira(), plan.Name, required.Naira())
		return []chat.Message{chat.NewMessage(account.ChatID, text).WithKeyboard(ui.PaymentMethod())}, nil
	}
	if err != nil {
		return nil, err
	}

	f.clearSelection(account.ChatID)

	var text string
	if fee > 0 {
		text = fmt.Sprintf(
			"✅ Plan Activated with SMS Token\n\n"+
				"Your %s plan has been activated with SMS Token.\n\n"+
				"Base Price: %s\n"+
				"SMS Fee: %s\n"+
				"Total: %s\n\n"+
				"Your plan is active until: %s\n"+
				"SMS Token is enabled for phone: %s",
			plan.Name, plan.BasePrice.Naira(), fee.Naira(), purchase.Payment.Amount.Naira(),
			ui.FormatDate(purchase.Account.Plan.EndDate), purchase.Account.SMS.PhoneNumber)
	} else {
		text = fmt.Sprintf(
			"✅ Plan Activated Successfully\n\n"+
				"Plan: %s\n"+
				"Amount: %s\n"+
				"Active Until: %s\n\n"+
				"Your plan is now active. To receive SMS tokens in the future, configure SMS settings in My Balance menu.",
			plan.Name, purchase.Payment.Amount.Naira(), ui.FormatDate(purchase.Account.Plan.EndDate))
	}

	return []chat.Message{chat.NewMessage(account.ChatID, text).WithKeyboard(ui.MainMenu())}, nil
}

func (f *Feature) handleSubmitReferenceCallback(ctx context.Context, account domain.Account, ev chat.Event) ([]chat.Message, error) {
	planType := domain.PlanType(ev.Payload[len(ui.CallbackSubmitRefPrefix):])
	if _, ok := catalog.Lookup(planType); !ok {
		return f.startOver(account.ChatID), nil
	}
	return f.engine.Enter(ctx, sceneSubmitReference, account.ChatID, planType)
}

func (f *Feature) handleCancelPayment(_ context.Context, account domain.Account, _ chat.Event) ([]chat.Message, error) {
	f.clearSelection(account.ChatID)
	f.engine.Leave(account.ChatID)
	return []chat.Message{chat.NewMessage(account.ChatID, "Payment cancelled.").WithKeyboard(ui.MainMenu())}, nil
}

func (f *Feature) noPlanSelected(chatID int64) []chat.Message {
	return []chat.Message{chat.NewMessage(chatID, "Please select a plan first.").WithKeyboard(ui.Plans())}
}

func (f *Feature) startOver(chatID int64) []chat.Message {
	return []chat.Message{chat.NewMessage(chatID, "Please start again by selecting a plan.").WithKeyboard(ui.MainMenu())}
}

// notifyAdmin builds the admin notification for a submitted payment, with
// inline approve and decline buttons.
func (f *Feature) notifyAdmin(account domain.Account, payment domain.Payment, planName string) chat.Message {
	smsState := "Disabled"
	if payment.SMSFeeIncluded {
		smsState = "Enabled"
	}
	username := account.Profile.Username
	if username == "" {
		username = "N/A"
	}
	text := fmt.Sprintf(
		"💰 New Payment Submission 💰\n\n"+
			"User: %s (@%s)\n"+
			"Plan: %s\n"+
			"Amount: %s\n"+
			"Reference: %s\n"+
			"SMS Token: %s\n\n"+
			"Use /approve %s to approve this payment.",
		account.DisplayName(), username, planName, payment.Amount.Naira(),
		payment.Reference, smsState, payment.ID.Hex())

	return chat.NewMessage(f.adminChatID, text).WithInline(ui.VerifyPayment(payment.ID.Hex()))
}

// Package wallet implements the balance surface: the balance overview, the
// top-up wizard with auto-approval against pre-registered references, and
// the SMS token settings wizard.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"wifree_bot/internal/chat"
	"wifree_bot/internal/conversation"
	"wifree_bot/internal/domain"
	"wifree_bot/internal/ledger"
	"wifree_bot/internal/money"
	"wifree_bot/internal/router"
	"wifree_bot/internal/ui"
)

const (
	sceneAddBalance  = "addBalance"
	sceneSMSSettings = "smsTokenSettings"
)

// MinTopup is the smallest accepted top-up amount.
var MinTopup = money.FromNaira(50)

var phonePattern = regexp.MustCompile(`^\d+$`)

// AccountStore is the account access the feature needs.
type AccountStore interface {
	SetSMSPreference(ctx context.Context, chatID int64, enabled bool, phoneNumber string) (domain.Account, error)
}

// BankDetails is the transfer destination quoted for top-ups.
type BankDetails struct {
	Name          string
	AccountNumber string
	AccountName   string
}

// Feature bundles the wallet handlers.
type Feature struct {
	accounts    AccountStore
	ledger      *ledger.Service
	engine      *conversation.Engine
	bank        BankDetails
	adminChatID int64
	logger      *logrus.Entry
}

// New builds the feature.
func New(accounts AccountStore, svc *ledger.Service, engine *conversation.Engine, bank BankDetails, adminChatID int64, logger *logrus.Entry) *Feature {
	return &Feature{
		accounts:    accounts,
		ledger:      svc,
		engine:      engine,
		bank:        bank,
		adminChatID: adminChatID,
		logger:      logger,
	}
}

// Register wires the feature's routes and scenes.
func (f *Feature) Register(r *router.Router) error {
	r.Exact(ui.BtnMyBalance, f.handleMyBalance)
	r.Exact(ui.BtnAddBalance, func(ctx context.Context, account domain.Account, _ chat.Event) ([]chat.Message, error) {
		guide := chat.NewMessage(account.ChatID,
			"💡 Guide: Add funds to your account by providing payment details and reference.\n\n"+
				"You can use your balance to pay for plans and SMS services.")
		messages, err := f.engine.Enter(ctx, sceneAddBalance, account.ChatID, nil)
		return append([]chat.Message{guide}, messages...), err
	})
	r.Exact(ui.BtnSMSSettings, func(ctx context.Context, account domain.Account, _ chat.Event) ([]chat.Message, error) {
		guide := chat.NewMessage(account.ChatID,
			"💡 Guide: Enable or disable SMS notifications and set your phone number for receiving messages.")
		messages, err := f.engine.Enter(ctx, sceneSMSSettings, account.ChatID, account)
		return append([]chat.Message{guide}, messages...), err
	})

	if err := f.engine.Register(f.addBalanceScene()); err != nil {
		return err
	}
	return f.engine.Register(f.smsSettingsScene())
}

func (f *Feature) handleMyBalance(_ context.Context, account domain.Account, _ chat.Event) ([]chat.Message, error) {
	smsStatus := "❌ Disabled"
	if account.SMS.Enabled {
		smsStatus = "✅ Enabled"
	}
	var phoneLine string
	if account.SMS.PhoneNumber != "" {
		phoneLine = fmt.Sprintf("Phone Number: %s\n", account.SMS.PhoneNumber)
	}
	text := fmt.Sprintf(
		"💰 Your Balance\n\n"+
			"Current Balance: %s\n"+
			"Last Updated: %s\n\n"+
			"SMS Token: %s\n"+
			"%s\n"+
			"Use your balance to subscribe to plans or receive SMS tokens.",
		account.Balance.Amount.Naira(), ui.FormatDate(account.Balance.LastUpdated), smsStatus, phoneLine)

	return []chat.Message{
		chat.NewMessage(account.ChatID, text),
		chat.NewMessage(account.ChatID, "Select an option to manage your balance:").WithKeyboard(ui.BalanceMenu()),
	}, nil
}

// topupState is the scene-local state of the top-up wizard.
type topupState struct {
	amount money.Amount
}

func (f *Feature) addBalanceScene() *conversation.Scene {
	return &conversation.Scene{
		ID:       sceneAddBalance,
		NewState: func() any { return &topupState{} },
		OnCancel: func(chatID int64) []chat.Message {
			return []chat.Message{chat.NewMessage(chatID, "Balance topup cancelled.").WithKeyboard(ui.MainMenu())}
		},
		Steps: []conversation.Step{
			{Name: "intro", Run: f.topupIntro},
			{Name: "amount", Run: f.topupAmount},
			{Name: "reference", Run: f.topupReference},
		},
	}
}

func (f *Feature) topupIntro(_ context.Context, sess *conversation.Session, _ chat.Event) (conversation.Transition, []chat.Message, error) {
	text := fmt.Sprintf(
		"💰 Add Balance\n\n"+
			"Please enter the amount you want to add to your balance (minimum %s):", MinTopup.Naira())
	return conversation.Next(), []chat.Message{chat.NewMessage(sess.ChatID, text).WithKeyboard(ui.Back())}, nil
}

func (f *Feature) topupAmount(_ context.Context, sess *conversation.Session, ev chat.Event) (conversation.Transition, []chat.Message, error) {
	state := sess.State.(*topupState)

	amount, err := money.Parse(strings.TrimSpace(ev.Payload))
	if err != nil || amount < MinTopup {
		msg := chat.NewMessage(sess.ChatID,
			fmt.Sprintf("Please enter a valid amount (minimum %s):", MinTopup.Naira())).
			WithKeyboard(ui.Back())
		return conversation.Stay(), []chat.Message{msg}, nil
	}
	state.amount = amount

	text := fmt.Sprintf(
		"💳 Payment Details\n\n"+
			"You are about to add %s to your balance.\n\n"+
			"Please make payment to the account below and then provide your payment reference:\n\n"+
			"Bank Name: %s\n"+
			"Account Number: %s\n"+
			"Account Name: %s\n\n"+
			"After making the payment, please enter your payment reference below:",
		amount.Naira(), f.bank.Name, f.bank.AccountNumber, f.bank.AccountName)
	return conversation.Next(), []chat.Message{chat.NewMessage(sess.ChatID, text).WithKeyboard(ui.Back())}, nil
}

func (f *Feature) topupReference(ctx context.Context, sess *conversation.Session, ev chat.Event) (conversation.Transition, []chat.Message, error) {
	state := sess.State.(*topupState)

	reference := strings.TrimSpace(ev.Payload)
	if reference == "" {
		return conversation.Stay(), []chat.Message{chat.NewMessage(sess.ChatID, "Please enter a valid payment reference:").WithKeyboard(ui.Back())}, nil
	}

	result, err := f.ledger.TryAutoApprove(ctx, sess.ChatID, reference)
	if err != nil {
		return conversation.End(), nil, err
	}

	switch result.Outcome {
	case ledger.OutcomeAutoApproved:
		text := fmt.Sprintf(
			"✅ Payment Auto-Approved\n\n"+
				"Your payment reference %s has been verified and approved.\n\n"+
				"Amount: %s\n"+
				"New Balance: %s",
			reference, result.Payment.Amount.Naira(), result.Account.Balance.Amount.Naira())
		return conversation.End(), []chat.Message{chat.NewMessage(sess.ChatID, text).WithKeyboard(ui.MainMenu())}, nil

	case ledger.OutcomeAlreadyUsed:
		text := fmt.Sprintf(
			"❌ This payment reference has already been used.\n\n"+
				"Status: %s\n\n"+
				"Please enter a different reference:", result.Payment.Status)
		return conversation.Stay(), []chat.Message{chat.NewMessage(sess.ChatID, text).WithKeyboard(ui.Back())}, nil
	}

	payment, err := f.ledger.Submit(ctx, ledger.SubmitParams{
		ChatID:     sess.ChatID,
		Reference:  reference,
		Kind:       domain.KindWalletTopup,
		BaseAmount: state.amount,
	})
	if errors.Is(err, domain.ErrDuplicateReference) {
		// A concurrent submission won the reference between the check and
		// the insert.
		msg := chat.NewMessage(sess.ChatID,
			"This payment reference has already been used. Please provide a different reference.").
			WithKeyboard(ui.Back())
		return conversation.Stay(), []chat.Message{msg}, nil
	}
	if err != nil {
		return conversation.End(), nil, err
	}

	confirmation := fmt.Sprintf(
		"✅ Payment Reference Submitted\n\n"+
			"Your payment reference %s has been submitted for balance topup of %s.\n\n"+
			"Your balance will be updated once the payment is verified by our agent. You will receive a notification when your topup is processed.",
		reference, state.amount.Naira())

	adminText := fmt.Sprintf(
		"💰 New Balance Top-up Submission 💰\n\n"+
			"Amount: %s\n"+
			"Reference: %s\n\n"+
			"Use /approve %s to approve this top-up.",
		state.amount.Naira(), reference, payment.ID.Hex())

	messages := []chat.Message{
		chat.NewMessage(sess.ChatID, confirmation).WithKeyboard(ui.MainMenu()),
		chat.NewMessage(f.adminChatID, adminText).WithInline(ui.VerifyPayment(payment.ID.Hex())),
	}
	return conversation.End(), messages, nil
}

// smsSettingsScene toggles SMS delivery and captures the phone number.
func (f *Feature) smsSettingsScene() *conversation.Scene {
	return &conversation.Scene{
		ID: sceneSMSSettings,
		OnCancel: func(chatID int64) []chat.Message {
			return []chat.Message{chat.NewMessage(chatID, "SMS Token settings cancelled.").WithKeyboard(ui.MainMenu())}
		},
		NewState: func() any { return &struct{}{} },
		Steps: []conversation.Step{
			{Name: "intro", Run: f.smsIntro},
			{Name: "option", Run: f.smsOption},
			{Name: "phone", Run: f.smsPhone},
		},
	}
}

func (f *Feature) smsIntro(_ context.Context, sess *conversation.Session, _ chat.Event) (conversation.Transition, []chat.Message, error) {
	status := "currently disabled"
	if account, ok := sess.Args.(domain.Account); ok && account.SMS.Enabled {
		phone := account.SMS.PhoneNumber
		if phone == "" {
			phone = "Not set"
		}
		status = "currently enabled for phone number: " + phone
	}

	text := fmt.Sprintf(
		"📱 SMS Token Settings\n\n"+
			"SMS Tokens are %s.\n\n"+
			"What would you like to do?\n\n"+
			"1️⃣ Enable SMS Tokens\n"+
			"2️⃣ Disable SMS Tokens\n"+
			"3️⃣ Cancel", status)
	return conversation.Next(), []chat.Message{chat.NewMessage(sess.ChatID, text)}, nil
}

func (f *Feature) smsOption(ctx context.Context, sess *conversation.Session, ev chat.Event) (conversation.Transition, []chat.Message, error) {
	switch strings.TrimSpace(ev.Payload) {
	case "1", "1️⃣ Enable SMS Tokens":
		msg := chat.NewMessage(sess.ChatID, "📱 Please enter your phone number to receive SMS tokens:").WithKeyboard(ui.Back())
		return conversation.Next(), []chat.Message{msg}, nil

	case "2", "2️⃣ Disable SMS Tokens":
		if _, err := f.accounts.SetSMSPreference(ctx, sess.ChatID, false, ""); err != nil {
			return conversation.End(), nil, err
		}
		msg := chat.NewMessage(sess.ChatID,
			"✅ SMS Tokens have been disabled for your account.\n\nYou will no longer receive SMS notifications.").
			WithKeyboard(ui.MainMenu())
		return conversation.End(), []chat.Message{msg}, nil

	case "3", "3️⃣ Cancel":
		msg := chat.NewMessage(sess.ChatID, "SMS Token settings cancelled.").WithKeyboard(ui.MainMenu())
		return conversation.End(), []chat.Message{msg}, nil

	default:
		return conversation.Stay(), []chat.Message{chat.NewMessage(sess.ChatID, "Please select a valid option (1-3).")}, nil
	}
}

func (f *Feature) smsPhone(ctx context.Context, sess *conversation.Session, ev chat.Event) (conversation.Transition, []chat.Message, error) {
	phone := strings.TrimSpace(ev.Payload)
	if !phonePattern.MatchString(phone) {
		msg := chat.NewMessage(sess.ChatID,
			"❌ Invalid phone number format. Please enter digits only.\nFor example: 08012345678").
			WithKeyboard(ui.Back())
		return conversation.Stay(), []chat.Message{msg}, nil
	}

	if _, err := f.accounts.SetSMSPreference(ctx, sess.ChatID, true, phone); err != nil {
		return conversation.End(), nil, err
	}

	text := fmt.Sprintf(
		"✅ SMS token enabled! Your phone number has been set to: %s\n\n"+
			"You will now be able to receive SMS tokens when requested.", phone)
	return conversation.End(), []chat.Message{chat.NewMessage(sess.ChatID, text).WithKeyboard(ui.MainMenu())}, nil
}

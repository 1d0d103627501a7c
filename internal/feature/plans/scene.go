package plans

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"wifree_bot/internal/catalog"
	"wifree_bot/internal/chat"
	"wifree_bot/internal/conversation"
	"wifree_bot/internal/domain"
	"wifree_bot/internal/ledger"
	"wifree_bot/internal/money"
	"wifree_bot/internal/ui"
)

const sceneSMSSetup = "smsSetup"

const (
	btnUseSMSToken  = "Yes, use SMS token ✅"
	btnSkipSMSToken = "No, skip SMS token ❌"
)

var phonePattern = regexp.MustCompile(`^\d+$`)

const invalidPhoneText = "❌ Invalid phone number format. Please enter digits only.\nFor example: 08012345678"

// submitState is the scene-local state of the reference submission wizard.
// The SMS fee is captured when the total is first quoted, so a mid-flight
// fee change does not alter the price the customer saw.
type submitState struct {
	plan          catalog.Plan
	smsConfigured bool
	enableSMS     bool
	phone         string
	fee           money.Amount
}

func cancelToMainMenu(text string) func(chatID int64) []chat.Message {
	return func(chatID int64) []chat.Message {
		return []chat.Message{chat.NewMessage(chatID, text).WithKeyboard(ui.MainMenu())}
	}
}

// submitReferenceScene collects the SMS preference, optionally a phone
// number, and the bank transfer reference, then records the payment for
// admin review.
func (f *Feature) submitReferenceScene() *conversation.Scene {
	return &conversation.Scene{
		ID:       sceneSubmitReference,
		NewState: func() any { return &submitState{} },
		OnCancel: cancelToMainMenu("Payment submission cancelled."),
		Steps: []conversation.Step{
			{Name: "intro", Run: f.submitIntro},
			{Name: "smsChoice", Run: f.submitSMSChoice},
			{Name: "phone", Run: f.submitPhone},
			{Name: "reference", Run: f.submitReference},
		},
	}
}

func (f *Feature) submitIntro(ctx context.Context, sess *conversation.Session, _ chat.Event) (conversation.Transition, []chat.Message, error) {
	state := sess.State.(*submitState)

	planType, _ := sess.Args.(domain.PlanType)
	plan, ok := catalog.Lookup(planType)
	if !ok {
		return conversation.End(), f.startOver(sess.ChatID), nil
	}
	state.plan = plan
	state.fee = f.fees.SMSFee()

	account, err := f.accounts.GetByChatID(ctx, sess.ChatID)
	if err != nil {
		return conversation.End(), nil, err
	}
	state.smsConfigured = account.SMS.Enabled && account.SMS.PhoneNumber != ""

	if state.smsConfigured {
		text := fmt.Sprintf(
			"💳 Submit Payment Reference\n\n"+
				"Plan: %s\n"+
				"Base Price: %s\n\n"+
				"You have SMS token enabled for phone: %s\n"+
				"Using SMS token will add %s to your plan cost.\n\n"+
				"Would you like to use SMS token for this plan?",
			plan.Name, plan.BasePrice.Naira(), account.SMS.PhoneNumber, state.fee.Naira())
		kb := &chat.Keyboard{Rows: [][]string{{btnUseSMSToken}, {btnSkipSMSToken}, {ui.BtnBack}}}
		return conversation.Next(), []chat.Message{chat.NewMessage(sess.ChatID, text).WithKeyboard(kb)}, nil
	}

	text := fmt.Sprintf(
		"Do you want to enable SMS token notifications for this plan?\n\n"+
			"This will add %s to the plan cost and capture your phone number.\n\n"+
			"Note: This configures your account for SMS tokens.", state.fee.Naira())
	return conversation.Next(), []chat.Message{chat.NewMessage(sess.ChatID, text).WithKeyboard(ui.SMSOption(state.fee))}, nil
}

func (f *Feature) submitSMSChoice(_ context.Context, sess *conversation.Session, ev chat.Event) (conversation.Transition, []chat.Message, error) {
	state := sess.State.(*submitState)

	if state.smsConfigured {
		switch ev.Payload {
		case btnUseSMSToken:
			state.enableSMS = true
		case btnSkipSMSToken:
			state.enableSMS = false
		default:
			return conversation.Stay(), []chat.Message{chat.NewMessage(sess.ChatID, "Please choose one of the options.")}, nil
		}
		return conversation.Goto("reference"), []chat.Message{f.referencePrompt(sess.ChatID, state)}, nil
	}

	switch {
	case strings.HasPrefix(ev.Payload, "Enable SMS ("):
		state.enableSMS = true
		text := "📱 STEP 1: Phone Number Required\n\n" +
			"Please enter your phone number to receive SMS tokens.\n" +
			"Use numerical format only (e.g., 08012345678)\n\n" +
			"Note: In the next step, you'll be asked for your payment reference."
		return conversation.Next(), []chat.Message{chat.NewMessage(sess.ChatID, text).WithKeyboard(ui.Back())}, nil
	case ev.Payload == ui.BtnSkipSMS:
		state.enableSMS = false
		return conversation.Goto("reference"), []chat.Message{f.referencePrompt(sess.ChatID, state)}, nil
	default:
		return conversation.Stay(), []chat.Message{chat.NewMessage(sess.ChatID, "Please choose one of the options.")}, nil
	}
}

func (f *Feature) submitPhone(_ context.Context, sess *conversation.Session, ev chat.Event) (conversation.Transition, []chat.Message, error) {
	state := sess.State.(*submitState)

	phone := strings.TrimSpace(ev.Payload)
	if !phonePattern.MatchString(phone) {
		return conversation.Stay(), []chat.Message{chat.NewMessage(sess.ChatID, invalidPhoneText).WithKeyboard(ui.Back())}, nil
	}
	state.phone = phone

	total := state.plan.BasePrice.Add(state.fee)
	text := fmt.Sprintf(
		"💳 STEP 2: Submit Payment Reference\n\n"+
			"SMS will be configured for phone: %s\n\n"+
			"Plan: %s\n"+
			"Base Price: %s\n"+
			"SMS Fee: %s\n"+
			"Total: %s\n\n"+
			"Please enter your payment reference/transaction ID:",
		phone, state.plan.Name, state.plan.BasePrice.Naira(), state.fee.Naira(), total.Naira())
	return conversation.Next(), []chat.Message{chat.NewMessage(sess.ChatID, text).WithKeyboard(ui.Back())}, nil
}

func (f *Feature) submitReference(ctx context.Context, sess *conversation.Session, ev chat.Event) (conversation.Transition, []chat.Message, error) {
	state := sess.State.(*submitState)

	reference := strings.TrimSpace(ev.Payload)
	if reference == "" {
		return conversation.Stay(), []chat.Message{chat.NewMessage(sess.ChatID, "❌ Please provide a valid reference.").WithKeyboard(ui.Back())}, nil
	}

	fee := money.Amount(0)
	if state.enableSMS {
		fee = state.fee
	}
	payment, err := f.ledger.Submit(ctx, ledger.SubmitParams{
		ChatID:     sess.ChatID,
		Reference:  reference,
		Kind:       domain.KindPlanPurchase,
		PlanType:   state.plan.Type,
		BaseAmount: state.plan.BasePrice,
		SMSFee:     fee,
	})
	if errors.Is(err, domain.ErrDuplicateReference) {
		msg := chat.NewMessage(sess.ChatID,
			"This payment reference has already been used. Please provide a different reference.").
			WithKeyboard(ui.Back())
		return conversation.Stay(), []chat.Message{msg}, nil
	}
	if err != nil {
		return conversation.End(), nil, err
	}

	account, err := f.accounts.GetByChatID(ctx, sess.ChatID)
	if err != nil {
		return conversation.End(), nil, err
	}
	if state.enableSMS && state.phone != "" {
		if account, err = f.accounts.SetSMSPreference(ctx, sess.ChatID, true, state.phone); err != nil {
			return conversation.End(), nil, err
		}
	}

	f.clearSelection(sess.ChatID)

	smsState := "SMS Token: Disabled❌"
	if state.enableSMS {
		smsState = "SMS Token: Enabled✅"
	}
	confirmation := fmt.Sprintf(
		"✅ Your payment reference has been submitted! We'll verify it shortly.\n\n"+
			"Plan: %s\n"+
			"Amount: %s\n"+
			"Reference: %s\n"+
			"%s",
		state.plan.Name, payment.Amount.Naira(), reference, smsState)

	messages := []chat.Message{
		chat.NewMessage(sess.ChatID, confirmation).WithKeyboard(ui.MainMenu()),
		f.notifyAdmin(account, payment, state.plan.Name),
	}
	return conversation.End(), messages, nil
}

func (f *Feature) referencePrompt(chatID int64, state *submitState) chat.Message {
	if state.enableSMS {
		total := state.plan.BasePrice.Add(state.fee)
		text := fmt.Sprintf(
			"💳 STEP 2: Submit Payment Reference\n\n"+
				"SMS Token will be enabled for this plan\n"+
				"Plan: %s\n"+
				"Price: %s\n"+
				"SMS Fee: %s\n"+
				"Total Amount: %s\n\n"+
				"Please enter your payment reference/transaction ID:",
			state.plan.Name, state.plan.BasePrice.Naira(), state.fee.Naira(), total.Naira())
		return chat.NewMessage(chatID, text).WithKeyboard(ui.Back())
	}
	text := fmt.Sprintf(
		"💳 STEP 2: Submit Payment Reference\n\n"+
			"Plan: %s\n"+
			"Price: %s\n\n"+
			"Please enter your payment reference/transaction ID:",
		state.plan.Name, state.plan.BasePrice.Naira())
	return chat.NewMessage(chatID, text).WithKeyboard(ui.Back())
}

// smsSetupArgs enter the SMS setup wizard from the enable-SMS button when
// no phone number is on file yet.
type smsSetupArgs struct {
	planType domain.PlanType
	method   string
	fee      money.Amount
}

// smsSetupState is the scene-local state of the SMS setup wizard.
type smsSetupState struct {
	plan   catalog.Plan
	method string
	fee    money.Amount
}

// smsSetupScene collects a phone number, enables SMS and finishes the
// purchase the customer was in the middle of: balance purchases settle
// immediately, bank purchases continue to reference submission.
func (f *Feature) smsSetupScene() *conversation.Scene {
	return &conversation.Scene{
		ID:       sceneSMSSetup,
		NewState: func() any { return &smsSetupState{} },
		OnCancel: cancelToMainMenu("Payment cancelled."),
		Steps: []conversation.Step{
			{Name: "intro", Run: f.smsSetupIntro},
			{Name: "phone", Run: f.smsSetupPhone},
			{Name: "reference", Run: f.smsSetupReference},
		},
	}
}

func (f *Feature) smsSetupIntro(_ context.Context, sess *conversation.Session, _ chat.Event) (conversation.Transition, []chat.Message, error) {
	state := sess.State.(*smsSetupState)

	args, ok := sess.Args.(smsSetupArgs)
	if !ok {
		return conversation.End(), f.startOver(sess.ChatID), nil
	}
	plan, found := catalog.Lookup(args.planType)
	if !found {
		return conversation.End(), f.startOver(sess.ChatID), nil
	}
	state.plan = plan
	state.method = args.method
	state.fee = args.fee

	text := "📱 Phone Number Required\n\n" +
		"Please enter your phone number to enable SMS token notifications.\n" +
		"Use numerical format only (e.g., 08012345678)"
	return conversation.Next(), []chat.Message{chat.NewMessage(sess.ChatID, text).WithKeyboard(ui.Back())}, nil
}

func (f *Feature) smsSetupPhone(ctx context.Context, sess *conversation.Session, ev chat.Event) (conversation.Transition, []chat.Message, error) {
	state := sess.State.(*smsSetupState)

	phone := strings.TrimSpace(ev.Payload)
	if !phonePattern.MatchString(phone) {
		return conversation.Stay(), []chat.Message{chat.NewMessage(sess.ChatID, invalidPhoneText).WithKeyboard(ui.Back())}, nil
	}

	account, err := f.accounts.SetSMSPreference(ctx, sess.ChatID, true, phone)
	if err != nil {
		return conversation.End(), nil, err
	}

	if state.method == paymentMethodBalance {
		messages, err := f.purchaseFromBalance(ctx, account, state.plan, state.fee)
		return conversation.End(), messages, err
	}

	total := state.plan.BasePrice.Add(state.fee)
	text := fmt.Sprintf(
		"✅ SMS Token Configured\n\n"+
			"SMS will be configured for phone: %s\n\n"+
			"Plan: %s\n"+
			"Base Price: %s\n"+
			"SMS Fee: %s\n"+
			"Total: %s\n\n"+
			"%s\n\n"+
			"Please enter your payment reference/transaction ID:",
		phone, state.plan.Name, state.plan.BasePrice.Naira(), state.fee.Naira(), total.Naira(), f.bank.block())
	return conversation.Next(), []chat.Message{chat.NewMessage(sess.ChatID, text).WithKeyboard(ui.Back())}, nil
}

func (f *Feature) smsSetupReference(ctx context.Context, sess *conversation.Session, ev chat.Event) (conversation.Transition, []chat.Message, error) {
	state := sess.State.(*smsSetupState)

	reference := strings.TrimSpace(ev.Payload)
	if reference == "" {
		return conversation.Stay(), []chat.Message{chat.NewMessage(sess.ChatID, "❌ Please provide a valid payment reference.").WithKeyboard(ui.Back())}, nil
	}

	payment, err := f.ledger.Submit(ctx, ledger.SubmitParams{
		ChatID:     sess.ChatID,
		Reference:  reference,
		Kind:       domain.KindPlanPurchase,
		PlanType:   state.plan.Type,
		BaseAmount: state.plan.BasePrice,
		SMSFee:     state.fee,
	})
	if errors.Is(err, domain.ErrDuplicateReference) {
		msg := chat.NewMessage(sess.ChatID,
			"This payment reference has already been used. Please provide a different reference.").
			WithKeyboard(ui.Back())
		return conversation.Stay(), []chat.Message{msg}, nil
	}
	if err != nil {
		return conversation.End(), nil, err
	}

	account, err := f.accounts.GetByChatID(ctx, sess.ChatID)
	if err != nil {
		return conversation.End(), nil, err
	}

	f.clearSelection(sess.ChatID)

	confirmation := fmt.Sprintf(
		"✅ Payment Reference Submitted\n\n"+
			"Your payment reference for %s with SMS token has been submitted.\n\n"+
			"Reference: %s\n"+
			"Amount: %s\n"+
			"SMS Token: Enabled for %s\n\n"+
			"Your plan will be activated once the payment is approved. You will receive a notification when your plan is active.",
		state.plan.Name, reference, payment.Amount.Naira(), account.SMS.PhoneNumber)

	messages := []chat.Message{
		chat.NewMessage(sess.ChatID, confirmation).WithKeyboard(ui.MainMenu()),
		f.notifyAdmin(account, payment, state.plan.Name+" with SMS"),
	}
	return conversation.End(), messages, nil
}

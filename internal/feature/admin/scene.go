package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"wifree_bot/internal/chat"
	"wifree_bot/internal/conversation"
	"wifree_bot/internal/domain"
	"wifree_bot/internal/money"
	"wifree_bot/internal/ui"
)

const confirmWord = "CONFIRM"

// setMessageScene captures the connection notice shown by Show Me.
func (f *Feature) setMessageScene() *conversation.Scene {
	return &conversation.Scene{
		ID:       sceneSetMessage,
		NewState: func() any { return &struct{}{} },
		OnCancel: func(chatID int64) []chat.Message {
			return []chat.Message{chat.NewMessage(chatID, "Set message cancelled.").WithKeyboard(ui.AdminMenu())}
		},
		Steps: []conversation.Step{
			{Name: "intro", Run: func(_ context.Context, sess *conversation.Session, _ chat.Event) (conversation.Transition, []chat.Message, error) {
				msg := chat.NewMessage(sess.ChatID,
					"📝 Enter the new connection message shown to users who tap Show Me:").
					WithKeyboard(ui.Back())
				return conversation.Next(), []chat.Message{msg}, nil
			}},
			{Name: "message", Run: f.setMessageBody},
		},
	}
}

func (f *Feature) setMessageBody(ctx context.Context, sess *conversation.Session, ev chat.Event) (conversation.Transition, []chat.Message, error) {
	body := strings.TrimSpace(ev.Payload)
	if body == "" {
		return conversation.Stay(), []chat.Message{chat.NewMessage(sess.ChatID, "The message cannot be empty. Enter the new message:")}, nil
	}

	notice, err := f.notices.SetActive(ctx, body)
	if err != nil {
		return conversation.End(), nil, err
	}
	f.logger.WithField("notice_id", notice.ID.Hex()).Info("connection notice updated")

	text := fmt.Sprintf("✅ Connection message updated:\n\n%s", notice.Message)
	return conversation.End(), []chat.Message{chat.NewMessage(sess.ChatID, text).WithKeyboard(ui.AdminMenu())}, nil
}

// bulkDeductState carries the recipients snapshotted at confirmation time.
type bulkDeductState struct {
	users []domain.Account
	fee   money.Amount
}

// bulkDeductScene deducts the SMS fee from every SMS-enabled user after an
// explicit typed confirmation.
func (f *Feature) bulkDeductScene() *conversation.Scene {
	return &conversation.Scene{
		ID:       sceneBulkDeduct,
		NewState: func() any { return &bulkDeductState{} },
		OnCancel: func(chatID int64) []chat.Message {
			return []chat.Message{chat.NewMessage(chatID, "Bulk deduction cancelled.").WithKeyboard(ui.AdminMenu())}
		},
		Steps: []conversation.Step{
			{Name: "intro", Run: f.bulkDeductIntro},
			{Name: "confirm", Run: f.bulkDeductConfirm},
		},
	}
}

func (f *Feature) bulkDeductIntro(ctx context.Context, sess *conversation.Session, _ chat.Event) (conversation.Transition, []chat.Message, error) {
	state := sess.State.(*bulkDeductState)

	users, err := f.accounts.FindSMSEnabled(ctx)
	if err != nil {
		return conversation.End(), nil, err
	}
	if len(users) == 0 {
		msg := chat.NewMessage(sess.ChatID, "No users have SMS tokens enabled.").WithKeyboard(ui.AdminMenu())
		return conversation.End(), []chat.Message{msg}, nil
	}
	state.users = users
	state.fee = f.fees.SMSFee()

	text := fmt.Sprintf(
		"💸 Bulk SMS Fee Deduction\n\n"+
			"This will deduct %s from %d SMS-enabled users.\n\n"+
			"Type %s to proceed, or Back 🔙 to cancel.",
		state.fee.Naira(), len(users), confirmWord)
	return conversation.Next(), []chat.Message{chat.NewMessage(sess.ChatID, text).WithKeyboard(ui.Back())}, nil
}

func (f *Feature) bulkDeductConfirm(ctx context.Context, sess *conversation.Session, ev chat.Event) (conversation.Transition, []chat.Message, error) {
	state := sess.State.(*bulkDeductState)

	if strings.TrimSpace(ev.Payload) != confirmWord {
		msg := chat.NewMessage(sess.ChatID,
			fmt.Sprintf("Type %s to proceed, or Back 🔙 to cancel.", confirmWord)).
			WithKeyboard(ui.Back())
		return conversation.Stay(), []chat.Message{msg}, nil
	}

	var (
		messages   []chat.Message
		deducted   int
		skipped    int
		totalKobos int64
	)
	for _, u := range state.users {
		account, err := f.ledger.DeductFee(ctx, u.ChatID, state.fee)
		if errors.Is(err, domain.ErrInsufficientBalance) || errors.Is(err, domain.ErrNotFound) {
			skipped++
			continue
		}
		if err != nil {
			f.logger.WithFields(logrus.Fields{
				"chat_id": u.ChatID,
				"error":   err,
			}).Error("bulk sms fee deduction failed")
			skipped++
			continue
		}
		deducted++
		totalKobos += state.fee.Kobo()
		messages = append(messages, chat.NewMessage(u.ChatID,
			fmt.Sprintf("💸 An SMS fee of %s was deducted from your balance.\n\nNew Balance: %s",
				state.fee.Naira(), account.Balance.Amount.Naira())))
	}

	summary := fmt.Sprintf(
		"💸 Bulk Deduction Complete\n\n"+
			"Deducted: %d users\n"+
			"Skipped (low balance or missing): %d\n"+
			"Total collected: %s",
		deducted, skipped, money.Amount(totalKobos).Naira())
	messages = append(messages, chat.NewMessage(sess.ChatID, summary).WithKeyboard(ui.AdminMenu()))
	return conversation.End(), messages, nil
}

// creditArgs parameterizes the credit confirmation started by /addbalance.
type creditArgs struct {
	target domain.Account
	amount money.Amount
}

// creditBalanceScene confirms and applies a manual wallet credit.
func (f *Feature) creditBalanceScene() *conversation.Scene {
	return &conversation.Scene{
		ID:       sceneCreditBalance,
		NewState: func() any { return &struct{}{} },
		OnCancel: func(chatID int64) []chat.Message {
			return []chat.Message{chat.NewMessage(chatID, "Balance credit cancelled.").WithKeyboard(ui.AdminMenu())}
		},
		Steps: []conversation.Step{
			{Name: "intro", Run: func(_ context.Context, sess *conversation.Session, _ chat.Event) (conversation.Transition, []chat.Message, error) {
				args, ok := sess.Args.(creditArgs)
				if !ok {
					return conversation.End(), nil, errors.New("credit balance: missing arguments")
				}
				text := fmt.Sprintf(
					"💰 Credit %s to %s (%d)?\n\n"+
						"Current balance: %s\n\n"+
						"Reply yes to confirm, or Back 🔙 to cancel.",
					args.amount.Naira(), args.target.DisplayName(), args.target.ChatID,
					args.target.Balance.Amount.Naira())
				return conversation.Next(), []chat.Message{chat.NewMessage(sess.ChatID, text).WithKeyboard(ui.Back())}, nil
			}},
			{Name: "confirm", Run: f.creditBalanceConfirm},
		},
	}
}

func (f *Feature) creditBalanceConfirm(ctx context.Context, sess *conversation.Session, ev chat.Event) (conversation.Transition, []chat.Message, error) {
	args, ok := sess.Args.(creditArgs)
	if !ok {
		return conversation.End(), nil, errors.New("credit balance: missing arguments")
	}

	if !strings.EqualFold(strings.TrimSpace(ev.Payload), "yes") {
		msg := chat.NewMessage(sess.ChatID, "Reply yes to confirm, or Back 🔙 to cancel.").WithKeyboard(ui.Back())
		return conversation.Stay(), []chat.Message{msg}, nil
	}

	account, err := f.ledger.Credit(ctx, args.target.ChatID, args.amount)
	if err != nil {
		return conversation.End(), nil, err
	}

	messages := []chat.Message{
		chat.NewMessage(sess.ChatID,
			fmt.Sprintf("✅ Credited %s to user %d. New balance: %s.",
				args.amount.Naira(), args.target.ChatID, account.Balance.Amount.Naira())).
			WithKeyboard(ui.AdminMenu()),
		chat.NewMessage(args.target.ChatID,
			fmt.Sprintf("💰 Your balance has been credited with %s by an admin.\n\nNew Balance: %s",
				args.amount.Naira(), account.Balance.Amount.Naira())).
			WithKeyboard(ui.MainMenu()),
	}
	return conversation.End(), messages, nil
}

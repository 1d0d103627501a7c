// Package ui holds the button texts and keyboard layouts shared by the
// feature handlers and the router. Button texts double as routing keys, so
// they live in one place.
package ui

import (
	"fmt"
	"time"

	"wifree_bot/internal/catalog"
	"wifree_bot/internal/chat"
	"wifree_bot/internal/money"
)

// FormatDate renders timestamps for chat messages, such as
// "January 2, 2006 3:04 PM".
func FormatDate(t time.Time) string {
	return t.Format("January 2, 2006 3:04 PM")
}

// Main menu buttons.
const (
	BtnShowMe    = "Show Me 🔎"
	BtnMyPlan    = "My Plan 📊"
	BtnMyBalance = "My Balance 💰"
	BtnBuyPlan   = "Buy Plan 💲"
	BtnHelp      = "Help ℹ️"
)

// Balance menu buttons.
const (
	BtnAddBalance  = "Add Balance 💰"
	BtnSMSSettings = "SMS Token Settings 📱"
)

// Purchase flow buttons.
const (
	BtnBack           = "Back 🔙"
	BtnPayWithBalance = "Pay with Balance 💼"
	BtnPayNow         = "Pay Now 💳"
	BtnSkipSMS        = "Skip SMS ❌"
)

// Admin menu buttons.
const (
	BtnPendingPayments = "View Pending Payments 💲"
	BtnStatistics      = "Statistics 📈"
	BtnSMSUsers        = "SMS Users 📱"
	BtnDeductSMSFee    = "Deduct SMS Fee 💸"
	BtnViewUsers       = "View Users 👥"
	BtnSetMessage      = "Set Message 📝"
	BtnAdminHelp       = "Admin Help 📋"
	BtnBackToUserMenu  = "Back to User Menu 👤"
)

// Callback data prefixes for inline buttons.
const (
	CallbackApprovePrefix   = "approve_payment_"
	CallbackDeclinePrefix   = "decline_payment_"
	CallbackSubmitRefPrefix = "submit_reference_"
	CallbackCancelPayment   = "cancel_payment"
	CallbackSMSFeePrefix    = "sms_fee_"
)

// EnableSMSButton renders the enable-SMS button with the current fee, such
// as "Enable SMS (+₦5.00) ✅".
func EnableSMSButton(fee money.Amount) string {
	return fmt.Sprintf("Enable SMS (+%s) ✅", fee.Naira())
}

// PlanButton renders a plan button with its base price, such as
// "15GB Daily Surf (₦200.00)".
func PlanButton(p catalog.Plan) string {
	return fmt.Sprintf("%s (%s)", p.Name, p.BasePrice.Naira())
}

// MainMenu is the default reply keyboard.
func MainMenu() *chat.Keyboard {
	return &chat.Keyboard{Rows: [][]string{
		{BtnShowMe, BtnMyPlan},
		{BtnMyBalance, BtnBuyPlan},
		{BtnHelp},
	}}
}

// AdminMenu is the admin reply keyboard.
func AdminMenu() *chat.Keyboard {
	return &chat.Keyboard{Rows: [][]string{
		{BtnPendingPayments, BtnStatistics},
		{BtnSMSUsers, BtnDeductSMSFee},
		{BtnViewUsers, BtnSetMessage},
		{BtnAdminHelp, BtnBackToUserMenu},
	}}
}

// Plans lists the plan lineup plus a back button.
func Plans() *chat.Keyboard {
	all := catalog.All()
	kb := &chat.Keyboard{}
	var row []string
	for _, p := range all {
		row = append(row, PlanButton(p))
		if len(row) == 2 {
			kb.Rows = append(kb.Rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		kb.Rows = append(kb.Rows, row)
	}
	kb.Rows = append(kb.Rows, []string{BtnBack})
	return kb
}

// BalanceMenu offers the wallet actions.
func BalanceMenu() *chat.Keyboard {
	return &chat.Keyboard{Rows: [][]string{
		{BtnAddBalance},
		{BtnSMSSettings},
		{BtnBack},
	}}
}

// Back is the single-button cancel keyboard shown inside wizards.
func Back() *chat.Keyboard {
	return &chat.Keyboard{Rows: [][]string{{BtnBack}}}
}

// PaymentMethod offers balance versus bank transfer.
func PaymentMethod() *chat.Keyboard {
	return &chat.Keyboard{Rows: [][]string{
		{BtnPayWithBalance, BtnPayNow},
		{BtnBack},
	}}
}

// SMSOption offers the SMS add-on at the current fee.
func SMSOption(fee money.Amount) *chat.Keyboard {
	return &chat.Keyboard{Rows: [][]string{
		{EnableSMSButton(fee), BtnSkipSMS},
		{BtnBack},
	}}
}

// VerifyPayment is the inline approve/decline pair attached to admin
// notifications.
func VerifyPayment(paymentID string) *chat.InlineKeyboard {
	return &chat.InlineKeyboard{Rows: [][]chat.InlineButton{{
		{Text: "✅ Approve", Data: CallbackApprovePrefix + paymentID},
		{Text: "❌ Decline", Data: CallbackDeclinePrefix + paymentID},
	}}}
}

// SMSFeeOptions is the inline picker for the common SMS fee values.
func SMSFeeOptions() *chat.InlineKeyboard {
	values := []int64{2, 5, 10, 15, 20, 25}
	var rows [][]chat.InlineButton
	for i := 0; i < len(values); i += 3 {
		var row []chat.InlineButton
		for _, v := range values[i : i+3] {
			row = append(row, chat.InlineButton{
				Text: money.FromNaira(v).Naira(),
				Data: fmt.Sprintf("%s%d", CallbackSMSFeePrefix, v),
			})
		}
		rows = append(rows, row)
	}
	return &chat.InlineKeyboard{Rows: rows}
}

// SubmitReference is the inline prompt attached to bank transfer details.
func SubmitReference(planType string) *chat.InlineKeyboard {
	return &chat.InlineKeyboard{Rows: [][]chat.InlineButton{
		{{Text: "Submit Payment Reference", Data: CallbackSubmitRefPrefix + planType}},
		{{Text: "Cancel", Data: CallbackCancelPayment}},
	}}
}

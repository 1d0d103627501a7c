package wallet

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"wifree_bot/internal/chat"
	"wifree_bot/internal/conversation"
	"wifree_bot/internal/domain"
	"wifree_bot/internal/ledger"
	"wifree_bot/internal/money"
	"wifree_bot/internal/router"
	"wifree_bot/internal/ui"
)

const adminID int64 = 999

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

type fakeAccounts struct {
	accounts map[int64]domain.Account
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{accounts: make(map[int64]domain.Account)}
}

func (f *fakeAccounts) Ensure(_ context.Context, chatID int64, _ domain.Profile) (domain.Account, error) {
	account, ok := f.accounts[chatID]
	if !ok {
		account = domain.Account{ChatID: chatID}
		f.accounts[chatID] = account
	}
	return account, nil
}

func (f *fakeAccounts) DeactivatePlan(_ context.Context, chatID int64) error {
	account := f.accounts[chatID]
	account.Plan.IsActive = false
	f.accounts[chatID] = account
	return nil
}

func (f *fakeAccounts) GetByChatID(_ context.Context, chatID int64) (domain.Account, error) {
	account, ok := f.accounts[chatID]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return account, nil
}

func (f *fakeAccounts) SetSMSPreference(_ context.Context, chatID int64, enabled bool, phoneNumber string) (domain.Account, error) {
	account, ok := f.accounts[chatID]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	account.SMS = domain.SMSPreference{Enabled: enabled, PhoneNumber: phoneNumber}
	f.accounts[chatID] = account
	return account, nil
}

func (f *fakeAccounts) AddBalance(_ context.Context, chatID int64, amount money.Amount) (domain.Account, error) {
	account, ok := f.accounts[chatID]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	account.Balance.Amount = account.Balance.Amount.Add(amount)
	f.accounts[chatID] = account
	return account, nil
}

func (f *fakeAccounts) DeductBalance(_ context.Context, chatID int64, amount money.Amount) (domain.Account, error) {
	account, ok := f.accounts[chatID]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	if account.Balance.Amount < amount {
		return domain.Account{}, domain.ErrInsufficientBalance
	}
	account.Balance.Amount -= amount
	f.accounts[chatID] = account
	return account, nil
}

func (f *fakeAccounts) ActivatePlan(_ context.Context, chatID int64, planType domain.PlanType, duration time.Duration) (domain.Account, error) {
	account, ok := f.accounts[chatID]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	now := time.Now().UTC()
	account.Plan = domain.Plan{Type: planType, StartDate: now, EndDate: now.Add(duration), IsActive: true}
	f.accounts[chatID] = account
	return account, nil
}

type fakePayments struct {
	payments map[primitive.ObjectID]domain.Payment
}

func newFakePayments() *fakePayments {
	return &fakePayments{payments: make(map[primitive.ObjectID]domain.Payment)}
}

func (f *fakePayments) Create(_ context.Context, payment domain.Payment) (domain.Payment, error) {
	for _, existing := range f.payments {
		if existing.Reference == payment.Reference {
			return domain.Payment{}, domain.ErrDuplicateReference
		}
	}
	payment.ID = primitive.NewObjectID()
	f.payments[payment.ID] = payment
	return payment, nil
}

func (f *fakePayments) FindByReference(_ context.Context, reference string) (domain.Payment, error) {
	for _, payment := range f.payments {
		if payment.Reference == reference {
			return payment, nil
		}
	}
	return domain.Payment{}, domain.ErrNotFound
}

func (f *fakePayments) FindByID(_ context.Context, id primitive.ObjectID) (domain.Payment, error) {
	payment, ok := f.payments[id]
	if !ok {
		return domain.Payment{}, domain.ErrNotFound
	}
	return payment, nil
}

func (f *fakePayments) Decide(_ context.Context, id primitive.ObjectID, status domain.PaymentStatus, decidedBy string) (domain.Payment, error) {
	payment, ok := f.payments[id]
	if !ok {
		return domain.Payment{}, domain.ErrNotFound
	}
	if payment.Decided() {
		return payment, domain.ErrAlreadyDecided
	}
	payment.Status = status
	payment.DecidedBy = decidedBy
	payment.DecidedAt = time.Now().UTC()
	f.payments[id] = payment
	return payment, nil
}

func (f *fakePayments) Claim(_ context.Context, reference string, chatID int64, kind domain.PaymentKind, planType domain.PlanType) (domain.Payment, error) {
	for id, payment := range f.payments {
		if payment.Reference == reference && payment.Status == domain.StatusApproved && payment.Unclaimed() {
			payment.ChatID = chatID
			payment.Kind = kind
			payment.PlanType = planType
			f.payments[id] = payment
			return payment, nil
		}
	}
	return domain.Payment{}, domain.ErrNotFound
}

type harness struct {
	router   *router.Router
	ledger   *ledger.Service
	accounts *fakeAccounts
	payments *fakePayments
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := testLogger()
	accounts := newFakeAccounts()
	payments := newFakePayments()

	engine := conversation.NewEngine(logger)
	r := router.New(engine, accounts, adminID, logger)

	svc := ledger.NewService(accounts, payments, logger)
	bank := BankDetails{Name: "Palmpay Bank", AccountNumber: "9113692963", AccountName: "Mr Nicholas"}

	feature := New(accounts, svc, engine, bank, adminID, logger)
	if err := feature.Register(r); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	return &harness{router: r, ledger: svc, accounts: accounts, payments: payments}
}

func (h *harness) text(chatID int64, payload string) []chat.Message {
	return h.router.Dispatch(context.Background(), chat.Event{
		SenderID: chatID,
		Kind:     chat.EventText,
		Payload:  payload,
	})
}

func lastText(t *testing.T, msgs []chat.Message) string {
	t.Helper()
	if len(msgs) == 0 {
		t.Fatalf("expected at least one message")
	}
	return msgs[len(msgs)-1].Text
}

func TestMyBalanceShowsWalletCard(t *testing.T) {
	h := newHarness(t)
	h.accounts.accounts[5] = domain.Account{
		ChatID:  5,
		Balance: domain.Balance{Amount: money.FromNaira(250)},
		SMS:     domain.SMSPreference{Enabled: true, PhoneNumber: "08012345678"},
	}

	msgs := h.text(5, ui.BtnMyBalance)

	if len(msgs) != 2 {
		t.Fatalf("expected balance card plus menu, got %d messages", len(msgs))
	}
	if !strings.Contains(msgs[0].Text, "₦250.00") {
		t.Fatalf("expected balance amount, got %q", msgs[0].Text)
	}
	if !strings.Contains(msgs[0].Text, "08012345678") {
		t.Fatalf("expected phone number, got %q", msgs[0].Text)
	}
	if msgs[1].Keyboard == nil {
		t.Fatalf("expected balance menu keyboard")
	}
}

func TestTopupSubmitsForReview(t *testing.T) {
	h := newHarness(t)

	msgs := h.text(5, ui.BtnAddBalance)
	if !strings.Contains(lastText(t, msgs), "minimum ₦50.00") {
		t.Fatalf("expected amount prompt, got %+v", msgs)
	}

	msgs = h.text(5, "20")
	if !strings.Contains(lastText(t, msgs), "valid amount") {
		t.Fatalf("expected minimum enforcement, got %+v", msgs)
	}

	msgs = h.text(5, "500")
	if !strings.Contains(lastText(t, msgs), "Palmpay Bank") {
		t.Fatalf("expected bank details, got %+v", msgs)
	}

	msgs = h.text(5, "TRX-100")
	if len(msgs) != 2 {
		t.Fatalf("expected confirmation plus admin notification, got %d messages", len(msgs))
	}
	if !strings.Contains(msgs[0].Text, "Payment Reference Submitted") {
		t.Fatalf("expected submission confirmation, got %q", msgs[0].Text)
	}
	if msgs[1].RecipientID != adminID || msgs[1].Inline == nil {
		t.Fatalf("expected admin notification with verify buttons, got %+v", msgs[1])
	}

	payment, err := h.payments.FindByReference(context.Background(), "TRX-100")
	if err != nil {
		t.Fatalf("expected recorded payment: %v", err)
	}
	if payment.Status != domain.StatusPending || payment.Kind != domain.KindWalletTopup {
		t.Fatalf("unexpected payment state: %+v", payment)
	}
	if payment.Amount != money.FromNaira(500) {
		t.Fatalf("expected top-up amount ₦500.00, got %s", payment.Amount.Naira())
	}

	if balance := h.accounts.accounts[5].Balance.Amount; balance != 0 {
		t.Fatalf("expected wallet unchanged until approval, got %s", balance.Naira())
	}
}

func TestTopupAutoApprovesRegisteredReference(t *testing.T) {
	h := newHarness(t)

	if _, err := h.ledger.RegisterReference(context.Background(), "admin", "TRX-REG", money.FromNaira(1000)); err != nil {
		t.Fatalf("RegisterReference returned error: %v", err)
	}

	h.text(5, ui.BtnAddBalance)
	h.text(5, "1000")
	msgs := h.text(5, "TRX-REG")

	text := lastText(t, msgs)
	if !strings.Contains(text, "Payment Auto-Approved") {
		t.Fatalf("expected auto-approval, got %q", text)
	}
	if !strings.Contains(text, "New Balance: ₦1,000.00") && !strings.Contains(text, "New Balance: ₦1000.00") {
		t.Fatalf("expected credited balance in message, got %q", text)
	}

	if balance := h.accounts.accounts[5].Balance.Amount; balance != money.FromNaira(1000) {
		t.Fatalf("expected wallet credited, got %s", balance.Naira())
	}

	payment, err := h.payments.FindByReference(context.Background(), "TRX-REG")
	if err != nil {
		t.Fatalf("expected claimed payment: %v", err)
	}
	if payment.ChatID != 5 || payment.Kind != domain.KindWalletTopup {
		t.Fatalf("expected payment bound to chat 5 as top-up, got %+v", payment)
	}
}

func TestTopupRejectsUsedReference(t *testing.T) {
	h := newHarness(t)

	h.text(6, ui.BtnAddBalance)
	h.text(6, "500")
	h.text(6, "TRX-200")

	h.text(5, ui.BtnAddBalance)
	h.text(5, "500")
	msgs := h.text(5, "TRX-200")

	text := lastText(t, msgs)
	if !strings.Contains(text, "already been used") {
		t.Fatalf("expected reference rejection, got %q", text)
	}
	if !strings.Contains(text, "pending") {
		t.Fatalf("expected existing status in message, got %q", text)
	}

	msgs = h.text(5, "TRX-201")
	if len(msgs) != 2 {
		t.Fatalf("expected wizard to accept a fresh reference, got %+v", msgs)
	}
}

func TestTopupCancel(t *testing.T) {
	h := newHarness(t)

	h.text(5, ui.BtnAddBalance)
	msgs := h.text(5, ui.BtnBack)

	if !strings.Contains(lastText(t, msgs), "cancelled") {
		t.Fatalf("expected cancellation, got %+v", msgs)
	}
}

func TestSMSSettingsEnable(t *testing.T) {
	h := newHarness(t)
	h.accounts.accounts[5] = domain.Account{ChatID: 5}

	msgs := h.text(5, ui.BtnSMSSettings)
	if !strings.Contains(lastText(t, msgs), "currently disabled") {
		t.Fatalf("expected disabled status, got %+v", msgs)
	}

	msgs = h.text(5, "1")
	if !strings.Contains(lastText(t, msgs), "phone number") {
		t.Fatalf("expected phone prompt, got %+v", msgs)
	}

	msgs = h.text(5, "abc")
	if !strings.Contains(lastText(t, msgs), "Invalid phone number") {
		t.Fatalf("expected phone validation, got %+v", msgs)
	}

	msgs = h.text(5, "08012345678")
	if !strings.Contains(lastText(t, msgs), "SMS token enabled") {
		t.Fatalf("expected enable confirmation, got %+v", msgs)
	}

	account := h.accounts.accounts[5]
	if !account.SMS.Enabled || account.SMS.PhoneNumber != "08012345678" {
		t.Fatalf("expected stored preference, got %+v", account.SMS)
	}
}

func TestSMSSettingsDisable(t *testing.T) {
	h := newHarness(t)
	h.accounts.accounts[5] = domain.Account{
		ChatID: 5,
		SMS:    domain.SMSPreference{Enabled: true, PhoneNumber: "08012345678"},
	}

	msgs := h.text(5, ui.BtnSMSSettings)
	if !strings.Contains(lastText(t, msgs), "currently enabled for phone number: 08012345678") {
		t.Fatalf("expected enabled status, got %+v", msgs)
	}

	msgs = h.text(5, "2")
	if !strings.Contains(lastText(t, msgs), "have been disabled") {
		t.Fatalf("expected disable confirmation, got %+v", msgs)
	}

	account := h.accounts.accounts[5]
	if account.SMS.Enabled {
		t.Fatalf("expected SMS disabled, got %+v", account.SMS)
	}
}

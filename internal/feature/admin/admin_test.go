package admin

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

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

func (f *fakeAccounts) FindAll(_ context.Context, limit int64) ([]domain.Account, error) {
	var all []domain.Account
	for _, account := range f.accounts {
		all = append(all, account)
		if limit > 0 && int64(len(all)) == limit {
			break
		}
	}
	return all, nil
}

func (f *fakeAccounts) FindSMSEnabled(context.Context) ([]domain.Account, error) {
	var enabled []domain.Account
	for _, account := range f.accounts {
		if account.SMS.Enabled {
			enabled = append(enabled, account)
		}
	}
	return enabled, nil
}

func (f *fakeAccounts) FindActivePlans(context.Context) ([]domain.Account, error) {
	var actives []domain.Account
	for _, account := range f.accounts {
		if account.Plan.IsActive {
			actives = append(actives, account)
		}
	}
	return actives, nil
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

func (f *fakePayments) add(t *testing.T, payment domain.Payment) domain.Payment {
	t.Helper()
	payment.ID = primitive.NewObjectID()
	f.payments[payment.ID] = payment
	return payment
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

func (f *fakePayments) FindPending(context.Context) ([]domain.Payment, error) {
	var pending []domain.Payment
	for _, payment := range f.payments {
		if payment.Status == domain.StatusPending {
			pending = append(pending, payment)
		}
	}
	return pending, nil
}

func (f *fakePayments) FindApprovedTopups(_ context.Context, limit int64) ([]domain.Payment, error) {
	var topups []domain.Payment
	for _, payment := range f.payments {
		if payment.Kind == domain.KindWalletTopup && payment.Status == domain.StatusApproved {
			topups = append(topups, payment)
			if limit > 0 && int64(len(topups)) == limit {
				break
			}
		}
	}
	return topups, nil
}

func (f *fakePayments) FindByChatID(_ context.Context, chatID int64, limit int64) ([]domain.Payment, error) {
	var owned []domain.Payment
	for _, payment := range f.payments {
		if payment.ChatID == chatID {
			owned = append(owned, payment)
			if limit > 0 && int64(len(owned)) == limit {
				break
			}
		}
	}
	return owned, nil
}

type fakeNotices struct {
	active domain.Notice
}

func (f *fakeNotices) SetActive(_ context.Context, message string) (domain.Notice, error) {
	f.active = domain.Notice{ID: primitive.NewObjectID(), Message: message, UpdatedAt: time.Now().UTC()}
	return f.active, nil
}

type fakeStats struct {
	stats store.Stats
}

func (f *fakeStats) Collect(context.Context) (store.Stats, error) {
	return f.stats, nil
}

type harness struct {
	router   *router.Router
	accounts *fakeAccounts
	payments *fakePayments
	notices  *fakeNotices
	fees     *catalog.FeeConfig
	ledger   *ledger.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := testLogger()
	accounts := newFakeAccounts()
	payments := newFakePayments()
	notices := &fakeNotices{}
	stats := &fakeStats{stats: store.Stats{TotalAccounts: 3, ActivePlans: 1, PendingPayments: 1}}

	engine := conversation.NewEngine(logger)
	r := router.New(engine, accounts, adminID, logger)

	svc := ledger.NewService(accounts, payments, logger)
	fees := catalog.NewFeeConfig(money.FromNaira(5))

	feature := New(accounts, payments, notices, stats, svc, fees, engine, logger)
	if err := feature.Register(r); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	accounts.accounts[adminID] = domain.Account{ChatID: adminID, Profile: domain.Profile{FirstName: "Admin"}}

	return &harness{router: r, accounts: accounts, payments: payments, notices: notices, fees: fees, ledger: svc}
}

func (h *harness) text(chatID int64, payload string) []chat.Message {
	return h.router.Dispatch(context.Background(), chat.Event{
		SenderID: chatID,
		Kind:     chat.EventText,
		Payload:  payload,
	})
}

func (h *harness) press(chatID int64, data string) []chat.Message {
	return h.router.Dispatch(context.Background(), chat.Event{
		SenderID: chatID,
		Kind:     chat.EventButtonPress,
		Payload:  data,
	})
}

func lastText(t *testing.T, msgs []chat.Message) string {
	t.Helper()
	if len(msgs) == 0 {
		t.Fatalf("expected at least one message")
	}
	return msgs[len(msgs)-1].Text
}

func TestAdminCommandsDeniedForRegularUsers(t *testing.T) {
	h := newHarness(t)
	h.accounts.accounts[5] = domain.Account{ChatID: 5}

	msgs := h.text(5, "/pending")
	if strings.Contains(lastText(t, msgs), "Pending") {
		t.Fatalf("expected permission denial, got %+v", msgs)
	}
	if !strings.Contains(lastText(t, msgs), "permission") {
		t.Fatalf("expected permission denial text, got %q", lastText(t, msgs))
	}
}

func TestPendingQueueListsPayments(t *testing.T) {
	h := newHarness(t)
	h.accounts.accounts[5] = domain.Account{ChatID: 5, Profile: domain.Profile{FirstName: "Ada"}}

	h.payments.add(t, domain.Payment{
		ChatID:    5,
		Reference: "TRX-1",
		Kind:      domain.KindPlanPurchase,
		PlanType:  domain.PlanTierA,
		Amount:    money.FromNaira(200),
		Status:    domain.StatusPending,
		CreatedAt: time.Now().UTC(),
	})

	msgs := h.text(adminID, ui.BtnPendingPayments)

	if len(msgs) != 2 {
		t.Fatalf("expected header plus one card, got %d messages", len(msgs))
	}
	if !strings.Contains(msgs[0].Text, "Pending Payments: 1") {
		t.Fatalf("expected count header, got %q", msgs[0].Text)
	}
	card := msgs[1]
	if !strings.Contains(card.Text, "15GB Daily Surf") || !strings.Contains(card.Text, "TRX-1") {
		t.Fatalf("expected plan card, got %q", card.Text)
	}
	if !strings.Contains(card.Text, "Ada (5)") {
		t.Fatalf("expected resolved user name, got %q", card.Text)
	}
	if card.Inline == nil {
		t.Fatalf("expected approve/decline buttons")
	}
}

func TestPendingQueueEmpty(t *testing.T) {
	h := newHarness(t)

	msgs := h.text(adminID, "/pending")
	if !strings.Contains(lastText(t, msgs), "No pending payments") {
		t.Fatalf("expected empty queue message, got %+v", msgs)
	}
}

func TestApprovePlanPurchaseNotifiesUser(t *testing.T) {
	h := newHarness(t)
	h.accounts.accounts[5] = domain.Account{ChatID: 5}

	payment := h.payments.add(t, domain.Payment{
		ChatID:    5,
		Reference: "TRX-1",
		Kind:      domain.KindPlanPurchase,
		PlanType:  domain.PlanTierB,
		Amount:    money.FromNaira(500),
		Status:    domain.StatusPending,
	})

	msgs := h.text(adminID, "/approve "+payment.ID.Hex())

	if len(msgs) != 2 {
		t.Fatalf("expected admin confirmation plus user notification, got %d messages", len(msgs))
	}
	if !strings.Contains(msgs[0].Text, "approved") {
		t.Fatalf("expected approval confirmation, got %q", msgs[0].Text)
	}
	if msgs[1].RecipientID != 5 || !strings.Contains(msgs[1].Text, "now active until") {
		t.Fatalf("expected user activation notice, got %+v", msgs[1])
	}

	account := h.accounts.accounts[5]
	if !account.Plan.IsActive || account.Plan.Type != domain.PlanTierB {
		t.Fatalf("expected tierB activated, got %+v", account.Plan)
	}
}

func TestApproveTopupViaCallbackCreditsWallet(t *testing.T) {
	h := newHarness(t)
	h.accounts.accounts[5] = domain.Account{ChatID: 5}

	payment := h.payments.add(t, domain.Payment{
		ChatID:    5,
		Reference: "TRX-2",
		Kind:      domain.KindWalletTopup,
		Amount:    money.FromNaira(1000),
		Status:    domain.StatusPending,
	})

	msgs := h.press(adminID, ui.CallbackApprovePrefix+payment.ID.Hex())

	if len(msgs) != 2 {
		t.Fatalf("expected confirmation plus user notification, got %d messages", len(msgs))
	}
	if !strings.Contains(msgs[1].Text, "New Balance: ₦1000.00") {
		t.Fatalf("expected credited balance in notice, got %q", msgs[1].Text)
	}
	if balance := h.accounts.accounts[5].Balance.Amount; balance != money.FromNaira(1000) {
		t.Fatalf("expected wallet credited, got %s", balance.Naira())
	}
}

func TestApproveAlreadyDecided(t *testing.T) {
	h := newHarness(t)
	h.accounts.accounts[5] = domain.Account{ChatID: 5}

	payment := h.payments.add(t, domain.Payment{
		ChatID:    5,
		Reference: "TRX-3",
		Kind:      domain.KindWalletTopup,
		Amount:    money.FromNaira(100),
		Status:    domain.StatusDeclined,
		DecidedBy: "Admin",
	})

	msgs := h.text(adminID, "/approve "+payment.ID.Hex())

	if !strings.Contains(lastText(t, msgs), "already been declined by Admin") {
		t.Fatalf("expected already-decided message, got %+v", msgs)
	}
}

func TestApproveUnknownPlanLeavesPending(t *testing.T) {
	h := newHarness(t)
	h.accounts.accounts[5] = domain.Account{ChatID: 5}

	payment := h.payments.add(t, domain.Payment{
		ChatID:    5,
		Reference: "TRX-4",
		Kind:      domain.KindPlanPurchase,
		PlanType:  domain.PlanType("legacy"),
		Amount:    money.FromNaira(300),
		Status:    domain.StatusPending,
	})

	msgs := h.text(adminID, "/approve "+payment.ID.Hex())

	if !strings.Contains(lastText(t, msgs), "remains pending") {
		t.Fatalf("expected unknown-plan warning, got %+v", msgs)
	}
	stored := h.payments.payments[payment.ID]
	if stored.Status != domain.StatusPending {
		t.Fatalf("expected payment left pending, got %s", stored.Status)
	}
}

func TestDeclineNotifiesUser(t *testing.T) {
	h := newHarness(t)
	h.accounts.accounts[5] = domain.Account{ChatID: 5}

	payment := h.payments.add(t, domain.Payment{
		ChatID:    5,
		Reference: "TRX-5",
		Kind:      domain.KindPlanPurchase,
		PlanType:  domain.PlanTierA,
		Amount:    money.FromNaira(200),
		Status:    domain.StatusPending,
	})

	msgs := h.text(adminID, "/decline "+payment.ID.Hex())

	if len(msgs) != 2 {
		t.Fatalf("expected admin confirmation plus user notice, got %d messages", len(msgs))
	}
	if msgs[1].RecipientID != 5 || !strings.Contains(msgs[1].Text, "Payment Declined") {
		t.Fatalf("expected decline notice, got %+v", msgs[1])
	}
	if h.accounts.accounts[5].Plan.IsActive {
		t.Fatalf("declines must not activate plans")
	}
}

func TestAddReferenceAndDuplicate(t *testing.T) {
	h := newHarness(t)

	msgs := h.text(adminID, "/addreference TRX-REG 1000")
	if !strings.Contains(lastText(t, msgs), "registered for ₦1000.00") {
		t.Fatalf("expected registration confirmation, got %+v", msgs)
	}

	msgs = h.text(adminID, "/addreference TRX-REG 500")
	if !strings.Contains(lastText(t, msgs), "already exists") {
		t.Fatalf("expected duplicate rejection, got %+v", msgs)
	}
}

func TestSetSMSFeeCommandAndCallback(t *testing.T) {
	h := newHarness(t)

	msgs := h.text(adminID, "/setsmsfee 10")
	if !strings.Contains(lastText(t, msgs), "SMS fee set to ₦10.00") {
		t.Fatalf("expected fee confirmation, got %+v", msgs)
	}
	if h.fees.SMSFee() != money.FromNaira(10) {
		t.Fatalf("expected fee updated, got %s", h.fees.SMSFee().Naira())
	}

	msgs = h.press(adminID, ui.CallbackSMSFeePrefix+"25")
	if !strings.Contains(lastText(t, msgs), "₦25.00") {
		t.Fatalf("expected callback fee confirmation, got %+v", msgs)
	}
	if h.fees.SMSFee() != money.FromNaira(25) {
		t.Fatalf("expected fee updated via callback, got %s", h.fees.SMSFee().Naira())
	}
}

func TestDeductSMSInsufficientBalance(t *testing.T) {
	h := newHarness(t)
	h.accounts.accounts[5] = domain.Account{ChatID: 5, Balance: domain.Balance{Amount: money.FromNaira(1)}}

	msgs := h.text(adminID, "/deductsms 5")

	if !strings.Contains(lastText(t, msgs), "insufficient balance") {
		t.Fatalf("expected insufficient balance warning, got %+v", msgs)
	}
}

func TestBroadcastExcludesAdmin(t *testing.T) {
	h := newHarness(t)
	h.accounts.accounts[5] = domain.Account{ChatID: 5}
	h.accounts.accounts[6] = domain.Account{ChatID: 6}

	msgs := h.text(adminID, "/broadcast service window tonight")

	if len(msgs) != 3 {
		t.Fatalf("expected 2 recipients plus summary, got %d messages", len(msgs))
	}
	for _, msg := range msgs[:2] {
		if msg.RecipientID == adminID {
			t.Fatalf("broadcast must not address the admin")
		}
		if !strings.Contains(msg.Text, "service window tonight") {
			t.Fatalf("expected broadcast body, got %q", msg.Text)
		}
	}
	if !strings.Contains(msgs[2].Text, "queued for 2 users") {
		t.Fatalf("expected delivery summary, got %q", msgs[2].Text)
	}
}

func TestMsgActivesOnly(t *testing.T) {
	h := newHarness(t)
	h.accounts.accounts[5] = domain.Account{ChatID: 5, Plan: domain.Plan{IsActive: true, EndDate: time.Now().Add(time.Hour)}}
	h.accounts.accounts[6] = domain.Account{ChatID: 6}

	msgs := h.text(adminID, "/msg actives maintenance at midnight")

	if len(msgs) != 2 {
		t.Fatalf("expected 1 recipient plus summary, got %d messages", len(msgs))
	}
	if msgs[0].RecipientID != 5 {
		t.Fatalf("expected only the active-plan user, got %+v", msgs[0])
	}
}

func TestSetMessageScene(t *testing.T) {
	h := newHarness(t)

	msgs := h.text(adminID, ui.BtnSetMessage)
	if !strings.Contains(lastText(t, msgs), "new connection message") {
		t.Fatalf("expected prompt, got %+v", msgs)
	}

	msgs = h.text(adminID, "Token: 9912")
	if !strings.Contains(lastText(t, msgs), "Connection message updated") {
		t.Fatalf("expected confirmation, got %+v", msgs)
	}
	if h.notices.active.Message != "Token: 9912" {
		t.Fatalf("expected notice stored, got %q", h.notices.active.Message)
	}
}

func TestBulkDeductSceneRequiresConfirmation(t *testing.T) {
	h := newHarness(t)
	h.accounts.accounts[5] = domain.Account{
		ChatID:  5,
		Balance: domain.Balance{Amount: money.FromNaira(100)},
		SMS:     domain.SMSPreference{Enabled: true, PhoneNumber: "0801"},
	}
	h.accounts.accounts[6] = domain.Account{
		ChatID: 6,
		SMS:    domain.SMSPreference{Enabled: true, PhoneNumber: "0802"},
	}

	msgs := h.text(adminID, ui.BtnDeductSMSFee)
	if !strings.Contains(lastText(t, msgs), "Type CONFIRM to proceed") {
		t.Fatalf("expected confirmation prompt, got %+v", msgs)
	}

	msgs = h.text(adminID, "nope")
	if !strings.Contains(lastText(t, msgs), "Type CONFIRM") {
		t.Fatalf("expected re-prompt on mismatch, got %+v", msgs)
	}

	msgs = h.text(adminID, "CONFIRM")

	summary := lastText(t, msgs)
	if !strings.Contains(summary, "Deducted: 1 users") || !strings.Contains(summary, "Skipped (low balance or missing): 1") {
		t.Fatalf("unexpected summary: %q", summary)
	}
	if !strings.Contains(summary, "Total collected: ₦5.00") {
		t.Fatalf("expected collected total, got %q", summary)
	}

	if balance := h.accounts.accounts[5].Balance.Amount; balance != money.FromNaira(95) {
		t.Fatalf("expected ₦5.00 deducted, got %s", balance.Naira())
	}
	if balance := h.accounts.accounts[6].Balance.Amount; balance != 0 {
		t.Fatalf("expected low-balance user skipped, got %s", balance.Naira())
	}
}

func TestAddBalanceCreditFlow(t *testing.T) {
	h := newHarness(t)
	h.accounts.accounts[5] = domain.Account{ChatID: 5, Balance: domain.Balance{Amount: money.FromNaira(50)}}

	msgs := h.text(adminID, "/addbalance 5 200")
	if !strings.Contains(lastText(t, msgs), "Reply yes to confirm") {
		t.Fatalf("expected confirmation prompt, got %+v", msgs)
	}

	msgs = h.text(adminID, "yes")
	if len(msgs) != 2 {
		t.Fatalf("expected admin confirmation plus user notice, got %d messages", len(msgs))
	}
	if msgs[1].RecipientID != 5 || !strings.Contains(msgs[1].Text, "credited with ₦200.00") {
		t.Fatalf("expected user credit notice, got %+v", msgs[1])
	}
	if balance := h.accounts.accounts[5].Balance.Amount; balance != money.FromNaira(250) {
		t.Fatalf("expected balance ₦250.00, got %s", balance.Naira())
	}
}

func TestAddBalanceUnknownUser(t *testing.T) {
	h := newHarness(t)

	msgs := h.text(adminID, "/addbalance 42 200")
	if !strings.Contains(lastText(t, msgs), "User not found") {
		t.Fatalf("expected unknown-user message, got %+v", msgs)
	}
}

// Package ledger implements the financial operations of the bot: reference
// submission, reconciliation decisions, wallet credits and debits. All
// balance and payment state lives in the repositories; this package owns
// the rules about when money may move.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"wifree_bot/internal/catalog"
	"wifree_bot/internal/domain"
	"wifree_bot/internal/money"
)

// ErrUnknownPlanType means a payment references a plan the catalog does not
// know. Approval must fail rather than guess a duration.
var ErrUnknownPlanType = errors.New("unknown plan type")

// AccountStore is the slice of the account repository the ledger needs.
type AccountStore interface {
	GetByChatID(ctx context.Context, chatID int64) (domain.Account, error)
	AddBalance(ctx context.Context, chatID int64, amount money.Amount) (domain.Account, error)
	DeductBalance(ctx context.Context, chatID int64, amount money.Amount) (domain.Account, error)
	ActivatePlan(ctx context.Context, chatID int64, planType domain.PlanType, duration time.Duration) (domain.Account, error)
}

// PaymentStore is the slice of the payment repository the ledger needs.
type PaymentStore interface {
	Create(ctx context.Context, payment domain.Payment) (domain.Payment, error)
	FindByReference(ctx context.Context, reference string) (domain.Payment, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (domain.Payment, error)
	Decide(ctx context.Context, id primitive.ObjectID, status domain.PaymentStatus, decidedBy string) (domain.Payment, error)
	Claim(ctx context.Context, reference string, chatID int64, kind domain.PaymentKind, planType domain.PlanType) (domain.Payment, error)
}

// Service coordinates accounts and payments.
type Service struct {
	accounts AccountStore
	payments PaymentStore
	logger   *logrus.Entry

	// newReference mints references for balance-paid purchases. Swapped in
	// tests for determinism.
	newReference func() string
}

// NewService builds a ledger service.
func NewService(accounts AccountStore, payments PaymentStore, logger *logrus.Entry) *Service {
	return &Service{
		accounts: accounts,
		payments: payments,
		logger:   logger,
		newReference: func() string {
			return "BAL-" + uuid.NewString()
		},
	}
}

// SubmitParams describes a customer-submitted bank reference.
type SubmitParams struct {
	ChatID    int64
	Reference string
	Kind      domain.PaymentKind
	PlanType  domain.PlanType
	// BaseAmount is the price before any SMS fee.
	BaseAmount money.Amount
	// SMSFee is the fee captured when the total was quoted; zero when the
	// customer skipped SMS.
	SMSFee money.Amount
}

// Submit records a pending payment for admin review. The stored amount is
// the base price plus the captured SMS fee. Reference collisions surface as
// domain.ErrDuplicateReference.
func (s *Service) Submit(ctx context.Context, params SubmitParams) (domain.Payment, error) {
	if params.Reference == "" {
		return domain.Payment{}, errors.New("submit payment: empty reference")
	}
	if !params.BaseAmount.IsPositive() {
		return domain.Payment{}, fmt.Errorf("submit payment: base amount: %w", money.ErrInvalidAmount)
	}
	if params.SMSFee < 0 {
		return domain.Payment{}, fmt.Errorf("submit payment: sms fee: %w", money.ErrInvalidAmount)
	}
	if params.Kind == domain.KindPlanPurchase {
		if _, ok := catalog.Lookup(params.PlanType); !ok {
			return domain.Payment{}, ErrUnknownPlanType
		}
	}

	payment := domain.Payment{
		ChatID:         params.ChatID,
		Reference:      params.Reference,
		Kind:           params.Kind,
		PlanType:       params.PlanType,
		Amount:         params.BaseAmount.Add(params.SMSFee),
		SMSFeeIncluded: params.SMSFee > 0,
		Status:         domain.StatusPending,
	}
	created, err := s.payments.Create(ctx, payment)
	if err != nil {
		return domain.Payment{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"chat_id":   created.ChatID,
		"reference": created.Reference,
		"kind":      created.Kind,
		"amount":    created.Amount.Kobo(),
	}).Info("payment submitted")
	return created, nil
}

// AutoApproveOutcome is the result class of TryAutoApprove.
type AutoApproveOutcome int

const (
	// OutcomeNoMatch means no payment carries the reference; the caller
	// should submit it for manual review.
	OutcomeNoMatch AutoApproveOutcome = iota
	// OutcomeAlreadyUsed means the reference belongs to an existing payment
	// that cannot be claimed.
	OutcomeAlreadyUsed
	// OutcomeAutoApproved means a pre-registered payment was claimed and the
	// wallet credited.
	OutcomeAutoApproved
)

// AutoApproveResult carries the matched payment and, on auto-approval, the
// credited account.
type AutoApproveResult struct {
	Outcome AutoApproveOutcome
	Payment domain.Payment
	Account domain.Account
}

// TryAutoApprove checks a top-up reference against pre-registered payments.
// A reference already bound to a customer is rejected even when approved; a
// pre-registered unclaimed one is claimed atomically and credited.
func (s *Service) TryAutoApprove(ctx context.Context, chatID int64, reference string) (AutoApproveResult, error) {
	existing, err := s.payments.FindByReference(ctx, reference)
	if errors.Is(err, domain.ErrNotFound) {
		return AutoApproveResult{Outcome: OutcomeNoMatch}, nil
	}
	if err != nil {
		return AutoApproveResult{}, err
	}

	if existing.Status != domain.StatusApproved || !existing.Unclaimed() {
		return AutoApproveResult{Outcome: OutcomeAlreadyUsed, Payment: existing}, nil
	}

	claimed, err := s.payments.Claim(ctx, reference, chatID, domain.KindWalletTopup, "")
	if errors.Is(err, domain.ErrNotFound) {
		// Another claim won the race between FindByReference and here.
		return AutoApproveResult{Outcome: OutcomeAlreadyUsed, Payment: existing}, nil
	}
	if err != nil {
		return AutoApproveResult{}, err
	}

	account, err := s.accounts.AddBalance(ctx, chatID, claimed.Amount)
	if err != nil {
		return AutoApproveResult{}, fmt.Errorf("credit claimed reference: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"chat_id":   chatID,
		"reference": reference,
		"amount":    claimed.Amount.Kobo(),
	}).Info("reference auto-approved")
	return AutoApproveResult{Outcome: OutcomeAutoApproved, Payment: claimed, Account: account}, nil
}

// DecideResult carries the decided payment and the account state after any
// approval effect.
type DecideResult struct {
	Payment domain.Payment
	Account domain.Account
	// Applied is true when an approval effect (plan activation or wallet
	// credit) ran.
	Applied bool
}

// Approve moves a pending payment to approved and applies its effect: plan
// purchases activate the plan, wallet top-ups credit the balance. A payment
// whose plan type the catalog does not know is left pending and
// ErrUnknownPlanType returned. A payment already decided returns
// domain.ErrAlreadyDecided with its current state.
func (s *Service) Approve(ctx context.Context, id primitive.ObjectID, decidedBy string) (DecideResult, error) {
	pending, err := s.payments.FindByID(ctx, id)
	if err != nil {
		return DecideResult{}, err
	}

	// Validate before the terminal transition so a bad payment stays
	// pending instead of being approved with no effect.
	var plan catalog.Plan
	if pending.Kind == domain.KindPlanPurchase {
		var ok bool
		plan, ok = catalog.Lookup(pending.PlanType)
		if !ok {
			return DecideResult{Payment: pending}, fmt.Errorf("approve payment %s: plan %q: %w", id.Hex(), pending.PlanType, ErrUnknownPlanType)
		}
	}

	decided, err := s.payments.Decide(ctx, id, domain.StatusApproved, decidedBy)
	if errors.Is(err, domain.ErrAlreadyDecided) {
		return DecideResult{Payment: decided}, err
	}
	if err != nil {
		return DecideResult{}, err
	}

	result := DecideResult{Payment: decided}
	switch decided.Kind {
	case domain.KindPlanPurchase:
		account, err := s.accounts.ActivatePlan(ctx, decided.ChatID, decided.PlanType, plan.Duration())
		if err != nil {
			return result, fmt.Errorf("activate plan for payment %s: %w", id.Hex(), err)
		}
		result.Account = account
		result.Applied = true
	case domain.KindWalletTopup:
		account, err := s.accounts.AddBalance(ctx, decided.ChatID, decided.Amount)
		if err != nil {
			return result, fmt.Errorf("credit wallet for payment %s: %w", id.Hex(), err)
		}
		result.Account = account
		result.Applied = true
	}

	s.logger.WithFields(logrus.Fields{
		"payment_id": id.Hex(),
		"chat_id":    decided.ChatID,
		"kind":       decided.Kind,
		"decided_by": decidedBy,
	}).Info("payment approved")
	return result, nil
}

// Decline moves a pending payment to declined. No account state changes.
func (s *Service) Decline(ctx context.Context, id primitive.ObjectID, decidedBy string) (DecideResult, error) {
	decided, err := s.payments.Decide(ctx, id, domain.StatusDeclined, decidedBy)
	if errors.Is(err, domain.ErrAlreadyDecided) {
		return DecideResult{Payment: decided}, err
	}
	if err != nil {
		return DecideResult{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"payment_id": id.Hex(),
		"chat_id":    decided.ChatID,
		"decided_by": decidedBy,
	}).Info("payment declined")
	return DecideResult{Payment: decided}, nil
}

// BalancePurchase is the result of paying for a plan from the wallet.
type BalancePurchase struct {
	Account domain.Account
	Payment domain.Payment
}

// PayFromBalance debits the wallet for a plan (plus the captured SMS fee)
// and activates it. The debit is conditional on sufficient funds, so the
// wallet never goes negative; a settled payment record is written for the
// audit trail.
func (s *Service) PayFromBalance(ctx context.Context, chatID int64, planType domain.PlanType, smsFee money.Amount) (BalancePurchase, error) {
	plan, ok := catalog.Lookup(planType)
	if !ok {
		return BalancePurchase{}, ErrUnknownPlanType
	}
	if smsFee < 0 {
		return BalancePurchase{}, fmt.Errorf("pay from balance: sms fee: %w", money.ErrInvalidAmount)
	}

	total := plan.BasePrice.Add(smsFee)
	account, err := s.accounts.DeductBalance(ctx, chatID, total)
	if err != nil {
		return BalancePurchase{}, err
	}

	account, err = s.accounts.ActivatePlan(ctx, chatID, planType, plan.Duration())
	if err != nil {
		return BalancePurchase{}, fmt.Errorf("activate plan after debit: %w", err)
	}

	now := time.Now().UTC()
	payment := domain.Payment{
		ChatID:         chatID,
		Reference:      s.newReference(),
		Kind:           domain.KindPlanPurchase,
		PlanType:       planType,
		Amount:         total,
		SMSFeeIncluded: smsFee > 0,
		Status:         domain.StatusApproved,
		DecidedBy:      domain.DecidedBySystem,
		DecidedAt:      now,
		CreatedAt:      now,
	}
	created, err := s.payments.Create(ctx, payment)
	if err != nil {
		// The purchase already settled; losing the audit record is a
		// logging matter, not a customer-facing failure.
		s.logger.WithFields(logrus.Fields{
			"chat_id": chatID,
			"plan":    planType,
		}).WithError(err).Warn("balance purchase record not written")
		created = payment
	}

	s.logger.WithFields(logrus.Fields{
		"chat_id": chatID,
		"plan":    planType,
		"amount":  total.Kobo(),
	}).Info("plan paid from balance")
	return BalancePurchase{Account: account, Payment: created}, nil
}

// Credit adds amount to a wallet. Used by admin credits.
func (s *Service) Credit(ctx context.Context, chatID int64, amount money.Amount) (domain.Account, error) {
	if !amount.IsPositive() {
		return domain.Account{}, money.ErrInvalidAmount
	}
	account, err := s.accounts.AddBalance(ctx, chatID, amount)
	if err != nil {
		return domain.Account{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"chat_id": chatID,
		"amount":  amount.Kobo(),
	}).Info("wallet credited")
	return account, nil
}

// DeductFee debits a flat fee from a wallet, failing with
// domain.ErrInsufficientBalance when funds are short.
func (s *Service) DeductFee(ctx context.Context, chatID int64, fee money.Amount) (domain.Account, error) {
	if !fee.IsPositive() {
		return domain.Account{}, money.ErrInvalidAmount
	}
	return s.accounts.DeductBalance(ctx, chatID, fee)
}

// RegisterReference records an expected bank transfer ahead of the
// customer's submission. The payment starts approved and unclaimed; the
// first top-up submission carrying the reference claims it.
func (s *Service) RegisterReference(ctx context.Context, registeredBy string, reference string, amount money.Amount) (domain.Payment, error) {
	if reference == "" {
		return domain.Payment{}, fmt.Errorf("register reference: empty reference")
	}
	if !amount.IsPositive() {
		return domain.Payment{}, money.ErrInvalidAmount
	}

	now := time.Now().UTC()
	payment := domain.Payment{
		ChatID:    0,
		Reference: reference,
		Kind:      domain.KindAdminRegistered,
		Amount:    amount,
		Status:    domain.StatusApproved,
		DecidedBy: registeredBy,
		DecidedAt: now,
		CreatedAt: now,
	}
	created, err := s.payments.Create(ctx, payment)
	if err != nil {
		return domain.Payment{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"reference": reference,
		"amount":    amount.Kobo(),
	}).Info("reference pre-registered")
	return created, nil
}

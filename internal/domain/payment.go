package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"wifree_bot/internal/money"
)

// PaymentKind distinguishes why a payment reference was submitted.
type PaymentKind string

const (
	KindPlanPurchase    PaymentKind = "planPurchase"
	KindWalletTopup     PaymentKind = "walletTopup"
	KindAdminRegistered PaymentKind = "adminRegistered"
)

// PaymentStatus is the reconciliation state of a submitted reference.
type PaymentStatus string

const (
	StatusPending  PaymentStatus = "pending"
	StatusApproved PaymentStatus = "approved"
	StatusDeclined PaymentStatus = "declined"
)

// DecidedBySystem marks payments settled without an admin decision, such as
// balance-paid plan purchases.
const DecidedBySystem = "system"

// Payment records one bank-transfer reference and its reconciliation
// lifecycle. ChatID zero means the payment was pre-registered by an admin
// and has not been claimed by a customer yet.
type Payment struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ChatID         int64              `bson:"chat_id" json:"chat_id"`
	Reference      string             `bson:"reference" json:"reference"`
	Kind           PaymentKind        `bson:"kind" json:"kind"`
	PlanType       PlanType           `bson:"plan_type,omitempty" json:"plan_type,omitempty"`
	Amount         money.Amount       `bson:"amount" json:"amount"`
	SMSFeeIncluded bool               `bson:"sms_fee_included" json:"sms_fee_included"`
	Status         PaymentStatus      `bson:"status" json:"status"`
	DecidedBy      string             `bson:"decided_by,omitempty" json:"decided_by,omitempty"`
	DecidedAt      time.Time          `bson:"decided_at,omitempty" json:"decided_at,omitempty"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
}

// Unclaimed reports whether this is a pre-registered payment not yet bound
// to a customer.
func (p Payment) Unclaimed() bool {
	return p.ChatID == 0
}

// Decided reports whether the payment has reached a terminal status.
func (p Payment) Decided() bool {
	return p.Status == StatusApproved || p.Status == StatusDeclined
}

package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// paymentCollection captures the subset of *mongo.Collection used by
// PaymentRepository.
type paymentCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	FindOneAndUpdate(ctx context.Context, filter interface{}, update interface{}, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult
}

// PaymentRepository persists payments in MongoDB. The collection carries a
// unique index on reference, which is what makes Create reject duplicates.
type PaymentRepository struct {
	collection paymentCollection
	now        func() time.Time
}

// NewPaymentRepository wires a repository to the given collection.
func NewPaymentRepository(collection paymentCollection) *PaymentRepository {
	return &PaymentRepository{collection: collection, now: time.Now}
}

var errNilPaymentCollection = errors.New("payment repository has no collection")

func (r *PaymentRepository) guard() error {
	if r == nil || r.collection == nil {
		return errNilPaymentCollection
	}
	return nil
}

// Create inserts a new payment and returns it with its assigned ID. A
// reference collision surfaces as ErrDuplicateReference.
func (r *PaymentRepository) Create(ctx context.Context, payment Payment) (Payment, error) {
	if err := r.guard(); err != nil {
		return Payment{}, err
	}

	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = r.now().UTC()
	}
	res, err := r.collection.InsertOne(ctx, payment)
	if mongo.IsDuplicateKeyError(err) {
		return Payment{}, ErrDuplicateReference
	}
	if err != nil {
		return Payment{}, fmt.Errorf("create payment: %w", err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		payment.ID = id
	}
	return payment, nil
}

// FindByReference returns the payment carrying the given reference or
// ErrNotFound.
func (r *PaymentRepository) FindByReference(ctx context.Context, reference string) (Payment, error) {
	if err := r.guard(); err != nil {
		return Payment{}, err
	}

	var payment Payment
	err := r.collection.FindOne(ctx, bson.M{"reference": reference}).Decode(&payment)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Payment{}, ErrNotFound
	}
	if err != nil {
		return Payment{}, fmt.Errorf("find payment by reference: %w", err)
	}
	return payment, nil
}

// FindByID returns the payment with the given ID or ErrNotFound.
func (r *PaymentRepository) FindByID(ctx context.Context, id primitive.ObjectID) (Payment, error) {
	if err := r.guard(); err != nil {
		return Payment{}, err
	}

	var payment Payment
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&payment)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Payment{}, ErrNotFound
	}
	if err != nil {
		return Payment{}, fmt.Errorf("find payment by id: %w", err)
	}
	return payment, nil
}

// Decide moves a pending payment to a terminal status. The pending filter
// and the update are a single conditional write, so exactly one caller wins
// when two decisions race; the loser gets ErrAlreadyDecided together with
// the payment as it stands.
func (r *PaymentRepository) Decide(ctx context.Context, id primitive.ObjectID, status PaymentStatus, decidedBy string) (Payment, error) {
	if err := r.guard(); err != nil {
		return Payment{}, err
	}
	if status != StatusApproved && status != StatusDeclined {
		return Payment{}, fmt.Errorf("decide payment: %q is not a terminal status", status)
	}

	filter := bson.M{"_id": id, "status": StatusPending}
	update := bson.M{
		"$set": bson.M{
			"status":     status,
			"decided_by": decidedBy,
			"decided_at": r.now().UTC(),
		},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var payment Payment
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&payment)
	if errors.Is(err, mongo.ErrNoDocuments) {
		existing, lookupErr := r.FindByID(ctx, id)
		if lookupErr != nil {
			return Payment{}, lookupErr
		}
		return existing, ErrAlreadyDecided
	}
	if err != nil {
		return Payment{}, fmt.Errorf("decide payment: %w", err)
	}
	return payment, nil
}

// Claim binds a pre-registered approved payment to a customer. The filter
// requires chat_id zero, so a reference can be claimed at most once.
func (r *PaymentRepository) Claim(ctx context.Context, reference string, chatID int64, kind PaymentKind, planType PlanType) (Payment, error) {
	if err := r.guard(); err != nil {
		return Payment{}, err
	}

	filter := bson.M{
		"reference": reference,
		"status":    StatusApproved,
		"chat_id":   int64(0),
	}
	set := bson.M{
		"chat_id": chatID,
		"kind":    kind,
	}
	if planType != "" {
		set["plan_type"] = planType
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var payment Payment
	err := r.collection.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&payment)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Payment{}, ErrNotFound
	}
	if err != nil {
		return Payment{}, fmt.Errorf("claim payment: %w", err)
	}
	return payment, nil
}

// FindPending returns pending payments oldest first, so admins work the
// queue in arrival order.
func (r *PaymentRepository) FindPending(ctx context.Context) ([]Payment, error) {
	if err := r.guard(); err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	return r.find(ctx, bson.M{"status": StatusPending}, opts)
}

// FindPendingOlderThan returns pending payments created before cutoff,
// oldest first.
func (r *PaymentRepository) FindPendingOlderThan(ctx context.Context, cutoff time.Time) ([]Payment, error) {
	if err := r.guard(); err != nil {
		return nil, err
	}
	filter := bson.M{
		"status":     StatusPending,
		"created_at": bson.M{"$lt": cutoff.UTC()},
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	return r.find(ctx, filter, opts)
}

// FindApprovedTopups returns approved wallet top-ups newest first, capped at
// limit when positive.
func (r *PaymentRepository) FindApprovedTopups(ctx context.Context, limit int64) ([]Payment, error) {
	if err := r.guard(); err != nil {
		return nil, err
	}
	filter := bson.M{
		"kind":   KindWalletTopup,
		"status": StatusApproved,
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	return r.find(ctx, filter, opts)
}

// FindByChatID returns a customer's payments newest first, capped at limit
// when positive.
func (r *PaymentRepository) FindByChatID(ctx context.Context, chatID int64, limit int64) ([]Payment, error) {
	if err := r.guard(); err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	return r.find(ctx, bson.M{"chat_id": chatID}, opts)
}

func (r *PaymentRepository) find(ctx context.Context, filter interface{}, opts *options.FindOptions) ([]Payment, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find payments: %w", err)
	}
	defer cursor.Close(ctx)

	var payments []Payment
	if err := cursor.All(ctx, &payments); err != nil {
		return nil, fmt.Errorf("decode payments: %w", err)
	}
	return payments, nil
}

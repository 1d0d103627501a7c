package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"wifree_bot/internal/money"
)

// accountCollection captures the subset of *mongo.Collection used by
// AccountRepository so tests can substitute fakes.
type accountCollection interface {
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	FindOneAndUpdate(ctx context.Context, filter interface{}, update interface{}, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	UpdateMany(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// AccountRepository persists accounts in MongoDB.
type AccountRepository struct {
	collection accountCollection
	now        func() time.Time
}

// NewAccountRepository wires a repository to the given collection.
func NewAccountRepository(collection accountCollection) *AccountRepository {
	return &AccountRepository{collection: collection, now: time.Now}
}

var errNilAccountCollection = errors.New("account repository has no collection")

func (r *AccountRepository) guard() error {
	if r == nil || r.collection == nil {
		return errNilAccountCollection
	}
	return nil
}

// Ensure upserts the account for chatID, refreshing the profile, and returns
// the current record. New accounts start with a zero balance, no plan and
// SMS disabled.
func (r *AccountRepository) Ensure(ctx context.Context, chatID int64, profile Profile) (Account, error) {
	if err := r.guard(); err != nil {
		return Account{}, err
	}

	now := r.now().UTC()
	update := bson.M{
		"$set": bson.M{
			"profile":    profile,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"chat_id":              chatID,
			"balance.amount":       int64(0),
			"balance.last_updated": now,
			"plan.type":            PlanNone,
			"plan.is_active":       false,
			"sms.enabled":          false,
			"daily_usage.used_today": false,
			"created_at":           now,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var account Account
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"chat_id": chatID}, update, opts).Decode(&account)
	if err != nil {
		return Account{}, fmt.Errorf("ensure account: %w", err)
	}
	return account, nil
}

// GetByChatID returns the account for chatID or ErrNotFound.
func (r *AccountRepository) GetByChatID(ctx context.Context, chatID int64) (Account, error) {
	if err := r.guard(); err != nil {
		return Account{}, err
	}

	var account Account
	err := r.collection.FindOne(ctx, bson.M{"chat_id": chatID}).Decode(&account)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

// AddBalance credits the wallet and returns the updated account.
func (r *AccountRepository) AddBalance(ctx context.Context, chatID int64, amount money.Amount) (Account, error) {
	if err := r.guard(); err != nil {
		return Account{}, err
	}

	now := r.now().UTC()
	update := bson.M{
		"$inc": bson.M{"balance.amount": amount.Kobo()},
		"$set": bson.M{
			"balance.last_updated": now,
			"updated_at":           now,
		},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var account Account
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"chat_id": chatID}, update, opts).Decode(&account)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("add balance: %w", err)
	}
	return account, nil
}

// DeductBalance debits the wallet only when it holds at least the requested
// amount. The balance check and the deduction are a single conditional
// update so the wallet can never go negative under concurrent debits.
func (r *AccountRepository) DeductBalance(ctx context.Context, chatID int64, amount money.Amount) (Account, error) {
	if err := r.guard(); err != nil {
		return Account{}, err
	}

	now := r.now().UTC()
	filter := bson.M{
		"chat_id":        chatID,
		"balance.amount": bson.M{"$gte": amount.Kobo()},
	}
	update := bson.M{
		"$inc": bson.M{"balance.amount": -amount.Kobo()},
		"$set": bson.M{
			"balance.last_updated": now,
			"updated_at":           now,
		},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var account Account
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&account)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// Either the account is missing or the balance is too low.
		if _, lookupErr := r.GetByChatID(ctx, chatID); lookupErr != nil {
			return Account{}, lookupErr
		}
		return Account{}, ErrInsufficientBalance
	}
	if err != nil {
		return Account{}, fmt.Errorf("deduct balance: %w", err)
	}
	return account, nil
}

// ActivatePlan sets an active plan of the given type running from now for
// the given duration.
func (r *AccountRepository) ActivatePlan(ctx context.Context, chatID int64, planType PlanType, duration time.Duration) (Account, error) {
	if err := r.guard(); err != nil {
		return Account{}, err
	}

	now := r.now().UTC()
	update := bson.M{
		"$set": bson.M{
			"plan.type":       planType,
			"plan.start_date": now,
			"plan.end_date":   now.Add(duration),
			"plan.is_active":  true,
			"updated_at":      now,
		},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var account Account
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"chat_id": chatID}, update, opts).Decode(&account)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("activate plan: %w", err)
	}
	return account, nil
}

// DeactivatePlan clears the active flag on the account's plan. It is a
// no-op when no plan is active.
func (r *AccountRepository) DeactivatePlan(ctx context.Context, chatID int64) error {
	if err := r.guard(); err != nil {
		return err
	}

	now := r.now().UTC()
	update := bson.M{
		"$set": bson.M{
			"plan.is_active": false,
			"updated_at":     now,
		},
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"chat_id": chatID, "plan.is_active": true}, update)
	if err != nil {
		return fmt.Errorf("deactivate plan: %w", err)
	}
	return nil
}

// RecordDailyUsage stamps the free daily feature as used at now.
func (r *AccountRepository) RecordDailyUsage(ctx context.Context, chatID int64) error {
	if err := r.guard(); err != nil {
		return err
	}

	now := r.now().UTC()
	update := bson.M{
		"$set": bson.M{
			"daily_usage.last_used":  now,
			"daily_usage.used_today": true,
			"updated_at":             now,
		},
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"chat_id": chatID}, update)
	if err != nil {
		return fmt.Errorf("record daily usage: %w", err)
	}
	return nil
}

// SetSMSPreference enables or disables SMS delivery. The phone number is
// kept even when disabling so re-enabling does not re-prompt.
func (r *AccountRepository) SetSMSPreference(ctx context.Context, chatID int64, enabled bool, phoneNumber string) (Account, error) {
	if err := r.guard(); err != nil {
		return Account{}, err
	}

	now := r.now().UTC()
	set := bson.M{
		"sms.enabled": enabled,
		"updated_at":  now,
	}
	if phoneNumber != "" {
		set["sms.phone_number"] = phoneNumber
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var account Account
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"chat_id": chatID}, bson.M{"$set": set}, opts).Decode(&account)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("set sms preference: %w", err)
	}
	return account, nil
}

// FindExpired returns accounts whose active plan ended before cutoff.
func (r *AccountRepository) FindExpired(ctx context.Context, cutoff time.Time) ([]Account, error) {
	if err := r.guard(); err != nil {
		return nil, err
	}

	filter := bson.M{
		"plan.is_active": true,
		"plan.end_date":  bson.M{"$lt": cutoff.UTC()},
	}
	return r.find(ctx, filter, nil)
}

// FindSMSEnabled returns all accounts with SMS delivery switched on.
func (r *AccountRepository) FindSMSEnabled(ctx context.Context) ([]Account, error) {
	if err := r.guard(); err != nil {
		return nil, err
	}
	return r.find(ctx, bson.M{"sms.enabled": true}, nil)
}

// FindActivePlans returns accounts currently holding an active plan.
func (r *AccountRepository) FindActivePlans(ctx context.Context) ([]Account, error) {
	if err := r.guard(); err != nil {
		return nil, err
	}
	return r.find(ctx, bson.M{"plan.is_active": true}, nil)
}

// FindAll returns accounts newest first, capped at limit when positive.
func (r *AccountRepository) FindAll(ctx context.Context, limit int64) ([]Account, error) {
	if err := r.guard(); err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	return r.find(ctx, bson.M{}, opts)
}

// ResetDailyUsage clears the used-today flag on every account. Run once a
// day at midnight.
func (r *AccountRepository) ResetDailyUsage(ctx context.Context) (int64, error) {
	if err := r.guard(); err != nil {
		return 0, err
	}

	res, err := r.collection.UpdateMany(ctx,
		bson.M{"daily_usage.used_today": true},
		bson.M{"$set": bson.M{"daily_usage.used_today": false}},
	)
	if err != nil {
		return 0, fmt.Errorf("reset daily usage: %w", err)
	}
	return res.ModifiedCount, nil
}

func (r *AccountRepository) find(ctx context.Context, filter interface{}, opts *options.FindOptions) ([]Account, error) {
	var cursor *mongo.Cursor
	var err error
	if opts != nil {
		cursor, err = r.collection.Find(ctx, filter, opts)
	} else {
		cursor, err = r.collection.Find(ctx, filter)
	}
	if err != nil {
		return nil, fmt.Errorf("find accounts: %w", err)
	}
	defer cursor.Close(ctx)

	var accounts []Account
	if err := cursor.All(ctx, &accounts); err != nil {
		return nil, fmt.Errorf("decode accounts: %w", err)
	}
	return accounts, nil
}

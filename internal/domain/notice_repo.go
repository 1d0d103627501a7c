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

// noticeCollection captures the subset of *mongo.Collection used by
// NoticeRepository.
type noticeCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	UpdateMany(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// NoticeRepository persists the admin-curated daily notice.
type NoticeRepository struct {
	collection noticeCollection
	now        func() time.Time
}

// NewNoticeRepository wires a repository to the given collection.
func NewNoticeRepository(collection noticeCollection) *NoticeRepository {
	return &NoticeRepository{collection: collection, now: time.Now}
}

var errNilNoticeCollection = errors.New("notice repository has no collection")

func (r *NoticeRepository) guard() error {
	if r == nil || r.collection == nil {
		return errNilNoticeCollection
	}
	return nil
}

// SetActive deactivates every existing notice, inserts message as the new
// active one and returns it.
func (r *NoticeRepository) SetActive(ctx context.Context, message string) (Notice, error) {
	if err := r.guard(); err != nil {
		return Notice{}, err
	}

	now := r.now().UTC()
	_, err := r.collection.UpdateMany(ctx,
		bson.M{"is_active": true},
		bson.M{"$set": bson.M{"is_active": false, "updated_at": now}},
	)
	if err != nil {
		return Notice{}, fmt.Errorf("deactivate notices: %w", err)
	}

	notice := Notice{
		Message:   message,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	result, err := r.collection.InsertOne(ctx, notice)
	if err != nil {
		return Notice{}, fmt.Errorf("insert notice: %w", err)
	}
	if id, ok := result.InsertedID.(primitive.ObjectID); ok {
		notice.ID = id
	}
	return notice, nil
}

// Active returns the current notice or ErrNotFound when none is set.
func (r *NoticeRepository) Active(ctx context.Context) (Notice, error) {
	if err := r.guard(); err != nil {
		return Notice{}, err
	}

	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	var notice Notice
	err := r.collection.FindOne(ctx, bson.M{"is_active": true}, opts).Decode(&notice)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Notice{}, ErrNotFound
	}
	if err != nil {
		return Notice{}, fmt.Errorf("find active notice: %w", err)
	}
	return notice, nil
}

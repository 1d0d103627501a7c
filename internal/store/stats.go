package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"wifree_bot/internal/money"
)

// statsCollection captures the subset of *mongo.Collection the stats
// provider queries.
type statsCollection interface {
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
	Aggregate(ctx context.Context, pipeline interface{}, opts ...*options.AggregateOptions) (*mongo.Cursor, error)
}

// Stats is a snapshot of business counters for the admin dashboard and the
// health endpoint.
type Stats struct {
	TotalAccounts    int64                `json:"total_accounts"`
	ActivePlans      int64                `json:"active_plans"`
	SMSEnabled       int64                `json:"sms_enabled"`
	PendingPayments  int64                `json:"pending_payments"`
	ApprovedPayments int64                `json:"approved_payments"`
	DeclinedPayments int64                `json:"declined_payments"`
	ApprovedRevenue  money.Amount         `json:"approved_revenue"`
	PlansByType      map[string]int64     `json:"plans_by_type"`
}

// StatsProvider aggregates counters across the accounts and payments
// collections.
type StatsProvider struct {
	accounts statsCollection
	payments statsCollection
}

// NewStatsProvider wires a provider to the two collections it reads.
func NewStatsProvider(accounts, payments statsCollection) *StatsProvider {
	return &StatsProvider{accounts: accounts, payments: payments}
}

// Collect gathers the full snapshot. Counter queries run sequentially; the
// snapshot is advisory, not transactional.
func (p *StatsProvider) Collect(ctx context.Context) (Stats, error) {
	if p == nil || p.accounts == nil || p.payments == nil {
		return Stats{}, errors.New("stats provider has no collections")
	}

	var stats Stats
	var err error

	if stats.TotalAccounts, err = p.accounts.CountDocuments(ctx, bson.M{}); err != nil {
		return Stats{}, fmt.Errorf("count accounts: %w", err)
	}
	if stats.ActivePlans, err = p.accounts.CountDocuments(ctx, bson.M{"plan.is_active": true}); err != nil {
		return Stats{}, fmt.Errorf("count active plans: %w", err)
	}
	if stats.SMSEnabled, err = p.accounts.CountDocuments(ctx, bson.M{"sms.enabled": true}); err != nil {
		return Stats{}, fmt.Errorf("count sms enabled: %w", err)
	}
	if stats.PendingPayments, err = p.payments.CountDocuments(ctx, bson.M{"status": "pending"}); err != nil {
		return Stats{}, fmt.Errorf("count pending payments: %w", err)
	}
	if stats.ApprovedPayments, err = p.payments.CountDocuments(ctx, bson.M{"status": "approved"}); err != nil {
		return Stats{}, fmt.Errorf("count approved payments: %w", err)
	}
	if stats.DeclinedPayments, err = p.payments.CountDocuments(ctx, bson.M{"status": "declined"}); err != nil {
		return Stats{}, fmt.Errorf("count declined payments: %w", err)
	}

	if stats.ApprovedRevenue, err = p.approvedRevenue(ctx); err != nil {
		return Stats{}, err
	}
	if stats.PlansByType, err = p.plansByType(ctx); err != nil {
		return Stats{}, err
	}

	return stats, nil
}

func (p *StatsProvider) approvedRevenue(ctx context.Context) (money.Amount, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"status": "approved", "chat_id": bson.M{"$ne": 0}}}},
		{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": "$amount"}}}},
	}
	cursor, err := p.payments.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("aggregate revenue: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Total int64 `bson:"total"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, fmt.Errorf("decode revenue: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return money.Amount(rows[0].Total), nil
}

func (p *StatsProvider) plansByType(ctx context.Context) (map[string]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"plan.is_active": true}}},
		{{Key: "$group", Value: bson.M{"_id": "$plan.type", "count": bson.M{"$sum": 1}}}},
	}
	cursor, err := p.accounts.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate plans: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Type  string `bson:"_id"`
		Count int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode plans: %w", err)
	}

	byType := make(map[string]int64, len(rows))
	for _, row := range rows {
		byType[row.Type] = row.Count
	}
	return byType, nil
}

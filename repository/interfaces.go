// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/printshop-os/pricing-engine/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// PricingRuleRepository is the rule store: append-only revision rows per
// rule UUID, with latest-revision and active-set queries.
type PricingRuleRepository interface {
	Repository[models.PricingRule, models.PricingRuleFilter]
	// LatestByRuleUUID returns the newest revision of a rule, or nil if unknown.
	LatestByRuleUUID(ctx context.Context, ruleUUID uuid.UUID) (*models.PricingRule, error)
	// ByRuleUUIDAndRevision returns one exact revision, or nil if unknown.
	ByRuleUUIDAndRevision(ctx context.Context, ruleUUID uuid.UUID, revision int) (*models.PricingRule, error)
	// History returns all revisions of a rule, oldest first.
	History(ctx context.Context, ruleUUID uuid.UUID) ([]*models.PricingRule, error)
	// ListActive returns the latest revision of every rule whose latest
	// revision is active and whose validity window contains asOf.
	ListActive(ctx context.Context, asOf time.Time) ([]*models.PricingRule, error)
	// ListLatest returns the latest revision of every rule, active or not.
	ListLatest(ctx context.Context) ([]*models.PricingRule, error)
}

// CalculationRecordRepository is the audit recorder's durable store.
// Records are append-only; there are no update or delete operations.
type CalculationRecordRepository interface {
	Repository[models.CalculationRecord, models.CalculationRecordFilter]
	ByUUID(ctx context.Context, recordUUID uuid.UUID) (*models.CalculationRecord, error)
	ListByFingerprint(ctx context.Context, fingerprint string, limit, offset int) ([]*models.CalculationRecord, error)
}

package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/printshop-os/pricing-engine/models"
	"gorm.io/gorm"
)

// PricingRuleRepositoryImpl implements PricingRuleRepository
type PricingRuleRepositoryImpl struct {
	*BaseRepository[models.PricingRule, models.PricingRuleFilter]
}

// NewPricingRuleRepository creates a new repository for pricing rules
func NewPricingRuleRepository(db *gorm.DB) PricingRuleRepository {
	return &PricingRuleRepositoryImpl{
		BaseRepository: NewBaseRepository[models.PricingRule, models.PricingRuleFilter](db),
	}
}

// LatestByRuleUUID returns the newest revision of a rule (highest revision wins).
func (r *PricingRuleRepositoryImpl) LatestByRuleUUID(ctx context.Context, ruleUUID uuid.UUID) (*models.PricingRule, error) {
	db := r.getDB(ctx)

	var rule models.PricingRule
	err := db.Where("rule_uuid = ?", ruleUUID).Order("revision DESC").First(&rule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rule, nil
}

// ByRuleUUIDAndRevision returns one exact revision of a rule.
func (r *PricingRuleRepositoryImpl) ByRuleUUIDAndRevision(ctx context.Context, ruleUUID uuid.UUID, revision int) (*models.PricingRule, error) {
	db := r.getDB(ctx)

	var rule models.PricingRule
	err := db.Where("rule_uuid = ? AND revision = ?", ruleUUID, revision).First(&rule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rule, nil
}

// History returns all revisions of a rule, oldest first.
func (r *PricingRuleRepositoryImpl) History(ctx context.Context, ruleUUID uuid.UUID) ([]*models.PricingRule, error) {
	db := r.getDB(ctx)

	var rows []*models.PricingRule
	err := db.Where("rule_uuid = ?", ruleUUID).Order("revision ASC").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListActive returns the latest revision per rule UUID, keeping only rules
// that are active and whose validity window contains asOf.
func (r *PricingRuleRepositoryImpl) ListActive(ctx context.Context, asOf time.Time) ([]*models.PricingRule, error) {
	db := r.getDB(ctx)

	var rows []*models.PricingRule
	err := db.Raw(`
		SELECT * FROM (
			SELECT DISTINCT ON (rule_uuid) *
			FROM pricing_rules
			ORDER BY rule_uuid, revision DESC
		) latest
		WHERE latest.is_active
		  AND (latest.effective_from IS NULL OR latest.effective_from <= ?)
		  AND (latest.effective_to IS NULL OR latest.effective_to > ?)
		ORDER BY latest.category, latest.priority DESC, latest.rule_uuid
	`, asOf, asOf).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListLatest returns the latest revision per rule UUID, active or not.
func (r *PricingRuleRepositoryImpl) ListLatest(ctx context.Context) ([]*models.PricingRule, error) {
	db := r.getDB(ctx)

	var rows []*models.PricingRule
	err := db.Raw(`
		SELECT DISTINCT ON (rule_uuid) *
		FROM pricing_rules
		ORDER BY rule_uuid, revision DESC
	`).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *PricingRuleRepositoryImpl) applyFilter(db *gorm.DB, filter models.PricingRuleFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.RuleUUID != nil {
		db = db.Where("rule_uuid = ?", *filter.RuleUUID)
	}
	if filter.Category != nil {
		db = db.Where("category = ?", *filter.Category)
	}
	if filter.Service != nil {
		db = db.Where("service = ?", *filter.Service)
	}
	if filter.IsActive != nil {
		db = db.Where("is_active = ?", *filter.IsActive)
	}
	return db
}

// ByFilter retrieves pricing rule rows based on filter criteria.
func (r *PricingRuleRepositoryImpl) ByFilter(ctx context.Context, filter models.PricingRuleFilter, orderBy string, limit, offset int) ([]*models.PricingRule, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.PricingRule{})

	query = r.applyFilter(query, filter)

	if orderBy == "" {
		orderBy = "created_at DESC"
	}
	query = query.Order(orderBy)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []*models.PricingRule
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns the number of pricing rule rows matching the filter.
func (r *PricingRuleRepositoryImpl) Count(ctx context.Context, filter models.PricingRuleFilter) (int64, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.PricingRule{})
	query = r.applyFilter(query, filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any pricing rule row matching the filter exists.
func (r *PricingRuleRepositoryImpl) Exists(ctx context.Context, filter models.PricingRuleFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

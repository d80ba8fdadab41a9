package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/printshop-os/pricing-engine/models"
	"gorm.io/gorm"
)

// CalculationRecordRepositoryImpl implements CalculationRecordRepository
type CalculationRecordRepositoryImpl struct {
	*BaseRepository[models.CalculationRecord, models.CalculationRecordFilter]
}

// NewCalculationRecordRepository creates a new repository for calculation records
func NewCalculationRecordRepository(db *gorm.DB) CalculationRecordRepository {
	return &CalculationRecordRepositoryImpl{
		BaseRepository: NewBaseRepository[models.CalculationRecord, models.CalculationRecordFilter](db),
	}
}

// ByUUID returns a calculation record by its UUID.
func (r *CalculationRecordRepositoryImpl) ByUUID(ctx context.Context, recordUUID uuid.UUID) (*models.CalculationRecord, error) {
	db := r.getDB(ctx)

	var record models.CalculationRecord
	err := db.Where("uuid = ?", recordUUID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// ListByFingerprint returns records for a request fingerprint, newest first.
func (r *CalculationRecordRepositoryImpl) ListByFingerprint(ctx context.Context, fingerprint string, limit, offset int) ([]*models.CalculationRecord, error) {
	db := r.getDB(ctx)

	query := db.Model(&models.CalculationRecord{}).
		Where("request_fingerprint = ?", fingerprint).
		Order("computed_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []*models.CalculationRecord
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *CalculationRecordRepositoryImpl) applyFilter(db *gorm.DB, filter models.CalculationRecordFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.RequestFingerprint != nil {
		db = db.Where("request_fingerprint = ?", *filter.RequestFingerprint)
	}
	if filter.ComputedAfter != nil {
		db = db.Where("computed_at >= ?", *filter.ComputedAfter)
	}
	if filter.ComputedBefore != nil {
		db = db.Where("computed_at <= ?", *filter.ComputedBefore)
	}
	return db
}

// ByFilter retrieves calculation records based on filter criteria.
func (r *CalculationRecordRepositoryImpl) ByFilter(ctx context.Context, filter models.CalculationRecordFilter, orderBy string, limit, offset int) ([]*models.CalculationRecord, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.CalculationRecord{})

	query = r.applyFilter(query, filter)

	if orderBy == "" {
		orderBy = "computed_at DESC"
	}
	query = query.Order(orderBy)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []*models.CalculationRecord
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns the number of calculation records matching the filter.
func (r *CalculationRecordRepositoryImpl) Count(ctx context.Context, filter models.CalculationRecordFilter) (int64, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.CalculationRecord{})
	query = r.applyFilter(query, filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any calculation record matching the filter exists.
func (r *CalculationRecordRepositoryImpl) Exists(ctx context.Context, filter models.CalculationRecordFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

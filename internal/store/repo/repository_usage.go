package repo

import (
	"database/sql"
	"errors"

	"gorm.io/gorm"

	"vpn-backend/internal/store/model"
)

func (r *Repository) CreateUsageSample(userID, flow, totalFlow int64, hourText string, createdTime int64) error {
	if r == nil || r.db == nil {
		return errors.New("repository not initialized")
	}
	return r.db.Create(&model.UsageSample{
		UserID:      userID,
		Flow:        flow,
		TotalFlow:   totalFlow,
		Time:        hourText,
		CreatedTime: createdTime,
	}).Error
}

// GetLastUsageTotal returns the most recent cumulative total recorded for
// a user, or an invalid NullInt64 when no sample exists yet.
func (r *Repository) GetLastUsageTotal(userID int64) (sql.NullInt64, error) {
	if r == nil || r.db == nil {
		return sql.NullInt64{}, errors.New("repository not initialized")
	}
	var s model.UsageSample
	err := r.db.Where("user_id = ?", userID).Order("created_time DESC").Limit(1).Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sql.NullInt64{}, nil
	}
	if err != nil {
		return sql.NullInt64{}, err
	}
	return sql.NullInt64{Int64: s.TotalFlow, Valid: true}, nil
}

func (r *Repository) ListUsageSamples(userID int64, limit int) ([]model.UsageSample, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("repository not initialized")
	}
	var result []model.UsageSample
	err := r.db.Where("user_id = ?", userID).Order("created_time DESC").Limit(limit).Find(&result).Error
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = make([]model.UsageSample, 0)
	}
	return result, nil
}

func (r *Repository) PurgeOldUsageSamples(cutoffMs int64) error {
	if r == nil || r.db == nil {
		return errors.New("repository not initialized")
	}
	return r.db.Where("created_time < ?", cutoffMs).Delete(&model.UsageSample{}).Error
}

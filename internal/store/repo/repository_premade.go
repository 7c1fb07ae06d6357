package repo

import (
	"errors"

	"gorm.io/gorm"

	"vpn-backend/internal/store/model"
)

func (r *Repository) CreatePremade(p *model.PremadeConfig) error {
	if r == nil || r.db == nil {
		return errors.New("repository not initialized")
	}
	return r.db.Create(p).Error
}

func (r *Repository) GetPremade(id int64) (*model.PremadeConfig, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("repository not initialized")
	}
	var p model.PremadeConfig
	err := r.db.Where("id = ?", id).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *Repository) ListPremade() ([]model.PremadeConfig, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("repository not initialized")
	}
	var result []model.PremadeConfig
	err := r.db.Order("created_time DESC").Find(&result).Error
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = make([]model.PremadeConfig, 0)
	}
	return result, nil
}

// ListEnabledPremade returns templates visible to a user. Free-plan users
// only see templates that are not marked paid-only.
func (r *Repository) ListEnabledPremade(includePaidOnly bool) ([]model.PremadeConfig, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("repository not initialized")
	}
	q := r.db.Where("enabled = ?", true)
	if !includePaidOnly {
		q = q.Where("paid_only = ?", false)
	}
	var result []model.PremadeConfig
	err := q.Order("created_time DESC").Find(&result).Error
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = make([]model.PremadeConfig, 0)
	}
	return result, nil
}

func (r *Repository) UpdatePremade(p *model.PremadeConfig) error {
	if r == nil || r.db == nil {
		return errors.New("repository not initialized")
	}
	return r.db.Save(p).Error
}

func (r *Repository) DeletePremade(id int64) error {
	if r == nil || r.db == nil {
		return errors.New("repository not initialized")
	}
	return r.db.Where("id = ?", id).Delete(&model.PremadeConfig{}).Error
}

package repo

import (
	"errors"

	"gorm.io/gorm"

	"vpn-backend/internal/store/model"
)

func (r *Repository) CreateConfig(c *model.Config) error {
	if r == nil || r.db == nil {
		return errors.New("repository not initialized")
	}
	return r.db.Create(c).Error
}

func (r *Repository) GetConfig(configID int64) (*model.Config, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("repository not initialized")
	}
	var c model.Config
	err := r.db.Where("id = ?", configID).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// GetUserConfig returns a config only if it belongs to the given user.
func (r *Repository) GetUserConfig(userID, configID int64) (*model.Config, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("repository not initialized")
	}
	var c model.Config
	err := r.db.Where("id = ? AND user_id = ?", configID, userID).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *Repository) ListConfigsByUser(userID int64) ([]model.Config, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("repository not initialized")
	}
	var configs []model.Config
	err := r.db.Where("user_id = ?", userID).Order("created_time DESC").Find(&configs).Error
	if err != nil {
		return nil, err
	}
	if configs == nil {
		configs = make([]model.Config, 0)
	}
	return configs, nil
}

func (r *Repository) SetConfigEnabled(configID int64, enabled bool) error {
	if r == nil || r.db == nil {
		return errors.New("repository not initialized")
	}
	return r.db.Model(&model.Config{}).Where("id = ?", configID).
		Update("enabled", enabled).Error
}

// UpdateConfigCredential swaps the remote client identifier and the
// regenerated share URL after a successful rotation.
func (r *Repository) UpdateConfigCredential(configID int64, xrayClientID, shareURL string) error {
	if r == nil || r.db == nil {
		return errors.New("repository not initialized")
	}
	return r.db.Model(&model.Config{}).Where("id = ?", configID).Updates(map[string]interface{}{
		"xray_client_id": xrayClientID,
		"share_url":      shareURL,
	}).Error
}

func (r *Repository) RenameConfig(configID int64, name string) error {
	if r == nil || r.db == nil {
		return errors.New("repository not initialized")
	}
	return r.db.Model(&model.Config{}).Where("id = ?", configID).
		Update("name", name).Error
}

func (r *Repository) DeleteConfig(configID int64) error {
	if r == nil || r.db == nil {
		return errors.New("repository not initialized")
	}
	return r.db.Where("id = ?", configID).Delete(&model.Config{}).Error
}

// ListExpiredEnabledConfigs returns enabled configs whose expiry has
// passed, for the daily sweep job.
func (r *Repository) ListExpiredEnabledConfigs(nowMs int64) ([]model.ExpiredConfig, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("repository not initialized")
	}
	var result []model.ExpiredConfig
	err := r.db.Model(&model.Config{}).
		Select("id, user_id, xray_client_id, inbound_id, client_email, protocol").
		Where("enabled = ? AND expiry_time > 0 AND expiry_time < ?", true, nowMs).
		Order("id ASC").
		Find(&result).Error
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = make([]model.ExpiredConfig, 0)
	}
	return result, nil
}

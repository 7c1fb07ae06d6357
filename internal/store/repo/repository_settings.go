package repo

import (
	"errors"

	"gorm.io/gorm"

	"vpn-backend/internal/store/model"
)

// GetSettings returns the singleton settings row, creating it with
// defaults if it is missing.
func (r *Repository) GetSettings() (*model.AdminSettings, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("repository not initialized")
	}
	var s model.AdminSettings
	err := r.db.Where("id = 1").First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s = model.AdminSettings{ID: 1, DefaultMaxConfigs: 2, DefaultMaxGB: 10, ShowLiveUsers: true}
		if err := r.db.Create(&s).Error; err != nil {
			return nil, err
		}
		return &s, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateSettings applies only the provided (non-nil) global defaults.
func (r *Repository) UpdateSettings(defaultMaxConfigs, defaultMaxGB, defaultSpeedLimit *int, restrictions *model.Restrictions, showLiveUsers *bool) (*model.AdminSettings, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("repository not initialized")
	}
	if _, err := r.GetSettings(); err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if defaultMaxConfigs != nil {
		updates["default_max_configs"] = *defaultMaxConfigs
	}
	if defaultMaxGB != nil {
		updates["default_max_gb"] = *defaultMaxGB
	}
	if defaultSpeedLimit != nil {
		updates["default_speed_limit"] = *defaultSpeedLimit
	}
	if restrictions != nil {
		updates["restrictions"] = *restrictions
	}
	if showLiveUsers != nil {
		updates["show_live_users"] = *showLiveUsers
	}
	if len(updates) > 0 {
		if err := r.db.Model(&model.AdminSettings{}).Where("id = 1").Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return r.GetSettings()
}

// UpdateBackupPanel stores backup panel credentials for session failover.
func (r *Repository) UpdateBackupPanel(url, user, pass string) (*model.AdminSettings, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("repository not initialized")
	}
	if _, err := r.GetSettings(); err != nil {
		return nil, err
	}
	err := r.db.Model(&model.AdminSettings{}).Where("id = 1").Updates(map[string]interface{}{
		"backup_panel_url":  url,
		"backup_panel_user": user,
		"backup_panel_pass": pass,
	}).Error
	if err != nil {
		return nil, err
	}
	return r.GetSettings()
}

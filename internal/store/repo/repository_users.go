package repo

import (
	"errors"

	"gorm.io/gorm"

	"vpn-backend/internal/store/model"
)

func (r *Repository) GetUser(userID int64) (*model.User, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("repository not initialized")
	}
	var u model.User
	err := r.db.Where("id = ?", userID).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *Repository) CreateUser(u *model.User) error {
	if r == nil || r.db == nil {
		return errors.New("repository not initialized")
	}
	return r.db.Create(u).Error
}

func (r *Repository) ListUsers() ([]model.User, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("repository not initialized")
	}
	var users []model.User
	err := r.db.Order("created_time DESC").Find(&users).Error
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = make([]model.User, 0)
	}
	return users, nil
}

// AdjustUserCounters atomically shifts the config counter and consumed-GB
// counter for a user. The config counter never drops below zero.
func (r *Repository) AdjustUserCounters(userID int64, configDelta, gbDelta int) error {
	if r == nil || r.db == nil {
		return errors.New("repository not initialized")
	}
	// CASE instead of MAX/GREATEST keeps the expression portable across
	// SQLite and PostgreSQL.
	updates := map[string]interface{}{}
	if configDelta != 0 {
		updates["current_configs"] = gorm.Expr(
			"CASE WHEN current_configs + ? < 0 THEN 0 ELSE current_configs + ? END",
			configDelta, configDelta)
	}
	if gbDelta != 0 {
		updates["current_gb"] = gorm.Expr(
			"CASE WHEN current_gb + ? < 0 THEN 0 ELSE current_gb + ? END",
			gbDelta, gbDelta)
	}
	if len(updates) == 0 {
		return nil
	}
	return r.db.Model(&model.User{}).Where("id = ?", userID).Updates(updates).Error
}

func (r *Repository) UpdateUserRestrictions(userID int64, restrictions model.Restrictions) error {
	if r == nil || r.db == nil {
		return errors.New("repository not initialized")
	}
	return r.db.Model(&model.User{}).Where("id = ?", userID).
		Update("restrictions", restrictions).Error
}

func (r *Repository) UpdateUserSpeedLimit(userID int64, speedLimit int) error {
	if r == nil || r.db == nil {
		return errors.New("repository not initialized")
	}
	return r.db.Model(&model.User{}).Where("id = ?", userID).
		Update("speed_limit", speedLimit).Error
}

// UpdateUserPlan applies only the provided (non-nil) plan fields.
func (r *Repository) UpdateUserPlan(userID int64, plan *string, planExpiry *int64, maxConfigs, allowedMaxGB, speedLimit *int) error {
	if r == nil || r.db == nil {
		return errors.New("repository not initialized")
	}
	updates := map[string]interface{}{}
	if plan != nil {
		updates["plan"] = *plan
	}
	if planExpiry != nil {
		updates["plan_expiry"] = *planExpiry
	}
	if maxConfigs != nil {
		updates["max_configs"] = *maxConfigs
	}
	if allowedMaxGB != nil {
		updates["allowed_max_gb"] = *allowedMaxGB
	}
	if speedLimit != nil {
		updates["speed_limit"] = *speedLimit
	}
	if len(updates) == 0 {
		return nil
	}
	return r.db.Model(&model.User{}).Where("id = ?", userID).Updates(updates).Error
}

// ListUserRecords returns the minimal user view consumed by the stats job.
func (r *Repository) ListUserRecords() ([]model.UserRecord, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("repository not initialized")
	}
	var result []model.UserRecord
	err := r.db.Model(&model.User{}).
		Select("id, name, plan, max_configs").
		Order("id ASC").
		Find(&result).Error
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = make([]model.UserRecord, 0)
	}
	return result, nil
}

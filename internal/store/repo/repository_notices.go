package repo

import (
	"errors"

	"vpn-backend/internal/store/model"
)

func (r *Repository) CreateNotice(n *model.Notice) error {
	if r == nil || r.db == nil {
		return errors.New("repository not initialized")
	}
	return r.db.Create(n).Error
}

func (r *Repository) ListNotices(enabledOnly bool) ([]model.Notice, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("repository not initialized")
	}
	q := r.db.Order("created_time DESC")
	if enabledOnly {
		q = q.Where("enabled = ?", true)
	}
	var result []model.Notice
	err := q.Find(&result).Error
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = make([]model.Notice, 0)
	}
	return result, nil
}

func (r *Repository) UpdateNotice(id int64, title, content string, enabled bool, nowMs int64) error {
	if r == nil || r.db == nil {
		return errors.New("repository not initialized")
	}
	return r.db.Model(&model.Notice{}).Where("id = ?", id).Updates(map[string]interface{}{
		"title":        title,
		"content":      content,
		"enabled":      enabled,
		"updated_time": nowMs,
	}).Error
}

func (r *Repository) DeleteNotice(id int64) error {
	if r == nil || r.db == nil {
		return errors.New("repository not initialized")
	}
	return r.db.Where("id = ?", id).Delete(&model.Notice{}).Error
}

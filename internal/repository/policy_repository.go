package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/nurpe/finops/internal/model"
)

type PolicyRepository struct {
	db *gorm.DB
}

func NewPolicyRepository(db *gorm.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

func (r *PolicyRepository) ListActive(ctx context.Context) ([]model.Policy, error) {
	var policies []model.Policy
	err := r.db.WithContext(ctx).Raw(`
		SELECT id, name, description, type, rules, is_active, created_at
		FROM policies
		WHERE is_active
		ORDER BY created_at ASC
	`).Scan(&policies).Error
	if err != nil {
		return nil, err
	}
	return policies, nil
}

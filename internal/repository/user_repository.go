package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nurpe/finops/internal/cache"
	"github.com/nurpe/finops/internal/model"
	"github.com/nurpe/finops/internal/service"
)

const userColumns = `
	id, name, email, role, department, manager_id, is_active,
	has_custom_role, custom_role_is_system, max_approval_limit, created_at
`

// UserRepository backs the directory with a cache-aside layer on top of
// postgres. Lookups inside a transaction skip the cache.
type UserRepository struct {
	db   *gorm.DB
	ttl  time.Duration
	inTx bool
}

func NewUserRepository(db *gorm.DB, ttl time.Duration) *UserRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &UserRepository{db: db, ttl: ttl}
}

func (r *UserRepository) InTx(ctx context.Context, fn func(service.UserStore) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&UserRepository{db: tx, ttl: r.ttl, inTx: true})
	})
}

func (r *UserRepository) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	fetch := func() error {
		return r.db.WithContext(ctx).Raw(`
			SELECT `+userColumns+`
			FROM users
			WHERE id = ?
			LIMIT 1
		`, id).Scan(&user).Error
	}

	var err error
	if r.inTx {
		err = fetch()
	} else {
		err = cache.CacheAside(ctx, cache.UserKey(id.String()), &user, r.ttl, fetch)
	}
	if err != nil {
		return nil, err
	}
	if user.ID == uuid.Nil {
		return nil, nil
	}
	return &user, nil
}

func (r *UserRepository) FindUsersByRole(ctx context.Context, role model.Role, department *string) ([]model.User, error) {
	key := cache.RoleKey(string(role))
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE role = ? AND is_active
	`
	args := []interface{}{role}
	if department != nil {
		key = cache.RoleDeptKey(string(role), *department)
		query += ` AND department = ?`
		args = append(args, *department)
	}
	query += ` ORDER BY name ASC`

	var users []model.User
	fetch := func() error {
		return r.db.WithContext(ctx).Raw(query, args...).Scan(&users).Error
	}

	var err error
	if r.inTx {
		err = fetch()
	} else {
		err = cache.CacheAside(ctx, key, &users, r.ttl, fetch)
	}
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *UserRepository) CountActiveAdmins(ctx context.Context, excludeID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Raw(`
		SELECT COUNT(*)
		FROM users
		WHERE role = 'SYSTEM_ADMIN' AND is_active AND id <> ?
	`, excludeID).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *UserRepository) UpdateRole(ctx context.Context, userID uuid.UUID, role model.Role) (bool, error) {
	result := r.db.WithContext(ctx).Exec(`
		UPDATE users
		SET role = ?
		WHERE id = ? AND is_active
	`, role, userID)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

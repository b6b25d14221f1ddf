package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nurpe/finops/internal/cache"
	"github.com/nurpe/finops/internal/model"
)

// RoleService handles role assignment. The only invariant it enforces is
// that at most one active SYSTEM_ADMIN exists at a time; the count and the
// write share a transaction so two concurrent promotions cannot both pass.
type RoleService struct {
	users UserStore
	log   zerolog.Logger
}

func NewRoleService(users UserStore, log zerolog.Logger) *RoleService {
	return &RoleService{users: users, log: log}
}

func (s *RoleService) AssignRole(ctx context.Context, actor model.Principal, userID uuid.UUID, role model.Role) (*model.User, error) {
	if !actor.IsSystemAdmin() {
		return nil, ErrPermissionDenied
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	if user.Role == role {
		return user, nil
	}

	err = s.users.InTx(ctx, func(tx UserStore) error {
		if role.IsSystemAdmin() {
			admins, err := tx.CountActiveAdmins(ctx, userID)
			if err != nil {
				return err
			}
			if admins > 0 {
				return fmt.Errorf("%w: an active system administrator already exists", ErrAdminExists)
			}
		}
		updated, err := tx.UpdateRole(ctx, userID, role)
		if err != nil {
			return err
		}
		if !updated {
			return fmt.Errorf("%w: user %s", ErrNotFound, userID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	keys := []string{
		cache.UserKey(userID.String()),
		cache.RoleKey(string(user.Role)),
		cache.RoleKey(string(role)),
	}
	if user.Department != nil {
		keys = append(keys,
			cache.RoleDeptKey(string(user.Role), *user.Department),
			cache.RoleDeptKey(string(role), *user.Department))
	}
	cache.Invalidate(ctx, keys...)

	s.log.Info().
		Str("user_id", userID.String()).
		Str("from", string(user.Role)).
		Str("to", string(role)).
		Msg("role assigned")

	user.Role = role
	return user, nil
}

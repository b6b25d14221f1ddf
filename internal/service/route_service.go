package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nurpe/finops/internal/config"
	"github.com/nurpe/finops/internal/model"
)

// RouteService resolves who must approve a request and in what order.
// Deterministic for a fixed directory snapshot; it never mutates anything.
type RouteService struct {
	directory Directory
	policies  PolicyStore
	cfg       config.ApprovalsConfig
	log       zerolog.Logger
}

func NewRouteService(directory Directory, policies PolicyStore, cfg config.ApprovalsConfig, log zerolog.Logger) *RouteService {
	return &RouteService{directory: directory, policies: policies, cfg: cfg, log: log}
}

type RouteInput struct {
	RequesterID uuid.UUID
	Amount      float64
	Category    string
	IsUrgent    bool
	RequestType model.RequisitionType
}

const daysPerLevel = 1.5

// DetermineRoute applies, in order: expedited-type overrides, the
// auto-approval band (possibly widened by AUTO_APPROVAL policies), then the
// amount bands. The requester is excluded from every level; a level that
// ends up empty after fallbacks fails with ErrNoEligibleApprover.
func (s *RouteService) DetermineRoute(ctx context.Context, input RouteInput) (*model.ApprovalRoute, error) {
	if input.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}

	// Type overrides come before any amount-banded logic.
	switch input.RequestType {
	case model.RequisitionExpedited:
		return s.finishRoute(&model.ApprovalRoute{
			AutoApprove: true,
			Reason:      "expedited path, approval bypassed",
		}, input)
	case model.RequisitionExpeditedStrict:
		levels, err := s.buildLevels(ctx, input.RequesterID,
			model.RoleFinanceApprover, model.RoleSystemAdmin)
		if err != nil {
			return nil, err
		}
		return s.finishRoute(&model.ApprovalRoute{
			Levels: levels,
			Reason: "strict expedited chain",
		}, input)
	}

	autoLimit, err := s.autoApproveLimit(ctx)
	if err != nil {
		return nil, err
	}
	if input.Amount <= autoLimit {
		return s.finishRoute(&model.ApprovalRoute{
			AutoApprove: true,
			Reason:      fmt.Sprintf("auto-approved under $%.2f threshold", autoLimit),
		}, input)
	}

	roles := []model.Role{model.RoleManager}
	reason := "standard single-level chain"
	switch {
	case input.Amount > s.cfg.DualLimit:
		roles = append(roles, model.RoleFinanceApprover)
		reason = fmt.Sprintf("amount over $%.2f, finance review added", s.cfg.DualLimit)
	default:
		routed, err := s.categoryNeedsFinance(ctx, input.Category, input.Amount)
		if err != nil {
			return nil, err
		}
		if routed {
			roles = append(roles, model.RoleFinanceApprover)
			reason = fmt.Sprintf("category %q routed through finance", input.Category)
		}
	}

	levels, err := s.buildLevels(ctx, input.RequesterID, roles...)
	if err != nil {
		return nil, err
	}
	return s.finishRoute(&model.ApprovalRoute{Levels: levels, Reason: reason}, input)
}

func (s *RouteService) finishRoute(route *model.ApprovalRoute, input RouteInput) (*model.ApprovalRoute, error) {
	route.EstimatedDays = float64(len(route.Levels)) * daysPerLevel
	if input.IsUrgent {
		route.EstimatedDays /= 2
	}
	if err := route.Validate(); err != nil {
		s.log.Error().Err(err).
			Str("requester_id", input.RequesterID.String()).
			Float64("amount", input.Amount).
			Msg("resolver produced malformed route")
		return nil, fmt.Errorf("%w: %v", ErrNoEligibleApprover, err)
	}
	return route, nil
}

// autoApproveLimit starts from the configured threshold and lets active
// AUTO_APPROVAL policies raise it.
func (s *RouteService) autoApproveLimit(ctx context.Context) (float64, error) {
	limit := s.cfg.AutoLimit
	policies, err := s.policies.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	for _, policy := range policies {
		if policy.Type != model.PolicyAutoApproval {
			continue
		}
		rules, err := policy.ParseRules()
		if err != nil {
			s.log.Warn().Str("policy_id", policy.ID.String()).Msg("unparseable auto-approval policy, skipping")
			continue
		}
		if rules.MaxAmount != nil && *rules.MaxAmount > limit {
			limit = *rules.MaxAmount
		}
	}
	return limit, nil
}

func (s *RouteService) categoryNeedsFinance(ctx context.Context, category string, amount float64) (bool, error) {
	policies, err := s.policies.ListActive(ctx)
	if err != nil {
		return false, err
	}
	for _, policy := range policies {
		if policy.Type != model.PolicyApprovalRouting {
			continue
		}
		rules, err := policy.ParseRules()
		if err != nil {
			continue
		}
		if rules.Category != nil && *rules.Category != category {
			continue
		}
		if rules.MinAmount != nil && amount < *rules.MinAmount {
			continue
		}
		return true, nil
	}
	return false, nil
}

func (s *RouteService) buildLevels(ctx context.Context, requesterID uuid.UUID, roles ...model.Role) ([]model.ApprovalLevel, error) {
	requester, err := s.directory.GetUser(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	if requester == nil {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, requesterID)
	}

	levels := make([]model.ApprovalLevel, 0, len(roles))
	for i, role := range roles {
		approvers, err := s.eligibleApprovers(ctx, requester, role)
		if err != nil {
			return nil, err
		}
		if len(approvers) == 0 {
			s.log.Error().
				Str("requester_id", requesterID.String()).
				Str("role", string(role)).
				Int("level", i+1).
				Msg("no eligible approver for required level")
			return nil, fmt.Errorf("%w: role %s", ErrNoEligibleApprover, role)
		}
		levels = append(levels, model.ApprovalLevel{
			Level:     i + 1,
			Approvers: approvers,
			Required:  true,
		})
	}
	return levels, nil
}

// eligibleApprovers enumerates active holders of the role, department-scoped
// first for managers, always excluding the requester themselves.
func (s *RouteService) eligibleApprovers(ctx context.Context, requester *model.User, role model.Role) ([]model.User, error) {
	if role == model.RoleManager && requester.Department != nil {
		scoped, err := s.directory.FindUsersByRole(ctx, role, requester.Department)
		if err != nil {
			return nil, err
		}
		scoped = excludeUser(scoped, requester.ID)
		if len(scoped) > 0 {
			return scoped, nil
		}
		// No in-department manager: fall back to any manager.
	}

	users, err := s.directory.FindUsersByRole(ctx, role, nil)
	if err != nil {
		return nil, err
	}
	return excludeUser(users, requester.ID), nil
}

func excludeUser(users []model.User, id uuid.UUID) []model.User {
	out := users[:0:0]
	for _, u := range users {
		if u.ID != id && u.IsActive {
			out = append(out, u)
		}
	}
	return out
}

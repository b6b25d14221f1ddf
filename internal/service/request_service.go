package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nurpe/finops/internal/model"
)

// RequestService is the intake path: it validates a new spend request
// against policy, persists it, resolves its route, and seeds the approval
// chain.
type RequestService struct {
	requests  RequestStore
	policy    *PolicyService
	router    *RouteService
	approvals *ApprovalService
	log       zerolog.Logger
}

func NewRequestService(
	requests RequestStore,
	policy *PolicyService,
	router *RouteService,
	approvals *ApprovalService,
	log zerolog.Logger,
) *RequestService {
	return &RequestService{
		requests:  requests,
		policy:    policy,
		router:    router,
		approvals: approvals,
		log:       log,
	}
}

type CreateRequisitionInput struct {
	Actor        model.Principal
	Title        string
	Description  string
	Amount       float64
	Currency     model.Currency
	Category     string
	Type         model.RequisitionType
	Department   *string
	Branch       *string
	ExpectedDate *time.Time
	IsUrgent     bool
}

type CreateRequestResult struct {
	Requisition *model.Requisition
	Expense     *model.Expense
	Route       *model.ApprovalRoute
	Approvals   []model.Approval
	Warnings    []model.Violation
}

func (s *RequestService) CreateRequisition(ctx context.Context, input CreateRequisitionInput) (*CreateRequestResult, error) {
	if input.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if input.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if input.Currency == "" {
		input.Currency = model.CurrencyUSD
	}
	if input.Type == "" {
		input.Type = model.RequisitionStandard
	}
	// Expedited paths bypass or reshape the chain, so only an administrator
	// may open them.
	if input.Type.IsExpedited() && !input.Actor.IsSystemAdmin() {
		return nil, fmt.Errorf("%w: expedited requisitions require an administrator", ErrPermissionDenied)
	}

	check, err := s.policy.Check(ctx, PolicyCheckInput{
		UserID:      input.Actor.UserID,
		Title:       input.Title,
		Description: input.Description,
		Amount:      input.Amount,
		Category:    input.Category,
		Date:        time.Now(),
	})
	if err != nil {
		return nil, err
	}
	if !check.IsValid {
		return nil, fmt.Errorf("%w: %s", ErrPolicyViolation, BlockingMessage(check))
	}

	route, err := s.router.DetermineRoute(ctx, RouteInput{
		RequesterID: input.Actor.UserID,
		Amount:      input.Amount,
		Category:    input.Category,
		IsUrgent:    input.IsUrgent,
		RequestType: input.Type,
	})
	if err != nil {
		return nil, err
	}

	requisition := &model.Requisition{
		UserID:       input.Actor.UserID,
		Title:        input.Title,
		Description:  input.Description,
		Amount:       input.Amount,
		Currency:     input.Currency,
		Category:     input.Category,
		Type:         input.Type,
		Department:   input.Department,
		Branch:       input.Branch,
		ExpectedDate: input.ExpectedDate,
		Status:       model.RequestStatusPending,
	}
	if err := s.requests.CreateRequisition(ctx, requisition); err != nil {
		return nil, err
	}

	rows, err := s.approvals.CreateApprovals(ctx, model.KindRequisition, requisition.ID, route)
	if err != nil {
		return nil, err
	}
	if route.AutoApprove {
		requisition.Status = model.RequestStatusApproved
	}

	s.log.Info().
		Str("requisition_id", requisition.ID.String()).
		Float64("amount", requisition.Amount).
		Bool("auto_approved", route.AutoApprove).
		Msg("requisition created")
	return &CreateRequestResult{
		Requisition: requisition,
		Route:       route,
		Approvals:   rows,
		Warnings:    check.Warnings,
	}, nil
}

type CreateExpenseInput struct {
	Actor       model.Principal
	Title       string
	Amount      float64
	Currency    model.Currency
	Category    string
	Merchant    *string
	ExpenseDate time.Time
	HasReceipt  bool
	IsUrgent    bool
}

func (s *RequestService) CreateExpense(ctx context.Context, input CreateExpenseInput) (*CreateRequestResult, error) {
	if input.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if input.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if input.Currency == "" {
		input.Currency = model.CurrencyUSD
	}
	if input.ExpenseDate.IsZero() {
		input.ExpenseDate = time.Now()
	}

	var merchant string
	if input.Merchant != nil {
		merchant = *input.Merchant
	}
	check, err := s.policy.Check(ctx, PolicyCheckInput{
		UserID:     input.Actor.UserID,
		Title:      input.Title,
		Amount:     input.Amount,
		Category:   input.Category,
		Merchant:   merchant,
		Date:       input.ExpenseDate,
		HasReceipt: input.HasReceipt,
	})
	if err != nil {
		return nil, err
	}
	if !check.IsValid {
		return nil, fmt.Errorf("%w: %s", ErrPolicyViolation, BlockingMessage(check))
	}

	route, err := s.router.DetermineRoute(ctx, RouteInput{
		RequesterID: input.Actor.UserID,
		Amount:      input.Amount,
		Category:    input.Category,
		IsUrgent:    input.IsUrgent,
		RequestType: model.RequisitionStandard,
	})
	if err != nil {
		return nil, err
	}

	expense := &model.Expense{
		UserID:      input.Actor.UserID,
		Title:       input.Title,
		Amount:      input.Amount,
		Currency:    input.Currency,
		Category:    input.Category,
		Merchant:    input.Merchant,
		ExpenseDate: input.ExpenseDate,
		HasReceipt:  input.HasReceipt,
		Status:      model.RequestStatusPending,
	}
	if err := s.requests.CreateExpense(ctx, expense); err != nil {
		return nil, err
	}

	rows, err := s.approvals.CreateApprovals(ctx, model.KindExpense, expense.ID, route)
	if err != nil {
		return nil, err
	}
	if route.AutoApprove {
		expense.Status = model.RequestStatusApproved
	}

	s.log.Info().
		Str("expense_id", expense.ID.String()).
		Float64("amount", expense.Amount).
		Bool("auto_approved", route.AutoApprove).
		Msg("expense created")
	return &CreateRequestResult{
		Expense:   expense,
		Route:     route,
		Approvals: rows,
		Warnings:  check.Warnings,
	}, nil
}

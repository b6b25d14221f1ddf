package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nurpe/finops/internal/http/middleware"
	"github.com/nurpe/finops/internal/model"
	"github.com/nurpe/finops/internal/service"
)

type Handler struct {
	requests  *service.RequestService
	approvals *service.ApprovalService
	payments  *service.PaymentService
	roles     *service.RoleService
	log       zerolog.Logger
}

func NewHandler(
	requests *service.RequestService,
	approvals *service.ApprovalService,
	payments *service.PaymentService,
	roles *service.RoleService,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		requests:  requests,
		approvals: approvals,
		payments:  payments,
		roles:     roles,
		log:       log,
	}
}

func (h *Handler) Register(router *gin.Engine, authMiddleware gin.HandlerFunc) {
	protected := router.Group("/")
	protected.Use(authMiddleware)

	protected.POST("/requisitions", h.createRequisition)
	protected.POST("/expenses", h.createExpense)

	protected.GET("/approvals/pending", h.pendingApprovals)
	protected.GET("/approvals/stats", h.approvalStats)
	protected.POST("/approvals/escalate", h.escalateApprovals)
	protected.POST("/approvals/:id", h.decideApproval)
	protected.POST("/approvals/:id/delegate", h.delegateApproval)

	protected.GET("/payments", h.listPayments)
	protected.GET("/payments/payable", h.payablePool)
	protected.POST("/payments", h.createPayment)
	protected.POST("/payments/action", h.paymentAction)
	protected.GET("/payments/register/export", h.exportRegister)
	protected.GET("/payments/:id/voucher", h.paymentVoucher)

	protected.POST("/roles/assign", h.assignRole)
}

type createRequisitionRequest struct {
	Title        string  `json:"title" binding:"required"`
	Description  string  `json:"description"`
	Amount       float64 `json:"amount" binding:"required"`
	Currency     string  `json:"currency"`
	Category     string  `json:"category" binding:"required"`
	Type         string  `json:"type"`
	Department   *string `json:"department"`
	Branch       *string `json:"branch"`
	ExpectedDate *string `json:"expected_date"`
	IsUrgent     bool    `json:"is_urgent"`
}

func (h *Handler) createRequisition(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	var req createRequisitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	currency, ok := parseOptionalCurrency(req.Currency)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid currency"})
		return
	}

	reqType := model.RequisitionStandard
	if raw := strings.TrimSpace(req.Type); raw != "" {
		switch model.RequisitionType(raw) {
		case model.RequisitionStandard, model.RequisitionExpedited, model.RequisitionExpeditedStrict:
			reqType = model.RequisitionType(raw)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid type"})
			return
		}
	}

	var expectedDate *time.Time
	if req.ExpectedDate != nil && strings.TrimSpace(*req.ExpectedDate) != "" {
		parsed, err := parseDate(*req.ExpectedDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid expected_date"})
			return
		}
		expectedDate = &parsed
	}

	result, err := h.requests.CreateRequisition(c.Request.Context(), service.CreateRequisitionInput{
		Actor:        principal,
		Title:        req.Title,
		Description:  req.Description,
		Amount:       req.Amount,
		Currency:     currency,
		Category:     req.Category,
		Type:         reqType,
		Department:   req.Department,
		Branch:       req.Branch,
		ExpectedDate: expectedDate,
		IsUrgent:     req.IsUrgent,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"requisition": result.Requisition,
		"route": gin.H{
			"auto_approve":   result.Route.AutoApprove,
			"reason":         result.Route.Reason,
			"estimated_days": result.Route.EstimatedDays,
			"levels":         len(result.Route.Levels),
		},
		"approvals": result.Approvals,
		"warnings":  warningMessages(result.Warnings),
	})
}

type createExpenseRequest struct {
	Title       string  `json:"title" binding:"required"`
	Amount      float64 `json:"amount" binding:"required"`
	Currency    string  `json:"currency"`
	Category    string  `json:"category" binding:"required"`
	Merchant    *string `json:"merchant"`
	ExpenseDate *string `json:"expense_date"`
	HasReceipt  bool    `json:"has_receipt"`
	IsUrgent    bool    `json:"is_urgent"`
}

func (h *Handler) createExpense(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	var req createExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	currency, ok := parseOptionalCurrency(req.Currency)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid currency"})
		return
	}

	var expenseDate time.Time
	if req.ExpenseDate != nil && strings.TrimSpace(*req.ExpenseDate) != "" {
		parsed, err := parseDate(*req.ExpenseDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid expense_date"})
			return
		}
		expenseDate = parsed
	}

	result, err := h.requests.CreateExpense(c.Request.Context(), service.CreateExpenseInput{
		Actor:       principal,
		Title:       req.Title,
		Amount:      req.Amount,
		Currency:    currency,
		Category:    req.Category,
		Merchant:    req.Merchant,
		ExpenseDate: expenseDate,
		HasReceipt:  req.HasReceipt,
		IsUrgent:    req.IsUrgent,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"expense": result.Expense,
		"route": gin.H{
			"auto_approve":   result.Route.AutoApprove,
			"reason":         result.Route.Reason,
			"estimated_days": result.Route.EstimatedDays,
			"levels":         len(result.Route.Levels),
		},
		"approvals": result.Approvals,
		"warnings":  warningMessages(result.Warnings),
	})
}

type decideApprovalRequest struct {
	Decision string  `json:"decision" binding:"required"`
	Comments *string `json:"comments"`
}

func (h *Handler) decideApproval(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	approvalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid approval id"})
		return
	}

	var req decideApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.approvals.Decide(c.Request.Context(), service.DecideInput{
		ApprovalID: approvalID,
		Actor:      principal,
		Decision:   model.ApprovalStatus(strings.ToUpper(strings.TrimSpace(req.Decision))),
		Comments:   req.Comments,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"subject_kind":   result.SubjectKind,
		"subject_id":     result.SubjectID,
		"subject_status": result.SubjectStatus,
		"message":        result.Message,
	})
}

type delegateApprovalRequest struct {
	To     string  `json:"to" binding:"required"`
	Reason *string `json:"reason"`
}

func (h *Handler) delegateApproval(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	approvalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid approval id"})
		return
	}

	var req delegateApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	toID, err := uuid.Parse(strings.TrimSpace(req.To))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid delegate id"})
		return
	}

	successor, err := h.approvals.Delegate(c.Request.Context(), service.DelegateInput{
		ApprovalID:   approvalID,
		Actor:        principal,
		ToApproverID: toID,
		Reason:       req.Reason,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"approval": successor})
}

type escalateRequest struct {
	DaysOverdue int `json:"days_overdue"`
}

func (h *Handler) escalateApprovals(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	// Body is optional; an absent or empty body falls back to the
	// configured overdue window.
	var req escalateRequest
	_ = c.ShouldBindJSON(&req)

	result, err := h.approvals.EscalateOverdue(c.Request.Context(), principal, req.DaysOverdue)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":     result.Total,
		"escalated": result.Escalated,
		"skipped":   result.Skipped,
	})
}

func (h *Handler) pendingApprovals(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	approvals, err := h.approvals.PendingForApprover(c.Request.Context(), principal.UserID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"approvals": approvals})
}

func (h *Handler) approvalStats(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	days := 0
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid days"})
			return
		}
		days = parsed
	}

	stats, err := h.approvals.Stats(c.Request.Context(), principal.UserID, days)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) listPayments(c *gin.Context) {
	if _, ok := middleware.MustPrincipal(c); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	var status *model.PaymentStatus
	if raw := c.Query("status"); raw != "" {
		parsed := model.PaymentStatus(strings.ToUpper(strings.TrimSpace(raw)))
		switch parsed {
		case model.PaymentStatusPendingAuthorization, model.PaymentStatusAuthorized,
			model.PaymentStatusPaid, model.PaymentStatusRejected:
			status = &parsed
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
	}

	batches, err := h.payments.ListBatches(c.Request.Context(), status)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": batches})
}

func (h *Handler) payablePool(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	items, err := h.payments.PayablePool(c.Request.Context(), principal)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

type createPaymentRequest struct {
	ExpenseIDs     []string `json:"expense_ids"`
	InvoiceIDs     []string `json:"invoice_ids"`
	RequisitionIDs []string `json:"requisition_ids"`
	BudgetIDs      []string `json:"budget_ids"`
	Method         string   `json:"method"`
	Notes          *string  `json:"notes"`
}

func (h *Handler) createPayment(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	selection, err := parseSelection(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var method model.PaymentMethod
	if raw := strings.TrimSpace(req.Method); raw != "" {
		parsed, ok := model.ParsePaymentMethod(strings.ToUpper(raw))
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid method"})
			return
		}
		method = parsed
	}

	batch, err := h.payments.CreateBatch(c.Request.Context(), service.CreateBatchInput{
		Maker:     principal,
		Selection: selection,
		Method:    method,
		Notes:     req.Notes,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"payment": batch})
}

type paymentActionRequest struct {
	PaymentID string  `json:"payment_id" binding:"required"`
	Action    string  `json:"action" binding:"required"`
	Method    *string `json:"method"`
	ProofURL  *string `json:"proof_url"`
}

func (h *Handler) paymentAction(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	var req paymentActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	paymentID, err := uuid.Parse(req.PaymentID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return
	}

	action, ok := model.ParsePaymentAction(strings.ToUpper(strings.TrimSpace(req.Action)))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid action"})
		return
	}

	var method *model.PaymentMethod
	if req.Method != nil && strings.TrimSpace(*req.Method) != "" {
		parsed, ok := model.ParsePaymentMethod(strings.ToUpper(strings.TrimSpace(*req.Method)))
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid method"})
			return
		}
		method = &parsed
	}

	batch, err := h.payments.Act(c.Request.Context(), service.PaymentActionInput{
		PaymentID: paymentID,
		Action:    action,
		Actor:     principal,
		Method:    method,
		ProofURL:  req.ProofURL,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": batch})
}

func (h *Handler) exportRegister(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	from, err := parseDate(c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
		return
	}
	to, err := parseDate(c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
		return
	}

	result, err := h.payments.ExportRegister(c.Request.Context(), principal, from, to)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=\""+result.FileName+"\"")
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", result.Content)
}

func (h *Handler) paymentVoucher(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	paymentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return
	}

	result, err := h.payments.Voucher(c.Request.Context(), principal, paymentID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=\""+result.FileName+"\"")
	c.Data(http.StatusOK, "application/pdf", result.Content)
}

type assignRoleRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Role   string `json:"role" binding:"required"`
}

func (h *Handler) assignRole(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	var req assignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, err := uuid.Parse(strings.TrimSpace(req.UserID))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}

	role, ok := model.ParseRole(strings.ToUpper(strings.TrimSpace(req.Role)))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
		return
	}

	user, err := h.roles.AssignRole(c.Request.Context(), principal, userID, role)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrPolicyViolation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrAlreadyDecided),
		errors.Is(err, service.ErrChainTerminated),
		errors.Is(err, service.ErrSelfAuthorization),
		errors.Is(err, service.ErrInvalidState),
		errors.Is(err, service.ErrAlreadyFinalized),
		errors.Is(err, service.ErrItemNotPayable),
		errors.Is(err, service.ErrAdminExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.log.Error().Err(err).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func parseSelection(req createPaymentRequest) (model.ItemSelection, error) {
	var selection model.ItemSelection
	var err error
	if selection.ExpenseIDs, err = parseIDs(req.ExpenseIDs); err != nil {
		return selection, err
	}
	if selection.InvoiceIDs, err = parseIDs(req.InvoiceIDs); err != nil {
		return selection, err
	}
	if selection.RequisitionIDs, err = parseIDs(req.RequisitionIDs); err != nil {
		return selection, err
	}
	if selection.BudgetIDs, err = parseIDs(req.BudgetIDs); err != nil {
		return selection, err
	}
	return selection, nil
}

func parseIDs(raw []string) ([]uuid.UUID, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(raw))
	for _, value := range raw {
		id, err := uuid.Parse(strings.TrimSpace(value))
		if err != nil {
			return nil, errors.New("invalid id: " + value)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseOptionalCurrency(raw string) (model.Currency, bool) {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	if raw == "" {
		return "", true
	}
	return model.ParseCurrency(raw)
}

func warningMessages(warnings []model.Violation) []string {
	messages := make([]string, 0, len(warnings))
	for _, w := range warnings {
		messages = append(messages, w.Message)
	}
	return messages
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, service.ErrInvalidInput
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02",
		"2006-01-02T15:04:05",
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, service.ErrInvalidInput
}

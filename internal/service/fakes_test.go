package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nurpe/finops/internal/model"
)

type fakeDirectory struct {
	users map[uuid.UUID]model.User
}

func newFakeDirectory(users ...model.User) *fakeDirectory {
	d := &fakeDirectory{users: make(map[uuid.UUID]model.User)}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (f *fakeDirectory) GetUser(_ context.Context, id uuid.UUID) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (f *fakeDirectory) FindUsersByRole(_ context.Context, role model.Role, department *string) ([]model.User, error) {
	var out []model.User
	for _, u := range f.users {
		if u.Role != role || !u.IsActive {
			continue
		}
		if department != nil {
			if u.Department == nil || *u.Department != *department {
				continue
			}
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type fakePolicyStore struct {
	policies []model.Policy
}

func (f *fakePolicyStore) ListActive(_ context.Context) ([]model.Policy, error) {
	var out []model.Policy
	for _, p := range f.policies {
		if p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func activePolicy(policyType model.PolicyType, rules string) model.Policy {
	return model.Policy{
		ID:       uuid.New(),
		Name:     string(policyType),
		Type:     policyType,
		Rules:    rules,
		IsActive: true,
	}
}

type subjectRef struct {
	kind model.RequestKind
	id   uuid.UUID
}

type fakeApprovalStore struct {
	rows     map[uuid.UUID]*model.Approval
	order    []uuid.UUID
	subjects map[subjectRef]*SubjectSummary
	statuses map[subjectRef]model.RequestStatus
}

func newFakeApprovalStore() *fakeApprovalStore {
	return &fakeApprovalStore{
		rows:     make(map[uuid.UUID]*model.Approval),
		subjects: make(map[subjectRef]*SubjectSummary),
		statuses: make(map[subjectRef]model.RequestStatus),
	}
}

func (f *fakeApprovalStore) addSubject(kind model.RequestKind, id uuid.UUID, status model.RequestStatus, amount float64) {
	ref := subjectRef{kind, id}
	f.subjects[ref] = &SubjectSummary{Status: status, Amount: amount}
	f.statuses[ref] = status
}

func (f *fakeApprovalStore) InTx(_ context.Context, fn func(ApprovalStore) error) error {
	return fn(f)
}

func (f *fakeApprovalStore) Get(_ context.Context, id uuid.UUID) (*model.Approval, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	copied := *row
	return &copied, nil
}

func (f *fakeApprovalStore) Create(_ context.Context, rows []model.Approval) ([]model.Approval, error) {
	saved := make([]model.Approval, 0, len(rows))
	for _, row := range rows {
		row.ID = uuid.New()
		row.CreatedAt = time.Now()
		stored := row
		f.rows[row.ID] = &stored
		f.order = append(f.order, row.ID)
		saved = append(saved, row)
	}
	return saved, nil
}

func (f *fakeApprovalStore) ListBySubject(_ context.Context, kind model.RequestKind, subjectID uuid.UUID) ([]model.Approval, error) {
	var out []model.Approval
	for _, id := range f.order {
		row := f.rows[id]
		if row.SubjectKind == kind && row.SubjectID == subjectID {
			out = append(out, *row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out, nil
}

func (f *fakeApprovalStore) ListPendingByApprover(_ context.Context, approverID uuid.UUID) ([]model.Approval, error) {
	var out []model.Approval
	for _, id := range f.order {
		row := f.rows[id]
		if row.ApproverID == approverID && row.Status == model.ApprovalStatusPending {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (f *fakeApprovalStore) ListByApproverSince(_ context.Context, approverID uuid.UUID, since time.Time) ([]model.Approval, error) {
	var out []model.Approval
	for _, id := range f.order {
		row := f.rows[id]
		if row.ApproverID == approverID && !row.CreatedAt.Before(since) {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (f *fakeApprovalStore) ListOverduePending(_ context.Context, before time.Time) ([]model.Approval, error) {
	var out []model.Approval
	for _, id := range f.order {
		row := f.rows[id]
		if row.Status == model.ApprovalStatusPending && row.CreatedAt.Before(before) {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (f *fakeApprovalStore) MarkDecided(_ context.Context, id uuid.UUID, status model.ApprovalStatus, comments *string) (bool, error) {
	row, ok := f.rows[id]
	if !ok || row.Status != model.ApprovalStatusPending {
		return false, nil
	}
	row.Status = status
	if comments != nil {
		row.Comments = comments
	}
	now := time.Now()
	row.DecidedAt = &now
	return true, nil
}

func (f *fakeApprovalStore) SkipPending(_ context.Context, kind model.RequestKind, subjectID uuid.UUID) error {
	now := time.Now()
	for _, row := range f.rows {
		if row.SubjectKind == kind && row.SubjectID == subjectID && row.Status == model.ApprovalStatusPending {
			row.Status = model.ApprovalStatusSkipped
			row.DecidedAt = &now
		}
	}
	return nil
}

func (f *fakeApprovalStore) Reassign(_ context.Context, id uuid.UUID, toApproverID uuid.UUID) (bool, error) {
	row, ok := f.rows[id]
	if !ok || row.Status != model.ApprovalStatusPending {
		return false, nil
	}
	row.ApproverID = toApproverID
	return true, nil
}

func (f *fakeApprovalStore) GetSubject(_ context.Context, kind model.RequestKind, subjectID uuid.UUID) (*SubjectSummary, error) {
	summary, ok := f.subjects[subjectRef{kind, subjectID}]
	if !ok {
		return nil, nil
	}
	copied := *summary
	return &copied, nil
}

func (f *fakeApprovalStore) SetSubjectStatus(_ context.Context, kind model.RequestKind, subjectID uuid.UUID, status model.RequestStatus) error {
	ref := subjectRef{kind, subjectID}
	f.statuses[ref] = status
	if summary, ok := f.subjects[ref]; ok {
		summary.Status = status
	} else {
		f.subjects[ref] = &SubjectSummary{Status: status}
	}
	return nil
}

type fakePaymentStore struct {
	batches map[uuid.UUID]*model.PaymentBatch
	items   map[subjectRef]*model.PayableItem
	order   []uuid.UUID

	// beforeClaim runs once before the first ClaimItems call, so tests can
	// interleave a competing writer between the read and the claim.
	beforeClaim func()
	markPaidErr error
}

func newFakePaymentStore() *fakePaymentStore {
	return &fakePaymentStore{
		batches: make(map[uuid.UUID]*model.PaymentBatch),
		items:   make(map[subjectRef]*model.PayableItem),
	}
}

func (f *fakePaymentStore) addItem(item model.PayableItem) {
	stored := item
	f.items[subjectRef{item.Kind, item.ID}] = &stored
}

// InTx snapshots state up front and restores it when fn fails, mirroring a
// rolled-back transaction.
func (f *fakePaymentStore) InTx(_ context.Context, fn func(PaymentStore) error) error {
	batches := make(map[uuid.UUID]*model.PaymentBatch, len(f.batches))
	for id, batch := range f.batches {
		copied := *batch
		batches[id] = &copied
	}
	items := make(map[subjectRef]*model.PayableItem, len(f.items))
	for ref, item := range f.items {
		copied := *item
		items[ref] = &copied
	}
	order := append([]uuid.UUID(nil), f.order...)

	if err := fn(f); err != nil {
		f.batches = batches
		f.items = items
		f.order = order
		return err
	}
	return nil
}

func (f *fakePaymentStore) CreateBatch(_ context.Context, batch *model.PaymentBatch) error {
	batch.ID = uuid.New()
	batch.CreatedAt = time.Now()
	batch.UpdatedAt = batch.CreatedAt
	stored := *batch
	f.batches[batch.ID] = &stored
	f.order = append(f.order, batch.ID)
	return nil
}

func (f *fakePaymentStore) GetBatch(_ context.Context, id uuid.UUID) (*model.PaymentBatch, error) {
	batch, ok := f.batches[id]
	if !ok {
		return nil, nil
	}
	copied := *batch
	return &copied, nil
}

func (f *fakePaymentStore) ListBatches(_ context.Context, status *model.PaymentStatus) ([]model.PaymentBatch, error) {
	var out []model.PaymentBatch
	for _, id := range f.order {
		batch := f.batches[id]
		if status != nil && batch.Status != *status {
			continue
		}
		out = append(out, *batch)
	}
	return out, nil
}

func (f *fakePaymentStore) ListBatchesForPeriod(_ context.Context, from, to time.Time) ([]model.PaymentBatch, error) {
	var out []model.PaymentBatch
	for _, id := range f.order {
		batch := f.batches[id]
		if batch.CreatedAt.Before(from) || !batch.CreatedAt.Before(to) {
			continue
		}
		out = append(out, *batch)
	}
	return out, nil
}

func (f *fakePaymentStore) GetItems(_ context.Context, selection model.ItemSelection) ([]model.PayableItem, error) {
	var out []model.PayableItem
	for kind, ids := range selection.PerKind() {
		for _, id := range ids {
			if item, ok := f.items[subjectRef{kind, id}]; ok {
				out = append(out, *item)
			}
		}
	}
	return out, nil
}

func (f *fakePaymentStore) ListPayableItems(_ context.Context) ([]model.PayableItem, error) {
	var out []model.PayableItem
	for _, item := range f.items {
		if item.Status == model.RequestStatusApproved && item.PaymentID == nil {
			out = append(out, *item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.Compare(out[i].ID.String(), out[j].ID.String()) < 0
	})
	return out, nil
}

func (f *fakePaymentStore) ListItemsForBatch(_ context.Context, paymentID uuid.UUID) ([]model.PayableItem, error) {
	var out []model.PayableItem
	for _, item := range f.items {
		if item.PaymentID != nil && *item.PaymentID == paymentID {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (f *fakePaymentStore) ClaimItems(_ context.Context, kind model.RequestKind, ids []uuid.UUID, paymentID uuid.UUID) (int64, error) {
	if f.beforeClaim != nil {
		hook := f.beforeClaim
		f.beforeClaim = nil
		hook()
	}
	var claimed int64
	for _, id := range ids {
		item, ok := f.items[subjectRef{kind, id}]
		if !ok || item.Status != model.RequestStatusApproved || item.PaymentID != nil {
			continue
		}
		pid := paymentID
		item.PaymentID = &pid
		claimed++
	}
	return claimed, nil
}

func (f *fakePaymentStore) ReleaseItems(_ context.Context, paymentID uuid.UUID) error {
	for _, item := range f.items {
		if item.PaymentID != nil && *item.PaymentID == paymentID {
			item.PaymentID = nil
		}
	}
	return nil
}

func (f *fakePaymentStore) MarkItemsPaid(_ context.Context, paymentID uuid.UUID) error {
	if f.markPaidErr != nil {
		return f.markPaidErr
	}
	for _, item := range f.items {
		if item.PaymentID != nil && *item.PaymentID == paymentID {
			item.Status = item.Kind.PaidStatus()
		}
	}
	return nil
}

func (f *fakePaymentStore) Transition(_ context.Context, update BatchUpdate) (bool, error) {
	batch, ok := f.batches[update.ID]
	if !ok || batch.Status != update.From {
		return false, nil
	}
	batch.Status = update.To
	if update.CheckerID != nil {
		batch.CheckerID = update.CheckerID
	}
	if update.Method != nil {
		batch.Method = *update.Method
	}
	if update.ProofURL != nil {
		batch.ProofURL = update.ProofURL
	}
	if update.AuthorizedAt != nil {
		batch.AuthorizedAt = update.AuthorizedAt
	}
	if update.ProcessedAt != nil {
		batch.ProcessedAt = update.ProcessedAt
	}
	batch.UpdatedAt = time.Now()
	return true, nil
}

type fakeRequestStore struct {
	requisitions []*model.Requisition
	expenses     []*model.Expense
}

func (f *fakeRequestStore) CreateRequisition(_ context.Context, r *model.Requisition) error {
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	f.requisitions = append(f.requisitions, r)
	return nil
}

func (f *fakeRequestStore) CreateExpense(_ context.Context, e *model.Expense) error {
	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	f.expenses = append(f.expenses, e)
	return nil
}

type fakeUserStore struct {
	*fakeDirectory
}

func (f *fakeUserStore) InTx(_ context.Context, fn func(UserStore) error) error {
	return fn(f)
}

func (f *fakeUserStore) CountActiveAdmins(_ context.Context, excludeID uuid.UUID) (int64, error) {
	var count int64
	for _, u := range f.users {
		if u.Role == model.RoleSystemAdmin && u.IsActive && u.ID != excludeID {
			count++
		}
	}
	return count, nil
}

func (f *fakeUserStore) UpdateRole(_ context.Context, userID uuid.UUID, role model.Role) (bool, error) {
	u, ok := f.users[userID]
	if !ok || !u.IsActive {
		return false, nil
	}
	u.Role = role
	f.users[userID] = u
	return true, nil
}

type fakeLedger struct {
	events []PaymentEvent
	err    error
}

func (f *fakeLedger) PostPaymentEvent(_ context.Context, event PaymentEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

type fakeRegister struct{}

func (fakeRegister) Generate(model.PaymentRegister) ([]byte, error) { return []byte("xlsx"), nil }

type fakeVoucher struct{}

func (fakeVoucher) Generate(model.PaymentVoucher) ([]byte, error) { return []byte("pdf"), nil }

package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nurpe/finops/internal/model"
)

func newTestApprovalService(store *fakeApprovalStore, directory *fakeDirectory) *ApprovalService {
	return NewApprovalService(store, directory, testApprovalsConfig(), zerolog.Nop())
}

func routeFor(levels ...[]model.User) *model.ApprovalRoute {
	route := &model.ApprovalRoute{}
	for i, approvers := range levels {
		route.Levels = append(route.Levels, model.ApprovalLevel{
			Level:     i + 1,
			Approvers: approvers,
			Required:  true,
		})
	}
	return route
}

func TestCreateApprovalsMaterializesAllRows(t *testing.T) {
	store := newFakeApprovalStore()
	a := testUser("alice", model.RoleManager, nil)
	b := testUser("bob", model.RoleManager, nil)
	c := testUser("carol", model.RoleFinanceApprover, nil)
	svc := newTestApprovalService(store, newFakeDirectory(a, b, c))

	subjectID := uuid.New()
	store.addSubject(model.KindExpense, subjectID, model.RequestStatusPending, 300)

	rows, err := svc.CreateApprovals(context.Background(), model.KindExpense, subjectID,
		routeFor([]model.User{a, b}, []model.User{c}))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Equal(t, model.ApprovalStatusPending, row.Status)
		assert.Equal(t, subjectID, row.SubjectID)
	}
	assert.Equal(t, 1, rows[0].Level)
	assert.Equal(t, 2, rows[2].Level)
}

func TestCreateApprovalsAutoApproveFlipsSubject(t *testing.T) {
	store := newFakeApprovalStore()
	svc := newTestApprovalService(store, newFakeDirectory())

	subjectID := uuid.New()
	store.addSubject(model.KindExpense, subjectID, model.RequestStatusPending, 40)

	rows, err := svc.CreateApprovals(context.Background(), model.KindExpense, subjectID,
		&model.ApprovalRoute{AutoApprove: true})
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, model.RequestStatusApproved, store.statuses[subjectRef{model.KindExpense, subjectID}])
}

func TestCreateApprovalsRejectsMalformedRoute(t *testing.T) {
	store := newFakeApprovalStore()
	svc := newTestApprovalService(store, newFakeDirectory())

	_, err := svc.CreateApprovals(context.Background(), model.KindExpense, uuid.New(),
		&model.ApprovalRoute{Levels: []model.ApprovalLevel{{Level: 2, Approvers: []model.User{testUser("a", model.RoleManager, nil)}}}})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

// Scenario: manager approves at level 1, finance at level 2, subject flips to
// APPROVED only after the final level resolves.
func TestDecideAdvancesThroughLevels(t *testing.T) {
	store := newFakeApprovalStore()
	manager := testUser("mark", model.RoleManager, nil)
	finance := testUser("fiona", model.RoleFinanceApprover, nil)
	svc := newTestApprovalService(store, newFakeDirectory(manager, finance))

	subjectID := uuid.New()
	store.addSubject(model.KindExpense, subjectID, model.RequestStatusPending, 15000)
	rows, err := svc.CreateApprovals(context.Background(), model.KindExpense, subjectID,
		routeFor([]model.User{manager}, []model.User{finance}))
	require.NoError(t, err)

	result, err := svc.Decide(context.Background(), DecideInput{
		ApprovalID: rows[0].ID,
		Actor:      model.Principal{UserID: manager.ID, Role: manager.Role},
		Decision:   model.ApprovalStatusApproved,
	})
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusPending, result.SubjectStatus)

	result, err = svc.Decide(context.Background(), DecideInput{
		ApprovalID: rows[1].ID,
		Actor:      model.Principal{UserID: finance.ID, Role: finance.Role},
		Decision:   model.ApprovalStatusApproved,
	})
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusApproved, result.SubjectStatus)
}

// P8: one rejection terminates the chain; later attempts on moot rows fail
// with a distinct terminal-chain error.
func TestDecideRejectShortCircuitsChain(t *testing.T) {
	store := newFakeApprovalStore()
	a := testUser("alice", model.RoleManager, nil)
	b := testUser("bob", model.RoleManager, nil)
	c := testUser("carol", model.RoleFinanceApprover, nil)
	svc := newTestApprovalService(store, newFakeDirectory(a, b, c))

	subjectID := uuid.New()
	store.addSubject(model.KindExpense, subjectID, model.RequestStatusPending, 15000)
	rows, err := svc.CreateApprovals(context.Background(), model.KindExpense, subjectID,
		routeFor([]model.User{a, b}, []model.User{c}))
	require.NoError(t, err)

	result, err := svc.Decide(context.Background(), DecideInput{
		ApprovalID: rows[0].ID,
		Actor:      model.Principal{UserID: a.ID, Role: a.Role},
		Decision:   model.ApprovalStatusRejected,
	})
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusRejected, result.SubjectStatus)

	_, err = svc.Decide(context.Background(), DecideInput{
		ApprovalID: rows[1].ID,
		Actor:      model.Principal{UserID: b.ID, Role: b.Role},
		Decision:   model.ApprovalStatusApproved,
	})
	assert.ErrorIs(t, err, ErrChainTerminated)

	_, err = svc.Decide(context.Background(), DecideInput{
		ApprovalID: rows[2].ID,
		Actor:      model.Principal{UserID: c.ID, Role: c.Role},
		Decision:   model.ApprovalStatusApproved,
	})
	assert.ErrorIs(t, err, ErrChainTerminated)
}

func TestDecideTwiceOnSameRow(t *testing.T) {
	store := newFakeApprovalStore()
	manager := testUser("mark", model.RoleManager, nil)
	finance := testUser("fiona", model.RoleFinanceApprover, nil)
	svc := newTestApprovalService(store, newFakeDirectory(manager, finance))

	subjectID := uuid.New()
	store.addSubject(model.KindExpense, subjectID, model.RequestStatusPending, 15000)
	rows, err := svc.CreateApprovals(context.Background(), model.KindExpense, subjectID,
		routeFor([]model.User{manager}, []model.User{finance}))
	require.NoError(t, err)

	actor := model.Principal{UserID: manager.ID, Role: manager.Role}
	_, err = svc.Decide(context.Background(), DecideInput{
		ApprovalID: rows[0].ID, Actor: actor, Decision: model.ApprovalStatusApproved,
	})
	require.NoError(t, err)

	// Subject is still PENDING, so the re-decided row reports AlreadyDecided
	// rather than a terminated chain.
	_, err = svc.Decide(context.Background(), DecideInput{
		ApprovalID: rows[0].ID, Actor: actor, Decision: model.ApprovalStatusApproved,
	})
	assert.ErrorIs(t, err, ErrAlreadyDecided)
}

func TestDecideDeniesUnassignedActor(t *testing.T) {
	store := newFakeApprovalStore()
	manager := testUser("mark", model.RoleManager, nil)
	stranger := testUser("sam", model.RoleManager, nil)
	svc := newTestApprovalService(store, newFakeDirectory(manager, stranger))

	subjectID := uuid.New()
	store.addSubject(model.KindExpense, subjectID, model.RequestStatusPending, 300)
	rows, err := svc.CreateApprovals(context.Background(), model.KindExpense, subjectID,
		routeFor([]model.User{manager}))
	require.NoError(t, err)

	_, err = svc.Decide(context.Background(), DecideInput{
		ApprovalID: rows[0].ID,
		Actor:      model.Principal{UserID: stranger.ID, Role: stranger.Role},
		Decision:   model.ApprovalStatusApproved,
	})
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestDecideAdminOverrideSkipsRemaining(t *testing.T) {
	store := newFakeApprovalStore()
	manager := testUser("mark", model.RoleManager, nil)
	finance := testUser("fiona", model.RoleFinanceApprover, nil)
	admin := testUser("adam", model.RoleSystemAdmin, nil)
	svc := newTestApprovalService(store, newFakeDirectory(manager, finance, admin))

	subjectID := uuid.New()
	store.addSubject(model.KindExpense, subjectID, model.RequestStatusPending, 15000)
	rows, err := svc.CreateApprovals(context.Background(), model.KindExpense, subjectID,
		routeFor([]model.User{manager}, []model.User{finance}))
	require.NoError(t, err)

	result, err := svc.Decide(context.Background(), DecideInput{
		ApprovalID: rows[0].ID,
		Actor:      model.Principal{UserID: admin.ID, Role: admin.Role},
		Decision:   model.ApprovalStatusApproved,
	})
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusApproved, result.SubjectStatus)

	remaining, err := store.ListBySubject(context.Background(), model.KindExpense, subjectID)
	require.NoError(t, err)
	assert.Equal(t, model.ApprovalStatusApproved, remaining[0].Status)
	assert.Equal(t, model.ApprovalStatusSkipped, remaining[1].Status)
}

func TestDecideAdminOwnRowIsNotOverride(t *testing.T) {
	store := newFakeApprovalStore()
	manager := testUser("mark", model.RoleManager, nil)
	admin := testUser("adam", model.RoleSystemAdmin, nil)
	svc := newTestApprovalService(store, newFakeDirectory(manager, admin))

	subjectID := uuid.New()
	store.addSubject(model.KindExpense, subjectID, model.RequestStatusPending, 15000)
	rows, err := svc.CreateApprovals(context.Background(), model.KindExpense, subjectID,
		routeFor([]model.User{manager}, []model.User{admin}))
	require.NoError(t, err)

	// Admin deciding their own assigned slot behaves like any approver: the
	// manager's level 1 row stays pending and so does the subject.
	result, err := svc.Decide(context.Background(), DecideInput{
		ApprovalID: rows[1].ID,
		Actor:      model.Principal{UserID: admin.ID, Role: admin.Role},
		Decision:   model.ApprovalStatusApproved,
	})
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusPending, result.SubjectStatus)

	remaining, err := store.ListBySubject(context.Background(), model.KindExpense, subjectID)
	require.NoError(t, err)
	assert.Equal(t, model.ApprovalStatusPending, remaining[0].Status)
}

func TestDecideEnforcesRequisitionApprovalLimit(t *testing.T) {
	store := newFakeApprovalStore()
	limit := 500.0
	capped := testUser("mark", model.RoleManager, nil)
	capped.HasCustomRole = true
	capped.MaxApprovalLimit = &limit
	svc := newTestApprovalService(store, newFakeDirectory(capped))

	subjectID := uuid.New()
	store.addSubject(model.KindRequisition, subjectID, model.RequestStatusPending, 900)
	rows, err := svc.CreateApprovals(context.Background(), model.KindRequisition, subjectID,
		routeFor([]model.User{capped}))
	require.NoError(t, err)

	_, err = svc.Decide(context.Background(), DecideInput{
		ApprovalID: rows[0].ID,
		Actor:      model.Principal{UserID: capped.ID, Role: capped.Role},
		Decision:   model.ApprovalStatusApproved,
	})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	// Rejection is always allowed regardless of limit.
	result, err := svc.Decide(context.Background(), DecideInput{
		ApprovalID: rows[0].ID,
		Actor:      model.Principal{UserID: capped.ID, Role: capped.Role},
		Decision:   model.ApprovalStatusRejected,
	})
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusRejected, result.SubjectStatus)
}

func TestDelegateCreatesSuccessorRow(t *testing.T) {
	store := newFakeApprovalStore()
	manager := testUser("mark", model.RoleManager, nil)
	delegate := testUser("nina", model.RoleManager, nil)
	svc := newTestApprovalService(store, newFakeDirectory(manager, delegate))

	subjectID := uuid.New()
	store.addSubject(model.KindExpense, subjectID, model.RequestStatusPending, 300)
	rows, err := svc.CreateApprovals(context.Background(), model.KindExpense, subjectID,
		routeFor([]model.User{manager}))
	require.NoError(t, err)

	reason := "on leave"
	successor, err := svc.Delegate(context.Background(), DelegateInput{
		ApprovalID:   rows[0].ID,
		Actor:        model.Principal{UserID: manager.ID, Role: manager.Role},
		ToApproverID: delegate.ID,
		Reason:       &reason,
	})
	require.NoError(t, err)
	assert.Equal(t, delegate.ID, successor.ApproverID)
	assert.Equal(t, rows[0].Level, successor.Level)
	require.NotNil(t, successor.DelegatedFromID)
	assert.Equal(t, rows[0].ID, *successor.DelegatedFromID)

	original, err := store.Get(context.Background(), rows[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.ApprovalStatusDelegated, original.Status)

	// The successor can decide the chain.
	result, err := svc.Decide(context.Background(), DecideInput{
		ApprovalID: successor.ID,
		Actor:      model.Principal{UserID: delegate.ID, Role: delegate.Role},
		Decision:   model.ApprovalStatusApproved,
	})
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusApproved, result.SubjectStatus)
}

func TestDelegateRejectsIneligibleTarget(t *testing.T) {
	store := newFakeApprovalStore()
	manager := testUser("mark", model.RoleManager, nil)
	employee := testUser("emma", model.RoleEmployee, nil)
	svc := newTestApprovalService(store, newFakeDirectory(manager, employee))

	subjectID := uuid.New()
	store.addSubject(model.KindExpense, subjectID, model.RequestStatusPending, 300)
	rows, err := svc.CreateApprovals(context.Background(), model.KindExpense, subjectID,
		routeFor([]model.User{manager}))
	require.NoError(t, err)

	_, err = svc.Delegate(context.Background(), DelegateInput{
		ApprovalID:   rows[0].ID,
		Actor:        model.Principal{UserID: manager.ID, Role: manager.Role},
		ToApproverID: employee.ID,
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDelegateDeniedForStranger(t *testing.T) {
	store := newFakeApprovalStore()
	manager := testUser("mark", model.RoleManager, nil)
	other := testUser("nina", model.RoleManager, nil)
	svc := newTestApprovalService(store, newFakeDirectory(manager, other))

	subjectID := uuid.New()
	store.addSubject(model.KindExpense, subjectID, model.RequestStatusPending, 300)
	rows, err := svc.CreateApprovals(context.Background(), model.KindExpense, subjectID,
		routeFor([]model.User{manager}))
	require.NoError(t, err)

	_, err = svc.Delegate(context.Background(), DelegateInput{
		ApprovalID:   rows[0].ID,
		Actor:        model.Principal{UserID: other.ID, Role: other.Role},
		ToApproverID: other.ID,
	})
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestEscalateOverdueReassignsToManager(t *testing.T) {
	store := newFakeApprovalStore()
	boss := testUser("boss", model.RoleManager, nil)
	approver := testUser("mark", model.RoleManager, nil)
	approver.ManagerID = &boss.ID
	orphan := testUser("olga", model.RoleManager, nil)
	trigger := testUser("fiona", model.RoleFinanceApprover, nil)
	svc := newTestApprovalService(store, newFakeDirectory(boss, approver, orphan, trigger))

	subjectID := uuid.New()
	store.addSubject(model.KindExpense, subjectID, model.RequestStatusPending, 300)
	rows, err := svc.CreateApprovals(context.Background(), model.KindExpense, subjectID,
		routeFor([]model.User{approver, orphan}))
	require.NoError(t, err)

	// Age both rows past the overdue window.
	for _, row := range rows {
		store.rows[row.ID].CreatedAt = time.Now().AddDate(0, 0, -5)
	}

	result, err := svc.EscalateOverdue(context.Background(),
		model.Principal{UserID: trigger.ID, Role: trigger.Role}, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Escalated)
	assert.Equal(t, 1, result.Skipped)

	escalated, err := store.Get(context.Background(), rows[0].ID)
	require.NoError(t, err)
	assert.Equal(t, boss.ID, escalated.ApproverID)
}

func TestEscalateRequiresCapability(t *testing.T) {
	store := newFakeApprovalStore()
	svc := newTestApprovalService(store, newFakeDirectory())

	_, err := svc.EscalateOverdue(context.Background(),
		model.Principal{UserID: uuid.New(), Role: model.RoleEmployee}, 2)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

// P7: a level 2 row is not actionable while level 1 still has pending rows.
func TestPendingForApproverFiltersFutureLevels(t *testing.T) {
	store := newFakeApprovalStore()
	manager := testUser("mark", model.RoleManager, nil)
	finance := testUser("fiona", model.RoleFinanceApprover, nil)
	svc := newTestApprovalService(store, newFakeDirectory(manager, finance))

	subjectID := uuid.New()
	store.addSubject(model.KindExpense, subjectID, model.RequestStatusPending, 15000)
	rows, err := svc.CreateApprovals(context.Background(), model.KindExpense, subjectID,
		routeFor([]model.User{manager}, []model.User{finance}))
	require.NoError(t, err)

	pending, err := svc.PendingForApprover(context.Background(), finance.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = svc.Decide(context.Background(), DecideInput{
		ApprovalID: rows[0].ID,
		Actor:      model.Principal{UserID: manager.ID, Role: manager.Role},
		Decision:   model.ApprovalStatusApproved,
	})
	require.NoError(t, err)

	pending, err = svc.PendingForApprover(context.Background(), finance.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, rows[1].ID, pending[0].ID)
}

func TestStatsAggregatesDecisions(t *testing.T) {
	store := newFakeApprovalStore()
	manager := testUser("mark", model.RoleManager, nil)
	svc := newTestApprovalService(store, newFakeDirectory(manager))

	for i := 0; i < 4; i++ {
		subjectID := uuid.New()
		store.addSubject(model.KindExpense, subjectID, model.RequestStatusPending, 300)
		rows, err := svc.CreateApprovals(context.Background(), model.KindExpense, subjectID,
			routeFor([]model.User{manager}))
		require.NoError(t, err)

		if i < 3 {
			decision := model.ApprovalStatusApproved
			if i == 2 {
				decision = model.ApprovalStatusRejected
			}
			_, err = svc.Decide(context.Background(), DecideInput{
				ApprovalID: rows[0].ID,
				Actor:      model.Principal{UserID: manager.ID, Role: manager.Role},
				Decision:   decision,
			})
			require.NoError(t, err)
		}
	}

	stats, err := svc.Stats(context.Background(), manager.ID, 30)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Approved)
	assert.Equal(t, 1, stats.Rejected)
	assert.Equal(t, 1, stats.Pending)
	assert.InDelta(t, 50.0, stats.ApprovalRate, 0.001)
}

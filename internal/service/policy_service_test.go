package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nurpe/finops/internal/model"
)

func newTestPolicyService(policies []model.Policy, users ...model.User) *PolicyService {
	return NewPolicyService(&fakePolicyStore{policies: policies}, newFakeDirectory(users...), zerolog.Nop())
}

// A Monday morning, safely inside business hours.
var weekdayDate = time.Date(2026, 8, 24, 11, 0, 0, 0, time.UTC)

func TestCheckRejectsNonPositiveAmount(t *testing.T) {
	svc := newTestPolicyService(nil)
	_, err := svc.Check(context.Background(), PolicyCheckInput{Amount: 0})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCheckExemptsAdministrators(t *testing.T) {
	admin := testUser("adam", model.RoleSystemAdmin, nil)
	svc := newTestPolicyService([]model.Policy{
		activePolicy(model.PolicySpendingLimit, `{"maxAmount": 100, "isBlocking": true}`),
	}, admin)

	result, err := svc.Check(context.Background(), PolicyCheckInput{
		UserID: admin.ID,
		Amount: 10000,
		Date:   weekdayDate,
	})
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.Empty(t, result.Violations)
}

func TestCheckBlockingSpendingLimit(t *testing.T) {
	user := testUser("emma", model.RoleEmployee, nil)
	svc := newTestPolicyService([]model.Policy{
		activePolicy(model.PolicySpendingLimit, `{"maxAmount": 1000, "isBlocking": true}`),
	}, user)

	result, err := svc.Check(context.Background(), PolicyCheckInput{
		UserID: user.ID,
		Title:  "New laptop",
		Amount: 2500,
		Date:   weekdayDate,
	})
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	require.Len(t, result.Violations, 1)
	assert.True(t, result.Violations[0].IsBlocking)
	assert.NotEmpty(t, BlockingMessage(result))
}

func TestCheckNonBlockingLimitBecomesWarning(t *testing.T) {
	user := testUser("emma", model.RoleEmployee, nil)
	svc := newTestPolicyService([]model.Policy{
		activePolicy(model.PolicySpendingLimit, `{"maxAmount": 1000, "isBlocking": false}`),
	}, user)

	result, err := svc.Check(context.Background(), PolicyCheckInput{
		UserID: user.ID,
		Amount: 2500,
		Date:   weekdayDate,
	})
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.Empty(t, result.Violations)
	require.Len(t, result.Warnings, 1)
}

func TestCheckWeekendBlock(t *testing.T) {
	user := testUser("emma", model.RoleEmployee, nil)
	svc := newTestPolicyService([]model.Policy{
		activePolicy(model.PolicyTimeLimit, `{"blockWeekends": true}`),
	}, user)

	saturday := time.Date(2026, 8, 29, 11, 0, 0, 0, time.UTC)
	result, err := svc.Check(context.Background(), PolicyCheckInput{
		UserID: user.ID,
		Amount: 100,
		Date:   saturday,
	})
	require.NoError(t, err)
	assert.False(t, result.IsValid)

	result, err = svc.Check(context.Background(), PolicyCheckInput{
		UserID: user.ID,
		Amount: 100,
		Date:   weekdayDate,
	})
	require.NoError(t, err)
	assert.True(t, result.IsValid)
}

func TestCheckKeywordRestriction(t *testing.T) {
	user := testUser("emma", model.RoleEmployee, nil)
	svc := newTestPolicyService([]model.Policy{
		activePolicy(model.PolicyKeywordRestriction, `{"prohibitedKeywords": ["gift card"]}`),
	}, user)

	result, err := svc.Check(context.Background(), PolicyCheckInput{
		UserID: user.ID,
		Title:  "Team Gift Card bundle",
		Amount: 100,
		Date:   weekdayDate,
	})
	require.NoError(t, err)
	assert.False(t, result.IsValid)
}

func TestCheckReceiptRequirement(t *testing.T) {
	user := testUser("emma", model.RoleEmployee, nil)
	svc := newTestPolicyService([]model.Policy{
		activePolicy(model.PolicyReceiptRequirement, `{"threshold": 75}`),
	}, user)

	result, err := svc.Check(context.Background(), PolicyCheckInput{
		UserID:     user.ID,
		Amount:     100,
		Date:       weekdayDate,
		HasReceipt: false,
	})
	require.NoError(t, err)
	assert.False(t, result.IsValid)

	result, err = svc.Check(context.Background(), PolicyCheckInput{
		UserID:     user.ID,
		Amount:     100,
		Date:       weekdayDate,
		HasReceipt: true,
	})
	require.NoError(t, err)
	assert.True(t, result.IsValid)
}

func TestCheckVendorRestriction(t *testing.T) {
	user := testUser("emma", model.RoleEmployee, nil)
	svc := newTestPolicyService([]model.Policy{
		activePolicy(model.PolicyVendorRestriction, `{"blockedVendors": ["Acme Corp"]}`),
	}, user)

	result, err := svc.Check(context.Background(), PolicyCheckInput{
		UserID:   user.ID,
		Amount:   100,
		Merchant: "Acme Corp",
		Date:     weekdayDate,
	})
	require.NoError(t, err)
	assert.False(t, result.IsValid)
}

func TestCheckSkipsUnparseablePolicies(t *testing.T) {
	user := testUser("emma", model.RoleEmployee, nil)
	svc := newTestPolicyService([]model.Policy{
		activePolicy(model.PolicySpendingLimit, `{not json`),
	}, user)

	result, err := svc.Check(context.Background(), PolicyCheckInput{
		UserID: user.ID,
		Amount: 100,
		Date:   weekdayDate,
	})
	require.NoError(t, err)
	assert.True(t, result.IsValid)
}

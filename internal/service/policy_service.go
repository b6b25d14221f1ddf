package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nurpe/finops/internal/model"
)

// PolicyService evaluates a candidate request against active spend policies.
// Evaluation is read-only; callers may repeat it freely.
type PolicyService struct {
	policies  PolicyStore
	directory Directory
	log       zerolog.Logger
}

func NewPolicyService(policies PolicyStore, directory Directory, log zerolog.Logger) *PolicyService {
	return &PolicyService{policies: policies, directory: directory, log: log}
}

type PolicyCheckInput struct {
	UserID      uuid.UUID
	Title       string
	Description string
	Amount      float64
	Category    string
	Merchant    string
	Date        time.Time
	HasReceipt  bool
}

func (s *PolicyService) Check(ctx context.Context, input PolicyCheckInput) (*model.PolicyCheckResult, error) {
	if input.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}

	user, err := s.directory.GetUser(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, input.UserID)
	}

	// Administrators are exempt from every policy restriction.
	if user.IsUniversalApprover() {
		return &model.PolicyCheckResult{IsValid: true}, nil
	}

	policies, err := s.policies.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	result := &model.PolicyCheckResult{IsValid: true}
	for _, policy := range policies {
		rules, err := policy.ParseRules()
		if err != nil {
			s.log.Warn().Str("policy_id", policy.ID.String()).Msg("unparseable policy rules, skipping")
			continue
		}
		for _, violation := range evaluatePolicy(policy, rules, input) {
			if violation.IsBlocking {
				result.Violations = append(result.Violations, violation)
				result.IsValid = false
			} else {
				result.Warnings = append(result.Warnings, violation)
			}
		}
	}
	return result, nil
}

// BlockingMessage joins all blocking violations into the single user-facing
// error the creation flow surfaces.
func BlockingMessage(result *model.PolicyCheckResult) string {
	messages := make([]string, 0, len(result.Violations))
	for _, v := range result.Violations {
		messages = append(messages, v.Message)
	}
	return strings.Join(messages, ", ")
}

func evaluatePolicy(policy model.Policy, rules model.PolicyRules, input PolicyCheckInput) []model.Violation {
	var out []model.Violation
	add := func(message string, blocking bool) {
		out = append(out, model.Violation{
			PolicyID:   policy.ID,
			PolicyName: policy.Name,
			Message:    message,
			IsBlocking: blocking,
		})
	}

	switch policy.Type {
	case model.PolicySpendingLimit:
		if rules.MaxAmount != nil && input.Amount > *rules.MaxAmount {
			blocking := true
			if rules.IsBlocking != nil {
				blocking = *rules.IsBlocking
			}
			add(fmt.Sprintf("amount $%.2f exceeds the limit of $%.2f", input.Amount, *rules.MaxAmount), blocking)
		}
	case model.PolicyReceiptRequirement:
		threshold := 0.0
		if rules.Threshold != nil {
			threshold = *rules.Threshold
		}
		if input.Amount >= threshold && !input.HasReceipt {
			add(fmt.Sprintf("receipt is required for amounts over $%.2f", threshold), true)
		}
	case model.PolicyCategoryRestriction:
		for _, blocked := range rules.BlockedCategories {
			if blocked == input.Category {
				add(fmt.Sprintf("category %q is restricted by policy", input.Category), true)
				break
			}
		}
	case model.PolicyVendorRestriction:
		if input.Merchant == "" {
			break
		}
		for _, blocked := range rules.BlockedVendors {
			if blocked == input.Merchant {
				add(fmt.Sprintf("vendor %q is on the blocked list", input.Merchant), true)
				break
			}
		}
	case model.PolicyKeywordRestriction:
		text := strings.ToLower(input.Title + " " + input.Description)
		for _, keyword := range rules.ProhibitedKeywords {
			if strings.Contains(text, strings.ToLower(keyword)) {
				add(fmt.Sprintf("prohibited keyword detected: %q", keyword), true)
				break
			}
		}
	case model.PolicyTimeLimit:
		if rules.BlockWeekends && isWeekend(input.Date) {
			add("requests cannot be dated on weekends", true)
		}
		if rules.BlockAfterHours && isOutsideBusinessHours(input.Date) {
			add("requests cannot be dated outside business hours (9AM-6PM)", true)
		}
	}
	return out
}

func isWeekend(t time.Time) bool {
	day := t.Weekday()
	return day == time.Saturday || day == time.Sunday
}

func isOutsideBusinessHours(t time.Time) bool {
	hour := t.Hour()
	return hour < 9 || hour >= 18
}

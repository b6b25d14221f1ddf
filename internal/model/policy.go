package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type PolicyType string

const (
	PolicySpendingLimit       PolicyType = "SPENDING_LIMIT"
	PolicyCategoryRestriction PolicyType = "CATEGORY_RESTRICTION"
	PolicyKeywordRestriction  PolicyType = "KEYWORD_RESTRICTION"
	PolicyTimeLimit           PolicyType = "TIME_LIMIT"
	PolicyVendorRestriction   PolicyType = "VENDOR_RESTRICTION"
	PolicyReceiptRequirement  PolicyType = "RECEIPT_REQUIREMENT"
	PolicyAutoApproval        PolicyType = "AUTO_APPROVAL"
	PolicyApprovalRouting     PolicyType = "APPROVAL_ROUTING"
)

// Policy rules are stored as JSON; the fields read depend on the type.
type Policy struct {
	ID          uuid.UUID
	Name        string
	Description *string
	Type        PolicyType
	Rules       string
	IsActive    bool
	CreatedAt   time.Time
}

// PolicyRules is the superset of rule fields across policy types.
type PolicyRules struct {
	MaxAmount          *float64 `json:"maxAmount,omitempty"`
	MinAmount          *float64 `json:"minAmount,omitempty"`
	IsBlocking         *bool    `json:"isBlocking,omitempty"`
	Threshold          *float64 `json:"threshold,omitempty"`
	BlockedCategories  []string `json:"blockedCategories,omitempty"`
	BlockedVendors     []string `json:"blockedVendors,omitempty"`
	ProhibitedKeywords []string `json:"prohibitedKeywords,omitempty"`
	BlockWeekends      bool     `json:"blockWeekends,omitempty"`
	BlockAfterHours    bool     `json:"blockAfterHours,omitempty"`
	Category           *string  `json:"category,omitempty"`
}

func (p Policy) ParseRules() (PolicyRules, error) {
	var rules PolicyRules
	err := json.Unmarshal([]byte(p.Rules), &rules)
	return rules, err
}

// Violation is one policy breach. Blocking violations prevent submission;
// the rest are surfaced as warnings.
type Violation struct {
	PolicyID   uuid.UUID
	PolicyName string
	Message    string
	IsBlocking bool
}

type PolicyCheckResult struct {
	IsValid    bool
	Violations []Violation
	Warnings   []Violation
}

package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ApprovalStatus string

const (
	ApprovalStatusPending   ApprovalStatus = "PENDING"
	ApprovalStatusApproved  ApprovalStatus = "APPROVED"
	ApprovalStatusRejected  ApprovalStatus = "REJECTED"
	ApprovalStatusDelegated ApprovalStatus = "DELEGATED"
	ApprovalStatusSkipped   ApprovalStatus = "SKIPPED"
)

// Approval is one approver's slot at one level of a subject's route.
// Rows for every level are materialized up front; the subject's current level
// is derived as the lowest level that still has a PENDING row.
type Approval struct {
	ID              uuid.UUID
	SubjectKind     RequestKind
	SubjectID       uuid.UUID
	ApproverID      uuid.UUID
	Level           int
	Status          ApprovalStatus
	Comments        *string
	// DelegatedFromID links a successor row back to the row it replaced,
	// so the original assignee stays on record.
	DelegatedFromID *uuid.UUID
	CreatedAt       time.Time
	DecidedAt       *time.Time
}

type ApprovalLevel struct {
	Level     int
	Approvers []User
	Required  bool
}

// ApprovalRoute is the resolver's output: either auto-approve with no levels,
// or strictly ordered levels 1..N, each with at least one approver.
type ApprovalRoute struct {
	Levels        []ApprovalLevel
	AutoApprove   bool
	Reason        string
	EstimatedDays float64
}

func (r ApprovalRoute) Validate() error {
	if r.AutoApprove {
		if len(r.Levels) != 0 {
			return fmt.Errorf("auto-approve route must have no levels")
		}
		return nil
	}
	for i, level := range r.Levels {
		if level.Level != i+1 {
			return fmt.Errorf("levels must be contiguous from 1, got %d at position %d", level.Level, i)
		}
		if len(level.Approvers) == 0 {
			return fmt.Errorf("level %d has no approvers", level.Level)
		}
	}
	return nil
}

// CurrentLevel returns the lowest level with any PENDING row, or 0 when
// nothing is pending.
func CurrentLevel(approvals []Approval) int {
	current := 0
	for _, a := range approvals {
		if a.Status != ApprovalStatusPending {
			continue
		}
		if current == 0 || a.Level < current {
			current = a.Level
		}
	}
	return current
}

package model

import (
	"time"

	"github.com/google/uuid"
)

type PaymentStatus string

const (
	PaymentStatusPendingAuthorization PaymentStatus = "PENDING_AUTHORIZATION"
	PaymentStatusAuthorized           PaymentStatus = "AUTHORIZED"
	PaymentStatusPaid                 PaymentStatus = "PAID"
	PaymentStatusRejected             PaymentStatus = "REJECTED"
)

func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusPaid || s == PaymentStatusRejected
}

// CanTransitionTo encodes the maker-checker-disburser walk:
// PENDING_AUTHORIZATION -> AUTHORIZED | REJECTED, AUTHORIZED -> PAID.
// An authorized batch can no longer be rejected.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentStatusPendingAuthorization:
		return next == PaymentStatusAuthorized || next == PaymentStatusRejected
	case PaymentStatusAuthorized:
		return next == PaymentStatusPaid
	default:
		return false
	}
}

type PaymentMethod string

const (
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	MethodMobileMoney  PaymentMethod = "MOBILE_MONEY"
	MethodCheque       PaymentMethod = "CHEQUE"
	MethodCash         PaymentMethod = "CASH"
)

func ParsePaymentMethod(raw string) (PaymentMethod, bool) {
	switch PaymentMethod(raw) {
	case MethodBankTransfer, MethodMobileMoney, MethodCheque, MethodCash:
		return PaymentMethod(raw), true
	default:
		return "", false
	}
}

type PaymentAction string

const (
	ActionAuthorize PaymentAction = "AUTHORIZE"
	ActionReject    PaymentAction = "REJECT"
	ActionDisburse  PaymentAction = "DISBURSE"
)

func ParsePaymentAction(raw string) (PaymentAction, bool) {
	switch PaymentAction(raw) {
	case ActionAuthorize, ActionReject, ActionDisburse:
		return PaymentAction(raw), true
	default:
		return "", false
	}
}

// PaymentBatch groups approved unpaid items under a maker-checker flow.
// Amount is fixed at creation; items cannot be added or removed afterwards.
type PaymentBatch struct {
	ID           uuid.UUID
	MakerID      uuid.UUID
	CheckerID    *uuid.UUID
	Amount       float64
	Currency     Currency
	Status       PaymentStatus
	Method       PaymentMethod
	Notes        *string
	ProofURL     *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	AuthorizedAt *time.Time
	ProcessedAt  *time.Time

	Items []PayableItem `gorm:"-"`
}

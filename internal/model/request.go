package model

import (
	"time"

	"github.com/google/uuid"
)

type RequestKind string

const (
	KindExpense       RequestKind = "EXPENSE"
	KindRequisition   RequestKind = "REQUISITION"
	KindMonthlyBudget RequestKind = "MONTHLY_BUDGET"
	KindInvoice       RequestKind = "INVOICE"
)

func ParseRequestKind(raw string) (RequestKind, bool) {
	switch RequestKind(raw) {
	case KindExpense, KindRequisition, KindMonthlyBudget, KindInvoice:
		return RequestKind(raw), true
	default:
		return "", false
	}
}

type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "PENDING"
	RequestStatusApproved  RequestStatus = "APPROVED"
	RequestStatusRejected  RequestStatus = "REJECTED"
	RequestStatusPaid      RequestStatus = "PAID"
	RequestStatusFulfilled RequestStatus = "FULFILLED"
)

// IsTerminal reports whether no further workflow action applies to the subject.
func (s RequestStatus) IsTerminal() bool {
	switch s {
	case RequestStatusRejected, RequestStatusPaid, RequestStatusFulfilled:
		return true
	default:
		return false
	}
}

// PaidStatus is the kind-specific terminal status written at disbursement.
func (k RequestKind) PaidStatus() RequestStatus {
	if k == KindRequisition {
		return RequestStatusFulfilled
	}
	return RequestStatusPaid
}

type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyKES Currency = "KES"
	CurrencySSP Currency = "SSP"
)

func ParseCurrency(raw string) (Currency, bool) {
	switch Currency(raw) {
	case CurrencyUSD, CurrencyEUR, CurrencyKES, CurrencySSP:
		return Currency(raw), true
	default:
		return "", false
	}
}

// RequisitionType drives routing overrides. Expedited types may only be
// created by a system administrator.
type RequisitionType string

const (
	RequisitionStandard        RequisitionType = "STANDARD"
	RequisitionExpedited       RequisitionType = "EXPEDITED"
	RequisitionExpeditedStrict RequisitionType = "EXPEDITED_STRICT"
)

func (t RequisitionType) IsExpedited() bool {
	return t == RequisitionExpedited || t == RequisitionExpeditedStrict
}

// Payable is the common surface the approval and payment machinery operate
// against; it never exposes kind-specific fields.
type Payable interface {
	PayableKind() RequestKind
	PayableID() uuid.UUID
	PayableAmount() float64
	PayableStatus() RequestStatus
	ClaimedBy() *uuid.UUID
}

type Expense struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Title       string
	Amount      float64
	Currency    Currency
	Category    string
	Merchant    *string
	ExpenseDate time.Time
	HasReceipt  bool
	Status      RequestStatus
	PaymentID   *uuid.UUID
	CreatedAt   time.Time
	PaidAt      *time.Time
}

func (e Expense) PayableKind() RequestKind     { return KindExpense }
func (e Expense) PayableID() uuid.UUID         { return e.ID }
func (e Expense) PayableAmount() float64       { return e.Amount }
func (e Expense) PayableStatus() RequestStatus { return e.Status }
func (e Expense) ClaimedBy() *uuid.UUID        { return e.PaymentID }

type Requisition struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Title        string
	Amount       float64
	Currency     Currency
	Category     string
	Description  string
	Type         RequisitionType
	Department   *string
	Branch       *string
	ExpectedDate *time.Time
	Status       RequestStatus
	PaymentID    *uuid.UUID
	CreatedAt    time.Time
}

func (r Requisition) PayableKind() RequestKind     { return KindRequisition }
func (r Requisition) PayableID() uuid.UUID         { return r.ID }
func (r Requisition) PayableAmount() float64       { return r.Amount }
func (r Requisition) PayableStatus() RequestStatus { return r.Status }
func (r Requisition) ClaimedBy() *uuid.UUID        { return r.PaymentID }

type MonthlyBudget struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Title       string
	Month       time.Time
	TotalAmount float64
	Currency    Currency
	Category    string
	Status      RequestStatus
	PaymentID   *uuid.UUID
	CreatedAt   time.Time
}

func (b MonthlyBudget) PayableKind() RequestKind     { return KindMonthlyBudget }
func (b MonthlyBudget) PayableID() uuid.UUID         { return b.ID }
func (b MonthlyBudget) PayableAmount() float64       { return b.TotalAmount }
func (b MonthlyBudget) PayableStatus() RequestStatus { return b.Status }
func (b MonthlyBudget) ClaimedBy() *uuid.UUID        { return b.PaymentID }

type Invoice struct {
	ID          uuid.UUID
	CreatedByID uuid.UUID
	VendorName  string
	Number      string
	Amount      float64
	Currency    Currency
	Category    string
	DueDate     *time.Time
	Status      RequestStatus
	PaymentID   *uuid.UUID
	CreatedAt   time.Time
	PaidAt      *time.Time
}

func (i Invoice) PayableKind() RequestKind     { return KindInvoice }
func (i Invoice) PayableID() uuid.UUID         { return i.ID }
func (i Invoice) PayableAmount() float64       { return i.Amount }
func (i Invoice) PayableStatus() RequestStatus { return i.Status }
func (i Invoice) ClaimedBy() *uuid.UUID        { return i.PaymentID }

// PayableItem is the flattened projection the payment repositories work with,
// regardless of which table a row came from.
type PayableItem struct {
	Kind      RequestKind
	ID        uuid.UUID
	Title     string
	Amount    float64
	Currency  Currency
	Status    RequestStatus
	PaymentID *uuid.UUID
}

func (p PayableItem) PayableKind() RequestKind     { return p.Kind }
func (p PayableItem) PayableID() uuid.UUID         { return p.ID }
func (p PayableItem) PayableAmount() float64       { return p.Amount }
func (p PayableItem) PayableStatus() RequestStatus { return p.Status }
func (p PayableItem) ClaimedBy() *uuid.UUID        { return p.PaymentID }

var (
	_ Payable = Expense{}
	_ Payable = Requisition{}
	_ Payable = MonthlyBudget{}
	_ Payable = Invoice{}
	_ Payable = PayableItem{}
)

// ItemSelection carries the maker's picks for a new payment batch.
type ItemSelection struct {
	ExpenseIDs     []uuid.UUID
	InvoiceIDs     []uuid.UUID
	RequisitionIDs []uuid.UUID
	BudgetIDs      []uuid.UUID
}

func (s ItemSelection) IsEmpty() bool {
	return len(s.ExpenseIDs) == 0 && len(s.InvoiceIDs) == 0 &&
		len(s.RequisitionIDs) == 0 && len(s.BudgetIDs) == 0
}

func (s ItemSelection) Count() int {
	return len(s.ExpenseIDs) + len(s.InvoiceIDs) + len(s.RequisitionIDs) + len(s.BudgetIDs)
}

// PerKind returns the selection as (kind, ids) pairs, skipping empty kinds.
func (s ItemSelection) PerKind() map[RequestKind][]uuid.UUID {
	out := make(map[RequestKind][]uuid.UUID, 4)
	if len(s.ExpenseIDs) > 0 {
		out[KindExpense] = s.ExpenseIDs
	}
	if len(s.InvoiceIDs) > 0 {
		out[KindInvoice] = s.InvoiceIDs
	}
	if len(s.RequisitionIDs) > 0 {
		out[KindRequisition] = s.RequisitionIDs
	}
	if len(s.BudgetIDs) > 0 {
		out[KindMonthlyBudget] = s.BudgetIDs
	}
	return out
}

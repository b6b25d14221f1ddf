package model

import "time"

// PaymentRegister feeds the XLSX export of batches for a period.
type PaymentRegister struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	Batches     []PaymentBatch
}

// PaymentVoucher feeds the disbursement proof document for a paid batch.
type PaymentVoucher struct {
	Batch   PaymentBatch
	Maker   User
	Checker *User
	Items   []PayableItem
}

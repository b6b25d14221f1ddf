package service

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrInvalidInput      = errors.New("invalid input")
	ErrPolicyViolation   = errors.New("policy violation")
	ErrAlreadyDecided    = errors.New("approval already decided")
	ErrChainTerminated   = errors.New("approval chain already terminated")
	ErrItemNotPayable    = errors.New("item not payable")
	ErrSelfAuthorization = errors.New("maker cannot authorize own payment")
	ErrInvalidState      = errors.New("invalid payment state for action")
	ErrAlreadyFinalized  = errors.New("payment already finalized")
	ErrAdminExists       = errors.New("a system administrator already exists")
	// ErrNoEligibleApprover signals misconfigured directory data: a required
	// level could not be staffed. Logged loudly, surfaced as a generic failure.
	ErrNoEligibleApprover = errors.New("no eligible approver for required level")
)

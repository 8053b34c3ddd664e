// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "errors"

// Errors returned by the orchestrator. Callers match them with errors.Is;
// implementations wrap them with context.
var (
	ErrAlreadyClaimed      = errors.New("someone else is reviewing this item")
	ErrNotClaimHolder      = errors.New("reviewer does not hold the claim")
	ErrMissingReason       = errors.New("rejection requires a reason")
	ErrInvalidSeedURL      = errors.New("invalid seed url")
	ErrServiceUnavailable  = errors.New("discovery service unavailable")
	ErrNotFound            = errors.New("not found")
	ErrTransientStore      = errors.New("transient store error")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrBulkActionsDisabled = errors.New("bulk actions are disabled")
	ErrAuditConflict       = errors.New("conflicting audit entry already recorded")
)

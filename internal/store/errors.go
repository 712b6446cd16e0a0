package store

import (
	"errors"
	"fmt"

	"github.com/gptcompany/claude-hooks-shared/internal/models"
)

// RecoverableError is an alias for models.RecoverableError, retained so
// callers can reference store.RecoverableError without importing models.
type RecoverableError = models.RecoverableError

// ErrNotFound is returned when a key or claim does not exist.
var ErrNotFound = errors.New("not found")

// ErrClaimConflict is returned when a claim is held by a different claimant.
var ErrClaimConflict = errors.New("resource already claimed by another agent")

// ErrNotAuthorized is returned when a release is attempted by a claimant
// that does not own the claim.
var ErrNotAuthorized = errors.New("claim is not owned by claimant")

// ClaimConflictError carries the existing claim on contention so callers can
// report who holds the resource.
type ClaimConflictError struct {
	IssueID     string
	Existing    models.Claim
	RequestedBy string
}

func (e *ClaimConflictError) Error() string {
	return fmt.Sprintf("resource %s already claimed by %s", e.IssueID, e.Existing.Claimant)
}
func (e *ClaimConflictError) ErrorCode() string { return "CLAIM_CONFLICT" }
func (e *ClaimConflictError) Context() map[string]string {
	return map[string]string{
		"issue_id":      e.IssueID,
		"current_owner": e.Existing.Claimant,
		"requested_by":  e.RequestedBy,
	}
}
func (e *ClaimConflictError) SuggestedAction() string {
	return fmt.Sprintf("wait for release, or inspect with 'claude-hooks claim list --id %s'", e.IssueID)
}
func (e *ClaimConflictError) Is(target error) bool { return target == ErrClaimConflict }

// NotAuthorizedError carries owner identity when a release is refused.
type NotAuthorizedError struct {
	IssueID     string
	Owner       string
	RequestedBy string
}

func (e *NotAuthorizedError) Error() string {
	return fmt.Sprintf("claim %s is owned by %s, not %s", e.IssueID, e.Owner, e.RequestedBy)
}
func (e *NotAuthorizedError) ErrorCode() string { return "NOT_AUTHORIZED" }
func (e *NotAuthorizedError) Context() map[string]string {
	return map[string]string{
		"issue_id":     e.IssueID,
		"owner":        e.Owner,
		"requested_by": e.RequestedBy,
	}
}
func (e *NotAuthorizedError) SuggestedAction() string {
	return "only the owning claimant may release; use mark-stealable to hand off"
}
func (e *NotAuthorizedError) Is(target error) bool { return target == ErrNotAuthorized }

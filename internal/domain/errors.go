package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the repository and the engines.
var (
	ErrNotFound        = errors.New("record not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrVersionConflict = errors.New("version conflict")
)

// ValidationError reports input that violates a field constraint.
type ValidationError struct {
	Entity string
	ID     string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("invalid %s %s: %s: %s", e.Entity, e.ID, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s: %s", e.Entity, e.Field, e.Reason)
}

// NewInvalidTierError reports a coverage tier missing from the catalog.
func NewInvalidTierError(tier string) *ValidationError {
	return &ValidationError{
		Entity: "coverage",
		Field:  "tier",
		Reason: fmt.Sprintf("unknown coverage tier %q", tier),
	}
}

// IsInvalidTier reports whether err is an unknown-tier validation failure.
func IsInvalidTier(err error) bool {
	var v *ValidationError
	return errors.As(err, &v) && v.Field == "tier"
}

// InvalidTransitionError reports a workflow step that is not permitted
// from the claim's current status.
type InvalidTransitionError struct {
	ClaimID string
	From    ClaimStatus
	To      ClaimStatus
	Action  string
	Reason  string
	Err     error
}

func (e *InvalidTransitionError) Error() string {
	var msg string
	if e.Action != "" {
		msg = fmt.Sprintf("claim %s: cannot %s while %s", e.ClaimID, e.Action, e.From)
	} else {
		msg = fmt.Sprintf("claim %s: transition %s -> %s not permitted", e.ClaimID, e.From, e.To)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *InvalidTransitionError) Unwrap() error { return e.Err }

// TerminalStateError reports an attempt to move a claim out of a final state.
type TerminalStateError struct {
	ClaimID string
	Status  ClaimStatus
}

func (e *TerminalStateError) Error() string {
	return fmt.Sprintf("claim %s is in terminal state %s", e.ClaimID, e.Status)
}

// ReferentialError reports a reference to a missing or mismatched record.
type ReferentialError struct {
	Entity string
	ID     string
	Ref    string
	RefID  string
	Reason string
}

func (e *ReferentialError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "not found"
	}
	if e.ID != "" {
		return fmt.Sprintf("%s %s: %s %s %s", e.Entity, e.ID, e.Ref, e.RefID, reason)
	}
	return fmt.Sprintf("%s: %s %s %s", e.Entity, e.Ref, e.RefID, reason)
}

// StorageError wraps a persistence failure.
type StorageError struct {
	Op     string
	Entity string
	ID     string
	Err    error
}

func (e *StorageError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("storage %s %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Entity, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError wraps err unless it is nil or already a StorageError.
// A missing record is reported as ErrNotFound rather than a storage failure.
func NewStorageError(op, entity, id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Entity: entity, ID: id, Err: err}
}

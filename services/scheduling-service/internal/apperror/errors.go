// Package apperror defines the scheduling error taxonomy. Every error carries the
// (tenant, professional, date) tuple and, where relevant, the interval involved,
// so callers can decide whether to retry with different parameters.
package apperror

import (
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/interval"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/model"
)

// Scope is the tuple an error refers to. Empty fields are omitted from Details.
type Scope struct {
	TenantID       string
	ProfessionalID string
	Date           string
}

func ScopeOf(k model.TupleKey) Scope {
	return Scope{TenantID: k.TenantID, ProfessionalID: k.ProfessionalID, Date: k.Date.String()}
}

// ValidationError reports malformed input. It is never retried automatically.
type ValidationError struct {
	Scope   Scope
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return "validation failed: " + e.Field + ": " + e.Message
	}
	return "validation failed: " + e.Message
}

// ConflictError reports a reservation or transition that lost against current
// state: an occupied interval, a blackout, or an incompatible booking status.
type ConflictError struct {
	Scope         Scope
	Interval      interval.Interval
	ConflictingID string
	Message       string
}

func (e *ConflictError) Error() string {
	if e.Interval.Empty() {
		return "conflict: " + e.Message
	}
	return fmt.Sprintf("conflict: %s %s", e.Message, e.Interval)
}

// NotFoundError reports a professional, blackout or booking missing from the
// tenant's scope.
type NotFoundError struct {
	Scope    Scope
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " " + e.ID + " not found"
}

func Validation(scope Scope, field, format string, args ...any) error {
	return &ValidationError{Scope: scope, Field: field, Message: fmt.Sprintf(format, args...)}
}

func Conflict(scope Scope, iv interval.Interval, conflictingID, format string, args ...any) error {
	return &ConflictError{Scope: scope, Interval: iv, ConflictingID: conflictingID, Message: fmt.Sprintf(format, args...)}
}

func NotFound(scope Scope, resource, id string) error {
	return &NotFoundError{Scope: scope, Resource: resource, ID: id}
}

func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

func IsConflict(err error) bool {
	var e *ConflictError
	return errors.As(err, &e)
}

func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// Details flattens the context of a domain error for API responses. It returns
// nil for errors outside the taxonomy.
func Details(err error) map[string]any {
	var (
		v *ValidationError
		c *ConflictError
		n *NotFoundError
	)
	switch {
	case errors.As(err, &v):
		d := v.Scope.details()
		if v.Field != "" {
			d["field"] = v.Field
		}
		return d
	case errors.As(err, &c):
		d := c.Scope.details()
		if !c.Interval.Empty() {
			d["start"] = c.Interval.Start.Format(time.RFC3339)
			d["end"] = c.Interval.End.Format(time.RFC3339)
		}
		if c.ConflictingID != "" {
			d["conflicting_id"] = c.ConflictingID
		}
		return d
	case errors.As(err, &n):
		d := n.Scope.details()
		d["resource"] = n.Resource
		d["id"] = n.ID
		return d
	default:
		return nil
	}
}

func (s Scope) details() map[string]any {
	d := map[string]any{}
	if s.TenantID != "" {
		d["tenant_id"] = s.TenantID
	}
	if s.ProfessionalID != "" {
		d["professional_id"] = s.ProfessionalID
	}
	if s.Date != "" {
		d["date"] = s.Date
	}
	return d
}

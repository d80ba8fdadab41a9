// Package businessflow contains the core business logic and use cases for the pricing engine
package businessflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Business flow error constants
var (
	// Request validation errors
	ErrQuantityTooLow        = errors.New("quantity must be at least 1")
	ErrColorCountNegative    = errors.New("color count must not be negative")
	ErrUnknownService        = errors.New("unknown service type")
	ErrUnknownLocation       = errors.New("unknown print location")
	ErrUnknownAddOn          = errors.New("unknown add-on tag")
	ErrStitchCountRequired   = errors.New("embroidery stitch count is required")
	ErrStitchCountNotAllowed = errors.New("stitch count is only valid for embroidery")

	// Rule validation errors
	ErrRuleCategoryInvalid    = errors.New("unknown rule category")
	ErrRuleEffectTypeInvalid  = errors.New("unknown effect type")
	ErrRuleEffectMismatch     = errors.New("effect type does not match category")
	ErrRuleAmountInvalid      = errors.New("rule amount is invalid for its category")
	ErrRuleServiceRequired    = errors.New("service is required for this category")
	ErrRuleServiceInvalid     = errors.New("unknown service type in rule scope")
	ErrRuleLocationInvalid    = errors.New("unknown print location in rule scope")
	ErrRuleAddOnTagRequired   = errors.New("add-on tag is required for addon rules")
	ErrRuleAddOnTagInvalid    = errors.New("unknown add-on tag in rule scope")
	ErrRuleQuantityRange      = errors.New("quantity range is invalid")
	ErrRuleColorRange         = errors.New("color-count range is invalid")
	ErrRuleWindowInvalid      = errors.New("effective_from must not be after effective_to")
	ErrRuleNotFound           = errors.New("pricing rule not found")
	ErrRuleUpdateRequired     = errors.New("at least one field must be provided for update")

	// Engine errors
	ErrSnapshotUnavailable = errors.New("rule index snapshot unavailable")
	ErrRecordNotFound      = errors.New("calculation record not found")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError reports a malformed request or a malformed rule write.
// It is never partially applied and is always surfaced synchronously.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func NewValidationError(field, reason string, err error) *ValidationError {
	return &ValidationError{Field: field, Reason: reason, Err: err}
}

// CoverageError reports that a required single-winner category has no
// applicable rule for the requested service. The calculation aborts with
// zero line items; a partial breakdown is never returned.
type CoverageError struct {
	Category string
	Service  string
}

func (e *CoverageError) Error() string {
	return fmt.Sprintf("no applicable %s rule for service %s", e.Category, e.Service)
}

// ConflictError reports an ambiguous rule configuration caught at write
// time: rules of the same category with equal priority and overlapping
// scope. The write is blocked; existing calculations are unaffected.
type ConflictError struct {
	Category  string
	RuleUUIDs []uuid.UUID
}

func (e *ConflictError) Error() string {
	ids := make([]string, 0, len(e.RuleUUIDs))
	for _, id := range e.RuleUUIDs {
		ids = append(ids, id.String())
	}
	return fmt.Sprintf("priority collision in category %s between rules [%s]", e.Category, strings.Join(ids, ", "))
}

// AuditWriteError reports that the durable audit append failed. The
// calculation result is suppressed rather than returned un-audited.
type AuditWriteError struct {
	Err error
}

func (e *AuditWriteError) Error() string {
	return fmt.Sprintf("audit append failed: %v", e.Err)
}

func (e *AuditWriteError) Unwrap() error {
	return e.Err
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsCoverageError(err error) bool {
	var ce *CoverageError
	return errors.As(err, &ce)
}

func IsConflictError(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

func IsAuditWriteError(err error) bool {
	var ae *AuditWriteError
	return errors.As(err, &ae)
}

func IsRuleNotFound(err error) bool {
	return errors.Is(err, ErrRuleNotFound)
}

func IsRecordNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}

func IsSnapshotUnavailable(err error) bool {
	return errors.Is(err, ErrSnapshotUnavailable)
}

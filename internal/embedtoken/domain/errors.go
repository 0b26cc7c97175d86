package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrMissingTarget      = errors.New("missing_target")
	ErrPlanNotAllowed     = errors.New("plan_not_allowed")
	ErrProgramNotFound    = errors.New("program_not_found")
	ErrPartnerNotEnrolled = errors.New("partner_not_enrolled")
	ErrRateLimited        = errors.New("rate_limited")
	ErrInvalidToken       = errors.New("invalid_token")
)

// PublicError carries a message that is safe to return to API callers.
type PublicError struct {
	Err     error
	Message string
}

func (e *PublicError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err, e.Message)
}

func (e *PublicError) Unwrap() error {
	return e.Err
}

func publicf(err error, format string, args ...any) error {
	return &PublicError{Err: err, Message: fmt.Sprintf(format, args...)}
}

func MissingTargetError() error {
	return publicf(ErrMissingTarget, "You must provide either partnerId, tenantId, or partner.")
}

func ProgramNotFoundError(programID string) error {
	return publicf(ErrProgramNotFound, "Program with ID %s not found.", programID)
}

func PartnerNotEnrolledError(partnerID, programID string) error {
	return publicf(ErrPartnerNotEnrolled, "Partner with ID %s is not enrolled in this program (%s).", partnerID, programID)
}

func PlanNotAllowedError(plan string) error {
	return publicf(ErrPlanNotAllowed, "Embed tokens are not available on the %s plan.", plan)
}

func InvalidRequestError(message string) error {
	return publicf(ErrInvalidRequest, "%s", message)
}

// RateLimitError reports how long the caller should wait before retrying.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimited, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

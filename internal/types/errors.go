package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. The prefix of each code names its category and is
// what Category and the retry classifiers switch on.
const (
	// Validation
	ErrCodeValidationMissingField   ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidSeason  ErrorCode = "validation_invalid_season_dates"
	ErrCodeValidationInvalidCountry ErrorCode = "validation_invalid_country"
	ErrCodeValidationInvalidPayload ErrorCode = "validation_invalid_job_payload"

	// Permission
	ErrCodePermissionUnqualified ErrorCode = "permission_user_unqualified"
	ErrCodePermissionBanned      ErrorCode = "permission_user_banned"
	ErrCodePermissionToken       ErrorCode = "permission_token_invalid"

	// Not Found
	ErrCodeNotFoundSeason      ErrorCode = "not_found_season"
	ErrCodeNotFoundUser        ErrorCode = "not_found_user"
	ErrCodeNotFoundParticipant ErrorCode = "not_found_participant"
	ErrCodeNotFoundReceiver    ErrorCode = "not_found_receiver"
	ErrCodeNotFoundSanta       ErrorCode = "not_found_santa"
	ErrCodeNotFoundJob         ErrorCode = "not_found_job"

	// Conflict
	ErrCodeConflictRegistrationClosed ErrorCode = "conflict_registration_closed"
	ErrCodeConflictSeasonClosed       ErrorCode = "conflict_season_closed"
	ErrCodeConflictSeasonArchived     ErrorCode = "conflict_season_archived"
	ErrCodeConflictAlreadyEnrolled    ErrorCode = "conflict_already_enrolled"
	ErrCodeConflictAlreadyShipped     ErrorCode = "conflict_already_shipped"
	ErrCodeConflictAlreadyDelivered   ErrorCode = "conflict_already_delivered"
	ErrCodeConflictNotShipped         ErrorCode = "conflict_gift_not_shipped"
	ErrCodeConflictAlreadyBanned      ErrorCode = "conflict_already_banned"
	ErrCodeConflictNotBanned          ErrorCode = "conflict_not_banned"
	ErrCodeConflictSelfBan            ErrorCode = "conflict_self_ban"
	ErrCodeConflictEmailsAllowed      ErrorCode = "conflict_emails_already_allowed"
	ErrCodeConflictEmailsForbidden    ErrorCode = "conflict_emails_already_forbidden"
	ErrCodeConflictRingTooSmall       ErrorCode = "conflict_ring_too_small"

	// Internal/Upstream
	ErrCodeInternalDB            ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected    ErrorCode = "internal_unexpected_error"
	ErrCodeInternalInvariant     ErrorCode = "internal_invariant_violation"
	ErrCodeUpstreamUnavailable   ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited   ErrorCode = "upstream_rate_limited"
	ErrCodeUpstreamUnauthorized  ErrorCode = "upstream_unauthorized"
	ErrCodeUpstreamRejected      ErrorCode = "upstream_request_rejected"
	ErrCodeUpstreamEmailProvider ErrorCode = "upstream_email_provider_unavailable"

	// Delivery
	ErrCodeEmailBlocked ErrorCode = "email_blocked"
)

// Category returns the prefix of the code (e.g. "conflict", "upstream").
// Codes without a recognised prefix report "internal".
func (c ErrorCode) Category() string {
	s := string(c)
	for _, prefix := range []string{"validation", "permission", "not_found", "conflict", "upstream", "internal"} {
		if strings.HasPrefix(s, prefix+"_") {
			return prefix
		}
	}
	if c == ErrCodeEmailBlocked {
		return "delivery"
	}
	return "internal"
}

// AppError is the standard application error type. Domain, repository and
// vendor adapter errors are all expressed as AppError so that callers can
// classify them by code with errors.As.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// HasCode reports whether any AppError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	for errors.As(err, &appErr) {
		if appErr.Code == code {
			return true
		}
		err = appErr.Err
	}
	return false
}

package taskqueue

import (
	"errors"
	"fmt"

	"giftclub/internal/types"
)

// ErrRejected marks a permanent failure: the job is dropped without retry.
var ErrRejected = errors.New("job rejected")

// Reject wraps err as a permanent failure.
func Reject(err error) error {
	if err == nil {
		return ErrRejected
	}
	return fmt.Errorf("%w: %w", ErrRejected, err)
}

// Rejectf formats a permanent failure.
func Rejectf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrRejected, fmt.Sprintf(format, args...))
}

// permanentCodes are AppError codes that can never succeed on retry.
var permanentCodes = []types.ErrorCode{
	types.ErrCodeUpstreamUnauthorized,
	types.ErrCodeUpstreamRejected,
	types.ErrCodeEmailBlocked,
	types.ErrCodeValidationInvalidPayload,
	types.ErrCodeNotFoundUser,
	types.ErrCodePermissionToken,
}

// IsPermanent reports whether err must not be retried.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRejected) {
		return true
	}
	for _, code := range permanentCodes {
		if types.HasCode(err, code) {
			return true
		}
	}
	return false
}

package loyalty

import (
	"errors"

	pkgerrors "github.com/angelmondragon/stampcard-backend/pkg/errors"
)

// Failure kinds surfaced by the ledger and redemption engine. Services wrap
// them in pkg/errors values so both errors.Is and the HTTP mapper apply.
var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyRedeemed  = errors.New("code already redeemed")
	ErrExpired          = errors.New("code expired")
	ErrLimitReached     = errors.New("stamp limit reached")
	ErrValidation       = errors.New("validation failed")
	ErrPermissionDenied = errors.New("permission denied")
)

// Reason is the tagged failure reason returned to API callers.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonNotFound         Reason = "not_found"
	ReasonAlreadyRedeemed  Reason = "already_redeemed"
	ReasonExpired          Reason = "expired"
	ReasonLimitReached     Reason = "limit_reached"
	ReasonValidation       Reason = "validation"
	ReasonPermissionDenied Reason = "permission_denied"
)

// ReasonOf classifies err into one of the loyalty failure reasons.
func ReasonOf(err error) Reason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, ErrAlreadyRedeemed):
		return ReasonAlreadyRedeemed
	case errors.Is(err, ErrExpired):
		return ReasonExpired
	case errors.Is(err, ErrLimitReached):
		return ReasonLimitReached
	case errors.Is(err, ErrValidation):
		return ReasonValidation
	case errors.Is(err, ErrPermissionDenied):
		return ReasonPermissionDenied
	default:
		return ReasonNone
	}
}

func notFoundError(message string) error {
	return pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrNotFound, message)
}

func validationError(message string) error {
	return pkgerrors.Wrap(pkgerrors.CodeValidation, ErrValidation, message)
}

func permissionError(message string) error {
	return pkgerrors.Wrap(pkgerrors.CodeForbidden, ErrPermissionDenied, message)
}

func alreadyRedeemedError() error {
	return pkgerrors.Wrap(pkgerrors.CodeStateConflict, ErrAlreadyRedeemed, "code already redeemed").
		WithDetails(map[string]any{"reason": ReasonAlreadyRedeemed})
}

func expiredError() error {
	return pkgerrors.Wrap(pkgerrors.CodeStateConflict, ErrExpired, "code expired").
		WithDetails(map[string]any{"reason": ReasonExpired})
}

func limitReachedError(maxStamps int) error {
	return pkgerrors.Wrap(pkgerrors.CodeStateConflict, ErrLimitReached, "stamp limit reached").
		WithDetails(map[string]any{"reason": ReasonLimitReached, "max_stamps": maxStamps})
}

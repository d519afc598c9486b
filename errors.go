package accounts

import (
	goerrors "github.com/goliatone/go-errors"
)

// Text codes surfaced to API clients alongside the HTTP status. Clients
// branch on these rather than on message strings.
const (
	TextCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	TextCodeTokenExpired         = "TOKEN_EXPIRED"
	TextCodeTokenMalformed       = "TOKEN_MALFORMED"
	TextCodeAccountDeactivated   = "ACCOUNT_DEACTIVATED"
	TextCodeVerificationRequired = "VERIFICATION_REQUIRED"
	TextCodeDuplicateEmail       = "DUPLICATE_EMAIL"
	TextCodeReactivationRequired = "REACTIVATION_REQUIRED"
	TextCodeCredentialInvalid    = "CREDENTIAL_INVALID"
	TextCodeCredentialExpired    = "CREDENTIAL_EXPIRED"
	TextCodeStaleTransition      = "STALE_TRANSITION"
)

var (
	// ErrInvalidCredentials covers both unknown email and wrong password so
	// login failures cannot be used to probe for account existence.
	ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
				WithTextCode(TextCodeInvalidCredentials).
				WithCode(goerrors.CodeUnauthorized)

	// ErrTokenExpired is returned when a session token is past its expiry.
	ErrTokenExpired = goerrors.New("session token expired", goerrors.CategoryAuth).
			WithTextCode(TextCodeTokenExpired).
			WithCode(goerrors.CodeUnauthorized)

	// ErrTokenMalformed is returned for session tokens that fail to parse
	// or carry an invalid signature.
	ErrTokenMalformed = goerrors.New("invalid session token", goerrors.CategoryAuth).
				WithTextCode(TextCodeTokenMalformed).
				WithCode(goerrors.CodeUnauthorized)

	// ErrAccountDeactivated rejects requests from deactivated accounts.
	ErrAccountDeactivated = goerrors.New("account is deactivated", goerrors.CategoryAuthz).
				WithTextCode(TextCodeAccountDeactivated).
				WithCode(goerrors.CodeForbidden)

	// ErrVerificationRequired rejects requests from accounts that have not
	// completed email verification.
	ErrVerificationRequired = goerrors.New("email verification required", goerrors.CategoryAuthz).
				WithTextCode(TextCodeVerificationRequired).
				WithCode(goerrors.CodeForbidden)

	// ErrForbidden rejects authenticated requests that lack the required role.
	ErrForbidden = goerrors.New("insufficient permissions", goerrors.CategoryAuthz).
			WithCode(goerrors.CodeForbidden)

	// ErrDuplicateEmail rejects registration against an address already in use.
	ErrDuplicateEmail = goerrors.New("email already registered", goerrors.CategoryConflict).
				WithTextCode(TextCodeDuplicateEmail).
				WithCode(goerrors.CodeBadRequest)

	// ErrReactivationRequired signals registration against an auto
	// deactivated address. The client should steer the user to the
	// reactivation flow instead of creating a duplicate account.
	ErrReactivationRequired = goerrors.New("account was deactivated due to inactivity", goerrors.CategoryConflict).
				WithTextCode(TextCodeReactivationRequired).
				WithCode(goerrors.CodeConflict)

	// ErrCredentialInvalid covers unknown, already-consumed, and mismatched
	// one-time credentials. The message is intentionally identical to
	// ErrCredentialExpired; the text code differs for server-side logs.
	ErrCredentialInvalid = goerrors.New("invalid or expired token", goerrors.CategoryAuth).
				WithTextCode(TextCodeCredentialInvalid).
				WithCode(goerrors.CodeBadRequest)

	// ErrCredentialExpired is the expired flavor of ErrCredentialInvalid.
	ErrCredentialExpired = goerrors.New("invalid or expired token", goerrors.CategoryAuth).
				WithTextCode(TextCodeCredentialExpired).
				WithCode(goerrors.CodeBadRequest)

	// ErrStaleTransition is returned when a guarded status update matched
	// zero rows because a concurrent writer won the transition.
	ErrStaleTransition = goerrors.New("account state changed concurrently", goerrors.CategoryConflict).
				WithTextCode(TextCodeStaleTransition).
				WithCode(goerrors.CodeConflict)
)

// WrapRepositoryError maps a persistence failure into the package taxonomy,
// preserving not-found semantics.
func WrapRepositoryError(err error, msg string) error {
	if err == nil {
		return nil
	}
	if goerrors.IsNotFound(err) {
		return goerrors.Wrap(err, goerrors.CategoryNotFound, msg).
			WithCode(goerrors.CodeNotFound)
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg).
		WithCode(goerrors.CodeInternal)
}

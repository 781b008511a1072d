package onboarding

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidTransition = errors.New("operation not valid in current state")
	ErrNoLanguages       = errors.New("at least one language is required")
	ErrNoCurrentQuestion = errors.New("no current question")
	ErrInvalidOption     = errors.New("selected option is out of range")
	ErrAnswerRequired    = errors.New("current question has not been answered")
	ErrStaleSession      = errors.New("response belongs to an abandoned session")
	ErrNoFinalizer       = errors.New("no registration finalizer configured")
	ErrTimeExpired       = errors.New("time is up, the test can only be submitted")
)

// FetchError reports that questions could not be loaded. Retryable.
type FetchError struct {
	Languages []string
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to load questions for %s: %v", strings.Join(e.Languages, ","), e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SubmissionError reports that answers could not be scored. The recorded
// answers are kept so the submission can be retried.
type SubmissionError struct {
	SessionID string
	Err       error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("failed to submit answers for session %s: %v", e.SessionID, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// RegistrationErrorKind is the closed set of account-creation failures
type RegistrationErrorKind string

const (
	EmailAlreadyExists       RegistrationErrorKind = "email_already_exists"
	ValidationFailed         RegistrationErrorKind = "validation_failed"
	UnknownRegistrationError RegistrationErrorKind = "unknown"
)

// RegistrationError is the translated failure of the Registration Finalizer
type RegistrationError struct {
	Kind    RegistrationErrorKind
	Message string
	Err     error
}

func (e *RegistrationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("registration failed (%s): %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("registration failed (%s)", e.Kind)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// codedError is implemented by collaborator errors that carry a machine
// readable error code, such as client.APIError
type codedError interface {
	error
	ErrorCode() string
}

// Error codes understood by TranslateRegistrationError
const (
	CodeEmailExists     = "email_exists"
	CodeUsernameExists  = "username_exists"
	CodeValidationError = "validation_error"
	CodeTestRequired    = "test_required"
)

// TranslateRegistrationError converts any error returned by a Finalizer into
// a *RegistrationError. It is the only place registration failures are
// classified.
func TranslateRegistrationError(err error) *RegistrationError {
	if err == nil {
		return nil
	}

	var regErr *RegistrationError
	if errors.As(err, &regErr) {
		return regErr
	}

	var coded codedError
	if errors.As(err, &coded) {
		switch coded.ErrorCode() {
		case CodeEmailExists:
			return &RegistrationError{Kind: EmailAlreadyExists, Message: "email is already registered", Err: err}
		case CodeUsernameExists, CodeValidationError, CodeTestRequired:
			return &RegistrationError{Kind: ValidationFailed, Message: coded.Error(), Err: err}
		}
	}

	return &RegistrationError{Kind: UnknownRegistrationError, Message: err.Error(), Err: err}
}

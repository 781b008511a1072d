package proficiency

import "errors"

var (
	ErrNotFound        = errors.New("question not found")
	ErrSessionNotFound = errors.New("test session not found")
	ErrValidation      = errors.New("validation failed")
	ErrDuplicate       = errors.New("question already exists")
	ErrSessionReused   = errors.New("test session has already been submitted")
	ErrSessionLocked   = errors.New("test session submission already in progress")
	ErrNoQuestionsSet  = errors.New("no questions were answered")
)

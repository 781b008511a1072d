package onboarding

import (
	"github.com/wimarka/lakra/internal/models"
)

// State is the controller's position in the onboarding flow
type State string

const (
	StateNotStarted           State = "not_started"
	StateLoading              State = "loading"
	StateInProgress           State = "in_progress"
	StateSubmitting           State = "submitting"
	StatePassed               State = "passed"
	StateFailed               State = "failed"
	StateNoQuestionsAvailable State = "no_questions_available"
	StateRegistered           State = "registered"
)

// CanStart reports whether a new attempt may begin from s
func (s State) CanStart() bool {
	return s == StateNotStarted || s == StateFailed
}

// Terminal reports whether no further transitions are possible
func (s State) Terminal() bool {
	return s == StateRegistered
}

// TestSession is the client-side bundle of one attempt
type TestSession struct {
	SessionID         string
	Languages         []string
	Questions         []models.ProficiencyQuestion
	Answers           *Ledger
	Index             int
	TimeRemaining     int
	Started           bool
	LoadedLanguageKey string
}

func newTestSession() TestSession {
	return TestSession{
		Answers:       NewLedger(),
		TimeRemaining: models.TimeBudgetSeconds,
	}
}

// Snapshot is a read-only copy of the controller state for rendering
type Snapshot struct {
	State           State
	SessionID       string
	Languages       []string
	QuestionCount   int
	Index           int
	Current         *models.ProficiencyQuestion
	Answered        int
	CurrentAnswer   *models.UserAnswer
	TimeRemaining   int
	Verdict         *models.Verdict
	Result          *models.TestResult
	Account         *models.AuthResponse
	RegistrationErr *RegistrationError
	LastErr         error
}

// Progress returns the fraction of questions answered in [0, 1]
func (s Snapshot) Progress() float64 {
	if s.QuestionCount == 0 {
		return 0
	}
	return float64(s.Answered) / float64(s.QuestionCount)
}

// IsLast reports whether the current question is the final one
func (s Snapshot) IsLast() bool {
	return s.QuestionCount > 0 && s.Index == s.QuestionCount-1
}

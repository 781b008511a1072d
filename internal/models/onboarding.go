package models

import (
	"time"

	"github.com/google/uuid"
)

// Onboarding policy. These are fixed product rules, not deployment settings.
const (
	// PassThreshold is the minimum percentage score that passes the test
	PassThreshold = 70.0

	// TimeBudgetSeconds is the time allowed for one test session (45 minutes)
	TimeBudgetSeconds = 45 * 60

	// Unanswered marks a question the candidate never answered
	Unanswered = -1
)

// Passed applies the pass threshold to a percentage score
func Passed(score float64) bool {
	return score >= PassThreshold
}

// UserAnswer is the candidate's latest selection for one question
type UserAnswer struct {
	QuestionID     int  `json:"question_id"`
	SelectedAnswer int  `json:"selected_answer"`
	IsCorrect      bool `json:"is_correct"`
}

// AnswerSubmission is one answer as sent to the scoring endpoint
type AnswerSubmission struct {
	QuestionID     int    `json:"question_id"`
	SelectedAnswer int    `json:"selected_answer"`
	TestSessionID  string `json:"test_session_id"`
}

// SubmitAnswersRequest is the body of the submit-answers call
type SubmitAnswersRequest struct {
	Answers       []AnswerSubmission `json:"answers"`
	TestSessionID string             `json:"test_session_id"`
	Languages     []string           `json:"languages"`
}

// LanguageResult is the per-language slice of a test result
type LanguageResult struct {
	Total   int     `json:"total"`
	Correct int     `json:"correct"`
	Score   float64 `json:"score"`
}

// TestResult is the verdict returned by the scoring endpoint
type TestResult struct {
	TotalQuestions      int                       `json:"total_questions"`
	CorrectAnswers      int                       `json:"correct_answers"`
	Score               float64                   `json:"score"`
	Passed              bool                      `json:"passed"`
	QuestionsByLanguage map[string]LanguageResult `json:"questions_by_language"`
	SessionID           string                    `json:"session_id"`
}

// Verdict is the pass/fail outcome the controller branches on
type Verdict struct {
	Passed bool    `json:"passed"`
	Score  float64 `json:"score"`
}

// Verdict extracts the pass/fail outcome from a full result
func (r *TestResult) Verdict() Verdict {
	return Verdict{Passed: r.Passed, Score: r.Score}
}

// TestSession is the server-side record of one scored test attempt
type TestSession struct {
	ID             string     `json:"id"`
	UserID         *string    `json:"user_id,omitempty"`
	Languages      []string   `json:"languages"`
	TotalQuestions int        `json:"total_questions"`
	CorrectAnswers int        `json:"correct_answers"`
	Score          float64    `json:"score"`
	Passed         bool       `json:"passed"`
	Consumed       bool       `json:"consumed"`
	CreatedAt      time.Time  `json:"created_at"`
	ConsumedAt     *time.Time `json:"consumed_at,omitempty"`
}

// IsUsableForRegistration reports whether the session can back an account
func (s *TestSession) IsUsableForRegistration() bool {
	return s.Passed && !s.Consumed && s.UserID == nil
}

// StoredAnswer is a persisted answer row
type StoredAnswer struct {
	QuestionID     int       `json:"question_id"`
	SelectedAnswer int       `json:"selected_answer"`
	IsCorrect      bool      `json:"is_correct"`
	TestSessionID  string    `json:"test_session_id"`
	AnsweredAt     time.Time `json:"answered_at"`
}

// GenerateSessionID creates an opaque, process-unique test session id
func GenerateSessionID() string {
	return "test_" + uuid.NewString()
}

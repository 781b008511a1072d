package onboarding

import (
	"github.com/wimarka/lakra/internal/models"
)

// Ledger maps question id to the candidate's latest answer. A later answer
// for the same question replaces the earlier one.
type Ledger struct {
	answers map[int]models.UserAnswer
}

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	return &Ledger{answers: make(map[int]models.UserAnswer)}
}

// Record upserts the answer for q and returns it
func (l *Ledger) Record(q *models.ProficiencyQuestion, selected int) models.UserAnswer {
	a := models.UserAnswer{
		QuestionID:     q.ID,
		SelectedAnswer: selected,
		IsCorrect:      q.IsCorrect(selected),
	}
	l.answers[q.ID] = a
	return a
}

// Get returns the answer recorded for a question id
func (l *Ledger) Get(questionID int) (models.UserAnswer, bool) {
	a, ok := l.answers[questionID]
	return a, ok
}

// Len returns the number of answered questions
func (l *Ledger) Len() int {
	return len(l.answers)
}

// CorrectCount returns the number of correct answers
func (l *Ledger) CorrectCount() int {
	n := 0
	for _, a := range l.answers {
		if a.IsCorrect {
			n++
		}
	}
	return n
}

// Answers returns the recorded answers in question order
func (l *Ledger) Answers(questions []models.ProficiencyQuestion) []models.UserAnswer {
	result := make([]models.UserAnswer, 0, len(l.answers))
	for _, q := range questions {
		if a, ok := l.answers[q.ID]; ok {
			result = append(result, a)
		}
	}
	return result
}

// Submissions builds the scoring payload, one entry per question in order.
// Unanswered questions are sent as models.Unanswered so the scorer counts them.
func (l *Ledger) Submissions(questions []models.ProficiencyQuestion, sessionID string) []models.AnswerSubmission {
	result := make([]models.AnswerSubmission, 0, len(questions))
	for _, q := range questions {
		selected := models.Unanswered
		if a, ok := l.answers[q.ID]; ok {
			selected = a.SelectedAnswer
		}
		result = append(result, models.AnswerSubmission{
			QuestionID:     q.ID,
			SelectedAnswer: selected,
			TestSessionID:  sessionID,
		})
	}
	return result
}

// Reset discards every answer
func (l *Ledger) Reset() {
	l.answers = make(map[int]models.UserAnswer)
}

// Score returns 100 * correct / total for the given question set, or 0 when
// there are no questions
func Score(questions []models.ProficiencyQuestion, ledger *Ledger) float64 {
	if len(questions) == 0 {
		return 0
	}
	correct := 0
	for _, q := range questions {
		if a, ok := ledger.Get(q.ID); ok && a.IsCorrect {
			correct++
		}
	}
	return 100 * float64(correct) / float64(len(questions))
}

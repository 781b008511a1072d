package proficiency

import (
	"fmt"

	"github.com/wimarka/lakra/internal/models"
)

// gradedAnswer is one distinct answer after de-duplication
type gradedAnswer struct {
	question *models.ProficiencyQuestion
	selected int
	correct  bool
}

// dedupeAnswers keeps the last selection per question id, in order of first
// appearance
func dedupeAnswers(answers []models.AnswerSubmission) ([]int, map[int]int) {
	order := make([]int, 0, len(answers))
	latest := make(map[int]int, len(answers))
	for _, a := range answers {
		if _, ok := latest[a.QuestionID]; !ok {
			order = append(order, a.QuestionID)
		}
		latest[a.QuestionID] = a.SelectedAnswer
	}
	return order, latest
}

// grade scores distinct answers against their questions. Every answered id
// must exist in questions. Each requested language gets a breakdown entry,
// even when none of its questions were answered.
func grade(answers []models.AnswerSubmission, questions map[int]*models.ProficiencyQuestion, languages []string) ([]gradedAnswer, *models.TestResult, error) {
	order, latest := dedupeAnswers(answers)
	if len(order) == 0 {
		return nil, nil, ErrNoQuestionsSet
	}

	graded := make([]gradedAnswer, 0, len(order))
	byLanguage := make(map[string]models.LanguageResult)
	for _, lang := range models.NormalizeLanguages(languages) {
		byLanguage[lang] = models.LanguageResult{}
	}
	correct := 0

	for _, id := range order {
		q, ok := questions[id]
		if !ok {
			return nil, nil, fmt.Errorf("%w: unknown question id %d", ErrValidation, id)
		}

		selected := latest[id]
		isCorrect := q.IsCorrect(selected)
		graded = append(graded, gradedAnswer{question: q, selected: selected, correct: isCorrect})

		lang := models.NormalizeLanguage(q.Language)
		lr := byLanguage[lang]
		lr.Total++
		if isCorrect {
			lr.Correct++
			correct++
		}
		byLanguage[lang] = lr
	}

	for lang, lr := range byLanguage {
		lr.Score = percent(lr.Correct, lr.Total)
		byLanguage[lang] = lr
	}

	score := percent(correct, len(order))
	result := &models.TestResult{
		TotalQuestions:      len(order),
		CorrectAnswers:      correct,
		Score:               score,
		Passed:              models.Passed(score),
		QuestionsByLanguage: byLanguage,
	}

	return graded, result, nil
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(100*n) / float64(total)
}

// gradedLanguages returns the languages with at least one graded answer
func gradedLanguages(byLanguage map[string]models.LanguageResult) []string {
	langs := make([]string, 0, len(byLanguage))
	for lang, lr := range byLanguage {
		if lr.Total > 0 {
			langs = append(langs, lang)
		}
	}
	return models.NormalizeLanguages(langs)
}

package models

import (
	"fmt"
	"strings"
	"time"
)

// QuestionType classifies what a proficiency question tests
type QuestionType string

const (
	TypeGrammar       QuestionType = "grammar"
	TypeVocabulary    QuestionType = "vocabulary"
	TypeTranslation   QuestionType = "translation"
	TypeCultural      QuestionType = "cultural"
	TypeComprehension QuestionType = "comprehension"
)

// Valid reports whether t is one of the known question types
func (t QuestionType) Valid() bool {
	switch t {
	case TypeGrammar, TypeVocabulary, TypeTranslation, TypeCultural, TypeComprehension:
		return true
	}
	return false
}

// Difficulty grades a proficiency question
type Difficulty string

const (
	DifficultyBasic        Difficulty = "basic"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// Valid reports whether d is one of the known difficulty levels
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyBasic, DifficultyIntermediate, DifficultyAdvanced:
		return true
	}
	return false
}

// ProficiencyQuestion is a single multiple-choice item of the onboarding test.
// It is immutable from the test taker's point of view for the life of a session.
type ProficiencyQuestion struct {
	ID            int          `json:"id"`
	Language      string       `json:"language"`
	Type          QuestionType `json:"type"`
	Question      string       `json:"question"`
	Options       []string     `json:"options"`
	CorrectAnswer int          `json:"correct_answer"`
	Explanation   string       `json:"explanation"`
	Difficulty    Difficulty   `json:"difficulty"`
	IsActive      bool         `json:"is_active"`
	CreatedAt     time.Time    `json:"created_at,omitempty"`
	UpdatedAt     time.Time    `json:"updated_at,omitempty"`
	CreatedBy     *string      `json:"created_by,omitempty"`
}

// IsCorrect reports whether selected is the correct option index
func (q *ProficiencyQuestion) IsCorrect(selected int) bool {
	return selected == q.CorrectAnswer
}

// Validate checks the fields an admin must supply
func (q *ProficiencyQuestion) Validate() error {
	if strings.TrimSpace(q.Language) == "" {
		return fmt.Errorf("language is required")
	}
	if !q.Type.Valid() {
		return fmt.Errorf("invalid question type: %q", q.Type)
	}
	if !q.Difficulty.Valid() {
		return fmt.Errorf("invalid difficulty: %q", q.Difficulty)
	}
	if strings.TrimSpace(q.Question) == "" {
		return fmt.Errorf("question text is required")
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("at least 2 options are required, got %d", len(q.Options))
	}
	if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
		return fmt.Errorf("correct_answer %d is out of range [0, %d)", q.CorrectAnswer, len(q.Options))
	}
	return nil
}

// QuestionFilters narrows admin question listings
type QuestionFilters struct {
	Language   string
	Type       QuestionType
	Difficulty Difficulty
	ActiveOnly bool
	Limit      int
	Offset     int
}

// QuestionsRequest is the body of the questions-by-language call
type QuestionsRequest struct {
	Languages []string `json:"languages"`
}

// LanguagesRequest carries a user's language list
type LanguagesRequest struct {
	Languages []string `json:"languages"`
}

// QuestionUpdate carries a partial admin edit; nil fields are left unchanged
type QuestionUpdate struct {
	Language      *string       `json:"language,omitempty"`
	Type          *QuestionType `json:"type,omitempty"`
	Question      *string       `json:"question,omitempty"`
	Options       []string      `json:"options,omitempty"`
	CorrectAnswer *int          `json:"correct_answer,omitempty"`
	Explanation   *string       `json:"explanation,omitempty"`
	Difficulty    *Difficulty   `json:"difficulty,omitempty"`
	IsActive      *bool         `json:"is_active,omitempty"`
}

// Apply copies the set fields of u onto q
func (u QuestionUpdate) Apply(q *ProficiencyQuestion) {
	if u.Language != nil {
		q.Language = *u.Language
	}
	if u.Type != nil {
		q.Type = *u.Type
	}
	if u.Question != nil {
		q.Question = *u.Question
	}
	if u.Options != nil {
		q.Options = u.Options
	}
	if u.CorrectAnswer != nil {
		q.CorrectAnswer = *u.CorrectAnswer
	}
	if u.Explanation != nil {
		q.Explanation = *u.Explanation
	}
	if u.Difficulty != nil {
		q.Difficulty = *u.Difficulty
	}
	if u.IsActive != nil {
		q.IsActive = *u.IsActive
	}
}

package proficiency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wimarka/lakra/internal/cache"
	"github.com/wimarka/lakra/internal/models"
	"github.com/wimarka/lakra/internal/storage"
)

// Store is the persistence the manager needs
type Store interface {
	CreateQuestion(ctx context.Context, q *models.ProficiencyQuestion) error
	GetQuestion(ctx context.Context, id int) (*models.ProficiencyQuestion, error)
	UpdateQuestion(ctx context.Context, q *models.ProficiencyQuestion) error
	DeleteQuestion(ctx context.Context, id int) error
	ListQuestions(ctx context.Context, filters models.QuestionFilters) ([]*models.ProficiencyQuestion, error)
	ActiveQuestionsByLanguages(ctx context.Context, languages []string) ([]*models.ProficiencyQuestion, error)
	GetQuestionsByIDs(ctx context.Context, ids []int) (map[int]*models.ProficiencyQuestion, error)
	CountActiveQuestions(ctx context.Context, languages []string) (int, error)
	CreateTestSession(ctx context.Context, s *models.TestSession, answers []models.StoredAnswer) error
	GetTestSession(ctx context.Context, id string) (*models.TestSession, error)
	ListSessionAnswers(ctx context.Context, sessionID string) ([]models.StoredAnswer, error)
	ListUserSessions(ctx context.Context, userID string) ([]*models.TestSession, error)
	UpdateOnboardingStatus(ctx context.Context, userID string, status models.OnboardingStatus, score float64, at time.Time) error
}

// QuestionCache caches active question sets by language key
type QuestionCache interface {
	Get(ctx context.Context, languageKey string) ([]models.ProficiencyQuestion, bool, error)
	Set(ctx context.Context, languageKey string, questions []models.ProficiencyQuestion) error
	InvalidateAll(ctx context.Context) error
}

// Locker serializes submissions per session id
type Locker interface {
	Acquire(ctx context.Context, sessionID string) (func(), error)
}

// Option configures a Manager
type Option func(*Manager)

// WithCache enables the question cache
func WithCache(c QuestionCache) Option {
	return func(m *Manager) { m.cache = c }
}

// WithLocker enables cross-instance submission locking
func WithLocker(l Locker) Option {
	return func(m *Manager) { m.locker = l }
}

// Manager serves proficiency questions, grades submissions and maintains
// the question bank
type Manager struct {
	store  Store
	cache  QuestionCache
	locker Locker
	now    func() time.Time
}

// NewManager creates a manager backed by store
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// QuestionsByLanguages returns the active questions for a language set.
// An empty result is not an error.
func (m *Manager) QuestionsByLanguages(ctx context.Context, languages []string) ([]models.ProficiencyQuestion, error) {
	langs := models.NormalizeLanguages(languages)
	if len(langs) == 0 {
		return nil, fmt.Errorf("%w: at least one language is required", ErrValidation)
	}
	key := models.LanguageKey(langs)

	if m.cache != nil {
		cached, ok, err := m.cache.Get(ctx, key)
		switch {
		case err != nil:
			slog.Warn("question cache read failed", "languages", key, "error", err)
		case ok:
			return cached, nil
		}
	}

	rows, err := m.store.ActiveQuestionsByLanguages(ctx, langs)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}

	questions := make([]models.ProficiencyQuestion, 0, len(rows))
	for _, q := range rows {
		questions = append(questions, *q)
	}

	if m.cache != nil && len(questions) > 0 {
		if err := m.cache.Set(ctx, key, questions); err != nil {
			slog.Warn("question cache write failed", "languages", key, "error", err)
		}
	}

	slog.Debug("questions loaded", "languages", key, "count", len(questions))
	return questions, nil
}

// SubmitAnswers grades a test session. userID is empty for candidates who
// have not registered yet; otherwise the user's onboarding status is updated.
// A session id can be graded only once.
func (m *Manager) SubmitAnswers(ctx context.Context, userID string, req models.SubmitAnswersRequest) (*models.TestResult, error) {
	sessionID := strings.TrimSpace(req.TestSessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: test_session_id is required", ErrValidation)
	}
	if len(req.Answers) == 0 {
		return nil, fmt.Errorf("%w: answers are required", ErrValidation)
	}
	for _, a := range req.Answers {
		if a.TestSessionID != "" && a.TestSessionID != sessionID {
			return nil, fmt.Errorf("%w: answer for question %d belongs to another session", ErrValidation, a.QuestionID)
		}
	}

	if m.locker != nil {
		release, err := m.locker.Acquire(ctx, sessionID)
		if err != nil {
			if errors.Is(err, cache.ErrLocked) {
				return nil, ErrSessionLocked
			}
			return nil, err
		}
		defer release()
	}

	existing, err := m.store.GetTestSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to check session: %w", err)
	}
	if existing != nil {
		return nil, ErrSessionReused
	}

	order, _ := dedupeAnswers(req.Answers)
	questions, err := m.store.GetQuestionsByIDs(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}

	graded, result, err := grade(req.Answers, questions, req.Languages)
	if err != nil {
		return nil, err
	}
	result.SessionID = sessionID

	languages, err := m.coveredLanguages(ctx, req.Languages, result.QuestionsByLanguage)
	if err != nil {
		return nil, err
	}

	now := m.now()
	session := &models.TestSession{
		ID:             sessionID,
		Languages:      languages,
		TotalQuestions: result.TotalQuestions,
		CorrectAnswers: result.CorrectAnswers,
		Score:          result.Score,
		Passed:         result.Passed,
	}
	if userID != "" {
		session.UserID = &userID
	}

	stored := make([]models.StoredAnswer, 0, len(graded))
	for _, g := range graded {
		stored = append(stored, models.StoredAnswer{
			QuestionID:     g.question.ID,
			SelectedAnswer: g.selected,
			IsCorrect:      g.correct,
			TestSessionID:  sessionID,
			AnsweredAt:     now,
		})
	}

	if err := m.store.CreateTestSession(ctx, session, stored); err != nil {
		if errors.Is(err, storage.ErrDuplicateSession) {
			return nil, ErrSessionReused
		}
		return nil, fmt.Errorf("failed to record test session: %w", err)
	}

	if userID != "" {
		status := models.OnboardingFailed
		if result.Passed {
			status = models.OnboardingCompleted
		}
		if err := m.store.UpdateOnboardingStatus(ctx, userID, status, result.Score, now); err != nil {
			return nil, fmt.Errorf("failed to update onboarding status: %w", err)
		}
	}

	slog.Info("test session graded",
		"session_id", sessionID,
		"user_id", userID,
		"score", result.Score,
		"passed", result.Passed,
		"questions", result.TotalQuestions,
	)

	return result, nil
}

// coveredLanguages returns the languages a graded session vouches for: those
// with graded answers, plus requested languages that have no active
// questions to be tested on.
func (m *Manager) coveredLanguages(ctx context.Context, requested []string, byLanguage map[string]models.LanguageResult) ([]string, error) {
	covered := gradedLanguages(byLanguage)
	for _, lang := range models.NormalizeLanguages(requested) {
		if byLanguage[lang].Total > 0 {
			continue
		}
		n, err := m.store.CountActiveQuestions(ctx, []string{lang})
		if err != nil {
			return nil, fmt.Errorf("failed to count questions: %w", err)
		}
		if n == 0 {
			covered = append(covered, lang)
		}
	}
	return models.NormalizeLanguages(covered), nil
}

// SessionReview is a graded session with its recorded answers
type SessionReview struct {
	Session *models.TestSession   `json:"session"`
	Answers []models.StoredAnswer `json:"answers"`
}

// GetSession returns a graded session and its answers for review
func (m *Manager) GetSession(ctx context.Context, id string) (*SessionReview, error) {
	session, err := m.store.GetTestSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	answers, err := m.store.ListSessionAnswers(ctx, id)
	if err != nil {
		return nil, err
	}
	if answers == nil {
		answers = []models.StoredAnswer{}
	}
	return &SessionReview{Session: session, Answers: answers}, nil
}

// UserSessions returns the test history of a user, newest first
func (m *Manager) UserSessions(ctx context.Context, userID string) ([]*models.TestSession, error) {
	sessions, err := m.store.ListUserSessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list test sessions: %w", err)
	}
	if sessions == nil {
		sessions = []*models.TestSession{}
	}
	return sessions, nil
}

// ListQuestions returns questions for the admin view
func (m *Manager) ListQuestions(ctx context.Context, filters models.QuestionFilters) ([]*models.ProficiencyQuestion, error) {
	if filters.Language != "" {
		filters.Language = models.NormalizeLanguage(filters.Language)
	}
	if filters.Limit <= 0 || filters.Limit > 500 {
		filters.Limit = 100
	}
	questions, err := m.store.ListQuestions(ctx, filters)
	if err != nil {
		return nil, err
	}
	if questions == nil {
		questions = []*models.ProficiencyQuestion{}
	}
	return questions, nil
}

// GetQuestion returns a question by id
func (m *Manager) GetQuestion(ctx context.Context, id int) (*models.ProficiencyQuestion, error) {
	q, err := m.store.GetQuestion(ctx, id)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, ErrNotFound
	}
	return q, nil
}

// CreateQuestion validates and stores a new question
func (m *Manager) CreateQuestion(ctx context.Context, q *models.ProficiencyQuestion, createdBy string) (*models.ProficiencyQuestion, error) {
	q.Language = models.NormalizeLanguage(q.Language)
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if createdBy != "" {
		q.CreatedBy = &createdBy
	}

	if err := m.store.CreateQuestion(ctx, q); err != nil {
		if errors.Is(err, storage.ErrDuplicateQuestion) {
			return nil, ErrDuplicate
		}
		return nil, err
	}

	m.InvalidateQuestions(ctx)
	slog.Info("question created", "id", q.ID, "language", q.Language, "created_by", createdBy)
	return q, nil
}

// UpdateQuestion applies a partial edit
func (m *Manager) UpdateQuestion(ctx context.Context, id int, update models.QuestionUpdate) (*models.ProficiencyQuestion, error) {
	q, err := m.GetQuestion(ctx, id)
	if err != nil {
		return nil, err
	}

	update.Apply(q)
	q.Language = models.NormalizeLanguage(q.Language)
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if err := m.store.UpdateQuestion(ctx, q); err != nil {
		if errors.Is(err, storage.ErrDuplicateQuestion) {
			return nil, ErrDuplicate
		}
		return nil, err
	}

	m.InvalidateQuestions(ctx)
	slog.Info("question updated", "id", q.ID)
	return q, nil
}

// DeleteQuestion removes a question
func (m *Manager) DeleteQuestion(ctx context.Context, id int) error {
	if _, err := m.GetQuestion(ctx, id); err != nil {
		return err
	}
	if err := m.store.DeleteQuestion(ctx, id); err != nil {
		return err
	}

	m.InvalidateQuestions(ctx)
	slog.Info("question deleted", "id", id)
	return nil
}

// InvalidateQuestions drops every cached question set. Call it after the
// question bank changes outside the manager, e.g. after seeding.
func (m *Manager) InvalidateQuestions(ctx context.Context) {
	if m.cache == nil {
		return
	}
	if err := m.cache.InvalidateAll(ctx); err != nil {
		slog.Warn("failed to invalidate question cache", "error", err)
	}
}

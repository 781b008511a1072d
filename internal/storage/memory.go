package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wimarka/lakra/internal/models"
)

// MemoryRepository is a process-local Repository for development and tests.
// It enforces the same uniqueness and consumption rules as PostgreSQL.
type MemoryRepository struct {
	mu        sync.RWMutex
	nextID    int
	questions map[int]*models.ProficiencyQuestion
	sessions  map[string]*models.TestSession
	answers   map[string][]models.StoredAnswer
	users     map[string]*models.User
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		questions: make(map[int]*models.ProficiencyQuestion),
		sessions:  make(map[string]*models.TestSession),
		answers:   make(map[string][]models.StoredAnswer),
		users:     make(map[string]*models.User),
	}
}

func copyQuestion(q *models.ProficiencyQuestion) *models.ProficiencyQuestion {
	cp := *q
	cp.Options = append([]string(nil), q.Options...)
	return &cp
}

func (r *MemoryRepository) questionExists(language, text string, exceptID int) bool {
	for id, q := range r.questions {
		if id != exceptID && q.Language == language && q.Question == text {
			return true
		}
	}
	return false
}

func (r *MemoryRepository) CreateQuestion(ctx context.Context, q *models.ProficiencyQuestion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.questionExists(q.Language, q.Question, 0) {
		return ErrDuplicateQuestion
	}

	r.nextID++
	now := time.Now()
	q.ID = r.nextID
	q.CreatedAt = now
	q.UpdatedAt = now
	r.questions[q.ID] = copyQuestion(q)
	return nil
}

func (r *MemoryRepository) SeedQuestion(ctx context.Context, q *models.ProficiencyQuestion) (bool, error) {
	r.mu.RLock()
	exists := r.questionExists(q.Language, q.Question, 0)
	r.mu.RUnlock()
	if exists {
		return false, nil
	}

	cp := copyQuestion(q)
	if err := r.CreateQuestion(ctx, cp); err != nil {
		return false, err
	}
	return true, nil
}

func (r *MemoryRepository) GetQuestion(ctx context.Context, id int) (*models.ProficiencyQuestion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q, ok := r.questions[id]
	if !ok {
		return nil, nil
	}
	return copyQuestion(q), nil
}

func (r *MemoryRepository) UpdateQuestion(ctx context.Context, q *models.ProficiencyQuestion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.questions[q.ID]; !ok {
		return nil
	}
	if r.questionExists(q.Language, q.Question, q.ID) {
		return ErrDuplicateQuestion
	}
	q.UpdatedAt = time.Now()
	r.questions[q.ID] = copyQuestion(q)
	return nil
}

func (r *MemoryRepository) DeleteQuestion(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.questions, id)
	return nil
}

func (r *MemoryRepository) sortedQuestions() []*models.ProficiencyQuestion {
	result := make([]*models.ProficiencyQuestion, 0, len(r.questions))
	for _, q := range r.questions {
		result = append(result, q)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Language != result[j].Language {
			return result[i].Language < result[j].Language
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (r *MemoryRepository) ListQuestions(ctx context.Context, filters models.QuestionFilters) ([]*models.ProficiencyQuestion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*models.ProficiencyQuestion
	for _, q := range r.sortedQuestions() {
		if filters.Language != "" && q.Language != filters.Language {
			continue
		}
		if filters.Type != "" && q.Type != filters.Type {
			continue
		}
		if filters.Difficulty != "" && q.Difficulty != filters.Difficulty {
			continue
		}
		if filters.ActiveOnly && !q.IsActive {
			continue
		}
		result = append(result, copyQuestion(q))
	}

	if filters.Offset > 0 {
		if filters.Offset >= len(result) {
			return nil, nil
		}
		result = result[filters.Offset:]
	}
	if filters.Limit > 0 && len(result) > filters.Limit {
		result = result[:filters.Limit]
	}
	return result, nil
}

func (r *MemoryRepository) ActiveQuestionsByLanguages(ctx context.Context, languages []string) ([]*models.ProficiencyQuestion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*models.ProficiencyQuestion
	sorted := r.sortedQuestions()
	for _, lang := range languages {
		for _, q := range sorted {
			if q.IsActive && q.Language == lang {
				result = append(result, copyQuestion(q))
			}
		}
	}
	return result, nil
}

func (r *MemoryRepository) GetQuestionsByIDs(ctx context.Context, ids []int) (map[int]*models.ProficiencyQuestion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[int]*models.ProficiencyQuestion, len(ids))
	for _, id := range ids {
		if q, ok := r.questions[id]; ok {
			result[id] = copyQuestion(q)
		}
	}
	return result, nil
}

func (r *MemoryRepository) CountActiveQuestions(ctx context.Context, languages []string) (int, error) {
	qs, err := r.ActiveQuestionsByLanguages(ctx, languages)
	return len(qs), err
}

func (r *MemoryRepository) CreateTestSession(ctx context.Context, s *models.TestSession, answers []models.StoredAnswer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.ID]; ok {
		return ErrDuplicateSession
	}

	s.CreatedAt = time.Now()
	cp := *s
	cp.Languages = append([]string(nil), s.Languages...)
	r.sessions[s.ID] = &cp
	r.answers[s.ID] = append([]models.StoredAnswer(nil), answers...)
	return nil
}

func (r *MemoryRepository) GetTestSession(ctx context.Context, id string) (*models.TestSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *MemoryRepository) ListSessionAnswers(ctx context.Context, sessionID string) ([]models.StoredAnswer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.StoredAnswer(nil), r.answers[sessionID]...), nil
}

func (r *MemoryRepository) ListUserSessions(ctx context.Context, userID string) ([]*models.TestSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*models.TestSession
	for _, s := range r.sessions {
		if s.UserID != nil && *s.UserID == userID {
			cp := *s
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (r *MemoryRepository) DeleteOrphanSessions(ctx context.Context, olderThan time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, s := range r.sessions {
		if s.UserID == nil && !s.Consumed && s.CreatedAt.Before(olderThan) {
			delete(r.sessions, id)
			delete(r.answers, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *MemoryRepository) CreateUser(ctx context.Context, u *models.User, testSessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrDuplicateEmail
		}
		if existing.Username == u.Username {
			return ErrDuplicateUsername
		}
	}

	if testSessionID != "" {
		s, ok := r.sessions[testSessionID]
		if !ok || !s.IsUsableForRegistration() {
			return ErrSessionNotUsable
		}
		now := time.Now()
		userID := u.ID
		s.UserID = &userID
		s.Consumed = true
		s.ConsumedAt = &now
	}

	u.CreatedAt = time.Now()
	cp := *u
	cp.Languages = append([]string(nil), u.Languages...)
	r.users[u.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *MemoryRepository) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Email, login) || u.Username == login {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) UpdateOnboardingStatus(ctx context.Context, userID string, status models.OnboardingStatus, score float64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return nil
	}
	u.OnboardingStatus = status
	u.OnboardingScore = &score
	u.OnboardingCompletedAt = &at
	return nil
}

func (r *MemoryRepository) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]*models.User, 0, len(r.users))
	for _, u := range r.users {
		cp := *u
		cp.Languages = append([]string(nil), u.Languages...)
		users = append(users, &cp)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})

	if offset >= len(users) {
		return []*models.User{}, nil
	}
	users = users[offset:]
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func (r *MemoryRepository) SetEvaluator(ctx context.Context, userID string, isEvaluator bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.users[userID]; ok {
		u.IsEvaluator = isEvaluator
	}
	return nil
}

func (r *MemoryRepository) SetUserLanguages(ctx context.Context, userID string, languages []string, preferred string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.users[userID]; ok {
		u.Languages = append([]string(nil), languages...)
		u.PreferredLanguage = preferred
	}
	return nil
}

func (r *MemoryRepository) Ping(ctx context.Context) error { return nil }

func (r *MemoryRepository) Close() error { return nil }

var (
	_ Repository = (*MemoryRepository)(nil)
	_ Repository = (*PostgresRepository)(nil)
)

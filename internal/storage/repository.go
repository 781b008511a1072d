package storage

import (
	"context"
	"time"

	"github.com/wimarka/lakra/internal/models"
)

// Repository defines the interface for onboarding persistence.
// Getters return nil, nil when the record does not exist.
type Repository interface {
	// Questions
	CreateQuestion(ctx context.Context, q *models.ProficiencyQuestion) error
	SeedQuestion(ctx context.Context, q *models.ProficiencyQuestion) (bool, error)
	GetQuestion(ctx context.Context, id int) (*models.ProficiencyQuestion, error)
	UpdateQuestion(ctx context.Context, q *models.ProficiencyQuestion) error
	DeleteQuestion(ctx context.Context, id int) error
	ListQuestions(ctx context.Context, filters models.QuestionFilters) ([]*models.ProficiencyQuestion, error)
	ActiveQuestionsByLanguages(ctx context.Context, languages []string) ([]*models.ProficiencyQuestion, error)
	GetQuestionsByIDs(ctx context.Context, ids []int) (map[int]*models.ProficiencyQuestion, error)
	CountActiveQuestions(ctx context.Context, languages []string) (int, error)

	// Test sessions
	CreateTestSession(ctx context.Context, s *models.TestSession, answers []models.StoredAnswer) error
	GetTestSession(ctx context.Context, id string) (*models.TestSession, error)
	ListSessionAnswers(ctx context.Context, sessionID string) ([]models.StoredAnswer, error)
	ListUserSessions(ctx context.Context, userID string) ([]*models.TestSession, error)
	DeleteOrphanSessions(ctx context.Context, olderThan time.Time) (int64, error)

	// Users
	CreateUser(ctx context.Context, u *models.User, testSessionID string) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	UpdateOnboardingStatus(ctx context.Context, userID string, status models.OnboardingStatus, score float64, at time.Time) error
	ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error)
	SetEvaluator(ctx context.Context, userID string, isEvaluator bool) error
	SetUserLanguages(ctx context.Context, userID string, languages []string, preferred string) error

	// Health
	Ping(ctx context.Context) error
	Close() error
}

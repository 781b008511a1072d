package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/wimarka/lakra/internal/auth"
	"github.com/wimarka/lakra/internal/models"
	"github.com/wimarka/lakra/internal/storage"
)

var (
	ErrEmailExists        = errors.New("email already registered")
	ErrUsernameExists     = errors.New("username already taken")
	ErrTestRequired       = errors.New("a passed proficiency test is required")
	ErrInvalidCredentials = errors.New("invalid login or password")
	ErrInactive           = errors.New("account is disabled")
	ErrNotFound           = errors.New("user not found")
)

// ValidationError lists every failing registration field
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Store is the persistence the service needs
type Store interface {
	CreateUser(ctx context.Context, u *models.User, testSessionID string) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	GetTestSession(ctx context.Context, id string) (*models.TestSession, error)
	CountActiveQuestions(ctx context.Context, languages []string) (int, error)
	ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error)
	SetEvaluator(ctx context.Context, userID string, isEvaluator bool) error
	SetUserLanguages(ctx context.Context, userID string, languages []string, preferred string) error
}

// TokenIssuer signs access tokens
type TokenIssuer interface {
	Issue(userID, role string) (string, error)
}

// Service creates and authenticates accounts
type Service struct {
	store  Store
	tokens TokenIssuer
}

// NewService creates an account service
func NewService(store Store, tokens TokenIssuer) *Service {
	return &Service{store: store, tokens: tokens}
}

// Register creates an account. Annotators must present a passed, unused test
// session covering their languages, or skip_test when no questions exist for
// those languages. Evaluators register without a test.
func (s *Service) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	req.Email = strings.TrimSpace(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if req.UserType == "" {
		req.UserType = models.UserTypeAnnotator
		if req.IsEvaluator {
			req.UserType = models.UserTypeEvaluator
		}
	}

	if fields := req.Validate(); len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	languages := models.NormalizeLanguages(req.Languages)
	preferred := models.NormalizeLanguage(req.PreferredLanguage)
	for _, l := range req.Languages {
		if preferred != "" {
			break
		}
		preferred = models.NormalizeLanguage(l)
	}

	if exists, err := s.store.EmailExists(ctx, req.Email); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrEmailExists
	}
	if exists, err := s.store.UsernameExists(ctx, req.Username); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrUsernameExists
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:                uuid.NewString(),
		Email:             req.Email,
		Username:          req.Username,
		HashedPassword:    hash,
		FirstName:         req.FirstName,
		LastName:          req.LastName,
		PreferredLanguage: preferred,
		Languages:         languages,
		IsActive:          true,
		IsEvaluator:       req.UserType == models.UserTypeEvaluator,
		OnboardingStatus:  models.OnboardingPending,
	}

	sessionID, err := s.applyOnboarding(ctx, &req, user, languages)
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateUser(ctx, user, sessionID); err != nil {
		switch {
		case errors.Is(err, storage.ErrDuplicateEmail):
			return nil, ErrEmailExists
		case errors.Is(err, storage.ErrDuplicateUsername):
			return nil, ErrUsernameExists
		case errors.Is(err, storage.ErrSessionNotUsable):
			return nil, fmt.Errorf("%w: test session already used", ErrTestRequired)
		}
		return nil, err
	}

	slog.Info("user registered",
		"user_id", user.ID,
		"user_type", req.UserType,
		"languages", strings.Join(languages, ","),
		"test_session_id", sessionID,
		"skip_test", req.SkipTest,
	)

	return s.authResponse(user)
}

// applyOnboarding sets the onboarding fields on user and returns the test
// session id to consume, if any. Evaluators and bypassed annotators stay
// pending.
func (s *Service) applyOnboarding(ctx context.Context, req *models.RegisterRequest, user *models.User, languages []string) (string, error) {
	if user.IsEvaluator {
		return "", nil
	}

	if req.TestSessionID != "" {
		session, err := s.store.GetTestSession(ctx, req.TestSessionID)
		if err != nil {
			return "", err
		}
		if session == nil || !session.IsUsableForRegistration() {
			return "", fmt.Errorf("%w: test session is not a passed, unused session", ErrTestRequired)
		}
		if !models.CoversLanguages(session.Languages, languages) {
			return "", fmt.Errorf("%w: test session does not cover %s", ErrTestRequired, strings.Join(languages, ","))
		}

		score := session.Score
		completedAt := session.CreatedAt
		user.OnboardingStatus = models.OnboardingCompleted
		user.OnboardingScore = &score
		user.OnboardingCompletedAt = &completedAt
		return session.ID, nil
	}

	if req.SkipTest {
		count, err := s.store.CountActiveQuestions(ctx, languages)
		if err != nil {
			return "", err
		}
		if count > 0 {
			return "", fmt.Errorf("%w: questions exist for the selected languages", ErrTestRequired)
		}
		return "", nil
	}

	return "", ErrTestRequired
}

// Login authenticates by email or username
func (s *Service) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	login := strings.TrimSpace(req.Login)
	if login == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByLogin(ctx, login)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if err := auth.CheckPassword(user.HashedPassword, req.Password); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrInactive
	}

	return s.authResponse(user)
}

// CurrentUser returns the account behind an authenticated request
func (s *Service) CurrentUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	return user, nil
}

// ListUsers pages through all accounts for the admin view
func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListUsers(ctx, limit, offset)
}

// ToggleEvaluator flips the evaluator role of a user. The new role applies
// to tokens issued after the change.
func (s *Service) ToggleEvaluator(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.CurrentUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	user.IsEvaluator = !user.IsEvaluator
	if err := s.store.SetEvaluator(ctx, user.ID, user.IsEvaluator); err != nil {
		return nil, err
	}

	slog.Info("evaluator role changed", "user_id", user.ID, "is_evaluator", user.IsEvaluator)
	return user, nil
}

// UserLanguages returns the languages a user works in
func (s *Service) UserLanguages(ctx context.Context, userID string) ([]string, error) {
	user, err := s.CurrentUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Languages == nil {
		return []string{}, nil
	}
	return user.Languages, nil
}

// UpdateLanguages replaces a user's languages. The first language given
// becomes the preferred one.
func (s *Service) UpdateLanguages(ctx context.Context, userID string, languages []string) ([]string, error) {
	normalized := models.NormalizeLanguages(languages)
	if len(normalized) == 0 {
		return nil, &ValidationError{Fields: map[string]string{"languages": "Please select at least one language"}}
	}

	var preferred string
	for _, l := range languages {
		if preferred = models.NormalizeLanguage(l); preferred != "" {
			break
		}
	}

	if _, err := s.CurrentUser(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.store.SetUserLanguages(ctx, userID, normalized, preferred); err != nil {
		return nil, err
	}

	slog.Info("user languages updated", "user_id", userID, "languages", strings.Join(normalized, ","))
	return normalized, nil
}

func (s *Service) authResponse(user *models.User) (*models.AuthResponse, error) {
	token, err := s.tokens.Issue(user.ID, user.Role())
	if err != nil {
		return nil, err
	}
	return &models.AuthResponse{
		User:        user,
		AccessToken: token,
		TokenType:   auth.TokenType,
	}, nil
}

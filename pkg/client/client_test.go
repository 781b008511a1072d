package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wimarka/lakra/internal/accounts"
	"github.com/wimarka/lakra/internal/api"
	"github.com/wimarka/lakra/internal/auth"
	"github.com/wimarka/lakra/internal/config"
	"github.com/wimarka/lakra/internal/health"
	"github.com/wimarka/lakra/internal/models"
	"github.com/wimarka/lakra/internal/onboarding"
	"github.com/wimarka/lakra/internal/proficiency"
	"github.com/wimarka/lakra/internal/storage"
)

func TestAPIErrorDecoding(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q, want Bearer tok", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"success":false,"error":{"code":"email_exists","message":"Email already registered"}}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL, WithToken("tok"))
	_, err := c.Register(context.Background(), models.RegisterRequest{})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Register() error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusConflict || apiErr.ErrorCode() != "email_exists" {
		t.Errorf("APIError = %+v", apiErr)
	}

	regErr := onboarding.TranslateRegistrationError(err)
	if regErr.Kind != onboarding.EmailAlreadyExists {
		t.Errorf("Kind = %s, want %s", regErr.Kind, onboarding.EmailAlreadyExists)
	}
}

func TestNonJSONError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL).QuestionsByLanguages(context.Background(), []string{"tagalog"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusBadGateway || apiErr.Code != "" {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func newAPI(t *testing.T) (*httptest.Server, *storage.MemoryRepository) {
	t.Helper()

	repo := storage.NewMemoryRepository()
	tokens := auth.NewTokenIssuer("0123456789abcdef", time.Hour)
	srv := api.NewServer(
		config.ServerConfig{},
		proficiency.NewManager(repo),
		accounts.NewService(repo, tokens),
		tokens.JWTAuth(),
		health.NewRegistry(time.Second),
	)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, repo
}

func seedQuestions(t *testing.T, repo *storage.MemoryRepository, lang string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		q := &models.ProficiencyQuestion{
			Language:      lang,
			Type:          models.TypeComprehension,
			Question:      lang + " passage " + string(rune('a'+i)),
			Options:       []string{"a", "b", "c", "d"},
			CorrectAnswer: 3,
			Difficulty:    models.DifficultyIntermediate,
			IsActive:      true,
		}
		if err := repo.CreateQuestion(context.Background(), q); err != nil {
			t.Fatalf("CreateQuestion() error = %v", err)
		}
	}
}

func draft(email, username string) models.RegisterRequest {
	return models.RegisterRequest{
		Email:     email,
		Username:  username,
		Password:  "secret123",
		FirstName: "Jose",
		LastName:  "Rizal",
		Languages: []string{"tagalog"},
		UserType:  models.UserTypeAnnotator,
	}
}

func TestControllerAgainstServer(t *testing.T) {
	ts, repo := newAPI(t)
	seedQuestions(t, repo, "tagalog", 5)

	c := NewClient(ts.URL)
	ctrl := onboarding.NewController(c, c, c,
		onboarding.WithCountdown(onboarding.NewTickerCountdown(time.Hour)),
		onboarding.WithDraft(draft("jose@example.com", "jose")),
	)
	defer ctrl.Close()

	ctx := context.Background()
	if err := ctrl.Start(ctx, []string{"Tagalog"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for i := 0; i < 5; i++ {
		q, err := ctrl.CurrentQuestion()
		if err != nil {
			t.Fatalf("CurrentQuestion() error = %v", err)
		}
		sel := q.CorrectAnswer
		if i == 4 {
			sel = 0
		}
		if err := ctrl.Answer(sel); err != nil {
			t.Fatalf("Answer() error = %v", err)
		}
		if err := ctrl.Next(ctx); err != nil {
			t.Fatalf("Next() error = %v", err)
		}
	}

	snap := ctrl.Snapshot()
	if snap.State != onboarding.StateRegistered {
		t.Fatalf("State = %s, want %s (err %v)", snap.State, onboarding.StateRegistered, snap.LastErr)
	}
	if snap.Verdict == nil || snap.Verdict.Score != 80 {
		t.Errorf("Verdict = %+v, want score 80", snap.Verdict)
	}
	if c.Token() == "" {
		t.Error("expected token after registration")
	}

	me, err := c.Me(ctx)
	if err != nil {
		t.Fatalf("Me() error = %v", err)
	}
	if me.Email != "jose@example.com" || me.OnboardingStatus != models.OnboardingCompleted {
		t.Errorf("Me() = %+v", me)
	}
}

func TestControllerNoQuestionsBypass(t *testing.T) {
	ts, _ := newAPI(t)

	c := NewClient(ts.URL)
	d := draft("ana@example.com", "ana")
	d.Languages = []string{"ilocano"}
	ctrl := onboarding.NewController(c, c, c,
		onboarding.WithCountdown(onboarding.NewTickerCountdown(time.Hour)),
		onboarding.WithDraft(d),
	)
	defer ctrl.Close()

	ctx := context.Background()
	if err := ctrl.Start(ctx, []string{"Ilocano"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := ctrl.State(); got != onboarding.StateNoQuestionsAvailable {
		t.Fatalf("State = %s, want %s", got, onboarding.StateNoQuestionsAvailable)
	}

	if _, err := ctrl.CompleteWithoutTest(ctx); err != nil {
		t.Fatalf("CompleteWithoutTest() error = %v", err)
	}
	if got := ctrl.State(); got != onboarding.StateRegistered {
		t.Errorf("State = %s, want %s", got, onboarding.StateRegistered)
	}
}

func TestAccountEndpoints(t *testing.T) {
	ts, repo := newAPI(t)
	ctx := context.Background()

	c := NewClient(ts.URL)
	d := draft("andres@example.com", "andres")
	d.SkipTest = true
	resp, err := c.Register(ctx, d)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	languages, err := c.UpdateMyLanguages(ctx, []string{"Pangasinan", "tagalog"})
	if err != nil {
		t.Fatalf("UpdateMyLanguages() error = %v", err)
	}
	if len(languages) != 2 {
		t.Errorf("UpdateMyLanguages() = %v", languages)
	}
	if got, err := c.MyLanguages(ctx); err != nil || len(got) != 2 || got[0] != "pangasinan" {
		t.Errorf("MyLanguages() = %v, %v", got, err)
	}
	if sessions, err := c.MySessions(ctx); err != nil || len(sessions) != 0 {
		t.Errorf("MySessions() = %v, %v, want none", sessions, err)
	}

	var apiErr *APIError
	if _, err := c.ListUsers(ctx, 10, 0); !errors.As(err, &apiErr) || apiErr.Status != http.StatusForbidden {
		t.Errorf("ListUsers() as annotator error = %v, want 403", err)
	}

	hash, err := auth.HashPassword("adminpass")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	admin := &models.User{ID: "admin-1", Email: "admin@example.com", Username: "admin", HashedPassword: hash, IsActive: true, IsAdmin: true}
	if err := repo.CreateUser(ctx, admin, ""); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	adminClient := NewClient(ts.URL)
	if _, err := adminClient.Login(ctx, "admin", "adminpass"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	users, err := adminClient.ListUsers(ctx, 10, 0)
	if err != nil || len(users) != 2 {
		t.Fatalf("ListUsers() = %d users, %v", len(users), err)
	}
	toggled, err := adminClient.ToggleEvaluator(ctx, resp.User.ID)
	if err != nil {
		t.Fatalf("ToggleEvaluator() error = %v", err)
	}
	if !toggled.IsEvaluator {
		t.Error("IsEvaluator = false after toggle")
	}
}

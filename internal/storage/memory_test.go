package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wimarka/lakra/internal/models"
)

func newQuestion(lang, text string, active bool) *models.ProficiencyQuestion {
	return &models.ProficiencyQuestion{
		Language:      lang,
		Type:          models.TypeGrammar,
		Question:      text,
		Options:       []string{"a", "b", "c", "d"},
		CorrectAnswer: 1,
		Difficulty:    models.DifficultyBasic,
		IsActive:      active,
	}
}

func TestMemoryQuestions(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	for _, q := range []*models.ProficiencyQuestion{
		newQuestion("tagalog", "t1", true),
		newQuestion("cebuano", "c1", true),
		newQuestion("tagalog", "t2", false),
	} {
		if err := repo.CreateQuestion(ctx, q); err != nil {
			t.Fatalf("CreateQuestion() error = %v", err)
		}
	}

	if err := repo.CreateQuestion(ctx, newQuestion("tagalog", "t1", true)); !errors.Is(err, ErrDuplicateQuestion) {
		t.Errorf("duplicate CreateQuestion() error = %v", err)
	}
	inserted, err := repo.SeedQuestion(ctx, newQuestion("tagalog", "t1", true))
	if err != nil || inserted {
		t.Errorf("SeedQuestion() existing = %v, %v", inserted, err)
	}

	active, err := repo.ActiveQuestionsByLanguages(ctx, []string{"tagalog", "cebuano"})
	if err != nil {
		t.Fatalf("ActiveQuestionsByLanguages() error = %v", err)
	}
	if len(active) != 2 || active[0].Language != "tagalog" || active[1].Language != "cebuano" {
		t.Errorf("active = %+v", active)
	}

	n, _ := repo.CountActiveQuestions(ctx, []string{"waray"})
	if n != 0 {
		t.Errorf("CountActiveQuestions(waray) = %d", n)
	}

	listed, _ := repo.ListQuestions(ctx, models.QuestionFilters{Language: "tagalog"})
	if len(listed) != 2 {
		t.Errorf("ListQuestions(tagalog) = %d, want 2", len(listed))
	}

	got, _ := repo.GetQuestion(ctx, 999)
	if got != nil {
		t.Errorf("GetQuestion(999) = %+v, want nil", got)
	}
}

func TestMemorySessionConsumption(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	passed := &models.TestSession{ID: "test_pass", Languages: []string{"tagalog"}, Passed: true, Score: 80}
	failed := &models.TestSession{ID: "test_fail", Languages: []string{"tagalog"}, Score: 20}
	for _, s := range []*models.TestSession{passed, failed} {
		if err := repo.CreateTestSession(ctx, s, nil); err != nil {
			t.Fatalf("CreateTestSession() error = %v", err)
		}
	}
	if err := repo.CreateTestSession(ctx, &models.TestSession{ID: "test_pass"}, nil); !errors.Is(err, ErrDuplicateSession) {
		t.Errorf("duplicate session error = %v", err)
	}

	u1 := &models.User{ID: "u1", Email: "a@example.com", Username: "alpha"}
	if err := repo.CreateUser(ctx, u1, "test_fail"); !errors.Is(err, ErrSessionNotUsable) {
		t.Errorf("failed session error = %v, want ErrSessionNotUsable", err)
	}
	if err := repo.CreateUser(ctx, u1, "test_pass"); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	u2 := &models.User{ID: "u2", Email: "b@example.com", Username: "bravo"}
	if err := repo.CreateUser(ctx, u2, "test_pass"); !errors.Is(err, ErrSessionNotUsable) {
		t.Errorf("reused session error = %v, want ErrSessionNotUsable", err)
	}

	dup := &models.User{ID: "u3", Email: "A@example.com", Username: "charlie"}
	if err := repo.CreateUser(ctx, dup, ""); !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("duplicate email error = %v", err)
	}
	dup = &models.User{ID: "u3", Email: "c@example.com", Username: "alpha"}
	if err := repo.CreateUser(ctx, dup, ""); !errors.Is(err, ErrDuplicateUsername) {
		t.Errorf("duplicate username error = %v", err)
	}

	s, _ := repo.GetTestSession(ctx, "test_pass")
	if !s.Consumed || s.UserID == nil || *s.UserID != "u1" {
		t.Errorf("session after registration = %+v", s)
	}
}

func TestMemoryDeleteOrphanSessions(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	userID := "u1"
	_ = repo.CreateTestSession(ctx, &models.TestSession{ID: "orphan"}, []models.StoredAnswer{{QuestionID: 1}})
	_ = repo.CreateTestSession(ctx, &models.TestSession{ID: "owned", UserID: &userID}, nil)

	deleted, err := repo.DeleteOrphanSessions(ctx, time.Now().Add(-time.Hour))
	if err != nil || deleted != 0 {
		t.Fatalf("DeleteOrphanSessions(past) = %d, %v", deleted, err)
	}

	deleted, err = repo.DeleteOrphanSessions(ctx, time.Now().Add(time.Hour))
	if err != nil || deleted != 1 {
		t.Fatalf("DeleteOrphanSessions(future) = %d, %v, want 1", deleted, err)
	}
	if s, _ := repo.GetTestSession(ctx, "owned"); s == nil {
		t.Error("owned session was deleted")
	}
	if answers, _ := repo.ListSessionAnswers(ctx, "orphan"); len(answers) != 0 {
		t.Errorf("orphan answers not deleted: %v", answers)
	}
}

func TestMemoryUsersAndHistory(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	for _, u := range []*models.User{
		{ID: "u1", Email: "a@example.com", Username: "alpha", Languages: []string{"tagalog"}},
		{ID: "u2", Email: "b@example.com", Username: "beta"},
		{ID: "u3", Email: "c@example.com", Username: "gamma"},
	} {
		if err := repo.CreateUser(ctx, u, ""); err != nil {
			t.Fatalf("CreateUser(%s) error = %v", u.ID, err)
		}
	}

	page, err := repo.ListUsers(ctx, 2, 1)
	if err != nil || len(page) != 2 {
		t.Fatalf("ListUsers(2, 1) = %d users, %v", len(page), err)
	}
	if page, _ := repo.ListUsers(ctx, 10, 5); page == nil || len(page) != 0 {
		t.Errorf("ListUsers past the end = %v, want empty", page)
	}

	if err := repo.SetEvaluator(ctx, "u2", true); err != nil {
		t.Fatalf("SetEvaluator() error = %v", err)
	}
	if err := repo.SetUserLanguages(ctx, "u1", []string{"cebuano", "waray"}, "waray"); err != nil {
		t.Fatalf("SetUserLanguages() error = %v", err)
	}
	u1, _ := repo.GetUserByID(ctx, "u1")
	if len(u1.Languages) != 2 || u1.PreferredLanguage != "waray" {
		t.Errorf("u1 after SetUserLanguages = %+v", u1)
	}
	if u2, _ := repo.GetUserByID(ctx, "u2"); !u2.IsEvaluator {
		t.Error("u2 is not an evaluator after SetEvaluator")
	}

	owner := "u1"
	_ = repo.CreateTestSession(ctx, &models.TestSession{ID: "first", UserID: &owner}, nil)
	_ = repo.CreateTestSession(ctx, &models.TestSession{ID: "anonymous"}, nil)
	_ = repo.CreateTestSession(ctx, &models.TestSession{ID: "second", UserID: &owner}, nil)

	history, err := repo.ListUserSessions(ctx, "u1")
	if err != nil {
		t.Fatalf("ListUserSessions() error = %v", err)
	}
	if len(history) != 2 || history[0].ID != "second" || history[1].ID != "first" {
		t.Errorf("history = %v, want [second first]", sessionIDs(history))
	}
}

func sessionIDs(sessions []*models.TestSession) []string {
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}
	return ids
}

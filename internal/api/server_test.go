package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/wimarka/lakra/internal/accounts"
	"github.com/wimarka/lakra/internal/auth"
	"github.com/wimarka/lakra/internal/config"
	"github.com/wimarka/lakra/internal/health"
	"github.com/wimarka/lakra/internal/models"
	"github.com/wimarka/lakra/internal/proficiency"
	"github.com/wimarka/lakra/internal/storage"
)

type testEnv struct {
	server *httptest.Server
	repo   *storage.MemoryRepository
	tokens *auth.TokenIssuer
	reg    *health.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo := storage.NewMemoryRepository()
	tokens := auth.NewTokenIssuer("0123456789abcdef", time.Hour)
	reg := health.NewRegistry(time.Second)
	reg.Register(health.NewCheckFunc("memory", repo.Ping))

	srv := NewServer(
		config.ServerConfig{Host: "127.0.0.1", Port: 8080},
		proficiency.NewManager(repo),
		accounts.NewService(repo, tokens),
		tokens.JWTAuth(),
		reg,
	)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, repo: repo, tokens: tokens, reg: reg}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode %s %s: %v", method, path, err)
	}
	return resp.StatusCode, env
}

func (e *testEnv) seed(t *testing.T, lang string, n int) []*models.ProficiencyQuestion {
	t.Helper()
	var result []*models.ProficiencyQuestion
	for i := 0; i < n; i++ {
		q := &models.ProficiencyQuestion{
			Language:      lang,
			Type:          models.TypeGrammar,
			Question:      lang + " item " + string(rune('a'+i)),
			Options:       []string{"a", "b", "c"},
			CorrectAnswer: 1,
			Difficulty:    models.DifficultyBasic,
			IsActive:      true,
		}
		if err := e.repo.CreateQuestion(context.Background(), q); err != nil {
			t.Fatalf("CreateQuestion() error = %v", err)
		}
		result = append(result, q)
	}
	return result
}

func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	admin := &models.User{
		ID:               "admin-1",
		Email:            "admin@example.com",
		Username:         "admin",
		IsActive:         true,
		IsAdmin:          true,
		OnboardingStatus: models.OnboardingCompleted,
	}
	if err := e.repo.CreateUser(context.Background(), admin, ""); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	token, err := e.tokens.Issue(admin.ID, admin.Role())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	return token
}

func submission(questions []*models.ProficiencyQuestion, sessionID string, correct int) models.SubmitAnswersRequest {
	req := models.SubmitAnswersRequest{TestSessionID: sessionID, Languages: []string{"tagalog"}}
	for i, q := range questions {
		sel := 0
		if i < correct {
			sel = q.CorrectAnswer
		}
		req.Answers = append(req.Answers, models.AnswerSubmission{
			QuestionID:     q.ID,
			SelectedAnswer: sel,
			TestSessionID:  sessionID,
		})
	}
	return req
}

func registration(sessionID string) models.RegisterRequest {
	return models.RegisterRequest{
		Email:         "ana@example.com",
		Username:      "ana",
		Password:      "secret123",
		FirstName:     "Ana",
		LastName:      "Reyes",
		Languages:     []string{"tagalog"},
		UserType:      models.UserTypeAnnotator,
		TestSessionID: sessionID,
	}
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t)

	if status, _ := env.do(t, http.MethodGet, "/health", "", nil); status != http.StatusOK {
		t.Errorf("/health status = %d, want 200", status)
	}
	if status, _ := env.do(t, http.MethodGet, "/ready", "", nil); status != http.StatusOK {
		t.Errorf("/ready status = %d, want 200", status)
	}

	env.reg.Register(health.NewCheckFunc("broken", func(ctx context.Context) error {
		return errors.New("down")
	}))
	status, body := env.do(t, http.MethodGet, "/ready", "", nil)
	if status != http.StatusServiceUnavailable || body.Error == nil || body.Error.Code != "not_ready" {
		t.Errorf("/ready with failing check = %d %+v", status, body.Error)
	}
}

func TestOnboardingFlow(t *testing.T) {
	env := newTestEnv(t)
	questions := env.seed(t, "tagalog", 10)

	status, body := env.do(t, http.MethodPost, "/api/v1/proficiency/questions", "",
		models.QuestionsRequest{Languages: []string{"Tagalog"}})
	if status != http.StatusOK {
		t.Fatalf("questions status = %d, want 200", status)
	}
	var list struct {
		Questions []models.ProficiencyQuestion `json:"questions"`
		Total     int                          `json:"total"`
	}
	if err := json.Unmarshal(body.Data, &list); err != nil {
		t.Fatalf("decode questions: %v", err)
	}
	if list.Total != 10 {
		t.Fatalf("total = %d, want 10", list.Total)
	}

	status, body = env.do(t, http.MethodPost, "/api/v1/proficiency/submit", "", submission(questions, "test_a", 7))
	if status != http.StatusOK {
		t.Fatalf("submit status = %d, want 200 (%+v)", status, body.Error)
	}
	var result models.TestResult
	if err := json.Unmarshal(body.Data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.Passed || result.Score != 70 {
		t.Errorf("result = %+v, want passed at 70", result)
	}

	status, body = env.do(t, http.MethodPost, "/api/v1/proficiency/submit", "", submission(questions, "test_a", 7))
	if status != http.StatusConflict || body.Error.Code != "session_reused" {
		t.Errorf("resubmit = %d %+v, want 409 session_reused", status, body.Error)
	}

	status, body = env.do(t, http.MethodPost, "/api/v1/auth/register", "", registration("test_a"))
	if status != http.StatusCreated {
		t.Fatalf("register status = %d, want 201 (%+v)", status, body.Error)
	}
	var authResp models.AuthResponse
	if err := json.Unmarshal(body.Data, &authResp); err != nil {
		t.Fatalf("decode auth response: %v", err)
	}

	status, body = env.do(t, http.MethodGet, "/api/v1/auth/me", authResp.AccessToken, nil)
	if status != http.StatusOK {
		t.Fatalf("me status = %d, want 200", status)
	}
	var me models.User
	if err := json.Unmarshal(body.Data, &me); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	if me.Username != "ana" || me.OnboardingStatus != models.OnboardingCompleted {
		t.Errorf("me = %+v", me)
	}
}

func TestRegisterErrors(t *testing.T) {
	env := newTestEnv(t)
	questions := env.seed(t, "tagalog", 2)

	status, body := env.do(t, http.MethodPost, "/api/v1/auth/register", "", models.RegisterRequest{})
	if status != http.StatusBadRequest || body.Error.Code != "validation_error" || len(body.Error.Fields) == 0 {
		t.Errorf("empty register = %d %+v, want 400 validation_error with fields", status, body.Error)
	}

	status, body = env.do(t, http.MethodPost, "/api/v1/auth/register", "", registration(""))
	if status != http.StatusForbidden || body.Error.Code != "test_required" {
		t.Errorf("register without test = %d %+v, want 403 test_required", status, body.Error)
	}

	env.do(t, http.MethodPost, "/api/v1/proficiency/submit", "", submission(questions, "test_b", 2))
	if status, body := env.do(t, http.MethodPost, "/api/v1/auth/register", "", registration("test_b")); status != http.StatusCreated {
		t.Fatalf("register status = %d (%+v)", status, body.Error)
	}

	dup := registration("")
	dup.Username = "another"
	dup.SkipTest = true
	status, body = env.do(t, http.MethodPost, "/api/v1/auth/register", "", dup)
	if status != http.StatusConflict || body.Error.Code != "email_exists" {
		t.Errorf("duplicate email = %d %+v, want 409 email_exists", status, body.Error)
	}
}

func TestSubmitWithToken(t *testing.T) {
	env := newTestEnv(t)
	questions := env.seed(t, "tagalog", 4)

	user := &models.User{ID: "u-1", Email: "u@example.com", Username: "user1", IsActive: true, OnboardingStatus: models.OnboardingPending}
	if err := env.repo.CreateUser(context.Background(), user, ""); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	token, _ := env.tokens.Issue(user.ID, user.Role())

	status, _ := env.do(t, http.MethodPost, "/api/v1/proficiency/submit", token, submission(questions, "test_c", 1))
	if status != http.StatusOK {
		t.Fatalf("submit status = %d, want 200", status)
	}

	stored, _ := env.repo.GetUserByID(context.Background(), user.ID)
	if stored.OnboardingStatus != models.OnboardingFailed {
		t.Errorf("OnboardingStatus = %q, want failed", stored.OnboardingStatus)
	}

	if status, _ := env.do(t, http.MethodGet, "/api/v1/admin/sessions/test_c", token, nil); status != http.StatusForbidden {
		t.Errorf("annotator session review status = %d, want 403", status)
	}
	status, body := env.do(t, http.MethodGet, "/api/v1/admin/sessions/test_c", env.adminToken(t), nil)
	if status != http.StatusOK {
		t.Fatalf("session review status = %d (%+v)", status, body.Error)
	}
	var review struct {
		Session models.TestSession    `json:"session"`
		Answers []models.StoredAnswer `json:"answers"`
	}
	if err := json.Unmarshal(body.Data, &review); err != nil {
		t.Fatalf("decode review: %v", err)
	}
	if len(review.Answers) != 4 || review.Session.UserID == nil || *review.Session.UserID != user.ID {
		t.Errorf("review = %+v", review)
	}

	status, body = env.do(t, http.MethodPost, "/api/v1/proficiency/submit", "garbage", submission(questions, "test_d", 1))
	if status != http.StatusUnauthorized || body.Error.Code != "invalid_token" {
		t.Errorf("bad token submit = %d %+v, want 401 invalid_token", status, body.Error)
	}
}

func TestAdminQuestions(t *testing.T) {
	env := newTestEnv(t)

	if status, _ := env.do(t, http.MethodGet, "/api/v1/admin/questions", "", nil); status != http.StatusUnauthorized {
		t.Errorf("anonymous list status = %d, want 401", status)
	}

	annotator := &models.User{ID: "u-2", Email: "a@example.com", Username: "annot", IsActive: true}
	if err := env.repo.CreateUser(context.Background(), annotator, ""); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	annotatorToken, _ := env.tokens.Issue(annotator.ID, annotator.Role())
	if status, _ := env.do(t, http.MethodGet, "/api/v1/admin/questions", annotatorToken, nil); status != http.StatusForbidden {
		t.Errorf("annotator list status = %d, want 403", status)
	}

	token := env.adminToken(t)
	q := models.ProficiencyQuestion{
		Language:      "Cebuano",
		Type:          models.TypeVocabulary,
		Question:      "Unsa ang 'tubig'?",
		Options:       []string{"water", "fire"},
		CorrectAnswer: 0,
		Difficulty:    models.DifficultyBasic,
		IsActive:      true,
	}
	status, body := env.do(t, http.MethodPost, "/api/v1/admin/questions", token, q)
	if status != http.StatusCreated {
		t.Fatalf("create status = %d (%+v)", status, body.Error)
	}
	var created models.ProficiencyQuestion
	if err := json.Unmarshal(body.Data, &created); err != nil {
		t.Fatalf("decode question: %v", err)
	}
	if created.Language != "cebuano" || created.CreatedBy == nil || *created.CreatedBy != "admin-1" {
		t.Errorf("created = %+v", created)
	}

	if status, body := env.do(t, http.MethodPost, "/api/v1/admin/questions", token, q); status != http.StatusConflict {
		t.Errorf("duplicate create = %d %+v, want 409", status, body.Error)
	}

	path := "/api/v1/admin/questions/" + strconv.Itoa(created.ID)
	inactive := false
	status, body = env.do(t, http.MethodPut, path, token, models.QuestionUpdate{IsActive: &inactive})
	if status != http.StatusOK {
		t.Fatalf("update status = %d (%+v)", status, body.Error)
	}

	status, body = env.do(t, http.MethodGet, "/api/v1/admin/questions?language=cebuano", token, nil)
	if status != http.StatusOK {
		t.Fatalf("list status = %d", status)
	}
	var list struct {
		Total int `json:"total"`
	}
	_ = json.Unmarshal(body.Data, &list)
	if list.Total != 1 {
		t.Errorf("total = %d, want 1", list.Total)
	}

	if status, _ := env.do(t, http.MethodDelete, path, token, nil); status != http.StatusOK {
		t.Errorf("delete status = %d, want 200", status)
	}
	if status, body := env.do(t, http.MethodGet, path, token, nil); status != http.StatusNotFound || body.Error.Code != "not_found" {
		t.Errorf("get deleted = %d %+v, want 404", status, body.Error)
	}
	if status, _ := env.do(t, http.MethodGet, "/api/v1/admin/questions/abc", token, nil); status != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", status)
	}
}

func TestAdminUsers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	annotator := &models.User{ID: "u-3", Email: "b@example.com", Username: "bea", IsActive: true}
	if err := env.repo.CreateUser(ctx, annotator, ""); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	annotatorToken, _ := env.tokens.Issue(annotator.ID, annotator.Role())

	if status, _ := env.do(t, http.MethodGet, "/api/v1/admin/users", annotatorToken, nil); status != http.StatusForbidden {
		t.Errorf("annotator list users status = %d, want 403", status)
	}
	if status, _ := env.do(t, http.MethodPut, "/api/v1/admin/users/u-3/toggle-evaluator", annotatorToken, nil); status != http.StatusForbidden {
		t.Errorf("annotator toggle status = %d, want 403", status)
	}

	token := env.adminToken(t)
	status, body := env.do(t, http.MethodGet, "/api/v1/admin/users?limit=10", token, nil)
	if status != http.StatusOK {
		t.Fatalf("list users status = %d (%+v)", status, body.Error)
	}
	var list struct {
		Users []models.User `json:"users"`
		Total int           `json:"total"`
	}
	if err := json.Unmarshal(body.Data, &list); err != nil {
		t.Fatalf("decode users: %v", err)
	}
	if list.Total != 2 {
		t.Errorf("total = %d, want 2", list.Total)
	}

	status, body = env.do(t, http.MethodPut, "/api/v1/admin/users/u-3/toggle-evaluator", token, nil)
	if status != http.StatusOK {
		t.Fatalf("toggle status = %d (%+v)", status, body.Error)
	}
	var toggled models.User
	if err := json.Unmarshal(body.Data, &toggled); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	if !toggled.IsEvaluator {
		t.Errorf("IsEvaluator = false after toggle")
	}
	if stored, _ := env.repo.GetUserByID(ctx, "u-3"); !stored.IsEvaluator {
		t.Errorf("stored IsEvaluator = false after toggle")
	}

	if status, body := env.do(t, http.MethodPut, "/api/v1/admin/users/missing/toggle-evaluator", token, nil); status != http.StatusNotFound {
		t.Errorf("toggle missing user = %d %+v, want 404", status, body.Error)
	}
}

func TestMyLanguagesAndSessions(t *testing.T) {
	env := newTestEnv(t)
	questions := env.seed(t, "tagalog", 2)

	if status, _ := env.do(t, http.MethodGet, "/api/v1/me/languages", "", nil); status != http.StatusUnauthorized {
		t.Errorf("anonymous languages status = %d, want 401", status)
	}

	user := &models.User{ID: "u-4", Email: "c@example.com", Username: "carlo", IsActive: true, Languages: []string{"tagalog"}}
	if err := env.repo.CreateUser(context.Background(), user, ""); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	token, _ := env.tokens.Issue(user.ID, user.Role())

	status, body := env.do(t, http.MethodPut, "/api/v1/me/languages", token, models.LanguagesRequest{Languages: []string{"Cebuano", " Tagalog "}})
	if status != http.StatusOK {
		t.Fatalf("update languages status = %d (%+v)", status, body.Error)
	}

	status, body = env.do(t, http.MethodGet, "/api/v1/me/languages", token, nil)
	if status != http.StatusOK {
		t.Fatalf("languages status = %d", status)
	}
	var langs models.LanguagesRequest
	if err := json.Unmarshal(body.Data, &langs); err != nil {
		t.Fatalf("decode languages: %v", err)
	}
	if len(langs.Languages) != 2 || langs.Languages[0] != "cebuano" || langs.Languages[1] != "tagalog" {
		t.Errorf("languages = %v, want [cebuano tagalog]", langs.Languages)
	}

	status, body = env.do(t, http.MethodPut, "/api/v1/me/languages", token, models.LanguagesRequest{})
	if status != http.StatusBadRequest || body.Error.Code != "validation_error" {
		t.Errorf("empty languages = %d %+v, want 400 validation_error", status, body.Error)
	}

	env.do(t, http.MethodPost, "/api/v1/proficiency/submit", token, submission(questions, "test_e", 1))
	env.do(t, http.MethodPost, "/api/v1/proficiency/submit", "", submission(questions, "test_f", 2))

	status, body = env.do(t, http.MethodGet, "/api/v1/proficiency/sessions", token, nil)
	if status != http.StatusOK {
		t.Fatalf("sessions status = %d (%+v)", status, body.Error)
	}
	var history struct {
		Sessions []models.TestSession `json:"sessions"`
		Total    int                  `json:"total"`
	}
	if err := json.Unmarshal(body.Data, &history); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	if history.Total != 1 || history.Sessions[0].ID != "test_e" {
		t.Errorf("history = %+v, want only test_e", history)
	}
}

package onboarding

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wimarka/lakra/internal/models"
)

// QuestionProvider loads the question set for a language selection
type QuestionProvider interface {
	QuestionsByLanguages(ctx context.Context, languages []string) ([]models.ProficiencyQuestion, error)
}

// Scorer grades a completed set of answers
type Scorer interface {
	SubmitAnswers(ctx context.Context, req models.SubmitAnswersRequest) (*models.TestResult, error)
}

// Finalizer creates the account once onboarding has an outcome
type Finalizer interface {
	Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error)
}

// Option configures a Controller
type Option func(*Controller)

// WithCountdown replaces the default one-second ticker countdown
func WithCountdown(cd Countdown) Option {
	return func(c *Controller) {
		c.countdown = cd
	}
}

// WithSessionIDs replaces the session id generator
func WithSessionIDs(next func() string) Option {
	return func(c *Controller) {
		c.nextSessionID = next
	}
}

// WithDraft sets the registration draft collected before the test
func WithDraft(draft models.RegisterRequest) Option {
	return func(c *Controller) {
		c.draft = draft
	}
}

// Controller runs one candidate through the proficiency test: question
// loading, answering, the countdown, scoring and account creation.
// All methods are safe for concurrent use.
type Controller struct {
	provider  QuestionProvider
	scorer    Scorer
	finalizer Finalizer
	countdown Countdown

	nextSessionID func() string
	changes       chan State

	mu      sync.Mutex
	state   State
	session TestSession
	draft   models.RegisterRequest
	verdict *models.Verdict
	result  *models.TestResult
	account *models.AuthResponse
	regErr  *RegistrationError
	lastErr error

	finalizing bool
}

// NewController creates a controller in the NotStarted state.
// finalizer may be nil when the host only needs the verdict.
func NewController(provider QuestionProvider, scorer Scorer, finalizer Finalizer, opts ...Option) *Controller {
	c := &Controller{
		provider:      provider,
		scorer:        scorer,
		finalizer:     finalizer,
		nextSessionID: models.GenerateSessionID,
		changes:       make(chan State, 16),
		state:         StateNotStarted,
		session:       newTestSession(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.countdown == nil {
		c.countdown = NewTickerCountdown(time.Second)
	}

	return c
}

// Changes delivers every state the controller enters. Slow readers miss
// intermediate states; Snapshot always has the latest.
func (c *Controller) Changes() <-chan State {
	return c.changes
}

// State returns the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Score returns the local score of the current attempt
func (c *Controller) Score() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Score(c.session.Questions, c.session.Answers)
}

// CurrentQuestion returns the question at the cursor
func (c *Controller) CurrentQuestion() (*models.ProficiencyQuestion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	q := c.currentLocked()
	if q == nil {
		return nil, ErrNoCurrentQuestion
	}
	cp := *q
	return &cp, nil
}

// Draft returns the registration draft
func (c *Controller) Draft() models.RegisterRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// Snapshot returns a copy of everything a host needs to render the flow
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		State:           c.state,
		SessionID:       c.session.SessionID,
		Languages:       append([]string(nil), c.session.Languages...),
		Index:           c.session.Index,
		TimeRemaining:   c.session.TimeRemaining,
		Verdict:         c.verdict,
		Result:          c.result,
		Account:         c.account,
		RegistrationErr: c.regErr,
		LastErr:         c.lastErr,
	}

	if c.state == StateInProgress || c.state == StateSubmitting {
		snap.QuestionCount = len(c.session.Questions)
		snap.Answered = c.session.Answers.Len()
		if q := c.currentLocked(); q != nil {
			cp := *q
			snap.Current = &cp
			if a, ok := c.session.Answers.Get(q.ID); ok {
				snap.CurrentAnswer = &a
			}
		}
	}

	return snap
}

// UpdateDraft replaces the registration draft, for example to change the
// email after an EmailAlreadyExists failure
func (c *Controller) UpdateDraft(draft models.RegisterRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateSubmitting || c.state == StateRegistered {
		return fmt.Errorf("%w: update draft in %s", ErrInvalidTransition, c.state)
	}
	c.draft = draft
	c.regErr = nil
	return nil
}

// Start begins an attempt for the given languages. Questions already loaded
// for the same language set are reused without a fetch.
func (c *Controller) Start(ctx context.Context, languages []string) error {
	langs := models.NormalizeLanguages(languages)
	if len(langs) == 0 {
		return ErrNoLanguages
	}
	key := models.LanguageKey(langs)

	c.mu.Lock()
	if !c.state.CanStart() {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, state)
	}

	sessionID := c.nextSessionID()
	c.session.SessionID = sessionID
	c.session.Languages = langs
	c.verdict = nil
	c.result = nil
	c.regErr = nil
	c.lastErr = nil

	if c.session.LoadedLanguageKey == key && len(c.session.Questions) > 0 {
		c.beginLocked()
		c.mu.Unlock()
		slog.Info("onboarding test started from loaded questions",
			"session_id", sessionID,
			"languages", key,
		)
		return nil
	}

	c.setStateLocked(StateLoading)
	c.mu.Unlock()

	questions, err := c.provider.QuestionsByLanguages(ctx, langs)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateLoading || c.session.SessionID != sessionID {
		slog.Warn("discarding questions for abandoned session", "session_id", sessionID)
		return ErrStaleSession
	}

	if err != nil {
		fetchErr := &FetchError{Languages: langs, Err: err}
		c.session.SessionID = ""
		c.lastErr = fetchErr
		c.setStateLocked(StateNotStarted)
		slog.Error("failed to load questions", "languages", key, "error", err)
		return fetchErr
	}

	if len(questions) == 0 {
		c.setStateLocked(StateNoQuestionsAvailable)
		slog.Info("no questions available", "session_id", sessionID, "languages", key)
		return nil
	}

	c.session.Questions = append([]models.ProficiencyQuestion(nil), questions...)
	c.session.LoadedLanguageKey = key
	c.beginLocked()

	slog.Info("onboarding test started",
		"session_id", sessionID,
		"languages", key,
		"questions", len(questions),
	)
	return nil
}

// Answer records the selected option for the current question
func (c *Controller) Answer(selected int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateInProgress {
		return fmt.Errorf("%w: answer in %s", ErrInvalidTransition, c.state)
	}
	if c.session.TimeRemaining <= 0 {
		return ErrTimeExpired
	}
	q := c.currentLocked()
	if q == nil {
		return ErrNoCurrentQuestion
	}
	if selected < 0 || selected >= len(q.Options) {
		return ErrInvalidOption
	}

	c.session.Answers.Record(q, selected)
	return nil
}

// Next advances the cursor, or submits when the current question is the last.
// The current question must be answered first.
func (c *Controller) Next(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateInProgress {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: next in %s", ErrInvalidTransition, state)
	}
	if c.session.TimeRemaining <= 0 {
		c.mu.Unlock()
		return ErrTimeExpired
	}
	q := c.currentLocked()
	if q == nil {
		c.mu.Unlock()
		return ErrNoCurrentQuestion
	}
	if _, ok := c.session.Answers.Get(q.ID); !ok {
		c.mu.Unlock()
		return ErrAnswerRequired
	}
	if c.session.Index < len(c.session.Questions)-1 {
		c.session.Index++
		c.mu.Unlock()
		return nil
	}
	sessionID := c.session.SessionID
	c.mu.Unlock()

	_, err := c.submit(ctx, sessionID)
	return err
}

// Previous moves the cursor back one question, stopping at the first
func (c *Controller) Previous() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateInProgress {
		return fmt.Errorf("%w: previous in %s", ErrInvalidTransition, c.state)
	}
	if c.session.TimeRemaining <= 0 {
		return ErrTimeExpired
	}
	if c.session.Index > 0 {
		c.session.Index--
	}
	return nil
}

// Tick advances the countdown by one second. When the remaining time reaches
// zero the attempt is submitted exactly once; later ticks are no-ops.
func (c *Controller) Tick(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateInProgress || c.session.TimeRemaining <= 0 {
		c.mu.Unlock()
		return nil
	}
	c.session.TimeRemaining--
	if c.session.TimeRemaining > 0 {
		c.mu.Unlock()
		return nil
	}
	sessionID := c.session.SessionID
	c.mu.Unlock()

	slog.Info("time expired, submitting answers", "session_id", sessionID)
	_, err := c.submit(ctx, sessionID)
	return err
}

// Submit sends the answers for scoring. Unanswered questions are included
// as unanswered.
func (c *Controller) Submit(ctx context.Context) (*models.TestResult, error) {
	return c.submit(ctx, "")
}

// Cancel abandons the current attempt and returns to NotStarted. Loaded
// questions are kept so starting again with the same languages skips the
// fetch. Responses for the abandoned session are discarded. An account
// creation already in flight cannot be cancelled.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finalizing {
		return
	}
	switch c.state {
	case StateLoading, StateInProgress, StateSubmitting, StateNoQuestionsAvailable:
	default:
		return
	}

	c.countdown.Disarm()
	slog.Info("onboarding test cancelled", "session_id", c.session.SessionID, "state", c.state)

	c.session.SessionID = ""
	c.session.Answers.Reset()
	c.session.Index = 0
	c.session.TimeRemaining = models.TimeBudgetSeconds
	c.session.Started = false
	c.setStateLocked(StateNotStarted)
}

// Close releases the countdown. The controller must not be used afterwards.
func (c *Controller) Close() {
	c.Cancel()
	c.countdown.Disarm()
}

// CompleteRegistration creates the account for a passed attempt. On failure
// the controller stays in Passed with the draft intact so the host can fix
// the draft and retry.
func (c *Controller) CompleteRegistration(ctx context.Context) (*models.AuthResponse, error) {
	c.mu.Lock()
	if c.state != StatePassed || c.finalizing {
		state := c.state
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: complete registration in %s", ErrInvalidTransition, state)
	}
	req := c.draft
	req.OnboardingPassed = true
	req.SkipTest = false
	req.TestSessionID = c.session.SessionID
	if len(req.Languages) == 0 {
		req.Languages = append([]string(nil), c.session.Languages...)
	}
	c.finalizing = true
	c.mu.Unlock()

	return c.finalize(ctx, StatePassed, req)
}

// CompleteWithoutTest creates the account when no questions exist for the
// selected languages. The scorer is never called.
func (c *Controller) CompleteWithoutTest(ctx context.Context) (*models.AuthResponse, error) {
	c.mu.Lock()
	if c.state != StateNoQuestionsAvailable || c.finalizing {
		state := c.state
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: complete without test in %s", ErrInvalidTransition, state)
	}
	req := c.draft
	req.OnboardingPassed = false
	req.SkipTest = true
	req.TestSessionID = ""
	if len(req.Languages) == 0 {
		req.Languages = append([]string(nil), c.session.Languages...)
	}
	c.finalizing = true
	c.mu.Unlock()

	return c.finalize(ctx, StateNoQuestionsAvailable, req)
}

func (c *Controller) finalize(ctx context.Context, from State, req models.RegisterRequest) (*models.AuthResponse, error) {
	var (
		resp *models.AuthResponse
		err  error
	)
	if c.finalizer == nil {
		err = ErrNoFinalizer
	} else {
		resp, err = c.finalizer.Register(ctx, req)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.finalizing = false

	if c.state != from {
		return nil, ErrStaleSession
	}

	if err != nil {
		regErr := TranslateRegistrationError(err)
		c.regErr = regErr
		c.lastErr = regErr
		slog.Warn("registration failed", "kind", regErr.Kind, "error", err)
		return nil, regErr
	}

	c.account = resp
	c.regErr = nil
	c.lastErr = nil
	c.session.SessionID = ""
	c.session.Answers.Reset()
	c.setStateLocked(StateRegistered)

	slog.Info("registration completed", "email", req.Email, "skip_test", req.SkipTest)
	return resp, nil
}

// submit scores the attempt. An empty sessionID means the current session.
func (c *Controller) submit(ctx context.Context, sessionID string) (*models.TestResult, error) {
	c.mu.Lock()
	if c.state != StateInProgress {
		state := c.state
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: submit in %s", ErrInvalidTransition, state)
	}
	if sessionID == "" {
		sessionID = c.session.SessionID
	}
	if c.session.SessionID != sessionID {
		c.mu.Unlock()
		return nil, ErrStaleSession
	}

	c.countdown.Disarm()
	req := models.SubmitAnswersRequest{
		Answers:       c.session.Answers.Submissions(c.session.Questions, sessionID),
		TestSessionID: sessionID,
		Languages:     append([]string(nil), c.session.Languages...),
	}
	c.setStateLocked(StateSubmitting)
	c.mu.Unlock()

	result, err := c.scorer.SubmitAnswers(ctx, req)

	c.mu.Lock()
	if c.state != StateSubmitting || c.session.SessionID != sessionID {
		c.mu.Unlock()
		slog.Warn("discarding result for abandoned session", "session_id", sessionID)
		return nil, ErrStaleSession
	}

	if err != nil {
		subErr := &SubmissionError{SessionID: sessionID, Err: err}
		c.lastErr = subErr
		c.setStateLocked(StateInProgress)
		if c.session.TimeRemaining > 0 {
			c.armLocked()
		}
		c.mu.Unlock()
		slog.Error("failed to submit answers", "session_id", sessionID, "error", err)
		return nil, subErr
	}

	verdict := result.Verdict()
	c.result = result
	c.verdict = &verdict
	c.lastErr = nil

	slog.Info("onboarding test scored",
		"session_id", sessionID,
		"score", verdict.Score,
		"passed", verdict.Passed,
	)

	if !verdict.Passed {
		c.resetLocked()
		c.setStateLocked(StateFailed)
		c.mu.Unlock()
		return result, nil
	}

	c.setStateLocked(StatePassed)
	hasFinalizer := c.finalizer != nil
	c.mu.Unlock()

	if !hasFinalizer {
		return result, nil
	}
	if _, err := c.CompleteRegistration(ctx); err != nil {
		return result, err
	}
	return result, nil
}

// resetLocked clears the whole session, including loaded questions
func (c *Controller) resetLocked() {
	c.countdown.Disarm()
	c.session = newTestSession()
}

func (c *Controller) beginLocked() {
	c.session.Answers.Reset()
	c.session.Index = 0
	c.session.TimeRemaining = models.TimeBudgetSeconds
	c.session.Started = true
	c.setStateLocked(StateInProgress)
	c.armLocked()
}

func (c *Controller) armLocked() {
	sessionID := c.session.SessionID
	c.countdown.Arm(c.session.TimeRemaining,
		func(remaining int) { c.syncRemaining(sessionID, remaining) },
		func() { c.expire(sessionID) },
	)
}

func (c *Controller) syncRemaining(sessionID string, remaining int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateInProgress || c.session.SessionID != sessionID {
		return
	}
	if remaining < c.session.TimeRemaining {
		c.session.TimeRemaining = remaining
	}
}

func (c *Controller) expire(sessionID string) {
	c.mu.Lock()
	if c.state != StateInProgress || c.session.SessionID != sessionID {
		c.mu.Unlock()
		return
	}
	c.session.TimeRemaining = 0
	c.mu.Unlock()

	slog.Info("time expired, submitting answers", "session_id", sessionID)
	if _, err := c.submit(context.Background(), sessionID); err != nil {
		slog.Error("automatic submission failed", "session_id", sessionID, "error", err)
	}
}

func (c *Controller) currentLocked() *models.ProficiencyQuestion {
	if c.session.Index < 0 || c.session.Index >= len(c.session.Questions) {
		return nil
	}
	return &c.session.Questions[c.session.Index]
}

func (c *Controller) setStateLocked(s State) {
	c.state = s
	select {
	case c.changes <- s:
	default:
	}
}

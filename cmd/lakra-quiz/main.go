// Command lakra-quiz takes the onboarding proficiency test in a terminal
// against a running lakra server and registers the account on success.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wimarka/lakra/internal/models"
	"github.com/wimarka/lakra/internal/onboarding"
	"github.com/wimarka/lakra/pkg/client"
)

func main() {
	var (
		apiURL    = flag.String("api", envOr("LAKRA_API_URL", "http://localhost:8080"), "lakra API base URL")
		languages = flag.String("languages", "", "comma separated languages to be tested in")
		email     = flag.String("email", "", "account email")
		username  = flag.String("username", "", "account username")
		password  = flag.String("password", os.Getenv("LAKRA_PASSWORD"), "account password")
		firstName = flag.String("first-name", "", "first name")
		lastName  = flag.String("last-name", "", "last name")
		evaluator = flag.Bool("evaluator", false, "register as an evaluator (no test)")
		verbose   = flag.Bool("v", false, "log controller events to stderr")
	)
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	draft := models.RegisterRequest{
		Email:     *email,
		Username:  *username,
		Password:  *password,
		FirstName: *firstName,
		LastName:  *lastName,
		Languages: splitList(*languages),
		UserType:  models.UserTypeAnnotator,
	}
	if *evaluator {
		draft.UserType = models.UserTypeEvaluator
		draft.IsEvaluator = true
	}

	if fields := draft.Validate(); len(fields) > 0 {
		for field, msg := range fields {
			fmt.Fprintf(os.Stderr, "%s: %s\n", field, msg)
		}
		os.Exit(2)
	}

	api := client.NewClient(*apiURL)
	ctx := context.Background()

	if draft.UserType == models.UserTypeEvaluator {
		resp, err := api.Register(ctx, draft)
		if err != nil {
			fail(onboarding.TranslateRegistrationError(err))
		}
		fmt.Printf("Welcome, %s. Your evaluator account is ready.\n", resp.User.FirstName)
		return
	}

	ctrl := onboarding.NewController(api, api, api, onboarding.WithDraft(draft))
	defer ctrl.Close()

	if err := run(ctx, ctrl, draft.Languages, bufio.NewScanner(os.Stdin)); err != nil {
		fail(err)
	}
}

func run(ctx context.Context, ctrl *onboarding.Controller, languages []string, in *bufio.Scanner) error {
	fmt.Printf("Loading questions for %s...\n", strings.Join(languages, ", "))
	if err := ctrl.Start(ctx, languages); err != nil {
		return err
	}

	if ctrl.State() == onboarding.StateNoQuestionsAvailable {
		fmt.Println("No test questions exist yet for your languages. Creating your account without a test.")
		if _, err := ctrl.CompleteWithoutTest(ctx); err != nil && !isRegistrationError(err) {
			return err
		}
		return finish(ctx, ctrl, in)
	}

	snap := ctrl.Snapshot()
	fmt.Printf("%d questions, %d minutes. Type the option number, p for previous, q to quit.\n\n",
		snap.QuestionCount, models.TimeBudgetSeconds/60)

	for {
		switch ctrl.State() {
		case onboarding.StateSubmitting:
			waitSettled(ctrl)
			continue
		case onboarding.StateInProgress:
		default:
			return finish(ctx, ctrl, in)
		}

		snap = ctrl.Snapshot()
		if snap.TimeRemaining <= 0 {
			// the automatic submission failed; answers are frozen
			fmt.Print("Time is up and your answers could not be sent. Press Enter to retry. ")
			if !in.Scan() {
				return errors.New("input closed")
			}
			if _, err := ctrl.Submit(ctx); err != nil && !isRegistrationError(err) {
				fmt.Println(err)
			}
			continue
		}
		printQuestion(snap)

		if !in.Scan() {
			ctrl.Cancel()
			return errors.New("input closed")
		}
		if ctrl.State() != onboarding.StateInProgress {
			// time ran out while waiting for input
			continue
		}

		if err := handleInput(ctx, ctrl, strings.TrimSpace(in.Text())); err != nil {
			if errors.Is(err, errQuit) {
				ctrl.Cancel()
				fmt.Println("Test cancelled.")
				return nil
			}
			fmt.Println(err)
		}
	}
}

// finish prints the outcome. When the email is already registered it asks
// for another one and retries, keeping the passed session.
func finish(ctx context.Context, ctrl *onboarding.Controller, in *bufio.Scanner) error {
	printResult(ctrl.Snapshot())

	for {
		s := ctrl.Snapshot()
		if s.RegistrationErr == nil || s.RegistrationErr.Kind != onboarding.EmailAlreadyExists {
			return report(s)
		}

		fmt.Printf("%s is already registered. Enter another email, or leave blank to stop: ", ctrl.Draft().Email)
		if !in.Scan() {
			return s.RegistrationErr
		}
		email := strings.TrimSpace(in.Text())
		if email == "" {
			return s.RegistrationErr
		}

		draft := ctrl.Draft()
		draft.Email = email
		if msg, ok := draft.Validate()["email"]; ok {
			fmt.Println("email:", msg)
			continue
		}
		if err := ctrl.UpdateDraft(draft); err != nil {
			return err
		}

		var err error
		if s.State == onboarding.StateNoQuestionsAvailable {
			_, err = ctrl.CompleteWithoutTest(ctx)
		} else {
			_, err = ctrl.CompleteRegistration(ctx)
		}
		if err != nil && !isRegistrationError(err) {
			return err
		}
	}
}

func isRegistrationError(err error) bool {
	var regErr *onboarding.RegistrationError
	return errors.As(err, &regErr)
}

var errQuit = errors.New("quit")

func handleInput(ctx context.Context, ctrl *onboarding.Controller, input string) error {
	switch strings.ToLower(input) {
	case "q":
		return errQuit
	case "p":
		return ctrl.Previous()
	}

	n, err := strconv.Atoi(input)
	if err != nil {
		return fmt.Errorf("enter an option number")
	}
	if err := ctrl.Answer(n - 1); err != nil {
		return err
	}
	return ctrl.Next(ctx)
}

func printQuestion(s onboarding.Snapshot) {
	if s.Current == nil {
		return
	}
	fmt.Printf("[%d/%d] %s  (%d:%02d left)\n", s.Index+1, s.QuestionCount, s.Current.Language,
		s.TimeRemaining/60, s.TimeRemaining%60)
	fmt.Println(s.Current.Question)
	for i, opt := range s.Current.Options {
		marker := " "
		if s.CurrentAnswer != nil && s.CurrentAnswer.SelectedAnswer == i {
			marker = "*"
		}
		fmt.Printf(" %s %d) %s\n", marker, i+1, opt)
	}
	if s.IsLast() {
		fmt.Println("(last question: answering submits the test)")
	}
	fmt.Print("> ")
}

// waitSettled blocks while a submission is in flight
func waitSettled(ctrl *onboarding.Controller) {
	deadline := time.After(time.Minute)
	for ctrl.State() == onboarding.StateSubmitting {
		select {
		case <-ctrl.Changes():
		case <-time.After(200 * time.Millisecond):
		case <-deadline:
			return
		}
	}
}

func printResult(s onboarding.Snapshot) {
	if s.Result == nil {
		return
	}
	fmt.Printf("\nScore: %.0f%% (%d of %d correct)\n", s.Result.Score, s.Result.CorrectAnswers, s.Result.TotalQuestions)
	for lang, r := range s.Result.QuestionsByLanguage {
		fmt.Printf("  %s: %.0f%% (%d/%d)\n", lang, r.Score, r.Correct, r.Total)
	}
}

func report(s onboarding.Snapshot) error {
	switch s.State {
	case onboarding.StateRegistered:
		fmt.Printf("Welcome to WiMarka, %s. Your account is ready.\n", s.Account.User.FirstName)
		return nil
	case onboarding.StateFailed:
		fmt.Printf("You need %.0f%% to pass. Review the guidelines and try again.\n", models.PassThreshold)
		return nil
	case onboarding.StatePassed, onboarding.StateNoQuestionsAvailable:
		if s.RegistrationErr != nil {
			return s.RegistrationErr
		}
	}

	if s.LastErr != nil {
		return s.LastErr
	}
	return fmt.Errorf("test ended in state %s", s.State)
}

func fail(err error) {
	var regErr *onboarding.RegistrationError
	if errors.As(err, &regErr) && regErr.Kind == onboarding.EmailAlreadyExists {
		fmt.Fprintln(os.Stderr, "That email is already registered. Log in instead or use another email.")
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

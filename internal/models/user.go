package models

import (
	"net/mail"
	"strings"
	"time"
)

// UserType is the role chosen at registration
type UserType string

const (
	UserTypeAnnotator UserType = "annotator"
	UserTypeEvaluator UserType = "evaluator"
)

// Roles carried in access tokens
const (
	RoleAdmin     = "admin"
	RoleEvaluator = "evaluator"
	RoleAnnotator = "annotator"
)

// OnboardingStatus tracks where a user is in the proficiency test flow
type OnboardingStatus string

const (
	OnboardingPending   OnboardingStatus = "pending"
	OnboardingCompleted OnboardingStatus = "completed"
	OnboardingFailed    OnboardingStatus = "failed"
)

var rolePermissions = map[string][]string{
	RoleAdmin:     {"*"},
	RoleEvaluator: {"questions:read", "profile:*"},
	RoleAnnotator: {"profile:*"},
}

// User is an annotator, evaluator or admin account
type User struct {
	ID                    string           `json:"id"`
	Email                 string           `json:"email"`
	Username              string           `json:"username"`
	HashedPassword        string           `json:"-"`
	FirstName             string           `json:"first_name"`
	LastName              string           `json:"last_name"`
	PreferredLanguage     string           `json:"preferred_language"`
	Languages             []string         `json:"languages"`
	IsActive              bool             `json:"is_active"`
	IsAdmin               bool             `json:"is_admin"`
	IsEvaluator           bool             `json:"is_evaluator"`
	GuidelinesSeen        bool             `json:"guidelines_seen"`
	OnboardingStatus      OnboardingStatus `json:"onboarding_status"`
	OnboardingScore       *float64         `json:"onboarding_score,omitempty"`
	OnboardingCompletedAt *time.Time       `json:"onboarding_completed_at,omitempty"`
	CreatedAt             time.Time        `json:"created_at"`
}

// Role returns the single role used for authorization
func (u *User) Role() string {
	switch {
	case u.IsAdmin:
		return RoleAdmin
	case u.IsEvaluator:
		return RoleEvaluator
	default:
		return RoleAnnotator
	}
}

// RoleHasPermission checks a role against a required permission.
// Supports wildcard permissions like "questions:*".
func RoleHasPermission(role, required string) bool {
	for _, perm := range rolePermissions[role] {
		if perm == required || perm == "*" {
			return true
		}
		if strings.HasSuffix(perm, ":*") {
			prefix := strings.TrimSuffix(perm, "*")
			if strings.HasPrefix(required, prefix) {
				return true
			}
		}
	}
	return false
}

// RegisterRequest is the account-creation payload: the registration draft
// merged with the onboarding outcome
type RegisterRequest struct {
	Email             string   `json:"email"`
	Username          string   `json:"username"`
	Password          string   `json:"password"`
	FirstName         string   `json:"first_name"`
	LastName          string   `json:"last_name"`
	PreferredLanguage string   `json:"preferred_language,omitempty"`
	Languages         []string `json:"languages"`
	IsEvaluator       bool     `json:"is_evaluator"`
	UserType          UserType `json:"user_type"`
	OnboardingPassed  bool     `json:"onboarding_passed"`
	TestSessionID     string   `json:"test_session_id,omitempty"`
	SkipTest          bool     `json:"skip_test,omitempty"`
}

// Validate applies the registration form rules and returns field -> message
// for every failing field
func (r *RegisterRequest) Validate() map[string]string {
	errs := make(map[string]string)

	if strings.TrimSpace(r.FirstName) == "" {
		errs["first_name"] = "First name is required"
	}
	if strings.TrimSpace(r.LastName) == "" {
		errs["last_name"] = "Last name is required"
	}

	switch username := strings.TrimSpace(r.Username); {
	case username == "":
		errs["username"] = "Username is required"
	case len(username) < 3:
		errs["username"] = "Username must be at least 3 characters long"
	}

	switch email := strings.TrimSpace(r.Email); {
	case email == "":
		errs["email"] = "Email is required"
	case !validEmail(email):
		errs["email"] = "Email is invalid"
	}

	switch {
	case r.Password == "":
		errs["password"] = "Password is required"
	case len(r.Password) < 6:
		errs["password"] = "Password must be at least 6 characters long"
	}

	if len(NormalizeLanguages(r.Languages)) == 0 {
		errs["languages"] = "Please select at least one language"
	}

	if r.UserType != UserTypeAnnotator && r.UserType != UserTypeEvaluator {
		errs["user_type"] = "User type must be annotator or evaluator"
	}

	return errs
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	at := strings.LastIndex(email, "@")
	return at > 0 && strings.Contains(email[at+1:], ".")
}

// LoginRequest accepts either an email or a username in Login
type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// AuthResponse is returned by register and login
type AuthResponse struct {
	User        *User  `json:"user"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

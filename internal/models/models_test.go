package models

import (
	"reflect"
	"testing"
)

func TestNormalizeLanguages(t *testing.T) {
	got := NormalizeLanguages([]string{" Tagalog", "Central Bikol", "tagalog", "", "Cebuano"})
	want := []string{"cebuano", "central-bikol", "tagalog"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("NormalizeLanguages() = %v, want %v", got, want)
	}

	if key := LanguageKey([]string{"Tagalog", "cebuano"}); key != "cebuano,tagalog" {
		t.Errorf("LanguageKey() = %q", key)
	}
}

func TestCoversLanguages(t *testing.T) {
	tests := []struct {
		have, want []string
		covers     bool
	}{
		{[]string{"tagalog", "cebuano"}, []string{"Tagalog"}, true},
		{[]string{"tagalog"}, []string{"tagalog", "ilocano"}, false},
		{nil, nil, true},
	}

	for _, tt := range tests {
		if got := CoversLanguages(tt.have, tt.want); got != tt.covers {
			t.Errorf("CoversLanguages(%v, %v) = %v, want %v", tt.have, tt.want, got, tt.covers)
		}
	}
}

func TestPassed(t *testing.T) {
	if !Passed(70) {
		t.Error("70 should pass")
	}
	if Passed(69.99) {
		t.Error("69.99 should fail")
	}
}

func TestRegisterRequestValidate(t *testing.T) {
	valid := RegisterRequest{
		Email:     "maria@example.com",
		Username:  "maria",
		Password:  "secret1",
		FirstName: "Maria",
		LastName:  "Santos",
		Languages: []string{"tagalog"},
		UserType:  UserTypeAnnotator,
	}
	if errs := valid.Validate(); len(errs) != 0 {
		t.Fatalf("Validate() = %v, want no errors", errs)
	}

	tests := []struct {
		name   string
		mutate func(*RegisterRequest)
		field  string
	}{
		{"short username", func(r *RegisterRequest) { r.Username = "ab" }, "username"},
		{"bad email", func(r *RegisterRequest) { r.Email = "maria@" }, "email"},
		{"display name email", func(r *RegisterRequest) { r.Email = "Maria <maria@example.com>" }, "email"},
		{"short password", func(r *RegisterRequest) { r.Password = "12345" }, "password"},
		{"no languages", func(r *RegisterRequest) { r.Languages = []string{" "} }, "languages"},
		{"missing first name", func(r *RegisterRequest) { r.FirstName = "" }, "first_name"},
		{"bad user type", func(r *RegisterRequest) { r.UserType = "admin" }, "user_type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			errs := req.Validate()
			if _, ok := errs[tt.field]; !ok || len(errs) != 1 {
				t.Errorf("Validate() = %v, want only %s", errs, tt.field)
			}
		})
	}
}

func TestRoleHasPermission(t *testing.T) {
	tests := []struct {
		role, perm string
		want       bool
	}{
		{RoleAdmin, "questions:write", true},
		{RoleEvaluator, "questions:read", true},
		{RoleEvaluator, "questions:write", false},
		{RoleAnnotator, "profile:read", true},
		{RoleAnnotator, "sessions:read", false},
		{"unknown", "profile:read", false},
	}

	for _, tt := range tests {
		if got := RoleHasPermission(tt.role, tt.perm); got != tt.want {
			t.Errorf("RoleHasPermission(%q, %q) = %v, want %v", tt.role, tt.perm, got, tt.want)
		}
	}
}

func TestQuestionValidate(t *testing.T) {
	q := ProficiencyQuestion{
		Language:      "tagalog",
		Type:          TypeTranslation,
		Question:      "Translate 'salamat'",
		Options:       []string{"thanks", "hello"},
		CorrectAnswer: 0,
		Difficulty:    DifficultyAdvanced,
	}
	if err := q.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	q.CorrectAnswer = 2
	if err := q.Validate(); err == nil {
		t.Error("expected out-of-range correct_answer error")
	}
}

package api

import (
	"net/http"

	"github.com/wimarka/lakra/internal/models"
)

func (s *Server) handleQuestionsByLanguages(w http.ResponseWriter, r *http.Request) {
	var req models.QuestionsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	questions, err := s.proficiency.QuestionsByLanguages(r.Context(), req.Languages)
	if err != nil {
		respondDomainError(w, err, "load questions")
		return
	}
	if questions == nil {
		questions = []models.ProficiencyQuestion{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"questions": questions,
		"total":     len(questions),
	})
}

// handleSubmitAnswers grades a test. Anonymous candidates are allowed; a
// signed-in caller also gets their onboarding status updated.
func (s *Server) handleSubmitAnswers(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitAnswersRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	userID := ""
	if p := PrincipalFromContext(r.Context()); p != nil {
		userID = p.UserID
	}

	result, err := s.proficiency.SubmitAnswers(r.Context(), userID, req)
	if err != nil {
		respondDomainError(w, err, "submit answers")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleMySessions lists the caller's own graded tests
func (s *Server) handleMySessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.proficiency.UserSessions(r.Context(), PrincipalFromContext(r.Context()).UserID)
	if err != nil {
		respondDomainError(w, err, "list test sessions")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wimarka/lakra/internal/models"
)

// Admin question bank handlers

func (s *Server) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filters := models.QuestionFilters{
		Language:   query.Get("language"),
		Type:       models.QuestionType(query.Get("type")),
		Difficulty: models.Difficulty(query.Get("difficulty")),
		Limit:      100,
	}

	if active, err := strconv.ParseBool(query.Get("active_only")); err == nil {
		filters.ActiveOnly = active
	}
	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			filters.Limit = limit
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filters.Offset = offset
		}
	}

	questions, err := s.proficiency.ListQuestions(r.Context(), filters)
	if err != nil {
		respondDomainError(w, err, "list questions")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"questions": questions,
		"total":     len(questions),
	})
}

func (s *Server) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	var q models.ProficiencyQuestion
	if !decodeJSON(w, r, &q) {
		return
	}

	created, err := s.proficiency.CreateQuestion(r.Context(), &q, PrincipalFromContext(r.Context()).UserID)
	if err != nil {
		respondDomainError(w, err, "create question")
		return
	}

	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := questionID(w, r)
	if !ok {
		return
	}

	q, err := s.proficiency.GetQuestion(r.Context(), id)
	if err != nil {
		respondDomainError(w, err, "get question")
		return
	}

	respondJSON(w, http.StatusOK, q)
}

func (s *Server) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := questionID(w, r)
	if !ok {
		return
	}

	var update models.QuestionUpdate
	if !decodeJSON(w, r, &update) {
		return
	}

	q, err := s.proficiency.UpdateQuestion(r.Context(), id, update)
	if err != nil {
		respondDomainError(w, err, "update question")
		return
	}

	respondJSON(w, http.StatusOK, q)
}

func (s *Server) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := questionID(w, r)
	if !ok {
		return
	}

	if err := s.proficiency.DeleteQuestion(r.Context(), id); err != nil {
		respondDomainError(w, err, "delete question")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "question deleted",
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	review, err := s.proficiency.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, err, "get test session")
		return
	}

	respondJSON(w, http.StatusOK, review)
}

func questionID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "validation_error", "question id must be a positive integer")
		return 0, false
	}
	return id, true
}

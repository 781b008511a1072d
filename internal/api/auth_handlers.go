package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wimarka/lakra/internal/models"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := s.accounts.Register(r.Context(), req)
	if err != nil {
		respondDomainError(w, err, "register")
		return
	}

	respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := s.accounts.Login(r.Context(), req)
	if err != nil {
		respondDomainError(w, err, "log in")
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFromContext(r.Context())

	user, err := s.accounts.CurrentUser(r.Context(), p.UserID)
	if err != nil {
		respondDomainError(w, err, "load user")
		return
	}

	respondJSON(w, http.StatusOK, user)
}

func (s *Server) handleMyLanguages(w http.ResponseWriter, r *http.Request) {
	languages, err := s.accounts.UserLanguages(r.Context(), PrincipalFromContext(r.Context()).UserID)
	if err != nil {
		respondDomainError(w, err, "load languages")
		return
	}

	respondJSON(w, http.StatusOK, models.LanguagesRequest{Languages: languages})
}

func (s *Server) handleUpdateMyLanguages(w http.ResponseWriter, r *http.Request) {
	var req models.LanguagesRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	languages, err := s.accounts.UpdateLanguages(r.Context(), PrincipalFromContext(r.Context()).UserID, req.Languages)
	if err != nil {
		respondDomainError(w, err, "update languages")
		return
	}

	respondJSON(w, http.StatusOK, models.LanguagesRequest{Languages: languages})
}

// Admin user handlers

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	users, err := s.accounts.ListUsers(r.Context(), limit, offset)
	if err != nil {
		respondDomainError(w, err, "list users")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"users": users,
		"total": len(users),
	})
}

func (s *Server) handleToggleEvaluator(w http.ResponseWriter, r *http.Request) {
	user, err := s.accounts.ToggleEvaluator(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, err, "toggle evaluator")
		return
	}

	respondJSON(w, http.StatusOK, user)
}

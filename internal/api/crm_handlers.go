package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tbakker/linkcrm/internal/crm"
)

// Matches the cap the stores clamp to.
const defaultListLimit = 50

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

type personRequest struct {
	Name        string `json:"name" validate:"required"`
	Headline    string `json:"headline"`
	Email       string `json:"email" validate:"omitempty,email"`
	LinkedinURL string `json:"linkedin_url" validate:"omitempty,url"`
	AvatarURL   string `json:"avatar_url" validate:"omitempty,url"`
	Notes       string `json:"notes"`
}

func (s *Server) listPeople(w http.ResponseWriter, r *http.Request) {
	people, err := s.entities.ListPeople(r.Context(), defaultListLimit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if people == nil {
		people = []crm.Person{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"people": people})
}

func (s *Server) createPerson(w http.ResponseWriter, r *http.Request) {
	var req personRequest
	if err := s.decodeValid(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	p := crm.Person{
		Name:        req.Name,
		Headline:    req.Headline,
		Email:       req.Email,
		LinkedinURL: req.LinkedinURL,
		AvatarURL:   req.AvatarURL,
		Notes:       req.Notes,
	}
	id, err := s.entities.CreatePerson(r.Context(), p)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	created, err := s.entities.GetPerson(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) getPerson(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	p, err := s.entities.GetPerson(r.Context(), id)
	if err != nil {
		s.writeEntityError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) updatePerson(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req personRequest
	if err := s.decodeValid(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	existing, err := s.entities.GetPerson(r.Context(), id)
	if err != nil {
		s.writeEntityError(w, err)
		return
	}
	existing.Name = req.Name
	existing.Headline = req.Headline
	existing.Email = req.Email
	existing.LinkedinURL = req.LinkedinURL
	existing.AvatarURL = req.AvatarURL
	existing.Notes = req.Notes
	if err := s.entities.UpdatePerson(r.Context(), existing); err != nil {
		s.writeEntityError(w, err)
		return
	}
	updated, err := s.entities.GetPerson(r.Context(), id)
	if err != nil {
		s.writeEntityError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deletePerson(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := s.entities.DeletePerson(r.Context(), id); err != nil {
		s.writeEntityError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type companyRequest struct {
	Name        string `json:"name" validate:"required"`
	LinkedinURL string `json:"linkedin_url" validate:"omitempty,url"`
	Website     string `json:"website" validate:"omitempty,url"`
	LogoURL     string `json:"logo_url" validate:"omitempty,url"`
	Industry    string `json:"industry"`
	Notes       string `json:"notes"`
}

func (s *Server) listCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := s.entities.ListCompanies(r.Context(), defaultListLimit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if companies == nil {
		companies = []crm.Company{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"companies": companies})
}

func (s *Server) createCompany(w http.ResponseWriter, r *http.Request) {
	var req companyRequest
	if err := s.decodeValid(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	c := crm.Company{
		Name:        req.Name,
		LinkedinURL: req.LinkedinURL,
		Website:     req.Website,
		LogoURL:     req.LogoURL,
		Industry:    req.Industry,
		Notes:       req.Notes,
	}
	id, err := s.entities.CreateCompany(r.Context(), c)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	created, err := s.entities.GetCompany(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) getCompany(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	c, err := s.entities.GetCompany(r.Context(), id)
	if err != nil {
		s.writeEntityError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, c)
}

func (s *Server) updateCompany(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req companyRequest
	if err := s.decodeValid(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	existing, err := s.entities.GetCompany(r.Context(), id)
	if err != nil {
		s.writeEntityError(w, err)
		return
	}
	existing.Name = req.Name
	existing.LinkedinURL = req.LinkedinURL
	existing.Website = req.Website
	existing.LogoURL = req.LogoURL
	existing.Industry = req.Industry
	existing.Notes = req.Notes
	if err := s.entities.UpdateCompany(r.Context(), existing); err != nil {
		s.writeEntityError(w, err)
		return
	}
	updated, err := s.entities.GetCompany(r.Context(), id)
	if err != nil {
		s.writeEntityError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteCompany(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := s.entities.DeleteCompany(r.Context(), id); err != nil {
		s.writeEntityError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) listPositions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	positions, err := s.entities.ListPositions(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if positions == nil {
		positions = []crm.Position{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"positions": positions})
}

type positionRequest struct {
	PersonID  int64      `json:"person_id" validate:"required"`
	CompanyID int64      `json:"company_id" validate:"required"`
	Title     string     `json:"title" validate:"required"`
	Current   bool       `json:"current"`
	StartedAt *time.Time `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at"`
}

func (s *Server) createPosition(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := s.decodeValid(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	p := crm.Position{
		PersonID:  req.PersonID,
		CompanyID: req.CompanyID,
		Title:     req.Title,
		Current:   req.Current,
		StartedAt: req.StartedAt,
		EndedAt:   req.EndedAt,
	}
	id, err := s.entities.CreatePosition(r.Context(), p)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	p.ID = id
	s.writeJSON(w, http.StatusCreated, p)
}

func (s *Server) deletePosition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := s.entities.DeletePosition(r.Context(), id); err != nil {
		s.writeEntityError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) listInteractions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	interactions, err := s.entities.ListInteractions(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if interactions == nil {
		interactions = []crm.Interaction{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"interactions": interactions})
}

type interactionRequest struct {
	PersonID   int64      `json:"person_id" validate:"required"`
	Kind       string     `json:"kind" validate:"required"`
	Note       string     `json:"note"`
	OccurredAt *time.Time `json:"occurred_at"`
}

func (s *Server) createInteraction(w http.ResponseWriter, r *http.Request) {
	var req interactionRequest
	if err := s.decodeValid(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	i := crm.Interaction{
		PersonID: req.PersonID,
		Kind:     req.Kind,
		Note:     req.Note,
	}
	if req.OccurredAt != nil {
		i.OccurredAt = *req.OccurredAt
	} else {
		i.OccurredAt = time.Now().UTC()
	}
	id, err := s.entities.CreateInteraction(r.Context(), i)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	i.ID = id
	s.writeJSON(w, http.StatusCreated, i)
}

func (s *Server) deleteInteraction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := s.entities.DeleteInteraction(r.Context(), id); err != nil {
		s.writeEntityError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// writeEntityError maps store errors onto HTTP status codes.
func (s *Server) writeEntityError(w http.ResponseWriter, err error) {
	if errors.Is(err, crm.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	s.writeError(w, http.StatusInternalServerError, err.Error())
}

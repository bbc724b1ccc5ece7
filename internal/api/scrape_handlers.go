package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tbakker/linkcrm/internal/crm"
	"github.com/tbakker/linkcrm/internal/importer"
	"github.com/tbakker/linkcrm/internal/jobs"
	"github.com/tbakker/linkcrm/internal/poller"
)

type scrapeRequest struct {
	URL  string   `json:"url"`
	URLs []string `json:"urls"`
	Type string   `json:"type" validate:"omitempty,oneof=profile company"`
}

type triggerResponse struct {
	JobID      *string `json:"job_id"`
	SnapshotID string  `json:"snapshot_id"`
	Status     string  `json:"status"`
	URLCount   int     `json:"url_count"`
}

func (s *Server) triggerScrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := s.decodeValid(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	kind, ok := crm.ParseKind(req.Type)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "unknown scrape type: "+req.Type)
		return
	}

	res, err := s.controller.Trigger(r.Context(), jobs.TriggerInput{
		URL:  req.URL,
		URLs: req.URLs,
		Kind: kind,
	})
	if err != nil {
		s.writeError(w, triggerStatus(err), err.Error())
		return
	}

	resp := triggerResponse{
		SnapshotID: res.SnapshotID,
		Status:     string(res.Status),
		URLCount:   res.URLCount,
	}
	if res.Tracked {
		resp.JobID = &res.JobID
		if s.poller != nil {
			s.poller.Add(res.JobID, kind, res.URLs)
		}
	}
	s.writeJSON(w, http.StatusAccepted, resp)
}

func triggerStatus(err error) int {
	if errors.Is(err, jobs.ErrNoValidURLs) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) checkJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	res, err := s.controller.Check(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, crm.ErrJobNotFound) {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	payload := map[string]any{
		"job_id": res.JobID,
		"status": string(res.Status),
	}
	if res.Result != nil {
		payload["result"] = res.Result
	}
	if res.ErrorText != "" {
		payload["error"] = res.ErrorText
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	status := crm.JobStatus(r.URL.Query().Get("status"))
	list, err := s.controller.List(r.Context(), status)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []crm.Job{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": list})
}

func (s *Server) fetchSync(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := s.decodeValid(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	kind, ok := crm.ParseKind(req.Type)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "unknown scrape type: "+req.Type)
		return
	}

	records, err := s.controller.FetchSync(r.Context(), jobs.TriggerInput{
		URL:  req.URL,
		URLs: req.URLs,
		Kind: kind,
	})
	if err != nil {
		s.writeError(w, triggerStatus(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"type":  string(kind),
		"data":  records,
		"count": len(records),
	})
}

func (s *Server) importJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	res, err := s.controller.Check(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, crm.ErrJobNotFound) {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if res.Status != crm.JobStatusCompleted {
		s.writeError(w, http.StatusConflict, "job is not completed: "+string(res.Status))
		return
	}

	summary := importer.Summarize(s.engine.Import(r.Context(), res.Kind, res.Result))
	s.writeJSON(w, http.StatusOK, map[string]any{
		"job_id":  jobID,
		"summary": summary.String(),
		"report":  summary,
	})
}

func (s *Server) listTrackedJobs(w http.ResponseWriter, _ *http.Request) {
	if s.poller == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"jobs": []poller.Entry{}})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": s.poller.Jobs()})
}

func (s *Server) removeTrackedJob(w http.ResponseWriter, r *http.Request) {
	if s.poller != nil {
		s.poller.Remove(chi.URLParam(r, "job_id"))
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

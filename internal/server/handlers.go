package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/jvictorlopez/games-nl-sql-analytics/internal/franchise"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/intent"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/planner"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/sqlgen"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/summarize"
)

const (
	maxQuestionBytes  = 1 << 12
	franchiseTopCount = 5
)

type AskRequest struct {
	Question string `json:"question" validate:"required,max=500"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type FranchiseResponse struct {
	Franchise  intent.Franchise    `json:"franchise"`
	Answer     string              `json:"answer"`
	Weighted   *franchise.Weighted `json:"weighted"`
	TotalSales string              `json:"total_sales"`
	Top        []franchise.Entry   `json:"top"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: s.cfg.Version})
}

func (s *Server) handleAskQuery(w http.ResponseWriter, r *http.Request) {
	s.ask(w, r, AskRequest{Question: strings.TrimSpace(r.URL.Query().Get("q"))})
}

func (s *Server) handleAskBody(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQuestionBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	s.ask(w, r, req)
}

func (s *Server) ask(w http.ResponseWriter, r *http.Request, req AskRequest) {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Tag() == "max" {
			writeError(w, http.StatusBadRequest, "question is too long")
			return
		}
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	env, err := s.cfg.Orchestrator.RouteAndExecute(r.Context(), req.Question)
	if err != nil {
		s.log.Error("server: ask failed", "question", req.Question, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to answer question")
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func (s *Server) handleDatasetSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.cfg.Dataset.Summary(r.Context())
	if err != nil {
		s.log.Error("server: dataset summary failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to summarize dataset")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleFranchise(w http.ResponseWriter, r *http.Request) {
	slug := strings.ToLower(chi.URLParam(r, "slug"))
	f, ok := intent.FranchiseBySlug(slug)
	if !ok {
		writeError(w, http.StatusNotFound, summarize.NotFound(slug, franchiseSlugs()))
		return
	}

	plan, err := planner.PlanEntities(intent.FranchiseAvg, intent.EntityBundle{Franchise: &f})
	if err != nil {
		s.internalError(w, "failed to plan franchise", err)
		return
	}
	scoresSQL, err := sqlgen.Template(plan, s.cfg.Validator.RowLimit())
	if err != nil {
		s.internalError(w, "failed to build franchise query", err)
		return
	}
	salesSQL, err := sqlgen.FranchiseSalesTemplate(f)
	if err != nil {
		s.internalError(w, "failed to build franchise sales query", err)
		return
	}

	scores, err := s.execute(r.Context(), scoresSQL)
	if err != nil {
		s.internalError(w, "failed to query franchise scores", err)
		return
	}
	sales, err := s.execute(r.Context(), salesSQL)
	if err != nil {
		s.internalError(w, "failed to query franchise sales", err)
		return
	}

	resp := FranchiseResponse{
		Franchise:  f,
		TotalSales: summarize.FranchiseTotalSales(f.Label, sales),
		Top:        franchise.Top(scores, franchiseTopCount),
	}
	if len(scores.Rows) == 0 {
		resp.Answer = summarize.NotFound(f.Label, nil)
	} else {
		resp.Weighted = franchise.Aggregate(scores)
		resp.Answer = summarize.Franchise(f.Label, resp.Weighted)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	s.log.Error("server: "+msg, "error", err)
	writeError(w, http.StatusInternalServerError, msg)
}

func franchiseSlugs() []string {
	var slugs []string
	for _, f := range intent.Franchises() {
		slugs = append(slugs, f.Slug)
	}
	return slugs
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/jvictorlopez/games-nl-sql-analytics/internal/intent"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/planner"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/sqlgen"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/store"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/summarize"
)

// RankingsQuery is the query string of GET /games/rankings.
type RankingsQuery struct {
	By        string `validate:"oneof=global na eu jp other critic user combo"`
	N         int    `validate:"min=1,max=100"`
	Weighted  bool
	Year      *int
	YearFrom  *int
	YearTo    *int
	Platform  *string
	Genre     *string
	Publisher *string
	Developer *string
	Franchise *string
}

type RankingsResponse struct {
	By      intent.MetricKey    `json:"by"`
	Metric  planner.Metric      `json:"metric"`
	Filters intent.EntityBundle `json:"filters"`
	Answer  string              `json:"answer"`
	SQL     string              `json:"sql"`
	Items   store.ResultSet     `json:"items"`
}

type GameResponse struct {
	Name        string              `json:"name"`
	Answer      string              `json:"answer,omitempty"`
	Rows        store.ResultSet     `json:"rows"`
	Percentiles map[string]*float64 `json:"percentiles_within_genre"`
	Neighbors   store.ResultSet     `json:"similar_by_genre_year"`
	Suggestions []string            `json:"suggestions,omitempty"`
}

func parseRankingsQuery(q url.Values) (RankingsQuery, error) {
	rq := RankingsQuery{
		By:        strings.ToLower(strings.TrimSpace(q.Get("by"))),
		N:         planner.DefaultLimit,
		Platform:  stringParam(q, "platform"),
		Genre:     stringParam(q, "genre"),
		Publisher: stringParam(q, "publisher"),
		Developer: stringParam(q, "developer"),
		Franchise: stringParam(q, "franchise"),
	}
	if rq.By == "" {
		rq.By = string(intent.MetricGlobal)
	}

	n, err := intParam(q, "n")
	if err != nil {
		return RankingsQuery{}, err
	}
	if n != nil {
		rq.N = *n
	}
	if raw := strings.TrimSpace(q.Get("weighted")); raw != "" {
		if rq.Weighted, err = strconv.ParseBool(raw); err != nil {
			return RankingsQuery{}, fmt.Errorf("weighted must be a boolean")
		}
	}
	for key, dst := range map[string]**int{"year": &rq.Year, "year_from": &rq.YearFrom, "year_to": &rq.YearTo} {
		if *dst, err = intParam(q, key); err != nil {
			return RankingsQuery{}, err
		}
	}
	if rq.YearFrom != nil && rq.YearTo != nil && *rq.YearFrom > *rq.YearTo {
		rq.YearFrom, rq.YearTo = rq.YearTo, rq.YearFrom
	}
	return rq, nil
}

func (s *Server) handleRankings(w http.ResponseWriter, r *http.Request) {
	rq, err := parseRankingsQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.validate.Struct(rq); err != nil {
		writeError(w, http.StatusBadRequest, rankingsQueryError(err))
		return
	}

	key := intent.MetricKey(rq.By)
	b := intent.EntityBundle{
		Platform:  rq.Platform,
		Genre:     rq.Genre,
		Year:      rq.Year,
		YearFrom:  rq.YearFrom,
		YearTo:    rq.YearTo,
		Publisher: rq.Publisher,
		Developer: rq.Developer,
		Metric:    &key,
		TopN:      &rq.N,
		Weighted:  rq.Weighted,
	}
	if rq.Franchise != nil {
		f, ok := intent.FranchiseBySlug(strings.ToLower(*rq.Franchise))
		if !ok {
			writeError(w, http.StatusNotFound, summarize.NotFound(*rq.Franchise, franchiseSlugs()))
			return
		}
		b.Franchise = &f
	}

	plan, err := planner.PlanEntities(intent.Rankings, b)
	if err != nil {
		s.internalError(w, "failed to plan rankings", err)
		return
	}
	sql, err := sqlgen.Template(plan, s.cfg.Validator.RowLimit())
	if err != nil {
		s.internalError(w, "failed to build rankings query", err)
		return
	}
	rs, err := s.execute(r.Context(), sql)
	if err != nil {
		s.internalError(w, "failed to query rankings", err)
		return
	}

	answer := summarize.NoData()
	if rs.Count > 0 {
		answer = summarize.Rankings(plan, rs)
	}
	writeJSON(w, http.StatusOK, RankingsResponse{
		By:      key,
		Metric:  plan.Metric,
		Filters: plan.Entities,
		Answer:  answer,
		SQL:     sql,
		Items:   rs,
	})
}

func rankingsQueryError(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		switch verrs[0].Field() {
		case "By":
			return "by must be one of global, na, eu, jp, other, critic, user, combo"
		case "N":
			return fmt.Sprintf("n must be between 1 and %d", planner.MaxLimit)
		}
	}
	return "invalid rankings query"
}

func (s *Server) handleGame(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	name = strings.TrimSpace(name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "game name is required")
		return
	}
	q := r.URL.Query()
	year, err := intParam(q, "year")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rowsSQL, err := sqlgen.GameRowsTemplate(sqlgen.GameFilter{Name: name, Platform: stringParam(q, "platform"), Year: year}, s.cfg.Validator.RowLimit())
	if err != nil {
		s.internalError(w, "failed to build game query", err)
		return
	}
	rows, err := s.execute(r.Context(), rowsSQL)
	if err != nil {
		s.internalError(w, "failed to query game", err)
		return
	}

	resp := GameResponse{Name: name, Rows: rows, Percentiles: map[string]*float64{}}
	if rows.Count == 0 {
		suggestions, err := s.suggestions(r.Context(), name)
		if err != nil {
			s.internalError(w, "failed to query suggestions", err)
			return
		}
		resp.Suggestions = suggestions
		resp.Answer = summarize.NotFound(name, suggestions)
		writeJSON(w, http.StatusNotFound, resp)
		return
	}

	// The first release anchors the genre comparison.
	first := rows.Rows[0]
	genre := stringValue(first["genre"])
	if resp.Percentiles, err = s.genrePercentiles(r.Context(), sqlgen.GenrePercentiles{
		Genre:       genre,
		Critic:      floatValue(first["critic_score"]),
		User:        floatValue(first["user_score"]),
		GlobalSales: floatValue(first["global_sales"]),
	}); err != nil {
		s.internalError(w, "failed to query genre percentiles", err)
		return
	}

	var releaseYear *int
	if y, ok := store.AsInt(first["year"]); ok {
		v := int(y)
		releaseYear = &v
	}
	neighborsSQL, err := sqlgen.GenreNeighborsTemplate(name, genre, releaseYear)
	if err != nil {
		s.internalError(w, "failed to build neighbors query", err)
		return
	}
	if resp.Neighbors, err = s.execute(r.Context(), neighborsSQL); err != nil {
		s.internalError(w, "failed to query neighbors", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) suggestions(ctx context.Context, name string) ([]string, error) {
	sql, err := sqlgen.GameSuggestionsTemplate(name)
	if err != nil {
		return nil, err
	}
	rs, err := s.execute(ctx, sql)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, r := range rs.Rows {
		if n, ok := r["name"].(string); ok {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *Server) genrePercentiles(ctx context.Context, p sqlgen.GenrePercentiles) (map[string]*float64, error) {
	out := map[string]*float64{"critic": nil, "user": nil, "global_sales": nil}
	if p.Empty() {
		return out, nil
	}
	sql, err := sqlgen.GenrePercentilesTemplate(p)
	if err != nil {
		return nil, err
	}
	rs, err := s.execute(ctx, sql)
	if err != nil {
		return nil, err
	}
	if rs.Count == 0 {
		return out, nil
	}
	row := rs.Rows[0]
	out["critic"] = floatValue(row[sqlgen.CriticPercentile])
	out["user"] = floatValue(row[sqlgen.UserPercentile])
	out["global_sales"] = floatValue(row[sqlgen.GlobalSalesPercentile])
	return out, nil
}

// execute validates a server-built statement and runs it.
func (s *Server) execute(ctx context.Context, sql string) (store.ResultSet, error) {
	if err := s.cfg.Validator.Validate(sql); err != nil {
		return store.ResultSet{}, err
	}
	return s.cfg.Dataset.Execute(ctx, sqlgen.Statement{
		SQL:        sql,
		Provenance: sqlgen.ProvenanceFallback,
		Verdict:    sqlgen.Verdict{Valid: true},
	})
}

func stringParam(q url.Values, key string) *string {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return nil
	}
	return &v
}

func intParam(q url.Values, key string) (*int, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be an integer", key)
	}
	return &v, nil
}

func stringValue(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

func floatValue(v any) *float64 {
	f, ok := store.AsFloat(v)
	if !ok {
		return nil
	}
	return &f
}

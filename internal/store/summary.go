package store

import (
	"context"
	"fmt"

	"github.com/jvictorlopez/games-nl-sql-analytics/internal/sqlgen"
)

const summaryCacheKey = "dataset_summary"

type YearRange struct {
	Min *int64 `json:"min"`
	Max *int64 `json:"max"`
}

// DatasetSummary describes the loaded table as a whole.
type DatasetSummary struct {
	Titles         int64              `json:"titles"`
	Years          YearRange          `json:"years"`
	GlobalSalesSum float64            `json:"global_sales_sum"`
	CriticScoreAvg *float64           `json:"critic_score_avg"`
	UserScoreAvg   *float64           `json:"user_score_avg"`
	Missing        map[string]float64 `json:"missing"`
}

var summaryMissingColumns = []string{"critic_score", "user_score", "critic_count", "user_count"}

func summaryQuery() string {
	q := "SELECT COUNT(*) AS titles, MIN(year) AS year_min, MAX(year) AS year_max, " +
		"COALESCE(SUM(global_sales), 0) AS global_sales_sum, " +
		"AVG(critic_score) AS critic_score_avg, AVG(user_score) AS user_score_avg"
	for _, c := range summaryMissingColumns {
		q += fmt.Sprintf(", AVG(CASE WHEN %s IS NULL THEN 1.0 ELSE 0.0 END) AS %s_missing", c, c)
	}
	return q + " FROM " + sqlgen.Table
}

// Summary returns the dataset overview, computed once per cache TTL.
func (s *Store) Summary(ctx context.Context) (DatasetSummary, error) {
	if cached := s.summary.Get(summaryCacheKey); cached != nil {
		return cached.Value().(DatasetSummary), nil
	}

	rs, err := s.query(ctx, summaryQuery())
	if err != nil {
		return DatasetSummary{}, fmt.Errorf("failed to summarize dataset: %w", err)
	}
	if rs.Count != 1 {
		return DatasetSummary{}, fmt.Errorf("failed to summarize dataset: expected 1 row, got %d", rs.Count)
	}
	row := rs.Rows[0]

	sum := DatasetSummary{Missing: make(map[string]float64, len(summaryMissingColumns))}
	sum.Titles, _ = AsInt(row["titles"])
	if v, ok := AsInt(row["year_min"]); ok {
		sum.Years.Min = &v
	}
	if v, ok := AsInt(row["year_max"]); ok {
		sum.Years.Max = &v
	}
	sum.GlobalSalesSum, _ = AsFloat(row["global_sales_sum"])
	if v, ok := AsFloat(row["critic_score_avg"]); ok {
		sum.CriticScoreAvg = &v
	}
	if v, ok := AsFloat(row["user_score_avg"]); ok {
		sum.UserScoreAvg = &v
	}
	for _, c := range summaryMissingColumns {
		frac, ok := AsFloat(row[c+"_missing"])
		if !ok {
			frac = 1
		}
		sum.Missing[c] = frac
	}

	s.summary.Set(summaryCacheKey, sum, s.cfg.SummaryCacheTTL)
	return sum, nil
}

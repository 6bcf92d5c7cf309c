package sqlgen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jvictorlopez/games-nl-sql-analytics/internal/intent"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/planner"
)

// FranchiseColumns are the per-title columns the franchise template returns.
var FranchiseColumns = []string{"name", "platform", "year", "critic_score", "critic_count", "user_score", "user_count"}

// Template builds the deterministic statement for a plan. Identical plans
// always produce byte-identical SQL. Only allow-listed identifiers, numeric
// literals and closed-vocabulary strings are interpolated.
func Template(p planner.QueryPlan, rowLimit int) (string, error) {
	switch p.Intent {
	case intent.Rankings:
		return rankingsTemplate(p)
	case intent.Summary:
		return summaryTemplate(p), nil
	case intent.FranchiseAvg:
		return franchiseTemplate(p, rowLimit)
	default:
		return "", fmt.Errorf("%w: no template for %s", planner.ErrNotPlannable, p.Intent)
	}
}

func rankingsTemplate(p planner.QueryPlan) (string, error) {
	m := p.Metric
	if !m.IsCombo() && !planner.IsAllowedColumn(m.Column) {
		return "", fmt.Errorf("metric column %q is not allow-listed", m.Column)
	}
	if p.Limit <= 0 {
		return "", fmt.Errorf("rankings plan has no limit")
	}

	var expr string
	var conds []string
	switch {
	case m.IsCombo():
		expr = comboExpr(m.Weighted)
		conds = append(conds, "(critic_score IS NOT NULL OR user_score IS NOT NULL)")
	case m.IsSales():
		expr = "SUM(" + m.Column + ")"
		conds = append(conds, m.Column+" IS NOT NULL")
	case m.Weighted:
		count := countColumn(m.Column)
		expr = weightedAvg(m.Column, count)
		conds = append(conds, m.Column+" IS NOT NULL", count+" > 0")
	default:
		expr = "AVG(" + m.Column + ")"
		conds = append(conds, m.Column+" IS NOT NULL")
	}
	conds = append(conds, filterConditions(p.Entities)...)

	dir := "DESC"
	if p.Order == planner.OrderAsc {
		dir = "ASC"
	}

	var b strings.Builder
	b.WriteString("SELECT name, MIN(year) AS year, ")
	b.WriteString(expr)
	b.WriteString(" AS ")
	b.WriteString(m.Label)
	b.WriteString(" FROM ")
	b.WriteString(Table)
	b.WriteString(" WHERE ")
	b.WriteString(strings.Join(conds, " AND "))
	b.WriteString(" GROUP BY name ORDER BY ")
	b.WriteString(m.Label)
	b.WriteString(" " + dir + " NULLS LAST, name ASC LIMIT ")
	b.WriteString(strconv.Itoa(p.Limit))
	return b.String(), nil
}

func summaryTemplate(p planner.QueryPlan) string {
	var b strings.Builder
	b.WriteString("SELECT COUNT(*) AS titles, MIN(year) AS year_min, MAX(year) AS year_max, ")
	b.WriteString("SUM(global_sales) AS global_sales_sum, AVG(critic_score) AS critic_score_avg, ")
	b.WriteString("AVG(user_score) AS user_score_avg FROM ")
	b.WriteString(Table)
	if conds := filterConditions(p.Entities); len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	b.WriteString(" LIMIT 1")
	return b.String()
}

func franchiseTemplate(p planner.QueryPlan, rowLimit int) (string, error) {
	f := p.Entities.Franchise
	if f == nil || f.Pattern == "" {
		return "", &planner.EntityResolutionError{Intent: p.Intent, Entity: "franchise"}
	}
	if rowLimit <= 0 {
		rowLimit = DefaultRowLimit
	}

	// The franchise filter is already part of the conditions.
	conds := append([]string{"(critic_score IS NOT NULL OR user_score IS NOT NULL)"}, filterConditions(p.Entities)...)

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(FranchiseColumns, ", "))
	b.WriteString(" FROM ")
	b.WriteString(Table)
	b.WriteString(" WHERE ")
	b.WriteString(strings.Join(conds, " AND "))
	b.WriteString(" ORDER BY year ASC NULLS LAST, name ASC LIMIT ")
	b.WriteString(strconv.Itoa(rowLimit))
	return b.String(), nil
}

// filterConditions renders the entity filters in a fixed order.
func filterConditions(e intent.EntityBundle) []string {
	var conds []string
	if e.Franchise != nil && e.Franchise.Pattern != "" {
		conds = append(conds, "lower(name) LIKE "+quote("%"+strings.ToLower(e.Franchise.Pattern)+"%"))
	}
	if e.Platform != nil {
		conds = append(conds, "platform = "+quote(*e.Platform))
	}
	if e.Genre != nil {
		conds = append(conds, "genre = "+quote(*e.Genre))
	}
	if e.Publisher != nil {
		conds = append(conds, "publisher = "+quote(*e.Publisher))
	}
	if e.Developer != nil {
		conds = append(conds, "developer = "+quote(*e.Developer))
	}
	switch {
	case e.Year != nil:
		conds = append(conds, "year = "+strconv.Itoa(*e.Year))
	case e.YearFrom != nil && e.YearTo != nil:
		conds = append(conds, "year BETWEEN "+strconv.Itoa(*e.YearFrom)+" AND "+strconv.Itoa(*e.YearTo))
	case e.YearFrom != nil:
		conds = append(conds, "year >= "+strconv.Itoa(*e.YearFrom))
	case e.YearTo != nil:
		conds = append(conds, "year <= "+strconv.Itoa(*e.YearTo))
	}
	return conds
}

func comboExpr(weighted bool) string {
	if weighted {
		return scoreMix(weightedAvg("critic_score", "critic_count"), weightedAvg("user_score", "user_count"))
	}
	return "AVG(" + scoreMix("critic_score", "user_score") + ")"
}

// scoreMix blends a critic and a user score, falling back to whichever one
// is present.
func scoreMix(c, u string) string {
	return "CASE WHEN " + c + " IS NULL THEN " + u +
		" WHEN " + u + " IS NULL THEN " + c +
		" ELSE " + weight(planner.CriticWeight) + " * " + c + " + " + weight(planner.UserWeight) + " * " + u + " END"
}

func weightedAvg(score, count string) string {
	return "SUM(" + score + " * " + count + ") / NULLIF(SUM(" + count + "), 0)"
}

func countColumn(score string) string {
	return strings.TrimSuffix(score, "_score") + "_count"
}

func weight(w float64) string {
	return strconv.FormatFloat(w, 'f', -1, 64)
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// FranchiseSalesTemplate totals regional sales over every title matching
// the franchise pattern.
func FranchiseSalesTemplate(f intent.Franchise) (string, error) {
	if f.Pattern == "" {
		return "", &planner.EntityResolutionError{Intent: intent.FranchiseAvg, Entity: "franchise"}
	}
	var b strings.Builder
	b.WriteString("SELECT COUNT(*) AS titles")
	for _, col := range []string{"global_sales", "na_sales", "eu_sales", "jp_sales", "other_sales"} {
		b.WriteString(", SUM(" + col + ") AS " + col)
	}
	b.WriteString(" FROM ")
	b.WriteString(Table)
	b.WriteString(" WHERE lower(name) LIKE ")
	b.WriteString(quote("%" + strings.ToLower(f.Pattern) + "%"))
	b.WriteString(" LIMIT 1")
	return b.String(), nil
}

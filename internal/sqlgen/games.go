package sqlgen

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// NeighborLimit caps the similar titles listed next to a game.
	NeighborLimit = 8
	// SuggestionLimit caps the names offered when a game is not found.
	SuggestionLimit = 5

	neighborYearSpan = 2
)

// GameColumns are the per-release columns of a game detail row.
var GameColumns = []string{
	"name", "platform", "year", "genre", "publisher", "developer",
	"global_sales", "na_sales", "eu_sales", "jp_sales", "other_sales",
	"critic_score", "critic_count", "user_score", "user_count",
}

var neighborColumns = []string{"name", "platform", "year", "genre", "publisher", "global_sales", "critic_score", "user_score"}

// GameFilter selects the releases of one title. Name matches case-insensitively.
type GameFilter struct {
	Name     string
	Platform *string
	Year     *int
}

// GameRowsTemplate lists every release of a title with its per-row combined
// score.
func GameRowsTemplate(f GameFilter, rowLimit int) (string, error) {
	name := strings.TrimSpace(f.Name)
	if name == "" {
		return "", fmt.Errorf("game name is required")
	}
	if rowLimit <= 0 {
		rowLimit = DefaultRowLimit
	}

	conds := []string{"lower(name) = lower(" + quote(name) + ")"}
	if f.Platform != nil {
		conds = append(conds, "lower(platform) = lower("+quote(*f.Platform)+")")
	}
	if f.Year != nil {
		conds = append(conds, "year = "+strconv.Itoa(*f.Year))
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(GameColumns, ", "))
	b.WriteString(", " + scoreMix("critic_score", "user_score") + " AS score_combo FROM ")
	b.WriteString(Table)
	b.WriteString(" WHERE ")
	b.WriteString(strings.Join(conds, " AND "))
	b.WriteString(" ORDER BY year ASC NULLS LAST, platform ASC LIMIT ")
	b.WriteString(strconv.Itoa(rowLimit))
	return b.String(), nil
}

// GameSuggestionsTemplate lists distinct titles containing the name.
func GameSuggestionsTemplate(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("game name is required")
	}
	return "SELECT DISTINCT name FROM " + Table +
		" WHERE lower(name) LIKE " + quote("%"+strings.ToLower(name)+"%") +
		" ORDER BY name ASC LIMIT " + strconv.Itoa(SuggestionLimit), nil
}

// Percentile result columns.
const (
	CriticPercentile      = "critic_pct"
	UserPercentile        = "user_pct"
	GlobalSalesPercentile = "global_sales_pct"
)

// GenrePercentiles holds the values a game is ranked by within its genre.
// A nil genre ranks against the whole table.
type GenrePercentiles struct {
	Genre       *string
	Critic      *float64
	User        *float64
	GlobalSales *float64
}

// Empty reports whether there is no value to rank.
func (p GenrePercentiles) Empty() bool {
	return p.Critic == nil && p.User == nil && p.GlobalSales == nil
}

// GenrePercentilesTemplate computes, for each value present, the percentage
// of titles in the genre whose value is strictly lower. Titles missing the
// value are ignored.
func GenrePercentilesTemplate(p GenrePercentiles) (string, error) {
	if p.Empty() {
		return "", fmt.Errorf("no value to rank")
	}

	var exprs []string
	for _, v := range []struct {
		column string
		alias  string
		value  *float64
	}{
		{"critic_score", CriticPercentile, p.Critic},
		{"user_score", UserPercentile, p.User},
		{"global_sales", GlobalSalesPercentile, p.GlobalSales},
	} {
		if v.value == nil {
			continue
		}
		if math.IsNaN(*v.value) || math.IsInf(*v.value, 0) {
			return "", fmt.Errorf("%s is not a finite number", v.column)
		}
		exprs = append(exprs, "AVG(CASE WHEN "+v.column+" IS NULL THEN NULL WHEN "+v.column+" < "+
			strconv.FormatFloat(*v.value, 'f', -1, 64)+" THEN 100.0 ELSE 0.0 END) AS "+v.alias)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(exprs, ", "))
	b.WriteString(" FROM ")
	b.WriteString(Table)
	if p.Genre != nil {
		b.WriteString(" WHERE genre = " + quote(*p.Genre))
	}
	b.WriteString(" LIMIT 1")
	return b.String(), nil
}

// GenreNeighborsTemplate lists other titles of the same genre released
// within two years of year, best combined score first.
func GenreNeighborsTemplate(name string, genre *string, year *int) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("game name is required")
	}

	conds := []string{"lower(name) <> lower(" + quote(name) + ")"}
	if genre != nil {
		conds = append(conds, "genre = "+quote(*genre))
	}
	if year != nil {
		conds = append(conds, "year BETWEEN "+strconv.Itoa(*year-neighborYearSpan)+" AND "+strconv.Itoa(*year+neighborYearSpan))
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(neighborColumns, ", "))
	b.WriteString(", " + scoreMix("critic_score", "user_score") + " AS score_combo FROM ")
	b.WriteString(Table)
	b.WriteString(" WHERE ")
	b.WriteString(strings.Join(conds, " AND "))
	b.WriteString(" ORDER BY score_combo DESC NULLS LAST, global_sales DESC NULLS LAST, name ASC LIMIT ")
	b.WriteString(strconv.Itoa(NeighborLimit))
	return b.String(), nil
}

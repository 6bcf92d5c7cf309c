package lookup

import (
	"fmt"
	"strings"

	"github.com/jvictorlopez/games-nl-sql-analytics/internal/intent"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/sqlgen"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/store"
)

// Shape is the kind of fact a deterministic lookup retrieves.
type Shape string

const (
	ShapeNone      Shape = ""
	ShapePlatforms Shape = "platforms"
	ShapeYear      Shape = "year"
)

const platformListLimit = 50

var (
	platformCues = []string{"plataforma", "platform", "console", "consoles"}
	yearCues     = []string{"quando", "ano", "when", "year", "lançado", "lancado", "lançamento", "lancamento", "released"}
)

// Query is a statement built without the model.
type Query struct {
	Shape Shape
	Title string
	SQL   string
}

// Generate builds a lookup statement for platform-list and release-year
// questions about a canonical or quoted title. It reports false when the
// question has neither shape.
func Generate(question string) (Query, bool) {
	b := intent.Extract(question)
	if b.Title == nil || strings.TrimSpace(*b.Title) == "" {
		return Query{}, false
	}
	title := strings.TrimSpace(*b.Title)
	lower := strings.ToLower(question)

	match := "lower(name) = lower(" + quote(title) + ")"
	switch {
	case containsAny(lower, platformCues):
		return Query{
			Shape: ShapePlatforms,
			Title: title,
			SQL: fmt.Sprintf("SELECT DISTINCT platform FROM %s WHERE %s ORDER BY platform LIMIT %d",
				sqlgen.Table, match, platformListLimit),
		}, true
	case containsAny(lower, yearCues):
		return Query{
			Shape: ShapeYear,
			Title: title,
			SQL:   fmt.Sprintf("SELECT MIN(year) AS year FROM %s WHERE %s LIMIT 1", sqlgen.Table, match),
		}, true
	}
	return Query{}, false
}

// Describe phrases a deterministic lookup result.
func Describe(q Query, rs store.ResultSet) string {
	switch q.Shape {
	case ShapePlatforms:
		return fmt.Sprintf("Plataformas de %s: %s.", q.Title, strings.Join(column(rs, "platform"), ", "))
	case ShapeYear:
		if len(rs.Rows) > 0 {
			if y, ok := store.AsInt(rs.Rows[0]["year"]); ok {
				return fmt.Sprintf("Ano de lançamento de %s: %d.", q.Title, y)
			}
		}
	}
	return describeGeneric(rs)
}

func describeGeneric(rs store.ResultSet) string {
	if len(rs.Columns) == 1 {
		return "Resultado: " + strings.Join(column(rs, rs.Columns[0]), ", ") + "."
	}
	rows := make([]string, 0, len(rs.Rows))
	for _, r := range rs.Rows {
		cells := make([]string, 0, len(rs.Columns))
		for _, c := range rs.Columns {
			cells = append(cells, fmt.Sprintf("%s=%v", c, r[c]))
		}
		rows = append(rows, strings.Join(cells, ", "))
	}
	return "Resultado: " + strings.Join(rows, "; ") + "."
}

func column(rs store.ResultSet, name string) []string {
	out := make([]string, 0, len(rs.Rows))
	for _, r := range rs.Rows {
		if v := r[name]; v != nil {
			out = append(out, fmt.Sprint(v))
		}
	}
	return out
}

// empty reports whether a result carries no usable value, which includes an
// aggregate over zero rows returning a single all-NULL row.
func empty(rs store.ResultSet) bool {
	for _, r := range rs.Rows {
		for _, v := range r {
			if v != nil {
				return false
			}
		}
	}
	return true
}

func containsAny(s string, cues []string) bool {
	for _, c := range cues {
		if strings.Contains(s, c) {
			return true
		}
	}
	return false
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

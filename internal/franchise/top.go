package franchise

import (
	"cmp"
	"slices"

	"github.com/jvictorlopez/games-nl-sql-analytics/internal/store"
)

// Entry is one franchise title ranked by its combined score.
type Entry struct {
	Name     string  `json:"name"`
	Platform string  `json:"platform"`
	Year     *int64  `json:"year"`
	Combined float64 `json:"combined"`
}

// Top returns the n best titles by combined score, ties broken by name.
// Rows with neither score are skipped.
func Top(rs store.ResultSet, n int) []Entry {
	entries := make([]Entry, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		c, cok := store.AsFloat(row["critic_score"])
		u, uok := store.AsFloat(row["user_score"])
		combined := combine(ptrIf(c, cok), ptrIf(u, uok))
		if combined == nil {
			continue
		}
		e := Entry{Combined: *combined}
		e.Name, _ = row["name"].(string)
		e.Platform, _ = row["platform"].(string)
		if y, ok := store.AsInt(row["year"]); ok {
			e.Year = &y
		}
		entries = append(entries, e)
	}
	slices.SortStableFunc(entries, func(a, b Entry) int {
		if c := cmp.Compare(b.Combined, a.Combined); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return entries[:min(n, len(entries))]
}

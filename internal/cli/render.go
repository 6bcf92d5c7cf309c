package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/jvictorlopez/games-nl-sql-analytics/internal/orchestrator"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/store"
)

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetRowLine(true)
	table.SetHeader(header)
	return table
}

func renderResultSet(w io.Writer, rs store.ResultSet) {
	table := newTable(w, rs.Columns)
	for _, vals := range rs.Values() {
		row := make([]string, len(vals))
		for i, v := range vals {
			row[i] = formatValue(v)
		}
		table.Append(row)
	}
	table.Render()
}

func renderEnvelope(w io.Writer, env orchestrator.Envelope) {
	if rs, ok := env.Data.(store.ResultSet); ok && len(rs.Rows) > 0 {
		renderResultSet(w, rs)
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, env.Answer)

	meta := "intent=" + env.Meta.Intent.String()
	if env.Meta.SQLProvenance != "" {
		meta += " provenance=" + string(env.Meta.SQLProvenance)
	}
	if env.Meta.LookupState != "" {
		meta += " lookup=" + string(env.Meta.LookupState)
	}
	fmt.Fprintf(w, "\n%s elapsed=%dms\n", meta, env.Meta.ElapsedMS)
	if env.Meta.SQL != "" {
		fmt.Fprintf(w, "sql: %s\n", env.Meta.SQL)
	}
}

func renderSummary(w io.Writer, s store.DatasetSummary) {
	table := newTable(w, []string{"Metric", "Value"})
	table.Append([]string{"titles", strconv.FormatInt(s.Titles, 10)})
	table.Append([]string{"year_min", formatValue(deref(s.Years.Min))})
	table.Append([]string{"year_max", formatValue(deref(s.Years.Max))})
	table.Append([]string{"global_sales_sum", formatValue(s.GlobalSalesSum)})
	table.Append([]string{"critic_score_avg", formatValue(deref(s.CriticScoreAvg))})
	table.Append([]string{"user_score_avg", formatValue(deref(s.UserScoreAvg))})
	for _, col := range []string{"critic_score", "user_score", "critic_count", "user_count"} {
		if frac, ok := s.Missing[col]; ok {
			table.Append([]string{col + "_missing", fmt.Sprintf("%.1f%%", frac*100)})
		}
	}
	table.Render()
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "-"
	case float64:
		return strconv.FormatFloat(v, 'f', 2, 64)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

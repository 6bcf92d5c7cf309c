package summarize

import (
	"fmt"
	"strings"

	"github.com/jvictorlopez/games-nl-sql-analytics/internal/franchise"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/planner"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/store"
)

const (
	outOfScopeText = "Sua pergunta parece estar fora do escopo deste app (focado em dados de videogames). " +
		"Tente: 'Top 10 vendas globais em 2010', 'Top 10 no Japão por User_Score', 'Média de nota da franquia Zelda'."

	noDataText         = "Nenhum retorno para sua consulta."
	genericFailureText = "Não consegui executar a consulta para essa pergunta. Tente reformular ou peça um ranking ou estatística geral."
)

// OutOfScope is the fixed answer for questions outside the games domain.
func OutOfScope() string {
	return outOfScopeText
}

// NoData is the answer for a query that returned no rows.
func NoData() string {
	return noDataText
}

// GenericFailure is the answer when a validated statement fails to run.
func GenericFailure() string {
	return genericFailureText
}

var entityLabels = map[string]string{
	"franchise": "a franquia (por exemplo, Zelda ou Mario)",
	"metric":    "a métrica (vendas por região, nota da crítica ou dos usuários)",
	"title":     "o título do jogo",
}

// NeedMoreDetail asks the user for the entity the question left out.
func NeedMoreDetail(entity string) string {
	label, ok := entityLabels[entity]
	if !ok {
		label = entity
	}
	return fmt.Sprintf("Preciso de mais detalhes para responder: informe %s. Exemplo: 'Média de nota da franquia Zelda'.", label)
}

// NotFound reports a title or franchise missing from the dataset, listing
// up to five suggestions.
func NotFound(term string, suggestions []string) string {
	if term == "" {
		term = "o título"
	}
	if len(suggestions) > 0 {
		return fmt.Sprintf("Não encontrei '%s' na base. Tente um dos títulos parecidos: %s. "+
			"Você também pode refazer a busca com outro nome ou parte do nome.",
			term, strings.Join(suggestions[:min(5, len(suggestions))], "; "))
	}
	return fmt.Sprintf("Não encontrei '%s' na base. Se quiser, refaça a busca com outra grafia "+
		"ou peça um ranking/estatística geral.", term)
}

// Franchise renders the weighted franchise averages.
func Franchise(label string, w *franchise.Weighted) string {
	return fmt.Sprintf("Para a franquia %s: Críticos %s (n=%d críticas), Usuários %s (n=%d avaliações), combinado %s; títulos considerados: %d.",
		label, score(w.CriticWavg), w.CriticCountSum, score(w.UserWavg), w.UserCountSum, score(w.CombinedWavg), w.TotalTitles)
}

// FranchiseTotalSales renders the single-row result of the franchise sales
// template.
func FranchiseTotalSales(label string, rs store.ResultSet) string {
	if len(rs.Rows) == 0 {
		return fmt.Sprintf("Não consegui calcular as vendas totais de %s.", label)
	}
	r := rs.Rows[0]
	titles, _ := store.AsInt(r["titles"])
	return fmt.Sprintf("A franquia %s soma %.2f milhões globalmente (NA %.2f, EU %.2f, JP %.2f, Outros %.2f; títulos considerados=%d).",
		label, num(r["global_sales"]), num(r["na_sales"]), num(r["eu_sales"]), num(r["jp_sales"]), num(r["other_sales"]), titles)
}

// Rankings lists the ranked rows with their metric value.
func Rankings(p planner.QueryPlan, rs store.ResultSet) string {
	n := p.Limit
	if n <= 0 {
		n = len(rs.Rows)
	}
	when := ""
	if y := p.Entities.Year; y != nil {
		when = fmt.Sprintf(" em %d", *y)
	}

	parts := make([]string, 0, len(rs.Rows))
	for _, r := range rs.Rows[:min(n, len(rs.Rows))] {
		parts = append(parts, rankedEntry(r, p.Metric.Label))
	}
	return fmt.Sprintf("Top %d por %s%s: %s.", n, p.Metric.Label, when, strings.Join(parts, ", "))
}

func rankedEntry(r store.Row, label string) string {
	entry := fmt.Sprintf("%v (%s)", r["name"], year(r["year"]))
	if v, ok := store.AsFloat(r[label]); ok {
		entry += fmt.Sprintf(" – %.2f", v)
	}
	return entry
}

// DatasetSummary renders the aggregate row of the summary template.
func DatasetSummary(rs store.ResultSet) string {
	if len(rs.Rows) == 0 {
		return noDataText
	}
	r := rs.Rows[0]
	titles, _ := store.AsInt(r["titles"])
	if titles == 0 {
		return noDataText
	}
	return fmt.Sprintf("Foram considerados %d títulos, de %s a %s, somando %.2f milhões em vendas globais; média da crítica %s e dos usuários %s.",
		titles, year(r["year_min"]), year(r["year_max"]), num(r["global_sales_sum"]), scoreValue(r["critic_score_avg"]), scoreValue(r["user_score_avg"]))
}

func score(v *float64) string {
	if v == nil {
		return "n/d"
	}
	return fmt.Sprintf("%.2f", *v)
}

func scoreValue(v any) string {
	f, ok := store.AsFloat(v)
	if !ok {
		return "n/d"
	}
	return score(&f)
}

func year(v any) string {
	y, ok := store.AsInt(v)
	if !ok {
		return "n/d"
	}
	return fmt.Sprintf("%d", y)
}

func num(v any) float64 {
	f, _ := store.AsFloat(v)
	return f
}

package planner

import (
	"errors"
	"fmt"

	"github.com/jvictorlopez/games-nl-sql-analytics/internal/intent"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100

	// ComboLabel is the result column name of the combined critic/user score.
	ComboLabel = "score_combo"

	CriticWeight = 0.6
	UserWeight   = 0.4
)

// ErrNotPlannable is returned for intents that never reach the SQL templates.
var ErrNotPlannable = errors.New("intent is not plannable")

// EntityResolutionError reports that an intent requires an entity the
// question does not name.
type EntityResolutionError struct {
	Intent intent.Intent
	Entity string
}

func (e *EntityResolutionError) Error() string {
	return fmt.Sprintf("could not resolve %s for intent %s", e.Entity, e.Intent)
}

// Metric is the resolved ranking metric. Column is empty for the combined
// score, which is an expression over critic_score and user_score.
type Metric struct {
	Key      intent.MetricKey `json:"key"`
	Column   string           `json:"column,omitempty"`
	Label    string           `json:"label"`
	Weighted bool             `json:"weighted,omitempty"`
}

func (m Metric) IsCombo() bool {
	return m.Key == intent.MetricCombo
}

func (m Metric) IsSales() bool {
	switch m.Key {
	case intent.MetricGlobal, intent.MetricNA, intent.MetricEU, intent.MetricJP, intent.MetricOther:
		return true
	}
	return false
}

type Order string

const (
	OrderDesc Order = "desc"
	OrderAsc  Order = "asc"
)

// QueryPlan is the structured, entity-resolved form of a question.
type QueryPlan struct {
	Intent   intent.Intent       `json:"intent"`
	Entities intent.EntityBundle `json:"entities"`
	Metric   Metric              `json:"metric"`
	Order    Order               `json:"order"`
	Limit    int                 `json:"limit"`
}

// AllowedColumns is the closed set of identifiers that may reach SQL text.
var AllowedColumns = []string{
	"name", "platform", "year", "genre", "publisher", "developer",
	"global_sales", "na_sales", "eu_sales", "jp_sales", "other_sales",
	"critic_score", "critic_count", "user_score", "user_count",
}

var allowed = func() map[string]struct{} {
	m := make(map[string]struct{}, len(AllowedColumns))
	for _, c := range AllowedColumns {
		m[c] = struct{}{}
	}
	return m
}()

// IsAllowedColumn reports whether col belongs to the allow-list.
func IsAllowedColumn(col string) bool {
	_, ok := allowed[col]
	return ok
}

var metricColumns = map[intent.MetricKey]string{
	intent.MetricGlobal: "global_sales",
	intent.MetricNA:     "na_sales",
	intent.MetricEU:     "eu_sales",
	intent.MetricJP:     "jp_sales",
	intent.MetricOther:  "other_sales",
	intent.MetricCritic: "critic_score",
	intent.MetricUser:   "user_score",
}

// ResolveMetric maps a metric key to its column. Unknown keys are an error,
// never a silent default.
func ResolveMetric(key intent.MetricKey, weighted bool) (Metric, error) {
	if key == intent.MetricCombo {
		return Metric{Key: key, Label: ComboLabel, Weighted: weighted}, nil
	}
	col, ok := metricColumns[key]
	if !ok {
		return Metric{}, fmt.Errorf("unknown metric %q", key)
	}
	if !IsAllowedColumn(col) {
		return Metric{}, fmt.Errorf("metric column %q is not allow-listed", col)
	}
	return Metric{Key: key, Column: col, Label: col, Weighted: weighted && !isSalesKey(key)}, nil
}

func isSalesKey(key intent.MetricKey) bool {
	return Metric{Key: key}.IsSales()
}

// Plan turns a classified question into a query plan.
func Plan(in intent.Intent, question string) (QueryPlan, error) {
	b := intent.Extract(question)
	return PlanEntities(in, b)
}

// PlanEntities builds a plan from already extracted entities.
func PlanEntities(in intent.Intent, b intent.EntityBundle) (QueryPlan, error) {
	p := QueryPlan{
		Intent:   in,
		Entities: b,
		Order:    OrderDesc,
	}

	switch in {
	case intent.Rankings:
		key := intent.MetricGlobal
		if b.Metric != nil {
			key = *b.Metric
		}
		m, err := ResolveMetric(key, b.Weighted)
		if err != nil {
			return QueryPlan{}, err
		}
		p.Metric = m
		p.Limit = DefaultLimit
		if b.TopN != nil && *b.TopN > 0 {
			p.Limit = min(*b.TopN, MaxLimit)
		}

	case intent.Summary:
		m, err := ResolveMetric(intent.MetricGlobal, false)
		if err != nil {
			return QueryPlan{}, err
		}
		p.Metric = m
		p.Limit = 1

	case intent.FranchiseAvg:
		if b.Franchise == nil {
			return QueryPlan{}, &EntityResolutionError{Intent: in, Entity: "franchise"}
		}
		m, err := ResolveMetric(intent.MetricCombo, true)
		if err != nil {
			return QueryPlan{}, err
		}
		p.Metric = m

	default:
		return QueryPlan{}, fmt.Errorf("%w: %s", ErrNotPlannable, in)
	}

	if p.Metric.Column != "" && !IsAllowedColumn(p.Metric.Column) {
		return QueryPlan{}, fmt.Errorf("metric column %q is not allow-listed", p.Metric.Column)
	}
	return p, nil
}

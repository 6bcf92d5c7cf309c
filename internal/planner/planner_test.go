package planner

import (
	"errors"
	"testing"

	"github.com/jvictorlopez/games-nl-sql-analytics/internal/intent"
	"github.com/stretchr/testify/require"
)

func TestGames_Planner_Plan(t *testing.T) {
	t.Parallel()

	t.Run("rankings resolve region to sales column", func(t *testing.T) {
		t.Parallel()

		p, err := Plan(intent.Rankings, "top 7 vendas na américa do norte")
		require.NoError(t, err)
		require.Equal(t, intent.Rankings, p.Intent)
		require.Equal(t, "na_sales", p.Metric.Column)
		require.Equal(t, "na_sales", p.Metric.Label)
		require.Equal(t, OrderDesc, p.Order)
		require.Equal(t, 7, p.Limit)
	})

	t.Run("rankings default to global sales and ten rows", func(t *testing.T) {
		t.Parallel()

		p, err := Plan(intent.Rankings, "top jogos")
		require.NoError(t, err)
		require.Equal(t, "global_sales", p.Metric.Column)
		require.Equal(t, DefaultLimit, p.Limit)
	})

	t.Run("limit is capped", func(t *testing.T) {
		t.Parallel()

		p, err := Plan(intent.Rankings, "top 500 vendas")
		require.NoError(t, err)
		require.Equal(t, MaxLimit, p.Limit)
	})

	t.Run("combo metric has no column", func(t *testing.T) {
		t.Parallel()

		p, err := Plan(intent.Rankings, "top 5 mais bem avaliados ponderado")
		require.NoError(t, err)
		require.True(t, p.Metric.IsCombo())
		require.Empty(t, p.Metric.Column)
		require.Equal(t, ComboLabel, p.Metric.Label)
		require.True(t, p.Metric.Weighted)
	})

	t.Run("franchise requires a franchise", func(t *testing.T) {
		t.Parallel()

		_, err := Plan(intent.FranchiseAvg, "qual a média da franquia desconhecida?")
		var entErr *EntityResolutionError
		require.True(t, errors.As(err, &entErr))
		require.Equal(t, "franchise", entErr.Entity)
		require.Equal(t, intent.FranchiseAvg, entErr.Intent)

		p, err := Plan(intent.FranchiseAvg, "Qual a média de nota da franquia Zelda?")
		require.NoError(t, err)
		require.Equal(t, "zelda", p.Entities.Franchise.Slug)
		require.True(t, p.Metric.IsCombo())
	})

	t.Run("lookup and out of scope are not plannable", func(t *testing.T) {
		t.Parallel()

		_, err := Plan(intent.Lookup, "quando saiu gta 5?")
		require.ErrorIs(t, err, ErrNotPlannable)
		_, err = Plan(intent.OutOfScope, "top 10 bananas")
		require.ErrorIs(t, err, ErrNotPlannable)
	})
}

func TestGames_Planner_ResolveMetric(t *testing.T) {
	t.Parallel()

	for key, col := range metricColumns {
		m, err := ResolveMetric(key, false)
		require.NoError(t, err)
		require.Equal(t, col, m.Column)
		require.True(t, IsAllowedColumn(m.Column))
	}

	_, err := ResolveMetric("price", false)
	require.Error(t, err)

	m, err := ResolveMetric(intent.MetricNA, true)
	require.NoError(t, err)
	require.False(t, m.Weighted, "sales metrics are never count-weighted")
}

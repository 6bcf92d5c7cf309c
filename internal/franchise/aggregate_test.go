package franchise_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/franchise"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/intent"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/planner"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/sqlgen"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/store"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/storetest"
	"github.com/stretchr/testify/require"
)

var scoreColumns = []string{"name", "critic_score", "critic_count", "user_score", "user_count"}

func resultSet(rows ...store.Row) store.ResultSet {
	return store.ResultSet{Columns: scoreColumns, Rows: rows, Count: len(rows)}
}

func TestGames_Franchise_Aggregate(t *testing.T) {
	t.Parallel()

	t.Run("weights each score by its own count", func(t *testing.T) {
		t.Parallel()

		w := franchise.Aggregate(resultSet(
			store.Row{"name": "A", "critic_score": 90.0, "critic_count": int32(10), "user_score": 80.0, "user_count": int32(100)},
			store.Row{"name": "B", "critic_score": 70.0, "critic_count": int32(30), "user_score": nil, "user_count": nil},
			store.Row{"name": "C", "critic_score": nil, "critic_count": nil, "user_score": 60.0, "user_count": int64(50)},
			store.Row{"name": "D", "critic_score": 50.0, "critic_count": int32(0), "user_score": 40.0, "user_count": int32(0)},
		))
		require.NotNil(t, w)
		require.True(t, w.Complete())
		require.InDelta(t, 75.0, *w.CriticWavg, 1e-9)
		require.InDelta(t, 11000.0/150.0, *w.UserWavg, 1e-9)
		require.InDelta(t, 0.6*75.0+0.4*11000.0/150.0, *w.CombinedWavg, 1e-9)
		require.Equal(t, int64(40), w.CriticCountSum)
		require.Equal(t, int64(150), w.UserCountSum)
		require.Equal(t, 4, w.TotalTitles)

		counts := map[int]int{}
		for _, b := range w.Histogram {
			require.Equal(t, b.Lower+10, b.Upper)
			if b.Count > 0 {
				counts[b.Lower] = b.Count
			}
		}
		require.Equal(t, map[int]int{40: 1, 60: 1, 70: 1, 80: 1}, counts)
	})

	t.Run("combined degrades to the side that exists", func(t *testing.T) {
		t.Parallel()

		w := franchise.Aggregate(resultSet(
			store.Row{"name": "A", "critic_score": 88.0, "critic_count": int32(4), "user_score": nil, "user_count": nil},
		))
		require.NotNil(t, w)
		require.False(t, w.Complete())
		require.Nil(t, w.UserWavg)
		require.InDelta(t, 88.0, *w.CombinedWavg, 1e-9)
		require.Equal(t, 1, w.TotalTitles)
	})

	t.Run("no contributing rows gives no averages", func(t *testing.T) {
		t.Parallel()

		w := franchise.Aggregate(resultSet(
			store.Row{"name": "A", "critic_score": nil, "critic_count": nil, "user_score": nil, "user_count": nil},
		))
		require.NotNil(t, w)
		require.Nil(t, w.CriticWavg)
		require.Nil(t, w.UserWavg)
		require.Nil(t, w.CombinedWavg)
		require.Equal(t, 1, w.TotalTitles)
	})

	t.Run("requires both count columns", func(t *testing.T) {
		t.Parallel()

		rs := store.ResultSet{Columns: []string{"name", "critic_score", "critic_count"}}
		require.Nil(t, franchise.Aggregate(rs))
	})

	t.Run("is idempotent", func(t *testing.T) {
		t.Parallel()

		rs := resultSet(
			store.Row{"name": "A", "critic_score": 91.0, "critic_count": int32(12), "user_score": 85.0, "user_count": int32(300)},
			store.Row{"name": "B", "critic_score": 64.0, "critic_count": int32(7), "user_score": 71.0, "user_count": int32(20)},
		)
		first := franchise.Aggregate(rs)
		second := franchise.Aggregate(rs)
		require.Empty(t, cmp.Diff(first, second))
	})

	t.Run("fixture franchise", func(t *testing.T) {
		t.Parallel()

		s := storetest.NewStore(t)
		f, ok := intent.FranchiseBySlug("zelda")
		require.True(t, ok)
		m, err := planner.ResolveMetric(intent.MetricCombo, true)
		require.NoError(t, err)
		sql, err := sqlgen.Template(planner.QueryPlan{Intent: intent.FranchiseAvg, Entities: intent.EntityBundle{Franchise: &f}, Metric: m}, sqlgen.DefaultRowLimit)
		require.NoError(t, err)

		rs, err := s.Execute(t.Context(), sqlgen.Statement{SQL: sql, Verdict: sqlgen.Verdict{Valid: true}})
		require.NoError(t, err)

		w := franchise.Aggregate(rs)
		require.True(t, w.Complete())
		require.Equal(t, storetest.ZeldaScoredTitles, w.TotalTitles)
		require.Greater(t, w.CriticCountSum, int64(0))
		require.Greater(t, w.UserCountSum, int64(0))
		require.Greater(t, *w.CriticWavg, 70.0)
		require.Less(t, *w.CriticWavg, 100.0)
	})
}

func TestGames_Franchise_Top(t *testing.T) {
	t.Parallel()

	rs := resultSet(
		store.Row{"name": "B", "platform": "Wii", "year": int32(2006), "critic_score": 90.0, "user_score": 80.0},
		store.Row{"name": "A", "platform": "GC", "year": nil, "critic_score": 85.0, "user_score": nil},
		store.Row{"name": "C", "platform": "N64", "year": int32(1998), "critic_score": nil, "user_score": nil},
		store.Row{"name": "D", "platform": "3DS", "year": int32(2011), "critic_score": nil, "user_score": 95.0},
	)

	top := franchise.Top(rs, 2)
	require.Len(t, top, 2)
	require.Equal(t, "D", top[0].Name)
	require.InDelta(t, 95.0, top[0].Combined, 1e-9)
	require.Equal(t, "B", top[1].Name)
	require.Equal(t, int64(2006), *top[1].Year)

	all := franchise.Top(rs, 10)
	require.Len(t, all, 3)
	require.Equal(t, "A", all[2].Name)
	require.Nil(t, all[2].Year)
}

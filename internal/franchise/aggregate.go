package franchise

import (
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/planner"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/store"
)

const bucketWidth = 10

// Bucket counts titles whose combined score falls in [Lower, Upper). The
// last bucket also holds a perfect 100.
type Bucket struct {
	Lower int `json:"lower"`
	Upper int `json:"upper"`
	Count int `json:"count"`
}

// Weighted holds count-weighted franchise averages. A nil average means no
// row contributed to it.
type Weighted struct {
	CriticWavg     *float64 `json:"critic_wavg"`
	UserWavg       *float64 `json:"user_wavg"`
	CombinedWavg   *float64 `json:"combined_wavg"`
	CriticCountSum int64    `json:"critic_count_sum"`
	UserCountSum   int64    `json:"user_count_sum"`
	TotalTitles    int      `json:"total_titles"`
	Histogram      []Bucket `json:"histogram"`
}

// Complete reports whether both weighted averages are present.
func (w *Weighted) Complete() bool {
	return w != nil && w.CriticWavg != nil && w.UserWavg != nil
}

type side struct {
	weighted float64
	count    int64
}

func (s *side) add(score, count any) {
	sc, ok := store.AsFloat(score)
	if !ok {
		return
	}
	n, ok := store.AsInt(count)
	if !ok || n <= 0 {
		return
	}
	s.weighted += sc * float64(n)
	s.count += n
}

func (s side) avg() *float64 {
	if s.count == 0 {
		return nil
	}
	v := s.weighted / float64(s.count)
	return &v
}

// Aggregate computes weighted averages over franchise rows. It returns nil
// unless the result carries both critic_count and user_count columns. Rows
// missing a score or count are left out of that side only and still count
// as titles.
func Aggregate(rs store.ResultSet) *Weighted {
	if !rs.HasColumn("critic_count") || !rs.HasColumn("user_count") {
		return nil
	}

	var critic, user side
	hist := newHistogram()
	for _, row := range rs.Rows {
		critic.add(row["critic_score"], row["critic_count"])
		user.add(row["user_score"], row["user_count"])

		c, cok := store.AsFloat(row["critic_score"])
		u, uok := store.AsFloat(row["user_score"])
		if combined := combine(ptrIf(c, cok), ptrIf(u, uok)); combined != nil {
			hist.add(*combined)
		}
	}

	w := &Weighted{
		CriticWavg:     critic.avg(),
		UserWavg:       user.avg(),
		CriticCountSum: critic.count,
		UserCountSum:   user.count,
		TotalTitles:    len(rs.Rows),
		Histogram:      hist,
	}
	w.CombinedWavg = combine(w.CriticWavg, w.UserWavg)
	return w
}

// combine blends critic and user scores, degrading to whichever side
// exists.
func combine(critic, user *float64) *float64 {
	switch {
	case critic != nil && user != nil:
		v := planner.CriticWeight*(*critic) + planner.UserWeight*(*user)
		return &v
	case critic != nil:
		v := *critic
		return &v
	case user != nil:
		v := *user
		return &v
	}
	return nil
}

func ptrIf(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}

type histogram []Bucket

func newHistogram() histogram {
	h := make(histogram, 100/bucketWidth)
	for i := range h {
		h[i] = Bucket{Lower: i * bucketWidth, Upper: (i + 1) * bucketWidth}
	}
	return h
}

func (h histogram) add(score float64) {
	i := int(score) / bucketWidth
	i = max(0, min(i, len(h)-1))
	h[i].Count++
}

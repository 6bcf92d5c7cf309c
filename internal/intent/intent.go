package intent

import (
	"regexp"
	"strconv"
	"strings"
)

// Intent is the closed classification of a question's analytic purpose.
type Intent string

const (
	Rankings     Intent = "rankings"
	Summary      Intent = "summary"
	FranchiseAvg Intent = "franchise_avg"
	Lookup       Intent = "lookup"
	OutOfScope   Intent = "out_of_scope"
)

func (i Intent) String() string {
	return string(i)
}

// Region is a sales region code.
type Region string

const (
	RegionGlobal Region = "global"
	RegionNA     Region = "na"
	RegionEU     Region = "eu"
	RegionJP     Region = "jp"
	RegionOther  Region = "other"
)

func (r Region) Valid() bool {
	switch r {
	case RegionGlobal, RegionNA, RegionEU, RegionJP, RegionOther:
		return true
	}
	return false
}

// MetricKey selects the ranking metric: a sales region or a score family.
type MetricKey string

const (
	MetricGlobal MetricKey = "global"
	MetricNA     MetricKey = "na"
	MetricEU     MetricKey = "eu"
	MetricJP     MetricKey = "jp"
	MetricOther  MetricKey = "other"
	MetricCritic MetricKey = "critic"
	MetricUser   MetricKey = "user"
	MetricCombo  MetricKey = "combo"
)

// Franchise is a known game franchise. Pattern is the lowercase substring
// matched against game names.
type Franchise struct {
	Slug    string `json:"slug"`
	Label   string `json:"label"`
	Pattern string `json:"pattern"`
}

// EntityBundle holds the optional filters extracted from a question. A nil
// field means no filter.
type EntityBundle struct {
	Platform  *string    `json:"platform,omitempty"`
	Genre     *string    `json:"genre,omitempty"`
	Year      *int       `json:"year,omitempty"`
	YearFrom  *int       `json:"year_from,omitempty"`
	YearTo    *int       `json:"year_to,omitempty"`
	Publisher *string    `json:"publisher,omitempty"`
	Developer *string    `json:"developer,omitempty"`
	Franchise *Franchise `json:"franchise,omitempty"`
	Metric    *MetricKey `json:"metric,omitempty"`
	TopN      *int       `json:"top_n,omitempty"`
	Weighted  bool       `json:"weighted,omitempty"`
	Title     *string    `json:"title,omitempty"`
}

var (
	yearRe      = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
	yearRangeRe = regexp.MustCompile(`(?:entre|between|de|from)\s+(19\d{2}|20\d{2})\s+(?:e|and|a|to|até|ate)\s+(19\d{2}|20\d{2})`)
	yearDashRe  = regexp.MustCompile(`\b(19\d{2}|20\d{2})\s*[-–]\s*(19\d{2}|20\d{2})\b`)
	topNRe      = regexp.MustCompile(`\btop\s*(\d{1,3})\b`)
	countNRe    = regexp.MustCompile(`\b(\d{1,3})\s+(?:jogos|games|títulos|titulos|mais|melhores|maiores)`)
	quotedRe    = regexp.MustCompile(`["“']([^"”']{2,})["”']`)
)

// Classify maps a question to exactly one intent. It never fails; the first
// matching rule wins, and a franchise average outranks the off-topic guard.
func Classify(question string) Intent {
	toks := tokenize(question)
	if len(toks) == 0 {
		return OutOfScope
	}

	franchiseNamed := vocab.franchises.has(toks) || vocab.franchiseCue.has(toks)
	if franchiseNamed && vocab.averageCue.has(toks) {
		return FranchiseAvg
	}

	// Off-topic words only veto the generic rules below.
	if vocab.outOfDomain.has(toks) {
		return OutOfScope
	}

	titleNamed := vocab.titles.has(toks) || quotedRe.MatchString(question)
	if vocab.rankingCue.has(toks) || topNRe.MatchString(strings.ToLower(question)) {
		return Rankings
	}
	if !titleNamed {
		if _, ok := NormalizeRegion(question); ok {
			return Rankings
		}
		if vocab.salesCue.has(toks) {
			return Rankings
		}
	}

	if vocab.summaryCue.has(toks) && !titleNamed {
		return Summary
	}

	if isInterrogative(question, toks) && mentionsConcreteEntity(question, toks, titleNamed) {
		return Lookup
	}

	return OutOfScope
}

func isInterrogative(question string, toks []string) bool {
	return strings.Contains(question, "?") || vocab.interrogativeCue.has(toks)
}

func mentionsConcreteEntity(question string, toks []string, titleNamed bool) bool {
	if titleNamed || yearRe.MatchString(question) {
		return true
	}
	for _, m := range []*matcher{vocab.lookupCue, vocab.platforms, vocab.developers, vocab.publishers, vocab.genres} {
		if m.has(toks) {
			return true
		}
	}
	return false
}

// NormalizeRegion maps a natural-language region mention to its region code.
// The longest alias wins, so "resto do mundo" resolves to other, not global.
func NormalizeRegion(text string) (Region, bool) {
	v, ok := vocab.regions.find(tokenize(text), nil)
	if !ok {
		return "", false
	}
	return Region(v), true
}

// Extract pulls every recognizable entity out of a question.
func Extract(question string) EntityBundle {
	var b EntityBundle
	lower := strings.ToLower(question)
	toks := tokenize(question)
	used := make([]bool, len(toks))

	if title, ok := vocab.titles.find(toks, used); ok {
		b.Title = &title
	} else if m := quotedRe.FindStringSubmatch(question); m != nil {
		title := strings.TrimSpace(m[1])
		b.Title = &title
	}

	if slug, ok := vocab.franchises.find(toks, used); ok {
		f := vocab.franchiseBySlug[slug]
		b.Franchise = &f
	}

	if p, ok := vocab.platforms.find(toks, used); ok {
		b.Platform = &p
	}
	if g, ok := vocab.genres.find(toks, used); ok {
		b.Genre = &g
	}

	if vocab.developerCue.has(toks) {
		if d, ok := vocab.developers.find(toks, used); ok {
			b.Developer = &d
		}
		if p, ok := vocab.publishers.find(toks, used); ok {
			b.Publisher = &p
		}
	} else {
		if p, ok := vocab.publishers.find(toks, used); ok {
			b.Publisher = &p
		}
		if d, ok := vocab.developers.find(toks, used); ok {
			b.Developer = &d
		}
	}

	extractYears(lower, &b)

	if m := topNRe.FindStringSubmatch(lower); m != nil {
		b.TopN = atoiPtr(m[1])
	} else if m := countNRe.FindStringSubmatch(lower); m != nil {
		b.TopN = atoiPtr(m[1])
	}

	b.Metric = extractMetric(question, toks)
	b.Weighted = vocab.weightedCue.has(toks)

	return b
}

func extractYears(lower string, b *EntityBundle) {
	if m := yearRangeRe.FindStringSubmatch(lower); m != nil {
		setRange(b, m[1], m[2])
		return
	}
	if m := yearDashRe.FindStringSubmatch(lower); m != nil {
		setRange(b, m[1], m[2])
		return
	}
	if m := yearRe.FindStringSubmatch(lower); m != nil {
		b.Year = atoiPtr(m[1])
	}
}

func setRange(b *EntityBundle, a, c string) {
	from, to := atoiPtr(a), atoiPtr(c)
	if *from > *to {
		from, to = to, from
	}
	b.YearFrom, b.YearTo = from, to
}

// extractMetric resolves the ranking metric. Critic and user keywords win
// over generic score words, and any score word wins over a region only when
// no region is named.
func extractMetric(question string, toks []string) *MetricKey {
	var key MetricKey
	switch {
	case hasScore(toks, MetricCritic):
		key = MetricCritic
	case hasScore(toks, MetricUser):
		key = MetricUser
	default:
		if r, ok := NormalizeRegion(question); ok {
			key = MetricKey(r)
		} else if hasScore(toks, MetricCombo) {
			key = MetricCombo
		} else if vocab.salesCue.has(toks) {
			key = MetricGlobal
		}
	}
	if key == "" {
		return nil
	}
	return &key
}

func hasScore(toks []string, key MetricKey) bool {
	for _, p := range vocab.scores.phrases {
		if p.value == string(key) && indexPhrase(toks, p.tokens, nil) >= 0 {
			return true
		}
	}
	return false
}

func atoiPtr(s string) *int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

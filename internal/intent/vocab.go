package intent

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

//go:embed vocab.yaml
var vocabYAML []byte

type vocabFile struct {
	Regions     []keyedAliases     `yaml:"regions"`
	Scores      []keyedAliases     `yaml:"scores"`
	Platforms   []namedAliases     `yaml:"platforms"`
	Genres      []namedAliases     `yaml:"genres"`
	Publishers  []namedAliases     `yaml:"publishers"`
	Developers  []namedAliases     `yaml:"developers"`
	Franchises  []franchiseAliases `yaml:"franchises"`
	Titles      []titleAliases     `yaml:"titles"`
	OutOfDomain []string           `yaml:"out_of_domain"`
	Cues        struct {
		Franchise     []string `yaml:"franchise"`
		Average       []string `yaml:"average"`
		Ranking       []string `yaml:"ranking"`
		Sales         []string `yaml:"sales"`
		Summary       []string `yaml:"summary"`
		Interrogative []string `yaml:"interrogative"`
		Lookup        []string `yaml:"lookup"`
		Developer     []string `yaml:"developer"`
		Weighted      []string `yaml:"weighted"`
	} `yaml:"cues"`
}

type keyedAliases struct {
	Key     string   `yaml:"key"`
	Aliases []string `yaml:"aliases"`
}

type namedAliases struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

type franchiseAliases struct {
	Slug    string   `yaml:"slug"`
	Label   string   `yaml:"label"`
	Pattern string   `yaml:"pattern"`
	Aliases []string `yaml:"aliases"`
}

type titleAliases struct {
	Title   string   `yaml:"title"`
	Aliases []string `yaml:"aliases"`
}

// phrase is one tokenized alias pointing at its canonical value.
type phrase struct {
	tokens []string
	value  string
}

// matcher finds the longest alias occurring in a token sequence.
type matcher struct {
	phrases []phrase
}

func newMatcher() *matcher {
	return &matcher{}
}

func (m *matcher) add(value string, aliases ...string) {
	for _, a := range aliases {
		toks := tokenize(a)
		if len(toks) == 0 {
			continue
		}
		m.phrases = append(m.phrases, phrase{tokens: toks, value: value})
	}
	sort.SliceStable(m.phrases, func(i, j int) bool {
		return len(m.phrases[i].tokens) > len(m.phrases[j].tokens)
	})
}

// find returns the value of the longest alias found in toks, skipping tokens
// already marked in used, and marks the matched tokens when used is not nil.
func (m *matcher) find(toks []string, used []bool) (string, bool) {
	for _, p := range m.phrases {
		if start := indexPhrase(toks, p.tokens, used); start >= 0 {
			if used != nil {
				for i := start; i < start+len(p.tokens); i++ {
					used[i] = true
				}
			}
			return p.value, true
		}
	}
	return "", false
}

func (m *matcher) has(toks []string) bool {
	_, ok := m.find(toks, nil)
	return ok
}

func indexPhrase(toks, p []string, used []bool) int {
outer:
	for i := 0; i+len(p) <= len(toks); i++ {
		for j := range p {
			if toks[i+j] != p[j] || (used != nil && used[i+j]) {
				continue outer
			}
		}
		return i
	}
	return -1
}

// tokenize lowercases s and splits it on every rune that is not a letter,
// digit or underscore.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

type vocabulary struct {
	regions     *matcher
	scores      *matcher
	platforms   *matcher
	genres      *matcher
	publishers  *matcher
	developers  *matcher
	franchises  *matcher
	titles      *matcher
	outOfDomain *matcher

	franchiseCue     *matcher
	averageCue       *matcher
	rankingCue       *matcher
	salesCue         *matcher
	summaryCue       *matcher
	interrogativeCue *matcher
	lookupCue        *matcher
	developerCue     *matcher
	weightedCue      *matcher

	franchiseBySlug map[string]Franchise
	franchiseOrder  []string
}

var vocab = mustLoadVocabulary(vocabYAML)

func mustLoadVocabulary(data []byte) *vocabulary {
	v, err := loadVocabulary(data)
	if err != nil {
		panic(fmt.Sprintf("intent: invalid embedded vocabulary: %v", err))
	}
	return v
}

func loadVocabulary(data []byte) (*vocabulary, error) {
	var f vocabFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse vocabulary: %w", err)
	}

	v := &vocabulary{
		regions:          newMatcher(),
		scores:           newMatcher(),
		platforms:        newMatcher(),
		genres:           newMatcher(),
		publishers:       newMatcher(),
		developers:       newMatcher(),
		franchises:       newMatcher(),
		titles:           newMatcher(),
		outOfDomain:      newMatcher(),
		franchiseCue:     newMatcher(),
		averageCue:       newMatcher(),
		rankingCue:       newMatcher(),
		salesCue:         newMatcher(),
		summaryCue:       newMatcher(),
		interrogativeCue: newMatcher(),
		lookupCue:        newMatcher(),
		developerCue:     newMatcher(),
		weightedCue:      newMatcher(),
		franchiseBySlug:  make(map[string]Franchise),
	}

	for _, r := range f.Regions {
		if !Region(r.Key).Valid() {
			return nil, fmt.Errorf("unknown region %q", r.Key)
		}
		v.regions.add(r.Key, r.Aliases...)
	}
	for _, s := range f.Scores {
		v.scores.add(s.Key, s.Aliases...)
	}
	for _, p := range f.Platforms {
		v.platforms.add(p.Name, p.Aliases...)
	}
	for _, g := range f.Genres {
		v.genres.add(g.Name, g.Aliases...)
	}
	for _, p := range f.Publishers {
		v.publishers.add(p.Name, p.Aliases...)
	}
	for _, d := range f.Developers {
		v.developers.add(d.Name, d.Aliases...)
	}
	for _, fr := range f.Franchises {
		if fr.Slug == "" || fr.Pattern == "" {
			return nil, fmt.Errorf("franchise %q requires slug and pattern", fr.Label)
		}
		v.franchises.add(fr.Slug, fr.Aliases...)
		v.franchiseBySlug[fr.Slug] = Franchise{Slug: fr.Slug, Label: fr.Label, Pattern: fr.Pattern}
		v.franchiseOrder = append(v.franchiseOrder, fr.Slug)
	}
	for _, t := range f.Titles {
		v.titles.add(t.Title, t.Aliases...)
	}
	v.outOfDomain.add("out_of_domain", f.OutOfDomain...)

	v.franchiseCue.add("franchise", f.Cues.Franchise...)
	v.averageCue.add("average", f.Cues.Average...)
	v.rankingCue.add("ranking", f.Cues.Ranking...)
	v.salesCue.add("sales", f.Cues.Sales...)
	v.summaryCue.add("summary", f.Cues.Summary...)
	v.interrogativeCue.add("interrogative", f.Cues.Interrogative...)
	v.lookupCue.add("lookup", f.Cues.Lookup...)
	v.developerCue.add("developer", f.Cues.Developer...)
	v.weightedCue.add("weighted", f.Cues.Weighted...)

	return v, nil
}

// FranchiseBySlug returns the franchise registered under slug.
func FranchiseBySlug(slug string) (Franchise, bool) {
	f, ok := vocab.franchiseBySlug[strings.ToLower(slug)]
	return f, ok
}

// Franchises returns every known franchise in vocabulary order.
func Franchises() []Franchise {
	out := make([]Franchise, 0, len(vocab.franchiseOrder))
	for _, slug := range vocab.franchiseOrder {
		out = append(out, vocab.franchiseBySlug[slug])
	}
	return out
}

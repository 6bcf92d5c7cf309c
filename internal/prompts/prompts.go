package prompts

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed *.md
var FS embed.FS

// Prompts contains the model prompts loaded from embedded files.
type Prompts struct {
	Generate  string // SQL generation for rankings, summary and franchise plans
	Summarize string // NL phrasing of computed rows
	Lookup    string // two-phase lookup agent
}

// GetPrompt returns the prompt content for the given name.
func (p *Prompts) GetPrompt(name string) string {
	switch name {
	case "generate":
		return p.Generate
	case "summarize":
		return p.Summarize
	case "lookup":
		return p.Lookup
	default:
		return ""
	}
}

// Load loads all prompts from the embedded filesystem, substituting the
// column allow-list and table name into every prompt that references them.
func Load(table string, columns []string) (*Prompts, error) {
	p := &Prompts{}

	var err error
	if p.Generate, err = loadPrompt("GENERATE.md"); err != nil {
		return nil, fmt.Errorf("failed to load GENERATE: %w", err)
	}
	if p.Summarize, err = loadPrompt("SUMMARIZE.md"); err != nil {
		return nil, fmt.Errorf("failed to load SUMMARIZE: %w", err)
	}
	if p.Lookup, err = loadPrompt("LOOKUP.md"); err != nil {
		return nil, fmt.Errorf("failed to load LOOKUP: %w", err)
	}

	r := strings.NewReplacer(
		"{{TABLE}}", table,
		"{{COLUMNS}}", "- "+strings.Join(columns, "\n- "),
	)
	p.Generate = r.Replace(p.Generate)
	p.Lookup = r.Replace(p.Lookup)

	return p, nil
}

func loadPrompt(path string) (string, error) {
	data, err := FS.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

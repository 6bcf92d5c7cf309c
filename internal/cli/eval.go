package cli

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/alitto/pond/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jvictorlopez/games-nl-sql-analytics/internal/orchestrator"
)

const (
	defaultEvalConcurrency = 4
	evalAnswerWidth        = 80
)

type Asker interface {
	RouteAndExecute(ctx context.Context, question string) (orchestrator.Envelope, error)
}

// EvalResult is one answered question from a batch.
type EvalResult struct {
	Question   string
	Intent     string
	Provenance string
	ElapsedMS  int64
	Answer     string
	Err        error
}

type EvalCmd struct{}

func NewEvalCmd() *EvalCmd {
	return &EvalCmd{}
}

func (c *EvalCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval <questions-file>",
		Short: "Answer a batch of questions and print intent, provenance and latency per question",
		Long:  "The questions file is either plain text with one question per line (# starts a comment) or YAML with a list of questions.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := commandLogger(cmd)
			if err != nil {
				return err
			}
			concurrency, err := cmd.Flags().GetInt("concurrency")
			if err != nil {
				return fmt.Errorf("failed to get concurrency flag: %w", err)
			}

			questions, err := readQuestions(args[0])
			if err != nil {
				return err
			}
			if len(questions) == 0 {
				return fmt.Errorf("no questions in %s", args[0])
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := openApp(ctx, cmd.Flags(), log)
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := Evaluate(ctx, a.Orchestrator, questions, concurrency)
			if err != nil {
				return err
			}
			renderEval(os.Stdout, results)
			return nil
		},
	}

	cmd.Flags().Int("concurrency", defaultEvalConcurrency, "number of questions answered at once")

	return cmd
}

// Evaluate answers every question and returns the results in input order.
// A failed question is reported in its result rather than aborting the
// batch.
func Evaluate(ctx context.Context, asker Asker, questions []string, concurrency int) ([]EvalResult, error) {
	if concurrency <= 0 {
		concurrency = defaultEvalConcurrency
	}
	pool := pond.NewResultPool[EvalResult](concurrency)
	defer pool.StopAndWait()

	group := pool.NewGroupContext(ctx)
	for _, q := range questions {
		group.SubmitErr(func() (EvalResult, error) {
			res := EvalResult{Question: q}
			env, err := asker.RouteAndExecute(ctx, q)
			if err != nil {
				res.Err = err
				return res, nil
			}
			res.Intent = env.Meta.Intent.String()
			res.Provenance = string(env.Meta.SQLProvenance)
			res.ElapsedMS = env.Meta.ElapsedMS
			res.Answer = env.Answer
			return res, nil
		})
	}

	results, err := group.Wait()
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate questions: %w", err)
	}
	return results, nil
}

func renderEval(w io.Writer, results []EvalResult) {
	table := newTable(w, []string{"#", "Question", "Intent", "Provenance", "Latency (ms)", "Answer"})
	failed := 0
	for i, r := range results {
		intentCol, provenance, answer := r.Intent, r.Provenance, r.Answer
		if r.Err != nil {
			failed++
			intentCol, answer = "error", r.Err.Error()
		}
		if provenance == "" {
			provenance = "-"
		}
		table.Append([]string{
			strconv.Itoa(i + 1),
			r.Question,
			intentCol,
			provenance,
			strconv.FormatInt(r.ElapsedMS, 10),
			truncate(answer, evalAnswerWidth),
		})
	}
	table.Render()
	fmt.Fprintf(w, "\n%d questions, %d failed\n", len(results), failed)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func readQuestions(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read questions file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return parseYAMLQuestions(data)
	default:
		return parseTextQuestions(data)
	}
}

func parseTextQuestions(data []byte) ([]string, error) {
	var out []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read questions: %w", err)
	}
	return out, nil
}

// parseYAMLQuestions accepts a bare list or a document with a questions key.
func parseYAMLQuestions(data []byte) ([]string, error) {
	var list []string
	if err := yaml.Unmarshal(data, &list); err == nil {
		return compact(list), nil
	}
	var doc struct {
		Questions []string `yaml:"questions"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse questions yaml: %w", err)
	}
	return compact(doc.Questions), nil
}

func compact(qs []string) []string {
	out := make([]string, 0, len(qs))
	for _, q := range qs {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out
}

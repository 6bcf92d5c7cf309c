package sqlgen

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/jvictorlopez/games-nl-sql-analytics/internal/metrics"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/planner"
)

// Table is the only table statements may read.
const Table = "games"

const DefaultRowLimit = 1000

type Reason string

const (
	ReasonEmpty              Reason = "empty"
	ReasonMalformed          Reason = "malformed"
	ReasonComment            Reason = "comment"
	ReasonMultipleStatements Reason = "multiple_statements"
	ReasonNotSelect          Reason = "not_select"
	ReasonForbiddenKeyword   Reason = "forbidden_keyword"
	ReasonTable              Reason = "table"
	ReasonFunction           Reason = "function"
	ReasonColumn             Reason = "column"
	ReasonSelectStar         Reason = "select_star"
	ReasonLimit              Reason = "limit"
)

// ValidationRejectedError reports why a statement may not be executed.
type ValidationRejectedError struct {
	Reason Reason
	Detail string
	SQL    string
}

func (e *ValidationRejectedError) Error() string {
	return fmt.Sprintf("sql rejected (%s): %s", e.Reason, e.Detail)
}

func reject(reason Reason, sql string, format string, args ...any) error {
	return &ValidationRejectedError{Reason: reason, Detail: fmt.Sprintf(format, args...), SQL: sql}
}

var forbiddenKeywords = setOf(
	"INSERT", "UPDATE", "DELETE", "MERGE", "UPSERT", "INTO",
	"DROP", "CREATE", "ALTER", "RENAME", "TRUNCATE",
	"ATTACH", "DETACH", "COPY", "EXPORT", "IMPORT", "INSTALL", "LOAD",
	"PRAGMA", "CALL", "SET", "RESET", "USE",
	"BEGIN", "COMMIT", "ROLLBACK", "TRANSACTION", "CHECKPOINT", "VACUUM", "ANALYZE",
	"GRANT", "REVOKE", "EXECUTE", "PREPARE", "DEALLOCATE",
	"DESCRIBE", "SHOW", "SUMMARIZE", "EXPLAIN",
	"WITH", "RECURSIVE",
)

var keywords = setOf(
	"SELECT", "DISTINCT", "ALL", "FROM", "WHERE", "GROUP", "BY", "HAVING", "ORDER",
	"ASC", "DESC", "LIMIT", "OFFSET", "AS", "AND", "OR", "NOT", "IN", "IS", "NULL",
	"LIKE", "ILIKE", "BETWEEN", "CASE", "WHEN", "THEN", "ELSE", "END",
	"ON", "JOIN", "INNER", "LEFT", "RIGHT", "FULL", "OUTER", "CROSS", "NATURAL", "USING",
	"UNION", "EXCEPT", "INTERSECT", "EXISTS", "TRUE", "FALSE", "NULLS", "FIRST", "LAST",
	"OVER", "PARTITION", "ROWS", "RANGE", "UNBOUNDED", "PRECEDING", "FOLLOWING",
	"CURRENT", "ROW", "FILTER", "QUALIFY", "WINDOW", "BOTH", "LEADING", "TRAILING",
	"FOR", "ANY", "SOME", "ESCAPE", "SIMILAR", "TO",
)

var typeNames = setOf(
	"INTEGER", "INT", "BIGINT", "SMALLINT", "TINYINT", "HUGEINT",
	"DOUBLE", "FLOAT", "REAL", "DECIMAL", "NUMERIC",
	"VARCHAR", "TEXT", "STRING", "BOOLEAN", "BOOL",
)

var allowedFunctions = setOf(
	"count", "count_if", "sum", "avg", "min", "max", "median", "mode",
	"stddev", "stddev_samp", "stddev_pop", "variance", "var_samp", "var_pop",
	"quantile_cont", "quantile_disc", "any_value", "arg_max", "arg_min", "first", "last",
	"round", "abs", "floor", "ceil", "ceiling", "sqrt", "power", "pow", "ln", "log", "exp", "sign",
	"cast", "try_cast", "coalesce", "nullif", "ifnull", "greatest", "least",
	"lower", "upper", "trim", "ltrim", "rtrim", "length", "concat", "substr", "substring",
	"replace", "strpos", "contains", "starts_with", "ends_with", "left", "right",
	"string_agg", "group_concat",
	"row_number", "rank", "dense_rank", "percent_rank", "ntile",
)

func setOf(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

// Validator is the safety gate every statement passes before execution,
// whatever produced it.
type Validator struct {
	rowLimit int
}

func NewValidator(rowLimit int) *Validator {
	if rowLimit <= 0 {
		rowLimit = DefaultRowLimit
	}
	return &Validator{rowLimit: rowLimit}
}

func (v *Validator) RowLimit() int {
	return v.rowLimit
}

// Validate returns nil when sql is a single read-only SELECT over the games
// table that touches only allow-listed columns and functions and carries a
// LIMIT within the row-limit guard. Otherwise it returns a
// *ValidationRejectedError.
func (v *Validator) Validate(sql string) error {
	err := v.validate(sql)
	var rej *ValidationRejectedError
	if errors.As(err, &rej) {
		metrics.ValidationRejectionsTotal.WithLabelValues(string(rej.Reason)).Inc()
	}
	return err
}

func (v *Validator) validate(sql string) error {
	if strings.TrimSpace(sql) == "" {
		return reject(ReasonEmpty, sql, "empty statement")
	}
	toks, err := lex(sql)
	if err != nil {
		return reject(ReasonMalformed, sql, "%v", err)
	}

	for i, t := range toks {
		switch t.kind {
		case tokComment:
			return reject(ReasonComment, sql, "comments are not allowed")
		case tokParam:
			return reject(ReasonMalformed, sql, "parameter placeholders are not allowed")
		case tokIllegal:
			return reject(ReasonMalformed, sql, "unexpected character %q at offset %d", t.text, t.pos)
		case tokSemicolon:
			if i != len(toks)-1 {
				return reject(ReasonMultipleStatements, sql, "only a single statement is allowed")
			}
		}
	}
	if toks[len(toks)-1].kind == tokSemicolon {
		toks = toks[:len(toks)-1]
	}
	if len(toks) == 0 {
		return reject(ReasonEmpty, sql, "empty statement")
	}

	for _, t := range toks {
		if t.kind == tokIdent && forbiddenKeywords[t.upper] {
			return reject(ReasonForbiddenKeyword, sql, "keyword %s is not allowed", t.upper)
		}
	}
	if !toks[0].isKeyword("SELECT") {
		return reject(ReasonNotSelect, sql, "only SELECT statements are allowed")
	}

	scan := scanTables(toks)
	if len(scan.functions) > 0 {
		return reject(ReasonTable, sql, "table function %s is not allowed", scan.functions[0])
	}
	if scan.derived > 0 {
		return reject(ReasonTable, sql, "derived tables are not allowed")
	}
	if len(scan.tables) == 0 {
		return reject(ReasonTable, sql, "statement must read from %s", Table)
	}
	for _, table := range scan.tables {
		if table != Table {
			return reject(ReasonTable, sql, "table %s is not allowed", table)
		}
	}

	if err := checkIdentifiers(sql, toks, scan); err != nil {
		return err
	}
	if err := checkStar(sql, toks); err != nil {
		return err
	}
	return v.checkLimit(sql, toks)
}

type tableScan struct {
	tables    []string
	functions []string
	derived   int
	aliases   map[string]bool
	consumed  map[int]bool
}

// scanTables collects the relations named after FROM and JOIN. FROM inside a
// function call, as in TRIM(BOTH ' ' FROM name), is not a relation, and
// neither is the right side of IS [NOT] DISTINCT FROM. A parenthesis opened
// by SELECT or by a bare FROM starts a subquery whose relations count.
func scanTables(toks []token) tableScan {
	s := tableScan{aliases: map[string]bool{}, consumed: map[int]bool{}}
	var parens []bool
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		switch {
		case t.isSymbol("("):
			parens = append(parens, i+1 < len(toks) && (toks[i+1].isKeyword("SELECT") || toks[i+1].isKeyword("FROM")))
			continue
		case t.isSymbol(")"):
			if len(parens) > 0 {
				parens = parens[:len(parens)-1]
			}
			continue
		case t.isKeyword("FROM"), t.isKeyword("JOIN"):
		default:
			continue
		}
		if len(parens) > 0 && !parens[len(parens)-1] {
			continue
		}
		if t.isKeyword("FROM") && isDistinctFrom(toks, i) {
			continue
		}
		j := s.tableRef(toks, i+1)
		for j < len(toks) && toks[j].isSymbol(",") {
			j = s.tableRef(toks, j+1)
		}
		i = j - 1
	}
	return s
}

func (s *tableScan) tableRef(toks []token, j int) int {
	if j >= len(toks) {
		return j
	}
	if toks[j].isSymbol("(") {
		s.derived++
		return j
	}
	if !toks[j].isName() {
		// A string literal is a file path to the engine; anything else
		// after FROM or JOIN is not a relation we can vouch for.
		s.tables = append(s.tables, literalRelation(toks[j]))
		return j + 1
	}

	name := toks[j].name()
	s.consumed[j] = true
	j++
	for j+1 < len(toks) && toks[j].isSymbol(".") && toks[j+1].isName() {
		name += "." + toks[j+1].name()
		s.consumed[j+1] = true
		j += 2
	}
	if j < len(toks) && toks[j].isSymbol("(") {
		s.functions = append(s.functions, name)
		return j
	}
	s.tables = append(s.tables, name)

	if j < len(toks) && toks[j].isKeyword("AS") {
		j++
	}
	if j < len(toks) && isAliasToken(toks[j]) {
		s.aliases[toks[j].name()] = true
		s.consumed[j] = true
		j++
	}
	return j
}

func isDistinctFrom(toks []token, i int) bool {
	if i < 2 || !toks[i-1].isKeyword("DISTINCT") {
		return false
	}
	return toks[i-2].isKeyword("IS") || toks[i-2].isKeyword("NOT")
}

func literalRelation(t token) string {
	if t.kind == tokString {
		return "'" + strings.ReplaceAll(t.text, "'", "''") + "'"
	}
	return t.text
}

func isAliasToken(t token) bool {
	return t.kind == tokQuotedIdent || (t.kind == tokIdent && !keywords[t.upper] && !typeNames[t.upper])
}

func checkIdentifiers(sql string, toks []token, scan tableScan) error {
	aliases := map[string]bool{}
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if !t.isName() || scan.consumed[i] {
			continue
		}
		var next token
		if i+1 < len(toks) {
			next = toks[i+1]
		}

		if t.kind == tokIdent && (keywords[t.upper] || typeNames[t.upper]) {
			continue
		}
		if i > 0 && toks[i-1].isKeyword("AS") {
			aliases[t.name()] = true
			continue
		}
		if t.kind == tokIdent && next.isSymbol("(") {
			if !allowedFunctions[t.name()] {
				return reject(ReasonFunction, sql, "function %s is not allowed", t.name())
			}
			continue
		}
		if next.isSymbol(".") {
			if t.name() != Table && !scan.aliases[t.name()] {
				return reject(ReasonColumn, sql, "unknown qualifier %s", t.name())
			}
			if i+2 < len(toks) && toks[i+2].isName() {
				if col := toks[i+2].name(); !planner.IsAllowedColumn(col) {
					return reject(ReasonColumn, sql, "column %s is not allowed", col)
				}
				i += 2
			}
			continue
		}
		if planner.IsAllowedColumn(t.name()) || aliases[t.name()] {
			continue
		}
		return reject(ReasonColumn, sql, "column %s is not allowed", t.name())
	}
	return nil
}

func checkStar(sql string, toks []token) error {
	for i, t := range toks {
		if !t.isSymbol("*") || i == 0 {
			continue
		}
		prev := toks[i-1]
		switch {
		case prev.isKeyword("SELECT"), prev.isKeyword("DISTINCT"), prev.isKeyword("ALL"),
			prev.isSymbol(","), prev.isSymbol("."):
			return reject(ReasonSelectStar, sql, "SELECT * is not allowed, name the columns")
		case prev.isSymbol("("):
			if i >= 2 && toks[i-2].isKeyword("COUNT") {
				continue
			}
			return reject(ReasonSelectStar, sql, "* is only allowed in COUNT(*)")
		}
	}
	return nil
}

func (v *Validator) checkLimit(sql string, toks []token) error {
	depth := 0
	found := false
	for i, t := range toks {
		switch {
		case t.isSymbol("("):
			depth++
		case t.isSymbol(")"):
			depth--
		}
		if depth != 0 || !t.isKeyword("LIMIT") {
			continue
		}
		found = true
		if i+1 >= len(toks) || toks[i+1].kind != tokNumber {
			return reject(ReasonLimit, sql, "LIMIT must be an integer literal")
		}
		n, err := strconv.Atoi(toks[i+1].text)
		if err != nil || n < 0 {
			return reject(ReasonLimit, sql, "LIMIT must be an integer literal")
		}
		if n > v.rowLimit {
			return reject(ReasonLimit, sql, "LIMIT %d exceeds the row limit of %d", n, v.rowLimit)
		}
		rest := toks[i+2:]
		if len(rest) == 2 && rest[0].isKeyword("OFFSET") && rest[1].kind == tokNumber {
			rest = nil
		}
		if len(rest) > 0 {
			return reject(ReasonLimit, sql, "LIMIT must close the statement")
		}
	}
	if !found {
		return reject(ReasonLimit, sql, "statement must end with LIMIT n (n <= %d)", v.rowLimit)
	}
	return nil
}

// TablesReferenced returns the sorted, de-duplicated relations a statement
// reads, table functions included.
func TablesReferenced(sql string) ([]string, error) {
	toks, err := lex(sql)
	if err != nil {
		return nil, err
	}
	scan := scanTables(toks)
	out := append(append([]string{}, scan.tables...), scan.functions...)
	slices.Sort(out)
	return slices.Compact(out), nil
}

// StatementCount returns the number of non-empty statements separated by
// semicolons. Comments do not count as statements.
func StatementCount(sql string) (int, error) {
	toks, err := lex(sql)
	if err != nil {
		return 0, err
	}
	count := 0
	pending := false
	for _, t := range toks {
		switch t.kind {
		case tokSemicolon:
			if pending {
				count++
			}
			pending = false
		case tokComment:
		default:
			pending = true
		}
	}
	if pending {
		count++
	}
	return count, nil
}

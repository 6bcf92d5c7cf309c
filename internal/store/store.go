package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/jellydator/ttlcache/v3"

	"github.com/jvictorlopez/games-nl-sql-analytics/internal/duck"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/metrics"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/sqlgen"
)

// ErrUnvalidated is returned by Execute for statements the validator did not
// accept.
var ErrUnvalidated = errors.New("statement has not passed validation")

// ExecutionError is a runtime failure of a statement that passed validation.
type ExecutionError struct {
	SQL string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("failed to execute query: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Store is the read-only view over the games table. It is loaded once and
// shared by every request.
type Store struct {
	log *slog.Logger
	cfg Config
	db  duck.DB

	results *ristretto.Cache
	summary *ttlcache.Cache[string, any]
}

func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate store config: %w", err)
	}

	s := &Store{
		log: cfg.Logger,
		cfg: cfg,
		db:  cfg.DB,
		summary: ttlcache.New(
			ttlcache.WithTTL[string, any](cfg.SummaryCacheTTL),
		),
	}

	if cfg.ResultCacheTTL > 0 {
		results, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: 100_000,
			MaxCost:     10_000,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("create result cache: %w", err)
		}
		s.results = results
	}
	return s, nil
}

func (s *Store) Close() {
	if s.results != nil {
		s.results.Close()
	}
}

// Load creates the games table from a CSV file with the original dataset
// headers, coercing every column to its allow-listed name and type, and then
// freezes the database.
func (s *Store) Load(ctx context.Context, csvPath string) error {
	start := time.Now()

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, loadQuery(csvPath)); err != nil {
		return fmt.Errorf("failed to load %s: %w", csvPath, err)
	}

	var count int64
	if err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+sqlgen.Table).Scan(&count); err != nil {
		return fmt.Errorf("failed to count rows: %w", err)
	}

	if err := s.db.Freeze(ctx); err != nil {
		return err
	}
	s.log.Info("store: dataset loaded", "path", csvPath, "rows", count, "duration", time.Since(start))
	return nil
}

func loadQuery(csvPath string) string {
	src := "read_csv_auto('" + strings.ReplaceAll(csvPath, "'", "''") + "', header=true, all_varchar=true)"
	return `CREATE OR REPLACE TABLE ` + sqlgen.Table + ` AS
SELECT
	trim("Name") AS name,
	nullif(trim("Platform"), '') AS platform,
	TRY_CAST(TRY_CAST("Year_of_Release" AS DOUBLE) AS INTEGER) AS year,
	nullif(trim("Genre"), '') AS genre,
	nullif(trim("Publisher"), '') AS publisher,
	nullif(trim("Developer"), '') AS developer,
	TRY_CAST("Global_Sales" AS DOUBLE) AS global_sales,
	TRY_CAST("NA_Sales" AS DOUBLE) AS na_sales,
	TRY_CAST("EU_Sales" AS DOUBLE) AS eu_sales,
	TRY_CAST("JP_Sales" AS DOUBLE) AS jp_sales,
	TRY_CAST("Other_Sales" AS DOUBLE) AS other_sales,
	TRY_CAST("Critic_Score" AS DOUBLE) AS critic_score,
	TRY_CAST(TRY_CAST("Critic_Count" AS DOUBLE) AS INTEGER) AS critic_count,
	TRY_CAST(nullif(lower(trim("User_Score")), 'tbd') AS DOUBLE) * 10 AS user_score,
	TRY_CAST(TRY_CAST("User_Count" AS DOUBLE) AS INTEGER) AS user_count
FROM ` + src + `
WHERE "Name" IS NOT NULL AND trim("Name") <> ''`
}

// Execute runs a validated statement. Runtime failures are returned as
// *ExecutionError and are not retried.
func (s *Store) Execute(ctx context.Context, stmt sqlgen.Statement) (ResultSet, error) {
	if !stmt.Verdict.Valid {
		s.log.Error("store: refusing unvalidated statement", "sql", stmt.SQL, "provenance", stmt.Provenance)
		return ResultSet{}, ErrUnvalidated
	}
	rs, err := s.Query(ctx, stmt.SQL)
	if err != nil {
		var execErr *ExecutionError
		if errors.As(err, &execErr) {
			s.log.Error("store: statement failed", "sql", stmt.SQL, "provenance", stmt.Provenance, "error", execErr.Err)
		}
		return ResultSet{}, err
	}
	return rs, nil
}

// Query runs sql as-is. Callers are responsible for validating it first.
func (s *Store) Query(ctx context.Context, sql string) (ResultSet, error) {
	if s.results != nil {
		if val, ok := s.results.Get(sql); ok {
			metrics.StoreCacheTotal.WithLabelValues("hit").Inc()
			return val.(ResultSet), nil
		}
		metrics.StoreCacheTotal.WithLabelValues("miss").Inc()
	}

	start := time.Now()
	rs, err := s.query(ctx, sql)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.StoreQueryDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	if err != nil {
		return ResultSet{}, err
	}

	if s.results != nil {
		s.results.SetWithTTL(sql, rs, 1, s.cfg.ResultCacheTTL)
	}
	s.log.Debug("store: query completed", "rows", rs.Count, "duration", time.Since(start))
	return rs, nil
}

func (s *Store) query(ctx context.Context, sql string) (ResultSet, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return ResultSet{}, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, sql)
	if err != nil {
		return ResultSet{}, &ExecutionError{SQL: sql, Err: err}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return ResultSet{}, &ExecutionError{SQL: sql, Err: fmt.Errorf("failed to get columns: %w", err)}
	}
	columnTypes := make([]string, len(columns))
	if cts, err := rows.ColumnTypes(); err == nil {
		for i, ct := range cts {
			columnTypes[i] = ct.DatabaseTypeName()
		}
	}

	resultRows := []Row{}
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return ResultSet{}, &ExecutionError{SQL: sql, Err: fmt.Errorf("failed to scan row: %w", err)}
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			row[col] = normalize(values[i])
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return ResultSet{}, &ExecutionError{SQL: sql, Err: fmt.Errorf("error iterating rows: %w", err)}
	}

	return ResultSet{
		Columns:     columns,
		ColumnTypes: columnTypes,
		Rows:        resultRows,
		Count:       len(resultRows),
	}, nil
}

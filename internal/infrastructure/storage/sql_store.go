package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"NewsletterWorkflow/internal/domain"
	"NewsletterWorkflow/internal/ports"
)

// Dialect selects the SQL flavour of the backing database.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

const (
	runsTable  = "newsletter_runs"
	stepsTable = "step_checkpoints"
)

// SQLStore persists runs and step checkpoints in SQLite or Postgres.
// Commit-if-absent relies on the (run_id, step_name) primary key plus a
// conditional upsert, so concurrent writers need no application lock.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	builder sq.StatementBuilderType
}

var (
	_ ports.CheckpointStore = (*SQLStore)(nil)
	_ ports.RunStore        = (*SQLStore)(nil)
)

// Open connects to the configured database and applies the schema.
func Open(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	dialect, err := parseDialect(driver)
	if err != nil {
		return nil, err
	}

	driverName := "postgres"
	if dialect == DialectSQLite {
		driverName = "sqlite3"
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// Single writer connection: SQLite serializes writes anyway and this
		// keeps busy errors out of concurrent commits.
		db.SetMaxOpenConns(1)
	}

	store, err := NewSQLStore(ctx, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wires an existing sql.DB and migrates the schema.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLStore, error) {
	if db == nil {
		return nil, errors.New("sql store: nil db")
	}

	store := &SQLStore{
		db:      db,
		dialect: dialect,
		builder: statementBuilder(dialect),
	}
	if err := store.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

func statementBuilder(dialect Dialect) sq.StatementBuilderType {
	var format sq.PlaceholderFormat = sq.Question
	if dialect == DialectPostgres {
		format = sq.Dollar
	}
	return sq.StatementBuilder.PlaceholderFormat(format)
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) migrate(ctx context.Context) error {
	ts := "TIMESTAMP"
	if s.dialect == DialectPostgres {
		ts = "TIMESTAMPTZ"
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS ` + runsTable + ` (
			run_id TEXT PRIMARY KEY,
			recipient TEXT NOT NULL,
			categories TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			created_at ` + ts + ` NOT NULL,
			updated_at ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ` + stepsTable + ` (
			run_id TEXT NOT NULL,
			step_name TEXT NOT NULL,
			status TEXT NOT NULL,
			attempt INTEGER NOT NULL,
			output TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			started_at ` + ts + ` NOT NULL,
			committed_at ` + ts + ` NOT NULL,
			PRIMARY KEY (run_id, step_name)
		)`,
	}

	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, runID string, step domain.StepName) (domain.StepRecord, bool, error) {
	query, args, err := s.selectSteps().
		Where(sq.Eq{"run_id": runID, "step_name": string(step), "status": string(domain.StepSucceeded)}).
		ToSql()
	if err != nil {
		return domain.StepRecord{}, false, fmt.Errorf("build select: %w", err)
	}

	rec, err := scanStep(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StepRecord{}, false, nil
	}
	if err != nil {
		return domain.StepRecord{}, false, fmt.Errorf("load checkpoint %s/%s: %w", runID, step, err)
	}
	return rec, true, nil
}

func (s *SQLStore) CommitIfAbsent(ctx context.Context, record domain.StepRecord) (bool, domain.StepRecord, error) {
	if err := validateRecord(record, domain.StepSucceeded); err != nil {
		return false, domain.StepRecord{}, err
	}

	affected, err := s.upsertStep(ctx, record)
	if err != nil {
		return false, domain.StepRecord{}, fmt.Errorf("commit checkpoint %s/%s: %w", record.RunID, record.Step, err)
	}

	current, found, err := s.Get(ctx, record.RunID, record.Step)
	if err != nil {
		return false, domain.StepRecord{}, err
	}
	if !found {
		return false, domain.StepRecord{}, fmt.Errorf("checkpoint %s/%s vanished after commit", record.RunID, record.Step)
	}
	return affected == 1, current, nil
}

func (s *SQLStore) RecordFailure(ctx context.Context, record domain.StepRecord) error {
	if err := validateRecord(record, domain.StepFailed); err != nil {
		return err
	}
	if _, err := s.upsertStep(ctx, record); err != nil {
		return fmt.Errorf("record failure %s/%s: %w", record.RunID, record.Step, err)
	}
	return nil
}

// upsertStep writes the record unless a succeeded record already holds the key.
func (s *SQLStore) upsertStep(ctx context.Context, record domain.StepRecord) (int64, error) {
	query, args, err := s.upsertQuery(record)
	if err != nil {
		return 0, fmt.Errorf("build upsert: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLStore) upsertQuery(record domain.StepRecord) (string, []any, error) {
	return s.builder.
		Insert(stepsTable).
		Columns("run_id", "step_name", "status", "attempt", "output", "error", "started_at", "committed_at").
		Values(
			record.RunID,
			string(record.Step),
			string(record.Status),
			record.Attempt,
			string(record.Output),
			record.Error,
			record.StartedAt.UTC(),
			record.CommittedAt.UTC(),
		).
		Suffix(`ON CONFLICT (run_id, step_name) DO UPDATE SET
			status = excluded.status,
			attempt = excluded.attempt,
			output = excluded.output,
			error = excluded.error,
			started_at = excluded.started_at,
			committed_at = excluded.committed_at
			WHERE `+stepsTable+`.status <> ?`, string(domain.StepSucceeded)).
		ToSql()
}

func (s *SQLStore) ListSteps(ctx context.Context, runID string) ([]domain.StepRecord, error) {
	query, args, err := s.selectSteps().Where(sq.Eq{"run_id": runID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}

	var records []domain.StepRecord
	for rows.Next() {
		rec, err := scanStep(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan step: %w", err)
		}
		records = append(records, rec)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	sortSteps(records)
	return records, nil
}

func (s *SQLStore) SaveRun(ctx context.Context, run domain.Run) error {
	if run.ID == "" {
		return errEmptyRunID
	}

	categories, err := json.Marshal(run.Categories)
	if err != nil {
		return fmt.Errorf("marshal categories: %w", err)
	}

	query, args, err := s.builder.
		Insert(runsTable).
		Columns("run_id", "recipient", "categories", "status", "error", "created_at", "updated_at").
		Values(run.ID, run.Recipient, string(categories), string(run.Status), run.Error, run.CreatedAt.UTC(), run.UpdatedAt.UTC()).
		Suffix(`ON CONFLICT (run_id) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build run upsert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert run %s: %w", run.ID, err)
	}
	return nil
}

func (s *SQLStore) LoadRun(ctx context.Context, runID string) (domain.Run, bool, error) {
	query, args, err := s.builder.
		Select("run_id", "recipient", "categories", "status", "error", "created_at", "updated_at").
		From(runsTable).
		Where(sq.Eq{"run_id": runID}).
		ToSql()
	if err != nil {
		return domain.Run{}, false, fmt.Errorf("build run select: %w", err)
	}

	var (
		run        domain.Run
		categories string
		status     string
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&run.ID, &run.Recipient, &categories, &status, &run.Error, &run.CreatedAt, &run.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Run{}, false, nil
	}
	if err != nil {
		return domain.Run{}, false, fmt.Errorf("load run %s: %w", runID, err)
	}
	if err := json.Unmarshal([]byte(categories), &run.Categories); err != nil {
		return domain.Run{}, false, fmt.Errorf("decode categories of run %s: %w", runID, err)
	}
	run.Status = domain.RunStatus(status)

	run.Steps, err = s.ListSteps(ctx, runID)
	if err != nil {
		return domain.Run{}, false, err
	}
	return run, true, nil
}

func (s *SQLStore) selectSteps() sq.SelectBuilder {
	return s.builder.
		Select("run_id", "step_name", "status", "attempt", "output", "error", "started_at", "committed_at").
		From(stepsTable)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStep(row rowScanner) (domain.StepRecord, error) {
	var (
		rec    domain.StepRecord
		step   string
		status string
		output string
	)
	if err := row.Scan(&rec.RunID, &step, &status, &rec.Attempt, &output, &rec.Error, &rec.StartedAt, &rec.CommittedAt); err != nil {
		return domain.StepRecord{}, err
	}
	rec.Step = domain.StepName(step)
	rec.Status = domain.StepStatus(status)
	if output != "" {
		rec.Output = []byte(output)
	}
	rec.StartedAt = rec.StartedAt.UTC()
	rec.CommittedAt = rec.CommittedAt.UTC()
	return rec, nil
}

func parseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pq":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

func sqliteDSN(dsn string) string {
	if strings.TrimSpace(dsn) == "" {
		dsn = "newsletter.db"
	}
	if strings.Contains(dsn, "?") {
		return dsn
	}
	return dsn + "?_busy_timeout=5000&_synchronous=FULL&_foreign_keys=on"
}

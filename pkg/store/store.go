// Package store keeps the history of analysis runs in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/hed1ad/accessguard/pkg/detectors"
	"github.com/hed1ad/accessguard/pkg/logger"
	"github.com/hed1ad/accessguard/pkg/risk"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// timeLayout sorts lexicographically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Run is the stored headline of one report.
type Run struct {
	ID             string             `json:"run_id"`
	GeneratedAt    time.Time          `json:"generated_at"`
	TotalEntities  int                `json:"total_entities"`
	LevelCounts    map[risk.Level]int `json:"risk_level_counts"`
	Clusters       int                `json:"clusters"`
	MethodsRun     []detectors.Method `json:"methods_run"`
	MethodsSkipped []risk.Skipped     `json:"methods_skipped"`
}

// EntityScore is one entity's verdict in one run.
type EntityScore struct {
	RunID       string             `json:"run_id"`
	GeneratedAt time.Time          `json:"generated_at"`
	Score       int                `json:"risk_score"`
	Level       risk.Level         `json:"risk_level"`
	FlaggedBy   []detectors.Method `json:"flagged_by"`
}

// Store persists reports.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens (creating if needed) the database at path and migrates it.
// ":memory:" opens a private in-memory database.
func Open(path string, log *zap.Logger) (*Store, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s := &Store{db: db, log: logger.OrNop(log)}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	for _, schema := range allSchemas() {
		if _, err := s.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveReport stores a report and its risk records atomically.
func (s *Store) SaveReport(ctx context.Context, r *risk.Report) error {
	if r.RunID == "" {
		return errors.New("report has no run id")
	}

	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	methodsRun, _ := json.Marshal(r.Summary.MethodsRun)
	methodsSkipped, _ := json.Marshal(r.Summary.MethodsSkipped)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, generated_at, total_entities, critical, high, medium, low,
			clusters, methods_run, methods_skipped, report
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.GeneratedAt.UTC().Format(timeLayout), r.Summary.TotalEntities,
		r.Summary.LevelCounts[risk.Critical], r.Summary.LevelCounts[risk.High],
		r.Summary.LevelCounts[risk.Medium], r.Summary.LevelCounts[risk.Low],
		r.Summary.Clusters, string(methodsRun), string(methodsSkipped), string(raw),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO risk_records (run_id, entity_id, category, score, level, flagged_by)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range r.Records {
		flagged, _ := json.Marshal(rec.FlaggedBy)
		if _, err := stmt.ExecContext(ctx, r.RunID, rec.EntityID, rec.Category, rec.Score, string(rec.Level), string(flagged)); err != nil {
			return fmt.Errorf("insert risk record %s: %w", rec.EntityID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.log.Debug("report stored", zap.String("run_id", r.RunID), zap.Int("records", len(r.Records)))
	return nil
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, generated_at, total_entities, critical, high, medium, low,
		       clusters, methods_run, methods_skipped
		FROM runs
		ORDER BY generated_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run                        Run
			generatedAt                string
			critical, high, medium, lo int
			methodsRun, methodsSkipped string
		)
		if err := rows.Scan(&run.ID, &generatedAt, &run.TotalEntities, &critical, &high, &medium, &lo,
			&run.Clusters, &methodsRun, &methodsSkipped); err != nil {
			return nil, err
		}
		run.GeneratedAt, err = time.Parse(timeLayout, generatedAt)
		if err != nil {
			return nil, fmt.Errorf("run %s: %w", run.ID, err)
		}
		run.LevelCounts = map[risk.Level]int{
			risk.Critical: critical,
			risk.High:     high,
			risk.Medium:   medium,
			risk.Low:      lo,
		}
		if err := json.Unmarshal([]byte(methodsRun), &run.MethodsRun); err != nil {
			return nil, fmt.Errorf("run %s: %w", run.ID, err)
		}
		if err := json.Unmarshal([]byte(methodsSkipped), &run.MethodsSkipped); err != nil {
			return nil, fmt.Errorf("run %s: %w", run.ID, err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetReport returns the full stored report of a run.
func (s *Store) GetReport(ctx context.Context, runID string) (*risk.Report, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT report FROM runs WHERE id = ?`, runID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var r risk.Report
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", runID, err)
	}
	return &r, nil
}

// EntityHistory returns an entity's verdicts across runs, newest first.
func (s *Store) EntityHistory(ctx context.Context, entityID string, limit int) ([]EntityScore, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.run_id, runs.generated_at, r.score, r.level, r.flagged_by
		FROM risk_records r
		JOIN runs ON runs.id = r.run_id
		WHERE r.entity_id = ?
		ORDER BY runs.generated_at DESC
		LIMIT ?`, entityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []EntityScore
	for rows.Next() {
		var (
			es                   EntityScore
			generatedAt, flagged string
			level                string
		)
		if err := rows.Scan(&es.RunID, &generatedAt, &es.Score, &level, &flagged); err != nil {
			return nil, err
		}
		if es.GeneratedAt, err = time.Parse(timeLayout, generatedAt); err != nil {
			return nil, err
		}
		es.Level = risk.Level(level)
		if err := json.Unmarshal([]byte(flagged), &es.FlaggedBy); err != nil {
			return nil, err
		}
		history = append(history, es)
	}
	return history, rows.Err()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Package store keeps a SQLite history of nesting jobs for the status API.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/piwi3910/SlabNest/internal/logger"
	"github.com/piwi3910/SlabNest/internal/model"
	"github.com/piwi3910/SlabNest/internal/nesting"
	_ "modernc.org/sqlite"
)

var log = logger.ForComponent("store")

// ErrNotFound is returned by Get for an unknown job id.
var ErrNotFound = errors.New("job not found")

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Job is one stored nesting job.
type Job struct {
	ID         string               `json:"id"`
	Status     Status               `json:"status"`
	Parts      int                  `json:"parts"`     // Distinct parts in the request
	Instances  int                  `json:"instances"` // Parts after quantity expansion
	Config     model.NestingConfig  `json:"config"`
	ErrorKind  nesting.Kind         `json:"errorKind,omitempty"`
	Error      string               `json:"error,omitempty"`
	Result     *model.NestingResult `json:"result,omitempty"`
	CreatedAt  time.Time            `json:"createdAt"`
	StartedAt  *time.Time           `json:"startedAt,omitempty"`
	FinishedAt *time.Time           `json:"finishedAt,omitempty"`
}

// JobStore records job lifecycle events. It implements nesting.Recorder.
type JobStore struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

var _ nesting.Recorder = (*JobStore)(nil)

// Open opens or creates the job database at path.
func Open(path string) (*JobStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create job store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps the pragmas below in effect for every statement.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &JobStore{db: db, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize job store schema: %w", err)
	}
	return s, nil
}

func (s *JobStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		parts INTEGER NOT NULL DEFAULT 0,
		instances INTEGER NOT NULL DEFAULT 0,
		config TEXT NOT NULL,
		error_kind TEXT,
		error TEXT,
		result TEXT,
		created_at INTEGER NOT NULL,
		started_at INTEGER,
		finished_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status)
	`
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (s *JobStore) Close() error {
	return s.db.Close()
}

// JobQueued inserts a queued job.
func (s *JobStore) JobQueued(id string, req nesting.Request) {
	cfg, err := json.Marshal(req.Config)
	if err != nil {
		log.Error("failed to encode job config", "job", id, "error", err)
		return
	}
	instances := 0
	for _, p := range req.Parts {
		instances += p.Copies()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(
		"INSERT INTO jobs (id, status, parts, instances, config, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		id, StatusQueued, len(req.Parts), instances, string(cfg), s.now().UnixMilli(),
	)
	if err != nil {
		log.Error("failed to record queued job", "job", id, "error", err)
	}
}

// JobStarted marks a job as running.
func (s *JobStore) JobStarted(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(
		"UPDATE jobs SET status = ?, started_at = ? WHERE id = ?",
		StatusRunning, s.now().UnixMilli(), id,
	); err != nil {
		log.Error("failed to record job start", "job", id, "error", err)
	}
}

// JobFinished stores the outcome of a job: the result on success, the error
// kind and message otherwise.
func (s *JobStore) JobFinished(id string, result model.NestingResult, runErr error) {
	status := StatusSucceeded
	var kind, msg, resultJSON sql.NullString
	if runErr != nil {
		status = StatusFailed
		kind = sql.NullString{String: string(nesting.KindOf(runErr)), Valid: true}
		msg = sql.NullString{String: runErr.Error(), Valid: true}
	} else {
		data, err := json.Marshal(result)
		if err != nil {
			log.Error("failed to encode job result", "job", id, "error", err)
		} else {
			resultJSON = sql.NullString{String: string(data), Valid: true}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(
		"UPDATE jobs SET status = ?, error_kind = ?, error = ?, result = ?, finished_at = ? WHERE id = ?",
		status, kind, msg, resultJSON, s.now().UnixMilli(), id,
	); err != nil {
		log.Error("failed to record job outcome", "job", id, "error", err)
	}
}

const jobColumns = "id, status, parts, instances, config, error_kind, error, result, created_at, started_at, finished_at"

// Get returns the job with the given id.
func (s *JobStore) Get(id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRow("SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	return job, nil
}

// Recent returns up to limit jobs, newest first. Results are omitted.
func (s *JobStore) Recent(limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query("SELECT "+jobColumns+" FROM jobs ORDER BY created_at DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		job.Result = nil
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// Counts returns the number of jobs per status.
func (s *JobStore) Counts() (map[Status]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query("SELECT status, COUNT(*) FROM jobs GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[Status]int{}
	for rows.Next() {
		var st Status
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		counts[st] = n
	}
	return counts, rows.Err()
}

// Purge deletes finished jobs older than age and returns how many were removed.
func (s *JobStore) Purge(age time.Duration) (int64, error) {
	cutoff := s.now().Add(-age).UnixMilli()
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec("DELETE FROM jobs WHERE finished_at IS NOT NULL AND finished_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err == nil && n > 0 {
		log.Info("purged old jobs", "count", n)
	}
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*Job, error) {
	var (
		job               Job
		cfg               string
		kind, msg, result sql.NullString
		created           int64
		started, finished sql.NullInt64
	)
	if err := row.Scan(&job.ID, &job.Status, &job.Parts, &job.Instances, &cfg,
		&kind, &msg, &result, &created, &started, &finished); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(cfg), &job.Config); err != nil {
		return nil, fmt.Errorf("corrupt config for job %s: %w", job.ID, err)
	}
	job.ErrorKind = nesting.Kind(kind.String)
	job.Error = msg.String
	if result.Valid {
		var r model.NestingResult
		if err := json.Unmarshal([]byte(result.String), &r); err != nil {
			return nil, fmt.Errorf("corrupt result for job %s: %w", job.ID, err)
		}
		job.Result = &r
	}
	job.CreatedAt = time.UnixMilli(created).UTC()
	job.StartedAt = millis(started)
	job.FinishedAt = millis(finished)
	return &job, nil
}

func millis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned when no run matches the requested ID.
var ErrRunNotFound = errors.New("estimation run not found")

// EstimationRun is the persisted summary of one normal estimation pass.
type EstimationRun struct {
	RunID           string          `json:"run_id"`
	Source          string          `json:"source"`
	PointCount      int             `json:"point_count"`
	CellSize        float64         `json:"cell_size"`
	OK              int             `json:"ok"`
	Insufficient    int             `json:"insufficient"`
	Degenerate      int             `json:"degenerate"`
	Flipped         int             `json:"flipped"`
	DegenerateCloud bool            `json:"degenerate_cloud"`
	Expansions      int             `json:"radius_expansions"`
	DurationMs      float64         `json:"duration_ms"`
	ParamsJSON      json.RawMessage `json:"params_json,omitempty"`
	CreatedAt       int64           `json:"created_at"`
}

// RunStore provides persistence for estimation runs.
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

const runColumns = `run_id, source, point_count, cell_size, ok_count, insufficient,
		       degenerate, flipped, degenerate_cloud, radius_expansions,
		       duration_ms, params_json, created_at`

// Insert persists a new run. If RunID is empty, a UUID is generated; if
// CreatedAt is zero it is set to now.
func (s *RunStore) Insert(run *EstimationRun) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = time.Now().UnixNano()
	}

	var paramsStr interface{}
	if len(run.ParamsJSON) > 0 {
		paramsStr = string(run.ParamsJSON)
	}

	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO estimation_runs (`+runColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, run.Source, run.PointCount, run.CellSize, run.OK, run.Insufficient,
			run.Degenerate, run.Flipped, run.DegenerateCloud, run.Expansions,
			run.DurationMs, paramsStr, run.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		return nil
	})
}

// Get returns a single run by ID.
func (s *RunStore) Get(runID string) (*EstimationRun, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM estimation_runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	return run, nil
}

// List returns the newest runs first. A non-positive limit returns all runs.
func (s *RunStore) List(limit int) ([]*EstimationRun, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT `+runColumns+`
		FROM estimation_runs
		ORDER BY created_at DESC, run_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*EstimationRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Delete removes a run by ID.
func (s *RunStore) Delete(runID string) error {
	return retryOnBusy(func() error {
		result, err := s.db.Exec(`DELETE FROM estimation_runs WHERE run_id = ?`, runID)
		if err != nil {
			return fmt.Errorf("delete run: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*EstimationRun, error) {
	var r EstimationRun
	var paramsStr sql.NullString
	err := row.Scan(
		&r.RunID, &r.Source, &r.PointCount, &r.CellSize, &r.OK, &r.Insufficient,
		&r.Degenerate, &r.Flipped, &r.DegenerateCloud, &r.Expansions,
		&r.DurationMs, &paramsStr, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if paramsStr.Valid {
		r.ParamsJSON = json.RawMessage(paramsStr.String)
	}
	return &r, nil
}

// Package storage persists nucleus state in SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/bmskinner/nma-sub021/internal/landmark"
	"github.com/bmskinner/nma-sub021/internal/nucleus"
	"github.com/bmskinner/nma-sub021/internal/profile"
)

// ErrNotFound is returned when no stored nucleus has the requested id.
var ErrNotFound = errors.New("nucleus not stored")

// Store wraps SQLite-backed persistence for nuclei.
type Store struct {
	DB *sql.DB // Export for direct database access
}

// New opens (or creates) the database at path and ensures schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)
	s := &Store{DB: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS nuclei (
            id TEXT PRIMARY KEY,
            source_file TEXT,
            source_channel INTEGER,
            original_com_x REAL NOT NULL,
            original_com_y REAL NOT NULL,
            com_x REAL NOT NULL,
            com_y REAL NOT NULL,
            scale REAL NOT NULL,
            raw_x TEXT NOT NULL,
            raw_y TEXT NOT NULL,
            reversed BOOLEAN NOT NULL DEFAULT FALSE,
            interval REAL NOT NULL,
            window_proportion REAL NOT NULL,
            min_segment_length INTEGER NOT NULL,
            locked BOOLEAN NOT NULL DEFAULT FALSE,
            profiles TEXT,
            rule_set TEXT,
            priority TEXT,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS segments (
            nucleus_id TEXT NOT NULL REFERENCES nuclei(id) ON DELETE CASCADE,
            position INTEGER NOT NULL,
            id TEXT NOT NULL,
            start_index INTEGER NOT NULL,
            end_index INTEGER NOT NULL,
            locked BOOLEAN NOT NULL DEFAULT FALSE,
            merge_sources TEXT,
            PRIMARY KEY (nucleus_id, position)
        );`,
		`CREATE TABLE IF NOT EXISTS landmarks (
            nucleus_id TEXT NOT NULL REFERENCES nuclei(id) ON DELETE CASCADE,
            name TEXT NOT NULL,
            idx INTEGER NOT NULL,
            PRIMARY KEY (nucleus_id, name)
        );`,
		`CREATE TABLE IF NOT EXISTS orientation_marks (
            nucleus_id TEXT NOT NULL REFERENCES nuclei(id) ON DELETE CASCADE,
            mark TEXT NOT NULL,
            landmark TEXT NOT NULL,
            PRIMARY KEY (nucleus_id, mark)
        );`,
		`CREATE TABLE IF NOT EXISTS measurements (
            nucleus_id TEXT NOT NULL REFERENCES nuclei(id) ON DELETE CASCADE,
            name TEXT NOT NULL,
            value REAL NOT NULL,
            PRIMARY KEY (nucleus_id, name)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_segments_id ON segments(id);`,
		`CREATE INDEX IF NOT EXISTS idx_nuclei_source ON nuclei(source_file);`,
	}
	for _, stmt := range stmts {
		if _, err := s.DB.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying DB.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Put inserts or replaces a nucleus and all its child rows in one
// transaction.
func (s *Store) Put(ctx context.Context, st nucleus.State) error {
	if s == nil {
		return errors.New("store not initialized")
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := putTx(ctx, tx, st); err != nil {
		return fmt.Errorf("store nucleus %s: %w", st.ID, err)
	}
	return tx.Commit()
}

// PutAll stores many nuclei in one transaction.
func (s *Store) PutAll(ctx context.Context, states []nucleus.State) error {
	if s == nil {
		return errors.New("store not initialized")
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, st := range states {
		if err := putTx(ctx, tx, st); err != nil {
			return fmt.Errorf("store nucleus %s: %w", st.ID, err)
		}
	}
	return tx.Commit()
}

func putTx(ctx context.Context, tx *sql.Tx, st nucleus.State) error {
	rawX, err := json.Marshal(st.RawX)
	if err != nil {
		return err
	}
	rawY, err := json.Marshal(st.RawY)
	if err != nil {
		return err
	}
	types := make([]string, len(st.Profiles))
	for i, t := range st.Profiles {
		types[i] = t.String()
	}

	id := st.ID.String()
	for _, table := range []string{"segments", "landmarks", "orientation_marks", "measurements"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE nucleus_id=?;`, id); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO nuclei (id, source_file, source_channel, original_com_x, original_com_y, com_x, com_y, scale, raw_x, raw_y, reversed, interval, window_proportion, min_segment_length, locked, profiles, rule_set, priority, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		id, st.Source.File, st.Source.Channel,
		st.OriginalCentreOfMass.X, st.OriginalCentreOfMass.Y,
		st.CentreOfMass.X, st.CentreOfMass.Y,
		st.Scale, string(rawX), string(rawY), st.Reversed, st.Interval,
		st.WindowProportion, st.MinSegmentLength, st.Locked,
		strings.Join(types, ","), st.RuleSet, st.Priority.String(), time.Now().UTC())
	if err != nil {
		return err
	}

	for i, seg := range st.Segments {
		var sources []byte
		if len(seg.MergeSources) > 0 {
			if sources, err = json.Marshal(seg.MergeSources); err != nil {
				return err
			}
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO segments (nucleus_id, position, id, start_index, end_index, locked, merge_sources) VALUES (?, ?, ?, ?, ?, ?, ?);`,
			id, i, seg.ID.String(), seg.Start, seg.End, seg.Locked, string(sources))
		if err != nil {
			return err
		}
	}
	for name, idx := range st.Landmarks {
		if _, err := tx.ExecContext(ctx, `INSERT INTO landmarks (nucleus_id, name, idx) VALUES (?, ?, ?);`, id, string(name), idx); err != nil {
			return err
		}
	}
	for mark, name := range st.Marks {
		if _, err := tx.ExecContext(ctx, `INSERT INTO orientation_marks (nucleus_id, mark, landmark) VALUES (?, ?, ?);`, id, mark.String(), string(name)); err != nil {
			return err
		}
	}
	for m, v := range st.Measurements {
		if _, err := tx.ExecContext(ctx, `INSERT INTO measurements (nucleus_id, name, value) VALUES (?, ?, ?);`, id, string(m), v); err != nil {
			return err
		}
	}
	return nil
}

// Get loads one nucleus state.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (nucleus.State, error) {
	var st nucleus.State
	if s == nil {
		return st, errors.New("store not initialized")
	}

	var (
		rawX, rawY, types, priority string
		sourceFile, ruleSet         sql.NullString
		sourceChannel               sql.NullInt64
	)
	err := s.DB.QueryRowContext(ctx, `SELECT source_file, source_channel, original_com_x, original_com_y, com_x, com_y, scale, raw_x, raw_y, reversed, interval, window_proportion, min_segment_length, locked, profiles, rule_set, priority FROM nuclei WHERE id=?;`, id.String()).
		Scan(&sourceFile, &sourceChannel,
			&st.OriginalCentreOfMass.X, &st.OriginalCentreOfMass.Y,
			&st.CentreOfMass.X, &st.CentreOfMass.Y,
			&st.Scale, &rawX, &rawY, &st.Reversed, &st.Interval,
			&st.WindowProportion, &st.MinSegmentLength, &st.Locked,
			&types, &ruleSet, &priority)
	if errors.Is(err, sql.ErrNoRows) {
		return st, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return st, err
	}

	st.ID = id
	st.Source = nucleus.SourceImage{File: sourceFile.String, Channel: int(sourceChannel.Int64)}
	st.RuleSet = ruleSet.String
	if err := json.Unmarshal([]byte(rawX), &st.RawX); err != nil {
		return st, fmt.Errorf("nucleus %s raw_x: %w", id, err)
	}
	if err := json.Unmarshal([]byte(rawY), &st.RawY); err != nil {
		return st, fmt.Errorf("nucleus %s raw_y: %w", id, err)
	}
	if st.Priority, err = landmark.ParsePriority(priority); err != nil {
		return st, err
	}
	for _, name := range strings.Split(types, ",") {
		if name == "" {
			continue
		}
		t, err := profile.ParseType(name)
		if err != nil {
			return st, err
		}
		st.Profiles = append(st.Profiles, t)
	}

	if st.Segments, err = s.segments(ctx, id); err != nil {
		return st, err
	}
	if st.Landmarks, err = s.landmarks(ctx, id); err != nil {
		return st, err
	}
	if st.Marks, err = s.marks(ctx, id); err != nil {
		return st, err
	}
	if st.Measurements, err = s.measurements(ctx, id); err != nil {
		return st, err
	}
	return st, nil
}

func (s *Store) segments(ctx context.Context, id uuid.UUID) ([]nucleus.SegmentState, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, start_index, end_index, locked, merge_sources FROM segments WHERE nucleus_id=? ORDER BY position;`, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []nucleus.SegmentState
	for rows.Next() {
		var seg nucleus.SegmentState
		var segID string
		var sources sql.NullString
		if err := rows.Scan(&segID, &seg.Start, &seg.End, &seg.Locked, &sources); err != nil {
			return nil, err
		}
		if seg.ID, err = uuid.Parse(segID); err != nil {
			return nil, err
		}
		if sources.Valid && sources.String != "" {
			if err := json.Unmarshal([]byte(sources.String), &seg.MergeSources); err != nil {
				return nil, err
			}
		}
		out = append(out, seg)
	}
	return out, rows.Err()
}

func (s *Store) landmarks(ctx context.Context, id uuid.UUID) (map[landmark.Name]int, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT name, idx FROM landmarks WHERE nucleus_id=?;`, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[landmark.Name]int)
	for rows.Next() {
		var name string
		var idx int
		if err := rows.Scan(&name, &idx); err != nil {
			return nil, err
		}
		out[landmark.Name(name)] = idx
	}
	return out, rows.Err()
}

func (s *Store) marks(ctx context.Context, id uuid.UUID) (map[landmark.OrientationMark]landmark.Name, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT mark, landmark FROM orientation_marks WHERE nucleus_id=?;`, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[landmark.OrientationMark]landmark.Name)
	for rows.Next() {
		var mark, name string
		if err := rows.Scan(&mark, &name); err != nil {
			return nil, err
		}
		m, err := landmark.ParseMark(mark)
		if err != nil {
			return nil, err
		}
		out[m] = landmark.Name(name)
	}
	return out, rows.Err()
}

func (s *Store) measurements(ctx context.Context, id uuid.UUID) (map[nucleus.Measurement]float64, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT name, value FROM measurements WHERE nucleus_id=?;`, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[nucleus.Measurement]float64)
	for rows.Next() {
		var name string
		var v float64
		if err := rows.Scan(&name, &v); err != nil {
			return nil, err
		}
		out[nucleus.Measurement(name)] = v
	}
	return out, rows.Err()
}

// List returns the ids of every stored nucleus, oldest update first.
func (s *Store) List(ctx context.Context) ([]uuid.UUID, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT id FROM nuclei ORDER BY updated_at, id;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LoadAll rebuilds every stored nucleus.
func (s *Store) LoadAll(ctx context.Context) ([]*nucleus.Nucleus, error) {
	ids, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*nucleus.Nucleus, 0, len(ids))
	var errs []error
	for _, id := range ids {
		st, err := s.Get(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		n, err := nucleus.FromState(st)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, n)
	}
	return out, errors.Join(errs...)
}

// Delete removes a nucleus and its child rows.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	if s == nil {
		return errors.New("store not initialized")
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"segments", "landmarks", "orientation_marks", "measurements"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE nucleus_id=?;`, id.String()); err != nil {
			return err
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM nuclei WHERE id=?;`, id.String())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return tx.Commit()
}

// SegmentUsage counts how many stored nuclei carry each segment id.
func (s *Store) SegmentUsage(ctx context.Context) (map[uuid.UUID]int, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, COUNT(DISTINCT nucleus_id) FROM segments GROUP BY id;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uuid.UUID]int)
	for rows.Next() {
		var raw string
		var n int
		if err := rows.Scan(&raw, &n); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}

package storage

import (
	"context"
	"database/sql"
	"embed"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"

	"github.com/LdDl/termites-go/mot"

	_ "modernc.org/sqlite" // SQLite driver.
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store keeps experiments (trails and encounter episodes) in SQLite.
type Store struct {
	db *sql.DB
}

// ExperimentSummary is a stored experiment along with its size
type ExperimentSummary struct {
	Meta
	Records    int
	Encounters int
}

// OpenStore opens or creates the SQLite database and applies migrations.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "Can't create folder for %s", path)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't open %s", path)
	}
	// One writer at a time
	db.SetMaxOpenConns(1)
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "Can't migrate %s", path)
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return errors.Wrap(err, "failed to open embedded migrations")
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return errors.Wrap(err, "failed to create sqlite driver")
	}
	// Not closed: closing m closes the database too
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return errors.Wrap(err, "failed to create migrate instance")
	}
	m.Log = migrateLogger{}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "migration up failed")
	}
	return nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	mot.Diagf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool {
	return false
}

// Writer returns TrailWriter storing trails as experiment described by meta
func (s *Store) Writer(ctx context.Context, meta Meta) mot.TrailWriter {
	return mot.TrailWriterFunc(func(trails []mot.SubjectTrail) error {
		return s.SaveExperiment(ctx, meta, trails)
	})
}

// SaveExperiment stores experiment and its trails in one transaction.
// A run saved before is replaced.
func (s *Store) SaveExperiment(ctx context.Context, meta Meta, trails []mot.SubjectTrail) (err error) {
	if meta.RunID == "" {
		return errors.New("experiment has no run id")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "Can't begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, table := range []string{"trail_records", "subjects", "experiments"} {
		if _, err = tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = ?`, meta.RunID); err != nil {
			return errors.Wrapf(err, "Can't clear %s of run %s", table, meta.RunID)
		}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO experiments (run_id, experiment, video_path, starting_frame, resize_ratio, tracking_method, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		meta.RunID,
		meta.Experiment,
		meta.VideoPath,
		meta.StartingFrame,
		meta.ResizeRatio,
		meta.TrackingMethod,
		meta.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return errors.Wrapf(err, "Can't insert run %s", meta.RunID)
	}
	subjectStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO subjects (run_id, position, subject_id, caste, label, color) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "Can't prepare subjects insert")
	}
	defer subjectStmt.Close()
	recordStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO trail_records (run_id, label, frame, time_ms, x, y, width, height) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "Can't prepare records insert")
	}
	defer recordStmt.Close()
	for i, trail := range trails {
		label := trail.Label()
		_, err = subjectStmt.ExecContext(ctx, meta.RunID, i, trail.ID, trail.Caste, label, formatColor(trail.Color))
		if err != nil {
			return errors.Wrapf(err, "Can't insert subject %s", label)
		}
		for _, record := range trail.Trail {
			_, err = recordStmt.ExecContext(ctx, meta.RunID, label, record.Frame, record.Time.Milliseconds(),
				record.Box.X, record.Box.Y, record.Box.Width, record.Box.Height)
			if err != nil {
				return errors.Wrapf(err, "Can't insert record of subject %s at frame %d", label, record.Frame)
			}
		}
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "Can't commit experiment")
	}
	mot.Diagf("run %s stored: %d subjects", meta.RunID, len(trails))
	return nil
}

// SaveEpisodes replaces encounter episodes of a stored run
func (s *Store) SaveEpisodes(ctx context.Context, runID string, threshold float64, episodes []mot.Episode) (err error) {
	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM experiments WHERE run_id = ?`, runID).Scan(&exists)
	if err != nil {
		return errors.Wrapf(err, "Can't look up run %s", runID)
	}
	if exists == 0 {
		return errors.Errorf("run %s is not stored", runID)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "Can't begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, `DELETE FROM encounters WHERE run_id = ?`, runID); err != nil {
		return errors.Wrapf(err, "Can't clear encounters of run %s", runID)
	}
	for _, episode := range episodes {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO encounters (run_id, subject, other, start_frame, end_frame, frames, min_distance, threshold)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, episode.Subject, episode.Other, episode.StartFrame, episode.EndFrame, episode.Frames, episode.MinDistance, threshold,
		)
		if err != nil {
			return errors.Wrapf(err, "Can't insert encounter %s-%s at frame %d", episode.Subject, episode.Other, episode.StartFrame)
		}
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "Can't commit encounters")
	}
	return nil
}

// ListExperiments returns stored experiments, newest first
func (s *Store) ListExperiments(ctx context.Context) ([]ExperimentSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.run_id, e.experiment, e.video_path, e.starting_frame, e.resize_ratio, e.tracking_method, e.created_at,
			(SELECT COUNT(*) FROM subjects s WHERE s.run_id = e.run_id),
			(SELECT COUNT(*) FROM trail_records r WHERE r.run_id = e.run_id),
			(SELECT COUNT(*) FROM encounters n WHERE n.run_id = e.run_id)
		FROM experiments e
		ORDER BY e.created_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "Can't list experiments")
	}
	defer rows.Close()
	summaries := make([]ExperimentSummary, 0)
	for rows.Next() {
		var summary ExperimentSummary
		var createdAt string
		err := rows.Scan(
			&summary.RunID,
			&summary.Experiment,
			&summary.VideoPath,
			&summary.StartingFrame,
			&summary.ResizeRatio,
			&summary.TrackingMethod,
			&createdAt,
			&summary.NSubjects,
			&summary.Records,
			&summary.Encounters,
		)
		if err != nil {
			return nil, errors.Wrap(err, "Can't scan experiment")
		}
		summary.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, errors.Wrapf(err, "bad created_at of run %s", summary.RunID)
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

// LoadTrails reads experiment and trails of a stored run in subject order
func (s *Store) LoadTrails(ctx context.Context, runID string) ([]mot.SubjectTrail, Meta, error) {
	meta := Meta{RunID: runID}
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT experiment, video_path, starting_frame, resize_ratio, tracking_method, created_at FROM experiments WHERE run_id = ?`,
		runID,
	).Scan(&meta.Experiment, &meta.VideoPath, &meta.StartingFrame, &meta.ResizeRatio, &meta.TrackingMethod, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, Meta{}, errors.Errorf("run %s is not stored", runID)
	}
	if err != nil {
		return nil, Meta{}, errors.Wrapf(err, "Can't read run %s", runID)
	}
	if meta.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, Meta{}, errors.Wrapf(err, "bad created_at of run %s", runID)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT subject_id, caste, label, color FROM subjects WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, Meta{}, errors.Wrapf(err, "Can't read subjects of run %s", runID)
	}
	for rows.Next() {
		var subject SubjectMeta
		if err := rows.Scan(&subject.ID, &subject.Caste, &subject.Label, &subject.Color); err != nil {
			rows.Close()
			return nil, Meta{}, errors.Wrap(err, "Can't scan subject")
		}
		meta.Subjects = append(meta.Subjects, subject)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, Meta{}, err
	}
	meta.NSubjects = len(meta.Subjects)
	identities, err := meta.Identities()
	if err != nil {
		return nil, Meta{}, err
	}

	trails := make([]mot.SubjectTrail, len(identities))
	for i, identity := range identities {
		trail, err := s.loadTrail(ctx, runID, identity.Label())
		if err != nil {
			return nil, Meta{}, err
		}
		trails[i] = mot.SubjectTrail{Identity: identity, Trail: trail}
	}
	return trails, meta, nil
}

func (s *Store) loadTrail(ctx context.Context, runID, label string) (mot.Trail, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT frame, time_ms, x, y, width, height FROM trail_records WHERE run_id = ? AND label = ? ORDER BY frame`,
		runID, label)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't read trail of subject %s", label)
	}
	defer rows.Close()
	trail := make(mot.Trail, 0, 256)
	for rows.Next() {
		var record mot.TrailRecord
		var timeMs int64
		err := rows.Scan(&record.Frame, &timeMs, &record.Box.X, &record.Box.Y, &record.Box.Width, &record.Box.Height)
		if err != nil {
			return nil, errors.Wrap(err, "Can't scan trail record")
		}
		record.Time = time.Duration(timeMs) * time.Millisecond
		trail = append(trail, record)
	}
	return trail, rows.Err()
}

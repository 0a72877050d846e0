package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/airenas/council/internal/pkg/persistence"
	"github.com/airenas/council/internal/pkg/status"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrWrongState the job is not in a state allowing the transition
var ErrWrongState = errors.New("wrong job state")

const (
	jobColumns    = `id, user_id, status, error, video_file, created, updated, attempt_until`
	resultColumns = `id, transcription_id, output_language, used_model, generated_text, segments, evaluation,
	video_file, stitch_error, created`
)

// DB provides operations with postgresql
type DB struct {
	pool *pgxpool.Pool
}

// NewDB creates DB instance
func NewDB(pool *pgxpool.Pool) (*DB, error) {
	if pool == nil {
		return nil, fmt.Errorf("no pool")
	}
	res := &DB{pool: pool}
	return res, nil
}

// InsertJob inserts a new PENDING job
func (db *DB) InsertJob(ctx context.Context, job *persistence.Job) error {
	_, err := db.pool.Exec(ctx, `INSERT INTO transcriptions(id, user_id, status, video_file, created, updated) 
	VALUES($1, $2, $3, $4, $5, $5)`, job.ID, job.UserID, status.Pending.String(), job.VideoFile, job.Created)
	if err != nil {
		return fmt.Errorf("can't insert job: %w", err)
	}
	return nil
}

// LoadJob loads job, returns nil if not found
func (db *DB) LoadJob(ctx context.Context, id string) (*persistence.Job, error) {
	res, err := scanJob(db.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM transcriptions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("can't load job: %w", err)
	}
	return res, nil
}

// ClaimAttempt moves the job to PROCESSING and leases it to the caller until the given time.
// It returns false if the job is finished or another attempt holds a valid lease.
func (db *DB) ClaimAttempt(ctx context.Context, id string, until time.Time) (bool, error) {
	now := time.Now()
	cmd, err := db.pool.Exec(ctx, `UPDATE transcriptions SET status = $2, updated = $3, attempt_until = $4, error = NULL
	WHERE id = $1 AND (status = $5 OR (status = $2 AND (attempt_until IS NULL OR attempt_until < $3)))`,
		id, status.Processing.String(), now, until, status.Pending.String())
	if err != nil {
		return false, fmt.Errorf("can't claim job: %w", err)
	}
	return cmd.RowsAffected() == 1, nil
}

// ReleaseAttempt drops the lease of the PROCESSING job, so the next attempt may start
func (db *DB) ReleaseAttempt(ctx context.Context, id string) error {
	_, err := db.pool.Exec(ctx, `UPDATE transcriptions SET attempt_until = NULL, updated = $2
	WHERE id = $1 AND status = $3`, id, time.Now(), status.Processing.String())
	if err != nil {
		return fmt.Errorf("can't release job: %w", err)
	}
	return nil
}

// MarkFailed moves the job to FAILED, a PENDING job goes through PROCESSING
func (db *DB) MarkFailed(ctx context.Context, id, errStr string) (err error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("can't start tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rErr := tx.Rollback(ctx); rErr != nil && !errors.Is(rErr, pgx.ErrTxClosed) {
				goapp.Log.Error().Err(rErr).Str("ID", id).Msg("can't rollback")
			}
		}
	}()
	if err = db.updateStatus(ctx, tx, id, status.Processing, "", status.Pending); err != nil && !errors.Is(err, ErrWrongState) {
		return err
	}
	if err = db.updateStatus(ctx, tx, id, status.Failed, errStr, status.Processing); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("can't commit: %w", err)
	}
	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func (db *DB) updateStatus(ctx context.Context, e execer, id string, to status.Status, errStr string, from ...status.Status) error {
	args := []any{id, to.String(), time.Now(), errStr}
	in := make([]string, 0, len(from))
	for _, f := range from {
		if !status.CanTransition(f, to) {
			return fmt.Errorf("%w: %s -> %s", ErrWrongState, f, to)
		}
		args = append(args, f.String())
		in = append(in, fmt.Sprintf("$%d", len(args)))
	}
	cmd, err := e.Exec(ctx, `UPDATE transcriptions SET status = $2, updated = $3, error = NULLIF($4, ''), 
	attempt_until = NULL
	WHERE id = $1 AND status IN (`+strings.Join(in, ", ")+`)`, args...)
	if err != nil {
		return fmt.Errorf("can't update status: %w", err)
	}
	if cmd.RowsAffected() != 1 {
		return fmt.Errorf("%w: can't set %s for %s", ErrWrongState, to, id)
	}
	goapp.Log.Info().Str("ID", id).Str("status", to.String()).Msg("status updated")
	return nil
}

// Complete saves the result and moves the job to SUCCESS in one transaction
func (db *DB) Complete(ctx context.Context, jobID string, res *persistence.Result) (err error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("can't start tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rErr := tx.Rollback(ctx); rErr != nil && !errors.Is(rErr, pgx.ErrTxClosed) {
				goapp.Log.Error().Err(rErr).Str("ID", jobID).Msg("can't rollback")
			}
		}
	}()
	_, err = tx.Exec(ctx, `INSERT INTO transcription_results(id, transcription_id, output_language, used_model,
	generated_text, segments, evaluation, created) VALUES($1, $2, $3, $4, $5, $6, $7, $8)`,
		res.ID, jobID, res.OutputLanguage, res.UsedModel, res.GeneratedText, res.Segments, res.Evaluation, res.Created)
	if err != nil {
		return fmt.Errorf("can't insert result: %w", err)
	}
	if err = db.updateStatus(ctx, tx, jobID, status.Success, "", status.Processing); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("can't commit: %w", err)
	}
	return nil
}

// LoadResult loads job's result, returns nil if not found
func (db *DB) LoadResult(ctx context.Context, jobID, id string) (*persistence.Result, error) {
	res, err := scanResult(db.pool.QueryRow(ctx, `SELECT `+resultColumns+` FROM transcription_results 
	WHERE id = $1 AND transcription_id = $2`, id, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("can't load result: %w", err)
	}
	return res, nil
}

// LoadResults loads all job's results, newest first
func (db *DB) LoadResults(ctx context.Context, jobID string) ([]*persistence.Result, error) {
	rows, err := db.pool.Query(ctx, `SELECT `+resultColumns+` FROM transcription_results 
	WHERE transcription_id = $1 ORDER BY created DESC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("can't select results: %w", err)
	}
	defer rows.Close()
	res := []*persistence.Result{}
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("can't scan result: %w", err)
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

// SetResultVideo stores the subtitled video file name
func (db *DB) SetResultVideo(ctx context.Context, id, file string) error {
	return db.updateResult(ctx, `UPDATE transcription_results SET video_file = $2, stitch_error = NULL WHERE id = $1`, id, file)
}

// SetStitchError records the failed subtitle rendering
func (db *DB) SetStitchError(ctx context.Context, id, errStr string) error {
	return db.updateResult(ctx, `UPDATE transcription_results SET stitch_error = $2 WHERE id = $1`, id, errStr)
}

func (db *DB) updateResult(ctx context.Context, sql, id, value string) error {
	cmd, err := db.pool.Exec(ctx, sql, id, value)
	if err != nil {
		return fmt.Errorf("can't update result: %w", err)
	}
	if cmd.RowsAffected() != 1 {
		return fmt.Errorf("can't update result, no records found")
	}
	return nil
}

// DeleteResult deletes one result, returns false if nothing deleted
func (db *DB) DeleteResult(ctx context.Context, jobID, id string) (bool, error) {
	cmd, err := db.pool.Exec(ctx, `DELETE FROM transcription_results WHERE id = $1 AND transcription_id = $2`, id, jobID)
	if err != nil {
		return false, fmt.Errorf("can't delete result: %w", err)
	}
	return cmd.RowsAffected() > 0, nil
}

// ListJobs returns user's jobs by filter, newest first
func (db *DB) ListJobs(ctx context.Context, filter *persistence.JobFilter) ([]*persistence.Job, error) {
	sql, args := listQuery(filter)
	rows, err := db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("can't select jobs: %w", err)
	}
	defer rows.Close()
	res := []*persistence.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("can't scan job: %w", err)
		}
		res = append(res, j)
	}
	return res, rows.Err()
}

func listQuery(filter *persistence.JobFilter) (string, []any) {
	args := []any{filter.UserID}
	where := []string{"user_id = $1"}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if !filter.From.IsZero() {
		add("created >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created <= $%d", filter.To)
	}
	sql := `SELECT ` + jobColumns + ` FROM transcriptions WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		sql += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return sql, args
}

// Live returns no error if db is reachable and initialized
func (db *DB) Live(ctx context.Context) error {
	var exists bool
	if err := db.pool.QueryRow(ctx, `SELECT EXISTS (SELECT FROM pg_tables WHERE tablename = 'gue_jobs')`).Scan(&exists); err != nil {
		return fmt.Errorf("can't check table: %w", err)
	}
	if !exists {
		return fmt.Errorf("no migration done")
	}
	return nil
}

func scanJob(row pgx.Row) (*persistence.Job, error) {
	var res persistence.Job
	if err := row.Scan(&res.ID, &res.UserID, &res.Status, &res.Error, &res.VideoFile, &res.Created, &res.Updated,
		&res.AttemptUntil); err != nil {
		return nil, err
	}
	return &res, nil
}

func scanResult(row pgx.Row) (*persistence.Result, error) {
	var res persistence.Result
	if err := row.Scan(&res.ID, &res.JobID, &res.OutputLanguage, &res.UsedModel, &res.GeneratedText, &res.Segments,
		&res.Evaluation, &res.VideoFile, &res.StitchError, &res.Created); err != nil {
		return nil, err
	}
	return &res, nil
}

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/council/internal/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vgarvardt/gue/v5"
	"github.com/vgarvardt/gue/v5/adapter/pgxv5"
)

// Sender performs messages sending using postgres gue
type Sender struct {
	gc   *gue.Client
	pool *pgxpool.Pool
}

// NewSender initializes gue sender
func NewSender(pool *pgxpool.Pool) (*Sender, error) {
	gc, err := gue.NewClient(pgxv5.NewConnPool(pool))
	if err != nil {
		return nil, fmt.Errorf("can't init gue: %w", err)
	}
	return &Sender{gc: gc, pool: pool}, nil
}

// SendMessage enqueues the message, queue may carry a job type as queue:type
func (sender *Sender) SendMessage(ctx context.Context, msg amessages.Message, queue string) error {
	j, err := newJob(msg, queue)
	if err != nil {
		return err
	}
	goapp.Log.Debug().Str("queue", j.Queue).Str("type", j.Type).Msg("Sending message")
	if err := sender.gc.Enqueue(ctx, j); err != nil {
		return fmt.Errorf("can't send msg to %s: %w", queue, err)
	}
	goapp.Log.Debug().Msg("Sent")
	return nil
}

// SendUnique enqueues the message unless the queue holds a job with the same message ID,
// a running or rescheduled job counts too. Returns false if nothing was enqueued.
func (sender *Sender) SendUnique(ctx context.Context, msg amessages.Message, queue string) (_ bool, err error) {
	j, err := newJob(msg, queue)
	if err != nil {
		return false, err
	}
	tx, err := sender.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("can't start tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rErr := tx.Rollback(ctx); rErr != nil && !errors.Is(rErr, pgx.ErrTxClosed) {
				goapp.Log.Error().Err(rErr).Str("ID", msg.GetID()).Msg("can't rollback")
			}
		}
	}()
	// serializes concurrent senders of the same id until commit
	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, j.Queue+"/"+j.Type+"/"+msg.GetID()); err != nil {
		return false, fmt.Errorf("can't lock: %w", err)
	}
	var exists bool
	err = tx.QueryRow(ctx, queuedSQL, j.Queue, j.Type, msg.GetID()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("can't check queue: %w", err)
	}
	if exists {
		goapp.Log.Info().Str("ID", msg.GetID()).Str("queue", j.Queue).Str("type", j.Type).Msg("already queued, skip")
		err = tx.Commit(ctx)
		return false, err
	}
	if err = sender.gc.EnqueueTx(ctx, j, pgxv5.NewTx(tx)); err != nil {
		return false, fmt.Errorf("can't send msg to %s: %w", queue, err)
	}
	if err = tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("can't commit: %w", err)
	}
	return true, nil
}

const queuedSQL = `SELECT EXISTS (SELECT 1 FROM gue_jobs WHERE queue = $1 AND job_type = $2
	AND convert_from(args, 'UTF8')::jsonb->>'id' = $3)`

func newJob(msg amessages.Message, queue string) (*gue.Job, error) {
	args, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("can't marshal msg: %w", err)
	}
	q, t := messages.Split(queue)
	return &gue.Job{Type: t, Queue: q, Args: args}, nil
}

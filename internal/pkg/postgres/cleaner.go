package postgres

import (
	"context"
	"fmt"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5/pgxpool"
)

type cleanTable struct {
	name, column string
}

// Cleaner cleans all records related with job ID
type Cleaner struct {
	pool   *pgxpool.Pool
	tables []cleanTable
}

// NewCleaner creates Cleaner instance
func NewCleaner(pool *pgxpool.Pool) (*Cleaner, error) {
	res := &Cleaner{pool: pool, tables: []cleanTable{{name: "transcription_results", column: "transcription_id"},
		{name: "transcriptions", column: "id"}}}
	return res, nil
}

// Clean deletes job and its results
func (db *Cleaner) Clean(ctx context.Context, id string) error {
	for _, t := range db.tables {
		cmd, err := db.pool.Exec(ctx, `DELETE FROM `+t.name+` WHERE `+t.column+` = $1`, id)
		if err != nil {
			return fmt.Errorf("can't delete %s(%s): %w", id, t.name, err)
		}
		goapp.Log.Info().Str("ID", id).Str("table", t.name).Int64("rows", cmd.RowsAffected()).Msg("deleted")
	}
	return nil
}

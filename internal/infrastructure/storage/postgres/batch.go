package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"stocktally/pkg/logger"
)

// BatchInserter loads many rows into one table using the COPY protocol.
// Used by bulk intake paths where row-at-a-time inserts are too slow.
type BatchInserter struct {
	txManager *TxManager
	table     pgx.Identifier
	columns   []string
}

// NewBatchInserter creates an inserter for the given table and column set.
func NewBatchInserter(txManager *TxManager, table string, columns []string) *BatchInserter {
	return &BatchInserter{
		txManager: txManager,
		table:     pgx.Identifier{table},
		columns:   columns,
	}
}

// InsertRows copies rows into the table. Each row must match the column set
// in length and order. Runs on the ambient transaction when one is present.
func (b *BatchInserter) InsertRows(ctx context.Context, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	q := b.txManager.GetQuerier(ctx)
	copied, err := q.CopyFrom(ctx, b.table, b.columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", b.table.Sanitize(), err)
	}
	if copied != int64(len(rows)) {
		return copied, fmt.Errorf("copy into %s: wrote %d of %d rows", b.table.Sanitize(), copied, len(rows))
	}

	logger.Debug(ctx, "bulk insert completed", "table", b.table.Sanitize(), "rows", copied)
	return copied, nil
}

// InsertFromChannel streams rows from ch until it closes, without buffering
// the whole set in memory. The producer signals failure by closing ch after
// cancelling ctx.
func (b *BatchInserter) InsertFromChannel(ctx context.Context, ch <-chan []any) (int64, error) {
	q := b.txManager.GetQuerier(ctx)
	src := &channelCopySource{ctx: ctx, ch: ch}

	copied, err := q.CopyFrom(ctx, b.table, b.columns, src)
	if err != nil {
		return copied, fmt.Errorf("copy into %s: %w", b.table.Sanitize(), err)
	}
	return copied, nil
}

type channelCopySource struct {
	ctx  context.Context
	ch   <-chan []any
	row  []any
	done bool
}

func (s *channelCopySource) Next() bool {
	if s.done {
		return false
	}
	select {
	case <-s.ctx.Done():
		s.done = true
		return false
	case row, ok := <-s.ch:
		if !ok {
			s.done = true
			return false
		}
		s.row = row
		return true
	}
}

func (s *channelCopySource) Values() ([]any, error) {
	return s.row, nil
}

func (s *channelCopySource) Err() error {
	return s.ctx.Err()
}

package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/japaniel/openings/pkg/catalog"
	"github.com/japaniel/openings/pkg/db"
	"github.com/japaniel/openings/pkg/moves"
	"github.com/japaniel/openings/pkg/source"
)

// WorkerPoolInterface abstracts the worker pool so tests can inject failing implementations.
type WorkerPoolInterface interface {
	Start(ctx context.Context)
	Submit(Job) error
	// SubmitCtx attempts to enqueue a job but returns promptly if ctx is canceled.
	SubmitCtx(ctx context.Context, job Job) error
	Close()
}

// Ingester normalizes raw feed rows concurrently and, when DB is set, stages
// every row in the openings table of a build.
type Ingester struct {
	DB        *sql.DB
	BatchSize int
	// Logger is used for warnings about rejected rows. nil means no logging.
	Logger *log.Logger
	// OnProgress is called periodically with the number of processed rows and total rows.
	OnProgress func(current, total int)

	// Concurrency settings
	Workers int

	// PoolFactory allows tests to inject custom worker pool implementations.
	PoolFactory func(workers, queue int) WorkerPoolInterface
}

// NewIngester creates a new Ingester. conn may be nil to skip staging.
func NewIngester(conn *sql.DB) *Ingester {
	return &Ingester{
		DB:        conn,
		BatchSize: 50,
		Workers:   4, // Default worker count
	}
}

// Result holds the normalized records, in feed order, and the rows rejected on the way.
type Result struct {
	Records     []catalog.Record
	Diagnostics []catalog.Diagnostic
	Staged      int // rows written to the openings table
}

// normalizedRow holds the result of normalizing one raw row.
type normalizedRow struct {
	Index  int
	Raw    source.RawOpening
	Record catalog.Record
	Err    error
}

// Ingest normalizes rows with a worker pool, reassembles them in feed order
// and stages each one through a BatchWriter. A malformed row becomes a
// diagnostic; only context cancellation and database failures are returned as errors.
func (ig *Ingester) Ingest(ctx context.Context, buildID string, rows []source.RawOpening) (*Result, error) {
	if ig.DB != nil && buildID == "" {
		return nil, fmt.Errorf("buildID must be non-empty when staging")
	}
	res := &Result{}
	total := len(rows)
	if total == 0 {
		return res, ctx.Err()
	}

	var wp WorkerPoolInterface
	if ig.PoolFactory != nil {
		wp = ig.PoolFactory(ig.Workers, ig.Workers*2)
	} else {
		wp = NewWorkerPool(ig.Workers, ig.Workers*2)
	}
	resultCh := make(chan normalizedRow, ig.Workers*2)

	var bw *BatchWriter
	if ig.DB != nil {
		bw = NewBatchWriter(ig.DB, ig.BatchSize, 100*time.Millisecond)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	wp.Start(ctx)

	// Consumer: reorder results and stage them.
	doneCh := make(chan error, 1)
	go func() {
		defer close(doneCh)
		buffer := make(map[int]normalizedRow)
		next := 0
		for r := range resultCh {
			buffer[r.Index] = r
			for {
				item, ok := buffer[next]
				if !ok {
					break
				}
				delete(buffer, next)
				if err := ig.accept(res, bw, buildID, item); err != nil {
					cancel()
					doneCh <- err
					for range resultCh {
					}
					return
				}
				next++
				if ig.OnProgress != nil && (next%ig.batchSize() == 0 || next == total) {
					ig.OnProgress(next, total)
				}
			}
		}
		if next != total {
			doneCh <- ctx.Err()
		}
	}()

	// Producer: submit one normalization job per row.
	var submitErr error
	var jobs sync.WaitGroup
Loop:
	for i := range rows {
		idx := i
		raw := rows[i]
		jobs.Add(1)
		job := func(ctx context.Context) error {
			defer jobs.Done()
			r := normalize(idx, raw)
			select {
			case resultCh <- r:
			case <-ctx.Done():
			}
			return nil
		}
		if err := wp.SubmitCtx(ctx, job); err != nil {
			jobs.Done()
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || err == ErrPoolClosed {
				break Loop
			}
			submitErr = err
			break Loop
		}
	}

	// Workers exit on cancellation without running queued jobs; release their slots.
	wp.Close()
	if ctx.Err() != nil {
		drainQueued(&jobs, wp)
	}
	jobs.Wait()
	close(resultCh)

	consumerErr := <-doneCh
	if bw != nil {
		if err := bw.Close(); err != nil && consumerErr == nil {
			consumerErr = err
		}
		res.Staged = bw.Committed()
	}
	if submitErr != nil {
		return res, submitErr
	}
	return res, consumerErr
}

func (ig *Ingester) batchSize() int {
	if ig.BatchSize <= 0 {
		return 1
	}
	return ig.BatchSize
}

// accept records one in-order row and queues its staging write.
func (ig *Ingester) accept(res *Result, bw *BatchWriter, buildID string, item normalizedRow) error {
	family, subfamily := catalog.SplitName(item.Raw.Name)
	row := db.Opening{
		Index:     item.Index,
		Code:      item.Raw.Code,
		Name:      item.Raw.Name,
		Family:    family,
		Subfamily: subfamily,
		PGN:       item.Raw.Moves,
		HalfMoves: len(item.Record.Moves),
		Status:    catalog.StatusRetained,
	}
	if item.Err != nil {
		row.Status = catalog.StatusMalformed
		d := catalog.Diagnostic{
			Index:   item.Index,
			Kind:    catalog.KindMalformedSequence,
			Name:    item.Raw.Name,
			Message: item.Err.Error(),
		}
		res.Diagnostics = append(res.Diagnostics, d)
		if ig.Logger != nil {
			ig.Logger.Printf("Warning: %s", d)
		}
	} else {
		res.Records = append(res.Records, item.Record)
	}

	if bw == nil {
		return nil
	}
	return bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
		return db.UpsertOpening(tx, buildID, row)
	})
}

// normalize performs the per-row work done on pool workers.
func normalize(index int, raw source.RawOpening) normalizedRow {
	seq, err := moves.Normalize(raw.Moves)
	return normalizedRow{
		Index: index,
		Raw:   raw,
		Record: catalog.Record{
			Index: index,
			Code:  raw.Code,
			Name:  raw.Name,
			Moves: seq,
		},
		Err: err,
	}
}

// drainQueued runs nothing but accounts for jobs a canceled pool will never start.
func drainQueued(jobs *sync.WaitGroup, wp WorkerPoolInterface) {
	p, ok := wp.(*WorkerPool)
	if !ok {
		return
	}
	for {
		select {
		case <-p.jobs:
			jobs.Done()
		default:
			return
		}
	}
}

// RecordStatus writes the final status of every staged row of a build, in
// batches, after the catalog has been built.
func (ig *Ingester) RecordStatus(ctx context.Context, buildID string, c *catalog.Catalog) error {
	if ig.DB == nil {
		return nil
	}
	bw := NewBatchWriter(ig.DB, ig.batchSize(), 0)
	for idx, status := range c.Status {
		if status == catalog.StatusRetained {
			continue
		}
		if err := ctx.Err(); err != nil {
			_ = bw.Close()
			return err
		}
		idx, status := idx, status
		if err := bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
			return db.UpdateOpeningStatus(tx, buildID, idx, status)
		}); err != nil {
			_ = bw.Close()
			return err
		}
	}
	return bw.Close()
}

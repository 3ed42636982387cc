// Package batch processes TSV manifests of document paths: each row is
// read, checksummed, parsed, and registered, with bounded parallel
// fan-out. Results are reported row-by-row in manifest order.
package batch

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/starford/dagaz/internal/checksum"
	"github.com/starford/dagaz/internal/syncer"
)

// Statuses reported per row.
const (
	StatusOK       = "ok"
	StatusMismatch = "checksum_mismatch"
	StatusError    = "error"
)

// Row is one manifest line: a vault path and an optional expected checksum.
type Row struct {
	Path     string
	Expected string
}

// Result is the outcome for one row.
type Result struct {
	Path     string
	Status   string
	Checksum string
	Err      string
}

// Runner fans manifest rows out to a bounded worker pool.
type Runner struct {
	deps    syncer.Deps
	workers int
}

// NewRunner creates a batch runner. workers <= 0 defaults to 4.
func NewRunner(deps syncer.Deps, workers int) *Runner {
	if workers <= 0 {
		workers = 4
	}
	return &Runner{deps: deps, workers: workers}
}

// ReadManifest parses a tab-separated manifest. Column 1 is the vault
// path, column 2 (optional) the expected checksum. Blank lines and
// lines starting with '#' are skipped.
func ReadManifest(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.Comment = '#'
	cr.FieldsPerRecord = -1

	var rows []Row
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("batch: read manifest: %w", err)
		}
		if len(rec) == 0 || rec[0] == "" {
			continue
		}
		row := Row{Path: rec[0]}
		if len(rec) > 1 {
			row.Expected = rec[1]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteResults writes results as TSV: path, status, checksum, error.
func WriteResults(w io.Writer, results []Result) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	for _, res := range results {
		if err := cw.Write([]string{res.Path, res.Status, res.Checksum, res.Err}); err != nil {
			return fmt.Errorf("batch: write results: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("batch: flush results: %w", err)
	}
	return nil
}

// Run processes rows with up to the configured number of workers and
// returns one result per row, in input order. Row failures are recorded
// in the result, not returned as errors; Run fails only on cancellation.
func (r *Runner) Run(ctx context.Context, rows []Row) ([]Result, error) {
	results := make([]Result, len(rows))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for i, row := range rows {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			results[i] = r.processRow(row)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := r.deps.Registry.Flush(ctx); err != nil {
		r.deps.Logger.Warn("batch: registry flush failed", slog.String("error", err.Error()))
	}
	if err := r.deps.Cache.Flush(); err != nil {
		r.deps.Logger.Warn("batch: cache flush failed", slog.String("error", err.Error()))
	}
	return results, nil
}

func (r *Runner) processRow(row Row) Result {
	data, err := r.deps.Store.Read(row.Path)
	if err != nil {
		return Result{Path: row.Path, Status: StatusError, Err: err.Error()}
	}

	cs := checksum.Sum(data)
	if row.Expected != "" && row.Expected != cs {
		return Result{Path: row.Path, Status: StatusMismatch, Checksum: cs,
			Err: fmt.Sprintf("expected %s", row.Expected)}
	}

	if err := syncer.IndexFile(r.deps, row.Path, data); err != nil {
		return Result{Path: row.Path, Status: StatusError, Checksum: cs, Err: err.Error()}
	}
	return Result{Path: row.Path, Status: StatusOK, Checksum: cs}
}

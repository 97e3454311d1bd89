package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// BatchResult summarizes a batch run.
type BatchResult struct {
	Processed int
	Failed    int
	Errors    []BatchError
}

// BatchError records a single failed URL within a batch.
type BatchError struct {
	URL string
	Err error
}

// ParseURLList reads one URL per line, skipping blanks and # comments.
func ParseURLList(r io.Reader) ([]string, error) {
	var urls []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("pipeline: read url list: %w", err)
	}
	return urls, nil
}

// ProcessBatch runs the pipeline over urls with at most concurrency runs in
// flight. Individual failures do not stop the batch; cancellation lets
// in-flight runs finish and skips the rest.
func (r *Runner) ProcessBatch(ctx context.Context, urls []string, concurrency int) *BatchResult {
	if concurrency <= 0 {
		concurrency = 2
	}

	var (
		processed atomic.Int64
		failures  = make(chan BatchError, len(urls))
	)

	// Cancellation gates submission only: a run that has started keeps its
	// stage timeouts but is never aborted mid-flight.
	runCtx := context.WithoutCancel(ctx)

	g := &errgroup.Group{}
	g.SetLimit(concurrency)
	for _, u := range urls {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if _, err := r.Process(runCtx, u, false); err != nil {
				failures <- BatchError{URL: u, Err: err}
				return nil
			}
			processed.Add(1)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers never return errors
	close(failures)

	res := &BatchResult{Processed: int(processed.Load())}
	for be := range failures {
		res.Failed++
		res.Errors = append(res.Errors, be)
	}
	return res
}

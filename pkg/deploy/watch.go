package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/baremetal-kit/nodeprep/pkg/errors"
	"github.com/baremetal-kit/nodeprep/pkg/source"
)

// watchFetch runs the fetch in the background and observes it at the
// configured poll cadence until it reaches a terminal state or the hard
// timeout elapses. Exceeding the timeout is reported as ErrTimeout.
func (m *Machine) watchFetch(ctx context.Context, host, rawURL, dest string) (*source.Result, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, m.opts.FetchTimeout)
	defer cancel()

	progress := source.NewProgress()

	type outcome struct {
		result *source.Result
		err    error
	}
	done := make(chan outcome, 1)

	started := time.Now()
	go func() {
		result, err := m.fetcher.Fetch(fetchCtx, rawURL, dest, progress)
		done <- outcome{result: result, err: err}
	}()

	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case out := <-done:
			if out.err != nil {
				if fetchCtx.Err() == context.DeadlineExceeded {
					return nil, fmt.Errorf("%w: fetch did not finish within %s", errors.ErrTimeout, m.opts.FetchTimeout)
				}
				return nil, out.err
			}
			slog.Info("fetch_terminal", "host", host, "elapsed_s", int64(time.Since(started).Seconds()))
			return out.result, nil

		case <-fetchCtx.Done():
			// Enforced here so the ceiling holds even for a fetcher that
			// ignores its context; the buffered channel lets the goroutine
			// finish and exit on its own.
			if fetchCtx.Err() == context.DeadlineExceeded {
				return nil, fmt.Errorf("%w: fetch did not finish within %s", errors.ErrTimeout, m.opts.FetchTimeout)
			}
			return nil, errors.Wrap(fetchCtx.Err(), "fetch canceled")

		case <-ticker.C:
			slog.Info("fetch_in_progress",
				"host", host,
				"elapsed_s", int64(time.Since(started).Seconds()),
				"bytes_done", progress.Bytes())
		}
	}
}

package deploy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/baremetal-kit/nodeprep/pkg/errors"
	"github.com/baremetal-kit/nodeprep/pkg/source"
)

// fetcherFunc adapts a function to the source.Fetcher interface
type fetcherFunc func(ctx context.Context, rawURL, destPath string, progress *source.Progress) (*source.Result, error)

func (f fetcherFunc) Fetch(ctx context.Context, rawURL, destPath string, progress *source.Progress) (*source.Result, error) {
	return f(ctx, rawURL, destPath, progress)
}

func testMachine(fetcher source.Fetcher, opts Options) *Machine {
	if opts.PollInterval == 0 {
		opts.PollInterval = 5 * time.Millisecond
	}
	if opts.FetchTimeout == 0 {
		opts.FetchTimeout = time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 5
	}
	return NewMachine(nil, fetcher, opts)
}

func TestWatchFetch_Success(t *testing.T) {
	content := []byte("image payload")
	sum := sha256.Sum256(content)

	fetcher := fetcherFunc(func(ctx context.Context, rawURL, destPath string, progress *source.Progress) (*source.Result, error) {
		if err := os.WriteFile(destPath, content, 0644); err != nil {
			return nil, err
		}
		progress.Write(content)
		return &source.Result{Path: destPath, Size: int64(len(content)), SHA256: hex.EncodeToString(sum[:])}, nil
	})

	m := testMachine(fetcher, Options{})
	dest := filepath.Join(t.TempDir(), "node-1.img")

	result, err := m.watchFetch(t.Context(), "node-1", "http://mirror/node.img", dest)
	if err != nil {
		t.Fatalf("watchFetch failed: %v", err)
	}
	if result.Size != int64(len(content)) {
		t.Errorf("size mismatch: got %d", result.Size)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Errorf("destination missing: %v", err)
	}
}

func TestWatchFetch_PollsWhileRunning(t *testing.T) {
	fetcher := fetcherFunc(func(ctx context.Context, rawURL, destPath string, progress *source.Progress) (*source.Result, error) {
		// Slow enough for several poll ticks at the 5ms test cadence.
		time.Sleep(50 * time.Millisecond)
		return &source.Result{Path: destPath}, nil
	})

	m := testMachine(fetcher, Options{})
	if _, err := m.watchFetch(t.Context(), "node-1", "http://mirror/node.img", filepath.Join(t.TempDir(), "node-1.img")); err != nil {
		t.Fatalf("watchFetch failed: %v", err)
	}
}

func TestWatchFetch_Timeout(t *testing.T) {
	fetcher := fetcherFunc(func(ctx context.Context, rawURL, destPath string, progress *source.Progress) (*source.Result, error) {
		// Behave like a real transfer: block until the context dies.
		<-ctx.Done()
		return nil, ctx.Err()
	})

	m := testMachine(fetcher, Options{FetchTimeout: 30 * time.Millisecond, PollInterval: 5 * time.Millisecond})

	_, err := m.watchFetch(t.Context(), "node-1", "http://mirror/node.img", filepath.Join(t.TempDir(), "node-1.img"))
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, errors.ErrTimeout) {
		t.Errorf("expected ErrTimeout, got: %v", err)
	}
	if kind := errors.Kind(err); kind != "timeout" {
		t.Errorf("unexpected kind: %s", kind)
	}
}

func TestWatchFetch_TimeoutIgnoringFetcher(t *testing.T) {
	fetcher := fetcherFunc(func(ctx context.Context, rawURL, destPath string, progress *source.Progress) (*source.Result, error) {
		// A fetcher that never looks at its context must still be cut off.
		time.Sleep(10 * time.Second)
		return &source.Result{Path: destPath}, nil
	})

	m := testMachine(fetcher, Options{FetchTimeout: 30 * time.Millisecond, PollInterval: 5 * time.Millisecond})

	started := time.Now()
	_, err := m.watchFetch(t.Context(), "node-1", "http://mirror/node.img", filepath.Join(t.TempDir(), "node-1.img"))
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, errors.ErrTimeout) {
		t.Errorf("expected ErrTimeout, got: %v", err)
	}
	if elapsed := time.Since(started); elapsed > time.Second {
		t.Errorf("timeout not enforced promptly: took %s", elapsed)
	}
}

func TestWatchFetch_TransferError(t *testing.T) {
	fetcher := fetcherFunc(func(ctx context.Context, rawURL, destPath string, progress *source.Progress) (*source.Result, error) {
		return nil, errors.Wrap(errors.ErrTransfer, "connection reset")
	})

	m := testMachine(fetcher, Options{})

	_, err := m.watchFetch(t.Context(), "node-1", "http://mirror/node.img", filepath.Join(t.TempDir(), "node-1.img"))
	if err == nil {
		t.Fatal("expected transfer error")
	}
	if !errors.Is(err, errors.ErrTransfer) {
		t.Errorf("expected ErrTransfer, got: %v", err)
	}
	if errors.Is(err, errors.ErrTimeout) {
		t.Error("transfer error misclassified as timeout")
	}
}

package deploy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/baremetal-kit/nodeprep/pkg/db"
	"github.com/baremetal-kit/nodeprep/pkg/preflight"
	"github.com/baremetal-kit/nodeprep/pkg/source"
	"github.com/superfly/fsm"
)

func newHandlerMachine(t *testing.T, fetcher source.Fetcher) (*Machine, *db.Repository) {
	t.Helper()

	repo, err := db.NewRepository(filepath.Join(t.TempDir(), "deployments.db"))
	if err != nil {
		t.Fatalf("repository init failed: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	m := NewMachine(repo, fetcher, Options{
		ImageDir:     t.TempDir(),
		PollInterval: 5 * time.Millisecond,
		FetchTimeout: time.Second,
		MaxRetries:   5,
	})
	return m, repo
}

func TestHandlers_FailedPreflightStartsNoFetch(t *testing.T) {
	fetchCalls := 0
	fetcher := fetcherFunc(func(ctx context.Context, rawURL, destPath string, progress *source.Progress) (*source.Result, error) {
		fetchCalls++
		return &source.Result{Path: destPath}, nil
	})
	m, repo := newHandlerMachine(t, fetcher)

	req := fsm.NewRequest(&DeployRequest{
		Host:                "node-1",
		ImageURL:            "http://mirror/node.img",
		MemoryRequirementMB: 2048,
		AvailableMemoryMB:   1024,
	}, &DeployResponse{})

	if _, err := m.handleCheckRecord(t.Context(), req); err != nil {
		t.Fatalf("check_record failed: %v", err)
	}

	if _, err := m.handlePreflight(t.Context(), req); err == nil {
		t.Fatal("expected preflight to abort")
	}

	rec, err := repo.GetByHost("node-1")
	if err != nil {
		t.Fatalf("record lookup failed: %v", err)
	}
	if rec == nil {
		t.Fatal("deployment record missing")
	}
	if rec.Status != db.StatusFailed {
		t.Errorf("unexpected status: %s", rec.Status)
	}
	if rec.ErrorKind != "precondition_failed" {
		t.Errorf("unexpected error kind: %s", rec.ErrorKind)
	}
	if !strings.Contains(rec.ErrorMessage, preflight.MemoryCheckMessage) {
		t.Errorf("unexpected error message: %s", rec.ErrorMessage)
	}
	if fetchCalls != 0 {
		t.Errorf("fetcher invoked %d times after failed preflight", fetchCalls)
	}
}

func TestHandlers_NoChecksumDeploySucceeds(t *testing.T) {
	content := []byte("unverified image payload")
	sum := sha256.Sum256(content)

	fetchCalls := 0
	fetcher := fetcherFunc(func(ctx context.Context, rawURL, destPath string, progress *source.Progress) (*source.Result, error) {
		fetchCalls++
		if err := os.WriteFile(destPath, content, 0644); err != nil {
			return nil, err
		}
		return &source.Result{Path: destPath, Size: int64(len(content)), SHA256: hex.EncodeToString(sum[:])}, nil
	})
	m, repo := newHandlerMachine(t, fetcher)

	// The threshold comes from the request; this one passes.
	req := fsm.NewRequest(&DeployRequest{
		Host:                "node-2",
		ImageURL:            "http://mirror/node.img",
		MemoryRequirementMB: 512,
		AvailableMemoryMB:   4096,
	}, &DeployResponse{})

	handlers := []func(context.Context, *fsm.Request[DeployRequest, DeployResponse]) (*fsm.Response[DeployResponse], error){
		m.handleCheckRecord,
		m.handlePreflight,
		m.handleFetch,
		m.handleVerify,
		m.handleComplete,
	}
	for i, h := range handlers {
		if _, err := h(t.Context(), req); err != nil {
			t.Fatalf("handler %d failed: %v", i, err)
		}
	}

	if fetchCalls != 1 {
		t.Errorf("fetcher invoked %d times, want 1", fetchCalls)
	}

	rec, err := repo.GetByHost("node-2")
	if err != nil {
		t.Fatalf("record lookup failed: %v", err)
	}
	if rec == nil {
		t.Fatal("deployment record missing")
	}
	if rec.Status != db.StatusSucceeded {
		t.Errorf("unexpected status: %s", rec.Status)
	}
	if req.W.Msg.Status != db.StatusSucceeded {
		t.Errorf("unexpected response status: %s", req.W.Msg.Status)
	}
	if _, err := os.Stat(req.W.Msg.ImagePath); err != nil {
		t.Errorf("downloaded image missing: %v", err)
	}
}

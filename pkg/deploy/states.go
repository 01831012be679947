package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/baremetal-kit/nodeprep/pkg/checksum"
	"github.com/baremetal-kit/nodeprep/pkg/db"
	"github.com/baremetal-kit/nodeprep/pkg/errors"
	"github.com/baremetal-kit/nodeprep/pkg/preflight"
	"github.com/superfly/fsm"
)

// handleCheckRecord checks for an existing deployment record (idempotency)
func (m *Machine) handleCheckRecord(ctx context.Context, req *fsm.Request[DeployRequest, DeployResponse]) (*fsm.Response[DeployResponse], error) {
	slog.Info("fsm_state_check_record", "host", req.Msg.Host)

	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.opts.MaxRetries) {
		slog.Error("max_retries_exceeded", "host", req.Msg.Host, "max_retries", m.opts.MaxRetries)
		return nil, fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.opts.MaxRetries))
	}

	rec, err := m.repo.GetByHost(req.Msg.Host)
	if err != nil {
		slog.Error("record_check_failed", "host", req.Msg.Host, "error", err)
		return nil, fsm.Abort(errors.Wrap(err, "database error"))
	}

	resp := req.W.Msg
	if resp == nil {
		resp = &DeployResponse{}
	}

	if rec != nil {
		resp.DeploymentID = rec.ID

		// A deployment that already succeeded for the same image with the
		// file still in place is done; later states pass through.
		if rec.Status == db.StatusSucceeded && rec.ImageURL == req.Msg.ImageURL && fileExists(rec.ImagePath) {
			slog.Info("deployment_already_succeeded", "host", req.Msg.Host, "deployment_id", rec.ID, "image_path", rec.ImagePath)
			resp.ImagePath = rec.ImagePath
			resp.SHA256 = rec.SHA256
			resp.SizeBytes = rec.SizeBytes
			resp.Status = db.StatusSucceeded
			return fsm.NewResponse(resp), nil
		}

		slog.Info("deployment_record_reset", "host", req.Msg.Host, "deployment_id", rec.ID, "previous_status", rec.Status)
		rec.ImageURL = req.Msg.ImageURL
		rec.Checksum = req.Msg.Checksum
		rec.Status = db.StatusPending
		rec.ErrorKind = ""
		rec.ErrorMessage = ""
		if err := m.repo.Update(rec); err != nil {
			slog.Error("record_reset_failed", "host", req.Msg.Host, "error", err)
			return nil, errors.Wrap(err, "failed to reset deployment record")
		}
	} else {
		rec = &db.Deployment{
			Host:     req.Msg.Host,
			ImageURL: req.Msg.ImageURL,
			Checksum: req.Msg.Checksum,
			Status:   db.StatusPending,
		}
		if err := m.repo.Create(rec); err != nil {
			slog.Error("record_create_failed", "host", req.Msg.Host, "error", err)
			return nil, errors.Wrap(err, "failed to create deployment record")
		}
		resp.DeploymentID = rec.ID
		slog.Info("deployment_record_created", "host", req.Msg.Host, "deployment_id", rec.ID)
	}

	return fsm.NewResponse(resp), nil
}

// handlePreflight verifies the node's resources before any download starts
func (m *Machine) handlePreflight(ctx context.Context, req *fsm.Request[DeployRequest, DeployResponse]) (*fsm.Response[DeployResponse], error) {
	slog.Info("fsm_state_preflight", "host", req.Msg.Host)

	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.opts.MaxRetries) {
		slog.Error("max_retries_exceeded", "host", req.Msg.Host, "max_retries", m.opts.MaxRetries)
		return nil, fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.opts.MaxRetries))
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}
	if resp.Status == db.StatusSucceeded {
		return fsm.NewResponse(resp), nil
	}

	if err := m.repo.UpdateStatus(resp.DeploymentID, db.StatusRunning, "", ""); err != nil {
		return nil, errors.Wrap(err, "failed to update status")
	}

	// The memory threshold travels with the request: each deployment
	// carries its own image's requirement.
	checker := preflight.NewChecker(req.Msg.MemoryRequirementMB, m.opts.MinDiskFreeMB)

	if err := checker.CheckMemory(req.Msg.AvailableMemoryMB); err != nil {
		return nil, m.fail(resp, err)
	}

	if err := checker.CheckDisk(m.opts.ImageDir); err != nil {
		return nil, m.fail(resp, err)
	}

	return fsm.NewResponse(resp), nil
}

// handleFetch downloads the image under the poll loop with the hard timeout
func (m *Machine) handleFetch(ctx context.Context, req *fsm.Request[DeployRequest, DeployResponse]) (*fsm.Response[DeployResponse], error) {
	slog.Info("fsm_state_fetch", "host", req.Msg.Host, "image_url", req.Msg.ImageURL)

	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.opts.MaxRetries) {
		slog.Error("max_retries_exceeded", "host", req.Msg.Host, "max_retries", m.opts.MaxRetries)
		return nil, fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.opts.MaxRetries))
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}
	if resp.Status == db.StatusSucceeded {
		return fsm.NewResponse(resp), nil
	}

	dest := m.destPath(req.Msg.Host)

	if !m.opts.Overwrite && fileExists(dest) {
		err := fmt.Errorf("destination %s already exists (set overwrite-existing to replace)", dest)
		slog.Error("destination_exists", "host", req.Msg.Host, "dest", dest)
		return nil, m.fail(resp, err)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		slog.Error("image_dir_creation_failed", "path", filepath.Dir(dest), "error", err)
		return nil, errors.Wrap(err, "failed to create image dir")
	}

	result, err := m.watchFetch(ctx, req.Msg.Host, req.Msg.ImageURL, dest)
	if err != nil {
		slog.Error("fetch_failed", "host", req.Msg.Host, "image_url", req.Msg.ImageURL, "error", err)
		return nil, m.fail(resp, err)
	}

	slog.Info("fetch_complete",
		"host", req.Msg.Host,
		"size_mb", result.Size/1024/1024,
		"sha256", result.SHA256[:16]+"...",
	)

	resp.ImagePath = result.Path
	resp.SHA256 = result.SHA256
	resp.SizeBytes = result.Size

	rec, _ := m.repo.GetByHost(req.Msg.Host)
	if rec != nil {
		rec.ImagePath = result.Path
		rec.SHA256 = result.SHA256
		rec.SizeBytes = result.Size
		if err := m.repo.Update(rec); err != nil {
			slog.Error("record_update_failed", "deployment_id", rec.ID, "error", err)
			return nil, errors.Wrap(err, "failed to update deployment record")
		}
	}

	return fsm.NewResponse(resp), nil
}

// handleVerify checks the downloaded image against the declared checksum
func (m *Machine) handleVerify(ctx context.Context, req *fsm.Request[DeployRequest, DeployResponse]) (*fsm.Response[DeployResponse], error) {
	slog.Info("fsm_state_verify", "host", req.Msg.Host)

	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.opts.MaxRetries) {
		slog.Error("max_retries_exceeded", "host", req.Msg.Host, "max_retries", m.opts.MaxRetries)
		return nil, fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.opts.MaxRetries))
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}
	if resp.Status == db.StatusSucceeded {
		return fsm.NewResponse(resp), nil
	}

	if req.Msg.Checksum == "" {
		slog.Info("checksum_verification_skipped", "host", req.Msg.Host)
		return fsm.NewResponse(resp), nil
	}

	if err := verifyImage(req.Msg.Checksum, resp.SHA256, resp.ImagePath); err != nil {
		if errors.Is(err, errors.ErrIntegrity) {
			// Never leave an unvalidated file claimed as the destination.
			os.Remove(resp.ImagePath)
		}
		return nil, m.fail(resp, err)
	}

	return fsm.NewResponse(resp), nil
}

// handleComplete marks the deployment record succeeded
func (m *Machine) handleComplete(ctx context.Context, req *fsm.Request[DeployRequest, DeployResponse]) (*fsm.Response[DeployResponse], error) {
	slog.Info("fsm_state_complete", "host", req.Msg.Host)

	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.opts.MaxRetries) {
		slog.Error("max_retries_exceeded", "host", req.Msg.Host, "max_retries", m.opts.MaxRetries)
		return nil, fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.opts.MaxRetries))
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	if err := m.repo.UpdateStatus(resp.DeploymentID, db.StatusSucceeded, "", ""); err != nil {
		slog.Error("status_update_failed", "deployment_id", resp.DeploymentID, "error", err)
		return nil, errors.Wrap(err, "failed to update status")
	}
	resp.Status = db.StatusSucceeded

	slog.Info("fsm_complete", "host", req.Msg.Host, "image_path", resp.ImagePath, "status", resp.Status)

	return fsm.NewResponse(resp), nil
}

// fail records a terminal failure on the deployment record and aborts the
// machine. Taxonomy errors are never retried internally.
func (m *Machine) fail(resp *DeployResponse, err error) error {
	resp.Status = db.StatusFailed
	resp.ErrorMessage = err.Error()
	if uerr := m.repo.UpdateStatus(resp.DeploymentID, db.StatusFailed, errors.Kind(err), err.Error()); uerr != nil {
		slog.Error("failure_record_update_failed", "deployment_id", resp.DeploymentID, "error", uerr)
	}
	return fsm.Abort(err)
}

// destPath derives the host-scoped destination file.
func (m *Machine) destPath(host string) string {
	return filepath.Join(m.opts.ImageDir, host+".img")
}

// verifyImage checks a downloaded image against a parsed checksum. The
// SHA-256 computed during the stream is reused when the declared algorithm
// is sha256; other algorithms re-hash the file.
func verifyImage(rawChecksum, inlineSHA256, imagePath string) error {
	c, err := checksum.Parse(rawChecksum)
	if err != nil {
		return errors.Wrap(err, "invalid checksum")
	}

	if c.Algo == checksum.AlgoSHA256 {
		if !c.Matches(inlineSHA256) {
			slog.Error("checksum_mismatch", "path", imagePath, "algo", c.Algo, "expected", c.Digest, "actual", inlineSHA256)
			return fmt.Errorf("%w: sha256 digest %s does not match expected %s", errors.ErrIntegrity, inlineSHA256, c.Digest)
		}
		slog.Info("checksum_verified", "path", imagePath, "algo", c.Algo)
		return nil
	}

	return c.VerifyFile(imagePath)
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

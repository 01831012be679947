// Package deploy implements the node deployment finite state machine: a
// memory precondition check followed by a polled, checksum-validated image
// fetch. States run under the superfly/fsm manager; every taxonomy failure
// aborts the machine without internal retry.
package deploy

import (
	"context"
	"time"

	"github.com/baremetal-kit/nodeprep/pkg/db"
	"github.com/baremetal-kit/nodeprep/pkg/errors"
	"github.com/baremetal-kit/nodeprep/pkg/source"
	"github.com/superfly/fsm"
)

// Options holds the scalar knobs for a deployment machine.
type Options struct {
	// ImageDir is where images land; the destination is <ImageDir>/<host>.img.
	ImageDir string

	// PollInterval is the cadence at which an in-flight fetch is observed.
	PollInterval time.Duration

	// FetchTimeout is the hard ceiling for one fetch.
	FetchTimeout time.Duration

	// Overwrite allows replacing an existing destination file.
	Overwrite bool

	// MinDiskFreeMB is the optional free-disk floor for the image dir;
	// zero disables the check.
	MinDiskFreeMB int64

	// MaxRetries caps fsm-level replays of transient infra errors.
	MaxRetries int
}

// Machine holds dependencies for FSM transitions
type Machine struct {
	repo    *db.Repository
	fetcher source.Fetcher
	opts    Options
}

// NewMachine creates a deployment machine with dependencies
func NewMachine(repo *db.Repository, fetcher source.Fetcher, opts Options) *Machine {
	return &Machine{
		repo:    repo,
		fetcher: fetcher,
		opts:    opts,
	}
}

// Register registers the deployment FSM
func (m *Machine) Register(ctx context.Context, manager *fsm.Manager) (fsm.Start[DeployRequest, DeployResponse], fsm.Resume, error) {
	start, resume, err := fsm.Register[DeployRequest, DeployResponse](manager, "node-deploy").
		Start(StateCheckRecord, m.handleCheckRecord).
		To(StatePreflight, m.handlePreflight).
		To(StateFetch, m.handleFetch).
		To(StateVerify, m.handleVerify).
		To(StateComplete, m.handleComplete).
		End(StateFailed).
		Build(ctx)

	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to register FSM")
	}

	return start, resume, nil
}

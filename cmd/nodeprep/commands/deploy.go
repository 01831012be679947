package commands

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/baremetal-kit/nodeprep/internal/config"
	"github.com/baremetal-kit/nodeprep/pkg/checksum"
	"github.com/baremetal-kit/nodeprep/pkg/db"
	"github.com/baremetal-kit/nodeprep/pkg/deploy"
	"github.com/baremetal-kit/nodeprep/pkg/errors"
	"github.com/baremetal-kit/nodeprep/pkg/preflight"
	"github.com/baremetal-kit/nodeprep/pkg/source"
	"github.com/spf13/cobra"
	"github.com/superfly/fsm"
)

var (
	deployImageURL     string
	deployChecksum     string
	deployMemReqMB     int64
	deployAvailMemMB   int64
	deployValidateCert bool
	deployProgress     bool
)

var deployCmd = &cobra.Command{
	Use:   "deploy <host>",
	Short: "Verify free memory, then fetch the node's disk image",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeploy,
}

func init() {
	rootCmd.AddCommand(deployCmd)
	deployCmd.Flags().StringVar(&deployImageURL, "image-url", "", "Image source URL (http://, https:// or s3://)")
	deployCmd.Flags().StringVar(&deployChecksum, "checksum", "", "Expected checksum as algo:hexdigest or algo:<manifest URL>")
	deployCmd.Flags().Int64Var(&deployMemReqMB, "mem-req-mb", 0, "Required free memory in MB")
	deployCmd.Flags().Int64Var(&deployAvailMemMB, "available-memory-mb", -1, "Free-memory fact in MB (negative: collect locally)")
	deployCmd.Flags().BoolVar(&deployValidateCert, "validate-certs", true, "Validate TLS certificates for https:// sources")
	deployCmd.Flags().BoolVar(&deployProgress, "progress", false, "Show a download progress bar")
	deployCmd.MarkFlagRequired("image-url")
	deployCmd.MarkFlagRequired("mem-req-mb")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	host := args[0]

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "config invalid")
	}

	if err := ensureDirectories(cfg.SQLitePath, cfg.FSMDBPath, cfg.ImageDir); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	// The memory fact normally comes from the orchestrator; collect it
	// locally only when it was not supplied.
	availableMB := deployAvailMemMB
	if availableMB < 0 {
		availableMB, err = preflight.FreeMemoryMB()
		if err != nil {
			return errors.Wrap(err, "no memory fact supplied and local collection failed")
		}
		slog.Info("memory_fact_collected", "host", host, "available_mb", availableMB)
	}

	fetcher, manifestClient, err := buildFetcher(ctx, cfg, deployImageURL)
	if err != nil {
		return err
	}

	resolvedChecksum := ""
	if deployChecksum != "" {
		cs, err := checksum.Resolve(ctx, manifestClient, deployChecksum, deployImageURL)
		if err != nil {
			return errors.Wrap(err, "checksum resolution failed")
		}
		resolvedChecksum = cs.String()
	}

	manager, err := fsm.New(fsm.Config{DBPath: cfg.FSMDBPath})
	if err != nil {
		return errors.Wrap(err, "FSM manager failed")
	}
	defer manager.Shutdown(10 * time.Second)

	machine := deploy.NewMachine(repo, fetcher, deploy.Options{
		ImageDir:      cfg.ImageDir,
		PollInterval:  cfg.PollInterval,
		FetchTimeout:  cfg.FetchTimeout,
		Overwrite:     cfg.OverwriteExisting,
		MinDiskFreeMB: cfg.MinDiskFreeMB,
		MaxRetries:    cfg.FSMMaxRetries,
	})
	start, _, err := machine.Register(ctx, manager)
	if err != nil {
		return errors.Wrap(err, "FSM register failed")
	}

	req := &deploy.DeployRequest{
		Host:                host,
		ImageURL:            deployImageURL,
		Checksum:            resolvedChecksum,
		MemoryRequirementMB: deployMemReqMB,
		AvailableMemoryMB:   availableMB,
	}
	resp := &deploy.DeployResponse{}

	version, err := start(ctx, host, fsm.NewRequest(req, resp))
	if err != nil {
		return errors.Wrap(err, "FSM start failed")
	}

	slog.Info("fsm_started", "host", host, "version", version)

	if err := manager.Wait(ctx, version); err != nil {
		return errors.Wrap(err, "deployment failed")
	}

	slog.Info("deployment_complete",
		"host", host,
		"status", resp.Status,
		"image_path", resp.ImagePath,
		"size_bytes", resp.SizeBytes,
	)

	return nil
}

// buildFetcher picks the source implementation from the URL scheme. The
// returned HTTP client is reused for checksum manifest resolution so it
// carries the same TLS settings as the transfer itself.
func buildFetcher(ctx context.Context, cfg *config.Config, imageURL string) (source.Fetcher, *http.Client, error) {
	if strings.HasPrefix(imageURL, "s3://") {
		fetcher, err := source.NewS3(ctx, cfg.S3Region, cfg.S3Anonymous)
		if err != nil {
			return nil, nil, errors.Wrap(err, "S3 fetcher failed")
		}
		return fetcher, http.DefaultClient, nil
	}

	fetcher := source.NewHTTP(source.HTTPOptions{
		ValidateCerts: deployValidateCert,
		ShowProgress:  deployProgress,
	})
	return fetcher, fetcher.Client(), nil
}

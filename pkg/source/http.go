package source

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/baremetal-kit/nodeprep/pkg/errors"
	"github.com/schollz/progressbar/v3"
)

// HTTPOptions configures an HTTP fetcher.
type HTTPOptions struct {
	// ValidateCerts controls TLS certificate validation. Validation is on
	// by default; set to false only for mirrors with self-signed certs.
	ValidateCerts bool

	// ShowProgress renders a byte progress bar on stderr.
	ShowProgress bool
}

// HTTPFetcher downloads images over HTTP(S).
type HTTPFetcher struct {
	client       *http.Client
	showProgress bool
}

// NewHTTP creates an HTTP fetcher. The client carries no overall timeout;
// the deadline comes from the caller's context.
func NewHTTP(opts HTTPOptions) *HTTPFetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !opts.ValidateCerts {
		slog.Warn("http_tls_validation_disabled")
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &HTTPFetcher{
		client:       &http.Client{Transport: transport},
		showProgress: opts.ShowProgress,
	}
}

// Client exposes the underlying HTTP client, e.g. for resolving checksum
// manifests against the same TLS settings.
func (f *HTTPFetcher) Client() *http.Client {
	return f.client
}

// Fetch downloads rawURL to destPath, computing SHA-256 in-stream. Non-2xx
// responses and transport failures are ErrTransfer; the partial file is
// removed on any failure.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL, destPath string, progress *Progress) (*Result, error) {
	slog.Info("http_fetch_start", "url", rawURL, "dest", destPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrTransfer, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Error("http_fetch_bad_status", "url", rawURL, "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: server returned status %d", errors.ErrTransfer, resp.StatusCode)
	}

	result, err := writeStream(resp.Body, destPath, progress, f.bar(resp.ContentLength, filepath.Base(destPath)))
	if err != nil {
		return nil, err
	}

	slog.Info("http_fetch_complete",
		"url", rawURL,
		"size_mb", result.Size/1024/1024,
		"sha256", result.SHA256[:16]+"...",
	)
	return result, nil
}

func (f *HTTPFetcher) bar(contentLength int64, name string) io.Writer {
	if !f.showProgress {
		return nil
	}
	return progressbar.NewOptions64(
		contentLength,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetDescription(name),
		progressbar.OptionThrottle(200*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// writeStream copies body to destPath through the SHA-256 hash and optional
// progress sinks. The destination is removed when the copy fails.
func writeStream(body io.Reader, destPath string, progress *Progress, extra io.Writer) (*Result, error) {
	dest, err := os.Create(destPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create destination file")
	}

	hash := sha256.New()
	writers := []io.Writer{dest, hash}
	if progress != nil {
		writers = append(writers, progress)
	}
	if extra != nil {
		writers = append(writers, extra)
	}

	size, err := io.Copy(io.MultiWriter(writers...), body)
	if cerr := dest.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		os.Remove(destPath)
		return nil, fmt.Errorf("%w: %v", errors.ErrTransfer, err)
	}

	return &Result{
		Path:   destPath,
		Size:   size,
		SHA256: hex.EncodeToString(hash.Sum(nil)),
	}, nil
}

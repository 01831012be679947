// Package source retrieves disk images from remote locations. Each fetcher
// streams the image to a local destination while computing its SHA-256, so
// the digest is available without a second pass over the file.
package source

import "context"

// Fetcher retrieves a remote image to a local path.
type Fetcher interface {
	// Fetch downloads rawURL to destPath. progress may be nil. On failure
	// the partial destination file is removed.
	Fetch(ctx context.Context, rawURL, destPath string, progress *Progress) (*Result, error)
}

// Result contains fetch metadata
type Result struct {
	Path   string
	Size   int64
	SHA256 string
}

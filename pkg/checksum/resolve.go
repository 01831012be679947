package checksum

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/baremetal-kit/nodeprep/pkg/errors"
)

// manifest files larger than this are rejected outright
const maxManifestSize = 1 << 20

// Resolve turns a raw checksum value into a concrete Checksum. When the
// digest part is itself an http(s) URL (e.g. "sha256:https://…/SHA256SUMS"),
// the manifest is fetched and searched for a line matching the image's
// filename. Manifest lines follow coreutils *sum output:
//
//	<hexdigest>  <filename>
//
// A manifest consisting of a single bare digest is also accepted.
func Resolve(ctx context.Context, client *http.Client, raw, imageURL string) (Checksum, error) {
	algo, rest, found := strings.Cut(raw, ":")
	if !found {
		return Checksum{}, fmt.Errorf("checksum %q missing algorithm prefix", raw)
	}

	if !strings.HasPrefix(rest, "http://") && !strings.HasPrefix(rest, "https://") {
		return Parse(raw)
	}

	imageName, err := fileNameFromURL(imageURL)
	if err != nil {
		return Checksum{}, err
	}

	slog.Info("checksum_manifest_fetch", "manifest_url", rest, "image_name", imageName)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rest, nil)
	if err != nil {
		return Checksum{}, errors.Wrap(err, "failed to build manifest request")
	}

	resp, err := client.Do(req)
	if err != nil {
		return Checksum{}, errors.Wrap(err, "failed to fetch checksum manifest")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Checksum{}, fmt.Errorf("checksum manifest fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestSize))
	if err != nil {
		return Checksum{}, errors.Wrap(err, "failed to read checksum manifest")
	}

	digest, err := digestFromManifest(string(body), imageName)
	if err != nil {
		return Checksum{}, err
	}

	return Parse(algo + ":" + digest)
}

func digestFromManifest(manifest, imageName string) (string, error) {
	lines := strings.Split(strings.TrimSpace(manifest), "\n")

	// Single bare digest, no filename column.
	if len(lines) == 1 && len(strings.Fields(lines[0])) == 1 {
		return strings.TrimSpace(lines[0]), nil
	}

	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		// coreutils marks binary mode with a leading '*' on the filename
		name := strings.TrimPrefix(fields[len(fields)-1], "*")
		if path.Base(name) == imageName {
			return fields[0], nil
		}
	}

	return "", fmt.Errorf("checksum manifest has no entry for %q", imageName)
}

func fileNameFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Wrap(err, "failed to parse image URL")
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("image URL %q has no file name", rawURL)
	}
	return name, nil
}

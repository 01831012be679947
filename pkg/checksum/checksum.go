// Package checksum parses and verifies algorithm-prefixed image checksums of
// the form "algo:hexdigest", e.g. "sha256:9f86d08...". The digest part may
// also be a URL to a checksum manifest, resolved with Resolve before a
// deployment starts.
package checksum

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/baremetal-kit/nodeprep/pkg/errors"
)

// Algorithms accepted in the "algo:" prefix.
const (
	AlgoMD5    = "md5"
	AlgoSHA1   = "sha1"
	AlgoSHA256 = "sha256"
	AlgoSHA512 = "sha512"
)

// Checksum is a parsed algorithm-prefixed digest.
type Checksum struct {
	Algo   string
	Digest string
}

// Parse splits an "algo:hexdigest" string and validates the algorithm and
// digest length. The digest is lowercased.
func Parse(raw string) (Checksum, error) {
	algo, digest, found := strings.Cut(raw, ":")
	if !found {
		return Checksum{}, fmt.Errorf("checksum %q missing algorithm prefix", raw)
	}

	algo = strings.ToLower(strings.TrimSpace(algo))
	digest = strings.ToLower(strings.TrimSpace(digest))

	size, ok := digestSizes()[algo]
	if !ok {
		return Checksum{}, fmt.Errorf("unsupported checksum algorithm %q", algo)
	}

	if len(digest) != size*2 {
		return Checksum{}, fmt.Errorf("checksum digest has length %d, want %d for %s", len(digest), size*2, algo)
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return Checksum{}, fmt.Errorf("checksum digest is not hex: %w", err)
	}

	return Checksum{Algo: algo, Digest: digest}, nil
}

// String formats the checksum back to "algo:hexdigest" form.
func (c Checksum) String() string {
	return c.Algo + ":" + c.Digest
}

// Matches reports whether a hex digest equals the expected one,
// case-insensitively.
func (c Checksum) Matches(hexDigest string) bool {
	return strings.EqualFold(c.Digest, hexDigest)
}

// VerifyFile hashes the file at path with the checksum's algorithm and
// returns ErrIntegrity on mismatch.
func (c Checksum) VerifyFile(filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return errors.Wrap(err, "failed to open file for verification")
	}
	defer f.Close()

	h, err := c.newHash()
	if err != nil {
		return err
	}
	if _, err := io.Copy(h, f); err != nil {
		return errors.Wrap(err, "failed to hash file")
	}

	actual := hex.EncodeToString(h.Sum(nil))
	if !c.Matches(actual) {
		slog.Error("checksum_mismatch", "path", filePath, "algo", c.Algo, "expected", c.Digest, "actual", actual)
		return fmt.Errorf("%w: %s digest %s does not match expected %s", errors.ErrIntegrity, c.Algo, actual, c.Digest)
	}

	slog.Info("checksum_verified", "path", filePath, "algo", c.Algo)
	return nil
}

func (c Checksum) newHash() (hash.Hash, error) {
	switch c.Algo {
	case AlgoMD5:
		return md5.New(), nil
	case AlgoSHA1:
		return sha1.New(), nil
	case AlgoSHA256:
		return sha256.New(), nil
	case AlgoSHA512:
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("unsupported checksum algorithm %q", c.Algo)
	}
}

func digestSizes() map[string]int {
	return map[string]int{
		AlgoMD5:    md5.Size,
		AlgoSHA1:   sha1.Size,
		AlgoSHA256: sha256.Size,
		AlgoSHA512: sha512.Size,
	}
}

package checksum

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/baremetal-kit/nodeprep/pkg/errors"
)

func TestParse(t *testing.T) {
	sha256Digest := hex.EncodeToString(make([]byte, sha256.Size))

	tests := []struct {
		raw       string
		shouldErr bool
	}{
		{"sha256:" + sha256Digest, false},
		{"SHA256:" + sha256Digest, false},
		{"md5:d41d8cd98f00b204e9800998ecf8427e", false},
		// missing prefix, short digest, unknown algorithm, long digest, empty
		{sha256Digest, true},
		{"sha256:abcd", true},
		{"crc32:abcd1234", true},
		{"sha256:" + sha256Digest + "zz", true},
		{"", true},
	}

	for _, tt := range tests {
		_, err := Parse(tt.raw)
		if tt.shouldErr && err == nil {
			t.Errorf("expected error for %q", tt.raw)
		}
		if !tt.shouldErr && err != nil {
			t.Errorf("unexpected error for %q: %v", tt.raw, err)
		}
	}
}

func TestParse_Normalizes(t *testing.T) {
	digest := hex.EncodeToString(make([]byte, sha256.Size))
	c, err := Parse("SHA256:" + digest)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if c.Algo != AlgoSHA256 {
		t.Errorf("algo not lowercased: %s", c.Algo)
	}
	if c.String() != "sha256:"+digest {
		t.Errorf("unexpected String(): %s", c.String())
	}
}

func TestVerifyFile(t *testing.T) {
	content := []byte("bare metal disk image contents")
	path := filepath.Join(t.TempDir(), "node-1.img")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	sum := sha256.Sum256(content)
	good, err := Parse("sha256:" + hex.EncodeToString(sum[:]))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if err := good.VerifyFile(path); err != nil {
		t.Errorf("expected match, got: %v", err)
	}

	bad := Checksum{Algo: AlgoSHA256, Digest: hex.EncodeToString(make([]byte, sha256.Size))}
	err = bad.VerifyFile(path)
	if err == nil {
		t.Fatal("expected mismatch error")
	}
	if !errors.Is(err, errors.ErrIntegrity) {
		t.Errorf("mismatch should be ErrIntegrity, got: %v", err)
	}
}

func TestVerifyFile_SHA512(t *testing.T) {
	content := []byte("image")
	path := filepath.Join(t.TempDir(), "node-2.img")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	sum := sha512.Sum512(content)
	c, err := Parse("sha512:" + hex.EncodeToString(sum[:]))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if err := c.VerifyFile(path); err != nil {
		t.Errorf("expected match, got: %v", err)
	}
}

func TestResolve_PlainDigest(t *testing.T) {
	digest := hex.EncodeToString(make([]byte, sha256.Size))
	c, err := Resolve(t.Context(), http.DefaultClient, "sha256:"+digest, "http://mirror/images/node.img")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if c.Digest != digest {
		t.Errorf("unexpected digest: %s", c.Digest)
	}
}

func TestResolve_Manifest(t *testing.T) {
	sum := sha256.Sum256([]byte("payload"))
	digest := hex.EncodeToString(sum[:])

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "%s  other.img\n%s  node.img\n", hex.EncodeToString(make([]byte, sha256.Size)), digest)
	}))
	defer srv.Close()

	c, err := Resolve(t.Context(), srv.Client(), "sha256:"+srv.URL+"/SHA256SUMS", "http://mirror/images/node.img")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if c.Digest != digest {
		t.Errorf("wrong manifest entry picked: %s", c.Digest)
	}
}

func TestResolve_ManifestMissingEntry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "%s  other.img\n", hex.EncodeToString(make([]byte, sha256.Size)))
	}))
	defer srv.Close()

	_, err := Resolve(t.Context(), srv.Client(), "sha256:"+srv.URL+"/SHA256SUMS", "http://mirror/images/node.img")
	if err == nil {
		t.Fatal("expected error for missing manifest entry")
	}
}

func TestDigestFromManifest_BareDigest(t *testing.T) {
	digest, err := digestFromManifest("abc123\n", "node.img")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if digest != "abc123" {
		t.Errorf("unexpected digest: %s", digest)
	}
}

func TestDigestFromManifest_BinaryMarker(t *testing.T) {
	digest, err := digestFromManifest("abc123 *node.img\n", "node.img")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if digest != "abc123" {
		t.Errorf("unexpected digest: %s", digest)
	}
}

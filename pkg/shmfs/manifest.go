package shmfs

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/natefinch/atomic"
)

// Manifest is the small sidecar record written next to a heap's backing
// file after a successful Init. It lets OpenReadonly perform a cheap
// sanity pre-check before paying for the mmap syscall.
type Manifest struct {
	Magic      int64  `json:"magic"`
	Path       string `json:"path"`
	SizeBytes  int64  `json:"size_bytes"`
	CreatedAt  int64  `json:"created_at_unix"`
	RWMemBytes uint64 `json:"rwmem_bytes"`
}

// ManifestPath returns the sidecar path for a given backing-file path.
func ManifestPath(path string) string {
	return path + ".meta"
}

// WriteManifest atomically writes m next to path, the same pattern
// writeBinaryCache uses via atomic.WriteFile.
func WriteManifest(path string, m Manifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	return atomic.WriteFile(ManifestPath(path), strings.NewReader(string(data)))
}

// ReadManifest reads and parses the sidecar manifest for path. Returns
// (Manifest{}, false, nil) if no manifest exists yet.
func ReadManifest(path string) (Manifest, bool, error) {
	data, err := os.ReadFile(ManifestPath(path)) //nolint:gosec // path is validated by caller
	if err != nil {
		if os.IsNotExist(err) {
			return Manifest{}, false, nil
		}

		return Manifest{}, false, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest

	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, false, fmt.Errorf("parse manifest: %w", err)
	}

	return m, true, nil
}

package ingestion

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SidecarSuffix is appended to the dataset path when no explicit
// fingerprint path is configured.
const SidecarSuffix = ".fingerprint"

// Sidecar is the persisted fingerprint of the last successful run.
type Sidecar struct {
	Fingerprint string    `json:"fingerprint"`
	Index       string    `json:"index"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Fingerprint hashes the size and modification time of the file at path.
func Fingerprint(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("fingerprinting %s: %w", path, err)
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%d", info.Size(), info.ModTime().UnixNano())))
	return hex.EncodeToString(sum[:]), nil
}

// SidecarPath returns override when set, otherwise the default sidecar
// location next to source.
func SidecarPath(source, override string) string {
	if override != "" {
		return override
	}
	return source + SidecarSuffix
}

// LoadSidecar reads the sidecar at path. A missing file yields nil.
func LoadSidecar(path string) (*Sidecar, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading fingerprint %s: %w", path, err)
	}
	var s Sidecar
	if err := json.Unmarshal(b, &s); err != nil {
		// A corrupt sidecar only forces a rebuild.
		return nil, nil
	}
	return &s, nil
}

// SaveSidecar writes s to path through a temporary file and rename.
func SaveSidecar(path string, s Sidecar) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating fingerprint directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("writing fingerprint: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("writing fingerprint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing fingerprint: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("writing fingerprint: %w", err)
	}
	return nil
}

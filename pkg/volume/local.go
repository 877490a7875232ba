package volume

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultBasePath is the base directory for local cache volumes
const DefaultBasePath = "/var/lib/nlcache/volumes"

// LocalDriver manages the node-local directories backing cache volumes.
// Every path it touches is checked to be a descendant of the base
// directory; a volume ID can never steer a deletion outside the cache root.
type LocalDriver struct {
	basePath string
}

// NewLocalDriver creates a driver rooted at basePath, creating the
// directory if needed
func NewLocalDriver(basePath string) (*LocalDriver, error) {
	if basePath == "" {
		basePath = DefaultBasePath
	}
	basePath = filepath.Clean(basePath)

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create volumes directory: %w", err)
	}

	return &LocalDriver{basePath: basePath}, nil
}

// BasePath returns the cache root directory
func (d *LocalDriver) BasePath() string {
	return d.basePath
}

// Path returns the directory for a volume, rejecting any ID whose joined
// path would escape the base directory
func (d *LocalDriver) Path(volumeID string) (string, error) {
	path := filepath.Join(d.basePath, volumeID)
	if !strings.HasPrefix(path, d.basePath+string(filepath.Separator)) {
		return "", fmt.Errorf("volume path %q escapes base directory %q", path, d.basePath)
	}
	return path, nil
}

// Create ensures the volume directory exists and returns its path
func (d *LocalDriver) Create(volumeID string) (string, error) {
	path, err := d.Path(volumeID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", fmt.Errorf("failed to create volume directory: %w", err)
	}
	return path, nil
}

// Remove deletes the volume directory and everything under it. An already
// absent directory is success: "nothing to delete" and "deleted" are the
// same outcome for the cleanup protocol. The boolean reports whether
// anything was actually removed.
func (d *LocalDriver) Remove(volumeID string) (bool, error) {
	path, err := d.Path(volumeID)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}

	if err := os.RemoveAll(path); err != nil {
		return false, fmt.Errorf("failed to delete volume directory: %w", err)
	}
	return true, nil
}

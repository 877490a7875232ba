package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for flag and file values
const (
	DefaultCSIEndpoint       = "unix:///csi/csi.sock"
	DefaultBasePath          = "/var/lib/nlcache/volumes"
	DefaultHTTPAddr          = ":8080"
	DefaultWorkerInterval    = 10 * time.Second
	DefaultReconcileInterval = 60 * time.Second
	DefaultCleanupTTL        = 24 * time.Hour
)

// Config holds the full process configuration. Values come from an optional
// yaml file, then flags, then env fallbacks; later sources win.
type Config struct {
	CSIEndpoint       string        `yaml:"csi_endpoint"`
	NodeName          string        `yaml:"node_name"`
	Namespace         string        `yaml:"namespace"`
	BasePath          string        `yaml:"base_path"`
	HTTPAddr          string        `yaml:"http_addr"`
	WorkerInterval    time.Duration `yaml:"worker_interval"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	CleanupTTL        time.Duration `yaml:"cleanup_ttl"`
	StandalonePath    string        `yaml:"standalone_path"`
	Members           []string      `yaml:"members"`
	LogLevel          string        `yaml:"log_level"`
	LogJSON           bool          `yaml:"log_json"`
}

// Default returns a config with all defaults applied
func Default() Config {
	return Config{
		CSIEndpoint:       DefaultCSIEndpoint,
		BasePath:          DefaultBasePath,
		HTTPAddr:          DefaultHTTPAddr,
		WorkerInterval:    DefaultWorkerInterval,
		ReconcileInterval: DefaultReconcileInterval,
		CleanupTTL:        DefaultCleanupTTL,
		LogLevel:          "info",
		LogJSON:           true,
	}
}

// Load reads a yaml config file over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// FillFromEnv applies env fallbacks for values still unset
func (c *Config) FillFromEnv() {
	if c.NodeName == "" {
		c.NodeName = os.Getenv("NODE_NAME")
	}
	if c.Namespace == "" {
		c.Namespace = os.Getenv("POD_NAMESPACE")
	}
	if env := os.Getenv("CSI_ENDPOINT"); env != "" && c.CSIEndpoint == DefaultCSIEndpoint {
		c.CSIEndpoint = env
	}
}

// StandaloneMembers is the fixed cluster membership a standalone store
// reports, since there is no cluster API to ask. An explicit member list
// wins; otherwise the local node is the only member. Decommissioning keys
// off this list, so an empty result must not be fed to a reconciler.
func (c *Config) StandaloneMembers() []string {
	if len(c.Members) > 0 {
		return c.Members
	}
	if c.NodeName != "" {
		return []string{c.NodeName}
	}
	return nil
}

// Validate checks the invariants shared by both run modes
func (c *Config) Validate() error {
	if c.CSIEndpoint == "" {
		return fmt.Errorf("csi endpoint must not be empty")
	}
	if c.WorkerInterval <= 0 {
		return fmt.Errorf("worker interval must be positive, got %s", c.WorkerInterval)
	}
	if c.ReconcileInterval <= 0 {
		return fmt.Errorf("reconcile interval must be positive, got %s", c.ReconcileInterval)
	}
	if c.CleanupTTL < 0 {
		return fmt.Errorf("cleanup TTL must not be negative, got %s", c.CleanupTTL)
	}
	return nil
}

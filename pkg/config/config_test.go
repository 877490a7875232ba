package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CSIEndpoint != DefaultCSIEndpoint {
		t.Errorf("CSIEndpoint = %q, want %q", cfg.CSIEndpoint, DefaultCSIEndpoint)
	}
	if cfg.CleanupTTL != DefaultCleanupTTL {
		t.Errorf("CleanupTTL = %s, want %s", cfg.CleanupTTL, DefaultCleanupTTL)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
node_name: node-3
worker_interval: 30s
cleanup_ttl: 1h
log_level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.NodeName != "node-3" {
		t.Errorf("NodeName = %q, want node-3", cfg.NodeName)
	}
	if cfg.WorkerInterval != 30*time.Second {
		t.Errorf("WorkerInterval = %s, want 30s", cfg.WorkerInterval)
	}
	if cfg.CleanupTTL != time.Hour {
		t.Errorf("CleanupTTL = %s, want 1h", cfg.CleanupTTL)
	}
	// Values absent from the file keep their defaults
	if cfg.BasePath != DefaultBasePath {
		t.Errorf("BasePath = %q, want default", cfg.BasePath)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/no/such/config.yaml"); err == nil {
		t.Error("Load() of missing file should fail")
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("{not yaml"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() of malformed file should fail")
	}
}

func TestFillFromEnv(t *testing.T) {
	t.Setenv("NODE_NAME", "env-node")
	t.Setenv("POD_NAMESPACE", "cache-system")

	cfg := Default()
	cfg.FillFromEnv()

	if cfg.NodeName != "env-node" {
		t.Errorf("NodeName = %q, want env-node", cfg.NodeName)
	}
	if cfg.Namespace != "cache-system" {
		t.Errorf("Namespace = %q, want cache-system", cfg.Namespace)
	}
}

func TestFillFromEnvDoesNotOverrideExplicit(t *testing.T) {
	t.Setenv("NODE_NAME", "env-node")

	cfg := Default()
	cfg.NodeName = "flag-node"
	cfg.FillFromEnv()

	if cfg.NodeName != "flag-node" {
		t.Errorf("NodeName = %q, explicit value must win over env", cfg.NodeName)
	}
}

func TestStandaloneMembers(t *testing.T) {
	tests := []struct {
		name     string
		members  []string
		nodeName string
		want     []string
	}{
		{"explicit list wins", []string{"n1", "n2"}, "n3", []string{"n1", "n2"}},
		{"falls back to node name", nil, "n1", []string{"n1"}},
		{"nothing configured", nil, "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Members = tt.members
			cfg.NodeName = tt.nodeName

			got := cfg.StandaloneMembers()
			if len(got) != len(tt.want) {
				t.Fatalf("StandaloneMembers() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("StandaloneMembers() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}

	bad := Default()
	bad.WorkerInterval = 0
	if err := bad.Validate(); err == nil {
		t.Error("zero worker interval should fail validation")
	}

	bad = Default()
	bad.CleanupTTL = -time.Hour
	if err := bad.Validate(); err == nil {
		t.Error("negative TTL should fail validation")
	}

	// TTL of zero disables forced pruning and is allowed
	ok := Default()
	ok.CleanupTTL = 0
	if err := ok.Validate(); err != nil {
		t.Errorf("zero TTL should validate, got %v", err)
	}
}

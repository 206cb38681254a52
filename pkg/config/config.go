package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by New and Load when a field is unset.
const (
	DefaultAPIPort                    = 443
	DefaultNumReplicas                = 3
	DefaultSnapshotPrefix             = "snapshot_"
	DefaultIntermediateSnapshotPrefix = "for_clone_"
	DefaultAPIServiceTimeout          = 30 * time.Second
	DefaultDeviceScanRetries          = 5
	DefaultHostNQNPath                = "/etc/nvme/hostnqn"
	DefaultDiscoveryClientEndpoint    = "127.0.0.1:8009"
)

// Config is the driver configuration surface. It is loaded once at
// startup and treated as read-only afterwards.
type Config struct {
	// APIAddresses lists the cluster API endpoints tried in order on
	// every call. At least one address is required.
	APIAddresses []string `yaml:"api_addresses"`

	// APIPort is the cluster API port shared by all addresses.
	APIPort int `yaml:"api_port"`

	// JWT is the bearer token presented to the cluster API. Empty means
	// the cluster runs without authentication.
	JWT string `yaml:"jwt"`

	// DefaultNumReplicas is the replica count used when a volume request
	// does not specify one.
	DefaultNumReplicas int `yaml:"default_num_replicas"`

	// DefaultCompression enables cluster-side compression for volumes
	// that do not specify the flag themselves.
	DefaultCompression bool `yaml:"default_compression_enabled"`

	// SnapshotPrefix prefixes the cluster-visible name of caller-initiated
	// snapshots.
	SnapshotPrefix string `yaml:"snapshot_name_prefix"`

	// IntermediateSnapshotPrefix prefixes snapshots created internally to
	// implement volume-from-volume cloning. Distinct from SnapshotPrefix
	// so leaked intermediates are recognizable.
	IntermediateSnapshotPrefix string `yaml:"intermediate_snapshot_name_prefix"`

	// APIServiceTimeout bounds every cluster call, including the polling
	// loop that waits for a created resource to leave its non-terminal
	// state.
	APIServiceTimeout time.Duration `yaml:"api_service_timeout"`

	// SSLVerify controls TLS certificate verification of the cluster API.
	SSLVerify bool `yaml:"ssl_verify"`

	// DeviceScanRetries is handed to the local attach facility as the
	// number of device scan attempts after a connect.
	DeviceScanRetries int `yaml:"device_scan_retries"`

	// HostNQNPath is the file holding this host's NVMe initiator identity.
	HostNQNPath string `yaml:"hostnqn_path"`

	// DiscoveryClientEndpoint is probed to verify the local discovery
	// client can be reached before an attach.
	DiscoveryClientEndpoint string `yaml:"discovery_client_endpoint"`
}

// New returns a Config populated with defaults. APIAddresses remains
// empty and must be filled in by the caller.
func New() *Config {
	return &Config{
		APIPort:                    DefaultAPIPort,
		DefaultNumReplicas:         DefaultNumReplicas,
		SnapshotPrefix:             DefaultSnapshotPrefix,
		IntermediateSnapshotPrefix: DefaultIntermediateSnapshotPrefix,
		APIServiceTimeout:          DefaultAPIServiceTimeout,
		DeviceScanRetries:          DefaultDeviceScanRetries,
		HostNQNPath:                DefaultHostNQNPath,
		DiscoveryClientEndpoint:    DefaultDiscoveryClientEndpoint,
	}
}

// Load reads a YAML config file and applies defaults for unset fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := New()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.APIPort == 0 {
		c.APIPort = DefaultAPIPort
	}
	if c.DefaultNumReplicas == 0 {
		c.DefaultNumReplicas = DefaultNumReplicas
	}
	if c.SnapshotPrefix == "" {
		c.SnapshotPrefix = DefaultSnapshotPrefix
	}
	if c.IntermediateSnapshotPrefix == "" {
		c.IntermediateSnapshotPrefix = DefaultIntermediateSnapshotPrefix
	}
	if c.APIServiceTimeout == 0 {
		c.APIServiceTimeout = DefaultAPIServiceTimeout
	}
	if c.DeviceScanRetries == 0 {
		c.DeviceScanRetries = DefaultDeviceScanRetries
	}
	if c.HostNQNPath == "" {
		c.HostNQNPath = DefaultHostNQNPath
	}
	if c.DiscoveryClientEndpoint == "" {
		c.DiscoveryClientEndpoint = DefaultDiscoveryClientEndpoint
	}
}

// Validate reports malformed configuration. It is checked once at setup;
// validation failures are fatal and never retried.
func (c *Config) Validate() error {
	if len(c.APIAddresses) == 0 {
		return fmt.Errorf("api_addresses must contain at least one cluster API address")
	}
	for _, addr := range c.APIAddresses {
		if strings.TrimSpace(addr) == "" {
			return fmt.Errorf("api_addresses contains an empty address")
		}
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("api_port %d is out of range", c.APIPort)
	}
	if c.DefaultNumReplicas <= 0 {
		return fmt.Errorf("default_num_replicas must be positive, got %d", c.DefaultNumReplicas)
	}
	if c.APIServiceTimeout <= 0 {
		return fmt.Errorf("api_service_timeout must be positive, got %s", c.APIServiceTimeout)
	}
	if c.SnapshotPrefix == c.IntermediateSnapshotPrefix {
		return fmt.Errorf("snapshot_name_prefix and intermediate_snapshot_name_prefix must differ")
	}
	return nil
}

// ParseAddressList splits a comma-separated address list, trimming
// whitespace and dropping empty entries. Used by the CLI flag form.
func ParseAddressList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

package tiercache

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/tiercache/tiercache/remotetier"
)

const (
	// DefaultInMemoryLimit is the default memory cost ceiling.
	DefaultInMemoryLimit int64 = 100 * 1 << 20 // 100 MiB
	// DefaultOnDiskLimit is the default disk cost ceiling.
	DefaultOnDiskLimit int64 = 1 << 30 // 1 GiB
)

// RemoteConfig enables and configures the remote tier. Store must be
// set programmatically (an ObjectStore is not YAML-serializable);
// RecordType and AssetLimit round-trip through YAML like the rest of
// Config.
type RemoteConfig struct {
	Store      remotetier.ObjectStore `yaml:"-"`
	RecordType string                 `yaml:"record_type"`
	AssetLimit int64                  `yaml:"asset_limit"`
}

// Config holds a Cache's tunables. It carries yaml tags so a host
// application can keep cache tuning in the same YAML file as the rest
// of its configuration; LoadConfigYAML is a convenience for that,
// never a requirement: New never reads a file itself.
//
// Codec, KeyPrinter and the fetch callback are not part of Config:
// they are Go values (interfaces, generic type parameters, closures)
// with no sensible YAML form, and are supplied to New/Option instead.
type Config struct {
	Location      string        `yaml:"location"`
	InMemoryLimit int64         `yaml:"in_memory_limit"`
	OnDiskLimit   int64         `yaml:"on_disk_limit"`
	Remote        *RemoteConfig `yaml:"remote,omitempty"`
	// Namespace prefixes every Prometheus metric name this cache
	// registers. Defaults to "tiercache".
	Namespace string `yaml:"namespace"`
}

// withDefaults returns a copy of cfg with zero-valued limits replaced
// by their defaults.
func (cfg Config) withDefaults() Config {
	if cfg.InMemoryLimit == 0 {
		cfg.InMemoryLimit = DefaultInMemoryLimit
	}
	if cfg.OnDiskLimit == 0 {
		cfg.OnDiskLimit = DefaultOnDiskLimit
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "tiercache"
	}
	return cfg
}

// LoadConfigYAML parses a Config from r. The Remote.Store field, if
// remote is to be enabled, must be set by the caller after loading,
// since it is not representable in YAML.
func LoadConfigYAML(r io.Reader) (*Config, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

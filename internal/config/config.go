package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/zinrai/ddi-ipam-go/internal/domain"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite3"

	DirectoryMemory = "memory"
	DirectoryWAPI   = "wapi"
)

// Record kinds that can be bound to, unbound from or deleted with a fixed
// address.
var RecordKinds = []string{"record:a", "record:aaaa", "record:ptr", "record:txt", "record:cname"}

type Config struct {
	ListenAddress string           `yaml:"listen_address"`
	Log           LogConfig        `yaml:"log"`
	Storage       StorageConfig    `yaml:"storage"`
	Policy        PolicyConfig     `yaml:"policy"`
	Allocation    AllocationConfig `yaml:"allocation"`
	Directory     DirectoryConfig  `yaml:"directory"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type PolicyConfig struct {
	ConditionalConfig string `yaml:"conditional_config"`
	MembersConfig     string `yaml:"members_config"`
}

type AllocationConfig struct {
	UseHostRecords   bool     `yaml:"use_host_records"`
	ConfigureForDHCP bool     `yaml:"configure_for_dhcp"`
	BindDNSRecords   []string `yaml:"bind_dns_records"`
	UnbindDNSRecords []string `yaml:"unbind_dns_records"`
	DeleteDNSRecords []string `yaml:"delete_dns_records"`
}

type DirectoryConfig struct {
	Driver             string        `yaml:"driver"`
	URL                string        `yaml:"url"`
	Username           string        `yaml:"username"`
	Password           string        `yaml:"password"`
	Timeout            time.Duration `yaml:"timeout"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
}

// Default returns the configuration used for keys absent from the file.
func Default() Config {
	return Config{
		ListenAddress: ":8080",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Storage: StorageConfig{
			Driver: StorageMemory,
		},
		Allocation: AllocationConfig{
			UseHostRecords:   true,
			ConfigureForDHCP: true,
		},
		Directory: DirectoryConfig{
			Driver:  DirectoryMemory,
			Timeout: 60 * time.Second,
		},
	}
}

// Load reads a YAML configuration file over the defaults and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.ConfigNotFoundError{Object: "application", Path: path}
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, &domain.ConfigError{Msg: errors.Wrap(err, "failed to parse config").Error()}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Policy.ConditionalConfig == "" {
		return &domain.ConfigNotFoundError{Object: "conditional config"}
	}
	if c.Policy.MembersConfig == "" {
		return &domain.ConfigNotFoundError{Object: "members"}
	}

	switch c.Storage.Driver {
	case StorageMemory:
	case StoragePostgres, StorageSQLite:
		if c.Storage.DSN == "" {
			return &domain.ConfigError{Msg: "storage.dsn must be set for driver " + c.Storage.Driver}
		}
	default:
		return &domain.ConfigError{Msg: "unknown storage driver " + c.Storage.Driver}
	}

	switch c.Directory.Driver {
	case DirectoryMemory:
	case DirectoryWAPI:
		if c.Directory.URL == "" || c.Directory.Username == "" || c.Directory.Password == "" {
			return &domain.ConfigError{Msg: "directory url, username and password must be defined"}
		}
	default:
		return &domain.ConfigError{Msg: "unknown directory driver " + c.Directory.Driver}
	}

	for _, kinds := range [][]string{c.Allocation.BindDNSRecords, c.Allocation.UnbindDNSRecords, c.Allocation.DeleteDNSRecords} {
		for _, k := range kinds {
			if !knownRecordKind(k) {
				return &domain.ConfigError{Msg: "unknown record kind " + k}
			}
		}
	}
	return nil
}

func knownRecordKind(kind string) bool {
	for _, k := range RecordKinds {
		if k == kind {
			return true
		}
	}
	return false
}

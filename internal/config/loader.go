package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/kebairia/stackbackup/internal/backup"
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "/etc/stackbackup/config.yaml"

// ErrLoadConfig indicates a failure to read or parse the YAML configuration.
var ErrLoadConfig = errors.New("config load failed")

// ErrValidateConfig indicates that the loaded configuration is invalid.
var ErrValidateConfig = errors.New("configuration validation failed")

// Config represents the top-level YAML configuration file.
type Config struct {
	Include []string     `mapstructure:"include" yaml:"include,omitempty"`
	Stacks  StacksConfig `mapstructure:"stacks"  yaml:"stacks"`
	Backup  BackupConfig `mapstructure:"backup"  yaml:"backup"`
	Log     LogConfig    `mapstructure:"log"     yaml:"log"`
	Mail    MailConfig   `mapstructure:"mail"    yaml:"mail"`
	Vault   VaultConfig  `mapstructure:"vault"   yaml:"vault"`
}

// StacksConfig declares which stacks are backed up.
type StacksConfig struct {
	BaseDirectory string   `mapstructure:"base_directory" yaml:"base_directory"`
	Names         []string `mapstructure:"names"          yaml:"names"`
	ExtraPaths    []string `mapstructure:"extra_paths"    yaml:"extra_paths,omitempty"`
}

// BackupConfig contains global backup options.
type BackupConfig struct {
	Destination       string        `mapstructure:"destination"        yaml:"destination"`
	RetentionDays     int           `mapstructure:"retention_days"     yaml:"retention_days"`
	StopTimeout       time.Duration `mapstructure:"stop_timeout"       yaml:"stop_timeout"`
	StartTimeout      time.Duration `mapstructure:"start_timeout"      yaml:"start_timeout"`
	ArchiveTimeout    time.Duration `mapstructure:"archive_timeout"    yaml:"archive_timeout"`
	LockTimeout       time.Duration `mapstructure:"lock_timeout"       yaml:"lock_timeout"`
	StderrLimit       int           `mapstructure:"stderr_limit"       yaml:"stderr_limit"`
	DockerBinary      string        `mapstructure:"docker_binary"      yaml:"docker_binary"`
	TarBinary         string        `mapstructure:"tar_binary"         yaml:"tar_binary"`
	InspectContainers bool          `mapstructure:"inspect_containers" yaml:"inspect_containers"`
}

// LogConfig controls the run log.
type LogConfig struct {
	File  string `mapstructure:"file"  yaml:"file"`
	Level string `mapstructure:"level" yaml:"level"`
}

// MailConfig holds the SMTP settings for the run report.
type MailConfig struct {
	Enabled    bool          `mapstructure:"enabled"     yaml:"enabled"`
	Host       string        `mapstructure:"host"        yaml:"host"`
	Port       int           `mapstructure:"port"        yaml:"port"`
	Username   string        `mapstructure:"username"    yaml:"username,omitempty"`
	Password   string        `mapstructure:"password"    yaml:"password,omitempty"`
	From       string        `mapstructure:"from"        yaml:"from"`
	To         []string      `mapstructure:"to"          yaml:"to"`
	SubjectTag string        `mapstructure:"subject_tag" yaml:"subject_tag"`
	StartTLS   bool          `mapstructure:"starttls"    yaml:"starttls"`
	Timeout    time.Duration `mapstructure:"timeout"     yaml:"timeout"`
	// VaultPath, when set, is read for username/password instead of the
	// values above.
	VaultPath string `mapstructure:"vault_path" yaml:"vault_path,omitempty"`
}

// VaultConfig holds connection settings for HashiCorp Vault.
type VaultConfig struct {
	Address     string `mapstructure:"address"      yaml:"address"`
	RoleID      string `mapstructure:"role_id"      yaml:"role_id,omitempty"`
	ApproleName string `mapstructure:"approle_name" yaml:"approle_name,omitempty"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backup.retention_days", 28)
	v.SetDefault("backup.stop_timeout", 5*time.Minute)
	v.SetDefault("backup.start_timeout", 5*time.Minute)
	v.SetDefault("backup.archive_timeout", time.Duration(0))
	v.SetDefault("backup.lock_timeout", 5*time.Second)
	v.SetDefault("backup.stderr_limit", 2000)
	v.SetDefault("backup.docker_binary", "docker")
	v.SetDefault("backup.tar_binary", "tar")
	v.SetDefault("backup.inspect_containers", true)
	v.SetDefault("log.file", "/var/log/docker-backup.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.starttls", true)
	v.SetDefault("mail.timeout", 30*time.Second)
	v.SetDefault("mail.subject_tag", "[BACKUP]")
}

// Load reads the configuration from the given YAML file using Viper,
// merges any included files, and unmarshals into the Config struct.
func (c *Config) Load(path string) error {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("STACKBACKUP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read base configuration
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("%w: read base config %s: %v", ErrLoadConfig, path, err)
	}

	// Merge include files (if any), relative to the base file
	for _, inc := range v.GetStringSlice("include") {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}
		data, err := os.ReadFile(inc)
		if err != nil {
			return fmt.Errorf("%w: read include %s: %v", ErrLoadConfig, inc, err)
		}
		if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
			return fmt.Errorf("%w: merge include %s: %v", ErrLoadConfig, inc, err)
		}
	}

	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.UnmarshalExact(c, hooks); err != nil {
		return fmt.Errorf("%w: unmarshal config: %v", ErrLoadConfig, err)
	}

	return c.Validate()
}

// Validate checks the settings a run cannot start without.
func (c *Config) Validate() error {
	var problems []string
	if c.Backup.Destination == "" {
		problems = append(problems, "backup.destination is required")
	}
	if c.Backup.RetentionDays < 1 {
		problems = append(problems, "backup.retention_days must be at least 1")
	}
	if len(c.Stacks.Names) > 0 && c.Stacks.BaseDirectory == "" {
		problems = append(problems, "stacks.base_directory is required when stacks.names is set")
	}

	stacks := c.StackList()
	if len(stacks) == 0 {
		problems = append(problems, "no stacks configured")
	}
	seen := make(map[string]string, len(stacks))
	for _, s := range stacks {
		if s.Name == "" || s.Name == "." || s.Name == ".." || strings.ContainsRune(s.Name, filepath.Separator) {
			problems = append(problems, fmt.Sprintf("invalid stack path %q", s.Path))
			continue
		}
		if prev, ok := seen[s.Name]; ok {
			problems = append(problems, fmt.Sprintf("stack name %q used by %s and %s", s.Name, prev, s.Path))
		}
		seen[s.Name] = s.Path
	}

	if c.Mail.Enabled {
		if c.Mail.Host == "" {
			problems = append(problems, "mail.host is required when mail is enabled")
		}
		if c.Mail.From == "" {
			problems = append(problems, "mail.from is required when mail is enabled")
		}
		if len(c.Mail.To) == 0 {
			problems = append(problems, "mail.to is required when mail is enabled")
		}
		credentials := c.Mail.Username != "" || c.Mail.VaultPath != ""
		if credentials && !c.Mail.StartTLS && !isLocalHost(c.Mail.Host) {
			problems = append(problems, "mail.starttls must be enabled to authenticate against a non-local relay")
		}
		if c.Mail.VaultPath != "" && c.Vault.Address == "" && os.Getenv("VAULT_ADDR") == "" {
			problems = append(problems, "vault.address is required when mail.vault_path is set")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrValidateConfig, strings.Join(problems, "; "))
	}
	return nil
}

// isLocalHost reports whether PLAIN auth may run without TLS against host.
func isLocalHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// StackList returns the declared stacks in configured order: named stacks
// under the base directory first, then the extra paths.
func (c *Config) StackList() []backup.Stack {
	stacks := make([]backup.Stack, 0, len(c.Stacks.Names)+len(c.Stacks.ExtraPaths))
	for _, name := range c.Stacks.Names {
		stacks = append(stacks, backup.Stack{
			Name: name,
			Path: filepath.Join(c.Stacks.BaseDirectory, name),
		})
	}
	for _, p := range c.Stacks.ExtraPaths {
		p = filepath.Clean(p)
		stacks = append(stacks, backup.Stack{Name: filepath.Base(p), Path: p})
	}
	return stacks
}

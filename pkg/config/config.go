package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/cadence/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

type Configer struct {
	ddm        *dotdir.Manager
	targetDir  string
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{}

	cfger.ddm = dotdir.NewManager()
	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	// If no .cadence/ directory was resolved, targetPath stays empty;
	// LoadConfig will return defaults and SaveConfig will error clearly.
	if target == "" {
		return cfger, nil
	}

	path := filepath.Join(target, configFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfger.targetDir = target
	cfger.targetPath = path

	return cfger, nil
}

// ValidConfigKeys returns all supported configuration key names in TOML
// section order.
func ValidConfigKeys() []string {
	result := make([]string, 0, len(configKeyOrder))
	for _, k := range configKeyOrder {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
		}
	}
	return result
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

// GetTarget returns the config.toml path, or "" when no .cadence/ directory
// was resolved.
func (c *Configer) GetTarget() string {
	return c.targetPath
}

// GetTargetDir returns the resolved .cadence/ directory.
func (c *Configer) GetTargetDir() string {
	return c.targetDir
}

// LoadConfig loads the configuration from config.toml in the target .cadence/
// directory. If the file does not exist, returns NewDefaultConfig() so callers
// always receive a fully-populated Config. Fields explicitly set in the file
// override the defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults fills zero-value fields in cfg with values from NewDefaultConfig().
func applyDefaults(cfg *Config) {
	defaults := NewDefaultConfig()

	if cfg.Version == 0 {
		cfg.Version = defaults.Version
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = defaults.Storage.Driver
	}

	fillDuration(&cfg.Scheduler.BaseInterval, defaults.Scheduler.BaseInterval)
	fillDuration(&cfg.Scheduler.NewItemInterval, defaults.Scheduler.NewItemInterval)
	fillDuration(&cfg.Scheduler.MaxInterval, defaults.Scheduler.MaxInterval)
	fillFloat(&cfg.Scheduler.MinEase, defaults.Scheduler.MinEase)
	fillFloat(&cfg.Scheduler.MaxEase, defaults.Scheduler.MaxEase)
	fillFloat(&cfg.Scheduler.StartEase, defaults.Scheduler.StartEase)
	fillFloat(&cfg.Scheduler.EasePenalty, defaults.Scheduler.EasePenalty)
	fillFloat(&cfg.Scheduler.EaseBonus, defaults.Scheduler.EaseBonus)
	fillFloat(&cfg.Scheduler.HardFactor, defaults.Scheduler.HardFactor)
	fillFloat(&cfg.Scheduler.EasyFactor, defaults.Scheduler.EasyFactor)

	fillDuration(&cfg.Sync.FlushInterval, defaults.Sync.FlushInterval)
	if cfg.Sync.FlushThreshold == 0 {
		cfg.Sync.FlushThreshold = defaults.Sync.FlushThreshold
	}
	if cfg.Sync.FlushWorkers == 0 {
		cfg.Sync.FlushWorkers = defaults.Sync.FlushWorkers
	}
	fillDuration(&cfg.Sync.CloseTimeout, defaults.Sync.CloseTimeout)
	fillDuration(&cfg.Sync.WriteTimeout, defaults.Sync.WriteTimeout)
	if cfg.Sync.MaxAttempts == 0 {
		cfg.Sync.MaxAttempts = defaults.Sync.MaxAttempts
	}
	if cfg.Sync.HistorySize == 0 {
		cfg.Sync.HistorySize = defaults.Sync.HistorySize
	}

	if cfg.Lease.Provider == "" {
		cfg.Lease.Provider = defaults.Lease.Provider
	}
	fillDuration(&cfg.Lease.TTL, defaults.Lease.TTL)

	fillDuration(&cfg.AI.Timeout, defaults.AI.Timeout)
	if cfg.AI.MaxContextItems == 0 {
		cfg.AI.MaxContextItems = defaults.AI.MaxContextItems
	}
	if cfg.AI.MaxHistory == 0 {
		cfg.AI.MaxHistory = defaults.AI.MaxHistory
	}

	if cfg.EventStream.Topic == "" {
		cfg.EventStream.Topic = defaults.EventStream.Topic
	}

	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}
}

func fillDuration(field *Duration, def Duration) {
	if field.Duration == 0 {
		*field = def
	}
}

func fillFloat(field *float64, def float64) {
	if *field == 0 {
		*field = def
	}
}

// SaveConfig persists the configuration to config.toml in the target .cadence/ directory.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Returns an error if the key is not a valid config key.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
// Returns an error if the key is not a valid config key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}

// ParseConfigTOML parses raw TOML bytes into a Config.
// Returns an error if the version field is present and not equal to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	return cfg, nil
}

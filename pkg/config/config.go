package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/ashenvale/recall/pkg/dotdir"
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
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{}

	cfger.ddm = dotdir.NewManager()
	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	// If no .recall/ directory was resolved, targetPath stays empty;
	// LoadConfig will return defaults and SaveConfig will error clearly.
	if target == "" {
		return cfger, nil
	}

	path := filepath.Join(target, configFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Always set targetPath when the directory exists so SaveConfig
	// can create or overwrite the file.
	cfger.targetPath = path

	return cfger, nil
}

// ValidConfigKeys returns the sorted list of all supported configuration key names.
func ValidConfigKeys() []string {
	keys := make([]string, 0, len(configKeys))
	for k := range configKeys {
		keys = append(keys, k)
	}

	// Return in a stable, logical order matching the TOML section layout.
	ordered := []string{
		"store.provider",
		"store.target",
		"store.pool_size",
		"vector.provider",
		"vector.target",
		"vector.db_path",
		"vector.dimensions",
		"vector.alpha",
		"embedding.provider",
		"embedding.target",
		"embedding.model",
		"embedding.dimensions",
		"generation.target",
		"generation.model",
		"generation.api_key_env",
		"generation.max_retries",
		"generation.base_wait_ms",
		"assembler.fetch_timeout_ms",
		"promotion.window_days",
		"promotion.repeat_threshold",
		"promotion.similarity_cutoff",
		"gateway.listen",
		"gateway.agent_name",
		"gateway.agent_user_id",
		"gateway.history_depth",
		"events.provider",
		"events.brokers",
		"events.topic",
		"consolidation.enabled",
		"consolidation.schedule",
	}

	// Sanity: only return keys that actually exist in the map.
	result := make([]string, 0, len(ordered))
	for _, k := range ordered {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
		}
	}

	// Append any keys in the map that we missed in the ordered list.
	seen := make(map[string]bool, len(result))
	for _, k := range result {
		seen[k] = true
	}
	for _, k := range keys {
		if !seen[k] {
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

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// LoadConfig loads the configuration from config.toml in the target .recall/
// directory. If the file does not exist, returns NewDefaultConfig() so callers
// always receive a fully-populated Config with sane defaults. Fields explicitly
// set in the file override the defaults.
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

	// Merge in defaults: fill in any zero-value fields from the loaded config
	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults fills zero-value fields in cfg with values from NewDefaultConfig().
func applyDefaults(cfg *Config) {
	defaults := NewDefaultConfig()

	if cfg.Version == 0 {
		cfg.Version = defaults.Version
	}

	if cfg.Store.Provider == "" {
		cfg.Store.Provider = defaults.Store.Provider
	}
	if cfg.Store.Target == "" {
		cfg.Store.Target = defaults.Store.Target
	}
	if cfg.Store.PoolSize == 0 {
		cfg.Store.PoolSize = defaults.Store.PoolSize
	}

	if cfg.Vector.Provider == "" {
		cfg.Vector.Provider = defaults.Vector.Provider
	}
	if cfg.Vector.Target == "" {
		cfg.Vector.Target = defaults.Vector.Target
	}
	if cfg.Vector.Dimensions == 0 {
		cfg.Vector.Dimensions = defaults.Vector.Dimensions
	}
	if cfg.Vector.Alpha == 0 {
		cfg.Vector.Alpha = defaults.Vector.Alpha
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = defaults.Embedding.Provider
	}
	if cfg.Embedding.Target == "" {
		cfg.Embedding.Target = defaults.Embedding.Target
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = defaults.Embedding.Model
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = defaults.Embedding.Dimensions
	}

	if cfg.Generation.Target == "" {
		cfg.Generation.Target = defaults.Generation.Target
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = defaults.Generation.Model
	}
	if cfg.Generation.APIKeyEnv == "" {
		cfg.Generation.APIKeyEnv = defaults.Generation.APIKeyEnv
	}
	if cfg.Generation.MaxRetries == 0 {
		cfg.Generation.MaxRetries = defaults.Generation.MaxRetries
	}
	if cfg.Generation.BaseWaitMS == 0 {
		cfg.Generation.BaseWaitMS = defaults.Generation.BaseWaitMS
	}
	if cfg.Generation.MaxTokens == 0 {
		cfg.Generation.MaxTokens = defaults.Generation.MaxTokens
	}

	if cfg.Assembler.FetchTimeoutMS == 0 {
		cfg.Assembler.FetchTimeoutMS = defaults.Assembler.FetchTimeoutMS
	}
	if cfg.Assembler.MemoryLimit == 0 {
		cfg.Assembler.MemoryLimit = defaults.Assembler.MemoryLimit
	}
	if cfg.Assembler.ConversationLimit == 0 {
		cfg.Assembler.ConversationLimit = defaults.Assembler.ConversationLimit
	}
	if cfg.Assembler.HistoryLimit == 0 {
		cfg.Assembler.HistoryLimit = defaults.Assembler.HistoryLimit
	}
	if cfg.Assembler.RelatedLimit == 0 {
		cfg.Assembler.RelatedLimit = defaults.Assembler.RelatedLimit
	}

	if cfg.Promotion.WindowDays == 0 {
		cfg.Promotion.WindowDays = defaults.Promotion.WindowDays
	}
	if cfg.Promotion.RepeatThreshold == 0 {
		cfg.Promotion.RepeatThreshold = defaults.Promotion.RepeatThreshold
	}
	if cfg.Promotion.SimilarityCutoff == 0 {
		cfg.Promotion.SimilarityCutoff = defaults.Promotion.SimilarityCutoff
	}

	if cfg.Gateway.Listen == "" {
		cfg.Gateway.Listen = defaults.Gateway.Listen
	}
	if cfg.Gateway.AgentName == "" {
		cfg.Gateway.AgentName = defaults.Gateway.AgentName
	}
	if cfg.Gateway.AgentUserID == "" {
		cfg.Gateway.AgentUserID = defaults.Gateway.AgentUserID
	}
	if cfg.Gateway.HistoryDepth == 0 {
		cfg.Gateway.HistoryDepth = defaults.Gateway.HistoryDepth
	}

	if cfg.Events.Provider == "" {
		cfg.Events.Provider = defaults.Events.Provider
	}
	if cfg.Events.Brokers == "" {
		cfg.Events.Brokers = defaults.Events.Brokers
	}
	if cfg.Events.Topic == "" {
		cfg.Events.Topic = defaults.Events.Topic
	}

	if cfg.Consolidation.Schedule == "" {
		cfg.Consolidation.Schedule = defaults.Consolidation.Schedule
	}
}

// SaveConfig persists the configuration to config.toml in the target .recall/ directory.
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

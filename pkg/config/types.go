package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent recall configuration stored as config.toml
// in the .recall/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version       int                 `toml:"version"`
	Store         StoreConfig         `toml:"store"`
	Vector        VectorConfig        `toml:"vector"`
	Embedding     EmbeddingConfig     `toml:"embedding"`
	Generation    GenerationConfig    `toml:"generation"`
	Assembler     AssemblerConfig     `toml:"assembler"`
	Promotion     PromotionConfig     `toml:"promotion"`
	Gateway       GatewayConfig       `toml:"gateway"`
	Events        EventsConfig        `toml:"events"`
	Consolidation ConsolidationConfig `toml:"consolidation"`
}

// StoreConfig holds memory store settings.
type StoreConfig struct {
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
	PoolSize uint   `toml:"pool_size,omitempty"`
}

// VectorConfig holds vector search settings.
type VectorConfig struct {
	Provider   string  `toml:"provider,omitempty"`
	Target     string  `toml:"target,omitempty"`
	DBPath     string  `toml:"db_path,omitempty"`
	Dimensions uint    `toml:"dimensions,omitempty"`
	Alpha      float64 `toml:"alpha,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// GenerationConfig holds generation service settings.
type GenerationConfig struct {
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	APIKeyEnv  string `toml:"api_key_env,omitempty"`
	MaxRetries int    `toml:"max_retries,omitempty"`
	BaseWaitMS int    `toml:"base_wait_ms,omitempty"`
	MaxTokens  int    `toml:"max_tokens,omitempty"`
}

// AssemblerConfig holds context assembly limits and timeouts.
type AssemblerConfig struct {
	FetchTimeoutMS    int `toml:"fetch_timeout_ms,omitempty"`
	MemoryLimit       int `toml:"memory_limit,omitempty"`
	ConversationLimit int `toml:"conversation_limit,omitempty"`
	HistoryLimit      int `toml:"history_limit,omitempty"`
	RelatedLimit      int `toml:"related_limit,omitempty"`
}

// PromotionConfig holds memory promotion thresholds.
type PromotionConfig struct {
	WindowDays       int     `toml:"window_days,omitempty"`
	RepeatThreshold  int     `toml:"repeat_threshold,omitempty"`
	SimilarityCutoff float64 `toml:"similarity_cutoff,omitempty"`
}

// GatewayConfig holds the HTTP chat gateway settings.
type GatewayConfig struct {
	Listen       string `toml:"listen,omitempty"`
	AgentName    string `toml:"agent_name,omitempty"`
	AgentUserID  string `toml:"agent_user_id,omitempty"`
	HistoryDepth int    `toml:"history_depth,omitempty"`
}

// EventsConfig holds event stream publisher settings.
type EventsConfig struct {
	Provider string `toml:"provider,omitempty"`
	Brokers  string `toml:"brokers,omitempty"`
	Topic    string `toml:"topic,omitempty"`
}

// ConsolidationConfig holds the periodic promotion sweep settings.
type ConsolidationConfig struct {
	Enabled  bool   `toml:"enabled,omitempty"`
	Schedule string `toml:"schedule,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"store.provider": {
		get: func(c *Config) string { return c.Store.Provider },
		set: func(c *Config, v string) error { c.Store.Provider = v; return nil },
	},
	"store.target": {
		get: func(c *Config) string { return c.Store.Target },
		set: func(c *Config, v string) error { c.Store.Target = v; return nil },
	},
	"store.pool_size": {
		get: func(c *Config) string { return formatUint(c.Store.PoolSize) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for store.pool_size: %w", err)
			}
			c.Store.PoolSize = uint(n)
			return nil
		},
	},
	"vector.provider": {
		get: func(c *Config) string { return c.Vector.Provider },
		set: func(c *Config, v string) error { c.Vector.Provider = v; return nil },
	},
	"vector.target": {
		get: func(c *Config) string { return c.Vector.Target },
		set: func(c *Config, v string) error { c.Vector.Target = v; return nil },
	},
	"vector.db_path": {
		get: func(c *Config) string { return c.Vector.DBPath },
		set: func(c *Config, v string) error { c.Vector.DBPath = v; return nil },
	},
	"vector.dimensions": {
		get: func(c *Config) string { return formatUint(c.Vector.Dimensions) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for vector.dimensions: %w", err)
			}
			c.Vector.Dimensions = uint(n)
			return nil
		},
	},
	"vector.alpha": {
		get: func(c *Config) string { return strconv.FormatFloat(c.Vector.Alpha, 'f', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for vector.alpha: %w", err)
			}
			if f < 0 || f > 1 {
				return fmt.Errorf("vector.alpha must be in [0,1], got %v", f)
			}
			c.Vector.Alpha = f
			return nil
		},
	},
	"embedding.provider": {
		get: func(c *Config) string { return c.Embedding.Provider },
		set: func(c *Config, v string) error { c.Embedding.Provider = v; return nil },
	},
	"embedding.target": {
		get: func(c *Config) string { return c.Embedding.Target },
		set: func(c *Config, v string) error { c.Embedding.Target = v; return nil },
	},
	"embedding.model": {
		get: func(c *Config) string { return c.Embedding.Model },
		set: func(c *Config, v string) error { c.Embedding.Model = v; return nil },
	},
	"embedding.dimensions": {
		get: func(c *Config) string { return formatUint(c.Embedding.Dimensions) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for embedding.dimensions: %w", err)
			}
			c.Embedding.Dimensions = uint(n)
			return nil
		},
	},
	"generation.target": {
		get: func(c *Config) string { return c.Generation.Target },
		set: func(c *Config, v string) error { c.Generation.Target = v; return nil },
	},
	"generation.model": {
		get: func(c *Config) string { return c.Generation.Model },
		set: func(c *Config, v string) error { c.Generation.Model = v; return nil },
	},
	"generation.api_key_env": {
		get: func(c *Config) string { return c.Generation.APIKeyEnv },
		set: func(c *Config, v string) error { c.Generation.APIKeyEnv = v; return nil },
	},
	"generation.max_retries": {
		get: func(c *Config) string { return strconv.Itoa(c.Generation.MaxRetries) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for generation.max_retries: %w", err)
			}
			c.Generation.MaxRetries = n
			return nil
		},
	},
	"generation.base_wait_ms": {
		get: func(c *Config) string { return strconv.Itoa(c.Generation.BaseWaitMS) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for generation.base_wait_ms: %w", err)
			}
			c.Generation.BaseWaitMS = n
			return nil
		},
	},
	"assembler.fetch_timeout_ms": {
		get: func(c *Config) string { return strconv.Itoa(c.Assembler.FetchTimeoutMS) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for assembler.fetch_timeout_ms: %w", err)
			}
			c.Assembler.FetchTimeoutMS = n
			return nil
		},
	},
	"promotion.window_days": {
		get: func(c *Config) string { return strconv.Itoa(c.Promotion.WindowDays) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for promotion.window_days: %w", err)
			}
			c.Promotion.WindowDays = n
			return nil
		},
	},
	"promotion.repeat_threshold": {
		get: func(c *Config) string { return strconv.Itoa(c.Promotion.RepeatThreshold) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for promotion.repeat_threshold: %w", err)
			}
			c.Promotion.RepeatThreshold = n
			return nil
		},
	},
	"promotion.similarity_cutoff": {
		get: func(c *Config) string {
			return strconv.FormatFloat(c.Promotion.SimilarityCutoff, 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for promotion.similarity_cutoff: %w", err)
			}
			c.Promotion.SimilarityCutoff = f
			return nil
		},
	},
	"gateway.listen": {
		get: func(c *Config) string { return c.Gateway.Listen },
		set: func(c *Config, v string) error { c.Gateway.Listen = v; return nil },
	},
	"gateway.agent_name": {
		get: func(c *Config) string { return c.Gateway.AgentName },
		set: func(c *Config, v string) error { c.Gateway.AgentName = v; return nil },
	},
	"gateway.agent_user_id": {
		get: func(c *Config) string { return c.Gateway.AgentUserID },
		set: func(c *Config, v string) error { c.Gateway.AgentUserID = v; return nil },
	},
	"gateway.history_depth": {
		get: func(c *Config) string { return strconv.Itoa(c.Gateway.HistoryDepth) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for gateway.history_depth: %w", err)
			}
			if n < 0 {
				return fmt.Errorf("gateway.history_depth must be non-negative, got %d", n)
			}
			c.Gateway.HistoryDepth = n
			return nil
		},
	},
	"events.provider": {
		get: func(c *Config) string { return c.Events.Provider },
		set: func(c *Config, v string) error { c.Events.Provider = v; return nil },
	},
	"events.brokers": {
		get: func(c *Config) string { return c.Events.Brokers },
		set: func(c *Config, v string) error { c.Events.Brokers = v; return nil },
	},
	"events.topic": {
		get: func(c *Config) string { return c.Events.Topic },
		set: func(c *Config, v string) error { c.Events.Topic = v; return nil },
	},
	"consolidation.enabled": {
		get: func(c *Config) string { return strconv.FormatBool(c.Consolidation.Enabled) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for consolidation.enabled: %w", err)
			}
			c.Consolidation.Enabled = b
			return nil
		},
	},
	"consolidation.schedule": {
		get: func(c *Config) string { return c.Consolidation.Schedule },
		set: func(c *Config, v string) error { c.Consolidation.Schedule = v; return nil },
	},
}

func formatUint(n uint) string {
	if n == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(n), 10)
}

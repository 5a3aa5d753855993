package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/ashenvale/recall/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the RECALL_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound by the command layer)
//  2. Environment variables (RECALL_STORE_TARGET, RECALL_GATEWAY_LISTEN, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: RECALL_STORE_TARGET, RECALL_EVENTS_BROKERS, etc.
	v.SetEnvPrefix("RECALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// FromViper materializes a Config from a configured viper instance, applying
// the full precedence chain (env > file > defaults).
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		Store: StoreConfig{
			Provider: v.GetString("store.provider"),
			Target:   v.GetString("store.target"),
			PoolSize: v.GetUint("store.pool_size"),
		},
		Vector: VectorConfig{
			Provider:   v.GetString("vector.provider"),
			Target:     v.GetString("vector.target"),
			DBPath:     v.GetString("vector.db_path"),
			Dimensions: v.GetUint("vector.dimensions"),
			Alpha:      v.GetFloat64("vector.alpha"),
		},
		Embedding: EmbeddingConfig{
			Provider:   v.GetString("embedding.provider"),
			Target:     v.GetString("embedding.target"),
			Model:      v.GetString("embedding.model"),
			Dimensions: v.GetUint("embedding.dimensions"),
		},
		Generation: GenerationConfig{
			Target:     v.GetString("generation.target"),
			Model:      v.GetString("generation.model"),
			APIKeyEnv:  v.GetString("generation.api_key_env"),
			MaxRetries: v.GetInt("generation.max_retries"),
			BaseWaitMS: v.GetInt("generation.base_wait_ms"),
			MaxTokens:  v.GetInt("generation.max_tokens"),
		},
		Assembler: AssemblerConfig{
			FetchTimeoutMS:    v.GetInt("assembler.fetch_timeout_ms"),
			MemoryLimit:       v.GetInt("assembler.memory_limit"),
			ConversationLimit: v.GetInt("assembler.conversation_limit"),
			HistoryLimit:      v.GetInt("assembler.history_limit"),
			RelatedLimit:      v.GetInt("assembler.related_limit"),
		},
		Promotion: PromotionConfig{
			WindowDays:       v.GetInt("promotion.window_days"),
			RepeatThreshold:  v.GetInt("promotion.repeat_threshold"),
			SimilarityCutoff: v.GetFloat64("promotion.similarity_cutoff"),
		},
		Gateway: GatewayConfig{
			Listen:       v.GetString("gateway.listen"),
			AgentName:    v.GetString("gateway.agent_name"),
			AgentUserID:  v.GetString("gateway.agent_user_id"),
			HistoryDepth: v.GetInt("gateway.history_depth"),
		},
		Events: EventsConfig{
			Provider: v.GetString("events.provider"),
			Brokers:  v.GetString("events.brokers"),
			Topic:    v.GetString("events.topic"),
		},
		Consolidation: ConsolidationConfig{
			Enabled:  v.GetBool("consolidation.enabled"),
			Schedule: v.GetString("consolidation.schedule"),
		},
	}
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Store
	v.SetDefault("store.provider", d.Store.Provider)
	v.SetDefault("store.target", d.Store.Target)
	v.SetDefault("store.pool_size", d.Store.PoolSize)

	// Vector
	v.SetDefault("vector.provider", d.Vector.Provider)
	v.SetDefault("vector.target", d.Vector.Target)
	v.SetDefault("vector.db_path", d.Vector.DBPath)
	v.SetDefault("vector.dimensions", d.Vector.Dimensions)
	v.SetDefault("vector.alpha", d.Vector.Alpha)

	// Embedding
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.target", d.Embedding.Target)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)

	// Generation
	v.SetDefault("generation.target", d.Generation.Target)
	v.SetDefault("generation.model", d.Generation.Model)
	v.SetDefault("generation.api_key_env", d.Generation.APIKeyEnv)
	v.SetDefault("generation.max_retries", d.Generation.MaxRetries)
	v.SetDefault("generation.base_wait_ms", d.Generation.BaseWaitMS)
	v.SetDefault("generation.max_tokens", d.Generation.MaxTokens)

	// Assembler
	v.SetDefault("assembler.fetch_timeout_ms", d.Assembler.FetchTimeoutMS)
	v.SetDefault("assembler.memory_limit", d.Assembler.MemoryLimit)
	v.SetDefault("assembler.conversation_limit", d.Assembler.ConversationLimit)
	v.SetDefault("assembler.history_limit", d.Assembler.HistoryLimit)
	v.SetDefault("assembler.related_limit", d.Assembler.RelatedLimit)

	// Promotion
	v.SetDefault("promotion.window_days", d.Promotion.WindowDays)
	v.SetDefault("promotion.repeat_threshold", d.Promotion.RepeatThreshold)
	v.SetDefault("promotion.similarity_cutoff", d.Promotion.SimilarityCutoff)

	// Gateway
	v.SetDefault("gateway.listen", d.Gateway.Listen)
	v.SetDefault("gateway.agent_name", d.Gateway.AgentName)
	v.SetDefault("gateway.agent_user_id", d.Gateway.AgentUserID)
	v.SetDefault("gateway.history_depth", d.Gateway.HistoryDepth)

	// Events
	v.SetDefault("events.provider", d.Events.Provider)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)

	// Consolidation
	v.SetDefault("consolidation.enabled", d.Consolidation.Enabled)
	v.SetDefault("consolidation.schedule", d.Consolidation.Schedule)
}

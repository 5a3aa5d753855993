package config

const (
	defaultStoreProvider = "weaviate"
	defaultStoreTarget   = "http://localhost:8080"
	defaultStorePoolSize = 8

	defaultVectorProvider   = "weaviate"
	defaultVectorTarget     = "http://localhost:8080"
	defaultVectorDimensions = 768
	defaultVectorAlpha      = 0.7

	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingTarget     = "http://localhost:11434"
	defaultEmbeddingModel      = "nomic-embed-text"
	defaultEmbeddingDimensions = 768

	defaultGenerationTarget     = "http://localhost:11434/v1"
	defaultGenerationModel      = "llama3.1"
	defaultGenerationAPIKeyEnv  = "OPENAI_API_KEY"
	defaultGenerationMaxRetries = 5
	defaultGenerationBaseWaitMS = 1000
	defaultGenerationMaxTokens  = 1024

	defaultFetchTimeoutMS    = 4000
	defaultMemoryLimit       = 3
	defaultConversationLimit = 3
	defaultHistoryLimit      = 5
	defaultRelatedLimit      = 5

	defaultWindowDays       = 10
	defaultRepeatThreshold  = 3
	defaultSimilarityCutoff = 0.9

	defaultGatewayListen       = ":8090"
	defaultAgentName           = "Ash"
	defaultAgentUserID         = "_ash"
	defaultGatewayHistoryDepth = 50

	defaultEventsProvider = "nop"
	defaultEventsBrokers  = "localhost:9092"
	defaultEventsTopic    = "recall.memory"

	defaultConsolidationSchedule = "@hourly"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Store: StoreConfig{
			Provider: defaultStoreProvider,
			Target:   defaultStoreTarget,
			PoolSize: defaultStorePoolSize,
		},
		Vector: VectorConfig{
			Provider:   defaultVectorProvider,
			Target:     defaultVectorTarget,
			Dimensions: defaultVectorDimensions,
			Alpha:      defaultVectorAlpha,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		Generation: GenerationConfig{
			Target:     defaultGenerationTarget,
			Model:      defaultGenerationModel,
			APIKeyEnv:  defaultGenerationAPIKeyEnv,
			MaxRetries: defaultGenerationMaxRetries,
			BaseWaitMS: defaultGenerationBaseWaitMS,
			MaxTokens:  defaultGenerationMaxTokens,
		},
		Assembler: AssemblerConfig{
			FetchTimeoutMS:    defaultFetchTimeoutMS,
			MemoryLimit:       defaultMemoryLimit,
			ConversationLimit: defaultConversationLimit,
			HistoryLimit:      defaultHistoryLimit,
			RelatedLimit:      defaultRelatedLimit,
		},
		Promotion: PromotionConfig{
			WindowDays:       defaultWindowDays,
			RepeatThreshold:  defaultRepeatThreshold,
			SimilarityCutoff: defaultSimilarityCutoff,
		},
		Gateway: GatewayConfig{
			Listen:       defaultGatewayListen,
			AgentName:    defaultAgentName,
			AgentUserID:  defaultAgentUserID,
			HistoryDepth: defaultGatewayHistoryDepth,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Brokers:  defaultEventsBrokers,
			Topic:    defaultEventsTopic,
		},
		Consolidation: ConsolidationConfig{
			Enabled:  true,
			Schedule: defaultConsolidationSchedule,
		},
	}
}

package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	LLMProvider        string
	ModelName          string
	BaseURL            string
	LLMApiKey          string
	GoogleApiKey       string
	DatabaseURL        string
	Port               string
	SearchMaxResults   int
	MaxParallel        int
	EmitTaskCompletion bool
	EmbeddingModel     string
	CollectionName     string
	ChunkSize          int
	ChunkOverlap       int
}

// Load reads the configuration from the environment. Call godotenv.Load
// beforehand to pick up a .env file.
func Load() *Config {
	cfg := &Config{
		LLMProvider:        strings.ToLower(getEnv("LLM_PROVIDER", "ollama")),
		ModelName:          getEnv("LLM_MODEL_ID", "llama3.2"),
		BaseURL:            getEnv("LLM_BASE_URL", "http://127.0.0.1:11434"),
		LLMApiKey:          getEnv("LLM_API_KEY", ""),
		GoogleApiKey:       getEnv("GOOGLE_API_KEY", os.Getenv("GEMINI_API_KEY")),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		Port:               getEnv("PORT", "8000"),
		SearchMaxResults:   getEnvAsInt("SEARCH_MAX_RESULTS", 3),
		MaxParallel:        getEnvAsInt("MAX_PARALLEL_RESEARCHERS", 0),
		EmitTaskCompletion: getEnvAsBool("EMIT_TASK_COMPLETION", false),
		EmbeddingModel:     getEnv("EMBEDDING_MODEL", "gemini-embedding-001"),
		CollectionName:     getEnv("COLLECTION_NAME", "research_notes"),
		ChunkSize:          getEnvAsInt("CHUNK_SIZE", 1000),
		ChunkOverlap:       getEnvAsInt("CHUNK_OVERLAP", 200),
	}
	// OpenAI-compatible local servers accept any token.
	if cfg.LLMProvider == "openai" && cfg.LLMApiKey == "" {
		cfg.LLMApiKey = "dummy"
	}
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

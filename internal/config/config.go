package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config holds all application configuration
type Config struct {
	// API Settings
	APITitle   string
	APIVersion string
	APIPrefix  string
	Port       string
	Env        string

	// CORS
	CORSOrigins []string

	// Corpus persistence: "file", "badger" or "postgres"
	CorpusBackend string
	CorpusPath    string

	// Retrieval: "memory", "pgvector", "qdrant" or "vertex"
	RetrieverBackend string
	DefaultTopK      int
	RequestTimeout   time.Duration
	EmbedBatchSize   int
	EmbedWorkers     int
	BackfillWorkers  int

	// Qdrant settings (used when RetrieverBackend = "qdrant")
	QdrantHost       string
	QdrantPort       int
	QdrantCollection string

	// Vertex AI Vector Search settings (used when RetrieverBackend = "vertex")
	VertexProjectID            string
	VertexLocation             string
	VertexIndexID              string
	VertexIndexEndpointID      string
	VertexDeployedIndexID      string
	VertexPublicEndpointDomain string

	// Tracing
	OTLPEndpoint    string
	TraceSampleRate float64
}

var (
	config *Config
	once   sync.Once
)

// GetConfig returns the singleton configuration instance
func GetConfig() *Config {
	once.Do(func() {
		config = loadConfig()
	})
	return config
}

func loadConfig() *Config {
	return &Config{
		APITitle:    getEnv("API_TITLE", "Ticket Similarity API"),
		APIVersion:  getEnv("API_VERSION", "1.0.0"),
		APIPrefix:   getEnv("API_PREFIX", ""),
		Port:        getEnv("PORT", "8000"),
		Env:         getEnv("APP_ENV", "development"),
		CORSOrigins: parseCORSOrigins(getEnv("CORS_ORIGINS", "http://localhost:5173,http://localhost:3000")),

		CorpusBackend: strings.ToLower(getEnv("CORPUS_BACKEND", "file")),
		CorpusPath:    getEnv("CORPUS_PATH", "data/all_ticket_docs.json"),

		RetrieverBackend: strings.ToLower(getEnv("RETRIEVER_BACKEND", "memory")),
		DefaultTopK:      getEnvInt("DEFAULT_TOP_K", 3),
		RequestTimeout:   getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		EmbedBatchSize:   getEnvInt("EMBED_BATCH_SIZE", 32),
		EmbedWorkers:     getEnvInt("EMBED_WORKERS", 4),
		BackfillWorkers:  getEnvInt("BACKFILL_WORKERS", 4),

		QdrantHost:       getEnv("QDRANT_HOST", "localhost"),
		QdrantPort:       getEnvInt("QDRANT_PORT", 6334),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "tickets"),

		VertexProjectID:            getEnv("VERTEX_PROJECT_ID", ""),
		VertexLocation:             getEnv("VERTEX_LOCATION", "us-central1"),
		VertexIndexID:              getEnv("VERTEX_INDEX_ID", ""),
		VertexIndexEndpointID:      getEnv("VERTEX_INDEX_ENDPOINT_ID", ""),
		VertexDeployedIndexID:      getEnv("VERTEX_DEPLOYED_INDEX_ID", ""),
		VertexPublicEndpointDomain: getEnv("VERTEX_PUBLIC_ENDPOINT_DOMAIN", ""),

		OTLPEndpoint:    getEnv("OTLP_ENDPOINT", ""),
		TraceSampleRate: getEnvFloat("TRACE_SAMPLE_RATE", 1.0),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("45s") or plain seconds ("45")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func parseCORSOrigins(value string) []string {
	var origins []string
	if err := json.Unmarshal([]byte(value), &origins); err == nil {
		return origins
	}
	parts := strings.Split(value, ",")
	origins = make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{"API_PREFIX", "CORPUS_BACKEND", "RETRIEVER_BACKEND", "DEFAULT_TOP_K", "REQUEST_TIMEOUT"} {
		t.Setenv(key, "")
	}

	cfg := loadConfig()
	assert.Empty(t, cfg.APIPrefix)
	assert.Equal(t, "file", cfg.CorpusBackend)
	assert.Equal(t, "memory", cfg.RetrieverBackend)
	assert.Equal(t, 3, cfg.DefaultTopK)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("CORPUS_BACKEND", "Badger")
	t.Setenv("RETRIEVER_BACKEND", "QDRANT")
	t.Setenv("DEFAULT_TOP_K", "7")
	t.Setenv("QDRANT_PORT", "not-a-port")

	cfg := loadConfig()
	assert.Equal(t, "badger", cfg.CorpusBackend)
	assert.Equal(t, "qdrant", cfg.RetrieverBackend)
	assert.Equal(t, 7, cfg.DefaultTopK)
	assert.Equal(t, 6334, cfg.QdrantPort)
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", 30 * time.Second},
		{"45s", 45 * time.Second},
		{"1m30s", 90 * time.Second},
		{"12", 12 * time.Second},
		{"soon", 30 * time.Second},
	}
	for _, tt := range tests {
		t.Setenv("REQUEST_TIMEOUT", tt.value)
		assert.Equal(t, tt.want, getEnvDuration("REQUEST_TIMEOUT", 30*time.Second), tt.value)
	}
}

func TestParseCORSOrigins(t *testing.T) {
	assert.Equal(t, []string{"http://a", "http://b"}, parseCORSOrigins(`["http://a","http://b"]`))
	assert.Equal(t, []string{"http://a", "http://b"}, parseCORSOrigins(" http://a, ,http://b "))
}

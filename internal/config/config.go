package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/docs-assistant/internal/core/domain"
)

const (
	GenerationModeModel = "model"
	GenerationModeNone  = "none"

	ArtifactStoreLocal = "local"
	ArtifactStoreS3    = "s3"
)

type Config struct {
	APIPort     string
	LogLevel    string
	ServiceName string

	GenerationMode string
	RetrievalMode  string

	DataDir       string
	Corpora       []string
	DefaultCorpus string
	CorporaFile   string
	RAGTopK       int
	RAGMaxTopK    int

	ArtifactStore string
	S3Bucket      string
	S3Region      string
	S3Prefix      string

	VertexBaseURL         string
	VertexProject         string
	VertexLocation        string
	VertexGenerationModel string
	VertexEmbeddingModel  string
	GatewayUserHeader     string
	GatewayUserID         string

	GenerationTemperature float64
	GenerationMaxTokens   int
	IntentMaxTokens       int

	TokenCommand        string
	TokenTTL            time.Duration
	TokenCommandTimeout time.Duration

	EmbedBatchSize int
	EmbedRetry     int

	PostgresDSN string
	NATSURL     string
	NATSSubject string

	APIKey              string
	APIRateLimitRPS     float64
	APIRateLimitBurst   int
	APIMaxInFlight      int
	APIBackpressureWait time.Duration
	CORSAllowedOrigins  []string
	HTTPWriteTimeout    time.Duration

	ResilienceRetryMaxAttempts    int
	ResilienceRetryInitialBackoff time.Duration
	ResilienceRetryMaxBackoff     time.Duration
	ResilienceBreakerEnabled      bool
	ResilienceBreakerFailureRatio float64
	ResilienceBreakerOpenTimeout  time.Duration

	ChunkSize    int
	ChunkOverlap int
}

// CorpusConfig locates the artifacts of one corpus inside the artifact store.
type CorpusConfig struct {
	Name      string `yaml:"name"`
	Index     string `yaml:"index"`
	Registry  string `yaml:"registry"`
	Lexical   string `yaml:"lexical"`
	SourceDir string `yaml:"source_dir"`
}

func Load() Config {
	return Config{
		APIPort:     mustEnv("API_PORT", "8080"),
		LogLevel:    mustEnv("LOG_LEVEL", "info"),
		ServiceName: mustEnv("SERVICE_NAME", "docs-assistant"),

		GenerationMode: strings.ToLower(mustEnv("GENERATION_MODE", GenerationModeNone)),
		RetrievalMode:  strings.ToLower(mustEnv("RETRIEVAL_MODE", domain.RetrievalModeVector)),

		DataDir:       mustEnv("DATA_DIR", "./data"),
		Corpora:       mustEnvList("CORPORA", []string{"user", "developer"}),
		DefaultCorpus: mustEnv("DEFAULT_CORPUS", "user"),
		CorporaFile:   mustEnv("CORPORA_FILE", ""),
		RAGTopK:       mustEnvInt("RAG_TOP_K", 3),
		RAGMaxTopK:    mustEnvInt("RAG_MAX_TOP_K", 20),

		ArtifactStore: strings.ToLower(mustEnv("ARTIFACT_STORE", ArtifactStoreLocal)),
		S3Bucket:      mustEnv("S3_BUCKET", ""),
		S3Region:      mustEnv("S3_REGION", "us-east-1"),
		S3Prefix:      mustEnv("S3_PREFIX", ""),

		VertexBaseURL:         mustEnv("VERTEX_BASE_URL", ""),
		VertexProject:         mustEnv("VERTEX_PROJECT", ""),
		VertexLocation:        mustEnv("VERTEX_LOCATION", "us-central1"),
		VertexGenerationModel: mustEnv("VERTEX_GENERATION_MODEL", "gemini-2.0-flash-001"),
		VertexEmbeddingModel:  mustEnv("VERTEX_EMBEDDING_MODEL", "text-embedding-005"),
		GatewayUserHeader:     mustEnv("GATEWAY_USER_HEADER", "x-user-id"),
		GatewayUserID:         mustEnv("GATEWAY_USER_ID", ""),

		GenerationTemperature: mustEnvFloat("GENERATION_TEMPERATURE", 0.7),
		GenerationMaxTokens:   mustEnvInt("GENERATION_MAX_TOKENS", 1024),
		IntentMaxTokens:       mustEnvInt("INTENT_MAX_TOKENS", 10),

		TokenCommand:        mustEnv("TOKEN_COMMAND", ""),
		TokenTTL:            mustEnvDuration("TOKEN_TTL", 45*time.Minute),
		TokenCommandTimeout: mustEnvDuration("TOKEN_COMMAND_TIMEOUT", 30*time.Second),

		EmbedBatchSize: mustEnvInt("EMBED_BATCH_SIZE", 16),
		EmbedRetry:     mustEnvInt("EMBED_RETRY", 3),

		PostgresDSN: mustEnv("POSTGRES_DSN", ""),
		NATSURL:     mustEnv("NATS_URL", ""),
		NATSSubject: mustEnv("NATS_SUBJECT", "chat.interactions"),

		APIKey:              mustEnv("API_KEY", ""),
		APIRateLimitRPS:     mustEnvFloat("API_RATE_LIMIT_RPS", 0),
		APIRateLimitBurst:   mustEnvInt("API_RATE_LIMIT_BURST", 0),
		APIMaxInFlight:      mustEnvInt("API_MAX_IN_FLIGHT", 0),
		APIBackpressureWait: mustEnvDuration("API_BACKPRESSURE_WAIT", 250*time.Millisecond),
		CORSAllowedOrigins:  mustEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		HTTPWriteTimeout:    mustEnvDuration("HTTP_WRITE_TIMEOUT", 5*time.Minute),

		ResilienceRetryMaxAttempts:    mustEnvInt("RESILIENCE_RETRY_MAX_ATTEMPTS", 3),
		ResilienceRetryInitialBackoff: mustEnvDuration("RESILIENCE_RETRY_INITIAL_BACKOFF", 500*time.Millisecond),
		ResilienceRetryMaxBackoff:     mustEnvDuration("RESILIENCE_RETRY_MAX_BACKOFF", 8*time.Second),
		ResilienceBreakerEnabled:      mustEnvBool("RESILIENCE_BREAKER_ENABLED", true),
		ResilienceBreakerFailureRatio: mustEnvFloat("RESILIENCE_BREAKER_FAILURE_RATIO", 0.5),
		ResilienceBreakerOpenTimeout:  mustEnvDuration("RESILIENCE_BREAKER_OPEN_TIMEOUT", 30*time.Second),

		ChunkSize:    mustEnvInt("CHUNK_SIZE", 900),
		ChunkOverlap: mustEnvInt("CHUNK_OVERLAP", 150),
	}
}

// ModelBacked reports whether a language model serves generation.
func (c Config) ModelBacked() bool {
	return c.GenerationMode == GenerationModeModel
}

// Validate rejects combinations the services cannot start with.
func (c Config) Validate() error {
	var problems []string

	switch c.GenerationMode {
	case GenerationModeModel:
		if strings.TrimSpace(c.TokenCommand) == "" {
			problems = append(problems, "TOKEN_COMMAND is required in model mode")
		}
		if strings.TrimSpace(c.VertexBaseURL) == "" {
			problems = append(problems, "VERTEX_BASE_URL is required in model mode")
		}
		if strings.TrimSpace(c.VertexProject) == "" {
			problems = append(problems, "VERTEX_PROJECT is required in model mode")
		}
	case GenerationModeNone:
	default:
		problems = append(problems, fmt.Sprintf("unknown GENERATION_MODE %q", c.GenerationMode))
	}

	switch c.RetrievalMode {
	case domain.RetrievalModeVector, domain.RetrievalModeLexical, domain.RetrievalModeBruteForce:
	default:
		problems = append(problems, fmt.Sprintf("unknown RETRIEVAL_MODE %q", c.RetrievalMode))
	}

	switch c.ArtifactStore {
	case ArtifactStoreLocal:
	case ArtifactStoreS3:
		if strings.TrimSpace(c.S3Bucket) == "" {
			problems = append(problems, "S3_BUCKET is required for ARTIFACT_STORE=s3")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown ARTIFACT_STORE %q", c.ArtifactStore))
	}

	if c.RAGMaxTopK <= 0 || c.RAGTopK <= 0 || c.RAGTopK > c.RAGMaxTopK {
		problems = append(problems, "RAG_TOP_K must be within [1, RAG_MAX_TOP_K]")
	}
	if c.TokenTTL <= 0 {
		problems = append(problems, "TOKEN_TTL must be positive")
	}

	corpora, err := c.ResolveCorpora()
	if err != nil {
		problems = append(problems, err.Error())
	} else if !slices.ContainsFunc(corpora, func(cc CorpusConfig) bool { return cc.Name == c.DefaultCorpus }) {
		problems = append(problems, fmt.Sprintf("DEFAULT_CORPUS %q is not a declared corpus", c.DefaultCorpus))
	}

	if len(problems) > 0 {
		return domain.WrapError(domain.ErrConfiguration, "validate config", errors.New(strings.Join(problems, "; ")))
	}
	return nil
}

type corporaFile struct {
	Corpora []CorpusConfig `yaml:"corpora"`
}

// ResolveCorpora returns the declared corpora with artifact keys filled in.
// Entries from CORPORA_FILE override or extend the CORPORA list.
func (c Config) ResolveCorpora() ([]CorpusConfig, error) {
	out := make([]CorpusConfig, 0, len(c.Corpora))
	index := map[string]int{}
	for _, name := range c.Corpora {
		if _, dup := index[name]; dup {
			continue
		}
		index[name] = len(out)
		out = append(out, defaultCorpus(name))
	}

	if c.CorporaFile != "" {
		raw, err := os.ReadFile(c.CorporaFile)
		if err != nil {
			return nil, fmt.Errorf("read corpora file: %w", err)
		}
		var file corporaFile
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("parse corpora file: %w", err)
		}
		for _, entry := range file.Corpora {
			entry.Name = strings.TrimSpace(entry.Name)
			if entry.Name == "" {
				return nil, errors.New("corpora file: entry without name")
			}
			merged := defaultCorpus(entry.Name)
			if entry.Index != "" {
				merged.Index = entry.Index
			}
			if entry.Registry != "" {
				merged.Registry = entry.Registry
			}
			if entry.Lexical != "" {
				merged.Lexical = entry.Lexical
			}
			if entry.SourceDir != "" {
				merged.SourceDir = entry.SourceDir
			}
			if i, ok := index[entry.Name]; ok {
				out[i] = merged
				continue
			}
			index[entry.Name] = len(out)
			out = append(out, merged)
		}
	}

	if len(out) == 0 {
		return nil, errors.New("no corpora declared")
	}
	return out, nil
}

func defaultCorpus(name string) CorpusConfig {
	return CorpusConfig{
		Name:      name,
		Index:     path.Join(name, "index.flat"),
		Registry:  path.Join(name, "chunks.jsonl"),
		Lexical:   path.Join(name, "lexical.json"),
		SourceDir: path.Join("docs", name),
	}
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

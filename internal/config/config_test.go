package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kirillkom/docs-assistant/internal/core/domain"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"GENERATION_MODE", "RETRIEVAL_MODE", "CORPORA", "RAG_TOP_K", "TOKEN_TTL", "CORS_ALLOWED_ORIGINS", "API_BACKPRESSURE_WAIT"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.GenerationMode != GenerationModeNone || cfg.ModelBacked() {
		t.Fatalf("expected no-model default, got %q", cfg.GenerationMode)
	}
	if cfg.RetrievalMode != domain.RetrievalModeVector {
		t.Fatalf("expected vector default, got %q", cfg.RetrievalMode)
	}
	if len(cfg.Corpora) != 2 || cfg.Corpora[0] != "user" || cfg.Corpora[1] != "developer" {
		t.Fatalf("unexpected default corpora %v", cfg.Corpora)
	}
	if cfg.RAGTopK != 3 || cfg.RAGMaxTopK != 20 {
		t.Fatalf("unexpected topK defaults %d/%d", cfg.RAGTopK, cfg.RAGMaxTopK)
	}
	if cfg.TokenTTL != 45*time.Minute || cfg.APIBackpressureWait != 250*time.Millisecond {
		t.Fatalf("unexpected duration defaults %v/%v", cfg.TokenTTL, cfg.APIBackpressureWait)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Fatalf("unexpected cors default %v", cfg.CORSAllowedOrigins)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate, got %v", err)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("GENERATION_MODE", "MODEL")
	t.Setenv("CORPORA", " user , , ops ")
	t.Setenv("TOKEN_TTL", "10m")
	t.Setenv("GENERATION_TEMPERATURE", "0.2")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")
	t.Setenv("RESILIENCE_BREAKER_ENABLED", "false")
	t.Setenv("EMBED_BATCH_SIZE", "not-a-number")

	cfg := Load()
	if cfg.GenerationMode != GenerationModeModel {
		t.Fatalf("expected model mode, got %q", cfg.GenerationMode)
	}
	if len(cfg.Corpora) != 2 || cfg.Corpora[1] != "ops" {
		t.Fatalf("unexpected corpora %v", cfg.Corpora)
	}
	if cfg.TokenTTL != 10*time.Minute || cfg.GenerationTemperature != 0.2 || cfg.APIRateLimitRPS != 2.5 {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if cfg.ResilienceBreakerEnabled {
		t.Fatalf("expected breaker disabled")
	}
	if cfg.EmbedBatchSize != 16 {
		t.Fatalf("malformed int must fall back, got %d", cfg.EmbedBatchSize)
	}
}

func TestValidateRejectsModelModeWithoutCredentials(t *testing.T) {
	cfg := Load()
	cfg.GenerationMode = GenerationModeModel
	cfg.TokenCommand = ""
	cfg.VertexBaseURL = ""

	err := cfg.Validate()
	if !domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestValidateRejectsUnknownModesAndCorpus(t *testing.T) {
	cases := map[string]func(*Config){
		"retrieval mode": func(c *Config) { c.RetrievalMode = "semantic" },
		"generation":     func(c *Config) { c.GenerationMode = "openai" },
		"store":          func(c *Config) { c.ArtifactStore = "gcs" },
		"s3 bucket":      func(c *Config) { c.ArtifactStore = ArtifactStoreS3; c.S3Bucket = "" },
		"default corpus": func(c *Config) { c.DefaultCorpus = "finance" },
		"topK":           func(c *Config) { c.RAGTopK = 50 },
	}
	for name, mutate := range cases {
		cfg := Load()
		mutate(&cfg)
		if err := cfg.Validate(); !domain.IsKind(err, domain.ErrConfiguration) {
			t.Fatalf("%s: expected ErrConfiguration, got %v", name, err)
		}
	}
}

func TestResolveCorporaMergesFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "corpora.yaml")
	content := `corpora:
  - name: developer
    index: dev/v2/index.flat
  - name: ops
    source_dir: runbooks
`
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatalf("write corpora file: %v", err)
	}

	cfg := Load()
	cfg.Corpora = []string{"user", "developer"}
	cfg.CorporaFile = file

	corpora, err := cfg.ResolveCorpora()
	if err != nil {
		t.Fatalf("ResolveCorpora() error = %v", err)
	}
	if len(corpora) != 3 {
		t.Fatalf("expected 3 corpora, got %+v", corpora)
	}
	if corpora[0].Registry != "user/chunks.jsonl" || corpora[0].Index != "user/index.flat" {
		t.Fatalf("unexpected default keys: %+v", corpora[0])
	}
	if corpora[1].Index != "dev/v2/index.flat" || corpora[1].Lexical != "developer/lexical.json" {
		t.Fatalf("expected override merged over defaults, got %+v", corpora[1])
	}
	if corpora[2].Name != "ops" || corpora[2].SourceDir != "runbooks" {
		t.Fatalf("expected appended corpus, got %+v", corpora[2])
	}
}

func TestResolveCorporaRejectsBrokenFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "corpora.yaml")
	if err := os.WriteFile(file, []byte("corpora:\n  - index: x\n"), 0o644); err != nil {
		t.Fatalf("write corpora file: %v", err)
	}
	cfg := Load()
	cfg.CorporaFile = file
	if _, err := cfg.ResolveCorpora(); err == nil {
		t.Fatalf("expected error for nameless entry")
	}
}

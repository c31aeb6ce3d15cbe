package main

import (
	"testing"

	"github.com/kirillkom/docs-assistant/internal/config"
)

func indexerConfig(t *testing.T) config.Config {
	t.Helper()
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("CORPORA", "user")
	t.Setenv("DEFAULT_CORPUS", "user")
	t.Setenv("GENERATION_MODE", "none")
	t.Setenv("TOKEN_COMMAND", "")
	t.Setenv("CORPORA_FILE", "")
	t.Setenv("ARTIFACT_STORE", "local")
	return config.Load()
}

func TestRunReturnsFailureCodeWhenBootstrapFails(t *testing.T) {
	cfg := indexerConfig(t)
	cfg.GenerationMode = config.GenerationModeModel

	if code := run(cfg, ""); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
}

func TestRunReturnsZeroWhenNoCorpusSelected(t *testing.T) {
	if code := run(indexerConfig(t), "absent"); code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
}

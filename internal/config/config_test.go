package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/interview?sslmode=disable")
	for _, k := range []string{"HTTP_ADDRESS", "LISTEN_TIMEOUT", "CEREBRAS_MODEL_ID"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddress == "" {
		t.Fatalf("expected default http address")
	}
	if cfg.ListenTimeout != 90*time.Second {
		t.Fatalf("expected default listen timeout 90s, got %s", cfg.ListenTimeout)
	}
	if cfg.CerebrasModelID == "" {
		t.Fatalf("expected default cerebras model id")
	}
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	os.Unsetenv("DATABASE_URL")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error when DATABASE_URL missing")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/interview?sslmode=disable")
	t.Setenv("LISTEN_TIMEOUT", "45s")
	t.Setenv("QUESTION_COUNT", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenTimeout != 45*time.Second {
		t.Fatalf("expected 45s listen timeout, got %s", cfg.ListenTimeout)
	}
	if cfg.QuestionCount != 3 {
		t.Fatalf("expected 3 questions, got %d", cfg.QuestionCount)
	}
}

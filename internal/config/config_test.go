package config

import (
	"log/slog"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_PATH", t.TempDir()+"/test.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIPort != "9000" {
		t.Errorf("APIPort = %q, want 9000", cfg.APIPort)
	}
	if cfg.VectorSize != 3072 {
		t.Errorf("VectorSize = %d, want 3072", cfg.VectorSize)
	}
	if cfg.QdrantURL != "http://localhost:6333" {
		t.Errorf("QdrantURL = %q", cfg.QdrantURL)
	}
	if len(cfg.SearchProviders) != 1 {
		t.Errorf("SearchProviders = %v, want one default provider", cfg.SearchProviders)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
	}
}

func TestLoad_SearchProviderList(t *testing.T) {
	t.Setenv("DB_PATH", t.TempDir()+"/test.db")
	t.Setenv("SEARCH_PROVIDERS", "https://a.example.com, https://b.example.com ,,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := []string{"https://a.example.com", "https://b.example.com"}
	if len(cfg.SearchProviders) != len(want) {
		t.Fatalf("SearchProviders = %v, want %v", cfg.SearchProviders, want)
	}
	for i := range want {
		if cfg.SearchProviders[i] != want[i] {
			t.Errorf("SearchProviders[%d] = %q, want %q", i, cfg.SearchProviders[i], want[i])
		}
	}
}

func TestLoad_InvalidVectorSize(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{name: "not a number", value: "abc"},
		{name: "zero", value: "0"},
		{name: "negative", value: "-5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DB_PATH", t.TempDir()+"/test.db")
			t.Setenv("EMBEDDING_VECTOR_SIZE", tt.value)

			if _, err := Load(); err == nil {
				t.Error("Load() expected error, got nil")
			}
		})
	}
}

func TestLoad_InvalidLogConfig(t *testing.T) {
	t.Setenv("DB_PATH", t.TempDir()+"/test.db")
	t.Setenv("LOG_LEVEL", "verbose")
	if _, err := Load(); err == nil {
		t.Error("Load() expected error for bad LOG_LEVEL")
	}

	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "xml")
	if _, err := Load(); err == nil {
		t.Error("Load() expected error for bad LOG_FORMAT")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
	}

	for _, tt := range tests {
		got, err := parseLogLevel(tt.in)
		if err != nil {
			t.Errorf("parseLogLevel(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

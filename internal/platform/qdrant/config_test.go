package qdrant

import "testing"

func TestResolveConfigFromEnv(t *testing.T) {
	t.Setenv("QDRANT_URL", "http://qdrant:6333")
	t.Setenv("QDRANT_COLLECTION", "drafts")
	t.Setenv("QDRANT_VECTOR_DIM", "3072")

	cfg, err := ResolveConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveConfigFromEnv: %v", err)
	}
	if !cfg.Enabled() || cfg.URL != "http://qdrant:6333" || cfg.Collection != "drafts" || cfg.VectorDim != 3072 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestResolveConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("QDRANT_URL", "http://qdrant:6333")
	t.Setenv("QDRANT_COLLECTION", "")
	t.Setenv("QDRANT_VECTOR_DIM", "")

	cfg, err := ResolveConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveConfigFromEnv: %v", err)
	}
	if cfg.Collection != "chapter_versions" || cfg.VectorDim != 1536 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestResolveConfigFromEnvDisabled(t *testing.T) {
	t.Setenv("QDRANT_URL", "")
	t.Setenv("QDRANT_VECTOR_DIM", "garbage")

	cfg, err := ResolveConfigFromEnv()
	if err != nil {
		t.Fatalf("unset URL should not fail: %v", err)
	}
	if cfg.Enabled() {
		t.Fatalf("config should be disabled")
	}
}

func TestResolveConfigFromEnvErrors(t *testing.T) {
	cases := []struct {
		name string
		url  string
		dim  string
		want ConfigErrorCode
	}{
		{"relative url", "qdrant:6333", "8", ConfigErrorInvalidURL},
		{"garbage dim", "http://qdrant:6333", "many", ConfigErrorInvalidVectorDim},
		{"zero dim", "http://qdrant:6333", "0", ConfigErrorInvalidVectorDim},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("QDRANT_URL", tc.url)
			t.Setenv("QDRANT_VECTOR_DIM", tc.dim)
			_, err := ResolveConfigFromEnv()
			if !IsConfigError(err, tc.want) {
				t.Fatalf("want %s, got %v", tc.want, err)
			}
		})
	}

	if err := ValidateConfig(Config{URL: "http://q:6333", VectorDim: 4}); !IsConfigError(err, ConfigErrorMissingCollection) {
		t.Fatalf("want missing collection, got %v", err)
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRequireEnv(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		value     string
		shouldSet bool
		wantPanic bool
	}{
		{
			name:      "variable set",
			key:       "TEST_VAR",
			value:     "test_value",
			shouldSet: true,
			wantPanic: false,
		},
		{
			name:      "variable not set",
			key:       "TEST_VAR_MISSING",
			shouldSet: false,
			wantPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.shouldSet {
				if err := os.Setenv(tt.key, tt.value); err != nil {
					t.Fatalf("failed to set env var: %v", err)
				}
				defer func() {
					if err := os.Unsetenv(tt.key); err != nil {
						t.Errorf("failed to unset env var: %v", err)
					}
				}()
			}

			if tt.wantPanic {
				defer func() {
					if r := recover(); r == nil {
						t.Errorf("requireEnv() should have panicked")
					}
				}()
			}

			result := requireEnv(tt.key)
			if !tt.wantPanic && result != tt.value {
				t.Errorf("requireEnv() = %v, want %v", result, tt.value)
			}
		})
	}
}

func TestParseList(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected []string
	}{
		{
			name:     "single value",
			value:    "value1",
			expected: []string{"value1"},
		},
		{
			name:     "multiple values with spaces",
			value:    "value1, value2, value3",
			expected: []string{"value1", "value2", "value3"},
		},
		{
			name:     "quoted values",
			value:    `"https://a.example", 'https://b.example'`,
			expected: []string{"https://a.example", "https://b.example"},
		},
		{
			name:     "empty string",
			value:    "",
			expected: nil,
		},
		{
			name:     "only separators",
			value:    " , , ",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseList(tt.value)
			if len(result) != len(tt.expected) {
				t.Fatalf("parseList() length = %v, want %v", len(result), len(tt.expected))
			}
			for i := range result {
				if result[i] != tt.expected[i] {
					t.Errorf("parseList()[%d] = %v, want %v", i, result[i], tt.expected[i])
				}
			}
		})
	}
}

func TestMustDuration(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		def      time.Duration
		expected time.Duration
	}{
		{
			name:     "valid duration",
			key:      "TEST_DUR",
			value:    "250ms",
			def:      time.Second,
			expected: 250 * time.Millisecond,
		},
		{
			name:     "invalid falls back to default",
			key:      "TEST_DUR_BAD",
			value:    "soon",
			def:      time.Second,
			expected: time.Second,
		},
		{
			name:     "missing falls back to default",
			key:      "TEST_DUR_MISSING",
			value:    "",
			def:      2 * time.Hour,
			expected: 2 * time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				if err := os.Setenv(tt.key, tt.value); err != nil {
					t.Fatalf("failed to set env var: %v", err)
				}
				defer func() {
					if err := os.Unsetenv(tt.key); err != nil {
						t.Errorf("failed to unset env var: %v", err)
					}
				}()
			}

			if got := mustDuration(tt.key, tt.def); got != tt.expected {
				t.Errorf("mustDuration() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestLoadTrackingKnobs(t *testing.T) {
	t.Setenv("COPRESENCE_TOKEN_SECRET", "test-secret")
	t.Setenv("COPRESENCE_REDIS_ADDR", "localhost:6379")
	t.Setenv("COPRESENCE_REDIS_PASSWORD_REQUIRED", "false")
	t.Setenv("COPRESENCE_TRAIL_CAP", "40")
	t.Setenv("COPRESENCE_TRAIL_BATCH", "16")
	t.Setenv("COPRESENCE_PATH_CAP", "2000")
	t.Setenv("COPRESENCE_PATH_KEEP", "800")
	t.Setenv("COPRESENCE_SESSION_FLUSH", "10s")

	cfg := Load()
	if cfg.TrailCap != 40 || cfg.TrailBatch != 16 {
		t.Errorf("trail knobs = %d/%d, want 40/16", cfg.TrailCap, cfg.TrailBatch)
	}
	if cfg.PathCap != 2000 || cfg.PathKeep != 800 {
		t.Errorf("path knobs = %d/%d, want 2000/800", cfg.PathCap, cfg.PathKeep)
	}
	if cfg.SessionFlush != 10*time.Second {
		t.Errorf("SessionFlush = %v, want 10s", cfg.SessionFlush)
	}
}

func TestLoadTrackingKnobsDefaultToEngine(t *testing.T) {
	t.Setenv("COPRESENCE_TOKEN_SECRET", "test-secret")
	t.Setenv("COPRESENCE_REDIS_ADDR", "localhost:6379")
	t.Setenv("COPRESENCE_REDIS_PASSWORD_REQUIRED", "false")

	cfg := Load()
	// Zero means the tracking engine applies its own defaults.
	if cfg.TrailCap != 0 || cfg.TrailBatch != 0 || cfg.PathCap != 0 || cfg.PathKeep != 0 {
		t.Errorf("unset knobs should stay zero, got %+v", cfg)
	}
}

func TestLoadOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "copresence.yaml")
	content := []byte("listen_port: \":9090\"\nlog_level: debug\nredis_addr: \"redis:6379\"\nallowed_origins:\n  - https://app.example.com\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	o := loadOverlay(path)
	if o.ListenPort != ":9090" {
		t.Errorf("ListenPort = %q, want :9090", o.ListenPort)
	}
	if o.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", o.LogLevel)
	}
	if o.RedisAddr != "redis:6379" {
		t.Errorf("RedisAddr = %q, want redis:6379", o.RedisAddr)
	}
	if len(o.AllowedOrigins) != 1 || o.AllowedOrigins[0] != "https://app.example.com" {
		t.Errorf("AllowedOrigins = %v", o.AllowedOrigins)
	}
}

func TestLoadOverlayMissingFilePanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("loadOverlay() should have panicked on a missing file")
		}
	}()
	loadOverlay("/nonexistent/copresence.yaml")
}

func TestLoadOverlayEmptyPath(t *testing.T) {
	o := loadOverlay("")
	if o.ListenPort != "" || o.RedisAddr != "" {
		t.Errorf("empty path should yield a zero overlay, got %+v", o)
	}
}

func TestMergeSlices(t *testing.T) {
	file := []string{"from-file"}
	env := []string{"from-env"}

	if got := mergeSlices(file, env); len(got) != 1 || got[0] != "from-env" {
		t.Errorf("env value should win, got %v", got)
	}
	if got := mergeSlices(file, nil); len(got) != 1 || got[0] != "from-file" {
		t.Errorf("file value should be kept when env is empty, got %v", got)
	}
}

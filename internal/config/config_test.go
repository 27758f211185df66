package config

import (
	"os"
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

func TestRequireEnvInt(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		value     string
		expected  int
		wantPanic bool
	}{
		{
			name:      "valid integer",
			key:       "TEST_INT",
			value:     "42",
			expected:  42,
			wantPanic: false,
		},
		{
			name:      "invalid integer",
			key:       "TEST_INT_INVALID",
			value:     "not_a_number",
			wantPanic: true,
		},
		{
			name:      "missing variable",
			key:       "TEST_INT_MISSING",
			value:     "",
			wantPanic: true,
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

			if tt.wantPanic {
				defer func() {
					if r := recover(); r == nil {
						t.Errorf("requireEnvInt() should have panicked")
					}
				}()
			}

			result := requireEnvInt(tt.key)
			if !tt.wantPanic && result != tt.expected {
				t.Errorf("requireEnvInt() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestSplitAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected []string
	}{
		{name: "single value", value: "value1", expected: []string{"value1"}},
		{name: "multiple values", value: "value1, value2, value3", expected: []string{"value1", "value2", "value3"}},
		{name: "quoted and empty parts", value: `"https://a.edu", ,'https://b.edu'`, expected: []string{"https://a.edu", "https://b.edu"}},
		{name: "empty", value: "", expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := splitAndTrim(tt.value)
			if len(result) != len(tt.expected) {
				t.Fatalf("splitAndTrim() = %v, want %v", result, tt.expected)
			}
			for i := range result {
				if result[i] != tt.expected[i] {
					t.Errorf("splitAndTrim()[%d] = %v, want %v", i, result[i], tt.expected[i])
				}
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("memory backend needs no redis", func(t *testing.T) {
		t.Setenv("UNILEND_STORE_BACKEND", "memory")
		t.Setenv("UNILEND_OPTIMISTIC_ROLLBACK", "false")
		t.Setenv("UNILEND_AUTH_RATE_LIMIT", "2.5")
		t.Setenv("UNILEND_CORS_ORIGINS", "https://market.campus.edu")

		cfg := Load()
		if cfg.StoreBackend != BackendMemory {
			t.Errorf("StoreBackend = %q, want memory", cfg.StoreBackend)
		}
		if cfg.RedisAddr != "" {
			t.Errorf("RedisAddr = %q, want empty", cfg.RedisAddr)
		}
		if cfg.OptimisticRollback {
			t.Error("OptimisticRollback should be false")
		}
		if cfg.AuthRateLimit != 2.5 {
			t.Errorf("AuthRateLimit = %v, want 2.5", cfg.AuthRateLimit)
		}
		if len(cfg.CORSOrigins) != 1 {
			t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
		}
		if cfg.SessionTTL != 7*24*time.Hour {
			t.Errorf("SessionTTL = %v, want 168h", cfg.SessionTTL)
		}
	})

	t.Run("redis backend requires addr", func(t *testing.T) {
		t.Setenv("UNILEND_STORE_BACKEND", "redis")
		t.Setenv("UNILEND_REDIS_ADDR", "")
		defer func() {
			if r := recover(); r == nil {
				t.Error("Load() should have panicked")
			}
		}()
		Load()
	})

	t.Run("redis backend", func(t *testing.T) {
		t.Setenv("UNILEND_STORE_BACKEND", "redis")
		t.Setenv("UNILEND_REDIS_ADDR", "localhost:6379")
		t.Setenv("UNILEND_REDIS_DB", "2")
		t.Setenv("UNILEND_REDIS_PASSWORD_REQUIRED", "false")

		cfg := Load()
		if cfg.RedisDB != 2 {
			t.Errorf("RedisDB = %d, want 2", cfg.RedisDB)
		}
		if cfg.RedisPoolSize != 10 {
			t.Errorf("RedisPoolSize = %d, want 10", cfg.RedisPoolSize)
		}
	})

	t.Run("unknown backend", func(t *testing.T) {
		t.Setenv("UNILEND_STORE_BACKEND", "sqlite")
		defer func() {
			if r := recover(); r == nil {
				t.Error("Load() should have panicked")
			}
		}()
		Load()
	})
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
			key:      "TEST_DURATION",
			value:    "5s",
			def:      1 * time.Second,
			expected: 5 * time.Second,
		},
		{
			name:     "invalid duration uses default",
			key:      "TEST_DURATION_INVALID",
			value:    "invalid",
			def:      10 * time.Second,
			expected: 10 * time.Second,
		},
		{
			name:     "missing variable uses default",
			key:      "TEST_DURATION_MISSING",
			value:    "",
			def:      15 * time.Second,
			expected: 15 * time.Second,
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

			result := mustDuration(tt.key, tt.def)
			if result != tt.expected {
				t.Errorf("mustDuration() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestMustBool(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		def      bool
		expected bool
	}{
		{
			name:     "true value",
			key:      "TEST_BOOL",
			value:    "true",
			def:      false,
			expected: true,
		},
		{
			name:     "false value",
			key:      "TEST_BOOL_FALSE",
			value:    "false",
			def:      true,
			expected: false,
		},
		{
			name:     "invalid value uses default",
			key:      "TEST_BOOL_INVALID",
			value:    "invalid",
			def:      true,
			expected: true,
		},
		{
			name:     "missing variable uses default",
			key:      "TEST_BOOL_MISSING",
			value:    "",
			def:      false,
			expected: false,
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

			result := mustBool(tt.key, tt.def)
			if result != tt.expected {
				t.Errorf("mustBool() = %v, want %v", result, tt.expected)
			}
		})
	}
}

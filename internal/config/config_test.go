package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server:  ServerConfig{Port: 8080, ShutdownTimeout: time.Second, RequestTimeout: time.Second},
		Table:   TableConfig{SampleRows: 100, MaxPageSize: 500, MaxConcurrentOpens: 4, OpenWaitTime: time.Second},
		Session: SessionConfig{MaxOpen: 8, IdleTTL: time.Minute},
		Rate:    RateLimitConfig{Enabled: true, RequestsPerMinute: 100},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}
	if cfg.Table.SampleRows != 100 {
		t.Errorf("Table.SampleRows = %d, want %d", cfg.Table.SampleRows, 100)
	}
	if cfg.Table.MaxConcurrentOpens != 4 {
		t.Errorf("Table.MaxConcurrentOpens = %d, want %d", cfg.Table.MaxConcurrentOpens, 4)
	}
	if cfg.Table.RowIndex {
		t.Error("Table.RowIndex = true, want false")
	}
	if cfg.Session.MaxOpen != 64 {
		t.Errorf("Session.MaxOpen = %d, want %d", cfg.Session.MaxOpen, 64)
	}
	if cfg.Session.IdleTTL != 30*time.Minute {
		t.Errorf("Session.IdleTTL = %v, want %v", cfg.Session.IdleTTL, 30*time.Minute)
	}
	if cfg.Rate.RequestsPerMinute != 600 {
		t.Errorf("Rate.RequestsPerMinute = %d, want %d", cfg.Rate.RequestsPerMinute, 600)
	}
}

func TestLoad_OverrideDefaults(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("TABLE_ROW_INDEX", "true")
	t.Setenv("TABLE_MAX_CONCURRENT_OPENS", "10")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9090)
	}
	if !cfg.Table.RowIndex {
		t.Error("Table.RowIndex = false, want true")
	}
	if cfg.Table.MaxConcurrentOpens != 10 {
		t.Errorf("Table.MaxConcurrentOpens = %d, want %d", cfg.Table.MaxConcurrentOpens, 10)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestLoad_AltEnvVar(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Table.Root != dir {
		t.Errorf("Table.Root = %q, want %q", cfg.Table.Root, dir)
	}
}

func TestLoad_RootMustExist(t *testing.T) {
	t.Setenv("TABLE_ROOT", "/definitely/not/a/real/dir")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for missing TABLE_ROOT")
	}
	if !strings.Contains(err.Error(), "TABLE_ROOT") {
		t.Errorf("error should mention TABLE_ROOT: %v", err)
	}
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("TABLE_SAMPLE_ROWS", "lots")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for non-numeric TABLE_SAMPLE_ROWS")
	}
	if !strings.Contains(err.Error(), "TABLE_SAMPLE_ROWS") {
		t.Errorf("error should mention TABLE_SAMPLE_ROWS: %v", err)
	}
}

func TestLoadStruct_Required(t *testing.T) {
	var s struct {
		Name string `env:"CSVLENS_TEST_REQUIRED" required:"true"`
	}

	err := loadStruct(reflect.ValueOf(&s).Elem())
	if err == nil {
		t.Fatal("loadStruct() expected error for missing required variable")
	}

	t.Setenv("CSVLENS_TEST_REQUIRED", "set")
	if err := loadStruct(reflect.ValueOf(&s).Elem()); err != nil {
		t.Fatalf("loadStruct() error = %v", err)
	}
	if s.Name != "set" {
		t.Errorf("Name = %q, want %q", s.Name, "set")
	}
}

func TestLoad_Duration(t *testing.T) {
	t.Setenv("SERVER_READ_TIMEOUT", "45s")
	t.Setenv("SESSION_IDLE_TTL", "1m30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ReadTimeout != 45*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want %v", cfg.Server.ReadTimeout, 45*time.Second)
	}
	if cfg.Session.IdleTTL != 90*time.Second {
		t.Errorf("Session.IdleTTL = %v, want %v", cfg.Session.IdleTTL, 90*time.Second)
	}
}

func TestLoad_CommaSeparatedSlice(t *testing.T) {
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 172.16.0.0/12 , 192.168.0.0/16")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	expected := []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}
	if len(cfg.Security.TrustedProxies) != len(expected) {
		t.Fatalf("TrustedProxies length = %d, want %d", len(cfg.Security.TrustedProxies), len(expected))
	}
	for i, v := range expected {
		if cfg.Security.TrustedProxies[i] != v {
			t.Errorf("TrustedProxies[%d] = %q, want %q", i, cfg.Security.TrustedProxies[i], v)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"invalid port", func(c *Config) { c.Server.Port = 99999 }, "SERVER_PORT"},
		{"zero sample rows", func(c *Config) { c.Table.SampleRows = 0 }, "TABLE_SAMPLE_ROWS"},
		{"zero page size", func(c *Config) { c.Table.MaxPageSize = 0 }, "TABLE_MAX_PAGE_SIZE"},
		{"zero sessions", func(c *Config) { c.Session.MaxOpen = 0 }, "SESSION_MAX_OPEN"},
		{"zero idle ttl", func(c *Config) { c.Session.IdleTTL = 0 }, "SESSION_IDLE_TTL"},
		{"rate without limit", func(c *Config) { c.Rate.RequestsPerMinute = 0 }, "RATE_LIMIT_REQUESTS_PER_MINUTE"},
		{"rate disabled", func(c *Config) { c.Rate.Enabled = false; c.Rate.RequestsPerMinute = 0 }, ""},
		{"api key required without keys", func(c *Config) { c.Security.RequireAPIKey = true }, "API_KEYS"},
		{"invalid log level", func(c *Config) { c.Logging.Level = "verbose" }, "LOG_LEVEL"},
		{"invalid log format", func(c *Config) { c.Logging.Format = "xml" }, "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error mentioning %s", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error should mention %s: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	cfg.Logging.Level = "loud"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error")
	}
	for _, want := range []string{"SERVER_PORT", "LOG_LEVEL"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s: %v", want, err)
		}
	}
}

func TestServerAddr(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"", 8080, ":8080"},
		{"0.0.0.0", 8080, "0.0.0.0:8080"},
		{"127.0.0.1", 3000, "127.0.0.1:3000"},
		{"localhost", 443, "localhost:443"},
	}

	for _, tt := range tests {
		cfg := &ServerConfig{Host: tt.host, Port: tt.port}
		got := cfg.Addr()
		if got != tt.want {
			t.Errorf("Addr() with host=%q, port=%d = %q, want %q", tt.host, tt.port, got, tt.want)
		}
	}
}

func TestConfigString_MasksAPIKeys(t *testing.T) {
	cfg := validConfig()
	cfg.Security.APIKeys = []string{"super-secret-key"}

	str := cfg.String()
	if strings.Contains(str, "super-secret-key") {
		t.Error("String() should mask API keys")
	}
	if !strings.Contains(str, "MASKED x1") {
		t.Errorf("String() should contain MASKED placeholder: %s", str)
	}
}

package config

import (
	stderrors "errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vango-go/hashstate/internal/errors"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func errorCode(err error) string {
	var he *errors.Error
	if stderrors.As(err, &he) {
		return he.Code
	}
	return ""
}

func TestNew(t *testing.T) {
	cfg := New()

	if cfg.Server.Port != DefaultPort {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, DefaultPort)
	}
	if cfg.Server.Host != DefaultHost {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, DefaultHost)
	}
	if cfg.Server.Prefix != DefaultPrefix {
		t.Errorf("Server.Prefix = %q, want %q", cfg.Server.Prefix, DefaultPrefix)
	}
	if cfg.Mirror.Backend != BackendMemory {
		t.Errorf("Mirror.Backend = %q, want %q", cfg.Mirror.Backend, BackendMemory)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadFormats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "json",
			file: "hashstate.json",
			content: `{
  "server": {"port": 9000, "metrics": true},
  "bindings": [
    {"key": "q", "debounce": "300ms"},
    {"key": "filters", "codec": "json", "mirror": true, "default": "{}"}
  ],
  "mirror": {"backend": "s3", "s3": {"bucket": "state", "pathStyle": true}},
  "log": {"level": "debug"}
}
`,
		},
		{
			name: "toml",
			file: "hashstate.toml",
			content: `[server]
port = 9000
metrics = true

[[bindings]]
key = "q"
debounce = "300ms"

[[bindings]]
key = "filters"
codec = "json"
mirror = true
default = "{}"

[mirror]
backend = "s3"

[mirror.s3]
bucket = "state"
path_style = true

[log]
level = "debug"
`,
		},
		{
			name: "yaml",
			file: "hashstate.yaml",
			content: `server:
  port: 9000
  metrics: true
bindings:
  - key: q
    debounce: 300ms
  - key: filters
    codec: json
    mirror: true
    default: "{}"
mirror:
  backend: s3
  s3:
    bucket: state
    pathStyle: true
log:
  level: debug
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, tt.file, tt.content)

			cfg, err := Load(dir)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if err := cfg.Validate(); err != nil {
				t.Fatalf("Validate: %v", err)
			}

			if cfg.Server.Port != 9000 || !cfg.Server.Metrics {
				t.Errorf("Server = %+v", cfg.Server)
			}
			if cfg.Server.Host != DefaultHost {
				t.Errorf("Server.Host = %q, want default", cfg.Server.Host)
			}
			if len(cfg.Bindings) != 2 {
				t.Fatalf("Bindings = %+v", cfg.Bindings)
			}
			q, ok := cfg.Binding("q")
			if !ok || q.Codec != CodecString {
				t.Errorf("binding q = %+v, %v", q, ok)
			}
			if d, _ := q.DebounceDuration(); d != 300*time.Millisecond {
				t.Errorf("q debounce = %v, want 300ms", d)
			}
			f, _ := cfg.Binding("filters")
			if f.Codec != CodecJSON || !f.Mirror || f.Default != "{}" {
				t.Errorf("binding filters = %+v", f)
			}
			if cfg.Mirror.Backend != BackendS3 || cfg.Mirror.S3.Bucket != "state" || !cfg.Mirror.S3.PathStyle {
				t.Errorf("Mirror = %+v", cfg.Mirror)
			}
			if cfg.Mirror.S3.Prefix != "hashstate" {
				t.Errorf("Mirror.S3.Prefix = %q, want default", cfg.Mirror.S3.Prefix)
			}
			if level, _ := cfg.LogLevel(); level != slog.LevelDebug {
				t.Errorf("LogLevel = %v, want debug", level)
			}
			if cfg.Path() != filepath.Join(dir, tt.file) {
				t.Errorf("Path() = %q", cfg.Path())
			}
		})
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(t.TempDir())
	if errorCode(err) != "H101" {
		t.Errorf("Load on empty dir = %v, want H101", err)
	}

	_, err = LoadFile(filepath.Join(t.TempDir(), "hashstate.json"))
	if errorCode(err) != "H101" {
		t.Errorf("LoadFile missing = %v, want H101", err)
	}
}

func TestLoadUnsupportedExtension(t *testing.T) {
	path := writeFile(t, t.TempDir(), "hashstate.ini", "port=1")
	_, err := LoadFile(path)
	if errorCode(err) != "H103" {
		t.Errorf("LoadFile(.ini) = %v, want H103", err)
	}
}

func TestLoadSyntaxErrorLocation(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		wantLine int
	}{
		{
			name:     "json",
			file:     "hashstate.json",
			content:  "{\n  \"server\": {\n    \"port\": ,\n  }\n}\n",
			wantLine: 3,
		},
		{
			name:     "toml",
			file:     "hashstate.toml",
			content:  "[server]\nhost = \"x\"\nport = = 1\n",
			wantLine: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), tt.file, tt.content)
			_, err := LoadFile(path)

			var he *errors.Error
			if !stderrors.As(err, &he) || he.Code != "H102" {
				t.Fatalf("LoadFile = %v, want H102", err)
			}
			if he.Location == nil || he.Location.Line != tt.wantLine {
				t.Errorf("Location = %v, want line %d", he.Location, tt.wantLine)
			}
			if len(he.Context) == 0 {
				t.Error("Context lines not loaded")
			}
		})
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "hashstate.yml", "server:\n  port: [1, 2\n")
	if _, err := LoadFile(path); errorCode(err) != "H102" {
		t.Errorf("LoadFile = %v, want H102", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		wantCode string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "H104"},
		{"empty key", func(c *Config) { c.Bindings = []BindingConfig{{}} }, "H104"},
		{"duplicate key", func(c *Config) {
			c.Bindings = []BindingConfig{{Key: "a"}, {Key: "a"}}
		}, "H105"},
		{"unknown codec", func(c *Config) {
			c.Bindings = []BindingConfig{{Key: "a", Codec: "xml"}}
		}, "H301"},
		{"bad debounce", func(c *Config) {
			c.Bindings = []BindingConfig{{Key: "a", Debounce: "soon"}}
		}, "H104"},
		{"negative debounce", func(c *Config) {
			c.Bindings = []BindingConfig{{Key: "a", Debounce: "-1s"}}
		}, "H104"},
		{"json default not json", func(c *Config) {
			c.Bindings = []BindingConfig{{Key: "a", Codec: CodecJSON, Default: "{"}}
		}, "H104"},
		{"s3 without bucket", func(c *Config) { c.Mirror.Backend = BackendS3 }, "H104"},
		{"unknown backend", func(c *Config) { c.Mirror.Backend = "etcd" }, "H104"},
		{"bad idle timeout", func(c *Config) { c.Mirror.IdleTimeout = "x" }, "H104"},
		{"unknown provider", func(c *Config) { c.OAuth.Provider = "github" }, "H401"},
		{"missing client id", func(c *Config) { c.OAuth.Provider = "google" }, "H402"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "H104"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "H104"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutate(cfg)
			err := cfg.Validate()
			if got := errorCode(err); got != tt.wantCode {
				t.Errorf("Validate() = %v, want code %s", err, tt.wantCode)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range FileNames {
		t.Run(name, func(t *testing.T) {
			cfg := New()
			cfg.Server.Port = 9100
			cfg.Bindings = []BindingConfig{{Key: "tab", Debounce: "1s", Codec: CodecString}}
			cfg.OAuth = OAuthConfig{Provider: "apple", ClientID: "com.example.web"}

			path := filepath.Join(t.TempDir(), name)
			if err := cfg.SaveTo(path); err != nil {
				t.Fatalf("SaveTo: %v", err)
			}
			if cfg.Path() != path {
				t.Errorf("Path() = %q, want %q", cfg.Path(), path)
			}

			loaded, err := LoadFile(path)
			if err != nil {
				t.Fatalf("LoadFile: %v", err)
			}
			if loaded.Server.Port != 9100 {
				t.Errorf("Server.Port = %d, want 9100", loaded.Server.Port)
			}
			if b, ok := loaded.Binding("tab"); !ok || b.Debounce != "1s" {
				t.Errorf("binding tab = %+v, %v", b, ok)
			}
			if loaded.OAuth.ClientID != "com.example.web" {
				t.Errorf("OAuth = %+v", loaded.OAuth)
			}
		})
	}
}

func TestSaveWithoutPath(t *testing.T) {
	if err := New().Save(); err == nil {
		t.Error("Save without a path should fail")
	}
}

func TestFind(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "hashstate.yaml", "server:\n  port: 1234\n")

	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	path, err := Find(nested)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if filepath.Base(path) != "hashstate.yaml" {
		t.Errorf("Find = %q", path)
	}

	if _, err := Find(t.TempDir()); err != nil && errorCode(err) != "H101" {
		t.Errorf("Find error = %v, want H101", err)
	}
}

func TestAddress(t *testing.T) {
	cfg := New()
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 9000
	if got := cfg.Address(); got != "0.0.0.0:9000" {
		t.Errorf("Address() = %q", got)
	}
	if !strings.Contains(New().Address(), DefaultHost) {
		t.Error("default address missing host")
	}
}

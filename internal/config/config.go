package config

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/vango-go/hashstate/internal/errors"
)

const (
	// DefaultPort is the default bridge server port.
	DefaultPort = 8080

	// DefaultHost is the default bridge server host.
	DefaultHost = "localhost"

	// DefaultPrefix is the default path prefix for bridge routes.
	DefaultPrefix = "/_hashstate"

	// DefaultIdleTimeout is how long an idle session's mirror is kept.
	DefaultIdleTimeout = "30m"
)

// FileNames lists the config file names Find looks for, in order.
var FileNames = []string{"hashstate.json", "hashstate.toml", "hashstate.yaml", "hashstate.yml"}

// Codec names accepted in BindingConfig.Codec.
const (
	CodecString     = "string"
	CodecJSON       = "json"
	CodecBase64JSON = "base64json"
)

// Mirror backends accepted in MirrorConfig.Backend.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendS3     = "s3"
)

// Config is the hashstate server configuration.
type Config struct {
	// Server configures the bridge HTTP server.
	Server ServerConfig `json:"server" toml:"server" yaml:"server"`

	// Bindings are the fragment keys bound for every connected tab.
	Bindings []BindingConfig `json:"bindings,omitempty" toml:"bindings,omitempty" yaml:"bindings,omitempty"`

	// Mirror selects where mirrored values are kept.
	Mirror MirrorConfig `json:"mirror" toml:"mirror" yaml:"mirror"`

	// OAuth configures the login redirect flow.
	OAuth OAuthConfig `json:"oauth,omitempty" toml:"oauth,omitempty" yaml:"oauth,omitempty"`

	// Log configures logging.
	Log LogConfig `json:"log" toml:"log" yaml:"log"`

	configPath string
}

// ServerConfig configures the bridge HTTP server.
type ServerConfig struct {
	Host   string `json:"host,omitempty" toml:"host,omitempty" yaml:"host,omitempty"`
	Port   int    `json:"port,omitempty" toml:"port,omitempty" yaml:"port,omitempty"`
	Prefix string `json:"prefix,omitempty" toml:"prefix,omitempty" yaml:"prefix,omitempty"`

	// Metrics serves Prometheus metrics at /metrics.
	Metrics bool `json:"metrics,omitempty" toml:"metrics,omitempty" yaml:"metrics,omitempty"`

	// AllowedOrigins lists origins allowed to open the websocket. Empty
	// means same-origin only.
	AllowedOrigins []string `json:"allowedOrigins,omitempty" toml:"allowed_origins,omitempty" yaml:"allowedOrigins,omitempty"`
}

// BindingConfig describes one bound fragment key.
type BindingConfig struct {
	Key string `json:"key" toml:"key" yaml:"key"`

	// Debounce is a duration string (e.g., "250ms"). Empty means none.
	Debounce string `json:"debounce,omitempty" toml:"debounce,omitempty" yaml:"debounce,omitempty"`

	// Mirror keeps the value in the session mirror as well.
	Mirror bool `json:"mirror,omitempty" toml:"mirror,omitempty" yaml:"mirror,omitempty"`

	// Default is the decoded initial value; for JSON codecs it is JSON text.
	Default string `json:"default,omitempty" toml:"default,omitempty" yaml:"default,omitempty"`

	// Codec is one of "string", "json" or "base64json" (default: "string").
	Codec string `json:"codec,omitempty" toml:"codec,omitempty" yaml:"codec,omitempty"`
}

// MirrorConfig selects the mirror backend.
type MirrorConfig struct {
	// Backend is "memory", "s3" or "none" (default: "memory").
	Backend string `json:"backend,omitempty" toml:"backend,omitempty" yaml:"backend,omitempty"`

	// IdleTimeout is how long an idle session's memory mirror is kept.
	IdleTimeout string `json:"idleTimeout,omitempty" toml:"idle_timeout,omitempty" yaml:"idleTimeout,omitempty"`

	S3 S3Config `json:"s3,omitempty" toml:"s3,omitempty" yaml:"s3,omitempty"`
}

// S3Config configures the S3 mirror backend.
type S3Config struct {
	Bucket   string `json:"bucket,omitempty" toml:"bucket,omitempty" yaml:"bucket,omitempty"`
	Prefix   string `json:"prefix,omitempty" toml:"prefix,omitempty" yaml:"prefix,omitempty"`
	Region   string `json:"region,omitempty" toml:"region,omitempty" yaml:"region,omitempty"`
	Endpoint string `json:"endpoint,omitempty" toml:"endpoint,omitempty" yaml:"endpoint,omitempty"`

	// PathStyle addresses the bucket in the path, as MinIO expects.
	PathStyle bool `json:"pathStyle,omitempty" toml:"path_style,omitempty" yaml:"pathStyle,omitempty"`
}

// OAuthConfig configures the login redirect flow.
type OAuthConfig struct {
	// Provider is "google" or "apple". Empty disables OAuth.
	Provider    string `json:"provider,omitempty" toml:"provider,omitempty" yaml:"provider,omitempty"`
	ClientID    string `json:"clientId,omitempty" toml:"client_id,omitempty" yaml:"clientId,omitempty"`
	RedirectURI string `json:"redirectUri,omitempty" toml:"redirect_uri,omitempty" yaml:"redirectUri,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is "debug", "info", "warn" or "error" (default: "info").
	Level string `json:"level,omitempty" toml:"level,omitempty" yaml:"level,omitempty"`

	// Format is "text" or "json" (default: "text").
	Format string `json:"format,omitempty" toml:"format,omitempty" yaml:"format,omitempty"`
}

// New creates a Config with default values.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host:   DefaultHost,
			Port:   DefaultPort,
			Prefix: DefaultPrefix,
		},
		Mirror: MirrorConfig{
			Backend:     BackendMemory,
			IdleTimeout: DefaultIdleTimeout,
			S3:          S3Config{Prefix: "hashstate"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the first config file found in dir.
func Load(dir string) (*Config, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, errors.New("H101").
		WithDetail("No hashstate config found in " + dir).
		WithSuggestion("Run 'hashstate init' to create hashstate.json")
}

// LoadFile reads configuration from path. The format follows the extension.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("H101").
				WithDetail("No config file at " + path)
		}
		return nil, errors.New("H102").Wrap(err)
	}

	cfg := New()
	if err := decode(path, data, cfg); err != nil {
		return nil, err
	}

	cfg.configPath = path
	cfg.applyDefaults()

	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			herr := errors.New("H102").Wrap(err).
				WithSuggestion("Check that " + filepath.Base(path) + " is valid JSON")
			var syn *json.SyntaxError
			if stderrors.As(err, &syn) {
				herr.WithLocation(path, lineAt(data, syn.Offset), 0)
			}
			return herr
		}
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			herr := errors.New("H102").Wrap(err).
				WithSuggestion("Check that " + filepath.Base(path) + " is valid TOML")
			var perr toml.ParseError
			if stderrors.As(err, &perr) {
				herr.WithLocation(path, perr.Position.Line, 0)
			}
			return herr
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return errors.New("H102").Wrap(err).
				WithSuggestion("Check that " + filepath.Base(path) + " is valid YAML")
		}
	default:
		return errors.New("H103").
			WithDetail("Cannot read config with extension " + strconv.Quote(ext))
	}
	return nil
}

// lineAt returns the 1-based line containing byte offset.
func lineAt(data []byte, offset int64) int {
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	return bytes.Count(data[:offset], []byte("\n")) + 1
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to path in the format its extension names.
func (c *Config) SaveTo(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	case ".toml":
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(c)
		data = buf.Bytes()
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		return errors.New("H103").WithDetail("Cannot write config to " + path)
	}
	if err != nil {
		return errors.New("H102").Wrap(err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("H102").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.Prefix == "" {
		c.Server.Prefix = DefaultPrefix
	}
	if c.Mirror.Backend == "" {
		c.Mirror.Backend = BackendMemory
	}
	if c.Mirror.IdleTimeout == "" {
		c.Mirror.IdleTimeout = DefaultIdleTimeout
	}
	for i := range c.Bindings {
		if c.Bindings[i].Codec == "" {
			c.Bindings[i].Codec = CodecString
		}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.New("H104").
			WithDetail("server.port must be between 0 and 65535, got " + strconv.Itoa(c.Server.Port))
	}

	seen := make(map[string]bool, len(c.Bindings))
	for _, b := range c.Bindings {
		if b.Key == "" {
			return errors.New("H104").WithDetail("every binding needs a key")
		}
		if seen[b.Key] {
			return errors.New("H105").WithDetail("key " + strconv.Quote(b.Key) + " is bound twice")
		}
		seen[b.Key] = true

		switch b.Codec {
		case "", CodecString, CodecJSON, CodecBase64JSON:
		default:
			return errors.New("H301").WithDetail("binding " + strconv.Quote(b.Key) + " uses codec " + strconv.Quote(b.Codec))
		}
		if _, err := b.DebounceDuration(); err != nil {
			return err
		}
		if b.Default != "" && b.Codec != CodecString && b.Codec != "" && !json.Valid([]byte(b.Default)) {
			return errors.New("H104").WithDetail("default for " + strconv.Quote(b.Key) + " is not valid JSON")
		}
	}

	switch c.Mirror.Backend {
	case "", BackendNone, BackendMemory:
	case BackendS3:
		if c.Mirror.S3.Bucket == "" {
			return errors.New("H104").WithDetail("mirror.s3.bucket is required for the s3 backend")
		}
	default:
		return errors.New("H104").WithDetail("unknown mirror backend " + strconv.Quote(c.Mirror.Backend))
	}
	if _, err := c.Mirror.IdleDuration(); err != nil {
		return err
	}

	switch strings.ToLower(c.OAuth.Provider) {
	case "":
	case "google", "apple":
		if c.OAuth.ClientID == "" {
			return errors.New("H402")
		}
	default:
		return errors.New("H401").WithDetail("unknown provider " + strconv.Quote(c.OAuth.Provider))
	}

	if _, err := c.LogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return errors.New("H104").WithDetail("log.format must be text or json")
	}

	return nil
}

// DebounceDuration parses Debounce.
func (b BindingConfig) DebounceDuration() (time.Duration, error) {
	return parseDuration("debounce for "+strconv.Quote(b.Key), b.Debounce)
}

// IdleDuration parses IdleTimeout.
func (m MirrorConfig) IdleDuration() (time.Duration, error) {
	return parseDuration("mirror.idleTimeout", m.IdleTimeout)
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.New("H104").Wrap(err).
			WithDetail(field + " must be a duration like \"250ms\" or \"30m\"")
	}
	if d < 0 {
		return 0, errors.New("H104").WithDetail(field + " must not be negative")
	}
	return d, nil
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if c.Log.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, errors.New("H104").Wrap(err).
			WithDetail("log.level must be debug, info, warn or error")
	}
	return level, nil
}

// Address returns the host:port the server listens on.
func (c *Config) Address() string {
	return c.Server.Host + ":" + strconv.Itoa(c.Server.Port)
}

// Binding returns the binding for key.
func (c *Config) Binding(key string) (BindingConfig, bool) {
	for _, b := range c.Bindings {
		if b.Key == key {
			return b, true
		}
	}
	return BindingConfig{}, false
}

// Find walks up from startDir to the first directory holding a config file
// and returns that file's path.
func Find(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		for _, name := range FileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("H101").
				WithDetail("No hashstate config found in " + startDir + " or any parent directory").
				WithSuggestion("Run 'hashstate init' to create hashstate.json")
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads the nearest config file above the working
// directory.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	path, err := Find(wd)
	if err != nil {
		return nil, err
	}

	return LoadFile(path)
}

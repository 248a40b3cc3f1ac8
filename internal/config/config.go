package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ScorerHeuristic   = "heuristic"
	ScorerLevenshtein = "levenshtein"
	ScorerEmbedding   = "embedding"
)

// Config models goalline.yml.
type Config struct {
	Import struct {
		// Scorer picks the similarity strategy used for fuzzy suggestions.
		Scorer string `yaml:"scorer"`
		// SuggestionThreshold is the minimum score for a candidate to be suggested.
		SuggestionThreshold float64 `yaml:"suggestion_threshold"`
		// MaxSuggestions caps the suggestions kept per reference.
		MaxSuggestions int `yaml:"max_suggestions"`
		// LowConfidence marks user-picked suggestions scored below it as warnings.
		LowConfidence float64 `yaml:"low_confidence"`
		// DefaultPriority is assigned to values imported without a priority (1 highest, 100 lowest).
		DefaultPriority int `yaml:"default_priority"`
	} `yaml:"import"`
	Embedding struct {
		Provider  string `yaml:"provider"`
		Model     string `yaml:"model"`
		BaseURL   string `yaml:"base_url"`
		APIKeyEnv string `yaml:"api_key_env"`
	} `yaml:"embedding"`
	Store struct {
		Timeout Duration `yaml:"timeout"`
	} `yaml:"store"`
	Log    LogConfig `yaml:"log"`
	Server struct {
		Addr         string `yaml:"addr"`
		BasePath     string `yaml:"base_path"`
		JWTSecretEnv string `yaml:"jwt_secret_env"`
	} `yaml:"server"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration decodes YAML strings like "5s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with gl init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Import.Scorer {
	case ScorerHeuristic, ScorerLevenshtein:
	case ScorerEmbedding:
		switch c.Embedding.Provider {
		case "openai", "ollama":
		case "":
			return fmt.Errorf("config.embedding.provider is required when import.scorer is embedding")
		default:
			return fmt.Errorf("config.embedding.provider must be openai or ollama, got %q", c.Embedding.Provider)
		}
	default:
		return fmt.Errorf("config.import.scorer must be one of heuristic, levenshtein, embedding; got %q", c.Import.Scorer)
	}
	if c.Import.SuggestionThreshold <= 0 || c.Import.SuggestionThreshold >= 1 {
		return fmt.Errorf("config.import.suggestion_threshold must be between 0 and 1")
	}
	if c.Import.MaxSuggestions < 1 {
		return fmt.Errorf("config.import.max_suggestions must be at least 1")
	}
	if c.Import.LowConfidence < 0 || c.Import.LowConfidence > 1 {
		return fmt.Errorf("config.import.low_confidence must be between 0 and 1")
	}
	if c.Import.DefaultPriority < 1 || c.Import.DefaultPriority > 100 {
		return fmt.Errorf("config.import.default_priority must be between 1 and 100")
	}
	if c.Store.Timeout < 0 {
		return fmt.Errorf("config.store.timeout must not be negative")
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("config.log.format must be text or json")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "goalline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing keys keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `import:
  scorer: heuristic
  suggestion_threshold: 0.3
  max_suggestions: 5
  low_confidence: 0.5
  default_priority: 50

embedding:
  provider: ""
  model: ""
  base_url: ""
  api_key_env: OPENAI_API_KEY

store:
  timeout: 5s

log:
  level: info
  format: text

server:
  addr: 127.0.0.1:8080
  base_path: /v0
  jwt_secret_env: GOALLINE_JWT_SECRET
`

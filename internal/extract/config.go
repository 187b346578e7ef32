package extract

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration parses YAML values like "30s" or bare seconds, which yaml.v3
// does not do for time.Duration itself.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		dur, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(dur)
		return nil
	}
	var secs float64
	if err := value.Decode(&secs); err != nil {
		return fmt.Errorf("invalid duration value %q", value.Value)
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ProviderConfig describes one extraction backend in providers.yaml.
// Providers are declared in fallback order; Weight only affects primary
// selection. API keys come from the environment, never the file.
type ProviderConfig struct {
	Name      string  `yaml:"name"`
	Kind      string  `yaml:"kind"` // "openai" (OpenAI-compatible) or "gemini"
	Model     string  `yaml:"model"`
	BaseURL   string  `yaml:"base_url"`
	APIKeyEnv string  `yaml:"api_key_env"`
	Weight    int     `yaml:"weight"`
	Enabled   bool    `yaml:"enabled"`
}

// Config is the top-level providers.yaml structure.
type Config struct {
	Timeout     Duration         `yaml:"timeout"`
	Retries     int              `yaml:"retries"`
	RetryDelay  Duration         `yaml:"retry_delay"`
	Temperature float64          `yaml:"temperature"`
	Providers   []ProviderConfig `yaml:"providers"`
}

// DefaultConfig mirrors the stock three-provider setup.
func DefaultConfig() Config {
	return Config{
		Timeout:     Duration(30 * time.Second),
		Retries:     1,
		RetryDelay:  Duration(time.Second),
		Temperature: 0.7,
		Providers: []ProviderConfig{
			{
				Name:      "openai",
				Kind:      "openai",
				Model:     "gpt-4o",
				BaseURL:   "https://api.openai.com/v1",
				APIKeyEnv: "OPENAI_API_KEY",
				Weight:    70,
				Enabled:   true,
			},
			{
				Name:      "deepseek",
				Kind:      "openai",
				Model:     "deepseek-chat",
				BaseURL:   "https://api.deepseek.com/v1",
				APIKeyEnv: "DEEPSEEK_API_KEY",
				Weight:    20,
				Enabled:   true,
			},
			{
				Name:      "gemini",
				Kind:      "gemini",
				Model:     "gemini-2.0-flash",
				BaseURL:   "https://generativelanguage.googleapis.com/v1beta",
				APIKeyEnv: "GEMINI_API_KEY",
				Weight:    10,
				Enabled:   true,
			},
		},
	}
}

// LoadConfig reads providers.yaml. A missing file yields the default setup.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return Config{}, err
	}

	cfg := DefaultConfig()
	cfg.Providers = nil
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(cfg.Providers) == 0 {
		cfg.Providers = DefaultConfig().Providers
	}
	return cfg, cfg.Validate()
}

// Validate checks structural invariants: unique names, known kinds, and
// enabled weights summing to 100 (or all zero, which disables weighting).
func (c Config) Validate() error {
	seen := make(map[string]bool, len(c.Providers))
	weightSum := 0
	for _, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider with empty name")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate provider name %q", p.Name)
		}
		seen[p.Name] = true
		switch p.Kind {
		case "openai", "gemini":
		default:
			return fmt.Errorf("provider %q: unknown kind %q", p.Name, p.Kind)
		}
		if p.Weight < 0 {
			return fmt.Errorf("provider %q: negative weight", p.Name)
		}
		if p.Enabled {
			weightSum += p.Weight
		}
	}
	if weightSum != 0 && weightSum != 100 {
		return fmt.Errorf("enabled provider weights sum to %d, want 100", weightSum)
	}
	return nil
}

// Candidates instantiates the configured providers in fallback order.
func (c Config) Candidates(client *http.Client) ([]Candidate, error) {
	if client == nil {
		client = &http.Client{Timeout: c.Timeout.Std()}
	}
	cands := make([]Candidate, 0, len(c.Providers))
	for _, pc := range c.Providers {
		apiKey := os.Getenv(pc.APIKeyEnv)
		var p Provider
		switch pc.Kind {
		case "openai":
			p = NewOpenAI(pc.Name, pc.Model, pc.BaseURL, apiKey, client)
		case "gemini":
			p = NewGemini(pc.Name, pc.Model, pc.BaseURL, apiKey, client)
		default:
			return nil, fmt.Errorf("provider %q: unknown kind %q", pc.Name, pc.Kind)
		}
		cands = append(cands, Candidate{
			Provider: p,
			Weight:   pc.Weight,
			Enabled:  pc.Enabled && apiKey != "",
		})
	}
	return cands, nil
}

// CallerOptions maps the config onto caller tuning.
func (c Config) CallerOptions() CallerOptions {
	return CallerOptions{
		Timeout:     c.Timeout.Std(),
		Retries:     c.Retries,
		RetryDelay:  c.RetryDelay.Std(),
		Temperature: c.Temperature,
	}
}

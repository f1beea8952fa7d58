package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/spinup/spinup/internal/logger"
	"github.com/spinup/spinup/internal/provider"
)

const (
	DefaultServerAddr = ":8080"
	DefaultDataDir    = "./data"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

type Config struct {
	Log          logger.Config      `yaml:"log"`
	Models       ModelsConfig       `yaml:"models"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Actions      ActionsConfig      `yaml:"actions"`
	Store        StoreConfig        `yaml:"store"`
	Server       ServerConfig       `yaml:"server"`
	Schedule     []JobConfig        `yaml:"schedule"`
}

type ModelsConfig struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
}

type ProviderConfig struct {
	BaseURL string            `yaml:"base_url"`
	APIKey  string            `yaml:"api_key"`
	API     string            `yaml:"api"`
	Models  []ModelDefinition `yaml:"models"`
}

type ModelDefinition struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	ContextWindow int    `yaml:"context_window"`
	MaxTokens     int    `yaml:"max_tokens"`
	JSONMode      bool   `yaml:"json_mode"`
}

// OrchestratorConfig configures the Decider and the Engine.
type OrchestratorConfig struct {
	// Model is a "provider/model" reference into models.providers.
	Model string `yaml:"model"`
	// FallbackModels are tried in order when the model's provider is rate
	// limited, unavailable or rejects its key.
	FallbackModels []string `yaml:"fallback_models"`
	Temperature    *float64 `yaml:"temperature"`
	MaxTokens      int      `yaml:"max_tokens"`
	JSONMode       bool     `yaml:"json_mode"`
	Instructions   string   `yaml:"instructions"`
	Rules          []string `yaml:"rules"`

	MaxRounds      int           `yaml:"max_rounds"`
	Deadline       time.Duration `yaml:"deadline"`
	ResultPolicy   string        `yaml:"result_policy"`
	ActionTimeout  time.Duration `yaml:"action_timeout"`
	RetryBackoff   time.Duration `yaml:"retry_backoff"`
	MaxResultBytes int           `yaml:"max_result_bytes"`
}

type ActionsConfig struct {
	// Builtin lists the compiled-in actions to register, e.g. getUserInfo.
	Builtin []string          `yaml:"builtin"`
	Lua     []LuaActionConfig `yaml:"lua"`
}

// LuaActionConfig declares an action implemented by a Lua script defining a
// global run(ctx) function. Exactly one of Script and Source is set.
type LuaActionConfig struct {
	ID          string         `yaml:"id"`
	Description string         `yaml:"description"`
	Script      string         `yaml:"script"`
	Source      string         `yaml:"source"`
	Retries     int            `yaml:"retries"`
	DependsOn   []string       `yaml:"depends_on"`
	Metadata    map[string]any `yaml:"metadata"`
}

type StoreConfig struct {
	Driver        string        `yaml:"driver"`
	DataDir       string        `yaml:"data_dir"`
	DSN           string        `yaml:"dsn"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// JobConfig runs Query through the engine on a cron schedule.
type JobConfig struct {
	Name  string         `yaml:"name"`
	Cron  string         `yaml:"cron"`
	Query string         `yaml:"query"`
	Input map[string]any `yaml:"input"`
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)}`)

func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

func expandEnvInConfig(cfg *Config) {
	for name, p := range cfg.Models.Providers {
		p.BaseURL = expandEnv(p.BaseURL)
		p.APIKey = expandEnv(p.APIKey)
		cfg.Models.Providers[name] = p
	}
	cfg.Store.DSN = expandEnv(cfg.Store.DSN)
	cfg.Store.RedisAddr = expandEnv(cfg.Store.RedisAddr)
	cfg.Store.RedisPassword = expandEnv(cfg.Store.RedisPassword)
	cfg.Server.Addr = expandEnv(cfg.Server.Addr)
}

func applyDefaults(cfg *Config) {
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = StoreMemory
	}
	if cfg.Store.DataDir == "" {
		cfg.Store.DataDir = DefaultDataDir
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultServerAddr
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	expandEnvInConfig(&cfg)
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every problem found, joined into one error.
func (c *Config) Validate() error {
	var errs []error

	for name, p := range c.Models.Providers {
		switch p.API {
		case "", provider.APIOpenAI, provider.APIAnthropic, provider.APIGemini:
		default:
			errs = append(errs, fmt.Errorf("models.providers.%s: unknown api %q", name, p.API))
		}
	}

	o := c.Orchestrator
	if o.Model != "" {
		ref, err := provider.ParseModelRef(o.Model)
		if err != nil {
			errs = append(errs, fmt.Errorf("orchestrator.model: %w", err))
		} else if _, ok := c.Models.Providers[ref.Provider()]; !ok {
			errs = append(errs, fmt.Errorf("orchestrator.model: provider %q is not configured", ref.Provider()))
		}
	}
	for i, m := range o.FallbackModels {
		ref, err := provider.ParseModelRef(m)
		if err != nil {
			errs = append(errs, fmt.Errorf("orchestrator.fallback_models[%d]: %w", i, err))
		} else if _, ok := c.Models.Providers[ref.Provider()]; !ok {
			errs = append(errs, fmt.Errorf("orchestrator.fallback_models[%d]: provider %q is not configured", i, ref.Provider()))
		}
	}
	if len(o.FallbackModels) > 0 && o.Model == "" {
		errs = append(errs, errors.New("orchestrator.fallback_models: requires orchestrator.model"))
	}
	if o.MaxRounds < 0 {
		errs = append(errs, fmt.Errorf("orchestrator.max_rounds: must be >= 0, got %d", o.MaxRounds))
	}
	if o.Deadline < 0 || o.ActionTimeout < 0 || o.RetryBackoff < 0 {
		errs = append(errs, errors.New("orchestrator: durations must not be negative"))
	}
	switch o.ResultPolicy {
	case "", "last", "history":
	default:
		errs = append(errs, fmt.Errorf("orchestrator.result_policy: unknown policy %q (supported: last, history)", o.ResultPolicy))
	}
	if o.Temperature != nil && (*o.Temperature < 0 || *o.Temperature > 2) {
		errs = append(errs, fmt.Errorf("orchestrator.temperature: %v out of range [0, 2]", *o.Temperature))
	}

	var ids []string
	for i, a := range c.Actions.Lua {
		switch {
		case a.ID == "":
			errs = append(errs, fmt.Errorf("actions.lua[%d]: id is required", i))
		case (a.Script == "") == (a.Source == ""):
			errs = append(errs, fmt.Errorf("actions.lua[%d] %s: exactly one of script or source is required", i, a.ID))
		}
		if a.Retries < 0 {
			errs = append(errs, fmt.Errorf("actions.lua[%d] %s: retries must be >= 0", i, a.ID))
		}
		if a.ID != "" && slices.Contains(ids, a.ID) {
			errs = append(errs, fmt.Errorf("actions.lua[%d]: duplicate id %q", i, a.ID))
		}
		ids = append(ids, a.ID)
	}

	switch c.Store.Driver {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn: required for the postgres driver"))
		}
	case StoreRedis:
		if c.Store.RedisAddr == "" {
			errs = append(errs, errors.New("store.redis_addr: required for the redis driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver))
	}

	for i, j := range c.Schedule {
		if j.Query == "" {
			errs = append(errs, fmt.Errorf("schedule[%d] %s: query is required", i, j.Name))
		}
		if _, err := cron.ParseStandard(j.Cron); err != nil {
			errs = append(errs, fmt.Errorf("schedule[%d] %s: invalid cron %q: %w", i, j.Name, j.Cron, err))
		}
	}

	return errors.Join(errs...)
}

// ProviderConfigs converts the models section into provider factory input.
func (c *Config) ProviderConfigs() []provider.ProviderConfig {
	names := make([]string, 0, len(c.Models.Providers))
	for name := range c.Models.Providers {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]provider.ProviderConfig, 0, len(names))
	for _, name := range names {
		p := c.Models.Providers[name]
		models := make([]provider.ModelInfo, 0, len(p.Models))
		for _, m := range p.Models {
			models = append(models, provider.ModelInfo{
				ID:            m.ID,
				Name:          m.Name,
				ProviderID:    name,
				ContextWindow: m.ContextWindow,
				MaxTokens:     m.MaxTokens,
				JSONMode:      m.JSONMode,
			})
		}
		out = append(out, provider.ProviderConfig{
			ID:      name,
			BaseURL: p.BaseURL,
			APIKey:  p.APIKey,
			API:     p.API,
			Models:  models,
		})
	}
	return out
}

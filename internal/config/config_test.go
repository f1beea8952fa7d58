package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testYAML = `
log:
  level: debug
  format: console

models:
  providers:
    openai:
      api_key: "${OPENAI_API_KEY}"
      api: openai-completions
      models:
        - id: gpt-4o
          name: GPT-4o
          context_window: 128000
          json_mode: true
    gemini:
      api_key: "${GEMINI_API_KEY}"
      api: gemini-generate
    ollama:
      base_url: "http://localhost:11434/v1"
      api: openai-completions

orchestrator:
  model: openai/gpt-4o
  fallback_models: [gemini/gemini-2.0-flash, ollama/llama3]
  temperature: 0.7
  max_tokens: 1024
  instructions: |
    You are an orchestrator AI.
  rules:
    - Never email external domains.
  max_rounds: 10
  deadline: 2m
  result_policy: history
  action_timeout: 30s
  retry_backoff: 500ms
  max_result_bytes: 32768

actions:
  builtin: [getUserInfo]
  lua:
    - id: checkSender
      description: Check whether a sender is on the blocklist
      script: ./actions/check_sender.lua
      retries: 2
    - id: reportEmail
      source: |
        function run(ctx) return { reported = true } end
      depends_on: [checkSender]

store:
  driver: sqlite
  data_dir: /var/lib/spinup

server:
  addr: ":9090"

schedule:
  - name: scamwatch
    cron: "*/15 * * * *"
    query: check my inbox for scam emails
`

func TestParseConfig(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("GEMINI_API_KEY", "g-test")

	cfg, err := Parse([]byte(testYAML))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Log.Level != "debug" || cfg.Log.Format != "console" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if len(cfg.Models.Providers) != 3 {
		t.Fatalf("expected 3 providers, got %d", len(cfg.Models.Providers))
	}
	if got := cfg.Models.Providers["openai"].APIKey; got != "sk-test" {
		t.Errorf("openai api_key = %q, want expanded value", got)
	}
	if got := cfg.Models.Providers["openai"].Models[0]; !got.JSONMode || got.ContextWindow != 128000 {
		t.Errorf("openai model = %+v", got)
	}

	o := cfg.Orchestrator
	if o.Model != "openai/gpt-4o" || o.Temperature == nil || *o.Temperature != 0.7 || o.MaxTokens != 1024 {
		t.Errorf("orchestrator = %+v", o)
	}
	if len(o.FallbackModels) != 2 || o.FallbackModels[1] != "ollama/llama3" {
		t.Errorf("fallback_models = %v", o.FallbackModels)
	}
	if o.Deadline != 2*time.Minute || o.ActionTimeout != 30*time.Second || o.RetryBackoff != 500*time.Millisecond {
		t.Errorf("durations = %v %v %v", o.Deadline, o.ActionTimeout, o.RetryBackoff)
	}
	if o.MaxRounds != 10 || o.ResultPolicy != "history" || o.MaxResultBytes != 32768 {
		t.Errorf("orchestrator limits = %+v", o)
	}
	if len(o.Rules) != 1 || !strings.HasPrefix(o.Instructions, "You are an orchestrator AI.") {
		t.Errorf("prompt config = %q %v", o.Instructions, o.Rules)
	}

	if len(cfg.Actions.Builtin) != 1 || cfg.Actions.Builtin[0] != "getUserInfo" {
		t.Errorf("builtin = %v", cfg.Actions.Builtin)
	}
	if len(cfg.Actions.Lua) != 2 {
		t.Fatalf("lua actions = %d", len(cfg.Actions.Lua))
	}
	if la := cfg.Actions.Lua[1]; la.ID != "reportEmail" || la.DependsOn[0] != "checkSender" || !strings.Contains(la.Source, "function run") {
		t.Errorf("lua[1] = %+v", la)
	}

	if cfg.Store.Driver != StoreSQLite || cfg.Store.DataDir != "/var/lib/spinup" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("server addr = %q", cfg.Server.Addr)
	}
	if len(cfg.Schedule) != 1 || cfg.Schedule[0].Cron != "*/15 * * * *" {
		t.Errorf("schedule = %+v", cfg.Schedule)
	}
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.Driver != StoreMemory {
		t.Errorf("driver = %q, want memory", cfg.Store.Driver)
	}
	if cfg.Server.Addr != DefaultServerAddr {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Orchestrator.Temperature != nil {
		t.Error("temperature should stay unset")
	}
}

func TestEnvVarNotSetKeepsPlaceholder(t *testing.T) {
	os.Unsetenv("SPINUP_TEST_UNSET_VAR")
	cfg, err := Parse([]byte(`
models:
  providers:
    openai:
      api_key: "${SPINUP_TEST_UNSET_VAR}"
`))
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.Models.Providers["openai"].APIKey; got != "${SPINUP_TEST_UNSET_VAR}" {
		t.Errorf("unset var should keep placeholder, got %q", got)
	}
}

func TestExpandEnvInStore(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://spinup@localhost/spinup")
	cfg, err := Parse([]byte(`
store:
  driver: postgres
  dsn: "${PG_DSN}"
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.DSN != "postgres://spinup@localhost/spinup" {
		t.Errorf("dsn = %q", cfg.Store.DSN)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown api", "models:\n  providers:\n    x:\n      api: soap\n", `unknown api "soap"`},
		{"bad model ref", "orchestrator:\n  model: gpt-4o\n", "orchestrator.model"},
		{"unconfigured provider", "orchestrator:\n  model: openai/gpt-4o\n", `provider "openai" is not configured`},
		{"bad fallback", "models:\n  providers:\n    openai: {}\norchestrator:\n  model: openai/gpt-4o\n  fallback_models: [gemini/flash]\n", `fallback_models[0]: provider "gemini"`},
		{"fallback without model", "orchestrator:\n  fallback_models: [a/b]\n", "requires orchestrator.model"},
		{"negative rounds", "orchestrator:\n  max_rounds: -1\n", "max_rounds"},
		{"bad policy", "orchestrator:\n  result_policy: all\n", "result_policy"},
		{"temperature", "orchestrator:\n  temperature: 3\n", "temperature"},
		{"lua without id", "actions:\n  lua:\n    - source: x\n", "id is required"},
		{"lua script and source", "actions:\n  lua:\n    - id: a\n      script: a.lua\n      source: x\n", "exactly one of script or source"},
		{"lua duplicate", "actions:\n  lua:\n    - id: a\n      source: x\n    - id: a\n      source: y\n", `duplicate id "a"`},
		{"unknown driver", "store:\n  driver: mongo\n", `unknown driver "mongo"`},
		{"postgres without dsn", "store:\n  driver: postgres\n", "store.dsn"},
		{"redis without addr", "store:\n  driver: redis\n", "store.redis_addr"},
		{"bad cron", "schedule:\n  - name: j\n    cron: every minute\n    query: q\n", "invalid cron"},
		{"job without query", "schedule:\n  - name: j\n    cron: '@hourly'\n", "query is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should contain %q", err, tt.want)
			}
		})
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	_, err := Parse([]byte("store:\n  driver: mongo\norchestrator:\n  max_rounds: -2\n"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "store.driver") || !strings.Contains(err.Error(), "max_rounds") {
		t.Errorf("both problems should be reported: %v", err)
	}
}

func TestProviderConfigs(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("GEMINI_API_KEY", "g-test")
	cfg, err := Parse([]byte(testYAML))
	if err != nil {
		t.Fatal(err)
	}
	pcs := cfg.ProviderConfigs()
	if len(pcs) != 3 {
		t.Fatalf("got %d provider configs", len(pcs))
	}
	if pcs[0].ID != "gemini" || pcs[1].ID != "ollama" || pcs[2].ID != "openai" {
		t.Errorf("provider configs should be sorted by id: %s %s %s", pcs[0].ID, pcs[1].ID, pcs[2].ID)
	}
	m := pcs[2].Models[0]
	if m.ProviderID != "openai" || m.Ref() != "openai/gpt-4o" || !m.JSONMode {
		t.Errorf("model = %+v", m)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spinup.yaml")
	if err := os.WriteFile(path, []byte("server:\n  addr: \":7000\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":7000" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

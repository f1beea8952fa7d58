package orchestrator

import (
	"context"
	"fmt"

	"github.com/spinup/spinup/internal/provider"
)

// Decider chooses the next batch of actions from the conversation so far.
// Any backend (LLM, rule table, human prompt) can implement it.
type Decider interface {
	Decide(ctx context.Context, conversation []provider.Message) (*Decision, error)
}

// DeciderFunc adapts a function to the Decider interface.
type DeciderFunc func(ctx context.Context, conversation []provider.Message) (*Decision, error)

func (f DeciderFunc) Decide(ctx context.Context, conversation []provider.Message) (*Decision, error) {
	return f(ctx, conversation)
}

type LLMClient interface {
	Complete(ctx context.Context, req *provider.CompletionRequest) (*provider.CompletionResponse, error)
}

const DefaultTemperature = 0.7

type LLMDeciderConfig struct {
	Model        string
	Temperature  *float64
	MaxTokens    int
	JSONMode     bool
	Instructions string
	Rules        []string
}

// LLMDecider backs the Decider contract with one chat completion per call.
// It never retries; a failed or unparseable completion is a *DecisionError.
type LLMDecider struct {
	llm      LLMClient
	registry *Registry
	cfg      LLMDeciderConfig
	rules    *RulesConfig
}

func NewLLMDecider(llm LLMClient, registry *Registry, cfg LLMDeciderConfig) *LLMDecider {
	if cfg.Temperature == nil {
		cfg.Temperature = provider.Float(DefaultTemperature)
	}
	return &LLMDecider{
		llm:      llm,
		registry: registry,
		cfg:      cfg,
		rules:    NewRulesConfig(cfg.Rules),
	}
}

// SystemPrompt is the system turn this decider prepends to conversations that
// do not start with one.
func (d *LLMDecider) SystemPrompt() string {
	return BuildSystemPrompt(d.registry.Describe(), d.rules, d.cfg.Instructions)
}

func (d *LLMDecider) Decide(ctx context.Context, conversation []provider.Message) (*Decision, error) {
	messages := conversation
	if len(messages) == 0 || messages[0].Role != provider.RoleSystem {
		messages = make([]provider.Message, 0, len(conversation)+1)
		messages = append(messages, provider.Message{Role: provider.RoleSystem, Content: d.SystemPrompt()})
		messages = append(messages, conversation...)
	}

	resp, err := d.llm.Complete(ctx, &provider.CompletionRequest{
		Model:       d.cfg.Model,
		Messages:    messages,
		MaxTokens:   d.cfg.MaxTokens,
		Temperature: d.cfg.Temperature,
		JSONMode:    d.cfg.JSONMode,
	})
	if err != nil {
		return nil, &DecisionError{Cause: fmt.Errorf("LLM completion: %w", err)}
	}

	decision, err := ParseDecision(resp.Content)
	if err != nil {
		return nil, &DecisionError{Content: resp.Content, Cause: err}
	}
	return decision, nil
}

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/spinup/spinup/internal/provider"
)

type fakeLLM struct {
	responses []string
	err       error
	requests  []*provider.CompletionRequest
}

func (f *fakeLLM) Complete(_ context.Context, req *provider.CompletionRequest) (*provider.CompletionResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.requests) > len(f.responses) {
		return nil, fmt.Errorf("no more responses")
	}
	return &provider.CompletionResponse{Content: f.responses[len(f.requests)-1]}, nil
}

func TestLLMDeciderPrependsSystemPrompt(t *testing.T) {
	reg := MustRegistry(act("getUserInfo"))
	llm := &fakeLLM{responses: []string{`{"actions":["getUserInfo"],"isDone":false}`}}
	d := NewLLMDecider(llm, reg, LLMDeciderConfig{Model: "gpt-4o", Instructions: "You are an orchestrator AI."})

	decision, err := d.Decide(context.Background(), []provider.Message{
		{Role: provider.RoleUser, Content: "find Jane's account status"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(decision.Actions) != 1 || decision.Actions[0] != "getUserInfo" {
		t.Errorf("decision = %+v", decision)
	}

	if len(llm.requests) != 1 {
		t.Fatalf("Complete called %d times, want 1", len(llm.requests))
	}
	req := llm.requests[0]
	if req.Model != "gpt-4o" {
		t.Errorf("model = %q", req.Model)
	}
	if req.Temperature == nil || *req.Temperature != DefaultTemperature {
		t.Errorf("temperature = %v, want default %v", req.Temperature, DefaultTemperature)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != provider.RoleSystem {
		t.Fatalf("messages = %+v", req.Messages)
	}
	system := req.Messages[0].Content
	for _, want := range []string{"Available actions:", "- getUserInfo: does getUserInfo", "You are an orchestrator AI.", `"isDone"`} {
		if !strings.Contains(system, want) {
			t.Errorf("system prompt missing %q:\n%s", want, system)
		}
	}
}

func TestLLMDeciderKeepsExistingSystemMessage(t *testing.T) {
	reg := MustRegistry(act("a"))
	llm := &fakeLLM{responses: []string{`{"actions":[],"isDone":true}`}}
	d := NewLLMDecider(llm, reg, LLMDeciderConfig{Model: "m", Temperature: provider.Float(0)})

	conv := []provider.Message{
		{Role: provider.RoleSystem, Content: "engine prompt"},
		{Role: provider.RoleUser, Content: "hi"},
	}
	if _, err := d.Decide(context.Background(), conv); err != nil {
		t.Fatal(err)
	}
	msgs := llm.requests[0].Messages
	if len(msgs) != 2 || msgs[0].Content != "engine prompt" {
		t.Errorf("messages = %+v", msgs)
	}
	if *llm.requests[0].Temperature != 0 {
		t.Errorf("explicit temperature 0 was overridden")
	}
}

func TestLLMDeciderErrors(t *testing.T) {
	reg := MustRegistry(act("a"))

	t.Run("unreachable", func(t *testing.T) {
		cause := errors.New("connection refused")
		d := NewLLMDecider(&fakeLLM{err: cause}, reg, LLMDeciderConfig{})
		_, err := d.Decide(context.Background(), nil)
		var decErr *DecisionError
		if !errors.As(err, &decErr) {
			t.Fatalf("err = %T, want *DecisionError", err)
		}
		if !errors.Is(err, cause) {
			t.Error("DecisionError should wrap the transport error")
		}
	})

	t.Run("no content", func(t *testing.T) {
		d := NewLLMDecider(&fakeLLM{responses: []string{""}}, reg, LLMDeciderConfig{})
		_, err := d.Decide(context.Background(), nil)
		if !errors.Is(err, ErrEmptyDecision) || ErrorKind(err) != KindDecision {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		d := NewLLMDecider(&fakeLLM{responses: []string{"Sure! Running getUserInfo now."}}, reg, LLMDeciderConfig{})
		_, err := d.Decide(context.Background(), nil)
		var decErr *DecisionError
		if !errors.As(err, &decErr) || !errors.Is(err, ErrInvalidDecision) {
			t.Fatalf("err = %v", err)
		}
		if decErr.Content != "Sure! Running getUserInfo now." {
			t.Errorf("Content = %q", decErr.Content)
		}
	})
}

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spinup/spinup/internal/action"
	"github.com/spinup/spinup/internal/config"
	"github.com/spinup/spinup/internal/failover"
	"github.com/spinup/spinup/internal/logger"
	"github.com/spinup/spinup/internal/metrics"
	"github.com/spinup/spinup/internal/orchestrator"
	"github.com/spinup/spinup/internal/provider"
	"github.com/spinup/spinup/internal/runstore"
)

// app is the wired engine with its observers and run store.
type app struct {
	cfg      *config.Config
	engine   *orchestrator.Engine
	registry *orchestrator.Registry
	store    runstore.Store
	metrics  *metrics.Metrics
}

type appOptions struct {
	// llm replaces the configured provider, for tests.
	llm   orchestrator.LLMClient
	extra []orchestrator.Action
}

func newApp(ctx context.Context, cfg *config.Config, baseDir string, opts appOptions) (*app, error) {
	reg, err := action.BuildRegistry(cfg.Actions, baseDir, opts.extra...)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	llm, deciderCfg, err := buildLLM(cfg, opts.llm)
	if err != nil {
		return nil, err
	}
	decider := orchestrator.NewLLMDecider(m.InstrumentLLM(llm), reg, deciderCfg)

	store, err := runstore.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	o := cfg.Orchestrator
	guard := orchestrator.NewGuard()
	if o.MaxResultBytes > 0 {
		guard.MaxResultBytes = o.MaxResultBytes
	}
	guard.ActionTimeout = o.ActionTimeout

	engine, err := orchestrator.NewEngine(reg, decider, orchestrator.Options{
		Instructions: o.Instructions,
		Rules:        o.Rules,
		MaxRounds:    o.MaxRounds,
		Deadline:     o.Deadline,
		ResultPolicy: orchestrator.ResultPolicy(o.ResultPolicy),
		RetryBackoff: o.RetryBackoff,
		Guard:        guard,
		Logger:       logger.Component("engine"),
		Observers: []orchestrator.Observer{
			m,
			runstore.NewRecorder(store, logger.Component("runstore")),
			orchestrator.NewLogObserver(logger.Component("events")),
		},
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &app{cfg: cfg, engine: engine, registry: reg, store: store, metrics: m}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// buildLLM resolves orchestrator.model against the configured providers.
func buildLLM(cfg *config.Config, override orchestrator.LLMClient) (orchestrator.LLMClient, orchestrator.LLMDeciderConfig, error) {
	o := cfg.Orchestrator
	dc := orchestrator.LLMDeciderConfig{
		Temperature:  o.Temperature,
		MaxTokens:    o.MaxTokens,
		JSONMode:     o.JSONMode,
		Instructions: o.Instructions,
		Rules:        o.Rules,
	}
	if override != nil {
		dc.Model = o.Model
		if ref, err := provider.ParseModelRef(o.Model); err == nil {
			dc.Model = ref.Model()
		}
		return override, dc, nil
	}
	if o.Model == "" {
		return nil, dc, errors.New("orchestrator.model is required (provider/model)")
	}

	ref, err := provider.ParseModelRef(o.Model)
	if err != nil {
		return nil, dc, err
	}
	providers := provider.NewRegistry()
	for _, pc := range cfg.ProviderConfigs() {
		p, err := provider.FromConfig(pc)
		if err != nil {
			return nil, dc, fmt.Errorf("provider %s: %w", pc.ID, err)
		}
		if err := providers.Register(p); err != nil {
			return nil, dc, err
		}
	}
	p, err := providers.GetForModel(ref)
	if err != nil {
		return nil, dc, err
	}

	dc.Model = ref.Model()
	if info, ok := provider.Lookup(p.Models(), ref.Model()); ok {
		dc.JSONMode = dc.JSONMode || info.JSONMode
		if dc.MaxTokens == 0 {
			dc.MaxTokens = info.MaxTokens
		}
	}
	if len(o.FallbackModels) == 0 {
		return p, dc, nil
	}

	fallbacks := make([]provider.ModelRef, 0, len(o.FallbackModels))
	for _, m := range o.FallbackModels {
		fb, err := provider.ParseModelRef(m)
		if err != nil {
			return nil, dc, err
		}
		if _, err := providers.GetForModel(fb); err != nil {
			return nil, dc, err
		}
		fallbacks = append(fallbacks, fb)
	}
	return failover.NewClient(providers, ref, fallbacks, nil, logger.Get()), dc, nil
}

// Package action builds the action registry from configuration: compiled-in
// actions plus scripted Lua actions.
package action

import (
	"fmt"

	"github.com/spinup/spinup/internal/config"
	"github.com/spinup/spinup/internal/orchestrator"
)

// Load builds the actions named in cfg, builtins first, in declaration order.
func Load(cfg config.ActionsConfig, baseDir string) ([]orchestrator.Action, error) {
	out := make([]orchestrator.Action, 0, len(cfg.Builtin)+len(cfg.Lua))
	for _, name := range cfg.Builtin {
		mk, ok := builtins[name]
		if !ok {
			return nil, fmt.Errorf("unknown builtin action %q (available: %v)", name, Builtins())
		}
		out = append(out, mk())
	}
	for _, lc := range cfg.Lua {
		a, err := NewLuaAction(lc, baseDir)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// BuildRegistry loads cfg and validates the result as a registry.
func BuildRegistry(cfg config.ActionsConfig, baseDir string, extra ...orchestrator.Action) (*orchestrator.Registry, error) {
	actions, err := Load(cfg, baseDir)
	if err != nil {
		return nil, err
	}
	return orchestrator.NewRegistry(append(actions, extra...)...)
}

// Package failover sends a completion to the primary model and falls back to
// the next configured model when a provider is rate limited, unavailable or
// rejects its credentials.
package failover

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/spinup/spinup/internal/provider"
)

// AllExhaustedError is returned when no model in the chain produced a
// completion.
type AllExhaustedError struct {
	Attempted []string
	Last      error
}

func (e *AllExhaustedError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("all models exhausted or cooling down, attempted: %v", e.Attempted)
	}
	return fmt.Sprintf("all models exhausted, attempted: %v: %v", e.Attempted, e.Last)
}

func (e *AllExhaustedError) Unwrap() error { return e.Last }

// Client is an LLM client over a chain of models. It makes at most one call
// per model per Complete.
type Client struct {
	registry  *provider.Registry
	models    []provider.ModelRef
	cooldowns *Cooldowns
	log       zerolog.Logger
	now       func() time.Time
}

func NewClient(registry *provider.Registry, primary provider.ModelRef, fallbacks []provider.ModelRef, cooldowns *Cooldowns, log *zerolog.Logger) *Client {
	models := []provider.ModelRef{primary}
	for _, m := range fallbacks {
		if !slices.Contains(models, m) {
			models = append(models, m)
		}
	}
	if cooldowns == nil {
		cooldowns = NewCooldowns(DefaultCooldownConfig())
	}
	l := zerolog.Nop()
	if log != nil {
		l = log.With().Str("component", "failover").Logger()
	}
	return &Client{registry: registry, models: models, cooldowns: cooldowns, log: l, now: time.Now}
}

// Models returns the chain in the order it is tried.
func (c *Client) Models() []provider.ModelRef { return c.models }

// Complete ignores req.Model and sets it per attempt from the chain.
func (c *Client) Complete(ctx context.Context, req *provider.CompletionRequest) (*provider.CompletionResponse, error) {
	attempted := make([]string, 0, len(c.models))
	var last error

	for _, m := range c.models {
		if c.cooldowns.Active(m.Provider(), c.now()) {
			c.log.Debug().Str("model", m.String()).Msg("provider cooling down, skipping")
			continue
		}
		p, err := c.registry.GetForModel(m)
		if err != nil {
			return nil, err
		}
		attempted = append(attempted, m.String())

		attempt := *req
		attempt.Model = m.Model()
		resp, err := p.Complete(ctx, &attempt)
		if err == nil {
			c.cooldowns.Reset(m.Provider())
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		if !shouldFailover(err) {
			return nil, err
		}

		last = err
		until := c.cooldowns.Fail(m.Provider(), c.now())
		c.log.Warn().Err(err).Str("model", m.String()).Time("cooldown_until", until).Msg("model failed, trying next")
	}

	return nil, &AllExhaustedError{Attempted: attempted, Last: last}
}

func shouldFailover(err error) bool {
	var netErr interface{ Timeout() bool }
	return provider.IsTransient(err) || provider.IsAuthError(err) || (errors.As(err, &netErr) && netErr.Timeout())
}

package failover

import (
	"sync"
	"time"
)

type CooldownConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier int
}

func DefaultCooldownConfig() CooldownConfig {
	return CooldownConfig{
		Initial:    30 * time.Second,
		Max:        10 * time.Minute,
		Multiplier: 4,
	}
}

type cooldownState struct {
	failures int
	until    time.Time
}

// Cooldowns tracks providers that recently failed with a transient or auth
// error. Each consecutive failure multiplies the pause, capped at Max.
type Cooldowns struct {
	mu     sync.Mutex
	config CooldownConfig
	state  map[string]*cooldownState
}

func NewCooldowns(cfg CooldownConfig) *Cooldowns {
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}
	return &Cooldowns{config: cfg, state: make(map[string]*cooldownState)}
}

// Fail records a failure and returns when the provider becomes usable again.
func (c *Cooldowns) Fail(providerID string, now time.Time) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.state[providerID]
	if !ok {
		s = &cooldownState{}
		c.state[providerID] = s
	}
	s.failures++
	s.until = now.Add(c.duration(s.failures))
	return s.until
}

func (c *Cooldowns) Reset(providerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.state, providerID)
}

func (c *Cooldowns) Active(providerID string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.state[providerID]
	return ok && now.Before(s.until)
}

func (c *Cooldowns) duration(failures int) time.Duration {
	d := c.config.Initial
	for i := 1; i < failures; i++ {
		d *= time.Duration(c.config.Multiplier)
		if d > c.config.Max {
			return c.config.Max
		}
	}
	return d
}

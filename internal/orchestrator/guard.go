package orchestrator

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const DefaultMaxResultBytes = 64 * 1024 // 64KB

// Patterns in action output that could be mistaken for a decision or for
// chat-template control tokens.
var defaultForbiddenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`"isDone"\s*:`),
	regexp.MustCompile(`"actions"\s*:\s*\[`),
	regexp.MustCompile(`<\|im_(start|end)\|>`),
	regexp.MustCompile(`\[/?INST\]`),
}

// Guard bounds what flows between actions and the Decider: the size and
// content of results fed back into the conversation, and how long a single
// action attempt may run.
type Guard struct {
	MaxResultBytes    int
	ActionTimeout     time.Duration
	ForbiddenPatterns []*regexp.Regexp
}

func NewGuard() *Guard {
	return &Guard{
		MaxResultBytes:    DefaultMaxResultBytes,
		ForbiddenPatterns: defaultForbiddenPatterns,
	}
}

// Sanitize truncates s to MaxResultBytes and masks forbidden patterns.
func (g *Guard) Sanitize(s string) string {
	if s == "" {
		return s
	}

	if g.MaxResultBytes > 0 && len(s) > g.MaxResultBytes {
		cut := g.MaxResultBytes
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "\n[truncated: result exceeded size limit]"
	}

	for _, pat := range g.ForbiddenPatterns {
		s = pat.ReplaceAllStringFunc(s, func(match string) string {
			return strings.Repeat("*", len(match))
		})
	}

	return s
}

// ResultsTurn renders the user turn that carries previous results into the
// next decision round.
func (g *Guard) ResultsTurn(results any) string {
	return previousResultsPrefix + g.Sanitize(formatResults(results))
}

// AttemptContext derives the context for one action attempt. The deadline is
// cooperative: the action is never abandoned, the Engine waits for it to
// return.
func (g *Guard) AttemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.ActionTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.ActionTimeout)
}

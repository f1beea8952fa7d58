package orchestrator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrEmptyDecision   = errors.New("decider returned no content")
	ErrInvalidDecision = errors.New("invalid decision")
)

// decisionJSON mirrors Decision with pointer fields so that missing keys can
// be told apart from zero values.
type decisionJSON struct {
	Actions *[]string `json:"actions"`
	IsDone  *bool     `json:"isDone"`
	Summary *string   `json:"summary"`
}

// ParseDecision validates content against the decision shape
// {"actions": [string], "isDone": bool, "summary"?: string}. A single
// Markdown code fence around the object is tolerated; anything else that is
// not exactly one such object is rejected with an error wrapping
// ErrInvalidDecision.
func ParseDecision(content string) (*Decision, error) {
	body := stripCodeFence(strings.TrimSpace(content))
	if body == "" {
		return nil, ErrEmptyDecision
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.DisallowUnknownFields()

	var raw decisionJSON
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDecision, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after decision object", ErrInvalidDecision)
	}

	if raw.Actions == nil {
		return nil, fmt.Errorf("%w: missing required field \"actions\"", ErrInvalidDecision)
	}
	if raw.IsDone == nil {
		return nil, fmt.Errorf("%w: missing required field \"isDone\"", ErrInvalidDecision)
	}
	for i, id := range *raw.Actions {
		if strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("%w: actions[%d] is empty", ErrInvalidDecision, i)
		}
	}

	d := &Decision{
		Actions: append([]string{}, *raw.Actions...),
		IsDone:  *raw.IsDone,
	}
	if raw.Summary != nil {
		d.Summary = *raw.Summary
	}
	return d, nil
}

// stripCodeFence removes a ```json ... ``` (or bare ```) wrapper.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	nl := strings.Index(s, "\n")
	if nl < 0 {
		return s
	}
	rest := strings.TrimSpace(s[nl+1:])
	end := strings.LastIndex(rest, "```")
	if end < 0 {
		return s
	}
	return strings.TrimSpace(rest[:end])
}

package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spinup/spinup/internal/provider"
)

const previousResultsPrefix = "Previous action results: "

const responseFormatSection = `## Response format
Respond with exactly one JSON object and nothing else:
{"actions": ["<action id>", ...], "isDone": <true|false>, "summary": "<text>"}
- "actions": ids to run next, in execution order; [] when nothing is left to run.
- "isDone": true if the task is complete once these actions have run.
- "summary": short answer for the user; required when "actions" is [].

`

// BuildSystemPrompt renders the system turn: the live action roster, the
// rules, the response format and finally the caller's instructions.
func BuildSystemPrompt(roster []ActionDescriptor, rules *RulesConfig, instructions string) string {
	var sb strings.Builder
	sb.WriteString("Available actions:\n")
	for _, a := range roster {
		fmt.Fprintf(&sb, "- %s: %s\n", a.ID, a.Description)
	}
	sb.WriteString("\n")
	if rules != nil {
		sb.WriteString(rules.BuildPromptSection())
	}
	sb.WriteString(responseFormatSection)
	sb.WriteString(strings.TrimSpace(instructions))
	return strings.TrimRight(sb.String(), "\n")
}

// seedConversation returns [system, user] for a new run.
func seedConversation(system, query string) []provider.Message {
	return []provider.Message{
		{Role: provider.RoleSystem, Content: system},
		{Role: provider.RoleUser, Content: query},
	}
}

// formatResults renders previous results as indented JSON.
func formatResults(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

package action

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spinup/spinup/internal/orchestrator"
)

// User is a record in the demo user directory.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

var directory = map[string]User{
	"jane": {ID: "jane", Name: "Jane Doe", Status: "active"},
	"john": {ID: "john", Name: "John Smith", Status: "suspended"},
}

// GetUserInfo looks a user up by input["userId"], falling back to a known
// user named in the query.
func GetUserInfo() orchestrator.Action {
	return orchestrator.Action{
		Config: orchestrator.ActionConfig{
			ID:      "getUserInfo",
			Retries: 3,
			Metadata: orchestrator.ActionMetadata{
				Description: "Fetches user info from DB",
			},
		},
		Run: func(_ context.Context, actx *orchestrator.ActionContext) (any, error) {
			id, _ := actx.Input["userId"].(string)
			if id == "" {
				id = userInQuery(actx.Query())
			}
			u, ok := directory[strings.ToLower(id)]
			if !ok {
				return nil, fmt.Errorf("user %q not found", id)
			}
			return map[string]any{"id": u.ID, "name": u.Name, "status": u.Status}, nil
		},
	}
}

func userInQuery(query string) string {
	q := strings.ToLower(query)
	ids := make([]string, 0, len(directory))
	for id := range directory {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if strings.Contains(q, id) {
			return id
		}
	}
	return ""
}

// ListActions reports the roster the run can choose from.
func ListActions() orchestrator.Action {
	return orchestrator.Action{
		Config: orchestrator.ActionConfig{
			ID: "listActions",
			Metadata: orchestrator.ActionMetadata{
				Description: "Lists every registered action with its description",
			},
		},
		Run: func(_ context.Context, actx *orchestrator.ActionContext) (any, error) {
			return actx.Actions.Describe(), nil
		},
	}
}

var builtins = map[string]func() orchestrator.Action{
	"getUserInfo": GetUserInfo,
	"listActions": ListActions,
}

// Builtins returns the names of the compiled-in actions.
func Builtins() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

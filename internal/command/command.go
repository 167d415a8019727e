// Package command turns free-text operator commands into tasks by keyword
// routing. The full text is preserved in the task payload so the assigned
// agent sees the original request.
package command

import (
	"fmt"
	"strings"

	"github.com/aiarmour/armour/internal/task"
)

// routes maps a keyword to the role that handles it. First match in order
// wins, so more specific keywords come first.
var routes = []struct {
	keyword string
	role    task.Role
	name    string
}{
	{"quote", task.RoleSales, "prepare-quote"},
	{"lead", task.RoleSales, "handle-lead"},
	{"invoice", task.RoleFinance, "handle-invoice"},
	{"payment", task.RoleFinance, "handle-payment"},
	{"report", task.RoleFinance, "financial-report"},
	{"stock", task.RoleLogistics, "check-stock"},
	{"reorder", task.RoleLogistics, "reorder-stock"},
	{"inventory", task.RoleLogistics, "check-stock"},
	{"install", task.RoleContractor, "schedule-installation"},
	{"contractor", task.RoleContractor, "assign-contractor"},
	{"ticket", task.RoleSupport, "handle-ticket"},
	{"support", task.RoleSupport, "handle-ticket"},
	{"complaint", task.RoleSupport, "handle-ticket"},
}

// Parse routes a command to a role and builds the corresponding task. Commands
// containing "urgent" or "asap" get hot priority, which always requires a
// human approval before dispatch. Unroutable text is an error rather than a
// guess.
func Parse(text string) (*task.Task, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("empty command")
	}
	lower := strings.ToLower(trimmed)

	priority := task.PriorityWarm
	if strings.Contains(lower, "urgent") || strings.Contains(lower, "asap") {
		priority = task.PriorityHot
	}

	for _, r := range routes {
		if strings.Contains(lower, r.keyword) {
			payload := map[string]string{"command": trimmed}
			return task.New(r.role, r.name, payload, task.OriginCommand, priority), nil
		}
	}
	return nil, fmt.Errorf("no role matches command %q", trimmed)
}

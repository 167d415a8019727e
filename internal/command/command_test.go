package command

import (
	"testing"

	"github.com/aiarmour/armour/internal/task"
)

func TestParseRouting(t *testing.T) {
	cases := []struct {
		text string
		role task.Role
		name string
	}{
		{"send a quote to Acme Corp for 20 panels", task.RoleSales, "prepare-quote"},
		{"follow up on the new lead from the website", task.RoleSales, "handle-lead"},
		{"chase the overdue invoice INV-100", task.RoleFinance, "handle-invoice"},
		{"record payment from Reyes Roofing", task.RoleFinance, "handle-payment"},
		{"check stock levels for 400W panels", task.RoleLogistics, "check-stock"},
		{"reorder mounting brackets", task.RoleLogistics, "reorder-stock"},
		{"schedule the install at 12 Elm St", task.RoleContractor, "schedule-installation"},
		{"open a ticket for the inverter fault", task.RoleSupport, "handle-ticket"},
		{"customer complaint about delayed delivery", task.RoleSupport, "handle-ticket"},
	}
	for _, tc := range cases {
		tk, err := Parse(tc.text)
		if err != nil {
			t.Errorf("Parse(%q) failed: %v", tc.text, err)
			continue
		}
		if tk.Role != tc.role || tk.Name != tc.name {
			t.Errorf("Parse(%q) = role %s name %s, want %s/%s", tc.text, tk.Role, tk.Name, tc.role, tc.name)
		}
		if tk.Origin != task.OriginCommand {
			t.Errorf("Parse(%q): origin %s, want command", tc.text, tk.Origin)
		}
		if tk.Payload["command"] != tc.text {
			t.Errorf("Parse(%q): original text not preserved in payload", tc.text)
		}
	}
}

func TestParseUrgentIsHot(t *testing.T) {
	tk, err := Parse("URGENT: reorder inverters before Friday")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if tk.Priority != task.PriorityHot {
		t.Errorf("expected hot priority, got %s", tk.Priority)
	}

	tk, err = Parse("send a quote to Acme")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if tk.Priority != task.PriorityWarm {
		t.Errorf("expected warm priority, got %s", tk.Priority)
	}
}

func TestParseRejectsUnroutable(t *testing.T) {
	if _, err := Parse("make me a sandwich"); err == nil {
		t.Error("expected error for unroutable command")
	}
	if _, err := Parse("   "); err == nil {
		t.Error("expected error for empty command")
	}
}

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aiarmour/armour/internal/task"
)

// RoleAgent binds one business role to a reasoning capability. It builds the
// role prompt, calls the provider, and parses the structured proposal.
type RoleAgent struct {
	role   task.Role
	client Completer
	name   string
}

// NewRoleAgent creates the executor for a role. name identifies the provider
// behind client (e.g. "grok") for audit entries.
func NewRoleAgent(role task.Role, client Completer, name string) *RoleAgent {
	return &RoleAgent{role: role, client: client, name: name}
}

func (a *RoleAgent) Name() string { return a.name }

// proposalPayload is the JSON contract the executor prompt demands.
type proposalPayload struct {
	Summary string       `json:"summary"`
	Amount  float64      `json:"amount"`
	Claims  []task.Claim `json:"claims"`
}

// Propose asks the capability for a proposed action. Output that cannot be
// parsed is an invocation fault, not a verdict: the provider violated the
// output contract and the attempt is retried.
func (a *RoleAgent) Propose(ctx context.Context, t *task.Task) (*task.ProposedAction, error) {
	if t.Role != a.role {
		return nil, fmt.Errorf("role agent %s received task for role %s", a.role, t.Role)
	}

	out, err := a.client.Complete(ctx, roleSystemPrompt(a.role), buildTaskPrompt(t))
	if err != nil {
		return nil, err
	}

	var payload proposalPayload
	if err := json.Unmarshal([]byte(extractJSON(out)), &payload); err != nil {
		return nil, invocationErr(a.name, "proposal is not valid JSON: %v", err)
	}
	if strings.TrimSpace(payload.Summary) == "" {
		return nil, invocationErr(a.name, "proposal has no summary")
	}

	return &task.ProposedAction{
		ID:          uuid.NewString(),
		TaskID:      t.ID,
		GeneratedBy: a.name,
		Summary:     payload.Summary,
		Amount:      payload.Amount,
		Claims:      payload.Claims,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// RoleReviewer verifies proposals with a second, independent capability.
type RoleReviewer struct {
	client Completer
	name   string
}

func NewRoleReviewer(client Completer, name string) *RoleReviewer {
	return &RoleReviewer{client: client, name: name}
}

func (r *RoleReviewer) Name() string { return r.name }

type reviewPayload struct {
	Verdict    string   `json:"verdict"`
	Issues     []string `json:"issues"`
	Confidence float64  `json:"confidence"`
}

// Review re-derives the action independently and reports a verdict.
func (r *RoleReviewer) Review(ctx context.Context, t *task.Task, action *task.ProposedAction) (*task.VerificationResult, error) {
	out, err := r.client.Complete(ctx, reviewerSystemPrompt, buildReviewPrompt(t, action))
	if err != nil {
		return nil, err
	}

	var payload reviewPayload
	if err := json.Unmarshal([]byte(extractJSON(out)), &payload); err != nil {
		return nil, invocationErr(r.name, "review is not valid JSON: %v", err)
	}

	verdict := task.VerdictApproved
	if payload.Verdict == string(task.VerdictFlagged) {
		verdict = task.VerdictFlagged
	}
	return &task.VerificationResult{
		TaskID:     t.ID,
		Verdict:    verdict,
		Issues:     payload.Issues,
		Confidence: payload.Confidence,
	}, nil
}

var rolePrompts = map[task.Role]string{
	task.RoleSales:      "You are the sales agent for an AI security hardware business. You process enquiries, draft quotes from the price list, and follow up with warm leads.",
	task.RoleFinance:    "You are the finance agent. You track invoices, draft payment reminders, and prepare financial summaries. Never invent invoice amounts or statuses.",
	task.RoleLogistics:  "You are the logistics agent. You watch inventory levels of AI appliance units and propose restock orders when stock runs low.",
	task.RoleContractor: "You are the contractor-coordination agent. You schedule installations and prepare briefs for field contractors.",
	task.RoleSupport:    "You are the customer support agent. You triage support tickets and monitor the health of deployed systems.",
}

const proposalContract = ` Respond with a single JSON object:
{"summary": "<what should be done>", "amount": <monetary value of the effect, 0 if none>, "claims": [{"field": "<fact field>", "key": "<record key>", "value": "<asserted value>"}]}
Every price, stock count, or invoice status you rely on must appear as a claim so it can be reconciled against business records. Propose only; never perform the action.`

const reviewerSystemPrompt = `You are an independent reviewer. Re-derive the proposed action from the task and flag hallucinated facts, arithmetic errors, or contradictions. Respond with a single JSON object: {"verdict": "approved" or "flagged", "issues": ["..."], "confidence": 0.0-1.0}`

func roleSystemPrompt(role task.Role) string {
	return rolePrompts[role] + proposalContract
}

func buildTaskPrompt(t *task.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", t.Name)
	fmt.Fprintf(&b, "Priority: %s\n", t.Priority)

	keys := make([]string, 0, len(t.Payload))
	for k := range t.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, t.Payload[k])
	}
	return b.String()
}

func buildReviewPrompt(t *task.Task, action *task.ProposedAction) string {
	var b strings.Builder
	b.WriteString(buildTaskPrompt(t))
	fmt.Fprintf(&b, "\nProposed action: %s\n", action.Summary)
	fmt.Fprintf(&b, "Monetary value: %.2f\n", action.Amount)
	for _, c := range action.Claims {
		fmt.Fprintf(&b, "Claim: %s[%s] = %s\n", c.Field, c.Key, c.Value)
	}
	return b.String()
}

// extractJSON strips markdown fences and surrounding prose that chat models
// habitually wrap around JSON output.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if start := strings.Index(s, "{"); start >= 0 {
		if end := strings.LastIndex(s, "}"); end > start {
			return s[start : end+1]
		}
	}
	return s
}

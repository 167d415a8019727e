package agent

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aiarmour/armour/internal/task"
)

// Capability produces a proposed action from a task. Implementations are
// proposal-only: they must never perform the external side effect themselves.
type Capability interface {
	// Propose asks the capability what should be done for the task.
	Propose(ctx context.Context, t *task.Task) (*task.ProposedAction, error)

	// Name identifies the capability for audit entries and circuit breakers.
	Name() string
}

// Reviewer independently critiques a proposed action, looking for hallucinated
// facts and arithmetic errors. It must be a distinct reasoning capability from
// the one that proposed the action.
type Reviewer interface {
	Review(ctx context.Context, t *task.Task, action *task.ProposedAction) (*task.VerificationResult, error)
	Name() string
}

// Completer is the transport-level contract shared by provider adapters: one
// system+user prompt in, raw model text out.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Config selects and parameterizes a provider adapter.
type Config struct {
	Type      string // "grok" or "claude"
	BaseURL   string // override, empty uses the provider default
	Model     string
	APIKeyEnv string // environment variable holding the key
	Timeout   time.Duration
}

// NewCompleter builds the transport adapter for a provider config. It
// switches on cfg.Type the same way worker roles are bound to capabilities.
func NewCompleter(cfg Config, log *logrus.Logger) (Completer, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if cfg.APIKeyEnv != "" && key == "" {
		return nil, fmt.Errorf("provider %q: environment variable %s is not set", cfg.Type, cfg.APIKeyEnv)
	}
	hc := &http.Client{Timeout: cfg.Timeout}

	switch cfg.Type {
	case "grok":
		return newGrokClient(cfg, key, hc, log), nil
	case "claude":
		return newClaudeClient(cfg, key, hc, log), nil
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}
